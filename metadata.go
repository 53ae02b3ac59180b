/*
Copyright © 2019 the FieldCube authors.
This file is part of FieldCube.

FieldCube is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

FieldCube is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with FieldCube.  If not, see <http://www.gnu.org/licenses/>.
*/

package fieldcube

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Metadata is an ordered collection of key-value pairs describing a single
// field: variable name, vertical level, forecast times, ensemble member,
// grid attributes, and so on. Keys iterate in the order they were first
// set. Metadata is treated as read-only once it has been attached to a
// Field; Set is meant for use during construction.
type Metadata struct {
	keys   []string
	values map[string]interface{}
}

// NewMetadata returns an empty Metadata.
func NewMetadata() *Metadata {
	return &Metadata{values: make(map[string]interface{})}
}

// MetadataFromMap creates a Metadata from a plain map. Because map
// iteration order is undefined, keys are inserted in sorted order.
func MetadataFromMap(m map[string]interface{}) *Metadata {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	md := NewMetadata()
	for _, k := range keys {
		md.Set(k, m[k])
	}
	return md
}

// Set sets key to value. Setting an existing key replaces its value but
// keeps its original position in the key order.
func (m *Metadata) Set(key string, value interface{}) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Len returns the number of keys.
func (m *Metadata) Len() int { return len(m.keys) }

// Keys returns the keys in insertion order. The returned slice is shared;
// the caller must not modify it.
func (m *Metadata) Keys() []string { return m.keys }

// Has reports whether key is present, even if its value is nil.
func (m *Metadata) Has(key string) bool {
	_, ok := m.values[key]
	return ok
}

// Get returns the value for key, or nil if the key is not present.
func (m *Metadata) Get(key string) interface{} { return m.values[key] }

// GetDefault returns the value for key, or def if the key is not present.
func (m *Metadata) GetDefault(key string, def interface{}) interface{} {
	if v, ok := m.values[key]; ok {
		return v
	}
	return def
}

// GetRequired returns the value for key, or a KeyError if the key is not
// present.
func (m *Metadata) GetRequired(key string) (interface{}, error) {
	v, ok := m.values[key]
	if !ok {
		return nil, KeyError{Key: key}
	}
	return v, nil
}

// GetString returns the value for key coerced to a string, or the empty
// string if the key is not present.
func (m *Metadata) GetString(key string) string {
	v, ok := m.values[key]
	if !ok || v == nil {
		return ""
	}
	return cast.ToString(v)
}

// Copy returns a copy of m sharing no storage with it. The values
// themselves are not deep-copied.
func (m *Metadata) Copy() *Metadata {
	o := &Metadata{
		keys:   make([]string, len(m.keys)),
		values: make(map[string]interface{}, len(m.values)),
	}
	copy(o.keys, m.keys)
	for k, v := range m.values {
		o.values[k] = v
	}
	return o
}

// KeyError is returned when a required metadata key is not defined.
type KeyError struct {
	Key string
}

func (err KeyError) Error() string {
	return fmt.Sprintf("fieldcube: metadata key %s is not defined", err.Key)
}

// NamespaceError is returned when an unsupported metadata namespace is
// requested.
type NamespaceError struct {
	Namespace string
}

func (err NamespaceError) Error() string {
	return fmt.Sprintf("fieldcube: unsupported metadata namespace %s", err.Namespace)
}

// marsRename maps native keys to their names in the "mars" namespace view.
var marsRename = map[string]string{
	"variable":    "param",
	"shortName":   "param",
	"level":       "levelist",
	"typeOfLevel": "levtype",
}

// Namespace returns an alternate view of the metadata. The empty string and
// "default" return m itself. "mars" returns a copy with keys renamed to
// their mars equivalents (variable becomes param, level becomes levelist,
// typeOfLevel becomes levtype). Any other name returns a NamespaceError.
func (m *Metadata) Namespace(name string) (*Metadata, error) {
	switch name {
	case "", "default":
		return m, nil
	case "mars":
		o := NewMetadata()
		for _, k := range m.keys {
			r := k
			if mk, ok := marsRename[k]; ok {
				r = mk
			}
			// Renames can collide, for example when a field carries both
			// variable and shortName; the first-present key wins.
			if !o.Has(r) {
				o.Set(r, m.values[k])
			}
		}
		return o, nil
	default:
		return nil, NamespaceError{Namespace: name}
	}
}

// Override would return a copy of m with the given pairs replaced.
// Metadata attached to computed fields is an immutable view, so Override
// is a no-op that always returns nil; callers that need modified metadata
// should build a new Metadata instead.
func (m *Metadata) Override(pairs map[string]interface{}) *Metadata {
	return nil
}

// ValidDatetime returns the nominal timestamp the field represents. It is
// taken from an explicit valid-time key when one is present, then from the
// validityDate and validityTime pair, then from the dataDate and dataTime
// pair advanced by the step. The second return is false when no timestamp
// can be derived.
func (m *Metadata) ValidDatetime() (time.Time, bool) {
	for _, k := range []string{"valid_datetime", "valid_time"} {
		if v, ok := m.values[k]; ok {
			if t, err := toTime(v); err == nil {
				return t, true
			}
		}
	}
	if t, err := combineDateTime(m.Get("validityDate"), m.Get("validityTime")); err == nil {
		return t, true
	}
	if t, err := combineDateTime(m.Get("dataDate"), m.Get("dataTime")); err == nil {
		if d, err := stepDuration(m.Get("step")); err == nil {
			return t.Add(d), true
		}
		return t, true
	}
	return time.Time{}, false
}

// BaseDatetime returns the forecast reference timestamp: the valid time
// minus the lead time. It is taken from the dataDate and dataTime pair when
// present, otherwise from the valid time with the step subtracted. The
// second return is false when no timestamp can be derived.
func (m *Metadata) BaseDatetime() (time.Time, bool) {
	if t, err := combineDateTime(m.Get("dataDate"), m.Get("dataTime")); err == nil {
		return t, true
	}
	t, ok := m.ValidDatetime()
	if !ok {
		return time.Time{}, false
	}
	if d, err := stepDuration(m.Get("step")); err == nil {
		return t.Add(-d), true
	}
	return t, true
}

// String returns the metadata as a comma-separated key=value list in key
// order.
func (m *Metadata) String() string {
	parts := make([]string, len(m.keys))
	for i, k := range m.keys {
		parts[i] = fmt.Sprintf("%s=%v", k, m.values[k])
	}
	return strings.Join(parts, ",")
}
