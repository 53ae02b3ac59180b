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

	"github.com/ctessum/geom"
	"github.com/ctessum/sparse"
	"github.com/golang/groupcache/lru"
	"github.com/gonum/floats"
)

// Source is the minimal contract a dataset-like storage backend satisfies:
// variable lookup by name, dimension and shape introspection, attribute
// access, and block reads. The empty string names the global attribute set.
// Read returns the hyperslab from corner begin (inclusive) to corner end
// (exclusive); passing nil for both reads the whole variable.
type Source interface {
	Variables() []string
	Dimensions(v string) []string
	Lengths(v string) []int
	AttributeNames(v string) []string
	Attribute(v, a string) interface{}
	Read(v string, begin, end []int) (*sparse.DenseArray, error)
}

// coordCacheEntries is the number of coordinate variables kept resident
// per dataset.
const coordCacheEntries = 100

// A DataSet wraps a Source together with the caches shared by all fields
// cut from it: the bounding boxes of its coordinate-array pairs, and
// recently read coordinate variables. A DataSet is not safe for concurrent
// use; callers that share one across goroutines must serialize access
// themselves.
type DataSet struct {
	src    Source
	bbox   map[[2]string]*geom.Bounds
	coords *lru.Cache

	// MsgChan is an optional channel for status messages. If it is
	// non-nil, progress reports are sent to it and the receiver must
	// drain them.
	MsgChan chan string
}

// NewDataSet returns a DataSet wrapping src.
func NewDataSet(src Source) *DataSet {
	return &DataSet{
		src:    src,
		bbox:   make(map[[2]string]*geom.Bounds),
		coords: lru.New(coordCacheEntries),
	}
}

// Variables returns the names of the variables in the dataset.
func (ds *DataSet) Variables() []string { return ds.src.Variables() }

// HasVariable reports whether the dataset contains a variable named v.
func (ds *DataSet) HasVariable(v string) bool {
	for _, name := range ds.src.Variables() {
		if name == v {
			return true
		}
	}
	return false
}

// Dimensions returns the dimension names of variable v.
func (ds *DataSet) Dimensions(v string) []string { return ds.src.Dimensions(v) }

// Lengths returns the dimension lengths of variable v.
func (ds *DataSet) Lengths(v string) []int { return ds.src.Lengths(v) }

// AttributeNames returns the attribute names of variable v, or the global
// attribute names when v is the empty string.
func (ds *DataSet) AttributeNames(v string) []string { return ds.src.AttributeNames(v) }

// Attribute returns the value of attribute a of variable v (global when v
// is the empty string), or nil when it is not present.
func (ds *DataSet) Attribute(v, a string) interface{} { return ds.src.Attribute(v, a) }

// AttributeString returns attribute a of variable v as a string, or the
// empty string when it is not present.
func (ds *DataSet) AttributeString(v, a string) string {
	return attrString(ds.src.Attribute(v, a))
}

// Read reads the hyperslab of variable v from corner begin (inclusive) to
// corner end (exclusive); nil corners read the whole variable.
func (ds *DataSet) Read(v string, begin, end []int) (*sparse.DenseArray, error) {
	return ds.src.Read(v, begin, end)
}

// coordArray returns the full contents of variable v, caching recently
// used variables. It is meant for coordinate variables, which are read
// repeatedly while computing grid geometry; data variables should be read
// through Read instead.
func (ds *DataSet) coordArray(v string) (*sparse.DenseArray, error) {
	if d, ok := ds.coords.Get(v); ok {
		return d.(*sparse.DenseArray), nil
	}
	data, err := ds.src.Read(v, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("fieldcube: reading coordinate %s: %v", v, err)
	}
	ds.coords.Add(v, data)
	return data, nil
}

// boundingBox returns the bounding box spanned by the named coordinate
// pair: the horizontal extent is the minimum to maximum of the x
// coordinate array and the vertical extent the minimum to maximum of the y
// coordinate array. The result is computed once per (y, x) name pair and
// owned by the dataset for its lifetime; repeated calls with the same pair
// return the same *geom.Bounds.
func (ds *DataSet) boundingBox(yName, xName string) (*geom.Bounds, error) {
	key := [2]string{yName, xName}
	if b, ok := ds.bbox[key]; ok {
		return b, nil
	}
	y, err := ds.coordArray(yName)
	if err != nil {
		return nil, err
	}
	x, err := ds.coordArray(xName)
	if err != nil {
		return nil, err
	}
	if len(y.Elements) == 0 || len(x.Elements) == 0 {
		return nil, fmt.Errorf("fieldcube: coordinates %s, %s are empty", yName, xName)
	}
	b := &geom.Bounds{
		Min: geom.Point{X: floats.Min(x.Elements), Y: floats.Min(y.Elements)},
		Max: geom.Point{X: floats.Max(x.Elements), Y: floats.Max(y.Elements)},
	}
	ds.bbox[key] = b
	return b, nil
}

// attrString converts an attribute value as stored by a Source to a
// string. NetCDF text attributes arrive as string or []uint8.
func attrString(v interface{}) string {
	switch a := v.(type) {
	case nil:
		return ""
	case string:
		return a
	case []uint8:
		return string(a)
	}
	return fmt.Sprint(v)
}

// attrValue converts an attribute value as stored by a Source to its
// natural metadata form: text to string, single-element numeric slices to
// their scalar element, everything else unchanged.
func attrValue(v interface{}) interface{} {
	switch a := v.(type) {
	case []uint8:
		return string(a)
	case []float64:
		if len(a) == 1 {
			return a[0]
		}
	case []float32:
		if len(a) == 1 {
			return float64(a[0])
		}
	case []int32:
		if len(a) == 1 {
			return int(a[0])
		}
	case []int16:
		if len(a) == 1 {
			return int(a[0])
		}
	}
	return v
}

// attrFloat converts a numeric attribute value as stored by a Source to a
// float64. NetCDF numeric attributes arrive as single-element slices.
func attrFloat(v interface{}) (float64, bool) {
	switch a := v.(type) {
	case []float64:
		if len(a) > 0 {
			return a[0], true
		}
	case []float32:
		if len(a) > 0 {
			return float64(a[0]), true
		}
	case []int32:
		if len(a) > 0 {
			return float64(a[0]), true
		}
	case []int16:
		if len(a) > 0 {
			return float64(a[0]), true
		}
	case float64:
		return a, true
	case float32:
		return float64(a), true
	case int:
		return float64(a), true
	case int32:
		return float64(a), true
	case int64:
		return float64(a), true
	}
	return 0, false
}
