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

import "fmt"

// TimeDimMode selects the shape of the temporal dimensions of the cube.
type TimeDimMode string

const (
	// TimeDimForecast produces two dimensions: the forecast reference
	// time and the step.
	TimeDimForecast TimeDimMode = "forecast"
	// TimeDimValid produces a single valid-time dimension.
	TimeDimValid TimeDimMode = "valid_time"
	// TimeDimRaw produces separate date, time, and step dimensions as
	// they appear in the metadata.
	TimeDimRaw TimeDimMode = "raw"
)

func (m TimeDimMode) valid() error {
	switch m {
	case TimeDimForecast, TimeDimValid, TimeDimRaw:
		return nil
	}
	return fmt.Errorf("fieldcube: invalid time dimension mode %q", string(m))
}

// LevelDimMode selects the shape of the vertical dimensions of the cube.
type LevelDimMode string

const (
	// LevelDimSingle produces one level dimension.
	LevelDimSingle LevelDimMode = "level"
	// LevelDimPerType produces one dimension per distinct level type,
	// named by the type.
	LevelDimPerType LevelDimMode = "level_per_type"
	// LevelDimAndType produces one composite dimension whose values
	// combine the level and its type.
	LevelDimAndType LevelDimMode = "level_and_type"
)

func (m LevelDimMode) valid() error {
	switch m {
	case LevelDimSingle, LevelDimPerType, LevelDimAndType:
		return nil
	}
	return fmt.Errorf("fieldcube: invalid level dimension mode %q", string(m))
}

// AttrsMode selects how attribute keys are placed on the cube.
type AttrsMode string

const (
	// AttrsFixed emits exactly the declared variable and global
	// attribute keys.
	AttrsFixed AttrsMode = "fixed"
	// AttrsUnique hoists attribute keys whose value is identical across
	// the fields of every variable to global attributes and keeps the
	// rest per variable.
	AttrsUnique AttrsMode = "unique"
)

func (m AttrsMode) valid() error {
	switch m {
	case AttrsFixed, AttrsUnique:
		return nil
	}
	return fmt.Errorf("fieldcube: invalid attributes mode %q", string(m))
}

// DType selects the storage type used when a cube is written out.
type DType int

const (
	Float64 DType = iota
	Float32
)

// Options configures the hypercube builder. The zero value of a field
// means "use the profile's default" for the mode and key fields and "off"
// for the booleans; NewOptions returns the standard defaults. Options also
// configures the NetCDF decoder, which consumes VariableKey, the role
// table, and DropDims.
type Options struct {
	// Profile supplies the defaults for the settings below. Nil means
	// the default profile.
	Profile *Profile

	// VariableKey is the metadata key holding the variable name fields
	// are grouped by.
	VariableKey string

	// DimRoles overrides individual entries of the profile's role table.
	DimRoles RoleTable

	// ExtraDims names additional metadata keys to use as dimensions,
	// after the automatically derived ones.
	ExtraDims []string

	// DropDims names dimensions to exclude from consideration entirely.
	DropDims []string

	// EnsureDims names dimensions kept even when only one value of them
	// is observed.
	EnsureDims []string

	// FixedDims, when non-empty, is the complete dimension order, used
	// verbatim instead of automatic derivation.
	FixedDims []string

	// DimsAsAttrs names dimensions demoted to per-variable attributes.
	DimsAsAttrs []string

	// RenameDims renames output dimensions.
	RenameDims map[string]string

	TimeDimMode  TimeDimMode
	LevelDimMode LevelDimMode

	// SortTimeDims orders time-like dimension values chronologically
	// instead of in first-seen order.
	SortTimeDims bool

	// Squeeze drops dimensions with exactly one observed value,
	// recording the value as a per-variable attribute instead.
	Squeeze bool

	AttrsMode AttrsMode

	// Attrs names the metadata keys recorded as attributes; their
	// placement depends on AttrsMode.
	Attrs []string

	// VariableAttrs names keys always recorded per variable.
	VariableAttrs []string

	// GlobalAttrs names keys always recorded globally.
	GlobalAttrs []string

	// Strict requires the field collection to cover the Cartesian
	// product of the dimension value sets exactly: no duplicate and no
	// missing cells.
	Strict bool

	// DType is the storage type for cube output.
	DType DType

	// Backend allocates cube arrays. Nil means DenseBackend.
	Backend ArrayBackend

	// FlattenValues forces the grid axes to be flattened into a single
	// "values" dimension.
	FlattenValues bool

	// AddValidTimeCoord attaches a valid-time auxiliary coordinate
	// computed from the reference time and step, unless valid time is
	// already a dimension.
	AddValidTimeCoord bool

	// AddGeoCoords attaches latitude and longitude auxiliary coordinates
	// along a flattened "values" dimension.
	AddGeoCoords bool

	// MsgChan is an optional channel for status messages. If it is
	// non-nil, progress reports are sent to it and the receiver must
	// drain them.
	MsgChan chan string
}

// NewOptions returns the default options: the default profile with
// squeezing on and lenient (non-strict) assembly.
func NewOptions() *Options {
	p := DefaultProfile()
	return &Options{Profile: p, Squeeze: p.Squeeze}
}

// resolve fills profile-defaulted settings and resolves the role table,
// returning the effective configuration.
func (o *Options) resolve() (*Options, RoleTable, error) {
	r := *o
	if r.Profile == nil {
		r.Profile = DefaultProfile()
	}
	if r.VariableKey == "" {
		r.VariableKey = r.Profile.VariableKey
	}
	if r.TimeDimMode == "" {
		r.TimeDimMode = r.Profile.TimeDimMode
	}
	if r.LevelDimMode == "" {
		r.LevelDimMode = r.Profile.LevelDimMode
	}
	if r.AttrsMode == "" {
		r.AttrsMode = r.Profile.AttrsMode
	}
	if r.Attrs == nil {
		r.Attrs = r.Profile.Attrs
	}
	if r.Backend == nil {
		r.Backend = DenseBackend
	}
	if err := r.TimeDimMode.valid(); err != nil {
		return nil, nil, err
	}
	if err := r.LevelDimMode.valid(); err != nil {
		return nil, nil, err
	}
	if err := r.AttrsMode.valid(); err != nil {
		return nil, nil, err
	}
	return &r, ResolveRoles(r.Profile, r.DimRoles), nil
}
