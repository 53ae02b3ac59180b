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
	"math"

	"github.com/ctessum/sparse"
)

// A Field is one 2-D (or flattened) slice of data together with its
// descriptive metadata and grid geometry, independent of how the data is
// stored. Values computes the data on every call; Metadata and Geography
// are created once on first access and reused. A Field is immutable after
// creation apart from that memoization, and is not safe for concurrent
// use.
type Field interface {
	// Values returns the field's data as a dense array with the grid
	// axes as its shape.
	Values() (*sparse.DenseArray, error)

	// Metadata returns the field's metadata.
	Metadata() *Metadata

	// Geography returns the field's grid geometry.
	Geography() (*Geography, error)

	// Title returns a human-readable description of the field.
	Title() string
}

// datasetField is a Field stored as part of a larger dataset variable,
// pinned to one position along each non-grid dimension by its slices. The
// dataset is shared between all fields cut from it.
type datasetField struct {
	ds       *DataSet
	variable string
	varKey   string
	slices   []Slice

	md  *Metadata
	geo *Geography
}

// newDatasetField returns a field for the block of the named variable
// selected by the given slices. varKey is the metadata key under which the
// variable name is recorded.
func newDatasetField(ds *DataSet, variable, varKey string, slices []Slice) *datasetField {
	return &datasetField{ds: ds, variable: variable, varKey: varKey, slices: slices}
}

func (f *datasetField) sliceFor(dim string) (Slice, bool) {
	for _, s := range f.slices {
		if s.IsDimension && s.Name == dim {
			return s, true
		}
	}
	return Slice{}, false
}

// Values reads the field's block from the dataset, applying the dimension
// slices as index selectors, and unpacks it according to the variable's
// scale_factor, add_offset, and fill-value attributes. The result is a
// fresh array on every call.
func (f *datasetField) Values() (*sparse.DenseArray, error) {
	dims := f.ds.Dimensions(f.variable)
	lengths := f.ds.Lengths(f.variable)
	begin := make([]int, len(dims))
	end := make([]int, len(dims))
	var shape []int
	for i, d := range dims {
		if s, ok := f.sliceFor(d); ok {
			begin[i], end[i] = s.Index, s.Index+1
		} else {
			begin[i], end[i] = 0, lengths[i]
			shape = append(shape, lengths[i])
		}
	}
	data, err := f.ds.Read(f.variable, begin, end)
	if err != nil {
		return nil, fmt.Errorf("fieldcube: reading values of %s: %v", f.variable, err)
	}
	out := sparse.ZerosDense(shape...)
	copy(out.Elements, data.Elements)

	if fill, ok := attrFloat(f.ds.Attribute(f.variable, "_FillValue")); ok {
		for i, v := range out.Elements {
			if v == fill {
				out.Elements[i] = math.NaN()
			}
		}
	}
	scale, hasScale := attrFloat(f.ds.Attribute(f.variable, "scale_factor"))
	offset, hasOffset := attrFloat(f.ds.Attribute(f.variable, "add_offset"))
	if hasScale || hasOffset {
		if !hasScale {
			scale = 1
		}
		for i, v := range out.Elements {
			out.Elements[i] = v*scale + offset
		}
	}
	return out, nil
}

// attrsNotMetadata lists variable attributes that describe storage rather
// than the field itself and are therefore not copied into field metadata.
var attrsNotMetadata = map[string]bool{
	"_FillValue":    true,
	"missing_value": true,
	"scale_factor":  true,
	"add_offset":    true,
	"grid_mapping":  true,
	"coordinates":   true,
}

// Metadata fulfills the Field interface by building, on first call, the
// field's metadata from the variable name, the variable attributes, and
// the slice coordinates.
func (f *datasetField) Metadata() *Metadata {
	if f.md != nil {
		return f.md
	}
	md := NewMetadata()
	md.Set(f.varKey, f.variable)
	for _, a := range f.ds.AttributeNames(f.variable) {
		if attrsNotMetadata[a] {
			continue
		}
		md.Set(a, attrValue(f.ds.Attribute(f.variable, a)))
	}
	for _, s := range f.slices {
		md.Set(s.Name, s.Value)
	}
	f.md = md
	return md
}

// Geography fulfills the Field interface by creating, on first call, the
// geography of the variable's trailing grid axes.
func (f *datasetField) Geography() (*Geography, error) {
	if f.geo == nil {
		f.geo = newGeography(f.ds, f.variable)
	}
	return f.geo, nil
}

// Title fulfills the Field interface by returning the variable's long_name
// (falling back to standard_name, then the variable name) with the
// informational slice coordinates appended.
func (f *datasetField) Title() string {
	title := f.ds.AttributeString(f.variable, "long_name")
	if title == "" {
		title = f.ds.AttributeString(f.variable, "standard_name")
	}
	if title == "" {
		title = f.variable
	}
	for _, s := range f.slices {
		if s.IsInfo {
			title += fmt.Sprintf(" (%s)", s)
		}
	}
	return title
}

// arrayField is a Field backed by an in-memory array, as produced by the
// reverse builder or by cube decomposition.
type arrayField struct {
	data *sparse.DenseArray
	md   *Metadata
	geo  *Geography
}

// newArrayField pairs an array with its metadata.
func newArrayField(data *sparse.DenseArray, md *Metadata) *arrayField {
	return &arrayField{data: data, md: md}
}

// Values fulfills the Field interface by returning a copy of the stored
// array.
func (f *arrayField) Values() (*sparse.DenseArray, error) {
	return f.data.Copy(), nil
}

// Metadata fulfills the Field interface by returning the metadata the
// field was created with.
func (f *arrayField) Metadata() *Metadata { return f.md }

// Geography fulfills the Field interface by returning a geography holding
// the grid shape declared in the metadata, or failing that the array's own
// shape. Coordinate meshes and projections are not available for raw
// arrays.
func (f *arrayField) Geography() (*Geography, error) {
	if f.geo == nil {
		if shape := metadataShape(f.md); shape != nil {
			f.geo = newArrayGeography(shape)
		} else {
			f.geo = newArrayGeography(f.data.Shape)
		}
	}
	return f.geo, nil
}

// Title fulfills the Field interface by returning the long_name
// (falling back to standard_name, then the variable name) from the
// metadata.
func (f *arrayField) Title() string {
	for _, k := range []string{"long_name", "standard_name", "variable", "param"} {
		if t := f.md.GetString(k); t != "" {
			return t
		}
	}
	return "unknown"
}

// metadataShape returns the grid shape declared under the metadata "shape"
// key, or nil if none is declared.
func metadataShape(md *Metadata) []int {
	switch s := md.Get("shape").(type) {
	case []int:
		return s
	case []interface{}:
		o := make([]int, len(s))
		for i, v := range s {
			f, ok := attrFloat(v)
			if !ok {
				return nil
			}
			o[i] = int(f)
		}
		return o
	}
	return nil
}
