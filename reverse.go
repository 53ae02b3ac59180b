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
	"strings"

	"github.com/ctessum/sparse"
)

// FromArrays reconstructs a field list from parallel lists of arrays and
// metadata: field i wraps arrays[i] with metadata[i]. The lists must be the
// same length and must not be empty. Metadata keys beginning with an
// underscore are internal and are stripped before attachment.
func FromArrays(arrays []*sparse.DenseArray, metadata []*Metadata) (FieldList, error) {
	if len(arrays) == 0 {
		return nil, fmt.Errorf("fieldcube: FromArrays: no arrays given")
	}
	if len(arrays) != len(metadata) {
		return nil, fmt.Errorf("fieldcube: FromArrays: %d arrays but %d metadata",
			len(arrays), len(metadata))
	}
	l := make(FieldList, len(arrays))
	for i, a := range arrays {
		if a == nil {
			return nil, fmt.Errorf("fieldcube: FromArrays: array %d is nil", i)
		}
		l[i] = newArrayField(a, stripInternal(metadata[i]))
	}
	return l, nil
}

// FromArray reconstructs a field list from a single array: the array is
// split along its leading axis, pairing slab i with metadata[i]. When
// exactly one metadata is given and the array's full shape matches that
// metadata's declared grid shape — directly, or as a flattened element
// count — the whole array is treated as one stacked field instead of being
// split. Any other disagreement between the leading-axis length and the
// number of metadata is an error.
func FromArray(array *sparse.DenseArray, metadata []*Metadata) (FieldList, error) {
	if array == nil {
		return nil, fmt.Errorf("fieldcube: FromArray: no array given")
	}
	if len(metadata) == 0 {
		return nil, fmt.Errorf("fieldcube: FromArray: no metadata given")
	}
	if len(metadata) == 1 {
		if shape := metadataShape(metadata[0]); shapeMatch(array.Shape, shape) {
			return FieldList{newArrayField(array, stripInternal(metadata[0]))}, nil
		}
	}
	if len(array.Shape) == 0 || array.Shape[0] != len(metadata) {
		n := 0
		if len(array.Shape) > 0 {
			n = array.Shape[0]
		}
		return nil, fmt.Errorf("fieldcube: FromArray: array leading axis has length %d but %d metadata were given",
			n, len(metadata))
	}
	l := make(FieldList, len(metadata))
	gridShape := array.Shape[1:]
	gridSize := 1
	for _, s := range gridShape {
		gridSize *= s
	}
	for i, md := range metadata {
		// Slab i is contiguous in the row-major element order, so it is
		// copied out directly rather than gathered index by index.
		slab := sparse.ZerosDense(gridShape...)
		copy(slab.Elements, array.Elements[i*gridSize:(i+1)*gridSize])
		l[i] = newArrayField(slab, stripInternal(md))
	}
	return l, nil
}

// shapeMatch reports whether an array shape matches a declared grid shape,
// either exactly or as a one-dimensional flattening of it.
func shapeMatch(have, want []int) bool {
	if want == nil {
		return false
	}
	if len(have) == len(want) {
		equal := true
		for i, s := range have {
			if s != want[i] {
				equal = false
				break
			}
		}
		if equal {
			return true
		}
	}
	if len(have) == 1 {
		n := 1
		for _, s := range want {
			n *= s
		}
		return have[0] == n
	}
	return false
}

// stripInternal returns metadata without internal (underscore-prefixed)
// keys. When there are none, md itself is returned.
func stripInternal(md *Metadata) *Metadata {
	internal := false
	for _, k := range md.Keys() {
		if strings.HasPrefix(k, "_") {
			internal = true
			break
		}
	}
	if !internal {
		return md
	}
	o := NewMetadata()
	for _, k := range md.Keys() {
		if !strings.HasPrefix(k, "_") {
			o.Set(k, md.Get(k))
		}
	}
	return o
}
