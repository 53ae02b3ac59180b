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
	"math"

	"github.com/ctessum/sparse"
)

// An ArrayBackend allocates the arrays the builder scatters fields into
// and defines the marker left in cells no field covered.
type ArrayBackend interface {
	Name() string

	// Empty returns an array of the given shape with every element set
	// to the backend's fill value.
	Empty(shape []int) *sparse.DenseArray

	// FillValue is the marker stored in uncovered cells.
	FillValue() float64
}

// DenseBackend is the default backend: dense float64 arrays with NaN
// fill.
var DenseBackend ArrayBackend = denseBackend{}

type denseBackend struct{}

func (denseBackend) Name() string { return "dense" }

func (denseBackend) FillValue() float64 { return math.NaN() }

func (denseBackend) Empty(shape []int) *sparse.DenseArray {
	a := sparse.ZerosDense(shape...)
	fill := math.NaN()
	for i := range a.Elements {
		a.Elements[i] = fill
	}
	return a
}

// ZeroBackend allocates zero-filled arrays for callers that prefer zeros
// over NaN as the missing marker.
var ZeroBackend ArrayBackend = zeroBackend{}

type zeroBackend struct{}

func (zeroBackend) Name() string { return "zero" }

func (zeroBackend) FillValue() float64 { return 0 }

func (zeroBackend) Empty(shape []int) *sparse.DenseArray {
	return sparse.ZerosDense(shape...)
}
