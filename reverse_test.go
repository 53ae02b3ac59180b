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
	"reflect"
	"testing"

	"github.com/ctessum/sparse"
)

// denseFrom returns a dense array of the given shape holding vals.
func denseFrom(shape []int, vals ...float64) *sparse.DenseArray {
	a := sparse.ZerosDense(shape...)
	copy(a.Elements, vals)
	return a
}

func TestFromArrays(t *testing.T) {
	a1 := denseFrom([]int{2, 2}, 1, 2, 3, 4)
	a2 := denseFrom([]int{2, 2}, 5, 6, 7, 8)
	m1 := MetadataFromMap(map[string]interface{}{"variable": "t", "level": 500})
	m2 := MetadataFromMap(map[string]interface{}{"variable": "t", "level": 850})

	l, err := FromArrays([]*sparse.DenseArray{a1, a2}, []*Metadata{m1, m2})
	if err != nil {
		t.Fatal(err)
	}
	if l.Len() != 2 {
		t.Fatalf("length: %d != 2", l.Len())
	}
	for i, want := range []*sparse.DenseArray{a1, a2} {
		got, err := l[i].Values()
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got.Elements, want.Elements) {
			t.Errorf("field %d: %v != %v", i, got.Elements, want.Elements)
		}
	}
	if v := l[1].Metadata().Get("level"); v != 850 {
		t.Errorf("field 1 level: %v != 850", v)
	}
}

func TestFromArraysErrors(t *testing.T) {
	a := denseFrom([]int{2, 2}, 1, 2, 3, 4)
	m := MetadataFromMap(map[string]interface{}{"variable": "t"})

	if _, err := FromArrays(nil, []*Metadata{m}); err == nil {
		t.Error("expected error for empty array list")
	}
	if _, err := FromArrays([]*sparse.DenseArray{a}, []*Metadata{m, m}); err == nil {
		t.Error("expected error for length mismatch")
	}
}

func TestFromArraySplit(t *testing.T) {
	// A (2, 2, 3) array splits along its leading axis into two (2, 3)
	// fields.
	a := denseFrom([]int{2, 2, 3},
		1, 2, 3, 4, 5, 6,
		7, 8, 9, 10, 11, 12)
	m1 := MetadataFromMap(map[string]interface{}{"variable": "t", "step": 0})
	m2 := MetadataFromMap(map[string]interface{}{"variable": "t", "step": 6})

	l, err := FromArray(a, []*Metadata{m1, m2})
	if err != nil {
		t.Fatal(err)
	}
	if l.Len() != 2 {
		t.Fatalf("length: %d != 2", l.Len())
	}
	v0, err := l[0].Values()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(v0.Shape, []int{2, 3}) {
		t.Errorf("shape: %v != [2 3]", v0.Shape)
	}
	v1, err := l[1].Values()
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{7, 8, 9, 10, 11, 12}
	if !reflect.DeepEqual(v1.Elements, want) {
		t.Errorf("second field: %v != %v", v1.Elements, want)
	}
}

func TestFromArraySplitKeepsSingletonAxes(t *testing.T) {
	// Splitting a (2, 1, 4) array must keep the inner length-1 axis, so
	// each field is (1, 4) rather than collapsing to (4).
	a := denseFrom([]int{2, 1, 4},
		1, 2, 3, 4,
		5, 6, 7, 8)
	m1 := MetadataFromMap(map[string]interface{}{"variable": "t", "step": 0})
	m2 := MetadataFromMap(map[string]interface{}{"variable": "t", "step": 6})

	l, err := FromArray(a, []*Metadata{m1, m2})
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range [][]float64{{1, 2, 3, 4}, {5, 6, 7, 8}} {
		v, err := l[i].Values()
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(v.Shape, []int{1, 4}) {
			t.Errorf("field %d shape: %v != [1 4]", i, v.Shape)
		}
		if !reflect.DeepEqual(v.Elements, want) {
			t.Errorf("field %d: %v != %v", i, v.Elements, want)
		}
	}
}

func TestFromArraySingleStacked(t *testing.T) {
	// A single metadata whose declared grid shape matches the whole
	// array means the array is one stacked field, not a split.
	a := denseFrom([]int{3, 2}, 1, 2, 3, 4, 5, 6)
	m := MetadataFromMap(map[string]interface{}{
		"variable": "t", "shape": []int{3, 2},
	})
	l, err := FromArray(a, []*Metadata{m})
	if err != nil {
		t.Fatal(err)
	}
	if l.Len() != 1 {
		t.Fatalf("length: %d != 1", l.Len())
	}
	v, err := l[0].Values()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(v.Shape, []int{3, 2}) {
		t.Errorf("shape: %v != [3 2]", v.Shape)
	}

	// The flattened element count matches the declared shape too.
	flat := denseFrom([]int{6}, 1, 2, 3, 4, 5, 6)
	l, err = FromArray(flat, []*Metadata{m})
	if err != nil {
		t.Fatal(err)
	}
	if l.Len() != 1 {
		t.Fatalf("flattened length: %d != 1", l.Len())
	}
}

func TestFromArrayMismatch(t *testing.T) {
	a := denseFrom([]int{3, 2, 2},
		1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12)
	m1 := MetadataFromMap(map[string]interface{}{"variable": "t"})
	m2 := MetadataFromMap(map[string]interface{}{"variable": "u"})

	if _, err := FromArray(a, []*Metadata{m1, m2}); err == nil {
		t.Error("expected error for leading-axis count mismatch")
	}
	if _, err := FromArray(a, nil); err == nil {
		t.Error("expected error for no metadata")
	}
	if _, err := FromArray(nil, []*Metadata{m1}); err == nil {
		t.Error("expected error for nil array")
	}
}

func TestFromArraysStripsInternalKeys(t *testing.T) {
	a := denseFrom([]int{2}, 1, 2)
	md := NewMetadata()
	md.Set("variable", "t")
	md.Set("_index", 3)
	l, err := FromArrays([]*sparse.DenseArray{a}, []*Metadata{md})
	if err != nil {
		t.Fatal(err)
	}
	got := l[0].Metadata()
	if got.Has("_index") {
		t.Error("internal key _index not stripped")
	}
	if got.Get("variable") != "t" {
		t.Error("non-internal key lost")
	}
}

func TestFieldListNamesAndTitles(t *testing.T) {
	a := denseFrom([]int{2}, 1, 2)
	l, err := FromArrays(
		[]*sparse.DenseArray{a, a, a},
		[]*Metadata{
			MetadataFromMap(map[string]interface{}{"variable": "t", "long_name": "Temperature"}),
			MetadataFromMap(map[string]interface{}{"variable": "u"}),
			MetadataFromMap(map[string]interface{}{"variable": "t", "long_name": "Temperature"}),
		})
	if err != nil {
		t.Fatal(err)
	}
	names := l.VariableNames("variable")
	if !reflect.DeepEqual(names, []string{"t", "u"}) {
		t.Errorf("names: %v != [t u]", names)
	}
	if title := l[0].Title(); title != "Temperature" {
		t.Errorf("title: %q != Temperature", title)
	}
	if title := l[1].Title(); title != "u" {
		t.Errorf("fallback title: %q != u", title)
	}
}
