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
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ctessum/sparse"
)

// memVar is one variable of a memSource.
type memVar struct {
	dims  []string
	data  *sparse.DenseArray
	attrs map[string]interface{}
}

// memSource is an in-memory Source for testing, tracking how often each
// variable is read.
type memSource struct {
	order  []string
	vars   map[string]*memVar
	global map[string]interface{}
	reads  map[string]int
}

func newMemSource() *memSource {
	return &memSource{
		vars:   make(map[string]*memVar),
		global: make(map[string]interface{}),
		reads:  make(map[string]int),
	}
}

func (s *memSource) add(name string, dims []string, data *sparse.DenseArray, attrs map[string]interface{}) {
	s.order = append(s.order, name)
	s.vars[name] = &memVar{dims: dims, data: data, attrs: attrs}
}

func (s *memSource) Variables() []string { return s.order }

func (s *memSource) Dimensions(v string) []string {
	if mv, ok := s.vars[v]; ok {
		return mv.dims
	}
	return nil
}

func (s *memSource) Lengths(v string) []int {
	if mv, ok := s.vars[v]; ok {
		return mv.data.Shape
	}
	return nil
}

func (s *memSource) AttributeNames(v string) []string {
	attrs := s.global
	if v != "" {
		mv, ok := s.vars[v]
		if !ok {
			return nil
		}
		attrs = mv.attrs
	}
	names := make([]string, 0, len(attrs))
	for a := range attrs {
		names = append(names, a)
	}
	return names
}

func (s *memSource) Attribute(v, a string) interface{} {
	if v == "" {
		return s.global[a]
	}
	if mv, ok := s.vars[v]; ok {
		return mv.attrs[a]
	}
	return nil
}

func (s *memSource) Read(v string, begin, end []int) (*sparse.DenseArray, error) {
	mv, ok := s.vars[v]
	if !ok {
		return nil, fmt.Errorf("no variable %s", v)
	}
	s.reads[v]++
	if begin == nil && end == nil {
		return mv.data.Copy(), nil
	}
	shape := make([]int, len(begin))
	for i := range begin {
		shape[i] = end[i] - begin[i]
	}
	out := sparse.ZerosDense(shape...)
	idx := append([]int(nil), begin...)
	for i := range out.Elements {
		src := 0
		for j, x := range idx {
			src = src*mv.data.Shape[j] + x
		}
		out.Elements[i] = mv.data.Elements[src]
		for j := len(idx) - 1; j >= 0; j-- {
			idx[j]++
			if idx[j] < end[j] {
				break
			}
			idx[j] = begin[j]
		}
	}
	return out, nil
}

// testSource returns a source shaped like a small forecast file: a
// temperature variable over (time, level, lat, lon) with coordinate
// variables, a scalar height coordinate, and a grid mapping.
func testSource() *memSource {
	s := newMemSource()
	s.add("time", []string{"time"}, denseFrom([]int{2}, 0, 6),
		map[string]interface{}{"units": "hours since 2019-03-01 00:00:00"})
	s.add("level", []string{"level"}, denseFrom([]int{2}, 500, 850),
		map[string]interface{}{"units": "hPa"})
	s.add("lat", []string{"lat"}, denseFrom([]int{3}, 10, 20, 30),
		map[string]interface{}{"units": "degrees_north"})
	s.add("lon", []string{"lon"}, denseFrom([]int{4}, 0, 1, 2, 3),
		map[string]interface{}{"units": "degrees_east"})
	s.add("height", nil, denseFrom(nil, 2),
		map[string]interface{}{"units": "m"})
	s.add("crs", nil, denseFrom(nil, 0),
		map[string]interface{}{"grid_mapping_name": "latitude_longitude"})

	data := sparse.ZerosDense(2, 2, 3, 4)
	for i := range data.Elements {
		data.Elements[i] = float64(i)
	}
	s.add("t", []string{"time", "level", "lat", "lon"}, data,
		map[string]interface{}{
			"long_name":    "Temperature",
			"units":        "K",
			"coordinates":  "height",
			"grid_mapping": "crs",
		})
	return s
}

func TestDataSetFields(t *testing.T) {
	ds := NewDataSet(testSource())
	fields, err := ds.Fields(nil)
	if err != nil {
		t.Fatal(err)
	}
	// Coordinate variables, the scalar coordinate, and the grid mapping
	// are skipped; t decomposes along (time, level).
	if fields.Len() != 4 {
		t.Fatalf("field count: %d != 4", fields.Len())
	}

	// Fields come out with the leading dimension varying slowest, so
	// field 1 is (time=0, level=850).
	f := fields[1]
	md := f.Metadata()
	if v := md.Get("variable"); v != "t" {
		t.Errorf("variable: %v != t", v)
	}
	if v := md.Get("units"); v != "K" {
		t.Errorf("units: %v != K", v)
	}
	if md.Has("grid_mapping") || md.Has("coordinates") {
		t.Error("storage attributes leaked into metadata")
	}
	wantTime := time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC)
	if v, ok := md.Get("time").(time.Time); !ok || !v.Equal(wantTime) {
		t.Errorf("time: %v != %v", md.Get("time"), wantTime)
	}
	if v := md.Get("level"); v != 850.0 {
		t.Errorf("level: %v != 850", v)
	}
	if v := md.Get("height"); v != 2.0 {
		t.Errorf("height: %v != 2", v)
	}

	vals, err := f.Values()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(vals.Shape, []int{3, 4}) {
		t.Fatalf("shape: %v != [3 4]", vals.Shape)
	}
	// Block (0, 1) of a (2, 2, 3, 4) array starts at element 12.
	want := make([]float64, 12)
	for i := range want {
		want[i] = float64(12 + i)
	}
	if !reflect.DeepEqual(vals.Elements, want) {
		t.Errorf("values: %v != %v", vals.Elements, want)
	}

	if title := f.Title(); !strings.HasPrefix(title, "Temperature") {
		t.Errorf("title: %q", title)
	}
}

func TestDataSetFieldsDropDims(t *testing.T) {
	ds := NewDataSet(testSource())
	fields, err := ds.Fields(&Options{
		Profile:  Profiles["netcdf"].Copy(),
		DropDims: []string{"time"},
	})
	if err != nil {
		t.Fatal(err)
	}
	// With time pinned to its first position only level varies.
	if fields.Len() != 2 {
		t.Fatalf("field count: %d != 2", fields.Len())
	}
	for _, f := range fields {
		v, ok := f.Metadata().Get("time").(time.Time)
		if !ok || !v.Equal(time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("time: %v", f.Metadata().Get("time"))
		}
	}
}

func TestBoundingBox(t *testing.T) {
	src := testSource()
	ds := NewDataSet(src)
	fields, err := ds.Fields(nil)
	if err != nil {
		t.Fatal(err)
	}

	g0, err := fields[0].Geography()
	if err != nil {
		t.Fatal(err)
	}
	b0, err := g0.BoundingBox()
	if err != nil {
		t.Fatal(err)
	}
	if b0.Min.X != 0 || b0.Max.X != 3 || b0.Min.Y != 10 || b0.Max.Y != 30 {
		t.Errorf("bounds: %+v", b0)
	}

	// Fields on the same grid share the same cached bounds object, and
	// the coordinate arrays are only read once.
	g1, err := fields[1].Geography()
	if err != nil {
		t.Fatal(err)
	}
	b1, err := g1.BoundingBox()
	if err != nil {
		t.Fatal(err)
	}
	if b0 != b1 {
		t.Error("bounding box not shared between fields of one dataset")
	}
	if src.reads["lat"] != 1 || src.reads["lon"] != 1 {
		t.Errorf("coordinate reads: lat %d, lon %d; want 1 each",
			src.reads["lat"], src.reads["lon"])
	}

	if n, err := g0.North(); err != nil || n != 30 {
		t.Errorf("North: %v, %v", n, err)
	}
	if w, err := g0.West(); err != nil || w != 0 {
		t.Errorf("West: %v, %v", w, err)
	}
}

func TestResolveAxesByAttribute(t *testing.T) {
	s := newMemSource()
	s.add("jj", []string{"jj"}, denseFrom([]int{2}, 100, 200),
		map[string]interface{}{"axis": "Y"})
	s.add("ii", []string{"ii"}, denseFrom([]int{3}, 1, 2, 3),
		map[string]interface{}{"axis": "X"})
	s.add("q", []string{"jj", "ii"}, denseFrom([]int{2, 3}, 0, 1, 2, 3, 4, 5), nil)
	ds := NewDataSet(s)

	fields, err := ds.Fields(nil)
	if err != nil {
		t.Fatal(err)
	}
	g, err := fields[0].Geography()
	if err != nil {
		t.Fatal(err)
	}
	b, err := g.BoundingBox()
	if err != nil {
		t.Fatal(err)
	}
	if b.Min.Y != 100 || b.Max.Y != 200 || b.Min.X != 1 || b.Max.X != 3 {
		t.Errorf("bounds: %+v", b)
	}
}

func TestResolveAxesError(t *testing.T) {
	s := newMemSource()
	s.add("q", []string{"a", "b"}, denseFrom([]int{2, 2}, 0, 1, 2, 3), nil)
	ds := NewDataSet(s)

	fields, err := ds.Fields(nil)
	if err != nil {
		t.Fatal(err)
	}
	g, err := fields[0].Geography()
	if err != nil {
		t.Fatal(err)
	}
	_, err = g.BoundingBox()
	if _, ok := err.(AxisError); !ok {
		t.Errorf("expected AxisError, got %v", err)
	}
}

func TestXYMesh(t *testing.T) {
	ds := NewDataSet(testSource())
	fields, err := ds.Fields(nil)
	if err != nil {
		t.Fatal(err)
	}
	g, err := fields[0].Geography()
	if err != nil {
		t.Fatal(err)
	}

	x, y, err := g.XY(false)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(x.Shape, []int{3, 4}) || !reflect.DeepEqual(y.Shape, []int{3, 4}) {
		t.Fatalf("mesh shapes: %v, %v", x.Shape, y.Shape)
	}
	// Row 1 of the mesh: x repeats the axis, y is constant at lat[1].
	if got := x.Elements[4:8]; !reflect.DeepEqual(got, []float64{0, 1, 2, 3}) {
		t.Errorf("x row 1: %v", got)
	}
	if got := y.Elements[4:8]; !reflect.DeepEqual(got, []float64{20, 20, 20, 20}) {
		t.Errorf("y row 1: %v", got)
	}

	xf, yf, err := g.XY(true)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(xf.Shape, []int{12}) || !reflect.DeepEqual(yf.Shape, []int{12}) {
		t.Errorf("flattened shapes: %v, %v", xf.Shape, yf.Shape)
	}
}

func TestProjection(t *testing.T) {
	ds := NewDataSet(testSource())
	fields, err := ds.Fields(nil)
	if err != nil {
		t.Fatal(err)
	}
	g, err := fields[0].Geography()
	if err != nil {
		t.Fatal(err)
	}
	sr, err := g.Projection()
	if err != nil {
		t.Fatal(err)
	}
	if sr == nil {
		t.Fatal("nil spatial reference")
	}
	// The projection is memoized.
	sr2, err := g.Projection()
	if err != nil {
		t.Fatal(err)
	}
	if sr != sr2 {
		t.Error("projection not memoized")
	}
}

func TestProjectionMissing(t *testing.T) {
	s := newMemSource()
	s.add("lat", []string{"lat"}, denseFrom([]int{2}, 0, 1), nil)
	s.add("lon", []string{"lon"}, denseFrom([]int{2}, 0, 1), nil)
	s.add("q", []string{"lat", "lon"}, denseFrom([]int{2, 2}, 0, 1, 2, 3), nil)
	ds := NewDataSet(s)

	fields, err := ds.Fields(nil)
	if err != nil {
		t.Fatal(err)
	}
	g, err := fields[0].Geography()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.Projection(); err == nil {
		t.Fatal("expected error for missing grid mapping")
	} else if _, ok := err.(GridMappingError); !ok {
		t.Errorf("expected GridMappingError, got %v", err)
	}
}

func TestFieldUnpacking(t *testing.T) {
	s := newMemSource()
	s.add("lat", []string{"lat"}, denseFrom([]int{2}, 0, 1), nil)
	s.add("lon", []string{"lon"}, denseFrom([]int{2}, 0, 1), nil)
	s.add("packed", []string{"lat", "lon"},
		denseFrom([]int{2, 2}, 10, 20, -999, 40),
		map[string]interface{}{
			"scale_factor": []float64{0.5},
			"add_offset":   []float64{100},
			"_FillValue":   []float64{-999},
		})
	ds := NewDataSet(s)

	fields, err := ds.Fields(nil)
	if err != nil {
		t.Fatal(err)
	}
	if fields.Len() != 1 {
		t.Fatalf("field count: %d != 1", fields.Len())
	}
	vals, err := fields[0].Values()
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{105, 110, math.NaN(), 120}
	for i, w := range want {
		if math.IsNaN(w) {
			if !math.IsNaN(vals.Elements[i]) {
				t.Errorf("element %d: %v, want NaN", i, vals.Elements[i])
			}
			continue
		}
		if vals.Elements[i] != w {
			t.Errorf("element %d: %v != %v", i, vals.Elements[i], w)
		}
	}
	// Storage attributes stay out of the metadata.
	if fields[0].Metadata().Has("scale_factor") {
		t.Error("scale_factor leaked into metadata")
	}
}
