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
	"reflect"
	"testing"
)

func TestLatLonMesh(t *testing.T) {
	ds := NewDataSet(testSource())
	fields, err := ds.Fields(nil)
	if err != nil {
		t.Fatal(err)
	}
	g, err := fields[0].Geography()
	if err != nil {
		t.Fatal(err)
	}

	lat, lon, err := latLonMesh(g)
	if err != nil {
		t.Fatal(err)
	}
	if len(lat) != 12 || len(lon) != 12 {
		t.Fatalf("mesh lengths: %d, %d; want 12", len(lat), len(lon))
	}
	// The grid is geographic, so the meshes repeat the axis vectors.
	if !reflect.DeepEqual(lat[0:4], []float64{10, 10, 10, 10}) {
		t.Errorf("lat row 0: %v", lat[0:4])
	}
	if !reflect.DeepEqual(lon[0:4], []float64{0, 1, 2, 3}) {
		t.Errorf("lon row 0: %v", lon[0:4])
	}

	// A repeated request is served from the cache with the same result.
	lat2, _, err := latLonMesh(g)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(lat2, lat) {
		t.Error("cached mesh differs")
	}
}

func TestLatLonMeshNoDataset(t *testing.T) {
	g := newArrayGeography([]int{2, 2})
	if _, _, err := latLonMesh(g); err == nil {
		t.Error("expected error for a geography with no dataset")
	}
}

func TestBuildAddGeoCoords(t *testing.T) {
	ds := NewDataSet(testSource())
	fields, err := ds.Fields(nil)
	if err != nil {
		t.Fatal(err)
	}
	c, err := Build(fields, &Options{
		VariableKey:  "variable",
		FixedDims:    []string{"time", "level"},
		AddGeoCoords: true,
		Strict:       true,
	})
	if err != nil {
		t.Fatal(err)
	}
	// Geographic coordinates imply a flattened grid.
	wantDims := []string{"time", "level", "values"}
	if !reflect.DeepEqual(c.Dims, wantDims) {
		t.Fatalf("dims: %v != %v", c.Dims, wantDims)
	}
	latc := c.Coords["latitude"]
	lonc := c.Coords["longitude"]
	if latc == nil || lonc == nil {
		t.Fatal("no geographic coordinates")
	}
	if !reflect.DeepEqual(latc.Dims, []string{"values"}) {
		t.Errorf("latitude dims: %v", latc.Dims)
	}
	if len(latc.Values) != 12 {
		t.Fatalf("latitude length: %d != 12", len(latc.Values))
	}
	if latc.Values[0] != 10.0 || lonc.Values[1] != 1.0 {
		t.Errorf("coordinate values: lat[0]=%v lon[1]=%v", latc.Values[0], lonc.Values[1])
	}
}

func TestBackends(t *testing.T) {
	a := DenseBackend.Empty([]int{2, 2})
	for i, v := range a.Elements {
		if !math.IsNaN(v) {
			t.Errorf("dense element %d: %v, want NaN", i, v)
		}
	}
	z := ZeroBackend.Empty([]int{2, 2})
	for i, v := range z.Elements {
		if v != 0 {
			t.Errorf("zero element %d: %v, want 0", i, v)
		}
	}
	if DenseBackend.Name() != "dense" || ZeroBackend.Name() != "zero" {
		t.Error("backend names")
	}
}
