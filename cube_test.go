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
	"os"
	"reflect"
	"testing"
	"time"
)

func TestCubeFields(t *testing.T) {
	c, err := Build(forecastFields(), &Options{
		VariableKey: "variable",
		Squeeze:     true,
		Strict:      true,
	})
	if err != nil {
		t.Fatal(err)
	}
	fields := c.Fields()
	if fields.Len() != 4 {
		t.Fatalf("field count: %d != 4", fields.Len())
	}

	// Fields come out with the leading dimension varying slowest, so the
	// second field is (step=0, level=850), holding values 10..13.
	md := fields[1].Metadata()
	if v := md.Get("variable"); v != "t" {
		t.Errorf("variable: %v != t", v)
	}
	if v := md.Get("step"); v != 0 {
		t.Errorf("step: %v != 0", v)
	}
	if v := md.Get("level"); v != 850 {
		t.Errorf("level: %v != 850", v)
	}
	if v := md.Get("shape"); !reflect.DeepEqual(v, []int{2, 2}) {
		t.Errorf("shape: %v != [2 2]", v)
	}
	vals, err := fields[1].Values()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(vals.Elements, []float64{10, 11, 12, 13}) {
		t.Errorf("values: %v", vals.Elements)
	}
	if !reflect.DeepEqual(vals.Shape, []int{2, 2}) {
		t.Errorf("field shape: %v != [2 2]", vals.Shape)
	}

	// The squeezed reference time survives the round trip as metadata.
	wantRef := time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC)
	if rt, ok := md.Get("forecast_reference_time").(time.Time); !ok || !rt.Equal(wantRef) {
		t.Errorf("reference time: %v != %v", md.Get("forecast_reference_time"), wantRef)
	}
}

func TestCubeFieldsRebuild(t *testing.T) {
	// Decomposing a cube into fields and rebuilding along the same
	// dimensions reproduces the data.
	c, err := Build(forecastFields(), &Options{
		VariableKey: "variable",
		Squeeze:     true,
		Strict:      true,
	})
	if err != nil {
		t.Fatal(err)
	}
	c2, err := Build(c.Fields(), &Options{
		VariableKey: "variable",
		FixedDims:   []string{"step", "level"},
		Strict:      true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(c2.Dims, c.Dims) {
		t.Fatalf("dims: %v != %v", c2.Dims, c.Dims)
	}
	got := c2.Data["t"].Data
	want := c.Data["t"].Data
	if !reflect.DeepEqual(got.Shape, want.Shape) {
		t.Fatalf("shape: %v != %v", got.Shape, want.Shape)
	}
	if !reflect.DeepEqual(got.Elements, want.Elements) {
		t.Errorf("elements: %v != %v", got.Elements, want.Elements)
	}
}

func TestDerive(t *testing.T) {
	l := FieldList{
		testField(0, map[string]interface{}{"variable": "t", "units": "C"}),
		testField(100, map[string]interface{}{"variable": "u"}),
	}
	c, err := Build(l, &Options{VariableKey: "variable"})
	if err != nil {
		t.Fatal(err)
	}

	if err := c.Derive("tk", "K", "t + 273.15"); err != nil {
		t.Fatal(err)
	}
	tk := c.Data["tk"]
	if tk == nil {
		t.Fatal("no derived variable")
	}
	if !reflect.DeepEqual(tk.Dims, c.Data["t"].Dims) {
		t.Errorf("dims: %v != %v", tk.Dims, c.Data["t"].Dims)
	}
	want := []float64{273.15, 274.15, 275.15, 276.15}
	if !reflect.DeepEqual(tk.Data.Elements, want) {
		t.Errorf("elements: %v != %v", tk.Data.Elements, want)
	}
	if v := tk.Attrs.Get("units"); v != "K" {
		t.Errorf("units: %v != K", v)
	}
	if v := tk.Attrs.Get("expression"); v != "t + 273.15" {
		t.Errorf("expression: %v", v)
	}
	if !reflect.DeepEqual(c.VariableNames(), []string{"t", "u", "tk"}) {
		t.Errorf("variable order: %v", c.VariableNames())
	}

	if err := c.Derive("spd", "", "sqrt(pow(u, 2))"); err != nil {
		t.Fatal(err)
	}
	if got := c.Data["spd"].Data.Elements[0]; got != 100 {
		t.Errorf("sqrt(pow(u,2)): %v != 100", got)
	}
}

func TestDeriveErrors(t *testing.T) {
	l := FieldList{
		testField(0, map[string]interface{}{"variable": "t", "step": 0}),
		testField(10, map[string]interface{}{"variable": "t", "step": 6}),
		testField(100, map[string]interface{}{"variable": "u"}),
	}
	c, err := Build(l, &Options{VariableKey: "variable"})
	if err != nil {
		t.Fatal(err)
	}

	if err := c.Derive("x", "", "t + q"); err == nil {
		t.Error("expected error for undefined variable")
	}
	if err := c.Derive("x", "", "1 + 2"); err == nil {
		t.Error("expected error for expression with no variables")
	}
	// t spans the step dimension and u does not.
	if err := c.Derive("x", "", "t + u"); err == nil {
		t.Error("expected error for mismatched shapes")
	}
	if err := c.Derive("x", "", "t +"); err == nil {
		t.Error("expected error for malformed expression")
	}
}

func TestCubeNetCDFRoundTrip(t *testing.T) {
	var l FieldList
	v := 0.0
	for _, step := range []int{0, 6} {
		for _, level := range []int{500, 850} {
			l = append(l, testField(v, map[string]interface{}{
				"variable": "t", "dataDate": 20190301, "dataTime": 0,
				"step": step, "level": level,
				"experiment": "a", "units": "K",
			}))
			v += 10
		}
	}
	c, err := Build(l, &Options{
		VariableKey:       "variable",
		ExtraDims:         []string{"experiment"},
		VariableAttrs:     []string{"units"},
		AddValidTimeCoord: true,
		Strict:            true,
	})
	if err != nil {
		t.Fatal(err)
	}
	c.Attrs.Set("institution", "center")

	f, err := os.Create("testcube.nc")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove("testcube.nc")
	if err := c.WriteNetCDF(f); err != nil {
		t.Fatal(err)
	}
	f.Close()

	r, err := os.Open("testcube.nc")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	c2, err := ReadCubeNetCDF(r)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(c2.Dims, c.Dims) {
		t.Fatalf("dims: %v != %v", c2.Dims, c.Dims)
	}
	for _, d := range c.Dims {
		if c2.Lengths[d] != c.Lengths[d] {
			t.Errorf("length of %s: %d != %d", d, c2.Lengths[d], c.Lengths[d])
		}
	}

	// Numeric coordinates come back as float64, text as strings, and
	// time coordinates as timestamps.
	if vals := c2.Coords["step"].Values; !reflect.DeepEqual(vals, []interface{}{0.0, 6.0}) {
		t.Errorf("step coord: %v", vals)
	}
	if vals := c2.Coords["experiment"].Values; !reflect.DeepEqual(vals, []interface{}{"a"}) {
		t.Errorf("experiment coord: %v", vals)
	}
	wantRef := time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC)
	if rt := c2.Coords["forecast_reference_time"].Values[0]; !rt.(time.Time).Equal(wantRef) {
		t.Errorf("reference time coord: %v != %v", rt, wantRef)
	}

	// The valid-time auxiliary coordinate keeps its dimensions.
	vt := c2.Coords["valid_time"]
	if vt == nil {
		t.Fatal("no valid_time coordinate after round trip")
	}
	if !reflect.DeepEqual(vt.Dims, []string{"forecast_reference_time", "step"}) {
		t.Errorf("valid_time dims: %v", vt.Dims)
	}
	want1 := time.Date(2019, 3, 1, 6, 0, 0, 0, time.UTC)
	if !vt.Values[1].(time.Time).Equal(want1) {
		t.Errorf("valid_time[1]: %v != %v", vt.Values[1], want1)
	}

	v2 := c2.Data["t"]
	if v2 == nil {
		t.Fatal("no variable t after round trip")
	}
	if !reflect.DeepEqual(v2.Dims, c.Data["t"].Dims) {
		t.Errorf("variable dims: %v != %v", v2.Dims, c.Data["t"].Dims)
	}
	if !reflect.DeepEqual(v2.Data.Elements, c.Data["t"].Data.Elements) {
		t.Errorf("variable data differs after round trip")
	}
	if u := v2.Attrs.Get("units"); u != "K" {
		t.Errorf("units attribute: %v != K", u)
	}
	if inst := c2.Attrs.Get("institution"); inst != "center" {
		t.Errorf("global attribute: %v != center", inst)
	}
}

func TestCubeNetCDFFloat32(t *testing.T) {
	c, err := Build(forecastFields(), &Options{
		VariableKey: "variable",
		Squeeze:     true,
		Strict:      true,
		DType:       Float32,
	})
	if err != nil {
		t.Fatal(err)
	}

	f, err := os.Create("testcube32.nc")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove("testcube32.nc")
	if err := c.WriteNetCDF(f); err != nil {
		t.Fatal(err)
	}
	f.Close()

	r, err := os.Open("testcube32.nc")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	c2, err := ReadCubeNetCDF(r)
	if err != nil {
		t.Fatal(err)
	}
	if c2.DType != Float32 {
		t.Error("storage type not preserved")
	}
	// The test values are small integers, exact in single precision.
	if !reflect.DeepEqual(c2.Data["t"].Data.Elements, c.Data["t"].Data.Elements) {
		t.Errorf("data differs after single-precision round trip")
	}
}
