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
	"testing"
	"time"
)

func TestCombineDateTime(t *testing.T) {
	want := time.Date(2019, 3, 1, 12, 30, 0, 0, time.UTC)
	tests := []struct {
		name        string
		date, clock interface{}
		wantErr     bool
	}{
		{name: "numeric", date: 20190301, clock: 1230},
		{name: "strings", date: "20190301", clock: "1230"},
		{name: "dashed date colon time", date: "2019-03-01", clock: "12:30"},
		{name: "float date", date: 20190301.0, clock: 1230.0},
		{name: "bad month", date: 20191301, clock: 0, wantErr: true},
		{name: "bad clock", date: 20190301, clock: 2500, wantErr: true},
		{name: "nil date", date: nil, clock: 1230, wantErr: true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := combineDateTime(test.date, test.clock)
			if test.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !got.Equal(want) {
				t.Errorf("%v != %v", got, want)
			}
		})
	}
}

func TestStepDuration(t *testing.T) {
	tests := []struct {
		in      interface{}
		want    time.Duration
		wantErr bool
	}{
		{in: 6, want: 6 * time.Hour},
		{in: 6.5, want: 6*time.Hour + 30*time.Minute},
		{in: "12", want: 12 * time.Hour},
		{in: "30m", want: 30 * time.Minute},
		{in: 2 * time.Hour, want: 2 * time.Hour},
		{in: nil, wantErr: true},
		{in: "soon", wantErr: true},
	}
	for _, test := range tests {
		got, err := stepDuration(test.in)
		if test.wantErr {
			if err == nil {
				t.Errorf("stepDuration(%v): expected error", test.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("stepDuration(%v): %v", test.in, err)
			continue
		}
		if got != test.want {
			t.Errorf("stepDuration(%v): %v != %v", test.in, got, test.want)
		}
	}
}

func TestCFTimeRoundTrip(t *testing.T) {
	times := []time.Time{
		time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2019, 3, 1, 6, 0, 0, 0, time.UTC),
		time.Date(2019, 3, 2, 18, 30, 0, 0, time.UTC),
	}
	units, vals := encodeCFTime(times)
	got, err := parseCFTime(units, vals)
	if err != nil {
		t.Fatal(err)
	}
	for i := range times {
		if !got[i].Equal(times[i]) {
			t.Errorf("index %d: %v != %v", i, got[i], times[i])
		}
	}
}

func TestParseCFTime(t *testing.T) {
	got, err := parseCFTime("days since 2019-03-01", []float64{0, 1, 2.5})
	if err != nil {
		t.Fatal(err)
	}
	want := []time.Time{
		time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2019, 3, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2019, 3, 3, 12, 0, 0, 0, time.UTC),
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("index %d: %v != %v", i, got[i], want[i])
		}
	}

	if _, err := parseCFTime("furlongs since 2019-03-01", []float64{0}); err == nil {
		t.Error("expected error for unsupported unit")
	}
	if _, err := parseCFTime("hours", []float64{0}); err == nil {
		t.Error("expected error for malformed units")
	}
}
