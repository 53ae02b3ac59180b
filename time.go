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
	"time"

	"github.com/spf13/cast"
)

// toTime converts v to a time.Time. v may be a time.Time or a string in
// RFC 3339 or "YYYY-MM-DD[ HH:MM[:SS]]" form.
func toTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		for _, layout := range []string{
			time.RFC3339,
			"2006-01-02T15:04:05",
			"2006-01-02 15:04:05",
			"2006-01-02 15:04",
			"2006-01-02",
		} {
			if tt, err := time.Parse(layout, t); err == nil {
				return tt, nil
			}
		}
		return time.Time{}, fmt.Errorf("fieldcube: cannot parse time %q", t)
	}
	return time.Time{}, fmt.Errorf("fieldcube: cannot convert %v (%T) to a time", v, v)
}

// combineDateTime combines a date given as YYYYMMDD (numeric or string,
// with or without dashes) and a clock given as HHMM (numeric or string,
// with or without a colon) into a single timestamp in UTC.
func combineDateTime(date, clock interface{}) (time.Time, error) {
	if date == nil {
		return time.Time{}, fmt.Errorf("fieldcube: no date to combine")
	}
	if clock == nil {
		return time.Time{}, fmt.Errorf("fieldcube: no time to combine")
	}
	if s, ok := date.(string); ok && strings.Contains(s, "-") {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return time.Time{}, fmt.Errorf("fieldcube: parsing date %q: %v", s, err)
		}
		date = t.Year()*10000 + int(t.Month())*100 + t.Day()
	}
	d, err := cast.ToIntE(date)
	if err != nil {
		return time.Time{}, fmt.Errorf("fieldcube: parsing date %v: %v", date, err)
	}
	if s, ok := clock.(string); ok {
		clock = strings.Replace(s, ":", "", 1)
	}
	c, err := cast.ToIntE(clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("fieldcube: parsing time %v: %v", clock, err)
	}
	year, month, day := d/10000, d/100%100, d%100
	hour, min := c/100, c%100
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("fieldcube: %d is not a YYYYMMDD date", d)
	}
	if hour > 23 || min > 59 {
		return time.Time{}, fmt.Errorf("fieldcube: %d is not an HHMM time", c)
	}
	return time.Date(year, time.Month(month), day, hour, min, 0, 0, time.UTC), nil
}

// stepDuration converts a forecast lead time to a duration. Bare numbers
// are interpreted as hours, following the usual encoding of forecast steps;
// strings may carry an explicit duration suffix such as "30m".
func stepDuration(v interface{}) (time.Duration, error) {
	switch s := v.(type) {
	case nil:
		return 0, fmt.Errorf("fieldcube: no step to convert")
	case time.Duration:
		return s, nil
	case string:
		if d, err := time.ParseDuration(s); err == nil {
			return d, nil
		}
	}
	h, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, fmt.Errorf("fieldcube: parsing step %v: %v", v, err)
	}
	return time.Duration(h * float64(time.Hour)), nil
}

// cfEpoch is the reference used when encoding time coordinates.
var cfEpoch = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// cfUnit returns the duration of one step of a CF time unit name.
func cfUnit(name string) (time.Duration, error) {
	switch strings.TrimSuffix(strings.ToLower(name), "s") {
	case "second", "sec":
		return time.Second, nil
	case "minute", "min":
		return time.Minute, nil
	case "hour", "hr":
		return time.Hour, nil
	case "day":
		return 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("fieldcube: unsupported time unit %q", name)
}

// parseCFTime decodes a numeric time coordinate with units of the CF form
// "hours since 1900-01-01 00:00:00" into timestamps.
func parseCFTime(units string, vals []float64) ([]time.Time, error) {
	parts := strings.Fields(units)
	if len(parts) < 3 || strings.ToLower(parts[1]) != "since" {
		return nil, fmt.Errorf("fieldcube: %q is not a 'unit since reference' time unit", units)
	}
	unit, err := cfUnit(parts[0])
	if err != nil {
		return nil, err
	}
	ref, err := toTime(strings.Join(parts[2:], " "))
	if err != nil {
		return nil, fmt.Errorf("fieldcube: parsing time unit reference in %q: %v", units, err)
	}
	times := make([]time.Time, len(vals))
	for i, v := range vals {
		times[i] = ref.Add(time.Duration(v * float64(unit)))
	}
	return times, nil
}

// encodeCFTime encodes timestamps as fractional hours since 1900-01-01,
// returning the values and the matching CF units string.
func encodeCFTime(times []time.Time) (units string, vals []float64) {
	vals = make([]float64, len(times))
	for i, t := range times {
		vals[i] = t.Sub(cfEpoch).Hours()
	}
	return "hours since 1900-01-01 00:00:00", vals
}

// isTimeKey reports whether a dimension or coordinate name refers to a
// temporal quantity. It is used to decide which coordinates are decoded as
// timestamps and which dimensions qualify for chronological sorting.
func isTimeKey(name string) bool {
	switch name {
	case "time", "valid_time", "forecast_reference_time", "base_datetime",
		"valid_datetime", "date", "dataDate", "dataTime", "validityDate",
		"validityTime", "step":
		return true
	}
	return false
}
