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
	"time"
)

// A Slice pins a field to one position along one dimension of the dataset
// it was cut from: the dimension name, the coordinate value at that
// position, and the positional index. IsDimension marks slices that are
// applied as index selectors when the field's values are materialized;
// IsInfo marks slices whose name and value are appended to the field's
// display title.
type Slice struct {
	Name        string
	Value       interface{}
	Index       int
	IsDimension bool
	IsInfo      bool
}

// NewSlice returns a dimension slice for the given name, coordinate value,
// and positional index.
func NewSlice(name string, value interface{}, index int) Slice {
	return Slice{Name: name, Value: value, Index: index, IsDimension: true, IsInfo: true}
}

// NewInfoSlice returns a slice that only contributes to the field title,
// for example a scalar coordinate that is not a dimension of the stored
// variable.
func NewInfoSlice(name string, value interface{}) Slice {
	return Slice{Name: name, Value: value, IsInfo: true}
}

// NewTimeSlice returns a dimension slice along a temporal dimension.
func NewTimeSlice(name string, value time.Time, index int) Slice {
	return Slice{Name: name, Value: value, Index: index, IsDimension: true, IsInfo: true}
}

// NewLevelSlice returns a dimension slice along a vertical dimension; name
// is the level type and value the numeric level.
func NewLevelSlice(levelType string, level float64, index int) Slice {
	return Slice{Name: levelType, Value: level, Index: index, IsDimension: true, IsInfo: true}
}

func (s Slice) String() string {
	if t, ok := s.Value.(time.Time); ok {
		return fmt.Sprintf("%s=%s", s.Name, t.Format(time.RFC3339))
	}
	return fmt.Sprintf("%s=%v", s.Name, s.Value)
}
