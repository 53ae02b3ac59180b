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

import "strings"

// A FieldList is an ordered collection of fields. Its order is the order
// fields were appended in; that order is what the hypercube builder
// iterates in, so it determines the first-seen ordering of inferred
// dimension values.
type FieldList []Field

// Len returns the number of fields in the list.
func (l FieldList) Len() int { return len(l) }

// VariableNames returns the distinct values of the given metadata key
// across the list, in first-seen order.
func (l FieldList) VariableNames(key string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, f := range l {
		n := f.Metadata().GetString(key)
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	return names
}

// String returns the field titles, one per line.
func (l FieldList) String() string {
	titles := make([]string, len(l))
	for i, f := range l {
		titles[i] = f.Title()
	}
	return strings.Join(titles, "\n")
}
