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

	"github.com/Knetic/govaluate"
	"github.com/ctessum/sparse"
)

// deriveFunctions returns the functions available in Derive expressions.
func deriveFunctions() map[string]govaluate.ExpressionFunction {
	return map[string]govaluate.ExpressionFunction{
		"exp": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("fieldcube: got %d arguments for function 'exp', but needs 1", len(arg))
			}
			return (float64)(math.Exp(arg[0].(float64))), nil
		},
		"log": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("fieldcube: got %d arguments for function 'log', but needs 1", len(arg))
			}
			return (float64)(math.Log(arg[0].(float64))), nil
		},
		"log10": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("fieldcube: got %d arguments for function 'log10', but needs 1", len(arg))
			}
			return (float64)(math.Log10(arg[0].(float64))), nil
		},
		"sqrt": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("fieldcube: got %d arguments for function 'sqrt', but needs 1", len(arg))
			}
			return (float64)(math.Sqrt(arg[0].(float64))), nil
		},
		"abs": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("fieldcube: got %d arguments for function 'abs', but needs 1", len(arg))
			}
			return (float64)(math.Abs(arg[0].(float64))), nil
		},
		"pow": func(args ...interface{}) (interface{}, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("fieldcube: got %d arguments for function 'pow', but needs 2", len(args))
			}
			return (float64)(math.Pow(args[0].(float64), args[1].(float64))), nil
		},
	}
}

// removeDuplicates removes all duplicated strings from a slice, returning a
// slice that contains only unique strings.
func removeDuplicates(s []string) []string {
	result := make([]string, 0, len(s))
	seen := make(map[string]string)
	for _, val := range s {
		if _, ok := seen[val]; !ok {
			result = append(result, val)
			seen[val] = val
		}
	}
	return result
}

// sameShape reports whether two shapes are identical.
func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Derive adds a variable computed element-wise from an expression over the
// cube's existing variables, for example
//
//	c.Derive("tk", "K", "t + 273.15")
//
// Every variable the expression references must exist in the cube and all
// referenced variables must share the same shape; the new variable takes
// the dimensions of the first one referenced. Expressions use govaluate
// syntax with exp, log, log10, sqrt, abs, and pow available as functions.
// The expression is recorded on the new variable as provenance.
func (c *Cube) Derive(name, units, expr string) error {
	expression, err := govaluate.NewEvaluableExpressionWithFunctions(expr, deriveFunctions())
	if err != nil {
		return fmt.Errorf("fieldcube: parsing expression for %s: %v", name, err)
	}
	uniqueVars := removeDuplicates(expression.Vars())
	if len(uniqueVars) == 0 {
		return fmt.Errorf("fieldcube: deriving %s: expression references no variables", name)
	}

	var dims []string
	var shape []int
	srcs := make(map[string]*Variable, len(uniqueVars))
	for _, v := range uniqueVars {
		src, ok := c.Data[v]
		if !ok {
			return fmt.Errorf("fieldcube: deriving %s: undefined variable name '%s'", name, v)
		}
		if dims == nil {
			dims, shape = src.Dims, src.Data.Shape
		} else if !sameShape(src.Data.Shape, shape) {
			return fmt.Errorf("fieldcube: deriving %s: variable %s has shape %v but %s has shape %v",
				name, v, src.Data.Shape, uniqueVars[0], shape)
		}
		srcs[v] = src
	}

	out := sparse.ZerosDense(shape...)
	params := make(map[string]interface{}, len(srcs))
	for i := range out.Elements {
		for v, src := range srcs {
			params[v] = src.Data.Elements[i]
		}
		result, err := expression.Evaluate(params)
		if err != nil {
			return fmt.Errorf("fieldcube: evaluating %s: %v", name, err)
		}
		val, ok := result.(float64)
		if !ok {
			return fmt.Errorf("fieldcube: deriving %s: expression yields %T, not a number", name, result)
		}
		out.Elements[i] = val
	}

	attrs := NewMetadata()
	if units != "" {
		attrs.Set("units", units)
	}
	attrs.Set("expression", expr)
	c.AddVariable(name, append([]string(nil), dims...), attrs, out)
	return nil
}
