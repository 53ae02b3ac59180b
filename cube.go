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
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// A Coord labels positions along one or more cube dimensions. A dimension
// coordinate has Dims == [Name] and one value per position; an auxiliary
// coordinate may span several dimensions, with one value per cell of the
// cross product of its dimensions in row-major order.
type Coord struct {
	Name   string
	Dims   []string
	Values []interface{}
}

// A Variable is one labelled array of a cube, carrying the subset of the
// cube's dimensions it varies over, its own attributes, and its data. Grid
// axes are the trailing dimensions.
type Variable struct {
	Dims  []string
	Attrs *Metadata
	Data  *sparse.DenseArray
}

// A Cube is a labelled N-dimensional collection of variables sharing an
// ordered dimension list, with per-dimension coordinate values, optional
// auxiliary coordinates, per-variable attributes, and global attributes.
// Cubes are produced by Build and consumed by WriteNetCDF, Fields, and
// Derive.
type Cube struct {
	// Dims holds the dimension names in order. Variables use a subset of
	// these, in the same relative order.
	Dims []string

	// Lengths maps each dimension name to its length.
	Lengths map[string]int

	// Coords holds the dimension and auxiliary coordinates by name.
	Coords map[string]*Coord

	// Data holds the variables by name.
	Data map[string]*Variable

	// Attrs holds the global attributes.
	Attrs *Metadata

	// DType selects the storage type WriteNetCDF uses for variable data.
	DType DType

	names []string // variable insertion order
}

// NewCube returns an empty cube.
func NewCube() *Cube {
	return &Cube{
		Lengths: make(map[string]int),
		Coords:  make(map[string]*Coord),
		Data:    make(map[string]*Variable),
		Attrs:   NewMetadata(),
	}
}

// AddDimension appends a dimension with the given length. Re-adding an
// existing dimension only updates its length.
func (c *Cube) AddDimension(name string, length int) {
	if _, ok := c.Lengths[name]; !ok {
		c.Dims = append(c.Dims, name)
	}
	c.Lengths[name] = length
}

// AddCoord attaches a coordinate spanning the given dimensions.
func (c *Cube) AddCoord(name string, dims []string, values []interface{}) {
	c.Coords[name] = &Coord{Name: name, Dims: dims, Values: values}
}

// AddVariable adds a variable with the given dimensions, attributes (nil
// for none), and data. Re-adding an existing variable replaces it without
// changing its position.
func (c *Cube) AddVariable(name string, dims []string, attrs *Metadata, data *sparse.DenseArray) {
	if _, ok := c.Data[name]; !ok {
		c.names = append(c.names, name)
	}
	if attrs == nil {
		attrs = NewMetadata()
	}
	c.Data[name] = &Variable{Dims: dims, Attrs: attrs, Data: data}
}

// VariableNames returns the variable names in the order they were added.
func (c *Cube) VariableNames() []string { return c.names }

// coordValue returns the coordinate value of the named dimension at
// position i, or the bare index when the dimension has no coordinate.
func (c *Cube) coordValue(dim string, i int) interface{} {
	co, ok := c.Coords[dim]
	if ok && len(co.Dims) == 1 && co.Dims[0] == dim && i < len(co.Values) {
		return co.Values[i]
	}
	return i
}

// gridAxes returns the number of trailing dimensions of dims that address
// the horizontal grid: one for a flattened "values" axis or a
// single-dimension variable, two otherwise.
func gridAxes(dims []string) int {
	if len(dims) <= 1 || dims[len(dims)-1] == "values" {
		if len(dims) == 0 {
			return 0
		}
		return 1
	}
	return 2
}

// Fields decomposes the cube back into a list of 2-D (or flattened)
// fields, one per combination of non-grid dimension indices of each
// variable, in variable order with the leading dimension varying slowest.
// Each field's metadata holds the variable name under the "variable" key,
// the variable's attributes, the coordinate value of each non-grid
// dimension, and the grid shape under the "shape" key.
func (c *Cube) Fields() FieldList {
	var fields FieldList
	for _, name := range c.names {
		v := c.Data[name]
		ng := len(v.Dims) - gridAxes(v.Dims)
		outer := v.Data.Shape[:ng]
		grid := v.Data.Shape[ng:]

		n := 1
		for _, s := range outer {
			n *= s
		}
		gridSize := 1
		for _, s := range grid {
			gridSize *= s
		}
		idx := make([]int, len(v.Data.Shape))
		for cell := 0; cell < n; cell++ {
			rem := cell
			for i := ng - 1; i >= 0; i-- {
				idx[i] = rem % outer[i]
				rem /= outer[i]
			}

			md := NewMetadata()
			md.Set("variable", name)
			for _, k := range v.Attrs.Keys() {
				md.Set(k, v.Attrs.Get(k))
			}
			for i := 0; i < ng; i++ {
				md.Set(v.Dims[i], c.coordValue(v.Dims[i], idx[i]))
			}
			md.Set("shape", append([]int(nil), grid...))

			// The data is row-major with the outer dimensions varying
			// slowest, so each cell's grid block is one contiguous slab.
			slab := sparse.ZerosDense(grid...)
			copy(slab.Elements, v.Data.Elements[cell*gridSize:(cell+1)*gridSize])
			fields = append(fields, newArrayField(slab, md))
		}
	}
	return fields
}

// coordinate value storage kinds
const (
	coordTime = iota
	coordNumber
	coordText
)

// coordKind reports how a coordinate's values are stored in a NetCDF
// file: as CF time offsets, as doubles, or as fixed-width text.
func coordKind(values []interface{}) int {
	allTime := len(values) > 0
	for _, v := range values {
		if _, ok := v.(time.Time); !ok {
			allTime = false
			break
		}
	}
	if allTime {
		return coordTime
	}
	for _, v := range values {
		if _, ok := attrFloat(v); !ok {
			return coordText
		}
	}
	return coordNumber
}

// encodeAttr converts a metadata value to one of the types the NetCDF
// attribute encoding accepts: text stays text, scalars become
// single-element slices, times become RFC 3339 strings, and anything else
// is formatted as text.
func encodeAttr(v interface{}) interface{} {
	switch a := v.(type) {
	case string:
		return a
	case []uint8:
		return a
	case []int16:
		return a
	case []int32:
		return a
	case []float32:
		return a
	case []float64:
		return a
	case float64:
		return []float64{a}
	case float32:
		return []float64{float64(a)}
	case int:
		return []int32{int32(a)}
	case int32:
		return []int32{a}
	case int64:
		return []int32{int32(a)}
	case bool:
		if a {
			return "true"
		}
		return "false"
	case time.Time:
		return a.Format(time.RFC3339)
	case []int:
		o := make([]int32, len(a))
		for i, x := range a {
			o[i] = int32(x)
		}
		return o
	}
	return fmt.Sprint(v)
}

// auxCoordNames returns the names of the auxiliary (non-dimension)
// coordinates, sorted.
func (c *Cube) auxCoordNames() []string {
	var aux []string
	for name, co := range c.Coords {
		if len(co.Dims) == 1 && co.Dims[0] == name {
			continue
		}
		aux = append(aux, name)
	}
	sort.Strings(aux)
	return aux
}

// bookkeeping global attributes written by WriteNetCDF and consumed by
// ReadCubeNetCDF.
var cubeFileAttrs = map[string]bool{
	"dimensions":  true,
	"coordinates": true,
	"variables":   true,
}

// WriteNetCDF writes the cube to w as a NetCDF file. Dimension and
// auxiliary coordinates become coordinate variables (time values as CF
// time offsets, text values as fixed-width char matrices); variable data
// is stored as float64, or as float32 when the cube's DType is Float32.
// The dimension order, auxiliary coordinate names, and variable order are
// recorded in global attributes so that ReadCubeNetCDF can reconstruct
// the cube exactly.
func (c *Cube) WriteNetCDF(w *os.File) error {
	aux := c.auxCoordNames()
	var coordNames []string
	for _, d := range c.Dims {
		if _, ok := c.Coords[d]; ok {
			coordNames = append(coordNames, d)
		}
	}
	coordNames = append(coordNames, aux...)

	// Text coordinates need an extra string-length dimension each.
	dims := append([]string(nil), c.Dims...)
	lengths := make([]int, len(dims))
	for i, d := range dims {
		lengths[i] = c.Lengths[d]
	}
	for _, name := range coordNames {
		co := c.Coords[name]
		if coordKind(co.Values) != coordText {
			continue
		}
		strlen := 1
		for _, v := range co.Values {
			if n := len(fmt.Sprint(v)); n > strlen {
				strlen = n
			}
		}
		dims = append(dims, name+"_strlen")
		lengths = append(lengths, strlen)
	}

	h := cdf.NewHeader(dims, lengths)
	h.AddAttribute("", "dimensions", strings.Join(c.Dims, " "))
	h.AddAttribute("", "coordinates", strings.Join(aux, " "))
	h.AddAttribute("", "variables", strings.Join(c.names, " "))
	for _, k := range c.Attrs.Keys() {
		if cubeFileAttrs[k] {
			continue
		}
		h.AddAttribute("", k, encodeAttr(c.Attrs.Get(k)))
	}

	for _, name := range coordNames {
		co := c.Coords[name]
		switch coordKind(co.Values) {
		case coordTime:
			h.AddVariable(name, co.Dims, []float64{0})
			units, _ := encodeCFTime(nil)
			h.AddAttribute(name, "units", units)
		case coordNumber:
			h.AddVariable(name, co.Dims, []float64{0})
		case coordText:
			h.AddVariable(name, append(append([]string(nil), co.Dims...), name+"_strlen"), "")
		}
	}

	for _, name := range c.names {
		v := c.Data[name]
		if c.DType == Float64 {
			h.AddVariable(name, v.Dims, []float64{0})
		} else {
			h.AddVariable(name, v.Dims, []float32{0})
		}
		for _, k := range v.Attrs.Keys() {
			h.AddAttribute(name, k, encodeAttr(v.Attrs.Get(k)))
		}
	}
	h.Define()

	f, err := cdf.Create(w, h)
	if err != nil {
		return fmt.Errorf("fieldcube: creating cube file: %v", err)
	}
	for _, name := range coordNames {
		if err := writeCoordVar(f, c.Coords[name]); err != nil {
			return fmt.Errorf("fieldcube: writing coordinate %s: %v", name, err)
		}
	}
	for _, name := range c.names {
		if err := writeDataVar(f, name, c.Data[name].Data, c.DType); err != nil {
			return fmt.Errorf("fieldcube: writing variable %s: %v", name, err)
		}
	}
	if err := cdf.UpdateNumRecs(w); err != nil {
		return fmt.Errorf("fieldcube: writing cube file: %v", err)
	}
	return nil
}

// writeCoordVar writes one coordinate variable.
func writeCoordVar(f *cdf.File, co *Coord) error {
	end := f.Header.Lengths(co.Name)
	begin := make([]int, len(end))
	w := f.Writer(co.Name, begin, end)
	switch coordKind(co.Values) {
	case coordTime:
		times := make([]time.Time, len(co.Values))
		for i, v := range co.Values {
			times[i] = v.(time.Time)
		}
		_, vals := encodeCFTime(times)
		_, err := w.Write(vals)
		return err
	case coordNumber:
		vals := make([]float64, len(co.Values))
		for i, v := range co.Values {
			vals[i], _ = attrFloat(v)
		}
		_, err := w.Write(vals)
		return err
	default:
		strlen := end[len(end)-1]
		buf := make([]byte, 0, len(co.Values)*strlen)
		for _, v := range co.Values {
			s := fmt.Sprint(v)
			buf = append(buf, s...)
			for i := len(s); i < strlen; i++ {
				buf = append(buf, 0)
			}
		}
		_, err := w.Write(string(buf))
		return err
	}
}

// writeDataVar writes one data variable in the requested storage type.
func writeDataVar(f *cdf.File, name string, data *sparse.DenseArray, dtype DType) error {
	end := f.Header.Lengths(name)
	begin := make([]int, len(end))
	w := f.Writer(name, begin, end)
	if dtype == Float64 {
		_, err := w.Write(append([]float64(nil), data.Elements...))
		return err
	}
	d32 := make([]float32, len(data.Elements))
	for i, e := range data.Elements {
		d32[i] = float32(e)
	}
	_, err := w.Write(d32)
	return err
}

// ReadCubeNetCDF reads a cube from a NetCDF file written by WriteNetCDF.
func ReadCubeNetCDF(rw cdf.ReaderWriterAt) (*Cube, error) {
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, fmt.Errorf("fieldcube: opening cube file: %v", err)
	}
	dimsAttr := f.Header.GetAttribute("", "dimensions")
	if dimsAttr == nil {
		return nil, fmt.Errorf("fieldcube: file is not a cube file: no dimensions attribute")
	}

	c := NewCube()
	fileLengths := make(map[string]int)
	for i, d := range f.Header.Dimensions("") {
		fileLengths[d] = f.Header.Lengths("")[i]
	}
	for _, d := range strings.Fields(attrString(dimsAttr)) {
		c.AddDimension(d, fileLengths[d])
	}

	isCoord := make(map[string]bool)
	for _, d := range c.Dims {
		isCoord[d] = true
	}
	for _, a := range strings.Fields(attrString(f.Header.GetAttribute("", "coordinates"))) {
		isCoord[a] = true
	}

	for _, a := range f.Header.Attributes("") {
		if cubeFileAttrs[a] {
			continue
		}
		c.Attrs.Set(a, attrValue(f.Header.GetAttribute("", a)))
	}

	for _, name := range f.Header.Variables() {
		if !isCoord[name] {
			continue
		}
		co, err := readCoordVar(f, name)
		if err != nil {
			return nil, fmt.Errorf("fieldcube: reading coordinate %s: %v", name, err)
		}
		c.Coords[name] = co
	}

	names := strings.Fields(attrString(f.Header.GetAttribute("", "variables")))
	for _, name := range names {
		data, err := readNCF(f, name, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("fieldcube: reading variable %s: %v", name, err)
		}
		attrs := NewMetadata()
		for _, a := range f.Header.Attributes(name) {
			attrs.Set(a, attrValue(f.Header.GetAttribute(name, a)))
		}
		c.AddVariable(name, f.Header.Dimensions(name), attrs, data)
		if _, ok := f.Header.ZeroValue(name, 0).([]float32); ok {
			c.DType = Float32
		}
	}
	return c, nil
}

// readCoordVar reads one coordinate variable, reversing writeCoordVar.
func readCoordVar(f *cdf.File, name string) (*Coord, error) {
	dims := f.Header.Dimensions(name)
	lengths := f.Header.Lengths(name)
	if _, ok := f.Header.ZeroValue(name, 0).(string); ok { // char matrix
		r := f.Reader(name, nil, nil)
		n := 1
		for _, l := range lengths {
			n *= l
		}
		buf := make([]uint8, n)
		if _, err := r.Read(buf); err != nil {
			return nil, err
		}
		strlen := lengths[len(lengths)-1]
		values := make([]interface{}, n/strlen)
		for i := range values {
			values[i] = strings.TrimRight(string(buf[i*strlen:(i+1)*strlen]), "\x00")
		}
		return &Coord{Name: name, Dims: dims[:len(dims)-1], Values: values}, nil
	}

	data, err := readNCF(f, name, nil, nil)
	if err != nil {
		return nil, err
	}
	units := attrString(f.Header.GetAttribute(name, "units"))
	if strings.Contains(units, " since ") {
		times, err := parseCFTime(units, data.Elements)
		if err != nil {
			return nil, err
		}
		values := make([]interface{}, len(times))
		for i, t := range times {
			values[i] = t
		}
		return &Coord{Name: name, Dims: dims, Values: values}, nil
	}
	values := make([]interface{}, len(data.Elements))
	for i, v := range data.Elements {
		values[i] = v
	}
	return &Coord{Name: name, Dims: dims, Values: values}, nil
}
