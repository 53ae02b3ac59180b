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
	"io"
	"strings"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// OpenNetCDF opens NetCDF (classic format) storage rw as a DataSet.
func OpenNetCDF(rw cdf.ReaderWriterAt) (*DataSet, error) {
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, fmt.Errorf("fieldcube: opening netcdf file: %v", err)
	}
	numrecs, err := recordCount(rw)
	if err != nil {
		return nil, fmt.Errorf("fieldcube: opening netcdf file: %v", err)
	}
	return NewDataSet(&cdfSource{f: f, numrecs: numrecs}), nil
}

// cdfSource adapts a cdf.File to the Source interface.
type cdfSource struct {
	f       *cdf.File
	numrecs int
}

func (s *cdfSource) Variables() []string { return s.f.Header.Variables() }

func (s *cdfSource) Dimensions(v string) []string { return s.f.Header.Dimensions(v) }

// Lengths returns the dimension lengths of variable v. The record
// dimension is stored with length zero; it is reported with the file's
// actual record count when that is known.
func (s *cdfSource) Lengths(v string) []int {
	l := s.f.Header.Lengths(v)
	if v != "" && len(l) > 0 && l[0] == 0 && s.numrecs > 0 {
		return append([]int{s.numrecs}, l[1:]...)
	}
	return l
}

func (s *cdfSource) AttributeNames(v string) []string { return s.f.Header.Attributes(v) }

func (s *cdfSource) Attribute(v, a string) interface{} { return s.f.Header.GetAttribute(v, a) }

func (s *cdfSource) Read(v string, begin, end []int) (*sparse.DenseArray, error) {
	if begin == nil && end == nil {
		lengths := s.Lengths(v)
		if lengths == nil {
			return nil, fmt.Errorf("fieldcube: variable %s not in file", v)
		}
		begin = make([]int, len(lengths))
		end = lengths
	}
	return readNCF(s.f, v, begin, end)
}

// recordCount reads the record count from the numrecs field of the file
// header. Files written in streaming mode store -1, meaning the count is
// indeterminate.
func recordCount(r io.ReaderAt) (int, error) {
	var buf [4]byte
	if _, err := r.ReadAt(buf[:], 4); err != nil {
		return 0, err
	}
	n := int32(buf[0])<<24 | int32(buf[1])<<16 | int32(buf[2])<<8 | int32(buf[3])
	return int(n), nil
}

// readNCF reads the block of variable v between the corners begin
// (inclusive) and end (exclusive), returning it with the block's shape.
// Nil corners select the whole variable. The block is assembled from
// contiguous runs, one read per run, so reads that pin leading dimensions
// and span trailing ones cost a single read.
func readNCF(f *cdf.File, v string, begin, end []int) (*sparse.DenseArray, error) {
	lengths := f.Header.Lengths(v)
	if lengths == nil {
		return nil, fmt.Errorf("fieldcube: variable %s not in file", v)
	}
	if _, ok := f.Header.ZeroValue(v, 0).(string); ok {
		return nil, fmt.Errorf("fieldcube: variable %s holds text, not numbers", v)
	}
	if begin == nil && end == nil {
		begin = make([]int, len(lengths))
		end = lengths
	}
	if len(begin) != len(lengths) || len(end) != len(lengths) {
		return nil, fmt.Errorf("fieldcube: variable %s has %d dimensions, not %d",
			v, len(lengths), len(begin))
	}
	if len(lengths) > 0 && lengths[0] == 0 && end[0] == 0 {
		return nil, fmt.Errorf("fieldcube: variable %s has an indeterminate record count", v)
	}
	shape := make([]int, len(begin))
	n := 1
	for i := range begin {
		max := lengths[i]
		if i == 0 && max == 0 { // record dimension
			max = end[0]
		}
		if begin[i] < 0 || end[i] <= begin[i] || end[i] > max {
			return nil, fmt.Errorf("fieldcube: invalid range [%d,%d) for dimension %d of %s",
				begin[i], end[i], i, v)
		}
		shape[i] = end[i] - begin[i]
		n *= shape[i]
	}
	out := sparse.ZerosDense(shape...)
	if err := readBlock(f, v, begin, end, lengths, out.Elements); err != nil {
		return nil, fmt.Errorf("fieldcube: reading variable %s: %v", v, err)
	}
	return out, nil
}

// readBlock reads the selection [begin,end) into dst in row-major order,
// splitting along the outermost unpinned dimension until each remaining
// piece is a single contiguous run.
func readBlock(f *cdf.File, v string, begin, end, lengths []int, dst []float64) error {
	if contiguousRun(begin, end, lengths) {
		return readRun(f, v, begin, end, dst)
	}
	ax := 0
	for end[ax]-begin[ax] == 1 {
		ax++
	}
	size := len(dst) / (end[ax] - begin[ax])
	b := append([]int(nil), begin...)
	e := append([]int(nil), end...)
	for i := begin[ax]; i < end[ax]; i++ {
		b[ax], e[ax] = i, i+1
		off := (i - begin[ax]) * size
		if err := readBlock(f, v, b, e, lengths, dst[off:off+size]); err != nil {
			return err
		}
	}
	return nil
}

// contiguousRun reports whether a selection occupies one contiguous run of
// the variable: pinned leading dimensions, at most one partial dimension,
// and fully spanned trailing ones.
func contiguousRun(begin, end, lengths []int) bool {
	i := 0
	for i < len(begin) && end[i]-begin[i] == 1 {
		i++
	}
	if i < len(begin) {
		i++ // the one partial dimension
	}
	for ; i < len(begin); i++ {
		if begin[i] != 0 || end[i] != lengths[i] {
			return false
		}
	}
	return true
}

// readRun reads one contiguous run into dst, converting the variable's
// storage type to float64.
func readRun(f *cdf.File, v string, begin, end []int, dst []float64) error {
	last := make([]int, len(end))
	for i := range end {
		last[i] = end[i] - 1
	}
	r := f.Reader(v, begin, last)
	buf := r.Zero(len(dst))
	if _, err := r.Read(buf); err != nil {
		return err
	}
	switch b := buf.(type) {
	case []float64:
		copy(dst, b)
	case []float32:
		for i, val := range b {
			dst[i] = float64(val)
		}
	case []int32:
		for i, val := range b {
			dst[i] = float64(val)
		}
	case []int16:
		for i, val := range b {
			dst[i] = float64(val)
		}
	case []uint8:
		for i, val := range b {
			dst[i] = float64(val)
		}
	default:
		return fmt.Errorf("unsupported storage type %T", buf)
	}
	return nil
}

// Fields decomposes the dataset's data variables into two-dimensional
// fields: one field per combination of indices along the dimensions
// leading the trailing grid axes. Variables that describe other variables
// (dimension and auxiliary coordinates, grid mappings, bounds) and
// variables with fewer than two dimensions are skipped; dimensions named
// in the options' DropDims are pinned to their first position. A nil opts
// uses the defaults of the "netcdf" profile.
func (ds *DataSet) Fields(opts *Options) (FieldList, error) {
	if opts == nil {
		opts = &Options{Profile: Profiles["netcdf"].Copy()}
	}
	r, _, err := opts.resolve()
	if err != nil {
		return nil, err
	}
	drop := make(map[string]bool)
	for _, d := range r.DropDims {
		drop[d] = true
	}
	skip := ds.coordinateVariables()

	var fields FieldList
	for _, v := range ds.Variables() {
		if skip[v] {
			continue
		}
		dims := ds.Dimensions(v)
		if len(dims) < 2 {
			continue
		}
		lengths := ds.Lengths(v)
		outer := dims[:len(dims)-2]
		axes := make([][]Slice, len(outer))
		for i, d := range outer {
			axes[i], err = ds.dimensionSlices(d, lengths[i])
			if err != nil {
				return nil, err
			}
			if drop[d] && len(axes[i]) > 1 {
				axes[i] = axes[i][:1]
			}
		}
		info, err := ds.infoSlices(v)
		if err != nil {
			return nil, err
		}
		n := 1
		for _, a := range axes {
			n *= len(a)
		}
		idx := make([]int, len(axes))
		for j := 0; j < n; j++ {
			rem := j
			for i := len(axes) - 1; i >= 0; i-- {
				idx[i] = rem % len(axes[i])
				rem /= len(axes[i])
			}
			slices := make([]Slice, 0, len(axes)+len(info))
			for i := range axes {
				slices = append(slices, axes[i][idx[i]])
			}
			slices = append(slices, info...)
			fields = append(fields, newDatasetField(ds, v, r.VariableKey, slices))
		}
		if ds.MsgChan != nil {
			ds.MsgChan <- fmt.Sprintf("read %d fields of %s\n", n, v)
		}
	}
	return fields, nil
}

// coordinateVariables returns the names of the variables that describe
// other variables rather than hold data: dimension coordinates, auxiliary
// coordinates, grid mappings, and bounds.
func (ds *DataSet) coordinateVariables() map[string]bool {
	skip := make(map[string]bool)
	for _, n := range strings.Fields(ds.AttributeString("", "coordinates")) {
		skip[n] = true
	}
	for _, v := range ds.Variables() {
		for _, d := range ds.Dimensions(v) {
			skip[d] = true
		}
		for _, n := range strings.Fields(ds.AttributeString(v, "coordinates")) {
			skip[n] = true
		}
		if n := ds.AttributeString(v, "grid_mapping"); n != "" {
			skip[n] = true
		}
		if n := ds.AttributeString(v, "bounds"); n != "" {
			skip[n] = true
		}
	}
	return skip
}

// dimensionSlices returns one slice per position along dimension d, taking
// coordinate values from the dimension's coordinate variable when one
// exists. Temporal coordinates are decoded from their CF units and
// vertical ones become level slices; dimensions with no usable coordinate
// variable fall back to positional indices.
func (ds *DataSet) dimensionSlices(d string, length int) ([]Slice, error) {
	out := make([]Slice, length)
	if dims := ds.Dimensions(d); len(dims) != 1 || dims[0] != d {
		for i := range out {
			out[i] = NewSlice(d, i, i)
		}
		return out, nil
	}
	data, err := ds.coordArray(d)
	if err != nil {
		return nil, err
	}
	units := ds.AttributeString(d, "units")
	if strings.Contains(units, " since ") {
		times, err := parseCFTime(units, data.Elements)
		if err != nil {
			return nil, err
		}
		for i := range out {
			out[i] = NewTimeSlice(d, times[i], i)
		}
		return out, nil
	}
	if ds.levelLike(d) {
		for i := range out {
			out[i] = NewLevelSlice(d, data.Elements[i], i)
		}
		return out, nil
	}
	for i := range out {
		out[i] = NewSlice(d, data.Elements[i], i)
	}
	return out, nil
}

// levelLike reports whether a coordinate variable describes a vertical
// level: an explicit Z axis attribute, the CF positive attribute, or a
// conventional level name.
func (ds *DataSet) levelLike(name string) bool {
	if strings.EqualFold(ds.AttributeString(name, "axis"), "z") {
		return true
	}
	if ds.Attribute(name, "positive") != nil {
		return true
	}
	switch strings.ToLower(name) {
	case "level", "levelist", "lev", "plev", "pressure", "depth":
		return true
	}
	return false
}

// infoSlices returns informational slices for the single-valued auxiliary
// coordinates of variable v, found through its coordinates attribute.
// These carry scalar context such as a fixed height or a reference time
// that is not a dimension of the stored variable.
func (ds *DataSet) infoSlices(v string) ([]Slice, error) {
	varDims := make(map[string]bool)
	for _, d := range ds.Dimensions(v) {
		varDims[d] = true
	}
	var out []Slice
	for _, c := range strings.Fields(ds.AttributeString(v, "coordinates")) {
		if !ds.HasVariable(c) || varDims[c] {
			continue
		}
		n := 1
		for _, l := range ds.Lengths(c) {
			n *= l
		}
		if n != 1 {
			continue
		}
		data, err := ds.coordArray(c)
		if err != nil {
			return nil, err
		}
		units := ds.AttributeString(c, "units")
		if strings.Contains(units, " since ") {
			times, err := parseCFTime(units, data.Elements)
			if err != nil {
				return nil, err
			}
			out = append(out, NewInfoSlice(c, times[0]))
			continue
		}
		out = append(out, NewInfoSlice(c, data.Elements[0]))
	}
	return out, nil
}
