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
	"sort"
	"strings"
	"time"

	"github.com/ctessum/sparse"
)

// An AssemblyError reports a hypercube consistency failure detected in
// strict mode: a coordinate cell claimed by more than one field, or a cell
// claimed by none.
type AssemblyError struct {
	Variable  string
	Tuple     string
	Duplicate bool
}

func (err AssemblyError) Error() string {
	if err.Duplicate {
		return fmt.Sprintf("fieldcube: variable %s has more than one field at %s", err.Variable, err.Tuple)
	}
	return fmt.Sprintf("fieldcube: variable %s has no field at %s", err.Variable, err.Tuple)
}

// A dimSpec is one candidate output dimension: its name and an extractor
// returning a field's coordinate value along it. The second return of the
// extractor is false when the field does not carry the dimension at all; a
// key that is present but explicitly nil counts as carried, with the
// sentinel value "undefined".
type dimSpec struct {
	name  string
	value func(md *Metadata) (interface{}, bool)
}

// mdValue returns an extractor reading a metadata key directly.
func mdValue(key string) func(*Metadata) (interface{}, bool) {
	return func(md *Metadata) (interface{}, bool) {
		if !md.Has(key) {
			return nil, false
		}
		v := md.Get(key)
		if v == nil {
			return "undefined", true
		}
		return v, true
	}
}

// timeValue returns an extractor reading a metadata key as a timestamp,
// passing unparseable values through unchanged.
func timeValue(key string) func(*Metadata) (interface{}, bool) {
	return func(md *Metadata) (interface{}, bool) {
		v, ok := mdValue(key)(md)
		if !ok {
			return nil, false
		}
		if t, err := toTime(v); err == nil {
			return t, true
		}
		return v, true
	}
}

// coordLabel renders a coordinate value for identity comparison, so that a
// level stored as int 500 in one field and float64 500 in another label the
// same coordinate.
func coordLabel(v interface{}) string {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}

// A dimValues is a candidate dimension together with its distinct
// coordinate values in order, and the index of each value's position.
type dimValues struct {
	dimSpec
	values []interface{}
	index  map[string]int
}

// A varGroup collects the fields sharing one variable name, with their
// metadata, and the grid they lie on.
type varGroup struct {
	name      string
	fields    FieldList
	mds       []*Metadata
	geo       *Geography
	gridDims  []string
	gridShape []int
}

type builder struct {
	o      *Options
	roles  RoleTable
	fields FieldList
	groups []*varGroup
}

// Build assembles a list of fields into a labelled hypercube according to
// opts (nil for the defaults). Fields are grouped into variables by the
// variable key; dimensions are derived from the metadata keys selected by
// the role table and the time and level dimension modes, with distinct
// coordinate values collected in order of first appearance; each field's
// values are placed at the cell addressed by its coordinate tuple, with the
// grid axes as the trailing dimensions. In strict mode the fields must
// cover every cell exactly once.
func Build(fields FieldList, opts *Options) (*Cube, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("fieldcube: no fields to build from")
	}
	if opts == nil {
		opts = NewOptions()
	}
	o, roles, err := opts.resolve()
	if err != nil {
		return nil, err
	}
	b := &builder{o: o, roles: roles, fields: fields}
	return b.build()
}

func (b *builder) build() (*Cube, error) {
	if err := b.group(); err != nil {
		return nil, err
	}
	if b.o.MsgChan != nil {
		b.o.MsgChan <- fmt.Sprintf("assembling %d fields into %d variables\n",
			len(b.fields), len(b.groups))
	}
	specs, fixed := b.candidates()
	dims := b.enumerate(specs)
	kept, demoted, err := b.selectDims(dims, fixed)
	if err != nil {
		return nil, err
	}
	for _, g := range b.groups {
		if err := g.resolveGrid(b.o); err != nil {
			return nil, err
		}
	}

	c := NewCube()
	c.DType = b.o.DType
	for _, d := range kept {
		name := b.rename(d.name)
		c.AddDimension(name, len(d.values))
		c.AddCoord(name, []string{name}, append([]interface{}(nil), d.values...))
	}
	for _, g := range b.groups {
		for i, gd := range g.gridDims {
			name := b.rename(gd)
			if l, ok := c.Lengths[name]; ok && l != g.gridShape[i] {
				return nil, fmt.Errorf("fieldcube: dimension %s has conflicting lengths %d and %d",
					name, l, g.gridShape[i])
			}
			c.AddDimension(name, g.gridShape[i])
		}
	}

	for _, g := range b.groups {
		used, err := g.usedDims(kept)
		if err != nil {
			return nil, err
		}
		data, err := b.scatter(g, used)
		if err != nil {
			return nil, err
		}
		varDims := make([]string, 0, len(used)+len(g.gridDims))
		for _, d := range used {
			varDims = append(varDims, b.rename(d.name))
		}
		for _, gd := range g.gridDims {
			varDims = append(varDims, b.rename(gd))
		}
		c.AddVariable(g.name, varDims, b.variableAttrs(g, demoted), data)
		if b.o.MsgChan != nil {
			b.o.MsgChan <- fmt.Sprintf("built variable %s with dimensions %v\n", g.name, varDims)
		}
	}

	b.placeAttrs(c)
	if err := b.addValidTimeCoord(c, kept); err != nil {
		return nil, err
	}
	if err := b.addGeoCoords(c); err != nil {
		return nil, err
	}
	return c, nil
}

// group splits the fields into variables by the variable key, keeping
// first-appearance order.
func (b *builder) group() error {
	byName := make(map[string]*varGroup)
	for i, f := range b.fields {
		md := f.Metadata()
		name := md.GetString(b.o.VariableKey)
		if name == "" {
			return fmt.Errorf("fieldcube: field %d has no %s key to group by", i, b.o.VariableKey)
		}
		g, ok := byName[name]
		if !ok {
			g = &varGroup{name: name}
			byName[name] = g
			b.groups = append(b.groups, g)
		}
		g.fields = append(g.fields, f)
		g.mds = append(g.mds, md)
	}
	return nil
}

// candidates returns the candidate dimensions in precedence order:
// ensemble, temporal (per the time dimension mode), vertical (per the
// level dimension mode), then extra dimensions. When FixedDims is set it
// is used verbatim instead and the second return is true.
func (b *builder) candidates() ([]dimSpec, bool) {
	if len(b.o.FixedDims) > 0 {
		specs := make([]dimSpec, len(b.o.FixedDims))
		for i, k := range b.o.FixedDims {
			specs[i] = dimSpec{name: k, value: mdValue(k)}
		}
		return specs, true
	}

	var specs []dimSpec
	if key := b.roles[RoleEnsemble]; key != "" {
		specs = append(specs, dimSpec{name: key, value: mdValue(key)})
	}

	switch b.o.TimeDimMode {
	case TimeDimForecast:
		if key := b.roles[RoleBaseTime]; key != "" {
			specs = append(specs, dimSpec{name: key, value: timeValue(key)})
		} else {
			specs = append(specs, dimSpec{name: "forecast_reference_time",
				value: func(md *Metadata) (interface{}, bool) {
					t, ok := md.BaseDatetime()
					if !ok {
						return nil, false
					}
					return t, true
				}})
		}
		if key := b.roles[RoleStep]; key != "" {
			specs = append(specs, dimSpec{name: key, value: mdValue(key)})
		}
	case TimeDimValid:
		if key := b.roles[RoleValidTime]; key != "" {
			specs = append(specs, dimSpec{name: key, value: timeValue(key)})
		} else {
			specs = append(specs, dimSpec{name: "valid_time",
				value: func(md *Metadata) (interface{}, bool) {
					t, ok := md.ValidDatetime()
					if !ok {
						return nil, false
					}
					return t, true
				}})
		}
	case TimeDimRaw:
		for _, r := range []Role{RoleDate, RoleTime, RoleStep} {
			if key := b.roles[r]; key != "" {
				specs = append(specs, dimSpec{name: key, value: mdValue(key)})
			}
		}
	}

	levelKey := b.roles[RoleLevel]
	typeKey := b.roles[RoleLevelType]
	switch b.o.LevelDimMode {
	case LevelDimSingle:
		if levelKey != "" {
			specs = append(specs, dimSpec{name: levelKey, value: mdValue(levelKey)})
		}
	case LevelDimPerType:
		// One dimension per distinct level type, named by the type.
		seen := make(map[string]bool)
		for _, f := range b.fields {
			t := f.Metadata().GetString(typeKey)
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			specs = append(specs, dimSpec{name: t,
				value: func(md *Metadata) (interface{}, bool) {
					if md.GetString(typeKey) != t {
						return nil, false
					}
					return mdValue(levelKey)(md)
				}})
		}
	case LevelDimAndType:
		specs = append(specs, dimSpec{name: "level_and_type",
			value: func(md *Metadata) (interface{}, bool) {
				lvl, ok := mdValue(levelKey)(md)
				if !ok {
					return nil, false
				}
				if t := md.GetString(typeKey); t != "" {
					return fmt.Sprintf("%v_%s", lvl, t), true
				}
				return fmt.Sprint(lvl), true
			}})
	}

	for _, k := range b.o.ExtraDims {
		specs = append(specs, dimSpec{name: k, value: mdValue(k)})
	}

	if len(b.o.DropDims) > 0 {
		drop := make(map[string]bool, len(b.o.DropDims))
		for _, d := range b.o.DropDims {
			drop[d] = true
		}
		kept := specs[:0]
		for _, s := range specs {
			if !drop[s.name] {
				kept = append(kept, s)
			}
		}
		specs = kept
	}
	return specs, false
}

// enumerate collects the distinct coordinate values of each candidate
// dimension across all fields, in order of first appearance, then sorts
// time-like dimensions chronologically when requested.
func (b *builder) enumerate(specs []dimSpec) []*dimValues {
	dims := make([]*dimValues, len(specs))
	for i, s := range specs {
		dims[i] = &dimValues{dimSpec: s, index: make(map[string]int)}
	}
	for _, f := range b.fields {
		md := f.Metadata()
		for _, d := range dims {
			v, ok := d.value(md)
			if !ok {
				continue
			}
			label := coordLabel(v)
			if _, ok := d.index[label]; !ok {
				d.index[label] = len(d.values)
				d.values = append(d.values, v)
			}
		}
	}
	if b.o.SortTimeDims {
		for _, d := range dims {
			d.sortTime()
		}
	}
	return dims
}

// sortTime reorders the values chronologically if they are all timestamps,
// or numerically for a temporally named dimension of numeric values such
// as dataDate or step.
func (d *dimValues) sortTime() {
	allTime := len(d.values) > 0
	allNum := allTime
	for _, v := range d.values {
		if _, ok := v.(time.Time); !ok {
			allTime = false
		}
		if _, ok := attrFloat(v); !ok {
			allNum = false
		}
	}
	switch {
	case allTime:
		sort.Slice(d.values, func(i, j int) bool {
			return d.values[i].(time.Time).Before(d.values[j].(time.Time))
		})
	case allNum && isTimeKey(d.name):
		sort.Slice(d.values, func(i, j int) bool {
			a, _ := attrFloat(d.values[i])
			b, _ := attrFloat(d.values[j])
			return a < b
		})
	default:
		return
	}
	for i, v := range d.values {
		d.index[coordLabel(v)] = i
	}
}

// selectDims decides which enumerated dimensions become cube dimensions
// and which are demoted to per-variable attributes. Candidates carried by
// no field are discarded silently; singletons are demoted when squeezing
// unless named in EnsureDims; dimensions named in DimsAsAttrs are demoted
// regardless of value count, provided no single variable spans several of
// their values. A fixed dimension list skips all of this and is used as
// given.
func (b *builder) selectDims(dims []*dimValues, fixed bool) (kept, demoted []*dimValues, err error) {
	if fixed {
		for _, d := range dims {
			if len(d.values) == 0 {
				return nil, nil, fmt.Errorf("fieldcube: fixed dimension %s appears in no field", d.name)
			}
			kept = append(kept, d)
		}
		return kept, nil, nil
	}

	ensure := make(map[string]bool, len(b.o.EnsureDims))
	for _, d := range b.o.EnsureDims {
		ensure[d] = true
	}
	demote := make(map[string]bool, len(b.o.DimsAsAttrs))
	for _, d := range b.o.DimsAsAttrs {
		demote[d] = true
	}

	for _, d := range dims {
		switch {
		case len(d.values) == 0:
			// Carried by no field: not a dimension.
		case demote[d.name]:
			for _, g := range b.groups {
				if n := g.distinctValues(d); len(n) > 1 {
					return nil, nil, fmt.Errorf(
						"fieldcube: cannot demote dimension %s to an attribute: variable %s has %d values of it",
						d.name, g.name, len(n))
				}
			}
			demoted = append(demoted, d)
		case b.o.Squeeze && len(d.values) == 1 && !ensure[d.name]:
			demoted = append(demoted, d)
		default:
			kept = append(kept, d)
		}
	}
	return kept, demoted, nil
}

// distinctValues returns the distinct coordinate values the group's fields
// carry along dimension d, in first-seen order.
func (g *varGroup) distinctValues(d *dimValues) []interface{} {
	var vals []interface{}
	seen := make(map[string]bool)
	for _, md := range g.mds {
		v, ok := d.value(md)
		if !ok {
			continue
		}
		if label := coordLabel(v); !seen[label] {
			seen[label] = true
			vals = append(vals, v)
		}
	}
	return vals
}

// usedDims returns the kept dimensions this variable spans. A dimension is
// spanned when every field of the variable carries it; a dimension carried
// by only some of a variable's fields is an inconsistency.
func (g *varGroup) usedDims(kept []*dimValues) ([]*dimValues, error) {
	var used []*dimValues
	for _, d := range kept {
		n := 0
		for _, md := range g.mds {
			if _, ok := d.value(md); ok {
				n++
			}
		}
		switch {
		case n == 0:
		case n == len(g.mds):
			used = append(used, d)
		default:
			return nil, fmt.Errorf("fieldcube: variable %s: %d of %d fields have no %s key",
				g.name, len(g.mds)-n, len(g.mds), d.name)
		}
	}
	return used, nil
}

// resolveGrid determines the group's trailing grid dimensions: the shared
// grid shape of its fields with the storage dimension names, or a single
// flattened "values" axis for unstructured grids or when flattening is
// requested. Requesting geographic coordinates implies flattening, since
// they are attached along the "values" axis.
func (g *varGroup) resolveGrid(o *Options) error {
	geo, err := g.fields[0].Geography()
	if err != nil {
		return fmt.Errorf("fieldcube: variable %s: %v", g.name, err)
	}
	g.geo = geo
	shape := geo.Shape()
	for _, f := range g.fields[1:] {
		fg, err := f.Geography()
		if err != nil {
			return fmt.Errorf("fieldcube: variable %s: %v", g.name, err)
		}
		if !sameShape(fg.Shape(), shape) {
			return fmt.Errorf("fieldcube: variable %s mixes grid shapes %v and %v",
				g.name, shape, fg.Shape())
		}
	}

	if o.FlattenValues || o.AddGeoCoords || len(shape) == 1 {
		g.gridDims = []string{"values"}
		g.gridShape = []int{geo.Size()}
		return nil
	}
	names := geo.DimNames()
	if len(names) != len(shape) {
		names = nil
	}
	if names == nil {
		switch len(shape) {
		case 2:
			names = []string{"y", "x"}
		default:
			g.gridDims = []string{"values"}
			g.gridShape = []int{geo.Size()}
			return nil
		}
	}
	g.gridDims = append([]string(nil), names...)
	g.gridShape = append([]int(nil), shape...)
	return nil
}

// scatter allocates the variable's array and writes each field's values at
// the cell addressed by its coordinate tuple. In strict mode every cell
// must be written exactly once; otherwise later fields overwrite earlier
// ones and unwritten cells keep the backend's fill value.
func (b *builder) scatter(g *varGroup, used []*dimValues) (*sparse.DenseArray, error) {
	gridSize := 1
	for _, s := range g.gridShape {
		gridSize *= s
	}
	outer := 1
	shape := make([]int, 0, len(used)+len(g.gridShape))
	for _, d := range used {
		shape = append(shape, len(d.values))
		outer *= len(d.values)
	}
	shape = append(shape, g.gridShape...)

	data := b.o.Backend.Empty(shape)
	occupied := make([]bool, outer)
	for fi, f := range g.fields {
		offset := 0
		for _, d := range used {
			v, _ := d.value(g.mds[fi])
			offset = offset*len(d.values) + d.index[coordLabel(v)]
		}
		vals, err := f.Values()
		if err != nil {
			return nil, fmt.Errorf("fieldcube: variable %s: %v", g.name, err)
		}
		if len(vals.Elements) != gridSize {
			return nil, fmt.Errorf("fieldcube: variable %s: field has %d values on a grid of %d points",
				g.name, len(vals.Elements), gridSize)
		}
		if occupied[offset] && b.o.Strict {
			return nil, AssemblyError{Variable: g.name, Tuple: tupleAt(used, offset), Duplicate: true}
		}
		occupied[offset] = true
		block := data.Elements[offset*gridSize : (offset+1)*gridSize]
		if b.o.DType == Float32 {
			for i, v := range vals.Elements {
				block[i] = float64(float32(v))
			}
		} else {
			copy(block, vals.Elements)
		}
	}
	if b.o.Strict {
		for i, ok := range occupied {
			if !ok {
				return nil, AssemblyError{Variable: g.name, Tuple: tupleAt(used, i)}
			}
		}
	}
	return data, nil
}

// tupleAt renders the coordinate tuple at flat outer offset i as
// "name=value" pairs.
func tupleAt(used []*dimValues, i int) string {
	parts := make([]string, len(used))
	for j := len(used) - 1; j >= 0; j-- {
		d := used[j]
		parts[j] = fmt.Sprintf("%s=%s", d.name, coordLabel(d.values[i%len(d.values)]))
		i /= len(d.values)
	}
	return strings.Join(parts, " ")
}

// rename applies the output dimension renames.
func (b *builder) rename(dim string) string {
	if n, ok := b.o.RenameDims[dim]; ok {
		return n
	}
	return dim
}

// variableAttrs collects a variable's attributes: the values of demoted
// dimensions, the declared per-variable keys, and, in fixed attribute
// mode, the general attribute keys.
func (b *builder) variableAttrs(g *varGroup, demoted []*dimValues) *Metadata {
	attrs := NewMetadata()
	for _, d := range demoted {
		if vals := g.distinctValues(d); len(vals) == 1 {
			attrs.Set(d.name, vals[0])
		}
	}
	keys := b.o.VariableAttrs
	if b.o.AttrsMode == AttrsFixed {
		keys = append(append([]string(nil), keys...), b.o.Attrs...)
	}
	for _, k := range keys {
		for _, md := range g.mds {
			if md.Has(k) {
				attrs.Set(k, md.Get(k))
				break
			}
		}
	}
	return attrs
}

// placeAttrs finishes attribute placement: declared global keys always go
// to the cube, and in unique attribute mode each general key is hoisted to
// a global attribute when its value is the same everywhere, kept as a
// single per-variable value where one exists, or recorded as the ordered
// list of distinct values where a variable's fields disagree.
func (b *builder) placeAttrs(c *Cube) {
	for _, k := range b.o.GlobalAttrs {
		for _, f := range b.fields {
			if md := f.Metadata(); md.Has(k) {
				c.Attrs.Set(k, md.Get(k))
				break
			}
		}
	}
	if b.o.AttrsMode != AttrsUnique {
		return
	}
	for _, k := range b.o.Attrs {
		spec := dimSpec{name: k, value: mdValue(k)}
		perVar := make([][]interface{}, len(b.groups))
		uniform := true
		sharedLabel := ""
		any := false
		for i, g := range b.groups {
			perVar[i] = g.distinctValues(&dimValues{dimSpec: spec})
			if len(perVar[i]) != 1 {
				uniform = false
				continue
			}
			label := coordLabel(perVar[i][0])
			if !any {
				any, sharedLabel = true, label
			} else if label != sharedLabel {
				uniform = false
			}
		}
		if uniform && any {
			for i := range perVar {
				if len(perVar[i]) == 1 {
					c.Attrs.Set(k, perVar[i][0])
					break
				}
			}
			continue
		}
		for i, g := range b.groups {
			switch len(perVar[i]) {
			case 0:
			case 1:
				c.Data[g.name].Attrs.Set(k, perVar[i][0])
			default:
				c.Data[g.name].Attrs.Set(k, perVar[i])
			}
		}
	}
}

// addValidTimeCoord attaches a two-dimensional valid-time auxiliary
// coordinate over (reference time, step) when both are cube dimensions,
// with valid[i,j] = reference[i] + step[j]. Nothing is added when valid
// time is already the temporal dimension.
func (b *builder) addValidTimeCoord(c *Cube, kept []*dimValues) error {
	if !b.o.AddValidTimeCoord || b.o.TimeDimMode != TimeDimForecast {
		return nil
	}
	var ref, step *dimValues
	refName := b.roles[RoleBaseTime]
	if refName == "" {
		refName = "forecast_reference_time"
	}
	for _, d := range kept {
		switch d.name {
		case refName:
			ref = d
		case b.roles[RoleStep]:
			step = d
		}
	}
	if ref == nil || step == nil {
		return nil
	}
	values := make([]interface{}, 0, len(ref.values)*len(step.values))
	for _, rv := range ref.values {
		rt, ok := rv.(time.Time)
		if !ok {
			return nil
		}
		for _, sv := range step.values {
			d, err := stepDuration(sv)
			if err != nil {
				return fmt.Errorf("fieldcube: computing valid times: %v", err)
			}
			values = append(values, rt.Add(d))
		}
	}
	c.AddCoord("valid_time", []string{b.rename(ref.name), b.rename(step.name)}, values)
	return nil
}

// addGeoCoords attaches latitude and longitude auxiliary coordinates along
// the flattened "values" axis, computed from the grid geometry of the
// first variable on that axis.
func (b *builder) addGeoCoords(c *Cube) error {
	if !b.o.AddGeoCoords {
		return nil
	}
	values := b.rename("values")
	for _, g := range b.groups {
		if len(g.gridDims) != 1 || b.rename(g.gridDims[0]) != values {
			continue
		}
		lat, lon, err := latLonMesh(g.geo)
		if err != nil {
			return fmt.Errorf("fieldcube: computing coordinates for %s: %v", g.name, err)
		}
		latVals := make([]interface{}, len(lat))
		lonVals := make([]interface{}, len(lon))
		for i := range lat {
			latVals[i] = lat[i]
			lonVals[i] = lon[i]
		}
		c.AddCoord("latitude", []string{values}, latVals)
		c.AddCoord("longitude", []string{values}, lonVals)
		return nil
	}
	return nil
}
