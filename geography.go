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

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
	"github.com/ctessum/sparse"
)

// AxisError is returned when no coordinate variable can be matched to a
// horizontal axis, either by its axis attribute or by its name.
type AxisError struct {
	Variable string
	Axis     string
}

func (err AxisError) Error() string {
	return fmt.Sprintf("fieldcube: no %s coordinate axis found for variable %s",
		err.Axis, err.Variable)
}

// GridMappingError is returned when a variable carries no grid_mapping
// attribute, so no coordinate reference system can be constructed for it.
type GridMappingError struct {
	Variable string
}

func (err GridMappingError) Error() string {
	return fmt.Sprintf("fieldcube: variable %s has no grid_mapping attribute",
		err.Variable)
}

// geographicCoords lists the coordinate variable names recognized as
// horizontal axes, tried in order after the axis attribute.
var geographicCoords = map[string][]string{
	"x": {"x", "projection_x_coordinate", "lon", "longitude"},
	"y": {"y", "projection_y_coordinate", "lat", "latitude"},
}

// Geography describes the horizontal grid one field lies on: its bounding
// box, coordinate meshes, and coordinate reference system. A Geography is
// created by the Field that owns it; fields cut from the same dataset
// share the dataset's bounding-box cache, so the extrema for a given
// coordinate pair are only computed once.
type Geography struct {
	ds       *DataSet
	variable string
	dims     []string // trailing grid dimension names
	shape    []int    // trailing grid dimension lengths

	xName, yName string
	axesResolved bool

	xMesh, yMesh *sparse.DenseArray
	sr           *proj.SR
}

// newGeography returns the geography of the trailing axes of the named
// dataset variable.
func newGeography(ds *DataSet, variable string) *Geography {
	dims := ds.Dimensions(variable)
	lengths := ds.Lengths(variable)
	n := len(dims) - 2
	if n < 0 {
		n = 0
	}
	return &Geography{
		ds:       ds,
		variable: variable,
		dims:     dims[n:],
		shape:    lengths[n:],
	}
}

// newArrayGeography returns a dataset-free geography with only a declared
// grid shape. Bounding boxes, meshes, and projections are unavailable.
func newArrayGeography(shape []int) *Geography {
	return &Geography{shape: shape}
}

// Shape returns the lengths of the grid axes: the trailing two dimensions
// of the variable, or a single length for flattened grids.
func (g *Geography) Shape() []int { return g.shape }

// DimNames returns the names of the grid axes, or nil when the geography
// was created from a raw array and the names are unknown.
func (g *Geography) DimNames() []string { return g.dims }

// Size returns the number of grid points.
func (g *Geography) Size() int {
	n := 1
	for _, s := range g.shape {
		n *= s
	}
	return n
}

// UniqueGridID identifies the grid for deduplication purposes. Fields with
// equal grid IDs share their geometry computations.
func (g *Geography) UniqueGridID() string {
	s := make([]string, len(g.shape))
	for i, d := range g.shape {
		s[i] = fmt.Sprint(d)
	}
	return strings.Join(s, "x")
}

// resolveAxes finds the coordinate variables describing the horizontal
// axes of the grid. A coordinate variable qualifies when its dimensions
// are a subset of the grid dimensions; among qualifying variables, an
// explicit axis attribute ("X" or "Y", case-insensitive) wins, then the
// conventional coordinate names.
func (g *Geography) resolveAxes() error {
	if g.axesResolved {
		return nil
	}
	if g.ds == nil {
		return fmt.Errorf("fieldcube: no dataset to resolve coordinate axes from")
	}
	gridDims := make(map[string]bool)
	for _, d := range g.dims {
		gridDims[d] = true
	}
	var candidates []string
	for _, v := range g.ds.Variables() {
		if v == g.variable {
			continue
		}
		dims := g.ds.Dimensions(v)
		if len(dims) == 0 || len(dims) > 2 {
			continue
		}
		ok := true
		for _, d := range dims {
			if !gridDims[d] {
				ok = false
				break
			}
		}
		if ok {
			candidates = append(candidates, v)
		}
	}
	for _, axis := range []string{"x", "y"} {
		name := ""
		for _, v := range candidates {
			if strings.EqualFold(g.ds.AttributeString(v, "axis"), axis) {
				name = v
				break
			}
		}
		if name == "" {
			for _, want := range geographicCoords[axis] {
				for _, v := range candidates {
					if strings.EqualFold(v, want) {
						name = v
						break
					}
				}
				if name != "" {
					break
				}
			}
		}
		if name == "" {
			return AxisError{Variable: g.variable, Axis: axis}
		}
		if axis == "x" {
			g.xName = name
		} else {
			g.yName = name
		}
	}
	g.axesResolved = true
	return nil
}

// BoundingBox returns the horizontal extent of the grid: the minimum and
// maximum of the native coordinate arrays, not the grid corners, which
// matters for irregular grids. The value is cached on the owning dataset
// keyed by the coordinate name pair, so every call for the same pair
// returns the same *geom.Bounds.
func (g *Geography) BoundingBox() (*geom.Bounds, error) {
	if err := g.resolveAxes(); err != nil {
		return nil, err
	}
	return g.ds.boundingBox(g.yName, g.xName)
}

// North returns the maximum of the y coordinate array.
func (g *Geography) North() (float64, error) {
	b, err := g.BoundingBox()
	if err != nil {
		return 0, err
	}
	return b.Max.Y, nil
}

// South returns the minimum of the y coordinate array.
func (g *Geography) South() (float64, error) {
	b, err := g.BoundingBox()
	if err != nil {
		return 0, err
	}
	return b.Min.Y, nil
}

// East returns the maximum of the x coordinate array.
func (g *Geography) East() (float64, error) {
	b, err := g.BoundingBox()
	if err != nil {
		return 0, err
	}
	return b.Max.X, nil
}

// West returns the minimum of the x coordinate array.
func (g *Geography) West() (float64, error) {
	b, err := g.BoundingBox()
	if err != nil {
		return 0, err
	}
	return b.Min.X, nil
}

// XY returns the x and y coordinate meshes of the grid. One-dimensional
// axis vectors are expanded to full meshes; two-dimensional coordinates
// are used as stored. The meshes are computed on first use and reused
// afterwards. When flatten is true the returned arrays are copied into
// one-dimensional form.
func (g *Geography) XY(flatten bool) (x, y *sparse.DenseArray, err error) {
	if g.xMesh == nil {
		if err := g.resolveAxes(); err != nil {
			return nil, nil, err
		}
		xc, err := g.ds.coordArray(g.xName)
		if err != nil {
			return nil, nil, err
		}
		yc, err := g.ds.coordArray(g.yName)
		if err != nil {
			return nil, nil, err
		}
		if len(xc.Shape) == 1 && len(yc.Shape) == 1 {
			g.xMesh, g.yMesh = meshExpand(xc, yc)
		} else {
			g.xMesh, g.yMesh = xc, yc
		}
	}
	if flatten {
		return flatten1(g.xMesh), flatten1(g.yMesh), nil
	}
	return g.xMesh, g.yMesh, nil
}

// meshExpand expands one-dimensional x and y axis vectors to matching
// two-dimensional meshes with y varying along the first axis.
func meshExpand(x1, y1 *sparse.DenseArray) (x2, y2 *sparse.DenseArray) {
	nx, ny := x1.Shape[0], y1.Shape[0]
	x2 = sparse.ZerosDense(ny, nx)
	y2 = sparse.ZerosDense(ny, nx)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			x2.Elements[j*nx+i] = x1.Elements[i]
			y2.Elements[j*nx+i] = y1.Elements[j]
		}
	}
	return x2, y2
}

// flatten1 returns a one-dimensional copy of a.
func flatten1(a *sparse.DenseArray) *sparse.DenseArray {
	b := sparse.ZerosDense(len(a.Elements))
	copy(b.Elements, a.Elements)
	return b
}

// geographicAxes reports whether the resolved coordinate axes are already
// geographic (named as latitude and longitude rather than projected x and
// y), in which case the coordinate meshes need no transformation.
func (g *Geography) geographicAxes() bool {
	x := strings.EqualFold(g.xName, "lon") || strings.EqualFold(g.xName, "longitude")
	y := strings.EqualFold(g.yName, "lat") || strings.EqualFold(g.yName, "latitude")
	return x && y
}

// Projection returns the coordinate reference system of the grid, parsed
// from the CF grid-mapping attributes of the variable. A variable with no
// grid_mapping attribute returns a GridMappingError; the error is local to
// this field and does not prevent other fields from being processed.
func (g *Geography) Projection() (*proj.SR, error) {
	if g.sr != nil {
		return g.sr, nil
	}
	if g.ds == nil {
		return nil, GridMappingError{Variable: g.variable}
	}
	mapping := g.ds.AttributeString(g.variable, "grid_mapping")
	if mapping == "" {
		return nil, GridMappingError{Variable: g.variable}
	}
	p4, err := cfProjection(g.ds, mapping)
	if err != nil {
		return nil, err
	}
	sr, err := proj.Parse(p4)
	if err != nil {
		return nil, fmt.Errorf("fieldcube: parsing projection for variable %s: %v",
			g.variable, err)
	}
	g.sr = sr
	return sr, nil
}

// cfProjection translates the CF attributes of a grid-mapping variable
// into a Proj4 string.
func cfProjection(ds *DataSet, mapping string) (string, error) {
	name := ds.AttributeString(mapping, "grid_mapping_name")
	attr := func(a string) float64 {
		f, _ := attrFloat(ds.Attribute(mapping, a))
		return f
	}
	var s string
	switch name {
	case "latitude_longitude":
		s = "+proj=longlat +units=degrees"
	case "lambert_conformal_conic":
		par := attrFloats(ds.Attribute(mapping, "standard_parallel"))
		lat1, lat2 := attr("latitude_of_projection_origin"), attr("latitude_of_projection_origin")
		if len(par) > 0 {
			lat1 = par[0]
			lat2 = par[len(par)-1]
		}
		s = fmt.Sprintf("+proj=lcc +lat_1=%g +lat_2=%g +lat_0=%g +lon_0=%g +x_0=%g +y_0=%g",
			lat1, lat2, attr("latitude_of_projection_origin"),
			attr("longitude_of_central_meridian"),
			attr("false_easting"), attr("false_northing"))
	case "albers_conical_equal_area":
		par := attrFloats(ds.Attribute(mapping, "standard_parallel"))
		lat1, lat2 := attr("latitude_of_projection_origin"), attr("latitude_of_projection_origin")
		if len(par) > 0 {
			lat1 = par[0]
			lat2 = par[len(par)-1]
		}
		s = fmt.Sprintf("+proj=aea +lat_1=%g +lat_2=%g +lat_0=%g +lon_0=%g +x_0=%g +y_0=%g",
			lat1, lat2, attr("latitude_of_projection_origin"),
			attr("longitude_of_central_meridian"),
			attr("false_easting"), attr("false_northing"))
	case "transverse_mercator":
		s = fmt.Sprintf("+proj=tmerc +lat_0=%g +lon_0=%g +k=%g +x_0=%g +y_0=%g",
			attr("latitude_of_projection_origin"),
			attr("longitude_of_central_meridian"),
			attr("scale_factor_at_central_meridian"),
			attr("false_easting"), attr("false_northing"))
	case "mercator":
		s = fmt.Sprintf("+proj=merc +lat_ts=%g +lon_0=%g +x_0=%g +y_0=%g",
			attr("standard_parallel"),
			attr("longitude_of_projection_origin"),
			attr("false_easting"), attr("false_northing"))
	default:
		return "", fmt.Errorf("fieldcube: unsupported grid mapping %q", name)
	}
	if r, ok := attrFloat(ds.Attribute(mapping, "earth_radius")); ok {
		s += fmt.Sprintf(" +a=%g +b=%g", r, r)
	}
	return s, nil
}

// attrFloats converts an attribute value to a float64 slice.
func attrFloats(v interface{}) []float64 {
	switch a := v.(type) {
	case []float64:
		return a
	case []float32:
		o := make([]float64, len(a))
		for i, f := range a {
			o[i] = float64(f)
		}
		return o
	case []int32:
		o := make([]float64, len(a))
		for i, f := range a {
			o[i] = float64(f)
		}
		return o
	}
	if f, ok := attrFloat(v); ok {
		return []float64{f}
	}
	return nil
}
