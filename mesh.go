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
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/ctessum/geom/proj"
	"github.com/ctessum/requestcache"
)

// meshCacheEntries is the number of computed geographic meshes held in
// memory. Fields cut from the same grid share one entry, so a handful of
// entries covers typical datasets.
const meshCacheEntries = 100

var (
	meshInit  sync.Once
	meshCache *requestcache.Cache
)

// latLon holds the geographic coordinates of every point of one grid,
// flattened in row-major order.
type latLon struct {
	lat, lon []float64
}

type meshRequest struct {
	geo *Geography
}

// latLonMesh returns the latitude and longitude of every grid point of g,
// flattened in row-major order. Projected grids are transformed to
// geographic coordinates; grids whose axes already hold latitudes and
// longitudes are returned as stored. Results are cached and concurrent
// requests for the same grid are deduplicated, so many fields on one grid
// cost a single computation.
func latLonMesh(g *Geography) (lat, lon []float64, err error) {
	if g.ds == nil {
		return nil, nil, fmt.Errorf("fieldcube: no dataset to compute geographic coordinates from")
	}
	if err := g.resolveAxes(); err != nil {
		return nil, nil, err
	}
	meshInit.Do(func() {
		meshCache = requestcache.NewCache(func(ctx context.Context, request interface{}) (interface{}, error) {
			r := request.(meshRequest)
			return computeLatLon(r.geo)
		}, runtime.GOMAXPROCS(-1),
			requestcache.Deduplicate(), requestcache.Memory(meshCacheEntries))
	})
	req := meshCache.NewRequest(context.TODO(), meshRequest{geo: g},
		fmt.Sprintf("%p_%s_%s_%s", g.ds, g.yName, g.xName, g.UniqueGridID()))
	result, err := req.Result()
	if err != nil {
		return nil, nil, err
	}
	m := result.(*latLon)
	return m.lat, m.lon, nil
}

// computeLatLon calculates the geographic coordinates of the grid points.
// A grid with no coordinate reference system is accepted when its axes are
// geographic; its meshes are used unchanged.
func computeLatLon(g *Geography) (*latLon, error) {
	x, y, err := g.XY(true)
	if err != nil {
		return nil, err
	}
	m := &latLon{
		lat: make([]float64, len(y.Elements)),
		lon: make([]float64, len(x.Elements)),
	}
	sr, err := g.Projection()
	if err != nil {
		if _, ok := err.(GridMappingError); ok && g.geographicAxes() {
			copy(m.lat, y.Elements)
			copy(m.lon, x.Elements)
			return m, nil
		}
		return nil, err
	}
	// A grid whose reference system is already geographic keeps its
	// meshes unchanged; transforming would only add rounding error.
	if sr.Name == "longlat" {
		copy(m.lat, y.Elements)
		copy(m.lon, x.Elements)
		return m, nil
	}
	longLat, err := proj.Parse("+proj=longlat")
	if err != nil {
		return nil, err
	}
	t, err := sr.NewTransform(longLat)
	if err != nil {
		return nil, fmt.Errorf("fieldcube: creating geographic transform for variable %s: %v",
			g.variable, err)
	}
	for i := range m.lat {
		lon, lat, err := t(x.Elements[i], y.Elements[i])
		if err != nil {
			return nil, fmt.Errorf("fieldcube: transforming coordinates for variable %s: %v",
				g.variable, err)
		}
		m.lon[i] = lon
		m.lat[i] = lat
	}
	return m, nil
}
