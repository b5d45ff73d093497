package coverage

import (
	"fmt"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/planet-pipeline/internal/geo/crs"
)

// Gaps polyfills aoi with H3 cells at res and returns the cells whose centre
// no footprint covers, sorted and de-duplicated.
func (e *Engine) Gaps(aoi orb.Geometry, fps []Footprint, target crs.CRS, res int) ([]string, error) {
	if res < 0 || res > 15 {
		return nil, fmt.Errorf("h3 resolution %d out of range [0,15]", res)
	}
	if !target.Valid() {
		return nil, &GeometryError{Op: "coverage gaps", Reason: "no target crs"}
	}
	aoiPolys, err := polygons("coverage aoi", "", aoi)
	if err != nil {
		return nil, err
	}
	if _, err := projectAll("coverage aoi", "", aoiPolys, target); err != nil {
		return nil, err
	}

	var covered []orb.Polygon
	for _, fp := range fps {
		proj, err := e.project(fp, target)
		if err != nil {
			return nil, err
		}
		covered = append(covered, proj...)
	}

	var out []string
	for _, p := range aoiPolys {
		cells, err := h3.PolygonToCells(toGeoPolygon(p), res)
		if err != nil {
			return nil, fmt.Errorf("polyfill aoi: %w", err)
		}
		for _, c := range cells {
			ll, err := c.LatLng()
			if err != nil {
				return nil, fmt.Errorf("cell %s centre: %w", c.String(), err)
			}
			pt := target.Project(orb.Point{ll.Lng, ll.Lat})
			if !containedByAny(covered, pt) {
				out = append(out, c.String())
			}
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

func containedByAny(polys []orb.Polygon, pt orb.Point) bool {
	for _, p := range polys {
		if planar.PolygonContains(p, pt) {
			return true
		}
	}
	return false
}

// h3 wants open loops in degrees.
func toGeoPolygon(p orb.Polygon) h3.GeoPolygon {
	gp := h3.GeoPolygon{GeoLoop: toLoop(p[0])}
	for _, hole := range p[1:] {
		gp.Holes = append(gp.Holes, toLoop(hole))
	}
	return gp
}

func toLoop(r orb.Ring) h3.GeoLoop {
	if len(r) > 1 && r[0] == r[len(r)-1] {
		r = r[:len(r)-1]
	}
	loop := make(h3.GeoLoop, 0, len(r))
	for _, pt := range r {
		loop = append(loop, h3.LatLng{Lat: pt[1], Lng: pt[0]})
	}
	return loop
}
