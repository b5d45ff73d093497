// Package coverage computes how much of an area of interest is covered by
// a set of scene footprints, measured in a projected CRS.
package coverage

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/mohammed-shakir/planet-pipeline/internal/geo/crs"
)

// Footprint is one scene outline. CRS 0 means WGS84 lon/lat.
type Footprint struct {
	ID       string
	Geometry orb.Geometry
	CRS      int
}

type GeometryError struct {
	Op     string
	ID     string
	Reason string
}

func (e *GeometryError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.ID, e.Reason)
}

// Result holds projected areas in square metres.
type Result struct {
	Percent     float64
	AOIArea     float64
	CoveredArea float64
	Used        int
}

type Engine struct {
	cache *FootprintCache
}

type Option func(*Engine)

// WithCache reuses projected footprints across calls.
func WithCache(c *FootprintCache) Option {
	return func(e *Engine) { e.cache = c }
}

func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Coverage returns the covered share of aoi in percent. The value is not
// clamped and may deviate from the exact figure by floating-point error.
func (e *Engine) Coverage(aoi orb.Geometry, fps []Footprint, target crs.CRS) (float64, error) {
	r, err := e.Compute(aoi, fps, target)
	if err != nil {
		return 0, err
	}
	return r.Percent, nil
}

func (e *Engine) Compute(aoi orb.Geometry, fps []Footprint, target crs.CRS) (Result, error) {
	if !target.Valid() {
		return Result{}, &GeometryError{Op: "coverage", Reason: "no target crs"}
	}
	aoiPolys, err := polygons("coverage aoi", "", aoi)
	if err != nil {
		return Result{}, err
	}
	aoiProj, err := projectAll("coverage aoi", "", aoiPolys, target)
	if err != nil {
		return Result{}, err
	}
	if !hasArea(aoiProj) {
		return Result{}, &GeometryError{Op: "coverage aoi", Reason: "zero area"}
	}
	aoiBound := boundOf(aoiProj)

	var shapes []orb.Polygon
	used := 0
	for _, fp := range fps {
		proj, err := e.project(fp, target)
		if err != nil {
			return Result{}, err
		}
		hit := false
		for _, p := range proj {
			if p.Bound().Intersects(aoiBound) {
				shapes = append(shapes, p)
				hit = true
			}
		}
		if hit {
			used++
		}
	}

	aoiArea, covered, err := overlay(aoiProj, shapes)
	if err != nil {
		return Result{}, &GeometryError{Op: "coverage", Reason: err.Error()}
	}
	if !(aoiArea > 0) {
		return Result{}, &GeometryError{Op: "coverage aoi", Reason: "zero area"}
	}
	return Result{
		Percent:     covered / aoiArea * 100,
		AOIArea:     aoiArea,
		CoveredArea: covered,
		Used:        used,
	}, nil
}

func (e *Engine) project(fp Footprint, target crs.CRS) ([]orb.Polygon, error) {
	if e.cache != nil {
		if p, ok := e.cache.get(fp, target.Code); ok {
			return p, nil
		}
	}
	polys, err := polygons("coverage footprint", fp.ID, fp.Geometry)
	if err != nil {
		return nil, err
	}
	var out []orb.Polygon
	switch fp.CRS {
	case 0, crs.WGS84:
		if out, err = projectAll("coverage footprint", fp.ID, polys, target); err != nil {
			return nil, err
		}
	case target.Code:
		out = make([]orb.Polygon, len(polys))
		for i, p := range polys {
			out[i] = p.Clone()
		}
	default:
		return nil, &GeometryError{
			Op:     "coverage footprint",
			ID:     fp.ID,
			Reason: fmt.Sprintf("cannot reproject from EPSG:%d to %s", fp.CRS, target),
		}
	}
	if e.cache != nil {
		e.cache.put(fp, target.Code, out)
	}
	return out, nil
}

// projectAll projects lon/lat polygons into target. Positions outside the
// projection's domain and non-finite results are geometry errors.
func projectAll(op, id string, polys []orb.Polygon, target crs.CRS) ([]orb.Polygon, error) {
	out := make([]orb.Polygon, len(polys))
	for i, p := range polys {
		for _, r := range p {
			for _, pt := range r {
				if !target.Covers(pt) {
					return nil, &GeometryError{Op: op, ID: id, Reason: fmt.Sprintf("position %v outside the domain of %s", pt, target)}
				}
			}
		}
		q := target.ProjectGeometry(p).(orb.Polygon)
		for _, r := range q {
			for _, pt := range r {
				if !finite(pt) {
					return nil, &GeometryError{Op: op, ID: id, Reason: fmt.Sprintf("position projects to %v in %s", pt, target)}
				}
			}
		}
		out[i] = q
	}
	return out, nil
}

func finite(pt orb.Point) bool {
	return !math.IsNaN(pt[0]) && !math.IsNaN(pt[1]) && !math.IsInf(pt[0], 0) && !math.IsInf(pt[1], 0)
}

func hasArea(polys []orb.Polygon) bool {
	for _, p := range polys {
		if planar.Area(p) > 0 {
			return true
		}
	}
	return false
}

func boundOf(polys []orb.Polygon) orb.Bound {
	b := polys[0].Bound()
	for _, p := range polys[1:] {
		b = b.Union(p.Bound())
	}
	return b
}

// polygons splits g into its polygons and rejects anything that cannot
// enclose area.
func polygons(op, id string, g orb.Geometry) ([]orb.Polygon, error) {
	var polys []orb.Polygon
	switch v := g.(type) {
	case orb.Polygon:
		polys = []orb.Polygon{v}
	case orb.MultiPolygon:
		polys = v
	case nil:
		return nil, &GeometryError{Op: op, ID: id, Reason: "missing geometry"}
	default:
		return nil, &GeometryError{Op: op, ID: id, Reason: "not polygonal: " + g.GeoJSONType()}
	}
	if len(polys) == 0 {
		return nil, &GeometryError{Op: op, ID: id, Reason: "empty multipolygon"}
	}
	for _, p := range polys {
		if len(p) == 0 {
			return nil, &GeometryError{Op: op, ID: id, Reason: "polygon without rings"}
		}
		for _, r := range p {
			if len(r) < 4 {
				return nil, &GeometryError{Op: op, ID: id, Reason: fmt.Sprintf("ring has %d positions, need at least 4", len(r))}
			}
			for _, pt := range r {
				if !finite(pt) {
					return nil, &GeometryError{Op: op, ID: id, Reason: "non-finite coordinate"}
				}
			}
		}
	}
	return polys, nil
}
