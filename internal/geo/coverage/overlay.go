package coverage

import (
	"fmt"

	"github.com/paulmach/orb"
	sf "github.com/peterstace/simplefeatures/geom"
)

// overlay returns the area of union(aoi) and of union(aoi) ∩ union(fps).
// Holes subtract and overlapping footprints count once.
func overlay(aoi, fps []orb.Polygon) (aoiArea, covered float64, err error) {
	aoiU, err := sf.UnionMany(toGeometries(aoi))
	if err != nil {
		return 0, 0, fmt.Errorf("union aoi: %w", err)
	}
	aoiArea = aoiU.Area()
	if len(fps) == 0 || !(aoiArea > 0) {
		return aoiArea, 0, nil
	}

	fpU, err := sf.UnionMany(toGeometries(fps))
	if err != nil {
		return 0, 0, fmt.Errorf("union footprints: %w", err)
	}
	in, err := sf.Intersection(aoiU, fpU)
	if err != nil {
		return 0, 0, fmt.Errorf("intersect footprints with aoi: %w", err)
	}
	return aoiArea, in.Area(), nil
}

func toGeometries(polys []orb.Polygon) []sf.Geometry {
	out := make([]sf.Geometry, len(polys))
	for i, p := range polys {
		out[i] = toPolygon(p).AsGeometry()
	}
	return out
}

// toPolygon closes open rings; GeoJSON requires closure but providers slip.
func toPolygon(p orb.Polygon) sf.Polygon {
	rings := make([]sf.LineString, len(p))
	for i, r := range p {
		coords := make([]float64, 0, 2*len(r)+2)
		for _, pt := range r {
			coords = append(coords, pt[0], pt[1])
		}
		if r[0] != r[len(r)-1] {
			coords = append(coords, r[0][0], r[0][1])
		}
		rings[i] = sf.NewLineString(sf.NewSequence(coords, sf.DimXY))
	}
	return sf.NewPolygon(rings)
}
