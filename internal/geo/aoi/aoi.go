// Package aoi reads the area of interest from a GeoJSON file.
package aoi

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var ErrNotPolygonal = errors.New("aoi must be a Polygon or MultiPolygon")

// Read loads and parses an AOI file.
func Read(path string) (orb.Geometry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read aoi %s: %w", path, err)
	}
	g, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("aoi %s: %w", path, err)
	}
	return g, nil
}

// Parse accepts a FeatureCollection (its first feature is used), a Feature
// or a bare geometry, all in WGS84.
func Parse(b []byte) (orb.Geometry, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}

	var g orb.Geometry
	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(b)
		if err != nil {
			return nil, fmt.Errorf("decode feature collection: %w", err)
		}
		if len(fc.Features) == 0 {
			return nil, errors.New("feature collection is empty")
		}
		g = fc.Features[0].Geometry
	case "Feature":
		f, err := geojson.UnmarshalFeature(b)
		if err != nil {
			return nil, fmt.Errorf("decode feature: %w", err)
		}
		g = f.Geometry
	case "":
		return nil, errors.New("missing geojson type")
	default:
		gg, err := geojson.UnmarshalGeometry(b)
		if err != nil {
			return nil, fmt.Errorf("decode geometry: %w", err)
		}
		g = gg.Geometry()
	}
	return check(g)
}

func check(g orb.Geometry) (orb.Geometry, error) {
	switch v := g.(type) {
	case orb.Polygon:
		if len(v) == 0 || len(v[0]) < 4 {
			return nil, fmt.Errorf("%w: empty polygon", ErrNotPolygonal)
		}
		return v, nil
	case orb.MultiPolygon:
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty multipolygon", ErrNotPolygonal)
		}
		for i, p := range v {
			if len(p) == 0 || len(p[0]) < 4 {
				return nil, fmt.Errorf("%w: empty polygon %d", ErrNotPolygonal, i)
			}
		}
		return v, nil
	case nil:
		return nil, fmt.Errorf("%w: no geometry", ErrNotPolygonal)
	default:
		return nil, fmt.Errorf("%w: got %s", ErrNotPolygonal, g.GeoJSONType())
	}
}

// Name is the file stem, used as the default search name.
func Name(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
