// Package crs maps EPSG codes to forward projections from WGS84 lon/lat to
// projected metres. Only projected systems are supported as targets.
package crs

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/wroge/wgs84"
)

const WGS84 = 4326

var ErrUnsupported = errors.New("unsupported coordinate reference system")

type CRS struct {
	Code int
	Name string

	sys    wgs84.CoordinateReferenceSystem
	fwd    wgs84.Func
	maxLat float64
}

func newCRS(code int, name string, sys wgs84.CoordinateReferenceSystem, maxLat float64) CRS {
	return CRS{
		Code:   code,
		Name:   name,
		sys:    sys,
		fwd:    wgs84.Transform(wgs84.LonLat(), sys),
		maxLat: maxLat,
	}
}

func (c CRS) String() string { return "EPSG:" + strconv.Itoa(c.Code) }

// Valid reports whether c came from Lookup or Parse.
func (c CRS) Valid() bool { return c.fwd != nil }

// Covers reports whether p is a lon/lat position the projection can map.
func (c CRS) Covers(p orb.Point) bool {
	return math.Abs(p[0]) <= 180 && math.Abs(p[1]) <= c.maxLat
}

// Project maps a lon/lat point to projected coordinates.
func (c CRS) Project(p orb.Point) orb.Point {
	x, y, _ := c.fwd(p[0], p[1], 0)
	return orb.Point{x, y}
}

// Unproject maps projected coordinates back to lon/lat.
func (c CRS) Unproject(p orb.Point) orb.Point {
	lon, lat, _ := wgs84.Transform(c.sys, wgs84.LonLat())(p[0], p[1], 0)
	return orb.Point{lon, lat}
}

// ProjectGeometry returns a projected copy of g.
func (c CRS) ProjectGeometry(g orb.Geometry) orb.Geometry {
	return project.Geometry(orb.Clone(g), c.Project)
}

// Lookup resolves a projected CRS by EPSG code.
func Lookup(code int) (CRS, error) {
	if c, ok := registry[code]; ok {
		return c, nil
	}
	switch {
	case code >= 32601 && code <= 32660:
		zone := code - 32600
		return newCRS(code, fmt.Sprintf("WGS 84 / UTM zone %dN", zone), wgs84.UTM(float64(zone), true), 90), nil
	case code >= 32701 && code <= 32760:
		zone := code - 32700
		return newCRS(code, fmt.Sprintf("WGS 84 / UTM zone %dS", zone), wgs84.UTM(float64(zone), false), 90), nil
	case code >= 26901 && code <= 26923:
		zone := code - 26900
		sys := wgs84.NAD83().TransverseMercator(float64(zone*6-183), 0, 0.9996, 500000, 0)
		return newCRS(code, fmt.Sprintf("NAD83 / UTM zone %dN", zone), sys, 90), nil
	case code >= 25828 && code <= 25838:
		zone := code - 25800
		return newCRS(code, fmt.Sprintf("ETRS89 / UTM zone %dN", zone), wgs84.ETRS89UTM(float64(zone)), 90), nil
	}
	return CRS{}, fmt.Errorf("EPSG:%d: %w", code, ErrUnsupported)
}

// Parse accepts "EPSG:3005", "epsg:3005" or "3005".
func Parse(s string) (CRS, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ':'); i >= 0 {
		if !strings.EqualFold(s[:i], "EPSG") {
			return CRS{}, fmt.Errorf("%q: %w", s, ErrUnsupported)
		}
		s = s[i+1:]
	}
	code, err := strconv.Atoi(s)
	if err != nil {
		return CRS{}, fmt.Errorf("parse crs %q: %w", s, err)
	}
	return Lookup(code)
}

// GDA94 shares GRS80 with NAD83 and has no shift from WGS84 at this precision.
var gda94 = wgs84.Datum{Spheroid: wgs84.GRS80{}}

var registry = map[int]CRS{
	// Web Mercator is undefined at the poles
	3857: newCRS(3857, "WGS 84 / Pseudo-Mercator", wgs84.WebMercator(), 85.06),
	6933: newCRS(6933, "WGS 84 / NSIDC EASE-Grid 2.0 Global", wgs84.ProjectedReferenceSystem{
		Datum:      wgs84.WGS84(),
		Projection: cylindricalEqualArea{latTS: 30},
	}, 90),
	3035: newCRS(3035, "ETRS89-extended / LAEA Europe", wgs84.ETRS89LambertAzimuthalEqualArea(), 90),
	3005: newCRS(3005, "NAD83 / BC Albers", wgs84.NAD83().AlbersEqualAreaConic(-126, 45, 50, 58.5, 1000000, 0), 90),
	5070: newCRS(5070, "NAD83 / Conus Albers", wgs84.NAD83().AlbersEqualAreaConic(-96, 23, 29.5, 45.5, 0, 0), 90),
	3577: newCRS(3577, "GDA94 / Australian Albers", gda94.AlbersEqualAreaConic(132, 0, -18, -36, 0, 0), 90),
}
