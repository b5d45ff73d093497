package crs

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestParse_Forms(t *testing.T) {
	for _, in := range []string{"EPSG:3005", "epsg:3005", " 3005 "} {
		c, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", in, err)
		}
		if c.Code != 3005 {
			t.Fatalf("Parse(%q) code=%d want 3005", in, c.Code)
		}
	}
	if _, err := Parse("ESRI:102001"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("ESRI authority: err=%v want ErrUnsupported", err)
	}
	if _, err := Parse("EPSG:abc"); err == nil {
		t.Fatalf("expected error for non-numeric code")
	}
}

func TestLookup_RejectsGeographic(t *testing.T) {
	if _, err := Lookup(WGS84); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("Lookup(4326) err=%v want ErrUnsupported", err)
	}
}

func TestUTM_ZoneRanges(t *testing.T) {
	c, err := Lookup(32633)
	if err != nil {
		t.Fatalf("Lookup 32633: %v", err)
	}
	if c.Name != "WGS 84 / UTM zone 33N" {
		t.Fatalf("name=%q", c.Name)
	}
	s, err := Lookup(32733)
	if err != nil {
		t.Fatalf("Lookup 32733: %v", err)
	}
	if s.Name != "WGS 84 / UTM zone 33S" {
		t.Fatalf("name=%q", s.Name)
	}
	if _, err := Lookup(32661); err == nil {
		t.Fatalf("32661 is UPS, expected unsupported")
	}
	if _, err := Lookup(26910); err != nil {
		t.Fatalf("Lookup 26910: %v", err)
	}
}

func TestUTM_KnownPoints(t *testing.T) {
	c, _ := Lookup(32631) // central meridian 3E
	p := c.Project(orb.Point{3, 0})
	if !near(p[0], 500000, 1e-3) || !near(p[1], 0, 1e-3) {
		t.Fatalf("origin=%v want [500000 0]", p)
	}
	p = c.Project(orb.Point{3, 45})
	if !near(p[1], 4982950.4, 1) {
		t.Fatalf("northing at 45N=%f want ~4982950.4", p[1])
	}

	s, _ := Lookup(32731)
	p = s.Project(orb.Point{3, 0})
	if !near(p[1], 10000000, 1e-3) {
		t.Fatalf("south false northing=%f", p[1])
	}
}

func TestAlbers_OriginMapsToFalseOrigin(t *testing.T) {
	cases := []struct {
		code     int
		lon, lat float64
		x, y     float64
	}{
		{3005, -126, 45, 1000000, 0},
		{5070, -96, 23, 0, 0},
		{3577, 132, 0, 0, 0},
		{3035, 10, 52, 4321000, 3210000},
	}
	for _, tc := range cases {
		c, err := Lookup(tc.code)
		if err != nil {
			t.Fatalf("Lookup %d: %v", tc.code, err)
		}
		p := c.Project(orb.Point{tc.lon, tc.lat})
		if !near(p[0], tc.x, 1e-3) || !near(p[1], tc.y, 1e-3) {
			t.Fatalf("%d origin=%v want [%v %v]", tc.code, p, tc.x, tc.y)
		}
	}
}

func TestEASE2_Extent(t *testing.T) {
	c, _ := Lookup(6933)
	p := c.Project(orb.Point{179, 0})
	if !near(p[0], 17367530.445*179/180, 10) {
		t.Fatalf("x at 179E=%f want ~17271044", p[0])
	}
	p = c.Project(orb.Point{0, 86})
	if !near(p[1], 7324184.564, 1) {
		t.Fatalf("y at 86N=%f want ~7324184", p[1])
	}
}

func TestEASE2_RoundTrip(t *testing.T) {
	c, _ := Lookup(6933)
	for _, in := range []orb.Point{{0, 0}, {16.5, 59.3}, {-120, -45}, {170, 80}} {
		back := c.Unproject(c.Project(in))
		if !near(back[0], in[0], 1e-7) || !near(back[1], in[1], 1e-7) {
			t.Fatalf("round trip %v -> %v", in, back)
		}
	}
}

func TestCovers(t *testing.T) {
	merc, _ := Lookup(3857)
	ease, _ := Lookup(6933)
	cases := []struct {
		c    CRS
		pt   orb.Point
		want bool
	}{
		{ease, orb.Point{180, 90}, true},
		{ease, orb.Point{0, 95}, false},
		{ease, orb.Point{181, 0}, false},
		{merc, orb.Point{0, 85}, true},
		{merc, orb.Point{0, 90}, false},
	}
	for _, tc := range cases {
		if got := tc.c.Covers(tc.pt); got != tc.want {
			t.Fatalf("%s Covers(%v)=%v want %v", tc.c, tc.pt, got, tc.want)
		}
	}
}

func TestEqualAreaProjectionsAgree(t *testing.T) {
	cell := orb.Polygon{{{-100, 40}, {-99, 40}, {-99, 41}, {-100, 41}, {-100, 40}}}

	ease, _ := Lookup(6933)
	conus, _ := Lookup(5070)

	a1 := planar.Area(ease.ProjectGeometry(cell))
	a2 := planar.Area(conus.ProjectGeometry(cell))
	if rel := math.Abs(a1-a2) / a1; rel > 0.005 {
		t.Fatalf("equal-area disagreement: ease=%f conus=%f rel=%f", a1, a2, rel)
	}
}

func TestProjectGeometry_DoesNotMutateInput(t *testing.T) {
	c, _ := Lookup(3857)
	ring := orb.Ring{{10, 10}, {11, 10}, {11, 11}, {10, 10}}
	_ = c.ProjectGeometry(orb.Polygon{ring})
	if ring[0] != (orb.Point{10, 10}) {
		t.Fatalf("input mutated: %v", ring[0])
	}
}
