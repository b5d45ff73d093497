package coverage

import (
	"slices"
	"testing"

	h3 "github.com/uber/h3-go/v4"
)

// small AOI over Stockholm
var sthlm = box(18.00, 59.30, 18.10, 59.36)

func TestGaps_NoFootprintsReturnsWholePolyfill(t *testing.T) {
	e := New()
	target := mustCRS(t, 32633)
	gaps, err := e.Gaps(sthlm, nil, target, 8)
	if err != nil {
		t.Fatalf("Gaps: %v", err)
	}
	cells, err := h3.PolygonToCells(toGeoPolygon(sthlm), 8)
	if err != nil {
		t.Fatalf("PolygonToCells: %v", err)
	}
	if len(gaps) == 0 || len(gaps) != len(cells) {
		t.Fatalf("gaps=%d polyfill=%d", len(gaps), len(cells))
	}
	if !slices.IsSorted(gaps) {
		t.Fatalf("gaps must be sorted")
	}
}

func TestGaps_FullCoverageHasNone(t *testing.T) {
	e := New()
	fps := []Footprint{{ID: "big", Geometry: box(17.9, 59.2, 18.2, 59.5)}}
	gaps, err := e.Gaps(sthlm, fps, mustCRS(t, 32633), 8)
	if err != nil {
		t.Fatalf("Gaps: %v", err)
	}
	if len(gaps) != 0 {
		t.Fatalf("expected no gaps, got %d", len(gaps))
	}
}

func TestGaps_LeftHalfLeavesEasternCells(t *testing.T) {
	e := New()
	fps := []Footprint{{ID: "west", Geometry: box(17.9, 59.2, 18.05, 59.5)}}
	all, err := e.Gaps(sthlm, nil, mustCRS(t, 32633), 8)
	if err != nil {
		t.Fatalf("Gaps all: %v", err)
	}
	gaps, err := e.Gaps(sthlm, fps, mustCRS(t, 32633), 8)
	if err != nil {
		t.Fatalf("Gaps: %v", err)
	}
	if len(gaps) == 0 || len(gaps) >= len(all) {
		t.Fatalf("gaps=%d all=%d", len(gaps), len(all))
	}
	for _, s := range gaps {
		var c h3.Cell
		if err := c.UnmarshalText([]byte(s)); err != nil {
			t.Fatalf("parse cell %q: %v", s, err)
		}
		ll, err := c.LatLng()
		if err != nil {
			t.Fatalf("LatLng: %v", err)
		}
		if ll.Lng < 18.049 {
			t.Fatalf("cell %s at lng %f should be covered", s, ll.Lng)
		}
	}
}

func TestGaps_RejectsBadResolution(t *testing.T) {
	if _, err := New().Gaps(sthlm, nil, mustCRS(t, 32633), 16); err == nil {
		t.Fatalf("expected error for res 16")
	}
}
