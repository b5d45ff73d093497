package coverage

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func TestFootprintCache_SameResultWithAndWithoutCache(t *testing.T) {
	cache, err := NewFootprintCache(16)
	if err != nil {
		t.Fatalf("NewFootprintCache: %v", err)
	}
	cached := New(WithCache(cache))
	plain := New()
	target := mustCRS(t, 32631)
	fps := []Footprint{
		{ID: "a", Geometry: box(0, 0, 0.6, 1)},
		{ID: "b", Geometry: box(0.3, 0.2, 1.2, 0.7)},
	}

	want, err := plain.Coverage(unitSquare, fps, target)
	if err != nil {
		t.Fatalf("plain: %v", err)
	}
	for i := range 3 {
		got, err := cached.Coverage(unitSquare, fps, target)
		if err != nil {
			t.Fatalf("cached run %d: %v", i, err)
		}
		if math.Abs(got-want) > 1e-12 {
			t.Fatalf("cached run %d = %v want %v", i, got, want)
		}
	}
	if cache.Len() != 2 {
		t.Fatalf("cache len=%d want 2", cache.Len())
	}
}

func TestFootprintKey_DistinguishesInputs(t *testing.T) {
	base := Footprint{ID: "a", Geometry: box(0, 0, 1, 1)}
	k := footprintKey(base, 6933)

	if footprintKey(base, 3857) == k {
		t.Fatalf("target crs must change the key")
	}
	moved := Footprint{ID: "a", Geometry: box(0, 0, 1, 1.0001)}
	if footprintKey(moved, 6933) == k {
		t.Fatalf("coordinates must change the key")
	}
	renamed := Footprint{ID: "b", Geometry: box(0, 0, 1, 1)}
	if footprintKey(renamed, 6933) == k {
		t.Fatalf("scene id must change the key")
	}
	multi := Footprint{ID: "a", Geometry: orb.MultiPolygon{box(0, 0, 1, 1)}}
	if footprintKey(multi, 6933) != k {
		t.Fatalf("single-part multipolygon should hash like its polygon")
	}
}

func TestCachedPolygonsAreNotMutatedByCoverage(t *testing.T) {
	cache, _ := NewFootprintCache(4)
	e := New(WithCache(cache))
	target := mustCRS(t, 6933)
	fp := Footprint{ID: "a", Geometry: box(0, 0, 0.5, 1)}

	first, err := e.Coverage(unitSquare, []Footprint{fp}, target)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := e.Coverage(box(0, 0, 0.5, 0.5), []Footprint{fp}, target)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	third, err := e.Coverage(unitSquare, []Footprint{fp}, target)
	if err != nil {
		t.Fatalf("third: %v", err)
	}
	if first != third {
		t.Fatalf("cache state leaked between calls: %v vs %v", first, third)
	}
	if math.Abs(second-100) > 1e-6 {
		t.Fatalf("second=%v want ~100", second)
	}
}
