package coverage

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/planet-pipeline/internal/core/observability"
)

// FootprintCache keeps projected footprints keyed by scene, source and
// target CRS and a hash of the coordinates. Cached polygons are shared and
// must not be modified.
type FootprintCache struct {
	lru *lru.Cache[uint64, []orb.Polygon]
}

func NewFootprintCache(size int) (*FootprintCache, error) {
	if size <= 0 {
		size = 4096
	}
	c, err := lru.New[uint64, []orb.Polygon](size)
	if err != nil {
		return nil, fmt.Errorf("footprint cache: %w", err)
	}
	return &FootprintCache{lru: c}, nil
}

func (c *FootprintCache) Len() int { return c.lru.Len() }

func (c *FootprintCache) get(fp Footprint, target int) ([]orb.Polygon, bool) {
	v, ok := c.lru.Get(footprintKey(fp, target))
	observability.ObserveFootprintCache(ok)
	return v, ok
}

func (c *FootprintCache) put(fp Footprint, target int, polys []orb.Polygon) {
	c.lru.Add(footprintKey(fp, target), polys)
}

func footprintKey(fp Footprint, target int) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(fp.ID)
	var buf [8]byte
	putInt := func(n int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(n)))
		_, _ = d.Write(buf[:])
	}
	putFloat := func(f float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
		_, _ = d.Write(buf[:])
	}
	putInt(fp.CRS)
	putInt(target)
	switch g := fp.Geometry.(type) {
	case orb.Polygon:
		hashPolygon(g, putInt, putFloat)
	case orb.MultiPolygon:
		for _, p := range g {
			hashPolygon(p, putInt, putFloat)
		}
	}
	return d.Sum64()
}

func hashPolygon(p orb.Polygon, putInt func(int), putFloat func(float64)) {
	putInt(len(p))
	for _, r := range p {
		putInt(len(r))
		for _, pt := range r {
			putFloat(pt[0])
			putFloat(pt[1])
		}
	}
}
