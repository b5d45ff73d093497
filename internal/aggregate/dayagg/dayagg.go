// Package dayagg groups search results by UTC acquisition day and measures
// each day's coverage of the area of interest.
package dayagg

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/planet-pipeline/internal/core/model"
	"github.com/mohammed-shakir/planet-pipeline/internal/core/observability"
	"github.com/mohammed-shakir/planet-pipeline/internal/geo/coverage"
	"github.com/mohammed-shakir/planet-pipeline/internal/geo/crs"
)

type Options struct {
	// Gaps turns on H3 gap cells at resolution GapRes.
	Gaps   bool
	GapRes int
	Logger *slog.Logger
}

type Aggregator struct {
	engine *coverage.Engine
	gaps   bool
	gapRes int
	log    *slog.Logger
}

func New(engine *coverage.Engine, opts Options) *Aggregator {
	if engine == nil {
		engine = coverage.New()
	}
	l := opts.Logger
	if l == nil {
		l = slog.Default()
	}
	return &Aggregator{engine: engine, gaps: opts.Gaps, gapRes: opts.GapRes, log: l}
}

// GroupByDay returns one record per distinct acquisition day, oldest first.
// Any coverage failure aborts the whole grouping.
func (a *Aggregator) GroupByDay(ctx context.Context, scenes []model.Scene, aoi orb.Geometry, target crs.CRS) ([]model.DayRecord, error) {
	days := partition(scenes)

	keys := make([]time.Time, 0, len(days))
	for d := range days {
		keys = append(keys, d)
	}
	slices.SortFunc(keys, func(x, y time.Time) int { return x.Compare(y) })

	out := make([]model.DayRecord, 0, len(keys))
	for _, day := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		group := days[day]
		fps := make([]coverage.Footprint, len(group))
		ids := make([]string, len(group))
		for i, s := range group {
			fps[i] = coverage.Footprint{ID: s.ID, Geometry: s.Footprint, CRS: s.FootprintCRS}
			ids[i] = s.ID
		}

		start := time.Now()
		res, err := a.engine.Compute(aoi, fps, target)
		if err != nil {
			return nil, fmt.Errorf("coverage for %s: %w", day.Format(model.DayLayout), err)
		}
		rec := model.DayRecord{
			Date:            day,
			SceneIDs:        ids,
			SceneCount:      len(group),
			CoveragePercent: res.Percent,
		}
		if a.gaps {
			gaps, err := a.engine.Gaps(aoi, fps, target, a.gapRes)
			if err != nil {
				return nil, fmt.Errorf("gap cells for %s: %w", rec.Key(), err)
			}
			rec.GapCells = gaps
		}
		observability.ObserveDayCoverage(res.Percent, time.Since(start).Seconds())

		a.log.DebugContext(ctx, "day coverage",
			"date", rec.Key(),
			"scenes", rec.SceneCount,
			"used", res.Used,
			"coverage_percent", rec.CoveragePercent,
			"gap_cells", len(rec.GapCells),
		)
		out = append(out, rec)
	}
	return out, nil
}

func partition(scenes []model.Scene) map[time.Time][]model.Scene {
	days := make(map[time.Time][]model.Scene)
	for _, s := range scenes {
		d := s.Day()
		days[d] = append(days[d], s)
	}
	return days
}
