// Package pipeline composes search, audit, day aggregation and ordering into
// one run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/planet-pipeline/internal/aggregate/dayagg"
	"github.com/mohammed-shakir/planet-pipeline/internal/core/config"
	"github.com/mohammed-shakir/planet-pipeline/internal/core/model"
	"github.com/mohammed-shakir/planet-pipeline/internal/geo/crs"
	"github.com/mohammed-shakir/planet-pipeline/internal/logger"
	"github.com/mohammed-shakir/planet-pipeline/internal/orchestrator"
	"github.com/mohammed-shakir/planet-pipeline/internal/planet"
	"github.com/mohammed-shakir/planet-pipeline/pkg/planetreq/filter"
)

const (
	StageSearch    = "search"
	StageAudit     = "audit"
	StageAggregate = "aggregate"
	StageOrders    = "orders"
)

type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + " stage: " + e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// ErrNotConfirmed is returned when the confirm callback declines ordering.
var ErrNotConfirmed = errors.New("ordering not confirmed")

type SearchGateway interface {
	Search(ctx context.Context, name string, spec filter.Spec, itemTypes []string) (planet.SavedSearch, []model.Scene, error)
}

// SearchUpdater is implemented by gateways that can rerun an existing saved
// search with a new filter instead of creating another one.
type SearchUpdater interface {
	Research(ctx context.Context, id, name string, spec filter.Spec, itemTypes []string) (planet.SavedSearch, []model.Scene, error)
}

type Orderer interface {
	Accepted(records []model.DayRecord, threshold float64) []model.DayRecord
	RunOrders(ctx context.Context, records []model.DayRecord, threshold float64, aoi orb.Geometry, target crs.CRS) []orchestrator.Outcome
}

type Options struct {
	Target     crs.CRS
	Threshold  float64
	ItemTypes  []string
	CloudCover float64
	StdQuality bool

	// ClearPercentMin and ClearPercentMax bound clear_percent. The range
	// [0, 100] and a zero max leave it unfiltered.
	ClearPercentMin float64
	ClearPercentMax float64
	Instruments     []string
	Assets          []string

	AuditDir string
	Logger   *slog.Logger
	Now      func() time.Time
}

// OptionsFromConfig maps the environment config onto pipeline options.
func OptionsFromConfig(cfg config.Config) (Options, error) {
	target, err := crs.Parse(cfg.TargetCRS)
	if err != nil {
		return Options{}, fmt.Errorf("target crs: %w", err)
	}
	return Options{
		Target:          target,
		Threshold:       cfg.CoverageThreshold,
		ItemTypes:       cfg.Search.ItemTypes,
		CloudCover:      cfg.Search.CloudCoverMax,
		StdQuality:      cfg.Search.StdQuality,
		ClearPercentMin: cfg.Search.ClearPercentMin,
		ClearPercentMax: cfg.Search.ClearPercentMax,
		Instruments:     cfg.Search.Instruments,
		Assets:          cfg.Search.Assets,
		AuditDir:        cfg.SearchResultsDir(),
	}, nil
}

// Request describes one run.
type Request struct {
	Name  string
	AOI   orb.Geometry
	Start time.Time
	End   time.Time

	// SearchID reruns that saved search with the new filter when the
	// gateway is a SearchUpdater.
	SearchID string

	// Confirm is shown every day and the accepted subset before ordering;
	// nil orders without asking.
	Confirm func(days, accepted []model.DayRecord) bool
}

type Pipeline struct {
	search SearchGateway
	agg    *dayagg.Aggregator
	orders Orderer
	opts   Options
	log    *slog.Logger
}

func New(search SearchGateway, agg *dayagg.Aggregator, orders Orderer, opts Options) (*Pipeline, error) {
	if search == nil || agg == nil {
		return nil, errors.New("pipeline: search gateway and aggregator are required")
	}
	if !opts.Target.Valid() {
		return nil, errors.New("pipeline: target crs is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	l := opts.Logger
	if l == nil {
		l = slog.Default()
	}
	return &Pipeline{search: search, agg: agg, orders: orders, opts: opts, log: l}, nil
}

// Filter builds the catalog filter for a request.
func (p *Pipeline) Filter(req Request) (filter.Spec, error) {
	b := filter.New(filter.And).
		AddAcquired(req.Start, req.End, true).
		AddCloudCover(0, p.opts.CloudCover, true)
	if p.opts.StdQuality {
		b.AddStdQuality()
	}
	if lo, hi, ok := p.clearPercent(); ok {
		b.AddClearPercent(lo, hi, true)
	}
	if len(p.opts.Instruments) > 0 {
		b.AddInstrument(p.opts.Instruments...)
	}
	if len(p.opts.Assets) > 0 {
		b.AddAsset(p.opts.Assets...)
	}
	return b.AddPermission().AddGeometry(req.AOI).Build()
}

func (p *Pipeline) clearPercent() (lo, hi float64, ok bool) {
	lo, hi = p.opts.ClearPercentMin, p.opts.ClearPercentMax
	if hi == 0 {
		hi = 100
	}
	return lo, hi, lo > 0 || hi < 100
}

func (p *Pipeline) runSearch(ctx context.Context, req Request, spec filter.Spec) (planet.SavedSearch, []model.Scene, error) {
	if req.SearchID != "" {
		u, ok := p.search.(SearchUpdater)
		if !ok {
			return planet.SavedSearch{}, nil, errors.New("gateway cannot update saved searches")
		}
		return u.Research(ctx, req.SearchID, req.Name, spec, p.opts.ItemTypes)
	}
	return p.search.Search(ctx, req.Name, spec, p.opts.ItemTypes)
}

// Search runs the catalog search, writes the audit file and groups the
// scenes by day. It never orders.
func (p *Pipeline) Search(ctx context.Context, req Request) (Report, error) {
	rep := Report{RunID: logger.RunID(ctx), Name: req.Name, Threshold: p.opts.Threshold}

	spec, err := p.Filter(req)
	if err != nil {
		return rep, &StageError{Stage: StageSearch, Err: err}
	}
	ss, scenes, err := p.runSearch(ctx, req, spec)
	if err != nil {
		return rep, &StageError{Stage: StageSearch, Err: err}
	}
	rep.SearchID = ss.ID
	rep.Scenes = len(scenes)

	path, err := WriteAudit(p.opts.AuditDir, req.Name, ss.ID, scenes, p.opts.Now())
	if err != nil {
		return rep, &StageError{Stage: StageAudit, Err: err}
	}
	rep.AuditPath = path

	days, err := p.agg.GroupByDay(ctx, scenes, req.AOI, p.opts.Target)
	if err != nil {
		return rep, &StageError{Stage: StageAggregate, Err: err}
	}
	rep.Days = days
	p.log.InfoContext(ctx, "search aggregated",
		"search_id", ss.ID,
		"scenes", len(scenes),
		"days", len(days),
		"audit", path,
	)
	return rep, nil
}

// Run searches, then orders every day meeting the threshold.
func (p *Pipeline) Run(ctx context.Context, req Request) (Report, error) {
	rep, err := p.Search(ctx, req)
	if err != nil {
		return rep, err
	}
	if p.orders == nil {
		return rep, &StageError{Stage: StageOrders, Err: errors.New("no orderer configured")}
	}

	accepted := p.orders.Accepted(rep.Days, p.opts.Threshold)
	rep.Accepted = len(accepted)
	if len(accepted) == 0 {
		p.log.InfoContext(ctx, "no day meets the coverage threshold", "threshold", p.opts.Threshold)
		return rep, nil
	}
	if req.Confirm != nil && !req.Confirm(rep.Days, accepted) {
		return rep, ErrNotConfirmed
	}
	if err := ctx.Err(); err != nil {
		return rep, &StageError{Stage: StageOrders, Err: err}
	}

	rep.Outcomes = p.orders.RunOrders(ctx, accepted, p.opts.Threshold, req.AOI, p.opts.Target)
	return rep, nil
}
