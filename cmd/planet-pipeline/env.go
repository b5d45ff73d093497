package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/mohammed-shakir/planet-pipeline/internal/aggregate/dayagg"
	"github.com/mohammed-shakir/planet-pipeline/internal/core/config"
	"github.com/mohammed-shakir/planet-pipeline/internal/core/health"
	"github.com/mohammed-shakir/planet-pipeline/internal/geo/coverage"
	"github.com/mohammed-shakir/planet-pipeline/internal/jobevents"
	"github.com/mohammed-shakir/planet-pipeline/internal/jobstore"
	"github.com/mohammed-shakir/planet-pipeline/internal/jobstore/redisstore"
	"github.com/mohammed-shakir/planet-pipeline/internal/logger"
	"github.com/mohammed-shakir/planet-pipeline/internal/orchestrator"
	"github.com/mohammed-shakir/planet-pipeline/internal/pipeline"
	"github.com/mohammed-shakir/planet-pipeline/internal/planet"
)

// env holds what every command needs: config, logger and run id.
type env struct {
	cfg     config.Config
	log     *slog.Logger
	runID   string
	closers []func() error
}

func setup(ctx context.Context, c *cli.Context, component string, dataDirs bool) (context.Context, *env, error) {
	cfg := config.FromEnv()
	if d := c.String("data"); d != "" {
		cfg.DataPath = d
	}
	if v := c.String("crs"); v != "" {
		cfg.TargetCRS = v
	}
	if t := c.Float64("threshold"); t >= 0 && c.IsSet("threshold") {
		cfg.CoverageThreshold = t
	}
	if c.Bool("overwrite") {
		cfg.Orchestrator.Overwrite = true
	}

	e := &env{cfg: cfg, runID: logger.NewID()}

	var out io.Writer = os.Stderr
	if dataDirs {
		if err := pipeline.EnsureDataDirs(cfg); err != nil {
			return ctx, nil, err
		}
		name := fmt.Sprintf("planet-pipeline_%s.log", time.Now().UTC().Format("20060102T150405"))
		f, err := os.OpenFile(filepath.Join(cfg.LogsDir(), name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return ctx, nil, fmt.Errorf("open log file: %w", err)
		}
		e.closers = append(e.closers, f.Close)
		out = io.MultiWriter(os.Stderr, f)
	}

	zl := logger.Build(logger.Config{Level: cfg.LogLevel, Console: cfg.LogConsole}, out)
	e.log = logger.NewSlog(&zl)
	slog.SetDefault(e.log)

	ctx = logger.WithRunID(ctx, e.runID)
	ctx = logger.WithComponent(ctx, component)
	return ctx, e, nil
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			e.log.Warn("close", "error", err)
		}
	}
}

func (e *env) planet() (*planet.Client, error) {
	return planet.New(e.cfg.Planet.BaseURL, e.cfg.Planet.APIKey, planet.WithLogger(e.log))
}

func (e *env) aggregator() (*dayagg.Aggregator, error) {
	var opts []coverage.Option
	if e.cfg.FootprintCacheSize > 0 {
		cache, err := coverage.NewFootprintCache(e.cfg.FootprintCacheSize)
		if err != nil {
			return nil, fmt.Errorf("footprint cache: %w", err)
		}
		opts = append(opts, coverage.WithCache(cache))
	}
	return dayagg.New(coverage.New(opts...), dayagg.Options{
		Gaps:   e.cfg.H3GapRes >= 0,
		GapRes: e.cfg.H3GapRes,
		Logger: e.log,
	}), nil
}

// store opens the configured job store and its readiness checks.
func (e *env) store(ctx context.Context) (jobstore.Store, []health.Check, error) {
	switch e.cfg.JobStore.Driver {
	case "", "memory":
		return jobstore.NewMemory(), nil, nil
	case "redis":
		s, err := redisstore.New(ctx, e.cfg.JobStore.RedisAddr, e.cfg.JobStore.TTL)
		if err != nil {
			return nil, nil, fmt.Errorf("job store: %w", err)
		}
		e.closers = append(e.closers, s.Close)
		return s, []health.Check{{Name: "redis", Fn: s.Ping}}, nil
	default:
		return nil, nil, fmt.Errorf("unknown job store driver %q", e.cfg.JobStore.Driver)
	}
}

func (e *env) events() (jobevents.Sink, error) {
	if !e.cfg.Events.Enabled {
		return jobevents.Nop{}, nil
	}
	p, err := jobevents.NewPublisher(e.cfg.Events.Brokers, e.cfg.Events.Topic, e.cfg.Events.Queue, e.log)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, p.Close)
	return p, nil
}

func (e *env) orchestrator(ctx context.Context, gw orchestrator.Gateway) (*orchestrator.Orchestrator, error) {
	store, _, err := e.store(ctx)
	if err != nil {
		return nil, err
	}
	events, err := e.events()
	if err != nil {
		return nil, err
	}
	oc := e.cfg.Order
	return orchestrator.New(gw, orchestrator.Options{
		Template: orchestrator.Template{
			NamePrefix:      oc.NamePrefix,
			ProductBundle:   oc.ProductBundle,
			ItemType:        oc.ItemType,
			Reproject:       oc.Reproject,
			Resolution:      oc.Resolution,
			Kernel:          oc.Kernel,
			Clip:            oc.Clip,
			Composite:       oc.Composite,
			ArchiveTemplate: oc.ArchiveTemplate,
			SingleArchive:   oc.SingleArchive,
		},
		PollDelay:   e.cfg.Orchestrator.PollDelay,
		MaxAttempts: e.cfg.Orchestrator.MaxAttempts,
		Concurrency: e.cfg.Orchestrator.Concurrency,
		Tolerance:   e.cfg.CoverageTolerance,
		OutDir:      e.cfg.ImagesDir(),
		Overwrite:   e.cfg.Orchestrator.Overwrite,
		RunID:       e.runID,
		Store:       store,
		Events:      events,
		Logger:      e.log,
	}), nil
}
