package main

import (
	"context"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/mohammed-shakir/planet-pipeline/internal/core/server"
	"github.com/mohammed-shakir/planet-pipeline/internal/metrics"
)

var (
	revision  = ""
	branch    = ""
	buildDate = ""
)

func serveAction(ctx context.Context, c *cli.Context) error {
	ctx, e, err := setup(ctx, c, "ops", false)
	if err != nil {
		return err
	}
	defer e.close()

	store, checks, err := e.store(ctx)
	if err != nil {
		return err
	}

	prov := metrics.Init(metrics.Config{Build: metrics.BuildInfo{
		Version:   version,
		Revision:  revision,
		Branch:    branch,
		BuildDate: buildDate,
	}})
	if run := c.String("run"); run != "" {
		prov.Register(metrics.NewJobsCollector(store, run))
	}

	addr := c.String("addr")
	if addr == "" {
		addr = e.cfg.OpsAddr
	}
	if addr == "" {
		addr = ":9090"
	}
	return server.Run(ctx, addr, e.log, server.Deps{
		Store:   store,
		Metrics: prov,
		Checks:  checks,
	})
}
