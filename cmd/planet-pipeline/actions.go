package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/mohammed-shakir/planet-pipeline/internal/core/model"
	"github.com/mohammed-shakir/planet-pipeline/internal/geo/aoi"
	"github.com/mohammed-shakir/planet-pipeline/internal/pipeline"
)

const defaultWindow = 30 * 24 * time.Hour

// request reads the AOI and date window from the command flags.
func request(c *cli.Context, e *env) (pipeline.Request, error) {
	path := c.String("aoi")
	if path == "" {
		return pipeline.Request{}, errors.New("--aoi is required")
	}
	g, err := aoi.Read(path)
	if err != nil {
		return pipeline.Request{}, err
	}

	end := model.Day(time.Now())
	if v := c.String("end"); v != "" {
		if end, err = time.Parse(model.DayLayout, v); err != nil {
			return pipeline.Request{}, fmt.Errorf("--end: %w", err)
		}
	}
	start := end.Add(-defaultWindow)
	if v := c.String("start"); v != "" {
		if start, err = time.Parse(model.DayLayout, v); err != nil {
			return pipeline.Request{}, fmt.Errorf("--start: %w", err)
		}
	}
	if start.After(end) {
		return pipeline.Request{}, fmt.Errorf("start %s is after end %s", start.Format(model.DayLayout), end.Format(model.DayLayout))
	}

	name := c.String("name")
	if name == "" {
		name = e.cfg.Search.Name
	}
	if name == "" {
		name = aoi.Name(path)
	}
	return pipeline.Request{
		Name:  name,
		AOI:   g,
		Start: start,
		// the end day is inclusive
		End:      end.Add(24*time.Hour - time.Nanosecond),
		SearchID: c.String("search-id"),
	}, nil
}

func newPipeline(ctx context.Context, e *env, withOrders bool) (*pipeline.Pipeline, error) {
	client, err := e.planet()
	if err != nil {
		return nil, err
	}
	agg, err := e.aggregator()
	if err != nil {
		return nil, err
	}
	opts, err := pipeline.OptionsFromConfig(e.cfg)
	if err != nil {
		return nil, err
	}
	opts.Logger = e.log

	var orders pipeline.Orderer
	if withOrders {
		o, err := e.orchestrator(ctx, client)
		if err != nil {
			return nil, err
		}
		orders = o
	}
	return pipeline.New(client, agg, orders, opts)
}

func searchAction(ctx context.Context, c *cli.Context) error {
	ctx, e, err := setup(ctx, c, "search", true)
	if err != nil {
		return err
	}
	defer e.close()

	req, err := request(c, e)
	if err != nil {
		return err
	}
	p, err := newPipeline(ctx, e, false)
	if err != nil {
		return err
	}
	rep, err := p.Search(ctx, req)
	if err != nil {
		return err
	}

	var accepted []model.DayRecord
	for _, d := range rep.Days {
		if d.Meets(e.cfg.CoverageThreshold, e.cfg.CoverageTolerance) {
			accepted = append(accepted, d)
		}
	}
	fmt.Printf("search %s: %d scenes, %d days, audit %s\n", rep.SearchID, rep.Scenes, len(rep.Days), rep.AuditPath)
	return pipeline.WriteDays(os.Stdout, rep.Days, accepted)
}

func runAction(ctx context.Context, c *cli.Context) error {
	ctx, e, err := setup(ctx, c, "run", true)
	if err != nil {
		return err
	}
	defer e.close()

	req, err := request(c, e)
	if err != nil {
		return err
	}
	if !c.Bool("yes") {
		req.Confirm = func(days, accepted []model.DayRecord) bool {
			return confirm(os.Stdin, os.Stdout, days, accepted)
		}
	}
	p, err := newPipeline(ctx, e, true)
	if err != nil {
		return err
	}

	rep, err := p.Run(ctx, req)
	if errors.Is(err, pipeline.ErrNotConfirmed) {
		fmt.Println("aborted")
		return nil
	}
	if err != nil {
		return err
	}
	if rep.Accepted == 0 {
		fmt.Printf("no day reaches %.2f%% coverage\n", rep.Threshold)
		return nil
	}
	if err := pipeline.WriteOutcomes(os.Stdout, rep); err != nil {
		return err
	}
	if !rep.OK() {
		return cli.NewExitError(fmt.Sprintf("%d of %d orders failed", len(rep.Failed()), len(rep.Outcomes)), 1)
	}
	return nil
}

// confirm prints the day table and asks before placing orders.
func confirm(in io.Reader, out io.Writer, days, accepted []model.DayRecord) bool {
	_ = pipeline.WriteDays(out, days, accepted)
	fmt.Fprintf(out, "place %d orders? [y/N] ", len(accepted))
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func listSearchesAction(ctx context.Context, c *cli.Context) error {
	ctx, e, err := setup(ctx, c, "searches", false)
	if err != nil {
		return err
	}
	defer e.close()

	client, err := e.planet()
	if err != nil {
		return err
	}
	list, err := client.ListSearches(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tITEM TYPES\tCREATED")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.Name, strings.Join(s.ItemTypes, ","), s.Created)
	}
	return tw.Flush()
}

func deleteSearchesAction(ctx context.Context, c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("at least one search id is required")
	}
	ctx, e, err := setup(ctx, c, "searches", false)
	if err != nil {
		return err
	}
	defer e.close()

	client, err := e.planet()
	if err != nil {
		return err
	}
	var errs []error
	for _, id := range c.Args() {
		if err := client.DeleteSearch(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Println("deleted", id)
	}
	return errors.Join(errs...)
}
