// Package orchestrator turns qualifying day records into provider orders and
// drives each order through create, poll and download concurrently.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/planet-pipeline/internal/core/model"
	"github.com/mohammed-shakir/planet-pipeline/internal/core/observability"
	"github.com/mohammed-shakir/planet-pipeline/internal/geo/crs"
	"github.com/mohammed-shakir/planet-pipeline/internal/jobevents"
	"github.com/mohammed-shakir/planet-pipeline/internal/jobstore"
	"github.com/mohammed-shakir/planet-pipeline/internal/logger"
	"github.com/mohammed-shakir/planet-pipeline/internal/planet"
	"github.com/mohammed-shakir/planet-pipeline/pkg/planetreq/order"
)

const DefaultPollDelay = 11 * time.Second

// ErrPollTimeout means an order stayed non-terminal for MaxAttempts status queries.
var ErrPollTimeout = errors.New("order poll attempts exhausted")

type Gateway interface {
	CreateOrder(ctx context.Context, req order.Request) (planet.Order, error)
	OrderStatus(ctx context.Context, id string) (planet.Order, error)
	DownloadOrder(ctx context.Context, id, dir string, overwrite bool) ([]string, error)
}

type State string

const (
	Created    State = "created"
	Submitting State = "submitting"
	Polling    State = "polling"
	Succeeded  State = "succeeded"
	Failed     State = "failed"
	Cancelled  State = "cancelled"
)

func (s State) Terminal() bool {
	return s == Succeeded || s == Failed || s == Cancelled
}

// Template is the order shape applied to every accepted day.
type Template struct {
	NamePrefix    string
	ProductBundle string
	ItemType      string
	OrderType     string

	Reproject  bool
	Resolution float64 // 0 keeps the native resolution
	Kernel     string
	Clip       bool
	Composite  bool

	ArchiveTemplate string
	SingleArchive   bool
}

type Options struct {
	Template    Template
	PollDelay   time.Duration
	MaxAttempts int // 0 polls until terminal
	Concurrency int // 0 runs every job at once
	Tolerance   float64
	OutDir      string
	Overwrite   bool
	RunID       string

	Store  jobstore.Store
	Events jobevents.Sink
	Logger *slog.Logger
}

// Job is one day's order as it moves through the state machine. Each job is
// owned by a single goroutine.
type Job struct {
	Date        time.Time
	Request     order.Request
	Fingerprint uint64
	OrderID     string
	State       State
	Paths       []string
	Attempts    int
	Err         error
}

type Outcome struct {
	Date      time.Time
	OrderName string
	OrderID   string
	State     State
	Paths     []string
	Attempts  int
	Err       error
}

func (o Outcome) Key() string { return o.Date.Format(model.DayLayout) }

type Orchestrator struct {
	gw     Gateway
	opts   Options
	events jobevents.Sink
	log    *slog.Logger
}

func New(gw Gateway, opts Options) *Orchestrator {
	if opts.PollDelay <= 0 {
		opts.PollDelay = DefaultPollDelay
	}
	if opts.Template.NamePrefix == "" {
		opts.Template.NamePrefix = "order"
	}
	events := opts.Events
	if events == nil {
		events = jobevents.Nop{}
	}
	l := opts.Logger
	if l == nil {
		l = slog.Default()
	}
	return &Orchestrator{gw: gw, opts: opts, events: events, log: l}
}

// Accepted returns the records meeting threshold, in input order.
func (o *Orchestrator) Accepted(records []model.DayRecord, threshold float64) []model.DayRecord {
	out := make([]model.DayRecord, 0, len(records))
	for _, r := range records {
		if r.Meets(threshold, o.opts.Tolerance) {
			out = append(out, r)
		}
	}
	return out
}

// BuildRequest renders the template for one day.
func (o *Orchestrator) BuildRequest(rec model.DayRecord, aoi orb.Geometry, target crs.CRS) (order.Request, error) {
	t := o.opts.Template
	b := order.New(t.NamePrefix+"_"+rec.Compact()).
		AddProduct(rec.SceneIDs, t.ProductBundle, t.ItemType)
	if t.Reproject {
		var res *float64
		if t.Resolution > 0 {
			r := t.Resolution
			res = &r
		}
		b.AddReprojectTool(target.Code, res, t.Kernel)
	}
	if t.Clip {
		b.AddClipTool(aoi)
	}
	if t.Composite {
		b.AddCompositeTool()
	}
	archive := ""
	if t.ArchiveTemplate != "" {
		archive = order.ExpandToken(t.ArchiveTemplate, rec.Compact())
	}
	b.AddDeliveryConfig(order.DefaultArchiveType, t.SingleArchive, archive)
	if t.OrderType != "" {
		b.SetOrderType(t.OrderType)
	}
	return b.Build()
}

// RunOrders places one order per accepted day and waits for all of them.
// One job's failure never stops its siblings; outcomes follow input order.
func (o *Orchestrator) RunOrders(ctx context.Context, records []model.DayRecord, threshold float64, aoi orb.Geometry, target crs.CRS) []Outcome {
	accepted := o.Accepted(records, threshold)
	jobs := make([]*Job, len(accepted))

	var g errgroup.Group
	if o.opts.Concurrency > 0 {
		g.SetLimit(o.opts.Concurrency)
	}
	for i, rec := range accepted {
		j := &Job{Date: rec.Date}
		jobs[i] = j
		g.Go(func() error {
			jctx := logger.WithOrderDate(ctx, rec.Key())
			o.run(jctx, j, rec, aoi, target)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Outcome, len(jobs))
	for i, j := range jobs {
		out[i] = Outcome{
			Date:      j.Date,
			OrderName: j.Request.Name,
			OrderID:   j.OrderID,
			State:     j.State,
			Paths:     j.Paths,
			Attempts:  j.Attempts,
			Err:       j.Err,
		}
	}
	return out
}

func (o *Orchestrator) run(ctx context.Context, j *Job, rec model.DayRecord, aoi orb.Geometry, target crs.CRS) {
	o.transition(ctx, j, Created)
	if err := ctx.Err(); err != nil {
		o.finish(ctx, j, err)
		return
	}

	req, err := o.BuildRequest(rec, aoi, target)
	if err != nil {
		o.finish(ctx, j, fmt.Errorf("build order for %s: %w", rec.Key(), err))
		return
	}
	j.Request = req
	if fp, err := req.Fingerprint(); err == nil {
		j.Fingerprint = fp
	}

	o.transition(ctx, j, Submitting)
	created, err := o.gw.CreateOrder(ctx, req)
	if err != nil {
		o.finish(ctx, j, fmt.Errorf("create order %s: %w", req.Name, err))
		return
	}
	j.OrderID = created.ID

	o.transition(ctx, j, Polling)
	final, err := o.poll(ctx, j)
	observability.ObserveOrderPolls(j.Attempts)
	if err != nil {
		o.finish(ctx, j, err)
		return
	}
	if !final.Deliverable() {
		reason := fmt.Errorf("order %s ended %s", j.OrderID, final.State)
		if len(final.ErrorHints) > 0 {
			reason = fmt.Errorf("%w: %s", reason, strings.Join(final.ErrorHints, "; "))
		}
		o.finish(ctx, j, reason)
		return
	}

	paths, err := o.gw.DownloadOrder(ctx, j.OrderID, o.opts.OutDir, o.opts.Overwrite)
	if err != nil {
		o.finish(ctx, j, fmt.Errorf("download order %s: %w", j.OrderID, err))
		return
	}
	j.Paths = paths
	o.transition(ctx, j, Succeeded)
}

// poll queries status until the order is terminal, sleeping PollDelay
// between queries. Transient errors count as attempts.
func (o *Orchestrator) poll(ctx context.Context, j *Job) (planet.Order, error) {
	for {
		j.Attempts++
		st, err := o.gw.OrderStatus(ctx, j.OrderID)
		switch {
		case err == nil && st.Terminal():
			return st, nil
		case err == nil:
			o.log.DebugContext(ctx, "order pending", "order_id", j.OrderID, "remote_state", st.State, "attempt", j.Attempts)
		case ctx.Err() != nil:
			return planet.Order{}, ctx.Err()
		case planet.IsTemporary(err):
			o.log.WarnContext(ctx, "order status failed, retrying", "order_id", j.OrderID, "attempt", j.Attempts, "error", err)
		default:
			return planet.Order{}, fmt.Errorf("poll order %s: %w", j.OrderID, err)
		}

		if o.opts.MaxAttempts > 0 && j.Attempts >= o.opts.MaxAttempts {
			return planet.Order{}, fmt.Errorf("order %s after %d attempts: %w", j.OrderID, j.Attempts, ErrPollTimeout)
		}

		t := time.NewTimer(o.opts.PollDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return planet.Order{}, ctx.Err()
		case <-t.C:
		}
	}
}

// finish settles a job as cancelled when ctx ended it, failed otherwise.
func (o *Orchestrator) finish(ctx context.Context, j *Job, err error) {
	j.Paths = nil
	if cerr := ctx.Err(); cerr != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, cerr)) {
		j.Err = cerr
		o.transition(ctx, j, Cancelled)
		return
	}
	j.Err = err
	o.transition(ctx, j, Failed)
}

func (o *Orchestrator) transition(ctx context.Context, j *Job, s State) {
	j.State = s
	date := j.Date.Format(model.DayLayout)
	now := time.Now().UTC()
	observability.IncOrderTransition(string(s))

	errText := ""
	if j.Err != nil {
		errText = j.Err.Error()
	}

	if o.opts.Store != nil {
		rec := jobstore.Record{
			RunID:     o.opts.RunID,
			Date:      date,
			OrderName: j.Request.Name,
			OrderID:   j.OrderID,
			State:     string(s),
			Attempts:  j.Attempts,
			Files:     j.Paths,
			Error:     errText,
			ErrorKind: planet.Kind(j.Err),
			UpdatedAt: now,
		}
		if err := o.opts.Store.Put(context.WithoutCancel(ctx), rec); err != nil {
			o.log.WarnContext(ctx, "job store write failed", "date", date, "error", err)
		}
	}

	o.events.Publish(jobevents.Event{
		RunID:     o.opts.RunID,
		Date:      date,
		OrderName: j.Request.Name,
		OrderID:   j.OrderID,
		State:     string(s),
		Attempts:  j.Attempts,
		Error:     errText,
		TS:        now,
	})

	attrs := []any{"date", date, "order_id", j.OrderID, "state", string(s)}
	switch s {
	case Failed:
		o.log.ErrorContext(ctx, "order job failed", append(attrs, "error", errText)...)
	case Cancelled:
		o.log.WarnContext(ctx, "order job cancelled", attrs...)
	case Succeeded:
		o.log.InfoContext(ctx, "order job succeeded", append(attrs, "files", len(j.Paths), "attempts", j.Attempts)...)
	default:
		o.log.InfoContext(ctx, "order job transition", attrs...)
	}
}
