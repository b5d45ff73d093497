package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammed-shakir/planet-pipeline/internal/jobstore"
)

// JobsCollector reports how many jobs of one run sit in each state, read
// from the job store at scrape time.
type JobsCollector struct {
	store   jobstore.Store
	runID   string
	timeout time.Duration
	desc    *prometheus.Desc
	errDesc *prometheus.Desc
}

func NewJobsCollector(store jobstore.Store, runID string) *JobsCollector {
	return &JobsCollector{
		store:   store,
		runID:   runID,
		timeout: 2 * time.Second,
		desc: prometheus.NewDesc(
			"order_jobs",
			"Order jobs of a run by last known state.",
			[]string{"state"}, prometheus.Labels{"run_id": runID},
		),
		errDesc: prometheus.NewDesc(
			"order_jobs_scrape_error",
			"1 if the job store could not be read during the scrape.",
			nil, prometheus.Labels{"run_id": runID},
		),
	}
}

func (c *JobsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
	ch <- c.errDesc
}

func (c *JobsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	recs, err := c.store.List(ctx, c.runID)
	if err != nil {
		ch <- prometheus.MustNewConstMetric(c.errDesc, prometheus.GaugeValue, 1)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.errDesc, prometheus.GaugeValue, 0)

	counts := map[string]int{}
	for _, r := range recs {
		counts[r.State]++
	}
	for state, n := range counts {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(n), state)
	}
}
