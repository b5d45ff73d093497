package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests served by the ops server.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of ops HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of imagery provider calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		},
		[]string{"upstream", "outcome"},
	)

	footprintCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "footprint_cache_results_total",
			Help: "Projected footprint cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	dayCoverage = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "day_coverage_percent",
			Help:    "Coverage of the AOI per acquisition day.",
			Buckets: prometheus.LinearBuckets(10, 10, 10),
		},
	)

	coverageSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coverage_compute_seconds",
			Help:    "Time to compute one day's coverage.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
	)

	searchScenes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "search_scenes_total",
			Help: "Scenes returned by catalog searches.",
		},
	)

	orderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_job_transitions_total",
			Help: "Order job state transitions.",
		},
		[]string{"state"},
	)

	orderPollAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "order_poll_attempts",
			Help:    "Status queries issued per finished order job.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	orderDownloadedFiles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "order_downloaded_files_total",
			Help: "Files written by order downloads.",
		},
	)

	jobStoreOpSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_store_op_seconds",
			Help:    "Latency of job store operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
		[]string{"op", "result"},
	)

	eventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "job_events_dropped_total",
			Help: "Job events dropped because the publish queue was full.",
		},
	)
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, err error, durationSeconds float64) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	upstreamLatencySeconds.WithLabelValues(upstream, outcome).Observe(durationSeconds)
}

func ObserveFootprintCache(hit bool) {
	if hit {
		footprintCache.WithLabelValues("hit").Inc()
		return
	}
	footprintCache.WithLabelValues("miss").Inc()
}

func ObserveDayCoverage(percent, durationSeconds float64) {
	dayCoverage.Observe(percent)
	coverageSeconds.Observe(durationSeconds)
}

func AddSearchScenes(n int) {
	if n > 0 {
		searchScenes.Add(float64(n))
	}
}

func IncOrderTransition(state string) {
	orderTransitions.WithLabelValues(state).Inc()
}

func ObserveOrderPolls(attempts int) {
	orderPollAttempts.Observe(float64(attempts))
}

func AddDownloadedFiles(n int) {
	if n > 0 {
		orderDownloadedFiles.Add(float64(n))
	}
}

func ObserveStoreOp(op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	jobStoreOpSeconds.WithLabelValues(op, result).Observe(durationSeconds)
}

func IncEventsDropped() {
	eventsDropped.Inc()
}
