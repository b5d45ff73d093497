package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func scrape(t *testing.T) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandler_Smoke(t *testing.T) {
	ObserveHTTP("GET", "/healthz", 200, 0.001)

	body := scrape(t)
	if !strings.Contains(body, "http_requests_total") {
		t.Fatalf("metrics payload did not contain expected metric names; got:\n%s", body)
	}
}

func TestPipelineMetrics_Labels(t *testing.T) {
	ObserveUpstreamLatency("planet_search", nil, 0.2)
	ObserveUpstreamLatency("planet_order_create", errors.New("boom"), 0.1)
	ObserveFootprintCache(true)
	ObserveFootprintCache(false)
	ObserveDayCoverage(87.5, 0.003)
	IncOrderTransition("succeeded")
	ObserveOrderPolls(4)

	body := scrape(t)
	for _, want := range []string{
		`upstream_latency_seconds_bucket{outcome="ok",upstream="planet_search"`,
		`upstream_latency_seconds_bucket{outcome="error",upstream="planet_order_create"`,
		`footprint_cache_results_total{outcome="hit"} `,
		`footprint_cache_results_total{outcome="miss"} `,
		`day_coverage_percent_bucket`,
		`order_job_transitions_total{state="succeeded"} `,
		`order_poll_attempts_bucket`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
}
