package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mohammed-shakir/planet-pipeline/internal/core/observability"
	"github.com/mohammed-shakir/planet-pipeline/internal/jobstore"
)

func scrape(t *testing.T, p *Provider) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	return rr.Body.String()
}

func assertHasMetricLine(t *testing.T, body, metric string, wantLabels ...string) {
	t.Helper()
	for ln := range strings.SplitSeq(body, "\n") {
		if !strings.HasPrefix(ln, metric+"{") {
			continue
		}
		ok := true
		for _, s := range wantLabels {
			if !strings.Contains(ln, s) {
				ok = false
				break
			}
		}
		if ok && (len(ln) > 0 && ln[len(ln)-1] >= '0' && ln[len(ln)-1] <= '9') {
			return
		}
	}
	t.Fatalf("expected a %s line with labels %v; got:\n%s", metric, wantLabels, body)
}

func TestProvider_ServesDefaultAndOwnRegistry(t *testing.T) {
	p := Init(Config{Build: BuildInfo{Version: "test", Revision: "r", Branch: "b", BuildDate: "now"}})

	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "smoke"})
	p.Register(g)
	g.Set(42)
	if n := testutil.CollectAndCount(g); n == 0 {
		t.Fatalf("expected at least 1 sample from test_gauge, got %d", n)
	}

	observability.IncOrderTransition("created")

	body := scrape(t, p)
	if !strings.Contains(body, "go_goroutines") {
		t.Fatalf("expected go_goroutines in payload; got:\n%s", body)
	}
	if !strings.Contains(body, "test_gauge 42") {
		t.Fatalf("expected test_gauge in payload; got:\n%s", body)
	}
	assertHasMetricLine(t, body, "app_build_info", `version="test"`, `revision="r"`)
	assertHasMetricLine(t, body, "order_job_transitions_total", `state="created"`)
}

func TestJobsCollector_CountsStates(t *testing.T) {
	store := jobstore.NewMemory()
	ctx := context.Background()
	for _, r := range []jobstore.Record{
		{RunID: "run1", Date: "2023-01-15", State: "succeeded"},
		{RunID: "run1", Date: "2023-01-16", State: "succeeded"},
		{RunID: "run1", Date: "2023-01-17", State: "failed"},
		{RunID: "other", Date: "2023-01-17", State: "failed"},
	} {
		if err := store.Put(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	p := Init(Config{})
	p.Register(NewJobsCollector(store, "run1"))

	body := scrape(t, p)
	assertHasMetricLine(t, body, "order_jobs", `run_id="run1"`, `state="succeeded"`)
	if !strings.Contains(body, `order_jobs{run_id="run1",state="succeeded"} 2`) {
		t.Fatalf("succeeded count wrong:\n%s", body)
	}
	if !strings.Contains(body, `order_jobs{run_id="run1",state="failed"} 1`) {
		t.Fatalf("failed count wrong:\n%s", body)
	}
	if !strings.Contains(body, `order_jobs_scrape_error{run_id="run1"} 0`) {
		t.Fatalf("scrape error gauge missing:\n%s", body)
	}
}
