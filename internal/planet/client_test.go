package planet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohammed-shakir/planet-pipeline/pkg/planetreq/filter"
	"github.com/mohammed-shakir/planet-pipeline/pkg/planetreq/order"
)

func feature(id, acquired string) string {
	return fmt.Sprintf(`{"type":"Feature","id":%q,
		"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]},
		"properties":{"acquired":%q,"item_type":"PSScene","cloud_cover":0.05,"clear_percent":97}}`, id, acquired)
}

func newClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := New(srv.URL, "secret", WithHTTPClient(srv.Client()), WithPageSize(2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("://bad", "k"); err == nil {
		t.Fatal("expected error for bad url")
	}
	_, err := New("https://api.planet.com", "")
	var ce *RemoteClientError
	if !errors.As(err, &ce) {
		t.Fatalf("missing key: want RemoteClientError, got %v", err)
	}
}

func TestSearch_CreatesAndFollowsPages(t *testing.T) {
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("POST /data/v1/searches", func(w http.ResponseWriter, r *http.Request) {
		if user, _, ok := r.BasicAuth(); !ok || user != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body struct {
			Name      string          `json:"name"`
			ItemTypes []string        `json:"item_types"`
			Filter    json.RawMessage `json:"filter"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if body.Name != "site" || len(body.ItemTypes) != 1 || !strings.Contains(string(body.Filter), "AndFilter") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"id":"s1","name":"site","item_types":["PSScene"]}`))
	})
	mux.HandleFunc("GET /data/v1/searches/s1/results", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("_page_size") != "2" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = fmt.Fprintf(w, `{"type":"FeatureCollection","features":[%s,%s],"_links":{"_next":%q}}`,
			feature("a", "2023-01-15T18:00:01.5Z"),
			feature("b", "2023-01-15T23:30:00-02:00"),
			srv.URL+"/page2")
	})
	mux.HandleFunc("GET /page2", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `{"type":"FeatureCollection","features":[%s],"_links":{}}`,
			feature("c", "2023-01-16T10:00:00Z"))
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	spec, err := filter.New(filter.And).AddCloudCover(0, 0.1, true).Build()
	if err != nil {
		t.Fatalf("filter: %v", err)
	}

	ss, scenes, err := newClient(t, srv).Search(context.Background(), "site", spec, []string{"PSScene"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if ss.ID != "s1" {
		t.Fatalf("search id: got %q", ss.ID)
	}
	if len(scenes) != 3 {
		t.Fatalf("scenes: got %d, want 3", len(scenes))
	}
	if got := scenes[1].Acquired; got.Location() != time.UTC || got.Day() != 16 {
		t.Fatalf("acquired not normalised to UTC: %v", got)
	}
	if scenes[0].CloudCover != 0.05 || scenes[0].ClearPercent != 97 || scenes[0].ItemType != "PSScene" {
		t.Fatalf("properties: %+v", scenes[0])
	}
	if scenes[0].Footprint == nil || scenes[0].Footprint.GeoJSONType() != "Polygon" {
		t.Fatalf("footprint: %v", scenes[0].Footprint)
	}
}

func TestErrors_StatusClassification(t *testing.T) {
	status := http.StatusTooManyRequests
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"message":"slow down"}`))
	}))
	defer srv.Close()
	c := newClient(t, srv)

	_, err := c.OrderStatus(context.Background(), "o1")
	var ae *RemoteAPIError
	if !errors.As(err, &ae) {
		t.Fatalf("want RemoteAPIError, got %T %v", err, err)
	}
	if !ae.RateLimited() || !ae.Temporary() || !IsTemporary(err) {
		t.Fatalf("429 should be rate limited and temporary: %+v", ae)
	}
	if !strings.Contains(ae.Body, "slow down") {
		t.Fatalf("body snippet missing: %q", ae.Body)
	}

	status = http.StatusBadRequest
	_, err = c.OrderStatus(context.Background(), "o1")
	if IsTemporary(err) {
		t.Fatalf("400 must not be temporary: %v", err)
	}
	if Kind(err) != "remote_api" {
		t.Fatalf("kind: %q", Kind(err))
	}

	status = http.StatusServiceUnavailable
	_, err = c.OrderStatus(context.Background(), "o1")
	if !IsTemporary(err) {
		t.Fatalf("503 should be temporary: %v", err)
	}
}

func TestErrors_CancelledIsNotTemporary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newClient(t, srv).OrderStatus(ctx, "o1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled in chain, got %v", err)
	}
	if IsTemporary(err) {
		t.Fatal("cancellation must not be retried")
	}
}

func TestCreateOrder(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["name"] != "SiteC_20230115" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"id":"o1","name":"SiteC_20230115","state":"queued"}`))
	}))
	defer srv.Close()
	c := newClient(t, srv)

	_, err := c.CreateOrder(context.Background(), order.Request{Name: "empty"})
	var ce *RemoteClientError
	if !errors.As(err, &ce) {
		t.Fatalf("empty order: want RemoteClientError, got %v", err)
	}
	if hits.Load() != 0 {
		t.Fatal("empty order must not reach the provider")
	}

	req, err := order.New("SiteC_20230115").AddProduct([]string{"x"}, "analytic_udm2", "PSScene").
		AddDeliveryConfig("zip", true, "").
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	o, err := c.CreateOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if o.ID != "o1" || o.State != OrderQueued || o.Terminal() {
		t.Fatalf("order: %+v", o)
	}
}

func downloadServer(t *testing.T, state, name string, downloads *atomic.Int32) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("GET /compute/ops/orders/v2/o1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `{"id":"o1","state":%q,"_links":{"results":[
			{"name":%q,"location":%q},
			{"name":"o1/manifest.json","location":%q}]}}`,
			state, name, srv.URL+"/dl/scene", srv.URL+"/dl/manifest")
	})
	mux.HandleFunc("GET /dl/{what}", func(w http.ResponseWriter, r *http.Request) {
		downloads.Add(1)
		_, _ = w.Write([]byte("payload-" + r.PathValue("what")))
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDownloadOrder_WritesThenSkipsExisting(t *testing.T) {
	var downloads atomic.Int32
	srv := downloadServer(t, OrderSuccess, "o1/PSScene/20230115_composite.tif", &downloads)
	c := newClient(t, srv)
	dir := t.TempDir()

	paths, err := c.DownloadOrder(context.Background(), "o1", dir, false)
	if err != nil {
		t.Fatalf("DownloadOrder: %v", err)
	}
	if len(paths) != 2 || downloads.Load() != 2 {
		t.Fatalf("paths=%v downloads=%d", paths, downloads.Load())
	}
	b, err := os.ReadFile(filepath.Join(dir, "o1", "PSScene", "20230115_composite.tif"))
	if err != nil || string(b) != "payload-scene" {
		t.Fatalf("file content %q err=%v", b, err)
	}
	leftovers, _ := filepath.Glob(filepath.Join(dir, "o1", "PSScene", ".part-*"))
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}

	if _, err := c.DownloadOrder(context.Background(), "o1", dir, false); err != nil {
		t.Fatalf("second DownloadOrder: %v", err)
	}
	if downloads.Load() != 2 {
		t.Fatalf("existing files were fetched again: %d", downloads.Load())
	}

	if _, err := c.DownloadOrder(context.Background(), "o1", dir, true); err != nil {
		t.Fatalf("overwrite DownloadOrder: %v", err)
	}
	if downloads.Load() != 4 {
		t.Fatalf("overwrite should refetch: %d", downloads.Load())
	}
}

func TestDownloadOrder_RejectsEscapingNames(t *testing.T) {
	var downloads atomic.Int32
	srv := downloadServer(t, OrderSuccess, "../outside.tif", &downloads)

	_, err := newClient(t, srv).DownloadOrder(context.Background(), "o1", t.TempDir(), false)
	var ae *RemoteAPIError
	if !errors.As(err, &ae) {
		t.Fatalf("want RemoteAPIError, got %v", err)
	}
	if downloads.Load() != 0 {
		t.Fatal("nothing should be fetched")
	}
}

func TestDownloadOrder_NotDeliverable(t *testing.T) {
	var downloads atomic.Int32
	srv := downloadServer(t, OrderFailed, "o1/a.tif", &downloads)

	_, err := newClient(t, srv).DownloadOrder(context.Background(), "o1", t.TempDir(), false)
	var ce *RemoteClientError
	if !errors.As(err, &ce) {
		t.Fatalf("want RemoteClientError, got %v", err)
	}
}

func TestParseScene_Errors(t *testing.T) {
	cases := map[string]string{
		"no id":       `{"type":"Feature","geometry":null,"properties":{"acquired":"2023-01-15T00:00:00Z"}}`,
		"no acquired": `{"type":"Feature","id":"a","geometry":null,"properties":{}}`,
		"not json":    `{`,
	}
	for name, raw := range cases {
		if _, err := ParseScene(json.RawMessage(raw)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestUpdateSearch_PutsFilterAndReruns(t *testing.T) {
	var puts atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /data/v1/searches/s9", func(w http.ResponseWriter, r *http.Request) {
		puts.Add(1)
		var body struct {
			Name      string          `json:"name"`
			ItemTypes []string        `json:"item_types"`
			Filter    json.RawMessage `json:"filter"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if body.Name != "site" || len(body.ItemTypes) != 1 || !strings.Contains(string(body.Filter), "clear_percent") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"id":"s9","name":"site","item_types":["PSScene"]}`))
	})
	mux.HandleFunc("POST /data/v1/searches", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("update must not create a new search")
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("GET /data/v1/searches/s9/results", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `{"type":"FeatureCollection","features":[%s],"_links":{}}`,
			feature("a", "2023-01-15T10:00:00Z"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	spec, err := filter.New(filter.And).AddClearPercent(80, 100, true).Build()
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	c := newClient(t, srv)

	ss, scenes, err := c.Research(context.Background(), "s9", "site", spec, []string{"PSScene"})
	if err != nil {
		t.Fatalf("Research: %v", err)
	}
	if ss.ID != "s9" || len(scenes) != 1 || puts.Load() != 1 {
		t.Fatalf("search=%+v scenes=%d puts=%d", ss, len(scenes), puts.Load())
	}

	var ce *RemoteClientError
	if _, err := c.UpdateSearch(context.Background(), "", "site", spec, []string{"PSScene"}); !errors.As(err, &ce) {
		t.Fatalf("empty id: want RemoteClientError, got %v", err)
	}
	if _, err := c.UpdateSearch(context.Background(), "s9", "site", spec, nil); !errors.As(err, &ce) {
		t.Fatalf("no item types: want RemoteClientError, got %v", err)
	}
}

func TestUpdateSearch_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	spec, _ := filter.New(filter.And).AddCloudCover(0, 0.1, true).Build()
	_, err := newClient(t, srv).UpdateSearch(context.Background(), "gone", "site", spec, []string{"PSScene"})
	var ae *RemoteAPIError
	if !errors.As(err, &ae) || ae.Status != http.StatusNotFound {
		t.Fatalf("want 404 RemoteAPIError, got %v", err)
	}
}
