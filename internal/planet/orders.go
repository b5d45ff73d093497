package planet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/mohammed-shakir/planet-pipeline/internal/core/observability"
	"github.com/mohammed-shakir/planet-pipeline/pkg/planetreq/order"
)

// Order states reported by the Orders API.
const (
	OrderQueued    = "queued"
	OrderRunning   = "running"
	OrderSuccess   = "success"
	OrderPartial   = "partial"
	OrderFailed    = "failed"
	OrderCancelled = "cancelled"
)

type Result struct {
	Name      string `json:"name"`
	Location  string `json:"location"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

type Order struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	State      string   `json:"state"`
	ErrorHints []string `json:"error_hints,omitempty"`
	Links      struct {
		Results []Result `json:"results"`
	} `json:"_links"`
}

// Terminal reports whether the provider has stopped working on the order.
func (o Order) Terminal() bool {
	switch o.State {
	case OrderSuccess, OrderPartial, OrderFailed, OrderCancelled:
		return true
	}
	return false
}

// Deliverable reports whether the order has results to download.
func (o Order) Deliverable() bool {
	return o.State == OrderSuccess || o.State == OrderPartial
}

func (c *Client) CreateOrder(ctx context.Context, req order.Request) (Order, error) {
	if !req.Submittable() {
		return Order{}, &RemoteClientError{Op: "order_create", Err: errors.New("order has no products")}
	}
	var out Order
	if err := c.do(ctx, "order_create", http.MethodPost, c.endpoint(ordersPath, nil), req, &out); err != nil {
		return Order{}, err
	}
	if out.ID == "" {
		return Order{}, &RemoteAPIError{Op: "order_create", Err: errors.New("response without order id")}
	}
	return out, nil
}

func (c *Client) OrderStatus(ctx context.Context, id string) (Order, error) {
	if id == "" {
		return Order{}, &RemoteClientError{Op: "order_status", Err: errors.New("empty order id")}
	}
	var out Order
	if err := c.do(ctx, "order_status", http.MethodGet, c.endpoint(ordersPath+"/"+url.PathEscape(id), nil), nil, &out); err != nil {
		return Order{}, err
	}
	return out, nil
}

// DownloadOrder writes every result of a delivered order under dir and
// returns the local paths. Existing files are kept unless overwrite is set.
func (c *Client) DownloadOrder(ctx context.Context, id, dir string, overwrite bool) ([]string, error) {
	o, err := c.OrderStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.Deliverable() {
		return nil, &RemoteClientError{Op: "order_download", Err: fmt.Errorf("order %s is %s", id, o.State)}
	}

	paths := make([]string, 0, len(o.Links.Results))
	written := 0
	for _, r := range o.Links.Results {
		dest, err := resultPath(dir, r.Name)
		if err != nil {
			return paths, &RemoteAPIError{Op: "order_download", Err: err}
		}
		if !overwrite {
			if _, err := os.Stat(dest); err == nil {
				c.log.DebugContext(ctx, "result exists, skipping", "path", dest)
				paths = append(paths, dest)
				continue
			}
		}
		if err := c.fetch(ctx, r.Location, dest); err != nil {
			return paths, err
		}
		written++
		paths = append(paths, dest)
	}
	observability.AddDownloadedFiles(written)
	c.log.InfoContext(ctx, "order downloaded", "order_id", id, "files", len(paths), "written", written)
	return paths, nil
}

// resultPath keeps a provider supplied name inside dir.
func resultPath(dir, name string) (string, error) {
	if name == "" {
		return "", errors.New("result without name")
	}
	dest := filepath.Join(dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(dir, dest)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("result name %q escapes %s", name, dir)
	}
	return dest, nil
}

// fetch streams location into a temporary file next to dest and renames it.
func (c *Client) fetch(ctx context.Context, location, dest string) error {
	if location == "" {
		return &RemoteAPIError{Op: "order_download", Err: fmt.Errorf("no location for %s", filepath.Base(dest))}
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dest), err)
	}

	resp, err := c.send(ctx, "order_download", http.MethodGet, location, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".part-*")
	if err != nil {
		return fmt.Errorf("temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &RemoteAPIError{Op: "order_download", Err: fmt.Errorf("stream %s: %w", filepath.Base(dest), err)}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", dest, err)
	}
	return nil
}
