package planet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/planet-pipeline/internal/core/model"
	"github.com/mohammed-shakir/planet-pipeline/internal/core/observability"
	"github.com/mohammed-shakir/planet-pipeline/pkg/planetreq/filter"
)

// SavedSearch is a search stored on the provider side.
type SavedSearch struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	ItemTypes []string        `json:"item_types"`
	Created   string          `json:"created,omitempty"`
	Filter    json.RawMessage `json:"filter,omitempty"`
}

type searchRequest struct {
	Name      string      `json:"name"`
	ItemTypes []string    `json:"item_types"`
	Filter    filter.Spec `json:"filter"`
}

type page struct {
	Features []json.RawMessage `json:"features"`
	Links    struct {
		Next string `json:"_next"`
	} `json:"_links"`
}

func (c *Client) CreateSearch(ctx context.Context, name string, spec filter.Spec, itemTypes []string) (SavedSearch, error) {
	if len(itemTypes) == 0 {
		return SavedSearch{}, &RemoteClientError{Op: "search_create", Err: errors.New("no item types")}
	}
	var out SavedSearch
	err := c.do(ctx, "search_create", http.MethodPost, c.endpoint(searchesPath, nil),
		searchRequest{Name: name, ItemTypes: itemTypes, Filter: spec}, &out)
	if err != nil {
		return SavedSearch{}, err
	}
	if out.ID == "" {
		return SavedSearch{}, &RemoteAPIError{Op: "search_create", Err: errors.New("response without search id")}
	}
	return out, nil
}

// UpdateSearch replaces the name, item types and filter of a saved search.
func (c *Client) UpdateSearch(ctx context.Context, id, name string, spec filter.Spec, itemTypes []string) (SavedSearch, error) {
	if id == "" {
		return SavedSearch{}, &RemoteClientError{Op: "search_update", Err: errors.New("empty search id")}
	}
	if len(itemTypes) == 0 {
		return SavedSearch{}, &RemoteClientError{Op: "search_update", Err: errors.New("no item types")}
	}
	var out SavedSearch
	err := c.do(ctx, "search_update", http.MethodPut, c.endpoint(searchesPath+"/"+url.PathEscape(id), nil),
		searchRequest{Name: name, ItemTypes: itemTypes, Filter: spec}, &out)
	if err != nil {
		return SavedSearch{}, err
	}
	if out.ID == "" {
		out.ID = id
	}
	return out, nil
}

// RunSearch fetches every result page of a saved search.
func (c *Client) RunSearch(ctx context.Context, id string) ([]model.Scene, error) {
	if id == "" {
		return nil, &RemoteClientError{Op: "search_run", Err: errors.New("empty search id")}
	}
	q := url.Values{"_page_size": {strconv.Itoa(c.pageSize)}}
	next := c.endpoint(searchesPath+"/"+url.PathEscape(id)+"/results", q)

	var scenes []model.Scene
	for next != "" {
		var p page
		if err := c.do(ctx, "search_run", http.MethodGet, next, nil, &p); err != nil {
			return nil, err
		}
		for i, raw := range p.Features {
			s, err := ParseScene(raw)
			if err != nil {
				return nil, &RemoteAPIError{Op: "search_run", Err: fmt.Errorf("feature %d: %w", len(scenes)+i, err)}
			}
			scenes = append(scenes, s)
		}
		if len(p.Features) == 0 {
			break
		}
		next = p.Links.Next
	}
	observability.AddSearchScenes(len(scenes))
	return scenes, nil
}

// Search creates a saved search named name and returns all its results.
func (c *Client) Search(ctx context.Context, name string, spec filter.Spec, itemTypes []string) (SavedSearch, []model.Scene, error) {
	ss, err := c.CreateSearch(ctx, name, spec, itemTypes)
	if err != nil {
		return SavedSearch{}, nil, err
	}
	scenes, err := c.RunSearch(ctx, ss.ID)
	if err != nil {
		return ss, nil, err
	}
	c.log.InfoContext(ctx, "search finished", "search_id", ss.ID, "name", ss.Name, "scenes", len(scenes))
	return ss, scenes, nil
}

// Research updates the saved search id in place and returns all its results.
func (c *Client) Research(ctx context.Context, id, name string, spec filter.Spec, itemTypes []string) (SavedSearch, []model.Scene, error) {
	ss, err := c.UpdateSearch(ctx, id, name, spec, itemTypes)
	if err != nil {
		return SavedSearch{}, nil, err
	}
	scenes, err := c.RunSearch(ctx, ss.ID)
	if err != nil {
		return ss, nil, err
	}
	c.log.InfoContext(ctx, "search refreshed", "search_id", ss.ID, "name", ss.Name, "scenes", len(scenes))
	return ss, scenes, nil
}

func (c *Client) ListSearches(ctx context.Context) ([]SavedSearch, error) {
	var out struct {
		Searches []SavedSearch `json:"searches"`
	}
	q := url.Values{"search_type": {"saved"}}
	if err := c.do(ctx, "search_list", http.MethodGet, c.endpoint(searchesPath, q), nil, &out); err != nil {
		return nil, err
	}
	return out.Searches, nil
}

func (c *Client) DeleteSearch(ctx context.Context, id string) error {
	if id == "" {
		return &RemoteClientError{Op: "search_delete", Err: errors.New("empty search id")}
	}
	return c.do(ctx, "search_delete", http.MethodDelete, c.endpoint(searchesPath+"/"+url.PathEscape(id), nil), nil, nil)
}

// ParseScene decodes one Data API feature.
func ParseScene(raw json.RawMessage) (model.Scene, error) {
	f, err := geojson.UnmarshalFeature(raw)
	if err != nil {
		return model.Scene{}, fmt.Errorf("decode feature: %w", err)
	}
	id, _ := f.ID.(string)
	if id == "" {
		return model.Scene{}, errors.New("feature without id")
	}
	acq := f.Properties.MustString("acquired", "")
	ts, err := time.Parse(time.RFC3339Nano, acq)
	if err != nil {
		return model.Scene{}, fmt.Errorf("scene %s acquired %q: %w", id, acq, err)
	}
	return model.Scene{
		ID:           id,
		Acquired:     ts.UTC(),
		Footprint:    f.Geometry,
		ItemType:     f.Properties.MustString("item_type", ""),
		Quality:      f.Properties.MustString("quality_category", ""),
		Instrument:   f.Properties.MustString("instrument", ""),
		SatelliteID:  f.Properties.MustString("satellite_id", ""),
		CloudCover:   f.Properties.MustFloat64("cloud_cover", 0),
		ClearPercent: f.Properties.MustFloat64("clear_percent", 0),
		ViewAngle:    f.Properties.MustFloat64("view_angle", 0),
		Raw:          append(json.RawMessage(nil), raw...),
	}, nil
}
