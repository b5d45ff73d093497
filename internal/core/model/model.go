// Package model defines core domain types shared across the pipeline.
package model

import (
	"encoding/json"
	"time"

	"github.com/paulmach/orb"
)

const (
	DayLayout     = "2006-01-02"
	CompactLayout = "20060102"
)

// Scene is one catalog item returned by a search.
type Scene struct {
	ID           string
	Acquired     time.Time
	Footprint    orb.Geometry
	FootprintCRS int
	ItemType     string
	Quality      string
	Instrument   string
	SatelliteID  string
	CloudCover   float64
	ClearPercent float64
	ViewAngle    float64

	// Raw is the provider's feature as received.
	Raw json.RawMessage
}

// Day is the UTC calendar day of acquisition.
func (s Scene) Day() time.Time {
	return Day(s.Acquired)
}

func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayRecord summarises one acquisition day.
type DayRecord struct {
	Date            time.Time `json:"-"`
	SceneIDs        []string  `json:"scene_ids"`
	SceneCount      int       `json:"scene_count"`
	CoveragePercent float64   `json:"coverage_percent"`
	GapCells        []string  `json:"gap_cells,omitempty"`
}

func (d DayRecord) Key() string { return d.Date.Format(DayLayout) }

// Compact is the date without separators, used in order and archive names.
func (d DayRecord) Compact() string { return d.Date.Format(CompactLayout) }

// Meets reports whether coverage reaches threshold, allowing tol below it.
func (d DayRecord) Meets(threshold, tol float64) bool {
	return d.CoveragePercent >= threshold-tol
}

func (d DayRecord) MarshalJSON() ([]byte, error) {
	type alias DayRecord
	return json.Marshal(struct {
		Date string `json:"date"`
		alias
	}{Date: d.Key(), alias: alias(d)})
}
