// Package filter builds Planet Data API search filters.
//
// A Builder appends leaf predicates under one combinator. Each Add call
// validates its own input; the first failure sticks on the builder, is
// visible through Err right away, and turns later Add calls into no-ops.
package filter

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/planet-pipeline/pkg/planetreq"
)

type Combinator string

const (
	And Combinator = "And"
	Or  Combinator = "Or"
)

type Kind int

const (
	DateRange Kind = iota + 1
	NumericRange
	StringSet
	Geometry
	Asset
	Permission
)

func (k Kind) String() string {
	switch k {
	case DateRange:
		return "DateRangeFilter"
	case NumericRange:
		return "RangeFilter"
	case StringSet:
		return "StringInFilter"
	case Geometry:
		return "GeometryFilter"
	case Asset:
		return "AssetFilter"
	case Permission:
		return "PermissionFilter"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Field names used by the convenience methods.
const (
	FieldAcquired     = "acquired"
	FieldCloudCover   = "cloud_cover"
	FieldClearPercent = "clear_percent"
	FieldViewAngle    = "view_angle"
	FieldInstrument   = "instrument"
	FieldQuality      = "quality_category"
	FieldItemType     = "item_type"
	FieldGeometry     = "geometry"

	PermissionDownload = "assets:download"
)

// Predicate is one leaf of a filter. Only the fields of its Kind are set.
type Predicate struct {
	Kind      Kind
	Field     string
	Inclusive bool

	Start, End time.Time
	Min, Max   float64
	Values     []string
	Geometry   orb.Geometry
}

func (p Predicate) clone() Predicate {
	cp := p
	cp.Values = slices.Clone(p.Values)
	if p.Geometry != nil {
		cp.Geometry = orb.Clone(p.Geometry)
	}
	return cp
}

type leaf struct {
	Type      string `json:"type"`
	FieldName string `json:"field_name,omitempty"`
	Config    any    `json:"config"`
}

func (p Predicate) MarshalJSON() ([]byte, error) {
	lo, hi := "gt", "lt"
	if p.Inclusive {
		lo, hi = "gte", "lte"
	}
	out := leaf{Type: p.Kind.String(), FieldName: p.Field}
	switch p.Kind {
	case DateRange:
		out.Config = map[string]string{
			lo: formatTime(p.Start),
			hi: formatTime(p.End),
		}
	case NumericRange:
		out.Config = map[string]float64{lo: p.Min, hi: p.Max}
	case StringSet:
		out.Config = p.Values
	case Geometry:
		out.Config = geojson.NewGeometry(p.Geometry)
	case Asset, Permission:
		out.FieldName = ""
		out.Config = p.Values
	default:
		return nil, fmt.Errorf("filter: unknown predicate kind %d", int(p.Kind))
	}
	return json.Marshal(out)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Spec is a built filter. It is immutable; accessors return copies.
type Spec struct {
	combinator Combinator
	predicates []Predicate
}

func (s Spec) Combinator() Combinator { return s.combinator }

func (s Spec) Len() int { return len(s.predicates) }

func (s Spec) Predicates() []Predicate {
	out := make([]Predicate, len(s.predicates))
	for i, p := range s.predicates {
		out[i] = p.clone()
	}
	return out
}

func (s Spec) MarshalJSON() ([]byte, error) {
	cfg := s.predicates
	if cfg == nil {
		cfg = []Predicate{}
	}
	return json.Marshal(struct {
		Type   string      `json:"type"`
		Config []Predicate `json:"config"`
	}{
		Type:   string(s.combinator) + "Filter",
		Config: cfg,
	})
}

type Builder struct {
	combinator Combinator
	preds      []Predicate
	err        error
}

func New(c Combinator) *Builder {
	b := &Builder{combinator: c}
	if c != And && c != Or {
		b.err = planetreq.Invalid("filter.New", "combinator", "must be And or Or, got %q", string(c))
	}
	return b
}

// Err returns the first validation error recorded by an Add call.
func (b *Builder) Err() error { return b.err }

func (b *Builder) Len() int { return len(b.preds) }

func (b *Builder) add(p Predicate, err error) *Builder {
	if b.err != nil {
		return b
	}
	if err != nil {
		b.err = err
		return b
	}
	b.preds = append(b.preds, p)
	return b
}

// Build returns the filter. Calling it again yields the same spec.
func (b *Builder) Build() (Spec, error) {
	if b.err != nil {
		return Spec{}, b.err
	}
	out := make([]Predicate, len(b.preds))
	for i, p := range b.preds {
		out[i] = p.clone()
	}
	return Spec{combinator: b.combinator, predicates: out}, nil
}

func (b *Builder) AddDateRange(field string, start, end time.Time, inclusive bool) *Builder {
	const op = "filter.AddDateRange"
	switch {
	case strings.TrimSpace(field) == "":
		return b.add(Predicate{}, planetreq.Invalid(op, "field", "empty field name"))
	case start.IsZero():
		return b.add(Predicate{}, planetreq.Invalid(op, field, "start time is zero"))
	case end.IsZero():
		return b.add(Predicate{}, planetreq.Invalid(op, field, "end time is zero"))
	}
	return b.add(Predicate{
		Kind:      DateRange,
		Field:     field,
		Inclusive: inclusive,
		Start:     start.UTC(),
		End:       end.UTC(),
	}, nil)
}

func (b *Builder) AddAcquired(start, end time.Time, inclusive bool) *Builder {
	return b.AddDateRange(FieldAcquired, start, end, inclusive)
}

// AddRange appends a numeric range. Bounds are not domain-checked.
func (b *Builder) AddRange(field string, minV, maxV float64, inclusive bool) *Builder {
	const op = "filter.AddRange"
	switch {
	case strings.TrimSpace(field) == "":
		return b.add(Predicate{}, planetreq.Invalid(op, "field", "empty field name"))
	case !finite(minV):
		return b.add(Predicate{}, planetreq.Invalid(op, field, "min is not finite: %v", minV))
	case !finite(maxV):
		return b.add(Predicate{}, planetreq.Invalid(op, field, "max is not finite: %v", maxV))
	}
	return b.add(Predicate{
		Kind:      NumericRange,
		Field:     field,
		Inclusive: inclusive,
		Min:       minV,
		Max:       maxV,
	}, nil)
}

func (b *Builder) AddCloudCover(minV, maxV float64, inclusive bool) *Builder {
	return b.AddRange(FieldCloudCover, minV, maxV, inclusive)
}

func (b *Builder) AddClearPercent(minV, maxV float64, inclusive bool) *Builder {
	return b.AddRange(FieldClearPercent, minV, maxV, inclusive)
}

func (b *Builder) AddViewAngle(minV, maxV float64, inclusive bool) *Builder {
	return b.AddRange(FieldViewAngle, minV, maxV, inclusive)
}

func (b *Builder) AddStringIn(field string, values ...string) *Builder {
	const op = "filter.AddStringIn"
	if strings.TrimSpace(field) == "" {
		return b.add(Predicate{}, planetreq.Invalid(op, "field", "empty field name"))
	}
	if len(values) == 0 {
		return b.add(Predicate{}, planetreq.Invalid(op, field, "no values"))
	}
	return b.add(Predicate{Kind: StringSet, Field: field, Values: slices.Clone(values)}, nil)
}

func (b *Builder) AddInstrument(values ...string) *Builder {
	return b.AddStringIn(FieldInstrument, values...)
}

func (b *Builder) AddQuality(values ...string) *Builder {
	return b.AddStringIn(FieldQuality, values...)
}

// AddStdQuality keeps only scenes rated standard quality.
func (b *Builder) AddStdQuality() *Builder {
	return b.AddStringIn(FieldQuality, "standard")
}

func (b *Builder) AddItemTypes(values ...string) *Builder {
	return b.AddStringIn(FieldItemType, values...)
}

func (b *Builder) AddAsset(assets ...string) *Builder {
	if len(assets) == 0 {
		return b.add(Predicate{}, planetreq.Invalid("filter.AddAsset", "", "no assets"))
	}
	return b.add(Predicate{Kind: Asset, Values: slices.Clone(assets)}, nil)
}

// AddPermission defaults to assets:download when no permissions are given.
func (b *Builder) AddPermission(perms ...string) *Builder {
	if len(perms) == 0 {
		perms = []string{PermissionDownload}
	}
	return b.add(Predicate{Kind: Permission, Values: slices.Clone(perms)}, nil)
}

// AddGeometry appends an intersection predicate on the scene footprint.
func (b *Builder) AddGeometry(g orb.Geometry) *Builder {
	const op = "filter.AddGeometry"
	switch g.(type) {
	case orb.Point, orb.MultiPoint, orb.LineString, orb.MultiLineString, orb.Polygon, orb.MultiPolygon:
	case nil:
		return b.add(Predicate{}, planetreq.Invalid(op, FieldGeometry, "nil geometry"))
	default:
		return b.add(Predicate{}, planetreq.Invalid(op, FieldGeometry, "unsupported geometry type %s", g.GeoJSONType()))
	}
	return b.add(Predicate{Kind: Geometry, Field: FieldGeometry, Geometry: orb.Clone(g)}, nil)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
