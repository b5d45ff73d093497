// Package order builds Planet Orders API v2 requests.
package order

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/planet-pipeline/pkg/planetreq"
)

const (
	DefaultKernel          = "cubic"
	DefaultArchiveType     = "zip"
	DefaultArchiveTemplate = "{{order_id}}.zip"

	// TokenPlaceholder is substituted by ExpandToken. The provider fills {{order_id}}.
	TokenPlaceholder = "{token}"
)

var kernels = []string{
	"near", "bilinear", "cubic", "cubicspline", "lanczos",
	"average", "mode", "min", "max", "med", "q1", "q3",
}

type ToolKind int

const (
	Reproject ToolKind = iota + 1
	Clip
	Composite
)

func (k ToolKind) String() string {
	switch k {
	case Reproject:
		return "reproject"
	case Clip:
		return "clip"
	case Composite:
		return "composite"
	default:
		return "tool(" + strconv.Itoa(int(k)) + ")"
	}
}

type Product struct {
	ItemIDs       []string `json:"item_ids"`
	ItemType      string   `json:"item_type"`
	ProductBundle string   `json:"product_bundle"`
}

// Tool is one processing step. Only the fields of its Kind are set.
type Tool struct {
	Kind       ToolKind
	EPSG       int
	Resolution *float64
	Kernel     string
	AOI        orb.Geometry
}

// Projection renders the reprojection target the way the provider expects it.
func (t Tool) Projection() string {
	return "EPSG:" + strconv.Itoa(t.EPSG)
}

type reprojectParams struct {
	Projection string   `json:"projection"`
	Resolution *float64 `json:"resolution,omitempty"`
	Kernel     string   `json:"kernel"`
}

type clipParams struct {
	AOI *geojson.Geometry `json:"aoi"`
}

func (t Tool) MarshalJSON() ([]byte, error) {
	switch t.Kind {
	case Reproject:
		return json.Marshal(map[string]reprojectParams{
			"reproject": {Projection: t.Projection(), Resolution: t.Resolution, Kernel: t.Kernel},
		})
	case Clip:
		return json.Marshal(map[string]clipParams{
			"clip": {AOI: geojson.NewGeometry(t.AOI)},
		})
	case Composite:
		return json.Marshal(map[string]struct{}{"composite": {}})
	default:
		return nil, fmt.Errorf("order: unknown tool kind %d", int(t.Kind))
	}
}

func (t Tool) clone() Tool {
	cp := t
	if t.Resolution != nil {
		r := *t.Resolution
		cp.Resolution = &r
	}
	if t.AOI != nil {
		cp.AOI = orb.Clone(t.AOI)
	}
	return cp
}

type Delivery struct {
	ArchiveType     string `json:"archive_type"`
	SingleArchive   bool   `json:"single_archive"`
	ArchiveFilename string `json:"archive_filename"`
}

// Request is a built order, ready to be posted to the Orders API.
type Request struct {
	Name      string    `json:"name"`
	Products  []Product `json:"products"`
	Tools     []Tool    `json:"tools,omitempty"`
	Delivery  *Delivery `json:"delivery,omitempty"`
	OrderType string    `json:"order_type,omitempty"`
}

// Submittable reports whether the request has products and a delivery.
func (r Request) Submittable() bool {
	return len(r.Products) > 0 && r.Delivery != nil
}

// Fingerprint hashes the request's JSON form.
func (r Request) Fingerprint() (uint64, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return 0, fmt.Errorf("order fingerprint: %w", err)
	}
	return xxhash.Sum64(b), nil
}

type Builder struct {
	name      string
	orderType string
	products  []Product
	tools     []Tool
	delivery  *Delivery
	err       error
}

func New(name string) *Builder {
	b := &Builder{name: name}
	if strings.TrimSpace(name) == "" {
		b.err = planetreq.Invalid("order.New", "name", "empty order name")
	}
	return b
}

func (b *Builder) Err() error { return b.err }

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// AddProduct appends a product group. Duplicate ids are kept as given.
func (b *Builder) AddProduct(ids []string, bundle, itemType string) *Builder {
	const op = "order.AddProduct"
	if b.err != nil {
		return b
	}
	switch {
	case len(ids) == 0:
		return b.fail(planetreq.Invalid(op, "item_ids", "no item ids"))
	case strings.TrimSpace(bundle) == "":
		return b.fail(planetreq.Invalid(op, "product_bundle", "empty bundle"))
	case strings.TrimSpace(itemType) == "":
		return b.fail(planetreq.Invalid(op, "item_type", "empty item type"))
	}
	for i, id := range ids {
		if strings.TrimSpace(id) == "" {
			return b.fail(planetreq.Invalid(op, "item_ids", "empty id at index %d", i))
		}
	}
	b.products = append(b.products, Product{
		ItemIDs:       slices.Clone(ids),
		ItemType:      itemType,
		ProductBundle: bundle,
	})
	return b
}

// AddReprojectTool appends a reprojection to EPSG:<epsg>. A nil resolution
// keeps the native resolution; an empty kernel means cubic.
func (b *Builder) AddReprojectTool(epsg int, resolution *float64, kernel string) *Builder {
	const op = "order.AddReprojectTool"
	if b.err != nil {
		return b
	}
	if epsg <= 0 {
		return b.fail(planetreq.Invalid(op, "projection", "invalid EPSG code %d", epsg))
	}
	if kernel == "" {
		kernel = DefaultKernel
	}
	if !slices.Contains(kernels, kernel) {
		return b.fail(planetreq.Invalid(op, "kernel", "unknown kernel %q", kernel))
	}
	t := Tool{Kind: Reproject, EPSG: epsg, Kernel: kernel}
	if resolution != nil {
		r := *resolution
		if math.IsNaN(r) || math.IsInf(r, 0) || r <= 0 {
			return b.fail(planetreq.Invalid(op, "resolution", "must be a positive number, got %v", r))
		}
		t.Resolution = &r
	}
	b.tools = append(b.tools, t)
	return b
}

func (b *Builder) AddClipTool(aoi orb.Geometry) *Builder {
	if b.err != nil {
		return b
	}
	switch aoi.(type) {
	case orb.Polygon, orb.MultiPolygon:
	default:
		return b.fail(planetreq.Invalid("order.AddClipTool", "aoi", "must be Polygon or MultiPolygon, got %T", aoi))
	}
	b.tools = append(b.tools, Tool{Kind: Clip, AOI: orb.Clone(aoi)})
	return b
}

func (b *Builder) AddCompositeTool() *Builder {
	if b.err != nil {
		return b
	}
	b.tools = append(b.tools, Tool{Kind: Composite})
	return b
}

// AddDeliveryConfig sets the delivery; a later call replaces an earlier one.
// The filename template is stored verbatim.
func (b *Builder) AddDeliveryConfig(archiveType string, singleArchive bool, filenameTemplate string) *Builder {
	if b.err != nil {
		return b
	}
	if archiveType == "" {
		archiveType = DefaultArchiveType
	}
	if archiveType != DefaultArchiveType {
		return b.fail(planetreq.Invalid("order.AddDeliveryConfig", "archive_type", "unsupported archive type %q", archiveType))
	}
	if filenameTemplate == "" {
		filenameTemplate = DefaultArchiveTemplate
	}
	b.delivery = &Delivery{
		ArchiveType:     archiveType,
		SingleArchive:   singleArchive,
		ArchiveFilename: filenameTemplate,
	}
	return b
}

// SetOrderType selects "full" or "partial" fulfilment.
func (b *Builder) SetOrderType(t string) *Builder {
	if b.err != nil {
		return b
	}
	if t != "full" && t != "partial" {
		return b.fail(planetreq.Invalid("order.SetOrderType", "order_type", "must be full or partial, got %q", t))
	}
	b.orderType = t
	return b
}

// Build returns the request. An empty builder yields an order with no products.
func (b *Builder) Build() (Request, error) {
	if b.err != nil {
		return Request{}, b.err
	}
	r := Request{
		Name:      b.name,
		Products:  make([]Product, len(b.products)),
		OrderType: b.orderType,
	}
	for i, p := range b.products {
		p.ItemIDs = slices.Clone(p.ItemIDs)
		r.Products[i] = p
	}
	if len(b.tools) > 0 {
		r.Tools = make([]Tool, len(b.tools))
		for i, t := range b.tools {
			r.Tools[i] = t.clone()
		}
	}
	if b.delivery != nil {
		d := *b.delivery
		r.Delivery = &d
	}
	return r, nil
}

// ExpandToken fills the caller token in a filename template.
func ExpandToken(template, token string) string {
	return strings.ReplaceAll(template, TokenPlaceholder, token)
}
