package codec

import (
	"cmp"
	"slices"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/wricardo/mcp-training/parkplanner/geo"
	"github.com/wricardo/mcp-training/parkplanner/planner/engine"
)

// ImportReport summarises an import
type ImportReport struct {
	// Added counts markers created by the import
	Added int `json:"added"`
	// Reused counts plan items resolved to markers that already existed
	Reused int `json:"reused"`
	// Skipped counts items dropped for out-of-range coordinates
	Skipped int `json:"skipped"`
	// Planned is the plan length after a plan import
	Planned int `json:"planned"`
}

// ExportMarkers snapshots every marker in insertion order
func ExportMarkers(p *engine.Planner, now time.Time) *MarkerDocument {
	markers := p.Store.All()
	items := make([]MarkerItem, 0, len(markers))
	for _, m := range markers {
		items = append(items, MarkerItem{
			ID:    m.ID,
			Label: m.Label,
			Type:  string(m.Category),
			Lat:   m.Position.Lat,
			Lng:   m.Position.Lng,
		})
	}
	return &MarkerDocument{CreatedAt: FormatTime(now), Count: len(items), Markers: items}
}

// ExportPlan resolves the plan against the store
func ExportPlan(p *engine.Planner, now time.Time) *PlanDocument {
	order := p.Plan.Order()
	items := make([]PlanItem, 0, len(order))
	for _, id := range order {
		m, ok := p.Store.Get(id)
		if !ok {
			continue
		}
		items = append(items, PlanItem{
			Order: len(items) + 1,
			ID:    m.ID,
			Label: m.Label,
			Type:  string(m.Category),
			Lat:   m.Position.Lat,
			Lng:   m.Position.Lng,
		})
	}
	return &PlanDocument{CreatedAt: FormatTime(now), Count: len(items), Plan: items}
}

// ImportMarkers loads doc into p as a single batch. With clear set the store
// is emptied first; the plan is always reset. Items outside the WGS84 range
// are skipped and counted.
func ImportMarkers(p *engine.Planner, doc *MarkerDocument, clear bool) ImportReport {
	var report ImportReport
	p.Batch(func() error {
		if clear {
			p.Store.Clear()
		} else {
			p.Plan.Clear()
		}
		for _, it := range doc.Markers {
			if !geo.InRange(it.Lat, it.Lng) {
				report.Skipped++
				continue
			}
			pos := engine.Position{Lat: it.Lat, Lng: it.Lng}
			if _, err := p.Store.AddWithID(it.ID, pos, it.Label, CategoryFor(it.Type)); err != nil {
				report.Skipped++
				continue
			}
			report.Added++
		}
		return nil
	})
	return report
}

// ImportPlan replaces the plan with doc's items sorted by order. Each item
// resolves to a marker by id, then by position within engine.CoordinateEpsilon
// (first match in insertion order), and is created otherwise.
func ImportPlan(p *engine.Planner, doc *PlanDocument) ImportReport {
	var report ImportReport

	items := slices.Clone(doc.Plan)
	slices.SortStableFunc(items, func(a, b PlanItem) int {
		return cmp.Compare(a.sortKey(), b.sortKey())
	})

	p.Batch(func() error {
		ids := make([]string, 0, len(items))
		for _, it := range items {
			if !geo.InRange(it.Lat, it.Lng) {
				report.Skipped++
				continue
			}
			if it.ID != "" && p.Store.Has(it.ID) {
				ids = append(ids, it.ID)
				report.Reused++
				continue
			}
			pos := engine.Position{Lat: it.Lat, Lng: it.Lng}
			if m, ok := p.Store.FindNear(pos, engine.CoordinateEpsilon); ok {
				ids = append(ids, m.ID)
				report.Reused++
				continue
			}
			id, err := p.Store.AddWithID(it.ID, pos, it.Label, CategoryFor(it.Type))
			if err != nil {
				report.Skipped++
				continue
			}
			ids = append(ids, id)
			report.Added++
		}
		return p.Plan.Replace(ids)
	})

	report.Planned = p.Plan.Len()
	return report
}

// ImportMarkersJSON parses and imports a marker file. A validation error leaves p untouched.
func ImportMarkersJSON(p *engine.Planner, data []byte, clear bool) (ImportReport, error) {
	doc, err := ParseMarkers(data)
	if err != nil {
		return ImportReport{}, err
	}
	return ImportMarkers(p, doc, clear), nil
}

// ImportPlanJSON parses and imports a plan file. A validation error leaves p untouched.
func ImportPlanJSON(p *engine.Planner, data []byte) (ImportReport, error) {
	doc, err := ParsePlan(data)
	if err != nil {
		return ImportReport{}, err
	}
	return ImportPlan(p, doc), nil
}

// CategoryFor maps a file type to a category; unknown or empty types become misc
func CategoryFor(t string) engine.Category {
	if c, ok := engine.ParseCategory(t); ok {
		return c
	}
	return engine.Misc
}

// ExportGeoJSON renders the markers as a GeoJSON FeatureCollection.
// Planned markers carry their 1-based order.
func ExportGeoJSON(p *engine.Planner) ([]byte, error) {
	markers := p.Store.All()
	fc := make(geom.GeoJSONFeatureCollection, 0, len(markers))
	for _, m := range markers {
		pt, err := geo.Point(m.Position.Lng, m.Position.Lat)
		if err != nil {
			// not representable in WGS84
			continue
		}
		props := map[string]interface{}{
			"id":    m.ID,
			"label": m.Label,
			"type":  string(m.Category),
		}
		if idx, ok := p.Plan.Index(m.ID); ok {
			props["order"] = idx
		}
		fc = append(fc, geom.GeoJSONFeature{
			Geometry:   pt.AsGeometry(),
			ID:         m.ID,
			Properties: props,
		})
	}
	return Encode(fc)
}
