package codec

import (
	"bytes"
	"encoding/json"
	"time"
)

// TimeLayout matches the millisecond UTC timestamps browsers write with toISOString
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Validation reasons, shown to the user after "Import failed: "
const (
	ReasonInvalidJSON        = "Invalid JSON"
	ReasonMissingMarkers     = "Missing markers array"
	ReasonInvalidMarkerItem  = "Invalid marker item"
	ReasonMarkerLatLng       = "Marker missing numeric lat/lng"
	ReasonMarkerLabelString  = "Marker label must be a string"
	ReasonMarkerTypeString   = "Marker type must be a string"
	ReasonMissingPlan        = "Missing plan array"
	ReasonInvalidPlanItem    = "Invalid plan item"
	ReasonPlanItemOrder      = "Plan item missing order"
	ReasonPlanItemLatLng     = "Plan item missing numeric lat/lng"
)

// Download names offered to the export sink
const (
	MarkersFileName = "markers.json"
	PlanFileName    = "trip-plan.json"
	GeoJSONFileName = "markers.geojson"
)

// MarkerItem is one entry of a marker file
type MarkerItem struct {
	ID    string  `json:"id"`
	Label string  `json:"label"`
	Type  string  `json:"type"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
}

// MarkerDocument is the marker file envelope
type MarkerDocument struct {
	CreatedAt string       `json:"createdAt"`
	Count     int          `json:"count"`
	Markers   []MarkerItem `json:"markers"`
}

// PlanItem is one entry of a plan file. Order is 1-based and equals the array position on export.
type PlanItem struct {
	Order int     `json:"order"`
	ID    string  `json:"id"`
	Label string  `json:"label"`
	Type  string  `json:"type"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`

	// rank keeps the parsed order value, which may be fractional
	rank float64
}

func (it PlanItem) sortKey() float64 {
	if it.rank != 0 {
		return it.rank
	}
	return float64(it.Order)
}

// PlanDocument is the plan file envelope
type PlanDocument struct {
	CreatedAt string     `json:"createdAt"`
	Count     int        `json:"count"`
	Plan      []PlanItem `json:"plan"`
}

// FormatTime renders t the way createdAt is written
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Encode writes v as 2-space indented JSON without HTML escaping
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
