package codec

import (
	"encoding/json"

	"github.com/wricardo/mcp-training/parkplanner/planner/engine"
)

// ParseMarkers validates and decodes a marker file. Any structural problem
// rejects the whole document with an *engine.ValidationError.
func ParseMarkers(data []byte) (*MarkerDocument, error) {
	root, err := decodeObject(data)
	if err != nil {
		return nil, err
	}

	raw, ok := root["markers"].([]any)
	if !ok {
		return nil, engine.NewValidationError(ReasonMissingMarkers)
	}

	doc := &MarkerDocument{
		CreatedAt: stringField(root, "createdAt"),
		Count:     int(numberField(root, "count")),
		Markers:   make([]MarkerItem, 0, len(raw)),
	}
	for _, v := range raw {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, engine.NewValidationError(ReasonInvalidMarkerItem)
		}
		lat, latOK := obj["lat"].(float64)
		lng, lngOK := obj["lng"].(float64)
		if !latOK || !lngOK {
			return nil, engine.NewValidationError(ReasonMarkerLatLng)
		}
		if !optionalString(obj, "label") {
			return nil, engine.NewValidationError(ReasonMarkerLabelString)
		}
		if !optionalString(obj, "type") {
			return nil, engine.NewValidationError(ReasonMarkerTypeString)
		}
		doc.Markers = append(doc.Markers, MarkerItem{
			ID:    stringField(obj, "id"),
			Label: stringField(obj, "label"),
			Type:  stringField(obj, "type"),
			Lat:   lat,
			Lng:   lng,
		})
	}
	return doc, nil
}

// ParsePlan validates and decodes a plan file
func ParsePlan(data []byte) (*PlanDocument, error) {
	root, err := decodeObject(data)
	if err != nil {
		return nil, err
	}

	raw, ok := root["plan"].([]any)
	if !ok {
		return nil, engine.NewValidationError(ReasonMissingPlan)
	}

	doc := &PlanDocument{
		CreatedAt: stringField(root, "createdAt"),
		Count:     int(numberField(root, "count")),
		Plan:      make([]PlanItem, 0, len(raw)),
	}
	for _, v := range raw {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, engine.NewValidationError(ReasonInvalidPlanItem)
		}
		order, ok := obj["order"].(float64)
		if !ok {
			return nil, engine.NewValidationError(ReasonPlanItemOrder)
		}
		lat, latOK := obj["lat"].(float64)
		lng, lngOK := obj["lng"].(float64)
		if !latOK || !lngOK {
			return nil, engine.NewValidationError(ReasonPlanItemLatLng)
		}
		doc.Plan = append(doc.Plan, PlanItem{
			Order: int(order),
			ID:    stringField(obj, "id"),
			Label: stringField(obj, "label"),
			Type:  stringField(obj, "type"),
			Lat:   lat,
			Lng:   lng,
			rank:  order,
		})
	}
	return doc, nil
}

func decodeObject(data []byte) (map[string]any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, engine.NewValidationError(ReasonInvalidJSON)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, engine.NewValidationError(ReasonInvalidJSON)
	}
	return obj, nil
}

// optionalString reports whether key is absent, null or a string
func optionalString(obj map[string]any, key string) bool {
	v, present := obj[key]
	if !present || v == nil {
		return true
	}
	_, ok := v.(string)
	return ok
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func numberField(obj map[string]any, key string) float64 {
	n, _ := obj[key].(float64)
	return n
}
