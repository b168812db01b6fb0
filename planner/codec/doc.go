// Package codec converts planner state to and from the marker and plan files
// users download and re-import.
//
// Marker file:
//
//	{"createdAt": "...", "count": 2, "markers": [{"id", "label", "type", "lat", "lng"}, ...]}
//
// Plan file:
//
//	{"createdAt": "...", "count": 2, "plan": [{"order", "id", "label", "type", "lat", "lng"}, ...]}
//
// Parsing is explicit: ParseMarkers and ParsePlan walk the decoded JSON and
// return an *engine.ValidationError naming the first structural problem. A
// rejected document never reaches the planner. Once a document is accepted,
// individual items whose coordinates fall outside the WGS84 range are skipped
// and counted in the ImportReport rather than failing the batch.
//
// Imports run inside engine.Planner.Batch so subscribers see one change
// after the state is fully replaced.
package codec
