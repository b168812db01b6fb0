package service

import (
	"time"

	"github.com/wricardo/mcp-training/parkplanner/geo"
	"github.com/wricardo/mcp-training/parkplanner/planner/codec"
	"github.com/wricardo/mcp-training/parkplanner/planner/config"
	"github.com/wricardo/mcp-training/parkplanner/planner/engine"
)

// SessionInfo provides information about a planning session
type SessionInfo struct {
	ID             string             `json:"id"`
	ParkName       string             `json:"park_name"`
	CreatedAt      time.Time          `json:"created_at"`
	LastAccessedAt time.Time          `json:"last_accessed_at"`
	MarkerCount    int                `json:"marker_count"`
	PlanCount      int                `json:"plan_count"`
	Mode           engine.ViewMode    `json:"mode"`
	Filter         engine.Filter      `json:"filter"`
	Park           *config.ParkConfig `json:"park,omitempty"`
}

// PlaceMarkerRequest is a click on the map. Label and Category are optional.
type PlaceMarkerRequest struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Label    string  `json:"label,omitempty"`
	Category string  `json:"category,omitempty"`
}

// ActionResult is the outcome of one gesture: whether it changed anything,
// the status line to show and the view to render.
type ActionResult struct {
	Success  bool         `json:"success"`
	Message  string       `json:"message"`
	MarkerID string       `json:"marker_id,omitempty"`
	Outcome  string       `json:"outcome,omitempty"` // "added" or "already_present" for plan appends
	View     *engine.View `json:"view"`
}

// ImportResult is the outcome of a file import. A rejected document has
// Success false and the validation reason; the session is left untouched.
type ImportResult struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Reason  string              `json:"reason,omitempty"`
	Report  *codec.ImportReport `json:"report,omitempty"`
	View    *engine.View        `json:"view"`
}

// DatasetLoad describes one default dataset applied to a session
type DatasetLoad struct {
	Name   string             `json:"name"`
	Source string             `json:"source"`
	Count  int                `json:"count"`
	Report codec.ImportReport `json:"report"`
}

// DefaultsResult reports what LoadDefaults found
type DefaultsResult struct {
	Markers  *DatasetLoad `json:"markers,omitempty"`
	Plan     *DatasetLoad `json:"plan,omitempty"`
	Messages []string     `json:"messages"`
	View     *engine.View `json:"view"`
}

// TilePlan is what caching a park for offline use would fetch
type TilePlan struct {
	Park    string          `json:"park"`
	Ranges  []geo.TileRange `json:"ranges"`
	Total   int             `json:"total"`
	URLs    []string        `json:"urls,omitempty"`
	Message string          `json:"message"`
}
