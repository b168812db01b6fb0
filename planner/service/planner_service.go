package service

import (
	"context"
	"errors"
	"time"

	"github.com/wricardo/mcp-training/parkplanner/planner/codec"
	"github.com/wricardo/mcp-training/parkplanner/planner/config"
	"github.com/wricardo/mcp-training/parkplanner/planner/dataset"
	"github.com/wricardo/mcp-training/parkplanner/planner/engine"
)

// ErrSessionNotFound is returned for an unknown session id
var ErrSessionNotFound = errors.New("session not found")

// PlannerService defines every planning operation a front end can trigger
type PlannerService interface {
	// Session Management
	CreateSession(ctx context.Context, parkName string) (*SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	ListSessions(ctx context.Context) ([]*SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error
	GetView(ctx context.Context, sessionID string) (*engine.View, error)

	// Markers
	PlaceMarker(ctx context.Context, sessionID string, req PlaceMarkerRequest) (*ActionResult, error)
	RenameMarker(ctx context.Context, sessionID, markerID, label string) (*ActionResult, error)
	RetypeMarker(ctx context.Context, sessionID, markerID, category string) (*ActionResult, error)
	MoveMarker(ctx context.Context, sessionID, markerID string, pos engine.Position) (*ActionResult, error)
	RemoveMarker(ctx context.Context, sessionID, markerID string) (*ActionResult, error)
	ClearMarkers(ctx context.Context, sessionID string) (*ActionResult, error)

	// Plan
	AddToPlan(ctx context.Context, sessionID, markerID string) (*ActionResult, error)
	RemoveFromPlan(ctx context.Context, sessionID, markerID string) (*ActionResult, error)
	MovePlanItem(ctx context.Context, sessionID, markerID string, delta int) (*ActionResult, error)
	MovePlanItemTo(ctx context.Context, sessionID, markerID, targetID string) (*ActionResult, error)
	ClearPlan(ctx context.Context, sessionID string) (*ActionResult, error)
	SavePlan(ctx context.Context, sessionID string) (*ActionResult, error)

	// View
	SetMode(ctx context.Context, sessionID, mode string) (*ActionResult, error)
	SetFilter(ctx context.Context, sessionID, filter string) (*ActionResult, error)

	// Files
	ExportMarkers(ctx context.Context, sessionID string) (*codec.MarkerDocument, error)
	ExportPlan(ctx context.Context, sessionID string) (*codec.PlanDocument, error)
	ExportGeoJSON(ctx context.Context, sessionID string) ([]byte, error)
	ImportMarkers(ctx context.Context, sessionID string, data []byte, clear bool) (*ImportResult, error)
	ImportPlan(ctx context.Context, sessionID string, data []byte) (*ImportResult, error)
	LoadDefaults(ctx context.Context, sessionID string) (*DefaultsResult, error)

	// Parks
	ListParks(ctx context.Context) ([]*config.ParkInfo, error)
	GetPark(ctx context.Context, parkName string) (*config.ParkConfig, error)
	TilePlan(ctx context.Context, parkName string, zooms []int, includeURLs bool) (*TilePlan, error)
}

// SessionManager defines session storage operations
type SessionManager interface {
	Create(id string, park *config.ParkConfig) (*Session, error)
	Get(id string) (*Session, error)
	GetOrCreate(id string, park *config.ParkConfig) (*Session, error)
	List() []*Session
	Delete(id string) error
	UpdateLastAccessed(id string) error
	// LastAccessed reads the access time under the manager's own lock;
	// the zero time for an unknown id.
	LastAccessed(id string) time.Time
	Save(id string) error
}

// EvictionNotifier is implemented by session managers that unload idle
// sessions. fn runs after a session leaves memory, outside the manager lock.
type EvictionNotifier interface {
	OnEvict(fn func(id string))
}

// ConfigManager handles park configuration loading
type ConfigManager interface {
	LoadConfig(name string) (*config.ParkConfig, error)
	ListConfigs() ([]*config.ParkInfo, error)
	GetDefault() *config.ParkConfig
}

// PlanStore persists saved plans. storage.KVStore satisfies it.
type PlanStore interface {
	Put(ctx context.Context, bucket, key string, value []byte) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}

// DatasetLoader fetches the first available dataset among candidate names.
// dataset.Loader satisfies it.
type DatasetLoader interface {
	First(ctx context.Context, names ...string) (*dataset.Resource, error)
}

// Broadcaster receives the freshly rendered view of a session after every change
type Broadcaster interface {
	BroadcastView(sessionID string, view *engine.View)
}

// Session represents an active planning session
type Session struct {
	ID             string
	Planner        *engine.Planner
	Park           *config.ParkConfig
	CreatedAt      time.Time
	// LastAccessedAt is guarded by the session manager once the session is
	// registered; read it through SessionManager.LastAccessed.
	LastAccessedAt time.Time
}
