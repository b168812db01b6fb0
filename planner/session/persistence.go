package session

import (
	"time"

	"github.com/wricardo/mcp-training/parkplanner/planner/engine"
	"github.com/wricardo/mcp-training/parkplanner/planner/service"
)

// SessionPersistence stores sessions outside the process. Load returns
// ErrSessionNotFound for an id that was never saved or has been deleted.
type SessionPersistence interface {
	Save(session *service.Session) error
	Load(id string) (*service.Session, error)
	Delete(id string) error
	ListAll() ([]string, error)
	Exists(id string) bool
}

// recordVersion is written into every session file
const recordVersion = 1

// sessionRecord is the on-disk form of a session. The park is stored by
// config id so a renamed display name does not orphan the file.
type sessionRecord struct {
	Version        int             `json:"version"`
	ID             string          `json:"id"`
	ParkName       string          `json:"park_name"`
	CreatedAt      time.Time       `json:"created_at"`
	LastAccessedAt time.Time       `json:"last_accessed_at"`
	PlannerState   engine.Snapshot `json:"planner_state"`
}
