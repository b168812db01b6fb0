package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wricardo/mcp-training/parkplanner/planner/config"
	"github.com/wricardo/mcp-training/parkplanner/planner/engine"
	"github.com/wricardo/mcp-training/parkplanner/planner/service"
)

const sessionFileExt = ".json"

// FilePersistence keeps one JSON file per session in a directory
type FilePersistence struct {
	dir   string
	parks service.ConfigManager
}

// NewFilePersistence creates dir if needed. parks resolves the park a
// session file refers to.
func NewFilePersistence(dir string, parks service.ConfigManager) (*FilePersistence, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}
	return &FilePersistence{dir: dir, parks: parks}, nil
}

func (fp *FilePersistence) path(id string) string {
	return filepath.Join(fp.dir, id+sessionFileExt)
}

// Save writes the session atomically: a temp file in the same directory is
// renamed over the previous version.
func (fp *FilePersistence) Save(sess *service.Session) error {
	if sess == nil || sess.Planner == nil {
		return fmt.Errorf("session cannot be nil")
	}
	if !validID.MatchString(sess.ID) {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, sess.ID)
	}

	rec := sessionRecord{
		Version:        recordVersion,
		ID:             sess.ID,
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: sess.LastAccessedAt,
		PlannerState:   sess.Planner.Snapshot(),
	}
	if sess.Park != nil {
		id, err := fp.parkID(sess.Park.Name)
		if err != nil {
			return err
		}
		rec.ParkName = id
	}

	body, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", sess.ID, err)
	}

	tmp, err := os.CreateTemp(fp.dir, "."+sess.ID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fp.path(sess.ID)); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// Load reads a session file and rebuilds its planner. A plan referencing a
// marker missing from the file is rejected rather than silently dropped.
func (fp *FilePersistence) Load(id string) (*service.Session, error) {
	if !validID.MatchString(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}

	body, err := os.ReadFile(fp.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var rec sessionRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("session %s: corrupt file: %w", id, err)
	}
	if rec.Version > recordVersion {
		return nil, fmt.Errorf("session %s: unsupported file version %d", id, rec.Version)
	}

	park, err := fp.resolvePark(rec.ParkName)
	if err != nil {
		return nil, err
	}

	p := engine.NewPlanner()
	if err := p.Restore(rec.PlannerState); err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}

	sess := &service.Session{
		ID:             rec.ID,
		Planner:        p,
		Park:           park,
		CreatedAt:      rec.CreatedAt,
		LastAccessedAt: rec.LastAccessedAt,
	}
	if sess.ID == "" {
		sess.ID = id
	}
	return sess, nil
}

// Delete removes a session file
func (fp *FilePersistence) Delete(id string) error {
	if !fp.Exists(id) {
		return ErrSessionNotFound
	}
	if err := os.Remove(fp.path(id)); err != nil {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

// ListAll returns the ids of every session file, sorted
func (fp *FilePersistence) ListAll() ([]string, error) {
	entries, err := os.ReadDir(fp.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		id, ok := strings.CutSuffix(e.Name(), sessionFileExt)
		if e.IsDir() || !ok || !validID.MatchString(id) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Exists reports whether a file is stored for id
func (fp *FilePersistence) Exists(id string) bool {
	if !validID.MatchString(id) {
		return false
	}
	info, err := os.Stat(fp.path(id))
	return err == nil && !info.IsDir()
}

// parkID maps a park display name to its config id. Names with no matching
// config (the built-in default) are stored as they are.
func (fp *FilePersistence) parkID(name string) (string, error) {
	parks, err := fp.parks.ListConfigs()
	if err != nil {
		return "", fmt.Errorf("failed to list parks: %w", err)
	}
	for _, p := range parks {
		if p.Name == name {
			return p.ConfigID, nil
		}
	}
	return name, nil
}

// resolvePark loads the park a file refers to. An empty id is the default
// park, which is also matched by name since it may be built in.
func (fp *FilePersistence) resolvePark(id string) (*config.ParkConfig, error) {
	def := fp.parks.GetDefault()
	if id == "" {
		return def, nil
	}

	park, err := fp.parks.LoadConfig(id)
	switch {
	case err == nil:
		return park, nil
	case errors.Is(err, config.ErrConfigNotFound) && def != nil && def.Name == id:
		return def, nil
	default:
		return nil, fmt.Errorf("failed to load park %q: %w", id, err)
	}
}
