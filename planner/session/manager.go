package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wricardo/mcp-training/parkplanner/planner/config"
	"github.com/wricardo/mcp-training/parkplanner/planner/engine"
	"github.com/wricardo/mcp-training/parkplanner/planner/service"
)

var (
	// ErrSessionNotFound is the service sentinel so callers can match either package
	ErrSessionNotFound      = service.ErrSessionNotFound
	ErrSessionAlreadyExists = errors.New("session already exists")
	ErrInvalidSessionID     = errors.New("invalid session ID")
)

// validID keeps session ids usable as file names
var validID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// maxIDAttempts bounds regeneration when a random id collides
const maxIDAttempts = 16

// Manager handles planning session lifecycle
type Manager struct {
	sessions    map[string]*service.Session
	persistence SessionPersistence
	logger      zerolog.Logger
	onEvict     []func(id string)
	mu          sync.RWMutex
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger used for persistence warnings
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a new session manager
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]*service.Session),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewManagerWithPersistence creates a manager that saves sessions through persistence
func NewManagerWithPersistence(persistence SessionPersistence, opts ...Option) *Manager {
	m := NewManager(opts...)
	m.persistence = persistence
	return m
}

// key folds ids so lookups ignore case
func key(id string) string {
	return strings.ToLower(id)
}

func (m *Manager) cached(id string) (*service.Session, bool) {
	sess, ok := m.sessions[key(id)]
	return sess, ok
}

// persist saves sess when persistence is configured. Failures are logged only:
// the in-memory session stays authoritative.
func (m *Manager) persist(sess *service.Session, what string) {
	if m.persistence == nil {
		return
	}
	if err := m.persistence.Save(sess); err != nil {
		m.logger.Warn().Err(err).Str("session", sess.ID).Msgf("failed to persist session after %s", what)
	}
}

// OnEvict registers fn to run for every session unloaded from memory while
// its file stays on disk
func (m *Manager) OnEvict(fn func(id string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEvict = append(m.onEvict, fn)
}

func (m *Manager) evicted(ids []string, hooks []func(string)) {
	for _, id := range ids {
		for _, fn := range hooks {
			fn(id)
		}
	}
}

// Create starts a session on park. An empty id gets a random one.
func (m *Manager) Create(id string, park *config.ParkConfig) (*service.Session, error) {
	if park == nil {
		return nil, fmt.Errorf("failed to create session: park config is required")
	}
	if id != "" && !validID.MatchString(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case id == "":
		generated, err := m.generateSessionID()
		if err != nil {
			return nil, err
		}
		id = generated
	case m.sessionExists(id):
		return nil, ErrSessionAlreadyExists
	}

	now := time.Now()
	sess := &service.Session{
		ID:             id,
		Planner:        engine.NewPlanner(),
		Park:           park,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	m.sessions[key(id)] = sess
	m.persist(sess, "create")
	return sess, nil
}

// Get returns a session, loading it from persistence when it is not in memory
func (m *Manager) Get(id string) (*service.Session, error) {
	m.mu.RLock()
	sess, ok := m.cached(id)
	m.mu.RUnlock()
	if ok {
		return sess, nil
	}
	return m.loadFromDisk(id)
}

func (m *Manager) loadFromDisk(id string) (*service.Session, error) {
	if m.persistence == nil || !validID.MatchString(id) || !m.persistence.Exists(id) {
		return nil, ErrSessionNotFound
	}

	loaded, err := m.persistence.Load(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load persisted session: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// another caller may have loaded it meanwhile
	if existing, ok := m.cached(loaded.ID); ok {
		return existing, nil
	}
	m.sessions[key(loaded.ID)] = loaded
	return loaded, nil
}

// GetOrCreate returns the session with id, creating it on park when unknown
func (m *Manager) GetOrCreate(id string, park *config.ParkConfig) (*service.Session, error) {
	sess, err := m.Get(id)
	if errors.Is(err, ErrSessionNotFound) {
		return m.Create(id, park)
	}
	return sess, err
}

// List returns the sessions in memory, oldest first
func (m *Manager) List() []*service.Session {
	m.mu.RLock()
	out := make([]*service.Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return out
}

// Delete removes a session from memory and persistence. It fails with
// ErrSessionNotFound only when neither holds the id.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, inMemory := m.cached(id)
	if inMemory {
		delete(m.sessions, key(id))
		id = sess.ID
	}

	onDisk := m.persistence != nil && validID.MatchString(id) && m.persistence.Exists(id)
	if onDisk {
		if err := m.persistence.Delete(id); err != nil {
			return fmt.Errorf("failed to delete persisted session: %w", err)
		}
	}
	if !inMemory && !onDisk {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteFromMemory evicts a session, leaving any persisted copy in place
func (m *Manager) DeleteFromMemory(id string) error {
	m.mu.Lock()
	sess, ok := m.cached(id)
	if !ok {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(m.sessions, key(id))
	hooks := m.onEvict
	m.mu.Unlock()

	m.evicted([]string{sess.ID}, hooks)
	return nil
}

// UpdateLastAccessed stamps the session and saves it
func (m *Manager) UpdateLastAccessed(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.cached(id)
	if !ok {
		return ErrSessionNotFound
	}
	sess.LastAccessedAt = time.Now()
	m.persist(sess, "access update")
	return nil
}

// LastAccessed returns when the session was last touched, the zero time
// when it is not in memory
func (m *Manager) LastAccessed(id string) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sess, ok := m.cached(id); ok {
		return sess.LastAccessedAt
	}
	return time.Time{}
}

// Save writes one session to persistence. Without persistence it does nothing.
func (m *Manager) Save(id string) error {
	if m.persistence == nil {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.cached(id)
	if !ok {
		return ErrSessionNotFound
	}
	return m.persistence.Save(sess)
}

// CleanupExpiredSessions evicts sessions idle for longer than maxAge and
// returns how many were evicted. Persisted copies stay on disk.
func (m *Manager) CleanupExpiredSessions(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	var ids []string
	for k, sess := range m.sessions {
		if sess.LastAccessedAt.Before(cutoff) {
			delete(m.sessions, k)
			ids = append(ids, sess.ID)
		}
	}
	hooks := m.onEvict
	m.mu.Unlock()

	if len(ids) > 0 {
		m.logger.Info().Int("removed", len(ids)).Dur("max_age", maxAge).Msg("expired sessions evicted")
	}
	m.evicted(ids, hooks)
	return len(ids)
}

// Count returns the number of sessions in memory
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// generateSessionID returns a random 4-character hex id not used in memory
// or persistence. Callers hold m.mu.
func (m *Manager) generateSessionID() (string, error) {
	buf := make([]byte, 2)
	for range maxIDAttempts {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate session ID: %w", err)
		}
		id := hex.EncodeToString(buf)
		taken := m.sessionExists(id) || (m.persistence != nil && m.persistence.Exists(id))
		if !taken {
			return id, nil
		}
	}
	return "", fmt.Errorf("failed to generate session ID: %w", ErrSessionAlreadyExists)
}

func (m *Manager) sessionExists(id string) bool {
	_, ok := m.cached(id)
	return ok
}

// LoadPersistedSessions reads every persisted session not already in memory.
// Files that fail to load are logged and skipped.
func (m *Manager) LoadPersistedSessions() error {
	if m.persistence == nil {
		return nil
	}

	ids, err := m.persistence.ListAll()
	if err != nil {
		return fmt.Errorf("failed to list persisted sessions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	loaded := 0
	for _, id := range ids {
		if m.sessionExists(id) {
			continue
		}
		sess, err := m.persistence.Load(id)
		if err != nil {
			m.logger.Warn().Err(err).Str("session", id).Msg("failed to load persisted session")
			continue
		}
		m.sessions[key(id)] = sess
		loaded++
	}

	if loaded > 0 {
		m.logger.Info().Int("count", loaded).Msg("loaded persisted sessions")
	}
	return nil
}

// SaveAllSessions writes every in-memory session, joining the failures
func (m *Manager) SaveAllSessions() error {
	if m.persistence == nil {
		return nil
	}

	sessions := m.List()

	m.mu.RLock()
	defer m.mu.RUnlock()
	var errs []error
	for _, sess := range sessions {
		if err := m.persistence.Save(sess); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", sess.ID, err))
		}
	}
	return errors.Join(errs...)
}
