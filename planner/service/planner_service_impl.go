package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/wricardo/mcp-training/parkplanner/geo"
	"github.com/wricardo/mcp-training/parkplanner/planner/codec"
	"github.com/wricardo/mcp-training/parkplanner/planner/config"
	"github.com/wricardo/mcp-training/parkplanner/planner/dataset"
	"github.com/wricardo/mcp-training/parkplanner/planner/engine"
	"github.com/wricardo/mcp-training/parkplanner/planner/storage"
)

const instrumentationName = "github.com/wricardo/mcp-training/parkplanner/planner/service"

// SavedPlanKey is the key a session's saved plan is stored under
const SavedPlanKey = "current-plan"

// maxTileURLs bounds the URL list a tile plan may enumerate
const maxTileURLs = 10000

// binding is the synchronizer rendering one session's planner
type binding struct {
	planner *engine.Planner
	sync    *engine.Synchronizer
}

// plannerServiceImpl implements the PlannerService interface
type plannerServiceImpl struct {
	sessions    SessionManager
	configs     ConfigManager
	plans       PlanStore
	datasets    DatasetLoader
	broadcaster Broadcaster
	logger      zerolog.Logger
	meter       metric.Meter
	now         func() time.Time

	mutations metric.Int64Counter
	imports   metric.Int64Counter

	syncs  map[string]*binding
	syncMu sync.Mutex

	mu sync.RWMutex
}

// Option configures the planner service
type Option func(*plannerServiceImpl)

// WithPlanStore sets where SavePlan writes and LoadDefaults looks for a saved plan
func WithPlanStore(plans PlanStore) Option {
	return func(s *plannerServiceImpl) { s.plans = plans }
}

// WithDatasets sets the loader for the default marker and plan files
func WithDatasets(datasets DatasetLoader) Option {
	return func(s *plannerServiceImpl) { s.datasets = datasets }
}

// WithBroadcaster pushes every re-rendered session view to b
func WithBroadcaster(b Broadcaster) Option {
	return func(s *plannerServiceImpl) { s.broadcaster = b }
}

// WithLogger sets the service logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *plannerServiceImpl) { s.logger = logger }
}

// WithMeter records mutation and import counters on m instead of the global provider
func WithMeter(m metric.Meter) Option {
	return func(s *plannerServiceImpl) { s.meter = m }
}

// WithClock overrides the time source used for file timestamps
func WithClock(now func() time.Time) Option {
	return func(s *plannerServiceImpl) { s.now = now }
}

// NewPlannerService creates a new planner service instance
func NewPlannerService(sessions SessionManager, configs ConfigManager, opts ...Option) PlannerService {
	s := &plannerServiceImpl{
		sessions: sessions,
		configs:  configs,
		logger:   zerolog.Nop(),
		now:      time.Now,
		syncs:    make(map[string]*binding),
	}
	for _, opt := range opts {
		opt(s)
	}
	if n, ok := sessions.(EvictionNotifier); ok {
		n.OnEvict(s.detach)
	}
	if s.meter == nil {
		s.meter = otel.Meter(instrumentationName)
	}
	s.initMetrics()
	return s
}

func (s *plannerServiceImpl) initMetrics() {
	var err error
	s.mutations, err = s.meter.Int64Counter(
		"parkplanner.mutations",
		metric.WithDescription("Planner state changes by operation"),
	)
	if err != nil {
		s.logger.Warn().Err(err).Msg("creating mutations counter, metrics disabled")
		s.mutations, _ = noop.Meter{}.Int64Counter("parkplanner.mutations")
	}
	s.imports, err = s.meter.Int64Counter(
		"parkplanner.imports",
		metric.WithDescription("Marker and plan file imports by operation and result"),
	)
	if err != nil {
		s.logger.Warn().Err(err).Msg("creating imports counter, metrics disabled")
		s.imports, _ = noop.Meter{}.Int64Counter("parkplanner.imports")
	}
}

// parkID returns the config_id for a park display name, used for consistent API responses
func (s *plannerServiceImpl) parkID(parkName string) string {
	parks, err := s.configs.ListConfigs()
	if err == nil {
		for _, p := range parks {
			if p.Name == parkName {
				return p.ConfigID
			}
		}
	}
	if parkName == "" {
		return config.DefaultParkName
	}
	return parkName
}

// session looks up a session, touches it and makes sure its view is broadcast
func (s *plannerServiceImpl) session(id string) (*Session, error) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	s.sessions.UpdateLastAccessed(sess.ID)
	s.attach(sess)
	return sess, nil
}

// attach subscribes a broadcasting synchronizer to the session planner. A
// session reloaded from disk carries a new planner, which replaces the old
// binding.
func (s *plannerServiceImpl) attach(sess *Session) {
	if s.broadcaster == nil {
		return
	}
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	k := strings.ToLower(sess.ID)
	if b, ok := s.syncs[k]; ok {
		if b.planner == sess.Planner {
			return
		}
		b.sync.Close()
	}
	id := sess.ID
	s.syncs[k] = &binding{
		planner: sess.Planner,
		sync: engine.NewSynchronizer(sess.Planner, engine.RendererFunc(func(v *engine.View) {
			s.broadcaster.BroadcastView(id, v)
		})),
	}
}

// detach stops rendering a session. It also runs when the session manager
// evicts a session from memory.
func (s *plannerServiceImpl) detach(id string) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	k := strings.ToLower(id)
	if b, ok := s.syncs[k]; ok {
		b.sync.Close()
		delete(s.syncs, k)
	}
}

// apply runs fn as a single batch so one gesture renders once, then counts
// the mutation and persists the session.
func (s *plannerServiceImpl) apply(ctx context.Context, sess *Session, op string, fn func(p *engine.Planner) error) error {
	if err := sess.Planner.Batch(func() error { return fn(sess.Planner) }); err != nil {
		return err
	}
	s.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	s.persist(sess.ID, op)
	return nil
}

func (s *plannerServiceImpl) persist(id, op string) {
	if err := s.sessions.Save(id); err != nil {
		s.logger.Warn().Err(err).Str("session", id).Str("op", op).Msg("failed to persist session")
	}
}

func (s *plannerServiceImpl) sessionInfo(sess *Session) *SessionInfo {
	info := &SessionInfo{
		ID:             sess.ID,
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: s.sessions.LastAccessed(sess.ID),
		MarkerCount:    sess.Planner.Store.Len(),
		PlanCount:      sess.Planner.Plan.Len(),
		Mode:           sess.Planner.Mode(),
		Filter:         sess.Planner.Filter(),
		Park:           sess.Park,
	}
	if sess.Park != nil {
		info.ParkName = s.parkID(sess.Park.Name)
	}
	return info
}

func actionResult(success bool, message string, p *engine.Planner) *ActionResult {
	return &ActionResult{Success: success, Message: message, View: engine.Project(p)}
}

// formatLatLng renders a position the way status messages show it
func formatLatLng(pos engine.Position) string {
	return fmt.Sprintf("%.6f, %.6f", pos.Lat, pos.Lng)
}

// CreateSession creates a new planning session on the named park
func (s *plannerServiceImpl) CreateSession(ctx context.Context, parkName string) (*SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	park, err := s.loadPark(parkName)
	if err != nil {
		return nil, err
	}

	// Let session manager generate a proper 4-character ID
	sess, err := s.sessions.Create("", park)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.attach(sess)

	s.logger.Info().Str("op", "create_session").Str("session", sess.ID).Str("park", park.Name).Msg("session created")

	info := s.sessionInfo(sess)
	if parkName != "" {
		info.ParkName = parkName
	}
	return info, nil
}

// loadPark resolves a park name, listing the available ids when it is unknown
func (s *plannerServiceImpl) loadPark(parkName string) (*config.ParkConfig, error) {
	if parkName == "" {
		return s.configs.GetDefault(), nil
	}
	park, err := s.configs.LoadConfig(parkName)
	if err == nil {
		return park, nil
	}
	if !errors.Is(err, config.ErrConfigNotFound) {
		return nil, fmt.Errorf("failed to load park %s: %w", parkName, err)
	}
	parks, listErr := s.configs.ListConfigs()
	if listErr == nil && len(parks) > 0 {
		ids := make([]string, 0, len(parks))
		for _, p := range parks {
			ids = append(ids, p.ConfigID)
		}
		return nil, fmt.Errorf("%w: park '%s'. Available parks: %v", config.ErrConfigNotFound, parkName, ids)
	}
	return nil, fmt.Errorf("%w: park '%s'. Use /api/parks to list available parks", config.ErrConfigNotFound, parkName)
}

// GetSession retrieves session information
func (s *plannerServiceImpl) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	return s.sessionInfo(sess), nil
}

// ListSessions returns all active sessions
func (s *plannerServiceImpl) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := s.sessions.List()
	result := make([]*SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, s.sessionInfo(sess))
	}
	return result, nil
}

// DeleteSession removes a session
func (s *plannerServiceImpl) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sessions.Delete(sessionID); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return err
	}
	s.detach(sessionID)
	s.logger.Info().Str("op", "delete_session").Str("session", sessionID).Msg("session deleted")
	return nil
}

// GetView projects the current state of a session
func (s *plannerServiceImpl) GetView(ctx context.Context, sessionID string) (*engine.View, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	return engine.Project(sess.Planner), nil
}

// PlaceMarker adds a marker where the map was clicked
func (s *plannerServiceImpl) PlaceMarker(ctx context.Context, sessionID string, req PlaceMarkerRequest) (*ActionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	if !geo.InRange(req.Lat, req.Lng) {
		return nil, fmt.Errorf("%w: %v, %v", engine.ErrInvalidPosition, req.Lat, req.Lng)
	}

	var id string
	err = s.apply(ctx, sess, "place_marker", func(p *engine.Planner) error {
		var err error
		id, err = p.Store.Add(engine.Position{Lat: req.Lat, Lng: req.Lng}, strings.TrimSpace(req.Label), engine.Category(req.Category))
		return err
	})
	if err != nil {
		return nil, err
	}

	m, _ := sess.Planner.Store.Get(id)
	s.logger.Debug().Str("op", "place_marker").Str("session", sess.ID).Str("id", id).
		Float64("lat", m.Position.Lat).Float64("lng", m.Position.Lng).Msg("marker placed")

	res := actionResult(true, fmt.Sprintf("Added %s (%s) at %s", m.Label, m.Category, formatLatLng(m.Position)), sess.Planner)
	res.MarkerID = id
	return res, nil
}

// RenameMarker sets a marker label. The label is trimmed; a blank label keeps the old one.
func (s *plannerServiceImpl) RenameMarker(ctx context.Context, sessionID, markerID, label string) (*ActionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	m, ok := sess.Planner.Store.Get(markerID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrNotFound, markerID)
	}

	label = strings.TrimSpace(label)
	if label == "" || label == m.Label {
		res := actionResult(false, fmt.Sprintf("Label unchanged: \"%s\"", m.Label), sess.Planner)
		res.MarkerID = markerID
		return res, nil
	}

	err = s.apply(ctx, sess, "rename_marker", func(p *engine.Planner) error {
		return p.Store.Update(markerID, engine.MarkerPatch{Label: &label})
	})
	if err != nil {
		return nil, err
	}

	res := actionResult(true, fmt.Sprintf("Renamed to \"%s\"", label), sess.Planner)
	res.MarkerID = markerID
	return res, nil
}

// RetypeMarker changes a marker category
func (s *plannerServiceImpl) RetypeMarker(ctx context.Context, sessionID, markerID, category string) (*ActionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	c, ok := engine.ParseCategory(category)
	if !ok {
		return nil, fmt.Errorf("%w: %q", engine.ErrInvalidCategory, category)
	}

	err = s.apply(ctx, sess, "retype_marker", func(p *engine.Planner) error {
		return p.Store.Update(markerID, engine.MarkerPatch{Category: &c})
	})
	if err != nil {
		return nil, err
	}

	res := actionResult(true, fmt.Sprintf("Type set to %s", c), sess.Planner)
	res.MarkerID = markerID
	return res, nil
}

// MoveMarker drags a marker to a new position
func (s *plannerServiceImpl) MoveMarker(ctx context.Context, sessionID, markerID string, pos engine.Position) (*ActionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	if !geo.InRange(pos.Lat, pos.Lng) {
		return nil, fmt.Errorf("%w: %v, %v", engine.ErrInvalidPosition, pos.Lat, pos.Lng)
	}

	err = s.apply(ctx, sess, "move_marker", func(p *engine.Planner) error {
		return p.Store.Update(markerID, engine.MarkerPatch{Position: &pos})
	})
	if err != nil {
		return nil, err
	}

	m, _ := sess.Planner.Store.Get(markerID)
	res := actionResult(true, fmt.Sprintf("%s (%s) moved to %s", m.Label, m.Category, formatLatLng(m.Position)), sess.Planner)
	res.MarkerID = markerID
	return res, nil
}

// RemoveMarker deletes a marker and its plan entry. An unknown id changes
// nothing and is reported, not an error.
func (s *plannerServiceImpl) RemoveMarker(ctx context.Context, sessionID, markerID string) (*ActionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	m, ok := sess.Planner.Store.Get(markerID)
	if !ok {
		res := actionResult(false, "Not found", sess.Planner)
		res.MarkerID = markerID
		return res, nil
	}

	err = s.apply(ctx, sess, "remove_marker", func(p *engine.Planner) error {
		p.Store.Remove(markerID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug().Str("op", "remove_marker").Str("session", sess.ID).Str("id", markerID).Msg("marker removed")
	res := actionResult(true, fmt.Sprintf("%s removed", m.Label), sess.Planner)
	res.MarkerID = markerID
	return res, nil
}

// ClearMarkers removes every marker, which also empties the plan
func (s *plannerServiceImpl) ClearMarkers(ctx context.Context, sessionID string) (*ActionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	n := sess.Planner.Store.Len()
	err = s.apply(ctx, sess, "clear_markers", func(p *engine.Planner) error {
		p.Store.Clear()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return actionResult(true, fmt.Sprintf("Cleared %d marker(s)", n), sess.Planner), nil
}

// AddToPlan appends a marker to the plan. Adding it twice is reported, not an error.
func (s *plannerServiceImpl) AddToPlan(ctx context.Context, sessionID, markerID string) (*ActionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	var outcome engine.AppendOutcome
	err = s.apply(ctx, sess, "add_to_plan", func(p *engine.Planner) error {
		var err error
		outcome, err = p.Plan.Append(markerID)
		return err
	})
	if err != nil {
		return nil, err
	}

	message := "Added to plan"
	if outcome == engine.AppendAlreadyPresent {
		message = "Already in plan"
	}
	res := actionResult(outcome == engine.AppendAdded, message, sess.Planner)
	res.MarkerID = markerID
	res.Outcome = outcome.String()
	return res, nil
}

// RemoveFromPlan drops a marker from the plan, keeping the marker
func (s *plannerServiceImpl) RemoveFromPlan(ctx context.Context, sessionID, markerID string) (*ActionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	var removed bool
	err = s.apply(ctx, sess, "remove_from_plan", func(p *engine.Planner) error {
		removed = p.Plan.Remove(markerID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	message := "Removed from plan"
	if !removed {
		message = "Not in plan"
	}
	res := actionResult(removed, message, sess.Planner)
	res.MarkerID = markerID
	return res, nil
}

// MovePlanItem shifts a plan entry by delta slots; out-of-range moves change nothing
func (s *plannerServiceImpl) MovePlanItem(ctx context.Context, sessionID, markerID string, delta int) (*ActionResult, error) {
	return s.reorder(ctx, sessionID, markerID, "move_plan_item", func(p *engine.PlanSequencer) bool {
		return p.MoveBy(markerID, delta)
	})
}

// MovePlanItemTo drops a plan entry into the slot of targetID
func (s *plannerServiceImpl) MovePlanItemTo(ctx context.Context, sessionID, markerID, targetID string) (*ActionResult, error) {
	return s.reorder(ctx, sessionID, markerID, "move_plan_item_to", func(p *engine.PlanSequencer) bool {
		return p.MoveTo(markerID, targetID)
	})
}

func (s *plannerServiceImpl) reorder(ctx context.Context, sessionID, markerID, op string, move func(p *engine.PlanSequencer) bool) (*ActionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	var moved bool
	err = s.apply(ctx, sess, op, func(p *engine.Planner) error {
		moved = move(p.Plan)
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := actionResult(moved, "Plan unchanged", sess.Planner)
	if moved {
		idx, _ := sess.Planner.Plan.Index(markerID)
		res.Message = fmt.Sprintf("Moved to position %d", idx)
	}
	res.MarkerID = markerID
	return res, nil
}

// ClearPlan empties the plan, keeping every marker
func (s *plannerServiceImpl) ClearPlan(ctx context.Context, sessionID string) (*ActionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	err = s.apply(ctx, sess, "clear_plan", func(p *engine.Planner) error {
		p.Plan.Clear()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return actionResult(true, "Plan cleared", sess.Planner), nil
}

// SavePlan writes the plan file to the plan store. A storage failure is
// reported in the result and logged; it never affects the session.
func (s *plannerServiceImpl) SavePlan(ctx context.Context, sessionID string) (*ActionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	if s.plans == nil {
		return actionResult(false, "Plan storage is not configured", sess.Planner), nil
	}

	data, err := codec.Encode(codec.ExportPlan(sess.Planner, s.now()))
	if err != nil {
		return nil, fmt.Errorf("failed to encode plan: %w", err)
	}
	if err := s.plans.Put(ctx, sess.ID, SavedPlanKey, data); err != nil {
		s.logger.Warn().Err(err).Str("op", "save_plan").Str("session", sess.ID).Msg("could not write plan")
		return actionResult(false, "Could not save plan", sess.Planner), nil
	}

	s.logger.Info().Str("op", "save_plan").Str("session", sess.ID).Int("items", sess.Planner.Plan.Len()).Msg("plan saved")
	return actionResult(true, "Plan saved successfully", sess.Planner), nil
}

// SetMode switches between the markers and plan views
func (s *plannerServiceImpl) SetMode(ctx context.Context, sessionID, mode string) (*ActionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	m, ok := engine.ParseViewMode(mode)
	if !ok {
		return nil, fmt.Errorf("%w: %q", engine.ErrInvalidMode, mode)
	}

	err = s.apply(ctx, sess, "set_mode", func(p *engine.Planner) error {
		return p.SetMode(m)
	})
	if err != nil {
		return nil, err
	}

	message := "Markers view"
	if m == engine.ModePlan {
		message = "Plan view"
	}
	return actionResult(true, message, sess.Planner), nil
}

// SetFilter restricts the markers view to one category or shows all
func (s *plannerServiceImpl) SetFilter(ctx context.Context, sessionID, filter string) (*ActionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	f, ok := engine.ParseFilter(filter)
	if !ok {
		return nil, fmt.Errorf("%w: %q", engine.ErrInvalidFilter, filter)
	}

	err = s.apply(ctx, sess, "set_filter", func(p *engine.Planner) error {
		return p.SetFilter(f)
	})
	if err != nil {
		return nil, err
	}

	message := "Showing all markers"
	if f != engine.FilterAll {
		message = fmt.Sprintf("Filter: %s", f)
	}
	return actionResult(true, message, sess.Planner), nil
}

// ExportMarkers returns the marker file of a session
func (s *plannerServiceImpl) ExportMarkers(ctx context.Context, sessionID string) (*codec.MarkerDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	return codec.ExportMarkers(sess.Planner, s.now()), nil
}

// ExportPlan returns the plan file of a session
func (s *plannerServiceImpl) ExportPlan(ctx context.Context, sessionID string) (*codec.PlanDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	return codec.ExportPlan(sess.Planner, s.now()), nil
}

// ExportGeoJSON returns the markers of a session as a GeoJSON FeatureCollection
func (s *plannerServiceImpl) ExportGeoJSON(ctx context.Context, sessionID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	return codec.ExportGeoJSON(sess.Planner)
}

// ImportMarkers loads a marker file into a session. The plan is always reset.
func (s *plannerServiceImpl) ImportMarkers(ctx context.Context, sessionID string, data []byte, clear bool) (*ImportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	var report codec.ImportReport
	err = s.apply(ctx, sess, "import_markers", func(p *engine.Planner) error {
		var err error
		report, err = codec.ImportMarkersJSON(p, data, clear)
		return err
	})
	if err != nil {
		return s.importFailed(ctx, sess, "import_markers", err)
	}

	s.imports.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "import_markers"), attribute.String("result", "ok")))
	s.logger.Info().Str("op", "import_markers").Str("session", sess.ID).
		Int("added", report.Added).Int("skipped", report.Skipped).Msg("markers imported")

	return &ImportResult{
		Success: true,
		Message: fmt.Sprintf("Imported %d marker(s)", report.Added),
		Report:  &report,
		View:    engine.Project(sess.Planner),
	}, nil
}

// ImportPlan loads a plan file into a session, resolving or creating its markers
func (s *plannerServiceImpl) ImportPlan(ctx context.Context, sessionID string, data []byte) (*ImportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	var report codec.ImportReport
	err = s.apply(ctx, sess, "import_plan", func(p *engine.Planner) error {
		var err error
		report, err = codec.ImportPlanJSON(p, data)
		return err
	})
	if err != nil {
		return s.importFailed(ctx, sess, "import_plan", err)
	}

	s.imports.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "import_plan"), attribute.String("result", "ok")))
	s.logger.Info().Str("op", "import_plan").Str("session", sess.ID).
		Int("planned", report.Planned).Int("added", report.Added).Int("reused", report.Reused).Msg("plan imported")

	return &ImportResult{
		Success: true,
		Message: fmt.Sprintf("Imported plan with %d item(s)", report.Planned),
		Report:  &report,
		View:    engine.Project(sess.Planner),
	}, nil
}

// importFailed turns a rejected document into a failed result. Other errors pass through.
func (s *plannerServiceImpl) importFailed(ctx context.Context, sess *Session, op string, err error) (*ImportResult, error) {
	var ve *engine.ValidationError
	if !errors.As(err, &ve) {
		return nil, err
	}
	s.imports.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op), attribute.String("result", "rejected")))
	s.logger.Info().Str("op", op).Str("session", sess.ID).Str("reason", ve.Reason).Msg("import rejected")
	return &ImportResult{
		Success: false,
		Message: "Import failed: " + ve.Reason,
		Reason:  ve.Reason,
		View:    engine.Project(sess.Planner),
	}, nil
}

// LoadDefaults applies the park's default marker file and then the session's
// saved plan, or the park's default plan when nothing was saved. Missing
// datasets are reported in the messages and never fail the call.
func (s *plannerServiceImpl) LoadDefaults(ctx context.Context, sessionID string) (*DefaultsResult, error) {
	s.mu.RLock()
	sess, err := s.session(sessionID)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	park := sess.Park
	if park == nil {
		park = s.configs.GetDefault()
	}

	result := &DefaultsResult{Messages: []string{}}

	// fetch outside the lock, datasets may be remote
	var markersRes *dataset.Resource
	if s.datasets != nil && len(park.DefaultMarkers) > 0 {
		markersRes, err = s.datasets.First(ctx, park.DefaultMarkers...)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn().Err(err).Str("session", sess.ID).Msg("default markers not loaded")
			result.Messages = append(result.Messages, fmt.Sprintf("No default marker file (%s) found.", park.DefaultMarkers[0]))
		}
	}

	savedPlan := s.savedPlan(ctx, sess.ID)
	var planRes *dataset.Resource
	if savedPlan == nil && s.datasets != nil && park.DefaultPlan != "" {
		planRes, err = s.datasets.First(ctx, park.DefaultPlan)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// optional
			s.logger.Debug().Err(err).Str("session", sess.ID).Msg("default plan not loaded")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// the session may have been deleted while fetching
	sess, err = s.session(sessionID)
	if err != nil {
		return nil, err
	}

	err = s.apply(ctx, sess, "load_defaults", func(p *engine.Planner) error {
		if markersRes != nil {
			report, err := codec.ImportMarkersJSON(p, markersRes.Data, true)
			if err != nil {
				result.Messages = append(result.Messages, "Import failed: "+validationReason(err))
			} else {
				count := report.Added + report.Skipped
				result.Markers = &DatasetLoad{Name: markersRes.Name, Source: markersRes.Source, Count: count, Report: report}
				result.Messages = append(result.Messages, fmt.Sprintf("Loaded %d marker(s) from %s", count, markersRes.Name))
			}
		}

		switch {
		case savedPlan != nil:
			report := codec.ImportPlan(p, savedPlan)
			count := len(savedPlan.Plan)
			result.Plan = &DatasetLoad{Name: SavedPlanKey, Source: "store", Count: count, Report: report}
			result.Messages = append(result.Messages, fmt.Sprintf("Loaded trip plan (local) (%d item(s))", count))
		case planRes != nil:
			doc, err := codec.ParsePlan(planRes.Data)
			if err != nil {
				s.logger.Warn().Err(err).Str("dataset", planRes.Name).Msg("default plan rejected")
				return nil
			}
			report := codec.ImportPlan(p, doc)
			count := len(doc.Plan)
			result.Plan = &DatasetLoad{Name: planRes.Name, Source: planRes.Source, Count: count, Report: report}
			result.Messages = append(result.Messages, fmt.Sprintf("Loaded trip plan (%d item(s))", count))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("op", "load_defaults").Str("session", sess.ID).
		Int("markers", sess.Planner.Store.Len()).Int("planned", sess.Planner.Plan.Len()).Msg("defaults loaded")

	result.View = engine.Project(sess.Planner)
	return result, nil
}

// savedPlan reads a non-empty saved plan of the session, nil when there is none
func (s *plannerServiceImpl) savedPlan(ctx context.Context, sessionID string) *codec.PlanDocument {
	if s.plans == nil {
		return nil
	}
	data, err := s.plans.Get(ctx, sessionID, SavedPlanKey)
	if err != nil {
		if !errors.Is(err, storage.ErrKeyNotFound) {
			s.logger.Warn().Err(err).Str("session", sessionID).Msg("could not read saved plan")
		}
		return nil
	}
	doc, err := codec.ParsePlan(data)
	if err != nil {
		s.logger.Warn().Err(err).Str("session", sessionID).Msg("saved plan is unreadable")
		return nil
	}
	if len(doc.Plan) == 0 {
		return nil
	}
	return doc
}

func validationReason(err error) string {
	var ve *engine.ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	return err.Error()
}

// ListParks returns the available park configurations
func (s *plannerServiceImpl) ListParks(ctx context.Context) ([]*config.ParkInfo, error) {
	return s.configs.ListConfigs()
}

// GetPark loads a park configuration; an empty name selects the default park
func (s *plannerServiceImpl) GetPark(ctx context.Context, parkName string) (*config.ParkConfig, error) {
	return s.loadPark(parkName)
}

// TilePlan counts the tiles covering a park's bounds at the given zooms, all
// of the park's zooms when none are given. With includeURLs every tile URL is listed.
func (s *plannerServiceImpl) TilePlan(ctx context.Context, parkName string, zooms []int, includeURLs bool) (*TilePlan, error) {
	park, err := s.loadPark(parkName)
	if err != nil {
		return nil, err
	}
	ranges, err := park.TileRanges(zooms)
	if err != nil {
		return nil, err
	}

	plan := &TilePlan{Park: s.parkID(park.Name), Ranges: ranges}
	for _, r := range ranges {
		plan.Total += r.Count()
	}
	plan.Message = fmt.Sprintf("Save %d tile(s) for offline use?", plan.Total)

	if !includeURLs {
		return plan, nil
	}
	if plan.Total > maxTileURLs {
		return nil, fmt.Errorf("%w: %d tiles, listing is limited to %d", geo.ErrTooManyTiles, plan.Total, maxTileURLs)
	}
	plan.URLs = make([]string, 0, plan.Total)
	for _, r := range ranges {
		tiles, err := r.Tiles()
		if err != nil {
			return nil, err
		}
		for _, t := range tiles {
			plan.URLs = append(plan.URLs, park.TileURLFor(t))
		}
	}
	return plan, nil
}
