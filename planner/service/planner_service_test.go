package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/wricardo/mcp-training/parkplanner/geo"
	"github.com/wricardo/mcp-training/parkplanner/planner/config"
	"github.com/wricardo/mcp-training/parkplanner/planner/dataset"
	"github.com/wricardo/mcp-training/parkplanner/planner/engine"
	"github.com/wricardo/mcp-training/parkplanner/planner/service"
	"github.com/wricardo/mcp-training/parkplanner/planner/storage"
)

// MockSessionManager implements service.SessionManager for testing
type MockSessionManager struct {
	sessions map[string]*service.Session
	saves    int
	saveErr  error
}

func NewMockSessionManager() *MockSessionManager {
	return &MockSessionManager{sessions: make(map[string]*service.Session)}
}

func (m *MockSessionManager) Create(id string, park *config.ParkConfig) (*service.Session, error) {
	// Generate ID if empty (mimics real session manager behavior)
	if id == "" {
		id = fmt.Sprintf("s%03d", len(m.sessions)+1)
	}
	if _, exists := m.sessions[id]; exists {
		return nil, errors.New("session already exists")
	}
	session := &service.Session{
		ID:             id,
		Planner:        engine.NewPlanner(),
		Park:           park,
		CreatedAt:      time.Now(),
		LastAccessedAt: time.Now(),
	}
	m.sessions[id] = session
	return session, nil
}

func (m *MockSessionManager) Get(id string) (*service.Session, error) {
	session, exists := m.sessions[id]
	if !exists {
		return nil, service.ErrSessionNotFound
	}
	return session, nil
}

func (m *MockSessionManager) GetOrCreate(id string, park *config.ParkConfig) (*service.Session, error) {
	if s, err := m.Get(id); err == nil {
		return s, nil
	}
	return m.Create(id, park)
}

func (m *MockSessionManager) List() []*service.Session {
	result := make([]*service.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		result = append(result, s)
	}
	return result
}

func (m *MockSessionManager) Delete(id string) error {
	if _, exists := m.sessions[id]; !exists {
		return service.ErrSessionNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *MockSessionManager) UpdateLastAccessed(id string) error {
	if s, exists := m.sessions[id]; exists {
		s.LastAccessedAt = time.Now()
		return nil
	}
	return service.ErrSessionNotFound
}

func (m *MockSessionManager) LastAccessed(id string) time.Time {
	if s, exists := m.sessions[id]; exists {
		return s.LastAccessedAt
	}
	return time.Time{}
}

func (m *MockSessionManager) Save(id string) error {
	m.saves++
	return m.saveErr
}

// MockConfigManager implements service.ConfigManager for testing
type MockConfigManager struct {
	parks map[string]*config.ParkConfig
}

func testPark() *config.ParkConfig {
	return &config.ParkConfig{
		Name:            "Test Park",
		TileURLTemplate: "https://tiles.example.com/{version}/{z}/{x}/{y}.png",
		Version:         "v1",
		MinZoom:         14,
		MaxZoom:         16,
		InitialView: config.InitialView{
			Center: config.LatLng{Lat: 28.4177, Lng: -81.5812},
			Zoom:   15,
		},
		MaxBounds: &config.Bounds{
			SouthWest: config.LatLng{Lat: 28.41, Lng: -81.59},
			NorthEast: config.LatLng{Lat: 28.42, Lng: -81.58},
		},
		DefaultMarkers: []string{"markers_new.json", "markers.json"},
		DefaultPlan:    "trip-plan.json",
	}
}

func NewMockConfigManager() *MockConfigManager {
	return &MockConfigManager{parks: map[string]*config.ParkConfig{"test": testPark()}}
}

func (m *MockConfigManager) LoadConfig(name string) (*config.ParkConfig, error) {
	p, ok := m.parks[name]
	if !ok {
		return nil, config.ErrConfigNotFound
	}
	return p, nil
}

func (m *MockConfigManager) ListConfigs() ([]*config.ParkInfo, error) {
	return []*config.ParkInfo{{Filename: "test.json", ConfigID: "test", Name: "Test Park"}}, nil
}

func (m *MockConfigManager) GetDefault() *config.ParkConfig {
	return m.parks["test"]
}

// recordingBroadcaster collects broadcast views per session
type recordingBroadcaster struct {
	mu    sync.Mutex
	views map[string][]*engine.View
}

func (b *recordingBroadcaster) BroadcastView(sessionID string, view *engine.View) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.views == nil {
		b.views = make(map[string][]*engine.View)
	}
	b.views[sessionID] = append(b.views[sessionID], view)
}

func (b *recordingBroadcaster) count(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.views[sessionID])
}

// failingStore is a PlanStore whose every call fails
type failingStore struct{}

func (failingStore) Put(context.Context, string, string, []byte) error {
	return fmt.Errorf("%w: disk full", engine.ErrPersistenceUnavailable)
}

func (failingStore) Get(context.Context, string, string) ([]byte, error) {
	return nil, fmt.Errorf("%w: disk gone", engine.ErrPersistenceUnavailable)
}

func newTestService(t *testing.T, opts ...service.Option) (service.PlannerService, *MockSessionManager, string) {
	t.Helper()
	sessions := NewMockSessionManager()
	svc := service.NewPlannerService(sessions, NewMockConfigManager(), append([]service.Option{service.WithLogger(zerolog.Nop())}, opts...)...)
	info, err := svc.CreateSession(context.Background(), "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return svc, sessions, info.ID
}

func TestPlannerService_CreateSession(t *testing.T) {
	sessions := NewMockSessionManager()
	svc := service.NewPlannerService(sessions, NewMockConfigManager())
	ctx := context.Background()

	t.Run("default park", func(t *testing.T) {
		info, err := svc.CreateSession(ctx, "")
		if err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
		if info.ParkName != "test" {
			t.Errorf("Expected park id 'test', got %q", info.ParkName)
		}
		if info.Mode != engine.ModeMarkers || info.Filter != engine.FilterAll {
			t.Errorf("Unexpected initial mode/filter %s/%s", info.Mode, info.Filter)
		}
	})

	t.Run("unknown park lists available ids", func(t *testing.T) {
		_, err := svc.CreateSession(ctx, "epcot")
		if !errors.Is(err, config.ErrConfigNotFound) {
			t.Fatalf("Expected ErrConfigNotFound, got %v", err)
		}
		if !strings.Contains(err.Error(), "[test]") {
			t.Errorf("Expected available parks in error, got %v", err)
		}
	})

	t.Run("list and delete", func(t *testing.T) {
		list, _ := svc.ListSessions(ctx)
		if len(list) != 1 {
			t.Fatalf("Expected 1 session, got %d", len(list))
		}
		if err := svc.DeleteSession(ctx, list[0].ID); err != nil {
			t.Fatalf("DeleteSession failed: %v", err)
		}
		if _, err := svc.GetSession(ctx, list[0].ID); !errors.Is(err, service.ErrSessionNotFound) {
			t.Errorf("Expected ErrSessionNotFound, got %v", err)
		}
		if err := svc.DeleteSession(ctx, list[0].ID); !errors.Is(err, service.ErrSessionNotFound) {
			t.Errorf("Expected ErrSessionNotFound on second delete, got %v", err)
		}
	})
}

func TestPlannerService_PlacementToRemovalScenario(t *testing.T) {
	svc, sessions, id := newTestService(t)
	ctx := context.Background()

	res, err := svc.PlaceMarker(ctx, id, service.PlaceMarkerRequest{Lat: 28.4177, Lng: -81.5812})
	if err != nil {
		t.Fatalf("PlaceMarker failed: %v", err)
	}
	if res.Message != "Added Marker 1 (misc) at 28.417700, -81.581200" {
		t.Errorf("Unexpected message %q", res.Message)
	}
	markerID := res.MarkerID
	if markerID == "" || res.View.MarkerCount != 1 {
		t.Fatalf("Expected one marker, got %+v", res)
	}

	res, err = svc.AddToPlan(ctx, id, markerID)
	if err != nil {
		t.Fatalf("AddToPlan failed: %v", err)
	}
	if !res.Success || res.Message != "Added to plan" || res.Outcome != "added" {
		t.Errorf("Unexpected result %+v", res)
	}

	res, err = svc.AddToPlan(ctx, id, markerID)
	if err != nil {
		t.Fatalf("AddToPlan failed: %v", err)
	}
	if res.Success || res.Message != "Already in plan" || res.Outcome != "already_present" {
		t.Errorf("Expected already present, got %+v", res)
	}
	if res.View.PlanCount != 1 {
		t.Errorf("Expected plan length 1, got %d", res.View.PlanCount)
	}

	res, err = svc.SetMode(ctx, id, "plan")
	if err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}
	if icon := res.View.Markers[0].Icon; icon.Kind != engine.IconNumbered || icon.Number != 1 {
		t.Errorf("Expected numbered icon 1, got %+v", icon)
	}

	res, err = svc.RemoveMarker(ctx, id, markerID)
	if err != nil {
		t.Fatalf("RemoveMarker failed: %v", err)
	}
	if res.Message != "Marker 1 removed" {
		t.Errorf("Unexpected message %q", res.Message)
	}
	if res.View.MarkerCount != 0 || res.View.PlanCount != 0 {
		t.Errorf("Expected empty store and plan, got %d/%d", res.View.MarkerCount, res.View.PlanCount)
	}
	if res.View.Placeholder != engine.PlaceholderPlan {
		t.Errorf("Expected plan placeholder, got %q", res.View.Placeholder)
	}

	if sessions.saves == 0 {
		t.Error("Expected the session to be persisted after mutations")
	}
}

func TestPlannerService_MarkerEdits(t *testing.T) {
	svc, _, id := newTestService(t)
	ctx := context.Background()

	placed, _ := svc.PlaceMarker(ctx, id, service.PlaceMarkerRequest{Lat: 28.415, Lng: -81.585, Label: "  Churros  ", Category: "food"})
	if placed.Message != "Added Churros (food) at 28.415000, -81.585000" {
		t.Errorf("Expected trimmed label, got %q", placed.Message)
	}
	mid := placed.MarkerID

	tests := []struct {
		name    string
		call    func() (*service.ActionResult, error)
		wantErr error
		wantMsg string
		success bool
	}{
		{
			name:    "rename trims",
			call:    func() (*service.ActionResult, error) { return svc.RenameMarker(ctx, id, mid, "  Dole Whip ") },
			wantMsg: `Renamed to "Dole Whip"`,
			success: true,
		},
		{
			name:    "blank rename keeps label",
			call:    func() (*service.ActionResult, error) { return svc.RenameMarker(ctx, id, mid, "   ") },
			wantMsg: `Label unchanged: "Dole Whip"`,
		},
		{
			name:    "retype",
			call:    func() (*service.ActionResult, error) { return svc.RetypeMarker(ctx, id, mid, "shop") },
			wantMsg: "Type set to shop",
			success: true,
		},
		{
			name:    "retype unknown category",
			call:    func() (*service.ActionResult, error) { return svc.RetypeMarker(ctx, id, mid, "castle") },
			wantErr: engine.ErrInvalidCategory,
		},
		{
			name: "move",
			call: func() (*service.ActionResult, error) {
				return svc.MoveMarker(ctx, id, mid, engine.Position{Lat: 28.416, Lng: -81.584})
			},
			wantMsg: "Dole Whip (shop) moved to 28.416000, -81.584000",
			success: true,
		},
		{
			name: "move out of range",
			call: func() (*service.ActionResult, error) {
				return svc.MoveMarker(ctx, id, mid, engine.Position{Lat: 91, Lng: 0})
			},
			wantErr: engine.ErrInvalidPosition,
		},
		{
			name:    "rename unknown marker",
			call:    func() (*service.ActionResult, error) { return svc.RenameMarker(ctx, id, "m99", "x") },
			wantErr: engine.ErrNotFound,
		},
		{
			name:    "remove unknown marker",
			call:    func() (*service.ActionResult, error) { return svc.RemoveMarker(ctx, id, "m99") },
			wantMsg: "Not found",
			success: false,
		},
		{
			name:    "unknown session",
			call:    func() (*service.ActionResult, error) { return svc.RenameMarker(ctx, "zzzz", mid, "x") },
			wantErr: service.ErrSessionNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.call()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if res.Message != tt.wantMsg {
				t.Errorf("Expected message %q, got %q", tt.wantMsg, res.Message)
			}
			if res.Success != tt.success {
				t.Errorf("Expected success %v, got %v", tt.success, res.Success)
			}
		})
	}

	t.Run("place rejects bad input", func(t *testing.T) {
		if _, err := svc.PlaceMarker(ctx, id, service.PlaceMarkerRequest{Lat: 0, Lng: 200}); !errors.Is(err, engine.ErrInvalidPosition) {
			t.Errorf("Expected ErrInvalidPosition, got %v", err)
		}
		if _, err := svc.PlaceMarker(ctx, id, service.PlaceMarkerRequest{Lat: 1, Lng: 1, Category: "castle"}); !errors.Is(err, engine.ErrInvalidCategory) {
			t.Errorf("Expected ErrInvalidCategory, got %v", err)
		}
	})
}

func TestPlannerService_PlanOrdering(t *testing.T) {
	svc, _, id := newTestService(t)
	ctx := context.Background()

	var ids []string
	for i := range 4 {
		res, _ := svc.PlaceMarker(ctx, id, service.PlaceMarkerRequest{Lat: 28.41 + float64(i)*0.001, Lng: -81.58})
		ids = append(ids, res.MarkerID)
		svc.AddToPlan(ctx, id, res.MarkerID)
	}

	order := func(v *engine.View) string {
		var out []string
		for _, r := range v.Rows {
			out = append(out, r.ID)
		}
		return strings.Join(out, ",")
	}
	svc.SetMode(ctx, id, "plan")

	res, err := svc.MovePlanItem(ctx, id, ids[0], -1)
	if err != nil {
		t.Fatalf("MovePlanItem failed: %v", err)
	}
	if res.Success || res.Message != "Plan unchanged" {
		t.Errorf("Expected no-op at the top, got %+v", res)
	}

	res, _ = svc.MovePlanItem(ctx, id, ids[0], 1)
	if !res.Success || res.Message != "Moved to position 2" {
		t.Errorf("Unexpected result %+v", res)
	}
	if got := order(res.View); got != strings.Join([]string{ids[1], ids[0], ids[2], ids[3]}, ",") {
		t.Errorf("Unexpected order %s", got)
	}

	res, _ = svc.MovePlanItemTo(ctx, id, ids[3], ids[1])
	if !res.Success || res.Message != "Moved to position 1" {
		t.Errorf("Unexpected result %+v", res)
	}
	if got := order(res.View); got != strings.Join([]string{ids[3], ids[1], ids[0], ids[2]}, ",") {
		t.Errorf("Unexpected order %s", got)
	}

	res, _ = svc.RemoveFromPlan(ctx, id, ids[1])
	if !res.Success || res.Message != "Removed from plan" || res.View.PlanCount != 3 {
		t.Errorf("Unexpected result %+v", res)
	}
	res, _ = svc.RemoveFromPlan(ctx, id, ids[1])
	if res.Success || res.Message != "Not in plan" {
		t.Errorf("Expected not in plan, got %+v", res)
	}
	if res.View.MarkerCount != 4 {
		t.Errorf("Removing from the plan must keep markers, got %d", res.View.MarkerCount)
	}

	if _, err := svc.AddToPlan(ctx, id, "m99"); !errors.Is(err, engine.ErrUnknownMarker) {
		t.Errorf("Expected ErrUnknownMarker, got %v", err)
	}

	res, _ = svc.ClearPlan(ctx, id)
	if res.View.PlanCount != 0 || res.View.MarkerCount != 4 || res.Message != "Plan cleared" {
		t.Errorf("Unexpected clear result %+v", res)
	}

	res, _ = svc.ClearMarkers(ctx, id)
	if res.Message != "Cleared 4 marker(s)" || res.View.MarkerCount != 0 {
		t.Errorf("Unexpected clear markers result %+v", res)
	}
}

func TestPlannerService_ModeAndFilter(t *testing.T) {
	svc, _, id := newTestService(t)
	ctx := context.Background()

	svc.PlaceMarker(ctx, id, service.PlaceMarkerRequest{Lat: 28.41, Lng: -81.58, Category: "food"})
	svc.PlaceMarker(ctx, id, service.PlaceMarkerRequest{Lat: 28.42, Lng: -81.58, Category: "ride"})

	res, err := svc.SetFilter(ctx, id, "food")
	if err != nil {
		t.Fatalf("SetFilter failed: %v", err)
	}
	if res.Message != "Filter: food" || len(res.View.Rows) != 1 {
		t.Errorf("Unexpected filter result %q with %d rows", res.Message, len(res.View.Rows))
	}

	res, _ = svc.SetFilter(ctx, id, "all")
	if res.Message != "Showing all markers" || len(res.View.Rows) != 2 {
		t.Errorf("Unexpected filter result %q with %d rows", res.Message, len(res.View.Rows))
	}

	if _, err := svc.SetFilter(ctx, id, "castles"); !errors.Is(err, engine.ErrInvalidFilter) {
		t.Errorf("Expected ErrInvalidFilter, got %v", err)
	}
	if _, err := svc.SetMode(ctx, id, "satellite"); !errors.Is(err, engine.ErrInvalidMode) {
		t.Errorf("Expected ErrInvalidMode, got %v", err)
	}

	res, _ = svc.SetMode(ctx, id, "plan")
	if res.Message != "Plan view" || res.View.Placeholder != engine.PlaceholderPlan {
		t.Errorf("Unexpected mode result %+v", res)
	}
}

func TestPlannerService_ImportExport(t *testing.T) {
	fixed := time.Date(2025, 3, 14, 9, 26, 53, 589000000, time.UTC)
	svc, _, id := newTestService(t, service.WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	markers := `{"markers":[
		{"id":"m1","label":"Castle","type":"photo","lat":28.4177,"lng":-81.5812},
		{"id":"m2","type":"dragon","lat":28.4180,"lng":-81.5800},
		{"id":"m3","lat":95,"lng":0}
	]}`
	res, err := svc.ImportMarkers(ctx, id, []byte(markers), true)
	if err != nil {
		t.Fatalf("ImportMarkers failed: %v", err)
	}
	if !res.Success || res.Message != "Imported 2 marker(s)" || res.Report.Skipped != 1 {
		t.Errorf("Unexpected import result %+v", res)
	}

	t.Run("rejected document leaves state untouched", func(t *testing.T) {
		res, err := svc.ImportMarkers(ctx, id, []byte(`{"markers":"not-an-array"}`), true)
		if err != nil {
			t.Fatalf("Expected a failed result, not an error: %v", err)
		}
		if res.Success || res.Message != "Import failed: Missing markers array" || res.Reason != "Missing markers array" {
			t.Errorf("Unexpected result %+v", res)
		}
		if res.View.MarkerCount != 2 {
			t.Errorf("Expected 2 markers to remain, got %d", res.View.MarkerCount)
		}
	})

	plan := `{"plan":[
		{"order":2,"id":"m1","lat":28.4177,"lng":-81.5812},
		{"order":1,"id":"zz","lat":28.4180,"lng":-81.5800},
		{"order":3,"id":"p9","label":"New Spot","type":"show","lat":28.4150,"lng":-81.5850}
	]}`
	pres, err := svc.ImportPlan(ctx, id, []byte(plan))
	if err != nil {
		t.Fatalf("ImportPlan failed: %v", err)
	}
	if !pres.Success || pres.Message != "Imported plan with 3 item(s)" {
		t.Errorf("Unexpected plan import %+v", pres)
	}
	if pres.Report.Reused != 2 || pres.Report.Added != 1 {
		t.Errorf("Expected 2 reused and 1 added, got %+v", pres.Report)
	}

	doc, err := svc.ExportPlan(ctx, id)
	if err != nil {
		t.Fatalf("ExportPlan failed: %v", err)
	}
	if doc.CreatedAt != "2025-03-14T09:26:53.589Z" || doc.Count != 3 {
		t.Errorf("Unexpected plan header %s/%d", doc.CreatedAt, doc.Count)
	}
	got := []string{doc.Plan[0].ID, doc.Plan[1].ID, doc.Plan[2].ID}
	if strings.Join(got, ",") != "m2,m1,p9" {
		t.Errorf("Expected m2,m1,p9, got %v", got)
	}

	mdoc, _ := svc.ExportMarkers(ctx, id)
	if mdoc.Count != 3 || mdoc.Markers[1].Type != "misc" {
		t.Errorf("Unexpected marker export %+v", mdoc)
	}

	geojson, err := svc.ExportGeoJSON(ctx, id)
	if err != nil {
		t.Fatalf("ExportGeoJSON failed: %v", err)
	}
	if !strings.Contains(string(geojson), `"FeatureCollection"`) {
		t.Errorf("Expected a FeatureCollection, got %s", geojson)
	}

	bad, err := svc.ImportPlan(ctx, id, []byte(`{"plan":[{"id":"m1","lat":1,"lng":1}]}`))
	if err != nil {
		t.Fatalf("Expected a failed result, not an error: %v", err)
	}
	if bad.Success || bad.Message != "Import failed: Plan item missing order" {
		t.Errorf("Unexpected result %+v", bad)
	}
}

func TestPlannerService_SavePlanAndDefaults(t *testing.T) {
	store := storage.NewMemoryStore()
	loader := dataset.NewLoader(zerolog.Nop(), dataset.DirSource{Dir: "../../data"})
	svc, _, id := newTestService(t, service.WithPlanStore(store), service.WithDatasets(loader))
	ctx := context.Background()

	defaults, err := svc.LoadDefaults(ctx, id)
	if err != nil {
		t.Fatalf("LoadDefaults failed: %v", err)
	}
	if defaults.Markers == nil || defaults.Markers.Name != "markers.json" || defaults.Markers.Count != 4 {
		t.Fatalf("Expected markers.json fallback with 4 markers, got %+v", defaults.Markers)
	}
	if defaults.Plan == nil || defaults.Plan.Name != "trip-plan.json" || defaults.Plan.Count != 3 {
		t.Fatalf("Expected trip-plan.json with 3 items, got %+v", defaults.Plan)
	}
	want := []string{"Loaded 4 marker(s) from markers.json", "Loaded trip plan (3 item(s))"}
	if strings.Join(defaults.Messages, "|") != strings.Join(want, "|") {
		t.Errorf("Unexpected messages %v", defaults.Messages)
	}
	if defaults.View.MarkerCount != 4 || defaults.View.PlanCount != 3 {
		t.Errorf("Unexpected view counts %d/%d", defaults.View.MarkerCount, defaults.View.PlanCount)
	}

	// shrink the plan and save it
	svc.RemoveFromPlan(ctx, id, "m3")
	res, err := svc.SavePlan(ctx, id)
	if err != nil {
		t.Fatalf("SavePlan failed: %v", err)
	}
	if !res.Success || res.Message != "Plan saved successfully" {
		t.Errorf("Unexpected save result %+v", res)
	}
	if _, err := store.Get(ctx, id, service.SavedPlanKey); err != nil {
		t.Fatalf("Expected saved plan in store: %v", err)
	}

	t.Run("saved plan wins over the default plan", func(t *testing.T) {
		defaults, err := svc.LoadDefaults(ctx, id)
		if err != nil {
			t.Fatalf("LoadDefaults failed: %v", err)
		}
		if defaults.Plan == nil || defaults.Plan.Source != "store" || defaults.Plan.Count != 2 {
			t.Fatalf("Expected the saved 2-item plan, got %+v", defaults.Plan)
		}
		if last := defaults.Messages[len(defaults.Messages)-1]; last != "Loaded trip plan (local) (2 item(s))" {
			t.Errorf("Unexpected message %q", last)
		}
	})
}

func TestPlannerService_DegradedCollaborators(t *testing.T) {
	ctx := context.Background()

	t.Run("no plan store", func(t *testing.T) {
		svc, _, id := newTestService(t)
		res, err := svc.SavePlan(ctx, id)
		if err != nil || res.Success {
			t.Errorf("Expected an unsuccessful result without error, got %+v / %v", res, err)
		}
	})

	t.Run("failing plan store", func(t *testing.T) {
		svc, _, id := newTestService(t, service.WithPlanStore(failingStore{}))
		res, err := svc.SavePlan(ctx, id)
		if err != nil {
			t.Fatalf("Storage failures must not surface as errors: %v", err)
		}
		if res.Success || res.Message != "Could not save plan" {
			t.Errorf("Unexpected result %+v", res)
		}
		if _, err := svc.LoadDefaults(ctx, id); err != nil {
			t.Errorf("LoadDefaults must tolerate a failing store: %v", err)
		}
	})

	t.Run("missing datasets", func(t *testing.T) {
		loader := dataset.NewLoader(zerolog.Nop(), dataset.DirSource{Dir: t.TempDir()})
		svc, _, id := newTestService(t, service.WithDatasets(loader))
		res, err := svc.LoadDefaults(ctx, id)
		if err != nil {
			t.Fatalf("LoadDefaults failed: %v", err)
		}
		if res.Markers != nil || res.Plan != nil {
			t.Errorf("Expected nothing loaded, got %+v", res)
		}
		if len(res.Messages) != 1 || res.Messages[0] != "No default marker file (markers_new.json) found." {
			t.Errorf("Unexpected messages %v", res.Messages)
		}
	})

	t.Run("session save failure is logged only", func(t *testing.T) {
		svc, sessions, id := newTestService(t)
		sessions.saveErr = errors.New("read-only filesystem")
		if _, err := svc.PlaceMarker(ctx, id, service.PlaceMarkerRequest{Lat: 1, Lng: 1}); err != nil {
			t.Errorf("Expected mutation to succeed, got %v", err)
		}
	})
}

func TestPlannerService_BroadcastsOncePerGesture(t *testing.T) {
	b := &recordingBroadcaster{}
	svc, _, id := newTestService(t, service.WithBroadcaster(b))
	ctx := context.Background()

	res, _ := svc.PlaceMarker(ctx, id, service.PlaceMarkerRequest{Lat: 28.41, Lng: -81.58})
	svc.AddToPlan(ctx, id, res.MarkerID)
	if n := b.count(id); n != 2 {
		t.Fatalf("Expected 2 broadcasts, got %d", n)
	}

	// removing a planned marker touches store and plan but renders once
	svc.RemoveMarker(ctx, id, res.MarkerID)
	if n := b.count(id); n != 3 {
		t.Errorf("Expected 3 broadcasts, got %d", n)
	}

	// a rejected import changes nothing and renders nothing
	svc.ImportMarkers(ctx, id, []byte(`[]`), true)
	if n := b.count(id); n != 3 {
		t.Errorf("Expected no broadcast for a rejected import, got %d", n)
	}

	svc.DeleteSession(ctx, id)
}

func TestPlannerService_TilePlan(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	plan, err := svc.TilePlan(ctx, "test", []int{14}, true)
	if err != nil {
		t.Fatalf("TilePlan failed: %v", err)
	}
	if len(plan.Ranges) != 1 || plan.Total != plan.Ranges[0].Count() {
		t.Errorf("Unexpected ranges %+v", plan)
	}
	if plan.Message != fmt.Sprintf("Save %d tile(s) for offline use?", plan.Total) {
		t.Errorf("Unexpected message %q", plan.Message)
	}
	if len(plan.URLs) != plan.Total || !strings.HasPrefix(plan.URLs[0], "https://tiles.example.com/v1/14/") {
		t.Errorf("Unexpected URLs %v", plan.URLs)
	}

	all, err := svc.TilePlan(ctx, "", nil, false)
	if err != nil {
		t.Fatalf("TilePlan failed: %v", err)
	}
	if len(all.Ranges) != 3 || all.URLs != nil {
		t.Errorf("Expected 3 zoom levels without URLs, got %+v", all)
	}

	if _, err := svc.TilePlan(ctx, "test", []int{3}, false); !errors.Is(err, geo.ErrInvalidZoom) {
		t.Errorf("Expected ErrInvalidZoom, got %v", err)
	}
	if _, err := svc.TilePlan(ctx, "epcot", nil, false); !errors.Is(err, config.ErrConfigNotFound) {
		t.Errorf("Expected ErrConfigNotFound, got %v", err)
	}
}
