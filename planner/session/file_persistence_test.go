package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/wricardo/mcp-training/parkplanner/planner/config"
	"github.com/wricardo/mcp-training/parkplanner/planner/engine"
)

func newTestPersistence(t *testing.T) (*FilePersistence, *config.Manager, string) {
	t.Helper()
	configManager, err := config.NewManager("../../configs")
	if err != nil {
		t.Fatalf("Failed to create config manager: %v", err)
	}
	dir := filepath.Join(t.TempDir(), "sessions")
	persistence, err := NewFilePersistence(dir, configManager)
	if err != nil {
		t.Fatalf("Failed to create file persistence: %v", err)
	}
	return persistence, configManager, dir
}

func TestFilePersistence_SaveLoadRoundTrip(t *testing.T) {
	persistence, configManager, dir := newTestPersistence(t)
	manager := NewManager()

	sess, err := manager.Create("ab12", configManager.GetDefault())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	p := sess.Planner
	a, _ := p.Store.Add(engine.Position{Lat: 33.8125, Lng: -117.919}, "Castle", engine.Photo)
	b, _ := p.Store.Add(engine.Position{Lat: 33.8133, Lng: -117.9177}, "", engine.Ride)
	c, _ := p.Store.Add(engine.Position{Lat: 33.8116, Lng: -117.9187}, "Churros", engine.Food)
	p.Store.Remove(c)
	p.Plan.Append(b)
	p.Plan.Append(a)
	p.SetMode(engine.ModePlan)

	if err := persistence.Save(sess); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "ab12.json")); err != nil {
		t.Fatalf("Expected session file: %v", err)
	}

	loaded, err := persistence.Load("ab12")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Park == nil || loaded.Park.Name != "disneyland" {
		t.Errorf("Expected disneyland park, got %+v", loaded.Park)
	}
	if loaded.Planner.Mode() != engine.ModePlan {
		t.Errorf("Expected plan mode, got %s", loaded.Planner.Mode())
	}
	order := loaded.Planner.Plan.Order()
	if len(order) != 2 || order[0] != b || order[1] != a {
		t.Errorf("Expected plan [%s %s], got %v", b, a, order)
	}
	if m, _ := loaded.Planner.Store.Get(b); m.Label != "Marker 2" {
		t.Errorf("Expected default label to survive, got %q", m.Label)
	}

	t.Run("restored store never reissues ids", func(t *testing.T) {
		id, err := loaded.Planner.Store.Add(engine.Position{Lat: 1, Lng: 1}, "", "")
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		if id == a || id == b || id == c {
			t.Errorf("Reissued id %s", id)
		}
		if m, _ := loaded.Planner.Store.Get(id); m.Label != "Marker 4" {
			t.Errorf("Expected creation ordinal to continue at 4, got %q", m.Label)
		}
	})
}

func TestFilePersistence_Errors(t *testing.T) {
	persistence, _, dir := newTestPersistence(t)

	if _, err := persistence.Load("none"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
	if _, err := persistence.Load("../x"); !errors.Is(err, ErrInvalidSessionID) {
		t.Errorf("Expected ErrInvalidSessionID, got %v", err)
	}
	if err := persistence.Delete("none"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
	if err := persistence.Save(nil); err == nil {
		t.Error("Expected error for nil session")
	}

	t.Run("corrupt file", func(t *testing.T) {
		os.WriteFile(filepath.Join(dir, "bad1.json"), []byte("{not json"), 0644)
		if _, err := persistence.Load("bad1"); err == nil {
			t.Error("Expected error for corrupt file")
		}
	})

	t.Run("dangling plan reference", func(t *testing.T) {
		data := `{"id":"bad2","park_name":"disneyland","planner_state":{"markers":[],"plan":["m9"]}}`
		os.WriteFile(filepath.Join(dir, "bad2.json"), []byte(data), 0644)
		_, err := persistence.Load("bad2")
		if !errors.Is(err, engine.ErrUnknownMarker) {
			t.Errorf("Expected ErrUnknownMarker, got %v", err)
		}
	})
}

func TestFilePersistence_ListAll(t *testing.T) {
	persistence, configManager, dir := newTestPersistence(t)
	manager := NewManagerWithPersistence(persistence)

	for _, id := range []string{"aaaa", "bbbb"} {
		if _, err := manager.Create(id, configManager.GetDefault()); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644)
	os.Mkdir(filepath.Join(dir, "nested.json"), 0755)

	ids, err := persistence.ListAll()
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("Expected 2 ids, got %v", ids)
	}
}

func TestManagerWithPersistence(t *testing.T) {
	persistence, configManager, _ := newTestPersistence(t)
	manager := NewManagerWithPersistence(persistence)

	t.Run("create auto-saves", func(t *testing.T) {
		sess, err := manager.Create("auto1", configManager.GetDefault())
		if err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
		if !persistence.Exists(sess.ID) {
			t.Error("Session should be auto-saved on creation")
		}
	})

	t.Run("save captures mutations", func(t *testing.T) {
		sess, _ := manager.Get("auto1")
		sess.Planner.Store.Add(engine.Position{Lat: 33.81, Lng: -117.92}, "Saved", engine.Shop)
		if err := manager.Save("auto1"); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	})

	t.Run("get loads from persistence", func(t *testing.T) {
		manager2 := NewManagerWithPersistence(persistence)
		sess, err := manager2.Get("auto1")
		if err != nil {
			t.Fatalf("Failed to get session from persistence: %v", err)
		}
		if sess.Planner.Store.Len() != 1 {
			t.Errorf("Expected 1 marker after reload, got %d", sess.Planner.Store.Len())
		}
		again, _ := manager2.Get("auto1")
		if again != sess {
			t.Error("Session should be cached in memory after loading from persistence")
		}
	})

	t.Run("load persisted sessions", func(t *testing.T) {
		manager3 := NewManagerWithPersistence(persistence)
		if err := manager3.LoadPersistedSessions(); err != nil {
			t.Fatalf("LoadPersistedSessions failed: %v", err)
		}
		if manager3.Count() != 1 {
			t.Errorf("Expected 1 loaded session, got %d", manager3.Count())
		}
	})

	t.Run("delete removes file", func(t *testing.T) {
		if err := manager.Delete("auto1"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if persistence.Exists("auto1") {
			t.Error("Expected session file to be removed")
		}
	})

	t.Run("delete from memory keeps file", func(t *testing.T) {
		manager.Create("keep", configManager.GetDefault())
		if err := manager.DeleteFromMemory("keep"); err != nil {
			t.Fatalf("DeleteFromMemory failed: %v", err)
		}
		if !persistence.Exists("keep") {
			t.Error("Expected session file to remain")
		}
		if _, err := manager.Get("keep"); err != nil {
			t.Errorf("Expected session to reload from disk, got %v", err)
		}
	})
}
