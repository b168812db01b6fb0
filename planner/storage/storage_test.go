package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/wricardo/mcp-training/parkplanner/planner/engine"
)

func exerciseStore(t *testing.T, s KVStore) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "a1b2", "current-plan"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("Expected ErrKeyNotFound, got %v", err)
	}

	first := []byte(`{"count":1,"plan":[{"order":1,"id":"m1","lat":1,"lng":1}]}`)
	if err := s.Put(ctx, "a1b2", "current-plan", first); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := s.Get(ctx, "a1b2", "current-plan")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != string(first) {
		t.Errorf("Expected %s, got %s", first, got)
	}

	second := []byte(`{"count":0,"plan":[]}`)
	if err := s.Put(ctx, "a1b2", "current-plan", second); err != nil {
		t.Fatalf("Overwrite failed: %v", err)
	}
	got, _ = s.Get(ctx, "a1b2", "current-plan")
	if string(got) != string(second) {
		t.Errorf("Expected overwrite %s, got %s", second, got)
	}

	if _, err := s.Get(ctx, "ffff", "current-plan"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Expected buckets to be isolated, got %v", err)
	}

	if err := s.Delete(ctx, "a1b2", "current-plan"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "a1b2", "current-plan"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound after delete, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	exerciseStore(t, s)

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := s.Put(ctx, "b", "k", []byte(`{}`))
		if !errors.Is(err, engine.ErrPersistenceUnavailable) {
			t.Errorf("Expected ErrPersistenceUnavailable, got %v", err)
		}
	})
}

func TestGormStore_SQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.db")
	s, err := OpenSQLite(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer s.Close()

	exerciseStore(t, s)

	t.Run("rejects non-JSON values", func(t *testing.T) {
		err := s.Put(context.Background(), "b", "k", []byte("not json"))
		if !errors.Is(err, engine.ErrPersistenceUnavailable) {
			t.Errorf("Expected ErrPersistenceUnavailable, got %v", err)
		}
	})
}

func TestGormStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.db")
	ctx := context.Background()

	s, err := OpenSQLite(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	if err := s.Put(ctx, "c0de", "current-plan", []byte(`{"count":0}`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	s.Close()

	reopened, err := OpenSQLite(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Get(ctx, "c0de", "current-plan")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if string(got) != `{"count":0}` {
		t.Errorf("Unexpected value %s", got)
	}
}

func TestOpen_Drivers(t *testing.T) {
	s, err := Open(DriverMemory, "", zerolog.Nop())
	if err != nil {
		t.Fatalf("Open memory failed: %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("Expected *MemoryStore, got %T", s)
	}

	if _, err := Open("cassandra", "", zerolog.Nop()); err == nil {
		t.Error("Expected error for unknown driver")
	}
}
