package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/wricardo/mcp-training/parkplanner/planner/engine"
	"github.com/wricardo/mcp-training/parkplanner/planner/service"
	"github.com/wricardo/mcp-training/parkplanner/planner/session"
)

func newPersistentService(t *testing.T, opts ...service.Option) (service.PlannerService, *session.Manager) {
	t.Helper()
	configs := NewMockConfigManager()
	persistence, err := session.NewFilePersistence(t.TempDir(), configs)
	if err != nil {
		t.Fatalf("NewFilePersistence failed: %v", err)
	}
	manager := session.NewManagerWithPersistence(persistence)
	svc := service.NewPlannerService(manager, configs, append([]service.Option{service.WithLogger(zerolog.Nop())}, opts...)...)
	return svc, manager
}

func TestPlannerService_BroadcastsAfterReload(t *testing.T) {
	b := &recordingBroadcaster{}
	svc, manager := newPersistentService(t, service.WithBroadcaster(b))
	ctx := context.Background()

	info, err := svc.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, err := svc.PlaceMarker(ctx, info.ID, service.PlaceMarkerRequest{Lat: 28.415, Lng: -81.585}); err != nil {
		t.Fatalf("PlaceMarker failed: %v", err)
	}
	if n := b.count(info.ID); n != 1 {
		t.Fatalf("Expected 1 broadcast, got %d", n)
	}

	evicted, err := manager.Get(info.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	if removed := manager.CleanupExpiredSessions(time.Millisecond); removed != 1 {
		t.Fatalf("Expected the session to be evicted, removed %d", removed)
	}

	// the unloaded planner no longer renders
	evicted.Planner.Store.Add(engine.Position{Lat: 1, Lng: 1}, "", engine.Misc)
	if n := b.count(info.ID); n != 1 {
		t.Errorf("Expected no broadcast from an evicted planner, got %d", n)
	}

	res, err := svc.PlaceMarker(ctx, info.ID, service.PlaceMarkerRequest{Lat: 28.416, Lng: -81.584})
	if err != nil {
		t.Fatalf("PlaceMarker after reload failed: %v", err)
	}
	if res.View.MarkerCount != 2 {
		t.Errorf("Expected 2 markers after reload, got %d", res.View.MarkerCount)
	}
	if n := b.count(info.ID); n != 2 {
		t.Fatalf("Expected a broadcast after the session was reloaded, got %d", n)
	}

	if err := manager.DeleteFromMemory(info.ID); err != nil {
		t.Fatalf("DeleteFromMemory failed: %v", err)
	}
	if _, err := svc.AddToPlan(ctx, info.ID, res.MarkerID); err != nil {
		t.Fatalf("AddToPlan after reload failed: %v", err)
	}
	if n := b.count(info.ID); n != 3 {
		t.Errorf("Expected 3 broadcasts, got %d", n)
	}
}

func TestPlannerService_ConcurrentReads(t *testing.T) {
	svc, _ := newPersistentService(t)
	ctx := context.Background()

	info, err := svc.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				if _, err := svc.GetSession(ctx, info.ID); err != nil {
					t.Errorf("GetSession failed: %v", err)
					return
				}
				if _, err := svc.ListSessions(ctx); err != nil {
					t.Errorf("ListSessions failed: %v", err)
					return
				}
				if _, err := svc.GetView(ctx, info.ID); err != nil {
					t.Errorf("GetView failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	got, err := svc.GetSession(ctx, info.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.LastAccessedAt.Before(info.CreatedAt) {
		t.Errorf("Expected last access after creation, got %v", got.LastAccessedAt)
	}
}
