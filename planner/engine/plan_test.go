package engine

import (
	"errors"
	"slices"
	"testing"
)

func newPlanFixture(t *testing.T, n int) (*MarkerStore, *PlanSequencer, []string) {
	t.Helper()
	s := NewMarkerStore()
	p := NewPlanSequencer(s)
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := s.Add(Position{Lat: float64(i), Lng: float64(i)}, "", Ride)
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		if _, err := p.Append(id); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		ids = append(ids, id)
	}
	return s, p, ids
}

func TestPlanSequencer_Append(t *testing.T) {
	s := NewMarkerStore()
	p := NewPlanSequencer(s)
	id, _ := s.Add(Position{Lat: 1, Lng: 1}, "", "")

	outcome, err := p.Append(id)
	if err != nil || outcome != AppendAdded {
		t.Fatalf("Expected AppendAdded, got %v, %v", outcome, err)
	}

	outcome, err = p.Append(id)
	if err != nil {
		t.Fatalf("Expected no error on repeated append, got %v", err)
	}
	if outcome != AppendAlreadyPresent {
		t.Errorf("Expected AppendAlreadyPresent, got %v", outcome)
	}
	if got := p.Order(); !slices.Equal(got, []string{id}) {
		t.Errorf("Expected order unchanged, got %v", got)
	}

	if _, err := p.Append("ghost"); !errors.Is(err, ErrUnknownMarker) {
		t.Errorf("Expected ErrUnknownMarker, got %v", err)
	}
}

func TestPlanSequencer_Remove(t *testing.T) {
	_, p, ids := newPlanFixture(t, 3)

	if !p.Remove(ids[1]) {
		t.Fatal("Expected removal")
	}
	if got := p.Order(); !slices.Equal(got, []string{ids[0], ids[2]}) {
		t.Errorf("Expected compacted order, got %v", got)
	}
	if idx, _ := p.Index(ids[2]); idx != 2 {
		t.Errorf("Expected %s at position 2, got %d", ids[2], idx)
	}
	if p.Remove(ids[1]) {
		t.Error("Expected removing an absent id to be a no-op")
	}
}

func TestPlanSequencer_MoveBy(t *testing.T) {
	tests := []struct {
		name    string
		index   int
		delta   int
		moved   bool
		wantIdx []int
	}{
		{"down one", 0, 1, true, []int{1, 0, 2, 3}},
		{"up one", 2, -1, true, []int{0, 2, 1, 3}},
		{"shift by two", 0, 2, true, []int{1, 2, 0, 3}},
		{"shift up by three", 3, -3, true, []int{3, 0, 1, 2}},
		{"past the end", 3, 1, false, []int{0, 1, 2, 3}},
		{"before the start", 0, -1, false, []int{0, 1, 2, 3}},
		{"zero delta", 1, 0, false, []int{0, 1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, p, ids := newPlanFixture(t, 4)
			if got := p.MoveBy(ids[tt.index], tt.delta); got != tt.moved {
				t.Errorf("Expected moved=%v, got %v", tt.moved, got)
			}
			want := make([]string, 0, len(ids))
			for _, i := range tt.wantIdx {
				want = append(want, ids[i])
			}
			if got := p.Order(); !slices.Equal(got, want) {
				t.Errorf("Expected %v, got %v", want, got)
			}
		})
	}

	t.Run("absent id", func(t *testing.T) {
		_, p, ids := newPlanFixture(t, 2)
		if p.MoveBy("ghost", 1) {
			t.Error("Expected no-op for absent id")
		}
		if got := p.Order(); !slices.Equal(got, ids) {
			t.Errorf("Expected unchanged order, got %v", got)
		}
	})
}

func TestPlanSequencer_MoveTo(t *testing.T) {
	tests := []struct {
		name    string
		from    int
		to      int
		moved   bool
		wantIdx []int
	}{
		{"drag upward lands before target", 3, 1, true, []int{0, 3, 1, 2}},
		{"drag downward lands after target", 0, 2, true, []int{1, 2, 0, 3}},
		{"drag to first", 2, 0, true, []int{2, 0, 1, 3}},
		{"same id", 1, 1, false, []int{0, 1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, p, ids := newPlanFixture(t, 4)
			if got := p.MoveTo(ids[tt.from], ids[tt.to]); got != tt.moved {
				t.Errorf("Expected moved=%v, got %v", tt.moved, got)
			}
			want := make([]string, 0, len(ids))
			for _, i := range tt.wantIdx {
				want = append(want, ids[i])
			}
			if got := p.Order(); !slices.Equal(got, want) {
				t.Errorf("Expected %v, got %v", want, got)
			}
		})
	}

	t.Run("absent target", func(t *testing.T) {
		s, p, ids := newPlanFixture(t, 3)
		outside, _ := s.Add(Position{Lat: 9, Lng: 9}, "", "")
		if p.MoveTo(ids[0], outside) {
			t.Error("Expected no-op when target is not planned")
		}
		if p.MoveTo("ghost", ids[1]) {
			t.Error("Expected no-op when id is not planned")
		}
		if got := p.Order(); !slices.Equal(got, ids) {
			t.Errorf("Expected unchanged order, got %v", got)
		}
	})
}

func TestPlanSequencer_ClearKeepsStore(t *testing.T) {
	s, p, _ := newPlanFixture(t, 3)
	p.Clear()
	if p.Len() != 0 {
		t.Errorf("Expected empty plan, got %v", p.Order())
	}
	if s.Len() != 3 {
		t.Errorf("Expected store untouched, got %d markers", s.Len())
	}
}

func TestPlanSequencer_Replace(t *testing.T) {
	_, p, ids := newPlanFixture(t, 3)

	if err := p.Replace([]string{ids[2], ids[0], ids[2]}); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	if got := p.Order(); !slices.Equal(got, []string{ids[2], ids[0]}) {
		t.Errorf("Expected duplicates collapsed, got %v", got)
	}

	err := p.Replace([]string{ids[1], "ghost"})
	if !errors.Is(err, ErrUnknownMarker) {
		t.Fatalf("Expected ErrUnknownMarker, got %v", err)
	}
	if got := p.Order(); !slices.Equal(got, []string{ids[2], ids[0]}) {
		t.Errorf("Expected failed Replace to leave order, got %v", got)
	}
}

func TestPlanSequencer_OrderIsSnapshot(t *testing.T) {
	_, p, ids := newPlanFixture(t, 2)
	order := p.Order()
	order[0] = "tampered"
	if got := p.Order(); !slices.Equal(got, ids) {
		t.Errorf("Expected internal order unaffected, got %v", got)
	}
}
