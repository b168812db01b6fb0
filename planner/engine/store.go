package engine

import (
	"fmt"
	"slices"
)

// MarkerStore owns the canonical marker records.
// Records are kept in insertion order; ids are never reissued once minted.
type MarkerStore struct {
	markers map[string]*Marker
	order   []string
	issued  map[string]struct{}
	nextSeq int
	created int
	plan    *PlanSequencer
	notifier
}

// NewMarkerStore creates an empty store
func NewMarkerStore() *MarkerStore {
	return &MarkerStore{
		markers: make(map[string]*Marker),
		issued:  make(map[string]struct{}),
	}
}

// Add creates a marker with a freshly minted id and returns it.
// An empty label becomes "Marker n" where n is the creation ordinal;
// an empty category becomes Misc.
func (s *MarkerStore) Add(pos Position, label string, category Category) (string, error) {
	return s.AddWithID("", pos, label, category)
}

// AddWithID creates a marker keeping id when no live marker holds it.
// An empty or taken id is replaced by a minted one.
func (s *MarkerStore) AddWithID(id string, pos Position, label string, category Category) (string, error) {
	if !pos.Valid() {
		return "", ErrInvalidPosition
	}
	if category == "" {
		category = Misc
	}
	if !category.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}

	s.created++
	if _, live := s.markers[id]; id == "" || live {
		id = s.mint()
	}
	if label == "" {
		label = fmt.Sprintf("%s %d", DefaultLabelPrefix, s.created)
	}

	s.markers[id] = &Marker{ID: id, Position: pos, Label: label, Category: category}
	s.order = append(s.order, id)
	s.issued[id] = struct{}{}

	s.emit(Change{Kind: ChangeMarkers, IDs: []string{id}})
	return id, nil
}

// Update applies the non-nil fields of patch to the marker
func (s *MarkerStore) Update(id string, patch MarkerPatch) error {
	m, ok := s.markers[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	// validate everything before touching the record
	if patch.Position != nil && !patch.Position.Valid() {
		return ErrInvalidPosition
	}
	if patch.Category != nil && !patch.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, *patch.Category)
	}

	if patch.Label != nil {
		m.Label = *patch.Label
	}
	if patch.Category != nil {
		m.Category = *patch.Category
	}
	if patch.Position != nil {
		m.Position = *patch.Position
	}

	s.emit(Change{Kind: ChangeMarkers, IDs: []string{id}})
	return nil
}

// Remove deletes the marker and its plan entry. It reports whether anything was removed.
func (s *MarkerStore) Remove(id string) bool {
	if _, ok := s.markers[id]; !ok {
		return false
	}

	delete(s.markers, id)
	if i := slices.Index(s.order, id); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
	inPlan := s.plan != nil && s.plan.drop(id)

	// both mutations are complete before anyone is told
	s.emit(Change{Kind: ChangeMarkers, IDs: []string{id}})
	if inPlan {
		s.plan.emit(Change{Kind: ChangePlan, IDs: []string{id}})
	}
	return true
}

// Clear removes every marker and empties the plan
func (s *MarkerStore) Clear() {
	s.markers = make(map[string]*Marker)
	s.order = nil
	hadPlan := s.plan != nil && s.plan.reset()

	s.emit(Change{Kind: ChangeMarkers})
	if hadPlan {
		s.plan.emit(Change{Kind: ChangePlan})
	}
}

// Get returns a copy of the marker
func (s *MarkerStore) Get(id string) (Marker, bool) {
	m, ok := s.markers[id]
	if !ok {
		return Marker{}, false
	}
	return *m, true
}

// Has reports whether id is a live marker
func (s *MarkerStore) Has(id string) bool {
	_, ok := s.markers[id]
	return ok
}

// All returns a snapshot of every marker in insertion order
func (s *MarkerStore) All() []Marker {
	result := make([]Marker, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, *s.markers[id])
	}
	return result
}

// Len returns the number of live markers
func (s *MarkerStore) Len() int {
	return len(s.order)
}

// FindNear returns the first marker, in insertion order, within eps of pos on both axes
func (s *MarkerStore) FindNear(pos Position, eps float64) (Marker, bool) {
	for _, id := range s.order {
		m := s.markers[id]
		if m.Position.Near(pos, eps) {
			return *m, true
		}
	}
	return Marker{}, false
}

// mint returns the next counter id that has never been issued
func (s *MarkerStore) mint() string {
	for {
		s.nextSeq++
		id := fmt.Sprintf("m%d", s.nextSeq)
		if _, used := s.issued[id]; !used {
			return id
		}
	}
}
