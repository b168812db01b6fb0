package engine

import (
	"fmt"
	"slices"
)

// Planner is the state of one planning session: the marker store, the plan
// referencing it, the active view mode and the category filter.
//
// Planner is not safe for concurrent use; callers serialize access.
type Planner struct {
	Store *MarkerStore
	Plan  *PlanSequencer

	mode   ViewMode
	filter Filter

	batchDepth int
	pending    bool
	notifier
}

// NewPlanner creates an empty planner in markers mode showing all categories
func NewPlanner() *Planner {
	store := NewMarkerStore()
	p := &Planner{
		Store:  store,
		Plan:   NewPlanSequencer(store),
		mode:   ModeMarkers,
		filter: FilterAll,
	}
	store.Subscribe(p.forward)
	p.Plan.Subscribe(p.forward)
	return p
}

// Mode returns the active view mode
func (p *Planner) Mode() ViewMode {
	return p.mode
}

// Filter returns the active category filter
func (p *Planner) Filter() Filter {
	return p.filter
}

// SetMode switches the view mode. Setting the current mode again still
// notifies so views re-render.
func (p *Planner) SetMode(mode ViewMode) error {
	if _, ok := ParseViewMode(string(mode)); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	p.mode = mode
	p.forward(Change{Kind: ChangeMode})
	return nil
}

// SetFilter changes the category filter. An empty filter means FilterAll.
func (p *Planner) SetFilter(filter Filter) error {
	f, ok := ParseFilter(string(filter))
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidFilter, filter)
	}
	p.filter = f
	p.forward(Change{Kind: ChangeFilter})
	return nil
}

// Batch runs fn with notifications held back, then emits a single ChangeBatch
// if anything changed. Batches nest; only the outermost one emits.
func (p *Planner) Batch(fn func() error) error {
	p.batchDepth++
	defer func() {
		p.batchDepth--
		if p.batchDepth == 0 && p.pending {
			p.pending = false
			p.emit(Change{Kind: ChangeBatch})
		}
	}()
	return fn()
}

func (p *Planner) forward(c Change) {
	if p.batchDepth > 0 {
		p.pending = true
		return
	}
	p.emit(c)
}

// Snapshot is the serializable form of a Planner, including the id counters
// so a restored store never reissues an id.
type Snapshot struct {
	Markers []Marker `json:"markers"`
	Plan    []string `json:"plan"`
	Mode    ViewMode `json:"mode"`
	Filter  Filter   `json:"filter"`
	NextSeq int      `json:"next_seq"`
	Created int      `json:"created"`
	Issued  []string `json:"issued,omitempty"`
}

// Snapshot captures the current state
func (p *Planner) Snapshot() Snapshot {
	issued := make([]string, 0, len(p.Store.issued))
	for id := range p.Store.issued {
		issued = append(issued, id)
	}
	slices.Sort(issued)

	return Snapshot{
		Markers: p.Store.All(),
		Plan:    p.Plan.Order(),
		Mode:    p.mode,
		Filter:  p.filter,
		NextSeq: p.Store.nextSeq,
		Created: p.Store.created,
		Issued:  issued,
	}
}

// Restore replaces the whole state with snap. The snapshot is checked first;
// an invalid one leaves the planner untouched.
func (p *Planner) Restore(snap Snapshot) error {
	mode := snap.Mode
	if mode == "" {
		mode = ModeMarkers
	}
	if _, ok := ParseViewMode(string(mode)); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidMode, snap.Mode)
	}
	filter, ok := ParseFilter(string(snap.Filter))
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidFilter, snap.Filter)
	}

	markers := make(map[string]*Marker, len(snap.Markers))
	order := make([]string, 0, len(snap.Markers))
	for _, m := range snap.Markers {
		if m.ID == "" {
			return fmt.Errorf("restore: marker without id")
		}
		if _, dup := markers[m.ID]; dup {
			return fmt.Errorf("restore: duplicate marker id %s", m.ID)
		}
		if !m.Position.Valid() {
			return fmt.Errorf("restore %s: %w", m.ID, ErrInvalidPosition)
		}
		if !m.Category.Valid() {
			return fmt.Errorf("restore %s: %w: %q", m.ID, ErrInvalidCategory, m.Category)
		}
		markers[m.ID] = &m
		order = append(order, m.ID)
	}

	plan := make([]string, 0, len(snap.Plan))
	for _, id := range snap.Plan {
		if _, ok := markers[id]; !ok {
			return fmt.Errorf("restore plan: %w: %s", ErrUnknownMarker, id)
		}
		if !slices.Contains(plan, id) {
			plan = append(plan, id)
		}
	}

	issued := make(map[string]struct{}, len(snap.Issued)+len(order))
	for _, id := range snap.Issued {
		issued[id] = struct{}{}
	}
	for _, id := range order {
		issued[id] = struct{}{}
	}

	p.Store.markers = markers
	p.Store.order = order
	p.Store.issued = issued
	p.Store.nextSeq = snap.NextSeq
	p.Store.created = max(snap.Created, len(order))
	p.Plan.ids = plan
	p.mode = mode
	p.filter = filter

	p.forward(Change{Kind: ChangeBatch})
	return nil
}
