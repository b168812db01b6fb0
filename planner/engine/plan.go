package engine

import (
	"fmt"
	"slices"
)

// PlanSequencer holds the ordered visit plan as marker ids.
// Every id it holds exists in the store it was created for.
type PlanSequencer struct {
	store *MarkerStore
	ids   []string
	notifier
}

// NewPlanSequencer creates an empty plan bound to store.
// The store cascades marker removals into the returned sequencer.
func NewPlanSequencer(store *MarkerStore) *PlanSequencer {
	p := &PlanSequencer{store: store}
	store.plan = p
	return p
}

// Append adds id to the end of the plan.
// A repeated id is not an error; it reports AppendAlreadyPresent and leaves the order unchanged.
func (p *PlanSequencer) Append(id string) (AppendOutcome, error) {
	if !p.store.Has(id) {
		return AppendAdded, fmt.Errorf("%w: %s", ErrUnknownMarker, id)
	}
	if slices.Contains(p.ids, id) {
		return AppendAlreadyPresent, nil
	}

	p.ids = append(p.ids, id)
	p.emit(Change{Kind: ChangePlan, IDs: []string{id}})
	return AppendAdded, nil
}

// Remove drops id from the plan, reporting whether it was present
func (p *PlanSequencer) Remove(id string) bool {
	if !p.drop(id) {
		return false
	}
	p.emit(Change{Kind: ChangePlan, IDs: []string{id}})
	return true
}

// MoveBy shifts id by exactly delta slots. It is a no-op when id is not
// planned, delta is zero or the target slot is out of bounds.
func (p *PlanSequencer) MoveBy(id string, delta int) bool {
	i := slices.Index(p.ids, id)
	if i < 0 || delta == 0 {
		return false
	}
	j := i + delta
	if j < 0 || j >= len(p.ids) {
		return false
	}

	p.ids = slices.Delete(p.ids, i, i+1)
	p.ids = slices.Insert(p.ids, j, id)
	p.emit(Change{Kind: ChangePlan, IDs: []string{id}})
	return true
}

// MoveTo moves id into the slot targetID currently occupies, shifting the
// target one place toward id's old slot. It is a no-op when either id is not
// planned or both are the same.
func (p *PlanSequencer) MoveTo(id, targetID string) bool {
	from := slices.Index(p.ids, id)
	to := slices.Index(p.ids, targetID)
	if from < 0 || to < 0 || from == to {
		return false
	}

	p.ids = slices.Delete(p.ids, from, from+1)
	p.ids = slices.Insert(p.ids, to, id)
	p.emit(Change{Kind: ChangePlan, IDs: []string{id, targetID}})
	return true
}

// Clear empties the plan without touching the store
func (p *PlanSequencer) Clear() {
	p.reset()
	p.emit(Change{Kind: ChangePlan})
}

// Replace sets the whole order. Every id must be a live marker; repeated ids
// keep their first position.
func (p *PlanSequencer) Replace(ids []string) error {
	next := make([]string, 0, len(ids))
	for _, id := range ids {
		if !p.store.Has(id) {
			return fmt.Errorf("%w: %s", ErrUnknownMarker, id)
		}
		if !slices.Contains(next, id) {
			next = append(next, id)
		}
	}

	p.ids = next
	p.emit(Change{Kind: ChangePlan})
	return nil
}

// Order returns a snapshot of the planned ids
func (p *PlanSequencer) Order() []string {
	return slices.Clone(p.ids)
}

// Index returns the 1-based plan position of id
func (p *PlanSequencer) Index(id string) (int, bool) {
	i := slices.Index(p.ids, id)
	if i < 0 {
		return 0, false
	}
	return i + 1, true
}

// Contains reports whether id is planned
func (p *PlanSequencer) Contains(id string) bool {
	return slices.Contains(p.ids, id)
}

// Len returns the number of planned ids
func (p *PlanSequencer) Len() int {
	return len(p.ids)
}

// drop removes id without notifying; used by the store cascade
func (p *PlanSequencer) drop(id string) bool {
	i := slices.Index(p.ids, id)
	if i < 0 {
		return false
	}
	p.ids = slices.Delete(p.ids, i, i+1)
	return true
}

// reset empties the plan without notifying, reporting whether it held anything
func (p *PlanSequencer) reset() bool {
	had := len(p.ids) > 0
	p.ids = nil
	return had
}
