package engine

// ChangeKind names what part of the planner state changed
type ChangeKind string

const (
	ChangeMarkers ChangeKind = "markers"
	ChangePlan    ChangeKind = "plan"
	ChangeMode    ChangeKind = "mode"
	ChangeFilter  ChangeKind = "filter"
	// ChangeBatch is emitted once at the end of a Planner.Batch that changed anything.
	ChangeBatch ChangeKind = "batch"
)

// Change describes a state mutation. IDs lists the affected marker ids when known.
type Change struct {
	Kind ChangeKind `json:"kind"`
	IDs  []string   `json:"ids,omitempty"`
}

// Listener receives change notifications synchronously, after the mutation is complete
type Listener func(Change)

type subscription struct {
	id int
	fn Listener
}

// notifier fans a change out to listeners in subscription order
type notifier struct {
	nextID    int
	listeners []subscription
}

func (n *notifier) Subscribe(l Listener) func() {
	n.nextID++
	id := n.nextID
	n.listeners = append(n.listeners, subscription{id: id, fn: l})
	return func() {
		for i, s := range n.listeners {
			if s.id == id {
				n.listeners = append(n.listeners[:i], n.listeners[i+1:]...)
				return
			}
		}
	}
}

func (n *notifier) emit(c Change) {
	// copy so a listener may unsubscribe while being notified
	subs := make([]subscription, len(n.listeners))
	copy(subs, n.listeners)
	for _, s := range subs {
		s.fn(c)
	}
}
