package datamap

// EventKind names a single graph change.
type EventKind int

const (
	VertexAdded EventKind = iota
	VertexRemoved
	VertexUpdated
	EdgeAdded
	EdgeRemoved
	EdgeUpdated
)

func (k EventKind) String() string {
	switch k {
	case VertexAdded:
		return "vertex_added"
	case VertexRemoved:
		return "vertex_removed"
	case VertexUpdated:
		return "vertex_updated"
	case EdgeAdded:
		return "edge_added"
	case EdgeRemoved:
		return "edge_removed"
	case EdgeUpdated:
		return "edge_updated"
	default:
		return "unknown"
	}
}

// Event describes one change. Vertex is set for vertex events, Edge for edge
// events.
type Event struct {
	Kind   EventKind
	Vertex VertexID
	Edge   EdgeKey
}

// Changeset is the ordered list of changes produced by a mutating call.
// The graph never invokes listeners itself; callers hand changesets to a
// Dispatcher once the call has returned.
type Changeset []Event

// Empty reports whether nothing changed.
func (cs Changeset) Empty() bool { return len(cs) == 0 }

// Structural reports whether any vertex or edge was added or removed.
func (cs Changeset) Structural() bool {
	for _, ev := range cs {
		switch ev.Kind {
		case VertexAdded, VertexRemoved, EdgeAdded, EdgeRemoved:
			return true
		}
	}
	return false
}

// Count returns how many events of kind k are present.
func (cs Changeset) Count(k EventKind) int {
	n := 0
	for _, ev := range cs {
		if ev.Kind == k {
			n++
		}
	}
	return n
}

func vertexEvent(kind EventKind, id VertexID) Event {
	return Event{Kind: kind, Vertex: id}
}

func edgeEvent(kind EventKind, key EdgeKey) Event {
	return Event{Kind: kind, Edge: key}
}

// Listener observes published changesets.
type Listener interface {
	GraphChanged(cs Changeset)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(cs Changeset)

func (f ListenerFunc) GraphChanged(cs Changeset) { f(cs) }

// Dispatcher delivers changesets to listeners in registration order.
// Listeners receive a changeset only after the mutation that produced it has
// completed, so a listener may safely mutate the graph.
type Dispatcher struct {
	next      int
	listeners []registration
}

type registration struct {
	token    int
	listener Listener
}

// Register adds a listener and returns a function that removes it.
func (d *Dispatcher) Register(l Listener) (unregister func()) {
	d.next++
	token := d.next
	d.listeners = append(d.listeners, registration{token: token, listener: l})
	return func() {
		for i, r := range d.listeners {
			if r.token == token {
				d.listeners = append(d.listeners[:i], d.listeners[i+1:]...)
				return
			}
		}
	}
}

// Publish hands cs to every listener. Empty changesets are dropped.
func (d *Dispatcher) Publish(cs Changeset) {
	if cs.Empty() {
		return
	}
	// Listeners registered during delivery wait for the next publish.
	regs := append([]registration(nil), d.listeners...)
	for _, r := range regs {
		r.listener.GraphChanged(cs)
	}
}

// Len returns the number of registered listeners.
func (d *Dispatcher) Len() int { return len(d.listeners) }
