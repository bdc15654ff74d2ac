// Package datamap implements the schema graph that declares the legal shape of
// working memory: typed vertices, named attribute edges with lint state, and the
// traversals that validate, classify and garbage-collect it.
//
// The graph is single-writer and not safe for concurrent use. Mutating methods
// return a Changeset describing what changed; the graph never calls back into
// listeners, so traversals can mutate without invalidating anything they hold.
// Edge slices returned by the graph are snapshots.
package datamap

import (
	"fmt"
	"slices"

	"datamap/internal/logging"

	"github.com/google/uuid"
)

// Graph owns all vertices and edges of one datamap document.
type Graph struct {
	// slots is the dense reachability table. RemoveVertex leaves a nil hole
	// that Reduce compacts.
	slots    []*Vertex
	slotOf   map[VertexID]int
	bySerial map[string]VertexID

	edges map[EdgeKey]*Edge
	out   map[VertexID][]EdgeKey
	in    map[VertexID][]EdgeKey

	next    VertexID
	root    VertexID
	hasRoot bool
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		slotOf:   make(map[VertexID]int),
		bySerial: make(map[string]VertexID),
		edges:    make(map[EdgeKey]*Edge),
		out:      make(map[VertexID][]EdgeKey),
		in:       make(map[VertexID][]EdgeKey),
	}
}

// NewWithRoot creates a graph holding a single root identifier.
func NewWithRoot() (*Graph, VertexID) {
	g := New()
	root, _ := g.AddVertex(Identifier{})
	g.root, g.hasRoot = root.ID, true
	return g, root.ID
}

// Root returns the designated root (top-state) vertex.
func (g *Graph) Root() (VertexID, bool) {
	if !g.hasRoot {
		return 0, false
	}
	return g.root, true
}

// SetRoot designates id as the root. The root must be an identifier.
func (g *Graph) SetRoot(id VertexID) error {
	v, err := g.lookup(id)
	if err != nil {
		return err
	}
	if !v.AllowsEmanatingEdges() {
		return fmt.Errorf("set root %s: %w", id, ErrEdgesNotAllowed)
	}
	g.root, g.hasRoot = id, true
	return nil
}

// AddVertex adds a vertex with a freshly generated serialization id.
func (g *Graph) AddVertex(value Value) (Vertex, Changeset) {
	v, cs, err := g.AddVertexWithSerial(uuid.NewString(), value)
	if err != nil {
		// uuid collisions are not a reachable condition.
		panic(err)
	}
	return v, cs
}

// AddVertexWithSerial adds a vertex under a caller-chosen serialization id,
// as needed when loading or importing documents.
func (g *Graph) AddVertexWithSerial(serial string, value Value) (Vertex, Changeset, error) {
	if _, taken := g.bySerial[serial]; taken {
		return Vertex{}, nil, fmt.Errorf("add vertex %q: %w", serial, ErrDuplicateSerial)
	}
	if value == nil {
		value = Identifier{}
	}
	id := g.next
	g.next++
	v := &Vertex{ID: id, SerialID: serial, Value: value.clone()}
	g.slotOf[id] = len(g.slots)
	g.slots = append(g.slots, v)
	g.bySerial[serial] = id
	logging.GraphDebug("added vertex %s serial=%s kind=%s", id, serial, value.Kind())
	return v.clone(), Changeset{vertexEvent(VertexAdded, id)}, nil
}

// Vertex returns a copy of the vertex with the given handle.
func (g *Graph) Vertex(id VertexID) (Vertex, bool) {
	v, err := g.lookup(id)
	if err != nil {
		return Vertex{}, false
	}
	return v.clone(), true
}

// VertexBySerial resolves a serialization id.
func (g *Graph) VertexBySerial(serial string) (Vertex, bool) {
	id, ok := g.bySerial[serial]
	if !ok {
		return Vertex{}, false
	}
	return g.Vertex(id)
}

func (g *Graph) lookup(id VertexID) (*Vertex, error) {
	slot, ok := g.slotOf[id]
	if !ok || g.slots[slot] == nil {
		return nil, fmt.Errorf("%s: %w", id, ErrUnknownVertex)
	}
	return g.slots[slot], nil
}

// RemoveVertex deletes a vertex and every edge touching it. The vertex's slot
// becomes a hole until the next Reduce.
func (g *Graph) RemoveVertex(id VertexID) (Changeset, error) {
	v, err := g.lookup(id)
	if err != nil {
		return nil, fmt.Errorf("remove vertex: %w", err)
	}
	var cs Changeset
	for _, key := range slices.Clone(g.out[id]) {
		g.unlinkEdge(key)
		cs = append(cs, edgeEvent(EdgeRemoved, key))
	}
	for _, key := range slices.Clone(g.in[id]) {
		g.unlinkEdge(key)
		cs = append(cs, edgeEvent(EdgeRemoved, key))
	}
	g.slots[g.slotOf[id]] = nil
	delete(g.slotOf, id)
	delete(g.bySerial, v.SerialID)
	delete(g.out, id)
	delete(g.in, id)
	if g.hasRoot && g.root == id {
		g.hasRoot = false
	}
	logging.GraphDebug("removed vertex %s (%d edges)", id, len(cs))
	return append(cs, vertexEvent(VertexRemoved, id)), nil
}

// AddEdge adds the edge (from, attr, to) with clear lint state.
func (g *Graph) AddEdge(from VertexID, attr string, to VertexID) (Edge, Changeset, error) {
	return g.AddEdgeRecord(Edge{From: from, Attr: attr, To: to})
}

// AddEdgeRecord adds an edge carrying its lint state, as when loading a
// saved document. The source must allow emanating edges and the identity
// triple must be new.
func (g *Graph) AddEdgeRecord(e Edge) (Edge, Changeset, error) {
	if e.Attr == "" {
		return Edge{}, nil, fmt.Errorf("add edge %s: %w", e.Key(), ErrEmptyAttribute)
	}
	src, err := g.lookup(e.From)
	if err != nil {
		return Edge{}, nil, fmt.Errorf("add edge %s: source: %w", e.Key(), err)
	}
	if !src.AllowsEmanatingEdges() {
		return Edge{}, nil, fmt.Errorf("add edge %s: %w", e.Key(), ErrEdgesNotAllowed)
	}
	if _, err := g.lookup(e.To); err != nil {
		return Edge{}, nil, fmt.Errorf("add edge %s: destination: %w", e.Key(), err)
	}
	key := e.Key()
	if _, exists := g.edges[key]; exists {
		return Edge{}, nil, fmt.Errorf("add edge %s: %w", key, ErrDuplicateEdge)
	}
	stored := e.clone()
	if !stored.Generated {
		stored.Provenance = nil
	}
	g.edges[key] = &stored
	g.out[e.From] = append(g.out[e.From], key)
	g.in[e.To] = append(g.in[e.To], key)
	logging.GraphDebug("added edge %s generated=%v", key, stored.Generated)
	return stored.clone(), Changeset{edgeEvent(EdgeAdded, key)}, nil
}

// RemoveEdge deletes the edge with the given identity.
func (g *Graph) RemoveEdge(key EdgeKey) (Changeset, error) {
	if _, ok := g.edges[key]; !ok {
		return nil, fmt.Errorf("remove edge %s: %w", key, ErrUnknownEdge)
	}
	g.unlinkEdge(key)
	logging.GraphDebug("removed edge %s", key)
	return Changeset{edgeEvent(EdgeRemoved, key)}, nil
}

func (g *Graph) unlinkEdge(key EdgeKey) {
	delete(g.edges, key)
	g.out[key.From] = removeKey(g.out[key.From], key)
	g.in[key.To] = removeKey(g.in[key.To], key)
}

func removeKey(keys []EdgeKey, key EdgeKey) []EdgeKey {
	i := slices.Index(keys, key)
	if i < 0 {
		return keys
	}
	return slices.Delete(keys, i, i+1)
}

// Edge returns a snapshot of the edge with the given identity.
func (g *Graph) Edge(key EdgeKey) (Edge, bool) {
	e, ok := g.edges[key]
	if !ok {
		return Edge{}, false
	}
	return e.clone(), true
}

// HasEdge reports whether the identity triple is present.
func (g *Graph) HasEdge(key EdgeKey) bool {
	_, ok := g.edges[key]
	return ok
}

// Emanating returns snapshots of the edges leaving id, in insertion order.
func (g *Graph) Emanating(id VertexID) []Edge {
	return g.snapshot(g.out[id])
}

// EmanatingAttr returns the edges leaving id whose attribute is attr.
func (g *Graph) EmanatingAttr(id VertexID, attr string) []Edge {
	var out []Edge
	for _, key := range g.out[id] {
		if key.Attr == attr {
			out = append(out, g.edges[key].clone())
		}
	}
	return out
}

// Parents returns snapshots of the edges arriving at id.
func (g *Graph) Parents(id VertexID) []Edge {
	return g.snapshot(g.in[id])
}

func (g *Graph) snapshot(keys []EdgeKey) []Edge {
	if len(keys) == 0 {
		return nil
	}
	out := make([]Edge, 0, len(keys))
	for _, key := range keys {
		out = append(out, g.edges[key].clone())
	}
	return out
}

// Vertices returns every live vertex in slot order.
func (g *Graph) Vertices() []Vertex {
	out := make([]Vertex, 0, len(g.slotOf))
	for _, v := range g.slots {
		if v != nil {
			out = append(out, v.clone())
		}
	}
	return out
}

// Edges returns every edge, grouped by source in slot order and in insertion
// order within a source.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for _, v := range g.slots {
		if v == nil {
			continue
		}
		for _, key := range g.out[v.ID] {
			out = append(out, g.edges[key].clone())
		}
	}
	return out
}

// VertexCount returns the number of live vertices.
func (g *Graph) VertexCount() int { return len(g.slotOf) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Holes returns the number of vacated slots awaiting compaction.
func (g *Graph) Holes() int { return len(g.slots) - len(g.slotOf) }

// ExtendEnumeration appends value to the enumeration at id. Values already
// present leave the graph untouched.
func (g *Graph) ExtendEnumeration(id VertexID, value string) (Changeset, error) {
	v, err := g.lookup(id)
	if err != nil {
		return nil, fmt.Errorf("extend enumeration: %w", err)
	}
	switch t := v.Value.(type) {
	case Enumeration:
		if t.Contains(value) {
			return nil, nil
		}
		t.Values = append(slices.Clone(t.Values), value)
		v.Value = t
	case Foreign:
		e, ok := t.Wrapped.(Enumeration)
		if !ok {
			return nil, fmt.Errorf("extend enumeration %s: %w", id, ErrNotEnumeration)
		}
		if e.Contains(value) {
			return nil, nil
		}
		e.Values = append(slices.Clone(e.Values), value)
		t.Wrapped = e
		v.Value = t
	default:
		return nil, fmt.Errorf("extend enumeration %s: %w", id, ErrNotEnumeration)
	}
	logging.GraphDebug("enumeration %s extended with %q", id, value)
	return Changeset{vertexEvent(VertexUpdated, id)}, nil
}

func (g *Graph) updateEdge(key EdgeKey, fn func(e *Edge)) error {
	e, ok := g.edges[key]
	if !ok {
		return fmt.Errorf("update edge %s: %w", key, ErrUnknownEdge)
	}
	fn(e)
	return nil
}

// MarkTested records that a condition-side triple matched the edge.
func (g *Graph) MarkTested(key EdgeKey) error {
	return g.updateEdge(key, func(e *Edge) { e.Tested = true })
}

// MarkCreated records that an action-side triple matched the edge.
func (g *Graph) MarkCreated(key EdgeKey) error {
	return g.updateEdge(key, func(e *Edge) { e.Created = true })
}

// SetGenerated flags the edge as synthesized, recording where it came from.
func (g *Graph) SetGenerated(key EdgeKey, prov Provenance) (Changeset, error) {
	err := g.updateEdge(key, func(e *Edge) {
		e.Generated = true
		e.Provenance = &prov
	})
	if err != nil {
		return nil, err
	}
	return Changeset{edgeEvent(EdgeUpdated, key)}, nil
}

// ClearGenerated validates the edge. Edges that are not generated are left
// alone and produce no event.
func (g *Graph) ClearGenerated(key EdgeKey) (Changeset, error) {
	changed := false
	err := g.updateEdge(key, func(e *Edge) {
		if e.Generated {
			changed = true
		}
		e.Generated = false
		e.Provenance = nil
	})
	if err != nil || !changed {
		return nil, err
	}
	return Changeset{edgeEvent(EdgeUpdated, key)}, nil
}

// SetComment attaches free text to the edge.
func (g *Graph) SetComment(key EdgeKey, comment string) (Changeset, error) {
	if err := g.updateEdge(key, func(e *Edge) { e.Comment = comment }); err != nil {
		return nil, err
	}
	return Changeset{edgeEvent(EdgeUpdated, key)}, nil
}

// SetErrorNoted sets the flag that keeps classification from re-reporting
// the edge.
func (g *Graph) SetErrorNoted(key EdgeKey, noted bool) error {
	return g.updateEdge(key, func(e *Edge) { e.ErrorNoted = noted })
}

// ResetLint clears tested, created and error-noted flags on every edge.
func (g *Graph) ResetLint() {
	for _, e := range g.edges {
		e.Tested, e.Created, e.ErrorNoted = false, false, false
	}
}

// ResetNotes clears only the error-noted flags.
func (g *Graph) ResetNotes() {
	for _, e := range g.edges {
		e.ErrorNoted = false
	}
}

// Clone returns a deep copy. Handles, serialization ids and slot layout are
// preserved.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		slots:    make([]*Vertex, len(g.slots)),
		slotOf:   make(map[VertexID]int, len(g.slotOf)),
		bySerial: make(map[string]VertexID, len(g.bySerial)),
		edges:    make(map[EdgeKey]*Edge, len(g.edges)),
		out:      make(map[VertexID][]EdgeKey, len(g.out)),
		in:       make(map[VertexID][]EdgeKey, len(g.in)),
		next:     g.next,
		root:     g.root,
		hasRoot:  g.hasRoot,
	}
	for i, v := range g.slots {
		if v != nil {
			cv := v.clone()
			c.slots[i] = &cv
		}
	}
	for id, slot := range g.slotOf {
		c.slotOf[id] = slot
	}
	for s, id := range g.bySerial {
		c.bySerial[s] = id
	}
	for k, e := range g.edges {
		ce := e.clone()
		c.edges[k] = &ce
	}
	for id, keys := range g.out {
		c.out[id] = slices.Clone(keys)
	}
	for id, keys := range g.in {
		c.in[id] = slices.Clone(keys)
	}
	return c
}
