package datamap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEdge(t *testing.T, g *Graph, from VertexID, attr string, to VertexID) EdgeKey {
	t.Helper()
	e, _, err := g.AddEdge(from, attr, to)
	require.NoError(t, err)
	return e.Key()
}

func TestGraph_AddVertexAndEdge(t *testing.T) {
	g, root := NewWithRoot()
	io, cs := g.AddVertex(Identifier{})
	require.Len(t, cs, 1)
	assert.Equal(t, VertexAdded, cs[0].Kind)

	name, _ := g.AddVertex(NewEnumeration("wander", "move"))

	e, cs, err := g.AddEdge(root, "io", io.ID)
	require.NoError(t, err)
	assert.Equal(t, Changeset{{Kind: EdgeAdded, Edge: e.Key()}}, cs)
	mustEdge(t, g, root, "name", name.ID)

	assert.Equal(t, 3, g.VertexCount())
	assert.Equal(t, 2, g.EdgeCount())

	out := g.Emanating(root)
	require.Len(t, out, 2)
	assert.Equal(t, "io", out[0].Attr)
	assert.Equal(t, "name", out[1].Attr)

	parents := g.Parents(name.ID)
	require.Len(t, parents, 1)
	assert.Equal(t, root, parents[0].From)

	assert.Len(t, g.EmanatingAttr(root, "name"), 1)
	assert.Empty(t, g.EmanatingAttr(root, "missing"))
}

func TestGraph_StructuralFaultsAbortWithoutMutation(t *testing.T) {
	g, root := NewWithRoot()
	enum, _ := g.AddVertex(NewEnumeration("a"))
	str, _ := g.AddVertex(String{})
	mustEdge(t, g, root, "x", enum.ID)

	tests := []struct {
		name string
		add  func() error
		want error
	}{
		{"edge from enumeration", func() error { _, _, err := g.AddEdge(enum.ID, "a", str.ID); return err }, ErrEdgesNotAllowed},
		{"edge from string", func() error { _, _, err := g.AddEdge(str.ID, "a", root); return err }, ErrEdgesNotAllowed},
		{"duplicate triple", func() error { _, _, err := g.AddEdge(root, "x", enum.ID); return err }, ErrDuplicateEdge},
		{"unknown source", func() error { _, _, err := g.AddEdge(VertexID(99), "x", root); return err }, ErrUnknownVertex},
		{"unknown destination", func() error { _, _, err := g.AddEdge(root, "x", VertexID(99)); return err }, ErrUnknownVertex},
		{"empty attribute", func() error { _, _, err := g.AddEdge(root, "", enum.ID); return err }, ErrEmptyAttribute},
		{"remove unknown edge", func() error { _, err := g.RemoveEdge(EdgeKey{From: root, Attr: "nope", To: enum.ID}); return err }, ErrUnknownEdge},
		{"remove unknown vertex", func() error { _, err := g.RemoveVertex(VertexID(42)); return err }, ErrUnknownVertex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.add()
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
			assert.Equal(t, 1, g.EdgeCount())
			assert.Equal(t, 3, g.VertexCount())
		})
	}
}

func TestGraph_SameAttributeDifferentDestinationsAreDistinct(t *testing.T) {
	g, root := NewWithRoot()
	a, _ := g.AddVertex(Identifier{})
	b, _ := g.AddVertex(Identifier{})
	mustEdge(t, g, root, "operator", a.ID)
	mustEdge(t, g, root, "operator", b.ID)
	assert.Len(t, g.EmanatingAttr(root, "operator"), 2)
}

func TestGraph_RemoveVertexLeavesHole(t *testing.T) {
	g, root := NewWithRoot()
	mid, _ := g.AddVertex(Identifier{})
	leaf, _ := g.AddVertex(String{})
	mustEdge(t, g, root, "a", mid.ID)
	mustEdge(t, g, mid.ID, "b", leaf.ID)

	cs, err := g.RemoveVertex(mid.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, cs.Count(EdgeRemoved))
	assert.Equal(t, 1, cs.Count(VertexRemoved))
	assert.True(t, cs.Structural())

	assert.Equal(t, 1, g.Holes())
	assert.Equal(t, 0, g.EdgeCount())
	_, ok := g.Vertex(mid.ID)
	assert.False(t, ok, "removed handle must not resolve")
	_, ok = g.VertexBySerial(mid.SerialID)
	assert.False(t, ok)

	// New vertices never reuse a removed handle.
	fresh, _ := g.AddVertex(Identifier{})
	assert.NotEqual(t, mid.ID, fresh.ID)
}

func TestGraph_RemoveRootClearsRoot(t *testing.T) {
	g, root := NewWithRoot()
	_, err := g.RemoveVertex(root)
	require.NoError(t, err)
	_, ok := g.Root()
	assert.False(t, ok)
}

func TestGraph_ForeignIdentifierAllowsEdges(t *testing.T) {
	g, root := NewWithRoot()
	f, _ := g.AddVertex(NewForeign("other.dm", "abc", Identifier{}))
	leaf, _ := g.AddVertex(String{})
	mustEdge(t, g, root, "imported", f.ID)
	mustEdge(t, g, f.ID, "x", leaf.ID)

	fe, _ := g.AddVertex(NewForeign("other.dm", "def", NewEnumeration("a")))
	_, _, err := g.AddEdge(fe.ID, "x", leaf.ID)
	assert.ErrorIs(t, err, ErrEdgesNotAllowed)
}

func TestGraph_ExtendEnumeration(t *testing.T) {
	g, _ := NewWithRoot()
	enum, _ := g.AddVertex(NewEnumeration("a"))

	cs, err := g.ExtendEnumeration(enum.ID, "b")
	require.NoError(t, err)
	assert.Equal(t, Changeset{{Kind: VertexUpdated, Vertex: enum.ID}}, cs)

	cs, err = g.ExtendEnumeration(enum.ID, "a")
	require.NoError(t, err)
	assert.True(t, cs.Empty(), "existing value is a no-op")

	v, _ := g.Vertex(enum.ID)
	assert.Equal(t, []string{"a", "b"}, v.Value.(Enumeration).Values)

	str, _ := g.AddVertex(String{})
	_, err = g.ExtendEnumeration(str.ID, "x")
	assert.ErrorIs(t, err, ErrNotEnumeration)

	fe, _ := g.AddVertex(NewForeign("doc", "s", NewEnumeration("p")))
	_, err = g.ExtendEnumeration(fe.ID, "q")
	require.NoError(t, err)
	fv, _ := g.Vertex(fe.ID)
	assert.True(t, fv.Value.Accepts("q"))
}

func TestGraph_SnapshotsSurviveMutation(t *testing.T) {
	g, root := NewWithRoot()
	enum, _ := g.AddVertex(NewEnumeration("a"))
	key := mustEdge(t, g, root, "x", enum.ID)

	before := g.Emanating(root)
	v, _ := g.Vertex(enum.ID)

	_, err := g.ExtendEnumeration(enum.ID, "b")
	require.NoError(t, err)
	_, err = g.RemoveEdge(key)
	require.NoError(t, err)

	assert.Len(t, before, 1, "snapshot slice unaffected by removal")
	assert.Equal(t, []string{"a"}, v.Value.(Enumeration).Values, "vertex copy unaffected by extension")
}

func TestGraph_LintFlags(t *testing.T) {
	g, root := NewWithRoot()
	leaf, _ := g.AddVertex(String{})
	key := mustEdge(t, g, root, "x", leaf.ID)

	require.NoError(t, g.MarkTested(key))
	require.NoError(t, g.MarkCreated(key))
	cs, err := g.SetGenerated(key, Provenance{File: "a.mg", Line: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, cs.Count(EdgeUpdated))

	e, _ := g.Edge(key)
	assert.True(t, e.Tested && e.Created && e.Generated)
	assert.Equal(t, "a.mg:3", e.Provenance.String())

	cs, err = g.ClearGenerated(key)
	require.NoError(t, err)
	assert.Len(t, cs, 1)
	cs, err = g.ClearGenerated(key)
	require.NoError(t, err)
	assert.True(t, cs.Empty(), "already validated")

	e, _ = g.Edge(key)
	assert.Nil(t, e.Provenance)

	g.ResetLint()
	e, _ = g.Edge(key)
	assert.False(t, e.Tested || e.Created)

	assert.ErrorIs(t, g.MarkTested(EdgeKey{}), ErrUnknownEdge)
}

func TestGraph_AddEdgeRecordDropsProvenanceOfValidatedEdges(t *testing.T) {
	g, root := NewWithRoot()
	leaf, _ := g.AddVertex(String{})
	e, _, err := g.AddEdgeRecord(Edge{From: root, Attr: "x", To: leaf.ID, Provenance: &Provenance{Line: 1}})
	require.NoError(t, err)
	assert.Nil(t, e.Provenance)
}

func TestGraph_DuplicateSerial(t *testing.T) {
	g := New()
	_, _, err := g.AddVertexWithSerial("s1", Identifier{})
	require.NoError(t, err)
	_, _, err = g.AddVertexWithSerial("s1", String{})
	assert.ErrorIs(t, err, ErrDuplicateSerial)
	assert.Equal(t, 1, g.VertexCount())
}

func TestGraph_SetRootRequiresIdentifier(t *testing.T) {
	g := New()
	s, _ := g.AddVertex(String{})
	assert.ErrorIs(t, g.SetRoot(s.ID), ErrEdgesNotAllowed)
	assert.ErrorIs(t, g.SetRoot(VertexID(7)), ErrUnknownVertex)
}

func TestGraph_CloneIsIndependent(t *testing.T) {
	g, root := NewWithRoot()
	enum, _ := g.AddVertex(NewEnumeration("a"))
	key := mustEdge(t, g, root, "x", enum.ID)

	c := g.Clone()
	_, err := c.ExtendEnumeration(enum.ID, "b")
	require.NoError(t, err)
	require.NoError(t, c.MarkTested(key))
	_, err = c.RemoveVertex(enum.ID)
	require.NoError(t, err)

	v, ok := g.Vertex(enum.ID)
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, v.Value.(Enumeration).Values)
	e, ok := g.Edge(key)
	require.True(t, ok)
	assert.False(t, e.Tested)

	r, ok := c.Root()
	assert.True(t, ok)
	assert.Equal(t, root, r)
}

func TestDispatcher(t *testing.T) {
	var d Dispatcher
	var order []string

	unregisterA := d.Register(ListenerFunc(func(cs Changeset) { order = append(order, "a") }))
	d.Register(ListenerFunc(func(cs Changeset) { order = append(order, "b") }))
	assert.Equal(t, 2, d.Len())

	d.Publish(nil)
	assert.Empty(t, order, "empty changesets are dropped")

	d.Publish(Changeset{{Kind: VertexAdded}})
	assert.Equal(t, []string{"a", "b"}, order)

	unregisterA()
	unregisterA()
	d.Publish(Changeset{{Kind: VertexAdded}})
	assert.Equal(t, []string{"a", "b", "b"}, order)
	assert.Equal(t, 1, d.Len())
}

func TestDispatcher_ListenerMayMutateGraph(t *testing.T) {
	g, root := NewWithRoot()
	var d Dispatcher
	added := 0
	d.Register(ListenerFunc(func(cs Changeset) {
		if cs.Count(EdgeAdded) > 0 && added == 0 {
			added++
			leaf, more := g.AddVertex(String{})
			_, more2, err := g.AddEdge(root, "echo", leaf.ID)
			require.NoError(t, err)
			d.Publish(append(more, more2...))
		}
	}))

	leaf, _ := g.AddVertex(String{})
	_, cs, err := g.AddEdge(root, "x", leaf.ID)
	require.NoError(t, err)
	d.Publish(cs)

	assert.Equal(t, 2, g.EdgeCount())
}
