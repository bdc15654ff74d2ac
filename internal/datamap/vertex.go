package datamap

import "fmt"

// VertexID is a stable handle for a vertex. Handles are assigned from a
// monotonic counter and never reused, so a removed vertex's handle resolves
// to ErrUnknownVertex instead of aliasing a newer vertex.
type VertexID int

func (id VertexID) String() string { return fmt.Sprintf("v%d", int(id)) }

// Vertex is a read-only view of a graph vertex. The graph hands out copies;
// mutate through Graph methods.
type Vertex struct {
	ID       VertexID
	SerialID string
	Value    Value
}

// Kind returns the payload kind (KindForeign for imported vertices).
func (v Vertex) Kind() Kind {
	if v.Value == nil {
		return KindIdentifier
	}
	return v.Value.Kind()
}

// EffectiveKind returns the kind the vertex behaves as, unwrapping foreign
// payloads.
func (v Vertex) EffectiveKind() Kind {
	return EffectiveKind(v.Value)
}

// AllowsEmanatingEdges is true only for identifiers and foreign-wrapped
// identifiers.
func (v Vertex) AllowsEmanatingEdges() bool {
	return v.EffectiveKind() == KindIdentifier
}

// IsIdentifier is shorthand for AllowsEmanatingEdges.
func (v Vertex) IsIdentifier() bool { return v.AllowsEmanatingEdges() }

func (v Vertex) clone() Vertex {
	out := v
	if v.Value != nil {
		out.Value = v.Value.clone()
	}
	return out
}

func (v Vertex) String() string {
	return fmt.Sprintf("%s(%s)", v.ID, Describe(v.Value))
}
