package datamap

import "fmt"

// EdgeKey is the identity of an edge. Two edges with the same source,
// attribute and destination are the same edge.
type EdgeKey struct {
	From VertexID
	Attr string
	To   VertexID
}

func (k EdgeKey) String() string {
	return fmt.Sprintf("%s ^%s %s", k.From, k.Attr, k.To)
}

// Provenance records which production synthesized a generated edge.
type Provenance struct {
	File string
	Line int
}

func (p Provenance) String() string {
	if p.File == "" {
		return fmt.Sprintf("line %d", p.Line)
	}
	return fmt.Sprintf("%s:%d", p.File, p.Line)
}

// Edge is a named, directed edge plus its lint state. Values returned by the
// graph are snapshots; they stay valid after later mutations.
type Edge struct {
	From VertexID
	Attr string
	To   VertexID

	// Tested is set when a condition-side triple matched the edge.
	Tested bool
	// Created is set when an action-side triple matched the edge.
	Created bool
	// Generated marks structure synthesized by the completer and not yet
	// validated by a user.
	Generated bool
	// ErrorNoted suppresses repeat reports from usage classification.
	ErrorNoted bool

	Comment string
	// Provenance is only meaningful while Generated is true.
	Provenance *Provenance
}

// Key returns the identity triple of the edge.
func (e Edge) Key() EdgeKey {
	return EdgeKey{From: e.From, Attr: e.Attr, To: e.To}
}

func (e Edge) String() string { return e.Key().String() }

func (e Edge) clone() Edge {
	out := e
	if e.Provenance != nil {
		p := *e.Provenance
		out.Provenance = &p
	}
	return out
}
