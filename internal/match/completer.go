package match

import (
	"fmt"

	"datamap/internal/datamap"
	"datamap/internal/logging"
	"datamap/internal/production"
)

const (
	attrName     = "name"
	attrOperator = "operator"
)

// Completer extends a graph so that it absorbs the triples of a production.
type Completer struct {
	// MaxRounds bounds the match/repair rounds. Zero means one more than
	// the number of triples, which is enough for any chain of triples that
	// binds one variable per round.
	MaxRounds int
}

// Complete runs a Completer with default settings.
func Complete(g *datamap.Graph, start datamap.VertexID, triples []production.Triple, prov datamap.Provenance) ([]Diagnostic, datamap.Changeset, error) {
	return Completer{}.Complete(g, start, triples, prov)
}

// CompleteProduction completes the triples of p, attributing generated edges
// to p's file.
func (c Completer) CompleteProduction(g *datamap.Graph, start datamap.VertexID, p production.Production) ([]Diagnostic, datamap.Changeset, error) {
	diags, cs, err := c.Complete(g, start, p.Triples, datamap.Provenance{File: p.File, Line: p.Line})
	if err != nil {
		return nil, cs, err
	}
	annotate(diags, p)
	return diags, cs, nil
}

// Complete matches triples against the graph and synthesizes the structure
// every failing triple needs. Synthesized edges are flagged generated with
// provenance prov (the line is taken from the triple when it has one). The
// pass repeats until no triple fails or nothing more can be synthesized.
func (c Completer) Complete(g *datamap.Graph, start datamap.VertexID, triples []production.Triple, prov datamap.Provenance) ([]Diagnostic, datamap.Changeset, error) {
	timer := logging.StartTimer(logging.CategoryComplete, "complete")
	defer timer.Stop()

	rounds := c.MaxRounds
	if rounds <= 0 {
		rounds = len(triples) + 1
	}

	run := &completion{g: g, start: start, prov: prov}
	for round := 0; round < rounds; round++ {
		res, err := Match(g, start, triples)
		if err != nil {
			if d, ok := stateDiagnostic(err); ok {
				return []Diagnostic{d}, nil, nil
			}
			return nil, nil, err
		}
		if len(res.Failed) == 0 {
			break
		}
		before := len(run.changes)
		for _, t := range res.Failed {
			if err := run.repair(res.Bindings, t); err != nil {
				return run.diags, run.changes, err
			}
		}
		if len(run.changes) == before {
			logging.CompleteDebug("round %d made no progress on %d triples", round, len(res.Failed))
			break
		}
	}
	if len(run.diags) > 0 {
		logging.Complete("completion generated %d items at %s", len(run.diags), prov)
	}
	return run.diags, run.changes, nil
}

// completion accumulates the output of one Complete call.
type completion struct {
	g       *datamap.Graph
	start   datamap.VertexID
	prov    datamap.Provenance
	diags   []Diagnostic
	changes datamap.Changeset
}

func (r *completion) provenance(t production.Triple) datamap.Provenance {
	p := r.prov
	if t.Line > 0 {
		p.Line = t.Line
	}
	return p
}

func (r *completion) report(kind Kind, t production.Triple, key datamap.EdgeKey) {
	tc := t
	d := Diagnostic{Kind: kind, Line: r.provenance(t).Line, File: r.prov.File, Triple: &tc, Attr: key.Attr, Edge: key}
	if !t.Value.Var {
		d.Value = t.Value.Name
	}
	r.diags = append(r.diags, d)
}

// repair synthesizes structure for one failing triple against every vertex
// bound to its identifier variable.
func (r *completion) repair(b Bindings, t production.Triple) error {
	if t.Attr.Var {
		logging.CompleteDebug("skipping %s: attribute is a variable", t)
		return nil
	}
	for _, id := range append([]datamap.VertexID(nil), b[t.Variable]...) {
		v, ok := r.g.Vertex(id)
		if !ok {
			continue
		}
		if !v.IsIdentifier() {
			subs, err := r.substitute(v, t)
			if err != nil {
				return err
			}
			for _, s := range subs {
				b.replace(t.Variable, id, s)
				if err := r.repairAt(b, s, t); err != nil {
					return err
				}
			}
			continue
		}
		if err := r.repairAt(b, id, t); err != nil {
			return err
		}
	}
	return nil
}

// substitute finds an identifier standing in for a non-identifier vertex:
// for each parent edge (p ^a v), an identifier sibling reached by the same
// attribute, else a freshly generated one.
func (r *completion) substitute(v datamap.Vertex, t production.Triple) ([]datamap.VertexID, error) {
	var out []datamap.VertexID
	for _, pe := range r.g.Parents(v.ID) {
		if id, ok := r.identifierTarget(pe.From, pe.Attr); ok {
			out = append(out, id)
			continue
		}
		id, err := r.addIdentifier(pe.From, pe.Attr, t)
		if err != nil {
			return out, err
		}
		out = append(out, id)
	}
	return out, nil
}

func (r *completion) identifierTarget(from datamap.VertexID, attr string) (datamap.VertexID, bool) {
	for _, e := range r.g.EmanatingAttr(from, attr) {
		if dest, ok := r.g.Vertex(e.To); ok && dest.IsIdentifier() {
			return e.To, true
		}
	}
	return 0, false
}

// repairAt synthesizes the edge t needs on identifier id.
func (r *completion) repairAt(b Bindings, id datamap.VertexID, t production.Triple) error {
	attr := t.Attr.Name
	if t.Value.Var {
		dest, err := r.addIdentifier(id, attr, t)
		if err != nil {
			return err
		}
		b.add(t.Value.Name, dest)
		return nil
	}
	if attr == attrName && id != r.start {
		if handled, err := r.reconcileName(b, id, t); handled || err != nil {
			return err
		}
	}
	return r.addLiteral(id, t)
}

// reconcileName places a name literal on an operator identifier without
// spawning a duplicate operator: it reuses a sibling operator already
// carrying the name, then one with no name yet, and only then adds a new
// operator. It reports false when id is not reached through an operator
// edge.
func (r *completion) reconcileName(b Bindings, id datamap.VertexID, t production.Triple) (bool, error) {
	var parent datamap.VertexID
	found := false
	for _, pe := range r.g.Parents(id) {
		if pe.Attr == attrOperator {
			parent, found = pe.From, true
			break
		}
	}
	if !found {
		return false, nil
	}

	var siblings []datamap.VertexID
	for _, e := range r.g.EmanatingAttr(parent, attrOperator) {
		if dest, ok := r.g.Vertex(e.To); ok && dest.IsIdentifier() {
			siblings = append(siblings, e.To)
		}
	}
	for _, sib := range siblings {
		for _, ne := range r.g.EmanatingAttr(sib, attrName) {
			dest, ok := r.g.Vertex(ne.To)
			if !ok {
				continue
			}
			if e, isEnum := datamap.Effective(dest.Value).(datamap.Enumeration); isEnum && e.Contains(t.Value.Name) {
				logging.CompleteDebug("reusing operator %s named %s", sib, t.Value.Name)
				b.replace(t.Variable, id, sib)
				return true, nil
			}
		}
	}
	for _, sib := range siblings {
		if len(r.g.EmanatingAttr(sib, attrName)) == 0 {
			logging.CompleteDebug("filling unnamed operator %s with %s", sib, t.Value.Name)
			b.replace(t.Variable, id, sib)
			return true, r.addEnumeration(sib, t)
		}
	}
	op, err := r.addIdentifier(parent, attrOperator, t)
	if err != nil {
		return true, err
	}
	b.replace(t.Variable, id, op)
	return true, r.addEnumeration(op, t)
}

// addLiteral gives identifier id an edge whose destination accepts the
// triple's literal value.
func (r *completion) addLiteral(id datamap.VertexID, t production.Triple) error {
	attr, literal := t.Attr.Name, t.Value.Name
	class := production.Classify(literal)
	existing := r.g.EmanatingAttr(id, attr)

	if class == production.Symbolic {
		for _, e := range existing {
			dest, ok := r.g.Vertex(e.To)
			if ok && datamap.EffectiveKind(dest.Value) == datamap.KindEnumeration {
				return r.extendEnumeration(e, t)
			}
		}
	}

	var stale []datamap.EdgeKey
	for _, e := range existing {
		dest, ok := r.g.Vertex(e.To)
		switch {
		case ok && dest.IsIdentifier():
			stale = append(stale, e.Key())
		case ok && datamap.EffectiveKind(dest.Value) == datamap.KindEnumeration:
			// Numbers never join a symbolic enumeration; the range edge
			// goes alongside it.
		default:
			// TODO: decide whether a literal should widen an existing
			// string or range destination instead of being dropped.
			logging.CompleteDebug("giving up on %s: ^%s already holds %s", t, attr, datamap.Describe(dest.Value))
			return nil
		}
	}
	// A value assertion supersedes a stale identifier assertion.
	for _, key := range stale {
		cs, err := r.g.RemoveEdge(key)
		if err != nil {
			return err
		}
		r.changes = append(r.changes, cs...)
	}

	switch class {
	case production.Integer:
		_, err := r.addEdge(id, attr, datamap.UnboundedInteger(), GeneratedInteger, t)
		return err
	case production.Float:
		_, err := r.addEdge(id, attr, datamap.UnboundedFloat(), GeneratedFloat, t)
		return err
	default:
		return r.addEnumeration(id, t)
	}
}

// extendEnumeration appends the literal to the enumeration at e and re-adds
// e flagged generated, so listeners see a structural change.
func (r *completion) extendEnumeration(e datamap.Edge, t production.Triple) error {
	cs, err := r.g.ExtendEnumeration(e.To, t.Value.Name)
	if err != nil {
		return err
	}
	r.changes = append(r.changes, cs...)

	removed, err := r.g.RemoveEdge(e.Key())
	if err != nil {
		return err
	}
	r.changes = append(r.changes, removed...)

	prov := r.provenance(t)
	e.Generated = true
	e.Provenance = &prov
	_, added, err := r.g.AddEdgeRecord(e)
	if err != nil {
		return err
	}
	r.changes = append(r.changes, added...)
	r.report(AddToEnumeration, t, e.Key())
	return nil
}

func (r *completion) addEnumeration(id datamap.VertexID, t production.Triple) error {
	_, err := r.addEdge(id, t.Attr.Name, datamap.NewEnumeration(t.Value.Name), GeneratedEnumeration, t)
	return err
}

// addIdentifier adds (from ^attr new-identifier) and returns the new vertex.
func (r *completion) addIdentifier(from datamap.VertexID, attr string, t production.Triple) (datamap.VertexID, error) {
	return r.addEdge(from, attr, datamap.Identifier{}, GeneratedIdentifier, t)
}

// addEdge creates a vertex holding value and a generated edge to it.
func (r *completion) addEdge(from datamap.VertexID, attr string, value datamap.Value, kind Kind, t production.Triple) (datamap.VertexID, error) {
	v, cs := r.g.AddVertex(value)
	r.changes = append(r.changes, cs...)

	prov := r.provenance(t)
	e, added, err := r.g.AddEdgeRecord(datamap.Edge{From: from, Attr: attr, To: v.ID, Generated: true, Provenance: &prov})
	if err != nil {
		return 0, fmt.Errorf("complete %s: %w", t, err)
	}
	r.changes = append(r.changes, added...)
	r.report(kind, t, e.Key())
	return v.ID, nil
}
