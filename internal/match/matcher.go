package match

import (
	"fmt"
	"slices"

	"datamap/internal/datamap"
	"datamap/internal/logging"
	"datamap/internal/production"
)

// Bindings maps a rule variable to its candidate vertices, in the order they
// were first bound.
type Bindings map[string][]datamap.VertexID

// Bound returns the candidates of name.
func (b Bindings) Bound(name string) []datamap.VertexID { return b[name] }

// add binds id to name, ignoring duplicates. It reports whether the binding
// set grew.
func (b Bindings) add(name string, id datamap.VertexID) bool {
	if slices.Contains(b[name], id) {
		return false
	}
	b[name] = append(b[name], id)
	return true
}

// replace swaps old for repl in the binding set of name.
func (b Bindings) replace(name string, old, repl datamap.VertexID) {
	if old == repl {
		return
	}
	set := b[name]
	i := slices.Index(set, old)
	if i < 0 {
		b.add(name, repl)
		return
	}
	if slices.Contains(set, repl) {
		b[name] = slices.Delete(set, i, i+1)
		return
	}
	set[i] = repl
}

// Result is the outcome of one match pass.
type Result struct {
	StateVariable string
	Bindings      Bindings
	// Failed lists, in stream order, the triples no edge satisfied.
	Failed []production.Triple
}

// StateVariable returns the single variable designated by state triples.
func StateVariable(triples []production.Triple) (string, error) {
	var vars []string
	for _, t := range triples {
		if t.HasState && !slices.Contains(vars, t.Variable) {
			vars = append(vars, t.Variable)
		}
	}
	switch len(vars) {
	case 0:
		return "", &StateVariableError{Err: ErrNoStateVariable}
	case 1:
		return vars[0], nil
	default:
		return "", &StateVariableError{Variables: vars, Err: ErrTooManyStateVariables}
	}
}

// ignored reports triples with no schema meaning: numeric operator
// references such as preference values.
func ignored(t production.Triple) bool {
	return !t.Attr.Var && t.Attr.Name == "operator" &&
		!t.Value.Var && production.Classify(t.Value.Name) != production.Symbolic
}

// Match binds the state variable to start, then applies every other triple
// in stream order against the graph. Matching edges get their tested or
// created flag set. A triple with no matching edge is recorded in
// Result.Failed and matching carries on.
func Match(g *datamap.Graph, start datamap.VertexID, triples []production.Triple) (*Result, error) {
	if _, ok := g.Vertex(start); !ok {
		return nil, fmt.Errorf("match: start %s: %w", start, datamap.ErrUnknownVertex)
	}
	state, err := StateVariable(triples)
	if err != nil {
		return nil, err
	}

	res := &Result{StateVariable: state, Bindings: Bindings{state: {start}}}
	for _, t := range triples {
		if t.HasState || ignored(t) {
			continue
		}
		if !addConstraint(g, res.Bindings, t) {
			logging.MatchDebug("no edge satisfies %s", t)
			res.Failed = append(res.Failed, t)
		}
	}
	return res, nil
}

// addConstraint scans the emanating edges of every vertex bound to the
// triple's identifier variable. It reports whether any edge satisfied it.
func addConstraint(g *datamap.Graph, b Bindings, t production.Triple) bool {
	matched := false
	for _, id := range slices.Clone(b[t.Variable]) {
		for _, e := range g.Emanating(id) {
			if !satisfies(g, e, t) {
				continue
			}
			matched = true
			if t.Condition {
				_ = g.MarkTested(e.Key())
			} else {
				_ = g.MarkCreated(e.Key())
			}
			if t.Value.Var {
				b.add(t.Value.Name, e.To)
			}
		}
	}
	return matched
}

func satisfies(g *datamap.Graph, e datamap.Edge, t production.Triple) bool {
	if !t.Attr.Var && e.Attr != t.Attr.Name {
		return false
	}
	if t.Value.Var {
		return true
	}
	dest, ok := g.Vertex(e.To)
	if !ok {
		return false
	}
	value := datamap.Effective(dest.Value)
	return value != nil && value.Accepts(t.Value.Name)
}
