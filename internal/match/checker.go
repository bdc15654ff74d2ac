package match

import (
	"datamap/internal/datamap"
	"datamap/internal/logging"
	"datamap/internal/production"
)

// Check matches triples against the graph and reports every inconsistency:
// constraint failures first, in stream order, then each declared variable
// left with no binding. Only edge lint flags are touched.
func Check(g *datamap.Graph, start datamap.VertexID, triples []production.Triple) ([]Diagnostic, error) {
	timer := logging.StartTimer(logging.CategoryMatch, "check")
	defer timer.Stop()

	res, err := Match(g, start, triples)
	if err != nil {
		if d, ok := stateDiagnostic(err); ok {
			return []Diagnostic{d}, nil
		}
		return nil, err
	}

	diags := make([]Diagnostic, 0, len(res.Failed))
	for i := range res.Failed {
		t := res.Failed[i]
		diags = append(diags, Diagnostic{Kind: BadConstraint, Line: t.Line, Triple: &t})
	}
	p := production.Production{Triples: triples}
	for _, name := range p.Variables() {
		if len(res.Bindings[name]) == 0 {
			diags = append(diags, Diagnostic{Kind: VariableNotMatched, Variables: []string{name}, Line: firstLine(triples, name)})
		}
	}
	logging.MatchDebug("check: %d triples, %d diagnostics", len(triples), len(diags))
	return diags, nil
}

// CheckProduction runs Check on p and stamps its name and file onto the
// diagnostics.
func CheckProduction(g *datamap.Graph, start datamap.VertexID, p production.Production) ([]Diagnostic, error) {
	diags, err := Check(g, start, p.Triples)
	if err != nil {
		return nil, err
	}
	annotate(diags, p)
	return diags, nil
}

func firstLine(triples []production.Triple, name string) int {
	for _, t := range triples {
		if t.Variable == name || (t.Value.Var && t.Value.Name == name) {
			return t.Line
		}
	}
	return 0
}
