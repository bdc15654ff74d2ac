package match

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datamap/internal/datamap"
	"datamap/internal/production"
)

func state(v string) production.Triple {
	return production.Triple{Variable: v, HasState: true, Condition: true, Line: 1}
}

func cond(v, attr, value string, line int) production.Triple {
	return production.Triple{Variable: v, Attr: production.ParseRef(attr), Value: production.ParseRef(value), Condition: true, Line: line}
}

func act(v, attr, value string, line int) production.Triple {
	t := cond(v, attr, value, line)
	t.Condition = false
	return t
}

func kinds(diags []Diagnostic) []Kind {
	out := make([]Kind, 0, len(diags))
	for _, d := range diags {
		out = append(out, d.Kind)
	}
	return out
}

// blocks builds root ^io I, I ^input-link IL, root ^name enum{blocks}.
func blocks(t *testing.T) (*datamap.Graph, datamap.VertexID) {
	t.Helper()
	g, root := datamap.NewWithRoot()
	io, _ := g.AddVertex(datamap.Identifier{})
	il, _ := g.AddVertex(datamap.Identifier{})
	name, _ := g.AddVertex(datamap.NewEnumeration("blocks"))
	for _, e := range []datamap.EdgeKey{
		{From: root, Attr: "io", To: io.ID},
		{From: io.ID, Attr: "input-link", To: il.ID},
		{From: root, Attr: "name", To: name.ID},
	} {
		_, _, err := g.AddEdge(e.From, e.Attr, e.To)
		require.NoError(t, err)
	}
	return g, root
}

func TestStateVariable(t *testing.T) {
	v, err := StateVariable([]production.Triple{state("s"), state("s"), cond("s", "a", "b", 2)})
	require.NoError(t, err)
	assert.Equal(t, "s", v)

	_, err = StateVariable([]production.Triple{cond("s", "a", "b", 2)})
	assert.ErrorIs(t, err, ErrNoStateVariable)

	_, err = StateVariable([]production.Triple{state("s"), state("t")})
	assert.ErrorIs(t, err, ErrTooManyStateVariables)
	var sve *StateVariableError
	require.True(t, errors.As(err, &sve))
	assert.Equal(t, []string{"s", "t"}, sve.Variables)
}

func TestMatch_BindsThroughChains(t *testing.T) {
	g, root := blocks(t)
	triples := []production.Triple{
		state("s"),
		cond("s", "io", "<io>", 2),
		cond("io", "input-link", "<il>", 3),
		cond("s", "name", "blocks", 4),
	}
	res, err := Match(g, root, triples)
	require.NoError(t, err)
	assert.Empty(t, res.Failed)

	io := g.EmanatingAttr(root, "io")[0].To
	il := g.EmanatingAttr(io, "input-link")[0].To
	want := Bindings{"s": {root}, "io": {io}, "il": {il}}
	if diff := cmp.Diff(want, res.Bindings); diff != "" {
		t.Errorf("bindings mismatch (-want +got):\n%s", diff)
	}
}

func TestMatch_MarksLintBySide(t *testing.T) {
	g, root := blocks(t)
	_, err := Match(g, root, []production.Triple{state("s"), cond("s", "io", "<i>", 2), act("s", "name", "blocks", 3)})
	require.NoError(t, err)

	io := g.EmanatingAttr(root, "io")[0]
	assert.True(t, io.Tested)
	assert.False(t, io.Created)
	name := g.EmanatingAttr(root, "name")[0]
	assert.True(t, name.Created)
	assert.False(t, name.Tested)
}

func TestMatch_AttributeVariableMatchesAnyEdge(t *testing.T) {
	g, root := blocks(t)
	res, err := Match(g, root, []production.Triple{state("s"), cond("s", "<a>", "<v>", 2)})
	require.NoError(t, err)
	assert.Empty(t, res.Failed)
	assert.Len(t, res.Bindings.Bound("v"), 2)
	assert.Empty(t, res.Bindings.Bound("a"))
}

func TestMatch_Deterministic(t *testing.T) {
	triples := []production.Triple{
		state("s"),
		cond("s", "<a>", "<v>", 2),
		cond("v", "input-link", "<il>", 3),
		cond("s", "missing", "x", 4),
	}
	g1, r1 := blocks(t)
	g2, r2 := blocks(t)
	var d datamap.Dispatcher
	d.Register(datamap.ListenerFunc(func(datamap.Changeset) {}))

	first, err := Match(g1, r1, triples)
	require.NoError(t, err)
	second, err := Match(g2, r2, triples)
	require.NoError(t, err)
	again, err := Match(g1, r1, triples)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("identical graphs diverged (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first, again); diff != "" {
		t.Errorf("repeated match diverged (-first +again):\n%s", diff)
	}
}

func TestMatch_UnknownStart(t *testing.T) {
	g := datamap.New()
	_, err := Match(g, 42, []production.Triple{state("s")})
	assert.ErrorIs(t, err, datamap.ErrUnknownVertex)
}

func TestCheck_ScenarioA(t *testing.T) {
	g, root := datamap.NewWithRoot()
	triples := []production.Triple{state("s"), cond("s", "foo", "bar", 2)}

	diags, err := Check(g, root, triples)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, BadConstraint, diags[0].Kind)
	assert.Equal(t, 2, diags[0].Line)

	gen, cs, err := Complete(g, root, triples, datamap.Provenance{File: "rules.prod.yaml"})
	require.NoError(t, err)
	assert.Equal(t, []Kind{GeneratedEnumeration}, kinds(gen))
	assert.Equal(t, "foo", gen[0].Attr)
	assert.Equal(t, "bar", gen[0].Value)
	assert.True(t, cs.Structural())

	foo := g.EmanatingAttr(root, "foo")
	require.Len(t, foo, 1)
	assert.True(t, foo[0].Generated)
	require.NotNil(t, foo[0].Provenance)
	assert.Equal(t, datamap.Provenance{File: "rules.prod.yaml", Line: 2}, *foo[0].Provenance)
	dest, _ := g.Vertex(foo[0].To)
	assert.Equal(t, datamap.NewEnumeration("bar"), dest.Value)

	diags, err = Check(g, root, triples)
	require.NoError(t, err)
	assert.Empty(t, diags)
}

func TestCheck_OrdersConstraintsBeforeUnmatchedVariables(t *testing.T) {
	g, root := datamap.NewWithRoot()
	diags, err := Check(g, root, []production.Triple{
		state("s"),
		cond("s", "foo", "<x>", 2),
		cond("x", "bar", "baz", 3),
	})
	require.NoError(t, err)
	assert.Equal(t, []Kind{BadConstraint, BadConstraint, VariableNotMatched}, kinds(diags))
	assert.Equal(t, []string{"x"}, diags[2].Variables)
	assert.Equal(t, 2, diags[2].Line)
}

func TestCheck_StateVariableDiagnostics(t *testing.T) {
	g, root := datamap.NewWithRoot()

	diags, err := Check(g, root, []production.Triple{cond("s", "a", "b", 1)})
	require.NoError(t, err)
	assert.Equal(t, []Kind{NoStateVariable}, kinds(diags))

	diags, err = Check(g, root, []production.Triple{state("s"), state("t")})
	require.NoError(t, err)
	assert.Equal(t, []Kind{TooManyStateVariables}, kinds(diags))
	assert.Equal(t, "too many state variables: s, t", diags[0].Message())
}

func TestCheck_NumericOperatorIgnored(t *testing.T) {
	g, root := datamap.NewWithRoot()
	diags, err := Check(g, root, []production.Triple{state("s"), cond("s", "operator", "5", 2), cond("s", "operator", "0.5", 3)})
	require.NoError(t, err)
	assert.Empty(t, diags)
}

func TestCheckProduction_Annotates(t *testing.T) {
	g, root := datamap.NewWithRoot()
	p := production.Production{Name: "elaborate*foo", File: "a.mg", Line: 7, Triples: []production.Triple{
		state("s"), cond("s", "foo", "bar", 9),
	}}
	diags, err := CheckProduction(g, root, p)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, "a.mg:9: elaborate*foo: (<s> ^foo bar) does not match the datamap", diags[0].String())
}
