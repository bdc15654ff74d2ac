package production

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRef(t *testing.T) {
	assert.Equal(t, Var("s"), ParseRef("<s>"))
	assert.Equal(t, Lit("<>"), ParseRef("<>"))
	assert.Equal(t, Lit("move"), ParseRef("move"))
	assert.Equal(t, "<o>", Var("o").String())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		token string
		want  LexClass
	}{
		{"5", Integer},
		{"-12", Integer},
		{"3.25", Float},
		{"1e3", Float},
		{".5", Float},
		{"inf", Symbolic},
		{"NaN", Symbolic},
		{"move-block", Symbolic},
		{"-", Symbolic},
		{"1.2.3", Symbolic},
		{"", Symbolic},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			if got := Classify(tt.token); got != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.token, got, tt.want)
			}
		})
	}
}

func TestVariablesSkipAttributePositions(t *testing.T) {
	p := Production{Name: "p", Triples: []Triple{
		{Variable: "s", HasState: true},
		{Variable: "s", Attr: Var("a"), Value: Var("v")},
		{Variable: "v", Attr: Lit("name"), Value: Lit("x")},
		{Variable: "s", Attr: Lit("op"), Value: Var("o")},
	}}
	assert.Equal(t, []string{"s", "v", "o"}, p.Variables())
}

const yamlSource = `productions:
  - name: propose*move
    triples:
      - {id: <s>, state: true}
      - {id: <s>, attr: operator, value: <o>, action: true, line: 4}
      - {id: <o>, attr: name, value: move, action: true, line: 5}
  - name: apply*count
    line: 20
    triples:
      - {id: <s>, state: true}
      - {id: <s>, attr: count, value: 5}
`

func TestLoadYAML(t *testing.T) {
	got, err := LoadYAML(strings.NewReader(yamlSource), "rules.prod.yaml")
	require.NoError(t, err)
	require.Len(t, got, 2)

	want := Production{
		Name: "propose*move",
		File: "rules.prod.yaml",
		Line: 2,
		Triples: []Triple{
			{Variable: "s", HasState: true, Condition: true, Line: 2},
			{Variable: "s", Attr: Lit("operator"), Value: Var("o"), Line: 4},
			{Variable: "o", Attr: Lit("name"), Value: Lit("move"), Line: 5},
		},
	}
	if diff := cmp.Diff(want, got[0]); diff != "" {
		t.Errorf("first production mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 20, got[1].Line)
	assert.Equal(t, Lit("5"), got[1].Triples[1].Value)
	assert.True(t, got[1].Triples[1].Condition)
	assert.Equal(t, 20, got[1].Triples[1].Line)
}

func TestLoadYAML_Errors(t *testing.T) {
	_, err := LoadYAML(strings.NewReader("productions: [{triples: []}]"), "x.yaml")
	assert.ErrorContains(t, err, "no name")

	_, err = LoadYAML(strings.NewReader("productions:\n  - name: p\n    triples:\n      - {id: <s>, attr: a}\n"), "x.yaml")
	assert.ErrorContains(t, err, "attribute and a value")

	got, err := LoadYAML(strings.NewReader(""), "empty.yaml")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadYAML_StateShorthandSplits(t *testing.T) {
	src := "productions:\n  - name: p\n    triples:\n      - {id: <s>, state: true, attr: io, value: <io>, line: 3}\n"
	got, err := LoadYAML(strings.NewReader(src), "x.yaml")
	require.NoError(t, err)
	require.Len(t, got, 1)

	want := []Triple{
		{Variable: "s", HasState: true, Condition: true, Line: 3},
		{Variable: "s", Attr: Lit("io"), Value: Var("io"), Condition: true, Line: 3},
	}
	if diff := cmp.Diff(want, got[0].Triples); diff != "" {
		t.Errorf("triples mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate_StateTripleWithAttribute(t *testing.T) {
	p := Production{Name: "p", Triples: []Triple{{Variable: "s", HasState: true, Attr: Lit("io")}}}
	assert.ErrorContains(t, p.Validate(), "cannot carry an attribute")
}

const mangleSource = `# blocks world
propose_move(S) :-
    state(S),
    wme(S, "io", I),
    make(S, "operator", O),
    make(O, /name, "move-block").

apply_weight(S) :- state(S), wme(S, _, _), make(S, "weight", 2.5), make(S, "count", 3).
`

func TestLoadMangle(t *testing.T) {
	got, err := LoadMangle(strings.NewReader(mangleSource), "blocks.mg")
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, "propose_move", first.Name)
	assert.Equal(t, 2, first.Line)
	want := []Triple{
		{Variable: "S", HasState: true, Condition: true, Line: 2},
		{Variable: "S", Attr: Lit("io"), Value: Var("I"), Condition: true, Line: 2},
		{Variable: "S", Attr: Lit("operator"), Value: Var("O"), Line: 2},
		{Variable: "O", Attr: Lit("name"), Value: Lit("move-block"), Line: 2},
	}
	if diff := cmp.Diff(want, first.Triples); diff != "" {
		t.Errorf("triples mismatch (-want +got):\n%s", diff)
	}

	second := got[1]
	assert.Equal(t, 8, second.Line)
	require.Len(t, second.Triples, 4)
	assert.Equal(t, Var("_1"), second.Triples[1].Attr)
	assert.Equal(t, Var("_2"), second.Triples[1].Value)
	assert.Equal(t, Lit("2.5"), second.Triples[2].Value)
	assert.Equal(t, Float, Classify(second.Triples[2].Value.Name))
	assert.Equal(t, Lit("3"), second.Triples[3].Value)
}

func TestLoadMangle_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unsupported premise", `p(S) :- state(S), other(S).`},
		{"literal identifier", `p(S) :- state(S), wme("s", "a", "b").`},
		{"syntax error", "p(S) :- state(S\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadMangle(strings.NewReader(tt.src), "bad.mg")
			assert.Error(t, err)
		})
	}
}

func TestSplitStatements(t *testing.T) {
	src := "a(X) :- b(X, \"x.y\"). # c(X).\n\nd(1.5).\n"
	got := splitStatements(src)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].line)
	assert.Contains(t, got[0].text, `"x.y"`)
	assert.Equal(t, 3, got[1].line)
	assert.Contains(t, got[1].text, "1.5")
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "a.prod.yaml")
	mgPath := filepath.Join(dir, "b.mg")
	require.NoError(t, os.WriteFile(yamlPath, []byte(yamlSource), 0644))
	require.NoError(t, os.WriteFile(mgPath, []byte(mangleSource), 0644))

	ps, err := LoadFile(yamlPath)
	require.NoError(t, err)
	assert.Len(t, ps, 2)

	ps, err = LoadFile(mgPath)
	require.NoError(t, err)
	assert.Len(t, ps, 2)

	_, err = LoadFile(filepath.Join(dir, "c.txt"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
