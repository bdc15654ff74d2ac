package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datamap/internal/datamap"
	"datamap/internal/match"
	"datamap/internal/production"
	"datamap/internal/store"
)

func TestDiagnostics(t *testing.T) {
	tr := production.Triple{Variable: "s", Attr: production.Lit("foo"), Value: production.Lit("bar"), Condition: true, Line: 3}
	diags := []match.Diagnostic{
		{Kind: match.BadConstraint, File: "a.mg", Line: 3, Production: "p", Triple: &tr},
		{Kind: match.GeneratedEnumeration, File: "a.mg", Line: 3, Attr: "foo", Value: "bar"},
	}
	var buf bytes.Buffer
	require.NoError(t, Diagnostics(&buf, diags, PlainStyles()))

	want := "a.mg:3: error p: (<s> ^foo bar) does not match the datamap\n" +
		"a.mg:3: generated added enumeration ^foo with value bar\n" +
		"1 error, 1 generated item\n"
	assert.Equal(t, want, buf.String())
}

func TestSummary(t *testing.T) {
	assert.Equal(t, "datamap is consistent", Summary(nil, PlainStyles()))
	diags := []match.Diagnostic{{Kind: match.BadConstraint}, {Kind: match.VariableNotMatched}}
	assert.Equal(t, "2 errors", Summary(diags, PlainStyles()))
}

func TestClassificationMarkdown(t *testing.T) {
	g, root := datamap.NewWithRoot()
	io, _ := g.AddVertex(datamap.Identifier{})
	ol, _ := g.AddVertex(datamap.Identifier{})
	res, _ := g.AddVertex(datamap.NewEnumeration("ok"))
	_, _, err := g.AddEdge(root, "io", io.ID)
	require.NoError(t, err)
	_, _, err = g.AddEdge(io.ID, "output-link", ol.ID)
	require.NoError(t, err)
	_, _, err = g.AddEdge(ol.ID, "result", res.ID)
	require.NoError(t, err)

	paths := Paths(g, root)
	assert.Equal(t, "io.output-link", paths[ol.ID])

	c, err := datamap.Classify(g, root, datamap.DefaultClassifyOptions())
	require.NoError(t, err)
	md := ClassificationMarkdown(g, root, c)
	assert.Contains(t, md, "## Untested (1)")
	assert.Contains(t, md, "| `io.output-link.result` | enumeration{ok} |")
	assert.NotContains(t, md, "## Uncreated")

	out, err := RenderMarkdown(md, "notty", 100)
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, "io.output-link.result"))
}

func TestClassificationMarkdown_Clean(t *testing.T) {
	g, root := datamap.NewWithRoot()
	md := ClassificationMarkdown(g, root, datamap.Classification{})
	assert.Contains(t, md, "Every attribute")
}

func TestSnapshots(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Snapshots(&buf, nil, PlainStyles()))
	assert.Equal(t, "No checkpoints\n", buf.String())

	buf.Reset()
	snaps := []store.Snapshot{
		{ID: 2, Label: "after-prune", Vertices: 1, Edges: 0, CreatedAt: time.Now()},
		{ID: 1, Label: "completed", Vertices: 4, Edges: 3, CreatedAt: time.Now()},
	}
	require.NoError(t, Snapshots(&buf, snaps, PlainStyles()))
	out := buf.String()
	assert.Contains(t, out, "LABEL")
	assert.Contains(t, out, "after-prune")
	assert.Contains(t, out, "completed")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	// Top border, header, header rule, two rows, bottom border.
	assert.Len(t, lines, 6)
	assert.Less(t, strings.Index(out, "after-prune"), strings.Index(out, "completed"))
}
