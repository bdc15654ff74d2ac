package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"

	"datamap/internal/datamap"
	"datamap/internal/match"
)

// Diagnostics writes one line per diagnostic followed by a summary line.
func Diagnostics(w io.Writer, diags []match.Diagnostic, st Styles) error {
	for _, d := range diags {
		label := st.Error.Render("error")
		if d.Kind.Generated() {
			label = st.Info.Render("generated")
		}
		loc := ""
		if d.File != "" || d.Line > 0 {
			loc = st.Location.Render(location(d)) + " "
		}
		name := ""
		if d.Production != "" {
			name = st.Title.Render(d.Production) + ": "
		}
		if _, err := fmt.Fprintf(w, "%s%s %s%s\n", loc, label, name, d.Message()); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, Summary(diags, st))
	return err
}

func location(d match.Diagnostic) string {
	switch {
	case d.File != "" && d.Line > 0:
		return fmt.Sprintf("%s:%d:", d.File, d.Line)
	case d.File != "":
		return d.File + ":"
	default:
		return fmt.Sprintf("line %d:", d.Line)
	}
}

// Summary counts errors and generated items.
func Summary(diags []match.Diagnostic, st Styles) string {
	errs, gen := 0, 0
	for _, d := range diags {
		if d.Kind.Generated() {
			gen++
		} else {
			errs++
		}
	}
	if errs == 0 && gen == 0 {
		return st.Success.Render("datamap is consistent")
	}
	var parts []string
	if errs > 0 {
		parts = append(parts, st.Error.Render(plural(errs, "error")))
	}
	if gen > 0 {
		parts = append(parts, st.Info.Render(plural(gen, "generated item")))
	}
	return strings.Join(parts, ", ")
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// Paths names every vertex reachable from root by its first-found attribute
// path, e.g. "io.output-link". The root itself has the empty path.
func Paths(g *datamap.Graph, root datamap.VertexID) map[datamap.VertexID]string {
	paths := map[datamap.VertexID]string{root: ""}
	queue := []datamap.VertexID{root}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range g.Emanating(id) {
			if _, seen := paths[e.To]; seen {
				continue
			}
			paths[e.To] = joinPath(paths[id], e.Attr)
			queue = append(queue, e.To)
		}
	}
	return paths
}

func joinPath(prefix, attr string) string {
	if prefix == "" {
		return attr
	}
	return prefix + "." + attr
}

// ClassificationMarkdown renders a usage classification as markdown, one
// section per non-empty bucket.
func ClassificationMarkdown(g *datamap.Graph, root datamap.VertexID, c datamap.Classification) string {
	paths := Paths(g, root)
	var b strings.Builder
	b.WriteString("# Datamap usage\n\n")
	if c.Len() == 0 {
		b.WriteString("Every attribute is both tested and created by some production.\n")
		return b.String()
	}
	section := func(title, hint string, edges []datamap.Edge) {
		if len(edges) == 0 {
			return
		}
		fmt.Fprintf(&b, "## %s (%d)\n\n%s\n\n", title, len(edges), hint)
		b.WriteString("| attribute | value |\n|---|---|\n")
		for _, e := range edges {
			value := "?"
			if v, ok := g.Vertex(e.To); ok {
				value = datamap.Describe(v.Value)
			}
			fmt.Fprintf(&b, "| `%s` | %s |\n", joinPath(paths[e.From], e.Attr), value)
		}
		b.WriteString("\n")
	}
	section("Untested", "No production tests these attributes.", c.Untested)
	section("Uncreated", "No production creates these attributes.", c.Uncreated)
	section("Tested but never created", "Productions test these attributes but none create them.", c.TestedNoCreate)
	section("Created but never tested", "Productions create these attributes but none test them.", c.CreatedNoTest)
	return b.String()
}

// RenderMarkdown renders markdown for the terminal. style is a glamour
// standard style name ("dark", "light", "notty"); empty picks one from the
// terminal.
func RenderMarkdown(md, style string, width int) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if style == "" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("markdown renderer: %w", err)
	}
	return r.Render(md)
}
