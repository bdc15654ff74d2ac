package production

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

type yamlFile struct {
	Productions []yamlProduction `yaml:"productions"`
}

type yamlProduction struct {
	Name    string       `yaml:"name"`
	Line    int          `yaml:"line"`
	Triples []yamlTriple `yaml:"triples"`
}

type yamlTriple struct {
	ID     string `yaml:"id"`
	Attr   string `yaml:"attr"`
	Value  string `yaml:"value"`
	State  bool   `yaml:"state"`
	Action bool   `yaml:"action"`
	Line   int    `yaml:"line"`
}

// LoadYAML reads productions in the YAML interchange format:
//
//	productions:
//	  - name: propose*move
//	    line: 1
//	    triples:
//	      - {id: <s>, state: true}
//	      - {id: <s>, attr: operator, value: <o>, action: true, line: 3}
//
// Missing production lines default to the YAML node line; missing triple
// lines inherit the production line.
func LoadYAML(r io.Reader, file string) ([]Production, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	var raw yamlFile
	if err := doc.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	nodeLines := productionNodeLines(&doc)

	out := make([]Production, 0, len(raw.Productions))
	for i, rp := range raw.Productions {
		p := Production{Name: rp.Name, File: file, Line: rp.Line}
		if p.Line == 0 && i < len(nodeLines) {
			p.Line = nodeLines[i]
		}
		for _, rt := range rp.Triples {
			t := Triple{
				Variable:  ParseRef(rt.ID).Name,
				HasState:  rt.State,
				Condition: !rt.Action,
				Line:      rt.Line,
			}
			if rt.Attr != "" {
				t.Attr = ParseRef(rt.Attr)
			}
			if rt.Value != "" {
				t.Value = ParseRef(rt.Value)
			}
			if t.Line == 0 {
				t.Line = p.Line
			}
			if t.HasState && !(t.Attr.IsZero() && t.Value.IsZero()) {
				// {state: true, attr: a, value: v} is shorthand for the
				// designator followed by an ordinary constraint.
				p.Triples = append(p.Triples, Triple{Variable: t.Variable, HasState: true, Condition: true, Line: t.Line})
				t.HasState = false
			}
			p.Triples = append(p.Triples, t)
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// productionNodeLines finds the source line of each entry of the top-level
// productions sequence.
func productionNodeLines(doc *yaml.Node) []int {
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil
	}
	m := doc.Content[0]
	if m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value != "productions" {
			continue
		}
		seq := m.Content[i+1]
		lines := make([]int, 0, len(seq.Content))
		for _, n := range seq.Content {
			lines = append(lines, n.Line)
		}
		return lines
	}
	return nil
}
