package datamap

import (
	"fmt"
	"slices"

	"datamap/internal/logging"
)

// ClassifyOptions controls usage classification.
type ClassifyOptions struct {
	// Excluded attributes are structurally mandatory and never reported.
	// Traversal still continues through them.
	Excluded []string
	// CreateExempt names attributes whose subtrees skip the created check.
	CreateExempt []string
	// TestExempt names attributes whose subtrees skip the tested check.
	TestExempt []string
}

// DefaultExcluded is the set of structurally mandatory attribute names.
var DefaultExcluded = []string{
	"top-state", "operator", "input-link", "output-link", "item", "impasse",
	"superstate", "io", "attribute", "choices", "type", "quiescence",
}

// DefaultClassifyOptions excludes the mandatory attributes. Edges below
// output-link are never expected to be created by a rule and edges below
// input-link are never expected to be tested.
func DefaultClassifyOptions() ClassifyOptions {
	return ClassifyOptions{
		Excluded:     slices.Clone(DefaultExcluded),
		CreateExempt: []string{"output-link"},
		TestExempt:   []string{"input-link"},
	}
}

// Classification buckets edges by their tested/created flags. Untested and
// Uncreated each list every edge failing that one check. TestedNoCreate and
// CreatedNoTest narrow those lists to the edges whose other flag is set, so
// each of them is a subset of Uncreated or Untested respectively. Edges with
// neither flag appear only in Untested and Uncreated.
type Classification struct {
	Untested       []Edge
	Uncreated      []Edge
	TestedNoCreate []Edge
	CreatedNoTest  []Edge
}

// Len returns the total number of reports across buckets.
func (c Classification) Len() int {
	return len(c.Untested) + len(c.Uncreated) + len(c.TestedNoCreate) + len(c.CreatedNoTest)
}

type exemption struct {
	noCreate bool
	noTest   bool
}

// Classify scans the graph breadth-first from start and reports edges whose
// lint flags suggest unused or unproduced working memory. Every reported edge
// gets its error-noted flag set, so repeated scans report it only once until
// ResetNotes is called.
func Classify(g *Graph, start VertexID, opts ClassifyOptions) (Classification, error) {
	if _, err := g.lookup(start); err != nil {
		return Classification{}, fmt.Errorf("classify: %w", err)
	}

	var out Classification
	var noted []EdgeKey
	ctx := map[VertexID]exemption{start: {}}

	walk(g, start, func(id VertexID) []Edge {
		parent := ctx[id]
		edges := g.Emanating(id)
		for _, e := range edges {
			child := parent
			if slices.Contains(opts.CreateExempt, e.Attr) {
				child.noCreate = true
			}
			if slices.Contains(opts.TestExempt, e.Attr) {
				child.noTest = true
			}
			if _, ok := ctx[e.To]; !ok {
				ctx[e.To] = child
			}

			if e.ErrorNoted || slices.Contains(opts.Excluded, e.Attr) {
				continue
			}
			reported := false
			if !parent.noTest && !e.Tested {
				out.Untested = append(out.Untested, e)
				reported = true
			}
			if !parent.noCreate && !e.Created {
				out.Uncreated = append(out.Uncreated, e)
				reported = true
			}
			if !parent.noTest && !parent.noCreate {
				if e.Tested && !e.Created {
					out.TestedNoCreate = append(out.TestedNoCreate, e)
					reported = true
				}
				if e.Created && !e.Tested {
					out.CreatedNoTest = append(out.CreatedNoTest, e)
					reported = true
				}
			}
			if reported {
				noted = append(noted, e.Key())
			}
		}
		return edges
	})

	for _, key := range noted {
		_ = g.SetErrorNoted(key, true)
	}
	logging.Sweep("classify: untested=%d uncreated=%d tested-no-create=%d created-no-test=%d",
		len(out.Untested), len(out.Uncreated), len(out.TestedNoCreate), len(out.CreatedNoTest))
	return out, nil
}
