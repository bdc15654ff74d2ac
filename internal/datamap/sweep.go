package datamap

import (
	"fmt"

	"datamap/internal/logging"
)

// walk visits every vertex reachable from start in breadth-first order. visit
// returns the edges whose destinations should be explored next; it may mutate
// the graph.
func walk(g *Graph, start VertexID, visit func(id VertexID) []Edge) {
	seen := map[VertexID]struct{}{start: {}}
	queue := []VertexID{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range visit(id) {
			if _, ok := seen[e.To]; ok {
				continue
			}
			seen[e.To] = struct{}{}
			queue = append(queue, e.To)
		}
	}
}

// ValidateEntry clears the generated flag on exactly one edge.
func ValidateEntry(g *Graph, key EdgeKey) (Changeset, error) {
	cs, err := g.ClearGenerated(key)
	if err != nil {
		return nil, fmt.Errorf("validate entry: %w", err)
	}
	return cs, nil
}

// ValidateAll clears the generated flag on the edge and on every edge
// reachable from its destination.
func ValidateAll(g *Graph, key EdgeKey) (Changeset, error) {
	cs, err := ValidateEntry(g, key)
	if err != nil {
		return nil, err
	}
	cs = append(cs, clearSubtree(g, key.To)...)
	logging.SweepDebug("validated %d edges below %s", cs.Count(EdgeUpdated), key)
	return cs, nil
}

// ValidateDataMap clears the generated flag on every edge reachable from start.
func ValidateDataMap(g *Graph, start VertexID) (Changeset, error) {
	if _, err := g.lookup(start); err != nil {
		return nil, fmt.Errorf("validate datamap: %w", err)
	}
	cs := clearSubtree(g, start)
	logging.Sweep("validated %d generated edges", len(cs))
	return cs, nil
}

func clearSubtree(g *Graph, start VertexID) Changeset {
	var cs Changeset
	walk(g, start, func(id VertexID) []Edge {
		edges := g.Emanating(id)
		for _, e := range edges {
			if !e.Generated {
				continue
			}
			// The key came from a live snapshot, so the edge exists.
			c, _ := g.ClearGenerated(e.Key())
			cs = append(cs, c...)
		}
		return edges
	})
	return cs
}

// RemoveInvalid deletes every edge reachable from start that is still
// flagged generated. Destinations of deleted edges are not explored; run
// Reduce afterwards to collect orphaned vertices.
func RemoveInvalid(g *Graph, start VertexID) (Changeset, error) {
	if _, err := g.lookup(start); err != nil {
		return nil, fmt.Errorf("remove invalid: %w", err)
	}
	var cs Changeset
	walk(g, start, func(id VertexID) []Edge {
		for {
			// Each removal invalidates the emanating set; fetch it again.
			victim, found := firstGenerated(g.Emanating(id))
			if !found {
				break
			}
			c, _ := g.RemoveEdge(victim)
			cs = append(cs, c...)
		}
		return g.Emanating(id)
	})
	logging.Sweep("removed %d invalid edges", len(cs))
	return cs, nil
}

func firstGenerated(edges []Edge) (EdgeKey, bool) {
	for _, e := range edges {
		if e.Generated {
			return e.Key(), true
		}
	}
	return EdgeKey{}, false
}

// GeneratedEdges lists every edge reachable from start that awaits validation.
func GeneratedEdges(g *Graph, start VertexID) []Edge {
	var out []Edge
	if _, err := g.lookup(start); err != nil {
		return nil
	}
	walk(g, start, func(id VertexID) []Edge {
		edges := g.Emanating(id)
		for _, e := range edges {
			if e.Generated {
				out = append(out, e)
			}
		}
		return edges
	})
	return out
}
