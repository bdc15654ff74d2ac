package datamap

import (
	"fmt"

	"datamap/internal/logging"
)

// Reachable returns the set of vertices reachable from roots by following
// emanating edges, roots included.
func Reachable(g *Graph, roots ...VertexID) map[VertexID]struct{} {
	seen := make(map[VertexID]struct{}, g.VertexCount())
	queue := make([]VertexID, 0, len(roots))
	for _, r := range roots {
		if _, err := g.lookup(r); err != nil {
			continue
		}
		if _, ok := seen[r]; !ok {
			seen[r] = struct{}{}
			queue = append(queue, r)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, key := range g.out[id] {
			if _, ok := seen[key.To]; ok {
				continue
			}
			seen[key.To] = struct{}{}
			queue = append(queue, key.To)
		}
	}
	return seen
}

// Reduce discards every vertex not reachable from liveRoots, then compacts the
// slot table and rebuilds the serialization index. Handles of surviving
// vertices are unchanged.
func Reduce(g *Graph, liveRoots []VertexID) (Changeset, error) {
	timer := logging.StartTimer(logging.CategorySweep, "reduce")
	defer timer.Stop()

	for _, r := range liveRoots {
		if _, err := g.lookup(r); err != nil {
			return nil, fmt.Errorf("reduce: live root: %w", err)
		}
	}

	live := Reachable(g, liveRoots...)
	var dead []VertexID
	for _, v := range g.slots {
		if v == nil {
			continue
		}
		if _, ok := live[v.ID]; !ok {
			dead = append(dead, v.ID)
		}
	}

	var cs Changeset
	for _, id := range dead {
		// Edges between two dead vertices are removed with the first of them.
		removed, err := g.RemoveVertex(id)
		if err != nil {
			return cs, err
		}
		cs = append(cs, removed...)
	}

	g.compact()
	logging.Sweep("reduce: kept %d vertices, discarded %d", g.VertexCount(), len(dead))
	return cs, nil
}

func (g *Graph) compact() {
	if g.Holes() == 0 {
		return
	}
	slots := make([]*Vertex, 0, len(g.slotOf))
	for _, v := range g.slots {
		if v != nil {
			slots = append(slots, v)
		}
	}
	g.slots = slots
	g.slotOf = make(map[VertexID]int, len(slots))
	g.bySerial = make(map[string]VertexID, len(slots))
	for i, v := range slots {
		g.slotOf[v.ID] = i
		g.bySerial[v.SerialID] = v.ID
	}
}
