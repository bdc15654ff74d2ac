package datamap

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

const snapshotVersion = 1

// snapshot is the msgpack form of a graph. Unlike the text format it keeps
// every lint flag, so a restored checkpoint classifies exactly like the
// graph it was taken from.
type snapshot struct {
	Version  int              `msgpack:"v"`
	Root     int              `msgpack:"root"`
	Vertices []snapshotVertex `msgpack:"vertices"`
	Edges    []snapshotEdge   `msgpack:"edges"`
}

type snapshotVertex struct {
	Serial string `msgpack:"serial"`
	// Value uses the text-format payload encoding, e.g. `ENUMERATION 2 "a" "b"`.
	Value string `msgpack:"value"`
}

type snapshotEdge struct {
	From       int    `msgpack:"from"`
	Attr       string `msgpack:"attr"`
	To         int    `msgpack:"to"`
	Tested     bool   `msgpack:"tested,omitempty"`
	Created    bool   `msgpack:"created,omitempty"`
	Generated  bool   `msgpack:"generated,omitempty"`
	ErrorNoted bool   `msgpack:"noted,omitempty"`
	Comment    string `msgpack:"comment,omitempty"`
	File       string `msgpack:"file,omitempty"`
	Line       int    `msgpack:"line,omitempty"`
}

// EncodeSnapshot serializes g, lint state included.
func EncodeSnapshot(g *Graph) ([]byte, error) {
	order := emissionOrder(g)
	pos := make(map[VertexID]int, len(order))
	snap := snapshot{Version: snapshotVersion, Root: -1}
	for i, v := range order {
		pos[v.ID] = i
		snap.Vertices = append(snap.Vertices, snapshotVertex{Serial: v.SerialID, Value: MarshalValue(v.Value)})
	}
	if root, ok := g.Root(); ok {
		snap.Root = pos[root]
	}
	for _, v := range order {
		for _, key := range g.out[v.ID] {
			e := g.edges[key]
			se := snapshotEdge{
				From:       pos[e.From],
				Attr:       e.Attr,
				To:         pos[e.To],
				Tested:     e.Tested,
				Created:    e.Created,
				Generated:  e.Generated,
				ErrorNoted: e.ErrorNoted,
				Comment:    e.Comment,
			}
			if e.Generated && e.Provenance != nil {
				se.File, se.Line = e.Provenance.File, e.Provenance.Line
			}
			snap.Edges = append(snap.Edges, se)
		}
	}
	data, err := msgpack.Marshal(&snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot rebuilds a graph from EncodeSnapshot output.
func DecodeSnapshot(data []byte) (*Graph, error) {
	var snap snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("decode snapshot: unsupported version %d", snap.Version)
	}

	g := New()
	ids := make([]VertexID, len(snap.Vertices))
	for i, sv := range snap.Vertices {
		value, err := ParseValue(sv.Value)
		if err != nil {
			return nil, fmt.Errorf("decode snapshot: vertex %d: %w", i, err)
		}
		v, _, err := g.AddVertexWithSerial(sv.Serial, value)
		if err != nil {
			return nil, fmt.Errorf("decode snapshot: vertex %d: %w", i, err)
		}
		ids[i] = v.ID
	}
	if snap.Root >= 0 {
		if snap.Root >= len(ids) {
			return nil, fmt.Errorf("decode snapshot: root %d out of range", snap.Root)
		}
		if err := g.SetRoot(ids[snap.Root]); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
	}
	for i, se := range snap.Edges {
		if se.From < 0 || se.From >= len(ids) || se.To < 0 || se.To >= len(ids) {
			return nil, fmt.Errorf("decode snapshot: edge %d: position out of range", i)
		}
		e := Edge{
			From:       ids[se.From],
			Attr:       se.Attr,
			To:         ids[se.To],
			Tested:     se.Tested,
			Created:    se.Created,
			Generated:  se.Generated,
			ErrorNoted: se.ErrorNoted,
			Comment:    se.Comment,
		}
		if se.Generated {
			e.Provenance = &Provenance{File: se.File, Line: se.Line}
		}
		if _, _, err := g.AddEdgeRecord(e); err != nil {
			return nil, fmt.Errorf("decode snapshot: edge %d: %w", i, err)
		}
	}
	return g, nil
}
