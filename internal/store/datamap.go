package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"datamap/internal/datamap"
	"datamap/internal/logging"
)

// slowGraphIO is how long a full graph save or load may take before it is
// logged as a warning.
const slowGraphIO = 500 * time.Millisecond

// ErrNoDatamap is returned by LoadGraph when nothing has been saved yet.
var ErrNoDatamap = errors.New("store: no datamap saved")

const metaRoot = "root_position"

// SaveGraph replaces the stored datamap with g in a single transaction.
// Vertex positions are rewritten densely, so holes left by removals are not
// persisted.
func (s *Store) SaveGraph(ctx context.Context, g *datamap.Graph) error {
	timer := logging.StartTimer(logging.CategoryStore, "SaveGraph")
	defer timer.StopWithThreshold(slowGraphIO)

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{"DELETE FROM edges", "DELETE FROM vertices", "DELETE FROM datamap_meta"} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear datamap: %w", err)
		}
	}

	vstmt, err := tx.PrepareContext(ctx, "INSERT INTO vertices (position, serial, payload) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare vertex insert: %w", err)
	}
	defer vstmt.Close()

	vertices := g.Vertices()
	pos := make(map[datamap.VertexID]int, len(vertices))
	for i, v := range vertices {
		pos[v.ID] = i
		if _, err := vstmt.ExecContext(ctx, i, v.SerialID, datamap.MarshalValue(v.Value)); err != nil {
			return fmt.Errorf("insert vertex %s: %w", v.ID, err)
		}
	}

	estmt, err := tx.PrepareContext(ctx, `INSERT INTO edges
		(position, source, attr, dest, tested, created, generated, error_noted, comment, prov_file, prov_line)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare edge insert: %w", err)
	}
	defer estmt.Close()

	edges := g.Edges()
	for i, e := range edges {
		var file string
		var line int
		if e.Generated && e.Provenance != nil {
			file, line = e.Provenance.File, e.Provenance.Line
		}
		_, err := estmt.ExecContext(ctx, i, pos[e.From], e.Attr, pos[e.To],
			e.Tested, e.Created, e.Generated, e.ErrorNoted, e.Comment, file, line)
		if err != nil {
			return fmt.Errorf("insert edge %s: %w", e.Key(), err)
		}
	}

	if root, ok := g.Root(); ok {
		if _, err := tx.ExecContext(ctx, "INSERT INTO datamap_meta (key, value) VALUES (?, ?)",
			metaRoot, strconv.Itoa(pos[root])); err != nil {
			return fmt.Errorf("save root: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	logging.Store("Saved datamap: %d vertices, %d edges", len(vertices), len(edges))
	return nil
}

// HasGraph reports whether a datamap has been saved.
func (s *Store) HasGraph(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vertices").Scan(&n); err != nil {
		return false, fmt.Errorf("count vertices: %w", err)
	}
	return n > 0, nil
}

// LoadGraph reads the stored datamap inside one read transaction. The graph
// is built fresh and returned only when every row decodes.
func (s *Store) LoadGraph(ctx context.Context) (*datamap.Graph, error) {
	timer := logging.StartTimer(logging.CategoryStore, "LoadGraph")
	defer timer.StopWithThreshold(slowGraphIO)

	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin load: %w", err)
	}
	defer tx.Rollback()

	g := datamap.New()
	ids, err := loadVertices(ctx, tx, g)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNoDatamap
	}

	var rootPos string
	err = tx.QueryRowContext(ctx, "SELECT value FROM datamap_meta WHERE key = ?", metaRoot).Scan(&rootPos)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("load root: %w", err)
	default:
		p, err := strconv.Atoi(rootPos)
		id, ok := ids[p]
		if err != nil || !ok {
			return nil, fmt.Errorf("load root: bad position %q", rootPos)
		}
		if err := g.SetRoot(id); err != nil {
			return nil, fmt.Errorf("load root: %w", err)
		}
	}

	if err := loadEdges(ctx, tx, g, ids); err != nil {
		return nil, err
	}
	logging.StoreDebug("Loaded datamap: %d vertices, %d edges", g.VertexCount(), g.EdgeCount())
	return g, nil
}

func loadVertices(ctx context.Context, tx *sql.Tx, g *datamap.Graph) (map[int]datamap.VertexID, error) {
	rows, err := tx.QueryContext(ctx, "SELECT position, serial, payload FROM vertices ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("query vertices: %w", err)
	}
	defer rows.Close()

	ids := make(map[int]datamap.VertexID)
	for rows.Next() {
		var pos int
		var serial, payload string
		if err := rows.Scan(&pos, &serial, &payload); err != nil {
			return nil, fmt.Errorf("scan vertex: %w", err)
		}
		value, err := datamap.ParseValue(payload)
		if err != nil {
			return nil, fmt.Errorf("vertex %d: %w", pos, err)
		}
		v, _, err := g.AddVertexWithSerial(serial, value)
		if err != nil {
			return nil, fmt.Errorf("vertex %d: %w", pos, err)
		}
		ids[pos] = v.ID
	}
	return ids, rows.Err()
}

func loadEdges(ctx context.Context, tx *sql.Tx, g *datamap.Graph, ids map[int]datamap.VertexID) error {
	rows, err := tx.QueryContext(ctx, `SELECT position, source, attr, dest, tested, created, generated,
		error_noted, comment, prov_file, prov_line FROM edges ORDER BY position`)
	if err != nil {
		return fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pos, src, dst, line int
		var e datamap.Edge
		var file string
		if err := rows.Scan(&pos, &src, &e.Attr, &dst, &e.Tested, &e.Created, &e.Generated,
			&e.ErrorNoted, &e.Comment, &file, &line); err != nil {
			return fmt.Errorf("scan edge: %w", err)
		}
		from, ok1 := ids[src]
		to, ok2 := ids[dst]
		if !ok1 || !ok2 {
			return fmt.Errorf("edge %d: %w", pos, datamap.ErrUnknownVertex)
		}
		e.From, e.To = from, to
		if e.Generated {
			e.Provenance = &datamap.Provenance{File: file, Line: line}
		}
		if _, _, err := g.AddEdgeRecord(e); err != nil {
			return fmt.Errorf("edge %d: %w", pos, err)
		}
	}
	return rows.Err()
}
