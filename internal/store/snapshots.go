package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"datamap/internal/datamap"
	"datamap/internal/logging"
)

// ErrSnapshotNotFound is returned for unknown checkpoint ids.
var ErrSnapshotNotFound = errors.New("store: snapshot not found")

// Snapshot describes a stored checkpoint.
type Snapshot struct {
	ID        int64
	Label     string
	Vertices  int
	Edges     int
	CreatedAt time.Time
}

// SaveSnapshot stores a msgpack checkpoint of g, lint state included.
func (s *Store) SaveSnapshot(ctx context.Context, label string, g *datamap.Graph) (Snapshot, error) {
	data, err := datamap.EncodeSnapshot(g)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Label: label, Vertices: g.VertexCount(), Edges: g.EdgeCount(), CreatedAt: time.Now().UTC()}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO snapshots (label, vertex_count, edge_count, data, created_at) VALUES (?, ?, ?, ?, ?)",
		label, snap.Vertices, snap.Edges, data, snap.CreatedAt.UnixMilli())
	if err != nil {
		return Snapshot{}, fmt.Errorf("insert snapshot: %w", err)
	}
	if snap.ID, err = res.LastInsertId(); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot id: %w", err)
	}
	logging.Store("Checkpoint %d %q saved (%d bytes)", snap.ID, label, len(data))
	return snap, nil
}

// ListSnapshots returns every checkpoint, newest first.
func (s *Store) ListSnapshots(ctx context.Context) ([]Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, label, vertex_count, edge_count, created_at FROM snapshots ORDER BY id DESC")
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		var ms int64
		if err := rows.Scan(&snap.ID, &snap.Label, &snap.Vertices, &snap.Edges, &ms); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.CreatedAt = time.UnixMilli(ms).UTC()
		out = append(out, snap)
	}
	return out, rows.Err()
}

// LoadSnapshot decodes the checkpoint with the given id.
func (s *Store) LoadSnapshot(ctx context.Context, id int64) (*datamap.Graph, error) {
	s.mu.RLock()
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM snapshots WHERE id = ?", id).Scan(&data)
	s.mu.RUnlock()
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrSnapshotNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %d: %w", id, err)
	}
	g, err := datamap.DecodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("snapshot %d: %w", id, err)
	}
	logging.StoreDebug("Checkpoint %d loaded: %d vertices", id, g.VertexCount())
	return g, nil
}

// DeleteSnapshot removes a checkpoint.
func (s *Store) DeleteSnapshot(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, "DELETE FROM snapshots WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete snapshot %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrSnapshotNotFound, id)
	}
	return nil
}
