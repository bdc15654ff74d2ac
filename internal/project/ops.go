package project

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"datamap/internal/datamap"
	"datamap/internal/logging"
	"datamap/internal/match"
	"datamap/internal/metrics"
	"datamap/internal/production"
	"datamap/internal/store"
)

// ErrBadPath is returned when an attribute path does not resolve.
var ErrBadPath = errors.New("project: attribute path does not resolve")

// Check matches the productions in files against the datamap without
// changing its structure. With no files every discovered production file is
// checked. Load errors are returned alongside the diagnostics of the files
// that did load.
func (p *Project) Check(ctx context.Context, files ...string) ([]match.Diagnostic, error) {
	prods, loadErr := p.load(ctx, files)
	if prods == nil && loadErr != nil {
		return nil, loadErr
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	start := time.Now()
	defer metrics.ObservePass("check", start)

	var diags []match.Diagnostic
	for _, prod := range prods {
		ds, err := match.CheckProduction(p.graph, p.root, prod)
		if err != nil {
			return diags, fmt.Errorf("check %s: %w", prod.Name, err)
		}
		diags = append(diags, ds...)
	}
	record(diags)
	logging.Project("Checked %d productions: %d diagnostics", len(prods), len(diags))
	return diags, loadErr
}

// Complete matches the productions in files and repairs the datamap so that
// they match, reporting what it generated. Changes are published to
// listeners but not saved.
func (p *Project) Complete(ctx context.Context, files ...string) ([]match.Diagnostic, error) {
	prods, loadErr := p.load(ctx, files)
	if prods == nil && loadErr != nil {
		return nil, loadErr
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	start := time.Now()
	defer metrics.ObservePass("complete", start)

	c := match.Completer{MaxRounds: p.Config.Complete.MaxRounds}
	var diags []match.Diagnostic
	var cs datamap.Changeset
	for _, prod := range prods {
		ds, changes, err := c.CompleteProduction(p.graph, p.root, prod)
		diags = append(diags, ds...)
		cs = append(cs, changes...)
		if err != nil {
			p.publish(cs)
			return diags, fmt.Errorf("complete %s: %w", prod.Name, err)
		}
	}
	p.publish(cs)
	record(diags)
	logging.Project("Completed %d productions: %d diagnostics, %d changes", len(prods), len(diags), len(cs))
	return diags, loadErr
}

func (p *Project) load(ctx context.Context, files []string) ([]production.Production, error) {
	files, err := p.filesOrDiscover(files)
	if err != nil {
		return nil, err
	}
	return p.LoadProductions(ctx, files)
}

func record(diags []match.Diagnostic) {
	for _, d := range diags {
		metrics.Diagnostic(d.Kind.String())
	}
}

// Classify reports attributes that are never tested or never created, using
// the configured exemptions.
func (p *Project) Classify() (datamap.Classification, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer metrics.ObservePass("classify", time.Now())
	return datamap.Classify(p.graph, p.root, p.Config.ClassifyOptions())
}

// GeneratedEdges lists the edges still awaiting validation.
func (p *Project) GeneratedEdges() []datamap.Edge {
	p.mu.Lock()
	defer p.mu.Unlock()
	return datamap.GeneratedEdges(p.graph, p.root)
}

// ValidateAll accepts every generated edge in the datamap.
func (p *Project) ValidateAll() (datamap.Changeset, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer metrics.ObservePass("validate", time.Now())
	cs, err := datamap.ValidateDataMap(p.graph, p.root)
	if err != nil {
		return nil, err
	}
	p.publish(cs)
	return cs, nil
}

// ValidatePath accepts the edge at a dotted attribute path, such as
// "io.input-link", and every generated edge below it.
func (p *Project) ValidatePath(path string) (datamap.Changeset, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer metrics.ObservePass("validate", time.Now())
	key, err := p.resolvePath(path)
	if err != nil {
		return nil, err
	}
	cs, err := datamap.ValidateAll(p.graph, key)
	if err != nil {
		return nil, err
	}
	p.publish(cs)
	return cs, nil
}

// ResolvePath returns the edge a dotted attribute path leads to.
func (p *Project) ResolvePath(path string) (datamap.EdgeKey, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resolvePath(path)
}

// resolvePath follows the first edge with each attribute from the root.
func (p *Project) resolvePath(path string) (datamap.EdgeKey, error) {
	if path == "" {
		return datamap.EdgeKey{}, fmt.Errorf("%w: empty path", ErrBadPath)
	}
	at := p.root
	var key datamap.EdgeKey
	for _, attr := range strings.Split(path, ".") {
		edges := p.graph.EmanatingAttr(at, attr)
		if len(edges) == 0 {
			return datamap.EdgeKey{}, fmt.Errorf("%w: %s (no ^%s)", ErrBadPath, path, attr)
		}
		key = edges[0].Key()
		at = key.To
	}
	return key, nil
}

// RemoveInvalid deletes every edge still flagged generated, then reduces the
// graph to collect orphaned vertices.
func (p *Project) RemoveInvalid() (datamap.Changeset, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer metrics.ObservePass("prune", time.Now())
	cs, err := datamap.RemoveInvalid(p.graph, p.root)
	if err != nil {
		return nil, err
	}
	reduced, err := datamap.Reduce(p.graph, p.liveRoots())
	cs = append(cs, reduced...)
	p.publish(cs)
	return cs, err
}

// Reduce discards vertices unreachable from the root and the configured
// extra roots.
func (p *Project) Reduce() (datamap.Changeset, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer metrics.ObservePass("reduce", time.Now())
	cs, err := datamap.Reduce(p.graph, p.liveRoots())
	p.publish(cs)
	return cs, err
}

func (p *Project) liveRoots() []datamap.VertexID {
	roots := []datamap.VertexID{p.root}
	for _, serial := range p.Config.Datamap.ExtraRoots {
		v, ok := p.graph.VertexBySerial(serial)
		if !ok {
			logging.ProjectWarn("Extra root %q not in datamap, skipping", serial)
			continue
		}
		roots = append(roots, v.ID)
	}
	return roots
}

// Export writes the datamap in the text format. comments may be nil.
func (p *Project) Export(w, comments io.Writer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer metrics.ObservePass("export", time.Now())
	return datamap.Encode(p.graph, w, comments)
}

// Import replaces the datamap with one read in the text format. The store is
// not touched until Save.
func (p *Project) Import(r, comments io.Reader) error {
	g, err := datamap.Decode(r, comments)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	defer metrics.ObservePass("import", time.Now())
	if err := p.replace(g); err != nil {
		return err
	}
	logging.Project("Imported datamap: %d vertices, %d edges", g.VertexCount(), g.EdgeCount())
	return nil
}

// Checkpoint stores a snapshot of the current datamap.
func (p *Project) Checkpoint(ctx context.Context, label string) (store.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.SaveSnapshot(ctx, label, p.graph)
}

// Snapshots lists stored checkpoints, newest first.
func (p *Project) Snapshots(ctx context.Context) ([]store.Snapshot, error) {
	return p.store.ListSnapshots(ctx)
}

// Restore replaces the datamap with a stored checkpoint. The restored graph
// is not saved until Save.
func (p *Project) Restore(ctx context.Context, id int64) error {
	g, err := p.store.LoadSnapshot(ctx, id)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.replace(g); err != nil {
		return err
	}
	logging.Project("Restored checkpoint %d", id)
	return nil
}

// ResetNotes clears the error-noted flags so Classify reports every edge
// again.
func (p *Project) ResetNotes() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.graph.ResetNotes()
}
