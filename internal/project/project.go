// Package project ties a workspace together: configuration, the persisted
// datamap, production discovery and the passes run over them.
//
// A Project is the single writer of its graph. Every operation takes the
// project lock, so the CLI and the watcher may share one Project.
package project

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"datamap/internal/config"
	"datamap/internal/datamap"
	"datamap/internal/logging"
	"datamap/internal/metrics"
	"datamap/internal/store"
)

// ErrNoRoot is returned when a stored datamap has no root identifier.
var ErrNoRoot = errors.New("project: datamap has no root")

// Project is an opened workspace.
type Project struct {
	Workspace string
	Config    *config.Config

	mu         sync.Mutex
	store      *store.Store
	graph      *datamap.Graph
	root       datamap.VertexID
	dispatcher datamap.Dispatcher
}

// Init writes a default configuration if the workspace has none, then opens
// the workspace and saves its (possibly fresh) datamap.
func Init(ctx context.Context, workspace string) (*Project, error) {
	path := config.Path(workspace)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := config.DefaultConfig().Save(path); err != nil {
			return nil, err
		}
		logging.Boot("Wrote default config to %s", path)
	}
	p, err := Open(ctx, workspace)
	if err != nil {
		return nil, err
	}
	if err := p.Save(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// Open loads the workspace configuration, opens the store and loads the
// datamap. A workspace with no saved datamap starts with a lone root
// identifier.
func Open(ctx context.Context, workspace string) (*Project, error) {
	timer := logging.StartTimer(logging.CategoryProject, "Open")
	defer timer.Stop()

	cfg, err := config.Load(config.Path(workspace))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := logging.Initialize(workspace); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	st, err := store.Open(cfg.DatabasePath(workspace), cfg.Datamap.Driver)
	if err != nil {
		return nil, err
	}

	p := &Project{Workspace: workspace, Config: cfg, store: st}
	g, err := st.LoadGraph(ctx)
	switch {
	case errors.Is(err, store.ErrNoDatamap):
		g, root := datamap.NewWithRoot()
		p.graph, p.root = g, root
		logging.Project("No saved datamap in %s, starting from an empty root", workspace)
	case err != nil:
		st.Close()
		return nil, err
	default:
		if err := p.adopt(g); err != nil {
			st.Close()
			return nil, err
		}
	}
	p.observeSize()
	logging.Project("Opened workspace %s: %d vertices, %d edges", workspace, p.graph.VertexCount(), p.graph.EdgeCount())
	return p, nil
}

// adopt makes g the project graph. g must have a root.
func (p *Project) adopt(g *datamap.Graph) error {
	root, ok := g.Root()
	if !ok {
		return ErrNoRoot
	}
	p.graph, p.root = g, root
	return nil
}

// Close releases the store. Unsaved changes are lost.
func (p *Project) Close() error {
	return p.store.Close()
}

// Graph returns the project graph. Callers must not mutate it while other
// goroutines run project operations.
func (p *Project) Graph() *datamap.Graph {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.graph
}

// Root returns the top-state identifier.
func (p *Project) Root() datamap.VertexID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.root
}

// Register adds a listener for graph changesets published by project
// operations. Listeners run with the project locked and must not call back
// into the Project.
func (p *Project) Register(l datamap.Listener) (unregister func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	remove := p.dispatcher.Register(l)
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		remove()
	}
}

// publish delivers cs to listeners. Called with p.mu held.
func (p *Project) publish(cs datamap.Changeset) {
	p.dispatcher.Publish(cs)
	if !cs.Empty() {
		p.observeSize()
	}
}

func (p *Project) observeSize() {
	metrics.SetGraphSize(p.graph.VertexCount(), p.graph.EdgeCount(), len(datamap.GeneratedEdges(p.graph, p.root)))
}

// replace swaps in a whole new graph and tells listeners about its contents.
func (p *Project) replace(g *datamap.Graph) error {
	if err := p.adopt(g); err != nil {
		return err
	}
	cs := make(datamap.Changeset, 0, g.VertexCount()+g.EdgeCount())
	for _, v := range g.Vertices() {
		cs = append(cs, datamap.Event{Kind: datamap.VertexAdded, Vertex: v.ID})
	}
	for _, e := range g.Edges() {
		cs = append(cs, datamap.Event{Kind: datamap.EdgeAdded, Edge: e.Key()})
	}
	p.publish(cs)
	return nil
}

// Save writes the datamap to the store.
func (p *Project) Save(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.SaveGraph(ctx, p.graph)
}
