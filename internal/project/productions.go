package project

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"datamap/internal/config"
	"datamap/internal/logging"
	"datamap/internal/production"
)

// Discover returns every production file matching the configured patterns,
// as workspace-relative slash paths in sorted order. The .datamap directory
// is never searched.
func (p *Project) Discover() ([]string, error) {
	fsys := os.DirFS(p.Workspace)
	seen := make(map[string]bool)
	var out []string
	for _, pattern := range p.Config.Productions.Patterns {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if strings.HasPrefix(m, config.DirName+"/") || seen[m] {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}
	slices.Sort(out)
	logging.ProjectDebug("Discovered %d production files", len(out))
	return out, nil
}

// Matches reports whether a workspace-relative path is a production file
// under the configured patterns.
func (p *Project) Matches(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, pattern := range p.Config.Productions.Patterns {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// resolve turns a workspace-relative or absolute path into a file path.
func (p *Project) resolve(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(p.Workspace, filepath.FromSlash(file))
}

// LoadProductions parses files concurrently. Productions come back in file
// order. Files that fail to load are skipped and their errors combined, so
// one bad file never hides the others.
func (p *Project) LoadProductions(ctx context.Context, files []string) ([]production.Production, error) {
	timer := logging.StartTimer(logging.CategoryProject, "LoadProductions")
	defer timer.Stop()

	results := make([][]production.Production, len(files))
	errs := make([]error, len(files))

	g, gctx := errgroup.WithContext(ctx)
	if n := p.Config.Productions.Concurrency; n > 0 {
		g.SetLimit(n)
	}
	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ps, err := production.LoadFile(p.resolve(file))
			if err != nil {
				errs[i] = err
				return nil
			}
			for j := range ps {
				ps[j].File = file
			}
			results[i] = ps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []production.Production
	for _, ps := range results {
		out = append(out, ps...)
	}
	err := multierr.Combine(errs...)
	if err != nil {
		logging.ProjectWarn("%d of %d production files failed to load", len(multierr.Errors(err)), len(files))
	}
	return out, err
}

// filesOrDiscover returns files, or every discovered file when none are given.
func (p *Project) filesOrDiscover(files []string) ([]string, error) {
	if len(files) > 0 {
		return files, nil
	}
	return p.Discover()
}
