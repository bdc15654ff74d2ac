package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"datamap/internal/match"
)

// recorder collects check calls and results.
type recorder struct {
	mu      sync.Mutex
	checked []string
	results []Result
}

func (r *recorder) check(_ context.Context, rel string) ([]match.Diagnostic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checked = append(r.checked, rel)
	if rel == "broken.mg" {
		return nil, errors.New("boom")
	}
	return []match.Diagnostic{{Kind: match.BadConstraint, File: rel}}, nil
}

func (r *recorder) onResult(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *recorder) snapshot() ([]string, []Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.checked...), append([]Result(nil), r.results...)
}

func TestDefaultFilter(t *testing.T) {
	assert.True(t, DefaultFilter("a.mg"))
	assert.True(t, DefaultFilter("rules/b.prod.YAML"))
	assert.False(t, DefaultFilter("notes.txt"))
}

func TestWatcher_ChecksSettledWrites(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "rules"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".datamap"), 0755))

	rec := &recorder{}
	w, err := New(root, rec.check, Options{Debounce: 50 * time.Millisecond, OnResult: rec.onResult})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	assert.True(t, w.IsWatching())
	assert.Len(t, w.WatchedDirs(), 2, "hidden directories are skipped")

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, "rules", "a.mg"), []byte("x"), 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".datamap", "b.mg"), []byte("x"), 0644))

	require.Eventually(t, func() bool {
		checked, _ := rec.snapshot()
		return len(checked) > 0
	}, 2*time.Second, 10*time.Millisecond)

	// Give any stray events time to surface before asserting.
	time.Sleep(100 * time.Millisecond)
	w.Stop()
	assert.False(t, w.IsWatching())

	checked, results := rec.snapshot()
	assert.Equal(t, []string{"rules/a.mg"}, checked, "rapid writes collapse into one check")
	require.Len(t, results, 1)
	assert.Len(t, results[0].Diagnostics, 1)

	stats := w.GetStats()
	assert.Equal(t, 1, stats.ChecksTriggered)
	assert.Equal(t, 1, stats.Diagnostics)
	assert.Equal(t, "rules/a.mg", stats.LastEventPath)
	assert.NotZero(t, stats.FilesCreated+stats.FilesModified)

	w.ResetStats()
	assert.Zero(t, w.GetStats().ChecksTriggered)
}

func TestWatcher_WatchesNewDirectories(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := t.TempDir()
	rec := &recorder{}
	w, err := New(root, rec.check, Options{Debounce: 10 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	sub := filepath.Join(root, "late")
	require.NoError(t, os.Mkdir(sub, 0755))
	require.Eventually(t, func() bool { return len(w.WatchedDirs()) == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(sub, "c.yaml"), []byte("x"), 0644))
	require.Eventually(t, func() bool {
		checked, _ := rec.snapshot()
		return len(checked) == 1 && checked[0] == "late/c.yaml"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_Trigger(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "broken.mg"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "ok.mg"), []byte("x"), 0644))

	rec := &recorder{}
	w, err := New(root, rec.check, Options{OnResult: rec.onResult})
	require.NoError(t, err)
	defer w.Stop()

	w.Trigger(context.Background(), "broken.mg", "ok.mg", "gone.mg")

	checked, results := rec.snapshot()
	assert.Equal(t, []string{"broken.mg", "ok.mg"}, checked)
	require.Len(t, results, 2)
	assert.EqualError(t, results[0].Err, "boom")
	assert.NoError(t, results[1].Err)

	stats := w.GetStats()
	assert.Equal(t, 2, stats.ChecksTriggered)
	assert.Equal(t, 1, stats.Errors)
}

func TestWatcher_StopsOnContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &recorder{}
	w, err := New(t.TempDir(), rec.check, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	cancel()
	w.Stop()
}
