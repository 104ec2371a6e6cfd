package watch

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recorder collects the changed lists of every run.
type recorder struct {
	mu   sync.Mutex
	runs [][]string
	hold chan struct{} // when non-nil, the second run blocks until closed
}

func (r *recorder) fn(ctx context.Context, changed []string) {
	r.mu.Lock()
	r.runs = append(r.runs, changed)
	n := len(r.runs)
	hold := r.hold
	r.mu.Unlock()

	if n == 2 && hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
		}
	}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

func (r *recorder) run(i int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[i]
}

// start runs a Watcher on dir in the background and stops it on cleanup.
func start(t *testing.T, dir string, rec *recorder, ignore ...string) *Watcher {
	t.Helper()
	w, err := New(dir, Options{Debounce: 50 * time.Millisecond, Ignore: ignore})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, rec.fn) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond, "initial run")
	return w
}

func write(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(time.Now().String()), 0o644))
}

func TestRun_InitialRunHasNoChanges(t *testing.T) {
	rec := &recorder{}
	start(t, t.TempDir(), rec)
	assert.Empty(t, rec.run(0))
}

func TestRun_ChangeTriggersRun(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	start(t, dir, rec)

	write(t, filepath.Join(dir, "lib.rs"))
	require.Eventually(t, func() bool { return rec.count() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, rec.run(1), filepath.Join(dir, "lib.rs"))
}

func TestRun_BurstIsDebounced(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	start(t, dir, rec)

	for _, name := range []string{"a", "b", "c"} {
		write(t, filepath.Join(dir, name))
	}
	require.Eventually(t, func() bool { return rec.count() == 2 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 2, rec.count(), "one run for the whole burst")
	assert.Len(t, rec.run(1), 3)
}

func TestRun_IgnoredAndHiddenDirs(t *testing.T) {
	dir := t.TempDir()
	for _, d := range []string{"target", ".git", "src"} {
		require.NoError(t, os.Mkdir(filepath.Join(dir, d), 0o755))
	}
	rec := &recorder{}
	w := start(t, dir, rec, "target")

	watched := w.WatchedDirs()
	assert.Contains(t, watched, filepath.Join(dir, "src"))
	assert.NotContains(t, watched, filepath.Join(dir, "target"))
	assert.NotContains(t, watched, filepath.Join(dir, ".git"))

	write(t, filepath.Join(dir, "target", "out"))
	write(t, filepath.Join(dir, ".git", "index"))
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, 1, rec.count(), "ignored paths never trigger")

	write(t, filepath.Join(dir, "src", "main.rs"))
	require.Eventually(t, func() bool { return rec.count() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestRun_NewDirectoryIsWatched(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := start(t, dir, rec)

	sub := filepath.Join(dir, "crates")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.Eventually(t, func() bool { return slices.Contains(w.WatchedDirs(), sub) }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return rec.count() == 2 }, 2*time.Second, 10*time.Millisecond)

	write(t, filepath.Join(sub, "mod.rs"))
	require.Eventually(t, func() bool { return rec.count() == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, rec.run(2), filepath.Join(sub, "mod.rs"))
}

func TestRun_ChangesDuringRunCoalesce(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{hold: make(chan struct{})}
	start(t, dir, rec)

	write(t, filepath.Join(dir, "first"))
	require.Eventually(t, func() bool { return rec.count() == 2 }, 2*time.Second, 10*time.Millisecond)

	// The second run is blocked; these settle separately while it runs.
	write(t, filepath.Join(dir, "second"))
	time.Sleep(250 * time.Millisecond)
	write(t, filepath.Join(dir, "third"))
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, 2, rec.count(), "runs never overlap")

	close(rec.hold)
	require.Eventually(t, func() bool { return rec.count() == 3 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 3, rec.count(), "exactly one re-run")
	assert.Equal(t, []string{filepath.Join(dir, "second"), filepath.Join(dir, "third")}, rec.run(2))
}

func TestSkip(t *testing.T) {
	w, err := New("/repo", Options{Ignore: []string{"target", "node_modules"}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.fsw.Close() })

	tests := map[string]bool{
		"/repo":                     false,
		"/repo/src/lib.rs":          false,
		"/repo/target":              true,
		"/repo/target/debug/x":      true,
		"/repo/.git/HEAD":           true,
		"/repo/src/.cache/x":        true,
		"/repo/web/node_modules/y":  true,
		"/repo/targets/not-ignored": false,
	}
	for path, want := range tests {
		assert.Equal(t, want, w.skip(path), path)
	}
}
