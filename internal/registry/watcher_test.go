package registry_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goatkit/funcflow/internal/registry"
)

// waitForEpoch polls until the store publishes at least epoch want.
func waitForEpoch(t *testing.T, store *registry.Store, want uint64, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if store.Current().Epoch() >= want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("epoch %d not reached within %s (at %d)", want, timeout, store.Current().Epoch())
}

func TestWatcherCoalescesBurst(t *testing.T) {
	root := t.TempDir()
	b, store := newBuilder(t, root)
	_, err := b.Rebuild(context.Background(), "startup")
	require.NoError(t, err)
	require.Equal(t, uint64(1), store.Current().Epoch())

	w, err := registry.NewWatcher(b, 300*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	// A burst of writes to the same file within the debounce window
	// must produce exactly one rebuild.
	path := filepath.Join(root, "add.js")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte(`function run(a, b) { return a + b; }`), 0o644))
		time.Sleep(30 * time.Millisecond)
	}

	waitForEpoch(t, store, 2, 5*time.Second)

	// Allow a full extra window to catch any spurious second rebuild.
	time.Sleep(700 * time.Millisecond)
	assert.Equal(t, uint64(2), store.Current().Epoch())

	_, ok := store.Current().Lookup("add")
	assert.True(t, ok)
}

func TestWatcherSeesNewSubdirectory(t *testing.T) {
	root := t.TempDir()
	b, store := newBuilder(t, root)
	_, err := b.Rebuild(context.Background(), "startup")
	require.NoError(t, err)

	w, err := registry.NewWatcher(b, 200*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	dir := filepath.Join(root, "math")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "add.js"),
		[]byte(`function run(a, b) { return a + b; }`), 0o644))

	waitForEpoch(t, store, 2, 5*time.Second)
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := store.Current().Lookup("math/add"); ok {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	_, ok := store.Current().Lookup("math/add")
	assert.True(t, ok)
}

func TestWatcherIgnoresUnderscoreFiles(t *testing.T) {
	root := t.TempDir()
	b, store := newBuilder(t, root)
	_, err := b.Rebuild(context.Background(), "startup")
	require.NoError(t, err)

	w, err := registry.NewWatcher(b, 150*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(root, "_scratch.js"),
		[]byte(`function run() {}`), 0o644))

	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, uint64(1), store.Current().Epoch(), "ignored files must not trigger rebuilds")
}

func TestWatcherFatalOnRootRemoval(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "plugins")
	require.NoError(t, os.MkdirAll(root, 0o755))

	b, _ := newBuilder(t, root)
	_, err := b.Rebuild(context.Background(), "startup")
	require.NoError(t, err)

	w, err := registry.NewWatcher(b, 100*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.NoError(t, os.RemoveAll(root))

	select {
	case err := <-w.Fatal():
		assert.Contains(t, err.Error(), "plugin root removed")
	case <-time.After(5 * time.Second):
		t.Fatal("expected fatal error after root removal")
	}

	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("watch loop did not exit after fatal")
	}
}

func TestWatcherStopsOnContextCancel(t *testing.T) {
	root := t.TempDir()
	b, _ := newBuilder(t, root)

	w, err := registry.NewWatcher(b, 100*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	cancel()

	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("watch loop did not exit on cancel")
	}
}
