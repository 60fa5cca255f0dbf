package registry_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goatkit/funcflow/internal/registry"
	"github.com/goatkit/funcflow/internal/script"
)

func writeFile(t *testing.T, root, rel, source string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
	return path
}

func newBuilder(t *testing.T, root string) (*registry.Builder, *registry.Store) {
	t.Helper()
	store := registry.NewStore()
	return registry.NewBuilder(root, script.NewLoader(nil), store, nil), store
}

func TestRebuildLoadsTree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "math/add.js", `function run(a, b) { return a + b; }`)
	writeFile(t, root, "text/upper.js", `
function run(s) { return String(s).toUpperCase(); }
function lower(s) { return String(s).toLowerCase(); }
`)

	b, store := newBuilder(t, root)
	reg, err := b.Rebuild(context.Background(), "startup")
	require.NoError(t, err)

	assert.Equal(t, uint64(1), reg.Epoch())
	assert.Equal(t, []string{"math/add", "text/upper", "text/upper/lower"}, reg.Names())
	assert.Same(t, reg, store.Current())
}

func TestRebuildSkipsUnderscoreEntries(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "math/add.js", `function run(a, b) { return a + b; }`)
	writeFile(t, root, "math/_helper.js", `function run() { return "hidden"; }`)
	writeFile(t, root, "_drafts/wip.js", `function run() { return "hidden"; }`)
	writeFile(t, root, "math/notes.txt", `not a plugin`)

	b, _ := newBuilder(t, root)
	reg, err := b.Rebuild(context.Background(), "startup")
	require.NoError(t, err)
	assert.Equal(t, []string{"math/add"}, reg.Names())
}

func TestRebuildEpochIncrementsContentStable(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "math/add.js", `
// Add two numbers.
function run(a, b) { return a + b; }
`)

	b, _ := newBuilder(t, root)
	first, err := b.Rebuild(context.Background(), "forced")
	require.NoError(t, err)
	second, err := b.Rebuild(context.Background(), "forced")
	require.NoError(t, err)

	// An unchanged directory rebuilds to the same descriptor set while
	// the epoch still advances.
	assert.Equal(t, first.Epoch()+1, second.Epoch())
	assert.Equal(t, first.Names(), second.Names())
	d1, _ := first.Lookup("math/add")
	d2, _ := second.Lookup("math/add")
	assert.Equal(t, d1.Summary, d2.Summary)
	assert.Equal(t, d1.Params, d2.Params)
}

func TestBrokenFileIsIsolated(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "math/add.js", `function run(a, b) { return a + b; }`)
	broken := writeFile(t, root, "math/bad.js", `function run( { nope`)

	b, _ := newBuilder(t, root)
	reg, err := b.Rebuild(context.Background(), "startup")
	require.NoError(t, err)
	assert.Equal(t, []string{"math/add"}, reg.Names())

	// Fixing the file brings it back on the next rebuild.
	require.NoError(t, os.WriteFile(broken, []byte(`function run() { return 1; }`), 0o644))
	reg, err = b.Rebuild(context.Background(), "watch")
	require.NoError(t, err)
	assert.Equal(t, []string{"math/add", "math/bad"}, reg.Names())
}

func TestBreakingFileDropsItsDescriptors(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "math/add.js", `function run(a, b) { return a + b; }`)

	b, _ := newBuilder(t, root)
	reg, err := b.Rebuild(context.Background(), "startup")
	require.NoError(t, err)
	require.Equal(t, 1, reg.Len())

	// A full rebuild is authoritative per file: stale descriptors from
	// the previously working version are not kept.
	require.NoError(t, os.WriteFile(path, []byte(`syntax error here(`), 0o644))
	reg, err = b.Rebuild(context.Background(), "watch")
	require.NoError(t, err)
	assert.Equal(t, 0, reg.Len())
}

func TestDeletedFileDisappears(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "math/add.js", `function run(a, b) { return a + b; }`)

	b, store := newBuilder(t, root)
	_, err := b.Rebuild(context.Background(), "startup")
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	_, err = b.Rebuild(context.Background(), "watch")
	require.NoError(t, err)

	_, ok := store.Current().Lookup("math/add")
	assert.False(t, ok)
}

func TestReadersKeepTheirSnapshot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "math/add.js", `function run(a, b) { return a + b; }`)

	b, store := newBuilder(t, root)
	_, err := b.Rebuild(context.Background(), "startup")
	require.NoError(t, err)

	held := store.Current()
	heldEpoch := held.Epoch()
	heldNames := held.Names()

	writeFile(t, root, "math/sub.js", `function run(a, b) { return a - b; }`)
	_, err = b.Rebuild(context.Background(), "watch")
	require.NoError(t, err)

	// The snapshot picked up before the rebuild is untouched even
	// though a newer epoch is now published.
	assert.Equal(t, heldEpoch, held.Epoch())
	assert.Equal(t, heldNames, held.Names())
	assert.Greater(t, store.Current().Epoch(), heldEpoch)
}

func TestStoreStartsAtEpochZero(t *testing.T) {
	store := registry.NewStore()
	reg := store.Current()
	require.NotNil(t, reg)
	assert.Equal(t, uint64(0), reg.Epoch())
	assert.Equal(t, 0, reg.Len())
}

func TestRebuildCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "not-yet")
	b, _ := newBuilder(t, root)
	reg, err := b.Rebuild(context.Background(), "startup")
	require.NoError(t, err)
	assert.Equal(t, 0, reg.Len())
	_, statErr := os.Stat(root)
	assert.NoError(t, statErr)
}
