package script

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goatkit/funcflow/internal/registry"
)

func writePlugin(t *testing.T, name, source string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
	return path
}

func TestLoadExtractsDescriptors(t *testing.T) {
	path := writePlugin(t, "add.js", `
// Add two numbers.
// Triggers: sum, plus
function run(a, b) {
    return a + b;
}

// Scale a number.
function scale(x, factor = 2) {
    return x * factor;
}

function _private() {}
`)

	l := NewLoader(nil)
	descs, err := l.Load(path, "math/add")
	require.NoError(t, err)
	require.Len(t, descs, 2)

	byName := map[string]*registry.Descriptor{}
	for _, d := range descs {
		byName[d.Name] = d
	}

	run := byName["math/add"]
	require.NotNil(t, run, "run must register under the default name")
	assert.Equal(t, "Add two numbers.", run.Summary)
	assert.Equal(t, []string{"sum", "plus"}, run.Hints)
	assert.Equal(t, path, run.SourcePath)
	assert.WithinDuration(t, time.Now(), run.LoadedAt, 5*time.Second)
	require.Len(t, run.Params, 2)
	assert.Equal(t, registry.Parameter{Name: "a"}, run.Params[0])
	assert.Equal(t, registry.Parameter{Name: "b"}, run.Params[1])

	scale := byName["math/add/scale"]
	require.NotNil(t, scale, "secondary callables register under name/symbol")
	assert.Equal(t, "Scale a number.", scale.Summary)
	require.Len(t, scale.Params, 2)
	assert.Equal(t, "factor", scale.Params[1].Name)
	assert.True(t, scale.Params[1].HasDefault)
	assert.Equal(t, int64(2), scale.Params[1].Default)
}

func TestLoadStringDefault(t *testing.T) {
	path := writePlugin(t, "fmt.js", `
function run(values, separator = ", ") {
    return values.join(separator);
}
`)
	descs, err := NewLoader(nil).Load(path, "utils/fmt")
	require.NoError(t, err)
	require.Len(t, descs, 1)
	require.Len(t, descs[0].Params, 2)
	assert.Equal(t, ", ", descs[0].Params[1].Default)
}

func TestLoadSyntaxErrorIsLoadError(t *testing.T) {
	path := writePlugin(t, "broken.js", `function run(a, b) { return a + ; }`)
	_, err := NewLoader(nil).Load(path, "bad/broken")
	require.Error(t, err)
	var loadErr *registry.LoadError
	assert.True(t, errors.As(err, &loadErr))
	assert.Equal(t, path, loadErr.Path)
}

func TestLoadModuleLevelThrowIsLoadError(t *testing.T) {
	path := writePlugin(t, "angry.js", `
throw new Error("refuses to load");
function run() { return 1; }
`)
	_, err := NewLoader(nil).Load(path, "bad/angry")
	var loadErr *registry.LoadError
	require.True(t, errors.As(err, &loadErr))
}

func TestLoadNoPublicFunctions(t *testing.T) {
	path := writePlugin(t, "empty.js", `var state = 1;
function _internal() {}`)
	descs, err := NewLoader(nil).Load(path, "misc/empty")
	require.NoError(t, err)
	assert.Empty(t, descs)
}

func TestInvoke(t *testing.T) {
	path := writePlugin(t, "add.js", `function run(a, b) { return a + b; }`)
	descs, err := NewLoader(nil).Load(path, "math/add")
	require.NoError(t, err)
	require.Len(t, descs, 1)

	result, err := descs[0].Invoker.Invoke(context.Background(), map[string]any{
		"a": int64(5), "b": int64(3),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(8), result)
}

func TestInvokeAppliesDefaults(t *testing.T) {
	path := writePlugin(t, "scale.js", `function run(x, factor = 10) { return x * factor; }`)
	descs, err := NewLoader(nil).Load(path, "math/scale")
	require.NoError(t, err)

	result, err := descs[0].Invoker.Invoke(context.Background(), map[string]any{"x": int64(4)})
	require.NoError(t, err)
	assert.Equal(t, int64(40), result)
}

func TestInvokeThrowSurfacesAsError(t *testing.T) {
	path := writePlugin(t, "boom.js", `function run() { throw new Error("kaboom"); }`)
	descs, err := NewLoader(nil).Load(path, "bad/boom")
	require.NoError(t, err)

	_, err = descs[0].Invoker.Invoke(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestFilesAreIsolated(t *testing.T) {
	// Two files defining the same symbol and module-level state must
	// never interfere: each load and each invocation gets its own VM.
	pathA := writePlugin(t, "a.js", `
var counter = 100;
function run() { counter++; return counter; }
`)
	pathB := writePlugin(t, "b.js", `
var counter = 0;
function run() { counter++; return counter; }
`)

	l := NewLoader(nil)
	descsA, err := l.Load(pathA, "iso/a")
	require.NoError(t, err)
	descsB, err := l.Load(pathB, "iso/b")
	require.NoError(t, err)

	ctx := context.Background()
	resA, err := descsA[0].Invoker.Invoke(ctx, nil)
	require.NoError(t, err)
	resB, err := descsB[0].Invoker.Invoke(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(101), resA)
	assert.Equal(t, int64(1), resB)

	// Module state resets between invocations as well.
	resA2, err := descsA[0].Invoker.Invoke(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(101), resA2)
}

func TestInvokeCancellation(t *testing.T) {
	path := writePlugin(t, "loop.js", `function run() { while (true) {} }`)
	descs, err := NewLoader(nil).Load(path, "bad/loop")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = descs[0].Invoker.Invoke(ctx, nil)
	require.Error(t, err)
}
