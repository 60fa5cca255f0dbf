package registry

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Loader turns one plugin file into descriptors. name is the module name
// derived from the file's path relative to the plugin root ("math/add").
//
// A Loader must isolate each file: two files declaring the same symbol
// never interfere, and a failure loading one file is reported as an error
// without affecting any other file.
type Loader interface {
	Load(path, name string) ([]*Descriptor, error)
}

// Builder scans the plugin root and publishes Registry snapshots.
//
// Rebuilds are serialized: at most one scan runs at a time. A file that
// fails to load contributes zero descriptors to the new snapshot, even
// if a previous successful load of the same file produced some — the
// full rebuild is authoritative per file.
type Builder struct {
	root   string
	loader Loader
	logger *slog.Logger
	store  *Store

	mu    sync.Mutex
	epoch uint64
}

// NewBuilder creates a builder rooted at dir that publishes into store.
func NewBuilder(dir string, loader Loader, store *Store, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		root:   dir,
		loader: loader,
		logger: logger,
		store:  store,
	}
}

// Store returns the snapshot store this builder publishes into.
func (b *Builder) Store() *Store { return b.store }

// Root returns the plugin root directory.
func (b *Builder) Root() string { return b.root }

// Rebuild walks the plugin root, loads every eligible file and publishes
// a new snapshot. trigger is a label for logs and metrics ("startup",
// "watch", "forced", "reconcile").
func (b *Builder) Rebuild(ctx context.Context, trigger string) (*Registry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()
	m := globalMetrics()
	m.rebuilds.WithLabelValues(trigger).Inc()

	if _, err := os.Stat(b.root); os.IsNotExist(err) {
		b.logger.Info("plugin directory does not exist, creating", "path", b.root)
		if err := os.MkdirAll(b.root, 0o755); err != nil {
			return nil, fmt.Errorf("create plugin dir: %w", err)
		}
	}

	funcs := map[string]*Descriptor{}
	failed := 0

	err := filepath.WalkDir(b.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		base := d.Name()
		if d.IsDir() {
			if path != b.root && (strings.HasPrefix(base, "_") || strings.HasPrefix(base, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(base, "_") || strings.HasPrefix(base, ".") {
			return nil
		}
		if !strings.EqualFold(filepath.Ext(base), ".js") {
			return nil
		}

		name := b.moduleName(path)
		descs, err := b.loader.Load(path, name)
		if err != nil {
			// Failure is isolated to this file; the rebuild goes on.
			failed++
			m.loadErrors.Inc()
			b.logger.Error("plugin load failed", "path", path, "error", err)
			return nil
		}
		for _, desc := range descs {
			if prev, dup := funcs[desc.Name]; dup {
				b.logger.Warn("duplicate function name, keeping first",
					"name", desc.Name, "kept", prev.SourcePath, "ignored", desc.SourcePath)
				continue
			}
			funcs[desc.Name] = desc
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk plugin dir: %w", err)
	}

	b.epoch++
	reg := NewRegistry(b.epoch, funcs)
	b.store.publish(reg)

	m.functions.Set(float64(reg.Len()))
	m.currentEpoch.Set(float64(reg.Epoch()))
	m.buildTimes.Observe(time.Since(start).Seconds())

	b.logger.Info("registry rebuilt",
		"epoch", reg.Epoch(),
		"functions", reg.Len(),
		"failed_files", failed,
		"trigger", trigger,
		"took", time.Since(start).Round(time.Millisecond).String(),
	)
	return reg, nil
}

// moduleName maps a file path under the root to its function name prefix:
// <root>/math/add.js -> "math/add".
func (b *Builder) moduleName(path string) string {
	rel, err := filepath.Rel(b.root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return filepath.ToSlash(rel)
}
