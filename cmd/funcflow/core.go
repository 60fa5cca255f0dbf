package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/goatkit/funcflow/internal/config"
	"github.com/goatkit/funcflow/internal/detect"
	"github.com/goatkit/funcflow/internal/execlog"
	"github.com/goatkit/funcflow/internal/gateway"
	"github.com/goatkit/funcflow/internal/pipeline"
	"github.com/goatkit/funcflow/internal/registry"
	"github.com/goatkit/funcflow/internal/script"
)

// core bundles the wired components shared by the CLI commands.
type core struct {
	cfg      *config.Config
	store    *registry.Store
	builder  *registry.Builder
	gateway  *gateway.Gateway
	engine   *detect.Engine
	pipeline *pipeline.Pipeline
	execs    *execlog.Store
}

// newCore wires the registry, gateway and detection engine and runs the
// initial directory scan. withLog controls whether the sqlite execution
// log is opened; read-only commands skip it.
func newCore(ctx context.Context, cfg *config.Config, withLog bool) (*core, error) {
	logger := slog.Default()

	store := registry.NewStore()
	loader := script.NewLoader(logger)
	builder := registry.NewBuilder(cfg.Plugins.Dir, loader, store, logger)
	if _, err := builder.Rebuild(ctx, "startup"); err != nil {
		return nil, fmt.Errorf("initial registry build: %w", err)
	}

	var execs *execlog.Store
	if withLog {
		var err error
		execs, err = execlog.Open(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
	}

	var recorder gateway.Recorder
	if execs != nil {
		recorder = execs
	}
	gw := gateway.New(store, recorder, logger, cfg.Execution.Timeout)
	engine := detect.NewEngine(store, cfg.Detect.Threshold, detect.Policy(cfg.Detect.Policy))
	pl := pipeline.New(gw, engine, logger)

	return &core{
		cfg:      cfg,
		store:    store,
		builder:  builder,
		gateway:  gw,
		engine:   engine,
		pipeline: pl,
		execs:    execs,
	}, nil
}

func (c *core) close() {
	if c.execs != nil {
		c.execs.Close()
	}
}
