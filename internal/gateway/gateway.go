// Package gateway is the single entry point for executing a registered
// function: name resolution against the current registry snapshot,
// argument binding and coercion, invocation, error wrapping, and the
// execution record written on every outcome.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goatkit/funcflow/internal/coerce"
	"github.com/goatkit/funcflow/internal/execlog"
	"github.com/goatkit/funcflow/internal/registry"
)

// Recorder receives one execution record per call, success or failure.
// *execlog.Store satisfies it.
type Recorder interface {
	Append(ctx context.Context, rec *execlog.Record) error
}

// Arg is one raw argument. An empty Name means positional; positional
// arguments bind to the function's parameters in declaration order.
type Arg struct {
	Name  string
	Value string
}

// Request describes one execution.
type Request struct {
	Name       string
	Args       []Arg
	Origin     execlog.Origin
	Confidence *int
}

// Gateway executes functions against the current registry snapshot. It
// is synchronous and safe for concurrent use: it only reads one
// snapshot per call and each invocation runs in its own VM.
type Gateway struct {
	store    *registry.Store
	recorder Recorder
	logger   *slog.Logger
	timeout  time.Duration
}

// New creates a gateway. timeout bounds each plugin invocation; zero
// disables the bound.
func New(store *registry.Store, recorder Recorder, logger *slog.Logger, timeout time.Duration) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		store:    store,
		recorder: recorder,
		logger:   logger,
		timeout:  timeout,
	}
}

// Do resolves, binds, and invokes one function. Every outcome —
// including resolution and argument failures — is appended to the
// execution log before Do returns.
func (g *Gateway) Do(ctx context.Context, req Request) (any, error) {
	start := time.Now()
	reg := g.store.Current()

	desc, ok := reg.Lookup(req.Name)
	if !ok {
		err := &registry.ResolutionError{Name: req.Name}
		g.record(ctx, req, nil, nil, err)
		return nil, err
	}

	bound, err := g.bind(desc, req.Args)
	if err != nil {
		g.record(ctx, req, nil, nil, err)
		return nil, err
	}

	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	result, invokeErr := desc.Invoker.Invoke(callCtx, bound)
	if invokeErr != nil {
		// Whatever the plugin threw stays contained; only the message
		// travels up.
		execErr := &registry.ExecutionError{Name: req.Name, Message: invokeErr.Error()}
		g.record(ctx, req, bound, nil, execErr)
		globalMetrics().observe(req.Origin, execlog.StatusError, time.Since(start))
		g.logger.Warn("function execution failed",
			"function", req.Name, "origin", string(req.Origin), "error", invokeErr)
		return nil, execErr
	}

	g.record(ctx, req, bound, result, nil)
	globalMetrics().observe(req.Origin, execlog.StatusSuccess, time.Since(start))
	g.logger.Info("function executed",
		"function", req.Name,
		"origin", string(req.Origin),
		"took", time.Since(start).Round(time.Microsecond).String(),
	)
	return result, nil
}

// bind matches raw arguments against the declared parameter list and
// coerces each value. Parameters with defaults may be omitted.
func (g *Gateway) bind(desc *registry.Descriptor, args []Arg) (map[string]any, error) {
	bound := map[string]any{}
	positional := 0

	argErr := func(format string, a ...any) error {
		return &registry.ArgumentError{
			Name:      desc.Name,
			Signature: desc.Signature(),
			Reason:    fmt.Sprintf(format, a...),
		}
	}

	for _, arg := range args {
		name := arg.Name
		if name == "" {
			// Positional: next parameter not yet bound by position.
			if positional >= len(desc.Params) {
				return nil, argErr("too many positional arguments")
			}
			name = desc.Params[positional].Name
			positional++
		} else if !hasParam(desc, name) {
			return nil, argErr("unknown argument %q", arg.Name)
		}
		if _, dup := bound[name]; dup {
			return nil, argErr("argument %q given more than once", name)
		}
		bound[name] = coerce.Value(arg.Value)
	}

	for _, p := range desc.Params {
		if _, ok := bound[p.Name]; !ok && !p.HasDefault {
			return nil, argErr("missing required argument %q", p.Name)
		}
	}
	return bound, nil
}

func hasParam(desc *registry.Descriptor, name string) bool {
	for _, p := range desc.Params {
		if p.Name == name {
			return true
		}
	}
	return false
}

func (g *Gateway) record(ctx context.Context, req Request, bound map[string]any, result any, execErr error) {
	if g.recorder == nil {
		return
	}
	rec := &execlog.Record{
		Function:   req.Name,
		Arguments:  bound,
		Result:     result,
		Status:     execlog.StatusSuccess,
		Origin:     req.Origin,
		Confidence: req.Confidence,
	}
	if execErr != nil {
		rec.Status = execlog.StatusError
		rec.Error = execErr.Error()
	}
	if err := g.recorder.Append(ctx, rec); err != nil {
		g.logger.Error("append execution record failed", "function", req.Name, "error", err)
	}
}
