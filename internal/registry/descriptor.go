// Package registry maintains the catalog of dynamically loaded functions.
//
// The central type is Registry, an immutable snapshot mapping function
// names to Descriptors. A Builder produces a fresh snapshot from a full
// scan of the plugin directory and publishes it through a Store with a
// single atomic swap, so readers never observe a partially built catalog.
package registry

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Parameter describes one declared parameter of a loadable function.
type Parameter struct {
	Name       string `json:"name"`
	HasDefault bool   `json:"has_default"`
	Default    any    `json:"default,omitempty"`
}

// Invoker executes the callable behind a Descriptor.
//
// Implementations must be safe for concurrent use; the gateway calls
// Invoke from arbitrarily many goroutines at once. Cancelling ctx aborts
// a running invocation when the underlying runtime supports interruption.
type Invoker interface {
	Invoke(ctx context.Context, args map[string]any) (any, error)
}

// Descriptor is the metadata record for one invocable function.
//
// Names are path-like: "category/stem" for a file's default entry point
// (its run function) and "category/stem/symbol" for secondary callables
// in the same file. Descriptors are created whole by the loader and never
// mutated afterwards.
type Descriptor struct {
	Name       string      `json:"name"`
	Params     []Parameter `json:"params"`
	Summary    string      `json:"summary"`
	Hints      []string    `json:"hints,omitempty"`
	SourcePath string      `json:"source_path"`
	LoadedAt   time.Time   `json:"loaded_at"`

	// Invoker is exclusively owned by the descriptor and must only be
	// called through the execution gateway.
	Invoker Invoker `json:"-"`
}

// Signature renders the parameter list in call form, e.g. "(a, b, sep="," )".
// Attached to argument errors so callers can correct their invocation.
func (d *Descriptor) Signature() string {
	parts := make([]string, 0, len(d.Params))
	for _, p := range d.Params {
		if p.HasDefault {
			parts = append(parts, fmt.Sprintf("%s=%v", p.Name, p.Default))
		} else {
			parts = append(parts, p.Name)
		}
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// ParamNames returns the declared parameter names in order.
func (d *Descriptor) ParamNames() []string {
	names := make([]string, len(d.Params))
	for i, p := range d.Params {
		names[i] = p.Name
	}
	return names
}
