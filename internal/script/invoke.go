package script

import (
	"context"
	"fmt"

	"github.com/dop251/goja"

	"github.com/goatkit/funcflow/internal/registry"
)

// function is the registry.Invoker behind one loaded plugin function.
// It holds the compiled program, never a live VM: every invocation
// evaluates the program in a fresh runtime, which keeps concurrent
// calls fully independent of each other.
type function struct {
	prog   *goja.Program
	path   string
	symbol string
	params []registry.Parameter
}

// Invoke runs the function with the given keyword arguments. Missing
// arguments are passed as undefined so JavaScript default values apply.
// Cancelling ctx interrupts the VM.
func (f *function) Invoke(ctx context.Context, args map[string]any) (any, error) {
	vm := goja.New()

	if ctx.Done() != nil {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-ctx.Done():
				vm.Interrupt(ctx.Err())
			case <-stop:
			}
		}()
	}

	if _, err := vm.RunProgram(f.prog); err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", f.path, err)
	}

	fn, ok := goja.AssertFunction(vm.Get(f.symbol))
	if !ok {
		return nil, fmt.Errorf("%s does not define callable %q", f.path, f.symbol)
	}

	// Arguments are bound positionally against the declared parameter
	// list; trailing omitted parameters are not passed at all.
	last := -1
	for i, p := range f.params {
		if _, provided := args[p.Name]; provided {
			last = i
		}
	}
	callArgs := make([]goja.Value, 0, last+1)
	for i := 0; i <= last; i++ {
		if v, provided := args[f.params[i].Name]; provided {
			callArgs = append(callArgs, vm.ToValue(v))
		} else {
			callArgs = append(callArgs, goja.Undefined())
		}
	}

	res, err := fn(goja.Undefined(), callArgs...)
	if err != nil {
		return nil, err
	}
	if res == nil || goja.IsUndefined(res) || goja.IsNull(res) {
		return nil, nil
	}
	return res.Export(), nil
}
