package registry

import "fmt"

// LoadError marks a plugin file that failed to compile or evaluate.
// It is isolated to that file: the rest of the rebuild proceeds and the
// broken file simply contributes no descriptors.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ResolutionError reports a function name that is not present in the
// current registry snapshot.
type ResolutionError struct {
	Name string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("function %q not found", e.Name)
}

// ArgumentError reports an invocation whose arguments do not match the
// function's declared parameter list. Signature carries the expected
// call form.
type ArgumentError struct {
	Name      string
	Signature string
	Reason    string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for %s%s: %s", e.Name, e.Signature, e.Reason)
}

// ExecutionError wraps an exception thrown inside a plugin body. The
// host process is never affected; the message is surfaced to the caller.
type ExecutionError struct {
	Name    string
	Message string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution of %s failed: %s", e.Name, e.Message)
}
