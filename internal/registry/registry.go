// Package registry is the dotted-name function lookup table a runner
// populates at startup so published tasks can be resolved to a concrete Go
// callable without reflection or dynamic import.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/basket/taskqueue/internal/task"
)

// ErrFunctionNotFound is returned by Resolve when name has no registration.
var ErrFunctionNotFound = errors.New("registry: function not found")

// ErrAlreadyRegistered is returned by Register when name is already taken.
var ErrAlreadyRegistered = errors.New("registry: function already registered")

// Func is the signature every registered task function must implement. It
// receives the task's decoded data and returns an opaque result string,
// which the engine logs and audits but never relays back to the publisher.
type Func func(ctx context.Context, data task.Data) (string, error)

// Registry is a process-local, concurrency-safe dotted-name lookup table.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register records fn under its fully-qualified dotted name. It returns
// ErrAlreadyRegistered if name is already bound, so accidental re-use of a
// name across packages fails loudly at startup rather than silently
// shadowing.
func (r *Registry) Register(name string, fn Func) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.funcs[name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}
	r.funcs[name] = fn
	return nil
}

// MustRegister is Register, panicking on error. Intended for package-level
// init blocks where a naming collision is a programming error.
func (r *Registry) MustRegister(name string, fn Func) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

// Resolve looks up the callable bound to name.
func (r *Registry) Resolve(name string) (Func, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
	}
	return fn, nil
}

// Names returns every registered dotted name, for diagnostics.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		out = append(out, name)
	}
	return out
}
