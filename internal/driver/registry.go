package driver

import (
	"fmt"
	"sort"
	"sync"
)

// Factory decodes a raw config mapping into the module's typed config
// and constructs the driver. Decoding must reject unknown keys.
type Factory func(raw RawConfig) (Driver, error)

// Registry maps driver_module names to their factories. Registration
// happens at init time; reads afterwards are lock-free in practice but
// guarded anyway.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under the given module name. Duplicate names
// are rejected.
func (r *Registry) Register(module string, factory Factory) error {
	if module == "" {
		return fmt.Errorf("%w: empty module name", ErrInvalidConfig)
	}
	if factory == nil {
		return fmt.Errorf("%w: nil factory for module %q", ErrInvalidConfig, module)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[module]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateModule, module)
	}
	r.factories[module] = factory
	return nil
}

// Build resolves the raw config's driver_module and constructs the
// driver through its factory.
func (r *Registry) Build(raw RawConfig) (Driver, error) {
	module := raw.Module()
	if module == "" {
		return nil, fmt.Errorf("%w: missing driver_module", ErrInvalidConfig)
	}

	r.mu.RLock()
	factory, ok := r.factories[module]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModule, module)
	}
	return factory(raw)
}

// Modules returns the registered module names in sorted order.
func (r *Registry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	modules := make([]string, 0, len(r.factories))
	for module := range r.factories {
		modules = append(modules, module)
	}
	sort.Strings(modules)
	return modules
}

// defaultRegistry collects the builtin drivers via their init
// functions. It is mutated at import time only.
var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry }

// MustRegister registers a factory in the default registry and panics
// on duplicates. It is intended for init functions of driver modules.
func MustRegister(module string, factory Factory) {
	if err := defaultRegistry.Register(module, factory); err != nil {
		panic(err)
	}
}
