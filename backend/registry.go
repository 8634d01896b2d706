package backend

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gogpu/passrec/gpucore"
)

// Well-known backend names.
const (
	// BackendNative is the gogpu/wgpu HAL backend registered by
	// backend/native.
	BackendNative = "native"
)

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	backends   = make(map[string]Factory)
	// Priority order for Default (first registered wins).
	backendPriority = []string{BackendNative}
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// Register panics if factory is nil or name is already registered.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if factory == nil {
		panic("backend: Register factory is nil")
	}
	if _, dup := backends[name]; dup {
		panic("backend: Register called twice for " + name)
	}
	backends[name] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Available returns the sorted names of registered backends.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}

// Open opens the named backend.
func Open(name string) (gpucore.Backend, error) {
	registryMu.RLock()
	factory, ok := backends[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, name)
	}
	return factory()
}

// Default opens the highest-priority registered backend, falling back to any
// registered backend in name order.
func Default() (gpucore.Backend, error) {
	for _, name := range backendPriority {
		if IsRegistered(name) {
			return Open(name)
		}
	}
	if names := Available(); len(names) > 0 {
		return Open(names[0])
	}
	return nil, ErrBackendNotAvailable
}
