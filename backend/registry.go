// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"sort"
	"sync"
)

// Registered backend names.
const (
	NameWGPU     = "wgpu"
	NameSoftware = "software"
)

// Factory creates a new backend instance.
type Factory func() Backend

var (
	registryMu sync.RWMutex
	backends   = make(map[string]Factory)
	// Priority order for backend selection (first with an adapter wins).
	backendPriority = []string{NameWGPU, NameSoftware}
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it will be replaced.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Available returns the registered backend names, sorted.
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

// Get returns a backend instance by name.
// Returns nil if the backend is not registered.
func Get(name string) Backend {
	registryMu.RLock()
	factory, ok := backends[name]
	registryMu.RUnlock()
	if !ok {
		return nil
	}
	return factory()
}

// Default returns the first backend in priority order whose Probe succeeds
// with at least one adapter, then any other registered backend that does.
// Returns nil if none qualifies.
func Default() Backend {
	registryMu.RLock()
	ordered := make([]Factory, 0, len(backends))
	seen := make(map[string]bool, len(backendPriority))
	for _, name := range backendPriority {
		if f, ok := backends[name]; ok {
			ordered = append(ordered, f)
			seen[name] = true
		}
	}
	rest := make([]string, 0, len(backends))
	for name := range backends {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		ordered = append(ordered, backends[name])
	}
	registryMu.RUnlock()

	for _, f := range ordered {
		b := f()
		if b == nil {
			continue
		}
		if infos, err := b.Probe(); err == nil && len(infos) > 0 {
			return b
		}
	}
	return nil
}

// Lookup returns the named backend, or Default when name is empty.
func Lookup(name string) (Backend, error) {
	var b Backend
	if name == "" {
		b = Default()
	} else {
		b = Get(name)
	}
	if b == nil {
		if name == "" {
			return nil, ErrBackendNotAvailable
		}
		return nil, &NotRegisteredError{Name: name}
	}
	return b, nil
}

// NotRegisteredError reports a lookup of an unknown backend name.
type NotRegisteredError struct {
	Name string
}

func (e *NotRegisteredError) Error() string {
	return "backend: " + e.Name + " is not registered"
}

// Unwrap makes the error match ErrBackendNotAvailable.
func (e *NotRegisteredError) Unwrap() error { return ErrBackendNotAvailable }
