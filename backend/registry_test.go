// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"errors"
	"testing"
)

type fakeBackend struct {
	name     string
	adapters int
	probeErr error
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Probe() ([]AdapterInfo, error) {
	if f.probeErr != nil {
		return nil, f.probeErr
	}
	return make([]AdapterInfo, f.adapters), nil
}

func (f *fakeBackend) Open(int) (Device, error) { return nil, ErrNoAdapter }

func register(t *testing.T, name string, b Backend) {
	t.Helper()
	Register(name, func() Backend { return b })
	t.Cleanup(func() { Unregister(name) })
}

func TestRegistryRegisterAndGet(t *testing.T) {
	register(t, "fake", &fakeBackend{name: "fake", adapters: 1})

	if !IsRegistered("fake") {
		t.Error("fake backend should be registered")
	}
	if b := Get("fake"); b == nil || b.Name() != "fake" {
		t.Errorf("Get(fake) = %v", b)
	}
	if Get("nonexistent") != nil {
		t.Error("Get(nonexistent) should return nil")
	}

	found := false
	for _, name := range Available() {
		if name == "fake" {
			found = true
		}
	}
	if !found {
		t.Errorf("Available() = %v, missing fake", Available())
	}
}

func TestDefaultPriority(t *testing.T) {
	register(t, NameSoftware, &fakeBackend{name: NameSoftware, adapters: 1})
	register(t, NameWGPU, &fakeBackend{name: NameWGPU, adapters: 2})

	if b := Default(); b == nil || b.Name() != NameWGPU {
		t.Errorf("Default() = %v, want wgpu", b)
	}
}

func TestDefaultSkipsBackendsWithoutAdapters(t *testing.T) {
	register(t, NameWGPU, &fakeBackend{name: NameWGPU, probeErr: errors.New("no vulkan")})
	register(t, NameSoftware, &fakeBackend{name: NameSoftware, adapters: 1})

	if b := Default(); b == nil || b.Name() != NameSoftware {
		t.Errorf("Default() = %v, want software fallback", b)
	}
}

func TestLookup(t *testing.T) {
	register(t, "fake", &fakeBackend{name: "fake", adapters: 1})

	if b, err := Lookup("fake"); err != nil || b.Name() != "fake" {
		t.Errorf("Lookup(fake) = %v, %v", b, err)
	}

	_, err := Lookup("missing")
	var nr *NotRegisteredError
	if !errors.As(err, &nr) || nr.Name != "missing" {
		t.Errorf("Lookup(missing) error = %v, want NotRegisteredError", err)
	}
	if !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Lookup(missing) error does not wrap ErrBackendNotAvailable")
	}
}

func TestMemoryKindString(t *testing.T) {
	if MemoryDevice.String() != "device" || MemoryHostPinned.String() != "host-pinned" {
		t.Errorf("MemoryKind strings = %q, %q", MemoryDevice, MemoryHostPinned)
	}
	if ProgramHit.String() != "hit" {
		t.Errorf("ProgramHit.String() = %q", ProgramHit)
	}
}
