// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package software provides a host-memory accelerator backend.
//
// Each adapter owns a disjoint virtual address range so that pointers from two
// devices never coincide. Launches are recorded rather than executed, which
// makes the backend suitable for exercising the device layer without hardware.
// Adapter count, memory limit and open failures are configurable for tests.
//
// Importing the package registers it under [backend.NameSoftware]:
//
//	import _ "github.com/gogpu/owl/backend/software"
package software

import (
	"fmt"
	"sync"

	"github.com/gogpu/owl/backend"
)

func init() {
	backend.Register(backend.NameSoftware, func() backend.Backend {
		return New()
	})
}

const (
	// DefaultAdapters is the adapter count of a backend created without options.
	DefaultAdapters = 1

	// DefaultMemoryLimit is the per-device allocation limit.
	DefaultMemoryLimit = 1 << 30

	// addressBase is the start of adapter 0's address range; each adapter is
	// offset by ordinal<<addressShift.
	addressBase  = 0x0000_1000_0000_0000
	addressShift = 40

	// Alignment of every allocation.
	Alignment = 256
)

// Option configures a Backend.
type Option func(*Backend)

// WithAdapters sets the number of adapters Probe reports.
func WithAdapters(n int) Option {
	return func(b *Backend) { b.adapters = n }
}

// WithMemoryLimit sets the per-device allocation limit in bytes.
func WithMemoryLimit(bytes uint64) Option {
	return func(b *Backend) { b.memoryLimit = bytes }
}

// WithOpenError makes Open fail for the given ordinal.
func WithOpenError(ordinal int, err error) Option {
	return func(b *Backend) { b.openErrors[ordinal] = err }
}

// Backend is a software accelerator backend.
type Backend struct {
	mu          sync.Mutex
	adapters    int
	memoryLimit uint64
	openErrors  map[int]error
	devices     []*Device
}

// New creates a software backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		adapters:    DefaultAdapters,
		memoryLimit: DefaultMemoryLimit,
		openErrors:  make(map[int]error),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns "software".
func (b *Backend) Name() string { return backend.NameSoftware }

// Probe lists the configured adapters.
func (b *Backend) Probe() ([]backend.AdapterInfo, error) {
	infos := make([]backend.AdapterInfo, b.adapters)
	for i := range infos {
		infos[i] = b.info(i)
	}
	return infos, nil
}

func (b *Backend) info(ordinal int) backend.AdapterInfo {
	return backend.AdapterInfo{
		Ordinal: ordinal,
		Name:    fmt.Sprintf("software-%d", ordinal),
		Backend: backend.NameSoftware,
	}
}

// Open creates a device on the given adapter.
func (b *Backend) Open(ordinal int) (backend.Device, error) {
	if ordinal < 0 || ordinal >= b.adapters {
		return nil, fmt.Errorf("%w: ordinal %d of %d", backend.ErrNoAdapter, ordinal, b.adapters)
	}
	if err, ok := b.openErrors[ordinal]; ok {
		return nil, fmt.Errorf("software: open adapter %d: %w", ordinal, err)
	}
	d := newDevice(b.info(ordinal), b.memoryLimit)
	b.mu.Lock()
	b.devices = append(b.devices, d)
	b.mu.Unlock()
	slogger().Debug("software: device opened", "ordinal", ordinal)
	return d, nil
}

// Devices returns every device opened so far, in open order.
func (b *Backend) Devices() []*Device {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Device(nil), b.devices...)
}
