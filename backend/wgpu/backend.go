// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/vulkan" // Register the Vulkan HAL.

	"github.com/gogpu/owl/backend"
)

func init() {
	backend.Register(backend.NameWGPU, func() backend.Backend {
		return New()
	})
}

// ErrNoHAL is returned when the requested hal API is not compiled in.
var ErrNoHAL = errors.New("wgpu: hal backend not available")

// InstanceAPI creates hal instances. hal.Backend and noop.API satisfy it.
type InstanceAPI interface {
	CreateInstance(desc *hal.InstanceDescriptor) (hal.Instance, error)
}

// Backend opens hal adapters as accelerator devices.
//
// Backend is safe for concurrent use.
type Backend struct {
	mu       sync.Mutex
	api      InstanceAPI
	instance hal.Instance
	adapters []hal.ExposedAdapter

	// shared is set for backends built by NewShared.
	shared *sharedDevice
}

type sharedDevice struct {
	device hal.Device
	queue  hal.Queue
}

// New returns a backend over the Vulkan hal. The instance is created on the
// first Probe or Open.
func New() *Backend {
	return &Backend{}
}

// NewWithAPI returns a backend over the given hal API.
func NewWithAPI(api InstanceAPI) *Backend {
	return &Backend{api: api}
}

// NewShared returns a single-adapter backend whose device is owned by the
// provider. The provider must expose HalDevice() any and HalQueue() any
// returning hal.Device and hal.Queue. Closing the device leaves the provider's
// device alive.
func NewShared(provider gpucontext.DeviceProvider) (*Backend, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("wgpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("wgpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("wgpu: provider HalQueue is not hal.Queue")
	}
	return &Backend{shared: &sharedDevice{device: device, queue: queue}}, nil
}

// Name returns "wgpu".
func (b *Backend) Name() string { return backend.NameWGPU }

func (b *Backend) ensureInstance() error {
	if b.instance != nil {
		return nil
	}
	api := b.api
	if api == nil {
		vk, ok := hal.GetBackend(gputypes.BackendVulkan)
		if !ok {
			return fmt.Errorf("%w: vulkan", ErrNoHAL)
		}
		api = vk
	}
	instance, err := api.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("wgpu: create instance: %w", err)
	}
	b.instance = instance
	b.adapters = instance.EnumerateAdapters(nil)
	slogger().Debug("wgpu: instance created", "adapters", len(b.adapters))
	return nil
}

// Probe lists the hal adapters.
func (b *Backend) Probe() ([]backend.AdapterInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.shared != nil {
		return []backend.AdapterInfo{sharedInfo()}, nil
	}
	if err := b.ensureInstance(); err != nil {
		return nil, err
	}
	infos := make([]backend.AdapterInfo, len(b.adapters))
	for i := range b.adapters {
		infos[i] = adapterInfo(i, &b.adapters[i])
	}
	return infos, nil
}

func adapterInfo(ordinal int, a *hal.ExposedAdapter) backend.AdapterInfo {
	return backend.AdapterInfo{
		Ordinal: ordinal,
		Name:    a.Info.Name,
		Type:    a.Info.DeviceType,
		Backend: backend.NameWGPU,
	}
}

func sharedInfo() backend.AdapterInfo {
	return backend.AdapterInfo{Name: "shared", Backend: backend.NameWGPU}
}

// Open opens the adapter with the given ordinal.
func (b *Backend) Open(ordinal int) (backend.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.shared != nil {
		if ordinal != 0 {
			return nil, fmt.Errorf("%w: ordinal %d of 1", backend.ErrNoAdapter, ordinal)
		}
		return newDevice(sharedInfo(), b.shared.device, b.shared.queue, false), nil
	}
	if err := b.ensureInstance(); err != nil {
		return nil, err
	}
	if ordinal < 0 || ordinal >= len(b.adapters) {
		return nil, fmt.Errorf("%w: ordinal %d of %d", backend.ErrNoAdapter, ordinal, len(b.adapters))
	}
	a := &b.adapters[ordinal]
	openDev, err := a.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return nil, fmt.Errorf("wgpu: open adapter %d (%s): %w", ordinal, a.Info.Name, err)
	}
	slogger().Info("wgpu: device opened", "ordinal", ordinal, "name", a.Info.Name)
	return newDevice(adapterInfo(ordinal, a), openDev.Device, openDev.Queue, true), nil
}

// Close destroys the hal instance. Devices must be closed first.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.instance != nil {
		b.instance.Destroy()
		b.instance = nil
		b.adapters = nil
	}
}
