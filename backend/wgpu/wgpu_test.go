// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"errors"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/owl/backend"
	"github.com/gogpu/owl/compiler"
)

// newNoopBackend returns a backend over the noop hal.
func newNoopBackend(t *testing.T) *Backend {
	t.Helper()
	b := NewWithAPI(&noop.API{})
	t.Cleanup(b.Close)
	return b
}

func openNoop(t *testing.T) *Device {
	t.Helper()
	b := newNoopBackend(t)
	d, err := b.Open(0)
	if err != nil {
		t.Fatalf("Open(0) error = %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d.(*Device)
}

func TestRegistered(t *testing.T) {
	if !backend.IsRegistered(backend.NameWGPU) {
		t.Fatal("wgpu backend not registered")
	}
}

func TestProbeNoop(t *testing.T) {
	infos, err := newNoopBackend(t).Probe()
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if len(infos) == 0 {
		t.Fatal("noop hal reported no adapters")
	}
	if infos[0].Backend != backend.NameWGPU || infos[0].Ordinal != 0 {
		t.Errorf("adapter 0 = %+v", infos[0])
	}
}

func TestOpenOutOfRange(t *testing.T) {
	if _, err := newNoopBackend(t).Open(99); !errors.Is(err, backend.ErrNoAdapter) {
		t.Errorf("Open(99) error = %v, want ErrNoAdapter", err)
	}
}

func TestAllocFree(t *testing.T) {
	d := openNoop(t)
	p0, err := d.Alloc(10, backend.MemoryDevice)
	if err != nil {
		t.Fatal(err)
	}
	p1, err := d.Alloc(300, backend.MemoryHostPinned)
	if err != nil {
		t.Fatal(err)
	}
	if p0 == 0 || p1 <= p0 || uint64(p1-p0)%bufferAlign != 0 {
		t.Errorf("addresses %#x, %#x not increasing and aligned", uint64(p0), uint64(p1))
	}
	if s := d.MemoryStats(); s.Allocations != 2 || s.AllocatedBytes != 310 {
		t.Errorf("MemoryStats = %+v", s)
	}
	if err := d.Upload(p0, 8, []byte{1, 2, 3}); !errors.Is(err, backend.ErrOutOfRange) {
		t.Errorf("Upload past end error = %v, want ErrOutOfRange", err)
	}
	if err := d.Upload(p0, 0, []byte{1, 2, 3}); err != nil {
		t.Errorf("Upload = %v", err)
	}
	if err := d.Free(p0); err != nil {
		t.Fatal(err)
	}
	if err := d.Free(p0); !errors.Is(err, backend.ErrInvalidPointer) {
		t.Errorf("double Free error = %v, want ErrInvalidPointer", err)
	}
}

const launchSource = `
@compute @workgroup_size(8, 8)
fn ray_gen(@builtin(global_invocation_id) id: vec3<u32>) {
}
`

func TestPipelineDispatchSynchronize(t *testing.T) {
	d := openNoop(t)
	m, err := (&compiler.Naga{}).Compile("launch", []byte(launchSource))
	if err != nil {
		t.Fatal(err)
	}
	ref, err := d.LoadModule(m)
	if err != nil {
		t.Fatalf("LoadModule() error = %v", err)
	}

	pl, err := d.CreatePipeline(&backend.PipelineDesc{Programs: []backend.ProgramDesc{
		{Kind: backend.ProgramRayGen, Module: ref, Entry: "ray_gen"},
		{Kind: backend.ProgramMiss, Module: ref, Entry: "ray_gen"},
	}})
	if err != nil {
		t.Fatalf("CreatePipeline() error = %v", err)
	}
	if pl.Identifiers[0] == 0 || pl.Identifiers[0] == pl.Identifiers[1] {
		t.Errorf("Identifiers = %v", pl.Identifiers)
	}

	if err := d.Dispatch(&backend.DispatchDesc{Pipeline: pl.Ref, RayGen: 1}); err == nil {
		t.Error("Dispatch of miss program succeeded")
	}
	if err := d.Dispatch(&backend.DispatchDesc{Pipeline: pl.Ref, RayGen: 0, Width: 16, Height: 9}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if len(d.pending) != 1 {
		t.Errorf("pending = %d, want 1", len(d.pending))
	}
	if err := d.Synchronize(); err != nil {
		t.Fatalf("Synchronize() error = %v", err)
	}
	if len(d.pending) != 0 {
		t.Errorf("pending after Synchronize = %d", len(d.pending))
	}

	d.DestroyPipeline(pl.Ref)
	d.UnloadModule(ref)
	if len(d.pipelines) != 0 || len(d.modules) != 0 {
		t.Errorf("pipelines=%d modules=%d after release", len(d.pipelines), len(d.modules))
	}
}

func TestCloseIdempotent(t *testing.T) {
	d := openNoop(t)
	if _, err := d.Alloc(64, backend.MemoryDevice); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	if _, err := d.Alloc(8, backend.MemoryDevice); !errors.Is(err, backend.ErrClosed) {
		t.Errorf("Alloc after Close error = %v, want ErrClosed", err)
	}
}

type fakeProvider struct {
	device hal.Device
	queue  hal.Queue
}

func (p *fakeProvider) Device() gpucontext.Device   { return nil }
func (p *fakeProvider) Queue() gpucontext.Queue     { return nil }
func (p *fakeProvider) Adapter() gpucontext.Adapter { return nil }
func (p *fakeProvider) HalDevice() any              { return p.device }
func (p *fakeProvider) HalQueue() any               { return p.queue }

func (p *fakeProvider) SurfaceFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatUndefined
}

func TestNewSharedLeavesDeviceOwned(t *testing.T) {
	instance, err := (&noop.API{}).CreateInstance(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer instance.Destroy()
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	defer openDev.Device.Destroy()

	b, err := NewShared(&fakeProvider{device: openDev.Device, queue: openDev.Queue})
	if err != nil {
		t.Fatalf("NewShared() error = %v", err)
	}
	infos, _ := b.Probe()
	if len(infos) != 1 {
		t.Fatalf("shared backend has %d adapters, want 1", len(infos))
	}
	d, err := b.Open(0)
	if err != nil {
		t.Fatal(err)
	}
	if d.(*Device).owned {
		t.Error("shared device marked as owned")
	}
	if err := d.Close(); err != nil {
		t.Error(err)
	}
}

func TestDevicesHaveDisjointAddresses(t *testing.T) {
	b := newNoopBackend(t)
	var ptrs []backend.Ptr
	for range 2 {
		d, err := b.Open(0)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = d.Close() })
		p, err := d.Alloc(64, backend.MemoryDevice)
		if err != nil {
			t.Fatal(err)
		}
		ptrs = append(ptrs, p)
	}
	if ptrs[0] == ptrs[1] {
		t.Fatalf("two devices returned the same first address %#x", uint64(ptrs[0]))
	}
	if diff := ptrs[1] - ptrs[0]; ptrs[1] > ptrs[0] && diff < 1<<addressShift {
		t.Errorf("device ranges overlap: %#x and %#x", uint64(ptrs[0]), uint64(ptrs[1]))
	}
}
