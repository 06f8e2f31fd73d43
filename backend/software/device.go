// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package software

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/gogpu/owl/backend"
	"github.com/gogpu/owl/compiler"
)

type allocation struct {
	data []byte
	kind backend.MemoryKind
}

type pipeline struct {
	desc        backend.PipelineDesc
	identifiers []uint64
}

// Dispatch is a recorded launch.
type Dispatch struct {
	Desc backend.DispatchDesc
	// Entry is the ray-gen entry point that was launched.
	Entry string
	// Params is a copy of the launch parameter block at dispatch time.
	Params []byte
}

// Device is a software accelerator device.
type Device struct {
	mu     sync.Mutex
	info   backend.AdapterInfo
	limit  uint64
	closed bool

	next   backend.Ptr
	allocs map[backend.Ptr]*allocation
	used   uint64

	nextRef   uint64
	modules   map[backend.ModuleRef]*compiler.Module
	pipelines map[backend.PipelineRef]*pipeline

	dispatches []Dispatch
	pending    int
}

func newDevice(info backend.AdapterInfo, limit uint64) *Device {
	return &Device{
		info:      info,
		limit:     limit,
		next:      backend.Ptr(addressBase + uint64(info.Ordinal)<<addressShift),
		allocs:    make(map[backend.Ptr]*allocation),
		nextRef:   1,
		modules:   make(map[backend.ModuleRef]*compiler.Module),
		pipelines: make(map[backend.PipelineRef]*pipeline),
	}
}

// Info returns the adapter description.
func (d *Device) Info() backend.AdapterInfo { return d.info }

// Alloc reserves size bytes of zeroed memory.
func (d *Device) Alloc(size uint64, kind backend.MemoryKind) (backend.Ptr, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, backend.ErrClosed
	}
	if d.used+size > d.limit {
		return 0, fmt.Errorf("%w: %d bytes requested, %d of %d in use",
			backend.ErrOutOfMemory, size, d.used, d.limit)
	}
	p := d.next
	span := (max(size, 1) + Alignment - 1) &^ (Alignment - 1)
	d.next += backend.Ptr(span)
	d.allocs[p] = &allocation{data: make([]byte, size), kind: kind}
	d.used += size
	return p, nil
}

// Free releases an allocation.
func (d *Device) Free(p backend.Ptr) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return backend.ErrClosed
	}
	a, ok := d.allocs[p]
	if !ok {
		return fmt.Errorf("%w: %#x", backend.ErrInvalidPointer, uint64(p))
	}
	delete(d.allocs, p)
	d.used -= uint64(len(a.data))
	return nil
}

func (d *Device) lookup(p backend.Ptr, offset uint64, n int) (*allocation, error) {
	if d.closed {
		return nil, backend.ErrClosed
	}
	a, ok := d.allocs[p]
	if !ok {
		return nil, fmt.Errorf("%w: %#x", backend.ErrInvalidPointer, uint64(p))
	}
	if offset+uint64(n) > uint64(len(a.data)) {
		return nil, fmt.Errorf("%w: [%d,%d) of %d bytes", backend.ErrOutOfRange, offset, offset+uint64(n), len(a.data))
	}
	return a, nil
}

// Upload copies data into the allocation at p.
func (d *Device) Upload(p backend.Ptr, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, err := d.lookup(p, offset, len(data))
	if err != nil {
		return err
	}
	copy(a.data[offset:], data)
	return nil
}

// Download copies len(dst) bytes out of the allocation at p.
func (d *Device) Download(p backend.Ptr, offset uint64, dst []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, err := d.lookup(p, offset, len(dst))
	if err != nil {
		return err
	}
	copy(dst, a.data[offset:])
	return nil
}

// LoadModule records a compiled module.
func (d *Device) LoadModule(m *compiler.Module) (backend.ModuleRef, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, backend.ErrClosed
	}
	if m == nil {
		return 0, fmt.Errorf("software: load nil module")
	}
	ref := backend.ModuleRef(d.nextRef)
	d.nextRef++
	d.modules[ref] = m
	return ref, nil
}

// UnloadModule forgets a module.
func (d *Device) UnloadModule(ref backend.ModuleRef) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.modules, ref)
}

// CreatePipeline checks every program's entries against its module and
// assigns program identifiers unique to this device and pipeline.
func (d *Device) CreatePipeline(desc *backend.PipelineDesc) (*backend.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, backend.ErrClosed
	}
	ref := backend.PipelineRef(d.nextRef)
	d.nextRef++

	ids := make([]uint64, len(desc.Programs))
	for i, p := range desc.Programs {
		m, ok := d.modules[p.Module]
		if !ok {
			return nil, fmt.Errorf("%w: module %d for %s program %d", backend.ErrUnknownResource, p.Module, p.Kind, p.Index)
		}
		for _, entry := range []string{p.Entry, p.AnyHit, p.Intersection} {
			if entry != "" && !m.HasEntry(entry) {
				return nil, fmt.Errorf("software: %s program %d: module %q has no entry %q", p.Kind, p.Index, m.Label, entry)
			}
		}
		ids[i] = d.identifier(ref, p)
	}

	d.pipelines[ref] = &pipeline{desc: clonePipelineDesc(desc), identifiers: ids}
	return &backend.Pipeline{Ref: ref, Identifiers: append([]uint64(nil), ids...)}, nil
}

func (d *Device) identifier(ref backend.PipelineRef, p backend.ProgramDesc) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d/%d/%d/%d/%s/%s/%s", d.info.Ordinal, ref, p.Kind, p.Index, p.Entry, p.AnyHit, p.Intersection)
	id := h.Sum64()
	if id == 0 {
		id = 1
	}
	return id
}

func clonePipelineDesc(desc *backend.PipelineDesc) backend.PipelineDesc {
	return backend.PipelineDesc{
		Label:    desc.Label,
		Programs: append([]backend.ProgramDesc(nil), desc.Programs...),
	}
}

// DestroyPipeline forgets a pipeline.
func (d *Device) DestroyPipeline(ref backend.PipelineRef) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pipelines, ref)
}

// Dispatch records a launch. The ray-gen program must be part of the pipeline
// and every binding table region must lie within live memory.
func (d *Device) Dispatch(desc *backend.DispatchDesc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return backend.ErrClosed
	}
	pl, ok := d.pipelines[desc.Pipeline]
	if !ok {
		return fmt.Errorf("%w: pipeline %d", backend.ErrUnknownResource, desc.Pipeline)
	}
	if desc.RayGen < 0 || desc.RayGen >= len(pl.desc.Programs) || pl.desc.Programs[desc.RayGen].Kind != backend.ProgramRayGen {
		return fmt.Errorf("software: program %d is not a ray-gen program", desc.RayGen)
	}
	for _, r := range []backend.Region{desc.RayGens, desc.Misses, desc.Hits} {
		if r.Count == 0 {
			continue
		}
		if _, err := d.lookup(r.Ptr, 0, int(r.Stride)*int(r.Count)); err != nil {
			return fmt.Errorf("software: binding table: %w", err)
		}
	}

	rec := Dispatch{Desc: *desc, Entry: pl.desc.Programs[desc.RayGen].Entry}
	if desc.ParamsSize > 0 {
		a, err := d.lookup(desc.Params, 0, int(desc.ParamsSize))
		if err != nil {
			return fmt.Errorf("software: launch params: %w", err)
		}
		rec.Params = append([]byte(nil), a.data[:desc.ParamsSize]...)
	}
	d.dispatches = append(d.dispatches, rec)
	d.pending++
	return nil
}

// Synchronize completes every recorded launch.
func (d *Device) Synchronize() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return backend.ErrClosed
	}
	d.pending = 0
	return nil
}

// Pending returns the number of launches queued since the last Synchronize.
func (d *Device) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Dispatches returns every recorded launch.
func (d *Device) Dispatches() []Dispatch {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Dispatch(nil), d.dispatches...)
}

// Modules returns the number of loaded modules.
func (d *Device) Modules() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.modules)
}

// Pipelines returns the number of live pipelines.
func (d *Device) Pipelines() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pipelines)
}

// MemoryStats reports live allocations.
func (d *Device) MemoryStats() backend.MemoryStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return backend.MemoryStats{Allocations: len(d.allocs), AllocatedBytes: d.used}
}

// Closed reports whether Close has been called.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Close releases everything. Calling Close again is a no-op.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	clear(d.allocs)
	clear(d.modules)
	clear(d.pipelines)
	d.used = 0
	slogger().Debug("software: device closed", "ordinal", d.info.Ordinal)
	return nil
}
