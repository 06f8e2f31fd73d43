// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/owl/backend"
	"github.com/gogpu/owl/compiler"
)

const (
	// addressBase is the start of the first device's synthetic address range.
	// Each opened device owns the 1<<addressShift bytes after its range start.
	addressBase  = 0x1_0000
	addressShift = 40
	// bufferAlign is the alignment of synthetic addresses and buffer sizes.
	bufferAlign = 256
	// fenceTimeout bounds every wait on the queue.
	fenceTimeout = 5 * time.Second
)

const storageUsage = gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst

// ranges counts devices opened in this process, owned or shared, so no two
// devices hand out the same address.
var ranges atomic.Uint64

func nextRangeBase() backend.Ptr {
	slot := ranges.Add(1) - 1
	return addressBase + backend.Ptr(slot)<<addressShift
}

type buffer struct {
	buf  hal.Buffer
	size uint64 // requested size
	kind backend.MemoryKind
}

type submission struct {
	cmd   hal.CommandBuffer
	fence hal.Fence
}

// Device is an accelerator device on a hal device and queue.
type Device struct {
	mu     sync.Mutex
	info   backend.AdapterInfo
	device hal.Device
	queue  hal.Queue
	owned  bool
	closed bool

	nextAddr backend.Ptr
	endAddr  backend.Ptr
	buffers  map[backend.Ptr]*buffer
	used     uint64

	nextRef   uint64
	modules   map[backend.ModuleRef]hal.ShaderModule
	pipelines map[backend.PipelineRef]*pipeline

	pending []submission
}

func newDevice(info backend.AdapterInfo, device hal.Device, queue hal.Queue, owned bool) *Device {
	base := nextRangeBase()
	return &Device{
		info:      info,
		device:    device,
		queue:     queue,
		owned:     owned,
		nextAddr:  base,
		endAddr:   base + 1<<addressShift,
		buffers:   make(map[backend.Ptr]*buffer),
		nextRef:   1,
		modules:   make(map[backend.ModuleRef]hal.ShaderModule),
		pipelines: make(map[backend.PipelineRef]*pipeline),
	}
}

// Info returns the adapter description.
func (d *Device) Info() backend.AdapterInfo { return d.info }

func alignUp(n, a uint64) uint64 { return (n + a - 1) &^ (a - 1) }

// Alloc creates a storage buffer. Host-pinned allocations are additionally
// usable as uniform buffers.
func (d *Device) Alloc(size uint64, kind backend.MemoryKind) (backend.Ptr, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, backend.ErrClosed
	}
	usage := storageUsage
	if kind == backend.MemoryHostPinned {
		usage |= gputypes.BufferUsageUniform
	}
	padded := alignUp(max(size, 4), 4)
	if uint64(d.endAddr-d.nextAddr) < alignUp(padded, bufferAlign) {
		return 0, fmt.Errorf("%w: address range of device %d exhausted", backend.ErrOutOfMemory, d.info.Ordinal)
	}
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: fmt.Sprintf("owl_%s_buffer", kind),
		Size:  padded,
		Usage: usage,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: create buffer of %d bytes: %w", backend.ErrOutOfMemory, size, err)
	}
	p := d.nextAddr
	d.nextAddr += backend.Ptr(alignUp(padded, bufferAlign))
	d.buffers[p] = &buffer{buf: buf, size: size, kind: kind}
	d.used += size
	return p, nil
}

// Free destroys the buffer at p.
func (d *Device) Free(p backend.Ptr) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return backend.ErrClosed
	}
	b, ok := d.buffers[p]
	if !ok {
		return fmt.Errorf("%w: %#x", backend.ErrInvalidPointer, uint64(p))
	}
	delete(d.buffers, p)
	d.used -= b.size
	d.device.DestroyBuffer(b.buf)
	return nil
}

func (d *Device) lookup(p backend.Ptr, offset uint64, n int) (*buffer, error) {
	if d.closed {
		return nil, backend.ErrClosed
	}
	b, ok := d.buffers[p]
	if !ok {
		return nil, fmt.Errorf("%w: %#x", backend.ErrInvalidPointer, uint64(p))
	}
	if offset+uint64(n) > b.size {
		return nil, fmt.Errorf("%w: [%d,%d) of %d bytes", backend.ErrOutOfRange, offset, offset+uint64(n), b.size)
	}
	return b, nil
}

// Upload writes data through the queue. Writes are padded to four bytes.
func (d *Device) Upload(p backend.Ptr, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, err := d.lookup(p, offset, len(data))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if offset%4 != 0 {
		return fmt.Errorf("wgpu: upload offset %d is not 4-byte aligned", offset)
	}
	if len(data)%4 != 0 {
		padded := make([]byte, alignUp(uint64(len(data)), 4))
		copy(padded, data)
		data = padded
	}
	d.queue.WriteBuffer(b.buf, offset, data)
	return nil
}

// Download copies the buffer into a staging buffer and reads it back.
func (d *Device) Download(p backend.Ptr, offset uint64, dst []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, err := d.lookup(p, offset, len(dst))
	if err != nil {
		return err
	}
	if len(dst) == 0 {
		return nil
	}
	if offset%4 != 0 {
		return fmt.Errorf("wgpu: download offset %d is not 4-byte aligned", offset)
	}
	size := alignUp(uint64(len(dst)), 4)

	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "owl_staging_buffer",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("wgpu: create staging buffer: %w", err)
	}
	defer d.device.DestroyBuffer(staging)

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "owl_download_encoder"})
	if err != nil {
		return fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("owl_download"); err != nil {
		return fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(b.buf, staging, []hal.BufferCopy{
		{SrcOffset: offset, DstOffset: 0, Size: size},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("wgpu: end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmdBuf)

	if err := d.submitAndWait(cmdBuf); err != nil {
		return err
	}

	readback := make([]byte, size)
	if err := d.queue.ReadBuffer(staging, 0, readback); err != nil {
		return fmt.Errorf("wgpu: readback: %w", err)
	}
	copy(dst, readback)
	return nil
}

func (d *Device) submitAndWait(cmdBuf hal.CommandBuffer) error {
	fence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("wgpu: create fence: %w", err)
	}
	defer d.device.DestroyFence(fence)
	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("wgpu: submit: %w", err)
	}
	ok, err := d.device.Wait(fence, 1, fenceTimeout)
	if err != nil || !ok {
		return fmt.Errorf("wgpu: wait for GPU: ok=%v err=%w", ok, err)
	}
	return nil
}

// LoadModule creates a WGSL shader module.
func (d *Device) LoadModule(m *compiler.Module) (backend.ModuleRef, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, backend.ErrClosed
	}
	if m == nil {
		return 0, fmt.Errorf("wgpu: load nil module")
	}
	src := hal.ShaderSource{WGSL: string(m.Source)}
	shader, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  m.Label,
		Source: src,
	})
	if err != nil {
		return 0, fmt.Errorf("wgpu: create shader module %q: %w", m.Label, err)
	}
	ref := backend.ModuleRef(d.nextRef)
	d.nextRef++
	d.modules[ref] = shader
	return ref, nil
}

// UnloadModule destroys a shader module.
func (d *Device) UnloadModule(ref backend.ModuleRef) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if shader, ok := d.modules[ref]; ok {
		delete(d.modules, ref)
		d.device.DestroyShaderModule(shader)
	}
}

// MemoryStats reports live buffers.
func (d *Device) MemoryStats() backend.MemoryStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return backend.MemoryStats{Allocations: len(d.buffers), AllocatedBytes: d.used}
}

// Close waits for queued work, destroys every resource and, when the device
// was opened by this backend, the hal device itself.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	err := d.drain()
	for ref, pl := range d.pipelines {
		pl.destroy(d.device)
		delete(d.pipelines, ref)
	}
	for ref, shader := range d.modules {
		d.device.DestroyShaderModule(shader)
		delete(d.modules, ref)
	}
	for p, b := range d.buffers {
		d.device.DestroyBuffer(b.buf)
		delete(d.buffers, p)
	}
	d.used = 0
	if d.owned {
		d.device.Destroy()
	}
	d.closed = true
	slogger().Debug("wgpu: device closed", "ordinal", d.info.Ordinal)
	return err
}
