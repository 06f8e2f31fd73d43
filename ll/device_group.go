// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package ll

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/owl/backend"
	"github.com/gogpu/owl/bvh"
)

// DeviceGroup is the set of devices a context runs on. Every mutation is
// applied to each device in order, so a handle names the same logical
// resource everywhere; reads name the device they want.
//
// A broadcast stops at the first device that fails and returns that error.
// Validation failures are identical across devices, so in practice either
// every device applied a call or none did.
//
// DeviceGroup is safe for concurrent use; calls are serialized. While a
// RecordWriter or BoundsFunc runs, calls on the group fail with
// ErrCallbackActive instead of waiting.
type DeviceGroup struct {
	mu        sync.Mutex
	callbacks atomic.Bool // set while mu is held by a call running callbacks
	backend   backend.Backend
	devices   []*Device
	destroyed bool
}

// NewDeviceGroup opens one device per requested adapter ordinal of b. A nil
// or empty ordinals list selects every adapter b reports. Adapters that fail
// to open are logged and skipped; ErrDeviceInit is returned only when none
// could be opened.
func NewDeviceGroup(b backend.Backend, ordinals []int, opts ...Option) (*DeviceGroup, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: no backend", ErrDeviceInit)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	infos, err := b.Probe()
	if err != nil {
		return nil, fmt.Errorf("%w: probe %s: %w", ErrDeviceInit, b.Name(), err)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("%w: %s reports no adapters", ErrDeviceInit, b.Name())
	}
	if len(ordinals) == 0 {
		ordinals = make([]int, len(infos))
		for i, info := range infos {
			ordinals[i] = info.Ordinal
		}
	}

	g := &DeviceGroup{backend: b}
	var failures []error
	for _, ord := range ordinals {
		dev, err := b.Open(ord)
		if err != nil {
			slogger().Warn("ll: dropping device", "backend", b.Name(), "ordinal", ord, "err", err)
			failures = append(failures, fmt.Errorf("ordinal %d: %w", ord, err))
			continue
		}
		g.devices = append(g.devices, newDevice(len(g.devices), dev, o))
	}
	if len(g.devices) == 0 {
		return nil, fmt.Errorf("%w: none of %d devices opened: %w", ErrDeviceInit, len(ordinals), errors.Join(failures...))
	}
	slogger().Info("ll: device group created", "backend", b.Name(),
		"requested", len(ordinals), "devices", len(g.devices))
	return g, nil
}

// Destroy releases every device in reverse order. Calling Destroy again is
// a no-op.
func (g *DeviceGroup) Destroy() error {
	if err := g.lock(); err != nil {
		return err
	}
	defer g.mu.Unlock()
	if g.destroyed {
		return nil
	}
	g.destroyed = true
	var errs []error
	for i := len(g.devices) - 1; i >= 0; i-- {
		if err := g.devices[i].destroy(); err != nil {
			errs = append(errs, fmt.Errorf("device %d: %w", i, err))
		}
	}
	slogger().Info("ll: device group destroyed", "devices", len(g.devices))
	g.devices = nil
	return errors.Join(errs...)
}

// Backend returns the backend the group's devices were opened on.
func (g *DeviceGroup) Backend() backend.Backend { return g.backend }

// DeviceCount returns the number of live devices.
func (g *DeviceGroup) DeviceCount() int {
	if err := g.lock(); err != nil {
		// The device list does not change while callbacks run.
		return len(g.devices)
	}
	defer g.mu.Unlock()
	return len(g.devices)
}

// Device returns device i. The returned Device must only be read while no
// other goroutine mutates the group.
func (g *DeviceGroup) Device(i int) (*Device, error) {
	return read(g, i, func(d *Device) (*Device, error) { return d, nil })
}

// lock acquires mu. A caller arriving while a callback runs gets
// ErrCallbackActive, since it may be that callback.
func (g *DeviceGroup) lock() error {
	if g.mu.TryLock() {
		return nil
	}
	if g.callbacks.Load() {
		return ErrCallbackActive
	}
	g.mu.Lock()
	return nil
}

// broadcast applies fn to every device in order.
func (g *DeviceGroup) broadcast(fn func(d *Device) error) error {
	return g.apply(false, fn)
}

// broadcastCallbacks is broadcast for calls that run caller callbacks.
func (g *DeviceGroup) broadcastCallbacks(fn func(d *Device) error) error {
	return g.apply(true, fn)
}

func (g *DeviceGroup) apply(callbacks bool, fn func(d *Device) error) error {
	if err := g.lock(); err != nil {
		return err
	}
	defer g.mu.Unlock()
	if callbacks {
		g.callbacks.Store(true)
		defer g.callbacks.Store(false)
	}
	if g.destroyed {
		return ErrDestroyed
	}
	for _, d := range g.devices {
		if err := fn(d); err != nil {
			return fmt.Errorf("device %d: %w", d.id, err)
		}
	}
	return nil
}

// read applies fn to device i.
func read[T any](g *DeviceGroup, i int, fn func(d *Device) (T, error)) (T, error) {
	var zero T
	if err := g.lock(); err != nil {
		return zero, err
	}
	defer g.mu.Unlock()
	if g.destroyed {
		return zero, ErrDestroyed
	}
	if i < 0 || i >= len(g.devices) {
		return zero, fmt.Errorf("%w: device %d of %d", ErrInvalidHandle, i, len(g.devices))
	}
	v, err := fn(g.devices[i])
	if err != nil {
		return zero, fmt.Errorf("device %d: %w", i, err)
	}
	return v, nil
}

// SetRayTypeCount sets the number of ray types hit records are laid out for.
func (g *DeviceGroup) SetRayTypeCount(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: ray type count %d", ErrInvalidValue, n)
	}
	return g.broadcast(func(d *Device) error {
		if d.rayTypeCount != n {
			d.rayTypeCount = n
			d.markSBTStale(SBTHit)
		}
		return nil
	})
}

// RayTypeCount returns the current ray type count.
func (g *DeviceGroup) RayTypeCount() (int, error) {
	return read(g, 0, func(d *Device) (int, error) { return d.rayTypeCount, nil })
}

// Buffers.

// AllocBuffers sizes the buffer table.
func (g *DeviceGroup) AllocBuffers(n int) error {
	return g.broadcast(func(d *Device) error { return d.buffers.Allocate(n) })
}

// DeviceBufferCreate creates buffer id in device memory on every device,
// seeded with init when it is not empty.
func (g *DeviceGroup) DeviceBufferCreate(id, elemCount, elemSize int, init []byte) error {
	return g.broadcast(func(d *Device) error {
		return d.createBuffer(id, backend.MemoryDevice, elemCount, elemSize, init)
	})
}

// HostPinnedBufferCreate creates buffer id in host-pinned memory on every
// device, filled from init when it is non-nil.
func (g *DeviceGroup) HostPinnedBufferCreate(id, elemCount, elemSize int, init []byte) error {
	return g.broadcast(func(d *Device) error {
		return d.createBuffer(id, backend.MemoryHostPinned, elemCount, elemSize, init)
	})
}

// BufferUpload writes data at offset into buffer id on every device.
func (g *DeviceGroup) BufferUpload(id int, offset uint64, data []byte) error {
	return g.broadcast(func(d *Device) error { return d.uploadBuffer(id, offset, data) })
}

// BufferDownload reads device dev's copy of buffer id.
func (g *DeviceGroup) BufferDownload(id, dev int) ([]byte, error) {
	return read(g, dev, func(d *Device) ([]byte, error) { return d.downloadBuffer(id) })
}

// BufferPointer returns device dev's address of buffer id.
func (g *DeviceGroup) BufferPointer(id, dev int) (backend.Ptr, error) {
	return read(g, dev, func(d *Device) (backend.Ptr, error) { return d.BufferPointer(id) })
}

// BufferSize returns the byte size of buffer id.
func (g *DeviceGroup) BufferSize(id int) (uint64, error) {
	return read(g, 0, func(d *Device) (uint64, error) { return d.BufferSize(id) })
}

// DestroyBuffer frees buffer id on every device.
func (g *DeviceGroup) DestroyBuffer(id int) error {
	return g.broadcast(func(d *Device) error { return d.buffers.Clear(id) })
}

// Modules and programs.

// AllocModules sizes the module table.
func (g *DeviceGroup) AllocModules(n int) error {
	return g.broadcast(func(d *Device) error {
		if err := d.modules.Allocate(n); err != nil {
			return err
		}
		d.invalidatePipeline()
		return nil
	})
}

// SetModule stores the source of module id. It is compiled by the next
// BuildModules.
func (g *DeviceGroup) SetModule(id int, source []byte) error {
	return g.broadcast(func(d *Device) error { return d.setModule(id, source) })
}

// BuildModules compiles and loads every module on every device.
func (g *DeviceGroup) BuildModules() error {
	return g.broadcast(func(d *Device) error { return d.buildModules() })
}

// ModuleBuilt reports whether module id is built on device dev.
func (g *DeviceGroup) ModuleBuilt(id, dev int) (bool, error) {
	return read(g, dev, func(d *Device) (bool, error) { return d.ModuleBuilt(id) })
}

func (g *DeviceGroup) allocPrograms(alloc func(d *Device) error) error {
	return g.broadcast(func(d *Device) error {
		if err := alloc(d); err != nil {
			return err
		}
		d.invalidatePipeline()
		return nil
	})
}

// AllocRayGens sizes the ray-gen program table.
func (g *DeviceGroup) AllocRayGens(n int) error {
	return g.allocPrograms(func(d *Device) error { return d.rayGens.Allocate(n) })
}

// AllocMissProgs sizes the miss program table.
func (g *DeviceGroup) AllocMissProgs(n int) error {
	return g.allocPrograms(func(d *Device) error { return d.misses.Allocate(n) })
}

// AllocHitProgs sizes the hit program table.
func (g *DeviceGroup) AllocHitProgs(n int) error {
	return g.allocPrograms(func(d *Device) error { return d.hits.Allocate(n) })
}

// SetRayGen declares ray-gen program id.
func (g *DeviceGroup) SetRayGen(id, module int, entry string, dataSize int) error {
	return g.broadcast(func(d *Device) error { return d.setProgram(d.rayGens, id, module, entry, dataSize) })
}

// SetMissProg declares miss program id.
func (g *DeviceGroup) SetMissProg(id, module int, entry string, dataSize int) error {
	return g.broadcast(func(d *Device) error { return d.setProgram(d.misses, id, module, entry, dataSize) })
}

// SetHitProg declares hit program id with a closest-hit entry for ray type
// rayType.
func (g *DeviceGroup) SetHitProg(id, module int, entry string, dataSize, rayType int) error {
	return g.SetHitProgEntries(id, module, HitEntries{Closest: entry}, dataSize, rayType)
}

// SetHitProgEntries declares hit program id with optional any-hit and
// intersection entries.
func (g *DeviceGroup) SetHitProgEntries(id, module int, e HitEntries, dataSize, rayType int) error {
	return g.broadcast(func(d *Device) error { return d.setHitProgram(id, module, e, dataSize, rayType) })
}

// AllocGeomTypes sizes the geometry type table.
func (g *DeviceGroup) AllocGeomTypes(n int) error {
	return g.broadcast(func(d *Device) error { return d.geomTypes.Allocate(n) })
}

// SetGeomType declares geometry type id with dataSize bytes of hit record data.
func (g *DeviceGroup) SetGeomType(id, dataSize int) error {
	return g.broadcast(func(d *Device) error { return d.setGeomType(id, dataSize) })
}

// GeomTypeSetHitProg binds hit program hitProg to ray type rayType of
// geometry type id.
func (g *DeviceGroup) GeomTypeSetHitProg(id, rayType, hitProg int) error {
	return g.broadcast(func(d *Device) error { return d.geomTypeSetHit(id, rayType, hitProg) })
}

// CreatePipeline links every declared program on every device. Binding
// tables built before are no longer valid afterwards.
func (g *DeviceGroup) CreatePipeline() error {
	return g.broadcast(func(d *Device) error { return d.createPipeline() })
}

// Geometry.

// AllocGeoms sizes the geometry table. The hit binding table holds one row
// per geometry slot and ray type.
func (g *DeviceGroup) AllocGeoms(n int) error {
	return g.broadcast(func(d *Device) error {
		if err := d.geoms.Allocate(n); err != nil {
			return err
		}
		d.markSBTStale(SBTHit)
		return nil
	})
}

// CreateTrianglesGeom declares triangle mesh id of geometry type geomType.
func (g *DeviceGroup) CreateTrianglesGeom(id, geomType, logicalHitGroup int) error {
	return g.broadcast(func(d *Device) error {
		return d.createGeom(id, GeomTriangles, geomType, logicalHitGroup, 0)
	})
}

// TrianglesSetVertexBuffers sets one vertex buffer per motion time step.
// A zero stride means DefaultVertexStride.
func (g *DeviceGroup) TrianglesSetVertexBuffers(id int, buffers []int, count, stride, offset int) error {
	return g.broadcast(func(d *Device) error {
		return d.trianglesSetVertices(id, buffers, count, stride, offset)
	})
}

// TrianglesSetIndexBuffer sets the index buffer of triangle mesh id.
// A zero stride means DefaultIndexStride.
func (g *DeviceGroup) TrianglesSetIndexBuffer(id, buffer, count, stride, offset int) error {
	return g.broadcast(func(d *Device) error {
		return d.trianglesSetIndices(id, buffer, count, stride, offset)
	})
}

// CreateUserGeom declares user geometry id with primCount primitives.
func (g *DeviceGroup) CreateUserGeom(id, geomType, logicalHitGroup, primCount int) error {
	return g.broadcast(func(d *Device) error {
		return d.createGeom(id, GeomUser, geomType, logicalHitGroup, primCount)
	})
}

// UserGeomSetPrimBuffer sets the buffer passed to the bounds routine.
func (g *DeviceGroup) UserGeomSetPrimBuffer(id, buffer int) error {
	return g.broadcast(func(d *Device) error { return d.userSetPrimBuffer(id, buffer) })
}

// UserGeomSetBounds sets the routine that bounds user primitives. It is
// called once per device and primitive by BuildAccel.
func (g *DeviceGroup) UserGeomSetBounds(id int, fn BoundsFunc) error {
	return g.broadcast(func(d *Device) error { return d.userSetBounds(id, fn) })
}

// Groups and acceleration structures.

// AllocGroups sizes the group table.
func (g *DeviceGroup) AllocGroups(n int) error {
	return g.broadcast(func(d *Device) error { return d.groups.Allocate(n) })
}

// CreateGeomGroup declares bottom-level group id over geoms, which must all
// be of one kind.
func (g *DeviceGroup) CreateGeomGroup(id int, geoms []int) error {
	return g.broadcast(func(d *Device) error { return d.createGeomGroup(id, geoms) })
}

// CreateInstanceGroup declares top-level group id with count instances, each
// with an identity transform and no child.
func (g *DeviceGroup) CreateInstanceGroup(id, count int) error {
	return g.broadcast(func(d *Device) error { return d.createInstanceGroup(id, count) })
}

// InstanceGroupSetChild sets the group instanced at index of group id.
func (g *DeviceGroup) InstanceGroupSetChild(id, index, child int) error {
	return g.broadcast(func(d *Device) error { return d.instanceSetChild(id, index, child) })
}

// InstanceGroupSetTransform sets the object-to-world transform of instance
// index of group id.
func (g *DeviceGroup) InstanceGroupSetTransform(id, index int, xfm f32.Aff4) error {
	return g.broadcast(func(d *Device) error { return d.instanceSetTransform(id, index, xfm) })
}

// BuildAccel builds the acceleration structure of group id on every device.
// Children of an instance group must be built first.
func (g *DeviceGroup) BuildAccel(id int) error {
	return g.broadcastCallbacks(func(d *Device) error { return d.buildAccel(id) })
}

// GroupTraversable returns the traversable of group id on device dev.
func (g *DeviceGroup) GroupTraversable(id, dev int) (backend.Ptr, error) {
	return read(g, dev, func(d *Device) (backend.Ptr, error) { return d.Traversable(id) })
}

// GroupBounds returns the world bounds of built group id on device dev.
func (g *DeviceGroup) GroupBounds(id, dev int) (bvh.AABB, error) {
	return read(g, dev, func(d *Device) (bvh.AABB, error) { return d.GroupBounds(id) })
}

// Binding tables.

// SBTRayGensBuild builds the ray-gen table with maxSize payload bytes per
// record.
func (g *DeviceGroup) SBTRayGensBuild(maxSize int, w RecordWriter) error {
	return g.broadcastCallbacks(func(d *Device) error { return d.buildSBT(SBTRayGen, maxSize, w) })
}

// SBTMissProgsBuild builds the miss table.
func (g *DeviceGroup) SBTMissProgsBuild(maxSize int, w RecordWriter) error {
	return g.broadcastCallbacks(func(d *Device) error { return d.buildSBT(SBTMiss, maxSize, w) })
}

// SBTHitProgsBuild builds the hit table of geometryCount × rayTypeCount
// records.
func (g *DeviceGroup) SBTHitProgsBuild(maxSize int, w RecordWriter) error {
	return g.broadcastCallbacks(func(d *Device) error { return d.buildSBT(SBTHit, maxSize, w) })
}

// SBT returns device dev's table of kind k.
func (g *DeviceGroup) SBT(k SBTKind, dev int) (SBTInfo, error) {
	return read(g, dev, func(d *Device) (SBTInfo, error) { return d.SBT(k) })
}

// SBTRecord returns the header and payload of record i of device dev's
// table of kind k.
func (g *DeviceGroup) SBTRecord(k SBTKind, dev, i int) (RecordHeader, []byte, error) {
	type rec struct {
		h RecordHeader
		p []byte
	}
	r, err := read(g, dev, func(d *Device) (rec, error) {
		h, p, err := d.SBTRecord(k, i)
		return rec{h, p}, err
	})
	return r.h, r.p, err
}
