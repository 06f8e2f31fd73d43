// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package owl

import (
	"fmt"
	"sync"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/owl/backend"
	"github.com/gogpu/owl/ll"
)

// Types shared with the device layer. Record writers and bounds routines
// receive the Device they run for and query addresses through it; calls on
// the Context from inside them fail with InvalidValue.
type (
	Device           = ll.Device
	SBTKind          = ll.SBTKind
	SBTInfo          = ll.SBTInfo
	RecordHeader     = ll.RecordHeader
	RecordWriter     = ll.RecordWriter
	RecordWriterFunc = ll.RecordWriterFunc
	HitEntries       = ll.HitEntries
	BoundsFunc       = ll.BoundsFunc
)

// Binding table kinds.
const (
	SBTRayGen = ll.SBTRayGen
	SBTMiss   = ll.SBTMiss
	SBTHit    = ll.SBTHit
)

// Context is the call boundary over a device group. Every call returns a
// Result. In fatal mode a failure is logged and the process exits; otherwise
// the error is recorded and is available from LastError until the next
// failure or ClearError.
//
// Context is safe for concurrent use.
type Context struct {
	group *ll.DeviceGroup
	fatal bool
	exit  func(int)

	mu      sync.Mutex
	lastErr error
}

// NewContext opens a device group as configured by opts.
func NewContext(opts ...Option) (*Context, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger != nil {
		SetLogger(o.logger)
	}

	c := &Context{fatal: o.fatal, exit: o.exit}
	b := o.backend
	if b == nil {
		var err error
		if b, err = backend.Lookup(o.backendName); err != nil {
			err = fmt.Errorf("%w: %w", ll.ErrDeviceInit, err)
			c.fail("NewContext", err)
			return nil, err
		}
	}
	g, err := ll.NewDeviceGroup(b, o.devices, o.device...)
	if err != nil {
		c.fail("NewContext", err)
		return nil, err
	}
	c.group = g
	Logger().Info("owl: context created", "backend", b.Name(), "devices", g.DeviceCount(), "fatal", c.fatal)
	return c, nil
}

// fail records err, and in fatal mode logs it and exits.
func (c *Context) fail(op string, err error) Result {
	r := resultOf(err)
	c.mu.Lock()
	c.lastErr = fmt.Errorf("%s: %w", op, err)
	c.mu.Unlock()
	if c.fatal {
		Logger().Error("owl: fatal error", "op", op, "result", r, "err", err)
		c.exit(1)
	}
	return r
}

func (c *Context) check(op string, err error) Result {
	if err == nil {
		return Success
	}
	return c.fail(op, err)
}

// LastError returns the text of the last recorded failure, or "".
func (c *Context) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastErr == nil {
		return ""
	}
	return c.lastErr.Error()
}

// Err returns the last recorded failure for matching with errors.Is.
func (c *Context) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// ClearError forgets the last recorded failure.
func (c *Context) ClearError() {
	c.mu.Lock()
	c.lastErr = nil
	c.mu.Unlock()
}

// Group returns the underlying device group.
func (c *Context) Group() *ll.DeviceGroup { return c.group }

// Destroy releases every device. Calling it again is a no-op.
func (c *Context) Destroy() Result {
	return c.check("Destroy", c.group.Destroy())
}

// DeviceCount returns the number of live devices.
func (c *Context) DeviceCount() int { return c.group.DeviceCount() }

// SetRayTypeCount sets the number of ray types.
func (c *Context) SetRayTypeCount(n int) Result {
	return c.check("SetRayTypeCount", c.group.SetRayTypeCount(n))
}

// Buffers.

// AllocBuffers sizes the buffer table.
func (c *Context) AllocBuffers(n int) Result {
	return c.check("AllocBuffers", c.group.AllocBuffers(n))
}

// DeviceBufferCreate creates buffer id in device memory on every device.
func (c *Context) DeviceBufferCreate(id, elemCount, elemSize int, init []byte) Result {
	return c.check("DeviceBufferCreate", c.group.DeviceBufferCreate(id, elemCount, elemSize, init))
}

// HostPinnedBufferCreate creates buffer id in host-pinned memory on every
// device, filled from init when it is non-nil.
func (c *Context) HostPinnedBufferCreate(id, elemCount, elemSize int, init []byte) Result {
	return c.check("HostPinnedBufferCreate", c.group.HostPinnedBufferCreate(id, elemCount, elemSize, init))
}

// BufferUpload writes data at offset into buffer id on every device.
func (c *Context) BufferUpload(id int, offset uint64, data []byte) Result {
	return c.check("BufferUpload", c.group.BufferUpload(id, offset, data))
}

// BufferDownload reads device dev's copy of buffer id.
func (c *Context) BufferDownload(id, dev int) ([]byte, Result) {
	data, err := c.group.BufferDownload(id, dev)
	return data, c.check("BufferDownload", err)
}

// BufferPointer returns device dev's address of buffer id, or 0 on failure.
func (c *Context) BufferPointer(id, dev int) uint64 {
	p, err := c.group.BufferPointer(id, dev)
	c.check("BufferPointer", err)
	return uint64(p)
}

// BufferSize returns the byte size of buffer id, or 0 on failure.
func (c *Context) BufferSize(id int) uint64 {
	n, err := c.group.BufferSize(id)
	c.check("BufferSize", err)
	return n
}

// DestroyBuffer frees buffer id on every device.
func (c *Context) DestroyBuffer(id int) Result {
	return c.check("DestroyBuffer", c.group.DestroyBuffer(id))
}

// Modules and programs.

// AllocModules sizes the module table.
func (c *Context) AllocModules(n int) Result {
	return c.check("AllocModules", c.group.AllocModules(n))
}

// SetModule stores the source of module id.
func (c *Context) SetModule(id int, source []byte) Result {
	return c.check("SetModule", c.group.SetModule(id, source))
}

// BuildModules compiles every module on every device.
func (c *Context) BuildModules() Result {
	return c.check("BuildModules", c.group.BuildModules())
}

// AllocRayGens sizes the ray-gen program table.
func (c *Context) AllocRayGens(n int) Result {
	return c.check("AllocRayGens", c.group.AllocRayGens(n))
}

// AllocMissProgs sizes the miss program table.
func (c *Context) AllocMissProgs(n int) Result {
	return c.check("AllocMissProgs", c.group.AllocMissProgs(n))
}

// AllocHitProgs sizes the hit program table.
func (c *Context) AllocHitProgs(n int) Result {
	return c.check("AllocHitProgs", c.group.AllocHitProgs(n))
}

// SetRayGen declares ray-gen program id.
func (c *Context) SetRayGen(id, module int, entry string, dataSize int) Result {
	return c.check("SetRayGen", c.group.SetRayGen(id, module, entry, dataSize))
}

// SetMissProg declares miss program id.
func (c *Context) SetMissProg(id, module int, entry string, dataSize int) Result {
	return c.check("SetMissProg", c.group.SetMissProg(id, module, entry, dataSize))
}

// SetHitProg declares hit program id for ray type rayType.
func (c *Context) SetHitProg(id, module int, entry string, dataSize, rayType int) Result {
	return c.check("SetHitProg", c.group.SetHitProg(id, module, entry, dataSize, rayType))
}

// SetHitProgEntries declares hit program id with any-hit and intersection
// entries.
func (c *Context) SetHitProgEntries(id, module int, e HitEntries, dataSize, rayType int) Result {
	return c.check("SetHitProgEntries", c.group.SetHitProgEntries(id, module, e, dataSize, rayType))
}

// AllocGeomTypes sizes the geometry type table.
func (c *Context) AllocGeomTypes(n int) Result {
	return c.check("AllocGeomTypes", c.group.AllocGeomTypes(n))
}

// SetGeomType declares geometry type id.
func (c *Context) SetGeomType(id, dataSize int) Result {
	return c.check("SetGeomType", c.group.SetGeomType(id, dataSize))
}

// GeomTypeSetHitProg binds a hit program to a ray type of geometry type id.
func (c *Context) GeomTypeSetHitProg(id, rayType, hitProg int) Result {
	return c.check("GeomTypeSetHitProg", c.group.GeomTypeSetHitProg(id, rayType, hitProg))
}

// CreatePipeline links every declared program on every device.
func (c *Context) CreatePipeline() Result {
	return c.check("CreatePipeline", c.group.CreatePipeline())
}

// Geometry.

// AllocGeoms sizes the geometry table.
func (c *Context) AllocGeoms(n int) Result {
	return c.check("AllocGeoms", c.group.AllocGeoms(n))
}

// CreateTrianglesGeom declares triangle mesh id.
func (c *Context) CreateTrianglesGeom(id, geomType, logicalHitGroup int) Result {
	return c.check("CreateTrianglesGeom", c.group.CreateTrianglesGeom(id, geomType, logicalHitGroup))
}

// TrianglesSetVertexBuffers sets one vertex buffer per motion time step.
func (c *Context) TrianglesSetVertexBuffers(id int, buffers []int, count, stride, offset int) Result {
	return c.check("TrianglesSetVertexBuffers", c.group.TrianglesSetVertexBuffers(id, buffers, count, stride, offset))
}

// TrianglesSetIndexBuffer sets the index buffer of triangle mesh id.
func (c *Context) TrianglesSetIndexBuffer(id, buffer, count, stride, offset int) Result {
	return c.check("TrianglesSetIndexBuffer", c.group.TrianglesSetIndexBuffer(id, buffer, count, stride, offset))
}

// CreateUserGeom declares user geometry id.
func (c *Context) CreateUserGeom(id, geomType, logicalHitGroup, primCount int) Result {
	return c.check("CreateUserGeom", c.group.CreateUserGeom(id, geomType, logicalHitGroup, primCount))
}

// UserGeomSetPrimBuffer sets the primitive buffer of user geometry id.
func (c *Context) UserGeomSetPrimBuffer(id, buffer int) Result {
	return c.check("UserGeomSetPrimBuffer", c.group.UserGeomSetPrimBuffer(id, buffer))
}

// UserGeomSetBounds sets the bounds routine of user geometry id.
func (c *Context) UserGeomSetBounds(id int, fn BoundsFunc) Result {
	return c.check("UserGeomSetBounds", c.group.UserGeomSetBounds(id, fn))
}

// Groups.

// AllocGroups sizes the group table.
func (c *Context) AllocGroups(n int) Result {
	return c.check("AllocGroups", c.group.AllocGroups(n))
}

// CreateGeomGroup declares bottom-level group id.
func (c *Context) CreateGeomGroup(id int, geoms []int) Result {
	return c.check("CreateGeomGroup", c.group.CreateGeomGroup(id, geoms))
}

// CreateInstanceGroup declares top-level group id with count instances.
func (c *Context) CreateInstanceGroup(id, count int) Result {
	return c.check("CreateInstanceGroup", c.group.CreateInstanceGroup(id, count))
}

// InstanceGroupSetChild sets the child of instance index of group id.
func (c *Context) InstanceGroupSetChild(id, index, child int) Result {
	return c.check("InstanceGroupSetChild", c.group.InstanceGroupSetChild(id, index, child))
}

// InstanceGroupSetTransform sets the transform of instance index of group id.
func (c *Context) InstanceGroupSetTransform(id, index int, xfm f32.Aff4) Result {
	return c.check("InstanceGroupSetTransform", c.group.InstanceGroupSetTransform(id, index, xfm))
}

// BuildAccel builds the acceleration structure of group id on every device.
func (c *Context) BuildAccel(id int) Result {
	return c.check("BuildAccel", c.group.BuildAccel(id))
}

// GroupTraversable returns the traversable of group id on device dev, or 0
// on failure.
func (c *Context) GroupTraversable(id, dev int) uint64 {
	p, err := c.group.GroupTraversable(id, dev)
	c.check("GroupTraversable", err)
	return uint64(p)
}

// Binding tables and launch.

// SBTRayGensBuild builds the ray-gen binding table.
func (c *Context) SBTRayGensBuild(maxSize int, w RecordWriter) Result {
	return c.check("SBTRayGensBuild", c.group.SBTRayGensBuild(maxSize, w))
}

// SBTMissProgsBuild builds the miss binding table.
func (c *Context) SBTMissProgsBuild(maxSize int, w RecordWriter) Result {
	return c.check("SBTMissProgsBuild", c.group.SBTMissProgsBuild(maxSize, w))
}

// SBTHitProgsBuild builds the hit binding table.
func (c *Context) SBTHitProgsBuild(maxSize int, w RecordWriter) Result {
	return c.check("SBTHitProgsBuild", c.group.SBTHitProgsBuild(maxSize, w))
}

// SBT returns device dev's binding table of kind k.
func (c *Context) SBT(k SBTKind, dev int) (SBTInfo, Result) {
	info, err := c.group.SBT(k, dev)
	return info, c.check("SBT", err)
}

// Launch2D dispatches ray-gen program rayGen over width × height on every
// device.
func (c *Context) Launch2D(rayGen, width, height, paramsSize int, params RecordWriter) Result {
	return c.check("Launch2D", c.group.Launch2D(rayGen, width, height, paramsSize, params))
}

// Synchronize waits for every device to finish its launches.
func (c *Context) Synchronize() Result {
	return c.check("Synchronize", c.group.Synchronize())
}
