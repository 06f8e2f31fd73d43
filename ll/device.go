// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package ll

import (
	"fmt"

	"github.com/gogpu/owl/backend"
	"github.com/gogpu/owl/compiler"
	"github.com/gogpu/owl/internal/handle"
	"github.com/gogpu/owl/internal/metrics"
)

// buildState tracks a build product against the definitions it came from.
type buildState uint8

const (
	stateDeclared buildState = iota
	stateBuilt
	stateStale
)

func (s buildState) String() string {
	switch s {
	case stateDeclared:
		return "declared"
	case stateBuilt:
		return "built"
	case stateStale:
		return "stale"
	default:
		return fmt.Sprintf("buildState(%d)", uint8(s))
	}
}

// Device is one accelerator of a device group and the replicated tables it
// owns. Every mutation reaches a Device through its DeviceGroup; the exported
// methods only read.
type Device struct {
	id       int
	dev      backend.Device
	info     backend.AdapterInfo
	compiler compiler.Compiler

	buffers   *handle.Table[*buffer]
	modules   *handle.Table[*module]
	rayGens   *handle.Table[*program]
	misses    *handle.Table[*program]
	hits      *handle.Table[*hitProgram]
	geomTypes *handle.Table[*geomType]
	geoms     *handle.Table[*geometry]
	groups    *handle.Table[*group]

	rayTypeCount int
	modulesBuilt bool

	pipeline   *pipeline
	pipelineSt buildState
	generation uint64

	sbts   [sbtKindCount]*sbtTable
	params *buffer
}

func newDevice(id int, dev backend.Device, o options) *Device {
	d := &Device{
		id:           id,
		dev:          dev,
		info:         dev.Info(),
		compiler:     o.compiler,
		rayTypeCount: o.rayTypeCount,
	}
	d.buffers = handle.New[*buffer]("buffers", func(_ int, b *buffer) { d.free(b) })
	d.modules = handle.New[*module]("modules", func(_ int, m *module) { d.unload(m) })
	d.rayGens = handle.New[*program]("ray-gen programs", nil)
	d.misses = handle.New[*program]("miss programs", nil)
	d.hits = handle.New[*hitProgram]("hit programs", nil)
	d.geomTypes = handle.New[*geomType]("geometry types", nil)
	d.geoms = handle.New[*geometry]("geometries", nil)
	d.groups = handle.New[*group]("groups", func(_ int, g *group) { d.freeAccel(g) })
	metrics.DeviceOpened()
	return d
}

// ID returns the device's index within its group.
func (d *Device) ID() int { return d.id }

// Info returns the adapter the device was opened on.
func (d *Device) Info() backend.AdapterInfo { return d.info }

// Backend returns the underlying accelerator device.
func (d *Device) Backend() backend.Device { return d.dev }

// RayTypeCount returns the number of ray types hit records are laid out for.
func (d *Device) RayTypeCount() int { return d.rayTypeCount }

// alloc allocates device memory and accounts for it.
func (d *Device) alloc(size uint64, kind backend.MemoryKind) (backend.Ptr, error) {
	p, err := d.dev.Alloc(size, kind)
	if err != nil {
		return 0, err
	}
	metrics.Allocated(d.info.Backend, d.info.Ordinal, int64(size))
	return p, nil
}

func (d *Device) release(p backend.Ptr, size uint64) {
	if p == 0 {
		return
	}
	if err := d.dev.Free(p); err != nil {
		slogger().Warn("ll: free failed", "device", d.id, "ptr", uint64(p), "err", err)
		return
	}
	metrics.Allocated(d.info.Backend, d.info.Ordinal, -int64(size))
}

// destroy releases every table in reverse creation order, then the device.
func (d *Device) destroy() error {
	for k := range d.sbts {
		d.dropSBT(SBTKind(k))
	}
	if d.params != nil {
		d.free(d.params)
		d.params = nil
	}
	d.dropPipeline()
	d.groups.Destroy()
	d.geoms.Destroy()
	d.geomTypes.Destroy()
	d.hits.Destroy()
	d.misses.Destroy()
	d.rayGens.Destroy()
	d.modules.Destroy()
	d.buffers.Destroy()
	metrics.DeviceClosed()
	return d.dev.Close()
}
