// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package backend defines the accelerator abstraction the device layer runs on.
//
// A [Backend] enumerates adapters and opens them as [Device] values. A device
// owns linear memory addressed by [Ptr], loaded program modules and pipelines,
// and accepts 2D dispatches. Backends register themselves by name from init
// functions; [Default] picks the first one in priority order that reports an
// adapter.
package backend

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/owl/compiler"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when no registered backend can serve.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNoAdapter is returned when an ordinal names no adapter.
	ErrNoAdapter = errors.New("backend: no such adapter")

	// ErrOutOfMemory is returned when an allocation does not fit.
	ErrOutOfMemory = errors.New("backend: out of memory")

	// ErrInvalidPointer is returned for addresses that are not live allocations.
	ErrInvalidPointer = errors.New("backend: invalid pointer")

	// ErrOutOfRange is returned for transfers past the end of an allocation.
	ErrOutOfRange = errors.New("backend: transfer out of range")

	// ErrClosed is returned by every operation on a closed device.
	ErrClosed = errors.New("backend: device closed")

	// ErrUnknownResource is returned for module or pipeline references the
	// device does not hold.
	ErrUnknownResource = errors.New("backend: unknown resource")
)

// Ptr is a device address. Zero is never a valid allocation.
type Ptr uint64

// MemoryKind selects where an allocation lives.
type MemoryKind uint8

// Memory kinds.
const (
	MemoryDevice MemoryKind = iota
	MemoryHostPinned
)

// String returns the memory kind name.
func (k MemoryKind) String() string {
	switch k {
	case MemoryDevice:
		return "device"
	case MemoryHostPinned:
		return "host-pinned"
	default:
		return fmt.Sprintf("MemoryKind(%d)", uint8(k))
	}
}

// ModuleRef identifies a module loaded on one device. Zero is invalid.
type ModuleRef uint64

// PipelineRef identifies a pipeline created on one device. Zero is invalid.
type PipelineRef uint64

// AdapterInfo describes one enumerated adapter.
type AdapterInfo struct {
	Ordinal int
	Name    string
	Type    gputypes.DeviceType
	Backend string
}

// MemoryStats reports a device's live allocations.
type MemoryStats struct {
	Allocations    int
	AllocatedBytes uint64
}

// ProgramKind is the role a program plays in a pipeline.
type ProgramKind uint8

// Program kinds.
const (
	ProgramRayGen ProgramKind = iota + 1
	ProgramMiss
	ProgramHit
)

// String returns the program kind name.
func (k ProgramKind) String() string {
	switch k {
	case ProgramRayGen:
		return "raygen"
	case ProgramMiss:
		return "miss"
	case ProgramHit:
		return "hit"
	default:
		return fmt.Sprintf("ProgramKind(%d)", uint8(k))
	}
}

// ProgramDesc names one program of a pipeline.
type ProgramDesc struct {
	Kind   ProgramKind
	Index  int
	Module ModuleRef
	Entry  string
	// AnyHit and Intersection are optional entries of hit programs, resolved
	// in the same module.
	AnyHit       string
	Intersection string
}

// PipelineDesc describes a pipeline to create.
type PipelineDesc struct {
	Label    string
	Programs []ProgramDesc
}

// Pipeline is a created pipeline. Identifiers[i] is the device-specific
// program identifier of PipelineDesc.Programs[i]; binding-table headers carry it.
type Pipeline struct {
	Ref         PipelineRef
	Identifiers []uint64
}

// Region is a binding table as seen by a dispatch.
type Region struct {
	Ptr    Ptr
	Stride uint32
	Count  uint32
}

// DispatchDesc describes one 2D launch.
type DispatchDesc struct {
	Pipeline PipelineRef
	// RayGen is the index into PipelineDesc.Programs of the ray-gen program.
	RayGen int
	Width  uint32
	Height uint32
	Params Ptr
	// ParamsSize is the byte length of the launch parameter block.
	ParamsSize uint64
	RayGens    Region
	Misses     Region
	Hits       Region
}

// Backend enumerates and opens adapters.
type Backend interface {
	// Name returns the backend identifier, as registered.
	Name() string

	// Probe lists the adapters present. An error means the backend cannot run
	// on this machine at all.
	Probe() ([]AdapterInfo, error)

	// Open creates a device on the adapter with the given ordinal.
	Open(ordinal int) (Device, error)
}

// Device is one opened accelerator.
//
// Device methods are not required to be safe for concurrent use.
type Device interface {
	Info() AdapterInfo

	Alloc(size uint64, kind MemoryKind) (Ptr, error)
	Free(p Ptr) error
	Upload(p Ptr, offset uint64, data []byte) error
	Download(p Ptr, offset uint64, dst []byte) error

	LoadModule(m *compiler.Module) (ModuleRef, error)
	UnloadModule(ref ModuleRef)

	CreatePipeline(desc *PipelineDesc) (*Pipeline, error)
	DestroyPipeline(ref PipelineRef)

	// Dispatch queues a launch and returns without waiting for it.
	Dispatch(desc *DispatchDesc) error
	// Synchronize blocks until every queued launch has completed.
	Synchronize() error

	MemoryStats() MemoryStats

	// Close releases everything the device holds. Close is idempotent.
	Close() error
}
