// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package owl is a multi-device ray tracing resource layer for Go.
//
// # Overview
//
// owl manages the resources a ray tracer keeps on its accelerators
// (program modules, geometries, acceleration structures and buffers) across
// one or more devices, and assembles the per-device shader binding tables
// that map scene objects to programs and their data.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/owl"
//	    _ "github.com/gogpu/owl/backend/software"
//	)
//
//	c, err := owl.NewContext(owl.WithBackendName("software"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Destroy()
//
//	c.AllocModules(1)
//	c.SetModule(0, wgslSource)
//	c.BuildModules()
//	c.AllocRayGens(1)
//	c.SetRayGen(0, 0, "ray_gen", 16)
//	c.CreatePipeline()
//	if r := c.SBTRayGensBuild(16, writer); !r.OK() {
//	    log.Fatal(c.LastError())
//	}
//
// # Handles
//
// Every resource is named by an integer handle into a table that is sized
// up front with an Alloc call. The same handle names the same logical
// resource on every device; addresses, traversables and binding tables
// differ per device and are queried with an explicit device index.
//
// # Build order
//
//	BuildModules -> CreatePipeline -> BuildAccel (children first) -> SBT builds -> Launch2D
//
// Changing a definition marks what was built from it stale; using a stale
// product returns NotBuilt until it is rebuilt.
//
// # Errors
//
// Context calls return a [Result]. In fatal mode, selected with
// [WithFatalErrors] or by building with the owldebug tag, a failure is logged
// and the process exits. Otherwise the failure text is kept for
// [Context.LastError] and queries such as [Context.BufferPointer] return 0.
//
// # Architecture
//
//   - owl: call boundary, result codes, logging
//   - ll: device group, handle tables, build steps, binding tables
//   - backend: accelerator interface and registry; backend/software and
//     backend/wgpu implement it
//   - compiler: pluggable module compiler, naga WGSL by default
//   - bvh: host-side bounding volume hierarchy builder
package owl

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
