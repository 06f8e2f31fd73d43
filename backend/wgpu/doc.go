// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu provides an accelerator backend on the gogpu/wgpu HAL.
//
// Device memory is a set of hal storage buffers. Each buffer is assigned a
// synthetic address from a per-device bump allocator so that the device layer
// can treat memory as flat pointers. Modules are loaded as WGSL shader modules
// and every ray-gen program becomes a compute pipeline; a launch is a compute
// dispatch over the launch grid in 8x8 workgroups.
//
// The backend opens Vulkan adapters by default. Any hal API can be injected
// with [NewWithAPI], and [NewShared] wraps a device owned by a host
// application through gpucontext.
//
// Importing the package registers it under [backend.NameWGPU]:
//
//	import _ "github.com/gogpu/owl/backend/wgpu"
package wgpu
