// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package ll is the low-level device layer of owl.
//
// A [DeviceGroup] holds one [Device] per accelerator. Each device owns
// integer-indexed tables of modules, programs, geometry types, geometries,
// groups and buffers; the group applies every mutation to all devices so a
// handle names the same logical object everywhere, while storage addresses,
// traversables and binding tables stay per device.
//
// Build steps run in a fixed order:
//
//	BuildModules -> CreatePipeline -> BuildAccel (bottom-up) -> SBT*Build -> Launch2D
//
// Each build product tracks whether the definitions it came from changed
// since; using a missing or stale product fails with [ErrNotBuilt].
//
// Errors wrap one of [ErrInvalidHandle], [ErrResourceInUse], [ErrNotBuilt],
// [ErrDeviceInit], [ErrBuildFailure] or [ErrInvalidValue].
package ll
