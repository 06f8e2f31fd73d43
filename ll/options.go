// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package ll

import "github.com/gogpu/owl/compiler"

// DefaultRayTypeCount is the number of ray types a new device group starts with.
const DefaultRayTypeCount = 1

// options holds device group configuration.
type options struct {
	compiler     compiler.Compiler
	rayTypeCount int
}

func defaultOptions() options {
	return options{
		compiler:     compiler.Cached(&compiler.Naga{}, 0),
		rayTypeCount: DefaultRayTypeCount,
	}
}

// Option configures a DeviceGroup.
type Option func(*options)

// WithCompiler sets the module compiler. The default is a non-validating
// naga WGSL compiler shared by the group's devices, so each distinct module
// source is compiled once.
func WithCompiler(c compiler.Compiler) Option {
	return func(o *options) {
		if c != nil {
			o.compiler = c
		}
	}
}

// WithRayTypeCount sets the initial ray type count. Values below one are ignored.
func WithRayTypeCount(n int) Option {
	return func(o *options) {
		if n >= 1 {
			o.rayTypeCount = n
		}
	}
}
