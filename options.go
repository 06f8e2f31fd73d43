// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package owl

import (
	"log/slog"
	"os"

	"github.com/gogpu/owl/backend"
	"github.com/gogpu/owl/compiler"
	"github.com/gogpu/owl/ll"
)

// Option configures a Context during creation.
//
// Example:
//
//	// All adapters of the best available backend, errors as result codes.
//	c, err := owl.NewContext()
//
//	// Two software devices, exit on the first failed call.
//	c, err := owl.NewContext(
//	    owl.WithBackendName("software"),
//	    owl.WithDevices(0, 1),
//	    owl.WithFatalErrors(true),
//	)
type Option func(*contextOptions)

type contextOptions struct {
	backend     backend.Backend
	backendName string
	devices     []int
	fatal       bool
	exit        func(code int)
	logger      *slog.Logger
	device      []ll.Option
}

func defaultOptions() contextOptions {
	return contextOptions{
		fatal: defaultFatal,
		exit:  os.Exit,
	}
}

// WithBackend sets the accelerator backend. It takes precedence over
// WithBackendName.
func WithBackend(b backend.Backend) Option {
	return func(o *contextOptions) {
		o.backend = b
	}
}

// WithBackendName selects a registered backend by name. Without either
// option the highest-priority backend with an adapter is used.
func WithBackendName(name string) Option {
	return func(o *contextOptions) {
		o.backendName = name
	}
}

// WithDevices selects adapter ordinals. Without it every adapter is used.
func WithDevices(ordinals ...int) Option {
	return func(o *contextOptions) {
		o.devices = append([]int(nil), ordinals...)
	}
}

// WithFatalErrors selects fatal mode, in which a failed call logs the error
// and exits the process. The default is off, or on in builds tagged owldebug.
func WithFatalErrors(fatal bool) Option {
	return func(o *contextOptions) {
		o.fatal = fatal
	}
}

// WithExitFunc replaces os.Exit in fatal mode.
func WithExitFunc(exit func(code int)) Option {
	return func(o *contextOptions) {
		if exit != nil {
			o.exit = exit
		}
	}
}

// WithLogger installs l as the package logger, as SetLogger does.
func WithLogger(l *slog.Logger) Option {
	return func(o *contextOptions) {
		o.logger = l
	}
}

// WithCompiler sets the module compiler.
func WithCompiler(c compiler.Compiler) Option {
	return func(o *contextOptions) {
		o.device = append(o.device, ll.WithCompiler(c))
	}
}

// WithRayTypeCount sets the initial ray type count.
func WithRayTypeCount(n int) Option {
	return func(o *contextOptions) {
		o.device = append(o.device, ll.WithRayTypeCount(n))
	}
}
