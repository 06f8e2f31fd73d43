// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package compiler turns program module source into something a device can load.
//
// The device layer treats compilation as bytes in, built-or-not out. A
// [Compiler] reports the module's entry points so that pipeline creation can
// check every program against the module it names. The default compiler is
// [Naga], which accepts WGSL and optionally emits SPIR-V.
package compiler

import (
	"errors"
	"fmt"
	"slices"
)

// ErrCompile is the root of every compilation failure.
var ErrCompile = errors.New("compiler: compilation failed")

// Stage identifies the pipeline stage an entry point was declared for.
type Stage uint8

// Entry point stages.
const (
	StageVertex Stage = iota
	StageFragment
	StageCompute
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	default:
		return fmt.Sprintf("Stage(%d)", uint8(s))
	}
}

// EntryPoint is a named, stage-tagged function exported by a module.
type EntryPoint struct {
	Name      string
	Stage     Stage
	Workgroup [3]uint32
}

// Module is the result of compiling one source blob.
type Module struct {
	Label       string
	Source      []byte
	SPIRV       []byte
	EntryPoints []EntryPoint
}

// HasEntry reports whether the module exports an entry point with this name.
func (m *Module) HasEntry(name string) bool {
	_, ok := m.Entry(name)
	return ok
}

// Entry looks up an entry point by name.
func (m *Module) Entry(name string) (EntryPoint, bool) {
	i := slices.IndexFunc(m.EntryPoints, func(e EntryPoint) bool { return e.Name == name })
	if i < 0 {
		return EntryPoint{}, false
	}
	return m.EntryPoints[i], true
}

// Compiler compiles module source.
type Compiler interface {
	Compile(label string, source []byte) (*Module, error)
}

// Func adapts a plain function to the Compiler interface.
type Func func(label string, source []byte) (*Module, error)

// Compile calls f.
func (f Func) Compile(label string, source []byte) (*Module, error) {
	return f(label, source)
}
