// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compiler

import (
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"
)

// Naga compiles WGSL modules with gogpu/naga.
//
// The zero value parses and lowers only. Set Validate to run IR validation and
// EmitSPIRV to attach a SPIR-V binary to the result.
type Naga struct {
	Validate     bool
	EmitSPIRV    bool
	SPIRVVersion spirv.Version
	Debug        bool
}

// NewNaga returns a Naga compiler that validates and emits SPIR-V 1.3.
func NewNaga() *Naga {
	return &Naga{
		Validate:     true,
		EmitSPIRV:    true,
		SPIRVVersion: spirv.Version1_3,
	}
}

// Compile parses and lowers WGSL source and collects its entry points.
func (n *Naga) Compile(label string, source []byte) (*Module, error) {
	if len(source) == 0 {
		return nil, fmt.Errorf("%w: %s: empty source", ErrCompile, label)
	}
	src := string(source)

	ast, err := naga.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCompile, label, err)
	}
	m, err := naga.LowerWithSource(ast, src)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: lower: %w", ErrCompile, label, err)
	}

	if n.Validate {
		verrs, err := naga.Validate(m)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: validate: %w", ErrCompile, label, err)
		}
		if len(verrs) > 0 {
			return nil, fmt.Errorf("%w: %s: validate: %w", ErrCompile, label, &verrs[0])
		}
	}

	out := &Module{
		Label:       label,
		Source:      append([]byte(nil), source...),
		EntryPoints: entryPoints(m),
	}

	if n.EmitSPIRV {
		version := n.SPIRVVersion
		if version == (spirv.Version{}) {
			version = spirv.Version1_3
		}
		out.SPIRV, err = naga.GenerateSPIRV(m, spirv.Options{Version: version, Debug: n.Debug})
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrCompile, label, err)
		}
	}
	return out, nil
}

func entryPoints(m *ir.Module) []EntryPoint {
	eps := make([]EntryPoint, 0, len(m.EntryPoints))
	for _, ep := range m.EntryPoints {
		eps = append(eps, EntryPoint{
			Name:      ep.Name,
			Stage:     stageOf(ep.Stage),
			Workgroup: ep.Workgroup,
		})
	}
	return eps
}

func stageOf(s ir.ShaderStage) Stage {
	switch s {
	case ir.StageVertex:
		return StageVertex
	case ir.StageFragment:
		return StageFragment
	default:
		return StageCompute
	}
}
