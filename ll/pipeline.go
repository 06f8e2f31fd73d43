// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package ll

import (
	"fmt"

	"github.com/gogpu/owl/backend"
	"github.com/gogpu/owl/internal/metrics"
)

// pipeline is a created pipeline and the device-specific identifier of every
// program it links, indexed by program handle (0 for empty slots).
type pipeline struct {
	ref        backend.PipelineRef
	generation uint64
	rayGen     []uint64
	miss       []uint64
	hit        []uint64
	// rayGenIndex maps a ray-gen handle to its index in the pipeline desc.
	rayGenIndex map[int]int
}

func (p *pipeline) identifiers(k SBTKind) []uint64 {
	switch k {
	case SBTRayGen:
		return p.rayGen
	case SBTMiss:
		return p.miss
	default:
		return p.hit
	}
}

// invalidatePipeline marks a built pipeline stale after a module or program
// table change.
func (d *Device) invalidatePipeline() {
	if d.pipelineSt == stateBuilt {
		d.pipelineSt = stateStale
	}
}

func (d *Device) dropPipeline() {
	if d.pipeline != nil {
		d.dev.DestroyPipeline(d.pipeline.ref)
		d.pipeline = nil
	}
	d.pipelineSt = stateDeclared
}

// pipelineReady returns the current pipeline or ErrNotBuilt.
func (d *Device) pipelineReady() (*pipeline, error) {
	switch {
	case d.pipeline == nil:
		return nil, fmt.Errorf("%w: pipeline has not been created", ErrNotBuilt)
	case d.pipelineSt == stateStale:
		return nil, fmt.Errorf("%w: pipeline is stale, programs or modules changed", ErrNotBuilt)
	}
	return d.pipeline, nil
}

type linker struct {
	d    *Device
	desc backend.PipelineDesc
	// slot records the program handle of each desc entry.
	slot []int
}

func (l *linker) add(kind backend.ProgramKind, id int, p program, anyHit, intersection string) error {
	m, err := l.d.modules.Get(p.module)
	if err != nil {
		return fmt.Errorf("%s program %d: %w", kind, id, err)
	}
	if !m.built() {
		return fmt.Errorf("%w: %s program %d: module %d is not built", ErrNotBuilt, kind, id, p.module)
	}
	for _, entry := range []string{p.entry, anyHit, intersection} {
		if entry != "" && !m.compiled.HasEntry(entry) {
			return fmt.Errorf("%w: %s program %d: module %d has no entry point %q",
				ErrBuildFailure, kind, id, p.module, entry)
		}
	}
	l.desc.Programs = append(l.desc.Programs, backend.ProgramDesc{
		Kind:         kind,
		Index:        id,
		Module:       m.ref,
		Entry:        p.entry,
		AnyHit:       anyHit,
		Intersection: intersection,
	})
	l.slot = append(l.slot, id)
	return nil
}

// createPipeline links every declared program against its built module.
// A successful rebuild invalidates every binding table.
func (d *Device) createPipeline() (err error) {
	defer func() { metrics.Build(metrics.StagePipeline, err) }()

	if !d.modulesBuilt {
		return fmt.Errorf("%w: modules have not been built", ErrNotBuilt)
	}
	l := &linker{d: d, desc: backend.PipelineDesc{Label: fmt.Sprintf("owl_device_%d", d.id)}}
	if err := d.rayGens.Each(func(i int, p *program) error {
		return l.add(backend.ProgramRayGen, i, *p, "", "")
	}); err != nil {
		return err
	}
	if err := d.misses.Each(func(i int, p *program) error {
		return l.add(backend.ProgramMiss, i, *p, "", "")
	}); err != nil {
		return err
	}
	if err := d.hits.Each(func(i int, p *hitProgram) error {
		return l.add(backend.ProgramHit, i, p.program, p.anyHit, p.intersection)
	}); err != nil {
		return err
	}

	created, err := d.dev.CreatePipeline(&l.desc)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildFailure, err)
	}

	d.dropPipeline()
	d.generation++
	pl := &pipeline{
		ref:         created.Ref,
		generation:  d.generation,
		rayGen:      make([]uint64, d.rayGens.Len()),
		miss:        make([]uint64, d.misses.Len()),
		hit:         make([]uint64, d.hits.Len()),
		rayGenIndex: make(map[int]int),
	}
	for i, p := range l.desc.Programs {
		id := created.Identifiers[i]
		switch p.Kind {
		case backend.ProgramRayGen:
			pl.rayGen[l.slot[i]] = id
			pl.rayGenIndex[l.slot[i]] = i
		case backend.ProgramMiss:
			pl.miss[l.slot[i]] = id
		case backend.ProgramHit:
			pl.hit[l.slot[i]] = id
		}
	}
	d.pipeline = pl
	d.pipelineSt = stateBuilt
	slogger().Debug("ll: pipeline created", "device", d.id, "programs", len(l.desc.Programs), "generation", d.generation)
	return nil
}
