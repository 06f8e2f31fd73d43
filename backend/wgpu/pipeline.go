// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/owl/backend"
)

// workgroupSize is the edge length of the square workgroup every ray-gen
// entry is dispatched with.
const workgroupSize = 8

type pipeline struct {
	layout hal.PipelineLayout
	// compute maps a program index to its compute pipeline; only ray-gen
	// programs get one.
	compute map[int]hal.ComputePipeline
}

func (p *pipeline) destroy(device hal.Device) {
	for _, cp := range p.compute {
		device.DestroyComputePipeline(cp)
	}
	if p.layout != nil {
		device.DestroyPipelineLayout(p.layout)
	}
}

// CreatePipeline creates one compute pipeline per ray-gen program and assigns
// every program an identifier.
func (d *Device) CreatePipeline(desc *backend.PipelineDesc) (*backend.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, backend.ErrClosed
	}

	label := desc.Label
	if label == "" {
		label = "owl_pipeline"
	}
	layout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label + "_layout",
		BindGroupLayouts: []hal.BindGroupLayout{},
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create pipeline layout: %w", err)
	}
	pl := &pipeline{layout: layout, compute: make(map[int]hal.ComputePipeline)}

	ref := backend.PipelineRef(d.nextRef)
	d.nextRef++
	ids := make([]uint64, len(desc.Programs))
	for i, p := range desc.Programs {
		shader, ok := d.modules[p.Module]
		if !ok {
			pl.destroy(d.device)
			return nil, fmt.Errorf("%w: module %d for %s program %d", backend.ErrUnknownResource, p.Module, p.Kind, p.Index)
		}
		if p.Kind == backend.ProgramRayGen {
			cp, err := d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
				Label:   fmt.Sprintf("%s_raygen_%d", label, p.Index),
				Layout:  layout,
				Compute: hal.ComputeState{Module: shader, EntryPoint: p.Entry},
			})
			if err != nil {
				pl.destroy(d.device)
				return nil, fmt.Errorf("wgpu: ray-gen program %d entry %q: %w", p.Index, p.Entry, err)
			}
			pl.compute[i] = cp
		}
		ids[i] = d.identifier(ref, p)
	}

	d.pipelines[ref] = pl
	return &backend.Pipeline{Ref: ref, Identifiers: ids}, nil
}

func (d *Device) identifier(ref backend.PipelineRef, p backend.ProgramDesc) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s/%d/%d/%d/%d/%s/%s/%s", d.info.Name, d.info.Ordinal, ref, p.Kind, p.Index, p.Entry, p.AnyHit, p.Intersection)
	if id := h.Sum64(); id != 0 {
		return id
	}
	return 1
}

// DestroyPipeline releases a pipeline's hal objects.
func (d *Device) DestroyPipeline(ref backend.PipelineRef) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if pl, ok := d.pipelines[ref]; ok {
		delete(d.pipelines, ref)
		pl.destroy(d.device)
	}
}

// Dispatch encodes one compute pass over the launch grid and submits it
// without waiting.
func (d *Device) Dispatch(desc *backend.DispatchDesc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return backend.ErrClosed
	}
	pl, ok := d.pipelines[desc.Pipeline]
	if !ok {
		return fmt.Errorf("%w: pipeline %d", backend.ErrUnknownResource, desc.Pipeline)
	}
	cp, ok := pl.compute[desc.RayGen]
	if !ok {
		return fmt.Errorf("wgpu: program %d is not a ray-gen program", desc.RayGen)
	}

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "owl_launch_encoder"})
	if err != nil {
		return fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("owl_launch"); err != nil {
		return fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "owl_launch_pass"})
	pass.SetPipeline(cp)
	pass.Dispatch((desc.Width+workgroupSize-1)/workgroupSize, (desc.Height+workgroupSize-1)/workgroupSize, 1)
	pass.End()
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("wgpu: end encoding: %w", err)
	}

	fence, err := d.device.CreateFence()
	if err != nil {
		d.device.FreeCommandBuffer(cmdBuf)
		return fmt.Errorf("wgpu: create fence: %w", err)
	}
	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		d.device.FreeCommandBuffer(cmdBuf)
		d.device.DestroyFence(fence)
		return fmt.Errorf("wgpu: submit: %w", err)
	}
	d.pending = append(d.pending, submission{cmd: cmdBuf, fence: fence})
	return nil
}

// Synchronize waits for every submitted launch.
func (d *Device) Synchronize() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return backend.ErrClosed
	}
	return d.drain()
}

// drain waits on and releases every pending submission. The caller holds d.mu.
func (d *Device) drain() error {
	var errs []error
	for _, s := range d.pending {
		ok, err := d.device.Wait(s.fence, 1, fenceTimeout)
		if err != nil || !ok {
			errs = append(errs, fmt.Errorf("wgpu: wait for launch: ok=%v err=%w", ok, err))
		}
		d.device.FreeCommandBuffer(s.cmd)
		d.device.DestroyFence(s.fence)
	}
	d.pending = d.pending[:0]
	return errors.Join(errs...)
}
