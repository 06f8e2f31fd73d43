// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package ll

import (
	"fmt"
	"math"

	"github.com/gogpu/owl/backend"
	"github.com/gogpu/owl/internal/metrics"
)

// Launch2D dispatches ray-gen program rayGen over a width × height grid on
// every device. When paramsSize is positive, params fills a zeroed
// paramsSize-byte launch parameter block per device (record index 0) that
// is uploaded before dispatch. Launch2D does not wait for completion.
func (g *DeviceGroup) Launch2D(rayGen, width, height, paramsSize int, params RecordWriter) error {
	if width < 0 || height < 0 || paramsSize < 0 {
		return fmt.Errorf("%w: launch %dx%d with %d param bytes", ErrInvalidValue, width, height, paramsSize)
	}
	if uint64(width) > math.MaxUint32 || uint64(height) > math.MaxUint32 {
		return fmt.Errorf("%w: launch %dx%d exceeds the 32-bit grid", ErrInvalidValue, width, height)
	}
	return g.broadcastCallbacks(func(d *Device) error {
		return d.launch(rayGen, uint32(width), uint32(height), paramsSize, params)
	})
}

// Synchronize blocks until every device has completed its launches.
func (g *DeviceGroup) Synchronize() error {
	return g.broadcast(func(d *Device) error { return d.dev.Synchronize() })
}

func (d *Device) launch(rayGen int, width, height uint32, paramsSize int, params RecordWriter) error {
	pl, err := d.pipelineReady()
	if err != nil {
		return err
	}
	index, ok := pl.rayGenIndex[rayGen]
	if !ok {
		return fmt.Errorf("%w: ray-gen program %d is not part of the pipeline", ErrInvalidHandle, rayGen)
	}
	var tables [sbtKindCount]SBTInfo
	for k := range tables {
		t, err := d.sbtReady(SBTKind(k))
		if err != nil {
			return err
		}
		tables[k] = t.info
	}

	desc := &backend.DispatchDesc{
		Pipeline: pl.ref,
		RayGen:   index,
		Width:    width,
		Height:   height,
		RayGens: backend.Region{
			Ptr:    tables[SBTRayGen].Ptr + backend.Ptr(rayGen*tables[SBTRayGen].Stride),
			Stride: uint32(tables[SBTRayGen].Stride),
			Count:  1,
		},
		Misses: tables[SBTMiss].region(),
		Hits:   tables[SBTHit].region(),
	}
	if paramsSize > 0 {
		p, err := d.writeParams(paramsSize, params)
		if err != nil {
			return err
		}
		desc.Params, desc.ParamsSize = p, uint64(paramsSize)
	}
	if width == 0 || height == 0 {
		return nil
	}
	if err := d.dev.Dispatch(desc); err != nil {
		return fmt.Errorf("launch ray-gen %d: %w", rayGen, err)
	}
	metrics.Launch()
	slogger().Debug("ll: launch", "device", d.id, "raygen", rayGen, "width", width, "height", height)
	return nil
}

// writeParams fills and uploads the launch parameter block, growing the
// device's parameter buffer when needed.
func (d *Device) writeParams(size int, w RecordWriter) (backend.Ptr, error) {
	if d.params == nil || d.params.size < uint64(size) {
		if d.params != nil {
			d.free(d.params)
			d.params = nil
		}
		ptr, err := d.alloc(uint64(size), backend.MemoryHostPinned)
		if err != nil {
			return 0, fmt.Errorf("launch params: %w", err)
		}
		d.params = &buffer{kind: backend.MemoryHostPinned, elemCount: 1, elemSize: size, ptr: ptr, size: uint64(size)}
	}
	block := make([]byte, size)
	if w != nil {
		if err := w.WriteRecord(d, 0, block); err != nil {
			return 0, fmt.Errorf("%w: launch params on device %d: %w", ErrInvalidValue, d.id, err)
		}
	}
	if err := d.dev.Upload(d.params.ptr, 0, block); err != nil {
		return 0, fmt.Errorf("launch params upload: %w", err)
	}
	return d.params.ptr, nil
}
