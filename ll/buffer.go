// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package ll

import (
	"fmt"

	"github.com/gogpu/owl/backend"
)

// buffer is one device's copy of a replicated buffer.
type buffer struct {
	kind      backend.MemoryKind
	elemCount int
	elemSize  int
	ptr       backend.Ptr
	size      uint64
}

func (d *Device) free(b *buffer) {
	d.release(b.ptr, b.size)
	b.ptr = 0
}

func bufferSize(elemCount, elemSize int) (uint64, error) {
	if elemCount < 0 || elemSize < 0 {
		return 0, fmt.Errorf("%w: buffer of %d elements of %d bytes", ErrInvalidValue, elemCount, elemSize)
	}
	return uint64(elemCount) * uint64(elemSize), nil
}

func (d *Device) createBuffer(id int, kind backend.MemoryKind, elemCount, elemSize int, init []byte) error {
	size, err := bufferSize(elemCount, elemSize)
	if err != nil {
		return err
	}
	if uint64(len(init)) > size {
		return fmt.Errorf("%w: %d initial bytes for a %d-byte buffer", ErrInvalidValue, len(init), size)
	}
	if id < 0 || id >= d.buffers.Len() {
		return fmt.Errorf("%w: buffer %d", ErrInvalidHandle, id)
	}

	ptr, err := d.alloc(size, kind)
	if err != nil {
		return fmt.Errorf("create %s buffer %d: %w", kind, id, err)
	}
	b := &buffer{kind: kind, elemCount: elemCount, elemSize: elemSize, ptr: ptr, size: size}
	if len(init) > 0 {
		if err := d.dev.Upload(ptr, 0, init); err != nil {
			d.free(b)
			return fmt.Errorf("upload buffer %d: %w", id, err)
		}
	}
	return d.buffers.Set(id, b)
}

func (d *Device) uploadBuffer(id int, offset uint64, data []byte) error {
	b, err := d.buffers.Get(id)
	if err != nil {
		return err
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("%w: %d bytes at offset %d into %d-byte buffer %d", ErrInvalidValue, len(data), offset, b.size, id)
	}
	return d.dev.Upload(b.ptr, offset, data)
}

func (d *Device) downloadBuffer(id int) ([]byte, error) {
	b, err := d.buffers.Get(id)
	if err != nil {
		return nil, err
	}
	out := make([]byte, b.size)
	if err := d.dev.Download(b.ptr, 0, out); err != nil {
		return nil, fmt.Errorf("download buffer %d: %w", id, err)
	}
	return out, nil
}

// BufferPointer returns this device's address of buffer id.
func (d *Device) BufferPointer(id int) (backend.Ptr, error) {
	b, err := d.buffers.Get(id)
	if err != nil {
		return 0, err
	}
	return b.ptr, nil
}

// BufferSize returns the byte size of buffer id.
func (d *Device) BufferSize(id int) (uint64, error) {
	b, err := d.buffers.Get(id)
	if err != nil {
		return 0, err
	}
	return b.size, nil
}
