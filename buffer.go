// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"fmt"

	"github.com/gogpu/rhi/driver"
)

// BufferDesc describes a buffer.
type BufferDesc struct {
	Label  string
	Size   uint64
	Usage  BufferUsage
	Memory MemoryType

	// Data optionally initializes the start of the buffer. It may be
	// shorter than Size; the rest is zero.
	Data []byte
}

// Buffer is a linear block of device memory.
type Buffer struct {
	resource
	drv    driver.Buffer
	size   uint64
	usage  BufferUsage
	memory MemoryType
}

// CreateBuffer creates a buffer. Host transfers through CopyFromHost and
// ToHost are always allowed; encoder operations require the matching
// usage flags.
func (d *Device) CreateBuffer(desc BufferDesc) (*Buffer, error) {
	if err := d.usable(); err != nil {
		return nil, err
	}
	if desc.Size == 0 {
		return nil, fmt.Errorf("%w: buffer %q has zero size", ErrValidation, desc.Label)
	}
	if lim := d.info.Limits.MaxBufferSize; lim != 0 && desc.Size > lim {
		return nil, fmt.Errorf("%w: buffer size %d exceeds limit %d", ErrCapability, desc.Size, lim)
	}
	if uint64(len(desc.Data)) > desc.Size {
		return nil, fmt.Errorf("%w: %d bytes of initial data for a %d byte buffer", ErrSizeMismatch, len(desc.Data), desc.Size)
	}

	nb, err := d.drv.CreateBuffer(driver.BufferDesc{
		Label:  desc.Label,
		Size:   desc.Size,
		Usage:  desc.Usage,
		Memory: desc.Memory,
	})
	if err != nil {
		return nil, fmt.Errorf("rhi: create buffer %q: %w", desc.Label, err)
	}

	b := &Buffer{drv: nb, size: desc.Size, usage: desc.Usage, memory: desc.Memory}
	b.init(d, KindBuffer, desc.Label, desc.Size, nb.Destroy)

	if len(desc.Data) > 0 {
		if err := b.CopyFromHost(0, desc.Data); err != nil {
			b.Destroy()
			return nil, err
		}
	}
	return b, nil
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 { return b.size }

// Usage returns the usage flags the buffer was created with.
func (b *Buffer) Usage() BufferUsage { return b.usage }

// Memory returns the memory type of the buffer.
func (b *Buffer) Memory() MemoryType { return b.memory }

// Destroy releases the buffer once in-flight work referencing it has
// completed. Recording commands that use the buffer afterwards fails with
// ErrUseAfterFree.
func (b *Buffer) Destroy() { b.destroy() }

// View returns a view of size bytes starting at offset. A zero size means
// the rest of the buffer.
func (b *Buffer) View(offset, size uint64) (BufferView, error) {
	size, err := b.checkRange(offset, size)
	if err != nil {
		return BufferView{}, err
	}
	return BufferView{buffer: b, offset: offset, size: size}, nil
}

// checkRange resolves a zero size to the rest of the buffer and checks
// that [offset, offset+size) fits.
func (b *Buffer) checkRange(offset, size uint64) (uint64, error) {
	if offset > b.size {
		return 0, fmt.Errorf("%w: offset %d beyond %v of size %d", ErrRange, offset, &b.resource, b.size)
	}
	if size == 0 {
		size = b.size - offset
	}
	if size > b.size-offset {
		return 0, fmt.Errorf("%w: range [%d, %d) beyond %v of size %d", ErrRange, offset, offset+size, &b.resource, b.size)
	}
	return size, nil
}

func (b *Buffer) requireUsage(u BufferUsage, op string) error {
	if !b.usage.Has(u) {
		return fmt.Errorf("%w: %s needs %v on %v (has %v)", ErrUsage, op, u, &b.resource, b.usage)
	}
	return nil
}

// CopyFromHost writes data at offset and waits for the write to complete.
func (b *Buffer) CopyFromHost(offset uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := b.check(b.dev); err != nil {
		return err
	}
	if _, err := b.checkRange(offset, uint64(len(data))); err != nil {
		return err
	}
	return b.dev.record("buffer upload", func(e *CommandEncoder) error {
		e.wrap(&b.resource, driver.UploadBuffer{Dst: b.drv, Offset: offset, Data: clone(data)})
		return nil
	})
}

// ToHost reads size bytes at offset after all previously submitted work
// has executed. A zero size reads the rest of the buffer.
func (b *Buffer) ToHost(offset, size uint64) ([]byte, error) {
	if err := b.check(b.dev); err != nil {
		return nil, err
	}
	size, err := b.checkRange(offset, size)
	if err != nil {
		return nil, err
	}
	out := make([]byte, size)
	err = b.dev.record("buffer readback", func(e *CommandEncoder) error {
		e.wrap(&b.resource, driver.ReadBuffer{Src: b.drv, Offset: offset, Dst: out})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BufferView is a byte range of a buffer. The zero value is invalid.
type BufferView struct {
	buffer *Buffer
	offset uint64
	size   uint64
}

// Buffer returns the viewed buffer.
func (v BufferView) Buffer() *Buffer { return v.buffer }

// Offset returns the byte offset of the view.
func (v BufferView) Offset() uint64 { return v.offset }

// Size returns the byte size of the view.
func (v BufferView) Size() uint64 { return v.size }

// BufferOffset is a buffer plus a byte offset, used by acceleration
// structure build inputs.
type BufferOffset struct {
	Buffer *Buffer
	Offset uint64
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
