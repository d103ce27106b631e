// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"context"
	"fmt"
	"time"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi/driver"
	"github.com/gogpu/rhi/format"
)

// batch accumulates encoded commands until the next flush. Queue writes
// are not ordered against encoded commands, so every host write flushes
// the batch first.
type batch struct {
	d       *Device
	ctx     context.Context
	label   string
	encoder hal.CommandEncoder
	// after runs once the submitted work has completed, in order.
	after []func() error
	// cleanup releases per-batch objects once Execute returns.
	cleanup []func()
}

// Execute encodes cmds and runs them to completion.
func (d *Device) Execute(ctx context.Context, cmds []driver.Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device == nil {
		return fmt.Errorf("wgpu: %w: device destroyed", driver.ErrDeviceLost)
	}

	b := &batch{d: d, ctx: ctx, label: "rhi_commands"}
	defer b.release()
	for _, c := range cmds {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.record(c); err != nil {
			return err
		}
	}
	return b.flush()
}

func (b *batch) release() {
	if b.encoder != nil {
		b.encoder.DiscardEncoding()
		b.encoder = nil
	}
	for _, fn := range b.cleanup {
		fn()
	}
	b.cleanup = nil
}

// enc returns the open encoder, beginning one if needed.
func (b *batch) enc() (hal.CommandEncoder, error) {
	if b.encoder != nil {
		return b.encoder, nil
	}
	encoder, err := b.d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: b.label})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(b.label); err != nil {
		return nil, fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	b.encoder = encoder
	return encoder, nil
}

// flush submits the open encoder, waits for it and runs the pending
// completion callbacks.
func (b *batch) flush() error {
	if b.encoder != nil {
		encoder := b.encoder
		b.encoder = nil
		cmdBuf, err := encoder.EndEncoding()
		if err != nil {
			return fmt.Errorf("wgpu: end encoding: %w", err)
		}
		defer b.d.device.FreeCommandBuffer(cmdBuf)

		index, err := b.d.queue.Submit([]hal.CommandBuffer{cmdBuf})
		if err != nil {
			return fmt.Errorf("wgpu: %w: submit: %v", driver.ErrDeviceLost, err)
		}
		if err := b.wait(index); err != nil {
			return err
		}
	}
	after := b.after
	b.after = nil
	for _, fn := range after {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

// wait polls the queue until submission index has completed.
func (b *batch) wait(index uint64) error {
	if b.d.queue.PollCompleted() >= index {
		return nil
	}
	timeout := time.NewTimer(waitTimeout)
	defer timeout.Stop()
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()
	for b.d.queue.PollCompleted() < index {
		select {
		case <-b.ctx.Done():
			return b.ctx.Err()
		case <-timeout.C:
			return fmt.Errorf("wgpu: %w: submission %d not completed within %v", driver.ErrDeviceLost, index, waitTimeout)
		case <-tick.C:
		}
	}
	return nil
}

// mapped maps the first size bytes of a staging buffer and calls fn with
// them. The slice is only valid during fn.
func (b *batch) mapped(stage hal.Buffer, size uint64, fn func([]byte) error) error {
	m, err := b.d.device.MapBuffer(stage, 0, size)
	if err != nil {
		return fmt.Errorf("wgpu: map staging buffer: %w", err)
	}
	ferr := fn(unsafe.Slice((*byte)(m.Ptr), size))
	if err := b.d.device.UnmapBuffer(stage); err != nil && ferr == nil {
		ferr = fmt.Errorf("wgpu: unmap staging buffer: %w", err)
	}
	return ferr
}

// writeBuffer writes host data through the queue.
func (b *batch) writeBuffer(dst hal.Buffer, offset uint64, data []byte) error {
	if err := b.d.queue.WriteBuffer(dst, offset, data); err != nil {
		return fmt.Errorf("wgpu: write buffer: %w", err)
	}
	return nil
}

// staging creates a host-readable buffer released with the batch.
func (b *batch) staging(size uint64) (hal.Buffer, error) {
	buf, err := b.d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "rhi_staging",
		Size:  format.AlignUp(max(size, 4), 4),
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create staging buffer: %w", err)
	}
	b.cleanup = append(b.cleanup, func() { b.d.device.DestroyBuffer(buf) })
	return buf, nil
}

func (b *batch) record(c driver.Command) error {
	switch c := c.(type) {
	case driver.UploadBuffer:
		if err := b.flush(); err != nil {
			return err
		}
		return b.writeBuffer(c.Dst.(*buffer).raw, c.Offset, c.Data)

	case driver.ClearBuffer:
		if c.Offset%4 == 0 && c.Size%4 == 0 {
			encoder, err := b.enc()
			if err != nil {
				return err
			}
			encoder.ClearBuffer(c.Dst.(*buffer).raw, c.Offset, c.Size)
			return nil
		}
		if err := b.flush(); err != nil {
			return err
		}
		return b.writeBuffer(c.Dst.(*buffer).raw, c.Offset, make([]byte, c.Size))

	case driver.CopyBuffer:
		if c.SrcOffset%4 != 0 || c.DstOffset%4 != 0 || c.Size%4 != 0 {
			data, err := b.readBufferNow(c.Src.(*buffer).raw, c.SrcOffset, c.Size)
			if err != nil {
				return err
			}
			return b.writeBuffer(c.Dst.(*buffer).raw, c.DstOffset, data)
		}
		encoder, err := b.enc()
		if err != nil {
			return err
		}
		encoder.CopyBufferToBuffer(c.Src.(*buffer).raw, c.Dst.(*buffer).raw, []hal.BufferCopy{
			{SrcOffset: c.SrcOffset, DstOffset: c.DstOffset, Size: c.Size},
		})
		return nil

	case driver.ReadBuffer:
		return b.readBuffer(c.Src.(*buffer).raw, c.Offset, uint64(len(c.Dst)), func(data []byte) error {
			copy(c.Dst, data)
			return nil
		})

	case driver.UploadTexture:
		l, err := regionLayout(c.Dst, 1)
		if err != nil {
			return err
		}
		if err := b.flush(); err != nil {
			return err
		}
		return b.writeTexture(c.Dst, c.Data, l)

	case driver.ReadTexture:
		return b.readTexture(c.Src, func(data []byte) error {
			copy(c.Dst, data)
			return nil
		})

	case driver.CopyTexture:
		data, err := b.readTextureNow(c.Src)
		if err != nil {
			return err
		}
		dst := c.Dst
		dst.Size = c.Src.Size
		l, err := regionLayout(dst, 1)
		if err != nil {
			return err
		}
		return b.writeTexture(dst, data, l)

	case driver.CopyTextureToBuffer:
		return b.copyTextureToBuffer(c)

	case driver.CopyBufferToTexture:
		l, err := regionLayout(c.Dst, 1)
		if err != nil {
			return err
		}
		pitched := l
		pitched.RowPitch = c.RowPitch
		pitched.SlicePitch = c.RowPitch * uint64(l.RowCount)
		pitched.SizeInBytes = pitched.SlicePitch*uint64(l.Size.Depth) - (c.RowPitch - l.RowPitch)
		data, err := b.readBufferNow(c.Src.(*buffer).raw, c.SrcOffset, pitched.SizeInBytes)
		if err != nil {
			return err
		}
		return b.writeTexture(c.Dst, data, pitched)

	case driver.Dispatch:
		return b.dispatch(c)

	case driver.BuildAccelerationStructure:
		return fmt.Errorf("wgpu: %w: acceleration structure builds", driver.ErrCapability)

	case driver.WriteTimestamp:
		return fmt.Errorf("wgpu: %w: timestamp queries", driver.ErrCapability)

	default:
		return fmt.Errorf("wgpu: %w: unknown command %T", driver.ErrValidation, c)
	}
}

// readBuffer copies a buffer range into a staging buffer and calls fn with
// its contents once the batch completes. Copies are widened to four byte
// alignment.
func (b *batch) readBuffer(src hal.Buffer, offset, size uint64, fn func([]byte) error) error {
	if size == 0 {
		return nil
	}
	start := offset &^ 3
	end := format.AlignUp(offset+size, 4)
	stage, err := b.staging(end - start)
	if err != nil {
		return err
	}
	encoder, err := b.enc()
	if err != nil {
		return err
	}
	encoder.CopyBufferToBuffer(src, stage, []hal.BufferCopy{{SrcOffset: start, DstOffset: 0, Size: end - start}})
	b.after = append(b.after, func() error {
		return b.mapped(stage, end-start, func(data []byte) error {
			return fn(data[offset-start : offset-start+size])
		})
	})
	return nil
}

// readBufferNow is readBuffer followed by a flush.
func (b *batch) readBufferNow(src hal.Buffer, offset, size uint64) ([]byte, error) {
	out := make([]byte, size)
	if err := b.readBuffer(src, offset, size, func(data []byte) error {
		copy(out, data)
		return nil
	}); err != nil {
		return nil, err
	}
	return out, b.flush()
}

func regionLayout(r driver.TextureRegion, rowAlignment uint64) (format.SubresourceLayout, error) {
	l, err := format.RegionLayout(r.Texture.(*texture).desc.Format, r.Size, rowAlignment)
	if err != nil {
		return l, fmt.Errorf("wgpu: %w: %w", driver.ErrValidation, err)
	}
	return l, nil
}

// imageCopy addresses a region. Array layers are the z origin of the copy.
func imageCopy(r driver.TextureRegion) (hal.ImageCopyTexture, hal.Extent3D) {
	t := r.Texture.(*texture)
	origin := hal.Origin3D{X: r.Origin.X, Y: r.Origin.Y, Z: r.Origin.Z}
	if t.desc.Type != driver.Texture3D {
		origin.Z = r.Layer
	}
	return hal.ImageCopyTexture{Texture: t.raw, MipLevel: r.Mip, Origin: origin},
		hal.Extent3D{Width: r.Size.Width, Height: max(r.Size.Height, 1), DepthOrArrayLayers: max(r.Size.Depth, 1)}
}

func (b *batch) writeTexture(r driver.TextureRegion, data []byte, l format.SubresourceLayout) error {
	dst, size := imageCopy(r)
	err := b.d.queue.WriteTexture(&dst, data, &hal.ImageDataLayout{
		Offset:       0,
		BytesPerRow:  uint32(l.RowPitch),
		RowsPerImage: l.RowCount,
	}, &size)
	if err != nil {
		return fmt.Errorf("wgpu: write texture: %w", err)
	}
	return nil
}

// encodeTextureCopy copies a region into buf with the given layout. The
// texture is transitioned to a copy source for the copy and back.
func (b *batch) encodeTextureCopy(r driver.TextureRegion, buf hal.Buffer, offset uint64, l format.SubresourceLayout) error {
	encoder, err := b.enc()
	if err != nil {
		return err
	}
	src, size := imageCopy(r)
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: src.Texture,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopyDst,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	encoder.CopyTextureToBuffer(src.Texture, buf, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: offset, BytesPerRow: uint32(l.RowPitch), RowsPerImage: l.RowCount},
		TextureBase:  src,
		Size:         size,
	}})
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: src.Texture,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopySrc,
			NewUsage: gputypes.TextureUsageCopyDst,
		},
	}})
	return nil
}

// readTexture copies a region into staging memory and calls fn with the
// tightly packed texels once the batch completes.
func (b *batch) readTexture(r driver.TextureRegion, fn func([]byte) error) error {
	staged, err := regionLayout(r, RowAlignment)
	if err != nil {
		return err
	}
	tight, err := regionLayout(r, 1)
	if err != nil {
		return err
	}
	stage, err := b.staging(staged.SizeInBytes)
	if err != nil {
		return err
	}
	if err := b.encodeTextureCopy(r, stage, 0, staged); err != nil {
		return err
	}
	info := r.Texture.(*texture).info
	b.after = append(b.after, func() error {
		out := make([]byte, tight.SizeInBytes)
		err := b.mapped(stage, staged.SizeInBytes, func(data []byte) error {
			if err := format.Repitch(info, out, tight, data, staged); err != nil {
				return fmt.Errorf("wgpu: %w: %w", driver.ErrValidation, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		return fn(out)
	})
	return nil
}

// readTextureNow is readTexture followed by a flush.
func (b *batch) readTextureNow(r driver.TextureRegion) ([]byte, error) {
	var out []byte
	if err := b.readTexture(r, func(data []byte) error {
		out = data
		return nil
	}); err != nil {
		return nil, err
	}
	return out, b.flush()
}

// copyTextureToBuffer encodes a device copy when the destination layout
// meets the copy alignment rules and goes through host memory otherwise.
func (b *batch) copyTextureToBuffer(c driver.CopyTextureToBuffer) error {
	l, err := regionLayout(c.Src, 1)
	if err != nil {
		return err
	}
	pitched := l
	pitched.RowPitch = c.RowPitch
	pitched.SlicePitch = c.RowPitch * uint64(l.RowCount)
	pitched.SizeInBytes = pitched.SlicePitch*uint64(l.Size.Depth) - (c.RowPitch - l.RowPitch)
	dst := c.Dst.(*buffer).raw
	if c.RowPitch%RowAlignment == 0 && c.DstOffset%4 == 0 {
		return b.encodeTextureCopy(c.Src, dst, c.DstOffset, pitched)
	}

	tight, err := b.readTextureNow(c.Src)
	if err != nil {
		return err
	}
	// Padding between rows keeps the buffer's previous contents.
	data, err := b.readBufferNow(dst, c.DstOffset, pitched.SizeInBytes)
	if err != nil {
		return err
	}
	if err := format.Repitch(c.Src.Texture.(*texture).info, data, pitched, tight, l); err != nil {
		return fmt.Errorf("wgpu: %w: %w", driver.ErrValidation, err)
	}
	return b.writeBuffer(dst, c.DstOffset, data)
}
