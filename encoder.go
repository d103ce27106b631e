// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gogpu/rhi/driver"
	"github.com/gogpu/rhi/format"
)

// CommandEncoder records operations for one command buffer.
//
// Operations are validated when recorded and kept in call order. Finish
// seals the encoder into a CommandBuffer; every later call fails with
// ErrEncoderFinished.
//
// State machine:
//
//	Recording -> Finish() -> Finished
//
// An encoder is meant to be used from one goroutine; calls are serialized
// internally.
type CommandEncoder struct {
	dev   *Device
	label string

	mu       sync.Mutex
	finished bool
	cmds     []driver.Command
	refs     []*resource
	seen     map[*resource]struct{}
	builds   []pendingBuild
	needs    []*AccelerationStructure
	// local holds structures built by earlier operations of this encoder.
	local map[*AccelerationStructure]asState
}

// CreateCommandEncoder returns an encoder in the Recording state.
func (d *Device) CreateCommandEncoder(label string) *CommandEncoder {
	return &CommandEncoder{
		dev:   d,
		label: label,
		seen:  make(map[*resource]struct{}),
		local: make(map[*AccelerationStructure]asState),
	}
}

// Label returns the encoder's debug label.
func (e *CommandEncoder) Label() string { return e.label }

// checkRecordingLocked returns an error if the encoder is finished.
// The caller must hold e.mu.
func (e *CommandEncoder) checkRecordingLocked() error {
	if e.finished {
		return fmt.Errorf("%w: %q", ErrEncoderFinished, e.label)
	}
	return nil
}

func (e *CommandEncoder) refLocked(rs ...*resource) {
	for _, r := range rs {
		if _, ok := e.seen[r]; ok {
			continue
		}
		e.seen[r] = struct{}{}
		e.refs = append(e.refs, r)
	}
}

// stateLocked returns the state as will have when the operations recorded
// so far have run.
func (e *CommandEncoder) stateLocked(as *AccelerationStructure) asState {
	if st, ok := e.local[as]; ok {
		return st
	}
	return as.committed()
}

// requireLocked records that the next operation reads structures. Those
// not built earlier in this encoder must be built when it is submitted.
func (e *CommandEncoder) requireLocked(structures ...*AccelerationStructure) {
	for _, as := range structures {
		if _, ok := e.local[as]; !ok && !slices.Contains(e.needs, as) {
			e.needs = append(e.needs, as)
		}
	}
}

// wrap appends a pre-validated internal command.
func (e *CommandEncoder) wrap(r *resource, cmd driver.Command) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refLocked(r)
	e.cmds = append(e.cmds, cmd)
}

// UploadBufferData writes data into buf at offset when the command buffer
// executes. buf must have BufferUsageCopyDestination.
func (e *CommandEncoder) UploadBufferData(buf *Buffer, offset uint64, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkRecordingLocked(); err != nil {
		return err
	}
	if err := buf.check(e.dev); err != nil {
		return err
	}
	if err := buf.requireUsage(BufferUsageCopyDestination, "upload"); err != nil {
		return err
	}
	if _, err := buf.checkRange(offset, uint64(len(data))); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	e.refLocked(&buf.resource)
	e.cmds = append(e.cmds, driver.UploadBuffer{Dst: buf.drv, Offset: offset, Data: clone(data)})
	return nil
}

// CopyBuffer copies size bytes from src at srcOffset to dst at dstOffset.
// Overlapping ranges within one buffer are rejected.
func (e *CommandEncoder) CopyBuffer(dst *Buffer, dstOffset uint64, src *Buffer, srcOffset, size uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkRecordingLocked(); err != nil {
		return err
	}
	for _, b := range []*Buffer{dst, src} {
		if err := b.check(e.dev); err != nil {
			return err
		}
	}
	if err := dst.requireUsage(BufferUsageCopyDestination, "copy"); err != nil {
		return err
	}
	if err := src.requireUsage(BufferUsageCopySource, "copy"); err != nil {
		return err
	}
	if size == 0 {
		return fmt.Errorf("%w: zero-sized buffer copy", ErrValidation)
	}
	if _, err := src.checkRange(srcOffset, size); err != nil {
		return err
	}
	if _, err := dst.checkRange(dstOffset, size); err != nil {
		return err
	}
	if dst == src && srcOffset < dstOffset+size && dstOffset < srcOffset+size {
		return fmt.Errorf("%w: overlapping copy within %v", ErrValidation, &dst.resource)
	}
	e.refLocked(&dst.resource, &src.resource)
	e.cmds = append(e.cmds, driver.CopyBuffer{Dst: dst.drv, DstOffset: dstOffset, Src: src.drv, SrcOffset: srcOffset, Size: size})
	return nil
}

// ClearBuffer zeroes size bytes of buf at offset. A zero size clears the
// rest of the buffer.
func (e *CommandEncoder) ClearBuffer(buf *Buffer, offset, size uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkRecordingLocked(); err != nil {
		return err
	}
	if err := buf.check(e.dev); err != nil {
		return err
	}
	if err := buf.requireUsage(BufferUsageCopyDestination, "clear"); err != nil {
		return err
	}
	size, err := buf.checkRange(offset, size)
	if err != nil {
		return err
	}
	e.refLocked(&buf.resource)
	e.cmds = append(e.cmds, driver.ClearBuffer{Dst: buf.drv, Offset: offset, Size: size})
	return nil
}

// UploadTextureData replaces subresource (layer, mip) of tex with tightly
// packed data.
func (e *CommandEncoder) UploadTextureData(tex *Texture, layer, mip uint32, data []byte) error {
	return e.UploadTextureRegion(tex, layer, mip, format.Origin{}, format.Extent{}, data)
}

// UploadTextureRegion writes tightly packed data into a box of
// subresource (layer, mip). A zero extent means the rest of the mip level
// from origin.
func (e *CommandEncoder) UploadTextureRegion(tex *Texture, layer, mip uint32, origin format.Origin, extent format.Extent, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkRecordingLocked(); err != nil {
		return err
	}
	cmd, err := e.textureUpload(tex, layer, mip, origin, extent, data)
	if err != nil {
		return err
	}
	e.refLocked(&tex.resource)
	e.cmds = append(e.cmds, cmd)
	return nil
}

// textureUpload validates data against a box of subresource (layer, mip)
// and returns the upload command for it.
func (e *CommandEncoder) textureUpload(tex *Texture, layer, mip uint32, origin format.Origin, extent format.Extent, data []byte) (driver.UploadTexture, error) {
	region, err := e.textureRegion(tex, layer, mip, origin, extent)
	if err != nil {
		return driver.UploadTexture{}, err
	}
	packed, _ := format.RegionLayout(tex.desc.Format, region.Size, 1)
	if uint64(len(data)) != packed.SizeInBytes {
		return driver.UploadTexture{}, fmt.Errorf("%w: %d bytes for layer %d mip %d of %v, want %d",
			ErrSizeMismatch, len(data), layer, mip, &tex.resource, packed.SizeInBytes)
	}
	return driver.UploadTexture{Dst: region, Data: clone(data)}, nil
}

// UploadTextureDataAll replaces every subresource of tex. data holds one
// tightly packed slice per subresource in layer-major order, so index
// layer*MipCount+mip. Nothing is recorded unless every slice is valid.
func (e *CommandEncoder) UploadTextureDataAll(tex *Texture, data [][]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkRecordingLocked(); err != nil {
		return err
	}
	if err := tex.check(e.dev); err != nil {
		return err
	}
	if want := int(tex.SubresourceCount()); len(data) != want {
		return fmt.Errorf("%w: %d subresources of data for %v, want %d", ErrSizeMismatch, len(data), &tex.resource, want)
	}
	cmds := make([]driver.Command, 0, len(data))
	for layer := range tex.LayerCount() {
		for mip := range tex.MipCount() {
			cmd, err := e.textureUpload(tex, layer, mip, format.Origin{}, format.Extent{}, data[tex.SubresourceIndex(layer, mip)])
			if err != nil {
				return err
			}
			cmds = append(cmds, cmd)
		}
	}
	e.refLocked(&tex.resource)
	e.cmds = append(e.cmds, cmds...)
	return nil
}

// textureRegion validates a box of one subresource. A zero extent selects
// the rest of the mip level from origin.
func (e *CommandEncoder) textureRegion(tex *Texture, layer, mip uint32, origin format.Origin, extent format.Extent) (driver.TextureRegion, error) {
	if err := tex.check(e.dev); err != nil {
		return driver.TextureRegion{}, err
	}
	if err := tex.checkSubresource(layer, mip); err != nil {
		return driver.TextureRegion{}, err
	}
	full := tex.MipExtent(mip)
	if origin.X >= full.Width || origin.Y >= full.Height || origin.Z >= full.Depth {
		return driver.TextureRegion{}, fmt.Errorf("%w: origin %+v outside mip %d (%v) of %v", ErrRange, origin, mip, full, &tex.resource)
	}
	if extent == (format.Extent{}) {
		extent = format.Extent{Width: full.Width - origin.X, Height: full.Height - origin.Y, Depth: full.Depth - origin.Z}
	}
	if extent.Width == 0 || extent.Height == 0 || extent.Depth == 0 {
		return driver.TextureRegion{}, fmt.Errorf("%w: empty extent %v", ErrValidation, extent)
	}
	if err := format.CheckRegion(tex.info, tex.packedLayout(mip), origin, extent); err != nil {
		return driver.TextureRegion{}, fmt.Errorf("%w: %w", ErrRange, err)
	}
	return driver.TextureRegion{Texture: tex.drv, Layer: layer, Mip: mip, Origin: origin, Size: extent}, nil
}

// CopyTexture copies a box between two subresources of the same format. A
// zero extent copies the rest of the source mip level from srcOffset.
func (e *CommandEncoder) CopyTexture(
	dst *Texture, dstLayer, dstMip uint32, dstOffset format.Origin,
	src *Texture, srcLayer, srcMip uint32, srcOffset format.Origin,
	extent format.Extent,
) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkRecordingLocked(); err != nil {
		return err
	}
	sr, err := e.textureRegion(src, srcLayer, srcMip, srcOffset, extent)
	if err != nil {
		return fmt.Errorf("copy source: %w", err)
	}
	dr, err := e.textureRegion(dst, dstLayer, dstMip, dstOffset, sr.Size)
	if err != nil {
		return fmt.Errorf("copy destination: %w", err)
	}
	if dst.desc.Format != src.desc.Format {
		return fmt.Errorf("%w: copy from %v to %v", ErrValidation, src.desc.Format, dst.desc.Format)
	}
	if dst.desc.SampleCount != src.desc.SampleCount {
		return fmt.Errorf("%w: copy between sample counts %d and %d", ErrValidation, src.desc.SampleCount, dst.desc.SampleCount)
	}
	if dst == src && dstLayer == srcLayer && dstMip == srcMip && boxesOverlap(dstOffset, srcOffset, sr.Size) {
		return fmt.Errorf("%w: overlapping copy within %v", ErrValidation, &dst.resource)
	}
	e.refLocked(&dst.resource, &src.resource)
	e.cmds = append(e.cmds, driver.CopyTexture{Dst: dr, Src: sr})
	return nil
}

func boxesOverlap(a, b format.Origin, e format.Extent) bool {
	overlap := func(a, b, n uint32) bool { return a < b+n && b < a+n }
	return overlap(a.X, b.X, e.Width) && overlap(a.Y, b.Y, e.Height) && overlap(a.Z, b.Z, e.Depth)
}

// footprint returns the bytes a pitched copy of region occupies, and the
// rowPitch to use (zero means tightly packed).
func footprint(tex *Texture, region driver.TextureRegion, rowPitch uint64) (uint64, uint64, error) {
	l, _ := format.RegionLayout(tex.desc.Format, region.Size, 1)
	if rowPitch == 0 {
		rowPitch = l.RowPitch
	}
	if rowPitch < l.RowPitch {
		return 0, 0, fmt.Errorf("%w: row pitch %d is smaller than the %d bytes of a row", ErrValidation, rowPitch, l.RowPitch)
	}
	need := rowPitch*uint64(l.RowCount)*uint64(region.Size.Depth) - (rowPitch - l.RowPitch)
	return need, rowPitch, nil
}

// CopyTextureToBuffer copies a box of subresource (layer, mip) of src into
// dst at dstOffset, with rows rowPitch bytes apart. size bounds the bytes
// the copy may touch; zero means the rest of dst. A zero rowPitch packs
// rows tightly and a zero extent copies the rest of the mip level.
func (e *CommandEncoder) CopyTextureToBuffer(
	dst *Buffer, dstOffset, size, rowPitch uint64,
	src *Texture, layer, mip uint32, offset format.Origin, extent format.Extent,
) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkRecordingLocked(); err != nil {
		return err
	}
	region, err := e.textureRegion(src, layer, mip, offset, extent)
	if err != nil {
		return err
	}
	if err := dst.check(e.dev); err != nil {
		return err
	}
	if err := dst.requireUsage(BufferUsageCopyDestination, "texture to buffer copy"); err != nil {
		return err
	}
	size, err = dst.checkRange(dstOffset, size)
	if err != nil {
		return err
	}
	need, rowPitch, err := footprint(src, region, rowPitch)
	if err != nil {
		return err
	}
	if need > size {
		return fmt.Errorf("%w: copy needs %d bytes, %d available", ErrRange, need, size)
	}
	e.refLocked(&dst.resource, &src.resource)
	e.cmds = append(e.cmds, driver.CopyTextureToBuffer{Dst: dst.drv, DstOffset: dstOffset, RowPitch: rowPitch, Src: region})
	return nil
}

// CopyBufferToTexture copies pitched data from src at srcOffset into a box
// of subresource (layer, mip) of dst. Zero values of size, rowPitch and
// extent have the same meaning as for CopyTextureToBuffer.
func (e *CommandEncoder) CopyBufferToTexture(
	dst *Texture, layer, mip uint32, offset format.Origin, extent format.Extent,
	src *Buffer, srcOffset, size, rowPitch uint64,
) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkRecordingLocked(); err != nil {
		return err
	}
	region, err := e.textureRegion(dst, layer, mip, offset, extent)
	if err != nil {
		return err
	}
	if err := src.check(e.dev); err != nil {
		return err
	}
	if err := src.requireUsage(BufferUsageCopySource, "buffer to texture copy"); err != nil {
		return err
	}
	size, err = src.checkRange(srcOffset, size)
	if err != nil {
		return err
	}
	need, rowPitch, err := footprint(dst, region, rowPitch)
	if err != nil {
		return err
	}
	if need > size {
		return fmt.Errorf("%w: copy needs %d bytes, %d available", ErrRange, need, size)
	}
	e.refLocked(&dst.resource, &src.resource)
	e.cmds = append(e.cmds, driver.CopyBufferToTexture{Dst: region, Src: src.drv, SrcOffset: srcOffset, RowPitch: rowPitch})
	return nil
}

// BuildAccelerationStructure records a build of dst from desc using
// scratch memory at scratch. For update builds src is the structure to
// refit and must have been built with BuildAllowUpdate; it may equal dst.
func (e *CommandEncoder) BuildAccelerationStructure(
	desc *AccelerationStructureBuildDesc,
	dst, src *AccelerationStructure,
	scratch BufferOffset,
) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkRecordingLocked(); err != nil {
		return err
	}
	d := e.dev
	if err := d.requireAccelerationStructures(); err != nil {
		return err
	}
	l, err := d.lowerBuildDesc(desc)
	if err != nil {
		return err
	}
	sizes, err := d.drv.AccelerationStructureSizes(&l.desc)
	if err != nil {
		return fmt.Errorf("rhi: acceleration structure sizes: %w", err)
	}

	if dst == nil {
		return fmt.Errorf("%w: build without a destination", ErrValidation)
	}
	if err := dst.check(d); err != nil {
		return err
	}
	if dst.size < sizes.AccelerationStructureSize {
		return fmt.Errorf("%w: %v holds %d bytes, build needs %d", ErrValidation, &dst.resource, dst.size, sizes.AccelerationStructureSize)
	}

	need := sizes.ScratchSize
	var lsrc driver.AccelerationStructure
	if desc.Mode == BuildModeUpdate {
		need = sizes.UpdateScratchSize
		if src == nil {
			return fmt.Errorf("%w: update build without a source structure", ErrValidation)
		}
		if err := src.check(d); err != nil {
			return err
		}
		st := e.stateLocked(src)
		if !st.allowUpdate {
			return fmt.Errorf("%w: %v was not built with the allow-update flag", ErrValidation, &src.resource)
		}
		if st.kind != l.kind {
			return fmt.Errorf("%w: update of a %v structure with %v inputs", ErrValidation, st.kind, l.kind)
		}
		lsrc = src.drv
	} else if src != nil {
		return fmt.Errorf("%w: source structure given for a full build", ErrValidation)
	}

	if scratch.Buffer == nil {
		return fmt.Errorf("%w: build without scratch memory", ErrValidation)
	}
	if err := scratch.Buffer.check(d); err != nil {
		return err
	}
	if err := scratch.Buffer.requireUsage(BufferUsageUnorderedAccess, "scratch"); err != nil {
		return err
	}
	if scratch.Offset > scratch.Buffer.size || need > scratch.Buffer.size-scratch.Offset {
		return fmt.Errorf("%w: scratch needs %d bytes at offset %d of %v with %d bytes",
			ErrValidation, need, scratch.Offset, &scratch.Buffer.resource, scratch.Buffer.size)
	}

	if st := e.stateLocked(dst); st.set && st.kind != l.kind {
		return fmt.Errorf("%w: %v was built as %v, not %v", ErrValidation, &dst.resource, st.kind, l.kind)
	}
	for _, as := range l.needs {
		if st := e.stateLocked(as); st.set && st.kind != KindBottomLevel {
			return fmt.Errorf("%w: instances must reference bottom level structures, %v is %v", ErrValidation, &as.resource, st.kind)
		}
	}

	if src != nil {
		e.requireLocked(src)
		e.refLocked(&src.resource)
	}
	e.requireLocked(l.needs...)
	e.refLocked(l.refs...)
	e.refLocked(&dst.resource, &scratch.Buffer.resource)
	st := asState{kind: l.kind, set: true, allowUpdate: desc.Flags&BuildAllowUpdate != 0}
	e.local[dst] = st
	e.builds = append(e.builds, pendingBuild{as: dst, state: st})
	e.cmds = append(e.cmds, driver.BuildAccelerationStructure{
		Desc:    l.desc,
		Dst:     dst.drv,
		Src:     lsrc,
		Scratch: driver.BufferRef{Buffer: scratch.Buffer.drv, Offset: scratch.Offset},
	})
	return nil
}

// Dispatch records a dispatch covering threads invocations per axis. The
// group count is ceil(threads / LocalSize) per axis.
func (e *CommandEncoder) Dispatch(k *ComputeKernel, threads [3]uint32, vars Vars) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkRecordingLocked(); err != nil {
		return err
	}
	if err := k.check(e.dev); err != nil {
		return err
	}
	bound, err := k.bind(vars)
	if err != nil {
		return err
	}
	for _, as := range bound.needs {
		if st := e.stateLocked(as); st.set && st.kind != KindTopLevel {
			return fmt.Errorf("%w: %v is bound as a top level structure but is %v", ErrValidation, &as.resource, st.kind)
		}
	}
	e.requireLocked(bound.needs...)
	e.refLocked(&k.resource)
	e.refLocked(bound.refs...)
	e.cmds = append(e.cmds, driver.Dispatch{
		Kernel:      k.drv,
		GroupCount:  k.GroupCount(threads),
		ThreadCount: threads,
		Bindings:    bound.bindings,
	})
	return nil
}

// WriteTimestamp records the device clock into query index of pool when
// the command buffer executes.
func (e *CommandEncoder) WriteTimestamp(pool *QueryPool, index uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkRecordingLocked(); err != nil {
		return err
	}
	if err := pool.check(e.dev); err != nil {
		return err
	}
	if index >= pool.count {
		return fmt.Errorf("%w: query %d of %v with %d queries", ErrRange, index, &pool.resource, pool.count)
	}
	e.refLocked(&pool.resource)
	e.cmds = append(e.cmds, driver.WriteTimestamp{Pool: pool.drv, Index: index})
	return nil
}

// Finish seals the encoder and returns its command buffer.
func (e *CommandEncoder) Finish() (*CommandBuffer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkRecordingLocked(); err != nil {
		return nil, err
	}
	e.finished = true
	cb := &CommandBuffer{
		dev:    e.dev,
		label:  e.label,
		cmds:   e.cmds,
		refs:   e.refs,
		builds: e.builds,
		needs:  e.needs,
	}
	e.cmds, e.refs, e.builds, e.needs, e.seen, e.local = nil, nil, nil, nil, nil, nil
	return cb, nil
}

// CommandBuffer is an immutable list of recorded operations. It can be
// submitted once.
type CommandBuffer struct {
	dev       *Device
	label     string
	cmds      []driver.Command
	refs      []*resource
	builds    []pendingBuild
	needs     []*AccelerationStructure
	submitted atomic.Bool
}

// Label returns the debug label of the encoder that produced cb.
func (cb *CommandBuffer) Label() string { return cb.label }

// Len returns the number of recorded operations.
func (cb *CommandBuffer) Len() int { return len(cb.cmds) }

// Submitted reports whether cb has been submitted.
func (cb *CommandBuffer) Submitted() bool { return cb.submitted.Load() }
