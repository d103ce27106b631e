// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package format

import (
	"errors"
	"fmt"
	"math/bits"
)

// Layout errors.
var (
	// ErrUndefined is returned when a layout is requested for an undefined format.
	ErrUndefined = errors.New("format: undefined format")

	// ErrAlignment is returned when a row alignment is not a power of two.
	ErrAlignment = errors.New("format: row alignment must be a power of two")

	// ErrExtent is returned for zero-sized extents.
	ErrExtent = errors.New("format: extent must be non-zero")
)

// Extent is a size in texels.
type Extent struct {
	Width  uint32
	Height uint32
	Depth  uint32
}

// Volume returns Width*Height*Depth.
func (e Extent) Volume() uint64 {
	return uint64(e.Width) * uint64(e.Height) * uint64(e.Depth)
}

func (e Extent) String() string {
	return fmt.Sprintf("%dx%dx%d", e.Width, e.Height, e.Depth)
}

// Origin is a texel offset inside a subresource.
type Origin struct {
	X, Y, Z uint32
}

// SubresourceLayout is the memory layout of one (layer, mip) subresource.
//
// Pitches are in bytes. RowPitch covers one row of blocks, SlicePitch one
// depth slice, and SizeInBytes the whole subresource.
type SubresourceLayout struct {
	Size        Extent
	ColPitch    uint64
	RowPitch    uint64
	SlicePitch  uint64
	SizeInBytes uint64
	RowCount    uint32
}

// RowBytes is the number of meaningful bytes in each row, excluding padding.
func (l SubresourceLayout) RowBytes(info Info) uint64 {
	return l.ColPitch * uint64(ceilDiv(l.Size.Width, info.BlockWidth))
}

// MipExtent returns the extent of mip level mip. Each dimension is
// max(1, dim >> mip).
func MipExtent(e Extent, mip uint32) Extent {
	return Extent{
		Width:  shrink(e.Width, mip),
		Height: shrink(e.Height, mip),
		Depth:  shrink(e.Depth, mip),
	}
}

func shrink(v, mip uint32) uint32 {
	if mip >= 32 {
		return 1
	}
	return max(1, v>>mip)
}

// MaxMipCount returns the length of the full mip chain for e, which is
// floor(log2(max(w, h, d))) + 1.
func MaxMipCount(e Extent) uint32 {
	m := max(e.Width, e.Height, e.Depth)
	if m == 0 {
		return 1
	}
	return uint32(bits.Len32(m))
}

// AlignUp rounds v up to a multiple of align, which must be a power of two.
func AlignUp(v, align uint64) uint64 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

// IsPowerOfTwo reports whether v is a power of two.
func IsPowerOfTwo(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}

func ceilDiv(a, b uint32) uint32 {
	return (a + b - 1) / b
}

// Layout computes the layout of mip level mip of a texture with the given
// base extent. rowAlignment must be a power of two; 1 yields a tightly
// packed layout.
func Layout(f Format, base Extent, mip uint32, rowAlignment uint64) (SubresourceLayout, error) {
	info, ok := f.Info()
	if !ok {
		return SubresourceLayout{}, fmt.Errorf("%w: %v", ErrUndefined, f)
	}
	if !IsPowerOfTwo(rowAlignment) {
		return SubresourceLayout{}, fmt.Errorf("%w: %d", ErrAlignment, rowAlignment)
	}
	if base.Width == 0 || base.Height == 0 || base.Depth == 0 {
		return SubresourceLayout{}, fmt.Errorf("%w: %v", ErrExtent, base)
	}
	return layout(info, MipExtent(base, mip), rowAlignment), nil
}

func layout(info Info, size Extent, rowAlignment uint64) SubresourceLayout {
	col := uint64(info.BytesPerBlock)
	rows := ceilDiv(size.Height, info.BlockHeight)
	rowPitch := AlignUp(col*uint64(ceilDiv(size.Width, info.BlockWidth)), rowAlignment)
	slicePitch := rowPitch * uint64(rows)
	return SubresourceLayout{
		Size:        size,
		ColPitch:    col,
		RowPitch:    rowPitch,
		SlicePitch:  slicePitch,
		SizeInBytes: slicePitch * uint64(size.Depth),
		RowCount:    rows,
	}
}

// RegionLayout computes the layout of an arbitrary region, such as the
// footprint of a partial copy.
func RegionLayout(f Format, size Extent, rowAlignment uint64) (SubresourceLayout, error) {
	return Layout(f, size, 0, rowAlignment)
}

// TotalSize returns the byte size of every subresource of a texture laid
// out back to back, layer-major.
func TotalSize(f Format, base Extent, layers, mips uint32, rowAlignment uint64) (uint64, error) {
	var total uint64
	for mip := range mips {
		l, err := Layout(f, base, mip, rowAlignment)
		if err != nil {
			return 0, err
		}
		total += l.SizeInBytes
	}
	return total * uint64(layers), nil
}
