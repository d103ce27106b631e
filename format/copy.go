// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package format

import (
	"errors"
	"fmt"
)

// ErrRegion is returned when a copy region falls outside a subresource or
// is not aligned to the format's block size.
var ErrRegion = errors.New("format: copy region out of bounds")

// Repitch copies a whole subresource between two layouts of the same size
// that differ only in row alignment.
func Repitch(info Info, dst []byte, dl SubresourceLayout, src []byte, sl SubresourceLayout) error {
	return CopyRegion(info, dst, dl, Origin{}, src, sl, Origin{}, sl.Size)
}

// CopyRegion copies a box of size texels from src at srcOrigin to dst at
// dstOrigin. Both buffers hold one subresource each, described by their
// layouts. Origins must be block aligned; the size may end on the edge of
// a subresource without being block aligned.
func CopyRegion(info Info, dst []byte, dl SubresourceLayout, dstOrigin Origin, src []byte, sl SubresourceLayout, srcOrigin Origin, size Extent) error {
	if err := CheckRegion(info, dl, dstOrigin, size); err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	if err := CheckRegion(info, sl, srcOrigin, size); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if uint64(len(dst)) < dl.SizeInBytes || uint64(len(src)) < sl.SizeInBytes {
		return fmt.Errorf("%w: buffer shorter than layout", ErrRegion)
	}

	blocksX := ceilDiv(size.Width, info.BlockWidth)
	blocksY := ceilDiv(size.Height, info.BlockHeight)
	rowBytes := uint64(blocksX) * uint64(info.BytesPerBlock)

	for z := range size.Depth {
		for by := range blocksY {
			so := offset(sl, info, srcOrigin, by, z)
			do := offset(dl, info, dstOrigin, by, z)
			copy(dst[do:do+rowBytes], src[so:so+rowBytes])
		}
	}
	return nil
}

func offset(l SubresourceLayout, info Info, o Origin, blockRow, z uint32) uint64 {
	return uint64(o.Z+z)*l.SlicePitch +
		uint64(o.Y/info.BlockHeight+blockRow)*l.RowPitch +
		uint64(o.X/info.BlockWidth)*l.ColPitch
}

// CheckRegion reports whether a box of size texels at o fits inside the
// subresource described by l and respects the format's block alignment.
func CheckRegion(info Info, l SubresourceLayout, o Origin, size Extent) error {
	if o.X%info.BlockWidth != 0 || o.Y%info.BlockHeight != 0 {
		return fmt.Errorf("%w: origin (%d,%d) not block aligned", ErrRegion, o.X, o.Y)
	}
	if uint64(o.X)+uint64(size.Width) > uint64(l.Size.Width) ||
		uint64(o.Y)+uint64(size.Height) > uint64(l.Size.Height) ||
		uint64(o.Z)+uint64(size.Depth) > uint64(l.Size.Depth) {
		return fmt.Errorf("%w: origin (%d,%d,%d) size %v exceeds %v", ErrRegion, o.X, o.Y, o.Z, size, l.Size)
	}
	if (o.X+size.Width)%info.BlockWidth != 0 && o.X+size.Width != l.Size.Width {
		return fmt.Errorf("%w: width not block aligned", ErrRegion)
	}
	if (o.Y+size.Height)%info.BlockHeight != 0 && o.Y+size.Height != l.Size.Height {
		return fmt.Errorf("%w: height not block aligned", ErrRegion)
	}
	return nil
}
