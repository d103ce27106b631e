// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package software

import (
	"github.com/gogpu/rhi/driver"
	"github.com/gogpu/rhi/format"
)

// pitched returns the layout of a region stored in a buffer with rows
// rowPitch bytes apart. The last row is not padded.
func pitched(f format.Format, size format.Extent, rowPitch uint64) format.SubresourceLayout {
	l, _ := format.RegionLayout(f, size, 1)
	rowBytes := l.RowPitch
	l.RowPitch = rowPitch
	l.SlicePitch = rowPitch * uint64(l.RowCount)
	l.SizeInBytes = l.SlicePitch*uint64(size.Depth) - (rowPitch - rowBytes)
	return l
}

func (d *Device) uploadTexture(c driver.UploadTexture) error {
	t := c.Dst.Texture.(*texture)
	sub, sl := t.sub(c.Dst.Layer, c.Dst.Mip)
	src, _ := format.RegionLayout(t.desc.Format, c.Dst.Size, 1)
	return format.CopyRegion(t.info, sub, sl, c.Dst.Origin, c.Data, src, format.Origin{}, c.Dst.Size)
}

func (d *Device) readTexture(c driver.ReadTexture) error {
	t := c.Src.Texture.(*texture)
	sub, sl := t.sub(c.Src.Layer, c.Src.Mip)
	dst, _ := format.RegionLayout(t.desc.Format, c.Src.Size, 1)
	return format.CopyRegion(t.info, c.Dst, dst, format.Origin{}, sub, sl, c.Src.Origin, c.Src.Size)
}

func (d *Device) copyTexture(c driver.CopyTexture) error {
	dt, st := c.Dst.Texture.(*texture), c.Src.Texture.(*texture)
	dsub, dl := dt.sub(c.Dst.Layer, c.Dst.Mip)
	ssub, sl := st.sub(c.Src.Layer, c.Src.Mip)
	return format.CopyRegion(st.info, dsub, dl, c.Dst.Origin, ssub, sl, c.Src.Origin, c.Src.Size)
}

func (d *Device) copyTextureToBuffer(c driver.CopyTextureToBuffer) error {
	t := c.Src.Texture.(*texture)
	sub, sl := t.sub(c.Src.Layer, c.Src.Mip)
	bl := pitched(t.desc.Format, c.Src.Size, c.RowPitch)
	dst := c.Dst.(*buffer).data[c.DstOffset:]
	return format.CopyRegion(t.info, dst, bl, format.Origin{}, sub, sl, c.Src.Origin, c.Src.Size)
}

func (d *Device) copyBufferToTexture(c driver.CopyBufferToTexture) error {
	t := c.Dst.Texture.(*texture)
	sub, dl := t.sub(c.Dst.Layer, c.Dst.Mip)
	bl := pitched(t.desc.Format, c.Dst.Size, c.RowPitch)
	src := c.Src.(*buffer).data[c.SrcOffset:]
	return format.CopyRegion(t.info, sub, dl, c.Dst.Origin, src, bl, format.Origin{}, c.Dst.Size)
}
