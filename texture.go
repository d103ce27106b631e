// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"fmt"

	"github.com/gogpu/rhi/driver"
	"github.com/gogpu/rhi/format"
)

// MipCount is the requested length of a texture's mip chain.
//
// The zero value requests a single level. Use [AllMips] for the full chain
// down to 1x1 or [Mips] for an explicit count.
type MipCount struct {
	n   uint32
	all bool
	set bool
}

// AllMips requests the full mip chain.
var AllMips = MipCount{all: true, set: true}

// Mips requests exactly n mip levels. Mips(0) is rejected at creation.
func Mips(n uint32) MipCount { return MipCount{n: n, set: true} }

// IsAll reports whether m requests the full chain.
func (m MipCount) IsAll() bool { return m.all }

// resolve returns the concrete level count for a texture of extent e.
func (m MipCount) resolve(e format.Extent) (uint32, error) {
	full := format.MaxMipCount(e)
	switch {
	case !m.set:
		return 1, nil
	case m.all:
		return full, nil
	case m.n == 0:
		return 0, fmt.Errorf("%w: mip count must be at least 1", ErrValidation)
	case m.n > full:
		return 0, fmt.Errorf("%w: %d mips requested, %v supports at most %d", ErrValidation, m.n, e, full)
	}
	return m.n, nil
}

func (m MipCount) String() string {
	switch {
	case m.all:
		return "all"
	case !m.set:
		return "1"
	}
	return fmt.Sprint(m.n)
}

// TextureDesc describes a texture.
//
// Height and Depth default to 1 and ArrayLength to 1. An ArrayLength above
// 1 promotes 1D, 2D, 2D multisampled and cube textures to their array
// types.
type TextureDesc struct {
	Label       string
	Type        TextureType
	Format      format.Format
	Width       uint32
	Height      uint32
	Depth       uint32
	ArrayLength uint32
	MipCount    MipCount
	SampleCount uint32
	Usage       TextureUsage
}

// normalizeTexture validates desc against the device and resolves every
// default into a driver description.
func normalizeTexture(desc TextureDesc, features Feature, limits Limits) (driver.TextureDesc, format.Info, error) {
	info, ok := desc.Format.Info()
	if !ok {
		return driver.TextureDesc{}, info, fmt.Errorf("%w: texture %q has undefined format", ErrValidation, desc.Label)
	}

	n := driver.TextureDesc{
		Label:       desc.Label,
		Type:        desc.Type,
		Format:      desc.Format,
		Width:       desc.Width,
		Height:      max(desc.Height, 1),
		Depth:       max(desc.Depth, 1),
		ArrayLength: max(desc.ArrayLength, 1),
		SampleCount: max(desc.SampleCount, 1),
		Usage:       desc.Usage | TextureUsageCopySource | TextureUsageCopyDestination,
	}
	if n.Width == 0 {
		return n, info, fmt.Errorf("%w: texture %q has zero width", ErrValidation, desc.Label)
	}

	if n.ArrayLength > 1 {
		if n.Type == Texture3D {
			return n, info, fmt.Errorf("%w: 3D textures cannot be arrayed", ErrCapability)
		}
		n.Type = n.Type.Arrayed()
	}

	switch n.Type {
	case Texture1D, Texture1DArray:
		if n.Height != 1 || n.Depth != 1 {
			return n, info, fmt.Errorf("%w: 1D texture with height %d depth %d", ErrValidation, n.Height, n.Depth)
		}
	case Texture2D, Texture2DArray, Texture2DMS, Texture2DMSArray:
		if n.Depth != 1 {
			return n, info, fmt.Errorf("%w: 2D texture with depth %d", ErrValidation, n.Depth)
		}
	case TextureCube, TextureCubeArray:
		if n.Depth != 1 || n.Width != n.Height {
			return n, info, fmt.Errorf("%w: cube faces must be square, got %dx%dx%d", ErrValidation, n.Width, n.Height, n.Depth)
		}
	case Texture3D:
	default:
		return n, info, fmt.Errorf("%w: unknown texture type %d", ErrValidation, n.Type)
	}

	multisampled := n.Type == Texture2DMS || n.Type == Texture2DMSArray
	if !multisampled && n.SampleCount != 1 {
		return n, info, fmt.Errorf("%w: %v cannot have %d samples", ErrValidation, n.Type, n.SampleCount)
	}

	mips, err := desc.MipCount.resolve(n.Extent())
	if err != nil {
		return n, info, err
	}
	n.MipCount = mips
	if multisampled && mips != 1 {
		return n, info, fmt.Errorf("%w: multisampled textures have a single mip", ErrValidation)
	}
	if (n.Type == Texture1D || n.Type == Texture1DArray) && mips > 1 && !features.Has(FeatureTexture1DMips) {
		return n, info, fmt.Errorf("%w: 1D textures with mips require %v", ErrCapability, FeatureTexture1DMips)
	}

	if info.Compressed {
		switch n.Type {
		case Texture2D, Texture2DArray, TextureCube, TextureCubeArray:
		default:
			return n, info, fmt.Errorf("%w: compressed format %v on %v", ErrCapability, desc.Format, n.Type)
		}
		if !features.Has(FeatureTextureCompressionBC) {
			return n, info, fmt.Errorf("%w: format %v requires %v", ErrCapability, desc.Format, FeatureTextureCompressionBC)
		}
		if n.Width%info.BlockWidth != 0 || n.Height%info.BlockHeight != 0 {
			return n, info, fmt.Errorf("%w: %dx%d is not a multiple of the %dx%d block size",
				ErrValidation, n.Width, n.Height, info.BlockWidth, info.BlockHeight)
		}
	}

	if err := checkTextureLimits(n, limits); err != nil {
		return n, info, err
	}
	return n, info, nil
}

func checkTextureLimits(n driver.TextureDesc, l Limits) error {
	exceeds := func(v, lim uint32) bool { return lim != 0 && v > lim }
	switch n.Type {
	case Texture1D, Texture1DArray:
		if exceeds(n.Width, l.MaxTextureDimension1D) {
			return fmt.Errorf("%w: width %d exceeds 1D limit %d", ErrCapability, n.Width, l.MaxTextureDimension1D)
		}
	case Texture3D:
		if exceeds(max(n.Width, n.Height, n.Depth), l.MaxTextureDimension3D) {
			return fmt.Errorf("%w: extent %v exceeds 3D limit %d", ErrCapability, n.Extent(), l.MaxTextureDimension3D)
		}
	default:
		if exceeds(max(n.Width, n.Height), l.MaxTextureDimension2D) {
			return fmt.Errorf("%w: extent %v exceeds 2D limit %d", ErrCapability, n.Extent(), l.MaxTextureDimension2D)
		}
	}
	if exceeds(n.LayerCount(), l.MaxTextureArrayLayers) {
		return fmt.Errorf("%w: %d layers exceed limit %d", ErrCapability, n.LayerCount(), l.MaxTextureArrayLayers)
	}
	return nil
}

// Texture is a multi-dimensional image with optional mips and layers.
//
// A texture's subresources are addressed by (layer, mip). Cube textures
// have six layers per array element.
type Texture struct {
	resource
	drv  driver.Texture
	desc driver.TextureDesc
	info format.Info
}

// CreateTexture creates a texture. The description is normalized first:
// array promotion, mip expansion and the implicit copy usages. Every
// texture can be copied to and from the host.
func (d *Device) CreateTexture(desc TextureDesc) (*Texture, error) {
	if err := d.usable(); err != nil {
		return nil, err
	}
	n, info, err := normalizeTexture(desc, d.info.Features, d.info.Limits)
	if err != nil {
		return nil, fmt.Errorf("rhi: create texture %q: %w", desc.Label, err)
	}
	nt, err := d.drv.CreateTexture(n)
	if err != nil {
		return nil, fmt.Errorf("rhi: create texture %q: %w", desc.Label, err)
	}

	size, _ := format.TotalSize(n.Format, n.Extent(), n.LayerCount(), n.MipCount, 1)
	t := &Texture{drv: nt, desc: n, info: info}
	t.init(d, KindTexture, desc.Label, size*uint64(n.SampleCount), nt.Destroy)
	return t, nil
}

// Type returns the normalized texture type.
func (t *Texture) Type() TextureType { return t.desc.Type }

// Format returns the texel format.
func (t *Texture) Format() format.Format { return t.desc.Format }

// FormatInfo returns the metadata of the texel format.
func (t *Texture) FormatInfo() format.Info { return t.info }

// Width returns the width of mip 0.
func (t *Texture) Width() uint32 { return t.desc.Width }

// Height returns the height of mip 0.
func (t *Texture) Height() uint32 { return t.desc.Height }

// Depth returns the depth of mip 0.
func (t *Texture) Depth() uint32 { return t.desc.Depth }

// Extent returns the size of mip 0.
func (t *Texture) Extent() format.Extent { return t.desc.Extent() }

// ArrayLength returns the number of array elements.
func (t *Texture) ArrayLength() uint32 { return t.desc.ArrayLength }

// LayerCount returns the number of layers, which is ArrayLength times six
// for cube textures.
func (t *Texture) LayerCount() uint32 { return t.desc.LayerCount() }

// MipCount returns the resolved number of mip levels.
func (t *Texture) MipCount() uint32 { return t.desc.MipCount }

// SampleCount returns the number of samples per texel.
func (t *Texture) SampleCount() uint32 { return t.desc.SampleCount }

// Usage returns the normalized usage flags.
func (t *Texture) Usage() TextureUsage { return t.desc.Usage }

// Desc returns the normalized description.
func (t *Texture) Desc() driver.TextureDesc { return t.desc }

// SubresourceCount returns LayerCount times MipCount.
func (t *Texture) SubresourceCount() uint32 { return t.LayerCount() * t.MipCount() }

// SubresourceIndex returns the flat index of (layer, mip).
func (t *Texture) SubresourceIndex(layer, mip uint32) uint32 {
	return layer*t.desc.MipCount + mip
}

// MipExtent returns the size of a mip level.
func (t *Texture) MipExtent(mip uint32) format.Extent {
	return format.MipExtent(t.desc.Extent(), mip)
}

// Destroy releases the texture once in-flight work referencing it has
// completed. Recording commands that use the texture or any of its views
// afterwards fails with ErrUseAfterFree.
func (t *Texture) Destroy() { t.destroy() }

func (t *Texture) checkSubresource(layer, mip uint32) error {
	if layer >= t.LayerCount() {
		return fmt.Errorf("%w: layer %d of %v with %d layers", ErrRange, layer, &t.resource, t.LayerCount())
	}
	if mip >= t.MipCount() {
		return fmt.Errorf("%w: mip %d of %v with %d mips", ErrRange, mip, &t.resource, t.MipCount())
	}
	return nil
}

// SubresourceLayout returns the layout of mip level mip with rows aligned
// to rowAlignment bytes, which must be a power of two.
func (t *Texture) SubresourceLayout(mip uint32, rowAlignment uint64) (format.SubresourceLayout, error) {
	if mip >= t.MipCount() {
		return format.SubresourceLayout{}, fmt.Errorf("%w: mip %d of %v with %d mips", ErrRange, mip, &t.resource, t.MipCount())
	}
	l, err := format.Layout(t.desc.Format, t.desc.Extent(), mip, rowAlignment)
	if err != nil {
		return l, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return l, nil
}

// Layout returns the layout of a mip level using the device's native row
// alignment.
func (t *Texture) Layout(mip uint32) (format.SubresourceLayout, error) {
	return t.SubresourceLayout(mip, t.dev.info.RowAlignment)
}

// packedLayout returns the tightly packed layout of a mip level.
func (t *Texture) packedLayout(mip uint32) format.SubresourceLayout {
	l, _ := format.Layout(t.desc.Format, t.desc.Extent(), mip, 1)
	return l
}

func (t *Texture) fullRegion(layer, mip uint32) driver.TextureRegion {
	return driver.TextureRegion{Texture: t.drv, Layer: layer, Mip: mip, Size: t.MipExtent(mip)}
}

// CopyFromHost replaces one subresource with tightly packed data and waits
// for the write to complete.
func (t *Texture) CopyFromHost(data []byte, layer, mip uint32) error {
	return t.dev.record("texture upload", func(e *CommandEncoder) error {
		return e.UploadTextureData(t, layer, mip, data)
	})
}

// ToHost returns one subresource, tightly packed, after all previously
// submitted work has executed.
func (t *Texture) ToHost(layer, mip uint32) ([]byte, error) {
	if err := t.check(t.dev); err != nil {
		return nil, err
	}
	if err := t.checkSubresource(layer, mip); err != nil {
		return nil, err
	}
	out := make([]byte, t.packedLayout(mip).SizeInBytes)
	err := t.dev.record("texture readback", func(e *CommandEncoder) error {
		e.wrap(&t.resource, driver.ReadTexture{Src: t.fullRegion(layer, mip), Dst: out})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
