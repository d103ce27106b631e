// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"fmt"

	"github.com/gogpu/rhi/format"
)

// SubresourceRange selects layers and mips of a texture. A zero count
// means every remaining layer or mip after the base.
type SubresourceRange struct {
	Layer      uint32
	LayerCount uint32
	Mip        uint32
	MipCount   uint32
}

// TextureViewDesc describes a texture view. A zero Format means the
// texture's own format.
type TextureViewDesc struct {
	Label  string
	Format format.Format
	Range  SubresourceRange
}

// TextureView is a texture restricted to a subresource range. A view does
// not own its texture and becomes unusable when the texture is destroyed.
type TextureView struct {
	texture *Texture
	label   string
	format  format.Format
	rng     SubresourceRange
}

// resolveRange fills in zero counts and checks that r fits t.
func (t *Texture) resolveRange(r SubresourceRange) (SubresourceRange, error) {
	layers, mips := t.LayerCount(), t.MipCount()
	if r.Layer >= layers {
		return r, fmt.Errorf("%w: base layer %d of %v with %d layers", ErrRange, r.Layer, &t.resource, layers)
	}
	if r.Mip >= mips {
		return r, fmt.Errorf("%w: base mip %d of %v with %d mips", ErrRange, r.Mip, &t.resource, mips)
	}
	if r.LayerCount == 0 {
		r.LayerCount = layers - r.Layer
	}
	if r.MipCount == 0 {
		r.MipCount = mips - r.Mip
	}
	if r.LayerCount > layers-r.Layer {
		return r, fmt.Errorf("%w: layers [%d, %d) of %v with %d layers", ErrRange, r.Layer, r.Layer+r.LayerCount, &t.resource, layers)
	}
	if r.MipCount > mips-r.Mip {
		return r, fmt.Errorf("%w: mips [%d, %d) of %v with %d mips", ErrRange, r.Mip, r.Mip+r.MipCount, &t.resource, mips)
	}
	return r, nil
}

// CreateView creates a view over a subresource range of t.
func (t *Texture) CreateView(desc TextureViewDesc) (*TextureView, error) {
	if err := t.check(t.dev); err != nil {
		return nil, err
	}
	rng, err := t.resolveRange(desc.Range)
	if err != nil {
		return nil, err
	}
	f := desc.Format
	if f == format.Undefined {
		f = t.desc.Format
	}
	if fi, ok := f.Info(); !ok || fi.BytesPerBlock != t.info.BytesPerBlock ||
		fi.BlockWidth != t.info.BlockWidth || fi.BlockHeight != t.info.BlockHeight {
		return nil, fmt.Errorf("%w: view format %v is not compatible with %v", ErrValidation, f, t.desc.Format)
	}
	return &TextureView{texture: t, label: desc.Label, format: f, rng: rng}, nil
}

// Texture returns the viewed texture.
func (v *TextureView) Texture() *Texture { return v.texture }

// Label returns the debug label.
func (v *TextureView) Label() string { return v.label }

// Format returns the view format.
func (v *TextureView) Format() format.Format { return v.format }

// Range returns the resolved subresource range.
func (v *TextureView) Range() SubresourceRange { return v.rng }

// check fails with ErrUseAfterFree once the texture is destroyed.
func (v *TextureView) check(dev *Device) error {
	return v.texture.check(dev)
}
