// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"errors"
	"testing"

	"github.com/gogpu/rhi/format"
)

func TestNormalizeTexture(t *testing.T) {
	limits := Limits{
		MaxTextureDimension1D: 4096,
		MaxTextureDimension2D: 4096,
		MaxTextureDimension3D: 256,
		MaxTextureArrayLayers: 64,
	}
	all := FeatureTexture1DMips | FeatureTextureCompressionBC

	tests := []struct {
		name     string
		desc     TextureDesc
		features Feature
		wantType TextureType
		layers   uint32
		mips     uint32
		wantErr  error
	}{
		{
			name:     "2D defaults",
			desc:     TextureDesc{Type: Texture2D, Format: format.RGBA8Unorm, Width: 8, Height: 8},
			wantType: Texture2D, layers: 1, mips: 1,
		},
		{
			name:     "2D array promotion",
			desc:     TextureDesc{Type: Texture2D, Format: format.RGBA8Unorm, Width: 8, Height: 8, ArrayLength: 4},
			wantType: Texture2DArray, layers: 4, mips: 1,
		},
		{
			name:     "1D array promotion",
			desc:     TextureDesc{Type: Texture1D, Format: format.R32Float, Width: 64, ArrayLength: 16},
			wantType: Texture1DArray, layers: 16, mips: 1,
		},
		{
			name:     "cube has six faces",
			desc:     TextureDesc{Type: TextureCube, Format: format.RGBA16Float, Width: 16, Height: 16},
			wantType: TextureCube, layers: 6, mips: 1,
		},
		{
			name:     "cube array",
			desc:     TextureDesc{Type: TextureCube, Format: format.RGBA16Float, Width: 16, Height: 16, ArrayLength: 2, MipCount: AllMips},
			wantType: TextureCubeArray, layers: 12, mips: 5,
		},
		{
			name:     "full chain of a non-square texture",
			desc:     TextureDesc{Type: Texture2D, Format: format.R8Unorm, Width: 64, Height: 4, MipCount: AllMips},
			wantType: Texture2D, layers: 1, mips: 7,
		},
		{
			name:     "3D mips",
			desc:     TextureDesc{Type: Texture3D, Format: format.R8Unorm, Width: 4, Height: 4, Depth: 32, MipCount: Mips(6)},
			wantType: Texture3D, layers: 1, mips: 6,
		},
		{
			name:     "1D mips with feature",
			desc:     TextureDesc{Type: Texture1D, Format: format.R8Unorm, Width: 16, MipCount: AllMips},
			features: FeatureTexture1DMips,
			wantType: Texture1D, layers: 1, mips: 5,
		},
		{
			name:     "multisampled",
			desc:     TextureDesc{Type: Texture2DMS, Format: format.RGBA8Unorm, Width: 8, Height: 8, SampleCount: 4, ArrayLength: 2},
			wantType: Texture2DMSArray, layers: 2, mips: 1,
		},
		{
			name:     "compressed",
			desc:     TextureDesc{Type: Texture2D, Format: format.BC1Unorm, Width: 16, Height: 8, MipCount: Mips(2)},
			features: all,
			wantType: Texture2D, layers: 1, mips: 2,
		},
		{
			name:    "undefined format",
			desc:    TextureDesc{Type: Texture2D, Width: 8, Height: 8},
			wantErr: ErrValidation,
		},
		{
			name:    "zero width",
			desc:    TextureDesc{Type: Texture2D, Format: format.R8Unorm, Height: 8},
			wantErr: ErrValidation,
		},
		{
			name:    "1D with height",
			desc:    TextureDesc{Type: Texture1D, Format: format.R8Unorm, Width: 8, Height: 2},
			wantErr: ErrValidation,
		},
		{
			name:    "2D with depth",
			desc:    TextureDesc{Type: Texture2D, Format: format.R8Unorm, Width: 8, Height: 8, Depth: 2},
			wantErr: ErrValidation,
		},
		{
			name:    "non-square cube",
			desc:    TextureDesc{Type: TextureCube, Format: format.R8Unorm, Width: 8, Height: 4},
			wantErr: ErrValidation,
		},
		{
			name:    "3D array",
			desc:    TextureDesc{Type: Texture3D, Format: format.R8Unorm, Width: 8, Height: 8, Depth: 8, ArrayLength: 2},
			wantErr: ErrCapability,
		},
		{
			name:    "1D mips without feature",
			desc:    TextureDesc{Type: Texture1D, Format: format.R8Unorm, Width: 16, MipCount: Mips(2)},
			wantErr: ErrCapability,
		},
		{
			name:    "samples on a single-sampled type",
			desc:    TextureDesc{Type: Texture2D, Format: format.R8Unorm, Width: 8, Height: 8, SampleCount: 4},
			wantErr: ErrValidation,
		},
		{
			name:    "multisampled mips",
			desc:    TextureDesc{Type: Texture2DMS, Format: format.R8Unorm, Width: 8, Height: 8, SampleCount: 4, MipCount: AllMips},
			wantErr: ErrValidation,
		},
		{
			name:    "zero mips",
			desc:    TextureDesc{Type: Texture2D, Format: format.R8Unorm, Width: 8, Height: 8, MipCount: Mips(0)},
			wantErr: ErrValidation,
		},
		{
			name:    "too many mips",
			desc:    TextureDesc{Type: Texture2D, Format: format.R8Unorm, Width: 8, Height: 8, MipCount: Mips(5)},
			wantErr: ErrValidation,
		},
		{
			name:    "compressed without feature",
			desc:    TextureDesc{Type: Texture2D, Format: format.BC7Unorm, Width: 16, Height: 16},
			wantErr: ErrCapability,
		},
		{
			name:     "compressed 3D",
			desc:     TextureDesc{Type: Texture3D, Format: format.BC1Unorm, Width: 16, Height: 16, Depth: 4},
			features: all,
			wantErr:  ErrCapability,
		},
		{
			name:     "compressed partial block",
			desc:     TextureDesc{Type: Texture2D, Format: format.BC3Unorm, Width: 6, Height: 8},
			features: all,
			wantErr:  ErrValidation,
		},
		{
			name:    "2D limit",
			desc:    TextureDesc{Type: Texture2D, Format: format.R8Unorm, Width: 8192, Height: 8},
			wantErr: ErrCapability,
		},
		{
			name:    "3D limit",
			desc:    TextureDesc{Type: Texture3D, Format: format.R8Unorm, Width: 8, Height: 8, Depth: 512},
			wantErr: ErrCapability,
		},
		{
			name:    "layer limit",
			desc:    TextureDesc{Type: TextureCube, Format: format.R8Unorm, Width: 8, Height: 8, ArrayLength: 11},
			wantErr: ErrCapability,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, _, err := normalizeTexture(tt.desc, tt.features, limits)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("normalizeTexture: %v", err)
			}
			if n.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", n.Type, tt.wantType)
			}
			if got := n.LayerCount(); got != tt.layers {
				t.Errorf("LayerCount = %d, want %d", got, tt.layers)
			}
			if n.MipCount != tt.mips {
				t.Errorf("MipCount = %d, want %d", n.MipCount, tt.mips)
			}
			if !n.Usage.Has(TextureUsageCopySource | TextureUsageCopyDestination) {
				t.Errorf("Usage = %v, want the implicit copy usages", n.Usage)
			}
		})
	}
}

func TestMipCountString(t *testing.T) {
	tests := []struct {
		m    MipCount
		want string
	}{
		{MipCount{}, "1"},
		{AllMips, "all"},
		{Mips(3), "3"},
	}
	for _, tt := range tests {
		if got := tt.m.String(); got != tt.want {
			t.Errorf("%#v.String() = %q, want %q", tt.m, got, tt.want)
		}
	}
	if !AllMips.IsAll() || Mips(3).IsAll() {
		t.Error("IsAll mismatch")
	}
}

func TestTextureViews(t *testing.T) {
	d := openSoftware(t)
	tex, err := d.CreateTexture(TextureDesc{
		Label:       "chain",
		Type:        Texture2D,
		Format:      format.RGBA8Unorm,
		Width:       16,
		Height:      16,
		ArrayLength: 3,
		MipCount:    AllMips,
		Usage:       TextureUsageShaderResource,
	})
	if err != nil {
		t.Fatal(err)
	}
	if tex.MipCount() != 5 || tex.SubresourceCount() != 15 || tex.SubresourceIndex(2, 1) != 11 {
		t.Fatalf("MipCount = %d, SubresourceCount = %d", tex.MipCount(), tex.SubresourceCount())
	}

	v, err := tex.CreateView(TextureViewDesc{Range: SubresourceRange{Layer: 1, Mip: 2}})
	if err != nil {
		t.Fatal(err)
	}
	if r := v.Range(); r != (SubresourceRange{Layer: 1, LayerCount: 2, Mip: 2, MipCount: 3}) {
		t.Errorf("Range = %+v", r)
	}
	if v.Format() != format.RGBA8Unorm {
		t.Errorf("Format = %v", v.Format())
	}

	if _, err := tex.CreateView(TextureViewDesc{Format: format.R32Uint}); err != nil {
		t.Errorf("same-size view format: %v", err)
	}

	bad := []struct {
		name string
		desc TextureViewDesc
		want error
	}{
		{"base mip", TextureViewDesc{Range: SubresourceRange{Mip: 5}}, ErrRange},
		{"mip count", TextureViewDesc{Range: SubresourceRange{Mip: 1, MipCount: 5}}, ErrRange},
		{"base layer", TextureViewDesc{Range: SubresourceRange{Layer: 3}}, ErrRange},
		{"layer count", TextureViewDesc{Range: SubresourceRange{Layer: 2, LayerCount: 2}}, ErrRange},
		{"format size", TextureViewDesc{Format: format.RGBA16Float}, ErrValidation},
		{"block shape", TextureViewDesc{Format: format.BC2Unorm}, ErrValidation},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tex.CreateView(tt.desc); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	tex.Destroy()
	if _, err := tex.CreateView(TextureViewDesc{}); !errors.Is(err, ErrUseAfterFree) {
		t.Errorf("view of destroyed texture = %v, want ErrUseAfterFree", err)
	}
}

func TestTextureLayouts(t *testing.T) {
	d := openSoftware(t)
	tex, err := d.CreateTexture(TextureDesc{Type: Texture2D, Format: format.RGBA8Unorm, Width: 5, Height: 3, MipCount: AllMips})
	if err != nil {
		t.Fatal(err)
	}
	l, err := tex.Layout(0)
	if err != nil {
		t.Fatal(err)
	}
	if l.RowPitch != 256 || l.SizeInBytes != 768 || l.RowCount != 3 {
		t.Errorf("Layout(0) = %+v", l)
	}
	l, err = tex.SubresourceLayout(2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if l.Size != (format.Extent{Width: 1, Height: 1, Depth: 1}) || l.SizeInBytes != 4 {
		t.Errorf("SubresourceLayout(2, 1) = %+v", l)
	}
	if _, err := tex.SubresourceLayout(3, 1); !errors.Is(err, ErrRange) {
		t.Errorf("mip 3 = %v, want ErrRange", err)
	}
	if _, err := tex.SubresourceLayout(0, 3); !errors.Is(err, ErrValidation) {
		t.Errorf("alignment 3 = %v, want ErrValidation", err)
	}
}

func TestUploadTextureDataAllAtomic(t *testing.T) {
	d := openSoftware(t)
	tex, err := d.CreateTexture(TextureDesc{Type: Texture2D, Format: format.R8Unorm, Width: 4, Height: 4, MipCount: AllMips})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		data [][]byte
		want error
	}{
		{"last mip wrong size", [][]byte{make([]byte, 16), make([]byte, 4), make([]byte, 99)}, ErrSizeMismatch},
		{"first mip wrong size", [][]byte{make([]byte, 15), make([]byte, 4), make([]byte, 1)}, ErrSizeMismatch},
		{"missing subresource", [][]byte{make([]byte, 16), make([]byte, 4)}, ErrSizeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := d.CreateCommandEncoder(tt.name)
			if err := enc.UploadTextureDataAll(tex, tt.data); !errors.Is(err, tt.want) {
				t.Fatalf("UploadTextureDataAll = %v, want %v", err, tt.want)
			}
			cb, err := enc.Finish()
			if err != nil {
				t.Fatal(err)
			}
			if cb.Len() != 0 {
				t.Errorf("Len = %d after a rejected upload, want 0", cb.Len())
			}
		})
	}

	enc := d.CreateCommandEncoder("valid")
	if err := enc.UploadTextureDataAll(tex, [][]byte{make([]byte, 16), make([]byte, 4), make([]byte, 1)}); err != nil {
		t.Fatal(err)
	}
	cb, _ := enc.Finish()
	if cb.Len() != 3 {
		t.Errorf("Len = %d, want 3", cb.Len())
	}
}
