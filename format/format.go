// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package format describes texel formats and computes the memory layout of
// texture subresources.
//
// Every [Format] has an immutable [Info] record holding its block geometry.
// Uncompressed formats use 1x1 blocks; block-compressed formats (BC1-BC7)
// use 4x4 blocks. The layout engine in this package works in blocks, so the
// same arithmetic serves both.
package format

import (
	"fmt"
	"strings"
)

// Format identifies a texel format.
type Format uint16

// Supported formats.
const (
	Undefined Format = iota

	R8Unorm
	R8Snorm
	R8Uint
	R8Sint
	RG8Unorm
	RG8Uint
	RGBA8Unorm
	RGBA8UnormSrgb
	RGBA8Snorm
	RGBA8Uint
	RGBA8Sint
	BGRA8Unorm
	BGRA8UnormSrgb

	R16Unorm
	R16Uint
	R16Float
	RG16Float
	RGBA16Unorm
	RGBA16Uint
	RGBA16Float

	R32Uint
	R32Sint
	R32Float
	RG32Uint
	RG32Float
	RGB32Uint
	RGB32Float
	RGBA32Uint
	RGBA32Sint
	RGBA32Float

	D16Unorm
	D32Float
	D24UnormS8Uint

	BC1Unorm
	BC1UnormSrgb
	BC2Unorm
	BC3Unorm
	BC3UnormSrgb
	BC4Unorm
	BC5Unorm
	BC6HUfloat
	BC7Unorm
	BC7UnormSrgb

	formatCount
)

// Kind is the numeric interpretation of a format's components.
type Kind uint8

// Component kinds.
const (
	KindUnknown Kind = iota
	KindUnorm
	KindSnorm
	KindUint
	KindSint
	KindFloat
	KindDepth
	KindDepthStencil
)

var kindNames = [...]string{"unknown", "unorm", "snorm", "uint", "sint", "float", "depth", "depth_stencil"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Info is the immutable metadata of a format.
type Info struct {
	Format        Format
	Name          string
	BytesPerBlock uint32
	BlockWidth    uint32
	BlockHeight   uint32
	ChannelCount  uint32
	Kind          Kind
	Compressed    bool
	SRGB          bool
}

// IsDepth reports whether the format has a depth aspect.
func (i Info) IsDepth() bool {
	return i.Kind == KindDepth || i.Kind == KindDepthStencil
}

// HasStencil reports whether the format has a stencil aspect.
func (i Info) HasStencil() bool {
	return i.Kind == KindDepthStencil
}

func plain(f Format, name string, bytes, channels uint32, kind Kind) Info {
	return Info{Format: f, Name: name, BytesPerBlock: bytes, BlockWidth: 1, BlockHeight: 1, ChannelCount: channels, Kind: kind}
}

func bc(f Format, name string, bytes, channels uint32, kind Kind, srgb bool) Info {
	return Info{Format: f, Name: name, BytesPerBlock: bytes, BlockWidth: 4, BlockHeight: 4, ChannelCount: channels, Kind: kind, Compressed: true, SRGB: srgb}
}

var table = [formatCount]Info{
	Undefined: {Name: "undefined"},

	R8Unorm:        plain(R8Unorm, "r8_unorm", 1, 1, KindUnorm),
	R8Snorm:        plain(R8Snorm, "r8_snorm", 1, 1, KindSnorm),
	R8Uint:         plain(R8Uint, "r8_uint", 1, 1, KindUint),
	R8Sint:         plain(R8Sint, "r8_sint", 1, 1, KindSint),
	RG8Unorm:       plain(RG8Unorm, "rg8_unorm", 2, 2, KindUnorm),
	RG8Uint:        plain(RG8Uint, "rg8_uint", 2, 2, KindUint),
	RGBA8Unorm:     plain(RGBA8Unorm, "rgba8_unorm", 4, 4, KindUnorm),
	RGBA8UnormSrgb: {Format: RGBA8UnormSrgb, Name: "rgba8_unorm_srgb", BytesPerBlock: 4, BlockWidth: 1, BlockHeight: 1, ChannelCount: 4, Kind: KindUnorm, SRGB: true},
	RGBA8Snorm:     plain(RGBA8Snorm, "rgba8_snorm", 4, 4, KindSnorm),
	RGBA8Uint:      plain(RGBA8Uint, "rgba8_uint", 4, 4, KindUint),
	RGBA8Sint:      plain(RGBA8Sint, "rgba8_sint", 4, 4, KindSint),
	BGRA8Unorm:     plain(BGRA8Unorm, "bgra8_unorm", 4, 4, KindUnorm),
	BGRA8UnormSrgb: {Format: BGRA8UnormSrgb, Name: "bgra8_unorm_srgb", BytesPerBlock: 4, BlockWidth: 1, BlockHeight: 1, ChannelCount: 4, Kind: KindUnorm, SRGB: true},

	R16Unorm:    plain(R16Unorm, "r16_unorm", 2, 1, KindUnorm),
	R16Uint:     plain(R16Uint, "r16_uint", 2, 1, KindUint),
	R16Float:    plain(R16Float, "r16_float", 2, 1, KindFloat),
	RG16Float:   plain(RG16Float, "rg16_float", 4, 2, KindFloat),
	RGBA16Unorm: plain(RGBA16Unorm, "rgba16_unorm", 8, 4, KindUnorm),
	RGBA16Uint:  plain(RGBA16Uint, "rgba16_uint", 8, 4, KindUint),
	RGBA16Float: plain(RGBA16Float, "rgba16_float", 8, 4, KindFloat),

	R32Uint:     plain(R32Uint, "r32_uint", 4, 1, KindUint),
	R32Sint:     plain(R32Sint, "r32_sint", 4, 1, KindSint),
	R32Float:    plain(R32Float, "r32_float", 4, 1, KindFloat),
	RG32Uint:    plain(RG32Uint, "rg32_uint", 8, 2, KindUint),
	RG32Float:   plain(RG32Float, "rg32_float", 8, 2, KindFloat),
	RGB32Uint:   plain(RGB32Uint, "rgb32_uint", 12, 3, KindUint),
	RGB32Float:  plain(RGB32Float, "rgb32_float", 12, 3, KindFloat),
	RGBA32Uint:  plain(RGBA32Uint, "rgba32_uint", 16, 4, KindUint),
	RGBA32Sint:  plain(RGBA32Sint, "rgba32_sint", 16, 4, KindSint),
	RGBA32Float: plain(RGBA32Float, "rgba32_float", 16, 4, KindFloat),

	D16Unorm:       plain(D16Unorm, "d16_unorm", 2, 1, KindDepth),
	D32Float:       plain(D32Float, "d32_float", 4, 1, KindDepth),
	D24UnormS8Uint: plain(D24UnormS8Uint, "d24_unorm_s8_uint", 4, 2, KindDepthStencil),

	BC1Unorm:     bc(BC1Unorm, "bc1_unorm", 8, 4, KindUnorm, false),
	BC1UnormSrgb: bc(BC1UnormSrgb, "bc1_unorm_srgb", 8, 4, KindUnorm, true),
	BC2Unorm:     bc(BC2Unorm, "bc2_unorm", 16, 4, KindUnorm, false),
	BC3Unorm:     bc(BC3Unorm, "bc3_unorm", 16, 4, KindUnorm, false),
	BC3UnormSrgb: bc(BC3UnormSrgb, "bc3_unorm_srgb", 16, 4, KindUnorm, true),
	BC4Unorm:     bc(BC4Unorm, "bc4_unorm", 8, 1, KindUnorm, false),
	BC5Unorm:     bc(BC5Unorm, "bc5_unorm", 16, 2, KindUnorm, false),
	BC6HUfloat:   bc(BC6HUfloat, "bc6h_ufloat", 16, 3, KindFloat, false),
	BC7Unorm:     bc(BC7Unorm, "bc7_unorm", 16, 4, KindUnorm, false),
	BC7UnormSrgb: bc(BC7UnormSrgb, "bc7_unorm_srgb", 16, 4, KindUnorm, true),
}

// Valid reports whether f names a defined format.
func (f Format) Valid() bool {
	return f > Undefined && f < formatCount
}

// Info returns the metadata of f. The boolean is false for Undefined and
// for values outside the table.
func (f Format) Info() (Info, bool) {
	if !f.Valid() {
		return Info{}, false
	}
	return table[f], true
}

// String returns the canonical lower-case name of the format.
func (f Format) String() string {
	if f < formatCount {
		return table[f].Name
	}
	return fmt.Sprintf("Format(%d)", uint16(f))
}

// Parse resolves a canonical format name. Matching ignores case.
func Parse(name string) (Format, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for f := R8Unorm; f < formatCount; f++ {
		if table[f].Name == n {
			return f, nil
		}
	}
	return Undefined, fmt.Errorf("format: unknown format %q", name)
}

// All returns every defined format in declaration order.
func All() []Format {
	out := make([]Format, 0, formatCount-1)
	for f := R8Unorm; f < formatCount; f++ {
		out = append(out, f)
	}
	return out
}
