// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import (
	"strings"

	"github.com/gogpu/rhi/format"
)

// Feature is a set of optional device capabilities.
type Feature uint32

// Optional features.
const (
	// FeatureAccelerationStructure enables acceleration structure builds.
	FeatureAccelerationStructure Feature = 1 << iota
	// FeatureRayQuery enables tracing rays from compute kernels.
	FeatureRayQuery
	// FeatureTimestampQuery enables timestamp query pools.
	FeatureTimestampQuery
	// FeatureTexture1DMips allows 1D textures with more than one mip level.
	FeatureTexture1DMips
	// FeatureTextureCompressionBC enables block-compressed formats.
	FeatureTextureCompressionBC
	// FeatureHostKernels means the device runs kernels given as Go functions.
	FeatureHostKernels
	// FeatureWGSLKernels means the device runs kernels given as WGSL source.
	FeatureWGSLKernels
)

var featureNames = []string{
	"acceleration-structure",
	"ray-query",
	"timestamp-query",
	"texture-1d-mips",
	"texture-compression-bc",
	"host-kernels",
	"wgsl-kernels",
}

// Has reports whether every feature in want is present in f.
func (f Feature) Has(want Feature) bool {
	return f&want == want
}

func (f Feature) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for i, name := range featureNames {
		if f&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// Limits are device size limits.
type Limits struct {
	MaxBufferSize         uint64
	MaxTextureDimension1D uint32
	MaxTextureDimension2D uint32
	MaxTextureDimension3D uint32
	MaxTextureArrayLayers uint32
	MaxWorkgroupSize      [3]uint32
}

// DeviceInfo describes an opened device.
type DeviceInfo struct {
	Name     string
	Backend  string
	Features Feature
	Limits   Limits

	// RowAlignment is the row pitch alignment the device uses for texture
	// data in buffers. It is always a power of two.
	RowAlignment uint64

	// TimestampFrequency is the number of timestamp ticks per second.
	TimestampFrequency uint64
}

// BufferUsage is a set of buffer usage flags.
type BufferUsage uint32

// Buffer usages.
const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageConstant
	BufferUsageShaderResource
	BufferUsageUnorderedAccess
	BufferUsageIndirectArgument
	BufferUsageCopySource
	BufferUsageCopyDestination
	BufferUsageAccelerationStructure
	BufferUsageAccelerationStructureBuildInput
	BufferUsageShaderTable

	BufferUsageNone BufferUsage = 0
)

var bufferUsageNames = []string{
	"vertex", "index", "constant", "shader_resource", "unordered_access",
	"indirect_argument", "copy_source", "copy_destination",
	"acceleration_structure", "acceleration_structure_build_input", "shader_table",
}

// Has reports whether every flag in want is set.
func (u BufferUsage) Has(want BufferUsage) bool {
	return u&want == want
}

func (u BufferUsage) String() string {
	return flagString(uint32(u), bufferUsageNames)
}

// MemoryType selects where buffer storage lives.
type MemoryType uint8

// Memory types.
const (
	MemoryDeviceLocal MemoryType = iota
	MemoryUpload
	MemoryReadBack
)

func (m MemoryType) String() string {
	switch m {
	case MemoryDeviceLocal:
		return "device_local"
	case MemoryUpload:
		return "upload"
	case MemoryReadBack:
		return "read_back"
	default:
		return "unknown"
	}
}

// TextureType is the dimensionality and arrayness of a texture.
type TextureType uint8

// Texture types.
const (
	Texture1D TextureType = iota
	Texture1DArray
	Texture2D
	Texture2DArray
	Texture2DMS
	Texture2DMSArray
	Texture3D
	TextureCube
	TextureCubeArray
)

var textureTypeNames = [...]string{
	"texture_1d", "texture_1d_array", "texture_2d", "texture_2d_array",
	"texture_2d_ms", "texture_2d_ms_array", "texture_3d", "texture_cube", "texture_cube_array",
}

func (t TextureType) String() string {
	if int(t) < len(textureTypeNames) {
		return textureTypeNames[t]
	}
	return "unknown"
}

// IsArray reports whether t is an arrayed type.
func (t TextureType) IsArray() bool {
	switch t {
	case Texture1DArray, Texture2DArray, Texture2DMSArray, TextureCubeArray:
		return true
	}
	return false
}

// IsCube reports whether t is a cube or cube array type.
func (t TextureType) IsCube() bool {
	return t == TextureCube || t == TextureCubeArray
}

// Arrayed returns the array variant of t. Types without one are returned
// unchanged.
func (t TextureType) Arrayed() TextureType {
	switch t {
	case Texture1D:
		return Texture1DArray
	case Texture2D:
		return Texture2DArray
	case Texture2DMS:
		return Texture2DMSArray
	case TextureCube:
		return TextureCubeArray
	}
	return t
}

// TextureUsage is a set of texture usage flags.
type TextureUsage uint32

// Texture usages.
const (
	TextureUsageShaderResource TextureUsage = 1 << iota
	TextureUsageUnorderedAccess
	TextureUsageRenderTarget
	TextureUsageDepthStencil
	TextureUsageCopySource
	TextureUsageCopyDestination
	TextureUsageResolveSource
	TextureUsageResolveDestination
	TextureUsageShared

	TextureUsageNone TextureUsage = 0
)

var textureUsageNames = []string{
	"shader_resource", "unordered_access", "render_target", "depth_stencil",
	"copy_source", "copy_destination", "resolve_source", "resolve_destination", "shared",
}

// Has reports whether every flag in want is set.
func (u TextureUsage) Has(want TextureUsage) bool {
	return u&want == want
}

func (u TextureUsage) String() string {
	return flagString(uint32(u), textureUsageNames)
}

func flagString(v uint32, names []string) string {
	if v == 0 {
		return "none"
	}
	var parts []string
	for i, name := range names {
		if v&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// BufferDesc describes a buffer to create.
type BufferDesc struct {
	Label  string
	Size   uint64
	Usage  BufferUsage
	Memory MemoryType
}

// TextureDesc is a normalized texture description: array promotion and
// mip expansion have already been applied.
type TextureDesc struct {
	Label       string
	Type        TextureType
	Format      format.Format
	Width       uint32
	Height      uint32
	Depth       uint32
	ArrayLength uint32
	MipCount    uint32
	SampleCount uint32
	Usage       TextureUsage
}

// LayerCount returns the number of array layers, counting cube faces.
func (d TextureDesc) LayerCount() uint32 {
	if d.Type.IsCube() {
		return d.ArrayLength * 6
	}
	return d.ArrayLength
}

// Extent returns the size of mip level 0.
func (d TextureDesc) Extent() format.Extent {
	return format.Extent{Width: d.Width, Height: d.Height, Depth: d.Depth}
}

// QueryType is the kind of a query pool.
type QueryType uint8

// Query types.
const (
	QueryTimestamp QueryType = iota
)

// QueryPoolDesc describes a query pool to create.
type QueryPoolDesc struct {
	Label string
	Type  QueryType
	Count uint32
}
