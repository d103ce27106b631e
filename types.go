// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import "github.com/gogpu/rhi/driver"

// Device description types.
type (
	DeviceInfo = driver.DeviceInfo
	Limits     = driver.Limits
	Feature    = driver.Feature
)

// Optional features.
const (
	FeatureAccelerationStructure = driver.FeatureAccelerationStructure
	FeatureRayQuery              = driver.FeatureRayQuery
	FeatureTimestampQuery        = driver.FeatureTimestampQuery
	FeatureTexture1DMips         = driver.FeatureTexture1DMips
	FeatureTextureCompressionBC  = driver.FeatureTextureCompressionBC
	FeatureHostKernels           = driver.FeatureHostKernels
	FeatureWGSLKernels           = driver.FeatureWGSLKernels
)

// Buffer types.
type (
	BufferUsage = driver.BufferUsage
	MemoryType  = driver.MemoryType
)

// Buffer usages.
const (
	BufferUsageNone                            = driver.BufferUsageNone
	BufferUsageVertex                          = driver.BufferUsageVertex
	BufferUsageIndex                           = driver.BufferUsageIndex
	BufferUsageConstant                        = driver.BufferUsageConstant
	BufferUsageShaderResource                  = driver.BufferUsageShaderResource
	BufferUsageUnorderedAccess                 = driver.BufferUsageUnorderedAccess
	BufferUsageIndirectArgument                = driver.BufferUsageIndirectArgument
	BufferUsageCopySource                      = driver.BufferUsageCopySource
	BufferUsageCopyDestination                 = driver.BufferUsageCopyDestination
	BufferUsageAccelerationStructure           = driver.BufferUsageAccelerationStructure
	BufferUsageAccelerationStructureBuildInput = driver.BufferUsageAccelerationStructureBuildInput
	BufferUsageShaderTable                     = driver.BufferUsageShaderTable
)

// Memory types.
const (
	MemoryDeviceLocal = driver.MemoryDeviceLocal
	MemoryUpload      = driver.MemoryUpload
	MemoryReadBack    = driver.MemoryReadBack
)

// Texture types.
type (
	TextureType  = driver.TextureType
	TextureUsage = driver.TextureUsage
)

// Texture types.
const (
	Texture1D        = driver.Texture1D
	Texture1DArray   = driver.Texture1DArray
	Texture2D        = driver.Texture2D
	Texture2DArray   = driver.Texture2DArray
	Texture2DMS      = driver.Texture2DMS
	Texture2DMSArray = driver.Texture2DMSArray
	Texture3D        = driver.Texture3D
	TextureCube      = driver.TextureCube
	TextureCubeArray = driver.TextureCubeArray
)

// Texture usages.
const (
	TextureUsageNone               = driver.TextureUsageNone
	TextureUsageShaderResource     = driver.TextureUsageShaderResource
	TextureUsageUnorderedAccess    = driver.TextureUsageUnorderedAccess
	TextureUsageRenderTarget       = driver.TextureUsageRenderTarget
	TextureUsageDepthStencil       = driver.TextureUsageDepthStencil
	TextureUsageCopySource         = driver.TextureUsageCopySource
	TextureUsageCopyDestination    = driver.TextureUsageCopyDestination
	TextureUsageResolveSource      = driver.TextureUsageResolveSource
	TextureUsageResolveDestination = driver.TextureUsageResolveDestination
	TextureUsageShared             = driver.TextureUsageShared
)

// Acceleration structure types.
type (
	AccelerationStructureKind          = driver.AccelerationStructureKind
	AccelerationStructureGeometryFlags = driver.GeometryFlags
	AccelerationStructureBuildFlags    = driver.BuildFlags
	AccelerationStructureBuildMode     = driver.BuildMode
	AccelerationStructureSizes         = driver.Sizes
	AccelerationStructureInstanceFlags = driver.InstanceFlags
	IndexFormat                        = driver.IndexFormat
)

// Acceleration structure kinds.
const (
	KindBottomLevel = driver.KindBottomLevel
	KindTopLevel    = driver.KindTopLevel
)

// Geometry flags.
const (
	GeometryNone              = driver.GeometryNone
	GeometryOpaque            = driver.GeometryOpaque
	GeometryNoDuplicateAnyHit = driver.GeometryNoDuplicateAnyHit
)

// Build flags.
const (
	BuildNone            = driver.BuildNone
	BuildAllowUpdate     = driver.BuildAllowUpdate
	BuildAllowCompaction = driver.BuildAllowCompaction
	BuildPreferFastTrace = driver.BuildPreferFastTrace
	BuildPreferFastBuild = driver.BuildPreferFastBuild
	BuildMinimizeMemory  = driver.BuildMinimizeMemory
)

// Build modes.
const (
	BuildModeBuild  = driver.BuildModeBuild
	BuildModeUpdate = driver.BuildModeUpdate
)

// Instance flags.
const (
	InstanceNone                          = driver.InstanceNone
	InstanceTriangleCullDisable           = driver.InstanceTriangleCullDisable
	InstanceTriangleFrontCounterClockwise = driver.InstanceTriangleFrontCounterClockwise
	InstanceForceOpaque                   = driver.InstanceForceOpaque
	InstanceForceNoOpaque                 = driver.InstanceForceNoOpaque
)

// Index formats.
const (
	IndexUint32 = driver.IndexUint32
	IndexUint16 = driver.IndexUint16
)

// Kernel types.
type (
	KernelDesc  = driver.KernelDesc
	BindingDesc = driver.BindingDesc
	BindingKind = driver.BindingKind
	HostFunc    = driver.HostFunc
	Invocation  = driver.Invocation
	Ray         = driver.Ray
	Hit         = driver.Hit
)

// Binding kinds.
const (
	BindingConstantBuffer        = driver.BindingConstantBuffer
	BindingBuffer                = driver.BindingBuffer
	BindingRWBuffer              = driver.BindingRWBuffer
	BindingTexture               = driver.BindingTexture
	BindingRWTexture             = driver.BindingRWTexture
	BindingAccelerationStructure = driver.BindingAccelerationStructure
)

// Query types.
type QueryType = driver.QueryType

// QueryTimestamp is the timestamp query type.
const QueryTimestamp = driver.QueryTimestamp
