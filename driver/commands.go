// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import "github.com/gogpu/rhi/format"

// Command is one recorded operation. Devices execute commands strictly in
// slice order.
type Command interface {
	command()
}

// UploadBuffer writes host data into a buffer.
type UploadBuffer struct {
	Dst    Buffer
	Offset uint64
	Data   []byte
}

// ReadBuffer copies buffer contents into host memory when it executes.
type ReadBuffer struct {
	Src    Buffer
	Offset uint64
	Dst    []byte
}

// CopyBuffer copies a byte range between buffers.
type CopyBuffer struct {
	Dst       Buffer
	DstOffset uint64
	Src       Buffer
	SrcOffset uint64
	Size      uint64
}

// ClearBuffer fills a byte range with zeros.
type ClearBuffer struct {
	Dst    Buffer
	Offset uint64
	Size   uint64
}

// TextureRegion addresses a box inside one texture subresource.
type TextureRegion struct {
	Texture Texture
	Layer   uint32
	Mip     uint32
	Origin  format.Origin
	Size    format.Extent
}

// UploadTexture writes host data into a texture region. Data is tightly
// packed (row alignment 1) for the region's size.
type UploadTexture struct {
	Dst  TextureRegion
	Data []byte
}

// ReadTexture copies a texture region into host memory, tightly packed.
type ReadTexture struct {
	Src TextureRegion
	Dst []byte
}

// CopyTexture copies a box between two subresources of the same format.
// Dst.Size is ignored; Src.Size gives the box.
type CopyTexture struct {
	Dst TextureRegion
	Src TextureRegion
}

// CopyTextureToBuffer copies a texture region into a buffer using the
// given row pitch.
type CopyTextureToBuffer struct {
	Dst       Buffer
	DstOffset uint64
	RowPitch  uint64
	Src       TextureRegion
}

// CopyBufferToTexture copies pitched buffer data into a texture region.
type CopyBufferToTexture struct {
	Dst       TextureRegion
	Src       Buffer
	SrcOffset uint64
	RowPitch  uint64
}

// BuildAccelerationStructure builds or updates Dst from Desc. Src is only
// set for updates.
type BuildAccelerationStructure struct {
	Desc    BuildDesc
	Dst     AccelerationStructure
	Src     AccelerationStructure
	Scratch BufferRef
}

// Binding is a resource bound to one kernel parameter.
type Binding struct {
	Desc BindingDesc

	Buffer Buffer
	Offset uint64
	Size   uint64

	Texture    Texture
	Layer      uint32
	LayerCount uint32
	Mip        uint32
	MipCount   uint32

	AccelerationStructure AccelerationStructure
}

// Dispatch runs a kernel over GroupCount workgroups. ThreadCount is the
// requested invocation count; host backends skip invocations outside it.
type Dispatch struct {
	Kernel      Kernel
	GroupCount  [3]uint32
	ThreadCount [3]uint32
	Bindings    []Binding
}

// WriteTimestamp records the device clock into a query slot.
type WriteTimestamp struct {
	Pool  QueryPool
	Index uint32
}

func (UploadBuffer) command()               {}
func (ReadBuffer) command()                 {}
func (CopyBuffer) command()                 {}
func (ClearBuffer) command()                {}
func (UploadTexture) command()              {}
func (ReadTexture) command()                {}
func (CopyTexture) command()                {}
func (CopyTextureToBuffer) command()        {}
func (CopyBufferToTexture) command()        {}
func (BuildAccelerationStructure) command() {}
func (Dispatch) command()                   {}
func (WriteTimestamp) command()             {}
