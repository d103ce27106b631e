// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/rhi/format"
)

// AccelerationStructureKind distinguishes bottom level structures, which
// hold geometry, from top level structures, which hold instances.
type AccelerationStructureKind uint8

// Acceleration structure kinds.
const (
	KindBottomLevel AccelerationStructureKind = iota
	KindTopLevel
)

func (k AccelerationStructureKind) String() string {
	if k == KindTopLevel {
		return "top_level"
	}
	return "bottom_level"
}

// GeometryFlags tune how a geometry is traversed.
type GeometryFlags uint8

// Geometry flags.
const (
	GeometryOpaque GeometryFlags = 1 << iota
	GeometryNoDuplicateAnyHit

	GeometryNone GeometryFlags = 0
)

// BuildFlags tune an acceleration structure build.
type BuildFlags uint8

// Build flags.
const (
	BuildAllowUpdate BuildFlags = 1 << iota
	BuildAllowCompaction
	BuildPreferFastTrace
	BuildPreferFastBuild
	BuildMinimizeMemory

	BuildNone BuildFlags = 0
)

// BuildMode selects between a full build and a refit of an existing
// structure.
type BuildMode uint8

// Build modes.
const (
	BuildModeBuild BuildMode = iota
	BuildModeUpdate
)

// IndexFormat is the element type of an index buffer.
type IndexFormat uint8

// Index formats.
const (
	IndexUint32 IndexFormat = iota
	IndexUint16
)

// Size returns the byte size of one index.
func (f IndexFormat) Size() uint64 {
	if f == IndexUint16 {
		return 2
	}
	return 4
}

// BufferRef is a buffer plus a byte offset.
type BufferRef struct {
	Buffer Buffer
	Offset uint64
}

// BuildInput is one input of an acceleration structure build. It is
// implemented by TrianglesInput, ProceduralInput and InstancesInput.
type BuildInput interface {
	buildInput()
}

// TrianglesInput is a triangle geometry.
type TrianglesInput struct {
	VertexBuffers []BufferRef
	VertexFormat  format.Format
	VertexCount   uint32
	VertexStride  uint64
	IndexBuffer   BufferRef
	IndexFormat   IndexFormat
	IndexCount    uint32
	// PreTransform optionally points to a row-major 3x4 float32 matrix.
	PreTransform BufferRef
	Flags        GeometryFlags
}

// PrimitiveCount returns the number of triangles in the input.
func (t TrianglesInput) PrimitiveCount() uint32 {
	if t.IndexBuffer.Buffer != nil {
		return t.IndexCount / 3
	}
	return t.VertexCount / 3
}

// ProceduralInput is a list of axis aligned bounding boxes, each stored as
// six float32 values: min x, y, z followed by max x, y, z.
type ProceduralInput struct {
	AABBBuffers    []BufferRef
	AABBStride     uint64
	PrimitiveCount uint32
	Flags          GeometryFlags
}

// InstancesInput is a packed array of instance records in a buffer.
type InstancesInput struct {
	Instances BufferRef
	Stride    uint64
	Count     uint32
}

func (TrianglesInput) buildInput()  {}
func (ProceduralInput) buildInput() {}
func (InstancesInput) buildInput()  {}

// BuildDesc describes an acceleration structure build.
type BuildDesc struct {
	Inputs []BuildInput
	Flags  BuildFlags
	Mode   BuildMode
}

// Kind returns the kind of structure the description builds. A
// description whose inputs are instances builds a top level structure.
func (d *BuildDesc) Kind() AccelerationStructureKind {
	for _, in := range d.Inputs {
		if _, ok := in.(InstancesInput); ok {
			return KindTopLevel
		}
	}
	return KindBottomLevel
}

// Sizes are the storage requirements of a build.
type Sizes struct {
	AccelerationStructureSize uint64
	ScratchSize               uint64
	UpdateScratchSize         uint64
}

// AccelerationStructureDesc describes acceleration structure storage.
type AccelerationStructureDesc struct {
	Label string
	Size  uint64
}

// InstanceFlags tune how an instance is traversed.
type InstanceFlags uint8

// Instance flags.
const (
	InstanceTriangleCullDisable InstanceFlags = 1 << iota
	InstanceTriangleFrontCounterClockwise
	InstanceForceOpaque
	InstanceForceNoOpaque

	InstanceNone InstanceFlags = 0
)

// InstanceStride is the size in bytes of one encoded instance record.
const InstanceStride = 64

// Instance is one entry of a top level structure.
//
// Transform is a row-major 3x4 object-to-world matrix. InstanceID and
// InstanceContribution are 24-bit values.
type Instance struct {
	Transform             [12]float32
	InstanceID            uint32
	InstanceMask          uint8
	InstanceContribution  uint32
	Flags                 InstanceFlags
	AccelerationStructure uint64
}

// IdentityTransform is the 3x4 identity matrix.
var IdentityTransform = [12]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0}

// Encode writes the instance into b, which must hold InstanceStride bytes.
func (in *Instance) Encode(b []byte) error {
	if len(b) < InstanceStride {
		return fmt.Errorf("%w: instance record needs %d bytes, have %d", ErrValidation, InstanceStride, len(b))
	}
	if in.InstanceID > 0xFFFFFF || in.InstanceContribution > 0xFFFFFF {
		return fmt.Errorf("%w: instance id and contribution must fit in 24 bits", ErrValidation)
	}
	for i, v := range in.Transform {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	binary.LittleEndian.PutUint32(b[48:], in.InstanceID|uint32(in.InstanceMask)<<24)
	binary.LittleEndian.PutUint32(b[52:], in.InstanceContribution|uint32(in.Flags)<<24)
	binary.LittleEndian.PutUint64(b[56:], in.AccelerationStructure)
	return nil
}

// DecodeInstance reads one instance record.
func DecodeInstance(b []byte) (Instance, error) {
	var in Instance
	if len(b) < InstanceStride {
		return in, fmt.Errorf("%w: instance record needs %d bytes, have %d", ErrValidation, InstanceStride, len(b))
	}
	for i := range in.Transform {
		in.Transform[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	w := binary.LittleEndian.Uint32(b[48:])
	in.InstanceID = w & 0xFFFFFF
	in.InstanceMask = uint8(w >> 24)
	w = binary.LittleEndian.Uint32(b[52:])
	in.InstanceContribution = w & 0xFFFFFF
	in.Flags = InstanceFlags(w >> 24)
	in.AccelerationStructure = binary.LittleEndian.Uint64(b[56:])
	return in, nil
}
