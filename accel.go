// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"fmt"
	"sync"

	"github.com/gogpu/rhi/driver"
	"github.com/gogpu/rhi/format"
)

// AccelerationStructureBuildInput is one input of a build. It is
// implemented by the Triangles, ProceduralPrimitives and Instances input
// types.
type AccelerationStructureBuildInput interface {
	accelerationStructureBuildInput()
}

// AccelerationStructureBuildInputTriangles is triangle geometry for a
// bottom level structure.
type AccelerationStructureBuildInputTriangles struct {
	// VertexBuffers holds one buffer per motion key. Only one key is
	// supported.
	VertexBuffers []BufferOffset
	VertexFormat  format.Format
	VertexCount   uint32
	// VertexStride defaults to the size of VertexFormat.
	VertexStride uint64

	// IndexBuffer is optional. Without it every three vertices form a
	// triangle.
	IndexBuffer BufferOffset
	IndexFormat IndexFormat
	IndexCount  uint32

	// PreTransformBuffer optionally points to a row-major 3x4 float32
	// matrix applied to the vertices.
	PreTransformBuffer BufferOffset

	Flags AccelerationStructureGeometryFlags
}

// AccelerationStructureBuildInputProceduralPrimitives is a list of axis
// aligned bounding boxes for a bottom level structure. Each box is six
// float32 values: min x, y, z then max x, y, z.
type AccelerationStructureBuildInputProceduralPrimitives struct {
	AABBBuffers    []BufferOffset
	AABBStride     uint64
	PrimitiveCount uint32
	Flags          AccelerationStructureGeometryFlags
}

// AccelerationStructureBuildInputInstances is the instance array of a top
// level structure. It is normally obtained from
// [InstanceList.BuildInputInstances].
type AccelerationStructureBuildInputInstances struct {
	InstanceBuffer BufferOffset
	// InstanceStride defaults to 64 bytes, the only supported stride.
	InstanceStride uint64
	InstanceCount  uint32

	// refs are the bottom level structures the instances reference, when
	// known.
	refs []*AccelerationStructure
}

func (AccelerationStructureBuildInputTriangles) accelerationStructureBuildInput()            {}
func (AccelerationStructureBuildInputProceduralPrimitives) accelerationStructureBuildInput() {}
func (AccelerationStructureBuildInputInstances) accelerationStructureBuildInput()            {}

// AccelerationStructureBuildDesc describes a build: an ordered list of
// inputs plus flags and mode. All inputs must be of one kind.
type AccelerationStructureBuildDesc struct {
	Inputs []AccelerationStructureBuildInput
	Flags  AccelerationStructureBuildFlags
	Mode   AccelerationStructureBuildMode
}

// AccelerationStructureDesc describes acceleration structure storage.
type AccelerationStructureDesc struct {
	Label string
	Size  uint64
}

// AccelerationStructure is an opaque ray tracing acceleration structure.
//
// It starts unbuilt. Submitting a command buffer that builds it marks it
// built; its kind is fixed by the first recorded build.
type AccelerationStructure struct {
	resource
	drv    driver.AccelerationStructure
	handle uint64

	stateMu     sync.Mutex
	built       bool
	inflight    int
	kind        AccelerationStructureKind
	kindSet     bool
	allowUpdate bool
}

// lowered is a validated build description translated for the driver.
type lowered struct {
	desc  driver.BuildDesc
	kind  AccelerationStructureKind
	refs  []*resource
	needs []*AccelerationStructure
}

var vertexFormats = map[format.Format]bool{
	format.RG32Float:   true,
	format.RGB32Float:  true,
	format.RGBA32Float: true,
	format.RGBA16Float: true,
}

func (d *Device) requireAccelerationStructures() error {
	return d.requireFeature(FeatureAccelerationStructure, "acceleration structures")
}

// lowerBuildDesc validates desc and converts it to its driver form.
func (d *Device) lowerBuildDesc(desc *AccelerationStructureBuildDesc) (lowered, error) {
	var out lowered
	if desc == nil || len(desc.Inputs) == 0 {
		return out, fmt.Errorf("%w: build description has no inputs", ErrValidation)
	}
	if desc.Mode == BuildModeUpdate && desc.Flags&BuildAllowUpdate == 0 {
		return out, fmt.Errorf("%w: update builds require the allow-update flag", ErrValidation)
	}

	var tris, procs, insts int
	out.desc = driver.BuildDesc{Flags: desc.Flags, Mode: desc.Mode}
	for i, in := range desc.Inputs {
		var (
			lin driver.BuildInput
			err error
		)
		switch in := in.(type) {
		case AccelerationStructureBuildInputTriangles:
			tris++
			lin, err = d.lowerTriangles(&in, &out)
		case *AccelerationStructureBuildInputTriangles:
			tris++
			lin, err = d.lowerTriangles(in, &out)
		case AccelerationStructureBuildInputProceduralPrimitives:
			procs++
			lin, err = d.lowerProcedural(&in, &out)
		case *AccelerationStructureBuildInputProceduralPrimitives:
			procs++
			lin, err = d.lowerProcedural(in, &out)
		case AccelerationStructureBuildInputInstances:
			insts++
			lin, err = d.lowerInstances(&in, &out)
		case *AccelerationStructureBuildInputInstances:
			insts++
			lin, err = d.lowerInstances(in, &out)
		default:
			err = fmt.Errorf("%w: unknown build input %T", ErrValidation, in)
		}
		if err != nil {
			return out, fmt.Errorf("input %d: %w", i, err)
		}
		out.desc.Inputs = append(out.desc.Inputs, lin)
	}

	switch {
	case insts > 1:
		return out, fmt.Errorf("%w: a top level build takes exactly one instance input", ErrValidation)
	case insts == 1 && tris+procs > 0:
		return out, fmt.Errorf("%w: instance inputs cannot be mixed with geometry", ErrValidation)
	case tris > 0 && procs > 0:
		return out, fmt.Errorf("%w: triangle and procedural geometry cannot be mixed", ErrValidation)
	}
	out.kind = KindBottomLevel
	if insts == 1 {
		out.kind = KindTopLevel
	}
	return out, nil
}

func (d *Device) buildBuffer(ref BufferOffset, need uint64, what string, out *lowered) (driver.BufferRef, error) {
	b := ref.Buffer
	if err := b.check(d); err != nil {
		return driver.BufferRef{}, err
	}
	if err := b.requireUsage(BufferUsageAccelerationStructureBuildInput, what); err != nil {
		return driver.BufferRef{}, err
	}
	if ref.Offset > b.size || need > b.size-ref.Offset {
		return driver.BufferRef{}, fmt.Errorf("%w: %s needs %d bytes at offset %d of %v with %d bytes",
			ErrRange, what, need, ref.Offset, &b.resource, b.size)
	}
	out.refs = append(out.refs, &b.resource)
	return driver.BufferRef{Buffer: b.drv, Offset: ref.Offset}, nil
}

func (d *Device) lowerTriangles(in *AccelerationStructureBuildInputTriangles, out *lowered) (driver.BuildInput, error) {
	var lin driver.TrianglesInput
	switch n := len(in.VertexBuffers); {
	case n == 0 || in.VertexBuffers[0].Buffer == nil:
		return nil, fmt.Errorf("%w: triangles need a vertex buffer", ErrValidation)
	case n > 1:
		return nil, fmt.Errorf("%w: motion vertex keys are not supported", ErrCapability)
	}
	if !vertexFormats[in.VertexFormat] {
		return nil, fmt.Errorf("%w: unsupported vertex format %v", ErrValidation, in.VertexFormat)
	}
	if in.VertexCount == 0 {
		return nil, fmt.Errorf("%w: vertex count is zero", ErrValidation)
	}
	vinfo, _ := in.VertexFormat.Info()
	stride := in.VertexStride
	if stride == 0 {
		stride = uint64(vinfo.BytesPerBlock)
	}
	if stride < uint64(vinfo.BytesPerBlock) {
		return nil, fmt.Errorf("%w: vertex stride %d is smaller than %v", ErrValidation, stride, in.VertexFormat)
	}
	need := uint64(in.VertexCount-1)*stride + uint64(vinfo.BytesPerBlock)
	vb, err := d.buildBuffer(in.VertexBuffers[0], need, "vertex buffer", out)
	if err != nil {
		return nil, err
	}
	lin.VertexBuffers = []driver.BufferRef{vb}
	lin.VertexFormat = in.VertexFormat
	lin.VertexCount = in.VertexCount
	lin.VertexStride = stride
	lin.Flags = in.Flags

	if in.IndexBuffer.Buffer != nil {
		if in.IndexCount == 0 || in.IndexCount%3 != 0 {
			return nil, fmt.Errorf("%w: index count %d is not a positive multiple of 3", ErrValidation, in.IndexCount)
		}
		if in.IndexFormat != IndexUint16 && in.IndexFormat != IndexUint32 {
			return nil, fmt.Errorf("%w: unknown index format %d", ErrValidation, in.IndexFormat)
		}
		if in.IndexFormat == IndexUint16 && in.VertexCount > 1<<16 {
			return nil, fmt.Errorf("%w: %d vertices cannot be addressed by 16-bit indices", ErrValidation, in.VertexCount)
		}
		ib, err := d.buildBuffer(in.IndexBuffer, uint64(in.IndexCount)*in.IndexFormat.Size(), "index buffer", out)
		if err != nil {
			return nil, err
		}
		lin.IndexBuffer = ib
		lin.IndexFormat = in.IndexFormat
		lin.IndexCount = in.IndexCount
	} else {
		if in.IndexCount != 0 {
			return nil, fmt.Errorf("%w: index count %d without an index buffer", ErrValidation, in.IndexCount)
		}
		if in.VertexCount%3 != 0 {
			return nil, fmt.Errorf("%w: vertex count %d is not a multiple of 3", ErrValidation, in.VertexCount)
		}
	}

	if in.PreTransformBuffer.Buffer != nil {
		pb, err := d.buildBuffer(in.PreTransformBuffer, 48, "pre-transform buffer", out)
		if err != nil {
			return nil, err
		}
		lin.PreTransform = pb
	}
	return lin, nil
}

func (d *Device) lowerProcedural(in *AccelerationStructureBuildInputProceduralPrimitives, out *lowered) (driver.BuildInput, error) {
	switch n := len(in.AABBBuffers); {
	case n == 0 || in.AABBBuffers[0].Buffer == nil:
		return nil, fmt.Errorf("%w: procedural primitives need an AABB buffer", ErrValidation)
	case n > 1:
		return nil, fmt.Errorf("%w: motion AABB keys are not supported", ErrCapability)
	}
	if in.PrimitiveCount == 0 {
		return nil, fmt.Errorf("%w: primitive count is zero", ErrValidation)
	}
	stride := in.AABBStride
	if stride == 0 {
		stride = 24
	}
	if stride < 24 || stride%8 != 0 {
		return nil, fmt.Errorf("%w: AABB stride %d must be a multiple of 8 and at least 24", ErrValidation, stride)
	}
	ab, err := d.buildBuffer(in.AABBBuffers[0], uint64(in.PrimitiveCount-1)*stride+24, "AABB buffer", out)
	if err != nil {
		return nil, err
	}
	return driver.ProceduralInput{
		AABBBuffers:    []driver.BufferRef{ab},
		AABBStride:     stride,
		PrimitiveCount: in.PrimitiveCount,
		Flags:          in.Flags,
	}, nil
}

func (d *Device) lowerInstances(in *AccelerationStructureBuildInputInstances, out *lowered) (driver.BuildInput, error) {
	if in.InstanceBuffer.Buffer == nil {
		return nil, fmt.Errorf("%w: instances need an instance buffer", ErrValidation)
	}
	stride := in.InstanceStride
	if stride == 0 {
		stride = driver.InstanceStride
	}
	if stride != driver.InstanceStride {
		return nil, fmt.Errorf("%w: instance stride %d, want %d", ErrValidation, stride, driver.InstanceStride)
	}
	ib, err := d.buildBuffer(in.InstanceBuffer, uint64(in.InstanceCount)*stride, "instance buffer", out)
	if err != nil {
		return nil, err
	}
	for _, as := range in.refs {
		if err := as.check(d); err != nil {
			return nil, err
		}
		out.needs = append(out.needs, as)
		out.refs = append(out.refs, &as.resource)
	}
	return driver.InstancesInput{Instances: ib, Stride: stride, Count: in.InstanceCount}, nil
}

// AccelerationStructureSizes returns the storage a build needs. It is pure:
// the same description always yields the same sizes.
func (d *Device) AccelerationStructureSizes(desc *AccelerationStructureBuildDesc) (AccelerationStructureSizes, error) {
	if err := d.requireAccelerationStructures(); err != nil {
		return AccelerationStructureSizes{}, err
	}
	l, err := d.lowerBuildDesc(desc)
	if err != nil {
		return AccelerationStructureSizes{}, err
	}
	s, err := d.drv.AccelerationStructureSizes(&l.desc)
	if err != nil {
		return s, fmt.Errorf("rhi: acceleration structure sizes: %w", err)
	}
	return s, nil
}

// CreateAccelerationStructure allocates storage for an acceleration
// structure of desc.Size bytes, normally taken from
// AccelerationStructureSizes.
func (d *Device) CreateAccelerationStructure(desc AccelerationStructureDesc) (*AccelerationStructure, error) {
	if err := d.usable(); err != nil {
		return nil, err
	}
	if err := d.requireAccelerationStructures(); err != nil {
		return nil, err
	}
	if desc.Size == 0 {
		return nil, fmt.Errorf("%w: acceleration structure %q has zero size", ErrValidation, desc.Label)
	}
	na, err := d.drv.CreateAccelerationStructure(driver.AccelerationStructureDesc{Label: desc.Label, Size: desc.Size})
	if err != nil {
		return nil, fmt.Errorf("rhi: create acceleration structure %q: %w", desc.Label, err)
	}
	as := &AccelerationStructure{drv: na, handle: na.Handle()}
	as.init(d, KindAccelerationStructure, desc.Label, desc.Size, func() {
		d.unregisterHandle(as.handle)
		na.Destroy()
	})
	d.registerHandle(as)
	return as, nil
}

// Handle returns the value instance descriptions use to reference this
// structure.
func (a *AccelerationStructure) Handle() uint64 { return a.handle }

// Size returns the storage size in bytes.
func (a *AccelerationStructure) Size() uint64 { return a.size }

// Kind returns the structure kind and whether a completed build has fixed
// it yet.
func (a *AccelerationStructure) Kind() (AccelerationStructureKind, bool) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.kind, a.kindSet
}

// IsBuilt reports whether a build of this structure has completed
// successfully.
func (a *AccelerationStructure) IsBuilt() bool {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.built
}

// available reports whether the structure is built or has a build queued
// ahead of any later submission.
func (a *AccelerationStructure) available() bool {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.built || a.inflight > 0
}

// committed returns the state of the last completed build.
func (a *AccelerationStructure) committed() asState {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return asState{kind: a.kind, set: a.kindSet, allowUpdate: a.allowUpdate}
}

func (a *AccelerationStructure) beginBuild() {
	a.stateMu.Lock()
	a.inflight++
	a.stateMu.Unlock()
}

// endBuild retires a queued build. The kind and update flag are taken
// from b only when the build succeeded.
func (a *AccelerationStructure) endBuild(b pendingBuild, ok bool) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.inflight--
	if ok {
		a.built = true
		a.kind, a.kindSet = b.state.kind, true
		a.allowUpdate = b.state.allowUpdate
	}
}

// asState is the kind and update flag a structure has, or will have once
// a recorded build completes.
type asState struct {
	kind        AccelerationStructureKind
	set         bool
	allowUpdate bool
}

// pendingBuild is a recorded build of as.
type pendingBuild struct {
	as    *AccelerationStructure
	state asState
}

// Destroy releases the structure once in-flight work referencing it has
// completed.
func (a *AccelerationStructure) Destroy() { a.destroy() }
