// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import (
	"golang.org/x/image/math/f32"

	"github.com/gogpu/rhi/format"
)

// BindingKind is the type of resource a kernel binding accepts.
type BindingKind uint8

// Binding kinds.
const (
	BindingConstantBuffer BindingKind = iota
	BindingBuffer
	BindingRWBuffer
	BindingTexture
	BindingRWTexture
	BindingAccelerationStructure
)

var bindingKindNames = [...]string{
	"constant_buffer", "buffer", "rw_buffer", "texture", "rw_texture", "acceleration_structure",
}

func (k BindingKind) String() string {
	if int(k) < len(bindingKindNames) {
		return bindingKindNames[k]
	}
	return "unknown"
}

// BindingDesc declares one named kernel parameter and its slot.
type BindingDesc struct {
	Name    string
	Kind    BindingKind
	Group   uint32
	Binding uint32
}

// KernelDesc describes a compute kernel. A backend uses whichever program
// form it can execute: WGSL source for GPU backends, Host for CPU backends.
type KernelDesc struct {
	Label      string
	EntryPoint string
	LocalSize  [3]uint32
	Bindings   []BindingDesc
	WGSL       string
	Host       HostFunc
}

// HostFunc is a kernel body run once per invocation by host backends.
type HostFunc func(inv *Invocation)

// Invocation is the context of one kernel thread.
type Invocation struct {
	ThreadID [3]uint32
	GroupID  [3]uint32
	LocalID  [3]uint32
	Resources
}

// Resources gives a kernel invocation access to its bound resources by
// binding name.
type Resources interface {
	// Buffer returns the bound byte range of a buffer binding.
	Buffer(name string) []byte
	// Texture returns texel access to a texture binding.
	Texture(name string) TexelAccess
	// AccelerationStructure returns a ray tracer for a bound structure.
	AccelerationStructure(name string) Tracer
}

// TexelAccess reads and writes texels of the bound base mip. For array and
// cube textures z selects a layer within the bound range. Reads outside the
// extent return zero and writes outside it are dropped. Integer formats
// convert through float32.
type TexelAccess interface {
	Extent() format.Extent
	Format() format.Format
	Load(x, y, z uint32) [4]float32
	Store(x, y, z uint32, v [4]float32)
}

// Ray is a ray query against an acceleration structure. Mask is ANDed
// with each instance mask and instances with no common bit are skipped; a
// zero Mask selects every instance.
type Ray struct {
	Origin    f32.Vec3
	Direction f32.Vec3
	TMin      float32
	TMax      float32
	Mask      uint8
}

// Hit is the closest intersection found by a ray query.
type Hit struct {
	T                    float32
	U, V                 float32
	PrimitiveIndex       uint32
	GeometryIndex        uint32
	InstanceIndex        uint32
	InstanceID           uint32
	InstanceContribution uint32
	FrontFace            bool
}

// Tracer traces rays against an acceleration structure.
type Tracer interface {
	TraceRay(r Ray) (Hit, bool)
}
