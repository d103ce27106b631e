// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gogpu/rhi/driver"
)

// Vars maps kernel binding names to resources. Accepted values are
// *Buffer and BufferView for buffer bindings, *Texture and *TextureView
// for texture bindings, and *AccelerationStructure.
type Vars map[string]any

// ComputeKernel is a compiled compute program with named bindings.
type ComputeKernel struct {
	resource
	drv       driver.Kernel
	desc      KernelDesc
	localSize [3]uint32
	bindings  map[string]BindingDesc
}

// CreateComputeKernel compiles a kernel. Binding names must be unique and
// LocalSize components default to 1.
func (d *Device) CreateComputeKernel(desc KernelDesc) (*ComputeKernel, error) {
	if err := d.usable(); err != nil {
		return nil, err
	}
	if desc.EntryPoint == "" {
		desc.EntryPoint = "main"
	}
	for i := range desc.LocalSize {
		desc.LocalSize[i] = max(desc.LocalSize[i], 1)
		if lim := d.info.Limits.MaxWorkgroupSize[i]; lim != 0 && desc.LocalSize[i] > lim {
			return nil, fmt.Errorf("%w: local size %v exceeds %v", ErrCapability, desc.LocalSize, d.info.Limits.MaxWorkgroupSize)
		}
	}
	if desc.Host == nil && desc.WGSL == "" {
		return nil, fmt.Errorf("%w: kernel %q has no program", ErrValidation, desc.Label)
	}
	if desc.WGSL == "" {
		if err := d.requireFeature(FeatureHostKernels, "host kernels"); err != nil {
			return nil, err
		}
	} else if desc.Host == nil {
		if err := d.requireFeature(FeatureWGSLKernels, "WGSL kernels"); err != nil {
			return nil, err
		}
	}

	bindings := make(map[string]BindingDesc, len(desc.Bindings))
	for _, b := range desc.Bindings {
		if b.Name == "" {
			return nil, fmt.Errorf("%w: kernel %q has an unnamed binding", ErrValidation, desc.Label)
		}
		if _, dup := bindings[b.Name]; dup {
			return nil, fmt.Errorf("%w: kernel %q binds %q twice", ErrValidation, desc.Label, b.Name)
		}
		if b.Kind == BindingAccelerationStructure {
			if err := d.requireFeature(FeatureRayQuery, "acceleration structure bindings"); err != nil {
				return nil, err
			}
		}
		bindings[b.Name] = b
	}
	desc.Bindings = slices.Clone(desc.Bindings)

	nk, err := d.drv.CreateKernel(desc)
	if err != nil {
		return nil, fmt.Errorf("rhi: create kernel %q: %w", desc.Label, err)
	}
	k := &ComputeKernel{drv: nk, desc: desc, localSize: desc.LocalSize, bindings: bindings}
	k.init(d, KindKernel, desc.Label, 0, nk.Destroy)
	return k, nil
}

// LocalSize returns the workgroup size.
func (k *ComputeKernel) LocalSize() [3]uint32 { return k.localSize }

// Bindings returns the declared bindings in declaration order.
func (k *ComputeKernel) Bindings() []BindingDesc { return slices.Clone(k.desc.Bindings) }

// Destroy releases the kernel once in-flight dispatches have completed.
func (k *ComputeKernel) Destroy() { k.destroy() }

// GroupCount returns the number of workgroups needed to cover threads
// invocations per axis.
func (k *ComputeKernel) GroupCount(threads [3]uint32) [3]uint32 {
	var g [3]uint32
	for i := range g {
		g[i] = threads[i] / k.localSize[i]
		if threads[i]%k.localSize[i] != 0 {
			g[i]++
		}
	}
	return g
}

// Dispatch records a dispatch of threads invocations, submits it and
// returns without waiting. Execution errors surface from WaitForIdle.
func (k *ComputeKernel) Dispatch(threads [3]uint32, vars Vars) error {
	enc := k.dev.CreateCommandEncoder(k.label)
	if err := enc.Dispatch(k, threads, vars); err != nil {
		return err
	}
	cb, err := enc.Finish()
	if err != nil {
		return err
	}
	return k.dev.Submit(cb)
}

// boundVars is the validated form of Vars.
type boundVars struct {
	bindings []driver.Binding
	refs     []*resource
	needs    []*AccelerationStructure
}

// bind validates vars against the kernel's bindings: every binding must be
// given, no unknown names are allowed, and each value must have the
// binding's kind and usage.
func (k *ComputeKernel) bind(vars Vars) (boundVars, error) {
	var out boundVars
	var unknown []string
	for name := range vars {
		if _, ok := k.bindings[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return out, fmt.Errorf("%w: kernel %q has no bindings named %s", ErrValidation, k.label, strings.Join(unknown, ", "))
	}

	for _, bd := range k.desc.Bindings {
		v, ok := vars[bd.Name]
		if !ok || v == nil {
			return out, fmt.Errorf("%w: kernel %q: binding %q is not set", ErrValidation, k.label, bd.Name)
		}
		b, err := k.bindOne(bd, v, &out)
		if err != nil {
			return out, fmt.Errorf("kernel %q: binding %q: %w", k.label, bd.Name, err)
		}
		out.bindings = append(out.bindings, b)
	}
	return out, nil
}

func (k *ComputeKernel) bindOne(bd BindingDesc, v any, out *boundVars) (driver.Binding, error) {
	b := driver.Binding{Desc: bd}
	switch bd.Kind {
	case BindingConstantBuffer, BindingBuffer, BindingRWBuffer:
		var view BufferView
		switch v := v.(type) {
		case *Buffer:
			view = BufferView{buffer: v, offset: 0, size: v.size}
		case BufferView:
			view = v
		default:
			return b, fmt.Errorf("%w: %v binding given %T", ErrValidation, bd.Kind, v)
		}
		if view.buffer == nil {
			return b, fmt.Errorf("%w: empty buffer view", ErrValidation)
		}
		if err := view.buffer.check(k.dev); err != nil {
			return b, err
		}
		usage := map[BindingKind]BufferUsage{
			BindingConstantBuffer: BufferUsageConstant,
			BindingBuffer:         BufferUsageShaderResource,
			BindingRWBuffer:       BufferUsageUnorderedAccess,
		}[bd.Kind]
		if err := view.buffer.requireUsage(usage, bd.Kind.String()+" binding"); err != nil {
			return b, err
		}
		b.Buffer, b.Offset, b.Size = view.buffer.drv, view.offset, view.size
		out.refs = append(out.refs, &view.buffer.resource)

	case BindingTexture, BindingRWTexture:
		var view *TextureView
		switch v := v.(type) {
		case *Texture:
			if err := v.check(k.dev); err != nil {
				return b, err
			}
			view = &TextureView{texture: v, format: v.desc.Format, rng: SubresourceRange{LayerCount: v.LayerCount(), MipCount: v.MipCount()}}
		case *TextureView:
			view = v
		default:
			return b, fmt.Errorf("%w: %v binding given %T", ErrValidation, bd.Kind, v)
		}
		t, rng := view.texture, view.rng
		if err := t.check(k.dev); err != nil {
			return b, err
		}
		usage := TextureUsageShaderResource
		if bd.Kind == BindingRWTexture {
			// Storage bindings address a single mip: the view's base.
			usage = TextureUsageUnorderedAccess
			rng.MipCount = 1
		}
		if !t.desc.Usage.Has(usage) {
			return b, fmt.Errorf("%w: %v binding needs %v on %v (has %v)", ErrUsage, bd.Kind, usage, &t.resource, t.desc.Usage)
		}
		b.Texture = t.drv
		b.Layer, b.LayerCount = rng.Layer, rng.LayerCount
		b.Mip, b.MipCount = rng.Mip, rng.MipCount
		out.refs = append(out.refs, &t.resource)

	case BindingAccelerationStructure:
		as, ok := v.(*AccelerationStructure)
		if !ok {
			return b, fmt.Errorf("%w: %v binding given %T", ErrValidation, bd.Kind, v)
		}
		if err := as.check(k.dev); err != nil {
			return b, err
		}
		if kind, set := as.Kind(); set && kind != KindTopLevel {
			return b, fmt.Errorf("%w: %v binding needs a top level structure", ErrValidation, bd.Kind)
		}
		b.AccelerationStructure = as.drv
		out.refs = append(out.refs, &as.resource)
		out.needs = append(out.needs, as)

	default:
		return b, fmt.Errorf("%w: unknown binding kind %d", ErrValidation, bd.Kind)
	}
	return b, nil
}
