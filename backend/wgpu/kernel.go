// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi/driver"
	"github.com/gogpu/rhi/internal/cache"
)

// spirvCache holds compiled modules keyed by WGSL source, shared by every
// device.
var spirvCache = cache.New[string, []uint32](64)

// CompileWGSL compiles WGSL source to SPIR-V words.
func CompileWGSL(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("wgpu: %w: compile shader: %v", driver.ErrValidation, err)
	}

	// SPIR-V is little-endian 32-bit words
	spirvCode := make([]uint32, len(spirvBytes)/4)
	for i := range spirvCode {
		spirvCode[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return spirvCode, nil
}

type kernel struct {
	dev      *Device
	label    string
	bindings []driver.BindingDesc

	shader   hal.ShaderModule
	layouts  []hal.BindGroupLayout
	pipeLay  hal.PipelineLayout
	pipeline hal.ComputePipeline
}

// Destroy cleans up all pipeline objects in reverse creation order.
func (k *kernel) Destroy() {
	k.dev.mu.Lock()
	defer k.dev.mu.Unlock()
	k.destroy()
}

func (k *kernel) destroy() {
	dev := k.dev.device
	if dev == nil {
		return
	}
	if k.pipeline != nil {
		dev.DestroyComputePipeline(k.pipeline)
	}
	if k.pipeLay != nil {
		dev.DestroyPipelineLayout(k.pipeLay)
	}
	for _, l := range k.layouts {
		dev.DestroyBindGroupLayout(l)
	}
	if k.shader != nil {
		dev.DestroyShaderModule(k.shader)
	}
}

func bufferBindingType(kind driver.BindingKind) (gputypes.BufferBindingType, error) {
	switch kind {
	case driver.BindingConstantBuffer:
		return gputypes.BufferBindingTypeUniform, nil
	case driver.BindingBuffer:
		return gputypes.BufferBindingTypeReadOnlyStorage, nil
	case driver.BindingRWBuffer:
		return gputypes.BufferBindingTypeStorage, nil
	}
	return 0, fmt.Errorf("wgpu: %w: %v bindings", driver.ErrCapability, kind)
}

// groupCount returns one more than the highest bind group index.
func groupCount(bindings []driver.BindingDesc) uint32 {
	var n uint32
	for _, b := range bindings {
		n = max(n, b.Group+1)
	}
	return n
}

// CreateKernel compiles desc.WGSL and creates one bind group layout per
// group index. Only buffer bindings are supported.
func (d *Device) CreateKernel(desc driver.KernelDesc) (driver.Kernel, error) {
	if desc.WGSL == "" {
		return nil, fmt.Errorf("wgpu: %w: kernel %q has no WGSL source", driver.ErrCapability, desc.Label)
	}
	entries := make([][]gputypes.BindGroupLayoutEntry, groupCount(desc.Bindings))
	for _, b := range desc.Bindings {
		typ, err := bufferBindingType(b.Kind)
		if err != nil {
			return nil, err
		}
		entries[b.Group] = append(entries[b.Group], gputypes.BindGroupLayoutEntry{
			Binding:    b.Binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: typ},
		})
	}
	spirv, err := spirvCache.Load(desc.WGSL, func() ([]uint32, error) {
		return CompileWGSL(desc.WGSL)
	})
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	k := &kernel{dev: d, label: desc.Label, bindings: slices.Clone(desc.Bindings)}
	fail := func(what string, err error) (driver.Kernel, error) {
		k.destroy()
		return nil, fmt.Errorf("wgpu: kernel %q: create %s: %w", desc.Label, what, err)
	}

	k.shader, err = d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return fail("shader module", err)
	}
	for g, e := range entries {
		l, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("%s_group%d", desc.Label, g),
			Entries: e,
		})
		if err != nil {
			return fail("bind group layout", err)
		}
		k.layouts = append(k.layouts, l)
	}
	k.pipeLay, err = d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: k.layouts,
	})
	if err != nil {
		return fail("pipeline layout", err)
	}
	k.pipeline, err = d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   desc.Label,
		Layout:  k.pipeLay,
		Compute: hal.ComputeState{Module: k.shader, EntryPoint: desc.EntryPoint},
	})
	if err != nil {
		return fail("compute pipeline", err)
	}
	d.log.Debug("wgpu: kernel created", "label", desc.Label, "groups", len(k.layouts))
	return k, nil
}

// dispatch creates bind groups for c.Bindings and encodes one compute
// pass. Bind groups are destroyed with the batch.
func (b *batch) dispatch(c driver.Dispatch) error {
	k := c.Kernel.(*kernel)
	entries := make([][]gputypes.BindGroupEntry, len(k.layouts))
	for _, bind := range c.Bindings {
		buf, ok := bind.Buffer.(*buffer)
		if !ok {
			return fmt.Errorf("wgpu: %w: %v binding %q", driver.ErrCapability, bind.Desc.Kind, bind.Desc.Name)
		}
		g := bind.Desc.Group
		entries[g] = append(entries[g], gputypes.BindGroupEntry{
			Binding:  bind.Desc.Binding,
			Resource: gputypes.BufferBinding{Buffer: buf.raw.NativeHandle(), Offset: bind.Offset, Size: bind.Size},
		})
	}

	groups := make([]hal.BindGroup, 0, len(k.layouts))
	for g, e := range entries {
		bg, err := b.d.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:   fmt.Sprintf("%s_group%d", k.label, g),
			Layout:  k.layouts[g],
			Entries: e,
		})
		if err != nil {
			return fmt.Errorf("wgpu: kernel %q: create bind group: %w", k.label, err)
		}
		b.cleanup = append(b.cleanup, func() { b.d.device.DestroyBindGroup(bg) })
		groups = append(groups, bg)
	}

	encoder, err := b.enc()
	if err != nil {
		return err
	}
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: k.label})
	pass.SetPipeline(k.pipeline)
	for g, bg := range groups {
		pass.SetBindGroup(uint32(g), bg, nil)
	}
	pass.Dispatch(c.GroupCount[0], c.GroupCount[1], c.GroupCount[2])
	pass.End()
	return nil
}
