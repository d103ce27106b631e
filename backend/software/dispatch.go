// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package software

import (
	"context"
	"fmt"
	"sync"

	"github.com/gogpu/rhi/driver"
	"github.com/gogpu/rhi/format"
)

// resources resolves binding names for host kernels.
type resources struct {
	buffers  map[string][]byte
	textures map[string]*texelView
	accels   map[string]*accel
}

func (r *resources) Buffer(name string) []byte { return r.buffers[name] }

func (r *resources) Texture(name string) driver.TexelAccess {
	if v, ok := r.textures[name]; ok {
		return v
	}
	return nil
}

func (r *resources) AccelerationStructure(name string) driver.Tracer {
	if a, ok := r.accels[name]; ok {
		return a
	}
	return nil
}

// texelView addresses the base mip of a bound layer range.
type texelView struct {
	tex    *texture
	layer  uint32
	mip    uint32
	extent format.Extent
}

func (v *texelView) Extent() format.Extent { return v.extent }

func (v *texelView) Format() format.Format { return v.tex.desc.Format }

func (v *texelView) texel(x, y, z uint32) []byte {
	if x >= v.extent.Width || y >= v.extent.Height || z >= v.extent.Depth {
		return nil
	}
	layer := v.layer
	if v.tex.desc.Type != driver.Texture3D {
		layer += z
		z = 0
	}
	sub, l := v.tex.sub(layer, v.mip)
	off := uint64(z)*l.SlicePitch + uint64(y/v.tex.info.BlockHeight)*l.RowPitch + uint64(x/v.tex.info.BlockWidth)*l.ColPitch
	return sub[off : off+l.ColPitch]
}

func (v *texelView) Load(x, y, z uint32) [4]float32 {
	b := v.texel(x, y, z)
	if b == nil {
		return [4]float32{}
	}
	return decodeTexel(v.tex.info, b)
}

func (v *texelView) Store(x, y, z uint32, c [4]float32) {
	if b := v.texel(x, y, z); b != nil {
		encodeTexel(v.tex.info, b, c)
	}
}

func bindResources(bindings []driver.Binding) *resources {
	r := &resources{
		buffers:  make(map[string][]byte),
		textures: make(map[string]*texelView),
		accels:   make(map[string]*accel),
	}
	for _, b := range bindings {
		switch b.Desc.Kind {
		case driver.BindingConstantBuffer, driver.BindingBuffer, driver.BindingRWBuffer:
			data := b.Buffer.(*buffer).data
			r.buffers[b.Desc.Name] = data[b.Offset : b.Offset+b.Size : b.Offset+b.Size]
		case driver.BindingTexture, driver.BindingRWTexture:
			t := b.Texture.(*texture)
			e := format.MipExtent(t.desc.Extent(), b.Mip)
			if t.desc.Type != driver.Texture3D {
				e.Depth = b.LayerCount
			}
			r.textures[b.Desc.Name] = &texelView{tex: t, layer: b.Layer, mip: b.Mip, extent: e}
		case driver.BindingAccelerationStructure:
			r.accels[b.Desc.Name] = b.AccelerationStructure.(*accel)
		}
	}
	return r
}

// dispatch runs one workgroup per pool item. Invocations beyond
// ThreadCount are skipped. A panicking kernel loses the device.
func (d *Device) dispatch(ctx context.Context, c driver.Dispatch) error {
	k := c.Kernel.(*kernel)
	res := bindResources(c.Bindings)
	local := k.desc.LocalSize
	for i := range local {
		local[i] = max(local[i], 1)
	}
	gx, gy, gz := c.GroupCount[0], c.GroupCount[1], c.GroupCount[2]
	groups := int(gx) * int(gy) * int(gz)

	var (
		once  sync.Once
		fault any
	)
	d.pool.ForEach(groups, 0, func(g int) {
		if ctx.Err() != nil {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				once.Do(func() { fault = r })
			}
		}()
		gid := [3]uint32{uint32(g) % gx, uint32(g) / gx % gy, uint32(g) / (gx * gy)}
		inv := driver.Invocation{GroupID: gid, Resources: res}
		for lz := range local[2] {
			for ly := range local[1] {
				for lx := range local[0] {
					tid := [3]uint32{gid[0]*local[0] + lx, gid[1]*local[1] + ly, gid[2]*local[2] + lz}
					if tid[0] >= c.ThreadCount[0] || tid[1] >= c.ThreadCount[1] || tid[2] >= c.ThreadCount[2] {
						continue
					}
					inv.ThreadID = tid
					inv.LocalID = [3]uint32{lx, ly, lz}
					k.desc.Host(&inv)
				}
			}
		}
	})
	if fault != nil {
		return fmt.Errorf("%w: software: kernel %q panicked: %v", driver.ErrDeviceLost, k.desc.Label, fault)
	}
	return ctx.Err()
}
