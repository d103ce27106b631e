// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command rhidemo ray traces a small scene with the rhi software backend
// and writes the result as a TIFF image.
package main

import (
	"flag"
	"fmt"
	"image"
	"log"
	"math"
	"os"

	"golang.org/x/image/math/f32"
	"golang.org/x/image/tiff"

	"github.com/gogpu/rhi"
	_ "github.com/gogpu/rhi/backend/software"
	_ "github.com/gogpu/rhi/backend/wgpu"
	"github.com/gogpu/rhi/format"
)

func main() {
	var (
		width   = flag.Int("width", 640, "image width")
		height  = flag.Int("height", 400, "image height")
		output  = flag.String("output", "rhidemo.tiff", "output file")
		backend = flag.String("backend", "software", "backend name")
		report  = flag.Bool("report", false, "print live resources before closing the device")
	)
	flag.Parse()

	d, err := rhi.Open(rhi.WithBackend(*backend), rhi.WithLabel("rhidemo"),
		rhi.WithFeatures(rhi.FeatureAccelerationStructure|rhi.FeatureRayQuery|rhi.FeatureHostKernels))
	if err != nil {
		log.Fatalf("Failed to open device: %v", err)
	}
	defer d.Close()

	s, err := buildScene(d)
	if err != nil {
		log.Fatalf("Failed to build scene: %v", err)
	}
	img, err := render(d, s, uint32(*width), uint32(*height))
	if err != nil {
		log.Fatalf("Failed to render: %v", err)
	}
	if *report {
		fmt.Print(d.Report())
	}

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("Failed to save: %v", err)
	}
	if err := tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		f.Close()
		log.Fatalf("Failed to save: %v", err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("Failed to save: %v", err)
	}
	log.Printf("Demo saved to %s (%dx%d) on %s\n", *output, *width, *height, d.Info().Name)
}

// mesh is triangle soup kept on the host for shading.
type mesh struct {
	name  string
	verts []float32
}

var (
	ground = mesh{name: "ground", verts: []float32{
		-8, 0, -8, -8, 0, 8, 8, 0, 8,
		-8, 0, -8, 8, 0, 8, 8, 0, -8,
	}}
	pyramid = mesh{name: "pyramid", verts: []float32{
		-1, 0, 1, 1, 0, 1, 0, 1.6, 0,
		1, 0, 1, 1, 0, -1, 0, 1.6, 0,
		1, 0, -1, -1, 0, -1, 0, 1.6, 0,
		-1, 0, -1, -1, 0, 1, 0, 1.6, 0,
	}}
)

// normal returns the unit face normal of triangle prim.
func (m mesh) normal(prim uint32) f32.Vec3 {
	v := m.verts[prim*9:]
	a := f32.Vec3{v[0], v[1], v[2]}
	b := f32.Vec3{v[3], v[4], v[5]}
	c := f32.Vec3{v[6], v[7], v[8]}
	return normalize(cross(sub(b, a), sub(c, a)))
}

type scene struct {
	tlas *rhi.AccelerationStructure
	// meshes is indexed by instance contribution, colors by instance ID.
	meshes []mesh
	colors []f32.Vec3
}

// builder records builds into one encoder. Build inputs and scratch
// buffers are released once the encoder has been submitted.
type builder struct {
	d     *rhi.Device
	enc   *rhi.CommandEncoder
	temps []*rhi.Buffer
}

func (b *builder) submit() error {
	defer func() {
		for _, t := range b.temps {
			t.Destroy()
		}
	}()
	cb, err := b.enc.Finish()
	if err != nil {
		return err
	}
	return b.d.Submit(cb)
}

func (b *builder) blas(m mesh) (*rhi.AccelerationStructure, error) {
	vb, err := b.d.CreateBuffer(rhi.BufferDesc{
		Label: m.name + " vertices",
		Size:  uint64(len(m.verts) * 4),
		Usage: rhi.BufferUsageAccelerationStructureBuildInput,
		Data:  rhi.AsBytes(m.verts),
	})
	if err != nil {
		return nil, err
	}
	b.temps = append(b.temps, vb)

	desc := &rhi.AccelerationStructureBuildDesc{
		Inputs: []rhi.AccelerationStructureBuildInput{rhi.AccelerationStructureBuildInputTriangles{
			VertexBuffers: []rhi.BufferOffset{{Buffer: vb}},
			VertexFormat:  format.RGB32Float,
			VertexCount:   uint32(len(m.verts) / 3),
			Flags:         rhi.GeometryOpaque,
		}},
		Flags: rhi.BuildPreferFastTrace,
	}
	return b.build(m.name, desc)
}

func (b *builder) build(label string, desc *rhi.AccelerationStructureBuildDesc) (*rhi.AccelerationStructure, error) {
	sizes, err := b.d.AccelerationStructureSizes(desc)
	if err != nil {
		return nil, err
	}
	as, err := b.d.CreateAccelerationStructure(rhi.AccelerationStructureDesc{Label: label, Size: sizes.AccelerationStructureSize})
	if err != nil {
		return nil, err
	}
	scratch, err := b.d.CreateBuffer(rhi.BufferDesc{Label: label + " scratch", Size: sizes.ScratchSize, Usage: rhi.BufferUsageUnorderedAccess})
	if err != nil {
		return nil, err
	}
	b.temps = append(b.temps, scratch)
	if err := b.enc.BuildAccelerationStructure(desc, as, nil, rhi.BufferOffset{Buffer: scratch}); err != nil {
		return nil, err
	}
	return as, nil
}

func translate(x, y, z, scale float32) [12]float32 {
	return [12]float32{scale, 0, 0, x, 0, scale, 0, y, 0, 0, scale, z}
}

func buildScene(d *rhi.Device) (*scene, error) {
	bottom := &builder{d: d, enc: d.CreateCommandEncoder("bottom level")}
	groundAS, err := bottom.blas(ground)
	if err != nil {
		return nil, err
	}
	pyramidAS, err := bottom.blas(pyramid)
	if err != nil {
		return nil, err
	}
	if err := bottom.submit(); err != nil {
		return nil, err
	}

	s := &scene{
		meshes: []mesh{ground, pyramid},
		colors: []f32.Vec3{{0.8, 0.8, 0.75}, {0.9, 0.3, 0.2}, {0.2, 0.7, 0.3}, {0.2, 0.4, 0.9}},
	}
	instances := []rhi.AccelerationStructureInstanceDesc{
		{Transform: rhi.IdentityTransform, InstanceID: 0, InstanceMask: 0xFF, InstanceContribution: 0, AccelerationStructure: groundAS.Handle()},
		{Transform: translate(-2.4, 0, 0, 1), InstanceID: 1, InstanceMask: 0xFF, InstanceContribution: 1, AccelerationStructure: pyramidAS.Handle()},
		{Transform: translate(0, 0, -1, 1.3), InstanceID: 2, InstanceMask: 0xFF, InstanceContribution: 1, AccelerationStructure: pyramidAS.Handle()},
		{Transform: translate(2.4, 0, 0.5, 0.8), InstanceID: 3, InstanceMask: 0xFF, InstanceContribution: 1, AccelerationStructure: pyramidAS.Handle()},
	}
	list, err := d.CreateInstanceList(len(instances))
	if err != nil {
		return nil, err
	}
	if err := list.WriteAll(0, instances); err != nil {
		return nil, err
	}
	input, err := list.BuildInputInstances()
	if err != nil {
		return nil, err
	}

	top := &builder{d: d, enc: d.CreateCommandEncoder("top level")}
	s.tlas, err = top.build("scene", &rhi.AccelerationStructureBuildDesc{Inputs: []rhi.AccelerationStructureBuildInput{input}})
	if err != nil {
		return nil, err
	}
	if err := top.submit(); err != nil {
		return nil, err
	}
	return s, d.WaitForIdle()
}

func render(d *rhi.Device, s *scene, w, h uint32) (*image.RGBA, error) {
	target, err := d.CreateTexture(rhi.TextureDesc{
		Label:  "image",
		Type:   rhi.Texture2D,
		Format: format.RGBA8Unorm,
		Width:  w,
		Height: h,
		Usage:  rhi.TextureUsageUnorderedAccess,
	})
	if err != nil {
		return nil, err
	}
	defer target.Destroy()

	eye := f32.Vec3{0, 2.6, 7}
	forward := normalize(sub(f32.Vec3{0, 0.6, 0}, eye))
	right := normalize(cross(forward, f32.Vec3{0, 1, 0}))
	up := cross(right, forward)
	light := normalize(f32.Vec3{-0.5, 1, 0.6})
	aspect := float32(w) / float32(h)

	k, err := d.CreateComputeKernel(rhi.KernelDesc{
		Label:     "trace",
		LocalSize: [3]uint32{8, 8, 1},
		Bindings: []rhi.BindingDesc{
			{Name: "scene", Kind: rhi.BindingAccelerationStructure},
			{Name: "image", Kind: rhi.BindingRWTexture},
		},
		Host: func(inv *rhi.Invocation) {
			x, y := inv.ThreadID[0], inv.ThreadID[1]
			u := (2*(float32(x)+0.5)/float32(w) - 1) * aspect * 0.6
			v := (1 - 2*(float32(y)+0.5)/float32(h)) * 0.6
			dir := normalize(add(forward, add(scale(right, u), scale(up, v))))

			tracer := inv.AccelerationStructure("scene")
			color := sky(dir)
			if hit, ok := tracer.TraceRay(rhi.Ray{Origin: eye, Direction: dir, TMin: 1e-3, TMax: 100}); ok {
				n := s.meshes[hit.InstanceContribution].normal(hit.PrimitiveIndex)
				if dot(n, dir) > 0 {
					n = scale(n, -1)
				}
				p := add(eye, scale(dir, hit.T))
				diffuse := max(dot(n, light), 0)
				shadow := rhi.Ray{Origin: add(p, scale(n, 1e-3)), Direction: light, TMin: 1e-3, TMax: 100}
				if _, blocked := tracer.TraceRay(shadow); blocked {
					diffuse = 0
				}
				color = scale(s.colors[hit.InstanceID], 0.15+0.85*diffuse)
			}
			inv.Texture("image").Store(x, y, 0, [4]float32{color[0], color[1], color[2], 1})
		},
	})
	if err != nil {
		return nil, err
	}
	defer k.Destroy()

	if err := k.Dispatch([3]uint32{w, h, 1}, rhi.Vars{"scene": s.tlas, "image": target}); err != nil {
		return nil, err
	}
	if err := d.WaitForIdle(); err != nil {
		return nil, err
	}
	pix, err := target.ToHost(0, 0)
	if err != nil {
		return nil, err
	}
	return &image.RGBA{Pix: pix, Stride: int(w) * 4, Rect: image.Rect(0, 0, int(w), int(h))}, nil
}

func sky(dir f32.Vec3) f32.Vec3 {
	t := 0.5 * (dir[1] + 1)
	return add(scale(f32.Vec3{1, 1, 1}, 1-t), scale(f32.Vec3{0.5, 0.7, 1}, t))
}

func add(a, b f32.Vec3) f32.Vec3 { return f32.Vec3{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }
func sub(a, b f32.Vec3) f32.Vec3 { return f32.Vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }
func scale(a f32.Vec3, s float32) f32.Vec3 { return f32.Vec3{a[0] * s, a[1] * s, a[2] * s} }
func dot(a, b f32.Vec3) float32 { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }

func cross(a, b f32.Vec3) f32.Vec3 {
	return f32.Vec3{a[1]*b[2] - a[2]*b[1], a[2]*b[0] - a[0]*b[2], a[0]*b[1] - a[1]*b[0]}
}

func normalize(a f32.Vec3) f32.Vec3 {
	l := float32(math.Sqrt(float64(dot(a, a))))
	if l == 0 {
		return a
	}
	return scale(a, 1/l)
}
