// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package software

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/rhi/driver"
	"github.com/gogpu/rhi/format"
)

func openDevice(t *testing.T, opts ...Option) *Device {
	t.Helper()
	d, err := New(opts...).Open(driver.DeviceDesc{Label: t.Name()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(d.Destroy)
	return d.(*Device)
}

func exec(t *testing.T, d *Device, cmds ...driver.Command) {
	t.Helper()
	if err := d.Execute(context.Background(), cmds); err != nil {
		t.Fatalf("Execute: %v", err)
	}
}

func floats(vs ...float32) []byte {
	b := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

func TestRegistered(t *testing.T) {
	if !driver.IsRegistered(driver.BackendSoftware) {
		t.Fatal("software backend not registered")
	}
	b := driver.Get(driver.BackendSoftware)
	if b == nil || b.Name() != driver.BackendSoftware {
		t.Fatalf("Get = %v", b)
	}
}

func TestOpenOptions(t *testing.T) {
	d := openDevice(t, WithRowAlignment(64), WithFeatures(driver.FeatureHostKernels))
	info := d.Info()
	if info.RowAlignment != 64 {
		t.Errorf("RowAlignment = %d, want 64", info.RowAlignment)
	}
	if info.Features != driver.FeatureHostKernels {
		t.Errorf("Features = %v", info.Features)
	}
	if info.Backend != driver.BackendSoftware {
		t.Errorf("Backend = %q", info.Backend)
	}

	if _, err := New(WithRowAlignment(3)).Open(driver.DeviceDesc{}); !errors.Is(err, driver.ErrValidation) {
		t.Errorf("row alignment 3: err = %v, want ErrValidation", err)
	}
}

func TestBufferCommands(t *testing.T) {
	d := openDevice(t)
	a, _ := d.CreateBuffer(driver.BufferDesc{Size: 16})
	b, _ := d.CreateBuffer(driver.BufferDesc{Size: 16})
	out := make([]byte, 16)
	exec(t, d,
		driver.UploadBuffer{Dst: a, Offset: 0, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}},
		driver.CopyBuffer{Dst: b, DstOffset: 4, Src: a, SrcOffset: 2, Size: 4},
		driver.ClearBuffer{Dst: a, Offset: 0, Size: 4},
		driver.ReadBuffer{Src: b, Offset: 0, Dst: out},
	)
	want := []byte{0, 0, 0, 0, 3, 4, 5, 6, 0, 0, 0, 0, 0, 0, 0, 0}
	if string(out) != string(want) {
		t.Errorf("b = %v, want %v", out, want)
	}
	back := make([]byte, 8)
	exec(t, d, driver.ReadBuffer{Src: a, Dst: back})
	if string(back) != string([]byte{0, 0, 0, 0, 5, 6, 7, 8}) {
		t.Errorf("a = %v", back)
	}
}

func TestTextureRegionCopies(t *testing.T) {
	d := openDevice(t)
	desc := driver.TextureDesc{Type: driver.Texture2D, Format: format.R8Uint, Width: 4, Height: 4, Depth: 1, ArrayLength: 1, MipCount: 1, SampleCount: 1}
	tex, err := d.CreateTexture(desc)
	if err != nil {
		t.Fatal(err)
	}
	full := make([]byte, 16)
	for i := range full {
		full[i] = byte(i)
	}
	region := func(o format.Origin, e format.Extent) driver.TextureRegion {
		return driver.TextureRegion{Texture: tex, Origin: o, Size: e}
	}
	exec(t, d, driver.UploadTexture{Dst: region(format.Origin{}, format.Extent{Width: 4, Height: 4, Depth: 1}), Data: full})

	// A 2x2 box at (1,1) into a buffer with an 8 byte row pitch.
	buf, _ := d.CreateBuffer(driver.BufferDesc{Size: 32})
	exec(t, d, driver.CopyTextureToBuffer{Dst: buf, DstOffset: 4, RowPitch: 8, Src: region(format.Origin{X: 1, Y: 1}, format.Extent{Width: 2, Height: 2, Depth: 1})})
	got := buf.(*buffer).data
	if got[4] != 5 || got[5] != 6 || got[12] != 9 || got[13] != 10 {
		t.Errorf("pitched copy = %v", got[:16])
	}

	// And back into the top-left corner.
	exec(t, d, driver.CopyBufferToTexture{Dst: region(format.Origin{}, format.Extent{Width: 2, Height: 2, Depth: 1}), Src: buf, SrcOffset: 4, RowPitch: 8})
	out := make([]byte, 16)
	exec(t, d, driver.ReadTexture{Src: region(format.Origin{}, format.Extent{Width: 4, Height: 4, Depth: 1}), Dst: out})
	want := []byte{5, 6, 2, 3, 9, 10, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	if string(out) != string(want) {
		t.Errorf("texture = %v, want %v", out, want)
	}
}

func TestTexelConversions(t *testing.T) {
	tests := []struct {
		f    format.Format
		in   [4]float32
		want [4]float32
		tol  float32
	}{
		{format.RGBA8Unorm, [4]float32{0, 0.5, 1, 1}, [4]float32{0, 128.0 / 255, 1, 1}, 1e-6},
		{format.BGRA8Unorm, [4]float32{1, 0, 0, 1}, [4]float32{1, 0, 0, 1}, 0},
		{format.R8Snorm, [4]float32{-1, 0, 0, 0}, [4]float32{-1, 0, 0, 1}, 0},
		{format.RG16Float, [4]float32{0.5, -2, 0, 0}, [4]float32{0.5, -2, 0, 1}, 0},
		{format.RGBA32Float, [4]float32{1.25, 2, 3, 4}, [4]float32{1.25, 2, 3, 4}, 0},
		{format.R32Sint, [4]float32{-7, 0, 0, 0}, [4]float32{-7, 0, 0, 1}, 0},
		{format.R16Uint, [4]float32{65535, 0, 0, 0}, [4]float32{65535, 0, 0, 1}, 0},
		{format.D16Unorm, [4]float32{0.5, 0, 0, 0}, [4]float32{0.5, 0, 0, 1}, 1e-4},
		{format.D24UnormS8Uint, [4]float32{1, 3, 0, 0}, [4]float32{1, 3, 0, 1}, 0},
		{format.RGBA8UnormSrgb, [4]float32{0.5, 0, 1, 1}, [4]float32{0.5, 0, 1, 1}, 0.01},
	}
	for _, tt := range tests {
		t.Run(tt.f.String(), func(t *testing.T) {
			info, _ := tt.f.Info()
			b := make([]byte, info.BytesPerBlock)
			encodeTexel(info, b, tt.in)
			got := decodeTexel(info, b)
			for c := range 4 {
				if d := got[c] - tt.want[c]; d > tt.tol || d < -tt.tol {
					t.Errorf("channel %d = %v, want %v", c, got[c], tt.want[c])
				}
			}
		})
	}
}

func TestDepthStencilEdgeValues(t *testing.T) {
	info, _ := format.D24UnormS8Uint.Info()
	tests := []struct {
		name  string
		in    [4]float32
		depth uint32
		sten  uint32
	}{
		{"cleared far plane", [4]float32{1, 0, 0, 0}, 0xFFFFFF, 0},
		{"far plane with stencil", [4]float32{1, 0xFF, 0, 0}, 0xFFFFFF, 0xFF},
		{"near plane", [4]float32{0, 1, 0, 0}, 0, 1},
		{"above range", [4]float32{2, 300, 0, 0}, 0xFFFFFF, 0xFF},
		{"below range", [4]float32{-1, -4, 0, 0}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := make([]byte, 4)
			encodeTexel(info, b, tt.in)
			w := binary.LittleEndian.Uint32(b)
			if d, s := w&0xFFFFFF, w>>24; d != tt.depth || s != tt.sten {
				t.Errorf("depth, stencil = %#x, %d, want %#x, %d", d, s, tt.depth, tt.sten)
			}
		})
	}
}

func TestUnormFullScale(t *testing.T) {
	for _, f := range []format.Format{format.R8Unorm, format.R16Unorm, format.D16Unorm} {
		info, _ := f.Info()
		b := make([]byte, info.BytesPerBlock)
		encodeTexel(info, b, [4]float32{1, 0, 0, 0})
		for i, x := range b[:info.BytesPerBlock/info.ChannelCount] {
			if x != 0xFF {
				t.Errorf("%v byte %d = %#x, want 0xff", f, i, x)
			}
		}
	}
}

func TestIntegerSaturation(t *testing.T) {
	tests := []struct {
		f    format.Format
		in   float32
		want float32
	}{
		{format.R8Uint, 300, 255},
		{format.R16Uint, -5, 0},
		{format.R32Sint, -3e9, -2147483648},
	}
	for _, tt := range tests {
		t.Run(tt.f.String(), func(t *testing.T) {
			info, _ := tt.f.Info()
			b := make([]byte, info.BytesPerBlock)
			encodeTexel(info, b, [4]float32{tt.in, 0, 0, 0})
			if got := decodeTexel(info, b)[0]; got != tt.want {
				t.Errorf("decoded = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBGRAByteOrder(t *testing.T) {
	info, _ := format.BGRA8Unorm.Info()
	b := make([]byte, 4)
	encodeTexel(info, b, [4]float32{1, 0, 0, 1})
	if b[0] != 0 || b[2] != 0xFF {
		t.Errorf("bytes = %v, want blue first", b)
	}
}

func TestHalfFloat(t *testing.T) {
	tests := []struct {
		f float32
		h uint16
	}{
		{0, 0x0000},
		{1, 0x3C00},
		{-2, 0xC000},
		{0.5, 0x3800},
		{65504, 0x7BFF},
		{float32(math.Inf(1)), 0x7C00},
		{5.9604645e-08, 0x0001},
	}
	for _, tt := range tests {
		if got := floatToHalf(tt.f); got != tt.h {
			t.Errorf("floatToHalf(%v) = %#04x, want %#04x", tt.f, got, tt.h)
		}
		if got := halfToFloat(tt.h); got != tt.f {
			t.Errorf("halfToFloat(%#04x) = %v, want %v", tt.h, got, tt.f)
		}
	}
	if got := floatToHalf(1e6); got != 0x7C00 {
		t.Errorf("overflow = %#04x, want infinity", got)
	}
}

// triangleBLAS builds a bottom level structure over one triangle in the
// z=0 plane, wound counter-clockwise seen from +z.
func triangleBLAS(t *testing.T, d *Device) *accel {
	t.Helper()
	vb, _ := d.CreateBuffer(driver.BufferDesc{Size: 36})
	in := driver.TrianglesInput{
		VertexBuffers: []driver.BufferRef{{Buffer: vb}},
		VertexFormat:  format.RGB32Float,
		VertexCount:   3,
		VertexStride:  12,
	}
	desc := driver.BuildDesc{Inputs: []driver.BuildInput{in}}
	as, _ := d.CreateAccelerationStructure(driver.AccelerationStructureDesc{Size: 1024})
	exec(t, d,
		driver.UploadBuffer{Dst: vb, Data: floats(-1, -1, 0, 1, -1, 0, 0, 1, 0)},
		driver.BuildAccelerationStructure{Desc: desc, Dst: as},
	)
	return as.(*accel)
}

func TestTraceBottomLevel(t *testing.T) {
	d := openDevice(t)
	blas := triangleBLAS(t, d)

	hit, ok := blas.TraceRay(driver.Ray{Origin: f32.Vec3{0, 0, 5}, Direction: f32.Vec3{0, 0, -1}, TMax: 100})
	if !ok {
		t.Fatal("expected a hit")
	}
	if hit.T != 5 {
		t.Errorf("T = %v, want 5", hit.T)
	}
	// Counter-clockwise seen from the origin: a back face by default.
	if hit.FrontFace {
		t.Error("FrontFace = true, want false")
	}

	if _, ok := blas.TraceRay(driver.Ray{Origin: f32.Vec3{3, 3, 5}, Direction: f32.Vec3{0, 0, -1}, TMax: 100}); ok {
		t.Error("ray beside the triangle hit")
	}
	if _, ok := blas.TraceRay(driver.Ray{Origin: f32.Vec3{0, 0, 5}, Direction: f32.Vec3{0, 0, -1}, TMax: 4}); ok {
		t.Error("hit beyond TMax")
	}
}

func TestTraceTopLevel(t *testing.T) {
	d := openDevice(t)
	blas := triangleBLAS(t, d)

	records := make([]byte, 3*driver.InstanceStride)
	insts := []driver.Instance{
		{Transform: driver.IdentityTransform, InstanceID: 7, InstanceMask: 0x01, AccelerationStructure: blas.Handle()},
		// Inactive.
		{Transform: driver.IdentityTransform, InstanceID: 8, InstanceMask: 0xFF},
		// Shifted 10 units along x, counter-clockwise front.
		{
			Transform:             [12]float32{1, 0, 0, 10, 0, 1, 0, 0, 0, 0, 1, 0},
			InstanceID:            9,
			InstanceMask:          0x02,
			InstanceContribution:  3,
			Flags:                 driver.InstanceTriangleFrontCounterClockwise,
			AccelerationStructure: blas.Handle(),
		},
	}
	for i := range insts {
		if err := insts[i].Encode(records[i*driver.InstanceStride:]); err != nil {
			t.Fatal(err)
		}
	}
	ib, _ := d.CreateBuffer(driver.BufferDesc{Size: uint64(len(records))})
	tlas, _ := d.CreateAccelerationStructure(driver.AccelerationStructureDesc{Size: 1024})
	desc := driver.BuildDesc{Inputs: []driver.BuildInput{driver.InstancesInput{Instances: driver.BufferRef{Buffer: ib}, Stride: driver.InstanceStride, Count: 3}}}
	exec(t, d,
		driver.UploadBuffer{Dst: ib, Data: records},
		driver.BuildAccelerationStructure{Desc: desc, Dst: tlas},
	)
	tr := tlas.(*accel)

	down := f32.Vec3{0, 0, -1}
	tests := []struct {
		name   string
		origin f32.Vec3
		mask   uint8
		hit    bool
		id     uint32
		index  uint32
		front  bool
	}{
		{"first instance", f32.Vec3{0, 0, 5}, 0, true, 7, 0, false},
		{"shifted instance", f32.Vec3{10, 0, 5}, 0, true, 9, 2, true},
		{"masked out", f32.Vec3{10, 0, 5}, 0x01, false, 0, 0, false},
		{"between instances", f32.Vec3{5, 0, 5}, 0, false, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hit, ok := tr.TraceRay(driver.Ray{Origin: tt.origin, Direction: down, TMax: 100, Mask: tt.mask})
			if ok != tt.hit {
				t.Fatalf("hit = %v, want %v", ok, tt.hit)
			}
			if !ok {
				return
			}
			if hit.InstanceID != tt.id || hit.InstanceIndex != tt.index || hit.FrontFace != tt.front {
				t.Errorf("hit = %+v, want id %d index %d front %v", hit, tt.id, tt.index, tt.front)
			}
		})
	}
}

func TestProceduralBoxes(t *testing.T) {
	d := openDevice(t)
	ab, _ := d.CreateBuffer(driver.BufferDesc{Size: 48})
	as, _ := d.CreateAccelerationStructure(driver.AccelerationStructureDesc{Size: 1024})
	desc := driver.BuildDesc{Inputs: []driver.BuildInput{driver.ProceduralInput{
		AABBBuffers: []driver.BufferRef{{Buffer: ab}}, AABBStride: 24, PrimitiveCount: 2,
	}}}
	exec(t, d,
		driver.UploadBuffer{Dst: ab, Data: floats(0, 0, 0, 1, 1, 1, 0, 0, 4, 1, 1, 5)},
		driver.BuildAccelerationStructure{Desc: desc, Dst: as},
	)
	hit, ok := as.(*accel).TraceRay(driver.Ray{Origin: f32.Vec3{0.5, 0.5, 10}, Direction: f32.Vec3{0, 0, -1}, TMax: 100})
	if !ok || hit.PrimitiveIndex != 1 || hit.T != 5 {
		t.Errorf("hit = %+v, %v; want box 1 at t=5", hit, ok)
	}
}

func TestSizesDeterministic(t *testing.T) {
	d := openDevice(t)
	desc := &driver.BuildDesc{
		Inputs: []driver.BuildInput{driver.TrianglesInput{VertexCount: 300, VertexFormat: format.RGB32Float}},
		Flags:  driver.BuildAllowUpdate,
	}
	a, _ := d.AccelerationStructureSizes(desc)
	b, _ := d.AccelerationStructureSizes(desc)
	if a != b {
		t.Errorf("sizes differ: %+v vs %+v", a, b)
	}
	if a.AccelerationStructureSize == 0 || a.ScratchSize == 0 || a.UpdateScratchSize == 0 {
		t.Errorf("sizes = %+v, want all non-zero", a)
	}
	if a.AccelerationStructureSize%sizeAlignment != 0 {
		t.Errorf("size %d not aligned", a.AccelerationStructureSize)
	}
}

func TestDispatch(t *testing.T) {
	d := openDevice(t, WithWorkers(4))
	buf, _ := d.CreateBuffer(driver.BufferDesc{Size: 4 * 10})
	var calls atomic.Int32
	k, err := d.CreateKernel(driver.KernelDesc{
		Label:     "fill",
		LocalSize: [3]uint32{4, 1, 1},
		Bindings:  []driver.BindingDesc{{Name: "out", Kind: driver.BindingRWBuffer}},
		Host: func(inv *driver.Invocation) {
			calls.Add(1)
			out := inv.Buffer("out")
			binary.LittleEndian.PutUint32(out[inv.ThreadID[0]*4:], inv.ThreadID[0]*inv.ThreadID[0])
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	exec(t, d, driver.Dispatch{
		Kernel:      k,
		GroupCount:  [3]uint32{3, 1, 1},
		ThreadCount: [3]uint32{10, 1, 1},
		Bindings:    []driver.Binding{{Desc: driver.BindingDesc{Name: "out", Kind: driver.BindingRWBuffer}, Buffer: buf, Size: 40}},
	})
	if calls.Load() != 10 {
		t.Errorf("invocations = %d, want 10", calls.Load())
	}
	data := buf.(*buffer).data
	for i := range uint32(10) {
		if got := binary.LittleEndian.Uint32(data[i*4:]); got != i*i {
			t.Errorf("out[%d] = %d, want %d", i, got, i*i)
		}
	}
}

func TestKernelWithoutHostFunction(t *testing.T) {
	d := openDevice(t)
	_, err := d.CreateKernel(driver.KernelDesc{WGSL: "@compute @workgroup_size(1) fn main() {}"})
	if !errors.Is(err, driver.ErrCapability) {
		t.Errorf("err = %v, want ErrCapability", err)
	}
}

func TestKernelPanicLosesDevice(t *testing.T) {
	d := openDevice(t)
	k, _ := d.CreateKernel(driver.KernelDesc{Label: "boom", Host: func(*driver.Invocation) { panic("fault") }})
	err := d.Execute(context.Background(), []driver.Command{driver.Dispatch{Kernel: k, GroupCount: [3]uint32{1, 1, 1}, ThreadCount: [3]uint32{1, 1, 1}}})
	if !errors.Is(err, driver.ErrDeviceLost) {
		t.Fatalf("err = %v, want ErrDeviceLost", err)
	}
	if err := d.Execute(context.Background(), nil); !errors.Is(err, driver.ErrDeviceLost) {
		t.Errorf("after loss: err = %v, want ErrDeviceLost", err)
	}
}

func TestDeviceLostAfter(t *testing.T) {
	d := openDevice(t, WithDeviceLostAfter(2))
	ctx := context.Background()
	for i := range 2 {
		if err := d.Execute(ctx, nil); err != nil {
			t.Fatalf("list %d: %v", i, err)
		}
	}
	if err := d.Execute(ctx, nil); !errors.Is(err, driver.ErrDeviceLost) {
		t.Errorf("third list: err = %v, want ErrDeviceLost", err)
	}
}

func TestCommandHook(t *testing.T) {
	errInjected := errors.New("injected")
	d := openDevice(t, WithCommandHook(func(c driver.Command) error {
		if _, ok := c.(driver.ClearBuffer); ok {
			return errInjected
		}
		return nil
	}))
	buf, _ := d.CreateBuffer(driver.BufferDesc{Size: 4})
	err := d.Execute(context.Background(), []driver.Command{
		driver.UploadBuffer{Dst: buf, Data: []byte{1, 1, 1, 1}},
		driver.ClearBuffer{Dst: buf, Size: 4},
	})
	if !errors.Is(err, errInjected) {
		t.Fatalf("err = %v, want injected", err)
	}
	if buf.(*buffer).data[0] != 1 {
		t.Error("commands after the failure ran")
	}
}

func TestTimestamps(t *testing.T) {
	d := openDevice(t)
	p, _ := d.CreateQueryPool(driver.QueryPoolDesc{Type: driver.QueryTimestamp, Count: 3})
	exec(t, d, driver.WriteTimestamp{Pool: p, Index: 0}, driver.WriteTimestamp{Pool: p, Index: 2})
	r := p.Results(0, 3)
	if r[0] == 0 || r[1] != 0 || r[2] < r[0] {
		t.Errorf("results = %v", r)
	}
	p.Reset()
	if r := p.Results(0, 3); r[0] != 0 || r[2] != 0 {
		t.Errorf("after reset = %v", r)
	}
}
