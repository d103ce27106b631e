// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package software

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/rhi/driver"
	"github.com/gogpu/rhi/format"
	"github.com/gogpu/rhi/internal/bvh"
)

// accel is a bottom or top level structure backed by a BVH.
type accel struct {
	dev    *Device
	handle uint64
	size   uint64

	mu        sync.RWMutex
	built     bool
	kind      driver.AccelerationStructureKind
	tree      *bvh.Tree
	geoms     []geometry
	prims     []primRef
	instances []instance
}

// geometry is one build input of a bottom level structure. Triangles are
// stored as three world-space vertices each; boxes as min and max.
type geometry struct {
	triangles bool
	verts     []f32.Vec3
	boxes     [][2]f32.Vec3
}

type primRef struct {
	geom uint32
	prim uint32
}

type instance struct {
	rec   driver.Instance
	inv   [12]float32
	blas  *accel
	index uint32
}

func (a *accel) Handle() uint64 { return a.handle }

func (a *accel) Destroy() {
	a.dev.mu.Lock()
	delete(a.dev.accels, a.handle)
	a.dev.mu.Unlock()
}

// CreateAccelerationStructure allocates an unbuilt structure. Handles
// start at 1.
func (d *Device) CreateAccelerationStructure(desc driver.AccelerationStructureDesc) (driver.AccelerationStructure, error) {
	a := &accel{dev: d, handle: d.nextHandle.Add(1), size: desc.Size}
	d.mu.Lock()
	d.accels[a.handle] = a
	d.mu.Unlock()
	return a, nil
}

func (d *Device) lookup(handle uint64) *accel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.accels[handle]
}

const (
	sizeAlignment = 256
	nodeBytes     = 64
	primBytes     = 32
	instanceBytes = 128
)

// AccelerationStructureSizes returns sizes from the primitive or instance
// count alone, so equal descriptions always get equal sizes.
func (d *Device) AccelerationStructureSizes(desc *driver.BuildDesc) (driver.Sizes, error) {
	var prims uint64
	top := desc.Kind() == driver.KindTopLevel
	for _, in := range desc.Inputs {
		switch in := in.(type) {
		case driver.TrianglesInput:
			prims += uint64(in.PrimitiveCount())
		case driver.ProceduralInput:
			prims += uint64(in.PrimitiveCount)
		case driver.InstancesInput:
			prims += uint64(in.Count)
		}
	}
	per := uint64(nodeBytes + primBytes)
	if top {
		per = nodeBytes + instanceBytes
	}
	s := driver.Sizes{
		AccelerationStructureSize: format.AlignUp(sizeAlignment+prims*per, sizeAlignment),
		ScratchSize:               format.AlignUp(sizeAlignment+prims*primBytes, sizeAlignment),
	}
	if desc.Flags&driver.BuildAllowUpdate != 0 {
		s.UpdateScratchSize = format.AlignUp(sizeAlignment+prims*primBytes/2, sizeAlignment)
	}
	return s, nil
}

// build rebuilds the destination from its inputs. Updates are full
// rebuilds, which give the same result as a refit.
func (d *Device) build(c driver.BuildAccelerationStructure) error {
	dst := c.Dst.(*accel)
	if c.Desc.Kind() == driver.KindTopLevel {
		return d.buildTop(dst, c.Desc.Inputs[0].(driver.InstancesInput))
	}

	geoms := make([]geometry, 0, len(c.Desc.Inputs))
	var prims []bvh.Primitive
	var refs []primRef
	for gi, in := range c.Desc.Inputs {
		var (
			g   geometry
			err error
		)
		switch in := in.(type) {
		case driver.TrianglesInput:
			g, err = readTriangles(in)
		case driver.ProceduralInput:
			g, err = readBoxes(in)
		}
		if err != nil {
			return fmt.Errorf("input %d: %w", gi, err)
		}
		n := len(g.boxes)
		if g.triangles {
			n = len(g.verts) / 3
		}
		for pi := range n {
			lo, hi := g.bounds(pi)
			prims = append(prims, bvh.NewPrimitive(uint32(len(refs)), lo, hi))
			refs = append(refs, primRef{geom: uint32(gi), prim: uint32(pi)})
		}
		geoms = append(geoms, g)
	}

	tree := bvh.Build(prims, bvh.DefaultLeafSize)
	dst.mu.Lock()
	dst.built, dst.kind = true, driver.KindBottomLevel
	dst.tree, dst.geoms, dst.prims, dst.instances = tree, geoms, refs, nil
	dst.mu.Unlock()
	return nil
}

func (d *Device) buildTop(dst *accel, in driver.InstancesInput) error {
	data := in.Instances.Buffer.(*buffer).data[in.Instances.Offset:]
	insts := make([]instance, 0, in.Count)
	var prims []bvh.Primitive
	for i := range in.Count {
		rec, err := driver.DecodeInstance(data[uint64(i)*in.Stride:])
		if err != nil {
			return err
		}
		if rec.AccelerationStructure == 0 {
			continue
		}
		blas := d.lookup(rec.AccelerationStructure)
		if blas == nil {
			return fmt.Errorf("software: %w: instance %d references unknown structure %#x",
				driver.ErrValidation, i, rec.AccelerationStructure)
		}
		inv, ok := bvh.Invert(&rec.Transform)
		if !ok {
			// A singular transform flattens the instance; nothing can hit it.
			continue
		}
		blas.mu.RLock()
		empty := blas.tree == nil || blas.tree.Empty()
		var lo, hi f32.Vec3
		if !empty {
			lo, hi = blas.tree.Bounds()
		}
		blas.mu.RUnlock()
		if empty {
			continue
		}
		wlo, whi := bvh.TransformBounds(&rec.Transform, lo, hi)
		prims = append(prims, bvh.NewPrimitive(uint32(len(insts)), wlo, whi))
		insts = append(insts, instance{rec: rec, inv: inv, blas: blas, index: i})
	}

	tree := bvh.Build(prims, 1)
	dst.mu.Lock()
	dst.built, dst.kind = true, driver.KindTopLevel
	dst.tree, dst.geoms, dst.prims, dst.instances = tree, nil, nil, insts
	dst.mu.Unlock()
	return nil
}

func (g *geometry) bounds(prim int) (f32.Vec3, f32.Vec3) {
	if !g.triangles {
		return g.boxes[prim][0], g.boxes[prim][1]
	}
	v := g.verts[prim*3 : prim*3+3]
	return bvh.Min(bvh.Min(v[0], v[1]), v[2]), bvh.Max(bvh.Max(v[0], v[1]), v[2])
}

func readTriangles(in driver.TrianglesInput) (geometry, error) {
	g := geometry{triangles: true}
	vinfo, _ := in.VertexFormat.Info()
	vb := in.VertexBuffers[0]
	vdata := vb.Buffer.(*buffer).data[vb.Offset:]
	vertex := func(i uint32) f32.Vec3 {
		t := decodeTexel(vinfo, vdata[uint64(i)*in.VertexStride:])
		return f32.Vec3{t[0], t[1], t[2]}
	}

	var xf *[12]float32
	if in.PreTransform.Buffer != nil {
		b := in.PreTransform.Buffer.(*buffer).data[in.PreTransform.Offset:]
		var m [12]float32
		for i := range m {
			m[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
		}
		xf = &m
	}

	n := in.PrimitiveCount() * 3
	g.verts = make([]f32.Vec3, n)
	var idata []byte
	if in.IndexBuffer.Buffer != nil {
		idata = in.IndexBuffer.Buffer.(*buffer).data[in.IndexBuffer.Offset:]
	}
	for i := range n {
		vi := i
		if idata != nil {
			if in.IndexFormat == driver.IndexUint16 {
				vi = uint32(binary.LittleEndian.Uint16(idata[i*2:]))
			} else {
				vi = binary.LittleEndian.Uint32(idata[i*4:])
			}
			if vi >= in.VertexCount {
				return g, fmt.Errorf("software: %w: index %d references vertex %d of %d", driver.ErrValidation, i, vi, in.VertexCount)
			}
		}
		p := vertex(vi)
		if xf != nil {
			p = bvh.Transform(xf, p)
		}
		g.verts[i] = p
	}
	return g, nil
}

func readBoxes(in driver.ProceduralInput) (geometry, error) {
	ab := in.AABBBuffers[0]
	data := ab.Buffer.(*buffer).data[ab.Offset:]
	g := geometry{boxes: make([][2]f32.Vec3, in.PrimitiveCount)}
	for i := range in.PrimitiveCount {
		rec := data[uint64(i)*in.AABBStride:]
		var v [6]float32
		for j := range v {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(rec[j*4:]))
		}
		lo, hi := f32.Vec3{v[0], v[1], v[2]}, f32.Vec3{v[3], v[4], v[5]}
		if lo[0] > hi[0] || lo[1] > hi[1] || lo[2] > hi[2] {
			return g, fmt.Errorf("software: %w: box %d has min above max", driver.ErrValidation, i)
		}
		g.boxes[i] = [2]f32.Vec3{lo, hi}
	}
	return g, nil
}

// TraceRay returns the closest hit along r. Unbuilt structures never hit.
func (a *accel) TraceRay(r driver.Ray) (driver.Hit, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.built || a.tree == nil {
		return driver.Hit{}, false
	}
	mask := r.Mask
	if mask == 0 {
		mask = 0xFF
	}
	if a.kind == driver.KindBottomLevel {
		return a.traceBottom(r.Origin, r.Direction, r.TMin, r.TMax, false)
	}

	var best driver.Hit
	found := false
	tmax := r.TMax
	a.tree.Traverse(r.Origin, r.Direction, r.TMin, tmax, func(prim uint32, tmax float32) float32 {
		inst := &a.instances[prim]
		if inst.rec.InstanceMask&mask == 0 {
			return tmax
		}
		o := bvh.Transform(&inst.inv, r.Origin)
		dir := bvh.TransformDir(&inst.inv, r.Direction)
		ccwFront := inst.rec.Flags&driver.InstanceTriangleFrontCounterClockwise != 0

		inst.blas.mu.RLock()
		h, ok := inst.blas.traceBottom(o, dir, r.TMin, tmax, ccwFront)
		inst.blas.mu.RUnlock()
		if !ok {
			return tmax
		}
		h.InstanceIndex = inst.index
		h.InstanceID = inst.rec.InstanceID
		h.InstanceContribution = inst.rec.InstanceContribution
		best, found = h, true
		return h.T
	})
	return best, found
}

// traceBottom intersects object-space geometry. The caller holds a.mu.
// Triangles wound clockwise as seen from the origin are front facing
// unless ccwFront is set.
func (a *accel) traceBottom(o, dir f32.Vec3, tmin, tmax float32, ccwFront bool) (driver.Hit, bool) {
	if !a.built || a.tree == nil || a.kind != driver.KindBottomLevel {
		return driver.Hit{}, false
	}
	var best driver.Hit
	found := false
	a.tree.Traverse(o, dir, tmin, tmax, func(prim uint32, tmax float32) float32 {
		ref := a.prims[prim]
		g := &a.geoms[ref.geom]
		if g.triangles {
			v := g.verts[ref.prim*3 : ref.prim*3+3]
			t, u, w, ccw, ok := bvh.IntersectTriangle(o, dir, v[0], v[1], v[2])
			if !ok || t < tmin || t > tmax {
				return tmax
			}
			best = driver.Hit{T: t, U: u, V: w, PrimitiveIndex: ref.prim, GeometryIndex: ref.geom, FrontFace: ccw == ccwFront}
			found = true
			return t
		}
		box := g.boxes[ref.prim]
		inv := f32.Vec3{1 / dir[0], 1 / dir[1], 1 / dir[2]}
		t, ok := entry(o, inv, box[0], box[1], tmin, tmax)
		if !ok {
			return tmax
		}
		best = driver.Hit{T: t, PrimitiveIndex: ref.prim, GeometryIndex: ref.geom, FrontFace: true}
		found = true
		return t
	})
	return best, found
}

// entry returns the distance at which a ray enters a box, clamped to tmin.
func entry(o, inv, lo, hi f32.Vec3, tmin, tmax float32) (float32, bool) {
	for a := range 3 {
		t0 := (lo[a] - o[a]) * inv[a]
		t1 := (hi[a] - o[a]) * inv[a]
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		if !math.IsNaN(float64(t0)) {
			tmin = max(tmin, t0)
		}
		if !math.IsNaN(float64(t1)) {
			tmax = min(tmax, t1)
		}
		if tmin > tmax {
			return 0, false
		}
	}
	return tmin, true
}
