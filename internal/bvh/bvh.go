// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package bvh builds bounding volume hierarchies over primitive bounds and
// traverses them with rays.
package bvh

import (
	"cmp"
	"math"
	"slices"

	"golang.org/x/image/math/f32"
)

// Primitive is the bounding box of one primitive.
type Primitive struct {
	Min    f32.Vec3
	Max    f32.Vec3
	Center f32.Vec3

	// Index identifies the primitive to the caller.
	Index uint32
}

// NewPrimitive returns a primitive with its center filled in.
func NewPrimitive(index uint32, lo, hi f32.Vec3) Primitive {
	return Primitive{
		Min:    lo,
		Max:    hi,
		Center: f32.Vec3{(lo[0] + hi[0]) * 0.5, (lo[1] + hi[1]) * 0.5, (lo[2] + hi[2]) * 0.5},
		Index:  index,
	}
}

// Node is one tree node. Inner nodes have Count == 0 and reference their
// children by index; leaves reference Count entries of Tree.Order starting
// at First.
type Node struct {
	Min   f32.Vec3
	Max   f32.Vec3
	Left  int32
	Right int32
	First uint32
	Count uint32
}

// Leaf reports whether n is a leaf.
func (n *Node) Leaf() bool { return n.Count > 0 }

// Tree is a built hierarchy. Nodes[0] is the root.
type Tree struct {
	Nodes []Node
	Order []uint32
}

// DefaultLeafSize is the maximum number of primitives per leaf.
const DefaultLeafSize = 4

// Build constructs a tree by recursive median splits along the axis of
// largest centroid spread. prims is reordered in place.
func Build(prims []Primitive, leafSize int) *Tree {
	if leafSize <= 0 {
		leafSize = DefaultLeafSize
	}
	t := &Tree{
		Nodes: make([]Node, 0, max(1, 2*len(prims)/leafSize+1)),
		Order: make([]uint32, len(prims)),
	}
	if len(prims) == 0 {
		t.Nodes = append(t.Nodes, Node{Min: f32.Vec3{}, Max: f32.Vec3{}})
		return t
	}
	t.build(prims, 0, leafSize)
	return t
}

// Bounds returns the bounds of the root node.
func (t *Tree) Bounds() (lo, hi f32.Vec3) {
	return t.Nodes[0].Min, t.Nodes[0].Max
}

// Empty reports whether the tree holds no primitives.
func (t *Tree) Empty() bool { return len(t.Order) == 0 }

func (t *Tree) build(prims []Primitive, first uint32, leafSize int) int32 {
	lo, hi := prims[0].Min, prims[0].Max
	clo, chi := prims[0].Center, prims[0].Center
	for i := range prims[1:] {
		p := &prims[i+1]
		lo, hi = Min(lo, p.Min), Max(hi, p.Max)
		clo, chi = Min(clo, p.Center), Max(chi, p.Center)
	}

	idx := int32(len(t.Nodes))
	t.Nodes = append(t.Nodes, Node{Min: lo, Max: hi})

	if len(prims) <= leafSize {
		for i := range prims {
			t.Order[int(first)+i] = prims[i].Index
		}
		t.Nodes[idx].First = first
		t.Nodes[idx].Count = uint32(len(prims))
		return idx
	}

	axis := 0
	spread := Sub(chi, clo)
	if spread[1] > spread[axis] {
		axis = 1
	}
	if spread[2] > spread[axis] {
		axis = 2
	}
	slices.SortFunc(prims, func(a, b Primitive) int {
		return cmp.Compare(a.Center[axis], b.Center[axis])
	})

	mid := len(prims) / 2
	left := t.build(prims[:mid], first, leafSize)
	right := t.build(prims[mid:], first+uint32(mid), leafSize)
	t.Nodes[idx].Left = left
	t.Nodes[idx].Right = right
	return idx
}

// Traverse visits every leaf primitive whose node bounds the ray hits
// within [tmin, tmax]. visit returns the new tmax, allowing closest-hit
// queries to prune the search.
func (t *Tree) Traverse(origin, dir f32.Vec3, tmin, tmax float32, visit func(prim uint32, tmax float32) float32) {
	if t.Empty() {
		return
	}
	inv := f32.Vec3{1 / dir[0], 1 / dir[1], 1 / dir[2]}

	var stack [64]int32
	sp := 0
	stack[sp] = 0
	sp++
	for sp > 0 {
		sp--
		n := &t.Nodes[stack[sp]]
		if !IntersectAABB(origin, inv, n.Min, n.Max, tmin, tmax) {
			continue
		}
		if n.Leaf() {
			for _, prim := range t.Order[n.First : n.First+n.Count] {
				tmax = visit(prim, tmax)
			}
			continue
		}
		if sp+2 > len(stack) {
			// Depth is bounded by log2 of the primitive count, so this
			// only trips on degenerate input.
			continue
		}
		stack[sp] = n.Right
		stack[sp+1] = n.Left
		sp += 2
	}
}

// IntersectAABB is the slab test. inv is the componentwise reciprocal of
// the ray direction.
func IntersectAABB(origin, inv, lo, hi f32.Vec3, tmin, tmax float32) bool {
	for a := range 3 {
		t0 := (lo[a] - origin[a]) * inv[a]
		t1 := (hi[a] - origin[a]) * inv[a]
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		// NaN from 0*Inf means the origin lies on the slab plane.
		if !math.IsNaN(float64(t0)) {
			tmin = max(tmin, t0)
		}
		if !math.IsNaN(float64(t1)) {
			tmax = min(tmax, t1)
		}
		if tmin > tmax {
			return false
		}
	}
	return true
}

// IntersectTriangle is the Möller-Trumbore ray/triangle test. It returns
// the distance and barycentrics of the hit and whether the front face was
// hit (counter-clockwise winding seen from the ray origin).
func IntersectTriangle(origin, dir, v0, v1, v2 f32.Vec3) (t, u, v float32, front, ok bool) {
	const eps = 1e-8
	e1 := Sub(v1, v0)
	e2 := Sub(v2, v0)
	p := Cross(dir, e2)
	det := Dot(e1, p)
	if det > -eps && det < eps {
		return 0, 0, 0, false, false
	}
	invDet := 1 / det
	s := Sub(origin, v0)
	u = Dot(s, p) * invDet
	if u < 0 || u > 1 {
		return 0, 0, 0, false, false
	}
	q := Cross(s, e1)
	v = Dot(dir, q) * invDet
	if v < 0 || u+v > 1 {
		return 0, 0, 0, false, false
	}
	t = Dot(e2, q) * invDet
	return t, u, v, det > 0, true
}

// Sub returns a - b.
func Sub(a, b f32.Vec3) f32.Vec3 { return f32.Vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }

// Add returns a + b.
func Add(a, b f32.Vec3) f32.Vec3 { return f32.Vec3{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }

// Scale returns a * s.
func Scale(a f32.Vec3, s float32) f32.Vec3 { return f32.Vec3{a[0] * s, a[1] * s, a[2] * s} }

// Dot returns the dot product of a and b.
func Dot(a, b f32.Vec3) float32 { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }

// Cross returns the cross product of a and b.
func Cross(a, b f32.Vec3) f32.Vec3 {
	return f32.Vec3{a[1]*b[2] - a[2]*b[1], a[2]*b[0] - a[0]*b[2], a[0]*b[1] - a[1]*b[0]}
}

// Min returns the componentwise minimum.
func Min(a, b f32.Vec3) f32.Vec3 { return f32.Vec3{min(a[0], b[0]), min(a[1], b[1]), min(a[2], b[2])} }

// Max returns the componentwise maximum.
func Max(a, b f32.Vec3) f32.Vec3 { return f32.Vec3{max(a[0], b[0]), max(a[1], b[1]), max(a[2], b[2])} }

// Normalize returns a scaled to unit length. The zero vector is returned
// unchanged.
func Normalize(a f32.Vec3) f32.Vec3 {
	l := float32(math.Sqrt(float64(Dot(a, a))))
	if l == 0 {
		return a
	}
	return Scale(a, 1/l)
}

// Transform applies a row-major 3x4 affine matrix to a point.
func Transform(m *[12]float32, p f32.Vec3) f32.Vec3 {
	return f32.Vec3{
		m[0]*p[0] + m[1]*p[1] + m[2]*p[2] + m[3],
		m[4]*p[0] + m[5]*p[1] + m[6]*p[2] + m[7],
		m[8]*p[0] + m[9]*p[1] + m[10]*p[2] + m[11],
	}
}

// TransformDir applies the linear part of a row-major 3x4 matrix.
func TransformDir(m *[12]float32, d f32.Vec3) f32.Vec3 {
	return f32.Vec3{
		m[0]*d[0] + m[1]*d[1] + m[2]*d[2],
		m[4]*d[0] + m[5]*d[1] + m[6]*d[2],
		m[8]*d[0] + m[9]*d[1] + m[10]*d[2],
	}
}

// Invert returns the inverse of a row-major 3x4 affine matrix. Singular
// matrices yield ok == false.
func Invert(m *[12]float32) (inv [12]float32, ok bool) {
	a, b, c := m[0], m[1], m[2]
	d, e, f := m[4], m[5], m[6]
	g, h, i := m[8], m[9], m[10]

	A := e*i - f*h
	B := f*g - d*i
	C := d*h - e*g
	det := a*A + b*B + c*C
	if det == 0 {
		return inv, false
	}
	r := 1 / det

	inv[0], inv[1], inv[2] = A*r, (c*h-b*i)*r, (b*f-c*e)*r
	inv[4], inv[5], inv[6] = B*r, (a*i-c*g)*r, (c*d-a*f)*r
	inv[8], inv[9], inv[10] = C*r, (b*g-a*h)*r, (a*e-b*d)*r

	tx, ty, tz := m[3], m[7], m[11]
	inv[3] = -(inv[0]*tx + inv[1]*ty + inv[2]*tz)
	inv[7] = -(inv[4]*tx + inv[5]*ty + inv[6]*tz)
	inv[11] = -(inv[8]*tx + inv[9]*ty + inv[10]*tz)
	return inv, true
}

// TransformBounds returns the world bounds of a box under m.
func TransformBounds(m *[12]float32, lo, hi f32.Vec3) (f32.Vec3, f32.Vec3) {
	inf := float32(math.Inf(1))
	wlo := f32.Vec3{inf, inf, inf}
	whi := f32.Vec3{-inf, -inf, -inf}
	for corner := range 8 {
		p := lo
		if corner&1 != 0 {
			p[0] = hi[0]
		}
		if corner&2 != 0 {
			p[1] = hi[1]
		}
		if corner&4 != 0 {
			p[2] = hi[2]
		}
		w := Transform(m, p)
		wlo, whi = Min(wlo, w), Max(whi, w)
	}
	return wlo, whi
}
