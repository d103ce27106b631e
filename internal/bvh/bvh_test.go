// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package bvh

import (
	"math"
	"testing"

	"golang.org/x/image/math/f32"
)

func gridPrims(n int) []Primitive {
	prims := make([]Primitive, 0, n*n)
	for y := range n {
		for x := range n {
			lo := f32.Vec3{float32(x), float32(y), 0}
			hi := f32.Vec3{float32(x) + 0.5, float32(y) + 0.5, 0.5}
			prims = append(prims, NewPrimitive(uint32(y*n+x), lo, hi))
		}
	}
	return prims
}

func TestBuildCoversAllPrimitives(t *testing.T) {
	for _, n := range []int{1, 2, 5, 16} {
		tree := Build(gridPrims(n), 4)
		seen := make(map[uint32]int)
		for _, node := range tree.Nodes {
			if node.Leaf() {
				if node.Count > 4 {
					t.Errorf("n=%d: leaf holds %d primitives, want <= 4", n, node.Count)
				}
				for _, p := range tree.Order[node.First : node.First+node.Count] {
					seen[p]++
				}
			}
		}
		if len(seen) != n*n {
			t.Errorf("n=%d: %d distinct primitives in leaves, want %d", n, len(seen), n*n)
		}
		for p, c := range seen {
			if c != 1 {
				t.Errorf("n=%d: primitive %d referenced %d times", n, p, c)
			}
		}
	}
}

func TestTraverseFindsBox(t *testing.T) {
	tree := Build(gridPrims(8), 2)
	var hits []uint32
	tree.Traverse(f32.Vec3{3.25, 5.25, -10}, f32.Vec3{0, 0, 1}, 0, 100, func(prim uint32, tmax float32) float32 {
		hits = append(hits, prim)
		return tmax
	})
	found := false
	for _, h := range hits {
		if h == 5*8+3 {
			found = true
		}
	}
	if !found {
		t.Errorf("Traverse() visited %v, want primitive %d among them", hits, 5*8+3)
	}

	hits = hits[:0]
	tree.Traverse(f32.Vec3{-5, -5, -10}, f32.Vec3{0, 0, 1}, 0, 100, func(prim uint32, tmax float32) float32 {
		hits = append(hits, prim)
		return tmax
	})
	if len(hits) != 0 {
		t.Errorf("ray outside the grid visited %v", hits)
	}
}

func TestTraverseEmpty(t *testing.T) {
	tree := Build(nil, 0)
	if !tree.Empty() {
		t.Fatal("Empty() = false for empty build")
	}
	tree.Traverse(f32.Vec3{}, f32.Vec3{0, 0, 1}, 0, 1, func(uint32, float32) float32 {
		t.Error("visit called on empty tree")
		return 0
	})
}

func TestIntersectTriangle(t *testing.T) {
	v0 := f32.Vec3{-1, -1, 0}
	v1 := f32.Vec3{1, -1, 0}
	v2 := f32.Vec3{0, 1, 0}

	tests := []struct {
		name   string
		origin f32.Vec3
		dir    f32.Vec3
		hit    bool
		dist   float32
		front  bool
	}{
		{"front hit", f32.Vec3{0, 0, 2}, f32.Vec3{0, 0, -1}, true, 2, true},
		{"back hit", f32.Vec3{0, 0, -3}, f32.Vec3{0, 0, 1}, true, 3, false},
		{"miss", f32.Vec3{5, 5, 2}, f32.Vec3{0, 0, -1}, false, 0, false},
		{"parallel", f32.Vec3{0, 0, 2}, f32.Vec3{1, 0, 0}, false, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _, _, front, ok := IntersectTriangle(tt.origin, tt.dir, v0, v1, v2)
			if ok != tt.hit {
				t.Fatalf("hit = %v, want %v", ok, tt.hit)
			}
			if !ok {
				return
			}
			if math.Abs(float64(d-tt.dist)) > 1e-5 {
				t.Errorf("t = %v, want %v", d, tt.dist)
			}
			if front != tt.front {
				t.Errorf("front = %v, want %v", front, tt.front)
			}
		})
	}
}

func TestInvert(t *testing.T) {
	m := [12]float32{2, 0, 0, 1, 0, 4, 0, 2, 0, 0, 8, 3}
	inv, ok := Invert(&m)
	if !ok {
		t.Fatal("Invert() reported singular matrix")
	}
	p := f32.Vec3{1, 2, 3}
	back := Transform(&inv, Transform(&m, p))
	for i := range 3 {
		if math.Abs(float64(back[i]-p[i])) > 1e-5 {
			t.Fatalf("inverse round trip = %v, want %v", back, p)
		}
	}
	if _, ok := Invert(&[12]float32{}); ok {
		t.Error("Invert() of zero matrix should fail")
	}
}

func TestTransformBounds(t *testing.T) {
	m := [12]float32{1, 0, 0, 10, 0, 1, 0, 0, 0, 0, 1, 0}
	lo, hi := TransformBounds(&m, f32.Vec3{0, 0, 0}, f32.Vec3{1, 1, 1})
	if lo != (f32.Vec3{10, 0, 0}) || hi != (f32.Vec3{11, 1, 1}) {
		t.Errorf("TransformBounds() = %v, %v", lo, hi)
	}
}
