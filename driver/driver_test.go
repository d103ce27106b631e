// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import (
	"errors"
	"slices"
	"testing"
)

type stubBackend struct{ name string }

func (b stubBackend) Name() string                    { return b.name }
func (b stubBackend) Open(DeviceDesc) (Device, error) { return nil, ErrCapability }

func TestRegistry(t *testing.T) {
	Register("stub-b", func() Backend { return stubBackend{"stub-b"} })
	Register("stub-a", func() Backend { return stubBackend{"stub-a"} })
	Register(BackendSoftware, func() Backend { return stubBackend{BackendSoftware} })
	defer Unregister("stub-a")
	defer Unregister("stub-b")
	defer Unregister(BackendSoftware)

	if !IsRegistered("stub-a") {
		t.Error("IsRegistered(stub-a) = false")
	}
	if IsRegistered("missing") {
		t.Error("IsRegistered(missing) = true")
	}
	if b := Get("stub-b"); b == nil || b.Name() != "stub-b" {
		t.Errorf("Get(stub-b) = %v", b)
	}
	if b := Get("missing"); b != nil {
		t.Errorf("Get(missing) = %v, want nil", b)
	}
	if got := Available(); !slices.IsSorted(got) || len(got) < 3 {
		t.Errorf("Available() = %v", got)
	}

	var names []string
	for _, b := range Candidates() {
		names = append(names, b.Name())
	}
	want := []string{BackendSoftware, "stub-a", "stub-b"}
	if !slices.Equal(filter(names, want), want) {
		t.Errorf("Candidates() order = %v, want %v first-to-last", names, want)
	}

	Unregister("stub-a")
	if IsRegistered("stub-a") {
		t.Error("stub-a still registered after Unregister")
	}
}

func filter(names, keep []string) []string {
	var out []string
	for _, n := range names {
		if slices.Contains(keep, n) {
			out = append(out, n)
		}
	}
	return out
}

func TestTextureType(t *testing.T) {
	tests := []struct {
		typ     TextureType
		arrayed TextureType
		isArray bool
		isCube  bool
	}{
		{Texture1D, Texture1DArray, false, false},
		{Texture2D, Texture2DArray, false, false},
		{Texture2DMS, Texture2DMSArray, false, false},
		{Texture3D, Texture3D, false, false},
		{TextureCube, TextureCubeArray, false, true},
		{TextureCubeArray, TextureCubeArray, true, true},
		{Texture2DArray, Texture2DArray, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			if got := tt.typ.Arrayed(); got != tt.arrayed {
				t.Errorf("Arrayed() = %v, want %v", got, tt.arrayed)
			}
			if got := tt.typ.IsArray(); got != tt.isArray {
				t.Errorf("IsArray() = %v, want %v", got, tt.isArray)
			}
			if got := tt.typ.IsCube(); got != tt.isCube {
				t.Errorf("IsCube() = %v, want %v", got, tt.isCube)
			}
		})
	}
}

func TestTextureDescLayerCount(t *testing.T) {
	d := TextureDesc{Type: TextureCubeArray, ArrayLength: 3}
	if got := d.LayerCount(); got != 18 {
		t.Errorf("cube array LayerCount() = %d, want 18", got)
	}
	d = TextureDesc{Type: Texture2DArray, ArrayLength: 3}
	if got := d.LayerCount(); got != 3 {
		t.Errorf("2D array LayerCount() = %d, want 3", got)
	}
}

func TestFlagStrings(t *testing.T) {
	u := BufferUsageUnorderedAccess | BufferUsageCopySource
	if got := u.String(); got != "unordered_access|copy_source" {
		t.Errorf("BufferUsage.String() = %q", got)
	}
	if got := TextureUsageNone.String(); got != "none" {
		t.Errorf("TextureUsageNone.String() = %q", got)
	}
	f := FeatureRayQuery | FeatureHostKernels
	if !f.Has(FeatureRayQuery) || f.Has(FeatureTimestampQuery) {
		t.Errorf("Feature.Has() wrong for %v", f)
	}
}

func TestInstanceEncoding(t *testing.T) {
	in := Instance{
		Transform:             IdentityTransform,
		InstanceID:            0xABCDEF,
		InstanceMask:          0xFF,
		InstanceContribution:  7,
		Flags:                 InstanceForceOpaque,
		AccelerationStructure: 0x1122334455667788,
	}
	buf := make([]byte, InstanceStride)
	if err := in.Encode(buf); err != nil {
		t.Fatal(err)
	}
	if buf[51] != 0xFF {
		t.Errorf("mask byte = %#x, want 0xff", buf[51])
	}
	got, err := DecodeInstance(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != in {
		t.Errorf("DecodeInstance() = %+v, want %+v", got, in)
	}

	in.InstanceID = 1 << 24
	if err := in.Encode(buf); !errors.Is(err, ErrValidation) {
		t.Errorf("oversized id error = %v, want ErrValidation", err)
	}
	if err := in.Encode(buf[:10]); !errors.Is(err, ErrValidation) {
		t.Errorf("short buffer error = %v, want ErrValidation", err)
	}
}

func TestBuildDescKind(t *testing.T) {
	blas := BuildDesc{Inputs: []BuildInput{TrianglesInput{VertexCount: 3}}}
	if blas.Kind() != KindBottomLevel {
		t.Error("triangles should build a bottom level structure")
	}
	tlas := BuildDesc{Inputs: []BuildInput{InstancesInput{Count: 1}}}
	if tlas.Kind() != KindTopLevel {
		t.Error("instances should build a top level structure")
	}
	tri := TrianglesInput{VertexCount: 9, IndexCount: 6, IndexBuffer: BufferRef{}}
	if tri.PrimitiveCount() != 3 {
		t.Errorf("non-indexed PrimitiveCount() = %d, want 3", tri.PrimitiveCount())
	}
}
