// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package format

import (
	"bytes"
	"errors"
	"testing"
)

func TestFormatInfo(t *testing.T) {
	tests := []struct {
		f          Format
		bytes      uint32
		block      uint32
		compressed bool
	}{
		{R8Unorm, 1, 1, false},
		{RGBA8Unorm, 4, 1, false},
		{RGB32Float, 12, 1, false},
		{RGBA32Float, 16, 1, false},
		{D24UnormS8Uint, 4, 1, false},
		{BC1Unorm, 8, 4, true},
		{BC7Unorm, 16, 4, true},
	}
	for _, tt := range tests {
		t.Run(tt.f.String(), func(t *testing.T) {
			info, ok := tt.f.Info()
			if !ok {
				t.Fatal("Info() not found")
			}
			if info.BytesPerBlock != tt.bytes {
				t.Errorf("BytesPerBlock = %d, want %d", info.BytesPerBlock, tt.bytes)
			}
			if info.BlockWidth != tt.block || info.BlockHeight != tt.block {
				t.Errorf("block = %dx%d, want %dx%d", info.BlockWidth, info.BlockHeight, tt.block, tt.block)
			}
			if info.Compressed != tt.compressed {
				t.Errorf("Compressed = %v, want %v", info.Compressed, tt.compressed)
			}
		})
	}
}

func TestFormatTableComplete(t *testing.T) {
	for _, f := range All() {
		info, ok := f.Info()
		if !ok {
			t.Fatalf("%d: no info", f)
		}
		if info.Format != f {
			t.Errorf("%s: Info().Format = %d, want %d", info.Name, info.Format, f)
		}
		if info.BytesPerBlock == 0 || info.BlockWidth == 0 || info.BlockHeight == 0 {
			t.Errorf("%s: incomplete block geometry %+v", info.Name, info)
		}
		got, err := Parse(info.Name)
		if err != nil || got != f {
			t.Errorf("Parse(%q) = %v, %v", info.Name, got, err)
		}
	}
	if _, ok := Undefined.Info(); ok {
		t.Error("Undefined.Info() should not be found")
	}
	if _, err := Parse("rgba9_unorm"); err == nil {
		t.Error("Parse() of unknown name should fail")
	}
}

func TestMipExtent(t *testing.T) {
	base := Extent{Width: 32, Height: 8, Depth: 4}
	tests := []struct {
		mip  uint32
		want Extent
	}{
		{0, Extent{32, 8, 4}},
		{1, Extent{16, 4, 2}},
		{2, Extent{8, 2, 1}},
		{3, Extent{4, 1, 1}},
		{5, Extent{1, 1, 1}},
		{40, Extent{1, 1, 1}},
	}
	for _, tt := range tests {
		if got := MipExtent(base, tt.mip); got != tt.want {
			t.Errorf("MipExtent(%v, %d) = %v, want %v", base, tt.mip, got, tt.want)
		}
	}
}

func TestMaxMipCount(t *testing.T) {
	tests := []struct {
		e    Extent
		want uint32
	}{
		{Extent{1, 1, 1}, 1},
		{Extent{2, 1, 1}, 2},
		{Extent{32, 32, 1}, 6},
		{Extent{33, 1, 1}, 6},
		{Extent{1, 1, 64}, 7},
	}
	for _, tt := range tests {
		if got := MaxMipCount(tt.e); got != tt.want {
			t.Errorf("MaxMipCount(%v) = %d, want %d", tt.e, got, tt.want)
		}
	}
}

func TestLayoutPacked(t *testing.T) {
	for _, f := range All() {
		info, _ := f.Info()
		for _, ext := range []Extent{{1, 1, 1}, {7, 5, 1}, {32, 32, 1}, {33, 17, 3}} {
			l, err := Layout(f, ext, 0, 1)
			if err != nil {
				t.Fatalf("%v %v: %v", f, ext, err)
			}
			bw := (ext.Width + info.BlockWidth - 1) / info.BlockWidth
			bh := (ext.Height + info.BlockHeight - 1) / info.BlockHeight
			if want := uint64(bw) * uint64(info.BytesPerBlock); l.RowPitch != want {
				t.Errorf("%v %v: RowPitch = %d, want %d", f, ext, l.RowPitch, want)
			}
			if l.RowCount != bh {
				t.Errorf("%v %v: RowCount = %d, want %d", f, ext, l.RowCount, bh)
			}
			if l.SizeInBytes != l.RowPitch*uint64(bh)*uint64(ext.Depth) {
				t.Errorf("%v %v: SizeInBytes = %d", f, ext, l.SizeInBytes)
			}
		}
	}
}

func TestLayoutAligned(t *testing.T) {
	for _, align := range []uint64{4, 64, 256, 512} {
		for _, f := range []Format{R8Unorm, RGBA32Float, RGB32Float, BC1Unorm} {
			for mip := range uint32(6) {
				packed, err := Layout(f, Extent{33, 31, 1}, mip, 1)
				if err != nil {
					t.Fatal(err)
				}
				l, err := Layout(f, Extent{33, 31, 1}, mip, align)
				if err != nil {
					t.Fatal(err)
				}
				if l.RowPitch%align != 0 {
					t.Errorf("%v mip %d align %d: RowPitch %d not aligned", f, mip, align, l.RowPitch)
				}
				if l.RowPitch < packed.RowPitch || l.RowPitch >= packed.RowPitch+align {
					t.Errorf("%v mip %d align %d: RowPitch %d outside [%d, %d)",
						f, mip, align, l.RowPitch, packed.RowPitch, packed.RowPitch+align)
				}
			}
		}
	}
}

func TestLayoutErrors(t *testing.T) {
	tests := []struct {
		name  string
		f     Format
		ext   Extent
		align uint64
		want  error
	}{
		{"undefined", Undefined, Extent{1, 1, 1}, 1, ErrUndefined},
		{"zero alignment", R8Unorm, Extent{1, 1, 1}, 0, ErrAlignment},
		{"odd alignment", R8Unorm, Extent{1, 1, 1}, 3, ErrAlignment},
		{"zero extent", R8Unorm, Extent{0, 1, 1}, 1, ErrExtent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Layout(tt.f, tt.ext, 0, tt.align)
			if !errors.Is(err, tt.want) {
				t.Errorf("Layout() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLayoutCompressedSmallMip(t *testing.T) {
	l, err := Layout(BC1Unorm, Extent{16, 16, 1}, 3, 1)
	if err != nil {
		t.Fatal(err)
	}
	if l.Size != (Extent{2, 2, 1}) {
		t.Errorf("Size = %v, want 2x2x1", l.Size)
	}
	if l.RowPitch != 8 || l.RowCount != 1 || l.SizeInBytes != 8 {
		t.Errorf("layout = %+v, want one 8 byte block", l)
	}
}

func TestTotalSize(t *testing.T) {
	got, err := TotalSize(RGBA32Float, Extent{32, 32, 1}, 2, 6, 1)
	if err != nil {
		t.Fatal(err)
	}
	var perLayer uint64
	for s := uint64(32); s >= 1; s /= 2 {
		perLayer += s * s * 16
	}
	if got != 2*perLayer {
		t.Errorf("TotalSize() = %d, want %d", got, 2*perLayer)
	}
}

func TestRepitch(t *testing.T) {
	info, _ := RGBA8Unorm.Info()
	packed, _ := Layout(RGBA8Unorm, Extent{3, 2, 1}, 0, 1)
	aligned, _ := Layout(RGBA8Unorm, Extent{3, 2, 1}, 0, 256)

	src := make([]byte, packed.SizeInBytes)
	for i := range src {
		src[i] = byte(i + 1)
	}
	mid := make([]byte, aligned.SizeInBytes)
	if err := Repitch(info, mid, aligned, src, packed); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(mid[256:256+12], src[12:24]) {
		t.Errorf("second row not at aligned offset")
	}
	back := make([]byte, packed.SizeInBytes)
	if err := Repitch(info, back, packed, mid, aligned); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(back, src) {
		t.Errorf("round trip mismatch: %v != %v", back, src)
	}
}

func TestCopyRegion(t *testing.T) {
	info, _ := R8Unorm.Info()
	sl, _ := Layout(R8Unorm, Extent{4, 4, 1}, 0, 1)
	src := make([]byte, sl.SizeInBytes)
	for i := range src {
		src[i] = byte(i)
	}
	dl, _ := Layout(R8Unorm, Extent{2, 2, 1}, 0, 1)
	dst := make([]byte, dl.SizeInBytes)

	if err := CopyRegion(info, dst, dl, Origin{}, src, sl, Origin{X: 1, Y: 2}, Extent{2, 2, 1}); err != nil {
		t.Fatal(err)
	}
	want := []byte{9, 10, 13, 14}
	if !bytes.Equal(dst, want) {
		t.Errorf("CopyRegion() = %v, want %v", dst, want)
	}

	err := CopyRegion(info, dst, dl, Origin{X: 1}, src, sl, Origin{}, Extent{2, 2, 1})
	if !errors.Is(err, ErrRegion) {
		t.Errorf("out of bounds copy error = %v, want ErrRegion", err)
	}

	bcInfo, _ := BC1Unorm.Info()
	bl, _ := Layout(BC1Unorm, Extent{8, 8, 1}, 0, 1)
	buf := make([]byte, bl.SizeInBytes)
	err = CopyRegion(bcInfo, buf, bl, Origin{X: 2}, buf, bl, Origin{}, Extent{4, 4, 1})
	if !errors.Is(err, ErrRegion) {
		t.Errorf("unaligned block copy error = %v, want ErrRegion", err)
	}
}

func BenchmarkLayout(b *testing.B) {
	for b.Loop() {
		for mip := range uint32(12) {
			_, _ = Layout(RGBA8Unorm, Extent{2048, 2048, 1}, mip, 256)
		}
	}
}
