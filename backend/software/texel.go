// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package software

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/rhi/format"
)

// decodeTexel converts one texel to float channels. Missing channels read
// as 0 except alpha, which reads as 1. Compressed formats read as zero.
func decodeTexel(info format.Info, b []byte) [4]float32 {
	out := [4]float32{0, 0, 0, 1}
	if info.Compressed {
		return [4]float32{}
	}
	switch info.Format {
	case format.D24UnormS8Uint:
		w := binary.LittleEndian.Uint32(b)
		out[0] = float32(w&0xFFFFFF) / 0xFFFFFF
		out[1] = float32(w >> 24)
		return out
	}

	size := int(info.BytesPerBlock / info.ChannelCount)
	for c := range int(info.ChannelCount) {
		v := b[c*size:]
		switch info.Kind {
		case format.KindUnorm, format.KindDepth:
			switch size {
			case 1:
				out[c] = float32(v[0]) / 0xFF
			case 2:
				out[c] = float32(binary.LittleEndian.Uint16(v)) / 0xFFFF
			case 4:
				out[c] = math.Float32frombits(binary.LittleEndian.Uint32(v))
			}
		case format.KindSnorm:
			switch size {
			case 1:
				out[c] = max(float32(int8(v[0]))/0x7F, -1)
			case 2:
				out[c] = max(float32(int16(binary.LittleEndian.Uint16(v)))/0x7FFF, -1)
			}
		case format.KindUint:
			out[c] = float32(readUint(v, size))
		case format.KindSint:
			out[c] = float32(readSint(v, size))
		case format.KindFloat:
			if size == 2 {
				out[c] = halfToFloat(binary.LittleEndian.Uint16(v))
			} else {
				out[c] = math.Float32frombits(binary.LittleEndian.Uint32(v))
			}
		}
	}
	if isBGRA(info.Format) {
		out[0], out[2] = out[2], out[0]
	}
	if info.SRGB {
		for c := range 3 {
			out[c] = srgbToLinear(out[c])
		}
	}
	return out
}

// encodeTexel stores float channels into one texel. Compressed formats
// are left unchanged.
func encodeTexel(info format.Info, b []byte, v [4]float32) {
	if info.Compressed {
		return
	}
	if info.SRGB {
		for c := range 3 {
			v[c] = linearToSRGB(v[c])
		}
	}
	if isBGRA(info.Format) {
		v[0], v[2] = v[2], v[0]
	}
	switch info.Format {
	case format.D24UnormS8Uint:
		d := unorm(v[0], 0xFFFFFF)
		s := uint32(math.Round(float64(min(max(v[1], 0), 0xFF))))
		binary.LittleEndian.PutUint32(b, d|s<<24)
		return
	}

	size := int(info.BytesPerBlock / info.ChannelCount)
	for c := range int(info.ChannelCount) {
		dst := b[c*size:]
		x := v[c]
		switch info.Kind {
		case format.KindUnorm, format.KindDepth:
			switch size {
			case 1:
				dst[0] = uint8(unorm(x, 0xFF))
			case 2:
				binary.LittleEndian.PutUint16(dst, uint16(unorm(x, 0xFFFF)))
			case 4:
				binary.LittleEndian.PutUint32(dst, math.Float32bits(x))
			}
		case format.KindSnorm:
			x = min(max(x, -1), 1)
			switch size {
			case 1:
				dst[0] = uint8(int8(math.Round(float64(x) * 0x7F)))
			case 2:
				binary.LittleEndian.PutUint16(dst, uint16(int16(math.Round(float64(x)*0x7FFF))))
			}
		case format.KindUint:
			writeUint(dst, size, uint64(min(max(float64(x), 0), uintMax(size))))
		case format.KindSint:
			hi := uintMax(size) / 2
			writeUint(dst, size, uint64(int64(min(max(float64(x), -hi-1), hi))))
		case format.KindFloat:
			if size == 2 {
				binary.LittleEndian.PutUint16(dst, floatToHalf(x))
			} else {
				binary.LittleEndian.PutUint32(dst, math.Float32bits(x))
			}
		}
	}
}

func isBGRA(f format.Format) bool {
	return f == format.BGRA8Unorm || f == format.BGRA8UnormSrgb
}

func readUint(b []byte, size int) uint64 {
	switch size {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	default:
		return uint64(binary.LittleEndian.Uint32(b))
	}
}

func readSint(b []byte, size int) int64 {
	switch size {
	case 1:
		return int64(int8(b[0]))
	case 2:
		return int64(int16(binary.LittleEndian.Uint16(b)))
	default:
		return int64(int32(binary.LittleEndian.Uint32(b)))
	}
}

func writeUint(b []byte, size int, v uint64) {
	switch size {
	case 1:
		b[0] = uint8(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	default:
		binary.LittleEndian.PutUint32(b, uint32(v))
	}
}

// unorm quantizes x to [0, maxv]. The product is formed in float64 so that
// 1.0 maps to maxv for 24-bit fields.
func unorm(x float32, maxv uint32) uint32 {
	return uint32(math.Round(float64(clamp01(x)) * float64(maxv)))
}

// uintMax returns the largest unsigned value of a size byte channel.
func uintMax(size int) float64 {
	return float64(uint64(1)<<(8*size) - 1)
}

func clamp01(x float32) float32 {
	return min(max(x, 0), 1)
}

func srgbToLinear(c float32) float32 {
	if c <= 0.04045 {
		return c / 12.92
	}
	return float32(math.Pow(float64(c+0.055)/1.055, 2.4))
}

func linearToSRGB(c float32) float32 {
	c = clamp01(c)
	if c <= 0.0031308 {
		return c * 12.92
	}
	return float32(1.055*math.Pow(float64(c), 1/2.4) - 0.055)
}

// halfToFloat converts an IEEE 754 binary16 value.
func halfToFloat(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1F
	mant := uint32(h) & 0x3FF
	switch exp {
	case 0:
		// Zero or subnormal: mant * 2^-24.
		f := float32(mant) * (1.0 / (1 << 24))
		if sign != 0 {
			f = -f
		}
		return f
	case 0x1F:
		return math.Float32frombits(sign | 0x7F800000 | mant<<13)
	}
	return math.Float32frombits(sign | (exp+112)<<23 | mant<<13)
}

// floatToHalf converts to IEEE 754 binary16, rounding to nearest.
func floatToHalf(f float32) uint16 {
	b := math.Float32bits(f)
	sign := uint16(b>>16) & 0x8000
	exp := int32(b>>23&0xFF) - 127 + 15
	mant := b & 0x7FFFFF
	switch {
	case b&0x7FFFFFFF > 0x7F800000:
		return sign | 0x7E00
	case exp >= 0x1F:
		return sign | 0x7C00
	case exp <= 0:
		if exp < -10 {
			return sign
		}
		mant |= 0x800000
		shift := uint32(14 - exp)
		h := uint16(mant >> shift)
		if mant>>(shift-1)&1 != 0 {
			h++
		}
		return sign | h
	}
	h := sign | uint16(exp)<<10 | uint16(mant>>13)
	if mant&0x1000 != 0 {
		h++
	}
	return h
}
