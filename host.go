// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"fmt"
	"unsafe"
)

// AsBytes returns the memory of s as a byte slice without copying. T must
// not contain pointers.
func AsBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*int(unsafe.Sizeof(zero)))
}

// FromBytes copies b into a new slice of T. The length of b must be a
// multiple of the size of T.
func FromBytes[T any](b []byte) ([]T, error) {
	var zero T
	n := int(unsafe.Sizeof(zero))
	if n == 0 || len(b)%n != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of %d-byte %T values", ErrSizeMismatch, len(b), n, zero)
	}
	out := make([]T, len(b)/n)
	copy(AsBytes(out), b)
	return out, nil
}
