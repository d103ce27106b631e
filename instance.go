// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"fmt"
	"sync"

	"github.com/gogpu/rhi/driver"
)

// AccelerationStructureInstanceDesc is one instance of a top level
// structure. Transform is a row-major 3x4 object-to-world matrix;
// InstanceID and InstanceContribution are 24-bit values.
type AccelerationStructureInstanceDesc struct {
	Transform             [12]float32
	InstanceID            uint32
	InstanceMask          uint8
	InstanceContribution  uint32
	Flags                 AccelerationStructureInstanceFlags
	AccelerationStructure uint64
}

// IdentityTransform is the 3x4 identity matrix.
var IdentityTransform = driver.IdentityTransform

// InstanceList is a host-side array of instance descriptions that encodes
// itself into a device buffer for top level builds.
type InstanceList struct {
	dev *Device

	mu     sync.Mutex
	items  []AccelerationStructureInstanceDesc
	refs   []*AccelerationStructure
	buffer *Buffer
	dirty  bool
}

// CreateInstanceList creates a list of size zeroed instances.
func (d *Device) CreateInstanceList(size int) (*InstanceList, error) {
	if err := d.requireAccelerationStructures(); err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, fmt.Errorf("%w: negative instance list size %d", ErrValidation, size)
	}
	return &InstanceList{
		dev:   d,
		items: make([]AccelerationStructureInstanceDesc, size),
		refs:  make([]*AccelerationStructure, size),
		dirty: true,
	}, nil
}

// Size returns the number of instances.
func (l *InstanceList) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Resize grows or shrinks the list. New entries are zeroed.
func (l *InstanceList) Resize(size int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if size < 0 {
		size = 0
	}
	if size <= len(l.items) {
		clear(l.items[size:])
		clear(l.refs[size:])
		l.items, l.refs = l.items[:size], l.refs[:size]
	} else {
		l.items = append(l.items, make([]AccelerationStructureInstanceDesc, size-len(l.items))...)
		l.refs = append(l.refs, make([]*AccelerationStructure, size-len(l.refs))...)
	}
	l.dirty = true
}

// Instance returns the instance at index.
func (l *InstanceList) Instance(index int) (AccelerationStructureInstanceDesc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index < 0 || index >= len(l.items) {
		return AccelerationStructureInstanceDesc{}, fmt.Errorf("%w: instance %d of %d", ErrRange, index, len(l.items))
	}
	return l.items[index], nil
}

// Write stores one instance. The referenced structure must be a live
// bottom level structure of the same device, or handle 0 for an inactive
// instance.
func (l *InstanceList) Write(index int, inst AccelerationStructureInstanceDesc) error {
	return l.WriteAll(index, []AccelerationStructureInstanceDesc{inst})
}

// WriteAll stores consecutive instances starting at index.
func (l *InstanceList) WriteAll(index int, insts []AccelerationStructureInstanceDesc) error {
	resolved := make([]*AccelerationStructure, len(insts))
	for i := range insts {
		as, err := l.resolve(&insts[i])
		if err != nil {
			return fmt.Errorf("instance %d: %w", index+i, err)
		}
		resolved[i] = as
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if index < 0 || index+len(insts) > len(l.items) {
		return fmt.Errorf("%w: instances [%d, %d) of %d", ErrRange, index, index+len(insts), len(l.items))
	}
	copy(l.items[index:], insts)
	copy(l.refs[index:], resolved)
	l.dirty = true
	return nil
}

func (l *InstanceList) resolve(inst *AccelerationStructureInstanceDesc) (*AccelerationStructure, error) {
	if inst.InstanceID > 0xFFFFFF || inst.InstanceContribution > 0xFFFFFF {
		return nil, fmt.Errorf("%w: instance id and contribution must fit in 24 bits", ErrValidation)
	}
	if inst.AccelerationStructure == 0 {
		// Inactive instance.
		return nil, nil
	}
	as := l.dev.lookupHandle(inst.AccelerationStructure)
	if as == nil {
		return nil, fmt.Errorf("%w: unknown acceleration structure handle %#x", ErrValidation, inst.AccelerationStructure)
	}
	if err := as.check(l.dev); err != nil {
		return nil, err
	}
	if k, ok := as.Kind(); ok && k != KindBottomLevel {
		return nil, fmt.Errorf("%w: instances must reference bottom level structures", ErrValidation)
	}
	return as, nil
}

// Buffer encodes the list into a device buffer, reallocating it when the
// list has grown, and returns it.
func (l *InstanceList) Buffer() (*Buffer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.syncLocked()
}

func (l *InstanceList) syncLocked() (*Buffer, error) {
	need := uint64(max(len(l.items), 1)) * driver.InstanceStride
	if l.buffer != nil && (l.buffer.IsDestroyed() || l.buffer.Size() < need) {
		l.buffer.Destroy()
		l.buffer = nil
		l.dirty = true
	}
	if l.buffer == nil {
		b, err := l.dev.CreateBuffer(BufferDesc{
			Label: "instance list",
			Size:  need,
			Usage: BufferUsageAccelerationStructureBuildInput | BufferUsageShaderResource | BufferUsageCopyDestination,
		})
		if err != nil {
			return nil, err
		}
		l.buffer = b
	}
	if !l.dirty {
		return l.buffer, nil
	}

	data := make([]byte, len(l.items)*driver.InstanceStride)
	for i := range l.items {
		it := &l.items[i]
		rec := driver.Instance{
			Transform:             it.Transform,
			InstanceID:            it.InstanceID,
			InstanceMask:          it.InstanceMask,
			InstanceContribution:  it.InstanceContribution,
			Flags:                 it.Flags,
			AccelerationStructure: it.AccelerationStructure,
		}
		if err := rec.Encode(data[i*driver.InstanceStride:]); err != nil {
			return nil, fmt.Errorf("instance %d: %w", i, err)
		}
	}
	if err := l.buffer.CopyFromHost(0, data); err != nil {
		return nil, err
	}
	l.dirty = false
	return l.buffer, nil
}

// BuildInputInstances uploads the list and returns the build input of a
// top level structure over it. Building with it requires every referenced
// bottom level structure to be built first.
func (l *InstanceList) BuildInputInstances() (AccelerationStructureBuildInputInstances, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, err := l.syncLocked()
	if err != nil {
		return AccelerationStructureBuildInputInstances{}, err
	}
	refs := make([]*AccelerationStructure, 0, len(l.refs))
	for _, as := range l.refs {
		if as != nil {
			refs = append(refs, as)
		}
	}
	return AccelerationStructureBuildInputInstances{
		InstanceBuffer: BufferOffset{Buffer: b},
		InstanceStride: driver.InstanceStride,
		InstanceCount:  uint32(len(l.items)),
		refs:           refs,
	}, nil
}

// Destroy releases the list's device buffer.
func (l *InstanceList) Destroy() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.buffer != nil {
		l.buffer.Destroy()
		l.buffer = nil
	}
	l.dirty = true
}
