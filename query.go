// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"fmt"

	"github.com/gogpu/rhi/driver"
)

// QueryPoolDesc describes a query pool.
type QueryPoolDesc = driver.QueryPoolDesc

// QueryPool is a fixed array of query slots written by command buffers.
type QueryPool struct {
	resource
	drv   driver.QueryPool
	typ   QueryType
	count uint32
}

// CreateQueryPool creates a pool of desc.Count queries.
func (d *Device) CreateQueryPool(desc QueryPoolDesc) (*QueryPool, error) {
	if err := d.usable(); err != nil {
		return nil, err
	}
	if desc.Type != QueryTimestamp {
		return nil, fmt.Errorf("%w: unknown query type %d", ErrValidation, desc.Type)
	}
	if err := d.requireFeature(FeatureTimestampQuery, "timestamp queries"); err != nil {
		return nil, err
	}
	if desc.Count == 0 {
		return nil, fmt.Errorf("%w: query pool %q has no queries", ErrValidation, desc.Label)
	}
	np, err := d.drv.CreateQueryPool(desc)
	if err != nil {
		return nil, fmt.Errorf("rhi: create query pool %q: %w", desc.Label, err)
	}
	p := &QueryPool{drv: np, typ: desc.Type, count: desc.Count}
	p.init(d, KindQueryPool, desc.Label, uint64(desc.Count)*8, np.Destroy)
	return p, nil
}

// Count returns the number of queries in the pool.
func (p *QueryPool) Count() uint32 { return p.count }

// Type returns the query type.
func (p *QueryPool) Type() QueryType { return p.typ }

// Reset clears every query after all submitted work has executed.
func (p *QueryPool) Reset() error {
	if err := p.check(p.dev); err != nil {
		return err
	}
	p.dev.queue.drain()
	p.drv.Reset()
	return nil
}

// Results returns the raw tick values of count queries starting at index,
// after all submitted work has executed. Unwritten queries read as zero.
func (p *QueryPool) Results(index, count uint32) ([]uint64, error) {
	if err := p.check(p.dev); err != nil {
		return nil, err
	}
	if index >= p.count || count > p.count-index {
		return nil, fmt.Errorf("%w: queries [%d, %d) of %v with %d queries", ErrRange, index, uint64(index)+uint64(count), &p.resource, p.count)
	}
	p.dev.queue.drain()
	return p.drv.Results(index, count), nil
}

// TimestampResults returns timestamps in seconds.
func (p *QueryPool) TimestampResults(index, count uint32) ([]float64, error) {
	raw, err := p.Results(index, count)
	if err != nil {
		return nil, err
	}
	freq := float64(p.dev.info.TimestampFrequency)
	if freq == 0 {
		freq = 1e9
	}
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = float64(v) / freq
	}
	return out, nil
}

// Destroy releases the pool once in-flight work referencing it has
// completed.
func (p *QueryPool) Destroy() { p.destroy() }
