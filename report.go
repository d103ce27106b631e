// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"strings"
	"text/tabwriter"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ResourceInfo describes a live device object.
type ResourceInfo struct {
	ID    uint64
	Kind  ResourceKind
	Label string
	// Size is the storage size in bytes, zero for kernels.
	Size uint64
}

// LiveResources returns every object whose storage has not been released,
// in creation order. Destroyed objects still referenced by in-flight work
// are included.
func (d *Device) LiveResources() []ResourceInfo {
	objs := d.liveObjects()
	out := make([]ResourceInfo, len(objs))
	for i, r := range objs {
		out[i] = ResourceInfo{ID: r.id, Kind: r.kind, Label: r.label, Size: r.size}
	}
	return out
}

// Report returns a human readable table of the device and its live
// resources.
func (d *Device) Report() string {
	p := message.NewPrinter(language.English)
	live := d.LiveResources()

	var sb strings.Builder
	p.Fprintf(&sb, "device %q on %s (%s)\n", d.label, d.info.Backend, d.info.Name)
	p.Fprintf(&sb, "features: %v\n", d.info.Features)

	var total uint64
	for _, r := range live {
		total += r.Size
	}
	p.Fprintf(&sb, "%d live resources, %d bytes\n", len(live), total)
	if len(live) == 0 {
		return sb.String()
	}

	tw := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', tabwriter.AlignRight)
	p.Fprintf(tw, "id\tkind\tlabel\tbytes\t\n")
	for _, r := range live {
		p.Fprintf(tw, "%d\t%s\t%s\t%d\t\n", r.ID, r.Kind, r.Label, r.Size)
	}
	_ = tw.Flush()
	return sb.String()
}
