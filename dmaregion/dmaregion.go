// Fixed-partition DMA region carving
// https://github.com/usbarmory/nic-dataplane
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package dmaregion carves a client's fixed DMA region into BufferSize
// buffers once at boot. Unlike a general-purpose allocator, nothing here
// is ever freed or resized at runtime: dynamic ring resizing and runtime
// buffer alloc/free are explicit non-goals, so this package
// only needs to hand out the fixed partitioning, not manage it.
package dmaregion

import (
	"fmt"

	"github.com/usbarmory/nic-dataplane/bufdesc"
)

// Region describes one client's contiguous DMA region: a virtual range in
// the client's address space mapped to a contiguous physical range the NIC
// DMA engine can use directly.
type Region struct {
	Owner bufdesc.ClientID
	Vbase uint64
	Pbase uint64
	Size  uint64
}

// Buffers partitions the region into fixed bufdesc.BufferSize buffers,
// returned in address order. The region size must be an exact multiple of
// bufdesc.BufferSize.
func (r Region) Buffers() ([]bufdesc.Buffer, error) {
	if r.Size%bufdesc.BufferSize != 0 {
		return nil, fmt.Errorf("dmaregion: size %d is not a multiple of buffer size %d", r.Size, bufdesc.BufferSize)
	}

	n := r.Size / bufdesc.BufferSize
	bufs := make([]bufdesc.Buffer, 0, n)

	for i := uint64(0); i < n; i++ {
		off := i * bufdesc.BufferSize
		bufs = append(bufs, bufdesc.Buffer{
			Vaddr: r.Vbase + off,
			Paddr: r.Pbase + off,
			Owner: r.Owner,
		})
	}

	return bufs, nil
}

// Contains reports whether a virtual address falls within this region.
func (r Region) Contains(vaddr uint64) bool {
	return vaddr >= r.Vbase && vaddr < r.Vbase+r.Size
}

// ContainsPhys reports whether a physical address falls within this
// region's mapped physical range.
func (r Region) ContainsPhys(paddr uint64) bool {
	return paddr >= r.Pbase && paddr < r.Pbase+r.Size
}

// ToPhys translates a virtual address known to be in this region to its
// physical counterpart.
func (r Region) ToPhys(vaddr uint64) uint64 {
	return r.Pbase + (vaddr - r.Vbase)
}

// ToVirt translates a physical address known to be in this region back to
// its virtual counterpart.
func (r Region) ToVirt(paddr uint64) uint64 {
	return r.Vbase + (paddr - r.Pbase)
}
