// https://github.com/usbarmory/nic-dataplane
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package dmaregion

import (
	"fmt"

	"github.com/usbarmory/nic-dataplane/bufdesc"
)

// ErrOutOfRange is returned when an address falls outside every known
// client region. The caller must treat this as a protocol violation:
// there is no trusted party to recover to.
var ErrOutOfRange = fmt.Errorf("dmaregion: address out of range")

// Table is a range-keyed map from client region to client, used by the TX
// multiplexer to translate buffer addresses and to identify a buffer's
// owner. Modeling this as a typed relation instead of raw pointer
// arithmetic keeps translation and ownership lookup both a single range
// scan, rather than scattered pointer math.
type Table struct {
	regions []Region
}

// NewTable builds an address-translation table from a set of client
// regions. Regions must not overlap; overlap is a configuration error the
// composition root is responsible for avoiding, not something this package
// can repair.
func NewTable(regions []Region) *Table {
	t := &Table{regions: make([]Region, len(regions))}
	copy(t.regions, regions)
	return t
}

// ToPhys translates a client virtual address to the physical address the
// NIC DMA engine requires.
func (t *Table) ToPhys(vaddr uint64) (uint64, error) {
	for _, r := range t.regions {
		if r.Contains(vaddr) {
			return r.ToPhys(vaddr), nil
		}
	}
	return 0, fmt.Errorf("%w: vaddr=%#x", ErrOutOfRange, vaddr)
}

// ToVirt translates a physical address back to the owning client's virtual
// address.
func (t *Table) ToVirt(paddr uint64) (uint64, error) {
	for _, r := range t.regions {
		if r.ContainsPhys(paddr) {
			return r.ToVirt(paddr), nil
		}
	}
	return 0, fmt.Errorf("%w: paddr=%#x", ErrOutOfRange, paddr)
}

// Owner identifies which client's region a virtual address belongs to.
func (t *Table) Owner(vaddr uint64) (bufdesc.ClientID, error) {
	for _, r := range t.regions {
		if r.Contains(vaddr) {
			return r.Owner, nil
		}
	}
	return 0, fmt.Errorf("%w: vaddr=%#x", ErrOutOfRange, vaddr)
}
