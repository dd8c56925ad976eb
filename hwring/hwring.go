// i.MX ENET hardware descriptor ring
// https://github.com/usbarmory/nic-dataplane
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package hwring implements the hardware descriptor ring context the NIC
// driver walks to hand buffers to, and take buffers back from, the ENET
// DMA engine: {cnt, head, tail, descr[], cookies[]}. tail is the producer
// index (driver software); head tracks what the device has finished.
//
// The legacy ENET buffer descriptor is an 8-byte, device-defined layout:
// a 16-bit length, a 16-bit status/flags word, and a 32-bit buffer
// address. Fields are accessed through package reg so that every write
// that commits a descriptor to the device is an atomic release-store, and
// every read a peer (including the DMA engine) may observe is an
// atomic acquire-load.
package hwring

import (
	"unsafe"

	"github.com/usbarmory/nic-dataplane/internal/reg"
)

// Common buffer descriptor flags (p1012/p1017, IMX6ULLRM "Legacy buffer
// descriptors" / "Enhanced transmit buffer descriptor field definitions").
const (
	FlagWrap = 1 << 13 // last slot of the ring; engine must wrap to 0
	FlagLast = 1 << 11 // buffer holds the final fragment of the frame

	// RX
	FlagRXEmpty = 1 << 15 // slot owned by the NIC, awaiting a packet

	// TX
	FlagTXReady  = 1 << 15 // slot owned by the NIC, ready to send
	FlagTXAddCRC = 1 << 10 // engine appends the frame CRC
)

const descriptorSize = 8 // bytes: 2 (len) + 2 (stat) + 4 (addr)

// Ring is one hardware descriptor ring (RX or TX). Two usable slots are
// always held back to disambiguate "full" from "empty" without a separate
// count field.
type Ring struct {
	cnt  int
	head int
	tail int

	base uint32 // address of descr[0]'s first word
	mem  []byte // backing storage, kept alive and never moved

	cookies []uint32
}

// New allocates a hardware descriptor ring of cnt slots backed by freshly
// reserved coherent memory, with head and tail both at 0.
func New(cnt int) *Ring {
	mem := make([]byte, cnt*descriptorSize)
	base := uint32(uintptr(unsafe.Pointer(&mem[0])))

	return &Ring{
		cnt:     cnt,
		base:    base,
		mem:     mem,
		cookies: make([]uint32, cnt),
	}
}

// NewAt builds a ring over caller-supplied coherent memory at a known
// physical address, as used when the descriptor ring must live at a fixed
// address the driver programs into rdsr/tdsr.
func NewAt(base uint32, cnt int) *Ring {
	return &Ring{
		cnt:     cnt,
		base:    base,
		cookies: make([]uint32, cnt),
	}
}

// Base returns the physical address of the first descriptor, for
// programming into rdsr/tdsr.
func (r *Ring) Base() uint32 { return r.base }

// Cnt returns the ring's slot count.
func (r *Ring) Cnt() int { return r.cnt }

// Head returns the consumer index: what the device has finished.
func (r *Ring) Head() int { return r.head }

// Tail returns the producer index: software's next slot to fill.
func (r *Ring) Tail() int { return r.tail }

// Remaining returns the number of free hardware slots, reserving the
// two-slot cushion: (head - tail - 2) mod cnt.
func (r *Ring) Remaining() int {
	return ((r.head-r.tail-2)%r.cnt + r.cnt) % r.cnt
}

// Cookie returns the cookie stashed at a slot, correlating a completed
// descriptor back to the upstream buffer it belongs to.
func (r *Ring) Cookie(idx int) uint32 { return r.cookies[idx] }

// SetCookie stashes a cookie at a slot.
func (r *Ring) SetCookie(idx int, cookie uint32) { r.cookies[idx] = cookie }

func (r *Ring) slotAddr(idx int) uint32 { return r.base + uint32(idx*descriptorSize) }

// AdvanceTail returns the current tail slot, advances tail by one with
// wraparound, and reports whether this slot was the last one (so the
// caller must set FlagWrap on it).
func (r *Ring) AdvanceTail() (idx int, wrap bool) {
	idx = r.tail
	wrap = idx == r.cnt-1

	if wrap {
		r.tail = 0
	} else {
		r.tail = idx + 1
	}

	return idx, wrap
}

// AdvanceHead moves head forward by one with wraparound, once a completed
// descriptor at the current head has been consumed by software.
func (r *Ring) AdvanceHead() {
	if r.head == r.cnt-1 {
		r.head = 0
	} else {
		r.head++
	}
}

// Publish writes addr and len to a slot, then commits it to the device by
// storing stat last, behind a barrier: addr/len must be globally visible
// before stat is published, since stat alone tells the NIC the slot is
// ready to use.
func (r *Ring) Publish(idx int, addr uint32, length uint16, stat uint16) {
	word0 := r.slotAddr(idx)
	word1 := word0 + 4

	reg.SetN(word0, 0, 0xffff, uint32(length))
	reg.Write(word1, addr)

	// Full memory barrier: addr/len must be visible before stat
	// publishes ownership to the device.
	reg.Barrier()

	reg.SetN(word0, 16, 0xffff, uint32(stat))
}

// Stat reads the current status/flags word of a slot.
func (r *Ring) Stat(idx int) uint16 {
	return uint16(reg.Read(r.slotAddr(idx)) >> 16)
}

// Len reads the current length field of a slot.
func (r *Ring) Len(idx int) uint16 {
	return uint16(reg.Read(r.slotAddr(idx)))
}

// Addr reads the current buffer address of a slot.
func (r *Ring) Addr(idx int) uint32 {
	return reg.Read(r.slotAddr(idx) + 4)
}
