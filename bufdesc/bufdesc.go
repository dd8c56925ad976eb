// Shared descriptor and buffer types for the Ethernet data-plane core.
// https://github.com/usbarmory/nic-dataplane
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package bufdesc defines the buffer descriptor triple and the fixed-size
// DMA buffer that circulate between clients, the TX multiplexer, the NIC
// driver and the NIC itself. Buffers are carved once at boot (see package
// dmaregion) and are never allocated or freed at runtime: ownership moves
// solely by a descriptor moving from one ring to another.
package bufdesc

const (
	// BufferSize is the fixed size, in bytes, of every DMA buffer.
	BufferSize = 2048

	// MaxFrameSize is the largest Ethernet frame (excluding FCS) that
	// fits in a buffer alongside its cushion.
	MaxFrameSize = 1536
)

// Descriptor is the triple every ring buffer slot carries: the producer's
// view of a buffer's address, the packet length (used ring) or buffer
// capacity (free ring), and an opaque cookie the producer uses to
// correlate a returned buffer with its own bookkeeping.
type Descriptor struct {
	// EncodedAddr is the address of the buffer in the producer's own
	// address space: a client's virtual address on a client-facing
	// ring, a physical address on the driver-facing ring.
	EncodedAddr uint64
	// Len is the packet length (used ring) or buffer capacity (free
	// ring).
	Len uint16
	// Cookie is opaque to the consumer; it is only ever copied back
	// verbatim to the ring the buffer is eventually returned on.
	Cookie uint32
}

// ClientID identifies the owner of a DMA region: a client of the TX
// multiplexer (network stack, ARP responder, ...) or, transiently, the
// driver itself.
type ClientID int

// Buffer is one fixed-size slot of a client's DMA region. Its virtual and
// physical addresses are stable for the process lifetime; only its
// position among the four rings (client free/used, driver free/used) and
// the hardware ring encodes who currently owns it.
type Buffer struct {
	// Vaddr is the address as seen by the owning client.
	Vaddr uint64
	// Paddr is the address the NIC DMA engine uses.
	Paddr uint64
	// Owner identifies which client's DMA region this buffer was
	// carved from.
	Owner ClientID
}
