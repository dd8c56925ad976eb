// Shared-memory SPSC descriptor ring
// https://github.com/usbarmory/nic-dataplane
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package ring implements the single-producer/single-consumer circular
// queue of buffer descriptors that every cross-domain data path in the
// data plane is built from. A pair of these (one "free", one "used") forms
// a Handle; every inter-domain channel is two Handles, one per direction.
//
// The primitive is correct only under a single producer and a single
// consumer: the producer is the sole writer of the write index and of
// descriptor slots between the read and write index, the consumer is the
// sole writer of the read index. Multi-producer or multi-consumer use
// requires an external lock and is never exercised by this module.
package ring

import (
	"errors"
	"sync/atomic"

	"github.com/usbarmory/nic-dataplane/bufdesc"
)

// Capacity is the fixed number of descriptor slots in every ring. One slot
// is always kept empty to disambiguate full from empty, so Capacity-1
// descriptors may be in flight at once.
const Capacity = 512

var (
	// ErrFull is returned by Enqueue when the ring has no free slot.
	// This is expected flow control, not an error condition: callers
	// stop and wait for the next notification.
	ErrFull = errors.New("ring: full")

	// ErrEmpty is returned by Dequeue when the ring has nothing to
	// read. Expected flow control, see ErrFull.
	ErrEmpty = errors.New("ring: empty")
)

const cacheLinePad = 64

// Ring is a fixed-capacity SPSC circular queue of buffer descriptors in
// (logically) shared memory. Indices are kept reduced modulo Capacity, per
// the classic one-slot-wasted circular buffer: ring_empty is write==read,
// ring_full is (write+1)%Capacity==read.
type Ring struct {
	writeIdx atomic.Uint64
	_        [cacheLinePad - 8]byte

	readIdx atomic.Uint64
	_       [cacheLinePad - 8]byte

	// notifyReader is the advisory wake-up hint: the consumer sets it
	// before going idle and clears it while actively draining: the
	// producer checks it after an enqueue batch and asks its transport
	// to signal the consumer only when it is set.
	notifyReader atomic.Bool
	_            [cacheLinePad - 1]byte

	slots [Capacity]bufdesc.Descriptor
}

// Enqueue writes a descriptor at the current write index and publishes it
// with a release-store. Only the producer may call this.
func (r *Ring) Enqueue(d bufdesc.Descriptor) error {
	w := r.writeIdx.Load()
	read := r.readIdx.Load()

	next := (w + 1) % Capacity
	if next == read {
		return ErrFull
	}

	r.slots[w] = d
	r.writeIdx.Store(next)

	return nil
}

// Dequeue reads the descriptor at the current read index with an
// acquire-load and advances past it. Only the consumer may call this.
func (r *Ring) Dequeue() (bufdesc.Descriptor, error) {
	read := r.readIdx.Load()
	w := r.writeIdx.Load()

	if read == w {
		return bufdesc.Descriptor{}, ErrEmpty
	}

	d := r.slots[read]
	r.readIdx.Store((read + 1) % Capacity)

	return d, nil
}

// Empty reports whether the ring currently holds no descriptors.
func (r *Ring) Empty() bool {
	return r.writeIdx.Load() == r.readIdx.Load()
}

// Full reports whether the ring has no free slot left.
func (r *Ring) Full() bool {
	w := r.writeIdx.Load()
	read := r.readIdx.Load()

	return (w+1)%Capacity == read
}

// Size returns the number of descriptors currently queued.
func (r *Ring) Size() uint64 {
	w := r.writeIdx.Load()
	read := r.readIdx.Load()

	if w >= read {
		return w - read
	}

	return Capacity - read + w
}

// NotifyReader reports whether the consumer has asked to be woken on the
// next Enqueue.
func (r *Ring) NotifyReader() bool {
	return r.notifyReader.Load()
}

// SetNotifyReader sets or clears the wake-up hint. The consumer should set
// it to true only once it has drained to empty, and clear it while
// actively draining, so a producer enqueueing a batch never wakes the
// consumer more than once per drain-to-empty transition.
//
// The zero value is false: whichever side owns the consumer of a given
// ring is responsible for calling SetNotifyReader(true) once, before the
// producer's first Enqueue, or that ring's very first notification is
// silently dropped. For rings this module owns both ends of, the
// constructor that stands up the consumer does this (enet.NewDriver for
// TX.Used, txmux.New for the driver's shared Free ring); a caller wiring
// its own consumer onto RX.Used, which this module only produces into,
// must arm the hint itself the same way. A client's own Free ring is not
// gated this way: txmux.Mux.ProcessTXComplete wakes a client whenever its
// Free ring goes from empty to non-empty, whatever the hint says.
func (r *Ring) SetNotifyReader(want bool) {
	r.notifyReader.Store(want)
}
