// https://github.com/usbarmory/nic-dataplane
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package txmux

// Scheduler picks the order TX-ready clients are drained in. Next is
// called repeatedly by ProcessTXReady; it must return the index (into the
// Mux's client slice) of the next client to service, and false once the
// scheduling round has nothing left to offer for now.
//
// A Scheduler is free to hold its own state (quotas, last-served index)
// across calls; Mux serializes all calls to one Scheduler from a single
// goroutine, so implementations need no locking of their own.
type Scheduler interface {
	// Next returns the index of the next client ProcessTXReady should
	// attempt to dequeue one descriptor from, given the set of client
	// indices that currently have at least one descriptor enqueued on
	// their Used ring. ready is never empty when Next is called.
	Next(ready []int) (clientIdx int, ok bool)

	// Consumed is called after a descriptor belonging to clientIdx was
	// successfully submitted to the driver, reporting its length in
	// bytes, so schedulers that track byte-rate quotas can account for
	// it.
	Consumed(clientIdx int, length uint16)
}
