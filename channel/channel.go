// Host notification contract
// https://github.com/usbarmory/nic-dataplane
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package channel defines the seam between this module's protocol-domain
// logic and the microkernel IPC/IRQ primitive it runs on top of. Neither is
// implemented here: the composition root supplies concrete values (backed
// by real seL4 channels on target, or goroutine signaling in tests and in
// the bundled cmd/echoserver).
package channel

// ID identifies a fixed, boot-time channel between two protection domains.
// Any numbering the composition root assigns is conventional, not enforced
// by this package: a Notifier implementation is free to map IDs however
// its host environment requires.
type ID int

// Notifier delivers a coalesced wake event to the domain on the other end
// of a channel. A single call may stand for arbitrarily many ring
// operations that happened since the last call: this is the deduplication
// the notify_reader hint exists to make safe.
type Notifier interface {
	// Notify wakes the peer on ch immediately.
	Notify(ch ID)

	// NotifyDelayed wakes the peer on ch, batched to the next kernel
	// entry/exit boundary by the host, e.g. the TX multiplexer waking
	// the driver after forwarding a batch of frames.
	NotifyDelayed(ch ID)
}

// IRQAcker acknowledges a hardware interrupt with the host kernel.
type IRQAcker interface {
	// AckDelayed defers the IRQ ack to the next kernel boundary.
	// enet.Driver.HandleIRQ calls it once, after servicing the events
	// it read from the event register.
	AckDelayed(ch ID)
}
