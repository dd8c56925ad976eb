// NXP i.MX ENET NIC driver: transmit path
// https://github.com/usbarmory/nic-dataplane
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package enet

import (
	"github.com/usbarmory/nic-dataplane/bufdesc"
	"github.com/usbarmory/nic-dataplane/hwring"
	"github.com/usbarmory/nic-dataplane/internal/reg"
)

// HandleTX drains TX.Used, submitting every descriptor it finds to the
// hardware TX ring until either TX.Used runs dry or the hardware ring has
// no free slots left. Descriptors reaching this driver already carry a
// physical address: address translation is the multiplexer's job, not the
// driver's, since the driver has no notion of per-client address spaces.
//
// It reports whether at least one descriptor was submitted, and in that case
// also kicks tdar itself. As the consumer of TX.Used it clears the
// notify_reader hint while actively draining and sets it again only once
// the ring is actually drained to empty, so the multiplexer's submit path
// wakes this driver exactly when it is idle and never while it is merely
// waiting on hardware ring space.
func (d *Driver) HandleTX() (submitted bool) {
	d.TX.Used.SetNotifyReader(false)

	for d.tx.Remaining() > 0 {
		desc, err := d.TX.DequeueUsed()
		if err != nil {
			break
		}

		d.rawTX(desc)
		submitted = true
	}

	if d.TX.Used.Empty() {
		d.TX.Used.SetNotifyReader(true)
	}

	if submitted {
		d.tryKickTX()
	}

	return submitted
}

func (d *Driver) rawTX(desc bufdesc.Descriptor) {
	idx, wrap := d.tx.AdvanceTail()
	d.tx.SetCookie(idx, desc.Cookie)

	stat := uint16(hwring.FlagTXReady | hwring.FlagTXAddCRC | hwring.FlagLast)
	if wrap {
		stat |= hwring.FlagWrap
	}

	d.tx.Publish(idx, uint32(desc.EncodedAddr), desc.Len, stat)
}

// CompleteTX walks the hardware TX ring from head forward, reclaiming every
// descriptor the device has finished sending (READY clear) and returning
// its buffer to TX.Free. It is called from the TXF interrupt path.
//
// If TX.Free was empty before this call and at least one buffer has been
// returned, the multiplexer is notified on TXChannel — but only if its own
// notify_reader hint on TX.Free says it actually wants waking, so a
// multiplexer still busy draining other work is not interrupted for
// nothing.
func (d *Driver) CompleteTX() {
	wasEmpty := d.TX.Free.Empty()
	reclaimed := false

	for d.tx.Head() != d.tx.Tail() {
		idx := d.tx.Head()

		if d.tx.Stat(idx)&hwring.FlagTXReady != 0 {
			break
		}

		cookie := d.tx.Cookie(idx)
		d.tx.AdvanceHead()

		buf := bufdesc.Descriptor{Cookie: cookie}

		if err := d.TX.EnqueueFree(buf); err != nil {
			// TX.Free is a fixed partition sized to exactly match
			// the hardware ring plus client pools; this would
			// indicate lost conservation of buffers and is fatal.
			d.fatal(err)
			return
		}

		reclaimed = true
	}

	if wasEmpty && reclaimed && d.cfg.Notifier != nil && d.TX.Free.NotifyReader() {
		d.cfg.Notifier.Notify(d.cfg.TXChannel)
	}
}

// tryKickTX activates the hardware's TX DMA if there is anything queued.
func (d *Driver) tryKickTX() {
	if d.tx.Head() != d.tx.Tail() {
		reg.Or(d.reg(offTDAR), tdarActive)
	}
}
