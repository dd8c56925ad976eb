// NXP i.MX ENET NIC driver: receive path
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

// FillRXBufs refills empty hardware RX slots from RX.Free until either
// RX.Free runs dry or the hardware ring has no free slots left (the
// two-slot cushion is handled by hwring.Ring.Remaining). If RX.Free has
// no buffer to offer at all, RX interrupts are masked so the driver stops being told about
// frames it has no buffer to receive into; FillRXBufs re-enables them as
// soon as it manages to post at least one buffer.
//
// As the consumer of RX.Free it clears the notify_reader hint while
// actively draining and sets it again once RX.Free is actually empty, so
// whoever returns buffers to RX.Free only wakes this driver when it is
// truly starved rather than on every return.
func (d *Driver) FillRXBufs() {
	d.RX.Free.SetNotifyReader(false)

	posted := false
	starved := false

	for d.rx.Remaining() > 0 {
		buf, err := d.RX.DequeueFree()
		if err != nil {
			starved = true
			break
		}

		idx, wrap := d.rx.AdvanceTail()
		d.rx.SetCookie(idx, buf.Cookie)

		stat := uint16(hwring.FlagRXEmpty)
		if wrap {
			stat |= hwring.FlagWrap
		}

		d.rx.Publish(idx, uint32(buf.EncodedAddr), bufdesc.MaxFrameSize, stat)
		posted = true
	}

	if d.RX.Free.Empty() {
		d.RX.Free.SetNotifyReader(true)
	}

	switch {
	case posted:
		if d.irqMask&irqRXF == 0 {
			d.enableIRQs(d.irqMask | irqRXF)
		}
	case starved:
		d.enableIRQs(irqMaskNoRX)
	}

	reg.Or(d.reg(offRDAR), rdarActive)
}

// HandleRX walks the hardware RX ring from head forward, publishing every
// completed frame (EMPTY clear) to RX.Used, then attempts to refill from
// RX.Free. It is called from the RXF interrupt path.
//
// If RX.Used is already full, RX IRQs are masked and nothing is walked:
// the upstream consumer has not yet drained what it was already given.
// Forward progress stops the moment RX.Used fills, leaving the remaining
// completed hardware descriptors for the next call; RX IRQs are re-masked
// in that case too, since there is still nowhere to deliver them.
//
// The RX.Used consumer's own notify_reader hint gates the wake-up: a
// consumer still busy draining a previous batch is not interrupted again.
func (d *Driver) HandleRX() {
	if d.RX.Used.Full() {
		d.enableIRQs(irqMaskNoRX)
		return
	}

	posted := false

	for d.rx.Head() != d.rx.Tail() {
		idx := d.rx.Head()

		if d.rx.Stat(idx)&hwring.FlagRXEmpty != 0 {
			break
		}

		if d.RX.Used.Full() {
			break
		}

		cookie := d.rx.Cookie(idx)
		length := d.rx.Len(idx)
		addr := d.rx.Addr(idx)
		d.rx.AdvanceHead()

		desc := bufdesc.Descriptor{EncodedAddr: uint64(addr), Cookie: cookie, Len: length}

		if err := d.RX.EnqueueUsed(desc); err != nil {
			d.fatal(err)
			return
		}

		posted = true
	}

	if posted && d.cfg.Notifier != nil && d.RX.Used.NotifyReader() {
		d.cfg.Notifier.Notify(d.cfg.RXChannel)
	}

	d.FillRXBufs()

	if d.RX.Used.Full() {
		d.enableIRQs(irqMaskNoRX)
	}
}
