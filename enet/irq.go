// NXP i.MX ENET NIC driver: interrupt dispatch
// https://github.com/usbarmory/nic-dataplane/
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package enet

import "github.com/usbarmory/nic-dataplane/internal/reg"

// HandleIRQ reads and clears eir, then dispatches each pending event in
// turn: TXF reclaims sent buffers (and may unblock a backpressured
// multiplexer), RXF drains completed frames and refills the ring, and
// EBERR is fatal since it signals a uDMA transaction the device could not
// complete: continuing to drive the ring after that point risks handing
// out a buffer the device still holds a stale reference to.
//
// HandleIRQ is the seL4 notification handler's entire body: it is safe to
// call repeatedly and does nothing if no masked-in event is pending.
func (d *Driver) HandleIRQ() {
	pending := reg.Read(d.reg(offEIR)) & d.irqMask
	if pending == 0 {
		return
	}

	reg.Write(d.reg(offEIR), pending)

	if pending&irqEBERR != 0 {
		d.fatal(errBusError)
		return
	}

	if pending&irqTXF != 0 {
		d.CompleteTX()
	}

	if pending&irqRXF != 0 {
		d.HandleRX()
	}

	if d.cfg.IRQAcker != nil {
		d.cfg.IRQAcker.AckDelayed(d.cfg.IRQChannel)
	}
}
