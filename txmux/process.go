// https://github.com/usbarmory/nic-dataplane
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package txmux

import (
	"github.com/usbarmory/nic-dataplane/bufdesc"
	"github.com/usbarmory/nic-dataplane/dmaregion"
)

// Seed partitions each client's DMA region into buffers and places them on
// that client's free ring, giving it something to allocate from before its
// first send. The composition root calls this once at boot, before any
// client runs. clients and regions must be the same
// length and in the same order.
func Seed(clients []*Client, regions []dmaregion.Region) error {
	for i, c := range clients {
		bufs, err := regions[i].Buffers()
		if err != nil {
			return err
		}

		for _, b := range bufs {
			desc := bufdesc.Descriptor{EncodedAddr: b.Vaddr, Len: bufdesc.BufferSize}
			if err := c.handle.EnqueueFree(desc); err != nil {
				return err
			}
		}
	}

	return nil
}

// ready collects the indices of clients whose Used ring currently has at
// least one descriptor queued.
func (m *Mux) ready() []int {
	var r []int
	for i, c := range m.clients {
		if !c.handle.Used.Empty() {
			r = append(r, i)
		}
	}
	return r
}

// ProcessTXReady drains ready clients through the configured Scheduler,
// submitting descriptors to the driver one at a time per scheduling
// decision, until either no client has anything left or the driver's
// shared ring is full. It notifies the driver once, after the loop, if at
// least one descriptor was submitted and the driver's own notify_reader
// hint on its Used ring says it wants waking: a single NotifyDelayed stands
// for the whole batch, avoiding a wake per descriptor, and is skipped
// entirely while the driver is still busy draining a previous one.
func (m *Mux) ProcessTXReady() {
	submitted := false

	for {
		// Check capacity before dequeuing: once a descriptor is taken
		// off a client's Used ring it must go somewhere, so submit
		// is only attempted when both a cookie token and driver ring
		// space are known to be available.
		if len(m.freeTokens) == 0 || m.driver.Used.Full() {
			break
		}

		r := m.ready()
		if len(r) == 0 {
			break
		}

		idx, ok := m.sched.Next(r)
		if !ok {
			break
		}

		desc, err := m.clients[idx].handle.Used.Dequeue()
		if err != nil {
			continue
		}

		if !m.submit(idx, desc) {
			// No cookie token or no driver ring space, which the
			// capacity check above rules out; the descriptor
			// already taken off the client's Used ring is dropped.
			// A translation failure is not reported here: submit
			// passes it to m.fail and returns true for it.
			continue
		}

		m.sched.Consumed(idx, desc.Len)
		submitted = true
	}

	if submitted && m.notifier != nil && m.driver.Used.NotifyReader() {
		m.notifier.NotifyDelayed(m.driverCh)
	}
}

// ProcessTXComplete drains every buffer the driver has reclaimed onto the
// shared Free ring, translates it back to the owning client's virtual
// address, and returns it to that client's free ring so the client may
// reuse it. If a client's free ring was empty before this call, the
// multiplexer notifies that client once reclaiming gives it something to
// allocate from again.
//
// As the consumer of the driver's shared Free ring it clears that ring's
// notify_reader hint while actively draining and sets it again once the
// ring is actually empty, so CompleteTX only wakes this multiplexer when
// it is idle.
func (m *Mux) ProcessTXComplete() {
	wasEmpty := make([]bool, len(m.clients))
	for i, c := range m.clients {
		wasEmpty[i] = c.handle.Free.Empty()
	}

	m.driver.Free.SetNotifyReader(false)

	for {
		desc, err := m.driver.DequeueFree()
		if err != nil {
			break
		}

		p := m.pending[desc.Cookie]
		m.returnToken(desc.Cookie)

		if p.owner >= len(m.clients) {
			continue
		}

		out := bufdesc.Descriptor{EncodedAddr: p.vaddr, Cookie: p.cookie}

		if err := m.clients[p.owner].handle.EnqueueFree(out); err != nil {
			m.fail(err)
			return
		}
	}

	if m.driver.Free.Empty() {
		m.driver.Free.SetNotifyReader(true)
	}

	for i, c := range m.clients {
		if wasEmpty[i] && !c.handle.Free.Empty() && m.notifier != nil {
			m.notifier.Notify(c.cfg.Channel)
		}
	}
}
