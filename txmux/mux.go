// TX multiplexer: fans client-submitted frames into one driver TX ring
// https://github.com/usbarmory/nic-dataplane
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package txmux implements the protection domain that sits between N
// client domains and the NIC driver's TX ring: it translates each client's
// virtual buffer addresses to the physical addresses the DMA engine
// requires, arbitrates which client's frame goes out next, and returns
// spent buffers to their owning client once the driver reclaims them.
//
// It is grounded on the scheduling and address-translation responsibilities
// the original two-client multiplexer design assigns to that role,
// generalized to an arbitrary client set, and from ad hoc C arrays to a
// pluggable Scheduler so round robin and strict priority share one
// multiplexer implementation.
package txmux

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/usbarmory/nic-dataplane/bufdesc"
	"github.com/usbarmory/nic-dataplane/channel"
	"github.com/usbarmory/nic-dataplane/config"
	"github.com/usbarmory/nic-dataplane/dmaregion"
	"github.com/usbarmory/nic-dataplane/ring"
)

// Client is one TX client's view as seen by the multiplexer: its own ring
// pair (the mux is the driver side of that pair) and its channel.
type Client struct {
	cfg    config.ClientConfig
	handle *ring.Handle
}

// NewClient builds a client record from its configuration and the ring pair
// the composition root wired between this client and the multiplexer.
func NewClient(cfg config.ClientConfig, handle *ring.Handle) *Client {
	return &Client{cfg: cfg, handle: handle}
}

// pendingTX is the multiplexer's bookkeeping for one descriptor in flight
// to the driver: enough to translate the driver's completion back to the
// owning client's original vaddr and cookie. Indexed by the cookie handed
// to the driver, since the driver's own completion descriptor only ever
// carries that cookie back (the driver has no notion of
// per-client address spaces, so it cannot carry more than an opaque id).
type pendingTX struct {
	owner  int
	vaddr  uint64
	cookie uint32
}

// Mux is one TX multiplexer instance.
type Mux struct {
	clients []*Client
	table   *dmaregion.Table

	driver *ring.Handle

	sched Scheduler

	notifier channel.Notifier
	fatal    config.FatalHandler
	driverCh channel.ID

	pending    []pendingTX
	freeTokens []uint32

	log zerolog.Logger
}

// New builds a multiplexer. driverHandle is the mux's view of the shared
// ring pair with the driver: Used is where submitted frames are enqueued,
// Free is where spent buffers are reclaimed from. regions gives one
// dmaregion.Region per client, in the same order as clients, for address
// translation.
func New(cfg config.MuxConfig, clients []*Client, regions []dmaregion.Region, driverHandle *ring.Handle, sched Scheduler) *Mux {
	tokens := make([]uint32, ring.Capacity)
	for i := range tokens {
		tokens[i] = uint32(i)
	}

	m := &Mux{
		clients:    clients,
		table:      dmaregion.NewTable(regions),
		driver:     driverHandle,
		sched:      sched,
		notifier:   cfg.Notifier,
		fatal:      cfg.Fatal,
		driverCh:   cfg.DriverChannel,
		pending:    make([]pendingTX, ring.Capacity),
		freeTokens: tokens,
		log:        zerolog.New(zerolog.NewConsoleWriter()).With().Str("component", "txmux").Logger(),
	}

	// This multiplexer is the consumer of the driver's shared Free ring;
	// start out wanting to be woken, since ProcessTXComplete has not run
	// yet to establish the real drain/idle cadence.
	driverHandle.Free.SetNotifyReader(true)

	return m
}

func (m *Mux) fail(err error) {
	m.log.Error().Err(err).Msg("fatal multiplexer error")
	if m.fatal != nil {
		m.fatal(err)
	}
}

func (m *Mux) takeToken() (uint32, bool) {
	n := len(m.freeTokens)
	if n == 0 {
		return 0, false
	}
	tok := m.freeTokens[n-1]
	m.freeTokens = m.freeTokens[:n-1]
	return tok, true
}

func (m *Mux) returnToken(tok uint32) {
	m.freeTokens = append(m.freeTokens, tok)
}

// submit translates one client descriptor to a physical address and
// enqueues it on the driver's Used ring, recording its pending state under
// a freshly taken cookie token. It returns false if the driver ring is full
// or no cookie token is available, in which case the descriptor was not
// consumed.
func (m *Mux) submit(clientIdx int, desc bufdesc.Descriptor) bool {
	tok, ok := m.takeToken()
	if !ok {
		return false
	}

	phys, err := m.table.ToPhys(desc.EncodedAddr)
	if err != nil {
		m.returnToken(tok)
		m.fail(fmt.Errorf("txmux: client %d: %w", clientIdx, err))
		return true // drop: protocol violation, not backpressure
	}

	out := bufdesc.Descriptor{EncodedAddr: phys, Len: desc.Len, Cookie: tok}

	if err := m.driver.EnqueueUsed(out); err != nil {
		m.returnToken(tok)
		return false
	}

	m.pending[tok] = pendingTX{owner: clientIdx, vaddr: desc.EncodedAddr, cookie: desc.Cookie}

	return true
}
