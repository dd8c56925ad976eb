// Static configuration structures
// https://github.com/usbarmory/nic-dataplane
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package config holds the static, boot-time configuration structures the
// driver and TX multiplexer are built from. There are no flags, no
// environment variables and no config files: the composition root
// constructs these by hand.
package config

import (
	"time"

	"github.com/usbarmory/nic-dataplane/channel"
)

// FatalHandler is invoked for protocol violations and bus errors: the
// "print a diagnostic and halt" class of error. It is
// the sole point where a library package would otherwise call a halt
// primitive or os.Exit; callers supply one, e.g. one that logs at Fatal
// level and busy-loops forever on real hardware, or one that records the
// error and returns in tests.
type FatalHandler func(error)

// DriverConfig configures one enet.Driver instance.
type DriverConfig struct {
	// Base is the MMIO base address of the ENET register block.
	Base uint32

	// RXCount and TXCount are the hardware descriptor ring capacities.
	// Two slots of each are always held back as an empty/full cushion.
	RXCount int
	TXCount int

	// RXRingPhys and TXRingPhys are the physical addresses of the
	// coherent memory holding the hardware descriptor rings.
	RXRingPhys uint32
	TXRingPhys uint32

	// DiscardErrors, when true, tells the MAC to silently drop frames
	// with line/CRC errors instead of handing them to software.
	DiscardErrors bool

	// IRQChannel, TXChannel and RXChannel are the channel IDs this
	// driver is notified on (IRQChannel) or notifies (TXChannel,
	// RXChannel).
	IRQChannel channel.ID
	TXChannel  channel.ID
	RXChannel  channel.ID
	Notifier   channel.Notifier
	IRQAcker   channel.IRQAcker
	Fatal      FatalHandler
}

// ClientConfig describes one TX-mux client's DMA region, used both to seed
// its TX free ring at boot and to build the address-translation table.
type ClientConfig struct {
	Name  string
	ID    int
	Vbase uint64
	Pbase uint64
	Size  uint64

	// Channel is the channel ID this client is notified on.
	Channel channel.ID
}

// QuotaConfig is the priority scheduler's per-client byte quota within one
// timeslice, supplied explicitly by the composition root rather than
// assumed as a global constant.
type QuotaConfig struct {
	ByteLimit uint64
	Timeslice time.Duration
}

// MuxConfig configures one txmux.Mux instance. Per-client configuration is
// passed to txmux.New separately as the clients slice, since each Client is
// already paired with its own ring.Handle at construction time.
type MuxConfig struct {
	DriverChannel channel.ID
	Notifier      channel.Notifier
	Fatal         FatalHandler
}
