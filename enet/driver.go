// NXP i.MX ENET NIC driver
// https://github.com/usbarmory/nic-dataplane
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package enet implements the hardware-facing half of the data plane: it
// owns the RX/TX hardware descriptor rings, drains the upstream ring pairs
// into and out of them, and services the NIC interrupt. It is grounded on
// github.com/usbarmory/tamago's soc/nxp/enet driver, generalized to a
// four-ring (free/used x RX/TX) protocol instead of tamago's own direct
// Tx()/Rx() buffer model, and to the fuller i.MX8 ENET init sequence
// recovered from the sDDF echo_server reference sources.
//
// This package is only meant to be used with `GOOS=tamago` as supported by
// the TamaGo framework for bare metal Go, see
// https://github.com/usbarmory/tamago. Where no such runtime is present
// (unit tests, the bundled cmd/echoserver), the register file and hardware
// descriptor rings are backed by ordinary Go memory, exercising identical
// code paths.
package enet

import (
	"fmt"
	"net"
	"runtime"
	"unsafe"

	"github.com/rs/zerolog"

	"github.com/usbarmory/nic-dataplane/config"
	"github.com/usbarmory/nic-dataplane/hwring"
	"github.com/usbarmory/nic-dataplane/internal/reg"
	"github.com/usbarmory/nic-dataplane/ring"
)

// Driver owns one ENET MAC instance: its hardware descriptor rings, its
// register file, and the upstream ring handles it bridges them to.
type Driver struct {
	cfg config.DriverConfig

	base uint32
	// regs backs a simulated register file when cfg.Base == 0 (tests,
	// cmd/echoserver without real hardware); nil when Base is a real
	// MMIO address, since then the memory already exists.
	regs []byte

	rx *hwring.Ring
	tx *hwring.Ring

	// RX is the upstream ring pair to the RX path: Free is buffers the
	// driver may refill from, Used is where completed packets are
	// published.
	RX *ring.Handle
	// TX is the upstream ring pair to the TX multiplexer: Used is
	// buffers ready to send, Free is where sent buffers are returned.
	TX *ring.Handle

	irqMask uint32
	mac     net.HardwareAddr

	log zerolog.Logger
}

// NewDriver builds a driver instance. rxUpstream and txUpstream are the
// ring.Handle pairs this driver bridges to the hardware; the driver is
// the consumer of rxUpstream.Free and txUpstream.Used, and the producer of
// rxUpstream.Used and txUpstream.Free.
func NewDriver(cfg config.DriverConfig, rxUpstream, txUpstream *ring.Handle) *Driver {
	if cfg.RXCount == 0 {
		cfg.RXCount = 256
	}
	if cfg.TXCount == 0 {
		cfg.TXCount = 256
	}

	d := &Driver{
		cfg:     cfg,
		RX:      rxUpstream,
		TX:      txUpstream,
		irqMask: 0,
		log:     zerolog.New(zerolog.NewConsoleWriter()).With().Str("component", "enet").Logger(),
	}

	d.base = cfg.Base
	if d.base == 0 {
		// No real MMIO base was supplied: back the register file with
		// ordinary Go memory so this driver can be driven end to end
		// without real hardware.
		d.regs = make([]byte, 0x2000)
		d.base = uint32(uintptr(unsafe.Pointer(&d.regs[0])))
	}

	if cfg.RXRingPhys != 0 {
		d.rx = hwring.NewAt(cfg.RXRingPhys, cfg.RXCount)
	} else {
		d.rx = hwring.New(cfg.RXCount)
	}

	if cfg.TXRingPhys != 0 {
		d.tx = hwring.NewAt(cfg.TXRingPhys, cfg.TXCount)
	} else {
		d.tx = hwring.New(cfg.TXCount)
	}

	// This driver is the consumer of TX.Used; start out wanting to be
	// woken, since HandleTX has not run yet to establish the real
	// drain/idle cadence.
	d.TX.Used.SetNotifyReader(true)

	return d
}

func (d *Driver) reg(off uint32) uint32 { return d.base + off }

// MAC returns the MAC address currently programmed into palr/paur.
func (d *Driver) MAC() net.HardwareAddr {
	l := reg.Read(d.reg(offPALR))
	h := reg.Read(d.reg(offPAUR))

	mac := make(net.HardwareAddr, 6)
	mac[0] = byte(l >> 24)
	mac[1] = byte(l >> 16)
	mac[2] = byte(l >> 8)
	mac[3] = byte(l)
	mac[4] = byte(h >> 24)
	mac[5] = byte(h >> 16)

	return mac
}

// SetMAC programs a new station address into palr/paur.
func (d *Driver) SetMAC(mac net.HardwareAddr) {
	l := uint32(mac[0])<<24 | uint32(mac[1])<<16 | uint32(mac[2])<<8 | uint32(mac[3])
	h := uint32(mac[4])<<24 | uint32(mac[5])<<16

	reg.Write(d.reg(offPALR), l)
	reg.Write(d.reg(offPAUR), h)

	d.mac = mac
}

func (d *Driver) fatal(err error) {
	d.log.Error().Err(err).Msg("fatal driver error")

	if d.cfg.Fatal != nil {
		d.cfg.Fatal(err)
	}
}

// clearBits clears every bit set in mask, read-modify-write.
func (d *Driver) clearBits(off uint32, mask uint32) {
	reg.Write(d.reg(off), reg.Read(d.reg(off))&^mask)
}

// Init resets and programs the NIC, then seeds the
// hardware descriptor rings and activates RX.
func (d *Driver) Init() {
	// Soft reset. On real hardware this bit self-clears once the reset
	// completes; the simulated register file used in tests and
	// cmd/echoserver has no such autonomous behavior, so it is cleared
	// immediately to model an instantaneous reset instead of spinning
	// forever on a bit nothing will ever flip.
	reg.Or(d.reg(offECR), ecrReset)
	if d.regs != nil {
		d.clearBits(offECR, ecrReset)
	} else {
		for reg.Read(d.reg(offECR))&ecrReset != 0 {
			runtime.Gosched()
		}
	}
	reg.Or(d.reg(offECR), ecrDBSwap)

	// Mask and clear all events.
	reg.Write(d.reg(offEIMR), 0)
	reg.Write(d.reg(offEIR), 0xffffffff)

	// MDIO clock.
	reg.Write(d.reg(offMSCR), 24<<1)

	// Statistics: disable, clear, restart.
	reg.Or(d.reg(offMIBC), mibcDisable)
	reg.Or(d.reg(offMIBC), mibcClear)
	d.clearBits(offMIBC, mibcClear)
	d.clearBits(offMIBC, mibcDisable)

	// Hash tables: not touched by reset, clear explicitly.
	reg.Write(d.reg(offIAUR), 0)
	reg.Write(d.reg(offIALR), 0)
	reg.Write(d.reg(offGAUR), 0)
	reg.Write(d.reg(offGALR), 0)

	if reg.Read(d.reg(offPALR)) == 0 && d.mac != nil {
		d.SetMAC(d.mac)
	}

	reg.Write(d.reg(offOPD), pauseOpcode)

	// Coalesce TX interrupts to batches of txCoalesceFrames.
	reg.Write(d.reg(offTXIC0), txicEnable|txicFT(txCoalesceFrames)|0xff)
	reg.Write(d.reg(offTIPG), interPacketGap)

	// TX store-and-forward; RX no-store-and-forward (cut-through).
	reg.Write(d.reg(offTFWR), tfwrStoreForward)
	reg.Write(d.reg(offRSFL), 0)

	// RX: discard line/IP-checksum/protocol-checksum errors.
	discard := uint32(0)
	if d.cfg.DiscardErrors {
		discard = raccLineDiscard | raccIPDiscard | raccProtoDiscard
	}
	reg.Write(d.reg(offRACC), discard)
	// TX: offload IP and protocol checksum regardless.
	reg.Write(d.reg(offTACC), taccIPChecksum|taccProtoChecksum)

	// Descriptor ring base physical addresses.
	reg.Write(d.reg(offRDSR), d.rx.Base())
	reg.Write(d.reg(offTDSR), d.tx.Base())

	// Max receive buffer size.
	reg.Write(d.reg(offMRBR), maxReceiveBufferSize)

	// RCR: MAX_FL | RGMII | MII | PROMISCUOUS.
	reg.Write(d.reg(offRCR), uint32(maxFrameLen)<<rcrMaxFLShift|rcrRGMII|rcrMII|rcrPromiscuous)

	// TX: full duplex.
	reg.Or(d.reg(offTCR), tcrFDEN)

	// Speed, then enable the MAC.
	reg.Or(d.reg(offECR), ecrSpeed)
	reg.Or(d.reg(offECR), ecrEthEren)

	// Unmask events of interest, then post initial RX buffers and
	// activate RX DMA. FillRXBufs narrows the mask back down if
	// RX.Free has nothing to offer yet.
	d.irqMask = irqMaskAll
	reg.Write(d.reg(offEIMR), d.irqMask)
	d.FillRXBufs()

	d.log.Info().Str("mac", d.MAC().String()).Msg("ENET initialized")
}

func (d *Driver) enableIRQs(mask uint32) {
	d.irqMask = mask
	reg.Write(d.reg(offEIMR), mask)
}

var errBusError = fmt.Errorf("enet: bus/uDMA error (EBERR)")
