// NXP i.MX ENET register set
// https://github.com/usbarmory/nic-dataplane
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package enet

// Register offsets from the ENET base address (bit-exact with the i.MX8
// ENET peripheral).
const (
	offEIR  = 0x0004
	offEIMR = 0x0008

	offRDAR = 0x0010
	offTDAR = 0x0014

	offECR = 0x0024

	offMSCR = 0x0044
	offMIBC = 0x0064

	offRCR = 0x0084
	offTCR = 0x00c4

	offPALR = 0x00e4
	offPAUR = 0x00e8

	offOPD = 0x00ec

	offIAUR = 0x0118
	offIALR = 0x011c
	offGAUR = 0x0120
	offGALR = 0x0124

	offTXIC0 = 0x00f8

	offTIPG = 0x0040

	offTFWR = 0x0144
	offRSFL = 0x0090

	offRACC = 0x01c4
	offTACC = 0x01c8

	offRDSR = 0x0180
	offTDSR = 0x0184
	offMRBR = 0x0188
)

// ECR: control register.
const (
	ecrReset    = 1 << 0
	ecrEthEren  = 1 << 1
	ecrSpeed    = 1 << 5
	ecrDBSwap   = 1 << 8
)

// RDAR/TDAR: descriptor ring activation.
const (
	rdarActive = 1 << 24
	tdarActive = 1 << 24
)

// MIBC: statistics control.
const (
	mibcDisable = 1 << 31
	mibcClear   = 1 << 30
)

// RCR: receive control register fields.
const (
	rcrMaxFLShift  = 16
	rcrMII         = 1 << 2
	rcrRGMII       = 1 << 6
	rcrPromiscuous = 1 << 3
)

// TCR: transmit control register.
const (
	tcrFDEN = 1 << 2
)

// RACC / TACC: RX/TX accelerator control (checksum/line-error offload).
const (
	raccLineDiscard = 1 << 6
	raccIPDiscard   = 1 << 1
	raccProtoDiscard = 1 << 2

	taccIPChecksum   = 1 << 3
	taccProtoChecksum = 1 << 4
)

// TXIC0: TX interrupt coalescing.
const (
	txicEnable = 1 << 31
)

func txicFT(n uint32) uint32 {
	return (n & 0xff) << 20
}

// TFWR: TX FIFO watermark.
const tfwrStoreForward = 1 << 8

// Event bits of interest (shared between eir and eimr).
const (
	irqTXF   = 1 << 27
	irqRXF   = 1 << 25
	irqEBERR = 1 << 22
)

// irqMaskAll is every event this driver cares about.
const irqMaskAll = irqTXF | irqRXF | irqEBERR

// irqMaskNoRX is used once RX backpressure kicks in: keep TX completion
// and bus-error interrupts enabled, but stop asking for more RX work.
const irqMaskNoRX = irqTXF | irqEBERR

// pauseOpcode is the PAUSE frame opcode field value programmed into opd.
const pauseOpcode = 0x00010020

// maxFrameLen is MAX_FL: the largest accepted Ethernet frame, in bytes.
const maxFrameLen = 1518

// txCoalesceFrames is the number of frames TXF interrupts are batched to.
const txCoalesceFrames = 128

// interPacketGap is the programmed inter-packet gap (tipg).
const interPacketGap = 12

// maxReceiveBufferSize (mrbr) matches bufdesc.MaxFrameSize.
const maxReceiveBufferSize = 1536
