// Composition root: wires one NIC driver to a two-client TX multiplexer
// https://github.com/usbarmory/nic-dataplane
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Command echoserver stands in for the three seL4 protection domains this
// module's packages implement the logic of (driver, multiplexer, client):
// here they run as goroutines in one process, signaled over Go channels
// instead of seL4 notifications, so the wiring can be exercised without
// target hardware. It is grounded on original_source/echo_server's
// notified() dispatch loop, re-expressed as a goroutine select loop since
// there is no microkernel scheduler underneath this build.
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/usbarmory/nic-dataplane/bufdesc"
	"github.com/usbarmory/nic-dataplane/channel"
	"github.com/usbarmory/nic-dataplane/config"
	"github.com/usbarmory/nic-dataplane/dmaregion"
	"github.com/usbarmory/nic-dataplane/enet"
	"github.com/usbarmory/nic-dataplane/ring"
	"github.com/usbarmory/nic-dataplane/txmux"
)

const (
	chIRQ channel.ID = iota
	chTXComplete
	chRXComplete
	chTXReady
	chClientA
	chClientB
)

// goNotifier delivers wake events over buffered, depth-1 Go channels: a
// pending send is dropped rather than blocking, which is exactly the
// coalescing behavior notify_reader exists to make safe — a consumer
// already scheduled to wake does not need a second wakeup queued behind
// it.
type goNotifier struct {
	chans map[channel.ID]chan struct{}
}

func newGoNotifier(ids ...channel.ID) *goNotifier {
	n := &goNotifier{chans: make(map[channel.ID]chan struct{}, len(ids))}
	for _, id := range ids {
		n.chans[id] = make(chan struct{}, 1)
	}
	return n
}

func (n *goNotifier) Notify(ch channel.ID) {
	select {
	case n.chans[ch] <- struct{}{}:
	default:
	}
}

func (n *goNotifier) NotifyDelayed(ch channel.ID) { n.Notify(ch) }

type noopAcker struct{}

func (noopAcker) AckDelayed(channel.ID) {}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	notifier := newGoNotifier(chIRQ, chTXComplete, chRXComplete, chTXReady, chClientA, chClientB)

	// Shared ring pair between the driver and the multiplexer, viewed
	// from each side by a separate Handle over the same Rings.
	driverFree := &ring.Ring{}
	driverUsed := &ring.Ring{}
	driverTXHandle := &ring.Handle{Free: driverFree, Used: driverUsed}
	muxDriverHandle := &ring.Handle{Free: driverFree, Used: driverUsed}

	// A throwaway RX ring pair: this build has no real RX traffic source,
	// but the driver still needs somewhere to post buffers to and drain
	// completions from.
	rxHandle := &ring.Handle{Free: &ring.Ring{}, Used: &ring.Ring{}}

	// The RX-side stand-in below is the consumer of RX.Used; start out
	// wanting to be woken, since it has not drained anything yet to
	// establish the real drain/idle cadence.
	rxHandle.Used.SetNotifyReader(true)

	driverCfg := config.DriverConfig{
		RXCount:    256,
		TXCount:    256,
		Notifier:   notifier,
		IRQAcker:   noopAcker{},
		IRQChannel: chIRQ,
		TXChannel:  chTXComplete,
		RXChannel:  chRXComplete,
		Fatal: func(err error) {
			logger.Fatal().Err(err).Msg("driver fatal error")
		},
	}

	driver := enet.NewDriver(driverCfg, rxHandle, driverTXHandle)

	regionA := dmaregion.Region{Owner: 0, Vbase: 0x40000000, Pbase: 0x40000000, Size: 8 * bufdesc.BufferSize}
	regionB := dmaregion.Region{Owner: 1, Vbase: 0x50000000, Pbase: 0x50000000, Size: 8 * bufdesc.BufferSize}

	clientAHandle := &ring.Handle{Free: &ring.Ring{}, Used: &ring.Ring{}}
	clientBHandle := &ring.Handle{Free: &ring.Ring{}, Used: &ring.Ring{}}

	clientA := txmux.NewClient(config.ClientConfig{Name: "client-a", ID: 0, Vbase: regionA.Vbase, Pbase: regionA.Pbase, Size: regionA.Size, Channel: chClientA}, clientAHandle)
	clientB := txmux.NewClient(config.ClientConfig{Name: "client-b", ID: 1, Vbase: regionB.Vbase, Pbase: regionB.Pbase, Size: regionB.Size, Channel: chClientB}, clientBHandle)

	clients := []*txmux.Client{clientA, clientB}
	regions := []dmaregion.Region{regionA, regionB}

	if err := txmux.Seed(clients, regions); err != nil {
		logger.Fatal().Err(err).Msg("seed client buffers")
	}

	mux := txmux.New(config.MuxConfig{
		DriverChannel: chTXReady,
		Notifier:      notifier,
		Fatal: func(err error) {
			logger.Fatal().Err(err).Msg("multiplexer fatal error")
		},
	}, clients, regions, muxDriverHandle, txmux.NewRoundRobin(len(clients)))

	driver.Init()
	logger.Info().Str("mac", driver.MAC().String()).Msg("data plane initialized")

	done := make(chan struct{})

	// Driver domain: reacts to its own IRQ channel and to the
	// multiplexer's submissions.
	go func() {
		for {
			select {
			case <-notifier.chans[chIRQ]:
				driver.HandleIRQ()
			case <-notifier.chans[chTXReady]:
				driver.HandleTX()
			case <-done:
				return
			}
		}
	}()

	// Multiplexer domain: reacts to the driver reclaiming TX buffers and
	// to either client submitting new frames.
	go func() {
		for {
			select {
			case <-notifier.chans[chTXComplete]:
				mux.ProcessTXComplete()
			case <-notifier.chans[chClientA]:
				mux.ProcessTXReady()
			case <-notifier.chans[chClientB]:
				mux.ProcessTXReady()
			case <-done:
				return
			}
		}
	}()

	// Stand-in for the RX-side client domain this build has no real
	// traffic source for: drains rxHandle.Used so HandleRX never stalls
	// waiting on a consumer that does not exist in this demonstration. As
	// the consumer of RX.Used it clears the notify_reader hint while
	// draining and sets it again once drained to empty, matching the
	// coalescing discipline HandleRX's producer side expects.
	go func() {
		for {
			select {
			case <-notifier.chans[chRXComplete]:
				rxHandle.Used.SetNotifyReader(false)
				for {
					if _, err := rxHandle.DequeueUsed(); err != nil {
						break
					}
				}
				rxHandle.Used.SetNotifyReader(true)
			case <-done:
				return
			}
		}
	}()

	// Client A: submit one frame, then let the dispatch loops above carry
	// it through the multiplexer onto the driver's hardware TX ring.
	// Nothing in this build plays the device, so it is never completed.
	buf, err := clientAHandle.DequeueFree()
	if err != nil {
		logger.Fatal().Err(err).Msg("client-a has no free buffer")
	}
	buf.Len = 64

	if err := clientAHandle.EnqueueUsed(buf); err != nil {
		logger.Fatal().Err(err).Msg("client-a enqueue used")
	}
	notifier.Notify(chClientA)

	time.Sleep(10 * time.Millisecond)
	close(done)

	logger.Info().Msg("echoserver demonstration pass complete")
}
