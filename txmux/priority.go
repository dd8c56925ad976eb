// https://github.com/usbarmory/nic-dataplane
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package txmux

import (
	"time"

	"github.com/usbarmory/nic-dataplane/config"
)

// quotaState is one client's strict-priority bookkeeping: bytes consumed
// and when the current timeslice started.
type quotaState struct {
	used       uint64
	sliceStart time.Time
}

// PriorityQuota services ready clients in a fixed priority order (index 0
// is highest) with a per-client byte-rate cap per timeslice, refilled once
// the slice elapses. byte_limit[] and TIMESLICE are supplied explicitly as
// config.QuotaConfig per client, rather than assumed global constants,
// since the original reference source left their origin undeclared.
type PriorityQuota struct {
	quotas []quotaConfig
	state  []quotaState
	now    func() time.Time
}

type quotaConfig struct {
	ByteLimit uint64
	Timeslice time.Duration
}

// NewPriorityQuota builds a strict-priority scheduler. quotas[i] configures
// the client at index i; now is the clock source (time.Now if nil).
func NewPriorityQuota(quotas []config.QuotaConfig, now func() time.Time) *PriorityQuota {
	if now == nil {
		now = time.Now
	}

	qs := make([]quotaConfig, len(quotas))
	st := make([]quotaState, len(quotas))

	start := now()
	for i, q := range quotas {
		qs[i] = quotaConfig{ByteLimit: q.ByteLimit, Timeslice: q.Timeslice}
		st[i] = quotaState{sliceStart: start}
	}

	return &PriorityQuota{quotas: qs, state: st, now: now}
}

func (s *PriorityQuota) refill(idx int) {
	q := s.quotas[idx]
	if q.Timeslice == 0 {
		return
	}

	now := s.now()
	if now.Sub(s.state[idx].sliceStart) >= q.Timeslice {
		s.state[idx] = quotaState{sliceStart: now}
	}
}

// Next scans clients in priority order and returns the first ready client
// that has not exhausted its byte quota for the current timeslice. A
// client with ByteLimit == 0 is treated as unmetered.
func (s *PriorityQuota) Next(ready []int) (int, bool) {
	set := make(map[int]bool, len(ready))
	for _, idx := range ready {
		set[idx] = true
	}

	for idx := 0; idx < len(s.quotas); idx++ {
		if !set[idx] {
			continue
		}

		s.refill(idx)

		q := s.quotas[idx]
		if q.ByteLimit == 0 || s.state[idx].used < q.ByteLimit {
			return idx, true
		}
	}

	return 0, false
}

// Consumed records bytes sent against the client's current timeslice.
func (s *PriorityQuota) Consumed(clientIdx int, length uint16) {
	if clientIdx < 0 || clientIdx >= len(s.state) {
		return
	}
	s.state[clientIdx].used += uint64(length)
}
