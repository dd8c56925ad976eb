// https://github.com/usbarmory/nic-dataplane
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package txmux

// RoundRobin services ready clients one descriptor at a time in a fixed
// cyclic order, starting after whichever client it serviced last. This is
// the fairness scheduler: no client can starve another by
// submitting faster, since each visit drains at most one descriptor before
// moving on.
type RoundRobin struct {
	last int
	n    int
}

// NewRoundRobin builds a round-robin scheduler over n clients.
func NewRoundRobin(n int) *RoundRobin {
	return &RoundRobin{last: -1, n: n}
}

// Next walks forward from the last-served client index, wrapping around,
// and returns the first client in that order found in ready.
func (s *RoundRobin) Next(ready []int) (int, bool) {
	if len(ready) == 0 || s.n == 0 {
		return 0, false
	}

	set := make(map[int]bool, len(ready))
	for _, idx := range ready {
		set[idx] = true
	}

	for i := 1; i <= s.n; i++ {
		idx := (s.last + i) % s.n
		if set[idx] {
			s.last = idx
			return idx, true
		}
	}

	return 0, false
}

// Consumed is a no-op: round robin carries no byte-accounting state.
func (s *RoundRobin) Consumed(clientIdx int, length uint16) {}
