// https://github.com/usbarmory/nic-dataplane
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package ring

import "github.com/usbarmory/nic-dataplane/bufdesc"

// Handle is a (free, used) ring pair as viewed from one side of a channel.
// A data path crossing a protection-domain boundary is always two Handles,
// one viewed from each side, sharing the same underlying Rings. Waking the
// peer domain is not this type's concern: callers that need to do so hold
// their own channel.Notifier.
type Handle struct {
	Free *Ring
	Used *Ring
}

// EnqueueFree places a buffer on the free ring, i.e. returns it to whoever
// consumes the free ring's consumer role.
func (h *Handle) EnqueueFree(d bufdesc.Descriptor) error {
	return h.Free.Enqueue(d)
}

// DequeueFree takes a buffer off the free ring.
func (h *Handle) DequeueFree() (bufdesc.Descriptor, error) {
	return h.Free.Dequeue()
}

// EnqueueUsed places a buffer carrying data/work on the used ring.
func (h *Handle) EnqueueUsed(d bufdesc.Descriptor) error {
	return h.Used.Enqueue(d)
}

// DequeueUsed takes a buffer off the used ring.
func (h *Handle) DequeueUsed() (bufdesc.Descriptor, error) {
	return h.Used.Dequeue()
}
