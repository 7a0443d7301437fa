// File: core/shmem/notifier.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Notifier is a monotonically increasing 32-bit counter living in shared
// memory. One peer bumps it after publishing to the
// corresponding ring; the other observes deltas against a private
// last-seen value. Counters are advisory and allowed to wrap.

package shmem

import (
	"sync/atomic"
	"unsafe"
)

// NotifierSize is the byte footprint of one counter.
const NotifierSize = 4

// Notifier is a view over a single uint32 counter within a Region.
type Notifier struct {
	buf []byte
	off uint32
}

func newNotifier(buf []byte, off uint32) *Notifier {
	return &Notifier{buf: buf, off: off}
}

func (n *Notifier) ptr() *uint32 {
	return (*uint32)(unsafe.Pointer(&n.buf[n.off]))
}

// Bump unconditionally increments the counter. Non-blocking, never fails.
func (n *Notifier) Bump() {
	atomic.AddUint32(n.ptr(), 1)
}

// Observe returns the number of bumps since *lastSeen (unsigned modular
// subtraction, so wraparound of the 32-bit counter is handled correctly)
// and advances *lastSeen to the counter's current value.
func (n *Notifier) Observe(lastSeen *uint32) uint32 {
	current := atomic.LoadUint32(n.ptr())
	delta := current - *lastSeen
	*lastSeen = current
	return delta
}

// Value returns the current raw counter value, for diagnostics/tests.
func (n *Notifier) Value() uint32 {
	return atomic.LoadUint32(n.ptr())
}

// reset zeroes the counter. Only called from NewRegion with init set
// (the Host, when it constructs its Region).
func (n *Notifier) reset() {
	atomic.StoreUint32(n.ptr(), 0)
}
