// File: core/shmem/ring.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Ring is the bounded SPSC queue of Message records embedded directly in
// shared memory. The header (in, out, mask, esize) lives
// in the mapped bytes themselves so both peers observe the same state;
// no pointer is ever stored in shared memory — storage is
// always addressed as headerOffset+ringHeaderSize+(index&mask)*esize.
//
// Grounded on internal/concurrency/ring.go's RingBuffer[T] (padded
// atomic head/tail, power-of-two mask), reinterpreted here as two plain
// uint32 indices living in a byte slice instead of struct fields, so the
// layout stays 32-bit wrapping and position-independent rather than a
// Go-native struct with pointers.

package shmem

import (
	"sync/atomic"
	"unsafe"
)

// ringHeaderSize is the byte size of the (in, out, mask, esize) header.
const ringHeaderSize = 16

// RingSize returns the total byte footprint of a ring with the given
// record capacity.
func RingSize(capacity uint32) uint32 {
	return ringHeaderSize + capacity*MessageSize
}

// Ring is a view over a fixed byte range of a Region: a single-producer/
// single-consumer queue of fixed-size Message records. The zero value is
// not usable; construct via newRing.
type Ring struct {
	buf  []byte // shared backing store (the whole region)
	base uint32 // offset of this ring's header within buf
	cap  uint32 // record capacity (cached copy of the mask+1)
}

// newRing binds a Ring to the byte range [base, base+RingSize(capacity)).
// initHeader, when true, (re)writes the header fields — only the Host
// does this, when it constructs its Region, since the Guest must find
// the rings already zeroed.
func newRing(buf []byte, base uint32, capacity uint32, initHeader bool) *Ring {
	r := &Ring{buf: buf, base: base}
	if initHeader {
		atomic.StoreUint32(r.inPtr(), 0)
		atomic.StoreUint32(r.outPtr(), 0)
		atomic.StoreUint32(r.maskPtr(), capacity-1)
		atomic.StoreUint32(r.esizePtr(), MessageSize)
	}
	r.cap = atomic.LoadUint32(r.maskPtr()) + 1
	return r
}

func (r *Ring) ptrAt(off uint32) *uint32 {
	return (*uint32)(unsafe.Pointer(&r.buf[r.base+off]))
}

func (r *Ring) inPtr() *uint32    { return r.ptrAt(0) }
func (r *Ring) outPtr() *uint32   { return r.ptrAt(4) }
func (r *Ring) maskPtr() *uint32  { return r.ptrAt(8) }
func (r *Ring) esizePtr() *uint32 { return r.ptrAt(12) }

func (r *Ring) slot(index uint32) []byte {
	mask := atomic.LoadUint32(r.maskPtr())
	off := r.base + ringHeaderSize + (index&mask)*MessageSize
	return r.buf[off : off+MessageSize]
}

// TryEnqueue copies msg into the next free slot and publishes it. Returns
// false ("full") without mutating state when the ring has no free
// slot — a non-error condition the caller is expected to retry or drop.
func (r *Ring) TryEnqueue(msg Message) bool {
	in := atomic.LoadUint32(r.inPtr())
	out := atomic.LoadUint32(r.outPtr())
	mask := atomic.LoadUint32(r.maskPtr())
	if in-out > mask {
		// in-out == mask+1 == capacity: full.
		return false
	}
	msg.Encode(r.slot(in))
	// Release: publish the new index only after the data copy above.
	atomic.StoreUint32(r.inPtr(), in+1)
	return true
}

// TryDequeue removes and returns the oldest record, or (zero, false) if
// the ring is empty — also a non-error condition.
func (r *Ring) TryDequeue() (Message, bool) {
	in := atomic.LoadUint32(r.inPtr())
	out := atomic.LoadUint32(r.outPtr())
	if in == out {
		return Message{}, false
	}
	// Acquire: the index load above happens-before this data read.
	msg := DecodeMessage(r.slot(out))
	atomic.StoreUint32(r.outPtr(), out+1)
	return msg, true
}

// Len returns the number of records currently queued.
func (r *Ring) Len() int {
	in := atomic.LoadUint32(r.inPtr())
	out := atomic.LoadUint32(r.outPtr())
	return int(in - out)
}

// Cap returns the fixed record capacity of the ring.
func (r *Ring) Cap() int {
	return int(atomic.LoadUint32(r.maskPtr()) + 1)
}
