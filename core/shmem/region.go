// File: core/shmem/region.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Region models the fixed byte layout of the shared window: two rings,
// two notifier counters, and an arena tail, all addressed by offset from
// the region base so the layout is position-independent across the two
// peers' separate virtual-address mappings of the same physical range.

package shmem

import (
	"fmt"
	"sync/atomic"
)

// DefaultRingCapacity is the default record capacity of each ring.
const DefaultRingCapacity = 512

// DefaultRegionSize is the default total mapped region size, leaving the tail for the arena.
const DefaultRegionSize = 16 * 1024 * 1024

// Region wraps one mapped byte window and exposes its four sub-views.
type Region struct {
	buf          []byte
	ringCapacity uint32
	ringSize     uint32
	h2g          *Ring
	g2h          *Ring
	notifyGuest  *Notifier
	notifyHost   *Notifier
}

// MinSize returns the smallest region size that can host two rings of
// the given capacity plus a non-empty arena tail.
func MinSize(ringCapacity uint32) uint32 {
	rs := RingSize(ringCapacity)
	return 2*rs + 2*NotifierSize + 1
}

// NewRegion binds a Region to buf, which must already be at least
// MinSize(ringCapacity) bytes. init selects whether ring/notifier
// headers are (re)written (Host, at region construction) or left as-is (Guest,
// which must see the Host's already-published headers).
func NewRegion(buf []byte, ringCapacity uint32, init bool) (*Region, error) {
	if ringCapacity == 0 || ringCapacity&(ringCapacity-1) != 0 {
		return nil, fmt.Errorf("shmem: ring capacity %d is not a power of two", ringCapacity)
	}
	need := MinSize(ringCapacity)
	if uint32(len(buf)) < need {
		return nil, fmt.Errorf("shmem: region too small: have %d bytes, need at least %d", len(buf), need)
	}
	rs := RingSize(ringCapacity)
	reg := &Region{
		buf:          buf,
		ringCapacity: ringCapacity,
		ringSize:     rs,
	}
	reg.h2g = newRing(buf, 0, ringCapacity, init)
	reg.g2h = newRing(buf, rs, ringCapacity, init)
	reg.notifyGuest = newNotifier(buf, 2*rs)
	reg.notifyHost = newNotifier(buf, 2*rs+NotifierSize)
	if init {
		reg.notifyGuest.reset()
		reg.notifyHost.reset()
	}
	return reg, nil
}

// Validate confirms the region was already initialized by the Host: the
// ring headers must carry a nonzero, power-of-two-consistent mask and
// the wire-exact record size. Nothing in this module calls it
// automatically (neither facade.New nor Endpoint.Attach does); a Guest
// can call it after NewRegion instead of blindly trusting an unmapped
// or stale region.
func (r *Region) Validate() error {
	for name, ring := range map[string]*Ring{"h2g": r.h2g, "g2h": r.g2h} {
		mask := atomic.LoadUint32(ring.maskPtr())
		if mask == 0 || (mask+1)&mask != 0 {
			return fmt.Errorf("shmem: %s ring header not initialized (bad mask)", name)
		}
		if atomic.LoadUint32(ring.esizePtr()) != MessageSize {
			return fmt.Errorf("shmem: %s ring header not initialized (bad esize)", name)
		}
	}
	return nil
}

// H2G returns the Host->Guest ring.
func (r *Region) H2G() *Ring { return r.h2g }

// G2H returns the Guest->Host ring.
func (r *Region) G2H() *Ring { return r.g2h }

// NotifierGuest returns the counter bumped by the Host, observed by the Guest.
func (r *Region) NotifierGuest() *Notifier { return r.notifyGuest }

// NotifierHost returns the counter bumped by the Guest, observed by the Host.
func (r *Region) NotifierHost() *Notifier { return r.notifyHost }

// ArenaBase returns the byte offset of the arena body within the region.
func (r *Region) ArenaBase() uint32 { return 2*r.ringSize + 2*NotifierSize }

// ArenaBody returns the mutable tail of the region reserved for the arena.
func (r *Region) ArenaBody() []byte {
	return r.buf[r.ArenaBase():]
}

// Size returns the total mapped region size in bytes.
func (r *Region) Size() int { return len(r.buf) }

// RingCapacity returns the configured per-ring record capacity.
func (r *Region) RingCapacity() uint32 { return r.ringCapacity }
