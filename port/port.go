// File: port/port.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Port binds one ring pair and one notifier pair to a Role. Host sends on H2G/bumps the guest notifier and
// receives on G2H/observes the host notifier; Guest is the mirror.

package port

import "github.com/momentics/ivshmsg/core/shmem"

// Role identifies which side of a region a Port is bound for.
type Role int

const (
	// RoleHost is the writer-initiator peer (owns the arena).
	RoleHost Role = iota
	// RoleGuest is the reader-initiator peer.
	RoleGuest
)

func (r Role) String() string {
	if r == RoleHost {
		return "host"
	}
	return "guest"
}

// Port is the send/recv/notify primitive a Socket is bound to.
type Port struct {
	send     *shmem.Ring
	recv     *shmem.Ring
	bump     *shmem.Notifier
	observe  *shmem.Notifier
	lastSeen uint32
}

// New binds a Port for role over region:
// Host: send=H2G, recv=G2H, bump=NotifierGuest, observe=NotifierHost.
// Guest: reversed.
func New(region *shmem.Region, role Role) *Port {
	p := &Port{}
	switch role {
	case RoleHost:
		p.send = region.H2G()
		p.recv = region.G2H()
		p.bump = region.NotifierGuest()
		p.observe = region.NotifierHost()
	case RoleGuest:
		p.send = region.G2H()
		p.recv = region.H2G()
		p.bump = region.NotifierHost()
		p.observe = region.NotifierGuest()
	}
	return p
}

// Send enqueues msg on the send ring and bumps the remote's notifier.
// Returns false ("full") without side effects beyond the failed attempt
// when the ring has no room.
func (p *Port) Send(msg shmem.Message) bool {
	if !p.send.TryEnqueue(msg) {
		return false
	}
	p.bump.Bump()
	return true
}

// Bump signals the remote peer's notifier without enqueuing anything,
// used by the doorbell ioctl path to poke the peer independently of a
// ring write.
func (p *Port) Bump() {
	p.bump.Bump()
}

// TryRecv dequeues one message from the recv ring without touching the
// notifier.
func (p *Port) TryRecv() (shmem.Message, bool) {
	return p.recv.TryDequeue()
}

// Poll observes the inbound notifier; true means the recv ring may be
// non-empty. Callers must still drain to empty regardless of the exact
// delta.
func (p *Port) Poll() bool {
	return p.observe.Observe(&p.lastSeen) > 0
}

// RecvRingLen exposes the current recv-ring depth for diagnostics/tests.
func (p *Port) RecvRingLen() int { return p.recv.Len() }

// SendRingLen exposes the current send-ring depth for diagnostics/tests.
func (p *Port) SendRingLen() int { return p.send.Len() }
