// File: guest/guest.go
// Package guest wires a Facade as the Guest side of an ivshmsg link:
// the peer that initiates connections and req allocations against the
// Host's arena.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package guest

import (
	"context"
	"fmt"

	"github.com/momentics/ivshmsg/core/shmem"
	"github.com/momentics/ivshmsg/endpoint"
	"github.com/momentics/ivshmsg/facade"
	"github.com/momentics/ivshmsg/pci"
	"github.com/momentics/ivshmsg/port"
	"github.com/momentics/ivshmsg/protocol"
	"github.com/momentics/ivshmsg/socket"
)

// Option customizes Guest construction.
type Option func(*facade.Config)

// WithNUMANode sets the NUMA node facade.Start pins its calling thread
// to (and hands to the dispatch executor); the poller goroutine itself
// is not pinned.
func WithNUMANode(node int) Option {
	return func(c *facade.Config) { c.NUMANode = node }
}

// WithDeviceMinor sets the minor number the chardev surface answers to.
func WithDeviceMinor(minor int) Option {
	return func(c *facade.Config) { c.DeviceMinor = minor }
}

// Guest is the Guest-side peer: it maps the shared region read/write
// but never allocates from the arena directly, instead asking the Host
// via req or conn.
type Guest struct {
	f *facade.Facade
}

// New builds a Guest-role Facade over shared, sized for capacity ring
// slots and applying opts on top of facade.DefaultConfig.
func New(shared []byte, capacity uint32, localNode, remoteNode uint32, regs pci.Registers, opts ...Option) (*Guest, error) {
	cfg := facade.DefaultConfig()
	cfg.Role = port.RoleGuest
	cfg.LocalNode = localNode
	cfg.RemoteNode = remoteNode
	cfg.RingCapacity = capacity
	for _, o := range opts {
		o(cfg)
	}
	f, err := facade.New(cfg, shared, regs)
	if err != nil {
		return nil, fmt.Errorf("guest: %w", err)
	}
	return &Guest{f: f}, nil
}

// Start attaches the poller and opens the chardev surface.
func (g *Guest) Start(ctx context.Context) error { return g.f.Start(ctx) }

// Stop tears the Guest side down.
func (g *Guest) Stop() error { return g.f.Stop() }

// Facade exposes the underlying Facade for lower-level access.
func (g *Guest) Facade() *facade.Facade { return g.f }

// Connect allocates a socket in namespaceIndex, marks it listening for
// the eventual accept, and sends a conn message to the Host over the
// system-wide port. Callers poll the returned socket's State until it
// reaches StateBound.
func (g *Guest) Connect(name string, namespaceIndex int) (*socket.Socket, error) {
	ep := g.f.Endpoint()
	s, err := ep.AllocSocket(name, namespaceIndex)
	if err != nil {
		return nil, err
	}
	if err := s.Listen(); err != nil {
		return nil, err
	}
	ep.MarkListening(s)
	if err := s.Connect(ep.SysPort(), protocol.MsgConn); err != nil {
		return nil, err
	}
	return s, nil
}

// WaitBound polls s until it reaches StateBound, or ctx is cancelled,
// or the socket is closed first.
func WaitBound(ctx context.Context, s *socket.Socket) error {
	for {
		switch s.State() {
		case socket.StateBound:
			return nil
		case socket.StateClosed:
			return socket.ErrClosed
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// RegisterHandler installs an application handler for a (namespace,
// msg_type) pair, overriding or supplementing the control-protocol
// defaults installed at endpoint creation.
func (g *Guest) RegisterHandler(namespaceIndex int, msgType uint32, fn endpoint.Handler) error {
	return g.f.Endpoint().RegisterHandler(namespaceIndex, msgType, fn)
}

// Region exposes the mapped shared region.
func (g *Guest) Region() *shmem.Region { return g.f.Endpoint().Region() }
