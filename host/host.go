// File: host/host.go
// Package host wires a Facade as the Host side of an ivshmsg link: the
// peer that owns the arena and answers req/conn control messages.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package host

import (
	"context"
	"fmt"

	"github.com/momentics/ivshmsg/core/shmem"
	"github.com/momentics/ivshmsg/endpoint"
	"github.com/momentics/ivshmsg/facade"
	"github.com/momentics/ivshmsg/pci"
	"github.com/momentics/ivshmsg/port"
	"github.com/momentics/ivshmsg/socket"
)

// Option customizes Host construction.
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

// Host is the Host-side peer: it maps the shared region as allocator
// owner and listens for Guest connections on application namespaces.
type Host struct {
	f *facade.Facade
}

// New builds a Host-role Facade over shared, sized for capacity ring
// slots and applying opts on top of facade.DefaultConfig.
func New(shared []byte, capacity uint32, localNode, remoteNode uint32, regs pci.Registers, opts ...Option) (*Host, error) {
	cfg := facade.DefaultConfig()
	cfg.Role = port.RoleHost
	cfg.LocalNode = localNode
	cfg.RemoteNode = remoteNode
	cfg.RingCapacity = capacity
	for _, o := range opts {
		o(cfg)
	}
	f, err := facade.New(cfg, shared, regs)
	if err != nil {
		return nil, fmt.Errorf("host: %w", err)
	}
	return &Host{f: f}, nil
}

// Start attaches the poller and opens the chardev surface.
func (h *Host) Start(ctx context.Context) error { return h.f.Start(ctx) }

// Stop tears the Host side down.
func (h *Host) Stop() error { return h.f.Stop() }

// Facade exposes the underlying Facade for lower-level access.
func (h *Host) Facade() *facade.Facade { return h.f }

// Listen allocates a socket in namespaceIndex, marks it listening, and
// returns it so the caller can Bind once a Guest's conn arrives. The
// control protocol's built-in conn handler performs that Bind
// automatically; Listen is what callers use to pre-register the
// namespace a service lives in before any Guest connects.
func (h *Host) Listen(name string, namespaceIndex int) (*socket.Socket, error) {
	ep := h.f.Endpoint()
	s, err := ep.AllocSocket(name, namespaceIndex)
	if err != nil {
		return nil, err
	}
	if err := s.Listen(); err != nil {
		return nil, err
	}
	ep.MarkListening(s)
	return s, nil
}

// WaitBound polls s until it transitions out of StateListening, or ctx
// is cancelled first. Useful in tests and small demos that don't want
// to hand-roll a poll loop around socket.State.
func WaitBound(ctx context.Context, s *socket.Socket) error {
	for {
		if s.State() != socket.StateListening {
			return nil
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
func (h *Host) RegisterHandler(namespaceIndex int, msgType uint32, fn endpoint.Handler) error {
	return h.f.Endpoint().RegisterHandler(namespaceIndex, msgType, fn)
}

// Region exposes the mapped shared region, e.g. for a caller that
// wants to inspect the arena body directly.
func (h *Host) Region() *shmem.Region { return h.f.Endpoint().Region() }
