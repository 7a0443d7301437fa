// File: endpoint/endpoint.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Endpoint owns one Region mapping plus the fixed-capacity namespace and
// socket tables: a small integer index, never an owning pointer, so the
// tables never form a cyclic ownership graph. It is the only type that
// imports arena, port, and socket together, and sits below protocol
// (which injects the built-in sys namespace handlers into it) and
// registry (which owns many Endpoints).
//
// Grounded on facade/hioload.go's Config/New/Start/Stop wiring shape
// and on internal/concurrency/eventloop.go's Run/Push/Stop lifecycle, which
// the Poller in poller.go adapts directly.

package endpoint

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/momentics/ivshmsg/api"
	"github.com/momentics/ivshmsg/arena"
	"github.com/momentics/ivshmsg/core/shmem"
	"github.com/momentics/ivshmsg/port"
	"github.com/momentics/ivshmsg/socket"
)

// MaxNamespace bounds the fixed namespace table.
const MaxNamespace = 16

// MaxSocket bounds the fixed per-endpoint socket table.
const MaxSocket = 64

// MaxMsgType bounds the per-namespace handler slice; control-protocol
// msg types top out at 12 (pcie.h), leaving generous headroom for
// application-registered namespaces.
const MaxMsgType = 64

// SocketRingCapacity is the ring depth of the private sub-buffer an
// accepted socket is bound to.
// Must be identical on both peers: it is never renegotiated, only the
// arena offset travels on the wire.
const SocketRingCapacity = 64

// SocketBufSize is the number of arena bytes a per-socket sub-buffer
// occupies, derived the same way a Region derives its own minimum size.
var SocketBufSize = int(shmem.MinSize(SocketRingCapacity))

// Handler processes one received message for a given (namespace,
// msg_type) pair. sock is the socket the message arrived on (the
// system-wide socket for control-protocol types). Returning an error
// only logs; it never tears down the endpoint or the socket.
type Handler func(ep *Endpoint, sock *socket.Socket, msg shmem.Message) error

// Endpoint binds one Region to one local role and owns the sockets and
// namespace handler tables addressed from it.
type Endpoint struct {
	region *shmem.Region
	arena  *arena.Arena // nil on Guest
	role   port.Role

	localNode  uint32
	remoteNode uint32

	sysPort   *port.Port
	sysSocket socket.Socket

	mu        sync.Mutex
	sockets   [MaxSocket]socket.Socket
	handlers  [MaxNamespace][MaxMsgType]Handler
	listening map[int]*socket.Socket // namespace index -> listening socket, for accept lookup

	poller *Poller
}

// New builds an Endpoint over region for role. a must be non-nil iff
// role is RoleHost.
func New(region *shmem.Region, a *arena.Arena, role port.Role, localNode, remoteNode uint32) *Endpoint {
	ep := &Endpoint{
		region:     region,
		arena:      a,
		role:       role,
		localNode:  localNode,
		remoteNode: remoteNode,
		listening:  make(map[int]*socket.Socket),
	}
	ep.sysPort = port.New(region, role)
	ep.sysSocket.Reset("sys", SysNamespace, role, localNode)
	ep.sysSocket.SetExpectedRemote(remoteNode)
	ep.sysSocket.Bind(ep.sysPort)
	ep.poller = newPoller(ep)
	return ep
}

// SysNamespace is the reserved namespace index the control protocol's
// req/add/free/conn/accept/disconn/kalive/ack handlers live in.
const SysNamespace = 0

// Role returns the endpoint's local role.
func (ep *Endpoint) Role() port.Role { return ep.role }

// Region exposes the underlying mapping, e.g. for constructing
// per-socket sub-regions during accept handling.
func (ep *Endpoint) Region() *shmem.Region { return ep.region }

// Arena exposes the Host-only allocator. Returns nil on a Guest.
func (ep *Endpoint) Arena() *arena.Arena { return ep.arena }

// SysPort returns the port bound directly to the region, used by
// control-protocol handlers to reply (e.g. accept, ack).
func (ep *Endpoint) SysPort() *port.Port { return ep.sysPort }

// SysSocket returns the always-bound system-wide socket the poller
// drains.
func (ep *Endpoint) SysSocket() *socket.Socket { return &ep.sysSocket }

// SetDispatchExecutor installs a worker pool the poller submits
// handler invocations to instead of running them inline. Pass nil to
// go back to inline dispatch. See Poller.SetExecutor.
func (ep *Endpoint) SetDispatchExecutor(e api.Executor) {
	ep.poller.SetExecutor(e)
}

// LocalNode returns this endpoint's local node id.
func (ep *Endpoint) LocalNode() uint32 { return ep.localNode }

// RemoteNode returns the peer's node id.
func (ep *Endpoint) RemoteNode() uint32 { return ep.remoteNode }

// Attach starts the background poller draining the system-wide port.
// It is idempotent: a second call while the poller is running has no
// effect.
func (ep *Endpoint) Attach(ctx context.Context) {
	ep.poller.Start(ctx)
}

// Detach stops the poller and closes every live socket, causing any
// pending Recv/SendSync calls on them to return ErrCancelled.
func (ep *Endpoint) Detach() {
	ep.poller.Stop()
	ep.mu.Lock()
	defer ep.mu.Unlock()
	for i := range ep.sockets {
		if ep.sockets[i].InUse() {
			ep.sockets[i].Close()
		}
	}
	ep.listening = make(map[int]*socket.Socket)
}

// AllocSocket reserves a free slot in the fixed socket table and resets
// it to idle. It does not allocate an arena sub-buffer or bind the
// socket on either side; on the Host, the buffer is allocated and bound
// later by the conn handler, when a Guest connects to the namespace
// the socket listens on.
func (ep *Endpoint) AllocSocket(name string, namespaceIndex int) (*socket.Socket, error) {
	if namespaceIndex < 0 || namespaceIndex >= MaxNamespace {
		return nil, ErrNamespaceRange
	}
	ep.mu.Lock()
	defer ep.mu.Unlock()

	var s *socket.Socket
	for i := range ep.sockets {
		if !ep.sockets[i].InUse() {
			s = &ep.sockets[i]
			break
		}
	}
	if s == nil {
		return nil, ErrNoFreeSocket
	}
	s.Reset(name, namespaceIndex, ep.role, ep.localNode)
	s.SetExpectedRemote(ep.remoteNode)
	return s, nil
}

// FreeSocket releases a socket slot back to the table, closing it
// first if still open.
func (ep *Endpoint) FreeSocket(s *socket.Socket) {
	s.Close()
	ep.mu.Lock()
	defer ep.mu.Unlock()
	for ns, l := range ep.listening {
		if l == s {
			delete(ep.listening, ns)
		}
	}
}

// MarkListening records s as the listening socket for its namespace,
// so a later conn/accept can find it.
func (ep *Endpoint) MarkListening(s *socket.Socket) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.listening[s.NamespaceIndex()] = s
}

// FindListening returns the listening socket registered for namespace,
// or nil if none is currently listening there.
func (ep *Endpoint) FindListening(namespaceIndex int) *socket.Socket {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return ep.listening[namespaceIndex]
}

// RegisterHandler installs h for (namespaceIndex, msgType), overwriting
// any previous registration.
func (ep *Endpoint) RegisterHandler(namespaceIndex int, msgType uint32, h Handler) error {
	if namespaceIndex < 0 || namespaceIndex >= MaxNamespace {
		return ErrNamespaceRange
	}
	if msgType >= MaxMsgType {
		return ErrMsgTypeRange
	}
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.handlers[namespaceIndex][msgType] = h
	return nil
}

// UnregisterHandler removes a previously installed handler.
func (ep *Endpoint) UnregisterHandler(namespaceIndex int, msgType uint32) {
	if namespaceIndex < 0 || namespaceIndex >= MaxNamespace || msgType >= MaxMsgType {
		return
	}
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.handlers[namespaceIndex][msgType] = nil
}

// Dispatch looks up the handler registered for (namespaceIndex,
// msg.MsgType) and invokes it. An unregistered msg_type is dropped and
// logged, never treated as fatal.
func (ep *Endpoint) Dispatch(namespaceIndex int, sock *socket.Socket, msg shmem.Message) error {
	if namespaceIndex < 0 || namespaceIndex >= MaxNamespace || msg.MsgType >= MaxMsgType {
		log.Printf("ivshmsg: endpoint: dropping msg_type=%d: namespace/type out of range", msg.MsgType)
		return nil
	}
	ep.mu.Lock()
	h := ep.handlers[namespaceIndex][msg.MsgType]
	ep.mu.Unlock()
	if h == nil {
		log.Printf("ivshmsg: endpoint: dropping unknown msg_type=%d in namespace=%d", msg.MsgType, namespaceIndex)
		return nil
	}
	return h(ep, sock, msg)
}

// AddPayload allocates n bytes from the arena, returning their offset.
// Host-only; Guest callers get ErrNotHost.
func (ep *Endpoint) AddPayload(n int) (uint32, error) {
	if ep.arena == nil {
		return 0, ErrNotHost
	}
	off, ok := ep.arena.Alloc(n)
	if !ok {
		return 0, fmt.Errorf("endpoint: arena out of memory for %d bytes", n)
	}
	return off, nil
}

// FreePayload releases a previously allocated arena range. Host-only.
func (ep *Endpoint) FreePayload(offset uint32, n int) error {
	if ep.arena == nil {
		return ErrNotHost
	}
	return ep.arena.Free(offset, n)
}

// BindSocketAtOffset carves (or, with init=false, merely views) a
// SocketBufSize range of the arena body at offset and binds s's private
// port to it. Host calls this with init=true right after allocating the
// range; Guest calls it with init=false after learning offset from an
// accept message, constructing the identical ring layout over the same
// shared bytes.
func (ep *Endpoint) BindSocketAtOffset(s *socket.Socket, offset uint32, init bool) error {
	body := ep.region.ArenaBody()
	end := int(offset) + SocketBufSize
	if end > len(body) {
		return fmt.Errorf("endpoint: socket buffer at offset %d exceeds arena body (len %d)", offset, len(body))
	}
	sub, err := shmem.NewRegion(body[offset:end], SocketRingCapacity, init)
	if err != nil {
		return fmt.Errorf("endpoint: binding socket buffer: %w", err)
	}
	return s.Bind(port.New(sub, ep.role))
}
