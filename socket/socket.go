// File: socket/socket.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Socket is the per-connection state machine: idle -> listening ->
// bound -> closed. There is no separate sync-wait state or flag: a
// SendSync call waits for its ack by polling the bound port itself,
// and no handler signals it. Behavior is grounded on
// original_source/ringbuf/src/socket.c's socket_connect/socket_accept/
// socket_send_sync/socket_receive/socket_keepalive.
//
// Socket never imports the endpoint or protocol packages: namespace
// dispatch is injected as a plain function value at Recv time, the same
// way internal/concurrency/eventloop.go takes handlers as values rather than
// reaching up to an owning type.

package socket

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/momentics/ivshmsg/core/shmem"
	"github.com/momentics/ivshmsg/port"
)

// State is one of the four socket lifecycle states.
type State int32

const (
	StateIdle State = iota
	StateListening
	StateBound
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateBound:
		return "bound"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DefaultKeepaliveTimeout is used by Keepalive when ctx carries no
// deadline of its own.
const DefaultKeepaliveTimeout = 10 * time.Second

// pollInterval is the backoff step used while blocking on a ring that
// currently has nothing to offer; grounded on internal/concurrency's
// exponential idle backoff, simplified to a fixed short step since
// sockets are a much smaller population than the executor's workers.
const pollInterval = 200 * time.Microsecond

// Socket is one entry of an Endpoint's fixed-capacity socket table.
// The zero value is an unused, idle slot.
type Socket struct {
	mu sync.Mutex

	name           string
	namespaceIndex int
	role           port.Role
	srcNode        uint32
	expectedRemote uint32
	inUse          bool
	state          State
	bound          *port.Port

	ackCh chan shmem.Message
}

// Reset reinitializes a socket slot for reuse. Called by the owning
// endpoint's AllocSocket/FreeSocket; never by application code directly.
func (s *Socket) Reset(name string, namespaceIndex int, role port.Role, srcNode uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
	s.namespaceIndex = namespaceIndex
	s.role = role
	s.srcNode = srcNode
	s.expectedRemote = 0
	s.inUse = true
	s.state = StateIdle
	s.bound = nil
	s.ackCh = make(chan shmem.Message, 1)
}

// SetExpectedRemote records the peer node id Recv should accept
// messages from. Left at the zero value (the default after Reset), no
// source check is performed — raw sockets not owned by an Endpoint
// (e.g. in package-local tests) keep their old unchecked behavior.
// Called by the owning endpoint right after Reset/AllocSocket.
func (s *Socket) SetExpectedRemote(remoteNode uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expectedRemote = remoteNode
}

// Name returns the socket's registration name.
func (s *Socket) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// NamespaceIndex returns the namespace this socket was allocated in.
func (s *Socket) NamespaceIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.namespaceIndex
}

// State returns the socket's current lifecycle state.
func (s *Socket) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// InUse reports whether this slot currently holds a live socket.
func (s *Socket) InUse() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inUse
}

// Listen transitions idle -> listening. A second Listen call while
// already listening is a no-op.
func (s *Socket) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateClosed:
		return ErrClosed
	case StateListening:
		return nil
	case StateIdle:
		s.state = StateListening
		return nil
	default:
		return nil
	}
}

// Connect transitions idle -> listening and emits a conn control
// message over sysPort. namespaceIndex travels in PayloadLen so the Host's
// conn handler knows which namespace to accept into. msgType is the
// protocol package's conn constant, passed in rather than imported to
// keep socket free of a dependency on protocol.
func (s *Socket) Connect(sysPort *port.Port, msgType uint32) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.state = StateListening
	srcNode := s.srcNode
	ns := s.namespaceIndex
	s.mu.Unlock()

	sysPort.Send(shmem.Message{
		SrcNode:    srcNode,
		MsgType:    msgType,
		PayloadLen: int64(ns),
	})
	return nil
}

// Bind moves the socket to bound from any state except closed, installing the private port a
// conn/accept handshake produced. It is also used on the Host side of an accept, which binds
// its own listening socket to the freshly allocated buffer.
func (s *Socket) Bind(p *port.Port) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrClosed
	}
	s.bound = p
	s.state = StateBound
	return nil
}

// BoundPort exposes the socket's private port, or nil before Bind.
func (s *Socket) BoundPort() *port.Port {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound
}

// SendAsync enqueues msg on the socket's bound port without waiting for
// an ack. Returns false if the ring is full or the
// socket is not yet bound.
func (s *Socket) SendAsync(msg shmem.Message) (bool, error) {
	s.mu.Lock()
	bound := s.bound
	state := s.state
	s.mu.Unlock()
	if state == StateClosed {
		return false, ErrClosed
	}
	if bound == nil {
		return false, ErrNotBound
	}
	return bound.Send(msg), nil
}

// SendSync sends msg with IsSync set and blocks until the peer's ack
// arrives on the same bound port, ctx is done, or the deadline elapses. It polls the port directly rather
// than going through any shared dispatcher, mirroring
// socket_send_sync's private wait loop in the original implementation.
func (s *Socket) SendSync(ctx context.Context, msg shmem.Message) (shmem.Message, error) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return shmem.Message{}, ErrClosed
	}
	bound := s.bound
	s.mu.Unlock()
	if bound == nil {
		return shmem.Message{}, ErrNotBound
	}

	msg.IsSync = 1
	if !bound.Send(msg) {
		return shmem.Message{}, ErrNotBound
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultKeepaliveTimeout)
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		bound.Poll()
		for {
			reply, ok := bound.TryRecv()
			if !ok {
				break
			}
			if reply.MsgType == AckMsgType && reply.PayloadOff == msg.PayloadOff {
				return reply, nil
			}
			// Not our ack (e.g. a data message interleaved while
			// waiting); requeue semantics are out of scope for a
			// single-waiter SPSC port, so it is dropped here without
			// reaching any dispatcher.
		}
		select {
		case <-ctx.Done():
			return shmem.Message{}, ErrCancelled
		case <-ticker.C:
			if s.State() == StateClosed {
				return shmem.Message{}, ErrCancelled
			}
			if time.Now().After(deadline) {
				return shmem.Message{}, ErrTimeout
			}
		}
	}
}

// AckMsgType is the control-protocol ack message type (pcie.h's
// msg_type_ack = 12). Declared here, not in protocol, so SendSync can
// recognize a reply without importing protocol (which itself imports
// endpoint and would cycle back through socket otherwise).
const AckMsgType = 12

// Recv blocks until a message is available on the socket's bound port,
// ctx is cancelled, or the socket closes. A message whose SrcNode does
// not match the configured remote node id (SetExpectedRemote) is
// logged at warn and dropped before dispatch ever sees it; Recv then
// returns nil, the same way an unknown msg_type is dropped further
// downstream in Dispatch. When the message carries
// IsSync it first sends an ack with the same PayloadOff and this
// socket's own node id as SrcNode, then calls dispatch with the message.
// dispatch's error is returned to the caller but never closes the
// socket: an unknown msg_type is expected to be dropped and logged by
// dispatch, not treated as fatal.
func (s *Socket) Recv(ctx context.Context, dispatch func(shmem.Message) error) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrClosed
	}
	bound := s.bound
	srcNode := s.srcNode
	expectedRemote := s.expectedRemote
	s.mu.Unlock()
	if bound == nil {
		return ErrNotBound
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		bound.Poll()
		if msg, ok := bound.TryRecv(); ok {
			if expectedRemote != 0 && msg.SrcNode != expectedRemote {
				log.Printf("ivshmsg: socket: dropping message from unexpected src_node=%d (want %d)", msg.SrcNode, expectedRemote)
				return nil
			}
			if msg.IsSync != 0 {
				bound.Send(shmem.Message{
					SrcNode:    srcNode,
					MsgType:    AckMsgType,
					PayloadOff: msg.PayloadOff,
				})
			}
			return dispatch(msg)
		}
		select {
		case <-ctx.Done():
			return ErrCancelled
		case <-ticker.C:
			if s.State() == StateClosed {
				return ErrCancelled
			}
		}
	}
}

// Keepalive sends a kalive sync message over the bound port and waits
// for its ack, returning ErrDead if none arrives before ctx's deadline
// (or DefaultKeepaliveTimeout if ctx carries none).
func (s *Socket) Keepalive(ctx context.Context, msgType uint32, srcNode uint32) error {
	_, err := s.SendSync(ctx, shmem.Message{SrcNode: srcNode, MsgType: msgType})
	if err == ErrTimeout || err == ErrCancelled {
		return ErrDead
	}
	return err
}

// Disconnect transitions bound -> closed, emitting a disconn message
// best-effort; failure to enqueue it is not reported
// since the socket is going away regardless.
func (s *Socket) Disconnect(msgType uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bound != nil {
		s.bound.Send(shmem.Message{SrcNode: s.srcNode, MsgType: msgType})
	}
	s.state = StateClosed
}

// Close forces the socket into the closed state without emitting
// anything on the wire; used when the underlying region itself is
// going away.
func (s *Socket) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
	s.inUse = false
}
