// File: protocol/protocol.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// protocol carries the sys-namespace msg_type constants and their
// built-in handlers. Message type numbers and field
// semantics are ground-truthed against
// original_source/ringbuf/src/pcie.h and socket.c, not invented: the
// wire encoding must match a real ivshmem ring-buffer peer.

package protocol

import (
	"log"

	"github.com/momentics/ivshmsg/core/shmem"
	"github.com/momentics/ivshmsg/endpoint"
	"github.com/momentics/ivshmsg/socket"
)

// Control-protocol message types, from pcie.h.
const (
	MsgReq     uint32 = 1
	MsgAdd     uint32 = 2
	MsgFree    uint32 = 3
	MsgConn    uint32 = 8
	MsgAccept  uint32 = 9
	MsgDisconn uint32 = 10
	MsgKalive  uint32 = 11
	MsgAck     uint32 = 12
)

// InstallDefaultHandlers registers the eight built-in sys-namespace
// handlers on ep. Called once per
// Endpoint, by registry, after construction — never by Endpoint itself,
// which would otherwise need to import protocol and cycle back.
func InstallDefaultHandlers(ep *endpoint.Endpoint) {
	ep.RegisterHandler(endpoint.SysNamespace, MsgReq, handleReq)
	ep.RegisterHandler(endpoint.SysNamespace, MsgAdd, handleAdd)
	ep.RegisterHandler(endpoint.SysNamespace, MsgFree, handleFree)
	ep.RegisterHandler(endpoint.SysNamespace, MsgConn, handleConn)
	ep.RegisterHandler(endpoint.SysNamespace, MsgAccept, handleAccept)
	ep.RegisterHandler(endpoint.SysNamespace, MsgDisconn, handleDisconn)
	ep.RegisterHandler(endpoint.SysNamespace, MsgKalive, handleKalive)
	ep.RegisterHandler(endpoint.SysNamespace, MsgAck, handleAck)
}

// handleReq answers a Guest's allocation request by having the Host
// carve payload_len bytes out of the arena and reply with add carrying
// the new offset in payload_off. rbmsg_hd has no separate correlator
// field, so only one req can be outstanding per endpoint at a time;
// registry.Registry.Request enforces that serialization for callers
// that want req/add as a single synchronous call.
func handleReq(ep *endpoint.Endpoint, sock *socket.Socket, msg shmem.Message) error {
	if ep.Arena() == nil {
		log.Printf("ivshmsg: protocol: req received on a non-host endpoint, ignoring")
		return nil
	}
	off, err := ep.AddPayload(int(msg.PayloadLen))
	if err != nil {
		log.Printf("ivshmsg: protocol: req for %d bytes failed: %v", msg.PayloadLen, err)
		return nil
	}
	ep.SysPort().Send(shmem.Message{
		SrcNode:    ep.LocalNode(),
		MsgType:    MsgAdd,
		PayloadOff: off,
		PayloadLen: msg.PayloadLen,
	})
	return nil
}

// handleAdd is the Guest-side reply to req: the allocation it asked for
// now exists at payload_off. The built-in handler only logs; an
// application that wants the offset registers its own handler on
// MsgAdd instead.
func handleAdd(ep *endpoint.Endpoint, sock *socket.Socket, msg shmem.Message) error {
	log.Printf("ivshmsg: protocol: add: payload now at offset %d (%d bytes)", msg.PayloadOff, msg.PayloadLen)
	return nil
}

// handleFree releases a Host allocation the Guest is done with.
// payload_len carries the original allocation's length, since the Host
// needs it to validate the free.
func handleFree(ep *endpoint.Endpoint, sock *socket.Socket, msg shmem.Message) error {
	if ep.Arena() == nil {
		log.Printf("ivshmsg: protocol: free received on a non-host endpoint, ignoring")
		return nil
	}
	if err := ep.FreePayload(msg.PayloadOff, int(msg.PayloadLen)); err != nil {
		log.Printf("ivshmsg: protocol: free at offset %d failed: %v", msg.PayloadOff, err)
	}
	return nil
}

// handleConn is the Host-side handshake step: find the first listening
// socket in the namespace carried by payload_len, carve it a private
// sub-buffer, bind the Host's own socket to it, and reply with accept
// carrying the buffer's arena offset.
func handleConn(ep *endpoint.Endpoint, sysSock *socket.Socket, msg shmem.Message) error {
	if ep.Arena() == nil {
		log.Printf("ivshmsg: protocol: conn received on a non-host endpoint, ignoring")
		return nil
	}
	ns := int(msg.PayloadLen)
	target := ep.FindListening(ns)
	if target == nil {
		log.Printf("ivshmsg: protocol: conn for namespace %d: no listening socket", ns)
		return nil
	}
	off, err := ep.AddPayload(endpoint.SocketBufSize)
	if err != nil {
		log.Printf("ivshmsg: protocol: conn for namespace %d: %v", ns, err)
		return nil
	}
	if err := ep.BindSocketAtOffset(target, off, true); err != nil {
		log.Printf("ivshmsg: protocol: conn for namespace %d: bind failed: %v", ns, err)
		return nil
	}
	ep.SysPort().Send(shmem.Message{
		SrcNode:    ep.LocalNode(),
		MsgType:    MsgAccept,
		IsSync:     1,
		PayloadOff: off,
		PayloadLen: int64(ns),
	})
	return nil
}

// handleAccept is the Guest-side reply: bind the listening socket
// registered for the namespace carried in payload_len to the buffer at
// payload_off, viewing (not initializing) the Host's layout.
func handleAccept(ep *endpoint.Endpoint, sysSock *socket.Socket, msg shmem.Message) error {
	ns := int(msg.PayloadLen)
	target := ep.FindListening(ns)
	if target == nil {
		log.Printf("ivshmsg: protocol: accept for namespace %d: no listening socket", ns)
		return nil
	}
	if err := ep.BindSocketAtOffset(target, msg.PayloadOff, false); err != nil {
		log.Printf("ivshmsg: protocol: accept for namespace %d: bind failed: %v", ns, err)
	}
	return nil
}

// handleDisconn records nothing about the peer's side of a bound
// socket. The built-in handler closes nothing itself (the Socket on this side stays
// usable until the local application calls Disconnect/Close); it only
// logs: half-open connections are expected and must be tolerated, not
// treated as an error.
func handleDisconn(ep *endpoint.Endpoint, sysSock *socket.Socket, msg shmem.Message) error {
	log.Printf("ivshmsg: protocol: disconn received from node %d", msg.SrcNode)
	return nil
}

// handleKalive is a pure no-op: the generic recv algorithm already sent
// the ack before dispatch reached here.
func handleKalive(ep *endpoint.Endpoint, sysSock *socket.Socket, msg shmem.Message) error {
	return nil
}

// handleAck is reached only for acks that arrive over the system-wide
// port itself (e.g. the auto-ack of an accept message); acks to a
// bound socket's own send_sync are consumed directly by Socket.SendSync
// and never reach a handler at all. Nothing here needs to wait on it,
// so it is a log-only no-op.
func handleAck(ep *endpoint.Endpoint, sysSock *socket.Socket, msg shmem.Message) error {
	log.Printf("ivshmsg: protocol: ack received from node %d for offset %d", msg.SrcNode, msg.PayloadOff)
	return nil
}
