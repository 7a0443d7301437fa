// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package protocol

import (
	"context"
	"testing"
	"time"

	"github.com/momentics/ivshmsg/arena"
	"github.com/momentics/ivshmsg/core/shmem"
	"github.com/momentics/ivshmsg/endpoint"
	"github.com/momentics/ivshmsg/port"
	"github.com/momentics/ivshmsg/socket"
)

func newPair(t *testing.T) (hostEp, guestEp *endpoint.Endpoint) {
	t.Helper()
	const ringCap = 32
	buf := make([]byte, shmem.MinSize(ringCap)+256*1024)
	hostRegion, err := shmem.NewRegion(buf, ringCap, true)
	if err != nil {
		t.Fatalf("host region: %v", err)
	}
	guestRegion, err := shmem.NewRegion(buf, ringCap, false)
	if err != nil {
		t.Fatalf("guest region: %v", err)
	}
	a := arena.New(len(hostRegion.ArenaBody()))
	hostEp = endpoint.New(hostRegion, a, port.RoleHost, 1, 2)
	guestEp = endpoint.New(guestRegion, nil, port.RoleGuest, 2, 1)
	InstallDefaultHandlers(hostEp)
	InstallDefaultHandlers(guestEp)
	return hostEp, guestEp
}

// TestHandshakeScenario walks a full conn/accept handshake end to end:
// the Guest listens in namespace 1, connects, and ends up with a
// private bound port indistinguishable in capability from the Host's.
func TestHandshakeScenario(t *testing.T) {
	hostEp, guestEp := newPair(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hostEp.Attach(ctx)
	guestEp.Attach(ctx)
	defer hostEp.Detach()
	defer guestEp.Detach()

	hostSock, err := hostEp.AllocSocket("svc", 1)
	if err != nil {
		t.Fatalf("host alloc: %v", err)
	}
	if err := hostSock.Listen(); err != nil {
		t.Fatalf("host listen: %v", err)
	}
	hostEp.MarkListening(hostSock)

	guestSock, err := guestEp.AllocSocket("svc", 1)
	if err != nil {
		t.Fatalf("guest alloc: %v", err)
	}
	if err := guestSock.Listen(); err != nil {
		t.Fatalf("guest listen: %v", err)
	}
	guestEp.MarkListening(guestSock)

	if err := guestSock.Connect(guestEp.SysPort(), MsgConn); err != nil {
		t.Fatalf("connect: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hostSock.State() == socket.StateBound && guestSock.State() == socket.StateBound {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if hostSock.State() != socket.StateBound {
		t.Fatalf("host socket did not bind, state=%v", hostSock.State())
	}
	if guestSock.State() != socket.StateBound {
		t.Fatalf("guest socket did not bind, state=%v", guestSock.State())
	}

	if ok, err := hostSock.SendAsync(shmem.Message{SrcNode: 1, MsgType: 42, PayloadOff: 7}); err != nil || !ok {
		t.Fatalf("data send over the newly bound socket failed: ok=%v err=%v", ok, err)
	}
	recvCtx, recvCancel := context.WithTimeout(context.Background(), time.Second)
	defer recvCancel()
	var got shmem.Message
	if err := guestSock.Recv(recvCtx, func(m shmem.Message) error { got = m; return nil }); err != nil {
		t.Fatalf("guest recv over private socket: %v", err)
	}
	if got.PayloadOff != 7 || got.MsgType != 42 {
		t.Fatalf("unexpected message over private socket: %+v", got)
	}
}

// TestReqAddFreeScenario exercises the req/add/free exchange directly:
// a req for N bytes gets answered with an add carrying a fresh offset,
// and a subsequent free releases it, all over the system-wide port
// without any prior handshake.
func TestReqAddFreeScenario(t *testing.T) {
	hostEp, guestEp := newPair(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hostEp.Attach(ctx)
	guestEp.Attach(ctx)
	defer hostEp.Detach()
	defer guestEp.Detach()

	added := make(chan shmem.Message, 1)
	guestEp.RegisterHandler(endpoint.SysNamespace, MsgAdd, func(ep *endpoint.Endpoint, sock *socket.Socket, msg shmem.Message) error {
		added <- msg
		return nil
	})

	before := hostEp.Arena().FreeBytes()
	guestEp.SysPort().Send(shmem.Message{SrcNode: 2, MsgType: MsgReq, PayloadOff: 0xDEAD, PayloadLen: 128})

	var addMsg shmem.Message
	select {
	case addMsg = <-added:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for add")
	}
	if addMsg.PayloadLen != 128 {
		t.Fatalf("unexpected add payload_len: %+v", addMsg)
	}
	if hostEp.Arena().FreeBytes() != before-128 {
		t.Fatalf("arena free bytes not reduced: before=%d after=%d", before, hostEp.Arena().FreeBytes())
	}

	guestEp.SysPort().Send(shmem.Message{SrcNode: 2, MsgType: MsgFree, PayloadOff: addMsg.PayloadOff, PayloadLen: 128})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hostEp.Arena().FreeBytes() == before {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if hostEp.Arena().FreeBytes() != before {
		t.Fatalf("free did not restore arena bytes: before=%d after=%d", before, hostEp.Arena().FreeBytes())
	}
}
