// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package endpoint

import (
	"context"
	"testing"
	"time"

	"github.com/momentics/ivshmsg/adapters"
	"github.com/momentics/ivshmsg/arena"
	"github.com/momentics/ivshmsg/core/shmem"
	"github.com/momentics/ivshmsg/port"
	"github.com/momentics/ivshmsg/socket"
)

func newPair(t *testing.T) (hostEp, guestEp *Endpoint) {
	t.Helper()
	const ringCap = 32
	buf := make([]byte, shmem.MinSize(ringCap)+64*1024)
	hostRegion, err := shmem.NewRegion(buf, ringCap, true)
	if err != nil {
		t.Fatalf("host region: %v", err)
	}
	guestRegion, err := shmem.NewRegion(buf, ringCap, false)
	if err != nil {
		t.Fatalf("guest region: %v", err)
	}
	a := arena.New(len(hostRegion.ArenaBody()))
	hostEp = New(hostRegion, a, port.RoleHost, 1, 2)
	guestEp = New(guestRegion, nil, port.RoleGuest, 2, 1)
	return hostEp, guestEp
}

func TestAllocSocketThenFreeReusesSlot(t *testing.T) {
	hostEp, _ := newPair(t)
	s1, err := hostEp.AllocSocket("svc", 1)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	hostEp.FreeSocket(s1)
	s2, err := hostEp.AllocSocket("svc2", 1)
	if err != nil {
		t.Fatalf("alloc after free: %v", err)
	}
	if s2.Name() != "svc2" {
		t.Fatalf("unexpected socket: %+v", s2)
	}
}

func TestAllocSocketExhaustion(t *testing.T) {
	hostEp, _ := newPair(t)
	for i := 0; i < MaxSocket; i++ {
		if _, err := hostEp.AllocSocket("x", 1); err != nil {
			t.Fatalf("alloc %d: %v", i, err)
		}
	}
	if _, err := hostEp.AllocSocket("overflow", 1); err != ErrNoFreeSocket {
		t.Fatalf("expected ErrNoFreeSocket, got %v", err)
	}
}

func TestAllocSocketRejectsBadNamespace(t *testing.T) {
	hostEp, _ := newPair(t)
	if _, err := hostEp.AllocSocket("x", MaxNamespace); err != ErrNamespaceRange {
		t.Fatalf("expected ErrNamespaceRange, got %v", err)
	}
}

func TestDispatchDropsUnregisteredMsgType(t *testing.T) {
	hostEp, _ := newPair(t)
	s, _ := hostEp.AllocSocket("svc", 1)
	if err := hostEp.Dispatch(1, s, shmem.Message{MsgType: 99}); err != nil {
		t.Fatalf("unregistered dispatch should be a silent drop, got %v", err)
	}
}

func TestRegisterAndDispatchHandler(t *testing.T) {
	hostEp, _ := newPair(t)
	s, _ := hostEp.AllocSocket("svc", 1)
	called := false
	if err := hostEp.RegisterHandler(1, 7, func(ep *Endpoint, sock *socket.Socket, msg shmem.Message) error {
		called = true
		return nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := hostEp.Dispatch(1, s, shmem.Message{MsgType: 7}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !called {
		t.Fatal("handler was not invoked")
	}
}

func TestBindSocketAtOffsetRoundTrip(t *testing.T) {
	hostEp, guestEp := newPair(t)
	hostSock, _ := hostEp.AllocSocket("a", 1)
	guestSock, _ := guestEp.AllocSocket("a", 1)

	off, err := hostEp.AddPayload(SocketBufSize)
	if err != nil {
		t.Fatalf("add payload: %v", err)
	}
	if err := hostEp.BindSocketAtOffset(hostSock, off, true); err != nil {
		t.Fatalf("host bind: %v", err)
	}
	if err := guestEp.BindSocketAtOffset(guestSock, off, false); err != nil {
		t.Fatalf("guest bind: %v", err)
	}

	if ok, err := hostSock.SendAsync(shmem.Message{SrcNode: 1, MsgType: 5, PayloadOff: 11}); err != nil || !ok {
		t.Fatalf("host send failed: ok=%v err=%v", ok, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var got shmem.Message
	if err := guestSock.Recv(ctx, func(m shmem.Message) error { got = m; return nil }); err != nil {
		t.Fatalf("guest recv: %v", err)
	}
	if got.PayloadOff != 11 || got.MsgType != 5 {
		t.Fatalf("unexpected message: %+v", got)
	}
}

func TestAttachDetachDrainsSysPort(t *testing.T) {
	hostEp, guestEp := newPair(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan shmem.Message, 1)
	if err := guestEp.RegisterHandler(SysNamespace, 9, func(ep *Endpoint, sock *socket.Socket, msg shmem.Message) error {
		received <- msg
		return nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	guestEp.Attach(ctx)
	defer guestEp.Detach()

	hostEp.SysPort().Send(shmem.Message{SrcNode: 1, MsgType: 9, PayloadOff: 0xAB})

	select {
	case msg := <-received:
		if msg.PayloadOff != 0xAB {
			t.Fatalf("unexpected message: %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the poller to dispatch")
	}
}

func TestSetDispatchExecutorRunsHandlersOffPollerGoroutine(t *testing.T) {
	hostEp, guestEp := newPair(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exec := adapters.NewExecutorAdapter(2, -1)
	guestEp.SetDispatchExecutor(exec)

	received := make(chan shmem.Message, 1)
	if err := guestEp.RegisterHandler(SysNamespace, 9, func(ep *Endpoint, sock *socket.Socket, msg shmem.Message) error {
		received <- msg
		return nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	guestEp.Attach(ctx)
	defer guestEp.Detach()

	hostEp.SysPort().Send(shmem.Message{SrcNode: 1, MsgType: 9, PayloadOff: 7})

	select {
	case msg := <-received:
		if msg.PayloadOff != 7 {
			t.Fatalf("unexpected message: %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the executor-dispatched handler")
	}
}
