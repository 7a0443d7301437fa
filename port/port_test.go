// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package port

import (
	"testing"

	"github.com/momentics/ivshmsg/core/shmem"
)

func sharedRegions(t *testing.T, capacity uint32) (host, guest *shmem.Region) {
	t.Helper()
	buf := make([]byte, shmem.MinSize(capacity)+4096)
	h, err := shmem.NewRegion(buf, capacity, true)
	if err != nil {
		t.Fatalf("host region: %v", err)
	}
	g, err := shmem.NewRegion(buf, capacity, false)
	if err != nil {
		t.Fatalf("guest region: %v", err)
	}
	return h, g
}

func TestPortHostToGuestRoundTrip(t *testing.T) {
	hostRegion, guestRegion := sharedRegions(t, 32)
	hostPort := New(hostRegion, RoleHost)
	guestPort := New(guestRegion, RoleGuest)

	if !hostPort.Send(shmem.Message{SrcNode: 1, MsgType: 9, PayloadOff: 42}) {
		t.Fatal("host send failed")
	}
	if !guestPort.Poll() {
		t.Fatal("guest should observe the bumped notifier")
	}
	msg, ok := guestPort.TryRecv()
	if !ok {
		t.Fatal("guest should receive the host's message")
	}
	if msg.PayloadOff != 42 || msg.MsgType != 9 {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestPortGuestToHostRoundTrip(t *testing.T) {
	hostRegion, guestRegion := sharedRegions(t, 32)
	hostPort := New(hostRegion, RoleHost)
	guestPort := New(guestRegion, RoleGuest)

	if !guestPort.Send(shmem.Message{SrcNode: 2, MsgType: 1, PayloadOff: 0xDEAD}) {
		t.Fatal("guest send failed")
	}
	if !hostPort.Poll() {
		t.Fatal("host should observe the bumped notifier")
	}
	msg, ok := hostPort.TryRecv()
	if !ok {
		t.Fatal("host should receive the guest's message")
	}
	if msg.PayloadOff != 0xDEAD {
		t.Fatalf("unexpected payload offset: %x", msg.PayloadOff)
	}
}

func TestPortPollFalseWhenNoNewMessages(t *testing.T) {
	hostRegion, guestRegion := sharedRegions(t, 32)
	_ = New(hostRegion, RoleHost)
	guestPort := New(guestRegion, RoleGuest)

	if guestPort.Poll() {
		t.Fatal("poll should be false with no prior activity")
	}
}
