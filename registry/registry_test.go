// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package registry

import (
	"context"
	"testing"
	"time"

	"github.com/momentics/ivshmsg/arena"
	"github.com/momentics/ivshmsg/core/shmem"
	"github.com/momentics/ivshmsg/port"
)

func newSharedRegions(t *testing.T, capacity uint32, tailSize int) (host, guest *shmem.Region) {
	t.Helper()
	buf := make([]byte, shmem.MinSize(capacity)+tailSize)
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

func TestCreateEndpointRejectsDuplicate(t *testing.T) {
	r := New()
	defer r.Close()
	hostRegion, _ := newSharedRegions(t, 32, 4096)
	a := arena.New(len(hostRegion.ArenaBody()))
	if _, err := r.CreateEndpoint(hostRegion, a, port.RoleHost, 1, 2); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := r.CreateEndpoint(hostRegion, a, port.RoleHost, 1, 2); err != ErrEndpointExists {
		t.Fatalf("expected ErrEndpointExists, got %v", err)
	}
}

func TestLookupMissReturnsFalse(t *testing.T) {
	r := New()
	defer r.Close()
	if _, ok := r.Lookup(99, port.RoleHost); ok {
		t.Fatal("expected a miss")
	}
}

func TestCreateSocketViaRegistry(t *testing.T) {
	r := New()
	defer r.Close()
	hostRegion, _ := newSharedRegions(t, 32, 4096)
	a := arena.New(len(hostRegion.ArenaBody()))
	if _, err := r.CreateEndpoint(hostRegion, a, port.RoleHost, 1, 2); err != nil {
		t.Fatalf("create endpoint: %v", err)
	}
	s, err := r.CreateSocket(2, port.RoleHost, "svc", 1)
	if err != nil {
		t.Fatalf("create socket: %v", err)
	}
	if s.Name() != "svc" {
		t.Fatalf("unexpected socket: %+v", s)
	}
}

func TestCreateSocketOnUnknownEndpointFails(t *testing.T) {
	r := New()
	defer r.Close()
	if _, err := r.CreateSocket(42, port.RoleHost, "svc", 1); err != ErrEndpointNotFound {
		t.Fatalf("expected ErrEndpointNotFound, got %v", err)
	}
}

func TestRequestReturnsAllocatedOffset(t *testing.T) {
	r := New()
	defer r.Close()
	hostRegion, guestRegion := newSharedRegions(t, 32, 64*1024)
	a := arena.New(len(hostRegion.ArenaBody()))
	if _, err := r.CreateEndpoint(hostRegion, a, port.RoleHost, 1, 2); err != nil {
		t.Fatalf("create host endpoint: %v", err)
	}
	if _, err := r.CreateEndpoint(guestRegion, nil, port.RoleGuest, 2, 1); err != nil {
		t.Fatalf("create guest endpoint: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	off, err := r.Request(ctx, 1, port.RoleGuest, 256)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if off >= uint32(a.Size()) {
		t.Fatalf("offset %d out of arena bounds (%d)", off, a.Size())
	}
}

func TestRequestTimesOutWithoutHost(t *testing.T) {
	r := New()
	defer r.Close()
	_, guestRegion := newSharedRegions(t, 32, 4096)
	if _, err := r.CreateEndpoint(guestRegion, nil, port.RoleGuest, 2, 1); err != nil {
		t.Fatalf("create guest endpoint: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := r.Request(ctx, 1, port.RoleGuest, 64); err == nil {
		t.Fatal("expected a timeout error with no host endpoint answering")
	}
}

func TestDetachRemovesEndpoint(t *testing.T) {
	r := New()
	defer r.Close()
	hostRegion, _ := newSharedRegions(t, 32, 4096)
	a := arena.New(len(hostRegion.ArenaBody()))
	if _, err := r.CreateEndpoint(hostRegion, a, port.RoleHost, 1, 2); err != nil {
		t.Fatalf("create: %v", err)
	}
	r.Detach(2, port.RoleHost)
	if _, ok := r.Lookup(2, port.RoleHost); ok {
		t.Fatal("expected endpoint to be gone after detach")
	}
}
