// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package guest_test

import (
	"context"
	"testing"
	"time"

	"github.com/momentics/ivshmsg/core/shmem"
	"github.com/momentics/ivshmsg/guest"
	"github.com/momentics/ivshmsg/host"
	"github.com/momentics/ivshmsg/pci"
)

func TestGuestRequestAllocatesHostArenaSpace(t *testing.T) {
	const capacity = 32
	shared := make([]byte, shmem.MinSize(capacity)+64*1024)
	hostRegs := pci.NewFakeRegisters(1)
	guestRegs := pci.NewFakeRegisters(2)

	h, err := host.New(shared, capacity, 1, 2, hostRegs)
	if err != nil {
		t.Fatalf("host.New: %v", err)
	}
	g, err := guest.New(shared, capacity, 2, 1, guestRegs)
	if err != nil {
		t.Fatalf("guest.New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := h.Start(ctx); err != nil {
		t.Fatalf("host start: %v", err)
	}
	if err := g.Start(ctx); err != nil {
		t.Fatalf("guest start: %v", err)
	}
	defer h.Stop()
	defer g.Stop()

	reqCtx, cancel2 := context.WithTimeout(ctx, 2*time.Second)
	defer cancel2()
	off, err := g.Facade().Request(reqCtx, 512)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	body := h.Region().ArenaBody()
	if int(off) >= len(body) {
		t.Fatalf("offset %d out of bounds %d", off, len(body))
	}
}
