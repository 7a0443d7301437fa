package facade_test

import (
	"context"
	"testing"
	"time"

	"github.com/momentics/ivshmsg/core/shmem"
	"github.com/momentics/ivshmsg/facade"
	"github.com/momentics/ivshmsg/pci"
	"github.com/momentics/ivshmsg/port"
)

func newLinkedFacades(t *testing.T) (host, guest *facade.Facade) {
	t.Helper()
	const capacity = 32
	shared := make([]byte, shmem.MinSize(capacity)+64*1024)

	hostCfg := facade.DefaultConfig()
	hostCfg.Role = port.RoleHost
	hostCfg.LocalNode, hostCfg.RemoteNode = 1, 2
	hostCfg.RingCapacity = capacity
	hostRegs := pci.NewFakeRegisters(1)

	guestCfg := facade.DefaultConfig()
	guestCfg.Role = port.RoleGuest
	guestCfg.LocalNode, guestCfg.RemoteNode = 2, 1
	guestCfg.RingCapacity = capacity
	guestRegs := pci.NewFakeRegisters(2)
	pci.WireTo(hostRegs, guestRegs)

	var err error
	host, err = facade.New(hostCfg, shared, hostRegs)
	if err != nil {
		t.Fatalf("host facade: %v", err)
	}
	guest, err = facade.New(guestCfg, shared, guestRegs)
	if err != nil {
		t.Fatalf("guest facade: %v", err)
	}
	return host, guest
}

func TestFacadeStartStopLifecycle(t *testing.T) {
	host, guest := newLinkedFacades(t)
	ctx := context.Background()

	if err := host.Start(ctx); err != nil {
		t.Fatalf("host start: %v", err)
	}
	if err := guest.Start(ctx); err != nil {
		t.Fatalf("guest start: %v", err)
	}

	if got := host.Control().GetConfig()["role"]; got != "host" {
		t.Fatalf("unexpected role in control config: %v", got)
	}

	if err := host.Stop(); err != nil {
		t.Fatalf("host stop: %v", err)
	}
	if err := guest.Stop(); err != nil {
		t.Fatalf("guest stop: %v", err)
	}
}

func TestFacadeStartIsIdempotent(t *testing.T) {
	host, _ := newLinkedFacades(t)
	ctx := context.Background()
	if err := host.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := host.Start(ctx); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if err := host.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestFacadeRequestRoundTrip(t *testing.T) {
	host, guest := newLinkedFacades(t)
	ctx := context.Background()
	if err := host.Start(ctx); err != nil {
		t.Fatalf("host start: %v", err)
	}
	if err := guest.Start(ctx); err != nil {
		t.Fatalf("guest start: %v", err)
	}
	defer host.Stop()
	defer guest.Stop()

	reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	off, err := guest.Request(reqCtx, 128)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	_ = off
}
