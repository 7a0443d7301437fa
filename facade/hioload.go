// File: facade/hioload.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Facade orchestrates the core subsystems of the ivshmsg substrate:
// region mapping, registry, protocol wiring, and the chardev surface,
// behind a single composable API for one-call setup on either side of
// the shared-memory link.

package facade

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/momentics/ivshmsg/adapters"
	"github.com/momentics/ivshmsg/api"
	"github.com/momentics/ivshmsg/arena"
	"github.com/momentics/ivshmsg/chardev"
	"github.com/momentics/ivshmsg/core/shmem"
	"github.com/momentics/ivshmsg/endpoint"
	"github.com/momentics/ivshmsg/pci"
	"github.com/momentics/ivshmsg/port"
	"github.com/momentics/ivshmsg/registry"
)

// Config exposes all configurable parameters for one side of an
// ivshmsg link.
type Config struct {
	Role            port.Role
	LocalNode       uint32
	RemoteNode      uint32
	RingCapacity    uint32
	ArenaTailSize   int
	DeviceMinor     int
	NUMANode        int
	CPUAffinity     bool
	EnableMetrics   bool
	EnableDebug     bool
	AttachTimeout   time.Duration
	ShutdownTimeout time.Duration

	// DispatchWorkers, when nonzero, runs handler dispatch on a worker
	// pool instead of inline on the poller goroutine. Ordering across
	// messages is not preserved when this is set.
	DispatchWorkers int
}

// DefaultConfig provides a baseline configuration for a Host side link
// talking to node 2, with a 64-slot system ring and ArenaTailSize set
// to 4MiB. New does not read ArenaTailSize: the Host's arena always
// spans the whole tail of the shared buffer it is given.
// Callers override fields (notably Role, RemoteNode) before New.
func DefaultConfig() *Config {
	return &Config{
		Role:            port.RoleHost,
		LocalNode:       1,
		RemoteNode:      2,
		RingCapacity:    64,
		ArenaTailSize:   4 * 1024 * 1024,
		DeviceMinor:     0,
		NUMANode:        -1,
		CPUAffinity:     true,
		EnableMetrics:   true,
		EnableDebug:     true,
		AttachTimeout:   5 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Facade is the main entry point, bundling the mapped Region, the
// Registry-managed Endpoint, the chardev file surface, and the
// control/affinity adapters carried over from the ambient stack.
type Facade struct {
	config   *Config
	region   *shmem.Region
	arena    *arena.Arena
	registry *registry.Registry
	endpoint *endpoint.Endpoint
	device   *chardev.Device
	regs     pci.Registers

	control  api.Control
	affinity api.Affinity
	executor api.Executor

	mu      sync.RWMutex
	started bool
}

// New maps shared into a Region for cfg.Role, builds an Endpoint
// through a fresh Registry, and binds a chardev.Device to it. shared
// must be sized at least shmem.MinSize(cfg.RingCapacity) plus whatever
// arena tail the Host side intends to serve requests from; regs is the
// BAR0 register surface (use pci.NewFakeRegisters for local demos).
func New(cfg *Config, shared []byte, regs pci.Registers) (*Facade, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	region, err := shmem.NewRegion(shared, cfg.RingCapacity, cfg.Role == port.RoleHost)
	if err != nil {
		return nil, fmt.Errorf("facade: region init: %w", err)
	}

	var a *arena.Arena
	if cfg.Role == port.RoleHost {
		a = arena.New(len(region.ArenaBody()))
	}

	f := &Facade{
		config:   cfg,
		region:   region,
		arena:    a,
		registry: registry.New(),
		regs:     regs,
	}

	f.control = adapters.NewControlAdapter()
	f.affinity = adapters.NewAffinityAdapter()

	ep, err := f.registry.CreateEndpoint(region, a, cfg.Role, cfg.LocalNode, cfg.RemoteNode)
	if err != nil {
		return nil, fmt.Errorf("facade: create endpoint: %w", err)
	}
	f.endpoint = ep
	f.device = chardev.New(ep, cfg.DeviceMinor, regs)

	f.control.SetConfig(map[string]any{
		"role":          cfg.Role.String(),
		"local_node":    cfg.LocalNode,
		"remote_node":   cfg.RemoteNode,
		"ring_capacity": cfg.RingCapacity,
	})

	return f, nil
}

// Start attaches the endpoint's poller and applies CPU/NUMA affinity.
func (f *Facade) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return nil
	}
	if f.config.CPUAffinity && f.config.NUMANode >= 0 {
		if err := f.affinity.Pin(-1, f.config.NUMANode); err != nil {
			log.Printf("facade: affinity pin warning: %v", err)
		}
	}
	if f.config.DispatchWorkers > 0 {
		f.executor = adapters.NewExecutorAdapter(f.config.DispatchWorkers, f.config.NUMANode)
		f.endpoint.SetDispatchExecutor(f.executor)
	}
	f.endpoint.Attach(ctx)
	if err := f.device.Open(f.config.DeviceMinor); err != nil {
		f.endpoint.Detach()
		return fmt.Errorf("facade: device open: %w", err)
	}
	if f.config.EnableMetrics {
		f.control.SetConfig(map[string]any{"metrics.enabled": true})
	}
	f.started = true
	return nil
}

// Stop tears down the poller, releases the device and affinity pin,
// and detaches the endpoint from the registry.
func (f *Facade) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.started {
		return nil
	}
	f.device.Release()
	f.endpoint.Detach()
	if closer, ok := f.executor.(interface{ Close() }); ok {
		closer.Close()
	}
	if err := f.affinity.Unpin(); err != nil {
		log.Printf("facade: affinity unpin warning: %v", err)
	}
	f.registry.Detach(f.config.RemoteNode, f.config.Role)
	f.registry.Close()
	f.started = false
	return nil
}

// Endpoint exposes the underlying Endpoint for callers that need
// socket-level access beyond the chardev file surface (Connect/Listen
// on ad-hoc namespaces).
func (f *Facade) Endpoint() *endpoint.Endpoint { return f.endpoint }

// Device exposes the bound chardev.Device (read/write/ioctl surface).
func (f *Facade) Device() *chardev.Device { return f.device }

// Registry exposes the Registry this Facade registered its endpoint
// into, letting callers issue Request() allocation calls or register
// additional handlers.
func (f *Facade) Registry() *registry.Registry { return f.registry }

// Control exposes the live config/metrics/debug surface.
func (f *Facade) Control() api.Control { return f.control }

// Request asks the Host side for a fresh arena allocation of size
// bytes, blocking until an add reply arrives or ctx expires. Only a
// Guest-side Facade gets an answer: a Guest ignores req, so a call
// from the Host side ends with ctx or the request timeout. See
// registry.Registry.Request.
func (f *Facade) Request(ctx context.Context, size int) (uint32, error) {
	return f.registry.Request(ctx, f.config.RemoteNode, f.config.Role, size)
}
