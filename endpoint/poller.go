// File: endpoint/poller.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Poller drains the system-wide socket in a dedicated goroutine,
// auto-acking and dispatching every control-protocol message as it
// arrives. It is a direct simplification of
// internal/concurrency/eventloop.go's Run loop: a single inbox (the
// system-wide port's ring) instead of a channel, and the same idle
// backoff shape instead of blocking receive.
//
// Dispatch normally runs inline on the drain goroutine. SetExecutor
// installs a worker pool (adapters.NewExecutorAdapter) so a slow or
// blocking handler cannot stall the ring drain; ordering across
// messages is then no longer guaranteed, so callers with
// order-sensitive handlers should leave the executor unset.

package endpoint

import (
	"context"
	"log"
	"sync"

	"github.com/momentics/ivshmsg/api"
	"github.com/momentics/ivshmsg/core/shmem"
	"github.com/momentics/ivshmsg/socket"
)

// Poller owns the background goroutine that services one Endpoint's
// system-wide socket.
type Poller struct {
	ep *Endpoint

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	executor api.Executor
}

func newPoller(ep *Endpoint) *Poller {
	return &Poller{ep: ep}
}

// SetExecutor installs e as the handler dispatch pool. Passing nil
// reverts to inline dispatch on the drain goroutine. Safe to call
// before or after Start.
func (p *Poller) SetExecutor(e api.Executor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.executor = e
}

// Start launches the drain loop if it is not already running. The
// loop's lifetime is bound to ctx as well as to Stop, whichever comes
// first.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(runCtx)
}

// Stop cancels the drain loop and waits for it to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.cancel = nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)
	sys := p.ep.SysSocket()
	for {
		err := sys.Recv(ctx, func(msg shmem.Message) error {
			return p.dispatch(sys, msg)
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("ivshmsg: endpoint: poller recv error: %v", err)
		}
	}
}

func (p *Poller) dispatch(sys *socket.Socket, msg shmem.Message) error {
	p.mu.Lock()
	exec := p.executor
	p.mu.Unlock()
	if exec == nil {
		return p.ep.Dispatch(SysNamespace, sys, msg)
	}
	if err := exec.Submit(func() {
		if err := p.ep.Dispatch(SysNamespace, sys, msg); err != nil {
			log.Printf("ivshmsg: endpoint: async dispatch error: %v", err)
		}
	}); err != nil {
		return p.ep.Dispatch(SysNamespace, sys, msg)
	}
	return nil
}
