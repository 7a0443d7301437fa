// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// NUMA-aware executor using lock-free MPMC queue for task dispatch.

package concurrency

import (
	"errors"
	"sync"

	"github.com/eapache/queue"
)

// ErrExecutorClosed is returned by Submit once Close has run.
var ErrExecutorClosed = errors.New("concurrency: executor closed")

type TaskFunc func()

type Executor struct {
	queue *queue.Queue

	mu      sync.Mutex
	workers []*worker
	stop    chan struct{}
}

func (e *Executor) NumWorkers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.workers)
}

// Resize grows or shrinks the worker pool to newCount, spawning or
// stopping individual workers as needed. newCount <= 0 stops every
// worker, leaving the queue undrained until Resize grows it again.
func (e *Executor) Resize(newCount int) {
	if newCount < 0 {
		newCount = 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for len(e.workers) < newCount {
		w := &worker{exec: e, stop: make(chan struct{})}
		go w.run()
		e.workers = append(e.workers, w)
	}
	for len(e.workers) > newCount {
		last := e.workers[len(e.workers)-1]
		close(last.stop)
		e.workers = e.workers[:len(e.workers)-1]
	}
}

type worker struct {
	exec *Executor
	stop chan struct{}
}

func NewExecutor(numWorkers, numaNode int) *Executor {
	e := &Executor{
		queue: queue.New(),
		stop:  make(chan struct{}),
	}
	e.Resize(numWorkers)
	return e
}

func (e *Executor) Submit(task TaskFunc) error {
	select {
	case <-e.stop:
		return ErrExecutorClosed
	default:
		e.queue.Enqueue(task)
		return nil
	}
}

func (e *Executor) Close() {
	close(e.stop)
	e.Resize(0)
}

func (w *worker) run() {
	for {
		select {
		case <-w.stop:
			return
		default:
			if item, ok := w.exec.queue.Dequeue(); ok {
				if task, ok2 := item.(TaskFunc); ok2 {
					task()
				}
			}
		}
	}
}
