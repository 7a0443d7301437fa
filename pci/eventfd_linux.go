//go:build linux
// +build linux

// File: pci/eventfd_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// EventFDRegisters is a real (non-simulated) doorbell path: SetDoorbell
// writes to a Linux eventfd, and a background goroutine blocked in
// reactor.NewReactor()'s epoll wait wakes and invokes the registered
// MSI-X callback. This replaces FakeRegisters' direct in-process call
// for processes that are not cross-wired in memory (e.g. a Host and
// Guest that are separate OS processes sharing the eventfd by fd
// passing, which is out of scope here — this type is exercised
// single-process, looping its own doorbell back to its own vector).

package pci

import (
	"encoding/binary"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/momentics/ivshmsg/reactor"
)

// EventFDRegisters implements Registers and MSIXController backed by a
// real eventfd(2) and epoll(7) wait loop.
type EventFDRegisters struct {
	intrMask   atomic.Uint32
	intrStatus atomic.Uint32
	ivPosition uint32
	doorbell   atomic.Uint32

	fd   int
	vec  InterruptCallback
	vnum int

	react reactor.EventReactor
	stop  chan struct{}
	done  chan struct{}
}

// NewEventFDRegisters creates an eventfd and a Linux reactor bound to
// it. Close releases both.
func NewEventFDRegisters(ivPosition uint32) (*EventFDRegisters, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	react, err := reactor.NewReactor()
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := react.Register(uintptr(fd), 0); err != nil {
		react.Close()
		unix.Close(fd)
		return nil, err
	}
	return &EventFDRegisters{
		ivPosition: ivPosition,
		fd:         fd,
		react:      react,
		stop:       make(chan struct{}),
	}, nil
}

func (f *EventFDRegisters) IntrMask() uint32       { return f.intrMask.Load() }
func (f *EventFDRegisters) SetIntrMask(v uint32)   { f.intrMask.Store(v) }
func (f *EventFDRegisters) IntrStatus() uint32     { return f.intrStatus.Load() }
func (f *EventFDRegisters) SetIntrStatus(v uint32) { f.intrStatus.Store(v) }
func (f *EventFDRegisters) IVPosition() uint32     { return f.ivPosition }
func (f *EventFDRegisters) Doorbell() uint32       { return f.doorbell.Load() }

// SetDoorbell publishes v and wakes the eventfd, which in turn wakes
// the reactor loop (once RegisterVector has started it).
func (f *EventFDRegisters) SetDoorbell(v uint32) {
	f.doorbell.Store(v)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	unix.Write(f.fd, buf[:])
}

// RegisterVector implements MSIXController: the first call starts the
// background wait loop; later calls just replace the callback.
func (f *EventFDRegisters) RegisterVector(vector int, cb InterruptCallback) error {
	f.vec = cb
	f.vnum = vector
	if f.done == nil {
		f.done = make(chan struct{})
		go f.run()
	}
	return nil
}

func (f *EventFDRegisters) run() {
	defer close(f.done)
	events := make([]reactor.Event, 1)
	for {
		select {
		case <-f.stop:
			return
		default:
		}
		n, err := f.react.Wait(events)
		if err != nil {
			return
		}
		select {
		case <-f.stop:
			return
		default:
		}
		if n == 0 {
			continue
		}
		var buf [8]byte
		unix.Read(f.fd, buf[:])
		if cb := f.vec; cb != nil {
			cb(f.vnum)
		}
	}
}

// Close stops the wait loop and releases the reactor and eventfd.
func (f *EventFDRegisters) Close() error {
	close(f.stop)
	if f.done != nil {
		// Wake the loop out of its blocking epoll wait so it sees stop.
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], 1)
		unix.Write(f.fd, buf[:])
		<-f.done
	}
	f.react.Close()
	return unix.Close(f.fd)
}
