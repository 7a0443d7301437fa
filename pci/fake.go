// File: pci/fake.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// FakeRegisters is an in-process stand-in for a real BAR0 register
// file, used by tests and local demos where no actual PCI
// device is present. Two FakeRegisters can be cross-wired so that
// writing one side's Doorbell triggers the other side's registered
// MSI-X callback, letting the doorbell-to-callback path be
// exercised without hardware.

package pci

import "sync/atomic"

// FakeRegisters implements Registers and MSIXController entirely in
// memory.
type FakeRegisters struct {
	intrMask   atomic.Uint32
	intrStatus atomic.Uint32
	ivPosition uint32
	doorbell   atomic.Uint32

	peer *FakeRegisters
	vec  InterruptCallback
}

// NewFakeRegisters builds a register file that reports ivPosition as
// this endpoint's node id.
func NewFakeRegisters(ivPosition uint32) *FakeRegisters {
	return &FakeRegisters{ivPosition: ivPosition}
}

// WireTo cross-connects two fakes so each side's SetDoorbell rings the
// other side's registered callback, simulating an MSI-X doorbell.
func WireTo(a, b *FakeRegisters) {
	a.peer = b
	b.peer = a
}

func (f *FakeRegisters) IntrMask() uint32       { return f.intrMask.Load() }
func (f *FakeRegisters) SetIntrMask(v uint32)   { f.intrMask.Store(v) }
func (f *FakeRegisters) IntrStatus() uint32     { return f.intrStatus.Load() }
func (f *FakeRegisters) SetIntrStatus(v uint32) { f.intrStatus.Store(v) }
func (f *FakeRegisters) IVPosition() uint32     { return f.ivPosition }
func (f *FakeRegisters) Doorbell() uint32       { return f.doorbell.Load() }

// SetDoorbell publishes v and, if a peer is wired and has a registered
// vector, invokes its callback with the low-16-bit MSI vector.
func (f *FakeRegisters) SetDoorbell(v uint32) {
	f.doorbell.Store(v)
	if f.peer != nil && f.peer.vec != nil {
		f.peer.vec(int(v & 0xffff))
	}
}

// RegisterVector implements MSIXController.
func (f *FakeRegisters) RegisterVector(vector int, cb InterruptCallback) error {
	f.vec = cb
	return nil
}
