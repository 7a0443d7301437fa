// File: pci/registers.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// pci specifies, as a pure Go interface, the platform service behind
// the ivshmem device: a BAR0 register file and a BAR2 shared-memory
// window. Enumerating and binding the real PCI device is explicitly
// out of this system's scope; the core only needs something that
// satisfies Registers to drive the doorbell path from chardev's
// IOCTL_RING.

package pci

// Register offsets within BAR0.
const (
	RegIntrMask   = 0x00
	RegIntrStatus = 0x04
	RegIVPosition = 0x08
	RegDoorbell   = 0x0c
)

// Registers is the minimal BAR0 surface the core requires: four
// 32-bit registers, read/write. A real platform binds these to an
// ioremap'd MMIO window; tests and local demos use an in-process fake.
type Registers interface {
	// IntrMask reads/writes the interrupt mask register.
	IntrMask() uint32
	SetIntrMask(v uint32)

	// IntrStatus reads/writes the interrupt status register.
	IntrStatus() uint32
	SetIntrStatus(v uint32)

	// IVPosition returns this endpoint's node id, as published by the
	// platform at device-bind time.
	IVPosition() uint32

	// Doorbell reads/writes the doorbell register: low 16 bits the MSI
	// vector, high 16 bits the peer id.
	Doorbell() uint32
	SetDoorbell(v uint32)
}

// InterruptCallback is invoked when an MSI-X vector fires. The core
// never requires interrupts for correctness: the endpoint Poller
// works by pure polling and never consults a registered callback.
type InterruptCallback func(vector int)

// MSIXController is the optional interrupt-registration surface. A
// platform with no MSI-X support simply never implements it; callers
// type-assert for it and fall back to pure polling.
type MSIXController interface {
	RegisterVector(vector int, cb InterruptCallback) error
}

// Device bundles the BAR0 register file with the BAR2 shared window a
// platform hands the core at attach time.
type Device struct {
	Regs   Registers
	Shared []byte // BAR2: the mapped Region bytes
}
