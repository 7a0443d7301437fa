//go:build linux
// +build linux

// File: core/shmem/region_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux region backing: a MAP_SHARED|MAP_ANONYMOUS mapping stands in for
// the ivshmem BAR2 window. Two peers in two real processes would instead
// mmap the same PCI resource file or memfd; for the single-binary
// Host+Guest simulation this module targets, MapAnonymous is called once
// and the resulting slice is handed to both sides' Region, which is
// exactly the "one physical range, two independent virtual mappings"
// property the wire layout must be position-independent against.
//
// Grounded on internal/transport/transport_linux_uring.go's mmap of the
// io_uring SQ/CQ rings via golang.org/x/sys/unix.

package shmem

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Mapping is a closable handle over an OS-backed shared memory window.
type Mapping struct {
	buf []byte
}

// Bytes returns the mapped byte slice.
func (m *Mapping) Bytes() []byte { return m.buf }

// Close unmaps the region.
func (m *Mapping) Close() error {
	if m.buf == nil {
		return nil
	}
	err := unix.Munmap(m.buf)
	m.buf = nil
	return err
}

// MapAnonymous creates a new MAP_SHARED anonymous mapping of size bytes.
// MAP_SHARED (rather than MAP_PRIVATE) matters even for a single process:
// it is what makes the mapping eligible to be shared across fork/exec or
// handed to a second process via a real PCI resource fd in production.
func MapAnonymous(size int) (*Mapping, error) {
	if size <= 0 {
		return nil, fmt.Errorf("shmem: invalid mapping size %d", size)
	}
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("shmem: mmap: %w", err)
	}
	return &Mapping{buf: buf}, nil
}
