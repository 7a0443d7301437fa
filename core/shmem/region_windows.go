//go:build windows
// +build windows

// File: core/shmem/region_windows.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Windows region backing. There is no inter-process MAP_SHARED
// equivalent exercised by this module on Windows (a real deployment
// would use CreateFileMapping/MapViewOfFile against a shared PCI
// resource); VirtualAlloc gives us a single committed range usable for
// the in-process Host+Guest simulation this module targets, grounded on
// pool/numa_windows.go's VirtualAllocExNuma wrapper style.

package shmem

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Mapping is a closable handle over an OS-backed shared memory window.
type Mapping struct {
	buf []byte
	addr uintptr
}

// Bytes returns the mapped byte slice.
func (m *Mapping) Bytes() []byte { return m.buf }

// Close releases the committed region.
func (m *Mapping) Close() error {
	if m.addr == 0 {
		return nil
	}
	err := windows.VirtualFree(m.addr, 0, windows.MEM_RELEASE)
	m.addr = 0
	m.buf = nil
	return err
}

// MapAnonymous reserves and commits size bytes via VirtualAlloc.
func MapAnonymous(size int) (*Mapping, error) {
	if size <= 0 {
		return nil, fmt.Errorf("shmem: invalid mapping size %d", size)
	}
	addr, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, fmt.Errorf("shmem: VirtualAlloc: %w", err)
	}
	buf := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	return &Mapping{buf: buf, addr: addr}, nil
}
