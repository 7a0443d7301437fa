//go:build windows
// +build windows

// File: reactor/reactor_windows.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Windows IOCP-based EventReactor.

package reactor

import (
	"golang.org/x/sys/windows"
)

type windowsReactor struct {
	iocp windows.Handle
}

// NewReactor constructs the Windows IOCP-backed reactor.
func NewReactor() (EventReactor, error) {
	port, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 0)
	if err != nil {
		return nil, err
	}
	return &windowsReactor{iocp: port}, nil
}

func (r *windowsReactor) Register(fd uintptr, udata uintptr) error {
	h := windows.Handle(fd)
	_, err := windows.CreateIoCompletionPort(h, r.iocp, uintptr(udata), 0)
	return err
}

func (r *windowsReactor) Wait(events []Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	var bytes uint32
	var key uintptr
	var overlapped *windows.Overlapped
	err := windows.GetQueuedCompletionStatus(r.iocp, &bytes, &key, &overlapped, windows.INFINITE)
	if err != nil {
		return 0, err
	}
	events[0] = Event{Fd: uintptr(bytes), UserData: key}
	return 1, nil
}

func (r *windowsReactor) Close() error {
	return windows.CloseHandle(r.iocp)
}
