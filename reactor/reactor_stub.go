//go:build !linux && !windows
// +build !linux,!windows

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fallback for platforms with neither epoll nor IOCP: doorbell wake
// is simply unavailable, and callers fall back to pure polling.

package reactor

import "errors"

// NewReactor returns an error; this platform has no wait-for-fd
// primitive wired up.
func NewReactor() (EventReactor, error) {
	return nil, errors.New("reactor: no event reactor on this platform")
}
