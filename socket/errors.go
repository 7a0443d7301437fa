// File: socket/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

import "errors"

var (
	// ErrClosed is returned by operations on a closed socket.
	ErrClosed = errors.New("socket: closed")
	// ErrNotListening is returned when accept-path binding is attempted
	// on a socket that never called Listen/Connect.
	ErrNotListening = errors.New("socket: not listening")
	// ErrNotBound is returned by send/recv operations before Bind.
	ErrNotBound = errors.New("socket: not bound")
	// ErrTimeout is returned when SendSync's deadline elapses first.
	ErrTimeout = errors.New("socket: sync wait timed out")
	// ErrCancelled is returned when a pending wait is aborted by detach.
	ErrCancelled = errors.New("socket: wait cancelled")
	// ErrDead is returned by Keepalive when no ack arrives in time.
	ErrDead = errors.New("socket: peer did not answer keepalive")
)
