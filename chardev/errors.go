// File: chardev/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package chardev

import "errors"

var (
	// ErrNoSuchDevice is returned by Open for any minor number other
	// than the one the Device was configured with.
	ErrNoSuchDevice = errors.New("chardev: no such device")
	// ErrPermissionDenied is returned when Read is attempted on a Host
	// endpoint, Write on a Guest endpoint, or IOCTL_REQ on a Host.
	ErrPermissionDenied = errors.New("chardev: permission denied")
	// ErrBadCommand is returned by Ioctl for an unrecognized command.
	ErrBadCommand = errors.New("chardev: bad command")
	// ErrNotOpen is returned by Read/Write/Ioctl before Open.
	ErrNotOpen = errors.New("chardev: device not open")
	// ErrRingFull is returned by Write when the primary socket's ring
	// has no free slot for the add message.
	ErrRingFull = errors.New("chardev: ring full")
)
