// File: chardev/device.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Device is the generic file-like surface behind the character-device
// node: open/read/write/release/ioctl. The real
// VFS plumbing (module load/unload, minor-number registration with the
// kernel) is explicitly out of scope; Device only implements the
// semantics those operations forward, over one Endpoint's primary
// socket. Signature shape (Read/Write(buf []byte) (int, error)) is
// grounded on api/interfaces.go and api/transport.go's file-like
// contracts.

package chardev

import (
	"context"

	"github.com/momentics/ivshmsg/core/shmem"
	"github.com/momentics/ivshmsg/endpoint"
	"github.com/momentics/ivshmsg/pci"
	"github.com/momentics/ivshmsg/port"
	"github.com/momentics/ivshmsg/socket"
)

// Ioctl commands, magic 'f'.
const (
	IoctlRing       = 1
	IoctlReq        = 2
	IoctlIVPosition = 3
)

// Device binds one Endpoint's primary (system-wide) socket to a
// minor-number-gated file surface.
type Device struct {
	ep            *endpoint.Endpoint
	primary       *socket.Socket
	configuredMin int
	regs          pci.Registers
	open          bool
}

// New builds a Device over ep's system-wide socket, gated to
// respond only to configuredMinor.
func New(ep *endpoint.Endpoint, configuredMinor int, regs pci.Registers) *Device {
	return &Device{
		ep:            ep,
		primary:       ep.SysSocket(),
		configuredMin: configuredMinor,
		regs:          regs,
	}
}

// Open validates minor and marks the device usable.
func (d *Device) Open(minor int) error {
	if minor != d.configuredMin {
		return ErrNoSuchDevice
	}
	d.open = true
	return nil
}

// Release closes the per-open state; the endpoint itself survives.
func (d *Device) Release() {
	d.open = false
}

// Read dequeues one message on the primary bound socket and copies up
// to min(len(buf), payload_len) bytes from the arena into buf,
// returning the number of bytes copied. Guest-only.
func (d *Device) Read(ctx context.Context, buf []byte) (int, error) {
	if !d.open {
		return 0, ErrNotOpen
	}
	if d.ep.Role() != port.RoleGuest {
		return 0, ErrPermissionDenied
	}

	var n int
	err := d.primary.Recv(ctx, func(msg shmem.Message) error {
		n = d.copyFromArena(buf, msg)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (d *Device) copyFromArena(buf []byte, msg shmem.Message) int {
	body := d.ep.Region().ArenaBody()
	off := int(msg.PayloadOff)
	want := int(msg.PayloadLen)
	if want > len(buf) {
		want = len(buf)
	}
	if off < 0 || off+want > len(body) || want <= 0 {
		return 0
	}
	return copy(buf[:want], body[off:off+want])
}

// Write allocates len(buf) bytes in the arena, copies buf in, and
// enqueues an add message announcing it. Host-only.
func (d *Device) Write(buf []byte) (int, error) {
	if !d.open {
		return 0, ErrNotOpen
	}
	if d.ep.Role() != port.RoleHost {
		return 0, ErrPermissionDenied
	}
	off, err := d.ep.AddPayload(len(buf))
	if err != nil {
		return 0, err
	}
	body := d.ep.Region().ArenaBody()
	copy(body[off:int(off)+len(buf)], buf)

	ok, err := d.primary.SendAsync(shmem.Message{
		SrcNode:    d.ep.LocalNode(),
		MsgType:    2, // protocol.MsgAdd; chardev intentionally avoids importing protocol to stay a leaf package
		PayloadOff: off,
		PayloadLen: int64(len(buf)),
	})
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrRingFull
	}
	return len(buf), nil
}

// Ioctl implements the three IOCTL_* commands.
func (d *Device) Ioctl(cmd uint32, peerID uint16, arg uint32) (uint32, error) {
	if !d.open {
		return 0, ErrNotOpen
	}
	switch cmd {
	case IoctlRing:
		composite := uint32(peerID)<<16 | (arg & 0xffff)
		d.regs.SetDoorbell(composite)
		if bound := d.primary.BoundPort(); bound != nil {
			bound.Bump()
		}
		return 0, nil
	case IoctlReq:
		if d.ep.Role() == port.RoleHost {
			return 0, ErrPermissionDenied
		}
		d.primary.SendAsync(shmem.Message{
			SrcNode:    d.ep.LocalNode(),
			MsgType:    1, // protocol.MsgReq
			PayloadOff: arg,
		})
		return 0, nil
	case IoctlIVPosition:
		return d.ep.LocalNode(), nil
	default:
		return 0, ErrBadCommand
	}
}
