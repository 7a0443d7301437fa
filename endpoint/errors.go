// File: endpoint/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package endpoint

import "errors"

var (
	// ErrNoFreeSocket is returned when the fixed-capacity socket table
	// has no free slot left.
	ErrNoFreeSocket = errors.New("endpoint: no free socket slot")
	// ErrNamespaceRange is returned for an out-of-range namespace index.
	ErrNamespaceRange = errors.New("endpoint: namespace index out of range")
	// ErrMsgTypeRange is returned for an out-of-range msg_type.
	ErrMsgTypeRange = errors.New("endpoint: msg_type out of range")
	// ErrNotHost is returned by arena-backed operations on a Guest
	// endpoint, which never owns the allocator.
	ErrNotHost = errors.New("endpoint: arena operations require the host role")
	// ErrDetached is returned by operations attempted after Detach.
	ErrDetached = errors.New("endpoint: detached")
	// ErrUnknownSocket is returned when a listening socket can't be
	// found for a given namespace during accept handling.
	ErrUnknownSocket = errors.New("endpoint: no listening socket for namespace")
)
