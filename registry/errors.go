// File: registry/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package registry

import "errors"

var (
	// ErrEndpointExists is returned when attaching a (remoteNode, role)
	// pair that is already registered.
	ErrEndpointExists = errors.New("registry: endpoint already attached")
	// ErrEndpointNotFound is returned by lookups that miss.
	ErrEndpointNotFound = errors.New("registry: endpoint not found")
	// ErrTooManyEndpoints is returned when MaxEndpoint is reached.
	ErrTooManyEndpoints = errors.New("registry: endpoint table is full")
)
