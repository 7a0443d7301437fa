// File: reactor/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package reactor is a minimal fd-readiness reactor: Register one fd
// with an opaque user-data tag, Wait for a batch of ready fds. It
// backs the doorbell wake path an MSIXController implementation uses
// to turn an eventfd write into an InterruptCallback invocation
// instead of requiring callers to busy-poll pci.Registers.IntrStatus.
package reactor
