// File: core/shmem/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package shmem implements the byte-exact shared-region layout of the
// ivshmem messaging substrate: two SPSC rings, two notifier counters,
// and the arena tail, reproduced exactly across the Host and Guest
// address spaces.
package shmem
