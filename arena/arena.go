// File: arena/arena.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Arena is the Host-only variable-size allocator carved out of a
// Region's tail. It coalesces adjacent free ranges with a
// first-fit free-list; offsets it returns are relative to the arena
// base, not the region base, so they remain valid across remappings at
// different virtual addresses.
//
// Accounting (Size/FreeBytes/TotalAlloc/TotalFree snapshot) is grounded on
// pool/slab_pool.go's atomic counters, but the allocation strategy
// itself needs a genuine coalescing free-list, which a fixed-size-class
// slab pool does not provide, so that part is written fresh rather
// than adapted from the slab pool.

package arena

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// Stats is a point-in-time snapshot of arena usage.
type Stats struct {
	Size       int
	FreeBytes  int
	TotalAlloc uint64
	TotalFree  uint64
}

type block struct {
	offset uint32
	length uint32
}

// Arena allocates and frees byte ranges within a fixed-size body.
// Single-threaded by contract; the mutex here only protects against the Host's own
// concurrent goroutines (e.g. the control thread racing the poller),
// never against the Guest, which never allocates.
type Arena struct {
	mu    sync.Mutex
	size  uint32
	free  []block // sorted by offset, pairwise disjoint and non-adjacent
	alloc map[uint32]uint32 // live allocations: offset -> length

	totalAlloc atomic.Uint64
	totalFree  atomic.Uint64
}

// New creates an Arena over a body of the given size, entirely free.
func New(size int) *Arena {
	a := &Arena{
		size:  uint32(size),
		free:  []block{{offset: 0, length: uint32(size)}},
		alloc: make(map[uint32]uint32),
	}
	return a
}

// Alloc reserves n bytes and returns their offset relative to the arena
// base. Returns ok=false without mutating state
// when no single free range is large enough.
func (a *Arena) Alloc(n int) (offset uint32, ok bool) {
	if n <= 0 {
		return 0, false
	}
	need := uint32(n)
	a.mu.Lock()
	defer a.mu.Unlock()

	for i, b := range a.free {
		if b.length < need {
			continue
		}
		offset = b.offset
		remaining := b.length - need
		if remaining == 0 {
			a.free = append(a.free[:i], a.free[i+1:]...)
		} else {
			a.free[i] = block{offset: b.offset + need, length: remaining}
		}
		a.alloc[offset] = need
		a.totalAlloc.Add(1)
		return offset, true
	}
	return 0, false
}

// Free releases a previously allocated [offset, offset+length) range,
// coalescing it with adjacent free blocks. Returns an error if the range was not exactly what Alloc handed
// out.
func (a *Arena) Free(offset uint32, length int) error {
	if length <= 0 {
		return fmt.Errorf("arena: invalid free length %d", length)
	}
	n := uint32(length)
	a.mu.Lock()
	defer a.mu.Unlock()

	got, live := a.alloc[offset]
	if !live {
		return fmt.Errorf("arena: free at offset %d: no live allocation there", offset)
	}
	if got != n {
		return fmt.Errorf("arena: free at offset %d: length mismatch (allocated %d, freed %d)", offset, got, n)
	}
	delete(a.alloc, offset)
	a.insertFree(block{offset: offset, length: n})
	a.totalFree.Add(1)
	return nil
}

// insertFree inserts a freed block into the sorted free list, coalescing
// with its immediate neighbours. Caller must hold a.mu.
func (a *Arena) insertFree(b block) {
	idx := sort.Search(len(a.free), func(i int) bool { return a.free[i].offset >= b.offset })
	a.free = append(a.free, block{})
	copy(a.free[idx+1:], a.free[idx:])
	a.free[idx] = b

	// Coalesce with the following neighbour first (index shift stays simple).
	if idx+1 < len(a.free) {
		next := a.free[idx+1]
		if a.free[idx].offset+a.free[idx].length == next.offset {
			a.free[idx].length += next.length
			a.free = append(a.free[:idx+1], a.free[idx+2:]...)
		}
	}
	// Then coalesce with the preceding neighbour.
	if idx > 0 {
		prev := a.free[idx-1]
		if prev.offset+prev.length == a.free[idx].offset {
			a.free[idx-1].length += a.free[idx].length
			a.free = append(a.free[:idx], a.free[idx+1:]...)
		}
	}
}

// FreeBytes returns the total number of currently unallocated bytes.
func (a *Arena) FreeBytes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := 0
	for _, b := range a.free {
		total += int(b.length)
	}
	return total
}

// Stats returns a usage snapshot.
func (a *Arena) Stats() Stats {
	return Stats{
		Size:       int(a.size),
		FreeBytes:  a.FreeBytes(),
		TotalAlloc: a.totalAlloc.Load(),
		TotalFree:  a.totalFree.Load(),
	}
}

// Size returns the total arena body size in bytes.
func (a *Arena) Size() int { return int(a.size) }
