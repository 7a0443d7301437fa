// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package shmem

import "testing"

// TestNotifierWrap configures the counter near the uint32 boundary,
// bumps it past the wrap, and confirms Observe still reports the
// correct delta with no spurious re-delivery.
func TestNotifierWrap(t *testing.T) {
	reg := newTestRegion(t, 16)
	n := reg.NotifierGuest()

	start := uint32(1<<32 - 3)
	*n.ptr() = start
	lastSeen := start

	for i := 0; i < 10; i++ {
		n.Bump()
	}

	delta := n.Observe(&lastSeen)
	if delta != 10 {
		t.Fatalf("expected delta 10 across wrap, got %d", delta)
	}
	if lastSeen != n.Value() {
		t.Fatalf("lastSeen %d did not advance to current value %d", lastSeen, n.Value())
	}
	if d := n.Observe(&lastSeen); d != 0 {
		t.Fatalf("expected no spurious redelivery, got delta %d", d)
	}
}

func TestNotifierMonotone(t *testing.T) {
	reg := newTestRegion(t, 16)
	n := reg.NotifierHost()
	var last uint32
	prev := n.Value()
	for i := 0; i < 100; i++ {
		n.Bump()
		cur := n.Value()
		if cur-prev != 1 {
			t.Fatalf("non-monotone bump at step %d", i)
		}
		prev = cur
	}
	if n.Observe(&last) != 100 {
		t.Fatal("expected 100 pending notifications")
	}
}
