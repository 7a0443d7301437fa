//go:build linux
// +build linux

// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package pci

import (
	"testing"
	"time"
)

func TestEventFDRegistersWakesOnDoorbell(t *testing.T) {
	r, err := NewEventFDRegisters(1)
	if err != nil {
		t.Fatalf("new event fd registers: %v", err)
	}
	defer r.Close()

	got := make(chan int, 1)
	if err := r.RegisterVector(3, func(vector int) { got <- vector }); err != nil {
		t.Fatalf("register vector: %v", err)
	}

	r.SetDoorbell(uint32(1)<<16 | 3)

	select {
	case v := <-got:
		if v != 3 {
			t.Fatalf("expected vector 3, got %d", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for eventfd wake")
	}
}

func TestEventFDRegistersReportsIVPosition(t *testing.T) {
	r, err := NewEventFDRegisters(9)
	if err != nil {
		t.Fatalf("new event fd registers: %v", err)
	}
	defer r.Close()
	if r.IVPosition() != 9 {
		t.Fatalf("expected 9, got %d", r.IVPosition())
	}
}
