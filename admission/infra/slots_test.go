package infra

import (
	"context"
	"testing"
	"time"
)

func TestAllocationSlots_FullPoolWaitsForRelease(t *testing.T) {
	slots := NewAllocationSlots(2)
	ctx := context.Background()

	r1, ok1 := slots.Acquire(ctx)
	_, ok2 := slots.Acquire(ctx)
	if !ok1 || !ok2 || slots.InFlight() != 2 {
		t.Fatalf("expected 2 slots taken, got %d", slots.InFlight())
	}

	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if _, ok := slots.Acquire(short); ok {
		t.Fatalf("third allocation must wait while the pool is full")
	}

	r1()
	if _, ok := slots.Acquire(ctx); !ok {
		t.Fatalf("expected slot after release")
	}
}

func TestAllocationSlots_DoubleReleaseFreesOnce(t *testing.T) {
	slots := NewAllocationSlots(2)
	ctx := context.Background()

	r1, _ := slots.Acquire(ctx)
	_, _ = slots.Acquire(ctx)
	r1()
	r1()

	if got := slots.InFlight(); got != 1 {
		t.Fatalf("second release must not free another request's slot, in flight %d", got)
	}
}

func TestAllocationSlots_NonPositiveCapacity(t *testing.T) {
	if got := NewAllocationSlots(0).Capacity(); got != 1 {
		t.Fatalf("expected capacity 1, got %d", got)
	}
}
