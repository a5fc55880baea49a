package domain

import (
	"errors"
	"testing"
	"time"
)

func TestActivity_IsActive(t *testing.T) {
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	a := Activity{Status: ActivityActive, StartAt: start, EndAt: start.Add(time.Hour)}

	if a.IsActive(start.Add(-time.Second)) {
		t.Fatalf("expected inactive before window")
	}
	if !a.IsActive(start) {
		t.Fatalf("expected active at window start")
	}
	if a.IsActive(start.Add(time.Hour)) {
		t.Fatalf("expected inactive at window end")
	}

	a.Status = ActivityNotStarted
	if a.IsActive(start.Add(time.Minute)) {
		t.Fatalf("expected inactive when status is not_started")
	}
}

func TestActivity_Ended(t *testing.T) {
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	a := Activity{Status: ActivityActive, StartAt: start, EndAt: start.Add(time.Hour)}

	if a.Ended(start) {
		t.Fatalf("expected open activity")
	}
	if !a.Ended(start.Add(2 * time.Hour)) {
		t.Fatalf("expected ended after window")
	}
	a.Status = ActivityEnded
	if !a.Ended(start) {
		t.Fatalf("expected ended by status")
	}
}

func TestAllocationMessage_Validate(t *testing.T) {
	ok := AllocationMessage{RequesterID: 1, ActivityID: 2, Token: "01J"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}

	for _, m := range []AllocationMessage{
		{ActivityID: 2, Token: "t"},
		{RequesterID: 1, Token: "t"},
		{RequesterID: 1, ActivityID: 2},
	} {
		if err := m.Validate(); !errors.Is(err, ErrPoisonMessage) {
			t.Fatalf("expected ErrPoisonMessage for %+v, got %v", m, err)
		}
	}
}
