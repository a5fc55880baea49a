package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"flashsale/seckill/domain"
)

type countingReader struct {
	calls int
	act   domain.Activity
	err   error
}

func (r *countingReader) GetActivity(_ context.Context, id int64) (domain.Activity, error) {
	r.calls++
	if r.err != nil {
		return domain.Activity{}, r.err
	}
	a := r.act
	a.ID = id
	return a, nil
}

func TestActivityCache_ServesFromCacheUntilTTL(t *testing.T) {
	next := &countingReader{act: domain.Activity{TotalStock: 10}}
	c := NewActivityCache(next, 30*time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		a, err := c.GetActivity(ctx, 7)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if a.ID != 7 || a.TotalStock != 10 {
			t.Fatalf("unexpected activity: %+v", a)
		}
	}
	if next.calls != 1 {
		t.Fatalf("expected 1 backend call, got %d", next.calls)
	}

	time.Sleep(50 * time.Millisecond)
	_, _ = c.GetActivity(ctx, 7)
	if next.calls != 2 {
		t.Fatalf("expected reload after ttl, got %d calls", next.calls)
	}
}

func TestActivityCache_DoesNotCacheErrors(t *testing.T) {
	next := &countingReader{err: domain.ErrActivityNotFound}
	c := NewActivityCache(next, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := c.GetActivity(ctx, 1); !errors.Is(err, domain.ErrActivityNotFound) {
			t.Fatalf("expected ErrActivityNotFound, got %v", err)
		}
	}
	if next.calls != 2 || c.Len() != 0 {
		t.Fatalf("errors must not be cached: calls=%d len=%d", next.calls, c.Len())
	}
}

func TestActivityCache_Invalidate(t *testing.T) {
	next := &countingReader{}
	c := NewActivityCache(next, time.Minute)
	ctx := context.Background()

	_, _ = c.GetActivity(ctx, 1)
	c.Invalidate(1)
	_, _ = c.GetActivity(ctx, 1)
	if next.calls != 2 {
		t.Fatalf("expected reload after invalidate, got %d calls", next.calls)
	}
}
