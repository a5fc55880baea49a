package application

import (
	"context"
	"errors"
	"testing"

	"flashsale/seckill/domain"
)

func message(token string, requester int64) domain.AllocationMessage {
	return domain.AllocationMessage{
		RequesterID: requester,
		ActivityID:  1,
		ProductID:   10,
		PriceCents:  1990,
		Token:       token,
		CreatedAt:   t0,
	}
}

// reserve simula o caminho rápido: decrementa e marca, como o Engine faria.
func (h *harness) reserve(t *testing.T, requester int64) {
	t.Helper()
	ctx := context.Background()
	if ok, err := h.counter.TryDecrement(ctx, h.activity.ID); err != nil || !ok {
		t.Fatalf("reserve: ok=%v err=%v", ok, err)
	}
	_ = h.markers.Mark(ctx, requester, h.activity.ID, 0)
}

func TestMaterializer_ConfirmsOrder(t *testing.T) {
	h := newHarness(t, 3)
	m := h.materializer()
	h.reserve(t, 42)

	if err := m.Handle(context.Background(), message("tok-1", 42)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	order, err := h.store.FindOrderByToken(context.Background(), "tok-1")
	if err != nil || order == nil {
		t.Fatalf("expected order, got %v err=%v", order, err)
	}
	if order.Status != domain.OrderConfirmed || order.RequesterID != 42 || order.PriceCents != 1990 {
		t.Fatalf("unexpected order: %+v", order)
	}
	act := h.durable(t)
	if act.AvailableStock != 2 || act.Version != 1 {
		t.Fatalf("expected durable 2 version 1, got %d / %d", act.AvailableStock, act.Version)
	}
	if got := h.counterValue(t); got != 2 {
		t.Fatalf("counter must not change on confirm, got %d", got)
	}
}

func TestMaterializer_RedeliveryIsIdempotent(t *testing.T) {
	h := newHarness(t, 3)
	m := h.materializer()
	h.reserve(t, 42)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := m.Handle(ctx, message("tok-1", 42)); err != nil {
			t.Fatalf("handle %d: %v", i, err)
		}
	}

	if got := h.confirmed(t); got != 1 {
		t.Fatalf("expected 1 order, got %d", got)
	}
	if got := h.durable(t).AvailableStock; got != 2 {
		t.Fatalf("expected single durable decrement, got %d", got)
	}
	if got := h.counterValue(t); got != 2 {
		t.Fatalf("redelivery must not compensate, got counter %d", got)
	}
}

func TestMaterializer_DuplicateRequesterCompensates(t *testing.T) {
	h := newHarness(t, 3)
	m := h.materializer()
	ctx := context.Background()
	h.reserve(t, 42)
	h.reserve(t, 42)

	_ = m.Handle(ctx, message("tok-1", 42))
	if err := m.Handle(ctx, message("tok-2", 42)); err != nil {
		t.Fatalf("handle duplicate: %v", err)
	}

	if got := h.confirmed(t); got != 1 {
		t.Fatalf("expected 1 order, got %d", got)
	}
	if got := h.durable(t).AvailableStock; got != 2 {
		t.Fatalf("expected durable 2, got %d", got)
	}
	if got := h.counterValue(t); got != 2 {
		t.Fatalf("expected duplicate reservation released (counter 2), got %d", got)
	}
}

func TestMaterializer_NoDurableStockRejects(t *testing.T) {
	h := newHarness(t, 1)
	m := h.materializer()
	ctx := context.Background()

	// contador acima do durável (deriva)
	_ = h.counter.WarmUp(ctx, 1, 2, 0)
	h.reserve(t, 1)
	h.reserve(t, 2)

	_ = m.Handle(ctx, message("tok-1", 1))
	if err := m.Handle(ctx, message("tok-2", 2)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if got := h.durable(t).AvailableStock; got != 0 {
		t.Fatalf("durable must stay at 0, got %d", got)
	}
	if got := h.confirmed(t); got != 1 {
		t.Fatalf("expected 1 order, got %d", got)
	}
	if got := h.counterValue(t); got != 1 {
		t.Fatalf("expected rejected unit back on counter, got %d", got)
	}
	if state, _ := h.markers.State(ctx, 2, 1); state != domain.MarkerRejected {
		t.Fatalf("expected rejected marker, got %v", state)
	}

	e := h.engine()
	if st, _ := e.Status(ctx, 2, 1); st != domain.StatusNotFound {
		t.Fatalf("rejected requester must see not found, got %v", st)
	}
	if dec, _ := e.Allocate(ctx, 2, 1); dec.Outcome != domain.OutcomeAlreadyAllocated {
		t.Fatalf("rejected requester is still deduplicated, got %v", dec.Outcome)
	}
}

func TestMaterializer_PoisonMessage(t *testing.T) {
	h := newHarness(t, 3)
	m := h.materializer()

	err := m.Handle(context.Background(), domain.AllocationMessage{RequesterID: 1, ActivityID: 1})
	if !errors.Is(err, domain.ErrPoisonMessage) {
		t.Fatalf("expected ErrPoisonMessage, got %v", err)
	}
}

func TestMaterializer_StoreFailureKeepsMessagePending(t *testing.T) {
	h := newHarness(t, 3)
	orders := &flakyOrders{Store: h.store, findErr: errBoom}
	counter := &flakyCounter{StockCounter: h.counter}
	m := NewMaterializer(MaterializerDeps{
		Tx: h.store, Activities: h.store, Orders: orders, Counter: counter,
	}, h.clock, WithMaterializerLogger(discardLogger()))

	if err := m.Handle(context.Background(), message("tok-1", 42)); !errors.Is(err, errBoom) {
		t.Fatalf("expected store error, got %v", err)
	}
	if counter.increments != 0 {
		t.Fatalf("transient failure must not compensate")
	}
	if got := h.durable(t).AvailableStock; got != 3 {
		t.Fatalf("expected durable untouched, got %d", got)
	}
}

func TestMaterializer_InsertRaceRollsBackDecrement(t *testing.T) {
	h := newHarness(t, 3)
	orders := &flakyOrders{Store: h.store, createErr: domain.ErrDuplicateOrder}
	m := NewMaterializer(MaterializerDeps{
		Tx: h.store, Activities: h.store, Orders: orders, Counter: h.counter,
	}, h.clock, WithMaterializerLogger(discardLogger()))
	h.reserve(t, 42)

	if err := m.Handle(context.Background(), message("tok-1", 42)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := h.durable(t).AvailableStock; got != 3 {
		t.Fatalf("expected rolled back durable stock 3, got %d", got)
	}
	if got := h.counterValue(t); got != 3 {
		t.Fatalf("expected losing reservation released, got counter %d", got)
	}
}

func TestMaterializer_CompensationFailureRetries(t *testing.T) {
	h := newHarness(t, 3)
	counter := &flakyCounter{StockCounter: h.counter, incrementErr: errBoom}
	m := NewMaterializer(MaterializerDeps{
		Tx: h.store, Activities: h.store, Orders: h.store, Counter: counter,
	}, h.clock, WithMaterializerLogger(discardLogger()))
	ctx := context.Background()

	_ = m.Handle(ctx, message("tok-1", 42))
	err := m.Handle(ctx, message("tok-2", 42))
	if !errors.Is(err, domain.ErrInfrastructureUnavailable) {
		t.Fatalf("expected retryable infrastructure error, got %v", err)
	}
}

func TestMaterializer_DeadLetterReleasesReservation(t *testing.T) {
	h := newHarness(t, 3)
	m := h.materializer()
	ctx := context.Background()
	h.reserve(t, 42)

	if err := m.HandleDeadLetter(ctx, message("tok-lost", 42), "exceeded deliveries"); err != nil {
		t.Fatalf("dead letter: %v", err)
	}
	if got := h.counterValue(t); got != 3 {
		t.Fatalf("expected counter restored to 3, got %d", got)
	}
	if state, _ := h.markers.State(ctx, 42, 1); state != domain.MarkerNone {
		t.Fatalf("expected marker cleared, got %v", state)
	}
	if st, _ := h.engine().Status(ctx, 42, 1); st != domain.StatusNotFound {
		t.Fatalf("expected not found, got %v", st)
	}
}

func TestMaterializer_DeadLetterWithExistingOrderIsNoop(t *testing.T) {
	h := newHarness(t, 3)
	m := h.materializer()
	ctx := context.Background()
	h.reserve(t, 42)
	_ = m.Handle(ctx, message("tok-1", 42))

	if err := m.HandleDeadLetter(ctx, message("tok-1", 42), "ack lost"); err != nil {
		t.Fatalf("dead letter: %v", err)
	}
	if got := h.counterValue(t); got != 2 {
		t.Fatalf("materialized reservation must stay consumed, got %d", got)
	}
}

func TestMaterializer_ExhaustedRetriesEndInDeadLetter(t *testing.T) {
	h := newHarness(t, 3)
	e := h.engine()
	ctx := context.Background()

	dec, _ := e.Allocate(ctx, 42, 1)
	if dec.Outcome != domain.OutcomeAccepted {
		t.Fatalf("expected accepted, got %v", dec.Outcome)
	}

	orders := &flakyOrders{Store: h.store, createErr: errBoom}
	m := NewMaterializer(MaterializerDeps{
		Tx: h.store, Activities: h.store, Orders: orders, Counter: h.counter, Markers: h.markers,
	}, h.clock, WithMaterializerLogger(discardLogger()))
	h.drain(m)

	if got := len(h.broker.DeadLetters()); got != 1 {
		t.Fatalf("expected 1 dead letter, got %d", got)
	}
	if got := h.counterValue(t); got != 3 {
		t.Fatalf("expected counter restored, got %d", got)
	}
	if got := h.durable(t).AvailableStock; got != 3 {
		t.Fatalf("expected durable untouched, got %d", got)
	}
}
