package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	admission "flashsale/admission/domain"
	"flashsale/clock"
	"flashsale/seckill/domain"
	"flashsale/seckill/infra/memory"
)

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

var errBoom = errors.New("boom")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// harness monta o fluxo completo sobre a infra em memória.
type harness struct {
	clock   *clock.Manual
	store   *memory.Store
	counter *memory.Counter
	locker  *memory.Locker
	markers *memory.Markers
	broker  *memory.Broker

	activity domain.Activity
}

func newHarness(t *testing.T, stock int64) *harness {
	t.Helper()
	clk := clock.NewManual(t0)
	h := &harness{
		clock:   clk,
		store:   memory.NewStore(),
		counter: memory.NewCounter(),
		locker:  memory.NewLocker(),
		markers: memory.NewMarkers(),
		broker:  memory.NewBroker(3),
		activity: domain.Activity{
			ID:             1,
			ProductID:      10,
			PriceCents:     1990,
			TotalStock:     stock,
			AvailableStock: stock,
			StartAt:        t0.Add(-time.Minute),
			EndAt:          t0.Add(time.Hour),
			Status:         domain.ActivityActive,
		},
	}
	h.store.PutActivity(h.activity)
	if err := h.counter.WarmUp(context.Background(), h.activity.ID, stock, 0); err != nil {
		t.Fatalf("warm up: %v", err)
	}
	return h
}

func (h *harness) engineDeps() EngineDeps {
	return EngineDeps{
		Activities: h.store,
		Counter:    h.counter,
		Locker:     h.locker,
		Markers:    h.markers,
		Publisher:  h.broker,
		Orders:     h.store,
	}
}

func (h *harness) engine(opts ...EngineOption) *Engine {
	opts = append([]EngineOption{WithEngineLogger(discardLogger()), WithLockTimeouts(20*time.Millisecond, time.Second)}, opts...)
	return NewEngine(h.engineDeps(), h.clock, opts...)
}

func (h *harness) materializer() *Materializer {
	return NewMaterializer(MaterializerDeps{
		Tx:         h.store,
		Activities: h.store,
		Orders:     h.store,
		Counter:    h.counter,
		Markers:    h.markers,
	}, h.clock, WithMaterializerLogger(discardLogger()))
}

func (h *harness) drain(m *Materializer) {
	h.broker.Drain(context.Background(), m.Handle, m.HandleDeadLetter)
}

func (h *harness) counterValue(t *testing.T) int64 {
	t.Helper()
	v, present, err := h.counter.Value(context.Background(), h.activity.ID)
	if err != nil || !present {
		t.Fatalf("counter value: present=%v err=%v", present, err)
	}
	return v
}

func (h *harness) durable(t *testing.T) domain.Activity {
	t.Helper()
	a, err := h.store.GetActivity(context.Background(), h.activity.ID)
	if err != nil {
		t.Fatalf("get activity: %v", err)
	}
	return a
}

func (h *harness) confirmed(t *testing.T) int64 {
	t.Helper()
	n, err := h.store.CountConfirmed(context.Background(), h.activity.ID)
	if err != nil {
		t.Fatalf("count confirmed: %v", err)
	}
	return n
}

type fakeAdmission struct {
	allow bool
	keys  []admission.Key
}

func (f *fakeAdmission) Admit(_ context.Context, key admission.Key) bool {
	f.keys = append(f.keys, key)
	return f.allow
}

// flakyCounter injeta erros por operação sobre um contador real.
type flakyCounter struct {
	domain.StockCounter
	decrementErr error
	incrementErr error
	increments   int
}

func (c *flakyCounter) TryDecrement(ctx context.Context, id int64) (bool, error) {
	if c.decrementErr != nil {
		return false, c.decrementErr
	}
	return c.StockCounter.TryDecrement(ctx, id)
}

func (c *flakyCounter) Increment(ctx context.Context, id int64) error {
	c.increments++
	if c.incrementErr != nil {
		return c.incrementErr
	}
	return c.StockCounter.Increment(ctx, id)
}

type flakyMarkers struct {
	domain.MarkerStore
	stateErr error
	markErr  error
}

func (m *flakyMarkers) State(ctx context.Context, requesterID, activityID int64) (domain.MarkerState, error) {
	if m.stateErr != nil {
		return domain.MarkerNone, m.stateErr
	}
	return m.MarkerStore.State(ctx, requesterID, activityID)
}

func (m *flakyMarkers) Mark(ctx context.Context, requesterID, activityID int64, ttl time.Duration) error {
	if m.markErr != nil {
		return m.markErr
	}
	return m.MarkerStore.Mark(ctx, requesterID, activityID, ttl)
}

// inlinePublisher entrega a mensagem ao consumidor dentro de Publish, antes de o
// engine seguir adiante.
type inlinePublisher struct {
	deliver func(ctx context.Context, msg domain.AllocationMessage) error
}

func (p *inlinePublisher) Publish(ctx context.Context, msg domain.AllocationMessage) error {
	_ = p.deliver(ctx, msg)
	return nil
}

// flakyOrders simula o banco fora do ar ou uma corrida na inserção.
type flakyOrders struct {
	*memory.Store
	findErr   error
	createErr error
}

func (o *flakyOrders) FindOrderByToken(ctx context.Context, token string) (*domain.Order, error) {
	if o.findErr != nil {
		return nil, o.findErr
	}
	return o.Store.FindOrderByToken(ctx, token)
}

func (o *flakyOrders) CreateOrder(ctx context.Context, order domain.Order) error {
	if o.createErr != nil {
		return o.createErr
	}
	return o.Store.CreateOrder(ctx, order)
}
