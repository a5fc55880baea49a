package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"flashsale/clock"
	"flashsale/seckill/domain"
	"flashsale/seckill/metrics"
)

const (
	defaultLockWait    = 100 * time.Millisecond
	defaultLockHold    = 3 * time.Second
	defaultMarkerTTL   = 24 * time.Hour
	defaultCallTimeout = 500 * time.Millisecond
)

// EngineDeps são os colaboradores do caminho síncrono. Orders é opcional: sem ele,
// Status responde apenas pelo marcador e a checagem durável de duplicidade fica desligada.
type EngineDeps struct {
	Activities domain.ActivityReader
	Admission  domain.AdmissionLimiter
	Counter    domain.StockCounter
	Locker     domain.Locker
	Markers    domain.MarkerStore
	Publisher  domain.Publisher
	Orders     domain.OrderStore
}

// Engine é a autoridade de decisão do caminho rápido.
type Engine struct {
	deps   EngineDeps
	clock  clock.Clock
	logger *slog.Logger

	lockWait        time.Duration
	lockHold        time.Duration
	markerTTL       time.Duration
	callTimeout     time.Duration
	durableDupCheck bool
	newToken        TokenFunc
}

type EngineOption func(*Engine)

// WithLockTimeouts define a espera pelo lock e o tempo máximo de posse.
func WithLockTimeouts(wait, hold time.Duration) EngineOption {
	return func(e *Engine) {
		if wait > 0 {
			e.lockWait = wait
		}
		if hold > 0 {
			e.lockHold = hold
		}
	}
}

func WithMarkerTTL(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.markerTTL = d
		}
	}
}

// WithCallTimeout limita cada chamada externa (contador, marcador, publicação).
func WithCallTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.callTimeout = d
		}
	}
}

// WithDurableDuplicateCheck consulta o armazenamento durável dentro do lock quando
// o marcador não existe (ex: Redis reiniciou e perdeu os marcadores).
func WithDurableDuplicateCheck(enabled bool) EngineOption {
	return func(e *Engine) { e.durableDupCheck = enabled }
}

func WithTokenFunc(fn TokenFunc) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.newToken = fn
		}
	}
}

func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewEngine(deps EngineDeps, clk clock.Clock, opts ...EngineOption) *Engine {
	e := &Engine{
		deps:        deps,
		clock:       clk,
		logger:      slog.Default(),
		lockWait:    defaultLockWait,
		lockHold:    defaultLockHold,
		markerTTL:   defaultMarkerTTL,
		callTimeout: defaultCallTimeout,
		newToken:    newULID,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Allocate decide a tentativa de (requester, activity).
//
// Resultados de negócio voltam como Decision com err == nil. err != nil só ocorre
// para falhas de infraestrutura (ErrInfrastructureUnavailable), e nesse caso
// nenhum decremento fica órfão: ou há marcador+mensagem, ou houve compensação.
func (e *Engine) Allocate(ctx context.Context, requesterID, activityID int64) (domain.Decision, error) {
	dec, err := e.allocate(ctx, requesterID, activityID)
	if err != nil {
		metrics.RecordDecision("infrastructure_unavailable")
		return domain.Decision{}, err
	}
	metrics.RecordDecision(dec.Outcome.String())
	return dec, nil
}

func (e *Engine) allocate(ctx context.Context, requesterID, activityID int64) (domain.Decision, error) {
	if requesterID <= 0 || activityID <= 0 {
		return domain.Decision{}, domain.ErrInvalidID
	}

	act, err := e.deps.Activities.GetActivity(ctx, activityID)
	if err != nil {
		if errors.Is(err, domain.ErrActivityNotFound) {
			return domain.ActivityNotActive(), nil
		}
		return domain.Decision{}, e.infra("activity", err)
	}
	if !act.IsActive(e.clock.Now()) {
		return domain.ActivityNotActive(), nil
	}

	if e.deps.Admission != nil && !e.deps.Admission.Admit(ctx, AdmissionKey(activityID)) {
		return domain.Throttled(), nil
	}

	// checagem rápida, sem lock
	state, err := e.markerState(ctx, requesterID, activityID)
	if err != nil {
		return domain.Decision{}, err
	}
	if state != domain.MarkerNone {
		return domain.AlreadyAllocated(), nil
	}

	var dec domain.Decision
	acquired, err := e.deps.Locker.WithLock(ctx, lockKey(requesterID, activityID), e.lockWait, e.lockHold,
		func(lockCtx context.Context) error {
			var rerr error
			dec, rerr = e.reserve(lockCtx, act, requesterID)
			return rerr
		})
	if err != nil {
		if errors.Is(err, domain.ErrInfrastructureUnavailable) {
			return domain.Decision{}, err
		}
		return domain.Decision{}, e.infra("lock", err)
	}
	if !acquired {
		// contenção é backpressure, nunca sucesso
		return domain.Throttled(), nil
	}
	return dec, nil
}

// reserve roda dentro do lock de (requester, activity).
func (e *Engine) reserve(ctx context.Context, act domain.Activity, requesterID int64) (domain.Decision, error) {
	state, err := e.markerState(ctx, requesterID, act.ID)
	if err != nil {
		return domain.Decision{}, err
	}
	if state != domain.MarkerNone {
		return domain.AlreadyAllocated(), nil
	}

	if e.durableDupCheck && e.deps.Orders != nil {
		existing, err := e.deps.Orders.FindActiveOrder(ctx, requesterID, act.ID)
		if err != nil {
			return domain.Decision{}, e.infra("orders", err)
		}
		if existing != nil {
			if err := e.mark(ctx, requesterID, act); err != nil {
				e.logger.Warn("re-mark after durable duplicate failed", "requester_id", requesterID, "activity_id", act.ID, "err", err)
			}
			return domain.AlreadyAllocated(), nil
		}
	}

	decCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	ok, err := e.deps.Counter.TryDecrement(decCtx, act.ID)
	cancel()
	if err != nil {
		// resposta perdida pode esconder um decremento aplicado; a reconciliação corrige
		return domain.Decision{}, e.infra("counter", err)
	}
	if !ok {
		return domain.SoldOut(), nil
	}

	now := e.clock.Now()
	token, err := e.newToken(now)
	if err != nil {
		e.compensate(ctx, act.ID, "token")
		return domain.Decision{}, e.infra("token", err)
	}

	msg := domain.AllocationMessage{
		RequesterID: requesterID,
		ActivityID:  act.ID,
		ProductID:   act.ProductID,
		PriceCents:  act.PriceCents,
		Token:       token,
		CreatedAt:   now,
	}

	// o marcador vem antes da mensagem: um consumidor rápido precisa encontrá-lo
	// para registrar rejeição ou liberar o requisitante. Falha aqui só enfraquece
	// a deduplicação rápida; o índice único do armazenamento durável segura o resto.
	if err := e.mark(ctx, requesterID, act); err != nil {
		metrics.RecordInfraFailure("marker")
		e.logger.Warn("admission marker write failed",
			"requester_id", requesterID, "activity_id", act.ID, "token", token, "err", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	err = e.deps.Publisher.Publish(pubCtx, msg)
	cancel()
	if err != nil {
		metrics.RecordInfraFailure("publisher")
		e.logger.Error("publish allocation message failed, compensating",
			"requester_id", requesterID, "activity_id", act.ID, "token", token, "err", err)
		// Clear também cobre uma escrita que expirou no cliente mas chegou ao store
		e.unmark(ctx, requesterID, act.ID)
		e.compensate(ctx, act.ID, "publish_failed")
		return domain.SoldOut(), nil
	}

	e.logger.Info("allocation accepted", "requester_id", requesterID, "activity_id", act.ID, "token", token)
	return domain.Accepted(token), nil
}

func (e *Engine) markerState(ctx context.Context, requesterID, activityID int64) (domain.MarkerState, error) {
	mctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	state, err := e.deps.Markers.State(mctx, requesterID, activityID)
	if err != nil {
		return domain.MarkerNone, e.infra("marker", err)
	}
	return state, nil
}

func (e *Engine) mark(ctx context.Context, requesterID int64, act domain.Activity) error {
	ttl := e.markerTTL
	if until := act.EndAt.Sub(e.clock.Now()); until > ttl {
		ttl = until
	}
	mctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	return e.deps.Markers.Mark(mctx, requesterID, act.ID, ttl)
}

// unmark remove o marcador de uma reserva que não chegou ao canal.
func (e *Engine) unmark(ctx context.Context, requesterID, activityID int64) {
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.callTimeout)
	defer cancel()
	if err := e.deps.Markers.Clear(mctx, requesterID, activityID); err != nil {
		metrics.RecordInfraFailure("marker")
		e.logger.Error("clear marker after publish failure failed",
			"requester_id", requesterID, "activity_id", activityID, "err", err)
	}
}

// compensate devolve a unidade reservada. Usa ctx desacoplado do cancelamento da
// requisição: a devolução precisa acontecer mesmo se o cliente desistiu.
func (e *Engine) compensate(ctx context.Context, activityID int64, reason string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.callTimeout)
	defer cancel()
	if err := e.deps.Counter.Increment(cctx, activityID); err != nil {
		metrics.RecordInfraFailure("counter")
		e.logger.Error("compensation increment failed, reconciliation will repair",
			"activity_id", activityID, "reason", reason, "err", err)
		return
	}
	metrics.RecordCompensation(reason)
}

func (e *Engine) infra(component string, err error) error {
	metrics.RecordInfraFailure(component)
	return fmt.Errorf("%w: %s: %v", domain.ErrInfrastructureUnavailable, component, err)
}

// Status combina o pedido durável e o marcador de admissão.
func (e *Engine) Status(ctx context.Context, requesterID, activityID int64) (domain.AllocationStatus, error) {
	if e.deps.Orders != nil {
		order, err := e.deps.Orders.FindActiveOrder(ctx, requesterID, activityID)
		if err != nil {
			return domain.StatusNotFound, e.infra("orders", err)
		}
		if order != nil {
			if order.Status == domain.OrderPending {
				return domain.StatusPending, nil
			}
			return domain.StatusConfirmed, nil
		}
	}

	state, err := e.markerState(ctx, requesterID, activityID)
	if err != nil {
		return domain.StatusNotFound, err
	}
	if state == domain.MarkerPending {
		return domain.StatusPending, nil
	}
	return domain.StatusNotFound, nil
}

// Stock expõe contador rápido e estoque durável lado a lado.
func (e *Engine) Stock(ctx context.Context, activityID int64) (domain.StockView, error) {
	act, err := e.deps.Activities.GetActivity(ctx, activityID)
	if err != nil {
		if errors.Is(err, domain.ErrActivityNotFound) {
			return domain.StockView{}, err
		}
		return domain.StockView{}, e.infra("activity", err)
	}

	cctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	value, present, err := e.deps.Counter.Value(cctx, activityID)
	if err != nil {
		return domain.StockView{}, e.infra("counter", err)
	}
	return domain.StockView{
		ActivityID:       activityID,
		Counter:          value,
		CounterPresent:   present,
		DurableAvailable: act.AvailableStock,
		Total:            act.TotalStock,
	}, nil
}
