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

// Outcome de uma mensagem processada pelo materializador.
type MaterializeOutcome string

const (
	MaterializeConfirmed MaterializeOutcome = "confirmed"
	// a mesma mensagem (mesmo token) já tinha sido gravada: reentrega
	MaterializeAlreadyDone MaterializeOutcome = "already_done"
	// outro token do mesmo requisitante já tem pedido: reserva duplicada, compensa
	MaterializeDuplicate MaterializeOutcome = "duplicate"
	// sem estoque durável: reserva a mais por deriva, compensa
	MaterializeNoStock MaterializeOutcome = "no_stock"
)

var errDuplicateInsert = errors.New("duplicate insert")

type MaterializerDeps struct {
	Tx         domain.Transactor
	Activities domain.ActivityStore
	Orders     domain.OrderStore
	Counter    domain.StockCounter
	// Markers é opcional; quando presente, rejeições ficam visíveis no status.
	Markers domain.MarkerStore
}

// Materializer é o único caminho autoritativo de escrita de estoque + pedido.
type Materializer struct {
	deps        MaterializerDeps
	clock       clock.Clock
	logger      *slog.Logger
	callTimeout time.Duration
}

type MaterializerOption func(*Materializer)

func WithMaterializerLogger(l *slog.Logger) MaterializerOption {
	return func(m *Materializer) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithMaterializerCallTimeout(d time.Duration) MaterializerOption {
	return func(m *Materializer) {
		if d > 0 {
			m.callTimeout = d
		}
	}
}

func NewMaterializer(deps MaterializerDeps, clk clock.Clock, opts ...MaterializerOption) *Materializer {
	m := &Materializer{
		deps:        deps,
		clock:       clk,
		logger:      slog.Default(),
		callTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handle implementa domain.MessageHandler. nil significa ack; erro significa
// reentrega (até o limite do canal, depois dead-letter).
func (m *Materializer) Handle(ctx context.Context, msg domain.AllocationMessage) error {
	if err := msg.Validate(); err != nil {
		metrics.RecordMaterialization("poison")
		return err
	}

	outcome, err := m.materialize(ctx, msg)
	if err != nil {
		metrics.RecordMaterialization("error")
		m.logger.Error("materialize failed, message will be redelivered",
			"token", msg.Token, "activity_id", msg.ActivityID, "requester_id", msg.RequesterID, "err", err)
		return err
	}

	switch outcome {
	case MaterializeConfirmed:
		m.logger.Info("order confirmed", "token", msg.Token, "activity_id", msg.ActivityID, "requester_id", msg.RequesterID)
	case MaterializeAlreadyDone:
		m.logger.Debug("duplicate delivery ignored", "token", msg.Token)
	case MaterializeDuplicate, MaterializeNoStock:
		if err := m.release(ctx, msg, outcome); err != nil {
			return err
		}
	}
	metrics.RecordMaterialization(string(outcome))
	return nil
}

func (m *Materializer) materialize(ctx context.Context, msg domain.AllocationMessage) (MaterializeOutcome, error) {
	var outcome MaterializeOutcome
	err := m.deps.Tx.WithTx(ctx, func(txCtx context.Context) error {
		existing, err := m.deps.Orders.FindOrderByToken(txCtx, msg.Token)
		if err != nil {
			return err
		}
		if existing != nil {
			outcome = MaterializeAlreadyDone
			return nil
		}

		active, err := m.deps.Orders.FindActiveOrder(txCtx, msg.RequesterID, msg.ActivityID)
		if err != nil {
			return err
		}
		if active != nil {
			outcome = MaterializeDuplicate
			return nil
		}

		_, ok, err := m.deps.Activities.DecrementAvailable(txCtx, msg.ActivityID)
		if err != nil {
			return err
		}
		if !ok {
			outcome = MaterializeNoStock
			return nil
		}

		if err := m.deps.Orders.CreateOrder(txCtx, msg.Order(m.clock.Now())); err != nil {
			if errors.Is(err, domain.ErrDuplicateOrder) {
				// rollback devolve o decremento durável
				return errDuplicateInsert
			}
			return err
		}
		outcome = MaterializeConfirmed
		return nil
	})
	if err == nil {
		return outcome, nil
	}
	if !errors.Is(err, errDuplicateInsert) {
		return "", err
	}

	// corrida com outro consumidor: descobre se foi a mesma mensagem
	existing, ferr := m.deps.Orders.FindOrderByToken(ctx, msg.Token)
	if ferr != nil {
		return "", ferr
	}
	if existing != nil {
		return MaterializeAlreadyDone, nil
	}
	return MaterializeDuplicate, nil
}

// release devolve a unidade ao contador rápido. Falha vira erro para reentrega.
func (m *Materializer) release(ctx context.Context, msg domain.AllocationMessage, outcome MaterializeOutcome) error {
	cctx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()

	if err := m.deps.Counter.Increment(cctx, msg.ActivityID); err != nil {
		metrics.RecordInfraFailure("counter")
		return fmt.Errorf("%w: compensate counter: %v", domain.ErrInfrastructureUnavailable, err)
	}
	metrics.RecordCompensation(string(outcome))
	m.logger.Warn("reservation released back to counter",
		"token", msg.Token, "activity_id", msg.ActivityID, "requester_id", msg.RequesterID, "outcome", outcome)

	if outcome == MaterializeNoStock && m.deps.Markers != nil {
		if err := m.deps.Markers.Reject(cctx, msg.RequesterID, msg.ActivityID); err != nil {
			m.logger.Warn("mark rejection failed", "token", msg.Token, "err", err)
		}
	}
	return nil
}

// HandleDeadLetter implementa domain.DeadLetterHandler: se o pedido não existe,
// devolve a unidade ao contador e libera o requisitante para tentar de novo.
func (m *Materializer) HandleDeadLetter(ctx context.Context, msg domain.AllocationMessage, cause string) error {
	metrics.RecordDeadLetter()
	m.logger.Error("allocation message dead-lettered",
		"token", msg.Token, "activity_id", msg.ActivityID, "requester_id", msg.RequesterID, "cause", cause)

	if msg.Validate() != nil {
		return nil
	}

	existing, err := m.deps.Orders.FindOrderByToken(ctx, msg.Token)
	if err != nil {
		return fmt.Errorf("dead-letter lookup: %w", err)
	}
	if existing != nil {
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()
	if err := m.deps.Counter.Increment(cctx, msg.ActivityID); err != nil {
		return fmt.Errorf("dead-letter compensate: %w", err)
	}
	metrics.RecordCompensation("dead_letter")

	if m.deps.Markers != nil {
		if err := m.deps.Markers.Clear(cctx, msg.RequesterID, msg.ActivityID); err != nil {
			m.logger.Warn("clear marker after dead-letter failed", "token", msg.Token, "err", err)
		}
	}
	return nil
}
