package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"flashsale/clock"
	"flashsale/seckill/domain"
)

type WarmUpDeps struct {
	Activities interface {
		domain.ActivityReader
		domain.ActivityLister
	}
	Counter domain.StockCounter
}

// WarmUp semeia os contadores rápidos a partir do estoque durável.
type WarmUp struct {
	deps   WarmUpDeps
	clock  clock.Clock
	logger *slog.Logger
	grace  time.Duration
}

func NewWarmUp(deps WarmUpDeps, clk clock.Clock, logger *slog.Logger) *WarmUp {
	if logger == nil {
		logger = slog.Default()
	}
	return &WarmUp{deps: deps, clock: clk, logger: logger, grace: time.Hour}
}

// Run aquece todas as atividades ainda não encerradas e retorna quantas foram.
func (w *WarmUp) Run(ctx context.Context) (int, error) {
	now := w.clock.Now()
	activities, err := w.deps.Activities.ListOpenActivities(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list activities: %w", err)
	}
	for _, act := range activities {
		if err := w.set(ctx, act, now); err != nil {
			return 0, err
		}
	}
	return len(activities), nil
}

// Activity aquece uma atividade específica (ressincronização explícita).
func (w *WarmUp) Activity(ctx context.Context, id int64) error {
	act, err := w.deps.Activities.GetActivity(ctx, id)
	if err != nil {
		return err
	}
	return w.set(ctx, act, w.clock.Now())
}

func (w *WarmUp) set(ctx context.Context, act domain.Activity, now time.Time) error {
	if err := w.deps.Counter.WarmUp(ctx, act.ID, act.AvailableStock, counterTTL(act, now, w.grace)); err != nil {
		return fmt.Errorf("warm up activity %d: %w", act.ID, err)
	}
	w.logger.Info("counter warmed up", "activity_id", act.ID, "stock", act.AvailableStock)
	return nil
}
