package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"flashsale/clock"
	"flashsale/seckill/domain"
	"flashsale/seckill/metrics"
)

type ReconcileReport struct {
	Checked   int
	Corrected int
	// Skipped indica que o canal tinha mensagens pendentes e nada foi tocado.
	Skipped bool
}

type ReconcilerDeps struct {
	Activities domain.ActivityLister
	Counter    domain.StockCounter
	// Backlog é opcional.
	Backlog domain.BacklogReporter
}

// Reconciler sobrescreve o contador rápido com o estoque durável quando divergem.
// O armazenamento durável é sempre a fonte da verdade.
type Reconciler struct {
	deps           ReconcilerDeps
	clock          clock.Clock
	logger         *slog.Logger
	interval       time.Duration
	requireDrained bool
	counterGrace   time.Duration
}

type ReconcilerOption func(*Reconciler)

func WithReconcileInterval(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithRequireDrained pula o ciclo enquanto houver mensagens em trânsito: reservas
// ainda não materializadas deixam o contador legitimamente abaixo do durável.
func WithRequireDrained(required bool) ReconcilerOption {
	return func(r *Reconciler) { r.requireDrained = required }
}

func WithReconcilerLogger(l *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewReconciler(deps ReconcilerDeps, clk clock.Clock, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		deps:           deps,
		clock:          clk,
		logger:         slog.Default(),
		interval:       5 * time.Minute,
		requireDrained: true,
		counterGrace:   time.Hour,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reconciler) RunOnce(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	if r.requireDrained && r.deps.Backlog != nil {
		backlog, err := r.deps.Backlog.Backlog(ctx)
		if err != nil {
			return report, fmt.Errorf("read backlog: %w", err)
		}
		if backlog > 0 {
			metrics.RecordReconcileSkip()
			r.logger.Debug("reconcile skipped, messages in flight", "backlog", backlog)
			report.Skipped = true
			return report, nil
		}
	}

	now := r.clock.Now()
	activities, err := r.deps.Activities.ListOpenActivities(ctx, now)
	if err != nil {
		return report, fmt.Errorf("list activities: %w", err)
	}

	for _, act := range activities {
		report.Checked++

		value, present, err := r.deps.Counter.Value(ctx, act.ID)
		if err != nil {
			return report, fmt.Errorf("read counter %d: %w", act.ID, err)
		}
		if present && value == act.AvailableStock {
			continue
		}

		r.logger.Warn("stock drift detected, durable wins",
			"activity_id", act.ID, "counter", value, "counter_present", present, "durable", act.AvailableStock)
		if err := r.deps.Counter.WarmUp(ctx, act.ID, act.AvailableStock, counterTTL(act, now, r.counterGrace)); err != nil {
			return report, fmt.Errorf("overwrite counter %d: %w", act.ID, err)
		}
		metrics.RecordReconcileCorrection()
		report.Corrected++
	}
	return report, nil
}

// Run executa RunOnce a cada intervalo até o ctx encerrar.
func (r *Reconciler) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		if report, err := r.RunOnce(ctx); err != nil {
			r.logger.Error("reconcile cycle failed", "err", err)
		} else if report.Corrected > 0 {
			r.logger.Info("reconcile cycle corrected counters", "checked", report.Checked, "corrected", report.Corrected)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
