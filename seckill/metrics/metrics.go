// Package metrics expõe os contadores Prometheus do motor de alocação.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "seckill"

var (
	decisionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocation_decisions_total",
			Help:      "Decisões do caminho rápido por resultado.",
		},
		[]string{"outcome"},
	)
	infraFailureCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "infrastructure_failures_total",
			Help:      "Falhas de infraestrutura por componente.",
		},
		[]string{"component"},
	)
	materializeCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "materializations_total",
			Help:      "Mensagens de alocação processadas pelo materializador, por resultado.",
		},
		[]string{"outcome"},
	)
	compensationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compensations_total",
			Help:      "Incrementos de compensação no contador, por motivo.",
		},
		[]string{"reason"},
	)
	deadLetterCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_letters_total",
			Help:      "Mensagens movidas para dead-letter.",
		},
	)
	reconcileCorrectionCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_corrections_total",
			Help:      "Contadores sobrescritos pelo valor durável.",
		},
	)
	reconcileSkipCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_skipped_total",
			Help:      "Ciclos de reconciliação pulados por backlog no canal.",
		},
	)
)

var registerMetrics sync.Once

// Register registra todos os coletores uma única vez.
func Register(reg prometheus.Registerer) {
	registerMetrics.Do(func() {
		reg.MustRegister(
			decisionCounter,
			infraFailureCounter,
			materializeCounter,
			compensationCounter,
			deadLetterCounter,
			reconcileCorrectionCounter,
			reconcileSkipCounter,
		)
	})
}

func RecordDecision(outcome string) {
	decisionCounter.WithLabelValues(outcome).Inc()
}

func RecordInfraFailure(component string) {
	infraFailureCounter.WithLabelValues(component).Inc()
}

func RecordMaterialization(outcome string) {
	materializeCounter.WithLabelValues(outcome).Inc()
}

func RecordCompensation(reason string) {
	compensationCounter.WithLabelValues(reason).Inc()
}

func RecordDeadLetter() {
	deadLetterCounter.Inc()
}

func RecordReconcileCorrection() {
	reconcileCorrectionCounter.Inc()
}

func RecordReconcileSkip() {
	reconcileSkipCounter.Inc()
}
