package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordDecision_IncrementsByOutcome(t *testing.T) {
	before := testutil.ToFloat64(decisionCounter.WithLabelValues("sold_out"))
	RecordDecision("sold_out")
	RecordDecision("sold_out")

	if got := testutil.ToFloat64(decisionCounter.WithLabelValues("sold_out")) - before; got != 2 {
		t.Fatalf("expected +2 sold_out decisions, got %v", got)
	}
}

func TestRegister_IsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	Register(reg)

	RecordCompensation("no_durable_stock")
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "seckill_compensations_total" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected seckill_compensations_total to be registered")
	}
}
