package domain

import (
	"context"
	"time"
)

// StatsEvent registra uma decisão de admissão.
//
// Operation é o nome lógico da operação protegida ("allocate", "http").
// Cuidado com cardinalidade: Key por requisitante pode explodir o número de chaves.
type StatsEvent struct {
	Key       Key
	Allowed   bool
	Operation string
	At        time.Time
}

// StatsStore persiste estatísticas de admissão.
// Quem chama trata erro como best-effort (nunca derruba a requisição).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
