package domain

import (
	"context"
	"time"
)

// Key identifica a operação protegida (ex: "allocate:42") ou o cliente (IP/header).
type Key string

// Limiter decide se uma ação é permitida agora.
//
// Wait bloqueia até haver token ou até o ctx encerrar. Implementações baseadas em
// golang.org/x/time/rate retornam erro imediatamente quando a espera necessária
// ultrapassa o deadline do ctx, então Wait nunca passa do timeout configurado.
type Limiter interface {
	Allow() bool
	Wait(ctx context.Context) error
}

// LimiterStore obtém um limiter por chave.
// A implementação pode manter cache, TTL, etc.
type LimiterStore interface {
	Get(Key) Limiter
}

type Decision struct {
	Allowed bool
	// RetryAfter é a recomendação para o cliente quando bloqueado.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}
