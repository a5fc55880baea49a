package application

import (
	"context"
	"time"

	"flashsale/admission/domain"
)

// Service concentra a regra de admissão (token bucket suavizado por chave).
//
// Não sabe nada sobre HTTP nem sobre estoque, apenas decide.
type Service struct {
	Store domain.LimiterStore
	Stats domain.StatsStore
	// WaitTimeout é quanto Admit aceita esperar por um token. <= 0 não espera.
	WaitTimeout time.Duration
	RetryAfter  time.Duration
	// Operation rotula os eventos de estatística.
	Operation string
}

// Decide responde imediatamente, sem espera.
func (s Service) Decide(key domain.Key) domain.Decision {
	retryAfter := s.RetryAfter
	if retryAfter <= 0 {
		retryAfter = 1 * time.Second
	}
	if s.Store == nil {
		return domain.Decision{Allowed: true}
	}

	lim := s.Store.Get(key)
	if lim == nil || lim.Allow() {
		return domain.Decision{Allowed: true}
	}
	return domain.Decision{Allowed: false, RetryAfter: retryAfter}
}

// Admit consome um token da chave, esperando no máximo WaitTimeout.
// Nunca retorna erro: timeout, cancelamento ou espera excessiva viram false.
func (s Service) Admit(ctx context.Context, key domain.Key) bool {
	allowed := s.admit(ctx, key)
	s.record(ctx, key, allowed)
	return allowed
}

func (s Service) admit(ctx context.Context, key domain.Key) bool {
	if s.Store == nil {
		return true
	}
	lim := s.Store.Get(key)
	if lim == nil {
		return true
	}
	if s.WaitTimeout <= 0 {
		return lim.Allow()
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.WaitTimeout)
	defer cancel()
	return lim.Wait(waitCtx) == nil
}

func (s Service) record(ctx context.Context, key domain.Key, allowed bool) {
	if s.Stats == nil {
		return
	}
	_ = s.Stats.Record(ctx, domain.StatsEvent{
		Key:       key,
		Allowed:   allowed,
		Operation: s.Operation,
		At:        time.Now(),
	})
}
