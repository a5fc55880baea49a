package application

import (
	"context"
	"time"

	"flashsale/admission/domain"
)

// ConcurrencyService limita quantas requisições ficam simultaneamente dentro do
// motor de alocação, com espera limitada.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tenta adquirir uma vaga.
//   - AcquireTimeout <= 0: espera até o ctx encerrar.
//   - AcquireTimeout > 0: espera no máximo o timeout.
//
// Se ok=false, nenhuma vaga foi adquirida e release é uma função vazia.
func (s ConcurrencyService) Acquire(ctx context.Context) (release func(), ok bool) {
	if s.Pool == nil {
		return func() {}, true
	}

	acqCtx := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, ok = s.Pool.Acquire(acqCtx)
	if !ok || release == nil {
		return func() {}, false
	}
	return release, true
}
