package infra

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// AllocationSlots limita as requisições de alocação em voo ao mesmo tempo.
type AllocationSlots struct {
	sem      *semaphore.Weighted
	capacity int
	inFlight atomic.Int64
}

// NewAllocationSlots cria max vagas; max <= 0 vira 1.
func NewAllocationSlots(max int) *AllocationSlots {
	if max <= 0 {
		max = 1
	}
	return &AllocationSlots{sem: semaphore.NewWeighted(int64(max)), capacity: max}
}

// Acquire espera uma vaga até o ctx encerrar. O release devolvido só libera
// a vaga na primeira chamada.
func (s *AllocationSlots) Acquire(ctx context.Context) (func(), bool) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, false
	}
	s.inFlight.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.inFlight.Add(-1)
			s.sem.Release(1)
		})
	}, true
}

func (s *AllocationSlots) InFlight() int { return int(s.inFlight.Load()) }

func (s *AllocationSlots) Capacity() int { return s.capacity }
