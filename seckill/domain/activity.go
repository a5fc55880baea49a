package domain

import "time"

// ActivityStatus segue a numeração persistida: 0 não iniciada, 1 ativa, 2 encerrada.
type ActivityStatus int

const (
	ActivityNotStarted ActivityStatus = 0
	ActivityActive     ActivityStatus = 1
	ActivityEnded      ActivityStatus = 2
)

func (s ActivityStatus) String() string {
	switch s {
	case ActivityNotStarted:
		return "not_started"
	case ActivityActive:
		return "active"
	case ActivityEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Activity é uma oferta com janela de tempo e estoque fixo.
// Invariante no armazenamento durável: 0 <= AvailableStock <= TotalStock.
type Activity struct {
	ID             int64
	ProductID      int64
	PriceCents     int64
	TotalStock     int64
	AvailableStock int64
	StartAt        time.Time
	EndAt          time.Time
	Status         ActivityStatus
	// Version cresce a cada mutação de estoque.
	Version int64
}

// IsActive exige status ativo e now dentro de [StartAt, EndAt).
func (a Activity) IsActive(now time.Time) bool {
	if a.Status != ActivityActive {
		return false
	}
	return !now.Before(a.StartAt) && now.Before(a.EndAt)
}

// Ended considera encerrada tanto pelo status quanto pela janela.
func (a Activity) Ended(now time.Time) bool {
	return a.Status == ActivityEnded || !now.Before(a.EndAt)
}

// StockView é a fotografia de estoque exposta para consulta.
type StockView struct {
	ActivityID       int64 `json:"activity_id"`
	Counter          int64 `json:"counter"`
	CounterPresent   bool  `json:"counter_present"`
	DurableAvailable int64 `json:"durable_available"`
	Total            int64 `json:"total"`
}
