package domain

import (
	"fmt"
	"time"
)

// AllocationMessage é emitida uma única vez por decremento bem-sucedido no caminho rápido.
type AllocationMessage struct {
	RequesterID int64     `json:"requester_id"`
	ActivityID  int64     `json:"activity_id"`
	ProductID   int64     `json:"product_id"`
	PriceCents  int64     `json:"price_cents"`
	Token       string    `json:"token"`
	CreatedAt   time.Time `json:"created_at"`
}

func (m AllocationMessage) Validate() error {
	if m.RequesterID <= 0 || m.ActivityID <= 0 {
		return fmt.Errorf("%w: requester=%d activity=%d", ErrPoisonMessage, m.RequesterID, m.ActivityID)
	}
	if m.Token == "" {
		return fmt.Errorf("%w: empty token", ErrPoisonMessage)
	}
	return nil
}

// Order converte a mensagem no registro durável confirmado.
func (m AllocationMessage) Order(now time.Time) Order {
	return Order{
		Token:       m.Token,
		RequesterID: m.RequesterID,
		ActivityID:  m.ActivityID,
		ProductID:   m.ProductID,
		PriceCents:  m.PriceCents,
		Status:      OrderConfirmed,
		CreatedAt:   now,
	}
}
