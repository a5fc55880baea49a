package domain

import "time"

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderCancelled OrderStatus = "cancelled"
)

// Order é o registro durável de alocação. Existe no máximo um pedido não cancelado
// por (RequesterID, ActivityID).
type Order struct {
	Token       string
	RequesterID int64
	ActivityID  int64
	ProductID   int64
	PriceCents  int64
	Status      OrderStatus
	CreatedAt   time.Time
}
