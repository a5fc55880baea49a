package domain

import "errors"

var (
	// ErrInfrastructureUnavailable é transitório: limiter/lock/contador/broker/banco fora.
	ErrInfrastructureUnavailable = errors.New("infrastructure unavailable")
	ErrActivityNotFound          = errors.New("activity not found")
	ErrOrderNotFound             = errors.New("order not found")
	ErrDuplicateOrder            = errors.New("duplicate order")
	ErrPoisonMessage             = errors.New("poison message")
	ErrInvalidID                 = errors.New("invalid id")
)
