package postgres

import (
	"context"
	"errors"
	"fmt"

	"flashsale/seckill/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const orderColumns = `token, requester_id, activity_id, product_id, price_cents, status, created_at`

type OrderRepository struct {
	q querier
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{q: querier{pool: pool}}
}

func (r *OrderRepository) FindOrderByToken(ctx context.Context, token string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE token = $1`
	return r.findOne(ctx, query, token)
}

func (r *OrderRepository) FindActiveOrder(ctx context.Context, requesterID, activityID int64) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE requester_id = $1 AND activity_id = $2 AND status <> 'cancelled'`
	return r.findOne(ctx, query, requesterID, activityID)
}

func (r *OrderRepository) findOne(ctx context.Context, query string, args ...any) (*domain.Order, error) {
	var o domain.Order
	var status string
	err := r.q.queryRow(ctx, query, args...).
		Scan(&o.Token, &o.RequesterID, &o.ActivityID, &o.ProductID, &o.PriceCents, &status, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	o.Status = domain.OrderStatus(status)
	o.CreatedAt = o.CreatedAt.UTC()
	return &o, nil
}

func (r *OrderRepository) CreateOrder(ctx context.Context, order domain.Order) error {
	const stmt = `
INSERT INTO orders (token, requester_id, activity_id, product_id, price_cents, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.q.exec(ctx, stmt, order.Token, order.RequesterID, order.ActivityID,
		order.ProductID, order.PriceCents, string(order.Status), order.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateOrder
		}
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// UpdateOrderStatus só troca o status se o atual for from (transição condicional).
func (r *OrderRepository) UpdateOrderStatus(ctx context.Context, token string, from, to domain.OrderStatus) (bool, error) {
	const stmt = `UPDATE orders SET status = $3, updated_at = NOW() WHERE token = $1 AND status = $2`

	tag, err := r.q.exec(ctx, stmt, token, string(from), string(to))
	if err != nil {
		if isUniqueViolation(err) {
			return false, domain.ErrDuplicateOrder
		}
		return false, fmt.Errorf("update order status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *OrderRepository) CountConfirmed(ctx context.Context, activityID int64) (int64, error) {
	const query = `SELECT COUNT(*) FROM orders WHERE activity_id = $1 AND status = 'confirmed'`

	var n int64
	if err := r.q.queryRow(ctx, query, activityID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return n, nil
}
