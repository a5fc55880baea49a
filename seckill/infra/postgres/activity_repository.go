package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flashsale/seckill/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const activityColumns = `id, product_id, price_cents, total_stock, available_stock, start_at, end_at, status, version`

type ActivityRepository struct {
	q querier
}

func NewActivityRepository(pool *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{q: querier{pool: pool}}
}

func (r *ActivityRepository) GetActivity(ctx context.Context, id int64) (domain.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE id = $1`

	a, err := scanActivity(r.q.queryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Activity{}, domain.ErrActivityNotFound
		}
		return domain.Activity{}, fmt.Errorf("get activity: %w", err)
	}
	return a, nil
}

func (r *ActivityRepository) ListOpenActivities(ctx context.Context, now time.Time) ([]domain.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE status <> $1 AND end_at > $2 ORDER BY id`

	rows, err := r.q.query(ctx, query, int(domain.ActivityEnded), now)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var out []domain.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	return out, nil
}

// DecrementAvailable é o decremento condicional: uma instrução, sem ler antes.
func (r *ActivityRepository) DecrementAvailable(ctx context.Context, activityID int64) (int64, bool, error) {
	const stmt = `
UPDATE activities
SET available_stock = available_stock - 1, version = version + 1
WHERE id = $1 AND available_stock > 0
RETURNING version`

	var version int64
	err := r.q.queryRow(ctx, stmt, activityID).Scan(&version)
	if err == nil {
		return version, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("decrement stock: %w", err)
	}
	if _, err := r.GetActivity(ctx, activityID); err != nil {
		return 0, false, err
	}
	return 0, false, nil
}

func (r *ActivityRepository) IncrementAvailable(ctx context.Context, activityID int64) (bool, error) {
	const stmt = `
UPDATE activities
SET available_stock = available_stock + 1, version = version + 1
WHERE id = $1 AND available_stock < total_stock`

	tag, err := r.q.exec(ctx, stmt, activityID)
	if err != nil {
		return false, fmt.Errorf("increment stock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CreateActivity insere a atividade com available_stock = total_stock e
// devolve o id gerado.
func (r *ActivityRepository) CreateActivity(ctx context.Context, a domain.Activity) (int64, error) {
	const stmt = `
INSERT INTO activities (product_id, price_cents, total_stock, available_stock, start_at, end_at, status)
VALUES ($1, $2, $3, $3, $4, $5, $6)
RETURNING id`

	var id int64
	err := r.q.queryRow(ctx, stmt, a.ProductID, a.PriceCents, a.TotalStock, a.StartAt, a.EndAt, int(a.Status)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create activity: %w", err)
	}
	return id, nil
}

func scanActivity(row pgx.Row) (domain.Activity, error) {
	var a domain.Activity
	var status int
	err := row.Scan(&a.ID, &a.ProductID, &a.PriceCents, &a.TotalStock, &a.AvailableStock, &a.StartAt, &a.EndAt, &status, &a.Version)
	if err != nil {
		return domain.Activity{}, err
	}
	a.Status = domain.ActivityStatus(status)
	a.StartAt = a.StartAt.UTC()
	a.EndAt = a.EndAt.UTC()
	return a, nil
}
