package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flashsale/seckill/domain"

	"github.com/redis/go-redis/v9"
)

const (
	markerPending  = "pending"
	markerRejected = "rejected"
)

type Markers struct {
	rdb  redis.UniversalClient
	keys Keys
}

func NewMarkers(rdb redis.UniversalClient, keys Keys) *Markers {
	return &Markers{rdb: rdb, keys: keys}
}

func (m *Markers) State(ctx context.Context, requesterID, activityID int64) (domain.MarkerState, error) {
	v, err := m.rdb.Get(ctx, m.keys.Marker(activityID, requesterID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.MarkerNone, nil
	}
	if err != nil {
		return domain.MarkerNone, fmt.Errorf("redis get marker: %w", err)
	}
	if v == markerRejected {
		return domain.MarkerRejected, nil
	}
	// qualquer outro valor bloqueia, inclusive legado "1"
	return domain.MarkerPending, nil
}

func (m *Markers) Mark(ctx context.Context, requesterID, activityID int64, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := m.rdb.Set(ctx, m.keys.Marker(activityID, requesterID), markerPending, ttl).Err(); err != nil {
		return fmt.Errorf("redis set marker: %w", err)
	}
	return nil
}

func (m *Markers) Reject(ctx context.Context, requesterID, activityID int64) error {
	err := m.rdb.SetArgs(ctx, m.keys.Marker(activityID, requesterID), markerRejected, redis.SetArgs{
		Mode:    "XX",
		KeepTTL: true,
	}).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis reject marker: %w", err)
	}
	return nil
}

func (m *Markers) Clear(ctx context.Context, requesterID, activityID int64) error {
	if err := m.rdb.Del(ctx, m.keys.Marker(activityID, requesterID)).Err(); err != nil {
		return fmt.Errorf("redis clear marker: %w", err)
	}
	return nil
}
