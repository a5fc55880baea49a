package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// decrementIfPositive roda inteiro no servidor: ausente ou <= 0 não altera nada.
var decrementIfPositive = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then
  return -1
end
if tonumber(v) > 0 then
  return redis.call('DECR', KEYS[1])
end
return -1
`)

// incrementIfPresent não recria chave expirada ou perdida: um contador criado
// aqui nasceria sem TTL e com valor arbitrário. A reconciliação repõe a chave.
var incrementIfPresent = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return redis.call('INCR', KEYS[1])
end
return -1
`)

type Counter struct {
	rdb  redis.UniversalClient
	keys Keys
}

func NewCounter(rdb redis.UniversalClient, keys Keys) *Counter {
	return &Counter{rdb: rdb, keys: keys}
}

func (c *Counter) TryDecrement(ctx context.Context, activityID int64) (bool, error) {
	n, err := decrementIfPositive.Run(ctx, c.rdb, []string{c.keys.Stock(activityID)}).Int64()
	if err != nil {
		return false, fmt.Errorf("redis decrement: %w", err)
	}
	return n >= 0, nil
}

// Increment preserva o TTL existente (INCR não mexe na expiração). Chave
// ausente fica ausente.
func (c *Counter) Increment(ctx context.Context, activityID int64) error {
	if err := incrementIfPresent.Run(ctx, c.rdb, []string{c.keys.Stock(activityID)}).Err(); err != nil {
		return fmt.Errorf("redis increment: %w", err)
	}
	return nil
}

func (c *Counter) WarmUp(ctx context.Context, activityID int64, value int64, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := c.rdb.Set(ctx, c.keys.Stock(activityID), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis warm up: %w", err)
	}
	return nil
}

func (c *Counter) Value(ctx context.Context, activityID int64) (int64, bool, error) {
	v, err := c.rdb.Get(ctx, c.keys.Stock(activityID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get counter: %w", err)
	}
	return v, true, nil
}
