package redisstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// compareAndDelete só remove o lock se o valor ainda for o nosso token.
var compareAndDelete = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

type Locker struct {
	rdb   redis.UniversalClient
	keys  Keys
	retry time.Duration
}

type LockerOption func(*Locker)

// WithRetryInterval define o intervalo entre tentativas de SET NX.
func WithRetryInterval(d time.Duration) LockerOption {
	return func(l *Locker) {
		if d > 0 {
			l.retry = d
		}
	}
}

func NewLocker(rdb redis.UniversalClient, keys Keys, opts ...LockerOption) *Locker {
	l := &Locker{rdb: rdb, keys: keys, retry: 5 * time.Millisecond}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Locker) WithLock(ctx context.Context, name string, wait, hold time.Duration, fn func(ctx context.Context) error) (bool, error) {
	key := l.keys.Lock(name)
	token, err := randomToken()
	if err != nil {
		return false, err
	}

	deadline := time.Now().Add(wait)
	for {
		ok, err := l.rdb.SetNX(ctx, key, token, hold).Result()
		if err != nil {
			return false, fmt.Errorf("redis lock: %w", err)
		}
		if ok {
			break
		}
		if !time.Now().Add(l.retry).Before(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, nil
		case <-time.After(l.retry):
		}
	}

	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = compareAndDelete.Run(rctx, l.rdb, []string{key}, token).Err()
	}()

	fctx, cancel := context.WithTimeout(ctx, hold)
	defer cancel()
	return true, fn(fctx)
}

func randomToken() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("lock token: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
