package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Locker guarda cada lease como item com TTL igual ao hold: um dono que some
// perde o lock sozinho.
type Locker struct {
	// mu torna check-and-set e compare-and-delete atômicos
	mu     sync.Mutex
	leases *ttlcache.Cache[string, uint64]
	seq    atomic.Uint64
	retry  time.Duration
}

func NewLocker() *Locker {
	return &Locker{
		leases: ttlcache.New(
			ttlcache.WithDisableTouchOnHit[string, uint64](),
		),
		retry: time.Millisecond,
	}
}

func (l *Locker) WithLock(ctx context.Context, key string, wait, hold time.Duration, fn func(ctx context.Context) error) (bool, error) {
	token := l.seq.Add(1)
	deadline := time.Now().Add(wait)

	for !l.tryAcquire(key, token, hold) {
		if !time.Now().Before(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, nil
		case <-time.After(l.retry):
		}
	}
	defer l.release(key, token)

	fctx, cancel := context.WithTimeout(ctx, hold)
	defer cancel()
	return true, fn(fctx)
}

func (l *Locker) tryAcquire(key string, token uint64, hold time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.leases.Get(key) != nil {
		return false
	}
	l.leases.Set(key, token, hold)
	return true
}

// release só remove se o lease ainda for nosso (pode ter expirado e trocado de dono).
func (l *Locker) release(key string, token uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if item := l.leases.Get(key); item != nil && item.Value() == token {
		l.leases.Delete(key)
	}
}
