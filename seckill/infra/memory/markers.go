package memory

import (
	"context"
	"sync"
	"time"

	"flashsale/seckill/domain"

	"github.com/jellydator/ttlcache/v3"
)

type markerKey struct {
	requesterID int64
	activityID  int64
}

// Markers guarda os marcadores de admissão com TTL por item. A expiração segue
// o relógio do processo, como o TTL de uma chave no Redis.
type Markers struct {
	// mu torna Reject atômico (ler o TTL restante e regravar)
	mu    sync.Mutex
	cache *ttlcache.Cache[markerKey, domain.MarkerState]
}

func NewMarkers() *Markers {
	return &Markers{
		cache: ttlcache.New(
			ttlcache.WithDisableTouchOnHit[markerKey, domain.MarkerState](),
		),
	}
}

func (m *Markers) State(_ context.Context, requesterID, activityID int64) (domain.MarkerState, error) {
	item := m.cache.Get(markerKey{requesterID, activityID})
	if item == nil {
		return domain.MarkerNone, nil
	}
	return item.Value(), nil
}

func (m *Markers) Mark(_ context.Context, requesterID, activityID int64, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	m.mu.Lock()
	m.cache.Set(markerKey{requesterID, activityID}, domain.MarkerPending, ttl)
	m.mu.Unlock()
	return nil
}

// Reject só altera marcador existente e mantém o instante de expiração.
func (m *Markers) Reject(_ context.Context, requesterID, activityID int64) error {
	k := markerKey{requesterID, activityID}

	m.mu.Lock()
	defer m.mu.Unlock()

	item := m.cache.Get(k)
	if item == nil {
		return nil
	}
	ttl := ttlcache.NoTTL
	if item.TTL() > 0 {
		ttl = time.Until(item.ExpiresAt())
		if ttl <= 0 {
			m.cache.Delete(k)
			return nil
		}
	}
	m.cache.Set(k, domain.MarkerRejected, ttl)
	return nil
}

func (m *Markers) Clear(_ context.Context, requesterID, activityID int64) error {
	m.mu.Lock()
	m.cache.Delete(markerKey{requesterID, activityID})
	m.mu.Unlock()
	return nil
}

// Run remove marcadores expirados em segundo plano até o ctx encerrar.
func (m *Markers) Run(ctx context.Context) error {
	go m.cache.Start()
	<-ctx.Done()
	m.cache.Stop()
	return nil
}
