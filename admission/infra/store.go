package infra

import (
	"context"
	"strings"
	"sync"
	"time"

	"flashsale/admission/domain"

	"golang.org/x/time/rate"
)

// Store mantém um token bucket por chave, criado sob demanda.
//
// Chaves com prefixo registrado via WithPrefixLimit usam taxa própria; as demais
// usam a taxa padrão. Entradas ociosas são removidas pelo janitor.
type Store struct {
	mu           sync.Mutex
	entries      map[string]*storeEntry
	rps          rate.Limit
	burst        int
	overrides    []prefixLimit
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type storeEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type prefixLimit struct {
	prefix string
	rps    rate.Limit
	burst  int
}

type StoreOption func(*Store)

func WithIdleTTL(d time.Duration) StoreOption {
	return func(s *Store) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) StoreOption {
	return func(s *Store) { s.cleanupEvery = d }
}

// WithPrefixLimit define uma taxa específica para chaves que começam com prefix
// (ex: "allocate:" recebe o orçamento do endpoint de alocação).
func WithPrefixLimit(prefix string, rps float64, burst int) StoreOption {
	return func(s *Store) {
		s.overrides = append(s.overrides, prefixLimit{prefix: prefix, rps: rate.Limit(rps), burst: burst})
	}
}

func NewStore(rps float64, burst int, opts ...StoreOption) *Store {
	s := &Store{
		entries:      make(map[string]*storeEntry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) RPS() float64 { return float64(s.rps) }
func (s *Store) Burst() int   { return s.burst }

// Get implementa domain.LimiterStore.
func (s *Store) Get(key domain.Key) domain.Limiter {
	return s.limiter(string(key))
}

func (s *Store) limiter(key string) *rate.Limiter {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	rps, burst := s.rps, s.burst
	for _, o := range s.overrides {
		if strings.HasPrefix(key, o.prefix) {
			rps, burst = o.rps, o.burst
			break
		}
	}

	lim := rate.NewLimiter(rps, burst)
	s.entries[key] = &storeEntry{lim: lim, lastSeen: now}
	return lim
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) Cleanup() {
	cutoff := time.Now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor limpa chaves inativas periodicamente até o ctx encerrar.
func (s *Store) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
