// Package cache fica na frente do armazenamento durável no caminho de leitura
// de atividades (janela e status mudam raramente; estoque aqui é só informativo).
package cache

import (
	"context"
	"time"

	"flashsale/seckill/domain"

	"github.com/jellydator/ttlcache/v3"
)

// ActivityCache é um ActivityReader read-through com TTL fixo. Erros, inclusive
// "não encontrada", não são cacheados.
type ActivityCache struct {
	next  domain.ActivityReader
	cache *ttlcache.Cache[int64, domain.Activity]
}

func NewActivityCache(next domain.ActivityReader, ttl time.Duration) *ActivityCache {
	return &ActivityCache{
		next: next,
		cache: ttlcache.New(
			ttlcache.WithTTL[int64, domain.Activity](ttl),
			ttlcache.WithDisableTouchOnHit[int64, domain.Activity](),
		),
	}
}

func (c *ActivityCache) GetActivity(ctx context.Context, id int64) (domain.Activity, error) {
	if item := c.cache.Get(id); item != nil {
		return item.Value(), nil
	}
	a, err := c.next.GetActivity(ctx, id)
	if err != nil {
		return domain.Activity{}, err
	}
	c.cache.Set(id, a, ttlcache.DefaultTTL)
	return a, nil
}

func (c *ActivityCache) Invalidate(id int64) {
	c.cache.Delete(id)
}

func (c *ActivityCache) Len() int {
	return c.cache.Len()
}

// Run remove entradas expiradas em segundo plano até o ctx encerrar.
func (c *ActivityCache) Run(ctx context.Context) error {
	go c.cache.Start()
	<-ctx.Done()
	c.cache.Stop()
	return nil
}
