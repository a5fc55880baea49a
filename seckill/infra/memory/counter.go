package memory

import (
	"context"
	"sync"
	"time"
)

type Counter struct {
	mu     sync.Mutex
	values map[int64]int64
}

func NewCounter() *Counter {
	return &Counter{values: make(map[int64]int64)}
}

func (c *Counter) TryDecrement(_ context.Context, activityID int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.values[activityID]
	if !ok || v <= 0 {
		return false, nil
	}
	c.values[activityID] = v - 1
	return true, nil
}

// Increment não cria contador ausente, como no Redis.
func (c *Counter) Increment(_ context.Context, activityID int64) error {
	c.mu.Lock()
	if _, ok := c.values[activityID]; ok {
		c.values[activityID]++
	}
	c.mu.Unlock()
	return nil
}

// WarmUp ignora o ttl: em memória o processo inteiro é o horizonte.
func (c *Counter) WarmUp(_ context.Context, activityID int64, value int64, _ time.Duration) error {
	c.mu.Lock()
	c.values[activityID] = value
	c.mu.Unlock()
	return nil
}

func (c *Counter) Value(_ context.Context, activityID int64) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[activityID]
	return v, ok, nil
}

// Delete simula perda do contador (ex: reinício do Redis).
func (c *Counter) Delete(activityID int64) {
	c.mu.Lock()
	delete(c.values, activityID)
	c.mu.Unlock()
}
