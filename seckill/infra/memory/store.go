package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"flashsale/seckill/domain"
)

type txKey struct{}

// Store é o armazenamento durável em memória. WithTx serializa tudo num mutex e
// restaura a fotografia anterior se fn falhar.
type Store struct {
	mu         sync.Mutex
	activities map[int64]domain.Activity
	orders     map[string]domain.Order
}

func NewStore() *Store {
	return &Store{
		activities: make(map[int64]domain.Activity),
		orders:     make(map[string]domain.Order),
	}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	activities := make(map[int64]domain.Activity, len(s.activities))
	for k, v := range s.activities {
		activities[k] = v
	}
	orders := make(map[string]domain.Order, len(s.orders))
	for k, v := range s.orders {
		orders[k] = v
	}

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.activities = activities
		s.orders = orders
		return err
	}
	return nil
}

func (s *Store) lock(ctx context.Context) func() {
	if ctx.Value(txKey{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// PutActivity cria ou substitui uma atividade (papel do colaborador de gestão).
func (s *Store) PutActivity(a domain.Activity) {
	s.mu.Lock()
	s.activities[a.ID] = a
	s.mu.Unlock()
}

func (s *Store) GetActivity(ctx context.Context, id int64) (domain.Activity, error) {
	defer s.lock(ctx)()
	a, ok := s.activities[id]
	if !ok {
		return domain.Activity{}, domain.ErrActivityNotFound
	}
	return a, nil
}

func (s *Store) ListOpenActivities(ctx context.Context, now time.Time) ([]domain.Activity, error) {
	defer s.lock(ctx)()
	out := make([]domain.Activity, 0, len(s.activities))
	for _, a := range s.activities {
		if !a.Ended(now) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DecrementAvailable(ctx context.Context, activityID int64) (int64, bool, error) {
	defer s.lock(ctx)()
	a, ok := s.activities[activityID]
	if !ok {
		return 0, false, domain.ErrActivityNotFound
	}
	if a.AvailableStock <= 0 {
		return a.Version, false, nil
	}
	a.AvailableStock--
	a.Version++
	s.activities[activityID] = a
	return a.Version, true, nil
}

func (s *Store) IncrementAvailable(ctx context.Context, activityID int64) (bool, error) {
	defer s.lock(ctx)()
	a, ok := s.activities[activityID]
	if !ok {
		return false, domain.ErrActivityNotFound
	}
	if a.AvailableStock >= a.TotalStock {
		return false, nil
	}
	a.AvailableStock++
	a.Version++
	s.activities[activityID] = a
	return true, nil
}

func (s *Store) FindOrderByToken(ctx context.Context, token string) (*domain.Order, error) {
	defer s.lock(ctx)()
	o, ok := s.orders[token]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (s *Store) FindActiveOrder(ctx context.Context, requesterID, activityID int64) (*domain.Order, error) {
	defer s.lock(ctx)()
	return s.activeOrder(requesterID, activityID), nil
}

func (s *Store) activeOrder(requesterID, activityID int64) *domain.Order {
	for _, o := range s.orders {
		if o.RequesterID == requesterID && o.ActivityID == activityID && o.Status != domain.OrderCancelled {
			o := o
			return &o
		}
	}
	return nil
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) error {
	defer s.lock(ctx)()
	if _, exists := s.orders[order.Token]; exists {
		return domain.ErrDuplicateOrder
	}
	if s.activeOrder(order.RequesterID, order.ActivityID) != nil {
		return domain.ErrDuplicateOrder
	}
	s.orders[order.Token] = order
	return nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, token string, from, to domain.OrderStatus) (bool, error) {
	defer s.lock(ctx)()
	o, ok := s.orders[token]
	if !ok || o.Status != from {
		return false, nil
	}
	// reativar um pedido cancelado respeita a unicidade de pedido ativo
	if from == domain.OrderCancelled && to != domain.OrderCancelled && s.activeOrder(o.RequesterID, o.ActivityID) != nil {
		return false, domain.ErrDuplicateOrder
	}
	o.Status = to
	s.orders[token] = o
	return true, nil
}

func (s *Store) CountConfirmed(ctx context.Context, activityID int64) (int64, error) {
	defer s.lock(ctx)()
	var n int64
	for _, o := range s.orders {
		if o.ActivityID == activityID && o.Status == domain.OrderConfirmed {
			n++
		}
	}
	return n, nil
}
