package application

import (
	"context"
	"log/slog"

	"flashsale/seckill/domain"
	"flashsale/seckill/metrics"
)

type OrderServiceDeps struct {
	Tx         domain.Transactor
	Activities domain.ActivityStore
	Orders     domain.OrderStore
	Counter    domain.StockCounter
	Markers    domain.MarkerStore
}

// OrderService cuida do pós-venda: cancelamento devolve a unidade ao estoque
// durável e ao contador rápido.
type OrderService struct {
	deps   OrderServiceDeps
	logger *slog.Logger
}

func NewOrderService(deps OrderServiceDeps, logger *slog.Logger) *OrderService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderService{deps: deps, logger: logger}
}

func (s *OrderService) Get(ctx context.Context, token string) (domain.Order, error) {
	order, err := s.deps.Orders.FindOrderByToken(ctx, token)
	if err != nil {
		return domain.Order{}, err
	}
	if order == nil {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return *order, nil
}

// Cancel é idempotente: cancelar um pedido já cancelado não devolve estoque de novo.
func (s *OrderService) Cancel(ctx context.Context, token string) error {
	var order domain.Order
	var changed, restored bool

	err := s.deps.Tx.WithTx(ctx, func(txCtx context.Context) error {
		found, err := s.deps.Orders.FindOrderByToken(txCtx, token)
		if err != nil {
			return err
		}
		if found == nil {
			return domain.ErrOrderNotFound
		}
		order = *found
		if order.Status == domain.OrderCancelled {
			return nil
		}

		changed, err = s.deps.Orders.UpdateOrderStatus(txCtx, token, order.Status, domain.OrderCancelled)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		restored, err = s.deps.Activities.IncrementAvailable(txCtx, order.ActivityID)
		return err
	})
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	if !restored {
		// durável já estava no total: devolver ao contador criaria unidade fantasma
		s.logger.Warn("cancel did not restore durable stock", "token", token, "activity_id", order.ActivityID)
	} else if err := s.deps.Counter.Increment(ctx, order.ActivityID); err != nil {
		// o durável já devolveu; a reconciliação alinha o contador
		s.logger.Warn("counter increment after cancel failed", "token", token, "err", err)
	} else {
		metrics.RecordCompensation("cancelled")
	}
	if s.deps.Markers != nil {
		if err := s.deps.Markers.Clear(ctx, order.RequesterID, order.ActivityID); err != nil {
			s.logger.Warn("clear marker after cancel failed", "token", token, "err", err)
		}
	}
	s.logger.Info("order cancelled", "token", token, "activity_id", order.ActivityID, "requester_id", order.RequesterID)
	return nil
}
