package fulfillment

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/clock"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// OrderMutator применяет изменение к заказу с повтором при конфликте версий.
type OrderMutator interface {
	Apply(ctx context.Context, orderID string, fn func(order *domain.Order) error) (domain.Order, error)
}

// EventRecorder фиксирует события заказа.
type EventRecorder interface {
	Emit(ctx context.Context, orderID, eventType, reason string, payload map[string]any)
}

// StatusNotifier сообщает покупателю о смене статуса.
type StatusNotifier interface {
	StatusChanged(ctx context.Context, order domain.Order)
}

// Service двигает заказ по статусам исполнения.
type Service struct {
	mutator  OrderMutator
	recorder EventRecorder
	notifier StatusNotifier
	metrics  *metrics.StorefrontMetrics
	clock    clock.Clock
	logger   *log.Entry
}

// NewService создаёт сервис исполнения заказов.
func NewService(
	mutator OrderMutator,
	recorder EventRecorder,
	notifier StatusNotifier,
	m *metrics.StorefrontMetrics,
	clk clock.Clock,
	logger *log.Entry,
) *Service {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = log.New().WithField("component", "fulfillment")
	}
	return &Service{
		mutator:  mutator,
		recorder: recorder,
		notifier: notifier,
		metrics:  m,
		clock:    clk,
		logger:   logger,
	}
}

// ChangeStatus переводит заказ в статус status. Переход сохраняется до
// уведомления покупателя; ошибка уведомления только логируется.
func (s *Service) ChangeStatus(ctx context.Context, orderID string, actor domain.Actor, status domain.OrderStatus) (domain.Order, error) {
	var from domain.OrderStatus
	now := s.clock.Now()

	order, err := s.mutator.Apply(ctx, orderID, func(o *domain.Order) error {
		from = o.Status
		return o.TransitionStatus(actor, status, now)
	})
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"actor":    actor.UserID,
			"from":     from,
			"to":       status,
		}).Info("status transition rejected")
		return domain.Order{}, err
	}

	s.metrics.RecordStatusTransition(string(status))
	s.logger.WithFields(log.Fields{
		"order_id": orderID,
		"actor":    actor.UserID,
		"from":     from,
		"to":       status,
	}).Info("order status changed")

	if s.recorder != nil {
		s.recorder.Emit(ctx, orderID, domain.EventOrderStatusChanged, string(status), map[string]any{
			"from":  string(from),
			"to":    string(status),
			"actor": actor.UserID,
		})
	}
	if s.notifier != nil {
		s.notifier.StatusChanged(ctx, order)
	}
	return order, nil
}

// Cancel отменяет заказ. Остатки на склад не возвращаются.
func (s *Service) Cancel(ctx context.Context, orderID string, actor domain.Actor) (domain.Order, error) {
	return s.ChangeStatus(ctx, orderID, actor, domain.OrderStatusCancelled)
}
