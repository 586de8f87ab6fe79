package orderflow

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// RetryConfig задаёт повторы сохранения при конфликте версий.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  10 * time.Millisecond,
		MaxDelay:      200 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

// Mutator применяет изменения к заказу через optimistic locking.
// При конфликте версий заказ перечитывается и изменение применяется заново,
// поэтому проверки внутри fn (например, "оплата только из unpaid") всегда
// выполняются над актуальным состоянием.
type Mutator struct {
	orders domain.OrderRepository
	config RetryConfig
	logger *log.Entry
}

// NewMutator создаёт Mutator поверх репозитория заказов.
func NewMutator(orders domain.OrderRepository, config RetryConfig, logger *log.Entry) *Mutator {
	if logger == nil {
		logger = log.New().WithField("component", "order-mutator")
	}
	if config.MaxAttempts <= 0 {
		config = DefaultRetryConfig()
	}
	return &Mutator{orders: orders, config: config, logger: logger}
}

// Apply загружает заказ, вызывает fn и сохраняет результат.
// Ошибка fn возвращается как есть вместе с загруженным заказом, без записи.
func (m *Mutator) Apply(ctx context.Context, orderID string, fn func(order *domain.Order) error) (domain.Order, error) {
	delay := m.config.InitialDelay

	for attempt := 1; ; attempt++ {
		order, err := m.orders.Get(ctx, orderID)
		if err != nil {
			return domain.Order{}, err
		}

		if err := fn(&order); err != nil {
			return order, err
		}

		err = m.orders.Save(ctx, order)
		if err == nil {
			order.Version++
			return order, nil
		}
		if !domain.IsVersionConflict(err) || attempt >= m.config.MaxAttempts {
			m.logger.WithError(err).WithFields(log.Fields{
				"order_id": orderID,
				"attempt":  attempt,
			}).Error("failed to persist order")
			return order, err
		}

		m.logger.WithFields(log.Fields{
			"order_id": orderID,
			"attempt":  attempt,
			"version":  order.Version,
		}).Warn("version conflict detected, retrying")

		select {
		case <-ctx.Done():
			return order, ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * m.config.BackoffFactor)
		if delay > m.config.MaxDelay {
			delay = m.config.MaxDelay
		}
	}
}
