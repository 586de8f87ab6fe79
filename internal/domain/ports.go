package domain

import (
	"context"
	"time"
)

// InventoryLedger владеет остатками по вариантам.
type InventoryLedger interface {
	// Reserve атомарно проверяет и списывает остаток.
	Reserve(ctx context.Context, productID, size, color string, qty int) error
	// Available возвращает текущий остаток без изменений.
	Available(ctx context.Context, productID, size, color string) (int, error)
}

// Notification — запрос на отправку письма внешнему почтовому сервису.
type Notification struct {
	To      string
	Subject string
	Body    string
	OrderID string
}

// Notifier отправляет уведомления. Ошибка отправки не откатывает операцию.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// Типы событий заказа для outbox и timeline.
const (
	EventOrderCreated       = "OrderCreated"
	EventInventoryShortfall = "InventoryShortfall"
	EventPaymentConfirmed   = "PaymentConfirmed"
	EventPaymentRefunded    = "PaymentRefunded"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventSignatureRejected  = "PaymentSignatureRejected"
	EventRedemptionFailed   = "CouponRedemptionFailed"

	AggregateTypeOrder = "order"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStatus — состояние сообщения в outbox.
type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "pending"
	OutboxStatusSent    OutboxStatus = "sent"
	OutboxStatusFailed  OutboxStatus = "failed"
)

// OutboxClaimTTL — сколько сообщение остаётся за забравшим его воркером.
// Неподтверждённое сообщение по истечении срока снова попадает в выборку.
const OutboxClaimTTL = 30 * time.Second

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
