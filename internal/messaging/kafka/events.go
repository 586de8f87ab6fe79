package kafka

import (
	"encoding/json"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// EventType определяет тип события во внешних топиках.
type EventType string

const (
	EventTypeOrderCreated       EventType = "order.created"
	EventTypeOrderPaid          EventType = "order.paid"
	EventTypeOrderRefunded      EventType = "order.refunded"
	EventTypeOrderStatusChanged EventType = "order.status_changed"
	EventTypeInventoryShortfall EventType = "order.inventory_shortfall"
	EventTypeSignatureRejected  EventType = "payment.signature_rejected"
	EventTypeRedemptionFailed   EventType = "coupon.redemption_failed"

	EventTypeNotificationRequested EventType = "notification.requested"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "storefront.order.events"
	TopicNotifications   = "storefront.notifications"
	TopicDeadLetterQueue = "storefront.dlq"
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

var outboxEventTypes = map[string]EventType{
	domain.EventOrderCreated:       EventTypeOrderCreated,
	domain.EventPaymentConfirmed:   EventTypeOrderPaid,
	domain.EventPaymentRefunded:    EventTypeOrderRefunded,
	domain.EventOrderStatusChanged: EventTypeOrderStatusChanged,
	domain.EventInventoryShortfall: EventTypeInventoryShortfall,
	domain.EventSignatureRejected:  EventTypeSignatureRejected,
	domain.EventRedemptionFailed:   EventTypeRedemptionFailed,
}

// EventTypeFor переводит внутренний тип события outbox во внешний.
// Неизвестные типы публикуются как есть.
func EventTypeFor(outboxType string) EventType {
	if t, ok := outboxEventTypes[outboxType]; ok {
		return t
	}
	return EventType(outboxType)
}

// OrderEvent — конверт события заказа в топике TopicOrderEvents.
type OrderEvent struct {
	ID          string          `json:"id"`
	EventType   EventType       `json:"event_type"`
	OrderID     string          `json:"order_id"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	PublishedAt time.Time       `json:"published_at"`
}

// NotificationEvent — запрос на отправку письма в топике TopicNotifications.
type NotificationEvent struct {
	EventType   EventType `json:"event_type"`
	To          string    `json:"to"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	OrderID     string    `json:"order_id,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewNotificationEvent упаковывает уведомление домена в событие.
func NewNotificationEvent(n domain.Notification) *NotificationEvent {
	return &NotificationEvent{
		EventType:   EventTypeNotificationRequested,
		To:          n.To,
		Subject:     n.Subject,
		Body:        n.Body,
		OrderID:     n.OrderID,
		RequestedAt: time.Now().UTC(),
	}
}

// Notification возвращает уведомление домена из события.
func (e *NotificationEvent) Notification() domain.Notification {
	return domain.Notification{
		To:      e.To,
		Subject: e.Subject,
		Body:    e.Body,
		OrderID: e.OrderID,
	}
}

// DeadLetter — сообщение, которое не удалось обработать после всех попыток.
type DeadLetter struct {
	OriginalTopic     string    `json:"original_topic"`
	OriginalPartition int32     `json:"original_partition"`
	OriginalOffset    int64     `json:"original_offset"`
	OriginalKey       string    `json:"original_key"`
	OriginalValue     string    `json:"original_value"`
	EventType         EventType `json:"event_type,omitempty"`
	ErrorMessage      string    `json:"error_message"`
	Malformed         bool      `json:"malformed,omitempty"`
	FailedAt          time.Time `json:"failed_at"`
	RetryCount        int       `json:"retry_count"`
}
