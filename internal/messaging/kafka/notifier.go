package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Notifier передаёт уведомления во внешний почтовый сервис через TopicNotifications.
type Notifier struct {
	producer *Producer
	topic    string
}

// NewNotifier создаёт Kafka-реализацию domain.Notifier.
func NewNotifier(producer *Producer, topic string) *Notifier {
	if topic == "" {
		topic = TopicNotifications
	}
	return &Notifier{producer: producer, topic: topic}
}

func (n *Notifier) Notify(ctx context.Context, notification domain.Notification) error {
	if n == nil || n.producer == nil {
		return fmt.Errorf("kafka notifier is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	key := notification.OrderID
	if key == "" {
		key = notification.To
	}
	return n.producer.PublishEvent(n.topic, key, NewNotificationEvent(notification))
}

var _ domain.Notifier = (*Notifier)(nil)

// NewNotificationHandler возвращает обработчик TopicNotifications, который
// передаёт уведомление конечному отправителю (mailer).
func NewNotificationHandler(mailer domain.Notifier) MessageHandler {
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		event, err := ParseNotificationEvent(message)
		if err != nil {
			return err
		}
		return mailer.Notify(ctx, event.Notification())
	}
}
