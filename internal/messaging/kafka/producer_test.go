package kafka

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestProducer_PublishEvent(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSync(mockProducer, log.WithField("component", "kafka-producer-test"))

	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var event NotificationEvent
		if err := json.Unmarshal(val, &event); err != nil {
			return err
		}
		if event.To != "buyer@example.com" {
			t.Errorf("unexpected recipient %q", event.To)
		}
		return nil
	})

	event := NewNotificationEvent(domain.Notification{To: "buyer@example.com", Subject: "Order Confirmation", OrderID: "order-1"})
	if err := producer.PublishEvent(TopicNotifications, "order-1", event); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSync(mockProducer, nil)

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	if err := producer.PublishEvent(TopicOrderEvents, "order-1", OrderEvent{OrderID: "order-1"}); err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_MarshalError(t *testing.T) {
	producer := NewProducerFromSync(mocks.NewSyncProducer(t, nil), nil)

	if err := producer.PublishEvent(TopicOrderEvents, "k", map[string]any{"bad": make(chan int)}); err == nil {
		t.Fatal("expected marshal error")
	}
}

func TestEventTypeFor(t *testing.T) {
	tests := map[string]EventType{
		domain.EventOrderCreated:       EventTypeOrderCreated,
		domain.EventPaymentConfirmed:   EventTypeOrderPaid,
		domain.EventOrderStatusChanged: EventTypeOrderStatusChanged,
		domain.EventInventoryShortfall: EventTypeInventoryShortfall,
		domain.EventRedemptionFailed:   EventTypeRedemptionFailed,
		"Custom":                       EventType("Custom"),
	}
	for in, want := range tests {
		if got := EventTypeFor(in); got != want {
			t.Errorf("EventTypeFor(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNotificationEventRoundTrip(t *testing.T) {
	n := domain.Notification{To: "a@b.c", Subject: "S", Body: "B", OrderID: "o-1"}
	event := NewNotificationEvent(n)

	if event.EventType != EventTypeNotificationRequested {
		t.Fatalf("unexpected event type %s", event.EventType)
	}
	if event.RequestedAt.IsZero() {
		t.Fatal("requested_at should be set")
	}
	if event.Notification() != n {
		t.Fatalf("unexpected notification: %+v", event.Notification())
	}
}

func TestProducer_PublishEvent_Headers(t *testing.T) {
	failedAt := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	cases := []struct {
		name  string
		event any
		want  map[string]string
	}{
		{
			name:  "order event",
			event: OrderEvent{ID: "evt-1", EventType: EventTypeOrderPaid, OrderID: "order-1"},
			want:  map[string]string{HeaderEventType: string(EventTypeOrderPaid)},
		},
		{
			name:  "notification",
			event: NewNotificationEvent(domain.Notification{To: "buyer@example.com", OrderID: "order-1"}),
			want:  map[string]string{HeaderEventType: string(EventTypeNotificationRequested)},
		},
		{
			name: "dead letter",
			event: DeadLetter{
				OriginalTopic: TopicNotifications,
				EventType:     EventTypeNotificationRequested,
				ErrorMessage:  "smtp unavailable",
				FailedAt:      failedAt,
				RetryCount:    3,
			},
			want: map[string]string{
				HeaderEventType:     string(EventTypeNotificationRequested),
				HeaderOriginalTopic: TopicNotifications,
				HeaderErrorMessage:  "smtp unavailable",
				HeaderRetryCount:    "3",
				HeaderFailedAt:      failedAt.Format(time.RFC3339Nano),
			},
		},
		{
			name:  "untyped payload",
			event: map[string]string{"k": "v"},
			want:  map[string]string{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mockProducer := mocks.NewSyncProducer(t, nil)
			producer := NewProducerFromSync(mockProducer, nil)

			mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
				got := make(map[string]string, len(msg.Headers))
				for _, h := range msg.Headers {
					got[string(h.Key)] = string(h.Value)
				}
				if len(got) != len(tc.want) {
					return fmt.Errorf("headers %v, want %v", got, tc.want)
				}
				for k, v := range tc.want {
					if got[k] != v {
						return fmt.Errorf("header %s = %q, want %q", k, got[k], v)
					}
				}
				return nil
			})

			if err := producer.PublishEvent(TopicOrderEvents, "order-1", tc.event); err != nil {
				t.Fatalf("publish: %v", err)
			}
			if err := mockProducer.Close(); err != nil {
				t.Fatal(err)
			}
		})
	}
}
