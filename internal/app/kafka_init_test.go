package app

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/service/notification"
)

func TestInitKafkaProducer_EmptyBrokers(t *testing.T) {
	logger := log.WithField("test", "kafka")

	producer, err := initKafkaProducer(nil, logger)
	if err != nil {
		t.Errorf("expected no error for empty brokers, got %v", err)
	}
	if producer != nil {
		t.Error("expected nil producer for empty brokers")
	}
}

func TestInitKafkaProducer_UnreachableBrokers(t *testing.T) {
	logger := log.WithField("test", "kafka")

	producer, err := initKafkaProducer([]string{"invalid-broker:9999"}, logger)
	if err == nil {
		t.Error("expected error for unreachable brokers")
	}
	if producer != nil {
		t.Error("expected nil producer on error")
	}
}

func TestStartNotificationRelay_Disabled(t *testing.T) {
	logger := log.WithField("test", "kafka-relay")
	mailer := notification.NewLogNotifier(logger)

	if relay := startNotificationRelay(context.Background(), nil, "storefront-mailer", mailer, nil, logger); relay != nil {
		t.Error("relay must not start without brokers")
	}
	if relay := startNotificationRelay(context.Background(), []string{"localhost:9092"}, "", mailer, nil, logger); relay != nil {
		t.Error("relay must not start without consumer group")
	}
}

func TestKafkaHelpers_NilSafe(_ *testing.T) {
	logger := log.WithField("test", "kafka")

	closeKafkaProducer(nil, logger)
	stopNotificationRelay(nil, logger)
}
