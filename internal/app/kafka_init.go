package app

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

const (
	notificationRelayRetries = 3
	notificationRelayDelay   = 100 * time.Millisecond
)

// initKafkaProducer создаёт producer, если брокеры заданы.
// Пустой список брокеров — не ошибка: сервис работает без Kafka.
func initKafkaProducer(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// startNotificationRelay читает топик уведомлений и передаёт их mailer.
// Без consumer group relay не запускается: письма читает внешний сервис.
func startNotificationRelay(ctx context.Context, brokers []string, group string, mailer domain.Notifier, dlq *kafka.Producer, logger *log.Entry) *kafka.Consumer {
	if len(brokers) == 0 || group == "" {
		return nil
	}

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:    brokers,
		GroupID:    group,
		Topics:     []string{kafka.TopicNotifications},
		MaxRetries: notificationRelayRetries,
		RetryDelay: notificationRelayDelay,
	}, kafka.NewNotificationHandler(mailer), dlq)
	if err != nil {
		logger.WithError(err).Warn("failed to create notification relay, continuing without it")
		return nil
	}
	if err := consumer.Start(ctx); err != nil {
		logger.WithError(err).Warn("failed to start notification relay")
		_ = consumer.Stop()
		return nil
	}

	logger.WithField("group", group).Info("notification relay started")
	return consumer
}

func stopNotificationRelay(consumer *kafka.Consumer, logger *log.Entry) {
	if consumer == nil {
		return
	}
	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop notification relay")
	}
}

func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}
