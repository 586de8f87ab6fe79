package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// MessageHandler обрабатывает одно сообщение топика.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// ErrMalformedMessage — сообщение нельзя обработать никаким числом попыток.
var ErrMalformedMessage = errors.New("malformed message")

// Malformed помечает ошибку как неисправимую: сообщение уходит в DLQ без повторов.
func Malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedMessage, fmt.Sprintf(format, args...))
}

// ConsumerConfig описывает подписку relay-а.
type ConsumerConfig struct {
	Brokers    []string
	GroupID    string
	Topics     []string
	MaxRetries int
	RetryDelay time.Duration
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 1
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	return c
}

// Consumer читает consumer group и передаёт сообщения в handler.
// Сообщение, не обработанное за MaxRetries попыток (с учётом x-retry-count),
// уходит в DLQ, если producer задан.
type Consumer struct {
	group   sarama.ConsumerGroup
	cfg     ConsumerConfig
	handler MessageHandler
	dlq     *Producer
	logger  *log.Entry
	now     func() time.Time
	wg      sync.WaitGroup
}

// NewConsumer подключается к consumer group. dlq == nil отключает DLQ:
// необработанное сообщение остаётся неподтверждённым.
func NewConsumer(cfg ConsumerConfig, handler MessageHandler, dlq *Producer) (*Consumer, error) {
	config := sarama.NewConfig()
	config.ClientID = clientID
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	return newConsumer(group, cfg, handler, dlq), nil
}

func newConsumer(group sarama.ConsumerGroup, cfg ConsumerConfig, handler MessageHandler, dlq *Producer) *Consumer {
	return &Consumer{
		group:   group,
		cfg:     cfg.withDefaults(),
		handler: handler,
		dlq:     dlq,
		logger:  log.WithField("component", "kafka-consumer").WithField("group", cfg.GroupID),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Start запускает чтение в фоне; остановка через отмену ctx и Stop.
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		for {
			// Consume завершается при каждом rebalance.
			if err := c.group.Consume(ctx, c.cfg.Topics, c); err != nil {
				c.logger.WithError(err).Error("consumer group session failed")
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
	go func() {
		defer c.wg.Done()
		for err := range c.group.Errors() {
			c.logger.WithError(err).Error("consumer error")
		}
	}()

	c.logger.WithField("topics", c.cfg.Topics).Info("kafka consumer started")
	return nil
}

// Stop закрывает группу и ждёт фоновые горутины.
func (c *Consumer) Stop() error {
	if err := c.group.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim подтверждает сообщение, только если оно обработано или
// сохранено в DLQ.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			logger := c.logger.WithFields(log.Fields{
				"topic":     message.Topic,
				"partition": message.Partition,
				"offset":    message.Offset,
			})
			if err := c.deliver(session.Context(), message, logger); err != nil {
				logger.WithError(err).Error("message left unacknowledged")
				continue
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// deliver вызывает handler до исчерпания попыток. Ошибка ErrMalformedMessage
// прекращает повторы сразу.
func (c *Consumer) deliver(ctx context.Context, message *sarama.ConsumerMessage, logger *log.Entry) error {
	previous := retryCount(message)
	attempts := c.cfg.MaxRetries - previous
	if attempts < 1 {
		attempts = 1
	}

	var err error
	made := 0
	for made < attempts {
		made++
		if err = c.handler(ctx, message); err == nil {
			return nil
		}
		if errors.Is(err, ErrMalformedMessage) || made == attempts {
			break
		}
		logger.WithError(err).WithField("attempt", previous+made).Warn("message processing failed, will retry")
		if c.cfg.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.cfg.RetryDelay):
			}
		}
	}

	if c.dlq == nil {
		return err
	}
	if dlqErr := c.dlq.PublishEvent(TopicDeadLetterQueue, string(message.Key), c.deadLetter(message, err, previous+made)); dlqErr != nil {
		return fmt.Errorf("failed to send to DLQ: %w", dlqErr)
	}
	logger.WithError(err).WithField("retry_count", previous+made).Warn("message moved to DLQ")
	return nil
}

func (c *Consumer) deadLetter(message *sarama.ConsumerMessage, processingErr error, attempts int) DeadLetter {
	var envelope struct {
		EventType EventType `json:"event_type"`
	}
	_ = json.Unmarshal(message.Value, &envelope)

	return DeadLetter{
		OriginalTopic:     message.Topic,
		OriginalPartition: message.Partition,
		OriginalOffset:    message.Offset,
		OriginalKey:       string(message.Key),
		OriginalValue:     string(message.Value),
		EventType:         envelope.EventType,
		ErrorMessage:      processingErr.Error(),
		Malformed:         errors.Is(processingErr, ErrMalformedMessage),
		FailedAt:          c.now(),
		RetryCount:        attempts,
	}
}

func retryCount(message *sarama.ConsumerMessage) int {
	for _, header := range message.Headers {
		if string(header.Key) != HeaderRetryCount {
			continue
		}
		if n, err := strconv.Atoi(string(header.Value)); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

// ParseOrderEvent читает конверт события заказа.
func ParseOrderEvent(message *sarama.ConsumerMessage) (*OrderEvent, error) {
	var event OrderEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return nil, Malformed("order event at offset %d: %v", message.Offset, err)
	}
	if event.OrderID == "" {
		return nil, Malformed("order event at offset %d has no order id", message.Offset)
	}
	return &event, nil
}

// ParseNotificationEvent читает запрос на письмо. Событие без получателя
// не может быть доставлено.
func ParseNotificationEvent(message *sarama.ConsumerMessage) (*NotificationEvent, error) {
	var event NotificationEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return nil, Malformed("notification at offset %d: %v", message.Offset, err)
	}
	if event.To == "" {
		return nil, Malformed("notification at offset %d has no recipient", message.Offset)
	}
	return &event, nil
}
