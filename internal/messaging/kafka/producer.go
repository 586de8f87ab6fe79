package kafka

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const clientID = "storefront"

// HeaderEventType дублирует event_type конверта, чтобы потребители
// могли отбирать записи без разбора JSON.
const HeaderEventType = "x-event-type"

// typedEvent — конверт, тип которого выносится в заголовок.
type typedEvent interface {
	kafkaEventType() EventType
}

func (e OrderEvent) kafkaEventType() EventType        { return e.EventType }
func (e NotificationEvent) kafkaEventType() EventType { return e.EventType }
func (d DeadLetter) kafkaEventType() EventType        { return d.EventType }

// Producer отправляет конверты витрины в Kafka синхронно: вызывающий
// узнаёт о результате до того, как пометит outbox-запись отправленной.
type Producer struct {
	producer sarama.SyncProducer
	logger   *log.Entry
	now      func() time.Time
}

// NewProducer создаёт идемпотентный producer с подтверждением от всех реплик.
func NewProducer(brokers []string) (*Producer, error) {
	config := sarama.NewConfig()
	config.ClientID = clientID
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("connect kafka producer to %v: %w", brokers, err)
	}
	return NewProducerFromSync(producer, nil), nil
}

// NewProducerFromSync оборачивает готовый SyncProducer (например, sarama/mocks).
func NewProducerFromSync(producer sarama.SyncProducer, logger *log.Entry) *Producer {
	if logger == nil {
		logger = log.WithField("component", "kafka-producer")
	}
	return &Producer{producer: producer, logger: logger, now: time.Now}
}

// PublishEvent кодирует event в JSON и отправляет его в topic с ключом key.
// Ключ — id заказа, поэтому события одного заказа идут в одну партицию.
func (p *Producer) PublishEvent(topic string, key string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %T for %s: %w", event, topic, err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(body),
		Headers:   headersFor(event),
		Timestamp: p.now(),
	}

	entry := p.logger.WithFields(log.Fields{"topic": topic, "key": key})
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		entry.WithError(err).Error("kafka send failed")
		return fmt.Errorf("send to %s: %w", topic, err)
	}
	entry.WithFields(log.Fields{"partition": partition, "offset": offset}).Debug("kafka record sent")
	return nil
}

// headersFor собирает заголовки записи. У dead letter к типу события
// добавляются исходный топик, ошибка, время сбоя и число попыток.
func headersFor(event any) []sarama.RecordHeader {
	var headers []sarama.RecordHeader
	add := func(key, value string) {
		if value != "" {
			headers = append(headers, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
		}
	}

	if typed, ok := event.(typedEvent); ok {
		add(HeaderEventType, string(typed.kafkaEventType()))
	}

	var dead *DeadLetter
	switch v := event.(type) {
	case DeadLetter:
		dead = &v
	case *DeadLetter:
		dead = v
	}
	if dead != nil {
		add(HeaderOriginalTopic, dead.OriginalTopic)
		add(HeaderErrorMessage, dead.ErrorMessage)
		add(HeaderRetryCount, strconv.Itoa(dead.RetryCount))
		if !dead.FailedAt.IsZero() {
			add(HeaderFailedAt, dead.FailedAt.UTC().Format(time.RFC3339Nano))
		}
	}
	return headers
}

func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
