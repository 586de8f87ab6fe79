// Команда dlq-replay возвращает сообщения из storefront.dlq в исходные топики.
// По умолчанию работает в режиме dry-run и только печатает кандидатов.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

const (
	defaultLimit       = 100
	defaultIdleTimeout = 2 * time.Second
	envKafkaBrokers    = "STOREFRONT_KAFKA_BROKERS"
)

type config struct {
	brokers     []string
	sourceTopic string
	limit       int
	execute     bool
	idleTimeout time.Duration
}

// replayMessage — сообщение, готовое к повторной публикации.
type replayMessage struct {
	topic string
	key   string
	value json.RawMessage
}

// outboxDeadLetter — payload, который outbox worker кладёт в DLQ.
type outboxDeadLetter struct {
	OutboxID     string          `json:"outbox_id"`
	OrderID      string          `json:"order_id"`
	EventType    string          `json:"event_type"`
	Payload      json.RawMessage `json:"payload"`
	PublishError string          `json:"publish_error"`
}

// messageSource отдаёт накопленные сообщения топика, не дольше idle на партицию.
type messageSource interface {
	Read(ctx context.Context, topic string, limit int, idle time.Duration) ([]*sarama.ConsumerMessage, error)
}

type eventPublisher interface {
	PublishEvent(topic, key string, event any) error
}

type report struct {
	scanned  int
	replayed int
	skipped  int
}

// decodeDeadLetter распознаёт оба формата DLQ: письмо consumer-а
// и событие outbox. Возвращает false для сообщений, которые нечего повторять.
func decodeDeadLetter(value []byte) (replayMessage, bool, error) {
	var consumerLetter kafka.DeadLetter
	if err := json.Unmarshal(value, &consumerLetter); err == nil && consumerLetter.OriginalValue != "" {
		topic := strings.TrimSpace(consumerLetter.OriginalTopic)
		if topic == "" {
			return replayMessage{}, false, errors.New("consumer dead letter without original topic")
		}
		return replayMessage{
			topic: topic,
			key:   consumerLetter.OriginalKey,
			value: json.RawMessage(consumerLetter.OriginalValue),
		}, true, nil
	}

	var envelope kafka.OrderEvent
	if err := json.Unmarshal(value, &envelope); err != nil || len(envelope.Payload) == 0 {
		return replayMessage{}, false, nil
	}
	var dead outboxDeadLetter
	if err := json.Unmarshal(envelope.Payload, &dead); err != nil {
		return replayMessage{}, false, fmt.Errorf("decode outbox dead letter: %w", err)
	}
	if len(dead.Payload) == 0 {
		return replayMessage{}, false, errors.New("outbox dead letter without original payload")
	}

	event := kafka.OrderEvent{
		ID:          firstNonEmpty(dead.OutboxID, envelope.ID),
		EventType:   kafka.EventTypeFor(dead.EventType),
		OrderID:     firstNonEmpty(dead.OrderID, envelope.OrderID),
		Payload:     dead.Payload,
		PublishedAt: time.Now().UTC(),
	}
	encoded, err := json.Marshal(event)
	if err != nil {
		return replayMessage{}, false, fmt.Errorf("encode order event: %w", err)
	}
	return replayMessage{
		topic: kafka.TopicOrderEvents,
		key:   firstNonEmpty(event.OrderID, event.ID),
		value: encoded,
	}, true, nil
}

func replay(ctx context.Context, cfg config, source messageSource, publisher eventPublisher, logger *log.Entry) (report, error) {
	var rep report
	if cfg.execute && publisher == nil {
		return rep, errors.New("publisher is required in execute mode")
	}

	messages, err := source.Read(ctx, cfg.sourceTopic, cfg.limit, cfg.idleTimeout)
	if err != nil {
		return rep, err
	}

	for _, msg := range messages {
		rep.scanned++
		entry := logger.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})

		candidate, ok, err := decodeDeadLetter(msg.Value)
		if err != nil {
			entry.WithError(err).Warn("skip malformed dead letter")
			rep.skipped++
			continue
		}
		if !ok {
			rep.skipped++
			continue
		}

		entry = entry.WithFields(log.Fields{"target_topic": candidate.topic, "key": candidate.key})
		if !cfg.execute {
			entry.Info("replay candidate")
			rep.replayed++
			continue
		}
		if err := publisher.PublishEvent(candidate.topic, candidate.key, candidate.value); err != nil {
			return rep, fmt.Errorf("replay offset %d: %w", msg.Offset, err)
		}
		entry.Info("dead letter replayed")
		rep.replayed++
	}
	return rep, nil
}

// saramaSource читает партиции от самого старого смещения до high-water mark.
type saramaSource struct {
	client   sarama.Client
	consumer sarama.Consumer
}

func newSaramaSource(brokers []string) (*saramaSource, error) {
	cfg := sarama.NewConfig()
	cfg.Consumer.Return.Errors = true

	client, err := sarama.NewClient(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return &saramaSource{client: client, consumer: consumer}, nil
}

func (s *saramaSource) Read(ctx context.Context, topic string, limit int, idle time.Duration) ([]*sarama.ConsumerMessage, error) {
	partitions, err := s.client.Partitions(topic)
	if err != nil {
		return nil, fmt.Errorf("partitions of %s: %w", topic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	var out []*sarama.ConsumerMessage
	for _, partition := range partitions {
		if len(out) >= limit {
			break
		}
		newest, err := s.client.GetOffset(topic, partition, sarama.OffsetNewest)
		if err != nil {
			return nil, fmt.Errorf("newest offset of partition %d: %w", partition, err)
		}
		pc, err := s.consumer.ConsumePartition(topic, partition, sarama.OffsetOldest)
		if err != nil {
			return nil, fmt.Errorf("consume partition %d: %w", partition, err)
		}
		out, err = drainPartition(ctx, pc, newest, limit, idle, out)
		_ = pc.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func drainPartition(ctx context.Context, pc sarama.PartitionConsumer, end int64, limit int, idle time.Duration, out []*sarama.ConsumerMessage) ([]*sarama.ConsumerMessage, error) {
	for len(out) < limit {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case cerr := <-pc.Errors():
			if cerr != nil {
				return out, cerr
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg.Offset >= end {
				return out, nil
			}
			out = append(out, msg)
			if msg.Offset+1 >= end {
				return out, nil
			}
		case <-time.After(idle):
			return out, nil
		}
	}
	return out, nil
}

func (s *saramaSource) Close() error {
	return errors.Join(s.consumer.Close(), s.client.Close())
}

func parseConfig(args []string, getenv func(string) string) (config, error) {
	var (
		cfg        config
		brokersRaw string
	)
	fs := flag.NewFlagSet("dlq-replay", flag.ContinueOnError)
	fs.StringVar(&brokersRaw, "brokers", "", "comma-separated Kafka brokers (fallback: "+envKafkaBrokers+")")
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "dead letter topic")
	fs.IntVar(&cfg.limit, "limit", defaultLimit, "max messages to scan")
	fs.BoolVar(&cfg.execute, "execute", false, "publish messages; default is dry-run")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = getenv(envKafkaBrokers)
	}
	for _, b := range strings.Split(brokersRaw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.brokers = append(cfg.brokers, b)
		}
	}

	switch {
	case len(cfg.brokers) == 0:
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or %s)", envKafkaBrokers)
	case strings.TrimSpace(cfg.sourceTopic) == "":
		return config{}, errors.New("source-topic is required")
	case cfg.limit <= 0:
		return config{}, errors.New("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return config{}, errors.New("idle-timeout must be > 0")
	}
	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func main() {
	_ = godotenv.Load()
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	logger := log.WithField("component", "dlq-replay")

	cfg, err := parseConfig(os.Args[1:], os.Getenv)
	if err != nil {
		logger.WithError(err).Fatal("invalid arguments")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, err := newSaramaSource(cfg.brokers)
	if err != nil {
		logger.WithError(err).Fatal("kafka is not available")
	}
	defer source.Close()

	var publisher eventPublisher
	if cfg.execute {
		producer, err := kafka.NewProducer(cfg.brokers)
		if err != nil {
			logger.WithError(err).Fatal("kafka producer is not available")
		}
		defer producer.Close()
		publisher = producer
	}

	rep, err := replay(ctx, cfg, source, publisher, logger)
	fields := log.Fields{"execute": cfg.execute, "scanned": rep.scanned, "replayed": rep.replayed, "skipped": rep.skipped}
	if err != nil {
		logger.WithError(err).WithFields(fields).Fatal("dlq replay failed")
	}
	logger.WithFields(fields).Info("dlq replay finished")
}
