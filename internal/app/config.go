package app

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// StorageDriverMemory хранит всё в памяти процесса.
	StorageDriverMemory = "memory"
	// StorageDriverPostgres использует PostgreSQL через pgx.
	StorageDriverPostgres = "postgres"
)

const (
	// PaymentProviderSandbox — встроенный шлюз с HMAC-подписью webhook.
	PaymentProviderSandbox = "sandbox"
	// PaymentProviderStripe — Stripe PaymentIntents.
	PaymentProviderStripe = "stripe"
)

// Config описывает настройки запуска витрины. Структура сравнима через ==,
// поэтому в ней нет срезов и карт: списки брокеров хранятся строкой.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	JWTSecret string

	PaymentProvider      string
	PaymentKeySecret     string
	PaymentWebhookSecret string
	PaymentCurrency      string
	StripeAPIKey         string
	StoreName            string

	KafkaBrokers       string
	KafkaConsumerGroup string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	OutboxMaxPending   int

	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int
}

// DefaultConfig возвращает настройки для локального запуска на памяти.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                    ":8080",
		GRPCAddr:                    ":50051",
		MetricsAddr:                 ":9090",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		PaymentProvider:             PaymentProviderSandbox,
		PaymentCurrency:             "INR",
		StoreName:                   "Storefront",
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           10,
		OutboxRetryDelay:            500 * time.Millisecond,
		OutboxMaxPending:            10000,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,
	}
}

// Validate проверяет согласованность настроек перед стартом.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("http addr is required"))
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("jwt secret is required"))
	}
	if strings.TrimSpace(c.PaymentKeySecret) == "" {
		errs = append(errs, errors.New("payment key secret is required"))
	}
	switch c.PaymentProvider {
	case PaymentProviderSandbox, "":
	case PaymentProviderStripe:
		if strings.TrimSpace(c.StripeAPIKey) == "" {
			errs = append(errs, errors.New("stripe api key is required for stripe provider"))
		}
		if strings.TrimSpace(c.PaymentWebhookSecret) == "" {
			errs = append(errs, errors.New("webhook secret is required for stripe provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported payment provider %q", c.PaymentProvider))
	}
	return errors.Join(errs...)
}

func (c Config) brokerList() []string {
	if strings.TrimSpace(c.KafkaBrokers) == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
