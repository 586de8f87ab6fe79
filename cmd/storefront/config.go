package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/app"
)

const (
	envHTTPAddr    = "STOREFRONT_HTTP_ADDR"
	envGRPCAddr    = "STOREFRONT_GRPC_ADDR"
	envMetricsAddr = "STOREFRONT_METRICS_ADDR"

	envStorageDriver       = "STOREFRONT_STORAGE_DRIVER"
	envPostgresDSN         = "STOREFRONT_POSTGRES_DSN"
	envPostgresAutoMigrate = "STOREFRONT_POSTGRES_AUTO_MIGRATE"

	envJWTSecret = "STOREFRONT_JWT_SECRET"

	envPaymentProvider      = "STOREFRONT_PAYMENT_PROVIDER"
	envPaymentKeySecret     = "STOREFRONT_PAYMENT_KEY_SECRET"
	envPaymentWebhookSecret = "STOREFRONT_PAYMENT_WEBHOOK_SECRET"
	envPaymentCurrency      = "STOREFRONT_PAYMENT_CURRENCY"
	envStripeAPIKey         = "STOREFRONT_STRIPE_API_KEY"
	envStoreName            = "STOREFRONT_STORE_NAME"

	envKafkaBrokers       = "STOREFRONT_KAFKA_BROKERS"
	envKafkaConsumerGroup = "STOREFRONT_KAFKA_CONSUMER_GROUP"

	envOutboxPollInterval          = "STOREFRONT_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "STOREFRONT_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "STOREFRONT_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "STOREFRONT_OUTBOX_RETRY_DELAY"
	envOutboxMaxPending            = "STOREFRONT_OUTBOX_MAX_PENDING"
	envIdempotencyCleanupInterval  = "STOREFRONT_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "STOREFRONT_IDEMPOTENCY_CLEANUP_BATCH_SIZE"

	envLogLevel  = "STOREFRONT_LOG_LEVEL"
	envLogFormat = "STOREFRONT_LOG_FORMAT"
)

type envLookup func(key string) (string, bool)

// readConfigFromEnv накладывает переменные окружения на DefaultConfig.
// Некорректное значение не роняет старт: остаётся дефолт, а в warnings
// попадает описание проблемы.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string
	warn := func(key, raw string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s=%q ignored: %v", key, raw, err))
	}

	textFields := map[string]*string{
		envHTTPAddr:             &cfg.HTTPAddr,
		envGRPCAddr:             &cfg.GRPCAddr,
		envMetricsAddr:          &cfg.MetricsAddr,
		envPostgresDSN:          &cfg.PostgresDSN,
		envJWTSecret:            &cfg.JWTSecret,
		envPaymentKeySecret:     &cfg.PaymentKeySecret,
		envPaymentWebhookSecret: &cfg.PaymentWebhookSecret,
		envStripeAPIKey:         &cfg.StripeAPIKey,
		envStoreName:            &cfg.StoreName,
		envKafkaBrokers:         &cfg.KafkaBrokers,
		envKafkaConsumerGroup:   &cfg.KafkaConsumerGroup,
	}
	for key, dst := range textFields {
		if v, ok := lookupTrimmed(lookup, key); ok {
			*dst = v
		}
	}

	if v, ok := lookupTrimmed(lookup, envStorageDriver); ok {
		cfg.StorageDriver = lower(v)
	}
	if v, ok := lookupTrimmed(lookup, envPaymentProvider); ok {
		cfg.PaymentProvider = lower(v)
	}
	if v, ok := lookupTrimmed(lookup, envPaymentCurrency); ok {
		cfg.PaymentCurrency = upper(v)
	}

	if v, ok := lookupTrimmed(lookup, envPostgresAutoMigrate); ok {
		if parsed, err := parseBool(v); err != nil {
			warn(envPostgresAutoMigrate, v, err)
		} else {
			cfg.PostgresAutoMigrate = parsed
		}
	}

	positive := func(v int) bool { return v > 0 }
	nonNegative := func(v int) bool { return v >= 0 }
	ints := []struct {
		key   string
		dst   *int
		valid func(int) bool
		rule  string
	}{
		{envOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0"},
		{envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0"},
		{envOutboxMaxPending, &cfg.OutboxMaxPending, nonNegative, "must be >= 0"},
		{envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize, positive, "must be > 0"},
	}
	for _, item := range ints {
		v, ok := lookupTrimmed(lookup, item.key)
		if !ok {
			continue
		}
		parsed, err := parseInt(v, item.valid, item.rule)
		if err != nil {
			warn(item.key, v, err)
			continue
		}
		*item.dst = parsed
	}

	positiveDur := func(v time.Duration) bool { return v > 0 }
	durations := []struct {
		key   string
		dst   *time.Duration
		valid func(time.Duration) bool
		rule  string
	}{
		{envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDur, "must be > 0"},
		{envOutboxRetryDelay, &cfg.OutboxRetryDelay, func(v time.Duration) bool { return v >= 0 }, "must be >= 0"},
		{envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positiveDur, "must be > 0"},
	}
	for _, item := range durations {
		v, ok := lookupTrimmed(lookup, item.key)
		if !ok {
			continue
		}
		parsed, err := parseDuration(v, item.valid, item.rule)
		if err != nil {
			warn(item.key, v, err)
			continue
		}
		*item.dst = parsed
	}

	return cfg, warnings
}

func lookupTrimmed(lookup envLookup, key string) (string, bool) {
	v, ok := lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func lower(s string) string { return strings.ToLower(s) }

func upper(s string) string { return strings.ToUpper(s) }

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q: %w", raw, err)
	}
	if valid != nil && !valid(v) {
		return 0, fmt.Errorf("value %d %s", v, rule)
	}
	return v, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q: %w", raw, err)
	}
	if valid != nil && !valid(v) {
		return 0, fmt.Errorf("value %s %s", v, rule)
	}
	return v, nil
}
