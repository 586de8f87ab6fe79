package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/app"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

// setupLogger настраивает формат и уровень логирования из окружения.
func setupLogger(lookup envLookup) {
	format, _ := lookupTrimmed(lookup, envLogFormat)
	if strings.EqualFold(format, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level := log.InfoLevel
	if raw, ok := lookupTrimmed(lookup, envLogLevel); ok {
		if parsed, err := log.ParseLevel(raw); err == nil {
			level = parsed
		} else {
			log.WithError(err).Warn("unknown log level, using info")
		}
	}
	log.SetLevel(level)
}

func main() {
	// .env необязателен: в контейнере переменные приходят из окружения.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("failed to load .env")
	}

	setupLogger(os.LookupEnv)
	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, w := range warnings {
		log.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":        cfg.HTTPAddr,
		"grpc_addr":        cfg.GRPCAddr,
		"metrics_addr":     cfg.MetricsAddr,
		"storage":          cfg.StorageDriver,
		"payment_provider": cfg.PaymentProvider,
		"build":            version.String(),
	}).Info("starting storefront")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("storefront exited with error")
	}

	log.Info("storefront stopped")
}
