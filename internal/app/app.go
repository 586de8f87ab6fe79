// Package app собирает витрину из хранилищ, сервисов и транспортов
// и управляет их жизненным циклом.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/vladislavdragonenkov/storefront/internal/clock"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/notification"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const (
	httpShutdownTimeout = 5 * time.Second
	readHeaderTimeout   = 10 * time.Second
)

// Run поднимает HTTP API, служебный gRPC, метрики и фоновые воркеры
// и блокируется до отмены ctx или падения одного из серверов.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStorage(deps, logger)

	gw, err := newPaymentGateway(cfg, logger)
	if err != nil {
		return err
	}

	clk := clock.NewSystem()
	storefrontMetrics := metrics.NewStorefrontMetrics()
	mailer := notification.NewLogNotifier(logger.WithField("component", "mailer"))

	brokers := cfg.brokerList()
	producer, _ := initKafkaProducer(brokers, logger)
	defer closeKafkaProducer(producer, logger)

	var notifier domain.Notifier = mailer
	var publisher domain.OutboxPublisher = outbox.NewLogPublisher(logger.WithField("component", "outbox-log"))
	var dlqPublisher domain.OutboxPublisher
	if producer != nil {
		notifier = kafka.NewNotifier(producer, kafka.TopicNotifications)
		publisher = kafka.NewOutboxPublisher(producer, kafka.TopicOrderEvents)
		dlqPublisher = kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)
	}

	sf := buildStorefront(cfg, deps, gw, notifier, storefrontMetrics, clk, logger)

	relay := startNotificationRelay(ctx, brokers, cfg.KafkaConsumerGroup, mailer, producer, logger)
	defer stopNotificationRelay(relay, logger)

	outboxCancel, outboxDone := startOutboxWorker(ctx, cfg, deps.outboxRepo, publisher, dlqPublisher, logger)
	defer stopWorker(outboxCancel, outboxDone, logger)

	cleanupCancel, cleanupDone := startIdempotencyCleanup(ctx, cfg, deps.idempotencyRepo, clk, logger)
	defer stopWorker(cleanupCancel, cleanupDone, logger)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.Register("storage", deps.storageChecker)
	healthHandler.Register("outbox", healthcheck.NewOptionalCheck("outbox", outboxBacklogCheck(deps.outboxRepo, cfg.OutboxMaxPending)))
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)
	defer shutdownHTTP(metricsSrv, logger)

	grpcServer, grpcHealth := newGRPCServer(logger.WithField("layer", "grpc"))
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}
	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = grpcLis.Close()
		return fmt.Errorf("listen http %s: %w", cfg.HTTPAddr, err)
	}

	apiSrv := &http.Server{Handler: sf.router, ReadHeaderTimeout: readHeaderTimeout}
	errCh := make(chan error, 2)
	go func() {
		logger.Infof("grpc server listening on %s", grpcLis.Addr())
		errCh <- grpcServer.Serve(grpcLis)
	}()
	go func() {
		logger.WithField("version", version.String()).Infof("http api listening on %s", httpLis.Addr())
		errCh <- apiSrv.Serve(httpLis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping servers")
		shutdownHTTP(apiSrv, logger)
		stopGRPC(grpcServer, grpcHealth, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(apiSrv, logger)
		stopGRPC(grpcServer, grpcHealth, logger)
		if errors.Is(err, grpc.ErrServerStopped) || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startMetricsServer отдаёт /metrics для Prometheus и health-пробы.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.Ready)
	mux.HandleFunc("/livez", healthcheck.Live)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
	go func() {
		logger.Infof("metrics available at %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

func startOutboxWorker(
	ctx context.Context,
	cfg Config,
	repo domain.OutboxRepository,
	publisher, dlq domain.OutboxPublisher,
	logger *log.Entry,
) (context.CancelFunc, <-chan struct{}) {
	options := []outbox.Option{
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithMetrics(metrics.NewOutboxMetrics(nil)),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}
	if dlq != nil {
		options = append(options, outbox.WithDLQPublisher(dlq))
	}
	worker := outbox.NewWorker(repo, publisher, options...)

	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(workerCtx)
	}()
	return cancel, done
}

func startIdempotencyCleanup(
	ctx context.Context,
	cfg Config,
	repo domain.IdempotencyRepository,
	clk clock.Clock,
	logger *log.Entry,
) (context.CancelFunc, <-chan struct{}) {
	worker := idempotency.NewCleanupWorker(repo,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup")),
		idempotency.WithMetrics(metrics.NewCleanupMetrics(nil)),
		idempotency.WithClock(clk),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)

	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(workerCtx)
	}()
	return cancel, done
}

// stopWorker отменяет фоновый воркер и ждёт его выхода.
func stopWorker(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(httpShutdownTimeout):
		logger.Warn("background worker did not stop in time")
	}
}

func closeStorage(deps runtimeDependencies, logger *log.Entry) {
	if deps.closeFn == nil {
		return
	}
	if err := deps.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}
