package app

import (
	"context"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/clock"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/discount"
	"github.com/vladislavdragonenkov/storefront/internal/service/fulfillment"
	"github.com/vladislavdragonenkov/storefront/internal/service/inventory"
	"github.com/vladislavdragonenkov/storefront/internal/service/notification"
	"github.com/vladislavdragonenkov/storefront/internal/service/orderflow"
	"github.com/vladislavdragonenkov/storefront/internal/service/ordering"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment/gateway"
	"github.com/vladislavdragonenkov/storefront/internal/transport/httpapi"
)

// storefront — собранные сервисы и HTTP API поверх них.
type storefront struct {
	orders      *ordering.Service
	fulfillment *fulfillment.Service
	payments    *payment.Service
	discounts   *discount.Evaluator
	catalog     *catalog.Service
	auth        *httpapi.Authenticator
	router      http.Handler
}

// newPaymentGateway выбирает шлюз по cfg.PaymentProvider.
func newPaymentGateway(cfg Config, logger *log.Entry) (gateway.Gateway, error) {
	switch cfg.PaymentProvider {
	case PaymentProviderSandbox, "":
		secret := cfg.PaymentWebhookSecret
		if secret == "" {
			secret = cfg.PaymentKeySecret
		}
		return gateway.NewSandbox(secret, logger.WithField("gateway", PaymentProviderSandbox)), nil
	case PaymentProviderStripe:
		return gateway.NewStripe(gateway.StripeConfig{
			APIKey:        cfg.StripeAPIKey,
			WebhookSecret: cfg.PaymentWebhookSecret,
			Logger:        logger.WithField("gateway", PaymentProviderStripe),
		})
	default:
		return nil, fmt.Errorf("unsupported payment provider %q", cfg.PaymentProvider)
	}
}

// buildStorefront связывает хранилища, шлюз и уведомления в сервисы и роутер.
func buildStorefront(
	cfg Config,
	deps runtimeDependencies,
	gw gateway.Gateway,
	notifier domain.Notifier,
	m *metrics.StorefrontMetrics,
	clk clock.Clock,
	logger *log.Entry,
) *storefront {
	ledger := inventory.NewLedger(deps.products, deps.products, logger.WithField("component", "inventory"))
	evaluator := discount.NewEvaluator(deps.coupons, clk, logger.WithField("component", "discount"))
	recorder := orderflow.NewRecorder(deps.outboxRepo, deps.timelineRepo, m, clk, logger.WithField("component", "order-events"))
	mutator := orderflow.NewMutator(deps.orders, orderflow.DefaultRetryConfig(), logger.WithField("component", "order-mutator"))
	dispatcher := notification.NewDispatcher(notifier, cfg.StoreName, cfg.PaymentCurrency, m, logger.WithField("component", "notification"))

	sf := &storefront{
		orders: ordering.NewService(ordering.Dependencies{
			Orders:    deps.orders,
			Products:  deps.products,
			Ledger:    ledger,
			Discounts: evaluator,
			Timeline:  deps.timelineRepo,
			Recorder:  recorder,
			Notifier:  dispatcher,
			Metrics:   m,
			Clock:     clk,
			Logger:    logger.WithField("component", "ordering"),
		}),
		fulfillment: fulfillment.NewService(mutator, recorder, dispatcher, m, clk, logger.WithField("component", "fulfillment")),
		payments: payment.NewService(payment.Config{
			KeySecret: cfg.PaymentKeySecret,
			Currency:  cfg.PaymentCurrency,
		}, payment.Dependencies{
			Orders:      deps.orders,
			Mutator:     mutator,
			Coupons:     deps.coupons,
			Gateway:     gw,
			Idempotency: deps.idempotencyRepo,
			Recorder:    recorder,
			Notifier:    dispatcher,
			Metrics:     m,
			Clock:       clk,
			Logger:      logger.WithField("component", "payment"),
		}),
		discounts: evaluator,
		catalog:   catalog.NewService(deps.products, ledger, clk, logger.WithField("component", "catalog")),
		auth:      httpapi.NewAuthenticator(cfg.JWTSecret, logger.WithField("component", "auth")),
	}

	httpLogger := logger.WithField("layer", "http")
	sf.router = httpapi.NewRouter(sf.auth, httpapi.Handlers{
		Orders:   httpapi.NewOrderHandler(sf.orders, sf.fulfillment, httpapi.NewIdempotency(deps.idempotencyRepo, clk, httpLogger), httpLogger),
		Payments: httpapi.NewPaymentHandler(sf.payments, httpLogger),
		Coupons:  httpapi.NewCouponHandler(sf.discounts, httpLogger),
		Products: httpapi.NewProductHandler(sf.catalog, httpLogger),
	}, httpLogger)

	return sf
}

// outboxBacklogCheck деградирует сервис, когда outbox не успевает разгружаться.
func outboxBacklogCheck(repo domain.OutboxRepository, maxPending int) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		stats, err := repo.Stats(ctx)
		if err != nil {
			return err
		}
		if maxPending > 0 && stats.PendingCount > maxPending {
			return fmt.Errorf("outbox backlog %d exceeds %d", stats.PendingCount, maxPending)
		}
		return nil
	}
}
