package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const defaultTimeout = 30 * time.Second

// Handlers — набор обработчиков, из которых собирается API.
type Handlers struct {
	Orders   *OrderHandler
	Payments *PaymentHandler
	Coupons  *CouponHandler
	Products *ProductHandler
}

// NewRouter собирает chi-роутер с общими middleware под префиксом /api.
func NewRouter(auth *Authenticator, handlers Handlers, logger *log.Entry) chi.Router {
	if logger == nil {
		logger = log.New().WithField("component", "http")
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		accessLog(logger),
		middleware.Recoverer,
		middleware.Timeout(defaultTimeout),
	)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		respondWithError(w, http.StatusNotFound, domain.CategoryNotFound, fmt.Sprintf("no route for %s", req.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		respondWithError(w, http.StatusMethodNotAllowed, domain.CategoryValidation, fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path))
	})

	r.Route("/api", func(api chi.Router) {
		if handlers.Products != nil {
			handlers.Products.RegisterPublicRoutes(api)
		}
		if handlers.Payments != nil {
			handlers.Payments.RegisterWebhook(api)
		}

		api.Group(func(private chi.Router) {
			private.Use(auth.Require)
			if handlers.Orders != nil {
				handlers.Orders.RegisterRoutes(private)
			}
			if handlers.Payments != nil {
				handlers.Payments.RegisterRoutes(private)
			}
			if handlers.Coupons != nil {
				handlers.Coupons.RegisterRoutes(private)
			}
			if handlers.Products != nil {
				handlers.Products.RegisterAdminRoutes(private)
			}
		})
	})

	return r
}
