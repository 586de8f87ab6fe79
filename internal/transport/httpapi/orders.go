package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/ordering"
)

// OrderService — сборка заказа и чтение заказов.
type OrderService interface {
	CreateOrder(ctx context.Context, in ordering.CreateOrderInput) (domain.Order, error)
	Get(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error)
	ListMine(ctx context.Context, actor domain.Actor) ([]domain.Order, error)
	ListAll(ctx context.Context, actor domain.Actor, status string) ([]domain.Order, error)
	Timeline(ctx context.Context, actor domain.Actor, orderID string) ([]domain.TimelineEvent, error)
}

// FulfillmentService — смена статуса исполнения.
type FulfillmentService interface {
	ChangeStatus(ctx context.Context, orderID string, actor domain.Actor, status domain.OrderStatus) (domain.Order, error)
	Cancel(ctx context.Context, orderID string, actor domain.Actor) (domain.Order, error)
}

type OrderHandler struct {
	orders      OrderService
	fulfillment FulfillmentService
	idempotency *Idempotency
	validate    *validator.Validate
	logger      *log.Entry
}

func NewOrderHandler(orders OrderService, fulfillment FulfillmentService, idempotency *Idempotency, logger *log.Entry) *OrderHandler {
	if logger == nil {
		logger = log.New().WithField("component", "http-orders")
	}
	if idempotency == nil {
		idempotency = NewIdempotency(nil, nil, logger)
	}
	return &OrderHandler{
		orders:      orders,
		fulfillment: fulfillment,
		idempotency: idempotency,
		validate:    newValidator(),
		logger:      logger,
	}
}

// RegisterRoutes ожидает, что router уже закрыт аутентификацией.
func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.With(h.idempotency.Middleware).Post("/orders", h.handleCreate)
	router.Get("/orders/mine", h.handleListMine)
	router.Get("/orders", h.handleListAll)
	router.Get("/orders/{id}", h.handleGet)
	router.Get("/orders/{id}/timeline", h.handleTimeline)
	router.Put("/orders/{id}/status", h.handleUpdateStatus)
	router.Put("/orders/{id}/cancel", h.handleCancel)
}

func (h *OrderHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}

	var req CreateOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, domain.CategoryValidation, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithValidationError(w, h.logger, err)
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), req.toInput(actor))
	if err != nil {
		respondWithDomainError(w, h.logger.WithField("user_id", actor.UserID), err)
		return
	}

	respondWithJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *OrderHandler) handleListMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}

	orders, err := h.orders.ListMine(r.Context(), actor)
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toOrderResponses(orders))
}

func (h *OrderHandler) handleListAll(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}

	orders, err := h.orders.ListAll(r.Context(), actor, r.URL.Query().Get("status"))
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toOrderResponses(orders))
}

func (h *OrderHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}

	order, err := h.orders.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}

	events, err := h.orders.Timeline(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toTimelineResponse(events))
}

func (h *OrderHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, domain.CategoryValidation, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithValidationError(w, h.logger, err)
		return
	}
	status, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}

	order, err := h.fulfillment.ChangeStatus(r.Context(), chi.URLParam(r, "id"), actor, status)
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}

	order, err := h.fulfillment.Cancel(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toOrderResponse(order))
}
