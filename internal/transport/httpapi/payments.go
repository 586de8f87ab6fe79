package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment/gateway"
)

// PaymentService — сверка платежей и операции со шлюзом.
type PaymentService interface {
	SignatureHeader() string
	CreateIntent(ctx context.Context, actor domain.Actor, orderID string) (gateway.Intent, error)
	VerifyCallback(ctx context.Context, in payment.CallbackInput) (payment.Outcome, error)
	HandleWebhook(ctx context.Context, raw []byte, signature string) (payment.Outcome, error)
	Refund(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error)
}

type PaymentHandler struct {
	payments PaymentService
	validate *validator.Validate
	logger   *log.Entry
}

func NewPaymentHandler(payments PaymentService, logger *log.Entry) *PaymentHandler {
	if logger == nil {
		logger = log.New().WithField("component", "http-payments")
	}
	return &PaymentHandler{payments: payments, validate: newValidator(), logger: logger}
}

// RegisterRoutes регистрирует маршруты, требующие аутентификации.
func (h *PaymentHandler) RegisterRoutes(router chi.Router) {
	router.Post("/payments/intent", h.handleCreateIntent)
	router.Post("/payments/verify", h.handleVerify)
	router.Post("/payments/refund", h.handleRefund)
}

// RegisterWebhook регистрирует публичный маршрут шлюза. Аутентичность
// проверяется подписью тела, а не токеном.
func (h *PaymentHandler) RegisterWebhook(router chi.Router) {
	router.Post("/payments/webhook", h.handleWebhook)
}

func (h *PaymentHandler) handleCreateIntent(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}

	var req OrderRefRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	intent, err := h.payments.CreateIntent(r.Context(), actor, req.OrderID)
	if err != nil {
		respondWithDomainError(w, h.logger.WithField("order_id", req.OrderID), err)
		return
	}
	respondWithJSON(w, http.StatusOK, toIntentResponse(req.OrderID, intent))
}

func (h *PaymentHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}

	var req VerifyPaymentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	outcome, err := h.payments.VerifyCallback(r.Context(), payment.CallbackInput{
		Actor:             actor,
		OrderID:           req.OrderID,
		GatewayOrderRef:   req.GatewayOrderRef,
		GatewayPaymentRef: req.GatewayPaymentRef,
		Signature:         req.Signature,
	})
	if err != nil {
		respondWithDomainError(w, h.logger.WithField("order_id", req.OrderID), err)
		return
	}

	message := "payment verified successfully"
	if outcome == payment.OutcomeAlreadyConfirmed {
		message = "payment already verified"
	}
	respondWithJSON(w, http.StatusOK, VerifyPaymentResponse{Success: true, Message: message, Outcome: string(outcome)})
}

func (h *PaymentHandler) handleRefund(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}

	var req OrderRefRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	order, err := h.payments.Refund(r.Context(), actor, req.OrderID)
	if err != nil {
		respondWithDomainError(w, h.logger.WithField("order_id", req.OrderID), err)
		return
	}
	respondWithJSON(w, http.StatusOK, toOrderResponse(order))
}

// handleWebhook отвечает 200 на любое событие с верной подписью, включая
// повторы и неинтересные типы. 5xx просит шлюз повторить доставку.
func (h *PaymentHandler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, domain.CategoryValidation, "failed to read webhook body")
		return
	}

	outcome, err := h.payments.HandleWebhook(r.Context(), raw, r.Header.Get(h.payments.SignatureHeader()))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSignature) {
			respondWithError(w, http.StatusBadRequest, domain.CategoryIntegrity, "invalid webhook signature")
			return
		}
		h.logger.WithError(err).Error("webhook processing failed")
		respondWithError(w, http.StatusInternalServerError, domain.CategoryInternal, "webhook processing failed")
		return
	}

	respondWithJSON(w, http.StatusOK, WebhookResponse{Received: true, Outcome: string(outcome)})
}

func (h *PaymentHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		respondWithError(w, http.StatusBadRequest, domain.CategoryValidation, err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		respondWithValidationError(w, h.logger, err)
		return false
	}
	return true
}
