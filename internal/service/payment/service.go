// Package payment сводит асинхронные подтверждения оплаты (клиентский
// callback и webhook шлюза) к однократному переводу заказа в paid.
package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/clock"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment/gateway"
)

// Outcome — результат обработки подтверждения.
type Outcome string

const (
	// OutcomeConfirmed — этот вызов перевёл заказ в paid.
	OutcomeConfirmed Outcome = "confirmed"
	// OutcomeAlreadyConfirmed — заказ уже был оплачен, изменений нет.
	OutcomeAlreadyConfirmed Outcome = "alreadyConfirmed"
	// OutcomeIgnored — событие шлюза не подтверждает оплату известного заказа.
	OutcomeIgnored Outcome = "ignored"
)

// CallbackInput — данные, которые клиент получил от шлюза после оплаты.
// Actor — пользователь, приславший callback: владелец заказа или администратор.
type CallbackInput struct {
	Actor             domain.Actor
	OrderID           string
	GatewayOrderRef   string
	GatewayPaymentRef string
	Signature         string
}

// OrderMutator применяет изменение к заказу с повтором при конфликте версий.
type OrderMutator interface {
	Apply(ctx context.Context, orderID string, fn func(order *domain.Order) error) (domain.Order, error)
}

// EventRecorder фиксирует события заказа.
type EventRecorder interface {
	Emit(ctx context.Context, orderID, eventType, reason string, payload map[string]any)
}

// ReceiptSender отправляет письмо об успешной оплате.
type ReceiptSender interface {
	PaymentSuccessful(ctx context.Context, order domain.Order)
}

// Config — параметры сверки платежей.
type Config struct {
	// KeySecret — секрет подписи клиентского callback.
	KeySecret string
	Currency  string
}

// Dependencies — зависимости сервиса оплаты.
type Dependencies struct {
	Orders      domain.OrderRepository
	Mutator     OrderMutator
	Coupons     domain.CouponRepository
	Gateway     gateway.Gateway
	Idempotency domain.IdempotencyRepository
	Recorder    EventRecorder
	Notifier    ReceiptSender
	Metrics     *metrics.StorefrontMetrics
	Clock       clock.Clock
	Logger      *log.Entry
}

// Service — сервис сверки платежей.
type Service struct {
	cfg         Config
	orders      domain.OrderRepository
	mutator     OrderMutator
	coupons     domain.CouponRepository
	gateway     gateway.Gateway
	idempotency domain.IdempotencyRepository
	recorder    EventRecorder
	notifier    ReceiptSender
	metrics     *metrics.StorefrontMetrics
	clock       clock.Clock
	logger      *log.Entry
}

// NewService создаёт сервис оплаты.
func NewService(cfg Config, deps Dependencies) *Service {
	if deps.Clock == nil {
		deps.Clock = clock.NewSystem()
	}
	if deps.Logger == nil {
		deps.Logger = log.New().WithField("component", "payment")
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	return &Service{
		cfg:         cfg,
		orders:      deps.Orders,
		mutator:     deps.Mutator,
		coupons:     deps.Coupons,
		gateway:     deps.Gateway,
		idempotency: deps.Idempotency,
		recorder:    deps.Recorder,
		notifier:    deps.Notifier,
		metrics:     deps.Metrics,
		clock:       deps.Clock,
		logger:      deps.Logger,
	}
}

// SignatureHeader возвращает заголовок подписи webhook текущего шлюза.
func (s *Service) SignatureHeader() string {
	return s.gateway.SignatureHeader()
}

// VerifyCallback проверяет подпись orderRef|paymentRef и подтверждает оплату.
func (s *Service) VerifyCallback(ctx context.Context, in CallbackInput) (Outcome, error) {
	source := domain.PaymentSourceClientCallback
	logger := s.logger.WithFields(log.Fields{
		"order_id": in.OrderID,
		"source":   source,
	})

	if strings.TrimSpace(in.OrderID) == "" {
		return "", domain.ErrOrderNotFound
	}

	payload := gateway.CallbackPayload(in.GatewayOrderRef, in.GatewayPaymentRef)
	if in.GatewayOrderRef == "" || in.GatewayPaymentRef == "" || !gateway.Verify(s.cfg.KeySecret, payload, in.Signature) {
		s.metrics.RecordSignatureFailure(string(source))
		logger.WithFields(log.Fields{
			"gateway_order_ref":   in.GatewayOrderRef,
			"gateway_payment_ref": in.GatewayPaymentRef,
		}).Warn("payment callback signature mismatch, possible tampering")
		if _, err := s.orders.Get(ctx, in.OrderID); err == nil {
			s.emit(ctx, in.OrderID, domain.EventSignatureRejected, string(source), nil)
		}
		return "", domain.ErrInvalidSignature
	}

	order, err := s.orders.Get(ctx, in.OrderID)
	if err != nil {
		return "", err
	}
	if !in.Actor.IsAdmin() && !in.Actor.Owns(&order) {
		logger.WithField("user_id", in.Actor.UserID).Warn("payment callback for another user's order")
		return "", domain.ErrForbidden
	}

	return s.apply(ctx, in.OrderID, domain.PaymentResult{
		GatewayOrderRef:   in.GatewayOrderRef,
		GatewayPaymentRef: in.GatewayPaymentRef,
		Signature:         in.Signature,
		Status:            "captured",
		Source:            source,
	})
}

// HandleWebhook проверяет подпись над исходным телом, отсекает повторные
// доставки по id события и подтверждает оплату.
func (s *Service) HandleWebhook(ctx context.Context, raw []byte, signature string) (Outcome, error) {
	source := domain.PaymentSourceWebhook

	event, err := s.gateway.ParseWebhook(raw, signature)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSignature) {
			s.metrics.RecordSignatureFailure(string(source))
			s.logger.WithField("gateway", s.gateway.Name()).Warn("webhook signature mismatch, possible tampering")
		}
		return "", err
	}

	logger := s.logger.WithFields(log.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
		"order_id":   event.OrderID,
	})
	if !event.Captured || event.OrderID == "" {
		logger.Debug("webhook event ignored")
		return OutcomeIgnored, nil
	}

	key := domain.WebhookIdempotencyKey(event.ID)
	owned := s.claimEvent(ctx, key, raw, logger)
	if !owned {
		s.metrics.RecordPaymentDuplicate(string(source))
		logger.Info("duplicate webhook delivery skipped")
		return OutcomeAlreadyConfirmed, nil
	}

	outcome, err := s.apply(ctx, event.OrderID, domain.PaymentResult{
		GatewayOrderRef:   event.GatewayOrderRef,
		GatewayPaymentRef: event.GatewayPaymentRef,
		Signature:         signature,
		Status:            event.Type,
		Source:            source,
	})
	if errors.Is(err, domain.ErrOrderNotFound) {
		logger.Warn("webhook references unknown order")
		outcome, err = OutcomeIgnored, nil
	}
	s.finishEvent(ctx, key, outcome, err, logger)
	return outcome, err
}

// claimEvent регистрирует id события. false означает, что событие уже
// обработано или обрабатывается другим запросом.
func (s *Service) claimEvent(ctx context.Context, key string, raw []byte, logger *log.Entry) bool {
	if s.idempotency == nil || key == "" {
		return true
	}

	sum := sha256.Sum256(raw)
	record, err := s.idempotency.CreateProcessing(ctx, key, hex.EncodeToString(sum[:]), s.clock.Now().Add(domain.IdempotencyScopeWebhook.TTL()))
	switch {
	case err == nil:
		// Хранилище отдаёт ключ неудачной попытки следующей доставке.
		return true
	case domain.IsIdempotencyConflict(err):
		logger.WithField("status", record.Status).Debug("webhook event already claimed")
		return false
	default:
		logger.WithError(err).Warn("webhook idempotency check failed, continuing")
		return true
	}
}

func (s *Service) finishEvent(ctx context.Context, key string, outcome Outcome, applyErr error, logger *log.Entry) {
	if s.idempotency == nil || key == "" {
		return
	}

	var err error
	if applyErr != nil {
		body, _ := json.Marshal(map[string]string{"error": applyErr.Error()})
		err = s.idempotency.MarkFailed(ctx, key, body, 500)
	} else {
		body, _ := json.Marshal(map[string]string{"outcome": string(outcome)})
		err = s.idempotency.MarkDone(ctx, key, body, 200)
	}
	if err != nil {
		logger.WithError(err).Warn("failed to store webhook idempotency result")
	}
}

// apply — общий путь подтверждения. Переход unpaid -> paid проверяется на
// актуальной версии заказа, поэтому из конкурентных попыток побеждает одна.
func (s *Service) apply(ctx context.Context, orderID string, result domain.PaymentResult) (Outcome, error) {
	logger := s.logger.WithFields(log.Fields{
		"order_id": orderID,
		"source":   result.Source,
	})

	now := s.clock.Now()
	order, err := s.mutator.Apply(ctx, orderID, func(o *domain.Order) error {
		return o.ApplyPayment(result, now)
	})
	if errors.Is(err, domain.ErrOrderAlreadyPaid) {
		s.metrics.RecordPaymentDuplicate(string(result.Source))
		logger.Info("payment already confirmed")
		return OutcomeAlreadyConfirmed, nil
	}
	if errors.Is(err, domain.ErrPaymentRefMismatch) {
		s.metrics.RecordSignatureFailure(string(result.Source))
		logger.WithField("gateway_order_ref", result.GatewayOrderRef).Warn("payment reference does not match order intent, possible replay")
		s.emit(ctx, orderID, domain.EventSignatureRejected, string(result.Source), map[string]any{
			"gateway_order_ref": result.GatewayOrderRef,
		})
		return "", err
	}
	if err != nil {
		logger.WithError(err).Error("payment confirmation failed")
		return "", err
	}

	s.metrics.RecordPaymentConfirmed(string(result.Source))
	logger.WithField("total_minor", order.TotalMinor).Info("payment confirmed")

	if order.CouponCode != "" && s.coupons != nil {
		if _, err := s.coupons.AddRedeemer(ctx, order.CouponCode, order.UserID); err != nil {
			logger.WithError(err).WithField("coupon", order.CouponCode).Error("failed to record coupon redemption")
			// Повторная доставка остановится на alreadyConfirmed, поэтому
			// расхождение фиксируется событием для оператора.
			s.emit(ctx, order.ID, domain.EventRedemptionFailed, err.Error(), map[string]any{
				"coupon_code": order.CouponCode,
				"user_id":     order.UserID,
			})
		}
	}

	s.emit(ctx, order.ID, domain.EventPaymentConfirmed, string(result.Source), map[string]any{
		"gateway_order_ref":   result.GatewayOrderRef,
		"gateway_payment_ref": result.GatewayPaymentRef,
		"amount_minor":        order.TotalMinor,
		"user_id":             order.UserID,
	})
	if s.notifier != nil {
		s.notifier.PaymentSuccessful(ctx, order)
	}
	return OutcomeConfirmed, nil
}

// CreateIntent создаёт платёж в шлюзе на сумму заказа.
func (s *Service) CreateIntent(ctx context.Context, actor domain.Actor, orderID string) (gateway.Intent, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return gateway.Intent{}, err
	}
	if !actor.IsAdmin() && !actor.Owns(&order) {
		return gateway.Intent{}, domain.ErrForbidden
	}
	if order.IsPaid() {
		return gateway.Intent{}, domain.ErrOrderAlreadyPaid
	}
	if order.Status == domain.OrderStatusCancelled {
		return gateway.Intent{}, domain.ErrIllegalTransition
	}

	intent, err := s.gateway.CreateIntent(ctx, gateway.IntentRequest{
		OrderID:     order.ID,
		UserID:      order.UserID,
		AmountMinor: order.TotalMinor,
		Currency:    s.cfg.Currency,
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("failed to create payment intent")
		return gateway.Intent{}, err
	}

	now := s.clock.Now()
	if _, err := s.mutator.Apply(ctx, order.ID, func(o *domain.Order) error {
		return o.AttachIntent(intent.GatewayOrderRef, now)
	}); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id":          order.ID,
			"gateway_order_ref": intent.GatewayOrderRef,
		}).Error("failed to attach payment intent to order")
		return gateway.Intent{}, err
	}
	return intent, nil
}

// Refund возвращает оплату по заказу (только администратор).
// Сначала выполняется возврат в шлюзе, затем заказ переводится в refunded.
func (s *Service) Refund(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error) {
	if !actor.IsAdmin() {
		return domain.Order{}, domain.ErrForbidden
	}

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	draft := order.Clone()
	if err := draft.ApplyRefund("", s.clock.Now()); err != nil {
		return domain.Order{}, err
	}

	refund, err := s.gateway.Refund(ctx, order.Payment.Result.GatewayPaymentRef, order.TotalMinor)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("gateway refund failed")
		return domain.Order{}, err
	}

	now := s.clock.Now()
	updated, err := s.mutator.Apply(ctx, orderID, func(o *domain.Order) error {
		return o.ApplyRefund(refund.RefundRef, now)
	})
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id":   orderID,
			"refund_ref": refund.RefundRef,
		}).Error("refund executed in gateway but order update failed")
		return domain.Order{}, err
	}

	s.metrics.RecordPaymentRefunded()
	s.emit(ctx, orderID, domain.EventPaymentRefunded, actor.UserID, map[string]any{
		"refund_ref":   refund.RefundRef,
		"amount_minor": updated.TotalMinor,
	})
	s.logger.WithFields(log.Fields{
		"order_id":   orderID,
		"refund_ref": refund.RefundRef,
	}).Info("payment refunded")
	return updated, nil
}

func (s *Service) emit(ctx context.Context, orderID, eventType, reason string, payload map[string]any) {
	if s.recorder != nil {
		s.recorder.Emit(ctx, orderID, eventType, reason, payload)
	}
}
