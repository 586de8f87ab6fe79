package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	// SandboxSignatureHeader — заголовок подписи webhook песочницы.
	SandboxSignatureHeader = "X-Webhook-Signature"
	// SandboxEventCaptured — тип события об успешном списании.
	SandboxEventCaptured = "payment.captured"
)

// SandboxWebhook — тело webhook песочницы.
type SandboxWebhook struct {
	ID      string         `json:"id"`
	Event   string         `json:"event"`
	Payload SandboxPayment `json:"payload"`
}

// SandboxPayment — данные платежа внутри webhook песочницы.
type SandboxPayment struct {
	OrderID           string `json:"orderId"`
	GatewayOrderRef   string `json:"gatewayOrderRef"`
	GatewayPaymentRef string `json:"gatewayPaymentRef"`
}

// Sandbox — шлюз для разработки и тестов. Webhook подписывается
// hex HMAC-SHA256 от исходного тела общим секретом.
type Sandbox struct {
	webhookSecret string
	logger        *log.Entry
}

// NewSandbox создаёт песочницу с секретом webhook.
func NewSandbox(webhookSecret string, logger *log.Entry) *Sandbox {
	if logger == nil {
		logger = log.New().WithField("component", "payment-sandbox")
	}
	return &Sandbox{webhookSecret: webhookSecret, logger: logger}
}

func (s *Sandbox) Name() string { return "sandbox" }

func (s *Sandbox) SignatureHeader() string { return SandboxSignatureHeader }

func (s *Sandbox) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if err := ctx.Err(); err != nil {
		return Intent{}, err
	}
	if req.AmountMinor <= 0 {
		return Intent{}, fmt.Errorf("sandbox: amount must be positive, got %d", req.AmountMinor)
	}

	intent := Intent{
		Provider:        s.Name(),
		GatewayOrderRef: "order_" + compactID(),
		ClientSecret:    "sandbox_secret_" + compactID(),
		AmountMinor:     req.AmountMinor,
		Currency:        strings.ToUpper(req.Currency),
	}
	s.logger.WithFields(log.Fields{
		"order_id":          req.OrderID,
		"gateway_order_ref": intent.GatewayOrderRef,
		"amount_minor":      req.AmountMinor,
	}).Debug("sandbox intent created")
	return intent, nil
}

func (s *Sandbox) ParseWebhook(raw []byte, signature string) (WebhookEvent, error) {
	if !Verify(s.webhookSecret, raw, signature) {
		return WebhookEvent{}, domain.ErrInvalidSignature
	}

	var body SandboxWebhook
	if err := json.Unmarshal(raw, &body); err != nil {
		return WebhookEvent{}, fmt.Errorf("sandbox: decode webhook: %w", err)
	}
	if body.ID == "" {
		return WebhookEvent{}, errors.New("sandbox: webhook id is empty")
	}

	return WebhookEvent{
		ID:                body.ID,
		Type:              body.Event,
		OrderID:           body.Payload.OrderID,
		GatewayOrderRef:   body.Payload.GatewayOrderRef,
		GatewayPaymentRef: body.Payload.GatewayPaymentRef,
		Captured:          body.Event == SandboxEventCaptured,
	}, nil
}

func (s *Sandbox) Refund(ctx context.Context, paymentRef string, amountMinor int64) (RefundResult, error) {
	if err := ctx.Err(); err != nil {
		return RefundResult{}, err
	}
	if strings.TrimSpace(paymentRef) == "" {
		return RefundResult{}, errors.New("sandbox: payment reference is required")
	}
	if amountMinor <= 0 {
		return RefundResult{}, fmt.Errorf("sandbox: refund amount must be positive, got %d", amountMinor)
	}
	return RefundResult{RefundRef: "rfnd_" + compactID(), Status: "processed"}, nil
}

// SignWebhook подписывает тело webhook секретом песочницы.
func (s *Sandbox) SignWebhook(raw []byte) string {
	return Sign(s.webhookSecret, raw)
}

func compactID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
}

var _ Gateway = (*Sandbox)(nil)
