package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// StripeSignatureHeader — заголовок подписи webhook Stripe.
const StripeSignatureHeader = "Stripe-Signature"

const metadataOrderID = "orderId"

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

// StripeConfig настраивает клиента Stripe.
type StripeConfig struct {
	APIKey        string
	WebhookSecret string
	Backends      *stripe.Backends
	Logger        *log.Entry

	intents stripePaymentIntentAPI
	refunds stripeRefundAPI
}

// Stripe — шлюз на базе Stripe PaymentIntents.
type Stripe struct {
	intents       stripePaymentIntentAPI
	refunds       stripeRefundAPI
	webhookSecret string
	logger        *log.Entry
}

// NewStripe создаёт клиента Stripe.
func NewStripe(cfg StripeConfig) (*Stripe, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.intents == nil {
		return nil, errors.New("stripe: api key is required")
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return nil, errors.New("stripe: webhook secret is required")
	}

	intents, refunds := cfg.intents, cfg.refunds
	if intents == nil || refunds == nil {
		sc := client.New(apiKey, cfg.Backends)
		intents, refunds = sc.PaymentIntents, sc.Refunds
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New().WithField("component", "payment-stripe")
	}

	return &Stripe{
		intents:       intents,
		refunds:       refunds,
		webhookSecret: cfg.WebhookSecret,
		logger:        logger,
	}, nil
}

func (s *Stripe) Name() string { return "stripe" }

func (s *Stripe) SignatureHeader() string { return StripeSignatureHeader }

func (s *Stripe) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountMinor),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey("intent-" + req.OrderID)
	params.AddMetadata(metadataOrderID, req.OrderID)
	params.AddMetadata("userId", req.UserID)

	intent, err := s.intents.New(params)
	if err != nil {
		return Intent{}, fmt.Errorf("stripe: create payment intent: %w: %v", domain.ErrGatewayUnavailable, err)
	}

	s.logger.WithFields(log.Fields{
		"order_id":       req.OrderID,
		"payment_intent": intent.ID,
	}).Info("stripe payment intent created")

	return Intent{
		Provider:        s.Name(),
		GatewayOrderRef: intent.ID,
		ClientSecret:    intent.ClientSecret,
		AmountMinor:     intent.Amount,
		Currency:        strings.ToUpper(string(intent.Currency)),
	}, nil
}

func (s *Stripe) ParseWebhook(raw []byte, signature string) (WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(raw, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		s.logger.WithError(err).Warn("stripe webhook signature rejected")
		return WebhookEvent{}, domain.ErrInvalidSignature
	}

	out := WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if !strings.HasPrefix(out.Type, "payment_intent.") || event.Data == nil {
		return out, nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return WebhookEvent{}, fmt.Errorf("stripe: decode payment intent: %w", err)
	}

	out.OrderID = intent.Metadata[metadataOrderID]
	out.GatewayOrderRef = intent.ID
	out.GatewayPaymentRef = intent.ID
	if intent.LatestCharge != nil && intent.LatestCharge.ID != "" {
		out.GatewayPaymentRef = intent.LatestCharge.ID
	}
	out.Captured = event.Type == "payment_intent.succeeded" && intent.Status == stripe.PaymentIntentStatusSucceeded
	return out, nil
}

func (s *Stripe) Refund(ctx context.Context, paymentRef string, amountMinor int64) (RefundResult, error) {
	params := &stripe.RefundParams{Amount: stripe.Int64(amountMinor)}
	switch {
	case strings.HasPrefix(paymentRef, "ch_"):
		params.Charge = stripe.String(paymentRef)
	default:
		params.PaymentIntent = stripe.String(paymentRef)
	}
	params.Context = ctx
	params.SetIdempotencyKey("refund-" + paymentRef)

	refund, err := s.refunds.New(params)
	if err != nil {
		return RefundResult{}, fmt.Errorf("stripe: refund: %w: %v", domain.ErrGatewayUnavailable, err)
	}

	s.logger.WithFields(log.Fields{
		"payment_ref": paymentRef,
		"refund_id":   refund.ID,
	}).Info("stripe refund created")

	return RefundResult{RefundRef: refund.ID, Status: string(refund.Status)}, nil
}

var _ Gateway = (*Stripe)(nil)
