package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestSignAndVerify(t *testing.T) {
	payload := CallbackPayload("order_abc", "pay_xyz")
	require.Equal(t, "order_abc|pay_xyz", string(payload))

	sig := Sign("s3cret", payload)
	require.Len(t, sig, 64)
	require.True(t, Verify("s3cret", payload, sig))
	require.True(t, Verify("s3cret", payload, " "+sig+" "))
	require.False(t, Verify("other", payload, sig))
	require.False(t, Verify("s3cret", CallbackPayload("order_abc", "pay_xyZ"), sig))
	require.False(t, Verify("", payload, sig))
	require.False(t, Verify("s3cret", payload, ""))
}

func sandboxBody(t *testing.T, id, event string) []byte {
	t.Helper()
	raw, err := json.Marshal(SandboxWebhook{
		ID:    id,
		Event: event,
		Payload: SandboxPayment{
			OrderID:           "order-1",
			GatewayOrderRef:   "order_ref",
			GatewayPaymentRef: "pay_ref",
		},
	})
	require.NoError(t, err)
	return raw
}

func TestSandboxParseWebhook(t *testing.T) {
	s := NewSandbox("whsec", nil)
	raw := sandboxBody(t, "evt_1", SandboxEventCaptured)

	event, err := s.ParseWebhook(raw, s.SignWebhook(raw))
	require.NoError(t, err)
	require.Equal(t, WebhookEvent{
		ID:                "evt_1",
		Type:              SandboxEventCaptured,
		OrderID:           "order-1",
		GatewayOrderRef:   "order_ref",
		GatewayPaymentRef: "pay_ref",
		Captured:          true,
	}, event)

	other := sandboxBody(t, "evt_2", "payment.failed")
	event, err = s.ParseWebhook(other, s.SignWebhook(other))
	require.NoError(t, err)
	require.False(t, event.Captured)
}

func TestSandboxParseWebhook_RejectsTamperedBody(t *testing.T) {
	s := NewSandbox("whsec", nil)
	raw := sandboxBody(t, "evt_1", SandboxEventCaptured)
	sig := s.SignWebhook(raw)

	tampered := append([]byte(nil), raw...)
	tampered[len(tampered)-2] = ' '

	_, err := s.ParseWebhook(tampered, sig)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)

	_, err = s.ParseWebhook(raw, "")
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestSandboxIntentAndRefund(t *testing.T) {
	s := NewSandbox("whsec", nil)
	ctx := context.Background()

	intent, err := s.CreateIntent(ctx, IntentRequest{OrderID: "o1", AmountMinor: 2700, Currency: "inr"})
	require.NoError(t, err)
	require.Equal(t, "sandbox", intent.Provider)
	require.Equal(t, int64(2700), intent.AmountMinor)
	require.Equal(t, "INR", intent.Currency)
	require.NotEmpty(t, intent.GatewayOrderRef)

	_, err = s.CreateIntent(ctx, IntentRequest{OrderID: "o1"})
	require.Error(t, err)

	refund, err := s.Refund(ctx, "pay_ref", 2700)
	require.NoError(t, err)
	require.NotEmpty(t, refund.RefundRef)

	_, err = s.Refund(ctx, "", 2700)
	require.Error(t, err)
}

type fakeIntents struct {
	params *stripe.PaymentIntentParams
	err    error
}

func (f *fakeIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.PaymentIntent{
		ID:           "pi_123",
		ClientSecret: "pi_123_secret",
		Amount:       *params.Amount,
		Currency:     stripe.Currency(*params.Currency),
	}, nil
}

type fakeRefunds struct {
	params *stripe.RefundParams
}

func (f *fakeRefunds) New(params *stripe.RefundParams) (*stripe.Refund, error) {
	f.params = params
	return &stripe.Refund{ID: "re_1", Status: stripe.RefundStatusSucceeded}, nil
}

func newTestStripe(t *testing.T, intents *fakeIntents, refunds *fakeRefunds) *Stripe {
	t.Helper()
	s, err := NewStripe(StripeConfig{WebhookSecret: "whsec_test", intents: intents, refunds: refunds})
	require.NoError(t, err)
	return s
}

func TestNewStripe_RequiresConfig(t *testing.T) {
	_, err := NewStripe(StripeConfig{WebhookSecret: "whsec"})
	require.Error(t, err)
	_, err = NewStripe(StripeConfig{APIKey: "sk_test"})
	require.Error(t, err)
}

func TestStripeCreateIntent(t *testing.T) {
	intents := &fakeIntents{}
	s := newTestStripe(t, intents, &fakeRefunds{})

	intent, err := s.CreateIntent(context.Background(), IntentRequest{OrderID: "o1", UserID: "u1", AmountMinor: 2700, Currency: "INR"})
	require.NoError(t, err)
	require.Equal(t, "pi_123", intent.GatewayOrderRef)
	require.Equal(t, "INR", intent.Currency)
	require.Equal(t, int64(2700), *intents.params.Amount)
	require.Equal(t, "inr", *intents.params.Currency)
	require.Equal(t, "o1", intents.params.Metadata[metadataOrderID])

	intents.err = errors.New("boom")
	_, err = s.CreateIntent(context.Background(), IntentRequest{OrderID: "o1", AmountMinor: 1})
	require.ErrorIs(t, err, domain.ErrGatewayUnavailable)
}

func TestStripeRefund(t *testing.T) {
	refunds := &fakeRefunds{}
	s := newTestStripe(t, &fakeIntents{}, refunds)

	res, err := s.Refund(context.Background(), "ch_1", 500)
	require.NoError(t, err)
	require.Equal(t, "re_1", res.RefundRef)
	require.Equal(t, "ch_1", *refunds.params.Charge)
	require.Nil(t, refunds.params.PaymentIntent)

	_, err = s.Refund(context.Background(), "pi_1", 500)
	require.NoError(t, err)
	require.Equal(t, "pi_1", *refunds.params.PaymentIntent)
}

func TestStripeParseWebhook(t *testing.T) {
	s := newTestStripe(t, &fakeIntents{}, &fakeRefunds{})

	payload := []byte(`{
		"id": "evt_1",
		"object": "event",
		"type": "payment_intent.succeeded",
		"data": {"object": {
			"id": "pi_123",
			"object": "payment_intent",
			"status": "succeeded",
			"amount": 2700,
			"latest_charge": "ch_9",
			"metadata": {"orderId": "order-1"}
		}}
	}`)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    "whsec_test",
		Timestamp: time.Now(),
	})

	event, err := s.ParseWebhook(signed.Payload, signed.Header)
	require.NoError(t, err)
	require.Equal(t, "evt_1", event.ID)
	require.Equal(t, "order-1", event.OrderID)
	require.Equal(t, "pi_123", event.GatewayOrderRef)
	require.Equal(t, "ch_9", event.GatewayPaymentRef)
	require.True(t, event.Captured)

	_, err = s.ParseWebhook(append(payload, ' '), signed.Header)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}
