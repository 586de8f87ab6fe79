package payment

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/clock"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/orderflow"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment/gateway"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

const (
	keySecret     = "key_secret"
	webhookSecret = "webhook_secret"
)

var (
	buyer    = domain.Actor{UserID: "user-1", Role: domain.RoleCustomer}
	stranger = domain.Actor{UserID: "user-2", Role: domain.RoleCustomer}
	admin    = domain.Actor{UserID: "admin-1", Role: domain.RoleAdmin}
)

type countingReceipts struct {
	mu     sync.Mutex
	orders []string
}

func (c *countingReceipts) PaymentSuccessful(_ context.Context, order domain.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders = append(c.orders, order.ID)
}

func (c *countingReceipts) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.orders)
}

type fixture struct {
	svc      *Service
	deps     Dependencies
	orders   domain.OrderRepository
	coupons  domain.CouponRepository
	timeline domain.TimelineRepository
	sandbox  *gateway.Sandbox
	receipts *countingReceipts
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		orders:   memory.NewOrderRepository(),
		coupons:  memory.NewCouponRepository(),
		timeline: memory.NewTimelineRepository(),
		sandbox:  gateway.NewSandbox(webhookSecret, nil),
		receipts: &countingReceipts{},
	}
	require.NoError(t, f.coupons.Create(ctx, domain.Coupon{
		Code: "SAVE10", DiscountType: domain.DiscountPercent, DiscountValue: 10, Active: true,
	}))
	require.NoError(t, f.orders.Create(ctx, domain.Order{
		ID:              "order-1",
		UserID:          buyer.UserID,
		Items:           []domain.OrderItem{{ProductID: "tee", Qty: 2, PriceMinor: 1500, DiscountedPriceMinor: 1500}},
		ItemsPriceMinor: 3000,
		DiscountMinor:   300,
		TotalMinor:      2700,
		CouponCode:      "SAVE10",
		Payment:         domain.Payment{State: domain.PaymentStateUnpaid, IntentRef: "order_ref"},
		Status:          domain.OrderStatusProcessing,
	}))
	require.NoError(t, f.orders.Create(ctx, domain.Order{
		ID:              "order-2",
		UserID:          buyer.UserID,
		Items:           []domain.OrderItem{{ProductID: "coat", Qty: 1, PriceMinor: 999900, DiscountedPriceMinor: 999900}},
		ItemsPriceMinor: 999900,
		TotalMinor:      999900,
		Payment:         domain.Payment{State: domain.PaymentStateUnpaid, IntentRef: "order_ref_expensive"},
		Status:          domain.OrderStatusProcessing,
	}))

	clk := clock.NewManual(time.Date(2026, 8, 3, 15, 0, 0, 0, time.UTC))
	m := metrics.NewStorefrontMetricsWithRegisterer(prometheus.NewRegistry())
	mutator := orderflow.NewMutator(f.orders, orderflow.RetryConfig{
		MaxAttempts: 50, InitialDelay: time.Microsecond, MaxDelay: time.Millisecond, BackoffFactor: 2,
	}, nil)

	f.deps = Dependencies{
		Orders:      f.orders,
		Mutator:     mutator,
		Coupons:     f.coupons,
		Gateway:     f.sandbox,
		Idempotency: memory.NewIdempotencyRepository(),
		Recorder:    orderflow.NewRecorder(memory.NewOutboxRepository(), f.timeline, m, clk, nil),
		Notifier:    f.receipts,
		Metrics:     m,
		Clock:       clk,
	}
	f.svc = NewService(Config{KeySecret: keySecret, Currency: "INR"}, f.deps)
	return f
}

func callback(orderRef, paymentRef string) CallbackInput {
	return CallbackInput{
		Actor:             buyer,
		OrderID:           "order-1",
		GatewayOrderRef:   orderRef,
		GatewayPaymentRef: paymentRef,
		Signature:         gateway.Sign(keySecret, gateway.CallbackPayload(orderRef, paymentRef)),
	}
}

func (f *fixture) webhook(t *testing.T, eventID, event, orderID string) ([]byte, string) {
	t.Helper()
	raw, err := json.Marshal(gateway.SandboxWebhook{
		ID:    eventID,
		Event: event,
		Payload: gateway.SandboxPayment{
			OrderID:           orderID,
			GatewayOrderRef:   "order_ref",
			GatewayPaymentRef: "pay_webhook",
		},
	})
	require.NoError(t, err)
	return raw, f.sandbox.SignWebhook(raw)
}

func (f *fixture) order(t *testing.T) domain.Order {
	t.Helper()
	return f.orderByID(t, "order-1")
}

func (f *fixture) orderByID(t *testing.T, id string) domain.Order {
	t.Helper()
	o, err := f.orders.Get(context.Background(), id)
	require.NoError(t, err)
	return o
}

// brokenRedemptions отказывает в записи использования купона.
type brokenRedemptions struct {
	domain.CouponRepository
}

func (brokenRedemptions) AddRedeemer(context.Context, string, string) (bool, error) {
	return false, errors.New("coupon store unavailable")
}

// flakyOrders отказывает в первой записи заказа.
type flakyOrders struct {
	domain.OrderRepository
	failed bool
}

func (r *flakyOrders) Save(ctx context.Context, order domain.Order) error {
	if !r.failed {
		r.failed = true
		return errors.New("database is unavailable")
	}
	return r.OrderRepository.Save(ctx, order)
}

func (f *fixture) redeemers(t *testing.T) []string {
	t.Helper()
	c, err := f.coupons.Get(context.Background(), "SAVE10")
	require.NoError(t, err)
	return c.RedeemedBy
}

func TestVerifyCallback_Confirms(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.svc.VerifyCallback(context.Background(), callback("order_ref", "pay_1"))
	require.NoError(t, err)
	require.Equal(t, OutcomeConfirmed, outcome)

	o := f.order(t)
	require.Equal(t, domain.PaymentStatePaid, o.Payment.State)
	require.Equal(t, "pay_1", o.Payment.Result.GatewayPaymentRef)
	require.Equal(t, domain.PaymentSourceClientCallback, o.Payment.Result.Source)
	require.False(t, o.Payment.PaidAt.IsZero())
	require.Equal(t, []string{buyer.UserID}, f.redeemers(t))
	require.Equal(t, 1, f.receipts.count())

	events, err := f.timeline.List(context.Background(), "order-1", domain.TimelineOperator)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, domain.EventPaymentConfirmed, events[0].Type)
}

func TestVerifyCallback_RepeatIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.VerifyCallback(ctx, callback("order_ref", "pay_1"))
	require.NoError(t, err)
	first := f.order(t)

	outcome, err := f.svc.VerifyCallback(ctx, callback("order_ref", "pay_2"))
	require.NoError(t, err)
	require.Equal(t, OutcomeAlreadyConfirmed, outcome)

	second := f.order(t)
	require.Equal(t, first.Version, second.Version)
	require.Equal(t, "pay_1", second.Payment.Result.GatewayPaymentRef, "first confirmation is the witness")
	require.Len(t, f.redeemers(t), 1)
	require.Equal(t, 1, f.receipts.count())
}

func TestVerifyCallback_TamperedSignature(t *testing.T) {
	tests := []struct {
		name string
		in   func() CallbackInput
	}{
		{name: "payment ref swapped", in: func() CallbackInput {
			in := callback("order_ref", "pay_1")
			in.GatewayPaymentRef = "pay_other"
			return in
		}},
		{name: "wrong secret", in: func() CallbackInput {
			in := callback("order_ref", "pay_1")
			in.Signature = gateway.Sign("guess", gateway.CallbackPayload("order_ref", "pay_1"))
			return in
		}},
		{name: "empty signature", in: func() CallbackInput {
			in := callback("order_ref", "pay_1")
			in.Signature = ""
			return in
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.svc.VerifyCallback(context.Background(), tt.in())
			require.ErrorIs(t, err, domain.ErrInvalidSignature)
			require.Equal(t, domain.CategoryIntegrity, domain.Categorize(err))

			o := f.order(t)
			require.Equal(t, domain.PaymentStateUnpaid, o.Payment.State)
			require.Zero(t, o.Version)
			require.Empty(t, f.redeemers(t))
			require.Zero(t, f.receipts.count())
		})
	}
}

func TestVerifyCallback_RefOfAnotherOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	outcome, err := f.svc.VerifyCallback(ctx, callback("order_ref", "pay_cheap"))
	require.NoError(t, err)
	require.Equal(t, OutcomeConfirmed, outcome)

	replayed := callback("order_ref", "pay_cheap")
	replayed.OrderID = "order-2"
	_, err = f.svc.VerifyCallback(ctx, replayed)
	require.ErrorIs(t, err, domain.ErrPaymentRefMismatch)
	require.Equal(t, domain.CategoryIntegrity, domain.Categorize(err))

	expensive := f.orderByID(t, "order-2")
	require.Equal(t, domain.PaymentStateUnpaid, expensive.Payment.State)
	require.Empty(t, expensive.Payment.Result.GatewayPaymentRef)
	require.Zero(t, expensive.Version)
	require.Equal(t, 1, f.receipts.count())

	events, err := f.timeline.List(ctx, "order-2", domain.TimelineOperator)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, domain.EventSignatureRejected, events[0].Type)
}

func TestVerifyCallback_OnlyOwnerOrAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := callback("order_ref", "pay_1")
	in.Actor = stranger
	_, err := f.svc.VerifyCallback(ctx, in)
	require.ErrorIs(t, err, domain.ErrForbidden)
	require.Equal(t, domain.PaymentStateUnpaid, f.order(t).Payment.State)

	in.Actor = admin
	outcome, err := f.svc.VerifyCallback(ctx, in)
	require.NoError(t, err)
	require.Equal(t, OutcomeConfirmed, outcome)
}

func TestVerifyCallback_UnknownOrder(t *testing.T) {
	f := newFixture(t)
	in := callback("order_ref", "pay_1")
	in.OrderID = "ghost"

	_, err := f.svc.VerifyCallback(context.Background(), in)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestHandleWebhook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	raw, sig := f.webhook(t, "evt_1", gateway.SandboxEventCaptured, "order-1")
	outcome, err := f.svc.HandleWebhook(ctx, raw, sig)
	require.NoError(t, err)
	require.Equal(t, OutcomeConfirmed, outcome)
	require.Equal(t, domain.PaymentSourceWebhook, f.order(t).Payment.Result.Source)

	outcome, err = f.svc.HandleWebhook(ctx, raw, sig)
	require.NoError(t, err)
	require.Equal(t, OutcomeAlreadyConfirmed, outcome, "redelivery of the same event")

	other, otherSig := f.webhook(t, "evt_2", gateway.SandboxEventCaptured, "order-1")
	outcome, err = f.svc.HandleWebhook(ctx, other, otherSig)
	require.NoError(t, err)
	require.Equal(t, OutcomeAlreadyConfirmed, outcome)
	require.Equal(t, 1, f.receipts.count())
}

func TestHandleWebhook_FailedDeliveryIsRetried(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deps := f.deps
	deps.Mutator = orderflow.NewMutator(&flakyOrders{OrderRepository: f.orders}, orderflow.RetryConfig{
		MaxAttempts: 1, InitialDelay: time.Microsecond, MaxDelay: time.Microsecond, BackoffFactor: 1,
	}, nil)
	svc := NewService(Config{KeySecret: keySecret, Currency: "INR"}, deps)

	raw, sig := f.webhook(t, "evt_retry", gateway.SandboxEventCaptured, "order-1")
	_, err := svc.HandleWebhook(ctx, raw, sig)
	require.Error(t, err)
	require.Equal(t, domain.PaymentStateUnpaid, f.order(t).Payment.State)

	record, err := deps.Idempotency.Get(ctx, domain.WebhookIdempotencyKey("evt_retry"))
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusFailed, record.Status)

	outcome, err := svc.HandleWebhook(ctx, raw, sig)
	require.NoError(t, err)
	require.Equal(t, OutcomeConfirmed, outcome, "redelivery takes over the failed event")
	require.Equal(t, domain.PaymentStatePaid, f.order(t).Payment.State)

	record, err = deps.Idempotency.Get(ctx, domain.WebhookIdempotencyKey("evt_retry"))
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusDone, record.Status)

	outcome, err = svc.HandleWebhook(ctx, raw, sig)
	require.NoError(t, err)
	require.Equal(t, OutcomeAlreadyConfirmed, outcome)
	require.Equal(t, 1, f.receipts.count())
}

func TestHandleWebhook_BadSignatureDoesNotMutate(t *testing.T) {
	f := newFixture(t)

	raw, _ := f.webhook(t, "evt_1", gateway.SandboxEventCaptured, "order-1")
	_, err := f.svc.HandleWebhook(context.Background(), raw, gateway.Sign("not-the-secret", raw))
	require.ErrorIs(t, err, domain.ErrInvalidSignature)

	require.Equal(t, domain.PaymentStateUnpaid, f.order(t).Payment.State)
	require.Empty(t, f.redeemers(t))

	// Событие с тем же id после отказа по подписи обрабатывается нормально.
	raw, sig := f.webhook(t, "evt_1", gateway.SandboxEventCaptured, "order-1")
	outcome, err := f.svc.HandleWebhook(context.Background(), raw, sig)
	require.NoError(t, err)
	require.Equal(t, OutcomeConfirmed, outcome)
}

func TestHandleWebhook_Ignored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	raw, sig := f.webhook(t, "evt_1", "payment.failed", "order-1")
	outcome, err := f.svc.HandleWebhook(ctx, raw, sig)
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, outcome)

	raw, sig = f.webhook(t, "evt_2", gateway.SandboxEventCaptured, "ghost")
	outcome, err = f.svc.HandleWebhook(ctx, raw, sig)
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, outcome)

	require.Equal(t, domain.PaymentStateUnpaid, f.order(t).Payment.State)
}

func TestConcurrentCallbackAndWebhook_ExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const rounds = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[Outcome]int{}
		errs     []error
	)
	record := func(o Outcome, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			errs = append(errs, err)
			return
		}
		outcomes[o]++
	}

	start := make(chan struct{})
	for i := 0; i < rounds; i++ {
		raw, sig := f.webhook(t, "evt_"+string(rune('a'+i)), gateway.SandboxEventCaptured, "order-1")
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			record(f.svc.VerifyCallback(ctx, callback("order_ref", "pay_cb")))
		}()
		go func() {
			defer wg.Done()
			<-start
			record(f.svc.HandleWebhook(ctx, raw, sig))
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, errs)
	require.Equal(t, 1, outcomes[OutcomeConfirmed])
	require.Equal(t, 2*rounds-1, outcomes[OutcomeAlreadyConfirmed])
	require.Equal(t, 1, f.receipts.count())
	require.Equal(t, []string{buyer.UserID}, f.redeemers(t))
	require.Equal(t, domain.PaymentStatePaid, f.order(t).Payment.State)
}

func TestCreateIntent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	intent, err := f.svc.CreateIntent(ctx, buyer, "order-1")
	require.NoError(t, err)
	require.Equal(t, int64(2700), intent.AmountMinor)
	require.Equal(t, "INR", intent.Currency)
	require.Equal(t, intent.GatewayOrderRef, f.order(t).Payment.IntentRef)

	_, err = f.svc.CreateIntent(ctx, stranger, "order-1")
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.VerifyCallback(ctx, callback("order_ref", "pay_1"))
	require.ErrorIs(t, err, domain.ErrPaymentRefMismatch, "a new intent replaces the old reference")

	_, err = f.svc.VerifyCallback(ctx, callback(intent.GatewayOrderRef, "pay_1"))
	require.NoError(t, err)
	_, err = f.svc.CreateIntent(ctx, buyer, "order-1")
	require.ErrorIs(t, err, domain.ErrOrderAlreadyPaid)
}

func TestApply_RedemptionFailureIsRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deps := f.deps
	deps.Coupons = brokenRedemptions{CouponRepository: f.coupons}
	svc := NewService(Config{KeySecret: keySecret, Currency: "INR"}, deps)

	outcome, err := svc.VerifyCallback(ctx, callback("order_ref", "pay_1"))
	require.NoError(t, err)
	require.Equal(t, OutcomeConfirmed, outcome, "payment stands even if redemption is not stored")
	require.Empty(t, f.redeemers(t))

	events, err := f.timeline.List(ctx, "order-1", domain.TimelineOperator)
	require.NoError(t, err)
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	require.Contains(t, types, domain.EventPaymentConfirmed)
	require.Contains(t, types, domain.EventRedemptionFailed)
}

func TestRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Refund(ctx, buyer, "order-1")
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.Refund(ctx, admin, "order-1")
	require.ErrorIs(t, err, domain.ErrOrderNotPaid)

	_, err = f.svc.VerifyCallback(ctx, callback("order_ref", "pay_1"))
	require.NoError(t, err)

	refunded, err := f.svc.Refund(ctx, admin, "order-1")
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStateRefunded, refunded.Payment.State)
	require.NotEmpty(t, refunded.Payment.RefundRef)
	require.True(t, refunded.IsPaid())

	_, err = f.svc.Refund(ctx, admin, "order-1")
	require.ErrorIs(t, err, domain.ErrPaymentTransition)

	outcome, err := f.svc.VerifyCallback(ctx, callback("order_ref", "pay_1"))
	require.NoError(t, err)
	require.Equal(t, OutcomeAlreadyConfirmed, outcome, "refunded order is never paid again")
}
