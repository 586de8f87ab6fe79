package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

type capturingNotifier struct {
	sent []domain.Notification
	err  error
}

func (c *capturingNotifier) Notify(_ context.Context, n domain.Notification) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, n)
	return nil
}

func sampleOrder() domain.Order {
	return domain.Order{
		ID:                "order-1",
		CustomerEmail:     "buyer@example.com",
		TotalMinor:        180050,
		Status:            domain.OrderStatusShipped,
		EstimatedDelivery: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
	}
}

func TestDispatcher_Subjects(t *testing.T) {
	n := &capturingNotifier{}
	d := NewDispatcher(n, "Luxor", "inr", nil, nil)
	ctx := context.Background()

	d.OrderConfirmation(ctx, sampleOrder())
	d.StatusChanged(ctx, sampleOrder())
	d.PaymentSuccessful(ctx, sampleOrder())

	require.Len(t, n.sent, 3)
	require.Equal(t, "Luxor - Order Confirmation", n.sent[0].Subject)
	require.Contains(t, n.sent[0].Body, "INR 1800.50")
	require.Contains(t, n.sent[0].Body, "Mon Mar 09 2026")
	require.Equal(t, "Luxor - Order Shipped", n.sent[1].Subject)
	require.Equal(t, "Luxor - Payment Successful", n.sent[2].Subject)
	require.Equal(t, "buyer@example.com", n.sent[2].To)
	require.Equal(t, "order-1", n.sent[2].OrderID)
}

func TestDispatcher_FailureIsSwallowed(t *testing.T) {
	n := &capturingNotifier{err: errors.New("smtp down")}
	m := metrics.NewStorefrontMetricsWithRegisterer(prometheus.NewRegistry())
	d := NewDispatcher(n, "", "", m, nil)

	require.NotPanics(t, func() { d.StatusChanged(context.Background(), sampleOrder()) })
}

func TestDispatcher_SkipsWithoutEmail(t *testing.T) {
	n := &capturingNotifier{}
	d := NewDispatcher(n, "", "", nil, nil)

	order := sampleOrder()
	order.CustomerEmail = ""
	d.OrderConfirmation(context.Background(), order)

	require.Empty(t, n.sent)

	var nilDispatcher *Dispatcher
	nilDispatcher.PaymentSuccessful(context.Background(), order)
}

func TestFormatMinor(t *testing.T) {
	require.Equal(t, "INR 0.05", FormatMinor(5, "INR"))
	require.Equal(t, "USD 12.00", FormatMinor(1200, "USD"))
	require.Equal(t, "USD -1.50", FormatMinor(-150, "USD"))
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(nil)
	require.NoError(t, n.Notify(context.Background(), domain.Notification{To: "a@b.c", Subject: "s", Body: "b"}))
	require.Error(t, n.Notify(context.Background(), domain.Notification{}))
}
