package orderflow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/clock"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

type failingTimeline struct{}

func (failingTimeline) Append(context.Context, domain.TimelineEvent) error {
	return errors.New("timeline down")
}

func (failingTimeline) List(context.Context, string, domain.TimelineVisibility) ([]domain.TimelineEvent, error) {
	return nil, nil
}

func TestRecorderEmit(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	outbox := memory.NewOutboxRepository()
	timeline := memory.NewTimelineRepository()
	m := metrics.NewStorefrontMetricsWithRegisterer(prometheus.NewRegistry())
	r := NewRecorder(outbox, timeline, m, clock.NewManual(now), nil)

	r.Emit(context.Background(), "order-1", domain.EventPaymentConfirmed, "webhook", map[string]any{"amount_minor": int64(2700)})

	pending := outbox.AllPending()
	require.Len(t, pending, 1)
	require.Equal(t, domain.EventPaymentConfirmed, pending[0].EventType)
	require.Equal(t, domain.AggregateTypeOrder, pending[0].AggregateType)
	require.Equal(t, "order-1", pending[0].AggregateID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(pending[0].Payload, &payload))
	require.Equal(t, "order-1", payload["order_id"])
	require.Equal(t, "webhook", payload["reason"])
	require.EqualValues(t, 2700, payload["amount_minor"])
	require.Equal(t, now.Format(time.RFC3339Nano), payload["ts"])

	events, err := timeline.List(context.Background(), "order-1", domain.TimelineOperator)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "webhook", events[0].Reason)
	require.Equal(t, domain.TimelineCustomer, events[0].Visibility)
	require.True(t, events[0].Occurred.Equal(now))

	r.Emit(context.Background(), "order-1", domain.EventRedemptionFailed, "coupon store down", nil)
	customer, err := timeline.List(context.Background(), "order-1", domain.TimelineCustomer)
	require.NoError(t, err)
	require.Len(t, customer, 1, "redemption failures are operator-only")
	require.Len(t, outbox.AllPending(), 2, "operator events still reach the outbox")
}

func TestRecorderEmit_SideEffectFailuresAreSwallowed(t *testing.T) {
	outbox := memory.NewOutboxRepository()
	r := NewRecorder(outbox, failingTimeline{}, nil, nil, nil)

	require.NotPanics(t, func() {
		r.Emit(context.Background(), "order-2", domain.EventOrderCreated, "", nil)
	})
	require.Len(t, outbox.AllPending(), 1)

	var nilRecorder *Recorder
	nilRecorder.Emit(context.Background(), "order-2", domain.EventOrderCreated, "", nil)
}
