package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestTimelineRepository_PostgresViews(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	orderRepo := NewOrderRepository(store)
	timelineRepo := NewTimelineRepository(store)
	ctx := context.Background()

	placedAt := time.Now().UTC().Add(-time.Minute).Round(time.Microsecond)
	order := sampleOrder("timeline-order", "user-timeline", placedAt)
	require.NoError(t, orderRepo.Create(ctx, order))

	for i, e := range []domain.TimelineEvent{
		{Type: domain.EventOrderCreated, Reason: "order placed"},
		{Type: domain.EventInventoryShortfall, Reason: "variant M/Black short by 1"},
		{Type: domain.EventPaymentConfirmed, Reason: "webhook"},
	} {
		e.OrderID = order.ID
		e.Occurred = placedAt.Add(time.Duration(i) * time.Second)
		require.NoError(t, timelineRepo.Append(ctx, e))
	}

	operator, err := timelineRepo.List(ctx, order.ID, domain.TimelineOperator)
	require.NoError(t, err)
	require.Len(t, operator, 3)
	require.Equal(t, domain.EventInventoryShortfall, operator[1].Type)
	require.Equal(t, domain.TimelineOperator, operator[1].Visibility)
	require.True(t, operator[0].Occurred.Equal(placedAt))

	customer, err := timelineRepo.List(ctx, order.ID, domain.TimelineCustomer)
	require.NoError(t, err)
	require.Len(t, customer, 2)
	require.Equal(t, domain.EventOrderCreated, customer[0].Type)
	require.Equal(t, domain.EventPaymentConfirmed, customer[1].Type)
}

func TestTimelineRepository_PostgresFillsOccurred(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	orderRepo := NewOrderRepository(store)
	timelineRepo := NewTimelineRepository(store)
	ctx := context.Background()

	order := sampleOrder("timeline-now", "user-timeline", time.Now().UTC().Round(time.Microsecond))
	require.NoError(t, orderRepo.Create(ctx, order))
	require.NoError(t, timelineRepo.Append(ctx, domain.TimelineEvent{OrderID: order.ID, Type: domain.EventOrderCreated}))

	events, err := timelineRepo.List(ctx, order.ID, domain.TimelineCustomer)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.False(t, events[0].Occurred.IsZero())
	require.Equal(t, domain.TimelineCustomer, events[0].Visibility)
}

func TestTimelineRepository_PostgresMissingOrder(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	timelineRepo := NewTimelineRepository(store)
	ctx := context.Background()

	err := timelineRepo.Append(ctx, domain.TimelineEvent{OrderID: "missing-order", Type: domain.EventOrderCreated})
	require.Error(t, err, "timeline rows reference orders")

	events, err := timelineRepo.List(ctx, "missing-order", domain.TimelineOperator)
	require.NoError(t, err)
	require.Empty(t, events)
}
