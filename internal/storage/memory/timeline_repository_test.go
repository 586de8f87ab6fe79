package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func TestTimelineRepository_OrderedByOccurred(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewTimelineRepository()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for _, e := range []domain.TimelineEvent{
		{OrderID: "o-1", Type: domain.EventPaymentConfirmed, Occurred: base.Add(time.Minute)},
		{OrderID: "o-1", Type: domain.EventOrderCreated, Occurred: base},
		{OrderID: "o-1", Type: domain.EventOrderStatusChanged, Reason: "Packed", Occurred: base.Add(time.Minute)},
		{OrderID: "o-2", Type: domain.EventOrderCreated, Occurred: base},
	} {
		require.NoError(t, repo.Append(ctx, e))
	}

	got, err := repo.List(ctx, "o-1", domain.TimelineOperator)
	require.NoError(t, err)
	require.Equal(t, []string{
		domain.EventOrderCreated, domain.EventPaymentConfirmed, domain.EventOrderStatusChanged,
	}, timelineTypes(got), "equal timestamps keep append order")
}

func TestTimelineRepository_CustomerViewHidesOperatorEvents(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewTimelineRepository()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, eventType := range []string{
		domain.EventOrderCreated,
		domain.EventInventoryShortfall,
		domain.EventSignatureRejected,
		domain.EventPaymentConfirmed,
		domain.EventRedemptionFailed,
	} {
		require.NoError(t, repo.Append(ctx, domain.TimelineEvent{
			OrderID:  "o-1",
			Type:     eventType,
			Occurred: base.Add(time.Duration(i) * time.Second),
		}))
	}

	customer, err := repo.List(ctx, "o-1", domain.TimelineCustomer)
	require.NoError(t, err)
	require.Equal(t, []string{domain.EventOrderCreated, domain.EventPaymentConfirmed}, timelineTypes(customer))

	operator, err := repo.List(ctx, "o-1", domain.TimelineOperator)
	require.NoError(t, err)
	require.Len(t, operator, 5)
	require.Equal(t, domain.TimelineOperator, operator[1].Visibility)
	require.Equal(t, domain.TimelineCustomer, operator[0].Visibility)
}

func TestTimelineRepository_FillsOccurred(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewTimelineRepository()

	require.NoError(t, repo.Append(ctx, domain.TimelineEvent{OrderID: "o-1", Type: domain.EventOrderCreated}))

	got, err := repo.List(ctx, "o-1", domain.TimelineCustomer)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.False(t, got[0].Occurred.IsZero())

	missing, err := repo.List(ctx, "missing", domain.TimelineOperator)
	require.NoError(t, err)
	require.Empty(t, missing)
}

func timelineTypes(events []domain.TimelineEvent) []string {
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}
