package fulfillment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/clock"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/orderflow"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

var (
	admin    = domain.Actor{UserID: "admin-1", Role: domain.RoleAdmin}
	owner    = domain.Actor{UserID: "user-1", Role: domain.RoleCustomer}
	stranger = domain.Actor{UserID: "user-2", Role: domain.RoleCustomer}
)

type recordingNotifier struct {
	statuses []domain.OrderStatus
}

func (r *recordingNotifier) StatusChanged(_ context.Context, order domain.Order) {
	r.statuses = append(r.statuses, order.Status)
}

type fixture struct {
	svc      *Service
	orders   domain.OrderRepository
	timeline domain.TimelineRepository
	notifier *recordingNotifier
	clock    *clock.Manual
}

func newFixture(t *testing.T, status domain.OrderStatus) *fixture {
	t.Helper()
	f := &fixture{
		orders:   memory.NewOrderRepository(),
		timeline: memory.NewTimelineRepository(),
		notifier: &recordingNotifier{},
		clock:    clock.NewManual(time.Date(2026, 9, 10, 8, 0, 0, 0, time.UTC)),
	}
	require.NoError(t, f.orders.Create(context.Background(), domain.Order{
		ID:              "order-1",
		UserID:          owner.UserID,
		Items:           []domain.OrderItem{{ProductID: "tee", Qty: 1, PriceMinor: 1500, DiscountedPriceMinor: 1500}},
		ItemsPriceMinor: 1500,
		TotalMinor:      1500,
		Status:          status,
	}))

	recorder := orderflow.NewRecorder(memory.NewOutboxRepository(), f.timeline, nil, f.clock, nil)
	mutator := orderflow.NewMutator(f.orders, orderflow.DefaultRetryConfig(), nil)
	f.svc = NewService(mutator, recorder, f.notifier, nil, f.clock, nil)
	return f
}

func TestChangeStatus_HappyPath(t *testing.T) {
	f := newFixture(t, domain.OrderStatusProcessing)
	ctx := context.Background()

	for _, next := range []domain.OrderStatus{
		domain.OrderStatusPacked,
		domain.OrderStatusShipped,
		domain.OrderStatusOutForDelivery,
		domain.OrderStatusDelivered,
	} {
		f.clock.Advance(time.Hour)
		order, err := f.svc.ChangeStatus(ctx, "order-1", admin, next)
		require.NoError(t, err)
		require.Equal(t, next, order.Status)
	}

	stored, err := f.orders.Get(ctx, "order-1")
	require.NoError(t, err)
	require.True(t, stored.IsDelivered)
	require.True(t, stored.DeliveredAt.Equal(f.clock.Now()))
	require.Equal(t, int64(4), stored.Version)

	require.Len(t, f.notifier.statuses, 4)
	events, err := f.timeline.List(ctx, "order-1", domain.TimelineOperator)
	require.NoError(t, err)
	require.Len(t, events, 4)
	require.Equal(t, string(domain.OrderStatusDelivered), events[3].Reason)
}

func TestChangeStatus_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		status domain.OrderStatus
		actor  domain.Actor
		to     domain.OrderStatus
		want   error
	}{
		{name: "owner forward", status: domain.OrderStatusProcessing, actor: owner, to: domain.OrderStatusPacked, want: domain.ErrForbidden},
		{name: "backward", status: domain.OrderStatusShipped, actor: admin, to: domain.OrderStatusPacked, want: domain.ErrIllegalTransition},
		{name: "from delivered", status: domain.OrderStatusDelivered, actor: admin, to: domain.OrderStatusShipped, want: domain.ErrIllegalTransition},
		{name: "from cancelled", status: domain.OrderStatusCancelled, actor: admin, to: domain.OrderStatusPacked, want: domain.ErrIllegalTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.status)

			_, err := f.svc.ChangeStatus(context.Background(), "order-1", tt.actor, tt.to)
			require.ErrorIs(t, err, tt.want)

			stored, getErr := f.orders.Get(context.Background(), "order-1")
			require.NoError(t, getErr)
			require.Equal(t, tt.status, stored.Status)
			require.Zero(t, stored.Version)
			require.Empty(t, f.notifier.statuses)
		})
	}
}

func TestCancel(t *testing.T) {
	tests := []struct {
		name   string
		status domain.OrderStatus
		actor  domain.Actor
		want   error
	}{
		{name: "owner while processing", status: domain.OrderStatusProcessing, actor: owner},
		{name: "owner after packing", status: domain.OrderStatusPacked, actor: owner, want: domain.ErrIllegalTransition},
		{name: "stranger", status: domain.OrderStatusProcessing, actor: stranger, want: domain.ErrForbidden},
		{name: "admin out for delivery", status: domain.OrderStatusOutForDelivery, actor: admin},
		{name: "admin delivered", status: domain.OrderStatusDelivered, actor: admin, want: domain.ErrOrderDelivered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.status)

			order, err := f.svc.Cancel(context.Background(), "order-1", tt.actor)
			if tt.want != nil {
				require.ErrorIs(t, err, tt.want)
				return
			}
			require.NoError(t, err)
			require.Equal(t, domain.OrderStatusCancelled, order.Status)
			require.False(t, order.IsDelivered)
			require.Equal(t, []domain.OrderStatus{domain.OrderStatusCancelled}, f.notifier.statuses)
		})
	}
}

func TestChangeStatus_UnknownOrder(t *testing.T) {
	f := newFixture(t, domain.OrderStatusProcessing)
	_, err := f.svc.ChangeStatus(context.Background(), "ghost", admin, domain.OrderStatusPacked)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}
