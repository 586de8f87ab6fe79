package memory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func TestCouponRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCouponRepository()

	require.NoError(t, repo.Create(ctx, domain.Coupon{Code: "welcome10", DiscountType: domain.DiscountPercent, DiscountValue: 10, Active: true}))
	require.ErrorIs(t, repo.Create(ctx, domain.Coupon{Code: "WELCOME10"}), domain.ErrCouponExists)

	c, err := repo.Get(ctx, " Welcome10 ")
	require.NoError(t, err)
	require.Equal(t, "WELCOME10", c.Code)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, repo.Delete(ctx, "welcome10"))
	_, err = repo.Get(ctx, "WELCOME10")
	require.ErrorIs(t, err, domain.ErrCouponNotFound)
	require.ErrorIs(t, repo.Delete(ctx, "WELCOME10"), domain.ErrCouponNotFound)
}

func TestCouponRepository_AddRedeemerIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCouponRepository()
	require.NoError(t, repo.Create(ctx, domain.Coupon{Code: "FLAT50", DiscountType: domain.DiscountFlat, DiscountValue: 5000, Active: true}))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = repo.AddRedeemer(ctx, "flat50", "user-1")
		}()
	}
	wg.Wait()

	added, err := repo.AddRedeemer(ctx, "FLAT50", "user-1")
	require.NoError(t, err)
	require.False(t, added)

	c, err := repo.Get(ctx, "FLAT50")
	require.NoError(t, err)
	require.Equal(t, []string{"user-1"}, c.RedeemedBy)

	_, err = repo.AddRedeemer(ctx, "NOPE", "user-1")
	require.ErrorIs(t, err, domain.ErrCouponNotFound)
}
