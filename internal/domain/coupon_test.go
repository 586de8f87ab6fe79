package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestCouponAmountFor(t *testing.T) {
	tests := []struct {
		name   string
		coupon domain.Coupon
		items  int64
		want   int64
	}{
		{name: "flat capped", coupon: domain.Coupon{DiscountType: domain.DiscountFlat, DiscountValue: 5000}, items: 3000, want: 3000},
		{name: "flat below total", coupon: domain.Coupon{DiscountType: domain.DiscountFlat, DiscountValue: 500}, items: 3000, want: 500},
		{name: "percent", coupon: domain.Coupon{DiscountType: domain.DiscountPercent, DiscountValue: 10}, items: 2000, want: 200},
		{name: "percent floors", coupon: domain.Coupon{DiscountType: domain.DiscountPercent, DiscountValue: 15}, items: 999, want: 149},
		{name: "percent full", coupon: domain.Coupon{DiscountType: domain.DiscountPercent, DiscountValue: 100}, items: 750, want: 750},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.coupon.AmountFor(tt.items))
		})
	}
}

func TestCouponValidate(t *testing.T) {
	valid := domain.Coupon{Code: "save10", DiscountType: domain.DiscountPercent, DiscountValue: 10}
	require.Empty(t, valid.Validate())

	require.Contains(t, (&domain.Coupon{Code: "X", DiscountType: "bogus", DiscountValue: 1}).Validate(), domain.ErrCouponTypeInvalid)
	require.Contains(t, (&domain.Coupon{Code: "X", DiscountType: domain.DiscountFlat}).Validate(), domain.ErrCouponValueInvalid)
	require.Contains(t, (&domain.Coupon{Code: "X", DiscountType: domain.DiscountPercent, DiscountValue: 101}).Validate(), domain.ErrCouponValueInvalid)
	require.Contains(t, (&domain.Coupon{Code: "  ", DiscountType: domain.DiscountFlat, DiscountValue: 1}).Validate(), domain.ErrCouponCodeRequired)
}

func TestCouponExpiredAndRedeemers(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	c := domain.Coupon{ExpiresAt: now.Add(-time.Second), RedeemedBy: []string{"u1"}}

	require.True(t, c.Expired(now))
	require.False(t, (&domain.Coupon{}).Expired(now), "zero expiry never expires")
	require.True(t, c.RedeemedByUser("u1"))
	require.False(t, c.RedeemedByUser("u2"))
	require.Equal(t, "WELCOME", domain.NormalizeCouponCode("  welcome "))
}

func TestNormalizeCategory(t *testing.T) {
	got, ok := domain.NormalizeCategory(" T Shirt ")
	require.True(t, ok)
	require.Equal(t, domain.CategoryTShirts, got)

	_, ok = domain.NormalizeCategory("socks")
	require.False(t, ok)
}

func TestProductAvailable(t *testing.T) {
	p := domain.Product{Variants: []domain.Variant{{Size: "M", Color: "Black", Stock: 3}}}
	n, err := p.Available("m", "black")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	_, err = p.Available("L", "black")
	require.ErrorIs(t, err, domain.ErrVariantNotFound)

	plain := domain.Product{CountInStock: 7}
	n, err = plain.Available("", "")
	require.NoError(t, err)
	require.Equal(t, 7, n)
}
