package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type couponRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Coupon
}

// NewCouponRepository создаёт in-memory реализацию CouponRepository.
func NewCouponRepository() domain.CouponRepository {
	return &couponRepositoryInMemory{items: make(map[string]domain.Coupon)}
}

func (r *couponRepositoryInMemory) Create(_ context.Context, coupon domain.Coupon) error {
	coupon.Code = domain.NormalizeCouponCode(coupon.Code)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[coupon.Code]; exists {
		return domain.ErrCouponExists
	}
	coupon.RedeemedBy = append([]string(nil), coupon.RedeemedBy...)
	r.items[coupon.Code] = coupon
	return nil
}

func (r *couponRepositoryInMemory) Get(_ context.Context, code string) (domain.Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.items[domain.NormalizeCouponCode(code)]
	if !ok {
		return domain.Coupon{}, domain.ErrCouponNotFound
	}
	c.RedeemedBy = append([]string(nil), c.RedeemedBy...)
	return c, nil
}

func (r *couponRepositoryInMemory) List(_ context.Context) ([]domain.Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Coupon, 0, len(r.items))
	for _, c := range r.items {
		c.RedeemedBy = append([]string(nil), c.RedeemedBy...)
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *couponRepositoryInMemory) Delete(_ context.Context, code string) error {
	code = domain.NormalizeCouponCode(code)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[code]; !ok {
		return domain.ErrCouponNotFound
	}
	delete(r.items, code)
	return nil
}

// AddRedeemer добавляет пользователя, только если его ещё нет в списке.
func (r *couponRepositoryInMemory) AddRedeemer(_ context.Context, code, userID string) (bool, error) {
	code = domain.NormalizeCouponCode(code)

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.items[code]
	if !ok {
		return false, domain.ErrCouponNotFound
	}
	if c.RedeemedByUser(userID) {
		return false, nil
	}
	c.RedeemedBy = append(append([]string(nil), c.RedeemedBy...), userID)
	r.items[code] = c
	return true, nil
}

var _ domain.CouponRepository = (*couponRepositoryInMemory)(nil)
