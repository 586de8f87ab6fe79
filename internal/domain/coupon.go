package domain

import (
	"strings"
	"time"
)

// DiscountType — способ расчёта скидки по купону.
type DiscountType string

const (
	// DiscountFlat — фиксированная сумма в минимальных единицах.
	DiscountFlat DiscountType = "flat"
	// DiscountPercent — процент от суммы позиций (целое число 1..100).
	DiscountPercent DiscountType = "percent"
)

// Coupon описывает промокод. Список RedeemedBy пополняется только после
// подтверждения оплаты.
type Coupon struct {
	Code             string
	DiscountType     DiscountType
	DiscountValue    int64
	MinPurchaseMinor int64
	ExpiresAt        time.Time
	Active           bool
	RedeemedBy       []string
	CreatedAt        time.Time
}

// NormalizeCouponCode приводит код к каноническому виду (trim + upper).
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate проверяет купон перед созданием.
func (c *Coupon) Validate() []error {
	var errs []error

	if NormalizeCouponCode(c.Code) == "" {
		errs = append(errs, ErrCouponCodeRequired)
	}
	switch c.DiscountType {
	case DiscountFlat:
		if c.DiscountValue <= 0 {
			errs = append(errs, ErrCouponValueInvalid)
		}
	case DiscountPercent:
		if c.DiscountValue <= 0 || c.DiscountValue > 100 {
			errs = append(errs, ErrCouponValueInvalid)
		}
	default:
		errs = append(errs, ErrCouponTypeInvalid)
	}
	if c.MinPurchaseMinor < 0 {
		errs = append(errs, ErrCouponValueInvalid)
	}

	return errs
}

// Expired сообщает, истёк ли купон к моменту now.
func (c *Coupon) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(now)
}

// RedeemedByUser проверяет, использовал ли пользователь купон.
func (c *Coupon) RedeemedByUser(userID string) bool {
	for _, id := range c.RedeemedBy {
		if id == userID {
			return true
		}
	}
	return false
}

// AmountFor возвращает скидку для суммы позиций, ограниченную этой суммой.
func (c *Coupon) AmountFor(itemsMinor int64) int64 {
	var amount int64
	switch c.DiscountType {
	case DiscountFlat:
		amount = c.DiscountValue
	case DiscountPercent:
		amount = itemsMinor * c.DiscountValue / 100
	}
	if amount > itemsMinor {
		amount = itemsMinor
	}
	if amount < 0 {
		amount = 0
	}
	return amount
}
