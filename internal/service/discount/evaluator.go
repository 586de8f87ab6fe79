package discount

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/clock"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Discount — результат применения купона к сумме позиций.
type Discount struct {
	AmountMinor int64
	CouponCode  string
}

// Evaluator вычисляет скидку по купону. Список погасивших купон он не читает
// и не меняет: это делает сервис оплаты после подтверждения.
type Evaluator struct {
	coupons domain.CouponRepository
	clock   clock.Clock
	logger  *log.Entry
}

// NewEvaluator создаёт Evaluator.
func NewEvaluator(coupons domain.CouponRepository, clk clock.Clock, logger *log.Entry) *Evaluator {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = log.New().WithField("component", "discount")
	}
	return &Evaluator{coupons: coupons, clock: clk, logger: logger}
}

// Evaluate возвращает скидку для суммы позиций itemsMinor.
//
// Проверки идут в порядке: купон не найден или выключен, истёк, сумма меньше
// минимальной. Пустой код означает отсутствие скидки.
func (e *Evaluator) Evaluate(ctx context.Context, code string, itemsMinor int64) (Discount, error) {
	code = domain.NormalizeCouponCode(code)
	if code == "" {
		return Discount{}, nil
	}

	coupon, err := e.coupons.Get(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrCouponNotFound) {
			return Discount{}, domain.ErrCouponInvalid
		}
		return Discount{}, err
	}
	if !coupon.Active {
		return Discount{}, domain.ErrCouponInvalid
	}
	if coupon.Expired(e.clock.Now()) {
		return Discount{}, domain.ErrCouponExpired
	}
	if itemsMinor < coupon.MinPurchaseMinor {
		return Discount{}, domain.ErrCouponMinPurchase
	}

	amount := coupon.AmountFor(itemsMinor)
	e.logger.WithFields(log.Fields{
		"coupon":       coupon.Code,
		"items_minor":  itemsMinor,
		"amount_minor": amount,
	}).Debug("coupon applied")

	return Discount{AmountMinor: amount, CouponCode: coupon.Code}, nil
}

// Create проверяет и сохраняет новый купон. Новый купон активен.
func (e *Evaluator) Create(ctx context.Context, coupon domain.Coupon) (domain.Coupon, error) {
	coupon.Code = domain.NormalizeCouponCode(coupon.Code)
	coupon.DiscountType = domain.DiscountType(strings.ToLower(strings.TrimSpace(string(coupon.DiscountType))))
	if errs := coupon.Validate(); len(errs) > 0 {
		return domain.Coupon{}, errors.Join(errs...)
	}

	coupon.Active = true
	coupon.RedeemedBy = nil
	coupon.CreatedAt = e.clock.Now()
	if err := e.coupons.Create(ctx, coupon); err != nil {
		return domain.Coupon{}, err
	}

	e.logger.WithField("coupon", coupon.Code).Info("coupon created")
	return coupon, nil
}

// List возвращает все купоны, новые первыми.
func (e *Evaluator) List(ctx context.Context) ([]domain.Coupon, error) {
	return e.coupons.List(ctx)
}

// Delete удаляет купон по коду.
func (e *Evaluator) Delete(ctx context.Context, code string) error {
	if err := e.coupons.Delete(ctx, domain.NormalizeCouponCode(code)); err != nil {
		return err
	}
	e.logger.WithField("coupon", domain.NormalizeCouponCode(code)).Info("coupon deleted")
	return nil
}
