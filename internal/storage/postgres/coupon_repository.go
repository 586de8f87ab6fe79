package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type couponRepository struct {
	db *sql.DB
}

// NewCouponRepository создаёт PostgreSQL-реализацию CouponRepository.
// Погасившие пользователи лежат в отдельной таблице coupon_redemptions.
func NewCouponRepository(store *Store) domain.CouponRepository {
	return &couponRepository{db: store.DB()}
}

func (r *couponRepository) Create(ctx context.Context, coupon domain.Coupon) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	coupon.Code = domain.NormalizeCouponCode(coupon.Code)
	if coupon.CreatedAt.IsZero() {
		coupon.CreatedAt = time.Now().UTC()
	}

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO coupons (code, discount_type, discount_value, min_purchase_minor, expires_at, active, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`,
			coupon.Code, string(coupon.DiscountType), coupon.DiscountValue, coupon.MinPurchaseMinor,
			nullTime(coupon.ExpiresAt), coupon.Active, coupon.CreatedAt,
		); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrCouponExists
			}
			if isCheckViolation(err) {
				return fmt.Errorf("%w: %v", domain.ErrCouponValueInvalid, err)
			}
			return fmt.Errorf("insert coupon: %w", err)
		}

		for _, userID := range coupon.RedeemedBy {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO coupon_redemptions (code, user_id, redeemed_at)
				VALUES ($1,$2,$3)
				ON CONFLICT (code, user_id) DO NOTHING
			`, coupon.Code, userID, coupon.CreatedAt); err != nil {
				return fmt.Errorf("insert coupon redemption: %w", err)
			}
		}
		return nil
	})
}

func (r *couponRepository) Get(ctx context.Context, code string) (domain.Coupon, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	code = domain.NormalizeCouponCode(code)

	var (
		c         domain.Coupon
		discType  string
		expiresAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT code, discount_type, discount_value, min_purchase_minor, expires_at, active, created_at
		FROM coupons
		WHERE code = $1
	`, code).Scan(&c.Code, &discType, &c.DiscountValue, &c.MinPurchaseMinor, &expiresAt, &c.Active, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Coupon{}, domain.ErrCouponNotFound
		}
		return domain.Coupon{}, fmt.Errorf("select coupon: %w", err)
	}
	c.DiscountType = domain.DiscountType(discType)
	c.ExpiresAt = timeOrZero(expiresAt)

	if c.RedeemedBy, err = r.redeemers(ctx, c.Code); err != nil {
		return domain.Coupon{}, err
	}
	return c, nil
}

func (r *couponRepository) List(ctx context.Context) ([]domain.Coupon, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT code, discount_type, discount_value, min_purchase_minor, expires_at, active, created_at
		FROM coupons
		ORDER BY created_at DESC, code ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	defer rows.Close()

	coupons := make([]domain.Coupon, 0)
	for rows.Next() {
		var (
			c         domain.Coupon
			discType  string
			expiresAt sql.NullTime
		)
		if err := rows.Scan(&c.Code, &discType, &c.DiscountValue, &c.MinPurchaseMinor, &expiresAt, &c.Active, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan coupon: %w", err)
		}
		c.DiscountType = domain.DiscountType(discType)
		c.ExpiresAt = timeOrZero(expiresAt)
		coupons = append(coupons, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate coupons: %w", err)
	}

	for i := range coupons {
		if coupons[i].RedeemedBy, err = r.redeemers(ctx, coupons[i].Code); err != nil {
			return nil, err
		}
	}
	return coupons, nil
}

func (r *couponRepository) Delete(ctx context.Context, code string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM coupons WHERE code = $1`, domain.NormalizeCouponCode(code))
	if err != nil {
		return fmt.Errorf("delete coupon: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("coupon rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrCouponNotFound
	}
	return nil
}

// AddRedeemer вставляет пару (code, user_id); повторная вставка ничего не меняет.
func (r *couponRepository) AddRedeemer(ctx context.Context, code, userID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	code = domain.NormalizeCouponCode(code)

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO coupon_redemptions (code, user_id, redeemed_at)
		SELECT code, $2, $3 FROM coupons WHERE code = $1
		ON CONFLICT (code, user_id) DO NOTHING
	`, code, userID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("add coupon redeemer: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("redemption rows affected: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM coupons WHERE code = $1)`, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("check coupon exists: %w", err)
	}
	if !exists {
		return false, domain.ErrCouponNotFound
	}
	return false, nil
}

func (r *couponRepository) redeemers(ctx context.Context, code string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id FROM coupon_redemptions
		WHERE code = $1
		ORDER BY redeemed_at ASC, user_id ASC
	`, code)
	if err != nil {
		return nil, fmt.Errorf("load coupon redeemers: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan coupon redeemer: %w", err)
		}
		users = append(users, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate coupon redeemers: %w", err)
	}
	return users, nil
}

var _ domain.CouponRepository = (*couponRepository)(nil)
