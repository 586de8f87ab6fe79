package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
// Позиции, адрес и результат оплаты хранятся в JSONB-колонках строки заказа.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

type itemRow struct {
	ProductID            string `json:"productId"`
	Name                 string `json:"name"`
	Image                string `json:"image,omitempty"`
	Size                 string `json:"size,omitempty"`
	Color                string `json:"color,omitempty"`
	Qty                  int    `json:"qty"`
	PriceMinor           int64  `json:"priceMinor"`
	DiscountedPriceMinor int64  `json:"discountedPriceMinor"`
}

type addressRow struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

type paymentResultRow struct {
	GatewayOrderRef   string    `json:"gatewayOrderRef"`
	GatewayPaymentRef string    `json:"gatewayPaymentRef"`
	Signature         string    `json:"signature,omitempty"`
	Status            string    `json:"status"`
	Source            string    `json:"source"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

const orderColumns = `
	id, user_id, customer_email, items, shipping_address, payment_method,
	items_price_minor, tax_minor, shipping_minor, discount_minor, total_minor, coupon_code,
	payment_state, payment_intent_ref, paid_at, refunded_at, refund_ref, payment_result,
	status, is_delivered, delivered_at, estimated_delivery,
	version, created_at, updated_at`

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	enc, err := encodeOrder(order)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)
	`,
		order.ID, order.UserID, order.CustomerEmail, enc.items, enc.address, order.PaymentMethod,
		order.ItemsPriceMinor, order.TaxMinor, order.ShippingMinor, order.DiscountMinor, order.TotalMinor, order.CouponCode,
		string(paymentState(order.Payment.State)), order.Payment.IntentRef,
		nullTime(order.Payment.PaidAt), nullTime(order.Payment.RefundedAt),
		order.Payment.RefundRef, enc.result,
		string(order.Status), order.IsDelivered, nullTime(order.DeliveredAt), nullTime(order.EstimatedDelivery),
		order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderVersionConflict
		}
		if isCheckViolation(err) {
			return fmt.Errorf("%w: %v", domain.ErrAmountMismatch, err)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	return order, nil
}

func (r *orderRepository) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		conds []string
		args  []any
	)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	return orders, nil
}

// Save обновляет изменяемую часть заказа: ссылку на платёж, оплату и статус исполнения.
// Позиции и итоги после создания не меняются.
func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	enc, err := encodeOrder(order)
	if err != nil {
		return err
	}

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE orders
			SET payment_state = $1,
			    payment_intent_ref = $2,
			    paid_at = $3,
			    refunded_at = $4,
			    refund_ref = $5,
			    payment_result = $6,
			    status = $7,
			    is_delivered = $8,
			    delivered_at = $9,
			    version = version + 1,
			    updated_at = $10
			WHERE id = $11
			  AND version = $12
		`,
			string(paymentState(order.Payment.State)),
			order.Payment.IntentRef,
			nullTime(order.Payment.PaidAt),
			nullTime(order.Payment.RefundedAt),
			order.Payment.RefundRef,
			enc.result,
			string(order.Status),
			order.IsDelivered,
			nullTime(order.DeliveredAt),
			order.UpdatedAt,
			order.ID,
			order.Version,
		)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			exists, err := orderExistsTx(ctx, tx, order.ID)
			if err != nil {
				return err
			}
			if !exists {
				return domain.ErrOrderNotFound
			}
			return domain.ErrOrderVersionConflict
		}
		return nil
	})
}

type encodedOrder struct {
	items   []byte
	address []byte
	result  []byte
}

func encodeOrder(order domain.Order) (encodedOrder, error) {
	items := make([]itemRow, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, itemRow{
			ProductID:            it.ProductID,
			Name:                 it.Name,
			Image:                it.Image,
			Size:                 it.Size,
			Color:                it.Color,
			Qty:                  it.Qty,
			PriceMinor:           it.PriceMinor,
			DiscountedPriceMinor: it.DiscountedPriceMinor,
		})
	}

	var (
		enc encodedOrder
		err error
	)
	if enc.items, err = json.Marshal(items); err != nil {
		return encodedOrder{}, fmt.Errorf("encode order items: %w", err)
	}
	a := order.ShippingAddress
	if enc.address, err = json.Marshal(addressRow{
		Address:    a.Address,
		City:       a.City,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
	}); err != nil {
		return encodedOrder{}, fmt.Errorf("encode shipping address: %w", err)
	}

	if res := order.Payment.Result; res.GatewayPaymentRef != "" || res.GatewayOrderRef != "" {
		if enc.result, err = json.Marshal(paymentResultRow{
			GatewayOrderRef:   res.GatewayOrderRef,
			GatewayPaymentRef: res.GatewayPaymentRef,
			Signature:         res.Signature,
			Status:            res.Status,
			Source:            string(res.Source),
			UpdatedAt:         res.UpdatedAt,
		}); err != nil {
			return encodedOrder{}, fmt.Errorf("encode payment result: %w", err)
		}
	}

	return enc, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order                                   domain.Order
		itemsRaw, addressRaw, resultRaw         []byte
		paymentStateRaw, statusRaw              string
		paidAt, refundedAt, deliveredAt, estDel sql.NullTime
	)

	if err := row.Scan(
		&order.ID, &order.UserID, &order.CustomerEmail, &itemsRaw, &addressRaw, &order.PaymentMethod,
		&order.ItemsPriceMinor, &order.TaxMinor, &order.ShippingMinor, &order.DiscountMinor, &order.TotalMinor, &order.CouponCode,
		&paymentStateRaw, &order.Payment.IntentRef, &paidAt, &refundedAt, &order.Payment.RefundRef, &resultRaw,
		&statusRaw, &order.IsDelivered, &deliveredAt, &estDel,
		&order.Version, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}

	var items []itemRow
	if err := json.Unmarshal(itemsRaw, &items); err != nil {
		return domain.Order{}, fmt.Errorf("decode order items: %w", err)
	}
	order.Items = make([]domain.OrderItem, 0, len(items))
	for _, it := range items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID:            it.ProductID,
			Name:                 it.Name,
			Image:                it.Image,
			Size:                 it.Size,
			Color:                it.Color,
			Qty:                  it.Qty,
			PriceMinor:           it.PriceMinor,
			DiscountedPriceMinor: it.DiscountedPriceMinor,
		})
	}

	var addr addressRow
	if err := json.Unmarshal(addressRaw, &addr); err != nil {
		return domain.Order{}, fmt.Errorf("decode shipping address: %w", err)
	}
	order.ShippingAddress = domain.ShippingAddress(addr)

	if len(resultRaw) > 0 {
		var res paymentResultRow
		if err := json.Unmarshal(resultRaw, &res); err != nil {
			return domain.Order{}, fmt.Errorf("decode payment result: %w", err)
		}
		order.Payment.Result = domain.PaymentResult{
			GatewayOrderRef:   res.GatewayOrderRef,
			GatewayPaymentRef: res.GatewayPaymentRef,
			Signature:         res.Signature,
			Status:            res.Status,
			Source:            domain.PaymentSource(res.Source),
			UpdatedAt:         res.UpdatedAt,
		}
	}

	order.Payment.State = domain.PaymentState(paymentStateRaw)
	order.Payment.PaidAt = timeOrZero(paidAt)
	order.Payment.RefundedAt = timeOrZero(refundedAt)
	order.Status = domain.OrderStatus(statusRaw)
	order.DeliveredAt = timeOrZero(deliveredAt)
	order.EstimatedDelivery = timeOrZero(estDel)

	return order, nil
}

func orderExistsTx(ctx context.Context, tx *sql.Tx, orderID string) (bool, error) {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

func paymentState(s domain.PaymentState) domain.PaymentState {
	if s == "" {
		return domain.PaymentStateUnpaid
	}
	return s
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func timeOrZero(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}

var _ domain.OrderRepository = (*orderRepository)(nil)
