package domain

import (
	"strings"
	"time"
)

// EstimatedDeliveryWindow — срок доставки, который обещаем при создании заказа.
const EstimatedDeliveryWindow = 7 * 24 * time.Hour

// OrderItem — снимок позиции на момент заказа. После создания не меняется,
// даже если цена в каталоге изменится.
type OrderItem struct {
	ProductID  string
	Name       string
	Image      string
	Size       string
	Color      string
	Qty        int
	PriceMinor int64
	// DiscountedPriceMinor совпадает с PriceMinor: скидка применяется к заказу целиком.
	DiscountedPriceMinor int64
}

// LineTotal возвращает qty * price.
func (i OrderItem) LineTotal() int64 {
	return int64(i.Qty) * i.PriceMinor
}

// ShippingAddress — адрес доставки.
type ShippingAddress struct {
	Address    string
	City       string
	PostalCode string
	Country    string
	Phone      string
}

// Complete проверяет, что обязательные поля адреса заполнены.
func (a ShippingAddress) Complete() bool {
	return strings.TrimSpace(a.Address) != "" &&
		strings.TrimSpace(a.City) != "" &&
		strings.TrimSpace(a.PostalCode) != "" &&
		strings.TrimSpace(a.Country) != ""
}

// Order — агрегат заказа: позиции, итоги, состояние оплаты и исполнения.
type Order struct {
	ID              string
	UserID          string
	CustomerEmail   string
	Items           []OrderItem
	ShippingAddress ShippingAddress
	PaymentMethod   string

	ItemsPriceMinor int64
	TaxMinor        int64
	ShippingMinor   int64
	DiscountMinor   int64
	TotalMinor      int64
	CouponCode      string

	Payment Payment

	Status            OrderStatus
	IsDelivered       bool
	DeliveredAt       time.Time
	EstimatedDelivery time.Time

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsPaid сообщает, подтверждена ли оплата (возврат оплату не отменяет в истории).
func (o *Order) IsPaid() bool {
	return o.Payment.State == PaymentStatePaid || o.Payment.State == PaymentStateRefunded
}

// ValidateInvariants проверяет денежные инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}

	var calc int64
	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrProductPriceInvalid)
		}
		calc += item.LineTotal()
	}
	if calc != o.ItemsPriceMinor {
		errs = append(errs, ErrAmountMismatch)
	}
	if o.DiscountMinor < 0 || o.DiscountMinor > o.ItemsPriceMinor {
		errs = append(errs, ErrDiscountOutOfRange)
	}
	if o.TotalMinor != o.ItemsPriceMinor+o.TaxMinor+o.ShippingMinor-o.DiscountMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

// Clone возвращает копию заказа с независимым срезом позиций.
func (o Order) Clone() Order {
	dst := o
	dst.Items = append([]OrderItem(nil), o.Items...)
	return dst
}
