package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/discount"
	"github.com/vladislavdragonenkov/storefront/internal/service/ordering"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment/gateway"
)

// maxBodyBytes ограничивает размер тела JSON-запроса.
const maxBodyBytes = 1 << 20

// newValidator настраивает валидатор так, чтобы в деталях ошибок были json-имена полей.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON читает тело запроса в dst, отвергая неизвестные поля.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid request payload: %w", err)
	}
	if decoder.More() {
		return errors.New("invalid request payload: trailing data")
	}
	return nil
}

// CouponCode принимает код купона строкой или объектом {"code": "..."}.
// Пустое значение и null означают "без купона".
type CouponCode string

func (c *CouponCode) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = CouponCode(strings.TrimSpace(s))
		return nil
	}
	var obj struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("couponCode must be a string or an object with code: %w", err)
	}
	*c = CouponCode(strings.TrimSpace(obj.Code))
	return nil
}

// VariantList принимает варианты JSON-массивом или строкой, содержащей JSON-массив
// (так их присылает multipart-форма админки).
type VariantList []VariantRequest

func (v *VariantList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = nil
		return nil
	}
	if data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*v = nil
			return nil
		}
		data = []byte(raw)
	}
	var items []VariantRequest
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("variants must be an array: %w", err)
	}
	*v = items
	return nil
}

type LineItemRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	Qty       int    `json:"qty" validate:"gt=0"`
}

type ShippingAddressRequest struct {
	Address    string `json:"address" validate:"required"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postalCode" validate:"required"`
	Country    string `json:"country" validate:"required"`
	Phone      string `json:"phone"`
}

type CreateOrderRequest struct {
	OrderItems      []LineItemRequest      `json:"orderItems" validate:"required,min=1,dive"`
	ShippingAddress ShippingAddressRequest `json:"shippingAddress"`
	PaymentMethod   string                 `json:"paymentMethod" validate:"required"`
	CouponCode      CouponCode             `json:"couponCode"`
}

func (r CreateOrderRequest) toInput(actor domain.Actor) ordering.CreateOrderInput {
	items := make([]ordering.LineItemRequest, 0, len(r.OrderItems))
	for _, item := range r.OrderItems {
		items = append(items, ordering.LineItemRequest{
			ProductID: strings.TrimSpace(item.ProductID),
			Size:      strings.TrimSpace(item.Size),
			Color:     strings.TrimSpace(item.Color),
			Qty:       item.Qty,
		})
	}
	return ordering.CreateOrderInput{
		UserID:        actor.UserID,
		CustomerEmail: actor.Email,
		Items:         items,
		ShippingAddress: domain.ShippingAddress{
			Address:    r.ShippingAddress.Address,
			City:       r.ShippingAddress.City,
			PostalCode: r.ShippingAddress.PostalCode,
			Country:    r.ShippingAddress.Country,
			Phone:      r.ShippingAddress.Phone,
		},
		PaymentMethod: strings.TrimSpace(r.PaymentMethod),
		CouponCode:    string(r.CouponCode),
	}
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type OrderRefRequest struct {
	OrderID string `json:"orderId" validate:"required"`
}

// VerifyPaymentRequest — подтверждение оплаты с клиента. Ссылки шлюза и подпись
// проверяет сервис оплаты: их отсутствие — нарушение целостности, а не ошибка формы.
type VerifyPaymentRequest struct {
	OrderID           string `json:"orderId" validate:"required"`
	GatewayOrderRef   string `json:"gatewayOrderRef"`
	GatewayPaymentRef string `json:"gatewayPaymentRef"`
	Signature         string `json:"signature"`
}

type CreateCouponRequest struct {
	Code          string     `json:"code" validate:"required"`
	DiscountType  string     `json:"discountType" validate:"required,oneof=flat percent"`
	DiscountValue int64      `json:"discountValue" validate:"gt=0"`
	MinPurchase   int64      `json:"minPurchase" validate:"gte=0"`
	ExpiresAt     *time.Time `json:"expiresAt"`
}

func (r CreateCouponRequest) toCoupon() domain.Coupon {
	coupon := domain.Coupon{
		Code:             r.Code,
		DiscountType:     domain.DiscountType(r.DiscountType),
		DiscountValue:    r.DiscountValue,
		MinPurchaseMinor: r.MinPurchase,
	}
	if r.ExpiresAt != nil {
		coupon.ExpiresAt = r.ExpiresAt.UTC()
	}
	return coupon
}

type ValidateCouponRequest struct {
	Code       string `json:"code" validate:"required"`
	TotalPrice int64  `json:"totalPrice" validate:"gte=0"`
}

type VariantRequest struct {
	Size  string `json:"size" validate:"required"`
	Color string `json:"color" validate:"required"`
	Stock int    `json:"stock" validate:"gte=0"`
}

type CreateProductRequest struct {
	Name         string      `json:"name" validate:"required"`
	Brand        string      `json:"brand"`
	Category     string      `json:"category" validate:"required"`
	Description  string      `json:"description"`
	Image        string      `json:"image"`
	Images       []string    `json:"images"`
	Price        int64       `json:"price" validate:"gte=0"`
	CountInStock int         `json:"countInStock" validate:"gte=0"`
	Variants     VariantList `json:"variants" validate:"dive"`
}

func (r CreateProductRequest) toProduct() domain.Product {
	variants := make([]domain.Variant, 0, len(r.Variants))
	for _, v := range r.Variants {
		variants = append(variants, domain.Variant{
			Size:  strings.TrimSpace(v.Size),
			Color: strings.TrimSpace(v.Color),
			Stock: v.Stock,
		})
	}
	return domain.Product{
		Name:         r.Name,
		Brand:        strings.TrimSpace(r.Brand),
		Category:     domain.Category(r.Category),
		Description:  r.Description,
		Image:        r.Image,
		Images:       r.Images,
		PriceMinor:   r.Price,
		Variants:     variants,
		CountInStock: r.CountInStock,
	}
}

type RestockRequest struct {
	Size  string `json:"size"`
	Color string `json:"color"`
	Qty   int    `json:"qty" validate:"gt=0"`
}

// Суммы в ответах — целые числа в минимальных единицах валюты.

type OrderItemResponse struct {
	ProductID       string `json:"productId"`
	Name            string `json:"name"`
	Image           string `json:"image,omitempty"`
	Size            string `json:"size,omitempty"`
	Color           string `json:"color,omitempty"`
	Qty             int    `json:"qty"`
	Price           int64  `json:"price"`
	DiscountedPrice int64  `json:"discountedPrice"`
}

type ShippingAddressResponse struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

type PaymentResponse struct {
	State             domain.PaymentState  `json:"state"`
	PaidAt            *time.Time           `json:"paidAt,omitempty"`
	RefundedAt        *time.Time           `json:"refundedAt,omitempty"`
	GatewayOrderRef   string               `json:"gatewayOrderRef,omitempty"`
	GatewayPaymentRef string               `json:"gatewayPaymentRef,omitempty"`
	Source            domain.PaymentSource `json:"source,omitempty"`
}

type OrderResponse struct {
	ID                string                  `json:"id"`
	UserID            string                  `json:"userId"`
	OrderItems        []OrderItemResponse     `json:"orderItems"`
	ShippingAddress   ShippingAddressResponse `json:"shippingAddress"`
	PaymentMethod     string                  `json:"paymentMethod"`
	ItemsPrice        int64                   `json:"itemsPrice"`
	TaxPrice          int64                   `json:"taxPrice"`
	ShippingPrice     int64                   `json:"shippingPrice"`
	DiscountPrice     int64                   `json:"discountPrice"`
	TotalPrice        int64                   `json:"totalPrice"`
	CouponCode        string                  `json:"couponCode,omitempty"`
	IsPaid            bool                    `json:"isPaid"`
	Payment           PaymentResponse         `json:"payment"`
	Status            domain.OrderStatus      `json:"status"`
	IsDelivered       bool                    `json:"isDelivered"`
	DeliveredAt       *time.Time              `json:"deliveredAt,omitempty"`
	EstimatedDelivery *time.Time              `json:"estimatedDelivery,omitempty"`
	Version           int64                   `json:"version"`
	CreatedAt         time.Time               `json:"createdAt"`
	UpdatedAt         time.Time               `json:"updatedAt"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func toOrderResponse(o domain.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemResponse{
			ProductID:       item.ProductID,
			Name:            item.Name,
			Image:           item.Image,
			Size:            item.Size,
			Color:           item.Color,
			Qty:             item.Qty,
			Price:           item.PriceMinor,
			DiscountedPrice: item.DiscountedPriceMinor,
		})
	}
	return OrderResponse{
		ID:         o.ID,
		UserID:     o.UserID,
		OrderItems: items,
		ShippingAddress: ShippingAddressResponse{
			Address:    o.ShippingAddress.Address,
			City:       o.ShippingAddress.City,
			PostalCode: o.ShippingAddress.PostalCode,
			Country:    o.ShippingAddress.Country,
			Phone:      o.ShippingAddress.Phone,
		},
		PaymentMethod: o.PaymentMethod,
		ItemsPrice:    o.ItemsPriceMinor,
		TaxPrice:      o.TaxMinor,
		ShippingPrice: o.ShippingMinor,
		DiscountPrice: o.DiscountMinor,
		TotalPrice:    o.TotalMinor,
		CouponCode:    o.CouponCode,
		IsPaid:        o.IsPaid(),
		Payment: PaymentResponse{
			State:             o.Payment.State,
			PaidAt:            optionalTime(o.Payment.PaidAt),
			RefundedAt:        optionalTime(o.Payment.RefundedAt),
			GatewayOrderRef:   o.Payment.Result.GatewayOrderRef,
			GatewayPaymentRef: o.Payment.Result.GatewayPaymentRef,
			Source:            o.Payment.Result.Source,
		},
		Status:            o.Status,
		IsDelivered:       o.IsDelivered,
		DeliveredAt:       optionalTime(o.DeliveredAt),
		EstimatedDelivery: optionalTime(o.EstimatedDelivery),
		Version:           o.Version,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
}

func toOrderResponses(orders []domain.Order) []OrderResponse {
	result := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		result = append(result, toOrderResponse(o))
	}
	return result
}

type TimelineEventResponse struct {
	Type       string    `json:"type"`
	Reason     string    `json:"reason,omitempty"`
	Visibility string    `json:"visibility"`
	Occurred   time.Time `json:"occurred"`
}

func toTimelineResponse(events []domain.TimelineEvent) []TimelineEventResponse {
	result := make([]TimelineEventResponse, 0, len(events))
	for _, e := range events {
		result = append(result, TimelineEventResponse{
			Type:       e.Type,
			Reason:     e.Reason,
			Visibility: string(e.Visibility),
			Occurred:   e.Occurred,
		})
	}
	return result
}

type IntentResponse struct {
	Provider        string `json:"provider"`
	OrderID         string `json:"orderId"`
	GatewayOrderRef string `json:"gatewayOrderRef"`
	ClientSecret    string `json:"clientSecret,omitempty"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

func toIntentResponse(orderID string, intent gateway.Intent) IntentResponse {
	return IntentResponse{
		Provider:        intent.Provider,
		OrderID:         orderID,
		GatewayOrderRef: intent.GatewayOrderRef,
		ClientSecret:    intent.ClientSecret,
		Amount:          intent.AmountMinor,
		Currency:        intent.Currency,
	}
}

type VerifyPaymentResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Outcome string `json:"outcome"`
}

type WebhookResponse struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome"`
}

type CouponResponse struct {
	Code          string              `json:"code"`
	DiscountType  domain.DiscountType `json:"discountType"`
	DiscountValue int64               `json:"discountValue"`
	MinPurchase   int64               `json:"minPurchase"`
	ExpiresAt     *time.Time          `json:"expiresAt,omitempty"`
	IsActive      bool                `json:"isActive"`
	RedeemedCount int                 `json:"redeemedCount"`
	CreatedAt     time.Time           `json:"createdAt"`
}

func toCouponResponse(c domain.Coupon) CouponResponse {
	return CouponResponse{
		Code:          c.Code,
		DiscountType:  c.DiscountType,
		DiscountValue: c.DiscountValue,
		MinPurchase:   c.MinPurchaseMinor,
		ExpiresAt:     optionalTime(c.ExpiresAt),
		IsActive:      c.Active,
		RedeemedCount: len(c.RedeemedBy),
		CreatedAt:     c.CreatedAt,
	}
}

type ValidateCouponResponse struct {
	Valid      bool   `json:"valid"`
	Code       string `json:"code"`
	Discount   int64  `json:"discount"`
	FinalPrice int64  `json:"finalPrice"`
}

func toValidateCouponResponse(total int64, d discount.Discount) ValidateCouponResponse {
	return ValidateCouponResponse{
		Valid:      true,
		Code:       d.CouponCode,
		Discount:   d.AmountMinor,
		FinalPrice: total - d.AmountMinor,
	}
}

type VariantResponse struct {
	Size  string `json:"size"`
	Color string `json:"color"`
	Stock int    `json:"stock"`
}

type ProductResponse struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Brand        string            `json:"brand,omitempty"`
	Category     domain.Category   `json:"category"`
	Description  string            `json:"description,omitempty"`
	Image        string            `json:"image,omitempty"`
	Images       []string          `json:"images,omitempty"`
	Price        int64             `json:"price"`
	Variants     []VariantResponse `json:"variants"`
	CountInStock int               `json:"countInStock"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

func toProductResponse(p domain.Product) ProductResponse {
	variants := make([]VariantResponse, 0, len(p.Variants))
	for _, v := range p.Variants {
		variants = append(variants, VariantResponse{Size: v.Size, Color: v.Color, Stock: v.Stock})
	}
	return ProductResponse{
		ID:           p.ID,
		Name:         p.Name,
		Brand:        p.Brand,
		Category:     p.Category,
		Description:  p.Description,
		Image:        p.Image,
		Images:       p.Images,
		Price:        p.PriceMinor,
		Variants:     variants,
		CountInStock: p.CountInStock,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

// readBody читает сырое тело целиком (нужно для проверки подписи webhook).
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}
