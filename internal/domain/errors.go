package domain

import "errors"

// Ошибки валидации входных данных: запрос отклоняется до любых изменений.
var (
	// ErrUserRequired — не указан владелец заказа.
	ErrUserRequired = errors.New("user is required")
	// ErrItemsRequired — заказ без позиций.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// ErrItemQtyInvalid — количество товара в позиции <= 0.
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// ErrProductIDRequired — позиция без идентификатора товара.
	ErrProductIDRequired = errors.New("product id is required")
	// ErrShippingAddressRequired — адрес доставки заполнен не полностью.
	ErrShippingAddressRequired = errors.New("shipping address is incomplete")
	// ErrPaymentMethodRequired — не выбран способ оплаты.
	ErrPaymentMethodRequired = errors.New("payment method is required")
	// ErrProductNameRequired — товар без названия.
	ErrProductNameRequired = errors.New("product name is required")
	// ErrProductPriceInvalid — отрицательная цена товара.
	ErrProductPriceInvalid = errors.New("product price must be non-negative")
	// ErrProductCategoryInvalid — категория не из справочника.
	ErrProductCategoryInvalid = errors.New("unknown product category")
	// ErrStockNegative — попытка задать отрицательный остаток.
	ErrStockNegative = errors.New("stock must be non-negative")
	// ErrCouponCodeRequired — купон без кода.
	ErrCouponCodeRequired = errors.New("coupon code is required")
	// ErrCouponTypeInvalid — неизвестный тип скидки.
	ErrCouponTypeInvalid = errors.New("coupon discount type must be flat or percent")
	// ErrCouponValueInvalid — значение скидки <= 0 или процент больше 100.
	ErrCouponValueInvalid = errors.New("coupon discount value is invalid")
	// ErrStatusInvalid — неизвестный статус исполнения.
	ErrStatusInvalid = errors.New("unknown order status")
	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой hash запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyScopeInvalid — ключ без известного префикса области.
	ErrIdempotencyScopeInvalid = errors.New("idempotency key scope is invalid")
)

// Бизнес-отказы: запрос корректен, но правила домена его не допускают.
var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrCouponInvalid     = errors.New("coupon is invalid or inactive")
	ErrCouponExpired     = errors.New("coupon has expired")
	ErrCouponMinPurchase = errors.New("order total is below coupon minimum purchase")
	ErrCouponExists      = errors.New("coupon with this code already exists")
	ErrProductExists     = errors.New("product with this id already exists")
	// ErrIllegalTransition — переход статуса не разрешён таблицей переходов.
	ErrIllegalTransition = errors.New("illegal order status transition")
	// ErrOrderDelivered — доставленный заказ нельзя отменить.
	ErrOrderDelivered = errors.New("delivered order cannot be cancelled")
	// ErrOrderAlreadyPaid — повторная оплата уже оплаченного заказа.
	ErrOrderAlreadyPaid = errors.New("order is already paid")
	// ErrOrderNotPaid — возврат по неоплаченному заказу.
	ErrOrderNotPaid = errors.New("order is not paid")
	// ErrPaymentTransition — переход платёжного состояния не разрешён.
	ErrPaymentTransition = errors.New("illegal payment state transition")
)

// Ошибки целостности: подпись не сошлась, возможна подделка.
var (
	ErrInvalidSignature = errors.New("invalid payment signature")
	// ErrPaymentRefMismatch — подписанный callback относится к платежу другого заказа.
	ErrPaymentRefMismatch = errors.New("payment does not belong to this order")
)

// Ошибки отсутствия сущностей.
var (
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrProductNotFound возвращается, если товар не найден в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrVariantNotFound — у товара нет варианта с указанными размером и цветом.
	ErrVariantNotFound = errors.New("variant not found")
	// ErrCouponNotFound возвращается административными операциями над купонами.
	ErrCouponNotFound = errors.New("coupon not found")
	// ErrIdempotencyKeyNotFound — ключ идемпотентности отсутствует.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
)

// Ошибки авторизации.
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("operation is not permitted for this user")
)

// Инфраструктурные ошибки.
var (
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// ErrIdempotencyKeyAlreadyExists — ключ уже использован.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ использован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// ErrGatewayUnavailable — платёжный шлюз не ответил, можно повторить.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrAmountMismatch — итоги заказа не сходятся с позициями.
	ErrAmountMismatch = errors.New("order totals do not match items")
	// ErrDiscountOutOfRange — скидка отрицательна или больше суммы позиций.
	ErrDiscountOutOfRange = errors.New("discount is out of range")
)

// ErrorCategory позволяет клиенту отличить "исправь запрос" от "повтори позже".
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryRejected   ErrorCategory = "rejected"
	CategoryIntegrity  ErrorCategory = "integrity"
	CategoryNotFound   ErrorCategory = "not_found"
	CategoryForbidden  ErrorCategory = "forbidden"
	CategoryConflict   ErrorCategory = "conflict"
	CategoryInternal   ErrorCategory = "internal"
)

var categories = []struct {
	category ErrorCategory
	errs     []error
}{
	{CategoryValidation, []error{
		ErrUserRequired, ErrItemsRequired, ErrItemQtyInvalid, ErrProductIDRequired,
		ErrShippingAddressRequired, ErrPaymentMethodRequired, ErrProductNameRequired,
		ErrProductPriceInvalid, ErrProductCategoryInvalid, ErrStockNegative, ErrCouponCodeRequired, ErrCouponTypeInvalid,
		ErrCouponValueInvalid, ErrStatusInvalid, ErrIdempotencyKeyRequired,
		ErrIdempotencyRequestHashRequired, ErrIdempotencyScopeInvalid,
	}},
	{CategoryRejected, []error{
		ErrInsufficientStock, ErrCouponInvalid, ErrCouponExpired, ErrCouponMinPurchase,
		ErrCouponExists, ErrProductExists, ErrIllegalTransition, ErrOrderDelivered, ErrOrderAlreadyPaid,
		ErrOrderNotPaid, ErrPaymentTransition,
	}},
	{CategoryIntegrity, []error{ErrInvalidSignature, ErrPaymentRefMismatch}},
	{CategoryNotFound, []error{
		ErrOrderNotFound, ErrProductNotFound, ErrVariantNotFound, ErrCouponNotFound,
		ErrIdempotencyKeyNotFound,
	}},
	{CategoryForbidden, []error{ErrUnauthenticated, ErrForbidden}},
	{CategoryConflict, []error{
		ErrOrderVersionConflict, ErrIdempotencyKeyAlreadyExists, ErrIdempotencyHashMismatch,
	}},
}

// Categorize относит ошибку к одной из категорий таксономии.
// Неизвестные ошибки считаются внутренними.
func Categorize(err error) ErrorCategory {
	if err == nil {
		return ""
	}
	for _, group := range categories {
		for _, target := range group.errs {
			if errors.Is(err, target) {
				return group.category
			}
		}
	}
	return CategoryInternal
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsIdempotencyConflict проверяет, что ключ идемпотентности уже занят.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
