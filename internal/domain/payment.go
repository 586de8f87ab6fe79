package domain

import "time"

// PaymentState — платёжное состояние заказа.
type PaymentState string

const (
	PaymentStateUnpaid   PaymentState = "unpaid"
	PaymentStatePaid     PaymentState = "paid"
	PaymentStateRefunded PaymentState = "refunded"
)

// PaymentSource — канал, через который пришло подтверждение оплаты.
type PaymentSource string

const (
	PaymentSourceClientCallback PaymentSource = "client_callback"
	PaymentSourceWebhook        PaymentSource = "webhook"
)

// PaymentResult фиксирует данные шлюза в момент подтверждения.
// Служит свидетелем идемпотентности: повторное подтверждение его не перезаписывает.
type PaymentResult struct {
	GatewayOrderRef   string
	GatewayPaymentRef string
	Signature         string
	Status            string
	Source            PaymentSource
	UpdatedAt         time.Time
}

// Payment — платёжная часть агрегата Order.
type Payment struct {
	State PaymentState
	// IntentRef — ссылка шлюза на последний созданный для заказа платёж.
	// Клиентский callback принимается только с этой ссылкой.
	IntentRef  string
	PaidAt     time.Time
	RefundedAt time.Time
	Result     PaymentResult
	RefundRef  string
}

// paymentTransitions — допустимые переходы платёжного состояния.
var paymentTransitions = map[PaymentState][]PaymentState{
	PaymentStateUnpaid: {PaymentStatePaid},
	PaymentStatePaid:   {PaymentStateRefunded},
}

// CanTransitionPayment проверяет переход по таблице.
func CanTransitionPayment(from, to PaymentState) bool {
	if from == "" {
		from = PaymentStateUnpaid
	}
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AttachIntent запоминает ссылку шлюза на созданный платёж.
// Повторный вызов заменяет ссылку: действителен последний платёж.
func (o *Order) AttachIntent(gatewayOrderRef string, now time.Time) error {
	if o.IsPaid() {
		return ErrOrderAlreadyPaid
	}
	o.Payment.IntentRef = gatewayOrderRef
	o.UpdatedAt = now
	return nil
}

// ApplyPayment переводит заказ из unpaid в paid.
// Для уже оплаченного заказа возвращает ErrOrderAlreadyPaid и ничего не меняет.
// Клиентский callback должен ссылаться на платёж, созданный для этого заказа:
// подпись шлюза связывает только orderRef и paymentRef, но не id заказа.
func (o *Order) ApplyPayment(result PaymentResult, now time.Time) error {
	if o.IsPaid() {
		return ErrOrderAlreadyPaid
	}
	if !CanTransitionPayment(o.Payment.State, PaymentStatePaid) {
		return ErrPaymentTransition
	}
	if result.Source == PaymentSourceClientCallback &&
		(o.Payment.IntentRef == "" || result.GatewayOrderRef != o.Payment.IntentRef) {
		return ErrPaymentRefMismatch
	}

	if result.UpdatedAt.IsZero() {
		result.UpdatedAt = now
	}
	o.Payment.State = PaymentStatePaid
	o.Payment.PaidAt = now
	o.Payment.Result = result
	o.UpdatedAt = now
	return nil
}

// ApplyRefund переводит оплаченный заказ в refunded.
func (o *Order) ApplyRefund(refundRef string, now time.Time) error {
	if !o.IsPaid() {
		return ErrOrderNotPaid
	}
	if !CanTransitionPayment(o.Payment.State, PaymentStateRefunded) {
		return ErrPaymentTransition
	}

	o.Payment.State = PaymentStateRefunded
	o.Payment.RefundedAt = now
	o.Payment.RefundRef = refundRef
	o.UpdatedAt = now
	return nil
}
