package domain

import "time"

// TimelineVisibility определяет, кому показывается запись истории заказа.
type TimelineVisibility string

const (
	// TimelineCustomer — запись видна покупателю и администратору.
	TimelineCustomer TimelineVisibility = "customer"
	// TimelineOperator — служебная запись, только для администратора.
	TimelineOperator TimelineVisibility = "operator"
)

// Служебные события: расхождение склада, отклонённая подпись платежа,
// несписанный купон. Покупателю они ничего не говорят.
var operatorEvents = map[string]bool{
	EventInventoryShortfall: true,
	EventSignatureRejected:  true,
	EventRedemptionFailed:   true,
}

// TimelineEvent — запись в истории заказа.
type TimelineEvent struct {
	OrderID    string
	Type       string
	Reason     string
	Visibility TimelineVisibility
	Occurred   time.Time
}

// VisibilityOf возвращает видимость события по его типу.
func VisibilityOf(eventType string) TimelineVisibility {
	if operatorEvents[eventType] {
		return TimelineOperator
	}
	return TimelineCustomer
}

// Valid проверяет значение видимости.
func (v TimelineVisibility) Valid() bool {
	return v == TimelineCustomer || v == TimelineOperator
}

// TimelineViewFor выбирает представление истории для actor.
func TimelineViewFor(actor Actor) TimelineVisibility {
	if actor.IsAdmin() {
		return TimelineOperator
	}
	return TimelineCustomer
}

// VisibleIn сообщает, попадает ли запись в представление view.
// Операторское представление включает всё.
func (e TimelineEvent) VisibleIn(view TimelineVisibility) bool {
	return view == TimelineOperator || e.Visibility != TimelineOperator
}

// Normalize заполняет видимость по типу и время, если они не заданы.
func (e TimelineEvent) Normalize(now time.Time) TimelineEvent {
	if !e.Visibility.Valid() {
		e.Visibility = VisibilityOf(e.Type)
	}
	if e.Occurred.IsZero() {
		e.Occurred = now
	}
	return e
}
