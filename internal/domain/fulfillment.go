package domain

import (
	"strings"
	"time"
)

// OrderStatus описывает жизненный цикл исполнения заказа.
type OrderStatus string

const (
	OrderStatusProcessing     OrderStatus = "Processing"
	OrderStatusPacked         OrderStatus = "Packed"
	OrderStatusShipped        OrderStatus = "Shipped"
	OrderStatusOutForDelivery OrderStatus = "Out for Delivery"
	OrderStatusDelivered      OrderStatus = "Delivered"
	OrderStatusCancelled      OrderStatus = "Cancelled"
)

// happyPath задаёт порядок прямых переходов.
var happyPath = []OrderStatus{
	OrderStatusProcessing,
	OrderStatusPacked,
	OrderStatusShipped,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
}

// ParseOrderStatus принимает статус в любом регистре.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	s := strings.TrimSpace(raw)
	for _, st := range append(happyPath, OrderStatusCancelled) {
		if strings.EqualFold(string(st), s) {
			return st, nil
		}
	}
	return "", ErrStatusInvalid
}

// Terminal сообщает, что из статуса больше нет переходов.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

func (s OrderStatus) rank() int {
	for i, st := range happyPath {
		if st == s {
			return i
		}
	}
	return -1
}

// Role — роль пользователя, выполняющего операцию.
type Role string

const (
	RoleCustomer Role = "user"
	RoleAdmin    Role = "admin"
)

// Actor — аутентифицированный инициатор операции.
type Actor struct {
	UserID string
	Email  string
	Role   Role
}

// IsAdmin сообщает, обладает ли инициатор правами администратора.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Owns проверяет, принадлежит ли заказ инициатору.
func (a Actor) Owns(o *Order) bool {
	return a.UserID != "" && a.UserID == o.UserID
}

// CheckTransition проверяет, может ли actor перевести заказ в статус to.
//
// Администратор двигает заказ только вперёд по основному пути (пропуск
// промежуточных статусов допустим) и может отменить любой незавершённый заказ.
// Владелец может отменить заказ только в статусе Processing.
func CheckTransition(actor Actor, o *Order, to OrderStatus) error {
	if to == OrderStatusCancelled {
		return checkCancel(actor, o)
	}
	if to.rank() < 0 {
		return ErrStatusInvalid
	}
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	if o.Status.Terminal() {
		return ErrIllegalTransition
	}
	if to.rank() <= o.Status.rank() {
		return ErrIllegalTransition
	}
	return nil
}

func checkCancel(actor Actor, o *Order) error {
	switch {
	case actor.IsAdmin():
	case actor.Owns(o):
		if o.Status != OrderStatusProcessing {
			if o.Status == OrderStatusDelivered {
				return ErrOrderDelivered
			}
			return ErrIllegalTransition
		}
	default:
		return ErrForbidden
	}

	switch o.Status {
	case OrderStatusDelivered:
		return ErrOrderDelivered
	case OrderStatusCancelled:
		return ErrIllegalTransition
	}
	return nil
}

// TransitionStatus применяет переход после проверки прав и таблицы переходов.
func (o *Order) TransitionStatus(actor Actor, to OrderStatus, now time.Time) error {
	if err := CheckTransition(actor, o, to); err != nil {
		return err
	}

	o.Status = to
	switch to {
	case OrderStatusDelivered:
		o.IsDelivered = true
		o.DeliveredAt = now
	case OrderStatusCancelled:
		o.IsDelivered = false
		o.DeliveredAt = time.Time{}
	}
	o.UpdatedAt = now
	return nil
}
