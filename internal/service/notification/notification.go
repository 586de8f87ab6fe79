package notification

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const defaultStoreName = "Storefront"

// Dispatcher формирует письма покупателю и отправляет их через domain.Notifier.
// Отправка best-effort: ошибка логируется, учитывается в метриках и не
// возвращается вызывающему.
type Dispatcher struct {
	notifier  domain.Notifier
	storeName string
	currency  string
	metrics   *metrics.StorefrontMetrics
	logger    *log.Entry
}

// NewDispatcher создаёт Dispatcher. Пустой notifier отключает уведомления.
func NewDispatcher(notifier domain.Notifier, storeName, currency string, m *metrics.StorefrontMetrics, logger *log.Entry) *Dispatcher {
	if logger == nil {
		logger = log.New().WithField("component", "notification")
	}
	if strings.TrimSpace(storeName) == "" {
		storeName = defaultStoreName
	}
	if currency == "" {
		currency = "INR"
	}
	return &Dispatcher{
		notifier:  notifier,
		storeName: storeName,
		currency:  strings.ToUpper(currency),
		metrics:   m,
		logger:    logger,
	}
}

// OrderConfirmation отправляет подтверждение нового заказа.
func (d *Dispatcher) OrderConfirmation(ctx context.Context, order domain.Order) {
	body := fmt.Sprintf("Thank you for your order! Order ID: %s, Total: %s.", order.ID, FormatMinor(order.TotalMinor, d.currency))
	if !order.EstimatedDelivery.IsZero() {
		body += fmt.Sprintf(" Estimated Delivery: %s.", order.EstimatedDelivery.Format("Mon Jan 02 2006"))
	}
	d.send(ctx, order, "Order Confirmation", body)
}

// StatusChanged сообщает о смене статуса исполнения.
func (d *Dispatcher) StatusChanged(ctx context.Context, order domain.Order) {
	body := fmt.Sprintf("Your order %s is now %s.", order.ID, order.Status)
	if !order.EstimatedDelivery.IsZero() && !order.Status.Terminal() {
		body += fmt.Sprintf(" Estimated Delivery: %s.", order.EstimatedDelivery.Format("Mon Jan 02 2006"))
	}
	d.send(ctx, order, "Order "+string(order.Status), body)
}

// PaymentSuccessful сообщает о подтверждённой оплате.
func (d *Dispatcher) PaymentSuccessful(ctx context.Context, order domain.Order) {
	body := fmt.Sprintf("Your payment for Order %s was successful. Total Paid: %s.", order.ID, FormatMinor(order.TotalMinor, d.currency))
	d.send(ctx, order, "Payment Successful", body)
}

func (d *Dispatcher) send(ctx context.Context, order domain.Order, subject, body string) {
	if d == nil || d.notifier == nil {
		return
	}
	fields := log.Fields{
		"order_id": order.ID,
		"subject":  subject,
	}
	if order.CustomerEmail == "" {
		d.logger.WithFields(fields).Debug("order has no customer email, notification skipped")
		return
	}

	err := d.notifier.Notify(ctx, domain.Notification{
		To:      order.CustomerEmail,
		Subject: d.storeName + " - " + subject,
		Body:    body,
		OrderID: order.ID,
	})
	if err != nil {
		d.metrics.RecordNotificationFailure()
		d.logger.WithError(err).WithFields(fields).Warn("notification dispatch failed")
		return
	}
	d.logger.WithFields(fields).Debug("notification dispatched")
}

// FormatMinor форматирует сумму в минимальных единицах: 123456 -> "INR 1234.56".
func FormatMinor(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s %s%d.%02d", currency, sign, amount/100, amount%100)
}

// LogNotifier — конечный отправитель писем для окружений без почтового сервиса:
// пишет письмо в лог.
type LogNotifier struct {
	logger *log.Entry
}

// NewLogNotifier создаёт LogNotifier.
func NewLogNotifier(logger *log.Entry) *LogNotifier {
	if logger == nil {
		logger = log.New().WithField("component", "mailer")
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, notification domain.Notification) error {
	if strings.TrimSpace(notification.To) == "" {
		return fmt.Errorf("notification recipient is empty")
	}
	n.logger.WithFields(log.Fields{
		"to":       notification.To,
		"subject":  notification.Subject,
		"order_id": notification.OrderID,
	}).Info(notification.Body)
	return nil
}

var _ domain.Notifier = (*LogNotifier)(nil)
