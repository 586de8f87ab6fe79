package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StorefrontMetrics — бизнес-метрики витрины: заказы, оплаты, исполнение.
// Все методы безопасны для nil-получателя, поэтому сервисы в тестах
// можно собирать без метрик.
type StorefrontMetrics struct {
	ordersCreated     prometheus.Counter
	orderRejections   *prometheus.CounterVec
	assemblyDuration  prometheus.Histogram
	activeAssemblies  prometheus.Gauge
	inventoryShortage prometheus.Counter

	paymentsConfirmed *prometheus.CounterVec
	paymentsDuplicate *prometheus.CounterVec
	signatureFailures *prometheus.CounterVec
	paymentsRefunded  prometheus.Counter

	statusTransitions    *prometheus.CounterVec
	notificationFailures prometheus.Counter

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewStorefrontMetrics регистрирует метрики в DefaultRegisterer.
func NewStorefrontMetrics() *StorefrontMetrics {
	return NewStorefrontMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewStorefrontMetricsWithRegisterer регистрирует метрики в заданном реестре.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewStorefrontMetricsWithRegisterer(registerer prometheus.Registerer) *StorefrontMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &StorefrontMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_orders_created_total",
			Help: "Total number of orders created",
		}),
		orderRejections: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_order_rejections_total",
			Help: "Total number of rejected order placements by reason",
		}, []string{"reason"}),
		assemblyDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_order_assembly_duration_seconds",
			Help:    "Duration of order assembly in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		activeAssemblies: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_active_order_assemblies",
			Help: "Number of order assemblies in progress",
		}),
		inventoryShortage: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_inventory_shortfall_total",
			Help: "Total number of line items that could not be reserved after order creation",
		}),
		paymentsConfirmed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_payments_confirmed_total",
			Help: "Total number of payments applied to orders by source",
		}, []string{"source"}),
		paymentsDuplicate: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_payments_duplicate_total",
			Help: "Total number of repeated payment confirmations by source",
		}, []string{"source"}),
		signatureFailures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_payment_signature_failures_total",
			Help: "Total number of payment confirmations rejected for bad signature",
		}, []string{"source"}),
		paymentsRefunded: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_payments_refunded_total",
			Help: "Total number of refunded orders",
		}),
		statusTransitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_order_status_transitions_total",
			Help: "Total number of fulfillment status transitions by target status",
		}, []string{"status"}),
		notificationFailures: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_notification_failures_total",
			Help: "Total number of customer notifications that failed to send",
		}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_outbox_events_total",
			Help: "Total number of events enqueued to outbox",
		}),
	}
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *StorefrontMetrics) RecordOrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

// RecordOrderRejected учитывает отказ в оформлении заказа.
func (m *StorefrontMetrics) RecordOrderRejected(reason string) {
	if m == nil {
		return
	}
	m.orderRejections.WithLabelValues(reason).Inc()
}

// AssemblyStarted отмечает начало сборки заказа и возвращает функцию завершения.
func (m *StorefrontMetrics) AssemblyStarted() func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	m.activeAssemblies.Inc()
	return func() {
		m.activeAssemblies.Dec()
		m.assemblyDuration.Observe(time.Since(start).Seconds())
	}
}

func (m *StorefrontMetrics) RecordInventoryShortfall() {
	if m == nil {
		return
	}
	m.inventoryShortage.Inc()
}

func (m *StorefrontMetrics) RecordPaymentConfirmed(source string) {
	if m == nil {
		return
	}
	m.paymentsConfirmed.WithLabelValues(source).Inc()
}

func (m *StorefrontMetrics) RecordPaymentDuplicate(source string) {
	if m == nil {
		return
	}
	m.paymentsDuplicate.WithLabelValues(source).Inc()
}

// RecordSignatureFailure учитывает подтверждение оплаты с неверной подписью.
func (m *StorefrontMetrics) RecordSignatureFailure(source string) {
	if m == nil {
		return
	}
	m.signatureFailures.WithLabelValues(source).Inc()
}

func (m *StorefrontMetrics) RecordPaymentRefunded() {
	if m == nil {
		return
	}
	m.paymentsRefunded.Inc()
}

func (m *StorefrontMetrics) RecordStatusTransition(status string) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(status).Inc()
}

func (m *StorefrontMetrics) RecordNotificationFailure() {
	if m == nil {
		return
	}
	m.notificationFailures.Inc()
}

func (m *StorefrontMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

func (m *StorefrontMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}
