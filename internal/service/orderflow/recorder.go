package orderflow

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/clock"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// Recorder пишет события заказа в transactional outbox и timeline.
// Это побочные эффекты: ошибки логируются и не возвращаются вызывающему.
type Recorder struct {
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	metrics  *metrics.StorefrontMetrics
	clock    clock.Clock
	logger   *log.Entry
}

// NewRecorder создаёт Recorder. Любой из репозиториев может быть nil.
func NewRecorder(
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	m *metrics.StorefrontMetrics,
	clk clock.Clock,
	logger *log.Entry,
) *Recorder {
	if logger == nil {
		logger = log.New().WithField("component", "order-events")
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Recorder{
		outbox:   outbox,
		timeline: timeline,
		metrics:  m,
		clock:    clk,
		logger:   logger,
	}
}

// Emit фиксирует событие eventType для заказа orderID.
// reason попадает в timeline, payload — в outbox вместе с order_id и ts.
func (r *Recorder) Emit(ctx context.Context, orderID, eventType, reason string, payload map[string]any) {
	if r == nil {
		return
	}
	now := r.clock.Now()

	if payload == nil {
		payload = make(map[string]any)
	}
	payload["order_id"] = orderID
	payload["ts"] = now.Format(time.RFC3339Nano)
	if reason != "" {
		payload["reason"] = reason
	}

	fields := log.Fields{
		"order_id": orderID,
		"event":    eventType,
	}

	if r.outbox != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			r.logger.WithError(err).WithFields(fields).Error("marshal event failed")
		} else if _, err := r.outbox.Enqueue(ctx, domain.OutboxMessage{
			AggregateType: domain.AggregateTypeOrder,
			AggregateID:   orderID,
			EventType:     eventType,
			Payload:       data,
		}); err != nil {
			r.logger.WithError(err).WithFields(fields).Error("enqueue event failed")
		} else {
			r.metrics.RecordOutboxEvent()
		}
	}

	if r.timeline != nil {
		if err := r.timeline.Append(ctx, domain.TimelineEvent{
			OrderID:    orderID,
			Type:       eventType,
			Reason:     reason,
			Visibility: domain.VisibilityOf(eventType),
			Occurred:   now,
		}); err != nil {
			r.logger.WithError(err).WithFields(fields).Warn("append timeline event failed")
		} else {
			r.metrics.RecordTimelineEvent()
		}
	}
}
