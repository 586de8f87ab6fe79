package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type timelineRepository struct {
	db *sql.DB
}

// NewTimelineRepository создаёт PostgreSQL-реализацию TimelineRepository.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{db: store.DB()}
}

func (r *timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	event = event.Normalize(time.Now().UTC())

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO timeline_events (order_id, type, reason, visibility, occurred) VALUES ($1,$2,$3,$4,$5)`,
		event.OrderID, event.Type, event.Reason, string(event.Visibility), event.Occurred,
	); err != nil {
		return fmt.Errorf("record %s for order %s: %w", event.Type, event.OrderID, err)
	}
	return nil
}

// List отдаёт историю заказа. Покупательское представление отсекает
// служебные записи на стороне базы.
func (r *timelineRepository) List(ctx context.Context, orderID string, view domain.TimelineVisibility) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, type, reason, visibility, occurred
		FROM timeline_events
		WHERE order_id = $1 AND ($2 = 'operator' OR visibility = 'customer')
		ORDER BY occurred, id
	`, orderID, string(view))
	if err != nil {
		return nil, fmt.Errorf("read timeline of order %s: %w", orderID, err)
	}
	defer rows.Close()

	var history []domain.TimelineEvent
	for rows.Next() {
		var (
			event      domain.TimelineEvent
			visibility string
		)
		if err := rows.Scan(&event.OrderID, &event.Type, &event.Reason, &visibility, &event.Occurred); err != nil {
			return nil, fmt.Errorf("scan timeline of order %s: %w", orderID, err)
		}
		event.Visibility = domain.TimelineVisibility(visibility)
		event.Occurred = event.Occurred.UTC()
		history = append(history, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read timeline of order %s: %w", orderID, err)
	}
	return history, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
