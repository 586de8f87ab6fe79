package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// TimelineRepository хранит историю заказов по order id, каждая в порядке
// Occurred.
type TimelineRepository struct {
	mu      sync.RWMutex
	byOrder map[string][]domain.TimelineEvent
}

// NewTimelineRepository создаёт in-memory реализацию TimelineRepository.
func NewTimelineRepository() *TimelineRepository {
	return &TimelineRepository{byOrder: make(map[string][]domain.TimelineEvent)}
}

func (r *TimelineRepository) Append(_ context.Context, event domain.TimelineEvent) error {
	event = event.Normalize(time.Now().UTC())

	r.mu.Lock()
	defer r.mu.Unlock()

	history := r.byOrder[event.OrderID]
	at := sort.Search(len(history), func(i int) bool {
		return history[i].Occurred.After(event.Occurred)
	})
	history = append(history, domain.TimelineEvent{})
	copy(history[at+1:], history[at:])
	history[at] = event
	r.byOrder[event.OrderID] = history
	return nil
}

func (r *TimelineRepository) List(_ context.Context, orderID string, view domain.TimelineVisibility) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := r.byOrder[orderID]
	visible := make([]domain.TimelineEvent, 0, len(history))
	for _, event := range history {
		if event.VisibleIn(view) {
			visible = append(visible, event)
		}
	}
	return visible, nil
}

var _ domain.TimelineRepository = (*TimelineRepository)(nil)
