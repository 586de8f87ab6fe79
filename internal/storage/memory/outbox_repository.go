package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type outboxEntry struct {
	msg          domain.OutboxMessage
	status       domain.OutboxStatus
	attempts     int
	claimedUntil time.Time
}

// OutboxRepository хранит события заказов до публикации. Забранное
// PullPending сообщение закреплено за воркером на claimTTL.
type OutboxRepository struct {
	mu       sync.Mutex
	entries  map[string]*outboxEntry
	claimTTL time.Duration
	now      func() time.Time
}

// NewOutboxRepository создаёт in-memory реализацию outbox.
func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{
		entries:  make(map[string]*outboxEntry),
		claimTTL: domain.OutboxClaimTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *OutboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = r.now()
	msg.Payload = append([]byte(nil), msg.Payload...)
	r.entries[msg.ID] = &outboxEntry{msg: msg, status: domain.OutboxStatusPending}
	return msg, nil
}

// PullPending закрепляет и возвращает до limit самых старых свободных сообщений.
func (r *OutboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	claimed := make([]domain.OutboxMessage, 0, limit)
	for _, entry := range r.pendingLocked() {
		if len(claimed) == limit {
			break
		}
		if entry.claimedUntil.After(now) {
			continue
		}
		entry.claimedUntil = now.Add(r.claimTTL)
		claimed = append(claimed, entry.msg)
	}
	return claimed, nil
}

func (r *OutboxRepository) Stats(_ context.Context) (domain.OutboxStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending := r.pendingLocked()
	stats := domain.OutboxStats{PendingCount: len(pending)}
	if len(pending) > 0 {
		stats.OldestPendingAt = pending[0].msg.CreatedAt
	}
	return stats, nil
}

func (r *OutboxRepository) MarkSent(_ context.Context, id string) error {
	return r.settle(id, domain.OutboxStatusSent)
}

func (r *OutboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.settle(id, domain.OutboxStatusFailed)
}

// AllPending возвращает все неотправленные сообщения, закреплённые тоже.
func (r *OutboxRepository) AllPending() []domain.OutboxMessage {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending := r.pendingLocked()
	out := make([]domain.OutboxMessage, 0, len(pending))
	for _, entry := range pending {
		out = append(out, entry.msg)
	}
	return out
}

func (r *OutboxRepository) settle(id string, status domain.OutboxStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: order event %s not found", domain.ErrOutboxPublish, id)
	}
	entry.status = status
	entry.attempts++
	entry.claimedUntil = time.Time{}
	return nil
}

func (r *OutboxRepository) pendingLocked() []*outboxEntry {
	pending := make([]*outboxEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		if entry.status == domain.OutboxStatusPending {
			pending = append(pending, entry)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		a, b := pending[i].msg, pending[j].msg
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return pending
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
