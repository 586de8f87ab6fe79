package domain

import (
	"context"
	"time"
)

// OrderFilter ограничивает выборку заказов.
type OrderFilter struct {
	UserID string
	Status OrderStatus
	Limit  int
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ одной записью.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// List возвращает заказы от новых к старым.
	List(ctx context.Context, filter OrderFilter) ([]Order, error)
	// Save применяет изменения с учётом optimistic locking: запись обновляется,
	// только если версия в хранилище совпадает с order.Version.
	Save(ctx context.Context, order Order) error
}

// ProductRepository — каталог в объёме, нужном для сборки заказа.
type ProductRepository interface {
	Create(ctx context.Context, product Product) error
	Get(ctx context.Context, id string) (Product, error)
}

// StockStore — атомарные операции над остатками.
type StockStore interface {
	// DecrementStock уменьшает остаток, только если его хватает.
	// Возвращает ErrInsufficientStock, ErrVariantNotFound или ErrProductNotFound.
	DecrementStock(ctx context.Context, productID, size, color string, qty int) error
	// IncrementStock увеличивает остаток варианта (или общий счётчик товара).
	IncrementStock(ctx context.Context, productID, size, color string, qty int) error
}

// CouponRepository хранит купоны.
type CouponRepository interface {
	Create(ctx context.Context, coupon Coupon) error
	// Get ищет купон по нормализованному коду.
	Get(ctx context.Context, code string) (Coupon, error)
	List(ctx context.Context) ([]Coupon, error)
	Delete(ctx context.Context, code string) error
	// AddRedeemer добавляет пользователя в список погасивших, если его там ещё нет.
	// Возвращает true, если запись была добавлена.
	AddRedeemer(ctx context.Context, code, userID string) (bool, error)
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	// List возвращает записи заказа по времени, отфильтрованные по view.
	List(ctx context.Context, orderID string, view TimelineVisibility) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}
