package inventory

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Ledger — единственный владелец остатков. Чтение идёт через каталог,
// изменение — через атомарные операции StockStore.
type Ledger struct {
	products domain.ProductRepository
	stock    domain.StockStore
	logger   *log.Entry
}

// NewLedger создаёт Ledger. Обычно products и stock — одно и то же хранилище.
func NewLedger(products domain.ProductRepository, stock domain.StockStore, logger *log.Entry) *Ledger {
	if logger == nil {
		logger = log.New().WithField("component", "inventory")
	}
	return &Ledger{products: products, stock: stock, logger: logger}
}

// Available возвращает остаток варианта (или товара без вариантов).
func (l *Ledger) Available(ctx context.Context, productID, size, color string) (int, error) {
	product, err := l.products.Get(ctx, productID)
	if err != nil {
		return 0, err
	}
	return product.Available(size, color)
}

// Reserve списывает qty единиц. Проверка и списание выполняются хранилищем
// одной операцией, поэтому две конкурентные резервации последней единицы
// не могут обе завершиться успешно.
func (l *Ledger) Reserve(ctx context.Context, productID, size, color string, qty int) error {
	if qty <= 0 {
		return domain.ErrItemQtyInvalid
	}
	if err := l.stock.DecrementStock(ctx, productID, size, color, qty); err != nil {
		l.logger.WithError(err).WithFields(log.Fields{
			"product_id": productID,
			"size":       size,
			"color":      color,
			"qty":        qty,
		}).Warn("stock reservation failed")
		return fmt.Errorf("reserve %s: %w", productID, err)
	}
	return nil
}

// Restock возвращает qty единиц на склад (пополнение администратором).
func (l *Ledger) Restock(ctx context.Context, productID, size, color string, qty int) error {
	if qty <= 0 {
		return domain.ErrItemQtyInvalid
	}
	if err := l.stock.IncrementStock(ctx, productID, size, color, qty); err != nil {
		return fmt.Errorf("restock %s: %w", productID, err)
	}
	l.logger.WithFields(log.Fields{
		"product_id": productID,
		"qty":        qty,
	}).Info("stock replenished")
	return nil
}

var _ domain.InventoryLedger = (*Ledger)(nil)
