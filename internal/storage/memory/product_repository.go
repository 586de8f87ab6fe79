package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ProductRepository хранит каталог и остатки в памяти.
// Реализует и domain.ProductRepository, и domain.StockStore: списание
// остатка выполняется под мьютексом как единая операция "проверь и уменьши".
type ProductRepository struct {
	mu    sync.Mutex
	items map[string]domain.Product
}

// NewProductRepository создаёт пустой каталог.
func NewProductRepository() *ProductRepository {
	return &ProductRepository{items: make(map[string]domain.Product)}
}

func (r *ProductRepository) Create(_ context.Context, product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[product.ID]; exists {
		return domain.ErrProductExists
	}
	r.items[product.ID] = product.Clone()
	return nil
}

func (r *ProductRepository) Get(_ context.Context, id string) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.items[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p.Clone(), nil
}

// DecrementStock списывает qty, если остатка хватает. Отрицательным остаток не становится.
func (r *ProductRepository) DecrementStock(_ context.Context, productID, size, color string, qty int) error {
	return r.adjust(productID, size, color, -qty)
}

// IncrementStock возвращает qty на склад.
func (r *ProductRepository) IncrementStock(_ context.Context, productID, size, color string, qty int) error {
	return r.adjust(productID, size, color, qty)
}

func (r *ProductRepository) adjust(productID, size, color string, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.items[productID]
	if !ok {
		return domain.ErrProductNotFound
	}

	if !p.HasVariants() {
		if p.CountInStock+delta < 0 {
			return domain.ErrInsufficientStock
		}
		p.CountInStock += delta
	} else {
		idx := -1
		for i, v := range p.Variants {
			if v.Matches(size, color) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return domain.ErrVariantNotFound
		}
		if p.Variants[idx].Stock+delta < 0 {
			return domain.ErrInsufficientStock
		}
		p.Variants = append([]domain.Variant(nil), p.Variants...)
		p.Variants[idx].Stock += delta
	}

	p.UpdatedAt = time.Now().UTC()
	r.items[productID] = p
	return nil
}

var (
	_ domain.ProductRepository = (*ProductRepository)(nil)
	_ domain.StockStore        = (*ProductRepository)(nil)
)
