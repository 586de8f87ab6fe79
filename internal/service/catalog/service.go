package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/clock"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Restocker пополняет остатки. Реализуется inventory.Ledger.
type Restocker interface {
	Restock(ctx context.Context, productID, size, color string, qty int) error
}

// Service — тонкий слой каталога: заведение товара и пополнение склада
// администратором. Поиск и витрина сюда не входят.
type Service struct {
	products domain.ProductRepository
	stock    Restocker
	clock    clock.Clock
	logger   *log.Entry
}

// NewService создаёт сервис каталога.
func NewService(products domain.ProductRepository, stock Restocker, clk clock.Clock, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "catalog")
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Service{products: products, stock: stock, clock: clk, logger: logger}
}

// Create сохраняет новый товар. Категория нормализуется, товар сразу активен.
func (s *Service) Create(ctx context.Context, actor domain.Actor, product domain.Product) (domain.Product, error) {
	if !actor.IsAdmin() {
		return domain.Product{}, domain.ErrForbidden
	}

	category, ok := domain.NormalizeCategory(string(product.Category))
	if !ok {
		return domain.Product{}, domain.ErrProductCategoryInvalid
	}
	product.Category = category
	product.Name = strings.TrimSpace(product.Name)

	if errs := product.Validate(); len(errs) > 0 {
		return domain.Product{}, errors.Join(errs...)
	}

	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	if product.Image == "" && len(product.Images) > 0 {
		product.Image = product.Images[0]
	}
	now := s.clock.Now()
	product.Active = true
	product.CreatedAt = now
	product.UpdatedAt = now

	if err := s.products.Create(ctx, product); err != nil {
		return domain.Product{}, err
	}

	s.logger.WithFields(log.Fields{
		"product_id": product.ID,
		"category":   product.Category,
		"variants":   len(product.Variants),
	}).Info("product created")
	return product, nil
}

// Get возвращает активный товар.
func (s *Service) Get(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.products.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	if !product.Active {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

// Restock пополняет остаток варианта. Используется для ручной сверки склада
// после зафиксированного расхождения.
func (s *Service) Restock(ctx context.Context, actor domain.Actor, productID, size, color string, qty int) (domain.Product, error) {
	if !actor.IsAdmin() {
		return domain.Product{}, domain.ErrForbidden
	}
	if err := s.stock.Restock(ctx, productID, size, color, qty); err != nil {
		return domain.Product{}, err
	}

	s.logger.WithFields(log.Fields{
		"product_id": productID,
		"size":       size,
		"color":      color,
		"qty":        qty,
		"actor":      actor.UserID,
	}).Info("stock replenished")
	return s.products.Get(ctx, productID)
}
