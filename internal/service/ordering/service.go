package ordering

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/clock"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/discount"
)

// LineItemRequest — позиция из запроса покупателя.
type LineItemRequest struct {
	ProductID string
	Size      string
	Color     string
	Qty       int
}

// CreateOrderInput — входные данные для сборки заказа.
type CreateOrderInput struct {
	UserID          string
	CustomerEmail   string
	Items           []LineItemRequest
	ShippingAddress domain.ShippingAddress
	PaymentMethod   string
	CouponCode      string
}

// DiscountEvaluator вычисляет скидку по купону.
type DiscountEvaluator interface {
	Evaluate(ctx context.Context, code string, itemsMinor int64) (discount.Discount, error)
}

// EventRecorder фиксирует события заказа в outbox и timeline.
type EventRecorder interface {
	Emit(ctx context.Context, orderID, eventType, reason string, payload map[string]any)
}

// ConfirmationSender отправляет письмо о созданном заказе.
type ConfirmationSender interface {
	OrderConfirmation(ctx context.Context, order domain.Order)
}

// Dependencies — зависимости сервиса сборки заказов.
type Dependencies struct {
	Orders    domain.OrderRepository
	Products  domain.ProductRepository
	Ledger    domain.InventoryLedger
	Discounts DiscountEvaluator
	Timeline  domain.TimelineRepository
	Recorder  EventRecorder
	Notifier  ConfirmationSender
	Metrics   *metrics.StorefrontMetrics
	Clock     clock.Clock
	Logger    *log.Entry
}

// Service собирает заказы и отдаёт их владельцу или администратору.
type Service struct {
	orders    domain.OrderRepository
	products  domain.ProductRepository
	ledger    domain.InventoryLedger
	discounts DiscountEvaluator
	timeline  domain.TimelineRepository
	recorder  EventRecorder
	notifier  ConfirmationSender
	metrics   *metrics.StorefrontMetrics
	clock     clock.Clock
	logger    *log.Entry
}

// NewService создаёт сервис сборки заказов.
func NewService(deps Dependencies) *Service {
	if deps.Clock == nil {
		deps.Clock = clock.NewSystem()
	}
	if deps.Logger == nil {
		deps.Logger = log.New().WithField("component", "ordering")
	}
	return &Service{
		orders:    deps.Orders,
		products:  deps.Products,
		ledger:    deps.Ledger,
		discounts: deps.Discounts,
		timeline:  deps.Timeline,
		recorder:  deps.Recorder,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		clock:     deps.Clock,
		logger:    deps.Logger,
	}
}

// CreateOrder проверяет запрос, сохраняет заказ одной записью и затем
// списывает остатки. Любая ошибка до сохранения отклоняет заказ целиком.
// Ошибка списания после сохранения заказ не отменяет: она фиксируется
// как InventoryShortfall.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (domain.Order, error) {
	done := s.metrics.AssemblyStarted()
	defer done()

	order, err := s.assemble(ctx, in)
	if err != nil {
		s.reject(in, err)
		return domain.Order{}, err
	}

	if err := s.orders.Create(ctx, order); err != nil {
		s.reject(in, err)
		return domain.Order{}, err
	}
	s.metrics.RecordOrderCreated()

	logger := s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"user_id":  order.UserID,
	})
	logger.WithField("total_minor", order.TotalMinor).Info("order created")

	s.reserve(ctx, order, logger)

	s.emit(ctx, order.ID, domain.EventOrderCreated, "", map[string]any{
		"user_id":        order.UserID,
		"items_minor":    order.ItemsPriceMinor,
		"discount_minor": order.DiscountMinor,
		"total_minor":    order.TotalMinor,
		"coupon_code":    order.CouponCode,
		"items":          len(order.Items),
	})
	if s.notifier != nil {
		s.notifier.OrderConfirmation(ctx, order)
	}

	return order, nil
}

func (s *Service) assemble(ctx context.Context, in CreateOrderInput) (domain.Order, error) {
	if err := validateInput(in); err != nil {
		return domain.Order{}, err
	}

	// Несколько позиций одного варианта проверяются по суммарному количеству.
	type variantKey struct{ productID, size, color string }
	requested := make(map[variantKey]int, len(in.Items))

	items := make([]domain.OrderItem, 0, len(in.Items))
	var itemsMinor int64
	for _, req := range in.Items {
		product, err := s.products.Get(ctx, req.ProductID)
		if err != nil {
			return domain.Order{}, err
		}
		// Снятый с витрины товар для покупателя не существует.
		if !product.Active {
			return domain.Order{}, domain.ErrProductNotFound
		}

		key := variantKey{product.ID, strings.ToLower(strings.TrimSpace(req.Size)), strings.ToLower(strings.TrimSpace(req.Color))}
		requested[key] += req.Qty

		available, err := product.Available(req.Size, req.Color)
		if err != nil {
			return domain.Order{}, err
		}
		if available < requested[key] {
			return domain.Order{}, domain.ErrInsufficientStock
		}

		item := domain.OrderItem{
			ProductID:            product.ID,
			Name:                 product.Name,
			Image:                productImage(product),
			Size:                 req.Size,
			Color:                req.Color,
			Qty:                  req.Qty,
			PriceMinor:           product.PriceMinor,
			DiscountedPriceMinor: product.PriceMinor,
		}
		items = append(items, item)
		itemsMinor += item.LineTotal()
	}

	var disc discount.Discount
	if strings.TrimSpace(in.CouponCode) != "" && s.discounts != nil {
		var err error
		disc, err = s.discounts.Evaluate(ctx, in.CouponCode, itemsMinor)
		if err != nil {
			return domain.Order{}, err
		}
	}

	now := s.clock.Now()
	order := domain.Order{
		ID:                uuid.NewString(),
		UserID:            in.UserID,
		CustomerEmail:     strings.TrimSpace(in.CustomerEmail),
		Items:             items,
		ShippingAddress:   in.ShippingAddress,
		PaymentMethod:     strings.TrimSpace(in.PaymentMethod),
		ItemsPriceMinor:   itemsMinor,
		DiscountMinor:     disc.AmountMinor,
		TotalMinor:        itemsMinor - disc.AmountMinor,
		CouponCode:        disc.CouponCode,
		Payment:           domain.Payment{State: domain.PaymentStateUnpaid},
		Status:            domain.OrderStatusProcessing,
		EstimatedDelivery: now.Add(domain.EstimatedDeliveryWindow),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, errors.Join(errs...)
	}
	return order, nil
}

func (s *Service) reserve(ctx context.Context, order domain.Order, logger *log.Entry) {
	for _, item := range order.Items {
		err := s.ledger.Reserve(ctx, item.ProductID, item.Size, item.Color, item.Qty)
		if err == nil {
			continue
		}

		s.metrics.RecordInventoryShortfall()
		logger.WithError(err).WithFields(log.Fields{
			"product_id": item.ProductID,
			"size":       item.Size,
			"color":      item.Color,
			"qty":        item.Qty,
		}).Error("stock deduction failed after order was persisted")

		s.emit(ctx, order.ID, domain.EventInventoryShortfall, err.Error(), map[string]any{
			"product_id": item.ProductID,
			"size":       item.Size,
			"color":      item.Color,
			"qty":        item.Qty,
		})
	}
}

func (s *Service) emit(ctx context.Context, orderID, eventType, reason string, payload map[string]any) {
	if s.recorder != nil {
		s.recorder.Emit(ctx, orderID, eventType, reason, payload)
	}
}

func (s *Service) reject(in CreateOrderInput, err error) {
	category := domain.Categorize(err)
	s.metrics.RecordOrderRejected(string(category))

	entry := s.logger.WithError(err).WithFields(log.Fields{
		"user_id":  in.UserID,
		"category": category,
	})
	if category == domain.CategoryInternal {
		entry.Error("order creation failed")
		return
	}
	entry.Info("order rejected")
}

// Get возвращает заказ владельцу или администратору.
func (s *Service) Get(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !actor.IsAdmin() && !actor.Owns(&order) {
		return domain.Order{}, domain.ErrForbidden
	}
	return order, nil
}

// ListMine возвращает заказы текущего пользователя.
func (s *Service) ListMine(ctx context.Context, actor domain.Actor) ([]domain.Order, error) {
	if actor.UserID == "" {
		return nil, domain.ErrUnauthenticated
	}
	return s.orders.List(ctx, domain.OrderFilter{UserID: actor.UserID})
}

// ListAll возвращает все заказы (только администратор), с фильтром по статусу.
func (s *Service) ListAll(ctx context.Context, actor domain.Actor, status string) ([]domain.Order, error) {
	if !actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}

	filter := domain.OrderFilter{}
	if strings.TrimSpace(status) != "" {
		parsed, err := domain.ParseOrderStatus(status)
		if err != nil {
			return nil, err
		}
		filter.Status = parsed
	}
	return s.orders.List(ctx, filter)
}

// Timeline возвращает историю заказа владельцу или администратору.
// Владелец не видит служебных записей.
func (s *Service) Timeline(ctx context.Context, actor domain.Actor, orderID string) ([]domain.TimelineEvent, error) {
	if _, err := s.Get(ctx, actor, orderID); err != nil {
		return nil, err
	}
	if s.timeline == nil {
		return nil, nil
	}
	return s.timeline.List(ctx, orderID, domain.TimelineViewFor(actor))
}

func validateInput(in CreateOrderInput) error {
	var errs []error

	if strings.TrimSpace(in.UserID) == "" {
		errs = append(errs, domain.ErrUserRequired)
	}
	if len(in.Items) == 0 {
		errs = append(errs, domain.ErrItemsRequired)
	}
	for _, item := range in.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			errs = append(errs, domain.ErrProductIDRequired)
			break
		}
	}
	for _, item := range in.Items {
		if item.Qty <= 0 {
			errs = append(errs, domain.ErrItemQtyInvalid)
			break
		}
	}
	if !in.ShippingAddress.Complete() {
		errs = append(errs, domain.ErrShippingAddressRequired)
	}
	if strings.TrimSpace(in.PaymentMethod) == "" {
		errs = append(errs, domain.ErrPaymentMethodRequired)
	}

	return errors.Join(errs...)
}

func productImage(p domain.Product) string {
	if p.Image != "" {
		return p.Image
	}
	if len(p.Images) > 0 {
		return p.Images[0]
	}
	return ""
}
