package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"quickcart/internal/domain"
	"quickcart/internal/repo"
)

// StockRetryQueue accepts stock decrements that failed inline.
type StockRetryQueue interface {
	Publish(ctx context.Context, adj domain.StockAdjustment) error
}

type CommitRequest struct {
	Metadata        domain.Metadata
	Items           []domain.LineItem
	Pricing         Pricing
	Status          domain.OrderStatus
	SessionID       string
	PaymentIntentID string
	Invoice         *domain.Invoice
}

type OrderService interface {
	// CommitOrder persists the order, then decrements stock per line item.
	// Stock failures are logged and queued, never returned.
	CommitOrder(ctx context.Context, req CommitRequest) (*domain.Order, error)
	ListOrders(ctx context.Context, clerkUserID string) ([]domain.Order, error)
}

type orderService struct {
	orders   repo.OrderRepo
	products repo.ProductRepo
	stock    StockService
	retry    StockRetryQueue
	currency currency.Unit
	now      func() time.Time
}

// NewOrderService builds the commit procedure. retry may be nil.
func NewOrderService(
	orders repo.OrderRepo,
	products repo.ProductRepo,
	stock StockService,
	retry StockRetryQueue,
	storeCurrency currency.Unit,
) OrderService {
	return &orderService{
		orders:   orders,
		products: products,
		stock:    stock,
		retry:    retry,
		currency: storeCurrency,
		now:      time.Now,
	}
}

func (s *orderService) CommitOrder(ctx context.Context, req CommitRequest) (*domain.Order, error) {
	t, err := s.price(ctx, req.Pricing, req.Items)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrOrderPersist, err)
	}

	meta := req.Metadata
	order := &domain.Order{
		ID:                uuid.New(),
		OrderNumber:       meta.OrderNumber,
		CustomerName:      meta.CustomerName,
		CustomerEmail:     meta.CustomerEmail,
		ClerkUserID:       meta.ClerkUserID,
		Address:           meta.Address,
		PaymentMethod:     meta.PaymentMethod,
		Status:            req.Status,
		Currency:          t.currency,
		TotalPrice:        t.total,
		AmountDiscount:    t.discount,
		CheckoutSessionID: req.SessionID,
		PaymentIntentID:   req.PaymentIntentID,
		Invoice:           req.Invoice,
		CreatedAt:         s.now().UTC(),
	}
	for _, item := range req.Items {
		oi := domain.OrderItem{
			Key:       uuid.NewString(),
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		}
		if price, ok := t.unitPrice[item.ProductID]; ok {
			oi.UnitPrice = decimal.NewNullDecimal(price)
		}
		order.Items = append(order.Items, oi)
	}

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrOrderPersist, err)
	}

	// the order is durable now; a caller going away must not cut the
	// stock phase short
	s.decrementAll(context.WithoutCancel(ctx), order)

	return order, nil
}

func (s *orderService) decrementAll(ctx context.Context, order *domain.Order) {
	for _, item := range order.Items {
		err := s.stock.DecrementStock(ctx, item.ProductID, item.Quantity)
		if err == nil {
			continue
		}

		slog.Error("stock decrement failed",
			"method", "OrderService.CommitOrder",
			"order_number", order.OrderNumber,
			"product_id", item.ProductID,
			"error", err)

		if s.retry == nil {
			continue
		}
		adj := domain.StockAdjustment{
			ProductID:   item.ProductID,
			Quantity:    item.Quantity,
			OrderNumber: order.OrderNumber,
			Attempt:     1,
		}
		if err := s.retry.Publish(ctx, adj); err != nil {
			slog.Error("stock retry enqueue failed",
				"method", "OrderService.CommitOrder",
				"order_number", order.OrderNumber,
				"product_id", item.ProductID,
				"error", err)
		}
	}
}

func (s *orderService) ListOrders(ctx context.Context, clerkUserID string) ([]domain.Order, error) {
	if clerkUserID == "" {
		return nil, domain.Invalid("userId is required")
	}
	orders, err := s.orders.ListByUser(ctx, clerkUserID)
	if err != nil {
		return nil, fmt.Errorf("orders.ListByUser: %w", err)
	}
	return orders, nil
}
