package repo

import (
	"context"
	"errors"

	"quickcart/internal/domain"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateOrder = errors.New("order already exists for checkout session")
)

type ProductRepo interface {
	FindByID(ctx context.Context, id string) (*domain.Product, error)
	// DecrementStock lowers numeric stock by quantity in one store-side
	// update, floored at zero. Products without numeric stock are left
	// alone; a missing product is ErrNotFound.
	DecrementStock(ctx context.Context, id string, quantity int) error
	Search(ctx context.Context, query string, limit int) ([]domain.Product, error)
	Upsert(ctx context.Context, p domain.Product) error
}

type OrderRepo interface {
	// CreateOrder fails with ErrDuplicateOrder when a card order for the
	// same checkout session is already stored.
	CreateOrder(ctx context.Context, order *domain.Order) error
	ExistsBySessionID(ctx context.Context, sessionID string) (bool, error)
	FindByOrderNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
	ListByUser(ctx context.Context, clerkUserID string) ([]domain.Order, error)
}
