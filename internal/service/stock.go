package service

import (
	"context"
	"errors"
	"fmt"

	"quickcart/internal/domain"
	"quickcart/internal/repo"
)

type StockService interface {
	// DecrementStock lowers a product's stock by quantity, never below zero.
	// Products that are missing or do not track stock are skipped.
	DecrementStock(ctx context.Context, productID string, quantity int) error
}

type stockService struct {
	products repo.ProductRepo
}

func NewStockService(products repo.ProductRepo) StockService {
	return &stockService{products: products}
}

func (s *stockService) DecrementStock(ctx context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: invalid quantity %d for product %s", domain.ErrStockUpdate, quantity, productID)
	}
	err := s.products.DecrementStock(ctx, productID, quantity)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStockUpdate, err)
	}
	return nil
}
