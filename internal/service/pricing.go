package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"quickcart/internal/domain"
)

// Pricing selects where an order's totals come from.
type Pricing interface {
	isPricing()
}

// RecomputePricing prices every line from the current product record.
type RecomputePricing struct{}

// ProcessorPricing uses the totals the processor already charged, in minor
// units.
type ProcessorPricing struct {
	AmountTotal    int64
	AmountDiscount int64
	Currency       string
}

func (RecomputePricing) isPricing() {}
func (ProcessorPricing) isPricing() {}

type totals struct {
	total     decimal.Decimal
	discount  decimal.Decimal
	currency  string
	unitPrice map[string]decimal.Decimal
}

func (s *orderService) price(ctx context.Context, p Pricing, items []domain.LineItem) (*totals, error) {
	switch p := p.(type) {
	case RecomputePricing:
		return s.recompute(ctx, items)
	case ProcessorPricing:
		unit, err := currency.ParseISO(strings.ToUpper(p.Currency))
		if err != nil {
			return nil, fmt.Errorf("processor currency %q: %w", p.Currency, err)
		}
		return &totals{
			total:    decimal.New(p.AmountTotal, -2),
			discount: decimal.New(p.AmountDiscount, -2),
			currency: unit.String(),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported pricing %T", p)
	}
}

func (s *orderService) recompute(ctx context.Context, items []domain.LineItem) (*totals, error) {
	t := &totals{
		total:     decimal.Zero,
		discount:  decimal.Zero,
		currency:  s.currency.String(),
		unitPrice: make(map[string]decimal.Decimal, len(items)),
	}
	for _, item := range items {
		product, err := s.products.FindByID(ctx, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("price product %s: %w", item.ProductID, err)
		}
		qty := decimal.NewFromInt(int64(item.Quantity))
		t.total = t.total.Add(product.DiscountedPrice().Mul(qty))
		t.discount = t.discount.Add(product.UnitDiscount().Mul(qty))
		t.unitPrice[item.ProductID] = product.Price
	}
	t.total = t.total.Round(2)
	t.discount = t.discount.Round(2)
	return t, nil
}
