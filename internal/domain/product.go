package domain

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Product is the catalog record. Discount is a percentage of Price. A nil
// Stock means the product does not track inventory.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Images      []string        `json:"images,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Discount    decimal.Decimal `json:"discount"`
	Stock       *int64          `json:"stock,omitempty"`
}

// UnitDiscount is the amount taken off a single unit.
func (p Product) UnitDiscount() decimal.Decimal {
	return p.Price.Mul(p.Discount).Div(hundred)
}

func (p Product) DiscountedPrice() decimal.Decimal {
	return p.Price.Sub(p.UnitDiscount())
}

// MinorUnits converts the undiscounted price to the processor's integer
// amount, rounding half up.
func (p Product) MinorUnits() int64 {
	return p.Price.Mul(hundred).Round(0).IntPart()
}

// StockAdjustment is a stock decrement that failed inline and was queued.
type StockAdjustment struct {
	ProductID   string `json:"productId"`
	Quantity    int    `json:"quantity"`
	OrderNumber string `json:"orderNumber"`
	Attempt     int    `json:"attempt"`
}

type ChatMessage struct {
	From string `json:"from"`
	Text string `json:"text"`
}
