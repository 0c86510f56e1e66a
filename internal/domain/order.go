package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending OrderStatus = "pending"
	OrderPaid    OrderStatus = "paid"
)

// Order is created once per confirmed payment and never updated afterwards.
type Order struct {
	ID                uuid.UUID       `json:"id"`
	OrderNumber       string          `json:"orderNumber"`
	CustomerName      string          `json:"customerName"`
	CustomerEmail     string          `json:"email"`
	ClerkUserID       string          `json:"clerkUserId,omitempty"`
	Address           *Address        `json:"address"`
	PaymentMethod     PaymentMethod   `json:"paymentMethod"`
	Status            OrderStatus     `json:"status"`
	Currency          string          `json:"currency"`
	TotalPrice        decimal.Decimal `json:"totalPrice"`
	AmountDiscount    decimal.Decimal `json:"amountDiscount"`
	Items             []OrderItem     `json:"products"`
	CheckoutSessionID string          `json:"checkoutSessionId"`
	PaymentIntentID   string          `json:"paymentIntentId"`
	Invoice           *Invoice        `json:"invoice,omitempty"`
	CreatedAt         time.Time       `json:"orderDate"`
}

type OrderItem struct {
	Key       string              `json:"key"`
	ProductID string              `json:"productId"`
	Quantity  int                 `json:"quantity"`
	UnitPrice decimal.NullDecimal `json:"unitPrice"`
}

type Invoice struct {
	ID        string `json:"id"`
	Number    string `json:"number"`
	HostedURL string `json:"hostedInvoiceUrl"`
}
