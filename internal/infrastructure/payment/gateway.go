package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"quickcart/internal/domain"
)

const EventCheckoutCompleted = "checkout.session.completed"

// CheckoutSession is the processor-side record of a hosted card checkout.
// Amounts are in minor units.
type CheckoutSession struct {
	ID              string
	Status          string
	PaymentStatus   string
	PaymentIntentID string
	Metadata        map[string]string
	AmountTotal     int64
	AmountDiscount  int64
	Currency        string
	CustomerEmail   string
	InvoiceID       string
	Created         time.Time
}

// Paid reports whether money was actually captured for the session.
func (s CheckoutSession) Paid() bool {
	return s.Status == "complete" && (s.PaymentStatus == "paid" || s.PaymentStatus == "no_payment_required")
}

// SessionLine is a purchased line recovered from the processor. ProductID is
// empty when the line was not created by this storefront.
type SessionLine struct {
	ProductID string
	Quantity  int64
}

type Event struct {
	ID      string
	Type    string
	Session *CheckoutSession
}

type CardLine struct {
	ProductID   string
	Name        string
	Description string
	Image       string
	UnitAmount  int64
	Quantity    int64
}

type CardSessionRequest struct {
	Lines         []CardLine
	Currency      string
	Metadata      map[string]string
	CustomerID    string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

// CardProcessor is a hosted card checkout with asynchronous confirmation.
type CardProcessor interface {
	// FindCustomerByEmail returns "" when no customer is registered.
	FindCustomerByEmail(ctx context.Context, email string) (string, error)
	// CreateSession returns the hosted redirect URL.
	CreateSession(ctx context.Context, req CardSessionRequest) (string, error)
	// ParseEvent authenticates a webhook delivery.
	ParseEvent(payload []byte, signature string) (*Event, error)
	LineItems(ctx context.Context, sessionID string) ([]SessionLine, error)
	Invoice(ctx context.Context, invoiceID string) (*domain.Invoice, error)
	// CompletedSessions lists sessions completed since the given time.
	CompletedSessions(ctx context.Context, since time.Time) ([]CheckoutSession, error)
}

type MobileMoneyItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

type MobileMoneyRequest struct {
	Items       []MobileMoneyItem `json:"items"`
	Metadata    domain.Metadata   `json:"metadata"`
	Currency    string            `json:"currency"`
	CallbackURL string            `json:"callbackUrl"`
}

type MobileMoneySession struct {
	URL       string `json:"url"`
	Reference string `json:"paymentId"`
}

// MobileMoneyGateway starts a hosted mobile-money payment at a partner.
type MobileMoneyGateway interface {
	CreatePayment(ctx context.Context, req MobileMoneyRequest) (*MobileMoneySession, error)
}
