package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"quickcart/internal/domain"
)

type stripeProcessor struct {
	api           *client.API
	webhookSecret string
	sessions      *gobreaker.CircuitBreaker[string]
}

func NewStripeProcessor(secretKey, webhookSecret string) CardProcessor {
	return &stripeProcessor{
		api:           client.New(secretKey, nil),
		webhookSecret: webhookSecret,
		sessions:      newBreaker[string]("stripe-checkout"),
	}
}

func (s *stripeProcessor) FindCustomerByEmail(ctx context.Context, email string) (string, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)
	params.Single = true

	it := s.api.Customers.List(params)
	if it.Next() {
		return it.Customer().ID, nil
	}
	if err := it.Err(); err != nil {
		return "", fmt.Errorf("%w: stripe customers.list: %w", domain.ErrUpstreamProcessor, err)
	}
	return "", nil
}

func (s *stripeProcessor) CreateSession(ctx context.Context, req CardSessionRequest) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:                stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes:  stripe.StringSlice([]string{"card"}),
		AllowPromotionCodes: stripe.Bool(true),
		InvoiceCreation: &stripe.CheckoutSessionInvoiceCreationParams{
			Enabled: stripe.Bool(true),
		},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		Metadata:   req.Metadata,
	}
	params.Context = ctx

	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	} else {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}

	currency := strings.ToLower(req.Currency)
	for _, line := range req.Lines {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name:     stripe.String(line.Name),
			Metadata: map[string]string{"id": line.ProductID},
		}
		if line.Description != "" {
			product.Description = stripe.String(line.Description)
		}
		if line.Image != "" {
			product.Images = stripe.StringSlice([]string{line.Image})
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(line.Quantity),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(currency),
				UnitAmount:  stripe.Int64(line.UnitAmount),
				ProductData: product,
			},
		})
	}

	url, err := s.sessions.Execute(func() (string, error) {
		sess, err := s.api.CheckoutSessions.New(params)
		if err != nil {
			return "", err
		}
		return sess.URL, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: stripe checkout.sessions.create: %w", domain.ErrUpstreamProcessor, err)
	}
	return url, nil
}

func (s *stripeProcessor) ParseEvent(payload []byte, signature string) (*Event, error) {
	if signature == "" || s.webhookSecret == "" {
		return nil, fmt.Errorf("%w: missing signature or webhook secret", domain.ErrInvalidSignature)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidSignature, err)
	}

	ev := &Event{ID: event.ID, Type: string(event.Type)}
	if ev.Type == EventCheckoutCompleted {
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		ev.Session = fromStripeSession(&cs)
	}
	return ev, nil
}

func (s *stripeProcessor) LineItems(ctx context.Context, sessionID string) ([]SessionLine, error) {
	params := &stripe.CheckoutSessionListLineItemsParams{Session: stripe.String(sessionID)}
	params.Context = ctx
	params.AddExpand("data.price.product")

	var lines []SessionLine
	it := s.api.CheckoutSessions.ListLineItems(params)
	for it.Next() {
		li := it.LineItem()
		line := SessionLine{Quantity: li.Quantity}
		if li.Price != nil && li.Price.Product != nil {
			line.ProductID = li.Price.Product.Metadata["id"]
		}
		lines = append(lines, line)
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("%w: stripe checkout.sessions.listLineItems: %w", domain.ErrUpstreamProcessor, err)
	}
	return lines, nil
}

func (s *stripeProcessor) Invoice(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	params := &stripe.InvoiceParams{}
	params.Context = ctx

	inv, err := s.api.Invoices.Get(invoiceID, params)
	if err != nil {
		return nil, fmt.Errorf("%w: stripe invoices.retrieve: %w", domain.ErrUpstreamProcessor, err)
	}
	return &domain.Invoice{ID: inv.ID, Number: inv.Number, HostedURL: inv.HostedInvoiceURL}, nil
}

func (s *stripeProcessor) CompletedSessions(ctx context.Context, since time.Time) ([]CheckoutSession, error) {
	params := &stripe.CheckoutSessionListParams{
		Status: stripe.String(string(stripe.CheckoutSessionStatusComplete)),
		CreatedRange: &stripe.RangeQueryParams{
			GreaterThanOrEqual: since.Unix(),
		},
	}
	params.Context = ctx

	var sessions []CheckoutSession
	it := s.api.CheckoutSessions.List(params)
	for it.Next() {
		sessions = append(sessions, *fromStripeSession(it.CheckoutSession()))
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("%w: stripe checkout.sessions.list: %w", domain.ErrUpstreamProcessor, err)
	}
	return sessions, nil
}

func fromStripeSession(cs *stripe.CheckoutSession) *CheckoutSession {
	out := &CheckoutSession{
		ID:            cs.ID,
		Status:        string(cs.Status),
		PaymentStatus: string(cs.PaymentStatus),
		Metadata:      cs.Metadata,
		AmountTotal:   cs.AmountTotal,
		Currency:      string(cs.Currency),
		CustomerEmail: cs.CustomerEmail,
		Created:       time.Unix(cs.Created, 0).UTC(),
	}
	if cs.PaymentIntent != nil {
		out.PaymentIntentID = cs.PaymentIntent.ID
	}
	if cs.TotalDetails != nil {
		out.AmountDiscount = cs.TotalDetails.AmountDiscount
	}
	if cs.Invoice != nil {
		out.InvoiceID = cs.Invoice.ID
	}
	if out.CustomerEmail == "" && cs.CustomerDetails != nil {
		out.CustomerEmail = cs.CustomerDetails.Email
	}
	return out
}
