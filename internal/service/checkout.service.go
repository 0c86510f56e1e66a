package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/samber/lo"
	"golang.org/x/text/currency"

	"quickcart/internal/domain"
	"quickcart/internal/infrastructure/payment"
	"quickcart/internal/repo"
)

// Outcome is either redirect-now (Order nil) or committed-now.
type Outcome struct {
	RedirectURL string
	Order       *domain.Order
}

func (o Outcome) Committed() bool {
	return o.Order != nil
}

// Cart is a validated checkout request with every product resolved.
type Cart struct {
	Items    []domain.LineItem
	Products map[string]domain.Product
	Metadata domain.Metadata
}

// checkoutPath completes checkout for one payment method.
type checkoutPath interface {
	begin(ctx context.Context, cart Cart) (*Outcome, error)
}

type CheckoutService interface {
	BeginCheckout(ctx context.Context, items []domain.LineItem, meta domain.Metadata) (*Outcome, error)
}

type checkoutService struct {
	products repo.ProductRepo
	paths    map[domain.PaymentMethod]checkoutPath
	now      func() time.Time
}

// NewCheckoutService wires the payment paths. A nil mobile gateway leaves
// mobile money disabled.
func NewCheckoutService(
	products repo.ProductRepo,
	orders OrderService,
	card payment.CardProcessor,
	mobile payment.MobileMoneyGateway,
	baseURL string,
	storeCurrency currency.Unit,
) CheckoutService {
	paths := map[domain.PaymentMethod]checkoutPath{
		domain.PaymentCard: cardPath{processor: card, baseURL: baseURL, currency: storeCurrency},
		domain.PaymentCOD:  codPath{orders: orders, baseURL: baseURL},
	}
	if mobile != nil {
		paths[domain.PaymentMobileMoney] = mobileMoneyPath{gateway: mobile, orders: orders, baseURL: baseURL, currency: storeCurrency}
	}
	return &checkoutService{products: products, paths: paths, now: time.Now}
}

func (s *checkoutService) BeginCheckout(ctx context.Context, items []domain.LineItem, meta domain.Metadata) (*Outcome, error) {
	if err := domain.ValidateLineItems(items); err != nil {
		return nil, err
	}
	if err := meta.Normalize(s.now()); err != nil {
		return nil, err
	}

	path, ok := s.paths[meta.PaymentMethod]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidPaymentMethod, meta.PaymentMethod)
	}

	products, err := s.resolve(ctx, items)
	if err != nil {
		return nil, err
	}

	out, err := path.begin(ctx, Cart{Items: items, Products: products, Metadata: meta})
	if errors.Is(err, domain.ErrInvalidInput) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrCheckoutFailed, meta.PaymentMethod, err)
	}
	return out, nil
}

func (s *checkoutService) resolve(ctx context.Context, items []domain.LineItem) (map[string]domain.Product, error) {
	ids := lo.Uniq(lo.Map(items, func(it domain.LineItem, _ int) string { return it.ProductID }))

	products := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		p, err := s.products.FindByID(ctx, id)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, domain.Invalid(fmt.Sprintf("product %s not found", id))
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrCheckoutFailed, err)
		}
		products[id] = *p
	}
	return products, nil
}

type cardPath struct {
	processor payment.CardProcessor
	baseURL   string
	currency  currency.Unit
}

// begin opens a hosted session. The order is written later by the webhook.
func (p cardPath) begin(ctx context.Context, cart Cart) (*Outcome, error) {
	m := cart.Metadata

	md, err := encodeSessionMetadata(m)
	if err != nil {
		return nil, err
	}

	customerID, err := p.processor.FindCustomerByEmail(ctx, m.CustomerEmail)
	if err != nil {
		return nil, err
	}

	req := payment.CardSessionRequest{
		Currency:      p.currency.String(),
		Metadata:      md,
		CustomerID:    customerID,
		CustomerEmail: m.CustomerEmail,
		SuccessURL:    fmt.Sprintf("%s/success?session_id={CHECKOUT_SESSION_ID}&orderNumber=%s", p.baseURL, url.QueryEscape(m.OrderNumber)),
		CancelURL:     p.baseURL + "/cart",
	}
	for _, item := range cart.Items {
		product := cart.Products[item.ProductID]
		req.Lines = append(req.Lines, payment.CardLine{
			ProductID:   product.ID,
			Name:        product.Name,
			Description: product.Description,
			Image:       lo.FirstOrEmpty(product.Images),
			UnitAmount:  product.MinorUnits(),
			Quantity:    int64(item.Quantity),
		})
	}

	redirect, err := p.processor.CreateSession(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Outcome{RedirectURL: redirect}, nil
}

type mobileMoneyPath struct {
	gateway  payment.MobileMoneyGateway
	orders   OrderService
	baseURL  string
	currency currency.Unit
}

// begin obtains the partner redirect and then commits the order as pending.
func (p mobileMoneyPath) begin(ctx context.Context, cart Cart) (*Outcome, error) {
	m := cart.Metadata

	req := payment.MobileMoneyRequest{
		Metadata:    m,
		Currency:    p.currency.String(),
		CallbackURL: fmt.Sprintf("%s/success?orderNumber=%s", p.baseURL, url.QueryEscape(m.OrderNumber)),
	}
	for _, item := range cart.Items {
		product := cart.Products[item.ProductID]
		req.Items = append(req.Items, payment.MobileMoneyItem{
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.DiscountedPrice(),
			Quantity:  item.Quantity,
		})
	}

	sess, err := p.gateway.CreatePayment(ctx, req)
	if err != nil {
		return nil, err
	}

	intent := sess.Reference
	if intent == "" {
		intent = domain.SessionMobileMoney
	}
	order, err := p.orders.CommitOrder(ctx, CommitRequest{
		Metadata:        m,
		Items:           cart.Items,
		Pricing:         RecomputePricing{},
		Status:          domain.OrderPending,
		SessionID:       domain.SessionMobileMoney,
		PaymentIntentID: intent,
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{RedirectURL: sess.URL, Order: order}, nil
}

type codPath struct {
	orders  OrderService
	baseURL string
}

func (p codPath) begin(ctx context.Context, cart Cart) (*Outcome, error) {
	order, err := p.orders.CommitOrder(ctx, CommitRequest{
		Metadata:        cart.Metadata,
		Items:           cart.Items,
		Pricing:         RecomputePricing{},
		Status:          domain.OrderPending,
		SessionID:       domain.SessionCOD,
		PaymentIntentID: domain.SessionCOD,
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{
		RedirectURL: fmt.Sprintf("%s/cod-success?orderNumber=%s", p.baseURL, url.QueryEscape(order.OrderNumber)),
		Order:       order,
	}, nil
}
