package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"quickcart/internal/domain"
	"quickcart/internal/infrastructure/payment"
	"quickcart/internal/repo"
)

var bdt = currency.MustParseISO("BDT")

type memProductRepo struct {
	mu         sync.Mutex
	products   map[string]domain.Product
	decErr     map[string]error
	decDelay   time.Duration // slept before the locked write
	decrements int
}

func newMemProductRepo(products ...domain.Product) *memProductRepo {
	r := &memProductRepo{
		products: map[string]domain.Product{},
		decErr:   map[string]error{},
	}
	for _, p := range products {
		r.products[p.ID] = p
	}
	return r
}

func (r *memProductRepo) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	if p.Stock != nil {
		p.Stock = lo.ToPtr(*p.Stock)
	}
	return &p, nil
}

func (r *memProductRepo) DecrementStock(ctx context.Context, id string, quantity int) error {
	time.Sleep(r.decDelay)
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.decrements++
	if err := r.decErr[id]; err != nil {
		return err
	}
	p, ok := r.products[id]
	if !ok {
		return repo.ErrNotFound
	}
	if p.Stock == nil {
		return nil
	}
	p.Stock = lo.ToPtr(max(*p.Stock-int64(quantity), 0))
	r.products[id] = p
	return nil
}

func (r *memProductRepo) Search(_ context.Context, _ string, limit int) ([]domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := lo.Values(r.products)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memProductRepo) Upsert(_ context.Context, p domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.ID] = p
	return nil
}

func (r *memProductRepo) stock(id string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.FromPtr(r.products[id].Stock)
}

type memOrderRepo struct {
	mu        sync.Mutex
	orders    []domain.Order
	createErr error
	existsErr error
}

func (r *memOrderRepo) CreateOrder(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if order.PaymentMethod == domain.PaymentCard {
		for _, o := range r.orders {
			if o.PaymentMethod == domain.PaymentCard && o.CheckoutSessionID == order.CheckoutSessionID {
				return repo.ErrDuplicateOrder
			}
		}
	}
	r.orders = append(r.orders, *order)
	return nil
}

func (r *memOrderRepo) ExistsBySessionID(_ context.Context, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.existsErr != nil {
		return false, r.existsErr
	}
	return lo.ContainsBy(r.orders, func(o domain.Order) bool {
		return o.PaymentMethod == domain.PaymentCard && o.CheckoutSessionID == sessionID
	}), nil
}

func (r *memOrderRepo) FindByOrderNumber(_ context.Context, orderNumber string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := lo.Find(r.orders, func(o domain.Order) bool { return o.OrderNumber == orderNumber })
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &o, nil
}

func (r *memOrderRepo) ListByUser(_ context.Context, clerkUserID string) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Filter(r.orders, func(o domain.Order, _ int) bool { return o.ClerkUserID == clerkUserID }), nil
}

func (r *memOrderRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

type fakeRetryQueue struct {
	mu   sync.Mutex
	adjs []domain.StockAdjustment
}

func (q *fakeRetryQueue) Publish(_ context.Context, adj domain.StockAdjustment) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.adjs = append(q.adjs, adj)
	return nil
}

const validSignature = "sig-ok"

type fakeCardProcessor struct {
	mu        sync.Mutex
	customers map[string]string
	requests  []payment.CardSessionRequest
	createErr error
	events    map[string]*payment.Event
	lines     map[string][]payment.SessionLine
	linesErr  error
	invoices  map[string]*domain.Invoice
	completed []payment.CheckoutSession
	lineCalls int
}

func newFakeCardProcessor() *fakeCardProcessor {
	return &fakeCardProcessor{
		customers: map[string]string{},
		events:    map[string]*payment.Event{},
		lines:     map[string][]payment.SessionLine{},
		invoices:  map[string]*domain.Invoice{},
	}
}

func (p *fakeCardProcessor) FindCustomerByEmail(_ context.Context, email string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.customers[email], nil
}

func (p *fakeCardProcessor) CreateSession(_ context.Context, req payment.CardSessionRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return "", p.createErr
	}
	p.requests = append(p.requests, req)
	return "https://checkout.stripe.test/c/pay/cs_test_1", nil
}

func (p *fakeCardProcessor) ParseEvent(payload []byte, signature string) (*payment.Event, error) {
	if signature != validSignature {
		return nil, domain.ErrInvalidSignature
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ev, ok := p.events[string(payload)]
	if !ok {
		return nil, errors.New("unparseable event")
	}
	return ev, nil
}

func (p *fakeCardProcessor) LineItems(_ context.Context, sessionID string) ([]payment.SessionLine, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lineCalls++
	if p.linesErr != nil {
		return nil, p.linesErr
	}
	return p.lines[sessionID], nil
}

func (p *fakeCardProcessor) Invoice(_ context.Context, invoiceID string) (*domain.Invoice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	inv, ok := p.invoices[invoiceID]
	if !ok {
		return nil, domain.ErrUpstreamProcessor
	}
	return inv, nil
}

func (p *fakeCardProcessor) CompletedSessions(_ context.Context, since time.Time) ([]payment.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return lo.Filter(p.completed, func(s payment.CheckoutSession, _ int) bool { return !s.Created.Before(since) }), nil
}

type fakeMobileGateway struct {
	requests []payment.MobileMoneyRequest
	session  *payment.MobileMoneySession
	err      error
}

func (g *fakeMobileGateway) CreatePayment(_ context.Context, req payment.MobileMoneyRequest) (*payment.MobileMoneySession, error) {
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	return g.session, nil
}

type fakeLock struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

func (l *fakeLock) Claim(_ context.Context, sessionID string) (func(context.Context), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[sessionID] {
		return nil, false, nil
	}
	l.held[sessionID] = true
	return func(context.Context) {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, sessionID)
	}, true, nil
}

func product(id string, price, discount int64, stock *int64) domain.Product {
	return domain.Product{
		ID:       id,
		Name:     "Product " + id,
		Images:   []string{"https://cdn.example.com/" + id + ".jpg"},
		Price:    decimal.NewFromInt(price),
		Discount: decimal.NewFromInt(discount),
		Stock:    stock,
	}
}

func customer() domain.Metadata {
	return domain.Metadata{
		CustomerName:  "Nadia Rahman",
		CustomerEmail: "nadia@example.com",
		ClerkUserID:   "user_123",
		Address: &domain.Address{
			Name:    "Nadia Rahman",
			Address: "House 7, Road 3",
			City:    "Dhaka",
			State:   "Dhaka",
			Zip:     "1209",
		},
	}
}
