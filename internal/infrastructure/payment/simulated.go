package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"quickcart/internal/domain"
)

// SimulatedProcessor is an in-memory card processor. Paying a session
// produces a signed webhook, except that a share of deliveries is dropped to
// reproduce charges the storefront never hears about.
type SimulatedProcessor struct {
	mu       sync.RWMutex
	secret   string
	lossRate int
	sessions map[string]*simSession
}

type simSession struct {
	session CheckoutSession
	lines   []SessionLine
	invoice *domain.Invoice
}

type simEvent struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// NewSimulatedProcessor drops lossRate percent of webhook deliveries.
func NewSimulatedProcessor(secret string, lossRate int) *SimulatedProcessor {
	return &SimulatedProcessor{
		secret:   secret,
		lossRate: lossRate,
		sessions: make(map[string]*simSession),
	}
}

func (p *SimulatedProcessor) FindCustomerByEmail(context.Context, string) (string, error) {
	return "", nil
}

func (p *SimulatedProcessor) CreateSession(_ context.Context, req CardSessionRequest) (string, error) {
	id := "cs_sim_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	var total int64
	lines := make([]SessionLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		total += l.UnitAmount * l.Quantity
		lines = append(lines, SessionLine{ProductID: l.ProductID, Quantity: l.Quantity})
	}

	p.mu.Lock()
	p.sessions[id] = &simSession{
		session: CheckoutSession{
			ID:            id,
			Status:        "open",
			PaymentStatus: "unpaid",
			Metadata:      req.Metadata,
			AmountTotal:   total,
			Currency:      strings.ToLower(req.Currency),
			CustomerEmail: req.CustomerEmail,
			Created:       time.Now().UTC(),
		},
		lines: lines,
	}
	p.mu.Unlock()

	return "https://checkout.simulated/pay/" + id, nil
}

// Pay completes the session. It returns the webhook payload and signature,
// or delivered=false when the notification is lost.
func (p *SimulatedProcessor) Pay(sessionID string) (payload []byte, signature string, delivered bool, err error) {
	p.mu.Lock()
	s, ok := p.sessions[sessionID]
	if !ok {
		p.mu.Unlock()
		return nil, "", false, fmt.Errorf("unknown session %s", sessionID)
	}
	s.session.Status = "complete"
	s.session.PaymentStatus = "paid"
	s.session.PaymentIntentID = "pi_sim_" + sessionID[len("cs_sim_"):]
	s.session.InvoiceID = "in_sim_" + sessionID[len("cs_sim_"):]
	s.invoice = &domain.Invoice{
		ID:        s.session.InvoiceID,
		Number:    fmt.Sprintf("SIM-%04d", rand.IntN(10000)),
		HostedURL: "https://checkout.simulated/invoice/" + s.session.InvoiceID,
	}
	p.mu.Unlock()

	if rand.IntN(100) < p.lossRate {
		return nil, "", false, nil
	}

	payload, err = json.Marshal(simEvent{ID: "evt_" + uuid.NewString(), Type: EventCheckoutCompleted, SessionID: sessionID})
	if err != nil {
		return nil, "", false, err
	}
	return payload, p.sign(payload), true, nil
}

func (p *SimulatedProcessor) ParseEvent(payload []byte, signature string) (*Event, error) {
	if signature == "" || !hmac.Equal([]byte(signature), []byte(p.sign(payload))) {
		return nil, fmt.Errorf("%w: signature mismatch", domain.ErrInvalidSignature)
	}

	var e simEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("decode simulated event: %w", err)
	}

	ev := &Event{ID: e.ID, Type: e.Type}
	if e.Type == EventCheckoutCompleted {
		p.mu.RLock()
		s, ok := p.sessions[e.SessionID]
		var sess CheckoutSession
		if ok {
			sess = s.session
		}
		p.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("unknown session %s", e.SessionID)
		}
		ev.Session = &sess
	}
	return ev, nil
}

func (p *SimulatedProcessor) LineItems(_ context.Context, sessionID string) ([]SessionLine, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown session %s", domain.ErrUpstreamProcessor, sessionID)
	}
	return append([]SessionLine(nil), s.lines...), nil
}

func (p *SimulatedProcessor) Invoice(_ context.Context, invoiceID string) (*domain.Invoice, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, s := range p.sessions {
		if s.invoice != nil && s.invoice.ID == invoiceID {
			inv := *s.invoice
			return &inv, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown invoice %s", domain.ErrUpstreamProcessor, invoiceID)
}

func (p *SimulatedProcessor) CompletedSessions(_ context.Context, since time.Time) ([]CheckoutSession, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []CheckoutSession
	for _, s := range p.sessions {
		if s.session.Status == "complete" && !s.session.Created.Before(since) {
			out = append(out, s.session)
		}
	}
	return out, nil
}

func (p *SimulatedProcessor) sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(p.secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
