package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"quickcart/internal/domain"
	"quickcart/internal/infrastructure/payment"
	"quickcart/internal/repo"
)

var ErrDeliveryInFlight = errors.New("another delivery for this session is in progress")

// DeliveryLock guards one checkout session against concurrent reconciliation.
type DeliveryLock interface {
	Claim(ctx context.Context, sessionID string) (release func(context.Context), ok bool, err error)
}

type WebhookService interface {
	// HandleEvent authenticates a processor delivery and commits the order
	// for a completed checkout session. Replays are acknowledged without
	// side effects.
	HandleEvent(ctx context.Context, payload []byte, signature string) error
	// ReconcileSession commits the order for a paid session unless one
	// already exists. created reports whether this call wrote it.
	ReconcileSession(ctx context.Context, sess payment.CheckoutSession) (created bool, err error)
}

type webhookService struct {
	processor payment.CardProcessor
	orders    repo.OrderRepo
	commit    OrderService
	lock      DeliveryLock
	now       func() time.Time
}

// NewWebhookService builds the card reconciler. lock may be nil, leaving
// the unique session index as the only duplicate guard.
func NewWebhookService(
	processor payment.CardProcessor,
	orders repo.OrderRepo,
	commit OrderService,
	lock DeliveryLock,
) WebhookService {
	return &webhookService{
		processor: processor,
		orders:    orders,
		commit:    commit,
		lock:      lock,
		now:       time.Now,
	}
}

func (s *webhookService) HandleEvent(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.processor.ParseEvent(payload, signature)
	if errors.Is(err, domain.ErrInvalidSignature) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrOrderReconciliation, err)
	}

	if ev.Type != payment.EventCheckoutCompleted || ev.Session == nil {
		slog.Debug("ignoring webhook event", "event_id", ev.ID, "type", ev.Type)
		return nil
	}

	_, err = s.ReconcileSession(ctx, *ev.Session)
	return err
}

func (s *webhookService) ReconcileSession(ctx context.Context, sess payment.CheckoutSession) (bool, error) {
	exists, err := s.orders.ExistsBySessionID(ctx, sess.ID)
	if err != nil {
		return false, fmt.Errorf("%w: %w", domain.ErrOrderReconciliation, err)
	}
	if exists {
		slog.Info("checkout session already recorded", "session_id", sess.ID)
		return false, nil
	}

	if s.lock != nil {
		release, ok, err := s.lock.Claim(ctx, sess.ID)
		switch {
		case err != nil:
			slog.Warn("delivery lock unavailable", "session_id", sess.ID, "error", err)
		case !ok:
			return false, fmt.Errorf("%w: %w", domain.ErrOrderReconciliation, ErrDeliveryInFlight)
		default:
			defer release(context.WithoutCancel(ctx))
		}
	}

	req, err := s.commitRequest(ctx, sess)
	if err != nil {
		return false, fmt.Errorf("%w: session %s: %w", domain.ErrOrderReconciliation, sess.ID, err)
	}

	order, err := s.commit.CommitOrder(ctx, *req)
	if errors.Is(err, repo.ErrDuplicateOrder) {
		slog.Info("checkout session recorded concurrently", "session_id", sess.ID)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: session %s: %w", domain.ErrOrderReconciliation, sess.ID, err)
	}

	slog.Info("order recorded from checkout session",
		"session_id", sess.ID,
		"order_number", order.OrderNumber,
		"total", order.TotalPrice.String())
	return true, nil
}

func (s *webhookService) commitRequest(ctx context.Context, sess payment.CheckoutSession) (*CommitRequest, error) {
	meta, err := decodeSessionMetadata(sess.Metadata, sess.CustomerEmail)
	if err != nil {
		return nil, err
	}
	if meta.OrderNumber == "" {
		meta.OrderNumber = domain.NewOrderNumber(s.now())
	}

	lines, err := s.processor.LineItems(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	var items []domain.LineItem
	for _, line := range lines {
		if line.ProductID == "" {
			slog.Warn("skipping line without product id", "session_id", sess.ID)
			continue
		}
		items = append(items, domain.LineItem{ProductID: line.ProductID, Quantity: int(line.Quantity)})
	}

	var invoice *domain.Invoice
	if sess.InvoiceID != "" {
		if invoice, err = s.processor.Invoice(ctx, sess.InvoiceID); err != nil {
			return nil, err
		}
	}

	return &CommitRequest{
		Metadata: meta,
		Items:    items,
		Pricing: ProcessorPricing{
			AmountTotal:    sess.AmountTotal,
			AmountDiscount: sess.AmountDiscount,
			Currency:       sess.Currency,
		},
		Status:          domain.OrderPaid,
		SessionID:       sess.ID,
		PaymentIntentID: sess.PaymentIntentID,
		Invoice:         invoice,
	}, nil
}
