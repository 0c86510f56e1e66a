package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"quickcart/internal/domain"
	"quickcart/internal/infrastructure/payment"
)

type fakeProcessor struct {
	payment.CardProcessor

	mu       sync.Mutex
	sessions []payment.CheckoutSession
	err      error
	since    []time.Time
}

func (p *fakeProcessor) CompletedSessions(_ context.Context, since time.Time) ([]payment.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.since = append(p.since, since)
	return p.sessions, p.err
}

type fakeReconciler struct {
	mu       sync.Mutex
	recorded map[string]bool
	failing  map[string]bool
	calls    []string
}

func (r *fakeReconciler) HandleEvent(context.Context, []byte, string) error { return nil }

func (r *fakeReconciler) ReconcileSession(_ context.Context, sess payment.CheckoutSession) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, sess.ID)
	if r.failing[sess.ID] {
		return false, domain.ErrOrderReconciliation
	}
	if r.recorded[sess.ID] {
		return false, nil
	}
	r.recorded[sess.ID] = true
	return true, nil
}

func (r *fakeReconciler) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func session(id, status, paymentStatus string) payment.CheckoutSession {
	return payment.CheckoutSession{ID: id, Status: status, PaymentStatus: paymentStatus}
}

func TestSweep(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	processor := &fakeProcessor{sessions: []payment.CheckoutSession{
		session("cs_lost", "complete", "paid"),
		session("cs_known", "complete", "paid"),
		session("cs_unpaid", "complete", "unpaid"),
		session("cs_free", "complete", "no_payment_required"),
		session("cs_broken", "complete", "paid"),
	}}
	reconciler := &fakeReconciler{
		recorded: map[string]bool{"cs_known": true},
		failing:  map[string]bool{"cs_broken": true},
	}
	rw := NewReconciliationWorker(processor, reconciler, time.Minute, 24*time.Hour)
	rw.now = func() time.Time { return now }

	recovered, err := rw.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, recovered)
	assert.Equal(t, []string{"cs_lost", "cs_known", "cs_free", "cs_broken"}, reconciler.calls)
	assert.Equal(t, []time.Time{now.Add(-24 * time.Hour)}, processor.since)

	// a second pass finds nothing new
	recovered, err = rw.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, recovered)
}

func TestSweep_ProcessorDown(t *testing.T) {
	processor := &fakeProcessor{err: domain.ErrUpstreamProcessor}
	rw := NewReconciliationWorker(processor, &fakeReconciler{recorded: map[string]bool{}}, time.Minute, time.Hour)

	_, err := rw.Sweep(context.Background())
	require.ErrorIs(t, err, domain.ErrUpstreamProcessor)
}

func TestReconciliationWorker_RunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	processor := &fakeProcessor{sessions: []payment.CheckoutSession{session("cs_1", "complete", "paid")}}
	reconciler := &fakeReconciler{recorded: map[string]bool{}}
	rw := NewReconciliationWorker(processor, reconciler, 10*time.Millisecond, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		rw.Run(ctx)
	}()

	require.Eventually(t, func() bool { return reconciler.callCount() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	reconciler.mu.Lock()
	defer reconciler.mu.Unlock()
	assert.Len(t, reconciler.recorded, 1)
}

// chanReader serves messages from a channel and records commits.
type chanReader struct {
	msgs      chan kafka.Message
	mu        sync.Mutex
	committed []kafka.Message
	closed    bool
}

func newChanReader(msgs ...kafka.Message) *chanReader {
	r := &chanReader{msgs: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		r.msgs <- m
	}
	return r
}

func (r *chanReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case m := <-r.msgs:
		return m, nil
	}
}

func (r *chanReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *chanReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *chanReader) commitCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

type fakeStock struct {
	mu    sync.Mutex
	err   map[string]error
	calls []string
}

func (s *fakeStock) DecrementStock(_ context.Context, productID string, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, productID)
	return s.err[productID]
}

type fakeRetry struct {
	mu   sync.Mutex
	adjs []domain.StockAdjustment
}

func (q *fakeRetry) Publish(_ context.Context, adj domain.StockAdjustment) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.adjs = append(q.adjs, adj)
	return nil
}

func message(t *testing.T, offset int64, adj domain.StockAdjustment) kafka.Message {
	value, err := json.Marshal(adj)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Key: []byte(adj.ProductID), Value: value}
}

func TestStockRetryWorker(t *testing.T) {
	defer goleak.VerifyNone(t)

	stuck := errors.Join(domain.ErrStockUpdate, errors.New("deadlock detected"))
	reader := newChanReader(
		message(t, 1, domain.StockAdjustment{ProductID: "p_ok", Quantity: 2, OrderNumber: "ORD-1", Attempt: 1}),
		message(t, 2, domain.StockAdjustment{ProductID: "p_stuck", Quantity: 1, OrderNumber: "ORD-2", Attempt: 2}),
		message(t, 3, domain.StockAdjustment{ProductID: "p_stuck", Quantity: 1, OrderNumber: "ORD-3", Attempt: 3}),
		kafka.Message{Offset: 4, Value: []byte("not json")},
	)
	stock := &fakeStock{err: map[string]error{"p_stuck": stuck}}
	retry := &fakeRetry{}
	w := newStockRetryWorker(reader, stock, retry, 3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	require.Eventually(t, func() bool { return reader.commitCount() == 4 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
	w.Close()

	assert.Equal(t, []string{"p_ok", "p_stuck", "p_stuck"}, stock.calls)
	assert.Equal(t, []domain.StockAdjustment{
		{ProductID: "p_stuck", Quantity: 1, OrderNumber: "ORD-2", Attempt: 3},
	}, retry.adjs)
	assert.True(t, reader.closed)
}

// brokenReader fails every fetch, like a reader whose brokers are gone.
type brokenReader struct {
	fetches atomic.Int32
}

func (r *brokenReader) FetchMessage(context.Context) (kafka.Message, error) {
	r.fetches.Add(1)
	return kafka.Message{}, errors.New("dial tcp 10.0.0.7:9092: connection refused")
}

func (r *brokenReader) CommitMessages(context.Context, ...kafka.Message) error { return nil }

func (r *brokenReader) Close() error { return nil }

func TestStockRetryWorker_BacksOffOnFetchErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	reader := &brokenReader{}
	w := newStockRetryWorker(reader, &fakeStock{}, &fakeRetry{}, 3)
	w.fetchBackoff = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 175*time.Millisecond)
	defer cancel()
	w.Run(ctx)

	assert.GreaterOrEqual(t, reader.fetches.Load(), int32(2))
	assert.LessOrEqual(t, reader.fetches.Load(), int32(5))
}
