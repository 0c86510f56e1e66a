package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"quickcart/internal/queue"
	"quickcart/internal/service"
)

const (
	DefaultMaxStockAttempts = 5
	defaultFetchBackoff     = time.Second
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// StockRetryWorker re-applies stock decrements that failed during order
// commit. A decrement that fails again is re-queued with its attempt count
// raised until maxAttempts is reached.
type StockRetryWorker struct {
	reader       messageReader
	stock        service.StockService
	retry        service.StockRetryQueue
	maxAttempts  int
	fetchBackoff time.Duration
}

func NewStockRetryWorker(
	stock service.StockService,
	retry service.StockRetryQueue,
	topic string,
	groupID string,
	brokers ...string,
) *StockRetryWorker {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
	return newStockRetryWorker(reader, stock, retry, DefaultMaxStockAttempts)
}

func newStockRetryWorker(reader messageReader, stock service.StockService, retry service.StockRetryQueue, maxAttempts int) *StockRetryWorker {
	return &StockRetryWorker{
		reader:       reader,
		stock:        stock,
		retry:        retry,
		maxAttempts:  maxAttempts,
		fetchBackoff: defaultFetchBackoff,
	}
}

func (w *StockRetryWorker) Run(ctx context.Context) {
	slog.Info("stock retry worker started", "max_attempts", w.maxAttempts)
	defer slog.Info("stock retry worker stopped")

	for {
		if ctx.Err() != nil {
			return
		}
		if err := w.processMessage(ctx); err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.fetchBackoff):
			}
		}
	}
}

func (w *StockRetryWorker) Close() {
	if err := w.reader.Close(); err != nil {
		slog.Error("error closing kafka reader", "error", err)
	}
}

// processMessage returns an error only when the fetch failed for a reason
// other than shutdown.
func (w *StockRetryWorker) processMessage(ctx context.Context) error {
	m, err := w.reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		slog.Error("error reading stock retry message", "error", err)
		return err
	}

	w.handle(ctx, m)

	if err := w.reader.CommitMessages(ctx, m); err != nil {
		slog.Error("error committing stock retry message", "offset", m.Offset, "error", err)
	}
	return nil
}

func (w *StockRetryWorker) handle(ctx context.Context, m kafka.Message) {
	adj, err := queue.DecodeStockAdjustment(m)
	if err != nil {
		slog.Error("dropping malformed stock retry message", "offset", m.Offset, "error", err)
		return
	}

	err = w.stock.DecrementStock(ctx, adj.ProductID, adj.Quantity)
	if err == nil {
		slog.Info("stock retry applied",
			"order_number", adj.OrderNumber,
			"product_id", adj.ProductID,
			"attempt", adj.Attempt)
		return
	}

	if adj.Attempt >= w.maxAttempts {
		slog.Error("stock retry abandoned",
			"order_number", adj.OrderNumber,
			"product_id", adj.ProductID,
			"quantity", adj.Quantity,
			"attempt", adj.Attempt,
			"error", err)
		return
	}

	adj.Attempt++
	if err := w.retry.Publish(ctx, adj); err != nil {
		slog.Error("stock retry requeue failed",
			"order_number", adj.OrderNumber,
			"product_id", adj.ProductID,
			"error", err)
	}
}
