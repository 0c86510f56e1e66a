package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"quickcart/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// StockPublisher hands failed stock decrements to the retry topic.
type StockPublisher struct {
	writer messageWriter
}

func NewStockPublisher(topic string, brokers ...string) *StockPublisher {
	return &StockPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}}
}

// Publish keys messages by product so retries for one product stay ordered.
func (p *StockPublisher) Publish(ctx context.Context, adj domain.StockAdjustment) error {
	value, err := json.Marshal(adj)
	if err != nil {
		return fmt.Errorf("marshal stock adjustment: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(adj.ProductID),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (p *StockPublisher) Close() error {
	return p.writer.Close()
}

// DecodeStockAdjustment parses a message written by Publish.
func DecodeStockAdjustment(m kafka.Message) (domain.StockAdjustment, error) {
	var adj domain.StockAdjustment
	if err := json.Unmarshal(m.Value, &adj); err != nil {
		return adj, fmt.Errorf("decode stock adjustment: %w", err)
	}
	if adj.ProductID == "" || adj.Quantity <= 0 {
		return adj, fmt.Errorf("decode stock adjustment: incomplete payload %q", string(m.Value))
	}
	return adj, nil
}
