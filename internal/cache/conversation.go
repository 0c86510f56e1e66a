package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quickcart/internal/domain"
)

const maxConversationMessages = 20

// ConversationStore keeps assistant chat history per conversation id. Entries
// expire after ttl of inactivity.
type ConversationStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewConversationStore(client *redis.Client, ttl time.Duration) *ConversationStore {
	return &ConversationStore{client: client, ttl: ttl}
}

func (s *ConversationStore) Load(ctx context.Context, conversationID string) ([]domain.ChatMessage, error) {
	data, err := s.client.Get(ctx, conversationKey(conversationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var msgs []domain.ChatMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("unmarshal conversation failed: %w", err)
	}
	return msgs, nil
}

// Save stores the most recent messages and refreshes the expiry.
func (s *ConversationStore) Save(ctx context.Context, conversationID string, msgs []domain.ChatMessage) error {
	if len(msgs) > maxConversationMessages {
		msgs = msgs[len(msgs)-maxConversationMessages:]
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("marshal conversation failed: %w", err)
	}
	if err := s.client.Set(ctx, conversationKey(conversationID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func conversationKey(id string) string {
	return fmt.Sprintf("assistant:conversation:%s", id)
}
