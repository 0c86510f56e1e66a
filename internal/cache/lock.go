package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// DeliveryLock serialises work on one checkout session across replicas.
type DeliveryLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDeliveryLock(client *redis.Client, ttl time.Duration) *DeliveryLock {
	return &DeliveryLock{client: client, ttl: ttl}
}

// Claim takes the lock for sessionID. It returns a release func when the lock
// was acquired and ok=false when another holder has it.
func (l *DeliveryLock) Claim(ctx context.Context, sessionID string) (release func(context.Context), ok bool, err error) {
	key := lockKey(sessionID)
	token := uuid.NewString()

	ok, err = l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx failed: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func(ctx context.Context) {
		_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}
	return release, true, nil
}

func lockKey(sessionID string) string {
	return fmt.Sprintf("webhook:session:%s", sessionID)
}
