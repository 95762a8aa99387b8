package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Release must compare the holder token before deleting, otherwise a holder
// whose TTL lapsed could drop a lock a later delivery re-acquired.
const deliveryReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// DeliveryLock serializes webhook deliveries per key. Acquire hands out a
// holder token with a TTL so a crashed handler cannot wedge the org forever.
type DeliveryLock struct {
	client  *redis.Client
	release *redis.Script
}

func NewDeliveryLock(client *redis.Client) *DeliveryLock {
	if client == nil {
		return nil
	}
	return &DeliveryLock{
		client:  client,
		release: redis.NewScript(deliveryReleaseScript),
	}
}

// Acquire takes the lock if it is free. The returned token identifies this
// holder and is required to release.
func (l *DeliveryLock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("delivery lock client not configured")
	}
	if key == "" {
		return "", false, errors.New("delivery lock key is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("delivery lock ttl must be positive")
	}

	token := uuid.NewString()
	acquired, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, acquired, nil
}

// Release drops the lock if the token still owns it. Releasing a lock that
// expired or changed hands is a no-op.
func (l *DeliveryLock) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return l.release.Run(ctx, l.client, []string{key}, token).Err()
}
