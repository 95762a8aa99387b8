package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hirelens/hirelens/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyGateCheckOrg   = "gate:check:org:%s"
	keyConversionLock = "billing:conversion:lock:%s"

	conversionLockTTL = 30 * time.Second
)

// GateLimiter throttles gate check calls per org. It sits in front of the
// database so a runaway client cannot turn the quota gate itself into a
// write amplifier. Disabled when no redis address is configured.
type GateLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *DeliveryLock

	rate  float64
	burst int
}

func NewGateLimiter(cfg config.Config) (*GateLimiter, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, nil
	}
	if cfg.GateRateLimitRate <= 0 || cfg.GateRateLimitBurst <= 0 {
		return nil, errors.New("gate rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
	})

	return &GateLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		locker:  NewDeliveryLock(client),
		rate:    cfg.GateRateLimitRate,
		burst:   cfg.GateRateLimitBurst,
	}, nil
}

func (l *GateLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// AllowCheck reports whether the org may issue another gate check right now.
func (l *GateLimiter) AllowCheck(ctx context.Context, orgID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyGateCheckOrg, strings.TrimSpace(orgID)), l.rate, l.burst)
}

// TryLockConversion serializes billing conversion deliveries for one org so
// redelivered webhooks do not interleave.
func (l *GateLimiter) TryLockConversion(ctx context.Context, orgID string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.Acquire(ctx, fmt.Sprintf(keyConversionLock, strings.TrimSpace(orgID)), conversionLockTTL)
}

func (l *GateLimiter) ReleaseConversion(ctx context.Context, orgID, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, fmt.Sprintf(keyConversionLock, strings.TrimSpace(orgID)), token)
}
