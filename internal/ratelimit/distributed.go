package ratelimit

import (
	"context"
	"fmt"

	"feedback-bot/internal/common/errors"
	"feedback-bot/internal/redis"
)

// DistributedLimiter shares hit counts through Redis.
type DistributedLimiter struct {
	redis  *redis.Client
	config Config
}

func NewDistributedLimiter(client *redis.Client, config Config) (*DistributedLimiter, error) {
	if client == nil {
		return nil, errors.ConfigError("redis client is required for distributed rate limiting")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &DistributedLimiter{redis: client, config: config}, nil
}

func (l *DistributedLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if !l.config.Enabled {
		return true, nil
	}

	allowed, _, err := l.redis.CheckRateLimit(ctx, fmt.Sprintf("%s:%s", l.config.KeyPrefix, key),
		l.config.windowLimit(), l.config.Window)
	if err != nil {
		return false, errors.InternalError("failed to check rate limit", err)
	}
	return allowed, nil
}
