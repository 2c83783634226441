package locks

import (
	"feedback-bot/internal/common/logging"
	"feedback-bot/internal/redis"
)

// NewLocker picks the distributed manager when a Redis client is available
// and the in-process one otherwise.
func NewLocker(redisClient *redis.Client, logger logging.Logger) (Locker, error) {
	if redisClient == nil {
		return NewLocalManager(), nil
	}
	return NewRedsyncManager(redisClient, logger)
}

var (
	_ Locker = (*LocalManager)(nil)
	_ Locker = (*RedsyncManager)(nil)
)
