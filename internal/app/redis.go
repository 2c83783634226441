package app

import (
	"context"

	"feedback-bot/internal/common/logging"
	"feedback-bot/internal/locks"
	"feedback-bot/internal/ratelimit"
	"feedback-bot/internal/redis"
)

func (app *App) initializeRedis(ctx context.Context) error {
	if !app.Config.RedisEnabled() {
		app.Logger.Info("Redis: Not configured (report locks are per instance)")
		return nil
	}

	redisClient, err := redis.NewClient(ctx, &redis.Config{
		Address:  app.Config.RedisAddress,
		Password: app.Config.RedisPassword,
		DB:       app.Config.RedisDB,
		PoolSize: app.Config.RedisPoolSize,
	})
	if err != nil {
		return err
	}

	app.RedisClient = redisClient
	app.Logger.Info("Redis: Connected", logging.String("address", redisClient.Address()))
	return nil
}

func (app *App) initializeLocker() error {
	locker, err := locks.NewLocker(app.RedisClient, logging.GetGlobalLogger())
	if err != nil {
		return err
	}
	app.Locker = locker

	if app.RedisClient != nil {
		app.Logger.Info("Distributed Locks: Enabled")
	}
	return nil
}

func (app *App) initializeRateLimit() error {
	if !app.Config.RateLimitEnabled {
		return nil
	}

	limiter, err := ratelimit.New(ratelimit.Config{
		Enabled:           true,
		RequestsPerSecond: app.Config.RateLimitRPS,
		BurstSize:         app.Config.RateLimitBurst,
	}, app.RedisClient)
	if err != nil {
		return err
	}
	app.Limiter = limiter

	app.Logger.Info("Rate Limiting: Enabled",
		logging.Int("requests_per_second", app.Config.RateLimitRPS),
		logging.Bool("distributed", app.RedisClient != nil))
	return nil
}
