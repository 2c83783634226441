// Package app wires the feedback bot together from its configuration.
package app

import (
	"context"
	"net/http"

	"feedback-bot/internal/auth"
	"feedback-bot/internal/common/logging"
	"feedback-bot/internal/config"
	"feedback-bot/internal/feedback"
	"feedback-bot/internal/locks"
	"feedback-bot/internal/ratelimit"
	"feedback-bot/internal/redis"
	"feedback-bot/internal/storage"
	"feedback-bot/internal/teams"
)

// App holds all the application dependencies
type App struct {
	Config        *config.Config
	Store         storage.FeedbackStore
	RedisClient   *redis.Client
	Locker        locks.Locker
	Limiter       ratelimit.Limiter
	Client        *teams.Client
	Graph         *teams.GraphClient
	Chats         *teams.CachedChats
	Aggregator    *feedback.Aggregator
	Authenticator *auth.BotAuthenticator
	Logger        logging.Logger

	httpClient *http.Client
}

// New creates a new application instance with all dependencies
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logging.GetGlobalLogger().WithFields(logging.String("component", "app")),
	}

	if err := app.initializeStorage(ctx); err != nil {
		return nil, err
	}

	if err := app.initializeRedis(ctx); err != nil {
		// Redis is optional, just log the error
		app.Logger.Warn("Redis initialization failed, continuing with in-process locks",
			logging.Err(err))
	}
	if err := app.initializeLocker(); err != nil {
		app.Close()
		return nil, err
	}

	if err := app.initializeRateLimit(); err != nil {
		app.Close()
		return nil, err
	}

	if err := app.initializeTeams(); err != nil {
		app.Close()
		return nil, err
	}

	if err := app.initializeAuth(); err != nil {
		app.Close()
		return nil, err
	}

	app.Aggregator = feedback.NewAggregator(app.Store, app.Client,
		feedback.WithLocker(app.Locker),
		feedback.WithLockTTL(cfg.ReportLockTTL),
		feedback.WithChatDirectory(app.Chats),
		feedback.WithLogger(logging.GetGlobalLogger()),
	)

	return app, nil
}

// Close releases all resources
func (app *App) Close() {
	if app.Locker != nil {
		if err := app.Locker.Close(); err != nil {
			app.Logger.Warn("Error releasing locks", logging.Err(err))
		}
	}
	if app.RedisClient != nil {
		app.RedisClient.Close()
	}
	if app.Store != nil {
		app.Store.Close()
	}
}
