package postgres

import (
	"context"

	"feedback-bot/internal/storage"
)

type Factory struct{}

func (f *Factory) Create(ctx context.Context, config storage.Config) (storage.FeedbackStore, error) {
	return NewStore(ctx, &Config{URL: config.URL, MaxConns: config.MaxConns})
}

func (f *Factory) GetType() string {
	return "postgres"
}

func init() {
	storage.Register("postgres", &Factory{})
}
