package sqlite

import (
	"context"

	"feedback-bot/internal/storage"
)

type Factory struct{}

func (f *Factory) Create(ctx context.Context, config storage.Config) (storage.FeedbackStore, error) {
	sqliteConfig := DefaultConfig()
	sqliteConfig.DatabasePath = config.Path
	return NewStore(ctx, sqliteConfig)
}

func (f *Factory) GetType() string {
	return "sqlite"
}

func init() {
	storage.Register("sqlite", &Factory{})
}
