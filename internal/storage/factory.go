package storage

import (
	"context"
	"fmt"

	"feedback-bot/internal/common/errors"
	"feedback-bot/internal/config"
)

// Config holds the backend-neutral connection settings handed to a Factory
type Config struct {
	Type     string
	Path     string
	URL      string
	MaxConns int
}

// ConfigFrom extracts the storage settings from the application config
func ConfigFrom(cfg *config.Config) Config {
	storageType := cfg.DatabaseType
	if storageType == "postgresql" {
		storageType = "postgres"
	}
	return Config{
		Type:     storageType,
		Path:     cfg.DatabasePath,
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DatabaseMaxConns,
	}
}

// NewStore opens the store selected by cfg.DatabaseType. The backend package
// must have been imported so that it is registered.
func NewStore(ctx context.Context, cfg *config.Config) (FeedbackStore, error) {
	storeConfig := ConfigFrom(cfg)
	if !DefaultRegistry.IsRegistered(storeConfig.Type) {
		return nil, errors.ConfigError(fmt.Sprintf("unsupported database type: %s", cfg.DatabaseType))
	}
	return Create(ctx, storeConfig.Type, storeConfig)
}
