package app

import (
	"context"

	"feedback-bot/internal/common/logging"
	"feedback-bot/internal/storage"

	// registered storage backends
	_ "feedback-bot/internal/storage/postgres"
	_ "feedback-bot/internal/storage/sqlite"
)

func (app *App) initializeStorage(ctx context.Context) error {
	storeConfig := storage.ConfigFrom(app.Config)
	switch storeConfig.Type {
	case "postgres":
		app.Logger.Info("Database: PostgreSQL", logging.Int("max_conns", storeConfig.MaxConns))
	default:
		app.Logger.Info("Database: SQLite", logging.String("path", storeConfig.Path))
	}

	store, err := storage.NewStore(ctx, app.Config)
	if err != nil {
		return err
	}
	app.Store = store
	return nil
}
