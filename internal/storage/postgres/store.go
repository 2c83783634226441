// Package postgres implements storage.FeedbackStore on PostgreSQL through a
// pgx connection pool, for deployments running several bot instances.
package postgres

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"feedback-bot/internal/common/errors"
	"feedback-bot/internal/storage"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type Store struct {
	pool   *pgxpool.Pool
	config *Config
}

var _ storage.FeedbackStore = (*Store)(nil)

func NewStore(ctx context.Context, config *Config) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("invalid PostgreSQL config: %v", err))
	}

	poolConfig, err := pgxpool.ParseConfig(config.GetConnectionString())
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("invalid PostgreSQL URL: %v", err))
	}
	poolConfig.MaxConns = int32(config.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.InternalError("failed to open database", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.InternalError("failed to ping database", err)
	}

	store := &Store{
		pool:   pool,
		config: config,
	}

	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, errors.InternalError("failed to migrate database", err)
	}

	return store, nil
}

func (s *Store) migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS "user" (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			conversation_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS feedback (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL REFERENCES "user"(id),
			conversation_name TEXT NOT NULL,
			report_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS feedback_entry (
			seq BIGSERIAL PRIMARY KEY,
			feedback_id TEXT NOT NULL REFERENCES feedback(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL REFERENCES "user"(id),
			rating INTEGER NOT NULL,
			comment TEXT,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (feedback_id, user_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_owner ON feedback(owner_id)`,
	}

	for _, query := range queries {
		if _, err := s.pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// querier is satisfied by both the pool and a transaction
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.InternalError("failed to begin transaction", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.InternalError("failed to commit transaction", err)
	}
	return nil
}

func createUser(ctx context.Context, q querier, id, name string) error {
	_, err := q.Exec(ctx,
		`INSERT INTO "user" (id, name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`, id, name)
	if err != nil {
		return errors.InternalError("failed to create user", err)
	}
	return nil
}

func createFeedbackCard(ctx context.Context, q querier, ownerID, cardID, conversationName string) error {
	_, err := q.Exec(ctx,
		`INSERT INTO feedback (id, owner_id, conversation_name) VALUES ($1, $2, $3)`,
		cardID, ownerID, conversationName)
	if err == nil {
		return nil
	}
	switch pgCode(err) {
	case uniqueViolation:
		return errors.ConflictError(fmt.Sprintf("feedback card %s already exists", cardID))
	case foreignKeyViolation:
		return errors.NotFoundError(fmt.Sprintf("user %s", ownerID))
	default:
		return errors.InternalError("failed to create feedback card", err)
	}
}

func (s *Store) CreateUser(ctx context.Context, id, name string) error {
	return createUser(ctx, s.pool, id, name)
}

func (s *Store) CreateFeedbackCard(ctx context.Context, ownerID, cardID, conversationName string) error {
	return createFeedbackCard(ctx, s.pool, ownerID, cardID, conversationName)
}

func (s *Store) RegisterFeedbackCard(ctx context.Context, ownerID, ownerName, cardID, conversationName string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := createUser(ctx, tx, ownerID, ownerName); err != nil {
			return err
		}
		return createFeedbackCard(ctx, tx, ownerID, cardID, conversationName)
	})
}

func (s *Store) GetFeedbackMetadata(ctx context.Context, cardID string) (*storage.FeedbackMetadata, error) {
	var meta storage.FeedbackMetadata
	err := s.pool.QueryRow(ctx, `
		SELECT f.id, f.owner_id, f.conversation_name, f.report_id, u.conversation_id
		FROM feedback f
		JOIN "user" u ON u.id = f.owner_id
		WHERE f.id = $1`, cardID).
		Scan(&meta.CardID, &meta.OwnerID, &meta.ConversationName, &meta.ReportID, &meta.ConversationID)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFoundError(fmt.Sprintf("feedback card %s", cardID))
	}
	if err != nil {
		return nil, errors.InternalError("failed to get feedback metadata", err)
	}
	return &meta, nil
}

func (s *Store) GetUserConversation(ctx context.Context, userID string) (string, bool, error) {
	var conversationID *string
	err := s.pool.QueryRow(ctx,
		`SELECT conversation_id FROM "user" WHERE id = $1`, userID).Scan(&conversationID)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return "", false, errors.NotFoundError(fmt.Sprintf("user %s", userID))
	}
	if err != nil {
		return "", false, errors.InternalError("failed to get user conversation", err)
	}
	if conversationID == nil {
		return "", false, nil
	}
	return *conversationID, true, nil
}

func (s *Store) UpsertEntry(ctx context.Context, cardID, userID string, rating int, comment *string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO feedback_entry (feedback_id, user_id, rating, comment)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (feedback_id, user_id) DO UPDATE SET
			rating = EXCLUDED.rating,
			comment = EXCLUDED.comment,
			updated_at = NOW()`,
		cardID, userID, rating, comment)
	if err == nil {
		return nil
	}
	if pgCode(err) == foreignKeyViolation {
		return errors.NotFoundError(fmt.Sprintf("feedback card %s or user %s", cardID, userID))
	}
	return errors.InternalError("failed to upsert feedback entry", err)
}

func (s *Store) ListEntries(ctx context.Context, cardID string) ([]storage.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT e.feedback_id, e.user_id, e.rating, e.comment, f.conversation_name
		FROM feedback_entry e
		JOIN feedback f ON f.id = e.feedback_id
		WHERE e.feedback_id = $1
		ORDER BY e.seq`, cardID)
	if err != nil {
		return nil, errors.InternalError("failed to list feedback entries", err)
	}
	defer rows.Close()

	var entries []storage.Entry
	for rows.Next() {
		var entry storage.Entry
		if err := rows.Scan(&entry.CardID, &entry.UserID, &entry.Rating, &entry.Comment, &entry.ConversationName); err != nil {
			return nil, errors.InternalError("failed to scan feedback entry", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.InternalError("failed to list feedback entries", err)
	}
	return entries, nil
}

func (s *Store) SetReportID(ctx context.Context, cardID, reportID string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE feedback SET report_id = $1 WHERE id = $2 AND report_id IS NULL`, reportID, cardID)
		if err != nil {
			return errors.InternalError("failed to set report id", err)
		}
		if tag.RowsAffected() == 1 {
			return nil
		}

		var current *string
		err = tx.QueryRow(ctx, `SELECT report_id FROM feedback WHERE id = $1 FOR UPDATE`, cardID).Scan(&current)
		if stderrors.Is(err, pgx.ErrNoRows) {
			return errors.NotFoundError(fmt.Sprintf("feedback card %s", cardID))
		}
		if err != nil {
			return errors.InternalError("failed to read report id", err)
		}
		if current != nil && *current == reportID {
			return nil
		}
		stored := ""
		if current != nil {
			stored = *current
		}
		return errors.ConflictError(fmt.Sprintf("feedback card %s already has report %s", cardID, stored)).
			WithContext("report_id", stored)
	})
}

func (s *Store) SetUserConversation(ctx context.Context, userID, conversationID string) (string, error) {
	var stored *string
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE "user" SET conversation_id = $1 WHERE id = $2 AND conversation_id IS NULL`,
			conversationID, userID); err != nil {
			return errors.InternalError("failed to set user conversation", err)
		}

		err := tx.QueryRow(ctx, `SELECT conversation_id FROM "user" WHERE id = $1`, userID).Scan(&stored)
		if stderrors.Is(err, pgx.ErrNoRows) {
			return errors.NotFoundError(fmt.Sprintf("user %s", userID))
		}
		if err != nil {
			return errors.InternalError("failed to read user conversation", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if stored == nil {
		return "", errors.InternalError("user conversation was not stored", nil)
	}
	return *stored, nil
}

// pgCode returns the SQLSTATE of a PostgreSQL error, or "" for anything else
func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
