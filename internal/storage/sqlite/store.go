// Package sqlite implements storage.FeedbackStore on an embedded SQLite
// database. It suits single-instance deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"feedback-bot/internal/common/errors"
	"feedback-bot/internal/storage"
)

type Store struct {
	db     *sql.DB
	config *Config
}

var _ storage.FeedbackStore = (*Store)(nil)

func NewStore(ctx context.Context, config *Config) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("invalid SQLite config: %v", err))
	}

	db, err := sql.Open("sqlite3", config.GetConnectionString())
	if err != nil {
		return nil, errors.InternalError("failed to open database", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY between our own goroutines
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.InternalError("failed to ping database", err)
	}

	store := &Store{
		db:     db,
		config: config,
	}

	if err := store.migrate(ctx); err != nil {
		db.Close()
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
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS feedback (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL REFERENCES "user"(id),
			conversation_name TEXT NOT NULL,
			report_id TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS feedback_entry (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			feedback_id TEXT NOT NULL REFERENCES feedback(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL REFERENCES "user"(id),
			rating INTEGER NOT NULL,
			comment TEXT,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (feedback_id, user_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_owner ON feedback(owner_id)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// inTx runs fn in a transaction, rolling back when fn fails
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.InternalError("failed to begin transaction", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.InternalError("failed to commit transaction", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func createUser(ctx context.Context, db execer, id, name string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO "user" (id, name) VALUES (?, ?) ON CONFLICT (id) DO NOTHING`, id, name)
	if err != nil {
		return errors.InternalError("failed to create user", err)
	}
	return nil
}

func createFeedbackCard(ctx context.Context, db execer, ownerID, cardID, conversationName string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO feedback (id, owner_id, conversation_name) VALUES (?, ?, ?)`,
		cardID, ownerID, conversationName)
	switch {
	case err == nil:
		return nil
	case isConstraint(err, sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintUnique):
		return errors.ConflictError(fmt.Sprintf("feedback card %s already exists", cardID))
	case isConstraint(err, sqlite3.ErrConstraintForeignKey):
		return errors.NotFoundError(fmt.Sprintf("user %s", ownerID))
	default:
		return errors.InternalError("failed to create feedback card", err)
	}
}

func (s *Store) CreateUser(ctx context.Context, id, name string) error {
	return createUser(ctx, s.db, id, name)
}

func (s *Store) CreateFeedbackCard(ctx context.Context, ownerID, cardID, conversationName string) error {
	return createFeedbackCard(ctx, s.db, ownerID, cardID, conversationName)
}

func (s *Store) RegisterFeedbackCard(ctx context.Context, ownerID, ownerName, cardID, conversationName string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := createUser(ctx, tx, ownerID, ownerName); err != nil {
			return err
		}
		return createFeedbackCard(ctx, tx, ownerID, cardID, conversationName)
	})
}

func (s *Store) GetFeedbackMetadata(ctx context.Context, cardID string) (*storage.FeedbackMetadata, error) {
	var (
		meta           storage.FeedbackMetadata
		reportID       sql.NullString
		conversationID sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT f.id, f.owner_id, f.conversation_name, f.report_id, u.conversation_id
		FROM feedback f
		JOIN "user" u ON u.id = f.owner_id
		WHERE f.id = ?`, cardID).
		Scan(&meta.CardID, &meta.OwnerID, &meta.ConversationName, &reportID, &conversationID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFoundError(fmt.Sprintf("feedback card %s", cardID))
	}
	if err != nil {
		return nil, errors.InternalError("failed to get feedback metadata", err)
	}

	meta.ReportID = nullString(reportID)
	meta.ConversationID = nullString(conversationID)
	return &meta, nil
}

func (s *Store) GetUserConversation(ctx context.Context, userID string) (string, bool, error) {
	var conversationID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT conversation_id FROM "user" WHERE id = ?`, userID).Scan(&conversationID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return "", false, errors.NotFoundError(fmt.Sprintf("user %s", userID))
	}
	if err != nil {
		return "", false, errors.InternalError("failed to get user conversation", err)
	}
	return conversationID.String, conversationID.Valid, nil
}

func (s *Store) UpsertEntry(ctx context.Context, cardID, userID string, rating int, comment *string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback_entry (feedback_id, user_id, rating, comment)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (feedback_id, user_id) DO UPDATE SET
			rating = excluded.rating,
			comment = excluded.comment,
			updated_at = CURRENT_TIMESTAMP`,
		cardID, userID, rating, comment)
	switch {
	case err == nil:
		return nil
	case isConstraint(err, sqlite3.ErrConstraintForeignKey):
		return errors.NotFoundError(fmt.Sprintf("feedback card %s or user %s", cardID, userID))
	default:
		return errors.InternalError("failed to upsert feedback entry", err)
	}
}

func (s *Store) ListEntries(ctx context.Context, cardID string) ([]storage.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.feedback_id, e.user_id, e.rating, e.comment, f.conversation_name
		FROM feedback_entry e
		JOIN feedback f ON f.id = e.feedback_id
		WHERE e.feedback_id = ?
		ORDER BY e.seq`, cardID)
	if err != nil {
		return nil, errors.InternalError("failed to list feedback entries", err)
	}
	defer rows.Close()

	var entries []storage.Entry
	for rows.Next() {
		var (
			entry   storage.Entry
			comment sql.NullString
		)
		if err := rows.Scan(&entry.CardID, &entry.UserID, &entry.Rating, &comment, &entry.ConversationName); err != nil {
			return nil, errors.InternalError("failed to scan feedback entry", err)
		}
		entry.Comment = nullString(comment)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.InternalError("failed to list feedback entries", err)
	}
	return entries, nil
}

func (s *Store) SetReportID(ctx context.Context, cardID, reportID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE feedback SET report_id = ? WHERE id = ? AND report_id IS NULL`, reportID, cardID)
		if err != nil {
			return errors.InternalError("failed to set report id", err)
		}
		if affected, err := result.RowsAffected(); err == nil && affected == 1 {
			return nil
		}

		var current sql.NullString
		err = tx.QueryRowContext(ctx, `SELECT report_id FROM feedback WHERE id = ?`, cardID).Scan(&current)
		if stderrors.Is(err, sql.ErrNoRows) {
			return errors.NotFoundError(fmt.Sprintf("feedback card %s", cardID))
		}
		if err != nil {
			return errors.InternalError("failed to read report id", err)
		}
		return reportIDConflict(cardID, current.String, reportID)
	})
}

func (s *Store) SetUserConversation(ctx context.Context, userID, conversationID string) (string, error) {
	var stored sql.NullString
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE "user" SET conversation_id = ? WHERE id = ? AND conversation_id IS NULL`,
			conversationID, userID); err != nil {
			return errors.InternalError("failed to set user conversation", err)
		}

		err := tx.QueryRowContext(ctx, `SELECT conversation_id FROM "user" WHERE id = ?`, userID).Scan(&stored)
		if stderrors.Is(err, sql.ErrNoRows) {
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
	return stored.String, nil
}

// reportIDConflict classifies a report id write that matched no unset row
func reportIDConflict(cardID, current, requested string) error {
	if current == requested {
		return nil
	}
	return errors.ConflictError(fmt.Sprintf("feedback card %s already has report %s", cardID, current)).
		WithContext("report_id", current)
}

func isConstraint(err error, codes ...sqlite3.ErrNoExtended) bool {
	var sqliteErr sqlite3.Error
	if !stderrors.As(err, &sqliteErr) {
		return false
	}
	for _, code := range codes {
		if sqliteErr.ExtendedCode == code {
			return true
		}
	}
	return false
}

func nullString(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	return &value.String
}
