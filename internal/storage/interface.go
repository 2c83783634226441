// Package storage persists feedback cards, rating entries and the users they
// belong to.
//
// Backends live in subpackages (sqlite, postgres) and register themselves
// with the default registry from init. Import the backend for its side
// effect and open a store through NewStore:
//
//	import _ "feedback-bot/internal/storage/sqlite"
//
//	store, err := storage.NewStore(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
// Every operation is atomic. Operations spanning several statements run in a
// single transaction. Constraint violations surface as typed errors from the
// common errors package: a duplicate key is a ConflictError and a dangling
// reference is a NotFoundError.
package storage

import "context"

// User is a chat participant known to the bot
type User struct {
	ID             string
	Name           string
	ConversationID *string
}

// FeedbackMetadata is what the aggregator needs to route a card's report
type FeedbackMetadata struct {
	CardID  string
	OwnerID string
	// ConversationID is the owner's private conversation with the bot, if one was created
	ConversationID *string
	// ReportID is the report message id, set once on first send
	ReportID         *string
	ConversationName string
}

// Entry is one user's rating for a card
type Entry struct {
	CardID           string
	UserID           string
	Rating           int
	Comment          *string
	ConversationName string
}

// FeedbackStore is the persistence contract for cards, entries and users
type FeedbackStore interface {
	// CreateUser inserts a user unless one with the same id exists.
	CreateUser(ctx context.Context, id, name string) error

	// CreateFeedbackCard records a sent rating card. A duplicate card id is a
	// conflict and an unknown owner is not found.
	CreateFeedbackCard(ctx context.Context, ownerID, cardID, conversationName string) error

	// RegisterFeedbackCard creates the owner if needed and records the card in
	// one transaction.
	RegisterFeedbackCard(ctx context.Context, ownerID, ownerName, cardID, conversationName string) error

	GetFeedbackMetadata(ctx context.Context, cardID string) (*FeedbackMetadata, error)

	// GetUserConversation returns the user's stored private conversation id.
	// ok is false when the user exists without one.
	GetUserConversation(ctx context.Context, userID string) (conversationID string, ok bool, err error)

	// UpsertEntry inserts or overwrites the (card, user) entry.
	UpsertEntry(ctx context.Context, cardID, userID string, rating int, comment *string) error

	// ListEntries returns the card's entries in first submission order.
	ListEntries(ctx context.Context, cardID string) ([]Entry, error)

	// SetReportID records the card's report message id. Setting the id that is
	// already stored is a no-op; replacing a different one is a conflict.
	SetReportID(ctx context.Context, cardID, reportID string) error

	// SetUserConversation stores conversationID unless the user already has
	// one, and returns whichever id is stored afterwards.
	SetUserConversation(ctx context.Context, userID, conversationID string) (string, error)

	Ping(ctx context.Context) error
	Close() error
}
