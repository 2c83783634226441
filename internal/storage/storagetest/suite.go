// Package storagetest holds the behaviour every storage.FeedbackStore must
// share. Backend packages run it from their own tests.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"feedback-bot/internal/common/errors"
	"feedback-bot/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store; it is called once per subtest
type Factory func(t *testing.T) storage.FeedbackStore

func strPtr(s string) *string { return &s }

// Run exercises the FeedbackStore contract against stores built by newStore
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("CreateUserIsIdempotent", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.CreateUser(ctx, "u1", "Ada"))
		require.NoError(t, store.CreateUser(ctx, "u1", "Someone else"))

		_, ok, err := store.GetUserConversation(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("CreateFeedbackCard", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.CreateUser(ctx, "owner", "Owner"))
		require.NoError(t, store.CreateFeedbackCard(ctx, "owner", "card-1", "Weekly sync"))

		err := store.CreateFeedbackCard(ctx, "owner", "card-1", "Weekly sync")
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeConflict), "got %v", err)

		err = store.CreateFeedbackCard(ctx, "nobody", "card-2", "Other")
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeNotFound), "got %v", err)
	})

	t.Run("RegisterFeedbackCard", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.RegisterFeedbackCard(ctx, "owner", "Owner", "card-1", "Standup"))

		meta, err := store.GetFeedbackMetadata(ctx, "card-1")
		require.NoError(t, err)
		assert.Equal(t, "card-1", meta.CardID)
		assert.Equal(t, "owner", meta.OwnerID)
		assert.Equal(t, "Standup", meta.ConversationName)
		assert.Nil(t, meta.ReportID)
		assert.Nil(t, meta.ConversationID)

		// existing owner is reused, duplicate card rolls back as a whole
		require.NoError(t, store.RegisterFeedbackCard(ctx, "owner", "Owner", "card-2", "Standup"))
		err = store.RegisterFeedbackCard(ctx, "owner-2", "Second", "card-1", "Standup")
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeConflict))

		_, _, err = store.GetUserConversation(ctx, "owner-2")
		assert.True(t, errors.IsType(err, errors.ErrTypeNotFound), "owner-2 should have been rolled back, got %v", err)
	})

	t.Run("GetFeedbackMetadataUnknownCard", func(t *testing.T) {
		store := newStore(t)
		_, err := store.GetFeedbackMetadata(ctx, "missing")
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
	})

	t.Run("MetadataCarriesOwnerConversation", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.RegisterFeedbackCard(ctx, "owner", "Owner", "card-1", "Standup"))
		_, err := store.SetUserConversation(ctx, "owner", "conv-1")
		require.NoError(t, err)

		meta, err := store.GetFeedbackMetadata(ctx, "card-1")
		require.NoError(t, err)
		require.NotNil(t, meta.ConversationID)
		assert.Equal(t, "conv-1", *meta.ConversationID)
	})

	t.Run("UpsertEntryLastWriteWins", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.RegisterFeedbackCard(ctx, "owner", "Owner", "card-1", "Standup"))
		require.NoError(t, store.CreateUser(ctx, "u1", "One"))
		require.NoError(t, store.CreateUser(ctx, "u2", "Two"))

		require.NoError(t, store.UpsertEntry(ctx, "card-1", "u1", 2, strPtr("first")))
		require.NoError(t, store.UpsertEntry(ctx, "card-1", "u2", 5, nil))
		require.NoError(t, store.UpsertEntry(ctx, "card-1", "u1", 4, nil))
		require.NoError(t, store.UpsertEntry(ctx, "card-1", "u1", 3, strPtr("final")))

		entries, err := store.ListEntries(ctx, "card-1")
		require.NoError(t, err)
		require.Len(t, entries, 2)

		assert.Equal(t, "u1", entries[0].UserID)
		assert.Equal(t, 3, entries[0].Rating)
		require.NotNil(t, entries[0].Comment)
		assert.Equal(t, "final", *entries[0].Comment)
		assert.Equal(t, "Standup", entries[0].ConversationName)

		assert.Equal(t, "u2", entries[1].UserID)
		assert.Equal(t, 5, entries[1].Rating)
		assert.Nil(t, entries[1].Comment)
	})

	t.Run("UpsertEntryDanglingReferences", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.RegisterFeedbackCard(ctx, "owner", "Owner", "card-1", "Standup"))

		err := store.UpsertEntry(ctx, "missing", "owner", 3, nil)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))

		err = store.UpsertEntry(ctx, "card-1", "ghost", 3, nil)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
	})

	t.Run("ListEntriesUnknownCard", func(t *testing.T) {
		store := newStore(t)
		entries, err := store.ListEntries(ctx, "missing")
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("ConcurrentUpsertsCommute", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.RegisterFeedbackCard(ctx, "owner", "Owner", "card-1", "Standup"))

		const users = 10
		for i := 0; i < users; i++ {
			require.NoError(t, store.CreateUser(ctx, fmt.Sprintf("u%d", i), "User"))
		}

		var wg sync.WaitGroup
		errs := make(chan error, users*2)
		for i := 0; i < users; i++ {
			for round := 0; round < 2; round++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					errs <- store.UpsertEntry(ctx, "card-1", fmt.Sprintf("u%d", i), 1+i%5, nil)
				}(i)
			}
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		entries, err := store.ListEntries(ctx, "card-1")
		require.NoError(t, err)
		assert.Len(t, entries, users)
	})

	t.Run("SetReportID", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.RegisterFeedbackCard(ctx, "owner", "Owner", "card-1", "Standup"))

		require.NoError(t, store.SetReportID(ctx, "card-1", "report-1"))
		require.NoError(t, store.SetReportID(ctx, "card-1", "report-1"))

		err := store.SetReportID(ctx, "card-1", "report-2")
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeConflict))

		meta, err := store.GetFeedbackMetadata(ctx, "card-1")
		require.NoError(t, err)
		require.NotNil(t, meta.ReportID)
		assert.Equal(t, "report-1", *meta.ReportID)

		err = store.SetReportID(ctx, "missing", "report-1")
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
	})

	t.Run("SetUserConversationFirstWriterWins", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.CreateUser(ctx, "u1", "One"))

		stored, err := store.SetUserConversation(ctx, "u1", "conv-a")
		require.NoError(t, err)
		assert.Equal(t, "conv-a", stored)

		stored, err = store.SetUserConversation(ctx, "u1", "conv-b")
		require.NoError(t, err)
		assert.Equal(t, "conv-a", stored)

		conversationID, ok, err := store.GetUserConversation(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "conv-a", conversationID)

		_, err = store.SetUserConversation(ctx, "ghost", "conv-c")
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
	})

	t.Run("Ping", func(t *testing.T) {
		store := newStore(t)
		assert.NoError(t, store.Ping(ctx))
	})
}
