package feedback

import (
	"context"

	"feedback-bot/internal/common/errors"
	"feedback-bot/internal/common/logging"
	"feedback-bot/internal/storage"
	"feedback-bot/internal/teams"
)

// ConversationCreator starts conversations on the chat platform
type ConversationCreator interface {
	CreateConversation(ctx context.Context, serviceURL string, params teams.ConversationParameters) (*teams.ConversationResourceResponse, error)
}

// ConversationTarget identifies whose private conversation to resolve and
// how to reach the platform.
type ConversationTarget struct {
	ServiceURL string
	OwnerID    string
	TenantID   string
	Bot        teams.ChannelAccount
}

// ConversationResolver returns a user's private conversation with the bot,
// creating and persisting it on first use.
type ConversationResolver struct {
	store   storage.FeedbackStore
	creator ConversationCreator
	logger  logging.Logger
}

func NewConversationResolver(store storage.FeedbackStore, creator ConversationCreator, logger logging.Logger) *ConversationResolver {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &ConversationResolver{
		store:   store,
		creator: creator,
		logger:  logger.WithFields(logging.String("component", "conversation_resolver")),
	}
}

// Resolve returns the owner's stored conversation id or creates one. When
// two callers race on an owner with no conversation, the first stored id
// wins and the other created conversation is logged and abandoned.
func (r *ConversationResolver) Resolve(ctx context.Context, target ConversationTarget) (string, error) {
	conversationID, ok, err := r.store.GetUserConversation(ctx, target.OwnerID)
	if err != nil {
		return "", err
	}
	if ok {
		return conversationID, nil
	}

	created, err := r.creator.CreateConversation(ctx, target.ServiceURL, teams.ConversationParameters{
		Bot:      target.Bot,
		IsGroup:  false,
		Members:  []teams.ChannelAccount{{ID: target.OwnerID}},
		TenantID: target.TenantID,
	})
	if err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", errors.MissingValueError("conversation id")
	}

	stored, err := r.store.SetUserConversation(ctx, target.OwnerID, created.ID)
	if err != nil {
		return "", err
	}

	logger := r.logger.WithContext(ctx).WithFields(logging.String("user_id", target.OwnerID))
	if stored != created.ID {
		logger.Warn("Discarded duplicate private conversation",
			logging.String("conversation_id", stored),
			logging.String("discarded_conversation_id", created.ID))
	} else {
		logger.Info("Created private conversation", logging.String("conversation_id", stored))
	}
	return stored, nil
}
