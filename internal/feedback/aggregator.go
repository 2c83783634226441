// Package feedback runs the life cycle of a feedback card: sending the
// rating card, recording each participant's entry and keeping the owner's
// report in step with the entries.
//
// A card moves from open (no report) to reported (report id recorded). The
// report is always rendered from every stored entry, so a failure between
// recording an entry and publishing the report heals on the next
// submission.
package feedback

import (
	"context"
	"time"

	"feedback-bot/internal/cards"
	"feedback-bot/internal/common/errors"
	"feedback-bot/internal/common/logging"
	"feedback-bot/internal/locks"
	"feedback-bot/internal/storage"
	"feedback-bot/internal/teams"
)

// FallbackName stands in for a missing user or chat name
const FallbackName = "Unknown"

// DefaultLockTTL bounds how long a crashed instance can hold a report lock
const DefaultLockTTL = 30 * time.Second

// ActivityClient is the part of the connector API the aggregator uses
type ActivityClient interface {
	ConversationCreator
	SendToConversation(ctx context.Context, serviceURL, conversationID string, activity *teams.Activity) (*teams.ResourceResponse, error)
	UpdateActivity(ctx context.Context, serviceURL, conversationID, activityID string, activity *teams.Activity) (*teams.ResourceResponse, error)
}

// ChatDirectory looks up chat metadata such as the topic
type ChatDirectory interface {
	GetChat(ctx context.Context, chatID string) (*teams.Chat, error)
}

// Submission is one participant's rating of a card
type Submission struct {
	CardID   string
	UserID   string
	UserName string
	Rating   int
	Comment  *string

	// Routing details of the inbound activity
	TenantID   string
	ServiceURL string
	Bot        teams.ChannelAccount
}

// NewSubmission builds a Submission from a rating card reply. The card is
// identified by the activity's replyToId.
func NewSubmission(activity *teams.Activity, value cards.RatingSubmission) (Submission, error) {
	if activity.ReplyToID == "" {
		return Submission{}, errors.MissingValueError("replyToId")
	}
	if activity.From == nil || activity.From.ID == "" {
		return Submission{}, errors.MissingValueError("from.id")
	}

	submission := Submission{
		CardID:     activity.ReplyToID,
		UserID:     activity.From.ID,
		UserName:   activity.From.Name,
		Rating:     value.Rating,
		Comment:    value.Comment,
		TenantID:   activity.TenantID(),
		ServiceURL: activity.ServiceURL,
	}
	if submission.UserName == "" {
		submission.UserName = FallbackName
	}
	if activity.Recipient != nil {
		submission.Bot = *activity.Recipient
	}
	return submission, nil
}

type Aggregator struct {
	store    storage.FeedbackStore
	client   ActivityClient
	chats    ChatDirectory
	resolver *ConversationResolver
	locker   locks.Locker
	lockTTL  time.Duration
	logger   logging.Logger
}

type Option func(*Aggregator)

// WithLocker sets the locker serialising report publication per card
func WithLocker(locker locks.Locker) Option {
	return func(a *Aggregator) {
		a.locker = locker
	}
}

func WithLockTTL(ttl time.Duration) Option {
	return func(a *Aggregator) {
		if ttl > 0 {
			a.lockTTL = ttl
		}
	}
}

// WithChatDirectory enables chat topic lookups for new cards
func WithChatDirectory(chats ChatDirectory) Option {
	return func(a *Aggregator) {
		a.chats = chats
	}
}

func WithLogger(logger logging.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func NewAggregator(store storage.FeedbackStore, client ActivityClient, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:   store,
		client:  client,
		lockTTL: DefaultLockTTL,
		logger:  logging.GetGlobalLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.locker == nil {
		a.locker = locks.NewLocalManager()
	}
	a.logger = a.logger.WithFields(logging.String("component", "aggregator"))
	a.resolver = NewConversationResolver(store, client, a.logger)
	return a
}

// ReportLockKey is the lock serialising report publication for a card
func ReportLockKey(cardID string) string {
	return "report:" + cardID
}

// SubmitEntry records s and publishes the refreshed report to the card
// owner. Nothing is sent when the card is unknown or the entry cannot be
// stored.
func (a *Aggregator) SubmitEntry(ctx context.Context, s Submission) error {
	ctx = logging.ContextWith(ctx, logging.CardIDKey, s.CardID)
	ctx = logging.ContextWith(ctx, logging.UserIDKey, s.UserID)

	meta, err := a.store.GetFeedbackMetadata(ctx, s.CardID)
	if err != nil {
		return err
	}

	// the report always goes to the card owner, not the submitter
	conversationID, err := a.resolver.Resolve(ctx, ConversationTarget{
		ServiceURL: s.ServiceURL,
		OwnerID:    meta.OwnerID,
		TenantID:   s.TenantID,
		Bot:        s.Bot,
	})
	if err != nil {
		return err
	}

	if err := a.store.CreateUser(ctx, s.UserID, s.UserName); err != nil {
		return err
	}
	if err := a.store.UpsertEntry(ctx, s.CardID, s.UserID, s.Rating, s.Comment); err != nil {
		return err
	}

	return a.publishReport(ctx, s, conversationID)
}

// publishReport renders the report from all entries and sends or updates
// it while holding the card's report lock.
func (a *Aggregator) publishReport(ctx context.Context, s Submission, conversationID string) error {
	logger := a.logger.WithContext(ctx)

	lock, err := a.locker.AcquireLock(ctx, ReportLockKey(s.CardID), a.lockTTL)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			logger.Warn("Failed to release report lock", logging.Err(err))
		}
	}()

	// the report id may have been recorded while we waited for the lock
	meta, err := a.store.GetFeedbackMetadata(ctx, s.CardID)
	if err != nil {
		return err
	}
	entries, err := a.store.ListEntries(ctx, s.CardID)
	if err != nil {
		return err
	}

	aggregate := ComputeAggregate(entries)
	activity := reportActivity(s.Bot, aggregate.Report(meta.ConversationName))

	if meta.ReportID != nil {
		_, err := a.client.UpdateActivity(ctx, s.ServiceURL, conversationID, *meta.ReportID, activity)
		return err
	}

	sent, err := a.client.SendToConversation(ctx, s.ServiceURL, conversationID, activity)
	if err != nil {
		return err
	}

	err = a.store.SetReportID(ctx, s.CardID, sent.ID)
	switch {
	case err == nil:
		logger.Info("Report created",
			logging.String("report_id", sent.ID),
			logging.Int("respondents", aggregate.Count))
		return nil
	case errors.IsType(err, errors.ErrTypeConflict):
		return a.reconcileReport(ctx, s, conversationID, sent.ID, activity)
	default:
		// the message is out; the next submission will send a new report
		logger.Error("Report sent but its id could not be recorded", err,
			logging.String("report_id", sent.ID))
		return nil
	}
}

// reconcileReport handles a report id recorded by another writer after
// ours was sent: the recorded report gets the fresh content and ours is
// left orphaned.
func (a *Aggregator) reconcileReport(ctx context.Context, s Submission, conversationID, orphanID string, activity *teams.Activity) error {
	meta, err := a.store.GetFeedbackMetadata(ctx, s.CardID)
	if err != nil {
		return err
	}
	if meta.ReportID == nil {
		return errors.InternalError("report id conflict without a recorded report", nil)
	}

	a.logger.WithContext(ctx).Warn("Orphaned duplicate report",
		logging.String("report_id", *meta.ReportID),
		logging.String("orphan_report_id", orphanID))

	_, err = a.client.UpdateActivity(ctx, s.ServiceURL, conversationID, *meta.ReportID, activity)
	return err
}

func reportActivity(bot teams.ChannelAccount, report cards.ReportCard) *teams.Activity {
	return &teams.Activity{
		Type:        teams.ActivityTypeMessage,
		From:        &bot,
		Attachments: []teams.Attachment{cards.Attachment(report)},
	}
}

// SendFeedbackCard posts a rating card in reply to activity and registers
// the sender as the card owner. It returns the new card id.
func (a *Aggregator) SendFeedbackCard(ctx context.Context, activity *teams.Activity) (string, error) {
	if activity.From == nil || activity.From.ID == "" {
		return "", errors.MissingValueError("from.id")
	}
	chatID := activity.ConversationID()
	if chatID == "" {
		return "", errors.MissingValueError("conversation.id")
	}

	name := activity.From.Name
	if name == "" {
		name = FallbackName
	}

	card := activity.CreateResponse()
	card.Attachments = []teams.Attachment{cards.Attachment(cards.RatingCard{RequesterName: name})}

	sent, err := a.client.SendToConversation(ctx, activity.ServiceURL, chatID, card)
	if err != nil {
		return "", err
	}
	if sent.ID == "" {
		return "", errors.MissingValueError("activity id")
	}

	ctx = logging.ContextWith(ctx, logging.CardIDKey, sent.ID)
	topic := a.chatTopic(ctx, chatID)

	if err := a.store.RegisterFeedbackCard(ctx, activity.From.ID, name, sent.ID, topic); err != nil {
		return "", err
	}

	a.logger.WithContext(ctx).Info("Feedback card sent",
		logging.String("owner_id", activity.From.ID),
		logging.String("conversation_name", topic))
	return sent.ID, nil
}

// chatTopic looks up the chat's display name, falling back to FallbackName
func (a *Aggregator) chatTopic(ctx context.Context, chatID string) string {
	if a.chats == nil {
		return FallbackName
	}
	chat, err := a.chats.GetChat(ctx, chatID)
	if err != nil {
		a.logger.WithContext(ctx).Warn("Failed to fetch the chat name",
			logging.String("chat_id", chatID),
			logging.Err(err))
		return FallbackName
	}
	if chat.Topic == "" {
		return FallbackName
	}
	return chat.Topic
}
