package feedback

import (
	"context"
	"path/filepath"
	"testing"

	"feedback-bot/internal/cards"
	"feedback-bot/internal/common/logging"
	"feedback-bot/internal/oauth2"
	"feedback-bot/internal/storage"
	"feedback-bot/internal/storage/sqlite"
	"feedback-bot/internal/teams"
	"feedback-bot/internal/testutil"

	"github.com/stretchr/testify/require"
)

var testBot = teams.ChannelAccount{ID: "28:bot", Name: "FeedbackBot"}

type harness struct {
	store      storage.FeedbackStore
	connector  *testutil.FakeConnector
	tokens     *testutil.TokenServer
	client     *teams.Client
	aggregator *Aggregator
}

func newSQLiteStore(t *testing.T) storage.FeedbackStore {
	t.Helper()
	store, err := sqlite.NewStore(context.Background(), &sqlite.Config{
		DatabasePath: filepath.Join(t.TempDir(), "feedback.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// newHarness wires an aggregator to store through the real gateway, a fake
// connector and a fake token endpoint. A nil store means a fresh SQLite one.
func newHarness(t *testing.T, store storage.FeedbackStore, opts ...Option) *harness {
	t.Helper()
	if store == nil {
		store = newSQLiteStore(t)
	}

	tokens := testutil.NewTokenServer(t)
	cache, err := oauth2.NewCredentialCache(oauth2.Credential{
		TokenURL:     tokens.URL,
		ClientID:     "bot-client",
		ClientSecret: "bot-secret",
		Scope:        "https://api.example.com/.default",
	}, oauth2.WithLogger(logging.NewNopLogger()))
	require.NoError(t, err)

	connector := testutil.NewFakeConnector(t)
	gateway := teams.NewGateway(connector.URL, cache, teams.WithLogger(logging.NewNopLogger()))
	client := teams.NewClient(gateway)

	opts = append([]Option{
		WithLogger(logging.NewNopLogger()),
		WithChatDirectory(teams.NewGraphClient(gateway)),
	}, opts...)

	return &harness{
		store:      store,
		connector:  connector,
		tokens:     tokens,
		client:     client,
		aggregator: NewAggregator(store, client, opts...),
	}
}

func (h *harness) seedCard(t *testing.T, cardID string) {
	t.Helper()
	require.NoError(t, h.store.RegisterFeedbackCard(context.Background(), "owner", "Owner", cardID, "Standup"))
}

func (h *harness) submission(cardID, userID string, rating int, comment *string) Submission {
	return Submission{
		CardID:     cardID,
		UserID:     userID,
		UserName:   "User " + userID,
		Rating:     rating,
		Comment:    comment,
		TenantID:   "tenant-1",
		ServiceURL: h.connector.URL,
		Bot:        testBot,
	}
}

// reportContent decodes the adaptive card carried by a recorded activity
func reportContent(t *testing.T, req testutil.RecordedRequest) (*teams.Activity, map[string]interface{}) {
	t.Helper()
	var activity teams.Activity
	require.NoError(t, req.Decode(&activity))
	require.Len(t, activity.Attachments, 1)
	require.Equal(t, teams.ContentTypeAdaptiveCard, activity.Attachments[0].ContentType)
	content, ok := activity.Attachments[0].Content.(map[string]interface{})
	require.True(t, ok)
	return &activity, content
}

// reportComments extracts the comment texts from a rendered report card
func reportComments(content map[string]interface{}) []string {
	body := content["body"].([]interface{})
	items := body[3].(map[string]interface{})["items"].([]interface{})
	out := []string{}
	for _, item := range items {
		out = append(out, item.(map[string]interface{})["text"].(string))
	}
	return out
}

// reportStars extracts the glyph urls from a rendered report card
func reportStars(content map[string]interface{}) []string {
	body := content["body"].([]interface{})
	columns := body[5].(map[string]interface{})["columns"].([]interface{})
	out := []string{}
	for _, column := range columns {
		image := column.(map[string]interface{})["items"].([]interface{})[0].(map[string]interface{})
		out = append(out, image["url"].(string))
	}
	return out
}

func glyphURLs(glyphs [cards.StarCount]cards.Glyph) []string {
	out := make([]string, len(glyphs))
	for i, g := range glyphs {
		out[i] = g.URL()
	}
	return out
}

func strPtr(s string) *string { return &s }
