package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"feedback-bot/internal/config"
	"feedback-bot/internal/locks"
	"feedback-bot/internal/teams"
	"feedback-bot/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	app       *App
	router    http.Handler
	connector *testutil.FakeConnector
	tokens    *testutil.TokenServer
}

func testConfig(t *testing.T, tokens *testutil.TokenServer, connector *testutil.FakeConnector) *config.Config {
	t.Helper()
	return &config.Config{
		Port:                  "7071",
		LogLevel:              "debug",
		HTTPTimeout:           5 * time.Second,
		CircuitBreakerEnabled: true,
		DatabaseType:          "sqlite",
		DatabasePath:          filepath.Join(t.TempDir(), "bot.db"),
		ReportLockTTL:         5 * time.Second,
		ClientID:              "bot-client",
		ClientSecret:          "bot-secret",
		TenantID:              "tenant-1",
		BotTokenURL:           tokens.URL,
		BotScope:              config.DefaultBotScope,
		ServiceURL:            connector.URL,
		GraphTokenURL:         tokens.URL,
		GraphScope:            config.DefaultGraphScope,
		GraphBaseURL:          connector.URL,
		ChatCacheTTL:          time.Minute,
		OpenIDKeysURL:         config.DefaultOpenIDKeysURL,
		TokenIssuer:           config.DefaultBotTokenIssuer,
	}
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	tokens := testutil.NewTokenServer(t)
	connector := testutil.NewFakeConnector(t)
	cfg := testConfig(t, tokens, connector)
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())

	app, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(app.Close)

	return &fixture{app: app, router: app.Router(), connector: connector, tokens: tokens}
}

func (f *fixture) post(t *testing.T, activity teams.Activity) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(activity)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/messages", bytes.NewReader(body)))
	return rec
}

var bot = teams.ChannelAccount{ID: "28:bot", Name: "FeedbackBot"}

func TestApp_FeedbackRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	f.connector.SetChatTopic("meeting-chat", "Retro")

	rec := f.post(t, teams.Activity{
		Type:         teams.ActivityTypeMessage,
		From:         &teams.ChannelAccount{ID: "owner", Name: "Ada"},
		Recipient:    &bot,
		Conversation: &teams.ConversationAccount{ID: "meeting-chat", TenantID: "tenant-1"},
		ServiceURL:   f.connector.URL,
		Text:         "<at>FeedbackBot</at> feedback",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	sends := f.connector.Requests(testutil.RouteSendActivity)
	require.Len(t, sends, 1)
	assert.Equal(t, "meeting-chat", sends[0].Vars["conversationId"])

	meta, err := f.app.Store.GetFeedbackMetadata(context.Background(), "activity-1")
	require.NoError(t, err)
	assert.Equal(t, "Retro", meta.ConversationName)

	rec = f.post(t, teams.Activity{
		Type:         teams.ActivityTypeMessage,
		From:         &teams.ChannelAccount{ID: "participant", Name: "Grace"},
		Recipient:    &bot,
		Conversation: &teams.ConversationAccount{ID: "meeting-chat", TenantID: "tenant-1"},
		ServiceURL:   f.connector.URL,
		ReplyToID:    "activity-1",
		Value:        json.RawMessage(`{"rating": 5, "comment": "great retro"}`),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	creates := f.connector.Requests(testutil.RouteCreateConversation)
	require.Len(t, creates, 1)
	var params teams.ConversationParameters
	require.NoError(t, creates[0].Decode(&params))
	assert.Equal(t, []teams.ChannelAccount{{ID: "owner"}}, params.Members)

	sends = f.connector.Requests(testutil.RouteSendActivity)
	require.Len(t, sends, 2)
	assert.Equal(t, "conv-1", sends[1].Vars["conversationId"])

	meta, err = f.app.Store.GetFeedbackMetadata(context.Background(), "activity-1")
	require.NoError(t, err)
	require.NotNil(t, meta.ReportID)
	assert.Equal(t, "activity-2", *meta.ReportID)
}

func TestApp_UnknownCardAnswers500(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.post(t, teams.Activity{
		Type:         teams.ActivityTypeMessage,
		From:         &teams.ChannelAccount{ID: "participant"},
		Recipient:    &bot,
		Conversation: &teams.ConversationAccount{ID: "meeting-chat"},
		ServiceURL:   f.connector.URL,
		ReplyToID:    "no-such-card",
		Value:        json.RawMessage(`{"rating": 3}`),
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "not found")
	assert.Equal(t, 0, f.connector.Count(""))
}

func TestApp_Health(t *testing.T) {
	t.Run("sqlite only", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "healthy", body["storage_status"])
		assert.NotContains(t, body, "redis_status")
		assert.IsType(t, &locks.LocalManager{}, f.app.Locker)
	})

	t.Run("with redis", func(t *testing.T) {
		s, err := miniredis.Run()
		require.NoError(t, err)
		defer s.Close()

		f := newFixture(t, func(cfg *config.Config) {
			cfg.RedisAddress = s.Addr()
			cfg.RedisPoolSize = 5
		})
		assert.IsType(t, &locks.RedsyncManager{}, f.app.Locker)

		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)

		s.Close()
		rec = httptest.NewRecorder()
		f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestApp_RedisUnavailableFallsBackToLocalLocks(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.RedisAddress = "127.0.0.1:1"
		cfg.RedisPoolSize = 1
	})
	assert.Nil(t, f.app.RedisClient)
	assert.IsType(t, &locks.LocalManager{}, f.app.Locker)
}

func TestApp_AuthRequired(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.AuthEnabled = true
	})
	require.NotNil(t, f.app.Authenticator)

	rec := f.post(t, teams.Activity{Type: teams.ActivityTypeMessage, Text: "help"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, f.connector.Count(""))
}

func TestApp_ForeignServiceURLGetsNoToken(t *testing.T) {
	f := newFixture(t, nil)
	require.Nil(t, f.app.Authenticator)

	var (
		mu       sync.Mutex
		received []string
	)
	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		received = append(received, r.Header.Get("Authorization"))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(foreign.Close)

	rec := f.post(t, teams.Activity{
		Type:         teams.ActivityTypeMessage,
		From:         &teams.ChannelAccount{ID: "owner", Name: "Ada"},
		Recipient:    &bot,
		Conversation: &teams.ConversationAccount{ID: "meeting-chat"},
		ServiceURL:   foreign.URL,
		Text:         "<at>FeedbackBot</at> help",
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	mu.Lock()
	assert.Empty(t, received)
	mu.Unlock()
	assert.Equal(t, 0, f.tokens.Calls())
}

func TestApp_RateLimited(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.RateLimitEnabled = true
		cfg.RateLimitRPS = 1
		cfg.RateLimitBurst = 2
	})
	require.NotNil(t, f.app.Limiter)

	help := teams.Activity{
		Type:         teams.ActivityTypeMessage,
		From:         &teams.ChannelAccount{ID: "owner", Name: "Ada"},
		Recipient:    &bot,
		Conversation: &teams.ConversationAccount{ID: "meeting-chat"},
		ServiceURL:   f.connector.URL,
		Text:         "<at>FeedbackBot</at> help",
	}
	for i := 0; i < 2; i++ {
		rec := f.post(t, help)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := f.post(t, help)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 2, f.connector.Count(testutil.RouteSendActivity))

	health := httptest.NewRecorder()
	f.router.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, health.Code)
}

func TestApp_UnsupportedDatabase(t *testing.T) {
	tokens := testutil.NewTokenServer(t)
	connector := testutil.NewFakeConnector(t)
	cfg := testConfig(t, tokens, connector)
	cfg.DatabaseType = "mysql"

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}
