package teams

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"feedback-bot/internal/circuitbreaker"
	"feedback-bot/internal/common/cache"
	"feedback-bot/internal/common/errors"
	"feedback-bot/internal/common/logging"
	"feedback-bot/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct {
	mu          sync.Mutex
	token       string
	err         error
	invalidated []string
}

func (s *staticTokens) GetToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.err
}

func (s *staticTokens) Invalidate(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated = append(s.invalidated, token)
}

func newTestGateway(baseURL string, tokens TokenSource, opts ...GatewayOption) *Gateway {
	opts = append([]GatewayOption{WithLogger(logging.NewNopLogger())}, opts...)
	return NewGateway(baseURL, tokens, opts...)
}

func TestJoinURL(t *testing.T) {
	tests := []struct {
		base string
		path string
		want string
	}{
		{"https://x/teams/", "/v3/conversations", "https://x/teams/v3/conversations"},
		{"https://x/teams", "v3/conversations", "https://x/teams/v3/conversations"},
		{"https://x/teams/", "v3/conversations", "https://x/teams/v3/conversations"},
		{"https://x/teams", "/v3/conversations", "https://x/teams/v3/conversations"},
		{"https://x/teams//", "//v3", "https://x/teams///v3"},
	}

	for _, tt := range tests {
		t.Run(tt.base+"+"+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, JoinURL(tt.base, tt.path))
		})
	}
}

func TestGateway_Invoke(t *testing.T) {
	var gotPath, gotAuth, gotContentType string
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"created-1"}`)
	}))
	defer server.Close()

	gateway := newTestGateway(server.URL+"/teams/", &staticTokens{token: "abc"})

	var out ResourceResponse
	err := gateway.Invoke(context.Background(), http.MethodPost, "/v3/conversations", map[string]string{"hello": "world"}, &out)
	require.NoError(t, err)

	assert.Equal(t, "/teams/v3/conversations", gotPath)
	assert.Equal(t, "Bearer abc", gotAuth)
	assert.Contains(t, gotContentType, "application/json")
	assert.Equal(t, "world", gotBody["hello"])
	assert.Equal(t, "created-1", out.ID)
}

func TestGateway_InvokeAtOverridesBase(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.Equal(t, "/other/ping", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	gateway := newTestGateway("http://127.0.0.1:1/unused", &staticTokens{token: "t"})

	var out ResourceResponse
	require.NoError(t, gateway.InvokeAt(context.Background(), server.URL+"/other", http.MethodGet, "ping", nil, &out))
	assert.Equal(t, 1, hits)
	assert.Empty(t, out.ID)
}

func TestGateway_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantCode   string
		structured bool
	}{
		{
			name:       "structured connector error",
			status:     http.StatusNotFound,
			body:       `{"error":{"code":"ConversationNotFound","message":"Conversation not found.","innerHttpError":{"statusCode":404,"body":{"error":"x"}}}}`,
			wantCode:   "ConversationNotFound",
			structured: true,
		},
		{
			name:   "raw text body",
			status: http.StatusBadGateway,
			body:   "upstream exploded",
		},
		{
			name:   "json without error shape",
			status: http.StatusBadRequest,
			body:   `{"message":"nope"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer server.Close()

			gateway := newTestGateway(server.URL, &staticTokens{token: "t"})
			err := gateway.Invoke(context.Background(), http.MethodGet, "x", nil, nil)

			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrTypeService))
			assert.Equal(t, tt.status, errors.ServiceStatus(err))

			appErr, _ := errors.AsAppError(err)
			assert.Equal(t, tt.wantCode, appErr.Code)
			if tt.structured {
				body, ok := appErr.Context["body"].(*ErrorBody)
				require.True(t, ok)
				assert.Equal(t, "Conversation not found.", body.Message)
				require.NotNil(t, body.InnerHTTPError)
				assert.Equal(t, 404, body.InnerHTTPError.StatusCode)
			} else {
				assert.Equal(t, tt.body, appErr.Context["body"])
			}
		})
	}
}

func TestGateway_UnauthorizedInvalidatesToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	tokens := &staticTokens{token: "stale"}
	gateway := newTestGateway(server.URL, tokens)

	err := gateway.Invoke(context.Background(), http.MethodGet, "x", nil, nil)
	require.Error(t, err)
	assert.Equal(t, []string{"stale"}, tokens.invalidated)
}

func TestGateway_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	gateway := newTestGateway(server.URL, &staticTokens{token: "t"})
	err := gateway.Invoke(context.Background(), http.MethodGet, "x", nil, nil)

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeTransport))
}

func TestGateway_CredentialErrorPassesThrough(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	gateway := newTestGateway(server.URL, &staticTokens{err: errors.CredentialError("rejected", nil)})
	err := gateway.Invoke(context.Background(), http.MethodGet, "x", nil, nil)

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeCredential))
	assert.False(t, called)
}

func TestGateway_NoRetry(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	gateway := newTestGateway(server.URL, &staticTokens{token: "t"})
	require.Error(t, gateway.Invoke(context.Background(), http.MethodPost, "x", map[string]int{"a": 1}, nil))
	assert.Equal(t, 1, hits)
}

func TestGateway_CircuitBreakerOpens(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	breaker := circuitbreaker.NewGoBreaker("gateway-test", circuitbreaker.Config{
		MaxFailures: 2, Timeout: time.Minute, MaxConcurrentRequests: 1,
	}, logging.NewNopLogger())
	gateway := newTestGateway(server.URL, &staticTokens{token: "t"}, WithCircuitBreaker(breaker))

	for i := 0; i < 4; i++ {
		err := gateway.Invoke(context.Background(), http.MethodGet, fmt.Sprintf("x/%d", i), nil, nil)
		require.Error(t, err)
	}
	assert.Equal(t, 2, hits)
}

func TestClient_Operations(t *testing.T) {
	connector := testutil.NewFakeConnector(t)
	client := NewClient(newTestGateway("http://unused.invalid", &staticTokens{token: "bot-token"}))
	ctx := context.Background()

	conv, err := client.CreateConversation(ctx, connector.URL, ConversationParameters{
		Bot:      ChannelAccount{ID: "bot", Name: "Feedback"},
		Members:  []ChannelAccount{{ID: "owner-1"}},
		TenantID: "tenant-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "conv-1", conv.ID)

	sent, err := client.SendToConversation(ctx, connector.URL, conv.ID, &Activity{Type: ActivityTypeMessage, Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "activity-1", sent.ID)

	updated, err := client.UpdateActivity(ctx, connector.URL, conv.ID, sent.ID, &Activity{Type: ActivityTypeMessage, Text: "edited"})
	require.NoError(t, err)
	assert.Equal(t, sent.ID, updated.ID)

	creates := connector.Requests(testutil.RouteCreateConversation)
	require.Len(t, creates, 1)
	assert.Equal(t, "Bearer bot-token", creates[0].Authorization)
	var params map[string]interface{}
	require.NoError(t, creates[0].Decode(&params))
	assert.Equal(t, "tenant-1", params["tenantId"])
	assert.Equal(t, "bot", params["bot"].(map[string]interface{})["id"])
	assert.Equal(t, "owner-1", params["members"].([]interface{})[0].(map[string]interface{})["id"])

	updates := connector.Requests(testutil.RouteUpdateActivity)
	require.Len(t, updates, 1)
	assert.Equal(t, "conv-1", updates[0].Vars["conversationId"])
	assert.Equal(t, "activity-1", updates[0].Vars["activityId"])
	var activity Activity
	require.NoError(t, updates[0].Decode(&activity))
	assert.Equal(t, "edited", activity.Text)
}

func TestGraphClient_GetChat(t *testing.T) {
	connector := testutil.NewFakeConnector(t)
	connector.SetChatTopic("19:meeting_abc@thread.v2", "Sprint review")
	graph := NewGraphClient(newTestGateway(connector.URL, &staticTokens{token: "graph-token"}))

	chat, err := graph.GetChat(context.Background(), "19:meeting_abc@thread.v2")
	require.NoError(t, err)
	assert.Equal(t, "Sprint review", chat.Topic)

	_, err = graph.GetChat(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, errors.ServiceStatus(err))
}

func TestCachedChats(t *testing.T) {
	connector := testutil.NewFakeConnector(t)
	connector.SetChatTopic("chat-1", "Retro")
	graph := NewGraphClient(newTestGateway(connector.URL, &staticTokens{token: "graph-token"}))
	chats := NewCachedChats(graph, cache.NewLocalCache(time.Minute, time.Minute), time.Minute, logging.NewNopLogger())

	for i := 0; i < 3; i++ {
		chat, err := chats.GetChat(context.Background(), "chat-1")
		require.NoError(t, err)
		assert.Equal(t, "Retro", chat.Topic)
	}
	assert.Equal(t, 1, connector.Count(testutil.RouteGetChat))

	_, err := chats.GetChat(context.Background(), "missing")
	require.Error(t, err)
	_, err = chats.GetChat(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, 3, connector.Count(testutil.RouteGetChat), "failures are not cached")
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string, interface{}) (bool, error) {
	return false, fmt.Errorf("cache down")
}

func (brokenCache) Set(context.Context, string, interface{}, time.Duration) error {
	return fmt.Errorf("cache down")
}

func (brokenCache) Delete(context.Context, string) error { return nil }

func TestCachedChats_CacheFailureFallsThrough(t *testing.T) {
	connector := testutil.NewFakeConnector(t)
	connector.SetChatTopic("chat-1", "Retro")
	graph := NewGraphClient(newTestGateway(connector.URL, &staticTokens{token: "graph-token"}))
	chats := NewCachedChats(graph, brokenCache{}, time.Minute, logging.NewNopLogger())

	chat, err := chats.GetChat(context.Background(), "chat-1")
	require.NoError(t, err)
	assert.Equal(t, "Retro", chat.Topic)
}

func TestActivity_CreateResponse(t *testing.T) {
	inbound := &Activity{
		Type:         ActivityTypeMessage,
		From:         &ChannelAccount{ID: "user-1", Name: "Ada"},
		Recipient:    &ChannelAccount{ID: "bot-1", Name: "Feedback"},
		Conversation: &ConversationAccount{ID: "conv-9", TenantID: "tenant-1"},
		ServiceURL:   "https://smba.example/teams",
		Text:         "feedback",
	}

	reply := inbound.CreateResponse()

	assert.Equal(t, ActivityTypeMessage, reply.Type)
	assert.Equal(t, "bot-1", reply.From.ID)
	assert.Equal(t, "user-1", reply.Recipient.ID)
	assert.Empty(t, reply.Text)
	assert.Nil(t, reply.Conversation)
	assert.Equal(t, "conv-9", inbound.ConversationID())
	assert.Equal(t, "tenant-1", inbound.TenantID())
	assert.Empty(t, (&Activity{}).ConversationID())
}

func TestActivity_JSON(t *testing.T) {
	raw := `{
		"type": "message",
		"from": {"id": "user-1", "name": "Ada"},
		"recipient": {"id": "bot-1", "name": "Feedback"},
		"conversation": {"id": "conv-1", "tenantId": "t-1", "conversationType": "groupChat", "isGroup": true},
		"replyToId": "card-1",
		"serviceUrl": "https://smba.example/teams/",
		"value": {"rating": 4, "comment": "nice"}
	}`

	var activity Activity
	require.NoError(t, json.Unmarshal([]byte(raw), &activity))
	assert.Equal(t, "card-1", activity.ReplyToID)
	assert.True(t, activity.Conversation.IsGroup)
	assert.JSONEq(t, `{"rating": 4, "comment": "nice"}`, string(activity.Value))

	out, err := json.Marshal(&Activity{Type: ActivityTypeMessage, Text: "hi"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"message","text":"hi"}`, string(out))
}
