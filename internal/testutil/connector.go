package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

// Route names a connector endpoint served by FakeConnector
type Route string

const (
	RouteCreateConversation Route = "create_conversation"
	RouteSendActivity       Route = "send_activity"
	RouteUpdateActivity     Route = "update_activity"
	RouteGetChat            Route = "get_chat"
)

// RecordedRequest is one request received by FakeConnector
type RecordedRequest struct {
	Route         Route
	Method        string
	Vars          map[string]string
	Authorization string
	Body          []byte
}

// Decode unmarshals the recorded body into v
func (r RecordedRequest) Decode(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

type failure struct {
	status int
	body   string
	times  int
}

// FakeConnector serves the Bot Framework connector and Graph chat endpoints
// the bot uses, recording every call.
type FakeConnector struct {
	*httptest.Server

	mu           sync.Mutex
	requests     []RecordedRequest
	failures     map[Route]*failure
	delays       map[Route]time.Duration
	topics       map[string]string
	nextConv     int
	nextActivity int
}

// NewFakeConnector starts a fake connector that is closed when the test ends
func NewFakeConnector(t testing.TB) *FakeConnector {
	t.Helper()
	f := &FakeConnector{
		failures: make(map[Route]*failure),
		delays:   make(map[Route]time.Duration),
		topics:   make(map[string]string),
	}

	r := mux.NewRouter()
	r.HandleFunc("/v3/conversations", f.handler(RouteCreateConversation, f.createConversation)).Methods(http.MethodPost)
	r.HandleFunc("/v3/conversations/{conversationId}/activities", f.handler(RouteSendActivity, f.sendActivity)).Methods(http.MethodPost)
	r.HandleFunc("/v3/conversations/{conversationId}/activities/{activityId}", f.handler(RouteUpdateActivity, f.updateActivity)).Methods(http.MethodPut)
	r.HandleFunc("/chats/{chatId}", f.handler(RouteGetChat, f.getChat)).Methods(http.MethodGet)

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Close)
	return f
}

func (f *FakeConnector) handler(route Route, next func(w http.ResponseWriter, r *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		f.mu.Lock()
		f.requests = append(f.requests, RecordedRequest{
			Route:         route,
			Method:        r.Method,
			Vars:          mux.Vars(r),
			Authorization: r.Header.Get("Authorization"),
			Body:          body,
		})
		delay := f.delays[route]
		fail := f.failures[route]
		var status int
		var failBody string
		if fail != nil && fail.times != 0 {
			status, failBody = fail.status, fail.body
			if fail.times > 0 {
				fail.times--
			}
		}
		f.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}

		if status != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = io.WriteString(w, failBody)
			return
		}

		next(w, r)
	}
}

func (f *FakeConnector) createConversation(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.nextConv++
	id := fmt.Sprintf("conv-%d", f.nextConv)
	f.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (f *FakeConnector) sendActivity(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.nextActivity++
	id := fmt.Sprintf("activity-%d", f.nextActivity)
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (f *FakeConnector) updateActivity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"id": mux.Vars(r)["activityId"]})
}

func (f *FakeConnector) getChat(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["chatId"]
	f.mu.Lock()
	topic, ok := f.topics[chatID]
	f.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error": map[string]string{"code": "NotFound", "message": "chat not found"},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": chatID, "topic": topic, "chatType": "meeting"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Fail makes the next times calls to route answer status with body.
// A negative times fails every call.
func (f *FakeConnector) Fail(route Route, status int, body string, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[route] = &failure{status: status, body: body, times: times}
}

// SetDelay holds every response on route for d
func (f *FakeConnector) SetDelay(route Route, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delays[route] = d
}

// SetChatTopic registers a Graph chat
func (f *FakeConnector) SetChatTopic(chatID, topic string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics[chatID] = topic
}

// Requests returns the recorded calls to route, or every call when route is empty
func (f *FakeConnector) Requests(route Route) []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []RecordedRequest
	for _, req := range f.requests {
		if route == "" || req.Route == route {
			out = append(out, req)
		}
	}
	return out
}

// Count returns the number of calls to route
func (f *FakeConnector) Count(route Route) int {
	return len(f.Requests(route))
}
