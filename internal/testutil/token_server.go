package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"
)

// TokenServer is a fake OAuth2 token endpoint
type TokenServer struct {
	*httptest.Server

	mu        sync.Mutex
	calls     int
	forms     []url.Values
	status    int
	expiresIn int64
	delay     time.Duration
}

// NewTokenServer starts a token endpoint issuing tokens "token-1", "token-2", ...
// valid for one hour. It is closed when the test ends.
func NewTokenServer(t testing.TB) *TokenServer {
	t.Helper()
	s := &TokenServer{status: http.StatusOK, expiresIn: 3600}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *TokenServer) handle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.calls++
	call := s.calls
	s.forms = append(s.forms, r.PostForm)
	status, expiresIn, delay := s.status, s.expiresIn, s.delay
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_client",
			"error_description": "client authentication failed",
		})
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token": fmt.Sprintf("token-%d", call),
		"token_type":   "Bearer",
		"expires_in":   expiresIn,
	})
}

// SetStatus makes subsequent requests answer with status
func (s *TokenServer) SetStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// SetExpiresIn changes the lifetime of issued tokens, in seconds
func (s *TokenServer) SetExpiresIn(seconds int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiresIn = seconds
}

// SetDelay holds every response for d
func (s *TokenServer) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Calls returns how many token requests were received
func (s *TokenServer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// LastForm returns the form of the most recent request
func (s *TokenServer) LastForm() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.forms) == 0 {
		return nil
	}
	return s.forms[len(s.forms)-1]
}

// Clock is a manually advanced time source
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
