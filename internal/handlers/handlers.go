// Package handlers serves the bot's HTTP endpoints: the Bot Framework
// messaging endpoint and the health check.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"feedback-bot/internal/common/logging"
	"feedback-bot/internal/common/validation"
	"feedback-bot/internal/feedback"
	"feedback-bot/internal/teams"
)

// FeedbackService runs the feedback card life cycle
type FeedbackService interface {
	SendFeedbackCard(ctx context.Context, activity *teams.Activity) (string, error)
	SubmitEntry(ctx context.Context, submission feedback.Submission) error
}

// Replier posts plain messages back into a conversation
type Replier interface {
	SendToConversation(ctx context.Context, serviceURL, conversationID string, activity *teams.Activity) (*teams.ResourceResponse, error)
}

// HealthCheck is one dependency probed by GET /health
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Handlers struct {
	feedback FeedbackService
	replier  Replier
	checks   []HealthCheck
	validate *validation.Validator
	logger   logging.Logger

	// serviceHosts, when set, are the only serviceUrl hosts replies may go to
	serviceHosts map[string]bool
}

func New(feedback FeedbackService, replier Replier, logger logging.Logger, checks ...HealthCheck) *Handlers {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Handlers{
		feedback: feedback,
		replier:  replier,
		checks:   checks,
		validate: validation.New(),
		logger:   logger.WithFields(logging.String("component", "handlers")),
	}
}

// AllowServiceHosts restricts the serviceUrl of inbound activities to hosts.
// Set it whenever inbound tokens are not validated.
func (h *Handlers) AllowServiceHosts(hosts ...string) {
	h.serviceHosts = make(map[string]bool, len(hosts))
	for _, host := range hosts {
		h.serviceHosts[strings.ToLower(host)] = true
	}
}

func (h *Handlers) serviceURLAllowed(raw string) bool {
	if h.serviceHosts == nil {
		return true
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return h.serviceHosts[strings.ToLower(parsed.Host)]
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError answers with status and the error text as the body
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	h.logger.WithContext(r.Context()).Error("Request failed", err, logging.Int("status", status))
	http.Error(w, err.Error(), status)
}
