package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"feedback-bot/internal/auth"
	"feedback-bot/internal/cards"
	"feedback-bot/internal/common/errors"
	"feedback-bot/internal/common/logging"
	"feedback-bot/internal/feedback"
	"feedback-bot/internal/teams"
)

// HandleMessages is the Bot Framework messaging endpoint. Activities are
// handled synchronously; any failure answers 500 with the error text.
func (h *Handlers) HandleMessages(w http.ResponseWriter, r *http.Request) {
	var activity teams.Activity
	if err := json.NewDecoder(r.Body).Decode(&activity); err != nil {
		h.writeError(w, r, http.StatusBadRequest, errors.ValidationError("invalid activity: "+err.Error()))
		return
	}
	if err := h.validate.ValidateStruct(&activity); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	// a token minted for one service url must not drive replies to another
	if claims, ok := auth.ClaimsFrom(r.Context()); ok && claims.ServiceURL != "" && claims.ServiceURL != activity.ServiceURL {
		h.writeError(w, r, http.StatusUnauthorized, errors.AuthError("service url does not match the token"))
		return
	}
	if !h.serviceURLAllowed(activity.ServiceURL) {
		h.writeError(w, r, http.StatusUnauthorized, errors.AuthError("service url host is not allowed"))
		return
	}

	if err := h.dispatch(r.Context(), &activity); err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) dispatch(ctx context.Context, activity *teams.Activity) error {
	switch activity.Type {
	case teams.ActivityTypeConversationUpdate:
		return h.greet(ctx, activity)
	case teams.ActivityTypeMessage:
		if activity.Text != "" {
			if err := h.runCommand(ctx, activity); err != nil {
				return err
			}
		}
		if len(activity.Value) > 0 {
			return h.submitRating(ctx, activity)
		}
		return nil
	default:
		h.logger.WithContext(ctx).Debug("Ignoring activity", logging.String("type", string(activity.Type)))
		return nil
	}
}

// greet introduces the bot when it is among the added members
func (h *Handlers) greet(ctx context.Context, activity *teams.Activity) error {
	if activity.Recipient == nil {
		return nil
	}
	added := false
	for _, member := range activity.MembersAdded {
		if member.ID == activity.Recipient.ID {
			added = true
			break
		}
	}
	if !added {
		return nil
	}

	name := activity.Recipient.Name
	if name == "" {
		name = "the feedback bot"
	}
	return h.reply(ctx, activity, greeting(name))
}

func (h *Handlers) runCommand(ctx context.Context, activity *teams.Activity) error {
	command, ok := ParseCommand(activity)
	if !ok {
		return h.reply(ctx, activity, unknownCommandMsg)
	}

	switch command {
	case CommandFeedback:
		_, err := h.feedback.SendFeedbackCard(ctx, activity)
		return err
	case CommandHelp:
		return h.reply(ctx, activity, helpText)
	}
	return nil
}

// submitRating records a rating card reply. Values that are not rating
// submissions are ignored.
func (h *Handlers) submitRating(ctx context.Context, activity *teams.Activity) error {
	value, ok := cards.ParseSubmission(activity.Value)
	if !ok {
		return nil
	}
	submission, err := feedback.NewSubmission(activity, value)
	if err != nil {
		return err
	}
	return h.feedback.SubmitEntry(ctx, submission)
}

func (h *Handlers) reply(ctx context.Context, activity *teams.Activity, text string) error {
	conversationID := activity.ConversationID()
	if conversationID == "" {
		return errors.MissingValueError("conversation.id")
	}
	response := activity.CreateResponse()
	response.Text = text
	_, err := h.replier.SendToConversation(ctx, activity.ServiceURL, conversationID, response)
	return err
}
