package teams

import "encoding/json"

// ActivityType is the kind of a Bot Framework activity
type ActivityType string

const (
	ActivityTypeMessage            ActivityType = "message"
	ActivityTypeConversationUpdate ActivityType = "conversationUpdate"
	ActivityTypeInstallationUpdate ActivityType = "installationUpdate"
	ActivityTypeMessageReaction    ActivityType = "messageReaction"
	ActivityTypeTyping             ActivityType = "typing"
	ActivityTypeInvoke             ActivityType = "invoke"
	ActivityTypeEvent              ActivityType = "event"
)

// ContentTypeAdaptiveCard marks an attachment whose content is an adaptive card
const ContentTypeAdaptiveCard = "application/vnd.microsoft.card.adaptive"

// ChannelAccount is a bot or user account on the channel
type ChannelAccount struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	AADObjectID string `json:"aadObjectId,omitempty"`
	Role        string `json:"role,omitempty"`
}

// ConversationAccount identifies a conversation in a channel
type ConversationAccount struct {
	ID               string `json:"id"`
	TenantID         string `json:"tenantId,omitempty"`
	ConversationType string `json:"conversationType,omitempty"`
	IsGroup          bool   `json:"isGroup,omitempty"`
	Name             string `json:"name,omitempty"`
	AADObjectID      string `json:"aadObjectId,omitempty"`
	Role             string `json:"role,omitempty"`
}

// Attachment carries rich content such as an adaptive card
type Attachment struct {
	ContentType  string      `json:"contentType,omitempty"`
	Content      interface{} `json:"content,omitempty"`
	ContentURL   string      `json:"contentUrl,omitempty"`
	Name         string      `json:"name,omitempty"`
	ThumbnailURL string      `json:"thumbnailUrl,omitempty"`
}

// Activity is the unit of communication between the bot and the channel
type Activity struct {
	Type         ActivityType         `json:"type" validate:"required"`
	ID           string               `json:"id,omitempty"`
	ChannelID    string               `json:"channelId,omitempty"`
	From         *ChannelAccount      `json:"from,omitempty"`
	Recipient    *ChannelAccount      `json:"recipient,omitempty"`
	Conversation *ConversationAccount `json:"conversation,omitempty"`
	Attachments  []Attachment         `json:"attachments,omitempty"`
	MembersAdded []ChannelAccount     `json:"membersAdded,omitempty"`
	ReplyToID    string               `json:"replyToId,omitempty"`
	ServiceURL   string               `json:"serviceUrl,omitempty" validate:"required,http_url"`
	Text         string               `json:"text,omitempty"`
	Value        json.RawMessage      `json:"value,omitempty"`
}

// CreateResponse returns an empty activity addressed back to the sender of a:
// the bot becomes the sender and the original sender the recipient.
func (a *Activity) CreateResponse() *Activity {
	return &Activity{
		Type:      ActivityTypeMessage,
		From:      a.Recipient,
		Recipient: a.From,
	}
}

// ConversationID returns the id of the conversation a was posted in, or ""
func (a *Activity) ConversationID() string {
	if a.Conversation == nil {
		return ""
	}
	return a.Conversation.ID
}

// TenantID returns the tenant of the conversation a was posted in, or ""
func (a *Activity) TenantID() string {
	if a.Conversation == nil {
		return ""
	}
	return a.Conversation.TenantID
}

// ConversationParameters describes a conversation to create
type ConversationParameters struct {
	Bot      ChannelAccount   `json:"bot"`
	IsGroup  bool             `json:"isGroup"`
	Members  []ChannelAccount `json:"members,omitempty"`
	TenantID string           `json:"tenantId"`
}

// ResourceResponse is returned when an activity is sent or updated
type ResourceResponse struct {
	ID string `json:"id"`
}

// ConversationResourceResponse is returned when a conversation is created
type ConversationResourceResponse struct {
	ID         string `json:"id"`
	ActivityID string `json:"activityId,omitempty"`
	ServiceURL string `json:"serviceUrl,omitempty"`
}

// ErrorResponse is the structured error body returned by the connector
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code           string          `json:"code"`
	Message        string          `json:"message"`
	InnerHTTPError *InnerHTTPError `json:"innerHttpError,omitempty"`
}

type InnerHTTPError struct {
	StatusCode int             `json:"statusCode"`
	Body       json.RawMessage `json:"body,omitempty"`
}
