package teams

import (
	"context"
	"net/http"
	"net/url"
)

// Client is a Bot Framework connector client. Every call takes the service
// URL of the inbound activity; an empty one means the gateway's default.
type Client struct {
	gateway *Gateway
}

func NewClient(gateway *Gateway) *Client {
	return &Client{gateway: gateway}
}

// CreateConversation starts a new conversation
func (c *Client) CreateConversation(ctx context.Context, serviceURL string, params ConversationParameters) (*ConversationResourceResponse, error) {
	var resp ConversationResourceResponse
	if err := c.gateway.InvokeAt(ctx, serviceURL, http.MethodPost, "v3/conversations", params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendToConversation posts activity to the end of a conversation
func (c *Client) SendToConversation(ctx context.Context, serviceURL, conversationID string, activity *Activity) (*ResourceResponse, error) {
	var resp ResourceResponse
	path := "v3/conversations/" + url.PathEscape(conversationID) + "/activities"
	if err := c.gateway.InvokeAt(ctx, serviceURL, http.MethodPost, path, activity, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateActivity replaces an existing activity in place
func (c *Client) UpdateActivity(ctx context.Context, serviceURL, conversationID, activityID string, activity *Activity) (*ResourceResponse, error) {
	var resp ResourceResponse
	path := "v3/conversations/" + url.PathEscape(conversationID) + "/activities/" + url.PathEscape(activityID)
	if err := c.gateway.InvokeAt(ctx, serviceURL, http.MethodPut, path, activity, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		resp.ID = activityID
	}
	return &resp, nil
}
