package teams

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"feedback-bot/internal/common/cache"
	"feedback-bot/internal/common/logging"
)

// Chat is the subset of a Graph chat resource the bot reads
type Chat struct {
	ID       string `json:"id"`
	Topic    string `json:"topic"`
	ChatType string `json:"chatType"`
}

// GraphClient reads chat metadata from Microsoft Graph
type GraphClient struct {
	gateway *Gateway
}

func NewGraphClient(gateway *Gateway) *GraphClient {
	return &GraphClient{gateway: gateway}
}

// GetChat fetches a chat by id
func (g *GraphClient) GetChat(ctx context.Context, chatID string) (*Chat, error) {
	var chat Chat
	if err := g.gateway.Invoke(ctx, http.MethodGet, "chats/"+url.PathEscape(chatID), nil, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// ChatLookup is anything that can fetch a chat by id
type ChatLookup interface {
	GetChat(ctx context.Context, chatID string) (*Chat, error)
}

// CachedChats remembers chat lookups for ttl. Cache failures fall through
// to the underlying lookup.
type CachedChats struct {
	next   ChatLookup
	cache  cache.Cache
	ttl    time.Duration
	logger logging.Logger
}

func NewCachedChats(next ChatLookup, c cache.Cache, ttl time.Duration, logger logging.Logger) *CachedChats {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &CachedChats{
		next:   next,
		cache:  c,
		ttl:    ttl,
		logger: logger.WithFields(logging.String("component", "chat_cache")),
	}
}

func (c *CachedChats) GetChat(ctx context.Context, chatID string) (*Chat, error) {
	key := "chat:" + chatID

	var chat Chat
	found, err := c.cache.Get(ctx, key, &chat)
	if err != nil {
		c.logger.WithContext(ctx).Warn("Chat cache read failed", logging.String("chat_id", chatID), logging.Err(err))
	} else if found {
		return &chat, nil
	}

	fetched, err := c.next.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, fetched, c.ttl); err != nil {
		c.logger.WithContext(ctx).Warn("Chat cache write failed", logging.String("chat_id", chatID), logging.Err(err))
	}
	return fetched, nil
}
