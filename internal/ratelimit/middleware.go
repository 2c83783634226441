package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"

	"feedback-bot/internal/common/logging"
	"feedback-bot/internal/redis"
)

// Limiter decides whether one more hit for key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// New picks the distributed backend when a Redis client is available.
func New(config Config, client *redis.Client) (Limiter, error) {
	if client != nil {
		limiter, err := NewDistributedLimiter(client, config)
		if err != nil {
			return nil, err
		}
		return limiter, nil
	}
	limiter, err := NewLocalLimiter(config)
	if err != nil {
		return nil, err
	}
	return limiter, nil
}

// HTTPMiddleware rejects requests over the limit with 429. Backend failures
// let the request through.
func HTTPMiddleware(limiter Limiter, keyFunc func(*http.Request) string, logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.WithContext(r.Context()).Warn("Rate limit check failed, allowing request",
					logging.String("key", key), logging.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				logger.WithContext(r.Context()).Warn("Rate limit exceeded", logging.String("key", key))
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IPBasedKey keys on the connection's peer address. Forwarding headers are
// ignored because any caller can set them.
func IPBasedKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// ProxyIPKey keys on the address a trusted reverse proxy reports: the last
// X-Forwarded-For entry (the one the proxy appended), then X-Real-IP, then the
// peer address. Use it only when every request passes through such a proxy.
func ProxyIPKey(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		entries := strings.Split(forwarded, ",")
		if last := strings.TrimSpace(entries[len(entries)-1]); last != "" {
			return "ip:" + last
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return "ip:" + realIP
	}
	return IPBasedKey(r)
}

// KeyFunc picks the caller key for the deployment
func KeyFunc(trustProxy bool) func(*http.Request) string {
	if trustProxy {
		return ProxyIPKey
	}
	return IPBasedKey
}
