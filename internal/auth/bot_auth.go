// Package auth validates the bearer tokens the Bot Framework channel
// attaches to inbound activities.
package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"feedback-bot/internal/common/errors"
	commonhttp "feedback-bot/internal/common/http"
	"feedback-bot/internal/common/logging"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultKeyCacheTTL is how long fetched signing keys are trusted
	DefaultKeyCacheTTL = 24 * time.Hour

	// minRefreshInterval limits refetches triggered by unknown key ids
	minRefreshInterval = time.Minute

	clockLeeway = 5 * time.Minute
)

// Config describes how inbound tokens are validated
type Config struct {
	KeysURL  string
	Issuer   string
	Audience string
	CacheTTL time.Duration
}

// BotClaims are the claims the channel puts in its tokens
type BotClaims struct {
	ServiceURL string `json:"serviceurl,omitempty"`
	jwt.RegisteredClaims
}

type jsonWebKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type keySet struct {
	Keys []jsonWebKey `json:"keys"`
}

// BotAuthenticator checks RS256 bearer tokens against the channel's
// published signing keys.
type BotAuthenticator struct {
	config Config
	client *http.Client
	logger logging.Logger
	now    func() time.Time

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
	group     singleflight.Group
}

type Option func(*BotAuthenticator)

func WithHTTPClient(client *http.Client) Option {
	return func(a *BotAuthenticator) {
		a.client = client
	}
}

func WithLogger(logger logging.Logger) Option {
	return func(a *BotAuthenticator) {
		a.logger = logger
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(a *BotAuthenticator) {
		a.now = now
	}
}

func NewBotAuthenticator(config Config, opts ...Option) (*BotAuthenticator, error) {
	if config.KeysURL == "" {
		return nil, errors.ValidationError("signing keys url is required")
	}
	if config.Issuer == "" {
		return nil, errors.ValidationError("token issuer is required")
	}
	if config.Audience == "" {
		return nil, errors.ValidationError("token audience is required")
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = DefaultKeyCacheTTL
	}

	a := &BotAuthenticator{
		config: config,
		client: commonhttp.NewHTTPClient(),
		logger: logging.GetGlobalLogger(),
		now:    time.Now,
		keys:   make(map[string]*rsa.PublicKey),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.WithFields(logging.String("component", "bot_auth"))
	return a, nil
}

// Authenticate validates the Authorization header value and returns the
// token's claims.
func (a *BotAuthenticator) Authenticate(ctx context.Context, header string) (*BotClaims, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, errors.AuthError("missing bearer token")
	}

	claims := &BotClaims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims,
		func(token *jwt.Token) (interface{}, error) {
			kid, _ := token.Header["kid"].(string)
			return a.key(ctx, kid)
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(a.config.Issuer),
		jwt.WithAudience(a.config.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockLeeway),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		appErr := errors.AuthError("invalid bearer token")
		appErr.Cause = err
		return nil, appErr
	}
	return claims, nil
}

// key returns the signing key for kid, refreshing the key set when it is
// stale or does not know kid.
func (a *BotAuthenticator) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if kid == "" {
		return nil, fmt.Errorf("token has no key id")
	}

	a.mu.RLock()
	key, found := a.keys[kid]
	fetchedAt := a.fetchedAt
	a.mu.RUnlock()

	age := a.now().Sub(fetchedAt)
	stale := fetchedAt.IsZero() || age >= a.config.CacheTTL
	if found && !stale {
		return key, nil
	}
	if !found && !stale && age < minRefreshInterval {
		return nil, fmt.Errorf("unknown signing key %q", kid)
	}

	if err := a.refresh(ctx); err != nil {
		if found {
			a.logger.Warn("Using stale signing key", logging.Err(err))
			return key, nil
		}
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if key, ok := a.keys[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("unknown signing key %q", kid)
}

// refresh fetches the key set; concurrent callers share one request
func (a *BotAuthenticator) refresh(ctx context.Context) error {
	_, err, _ := a.group.Do("keys", func() (interface{}, error) {
		keys, err := a.fetchKeys(ctx)
		if err != nil {
			return nil, err
		}
		a.mu.Lock()
		a.keys = keys
		a.fetchedAt = a.now()
		a.mu.Unlock()
		a.logger.Debug("Signing keys refreshed", logging.Int("keys", len(keys)))
		return nil, nil
	})
	return err
}

func (a *BotAuthenticator) fetchKeys(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.KeysURL, nil)
	if err != nil {
		return nil, errors.TransportError("failed to build signing keys request", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, errors.TransportError("failed to fetch signing keys", err)
	}
	body, err := commonhttp.ReadBody(resp)
	if err != nil {
		return nil, errors.TransportError("failed to read signing keys", err)
	}
	if !commonhttp.IsSuccess(resp.StatusCode) {
		return nil, errors.ServiceError(resp.StatusCode, string(body))
	}

	var set keySet
	if err := json.Unmarshal(body, &set); err != nil {
		return nil, errors.ServiceError(resp.StatusCode, string(body)).WithContext("decode_error", err.Error())
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.Kid == "" {
			continue
		}
		key, err := parseRSAKey(jwk)
		if err != nil {
			a.logger.Warn("Skipping unusable signing key", logging.String("kid", jwk.Kid), logging.Err(err))
			continue
		}
		keys[jwk.Kid] = key
	}
	return keys, nil
}

func parseRSAKey(jwk jsonWebKey) (*rsa.PublicKey, error) {
	if !strings.EqualFold(jwk.Kty, "rsa") {
		return nil, fmt.Errorf("unsupported key type %q", jwk.Kty)
	}
	modulus, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(jwk.N, "="))
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	exponent, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(jwk.E, "="))
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}

	e := 0
	for _, b := range exponent {
		e = e<<8 | int(b)
	}
	if e <= 0 {
		return nil, fmt.Errorf("invalid exponent")
	}
	n := new(big.Int).SetBytes(modulus)
	if n.Sign() <= 0 {
		return nil, fmt.Errorf("invalid modulus")
	}
	return &rsa.PublicKey{N: n, E: e}, nil
}

type claimsKey struct{}

// ContextWithClaims stores validated claims for downstream handlers
func ContextWithClaims(ctx context.Context, claims *BotClaims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFrom returns the claims stored by Middleware, if any
func ClaimsFrom(ctx context.Context) (*BotClaims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*BotClaims)
	return claims, ok
}

// Middleware rejects requests without a valid channel token with 401
func (a *BotAuthenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			a.logger.WithContext(r.Context()).Warn("Rejected inbound activity", logging.Err(err))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": "Authentication required"}`))
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
	})
}
