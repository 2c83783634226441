// Package oauth2 obtains and caches bearer tokens using the OAuth2
// client-credentials grant.
package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"feedback-bot/internal/circuitbreaker"
	"feedback-bot/internal/common/errors"
	commonhttp "feedback-bot/internal/common/http"
	"feedback-bot/internal/common/logging"
	"feedback-bot/internal/crypto"

	"golang.org/x/sync/semaphore"
)

// TokenSkew is subtracted from a token's lifetime so it is refreshed before
// the authorization server considers it expired.
const TokenSkew = 60 * time.Second

// Credential identifies a client at a token endpoint
type Credential struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string
}

// TokenResponse is the token endpoint's success body
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// CachedToken is an access token with the instant it was received
type CachedToken struct {
	AccessToken string
	IssuedAt    time.Time
	Lifetime    time.Duration
}

// ValidAt reports whether the token may still be used at now. Lifetimes
// shorter than TokenSkew are never valid.
func (t *CachedToken) ValidAt(now time.Time) bool {
	return now.Sub(t.IssuedAt) < t.Lifetime-TokenSkew
}

// CredentialCache hands out a valid bearer token for one credential, fetching
// a new one when the cached token is missing or about to expire. The check,
// fetch and replace happen inside one critical section so concurrent callers
// trigger at most one request to the token endpoint.
type CredentialCache struct {
	sem   *semaphore.Weighted
	token *CachedToken

	tokenURL        string
	clientID        string
	scope           string
	encryptedSecret string

	encryptor  *crypto.ConfigEncryptor
	httpClient *http.Client
	breaker    *circuitbreaker.GoBreakerAdapter
	logger     logging.Logger
	now        func() time.Time
}

// Option configures a CredentialCache
type Option func(*CredentialCache)

func WithHTTPClient(client *http.Client) Option {
	return func(c *CredentialCache) {
		c.httpClient = client
	}
}

func WithCircuitBreaker(breaker *circuitbreaker.GoBreakerAdapter) Option {
	return func(c *CredentialCache) {
		c.breaker = breaker
	}
}

// WithEncryptor sets the encryptor protecting the client secret in memory
func WithEncryptor(encryptor *crypto.ConfigEncryptor) Option {
	return func(c *CredentialCache) {
		c.encryptor = encryptor
	}
}

func WithLogger(logger logging.Logger) Option {
	return func(c *CredentialCache) {
		c.logger = logger
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(c *CredentialCache) {
		c.now = now
	}
}

// NewCredentialCache creates an empty cache for cred
func NewCredentialCache(cred Credential, opts ...Option) (*CredentialCache, error) {
	if cred.TokenURL == "" {
		return nil, errors.ValidationError("token URL is required")
	}
	if cred.ClientID == "" {
		return nil, errors.ValidationError("client ID is required")
	}

	c := &CredentialCache{
		sem:      semaphore.NewWeighted(1),
		tokenURL: cred.TokenURL,
		clientID: cred.ClientID,
		scope:    cred.Scope,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = commonhttp.NewHTTPClient()
	}
	if c.logger == nil {
		c.logger = logging.GetGlobalLogger()
	}
	c.logger = c.logger.WithFields(
		logging.String("component", "credential_cache"),
		logging.String("scope", cred.Scope),
	)

	if c.encryptor == nil {
		encryptor, err := crypto.NewEphemeralEncryptor()
		if err != nil {
			return nil, err
		}
		c.encryptor = encryptor
	}

	encrypted, err := c.encryptor.Encrypt(cred.ClientSecret)
	if err != nil {
		return nil, errors.InternalError("failed to encrypt client secret", err)
	}
	c.encryptedSecret = encrypted

	return c, nil
}

// GetToken returns a valid access token, refreshing it first if needed. A
// failed refresh returns a credential error and leaves the cache untouched.
func (c *CredentialCache) GetToken(ctx context.Context) (string, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer c.sem.Release(1)

	if c.token != nil && c.token.ValidAt(c.now()) {
		return c.token.AccessToken, nil
	}

	token, err := c.fetch(ctx)
	if err != nil {
		return "", err
	}

	c.token = token
	c.logger.Debug("Access token refreshed", logging.Duration("lifetime", token.Lifetime))
	return token.AccessToken, nil
}

// Invalidate drops the cached token if it is still accessToken, so a token
// rejected by a resource server is not handed out again.
func (c *CredentialCache) Invalidate(accessToken string) {
	if err := c.sem.Acquire(context.Background(), 1); err != nil {
		return
	}
	defer c.sem.Release(1)

	if c.token != nil && c.token.AccessToken == accessToken {
		c.token = nil
	}
}

func (c *CredentialCache) fetch(ctx context.Context) (*CachedToken, error) {
	secret, err := c.encryptor.Decrypt(c.encryptedSecret)
	if err != nil {
		return nil, errors.CredentialError("failed to decrypt client secret", err)
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", secret)
	form.Set("scope", c.scope)

	var token *CachedToken
	request := func() error {
		var reqErr error
		token, reqErr = c.requestToken(ctx, form)
		return reqErr
	}

	if c.breaker != nil {
		err = c.breaker.Execute(ctx, request)
	} else {
		err = request()
	}

	if err != nil {
		if !errors.IsType(err, errors.ErrTypeCredential) {
			err = errors.CredentialError("token request failed", err)
		}
		c.logger.Warn("Token refresh failed", logging.Err(err))
		return nil, err
	}
	return token, nil
}

func (c *CredentialCache) requestToken(ctx context.Context, form url.Values) (*CachedToken, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.CredentialError("failed to create token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.CredentialError("token request failed", err)
	}

	body, err := commonhttp.ReadBody(resp)
	if err != nil {
		return nil, errors.CredentialError("failed to read token response", err)
	}

	if !commonhttp.IsSuccess(resp.StatusCode) {
		credErr := errors.CredentialError(fmt.Sprintf("token endpoint responded with status %d", resp.StatusCode), nil).
			WithContext("status", resp.StatusCode)

		var oauthErr struct {
			Error       string `json:"error"`
			Description string `json:"error_description"`
		}
		if json.Unmarshal(body, &oauthErr) == nil && oauthErr.Error != "" {
			credErr.WithCode(oauthErr.Error).WithContext("description", oauthErr.Description)
		}
		return nil, credErr
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, errors.CredentialError("failed to decode token response", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, errors.CredentialError("token response has no access_token", nil)
	}

	lifetime := time.Duration(tokenResp.ExpiresIn) * time.Second
	if lifetime < 0 {
		lifetime = 0
	}

	return &CachedToken{
		AccessToken: tokenResp.AccessToken,
		IssuedAt:    c.now(),
		Lifetime:    lifetime,
	}, nil
}
