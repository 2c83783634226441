// Package teams talks to the Bot Framework connector and Microsoft Graph with
// bearer tokens from a credential cache.
package teams

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"feedback-bot/internal/circuitbreaker"
	"feedback-bot/internal/common/errors"
	commonhttp "feedback-bot/internal/common/http"
	"feedback-bot/internal/common/logging"
)

// TokenSource supplies bearer tokens
type TokenSource interface {
	GetToken(ctx context.Context) (string, error)
}

// tokenInvalidator is implemented by token sources that can drop a rejected token
type tokenInvalidator interface {
	Invalidate(accessToken string)
}

// Gateway performs bearer-authenticated JSON calls against a base URL. It
// never retries.
type Gateway struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	breaker    *circuitbreaker.GoBreakerAdapter
	logger     logging.Logger
}

// GatewayOption configures a Gateway
type GatewayOption func(*Gateway)

func WithHTTPClient(client *http.Client) GatewayOption {
	return func(g *Gateway) {
		g.httpClient = client
	}
}

func WithCircuitBreaker(breaker *circuitbreaker.GoBreakerAdapter) GatewayOption {
	return func(g *Gateway) {
		g.breaker = breaker
	}
}

func WithLogger(logger logging.Logger) GatewayOption {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// NewGateway creates a gateway for baseURL
func NewGateway(baseURL string, tokens TokenSource, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		baseURL: baseURL,
		tokens:  tokens,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.httpClient == nil {
		g.httpClient = commonhttp.NewHTTPClient()
	}
	if g.logger == nil {
		g.logger = logging.GetGlobalLogger()
	}
	g.logger = g.logger.WithFields(logging.String("component", "gateway"))
	return g
}

// BaseURL returns the gateway's default base URL
func (g *Gateway) BaseURL() string {
	return g.baseURL
}

// JoinURL joins base and path, dropping one trailing slash from base and one
// leading slash from path.
func JoinURL(base, path string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}

// Invoke calls path relative to the default base URL
func (g *Gateway) Invoke(ctx context.Context, method, path string, body, out interface{}) error {
	return g.InvokeAt(ctx, "", method, path, body, out)
}

// InvokeAt calls path relative to baseURL, or the default base URL when
// baseURL is empty. body is JSON encoded when non-nil and a 2xx response is
// decoded into out when out is non-nil. Non-2xx responses become service
// errors, network failures transport errors.
func (g *Gateway) InvokeAt(ctx context.Context, baseURL, method, path string, body, out interface{}) error {
	if baseURL == "" {
		baseURL = g.baseURL
	}
	target := JoinURL(baseURL, path)

	token, err := g.tokens.GetToken(ctx)
	if err != nil {
		return err
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return errors.InternalError("failed to encode request body", err)
		}
	}

	call := func() error {
		return g.do(ctx, method, target, token, payload, out)
	}

	if g.breaker != nil {
		err = g.breaker.Execute(ctx, call)
	} else {
		err = call()
	}

	if errors.ServiceStatus(err) == http.StatusUnauthorized {
		if invalidator, ok := g.tokens.(tokenInvalidator); ok {
			invalidator.Invalidate(token)
		}
	}
	return err
}

func (g *Gateway) do(ctx context.Context, method, target, token string, payload []byte, out interface{}) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return errors.InternalError("failed to create request", err).WithContext("url", target)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return errors.TransportError(fmt.Sprintf("%s %s failed", method, target), err)
	}

	respBody, err := commonhttp.ReadBody(resp)
	if err != nil {
		return errors.TransportError(fmt.Sprintf("failed to read response from %s", target), err)
	}

	g.logger.WithContext(ctx).Debug("Outbound request completed",
		logging.String("method", method),
		logging.String("url", target),
		logging.Int("status", resp.StatusCode),
		logging.Duration("duration", time.Since(start)),
	)

	if !commonhttp.IsSuccess(resp.StatusCode) {
		return serviceError(resp.StatusCode, respBody)
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return errors.InternalError("failed to decode response body", err).
			WithContext("url", target).
			WithContext("status", resp.StatusCode)
	}
	return nil
}

// serviceError keeps the structured connector error when the body parses as
// one and the raw text otherwise.
func serviceError(status int, body []byte) error {
	var structured ErrorResponse
	if json.Unmarshal(body, &structured) == nil && (structured.Error.Code != "" || structured.Error.Message != "") {
		return errors.ServiceError(status, &structured.Error).WithCode(structured.Error.Code)
	}
	return errors.ServiceError(status, string(body))
}
