// Package gateway wraps HTTP access to the backend: base-URL resolution via
// discovery, bearer-token injection, a one-shot fallback login on a cold
// 401, and a single reconnect-and-retry on transport failure.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"possync-go/internal/auth"
	"possync-go/internal/config"
	"possync-go/internal/discovery"
)

// ErrUnauthorized marks authentication failures so callers can route to
// re-login instead of retrying.
var ErrUnauthorized = errors.New("unauthorized: please log in again")

// apiPrefix is prepended to every endpoint under the resolved base URL.
const apiPrefix = "/api"

// loginEndpoint is the credential login path used by Login and the
// degraded-mode fallback.
const loginEndpoint = "/auth/login"

// Client is the API gateway. Total attempts per Call are bounded: two outer
// transport attempts plus at most one inner fallback-login replay.
type Client struct {
	discovery  *discovery.Discovery
	tokens     *auth.TokenCache
	httpClient *http.Client
	fallback   *config.FallbackLoginConfig
	logger     *zap.Logger
}

// New creates a gateway client.
func New(d *discovery.Discovery, tokens *auth.TokenCache, fallback *config.FallbackLoginConfig, requestTimeout time.Duration, logger *zap.Logger) *Client {
	if requestTimeout <= 0 {
		requestTimeout = config.DefaultRequestTimeout
	}
	return &Client{
		discovery: d,
		tokens:    tokens,
		// Own transport, never the shared default: a request riding a
		// connection pooled by another client can be silently replayed by
		// net/http when that connection dies, breaking the attempt bound.
		httpClient: &http.Client{
			Timeout:   requestTimeout,
			Transport: &http.Transport{},
		},
		fallback: fallback,
		logger:   logger.Named("gateway"),
	}
}

// Call issues a request to {base}/api{endpoint}. The body may be nil, a
// json.RawMessage, or any JSON-marshalable value. Non-2xx responses are
// returned for the caller to inspect; only connectivity problems produce an
// error. On a transport failure the gateway marks the connection lost,
// re-runs discovery once, and retries the request once.
func (c *Client) Call(ctx context.Context, method, endpoint string, body interface{}, headers map[string]string) (*Response, error) {
	resp, err := c.callOnce(ctx, method, endpoint, body, headers)
	if err == nil {
		return resp, nil
	}

	c.logger.Warn("Request failed, reconnecting and retrying once",
		zap.String("method", method),
		zap.String("endpoint", endpoint),
		zap.Error(err))

	c.discovery.State().MarkDisconnected()
	if _, derr := c.discovery.FindWorkingServer(ctx); derr != nil {
		return nil, fmt.Errorf("request to %s failed and reconnect found no server: %w", endpoint, derr)
	}

	resp, err = c.callOnce(ctx, method, endpoint, body, headers)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed after reconnect: %w", endpoint, err)
	}
	return resp, nil
}

// callOnce performs one resolution + request cycle, including the
// cold-401 fallback login. It returns an error only for connectivity
// failures.
func (c *Client) callOnce(ctx context.Context, method, endpoint string, body interface{}, headers map[string]string) (*Response, error) {
	baseURL, err := c.discovery.EnsureConnection(ctx)
	if err != nil {
		return nil, err
	}

	// Best-effort: absence of a token is not fatal, the request simply goes
	// out unauthenticated.
	token := c.tokens.GetCachedToken()

	resp, err := c.send(ctx, baseURL, method, endpoint, body, headers, token)
	if err != nil {
		c.discovery.State().MarkDisconnected()
		return nil, err
	}

	// Degraded-mode convenience: a 401 in the never-authenticated state
	// triggers a single fallback login and a single replay. A 401 with a
	// token present surfaces to the caller - that token was rejected and
	// retrying with it cannot help.
	if resp.StatusCode == http.StatusUnauthorized && token == "" && c.fallback.Enabled() {
		c.logger.Info("Unauthenticated 401, attempting fallback login",
			zap.String("endpoint", endpoint))

		newToken, lerr := c.Login(ctx, c.fallback.Username, c.fallback.Password)
		if lerr != nil {
			c.logger.Warn("Fallback login failed, returning original response",
				zap.Error(lerr))
			return resp, nil
		}

		replay, rerr := c.send(ctx, baseURL, method, endpoint, body, headers, newToken)
		if rerr != nil {
			c.discovery.State().MarkDisconnected()
			return nil, rerr
		}
		return replay, nil
	}

	return resp, nil
}

// send builds and executes a single HTTP request, reading the body fully.
func (c *Client) send(ctx context.Context, baseURL, method, endpoint string, body interface{}, headers map[string]string, token string) (*Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := encodeBody(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+apiPrefix+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
	}, nil
}

func encodeBody(body interface{}) ([]byte, error) {
	switch b := body.(type) {
	case json.RawMessage:
		return b, nil
	case []byte:
		return b, nil
	default:
		return json.Marshal(body)
	}
}

// loginResponse is the data payload of a successful login.
type loginResponse struct {
	Token string `json:"token"`
}

// Login authenticates with the backend and caches the returned token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	baseURL, err := c.discovery.EnsureConnection(ctx)
	if err != nil {
		return "", err
	}

	creds := map[string]string{"username": username, "password": password}
	resp, err := c.send(ctx, baseURL, http.MethodPost, loginEndpoint, creds, nil, "")
	if err != nil {
		c.discovery.State().MarkDisconnected()
		return "", err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return "", fmt.Errorf("%w: %s", ErrUnauthorized, resp.ErrorMessage())
	}
	if !resp.OK() {
		return "", fmt.Errorf("login failed: %s", resp.ErrorMessage())
	}

	env, err := resp.Envelope()
	if err != nil {
		return "", err
	}

	var login loginResponse
	if err := json.Unmarshal(env.Data, &login); err != nil || login.Token == "" {
		return "", fmt.Errorf("login response missing token")
	}

	if err := c.tokens.StoreToken(login.Token); err != nil {
		c.logger.Warn("Failed to cache login token", zap.Error(err))
	}

	return login.Token, nil
}

// Logout clears the cached token.
func (c *Client) Logout() error {
	return c.tokens.ClearToken()
}
