// Package auth provides the client-side auth token cache: an in-memory fast
// path over the durable store, with expiry decoded (not verified) from the
// token itself.
package auth

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"possync-go/internal/config"
	"possync-go/internal/events"
	"possync-go/internal/storage"
)

// tokenClaims is the subset of the bearer token payload we care about.
type tokenClaims struct {
	Exp int64 `json:"exp"`
}

// TokenCache caches the bearer token in memory and in durable storage.
// Lookups never return an expiry-imminent token. All read paths are
// sentinel-based: an empty string means "no usable token", never an error.
type TokenCache struct {
	mu      sync.Mutex
	cached  string
	storage *storage.Manager
	bus     *events.Bus
	logger  *zap.Logger

	// now is injectable for expiry tests
	now func() time.Time
}

// NewTokenCache creates a token cache backed by the given storage manager.
func NewTokenCache(store *storage.Manager, bus *events.Bus, logger *zap.Logger) *TokenCache {
	return &TokenCache{
		storage: store,
		bus:     bus,
		logger:  logger.Named("token-cache"),
		now:     time.Now,
	}
}

// GetCachedToken returns the memory-cached token if present and not
// expiry-imminent; otherwise it falls back to durable storage, validates the
// expiry, promotes the token to memory, and returns it. Returns "" when no
// usable token exists. An expired persisted token is cleared as a side
// effect.
func (c *TokenCache) GetCachedToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != "" {
		if !c.isExpired(c.cached) {
			return c.cached
		}
		c.cached = ""
	}

	record, err := c.storage.GetToken()
	if err != nil {
		c.logger.Warn("Failed to read persisted token", zap.Error(err))
		return ""
	}
	if record == nil || record.Token == "" {
		return ""
	}

	if c.isExpired(record.Token) {
		c.logger.Info("Persisted token expired, clearing")
		if err := c.storage.DeleteToken(); err != nil {
			c.logger.Warn("Failed to clear expired token", zap.Error(err))
		}
		return ""
	}

	c.cached = record.Token
	return c.cached
}

// StoreToken persists the token to durable storage and the memory cache.
// The expiry claim is decoded and recorded for diagnostics.
func (c *TokenCache) StoreToken(token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt, ok := decodeExpiry(token)
	if !ok {
		c.logger.Warn("Storing token without a decodable expiry claim")
	}

	if err := c.storage.SaveToken(token, expiresAt); err != nil {
		return err
	}
	c.cached = token

	if ok {
		c.logger.Debug("Token stored",
			zap.Time("expires_at", expiresAt),
			zap.Duration("ttl", expiresAt.Sub(c.now())))
	}

	if c.bus != nil {
		c.bus.Publish(events.Event{Type: events.TokenStored})
	}
	return nil
}

// ClearToken removes the token from memory and durable storage.
func (c *TokenCache) ClearToken() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cached = ""
	if err := c.storage.DeleteToken(); err != nil {
		return err
	}

	if c.bus != nil {
		c.bus.Publish(events.Event{Type: events.TokenCleared})
	}
	return nil
}

// IsTokenExpired decodes the middle segment of a three-part dot-delimited
// token as base64 JSON and checks the exp claim against now plus the safety
// buffer. Any decode failure or missing claim counts as expired.
func (c *TokenCache) IsTokenExpired(token string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isExpired(token)
}

func (c *TokenCache) isExpired(token string) bool {
	expiresAt, ok := decodeExpiry(token)
	if !ok {
		return true
	}
	return !expiresAt.After(c.now().Add(config.TokenExpiryBuffer))
}

// GetValidToken returns the cached token if still valid; otherwise it
// attempts a refresh. There is no server refresh endpoint, so refresh clears
// the token and returns "" - callers must treat an empty result as
// "re-authentication required", not a transient error.
func (c *TokenCache) GetValidToken() string {
	if token := c.GetCachedToken(); token != "" {
		return token
	}
	return c.refreshToken()
}

// refreshToken is a stub: no refresh endpoint exists.
func (c *TokenCache) refreshToken() string {
	c.logger.Info("Token refresh requested but no refresh endpoint exists; re-authentication required")
	if err := c.ClearToken(); err != nil {
		c.logger.Warn("Failed to clear token during refresh", zap.Error(err))
	}
	return ""
}

// decodeExpiry extracts the exp claim from the token payload. It returns
// false for a wrong segment count, undecodable base64, bad JSON, or a
// missing claim.
func decodeExpiry(token string) (time.Time, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return time.Time{}, false
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return time.Time{}, false
	}

	var claims tokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.Exp == 0 {
		return time.Time{}, false
	}

	return time.Unix(claims.Exp, 0), true
}
