package storage

import (
	"encoding/json"
	"time"
)

// Bucket names for bbolt database
const (
	TokenBucket        = "token" //nolint:gosec // bucket name, not a credential
	ProductCacheBucket = "product_cache"
	SyncMetaBucket     = "sync_meta"
	PendingSyncBucket  = "pending_sync"
	MetaBucket         = "meta"
)

// Keys inside fixed-key buckets
const (
	// AuthTokenKey is the single token record key
	AuthTokenKey = "auth_token"

	// ProductCacheKey is the known storage key holding the whole cached
	// product array used by the dual-write path
	ProductCacheKey = "products"

	// SchemaVersionKey is the schema version meta key
	SchemaVersionKey = "schema"
)

// Sync-meta keys for last successful refresh timestamps
const (
	ProductsSyncTimeKey = "last_products_sync"
	OrdersSyncTimeKey   = "last_orders_sync"
)

// Current schema version
const CurrentSchemaVersion = 1

// TokenRecord is the persisted auth token with its decoded expiry, kept for
// diagnostics. The expiry check at read time always re-decodes the token.
type TokenRecord struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	Stored    time.Time `json:"stored"`
}

// PendingSyncRecord is a record awaiting upload. Creation is currently always
// direct-to-server, so this queue stays empty; it is retained as the seam for
// future offline support.
type PendingSyncRecord struct {
	LocalID  string          `json:"local_id"`
	Resource string          `json:"resource"` // "products" or "orders"
	Payload  json.RawMessage `json:"payload"`
	Created  time.Time       `json:"created"`
}

// MarshalBinary implements encoding.BinaryMarshaler
func (t *TokenRecord) MarshalBinary() ([]byte, error) {
	return json.Marshal(t)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler
func (t *TokenRecord) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, t)
}

// MarshalBinary implements encoding.BinaryMarshaler
func (p *PendingSyncRecord) MarshalBinary() ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler
func (p *PendingSyncRecord) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, p)
}
