// Centralized timeout and retry constants to eliminate magic numbers.
package config

import "time"

// Discovery & Probe Timeouts
const (
	// DefaultProbeTimeout bounds a single server reachability probe.
	// A slow candidate must not stall discovery of the next one.
	DefaultProbeTimeout = 5 * time.Second

	// DefaultRequestTimeout bounds a single gateway request end to end.
	DefaultRequestTimeout = 30 * time.Second
)

// Retry & Backoff Configuration
const (
	// DefaultMaxRetries is the number of retries for database-critical field
	// updates (4 total attempts).
	DefaultMaxRetries = 3

	// InitialBackoffDelay is the starting delay for exponential backoff
	InitialBackoffDelay = 1 * time.Second

	// MaxBackoffDelay is the maximum delay between retry attempts
	MaxBackoffDelay = 30 * time.Second
)

// Token Handling
const (
	// TokenExpiryBuffer is the safety margin before the embedded expiry claim.
	// A token within this window of expiring is treated as already expired.
	TokenExpiryBuffer = 5 * time.Minute
)

// Event Bus
const (
	// EventChannelBufferSize is the buffer for per-type subscriber channels
	EventChannelBufferSize = 16

	// EventChannelBufferSizeAll is the buffer for subscribe-all channels
	EventChannelBufferSizeAll = 64
)
