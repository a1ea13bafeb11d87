// Package discovery finds a reachable backend among the configured candidate
// base URLs and tracks the connection state.
package discovery

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"possync-go/internal/config"
	"possync-go/internal/events"
)

// ErrNoServerAvailable is returned when every candidate fails its probe.
// Callers should surface this as a connectivity problem with a retry
// affordance, not as a data error.
var ErrNoServerAvailable = errors.New("cannot connect to backend: no server available")

// healthEndpoint is the cheap probe target. It may be auth-gated: a 401
// still proves the server is alive.
const healthEndpoint = "/api/health"

// Discovery probes candidate base URLs in priority order and remembers the
// last working one.
type Discovery struct {
	state        *State
	candidates   func() []string
	httpClient   *http.Client
	probeTimeout time.Duration
	logger       *zap.Logger
}

// New creates a Discovery. candidates is called on every discovery round so
// config hot-reloads take effect without restarting; the first entry is the
// preferred endpoint.
func New(candidates func() []string, probeTimeout time.Duration, bus *events.Bus, logger *zap.Logger) *Discovery {
	if probeTimeout <= 0 {
		probeTimeout = config.DefaultProbeTimeout
	}
	return &Discovery{
		state:      NewState(bus),
		candidates: candidates,
		// No client-level timeout: each probe carries its own context
		// deadline so an aborted probe cannot affect a sibling. Keep-alives
		// are off so a probe connection is never reused by a later request:
		// net/http silently replays idempotent requests on dead reused
		// connections, which would inflate the gateway's attempt bound.
		httpClient: &http.Client{
			Transport: &http.Transport{DisableKeepAlives: true},
		},
		probeTimeout: probeTimeout,
		logger:       logger.Named("discovery"),
	}
}

// State exposes the connection state for the gateway and CLI status output.
func (d *Discovery) State() *State {
	return d.state
}

// TestConnection issues a bounded-time GET against the health endpoint of
// url. HTTP 401 and any 2xx count as alive; any other status, a timeout, or
// a network error count as dead. A passing probe updates the connection
// state.
func (d *Discovery) TestConnection(ctx context.Context, url string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, d.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url+healthEndpoint, nil)
	if err != nil {
		d.logger.Debug("Failed to build probe request",
			zap.String("url", url), zap.Error(err))
		return false
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.logger.Debug("Probe failed",
			zap.String("url", url), zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	alive := (resp.StatusCode >= 200 && resp.StatusCode < 300) ||
		resp.StatusCode == http.StatusUnauthorized
	if !alive {
		d.logger.Debug("Probe returned non-alive status",
			zap.String("url", url), zap.Int("status", resp.StatusCode))
		return false
	}

	d.state.MarkConnected(url)
	d.logger.Debug("Probe succeeded",
		zap.String("url", url), zap.Int("status", resp.StatusCode))
	return true
}

// FindWorkingServer probes the last-known-good URL first, then each
// configured candidate in priority order, returning the first that passes.
// When all fail it marks the state disconnected and returns
// ErrNoServerAvailable.
func (d *Discovery) FindWorkingServer(ctx context.Context) (string, error) {
	tried := make(map[string]bool)

	if lastGood := d.state.LastSuccessfulURL(); lastGood != "" {
		tried[lastGood] = true
		if d.TestConnection(ctx, lastGood) {
			return lastGood, nil
		}
		d.logger.Info("Last known good server unreachable, probing candidates",
			zap.String("url", lastGood))
	}

	for _, url := range d.candidates() {
		if tried[url] {
			continue
		}
		tried[url] = true
		if d.TestConnection(ctx, url) {
			d.logger.Info("Found working server", zap.String("url", url))
			return url, nil
		}
	}

	d.state.MarkDisconnected()
	d.logger.Warn("No working server found",
		zap.Int("candidates_tried", len(tried)))
	return "", ErrNoServerAvailable
}

// EnsureConnection no-ops when already connected with a known-good URL;
// otherwise it runs discovery and fails hard when nothing is reachable.
func (d *Discovery) EnsureConnection(ctx context.Context) (string, error) {
	if d.state.IsConnected() {
		if url := d.state.CurrentURL(); url != "" {
			return url, nil
		}
	}
	return d.FindWorkingServer(ctx)
}
