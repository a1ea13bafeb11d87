package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"possync-go/internal/events"
)

func newDiscovery(candidates []string, probeTimeout time.Duration) *Discovery {
	return New(func() []string { return candidates }, probeTimeout, events.NewBus(), zap.NewNop())
}

func statusServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTestConnectionStatuses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		alive  bool
	}{
		{"ok", http.StatusOK, true},
		{"created", http.StatusCreated, true},
		{"unauthorized counts as alive", http.StatusUnauthorized, true},
		{"server error", http.StatusInternalServerError, false},
		{"not found", http.StatusNotFound, false},
		{"forbidden", http.StatusForbidden, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := statusServer(t, tt.status)
			d := newDiscovery([]string{srv.URL}, time.Second)
			assert.Equal(t, tt.alive, d.TestConnection(context.Background(), srv.URL))
			assert.Equal(t, tt.alive, d.State().IsConnected())
		})
	}
}

func TestTestConnectionTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := newDiscovery([]string{srv.URL}, 50*time.Millisecond)

	start := time.Now()
	assert.False(t, d.TestConnection(context.Background(), srv.URL))
	assert.Less(t, time.Since(start), 400*time.Millisecond,
		"probe must abort at its own timeout")
	assert.False(t, d.State().IsConnected())
}

func TestTestConnectionUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	url := srv.URL
	srv.Close()

	d := newDiscovery([]string{url}, time.Second)
	assert.False(t, d.TestConnection(context.Background(), url))
}

func TestFindWorkingServerStopsAtFirstSuccess(t *testing.T) {
	var firstHits, secondHits atomic.Int32

	first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		firstHits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer first.Close()
	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		secondHits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer second.Close()

	d := newDiscovery([]string{first.URL, second.URL}, time.Second)

	url, err := d.FindWorkingServer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.URL, url)
	assert.Equal(t, int32(1), firstHits.Load())
	assert.Equal(t, int32(0), secondHits.Load(),
		"second candidate must not be probed when the first succeeds")
}

// Scenario: the cloud endpoint times out, the localhost fallback answers 200.
func TestFindWorkingServerFallsBackToLocalhost(t *testing.T) {
	cloud := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer cloud.Close()
	local := statusServer(t, http.StatusOK)

	d := newDiscovery([]string{cloud.URL, local.URL}, 50*time.Millisecond)

	url, err := d.FindWorkingServer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, local.URL, url)
	assert.Equal(t, local.URL, d.State().LastSuccessfulURL())
	assert.True(t, d.State().IsConnected())
}

func TestFindWorkingServerTriesLastGoodFirst(t *testing.T) {
	var candidateHits atomic.Int32

	lastGood := statusServer(t, http.StatusOK)
	candidate := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		candidateHits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer candidate.Close()

	d := newDiscovery([]string{candidate.URL}, time.Second)
	d.State().MarkConnected(lastGood.URL)
	d.State().MarkDisconnected()

	url, err := d.FindWorkingServer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, lastGood.URL, url)
	assert.Equal(t, int32(0), candidateHits.Load(),
		"configured candidates must not be probed when last-known-good works")
}

func TestFindWorkingServerAllFail(t *testing.T) {
	dead := statusServer(t, http.StatusInternalServerError)

	d := newDiscovery([]string{dead.URL}, time.Second)
	d.State().MarkConnected(dead.URL) // stale last-known-good
	d.State().MarkDisconnected()

	url, err := d.FindWorkingServer(context.Background())
	assert.ErrorIs(t, err, ErrNoServerAvailable)
	assert.Empty(t, url)
	assert.False(t, d.State().IsConnected())
}

func TestEnsureConnectionNoopsWhenConnected(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := newDiscovery([]string{srv.URL}, time.Second)

	url, err := d.EnsureConnection(context.Background())
	require.NoError(t, err)
	require.Equal(t, srv.URL, url)
	probes := hits.Load()

	url, err = d.EnsureConnection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, srv.URL, url)
	assert.Equal(t, probes, hits.Load(), "no probe when already connected")
}

func TestStateLifecycle(t *testing.T) {
	bus := events.NewBus()
	established := bus.Subscribe(events.ConnectionEstablished)
	lost := bus.Subscribe(events.ConnectionLost)

	s := NewState(bus)
	assert.False(t, s.IsConnected(), "state starts disconnected")
	assert.Empty(t, s.CurrentURL())

	s.MarkConnected("http://backend:3001")
	assert.True(t, s.IsConnected())
	assert.Equal(t, "http://backend:3001", s.CurrentURL())
	assert.Equal(t, "http://backend:3001", s.LastSuccessfulURL())
	assert.Len(t, established, 1)

	s.MarkDisconnected()
	assert.False(t, s.IsConnected())
	assert.Empty(t, s.CurrentURL())
	assert.Equal(t, "http://backend:3001", s.LastSuccessfulURL(),
		"last-known-good survives disconnect")
	assert.Len(t, lost, 1)
}
