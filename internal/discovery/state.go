package discovery

import (
	"sync"

	"possync-go/internal/events"
)

// Info is a snapshot of the current connection state.
type Info struct {
	Connected         bool   `json:"connected"`
	CurrentURL        string `json:"current_url,omitempty"`
	LastSuccessfulURL string `json:"last_successful_url,omitempty"`
}

// State tracks backend connectivity. It is in-memory only and starts
// disconnected; it is not persisted across process restarts.
type State struct {
	mu          sync.RWMutex
	connected   bool
	currentURL  string
	lastGoodURL string
	bus         *events.Bus
}

// NewState creates a disconnected connection state.
func NewState(bus *events.Bus) *State {
	return &State{bus: bus}
}

// IsConnected reports whether a working server is known.
func (s *State) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// CurrentURL returns the base URL in use, or "" when disconnected.
func (s *State) CurrentURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return ""
	}
	return s.currentURL
}

// LastSuccessfulURL returns the most recent URL that passed a probe.
func (s *State) LastSuccessfulURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastGoodURL
}

// MarkConnected records a working base URL as current and last-known-good.
func (s *State) MarkConnected(url string) {
	s.mu.Lock()
	wasConnected := s.connected
	s.connected = true
	s.currentURL = url
	s.lastGoodURL = url
	s.mu.Unlock()

	if !wasConnected && s.bus != nil {
		s.bus.Publish(events.Event{Type: events.ConnectionEstablished, URL: url})
	}
}

// MarkDisconnected records loss of connectivity. The last-known-good URL is
// kept so the next discovery tries it first.
func (s *State) MarkDisconnected() {
	s.mu.Lock()
	wasConnected := s.connected
	url := s.currentURL
	s.connected = false
	s.currentURL = ""
	s.mu.Unlock()

	if wasConnected && s.bus != nil {
		s.bus.Publish(events.Event{Type: events.ConnectionLost, URL: url})
	}
}

// Snapshot returns the current connection info.
func (s *State) Snapshot() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{
		Connected:         s.connected,
		CurrentURL:        s.currentURL,
		LastSuccessfulURL: s.lastGoodURL,
	}
}
