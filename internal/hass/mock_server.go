package hass

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// MockServer provides a configurable Home Assistant mock for testing. It
// serves the REST endpoints the client uses plus a WebSocket endpoint that
// performs the auth handshake and streams injected state_changed events.
type MockServer struct {
	*httptest.Server
	mu       sync.RWMutex
	token    string
	states   map[string]State
	calls    []RecordedCall
	failures map[string]int // remaining failures per path prefix
	events   chan StateChange
	upgrader websocket.Upgrader
}

// RecordedCall is a service call received by the mock.
type RecordedCall struct {
	Domain  string
	Service string
	Data    map[string]any
}

// NewMockServer creates a mock that accepts the given token.
func NewMockServer(token string) *MockServer {
	mock := &MockServer{
		token:    token,
		states:   make(map[string]State),
		failures: make(map[string]int),
		events:   make(chan StateChange, 16),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/", mock.handleAPI)
	mux.HandleFunc("/api/states", mock.handleStates)
	mux.HandleFunc("/api/states/", mock.handleState)
	mux.HandleFunc("/api/services/", mock.handleService)
	mux.HandleFunc("/api/websocket", mock.handleWebsocket)

	mock.Server = httptest.NewServer(mux)
	return mock
}

// SetState stores an entity state served by /api/states.
func (m *MockServer) SetState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[s.EntityID] = s
}

// Calls returns the service calls received so far.
func (m *MockServer) Calls() []RecordedCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RecordedCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// FailNext makes the next n requests under the given path prefix return 503.
func (m *MockServer) FailNext(pathPrefix string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[pathPrefix] = n
}

// PushEvent delivers a state_changed event to connected WebSocket clients.
func (m *MockServer) PushEvent(ev StateChange) {
	m.events <- ev
}

func (m *MockServer) authorized(r *http.Request) bool {
	return r.Header.Get("Authorization") == "Bearer "+m.token
}

func (m *MockServer) failRequested(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for prefix, n := range m.failures {
		if n > 0 && strings.HasPrefix(path, prefix) {
			m.failures[prefix] = n - 1
			return true
		}
	}
	return false
}

func (m *MockServer) handleAPI(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/" {
		http.NotFound(w, r)
		return
	}
	if !m.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	writeJSON(w, map[string]string{"message": "API running."})
}

func (m *MockServer) handleStates(w http.ResponseWriter, r *http.Request) {
	if !m.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	m.mu.RLock()
	out := make([]State, 0, len(m.states))
	for _, s := range m.states {
		out = append(out, s)
	}
	m.mu.RUnlock()
	writeJSON(w, out)
}

func (m *MockServer) handleState(w http.ResponseWriter, r *http.Request) {
	if !m.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	entityID := strings.TrimPrefix(r.URL.Path, "/api/states/")
	m.mu.RLock()
	s, ok := m.states[entityID]
	m.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, s)
}

func (m *MockServer) handleService(w http.ResponseWriter, r *http.Request) {
	if !m.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if m.failRequested(r.URL.Path) {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/services/"), "/")
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	var data map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&data)
	}
	m.mu.Lock()
	m.calls = append(m.calls, RecordedCall{Domain: parts[0], Service: parts[1], Data: data})
	m.mu.Unlock()
	writeJSON(w, []State{})
}

func (m *MockServer) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close() //nolint:errcheck

	if err := conn.WriteJSON(wsMessage{Type: "auth_required"}); err != nil {
		return
	}
	var auth wsMessage
	if err := conn.ReadJSON(&auth); err != nil {
		return
	}
	if auth.Type != "auth" || auth.AccessToken != m.token {
		_ = conn.WriteJSON(wsMessage{Type: "auth_invalid", Message: "Invalid access token"})
		return
	}
	if err := conn.WriteJSON(wsMessage{Type: "auth_ok"}); err != nil {
		return
	}

	var sub wsMessage
	if err := conn.ReadJSON(&sub); err != nil {
		return
	}
	if sub.Type != "subscribe_events" {
		return
	}
	ok := true
	if err := conn.WriteJSON(wsMessage{ID: sub.ID, Type: "result", Success: &ok}); err != nil {
		return
	}

	for ev := range m.events {
		payload, err := json.Marshal(wsEvent{EventType: "state_changed", Data: ev})
		if err != nil {
			return
		}
		if err := conn.WriteJSON(wsMessage{ID: sub.ID, Type: "event", Event: payload}); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
