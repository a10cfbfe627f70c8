package hass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ManuGH/schedy/internal/log"
	"github.com/ManuGH/schedy/internal/metrics"
)

const (
	wsInitialBackoff = time.Second
	wsMaxBackoff     = time.Minute
)

// EventListener maintains a WebSocket subscription to state_changed events
// and pushes them into a channel. It reconnects with capped exponential
// backoff until the context is cancelled.
type EventListener struct {
	url    string
	token  string
	logger zerolog.Logger
	dialer *websocket.Dialer
}

// NewEventListener derives the WebSocket endpoint from the REST base URL.
func NewEventListener(base, token string) (*EventListener, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported scheme %q in base URL", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/websocket"

	return &EventListener{
		url:    u.String(),
		token:  token,
		logger: log.WithComponent("hass.ws"),
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}, nil
}

// wsMessage covers every message shape we exchange with the server.
type wsMessage struct {
	ID          int             `json:"id,omitempty"`
	Type        string          `json:"type"`
	AccessToken string          `json:"access_token,omitempty"`
	EventType   string          `json:"event_type,omitempty"`
	Success     *bool           `json:"success,omitempty"`
	Event       json.RawMessage `json:"event,omitempty"`
	Message     string          `json:"message,omitempty"`
}

type wsEvent struct {
	EventType string      `json:"event_type"`
	Data      StateChange `json:"data"`
}

// Run connects and delivers events until ctx is cancelled. A rejected
// token is a permanent failure; every other error triggers a reconnect.
func (l *EventListener) Run(ctx context.Context, events chan<- StateChange) error {
	backoff := wsInitialBackoff

	for {
		err := l.runOnce(ctx, events)
		metrics.SetWSConnected(false)

		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrUnauthorized) {
			return err
		}

		l.logger.Warn().
			Err(err).
			Str("event", "ws.disconnected").
			Dur("retry_in", backoff).
			Msg("event stream disconnected, reconnecting")
		metrics.IncWSReconnect()

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > wsMaxBackoff {
			backoff = wsMaxBackoff
		}
	}
}

func (l *EventListener) runOnce(ctx context.Context, events chan<- StateChange) error {
	conn, _, err := l.dialer.DialContext(ctx, l.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", l.url, err)
	}
	defer conn.Close() //nolint:errcheck

	// Close the connection when ctx is cancelled so blocked reads return.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	if err := l.authenticate(conn); err != nil {
		return err
	}
	if err := l.subscribe(conn); err != nil {
		return err
	}

	metrics.SetWSConnected(true)
	l.logger.Info().
		Str("event", "ws.connected").
		Str("url", l.url).
		Msg("subscribed to state_changed events")

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("read event: %w", err)
		}
		if msg.Type != "event" || msg.Event == nil {
			continue
		}

		var ev wsEvent
		if err := json.Unmarshal(msg.Event, &ev); err != nil {
			l.logger.Error().Err(err).Msg("malformed event payload, skipping")
			continue
		}
		if ev.EventType != "state_changed" {
			continue
		}

		metrics.IncEventReceived()
		select {
		case events <- ev.Data:
		case <-ctx.Done():
			return nil
		}
	}
}

// authenticate performs the auth_required/auth/auth_ok handshake.
func (l *EventListener) authenticate(conn *websocket.Conn) error {
	var hello wsMessage
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("read auth challenge: %w", err)
	}
	if hello.Type != "auth_required" {
		return fmt.Errorf("unexpected handshake message %q", hello.Type)
	}

	if err := conn.WriteJSON(wsMessage{Type: "auth", AccessToken: l.token}); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	var result wsMessage
	if err := conn.ReadJSON(&result); err != nil {
		return fmt.Errorf("read auth result: %w", err)
	}
	switch result.Type {
	case "auth_ok":
		return nil
	case "auth_invalid":
		return ErrUnauthorized
	default:
		return fmt.Errorf("unexpected auth result %q", result.Type)
	}
}

// subscribe requests state_changed events.
func (l *EventListener) subscribe(conn *websocket.Conn) error {
	if err := conn.WriteJSON(wsMessage{ID: 1, Type: "subscribe_events", EventType: "state_changed"}); err != nil {
		return fmt.Errorf("send subscription: %w", err)
	}

	var result wsMessage
	if err := conn.ReadJSON(&result); err != nil {
		return fmt.Errorf("read subscription result: %w", err)
	}
	if result.Success == nil || !*result.Success {
		return fmt.Errorf("subscription rejected: %s", result.Message)
	}
	return nil
}
