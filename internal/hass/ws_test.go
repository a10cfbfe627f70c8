package hass

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventListenerDeliversEvents(t *testing.T) {
	mock := NewMockServer(testToken)
	defer mock.Close()

	l, err := NewEventListener(mock.URL, testToken)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan StateChange, 1)
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, events) }()

	// Give the listener a moment to finish the handshake, then inject.
	time.Sleep(100 * time.Millisecond)
	mock.PushEvent(StateChange{
		EntityID: "climate.living",
		NewState: &State{EntityID: "climate.living", State: "heat"},
	})

	select {
	case ev := <-events:
		assert.Equal(t, "climate.living", ev.EntityID)
		require.NotNil(t, ev.NewState)
		assert.Equal(t, "heat", ev.NewState.State)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop after cancel")
	}
}

func TestEventListenerRejectedToken(t *testing.T) {
	mock := NewMockServer(testToken)
	defer mock.Close()

	l, err := NewEventListener(mock.URL, "wrong")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = l.Run(ctx, make(chan StateChange, 1))
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestNewEventListenerURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://hass:8123", "ws://hass:8123/api/websocket"},
		{"https://hass.example.com", "wss://hass.example.com/api/websocket"},
		{"http://hass:8123/", "ws://hass:8123/api/websocket"},
	}
	for _, tt := range tests {
		l, err := NewEventListener(tt.base, "tok")
		require.NoError(t, err)
		assert.Equal(t, tt.want, l.url)
	}

	_, err := NewEventListener("ftp://hass", "tok")
	require.Error(t, err)
}
