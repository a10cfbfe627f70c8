package hass

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const testToken = "test-token"

func TestClientPing(t *testing.T) {
	mock := NewMockServer(testToken)
	defer mock.Close()

	c := New(mock.URL, Options{Token: testToken})
	require.NoError(t, c.Ping(context.Background()))
}

func TestClientPingBadToken(t *testing.T) {
	mock := NewMockServer(testToken)
	defer mock.Close()

	c := New(mock.URL, Options{Token: "wrong"})
	err := c.Ping(context.Background())
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestClientGetState(t *testing.T) {
	mock := NewMockServer(testToken)
	defer mock.Close()

	mock.SetState(State{
		EntityID: "climate.living",
		State:    "heat",
		Attributes: map[string]any{
			"temperature": 21.5,
		},
	})

	c := New(mock.URL, Options{Token: testToken})
	s, err := c.GetState(context.Background(), "climate.living")
	require.NoError(t, err)
	assert.Equal(t, "climate.living", s.EntityID)
	assert.Equal(t, "heat", s.State)
	assert.Equal(t, 21.5, s.Attributes["temperature"])
}

func TestClientGetStateNotFound(t *testing.T) {
	mock := NewMockServer(testToken)
	defer mock.Close()

	c := New(mock.URL, Options{Token: testToken})
	_, err := c.GetState(context.Background(), "climate.missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestClientStates(t *testing.T) {
	mock := NewMockServer(testToken)
	defer mock.Close()

	mock.SetState(State{EntityID: "climate.living", State: "heat"})
	mock.SetState(State{EntityID: "switch.fan", State: "off"})

	c := New(mock.URL, Options{Token: testToken})
	states, err := c.States(context.Background())
	require.NoError(t, err)
	assert.Len(t, states, 2)
}

func TestClientCallService(t *testing.T) {
	mock := NewMockServer(testToken)
	defer mock.Close()

	c := New(mock.URL, Options{Token: testToken})
	err := c.CallService(context.Background(), "climate", "set_temperature", map[string]any{
		"entity_id":   "climate.living",
		"temperature": 21.5,
	})
	require.NoError(t, err)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "climate", calls[0].Domain)
	assert.Equal(t, "set_temperature", calls[0].Service)
	assert.Equal(t, "climate.living", calls[0].Data["entity_id"])
	assert.Equal(t, 21.5, calls[0].Data["temperature"])
}

func TestClientCallServiceFailure(t *testing.T) {
	mock := NewMockServer(testToken)
	defer mock.Close()
	mock.FailNext("/api/services/", 1)

	c := New(mock.URL, Options{Token: testToken})
	err := c.CallService(context.Background(), "climate", "set_temperature", nil)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 503, apiErr.StatusCode)
}

func TestClientCallServiceRateLimited(t *testing.T) {
	mock := NewMockServer(testToken)
	defer mock.Close()

	// One call per hour with burst 1: the second call cannot proceed
	// before the context deadline.
	c := New(mock.URL, Options{
		Token:    testToken,
		CallRate: rate.Every(time.Hour),
	})

	require.NoError(t, c.CallService(context.Background(), "climate", "set_temperature", nil))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.CallService(ctx, "climate", "set_temperature", nil)
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestClientBreakerOpensOnRepeatedFailures(t *testing.T) {
	mock := NewMockServer(testToken)
	defer mock.Close()
	mock.FailNext("/api/services/", 10)

	c := New(mock.URL, Options{Token: testToken, BreakerThreshold: 2})

	require.Error(t, c.CallService(context.Background(), "climate", "set_temperature", nil))
	require.Error(t, c.CallService(context.Background(), "climate", "set_temperature", nil))

	// The breaker is now open; the request never reaches the server.
	before := len(mock.Calls())
	require.Error(t, c.CallService(context.Background(), "climate", "set_temperature", nil))
	assert.Equal(t, before, len(mock.Calls()))
}
