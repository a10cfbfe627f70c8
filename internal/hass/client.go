// Package hass talks to Home Assistant: REST for state reads and service
// calls, WebSocket for the state_changed event stream.
package hass

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ManuGH/schedy/internal/log"
	"github.com/ManuGH/schedy/internal/metrics"
	"github.com/ManuGH/schedy/internal/resilience"
)

// Options configures a Client.
type Options struct {
	Token   string
	Timeout time.Duration

	// CallRate throttles outgoing service calls; zero disables throttling.
	CallRate  rate.Limit
	CallBurst int

	// BreakerThreshold and BreakerResetTimeout configure the circuit
	// breaker guarding service calls. Zero values pick defaults.
	BreakerThreshold    int
	BreakerResetTimeout time.Duration
}

// Client is a Home Assistant REST API client.
type Client struct {
	base    string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
}

// New creates a client for the given base URL (e.g. "http://hass:8123").
func New(base string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var limiter *rate.Limiter
	if opts.CallRate > 0 {
		burst := opts.CallBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(opts.CallRate, burst)
	}

	return &Client{
		base:    strings.TrimRight(base, "/"),
		token:   opts.Token,
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
		breaker: resilience.NewCircuitBreaker("hass", opts.BreakerThreshold, opts.BreakerResetTimeout),
	}
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string { return c.base }

// Ping checks whether the API is reachable and the token is accepted.
func (c *Client) Ping(ctx context.Context) error {
	var out struct {
		Message string `json:"message"`
	}
	return c.get(ctx, "/api/", &out)
}

// States fetches all entity states.
func (c *Client) States(ctx context.Context) ([]State, error) {
	var out []State
	if err := c.get(ctx, "/api/states", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetState fetches a single entity state.
func (c *Client) GetState(ctx context.Context, entityID string) (*State, error) {
	var out State
	if err := c.get(ctx, "/api/states/"+url.PathEscape(entityID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CallService invokes a Home Assistant service. Calls are throttled and
// guarded by the circuit breaker.
func (c *Client) CallService(ctx context.Context, domain, service string, data map[string]any) error {
	logger := log.WithComponentFromContext(ctx, "hass")

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			metrics.IncServiceCall(domain, "rate_limited")
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
	}

	path := "/api/services/" + url.PathEscape(domain) + "/" + url.PathEscape(service)
	start := time.Now()
	err := c.breaker.Execute(func() error {
		return c.post(ctx, path, data, nil)
	})
	metrics.ObserveServiceCallDuration(time.Since(start).Seconds())

	if err != nil {
		metrics.IncServiceCall(domain, "failure")
		return fmt.Errorf("call service %s/%s: %w", domain, service, err)
	}

	metrics.IncServiceCall(domain, "success")
	logger.Debug().
		Str("event", "service.called").
		Str("domain", domain).
		Str("service", service).
		Dur("duration", time.Since(start)).
		Msg("service call succeeded")
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close() //nolint:errcheck

	if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &APIError{
			StatusCode: res.StatusCode,
			Method:     method,
			Path:       path,
			Body:       strings.TrimSpace(string(raw)),
		}
	}

	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: decode response: %w", method, path, err)
		}
	}
	return nil
}
