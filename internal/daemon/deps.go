package daemon

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ServerConfig holds the HTTP server settings of the manager.
type ServerConfig struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// withDefaults fills unset timeouts.
func (c ServerConfig) withDefaults() ServerConfig {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 120 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 15 * time.Second
	}
	return c
}

// Deps are the manager's collaborators.
type Deps struct {
	Logger     zerolog.Logger
	APIHandler http.Handler

	// MetricsAddr and MetricsHandler configure the separate Prometheus
	// listener; empty addr or nil handler disables it.
	MetricsAddr    string
	MetricsHandler http.Handler
}

func (d Deps) Validate() error {
	if d.APIHandler == nil {
		return fmt.Errorf("API handler is required")
	}
	return nil
}
