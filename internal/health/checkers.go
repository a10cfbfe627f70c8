package health

import (
	"context"
	"time"

	"github.com/ManuGH/schedy/internal/store"
)

// StoreChecker verifies the persistence backend is reachable and writable.
type StoreChecker struct {
	store store.Store
}

func NewStoreChecker(s store.Store) *StoreChecker {
	return &StoreChecker{store: s}
}

func (c *StoreChecker) Name() string { return "store" }

func (c *StoreChecker) Check(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.store.Ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: "store writable"}
}

// Pinger is the part of the Home Assistant client the checker needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HassChecker verifies Home Assistant is reachable. A failure degrades
// readiness rather than failing it: schedules keep evaluating and the
// client reconnects on its own.
type HassChecker struct {
	client Pinger
}

func NewHassChecker(p Pinger) *HassChecker {
	return &HassChecker{client: p}
}

func (c *HassChecker) Name() string { return "home_assistant" }

func (c *HassChecker) Check(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx); err != nil {
		return CheckResult{Status: StatusDegraded, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: "api reachable"}
}
