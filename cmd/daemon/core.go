// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"sync"

	"github.com/ManuGH/schedy/internal/engine"
	"github.com/ManuGH/schedy/internal/room"
)

// engineCore hands the API the current engine. Reloads replace the
// engine, so the indirection keeps room lookups pointed at the live one.
type engineCore struct {
	mu  sync.RWMutex
	eng *engine.Engine
}

func (c *engineCore) set(e *engine.Engine) {
	c.mu.Lock()
	c.eng = e
	c.mu.Unlock()
}

func (c *engineCore) current() *engine.Engine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.eng
}

func (c *engineCore) Rooms() []*room.Room {
	if e := c.current(); e != nil {
		return e.Rooms()
	}
	return nil
}

func (c *engineCore) Room(name string) *room.Room {
	if e := c.current(); e != nil {
		return e.Room(name)
	}
	return nil
}

// Ping lets the health checker probe Home Assistant through the live
// engine's client.
func (c *engineCore) Ping(ctx context.Context) error {
	return c.current().Client().Ping(ctx)
}
