// Package store persists room state across restarts so manual overrides
// survive a daemon restart.
package store

import (
	"context"
	"time"
)

// OverlayRecord is a persisted manual override.
type OverlayRecord struct {
	// Value is the serialized actor value, e.g. "21.5" or "OFF".
	Value string `json:"value"`
	// ExpiresAt is the optional expiry; nil means the overlay holds until
	// it is cleared or replaced.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	SetAt     time.Time  `json:"set_at"`
}

// RoomRecord is the persisted state of a single room.
type RoomRecord struct {
	Room    string         `json:"room"`
	Overlay *OverlayRecord `json:"overlay,omitempty"`
	SavedAt time.Time      `json:"saved_at"`
}

// Store persists room records. Implementations must be safe for
// concurrent use. GetRoom returns (nil, nil) when no record exists.
type Store interface {
	GetRoom(ctx context.Context, room string) (*RoomRecord, error)
	PutRoom(ctx context.Context, rec *RoomRecord) error
	DeleteRoom(ctx context.Context, room string) error
	ListRooms(ctx context.Context) ([]*RoomRecord, error)

	// Ping verifies the backend is reachable and writable.
	Ping(ctx context.Context) error

	Close() error
}
