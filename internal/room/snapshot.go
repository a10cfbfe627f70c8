package room

import "time"

// ActorSnapshot is the API view of a single actor.
type ActorSnapshot struct {
	EntityID string `json:"entity_id"`
	Type     string `json:"type"`
	Value    string `json:"value,omitempty"`
}

// OverlaySnapshot is the API view of an active overlay.
type OverlaySnapshot struct {
	Value     string     `json:"value"`
	SetAt     time.Time  `json:"set_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Snapshot is the API view of a room.
type Snapshot struct {
	Name       string           `json:"name"`
	Scheduled  string           `json:"scheduled_value,omitempty"`
	Wanted     string           `json:"wanted_value,omitempty"`
	Overlay    *OverlaySnapshot `json:"overlay,omitempty"`
	NextChange *time.Time       `json:"next_change,omitempty"`
	Actors     []ActorSnapshot  `json:"actors"`
}

// Snapshot captures the room's current state for the API.
func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	scheduled := r.scheduled
	overlay := r.overlay
	r.mu.Unlock()

	snap := Snapshot{Name: r.cfg.Name}
	if scheduled != nil {
		snap.Scheduled = scheduled.Serialize()
		snap.Wanted = snap.Scheduled
	}
	if overlay != nil {
		snap.Overlay = &OverlaySnapshot{
			Value:     overlay.Value.Serialize(),
			SetAt:     overlay.SetAt,
			ExpiresAt: overlay.ExpiresAt,
		}
		snap.Wanted = snap.Overlay.Value
	}
	if next := r.sched.NextChange(r.clock.Now()); !next.IsZero() {
		snap.NextChange = &next
	}

	for _, a := range r.actors {
		as := ActorSnapshot{EntityID: a.EntityID(), Type: a.Type()}
		if v := a.CurrentValue(); v != nil {
			as.Value = v.Serialize()
		}
		snap.Actors = append(snap.Actors, as)
	}
	return snap
}
