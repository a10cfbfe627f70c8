// Package room ties a schedule to a set of actors. The room tracks the
// scheduled value, an optional overlay (manual override) and applies the
// resulting wanted value to its actors.
package room

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/schedy/internal/actor"
	"github.com/ManuGH/schedy/internal/expression"
	"github.com/ManuGH/schedy/internal/log"
	"github.com/ManuGH/schedy/internal/metrics"
	"github.com/ManuGH/schedy/internal/schedule"
	"github.com/ManuGH/schedy/internal/store"
	"github.com/ManuGH/schedy/internal/value"
)

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Config is the per-room behavior configuration.
type Config struct {
	Name string

	// ReschedulingDelay controls how the room reacts to external (manual)
	// actor changes: > 0 keeps the manual value for that long before the
	// schedule takes over again, 0 re-applies the schedule immediately.
	ReschedulingDelay time.Duration

	// SendRetries and SendRetryInterval govern re-sending failed service
	// calls per actor.
	SendRetries       int
	SendRetryInterval time.Duration
}

// Overlay is a manual override of the scheduled value.
type Overlay struct {
	Value     value.Value
	ExpiresAt *time.Time
	SetAt     time.Time
}

func (o *Overlay) expired(now time.Time) bool {
	return o.ExpiresAt != nil && !now.Before(*o.ExpiresAt)
}

// Room owns a schedule and the actors it drives.
type Room struct {
	cfg      Config
	sched    *schedule.Schedule
	actors   []actor.Actor
	store    store.Store
	state    expression.StateFunc
	snippets map[string]any
	clock    Clock
	logger   zerolog.Logger

	// wake is signalled whenever the next wake-up time may have moved.
	wake chan struct{}

	mu        sync.Mutex
	overlay   *Overlay
	scheduled value.Value
}

// Option customizes a Room.
type Option func(*Room)

// WithClock injects a clock, used by tests.
func WithClock(c Clock) Option {
	return func(r *Room) { r.clock = c }
}

// WithStateFunc provides entity state lookups for rule expressions.
func WithStateFunc(f expression.StateFunc) Option {
	return func(r *Room) { r.state = f }
}

// WithSnippets provides named schedule snippet results for expressions.
func WithSnippets(s map[string]any) Option {
	return func(r *Room) { r.snippets = s }
}

// New creates a room. At least one actor is required.
func New(cfg Config, sched *schedule.Schedule, actors []actor.Actor, st store.Store, opts ...Option) (*Room, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("room needs a name")
	}
	if len(actors) == 0 {
		return nil, fmt.Errorf("room %s: needs at least one actor", cfg.Name)
	}
	r := &Room{
		cfg:    cfg,
		sched:  sched,
		actors: actors,
		store:  st,
		clock:  realClock{},
		logger: log.WithComponent("room").With().Str("room", cfg.Name).Logger(),
		wake:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Name returns the room name.
func (r *Room) Name() string { return r.cfg.Name }

// Actors returns the room's actors.
func (r *Room) Actors() []actor.Actor { return r.actors }

// Wake returns a channel signalled when the room's next wake-up time may
// have changed and the scheduling loop should recompute it.
func (r *Room) Wake() <-chan struct{} { return r.wake }

func (r *Room) notifyWake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Restore loads the persisted overlay from the store. Expired overlays
// are discarded.
func (r *Room) Restore(ctx context.Context) error {
	rec, err := r.store.GetRoom(ctx, r.cfg.Name)
	if err != nil {
		metrics.IncStoreError("get")
		return fmt.Errorf("room %s: restore: %w", r.cfg.Name, err)
	}
	if rec == nil || rec.Overlay == nil {
		return nil
	}

	now := r.clock.Now()
	if rec.Overlay.ExpiresAt != nil && !now.Before(*rec.Overlay.ExpiresAt) {
		r.logger.Info().
			Str("event", "overlay.expired").
			Time("expired_at", *rec.Overlay.ExpiresAt).
			Msg("discarding expired overlay from previous run")
		return r.persist(ctx)
	}

	v, err := r.actors[0].DeserializeValue(rec.Overlay.Value)
	if err != nil {
		r.logger.Warn().
			Err(err).
			Str("value", rec.Overlay.Value).
			Msg("discarding unreadable persisted overlay")
		return r.persist(ctx)
	}

	r.mu.Lock()
	r.overlay = &Overlay{Value: v, ExpiresAt: rec.Overlay.ExpiresAt, SetAt: rec.Overlay.SetAt}
	r.mu.Unlock()
	metrics.SetOverlayActive(r.cfg.Name, true)

	r.logger.Info().
		Str("event", "overlay.restored").
		Str("value", v.Serialize()).
		Msg("restored overlay from store")
	return nil
}

func (r *Room) persist(ctx context.Context) error {
	r.mu.Lock()
	rec := &store.RoomRecord{Room: r.cfg.Name, SavedAt: r.clock.Now()}
	if r.overlay != nil {
		rec.Overlay = &store.OverlayRecord{
			Value:     r.overlay.Value.Serialize(),
			ExpiresAt: r.overlay.ExpiresAt,
			SetAt:     r.overlay.SetAt,
		}
	}
	r.mu.Unlock()

	if err := r.store.PutRoom(ctx, rec); err != nil {
		metrics.IncStoreError("put")
		return fmt.Errorf("room %s: persist: %w", r.cfg.Name, err)
	}
	return nil
}

// SetOverride installs a manual override. A positive duration makes the
// override expire on its own; zero keeps it until cleared.
func (r *Room) SetOverride(ctx context.Context, raw any, d time.Duration) error {
	v, err := r.actors[0].ValidateValue(raw)
	if err != nil {
		return fmt.Errorf("room %s: invalid override value: %w", r.cfg.Name, err)
	}

	now := r.clock.Now()
	o := &Overlay{Value: v, SetAt: now}
	if d > 0 {
		t := now.Add(d)
		o.ExpiresAt = &t
	}

	r.mu.Lock()
	r.overlay = o
	r.mu.Unlock()
	metrics.SetOverlayActive(r.cfg.Name, true)

	r.logger.Info().
		Str("event", "overlay.set").
		Str("value", v.Serialize()).
		Dur("duration", d).
		Msg("manual override set")

	if err := r.persist(ctx); err != nil {
		return err
	}
	if err := r.Apply(ctx); err != nil {
		return err
	}
	r.notifyWake()
	return nil
}

// ClearOverride removes a manual override and re-applies the schedule.
func (r *Room) ClearOverride(ctx context.Context) error {
	r.mu.Lock()
	had := r.overlay != nil
	r.overlay = nil
	r.mu.Unlock()
	metrics.SetOverlayActive(r.cfg.Name, false)

	if had {
		r.logger.Info().Str("event", "overlay.cleared").Msg("manual override cleared")
	}
	if err := r.persist(ctx); err != nil {
		return err
	}
	if err := r.Apply(ctx); err != nil {
		return err
	}
	r.notifyWake()
	return nil
}

// Overlay returns a copy of the active overlay, nil when none is set.
func (r *Room) Overlay() *Overlay {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.overlay == nil {
		return nil
	}
	o := *r.overlay
	return &o
}

// Reschedule drops any overlay and applies the schedule immediately.
func (r *Room) Reschedule(ctx context.Context, reason string) error {
	metrics.IncReschedule(r.cfg.Name, reason)
	return r.ClearOverride(ctx)
}

// Apply evaluates the schedule, resolves the wanted value (overlay wins)
// and sends it to every actor whose filtered value differs from its last
// known state.
func (r *Room) Apply(ctx context.Context) error {
	now := r.clock.Now()
	r.expireOverlay(ctx, now)

	env := &expression.Env{Now: now, State: r.state, Snippets: r.snippets}
	res, err := r.sched.EvaluateAt(now, env)
	if err != nil {
		metrics.IncScheduleEvaluation(r.cfg.Name, "error")
		return fmt.Errorf("room %s: evaluate schedule: %w", r.cfg.Name, err)
	}
	if res.Aborted {
		metrics.IncScheduleEvaluation(r.cfg.Name, "aborted")
		r.logger.Debug().Str("event", "schedule.aborted").Msg("evaluation aborted, actors left untouched")
		return nil
	}

	var scheduled value.Value
	if res.Matched {
		scheduled, err = r.actors[0].ValidateValue(res.Value)
		if err != nil {
			metrics.IncScheduleEvaluation(r.cfg.Name, "error")
			return fmt.Errorf("room %s: schedule produced invalid value: %w", r.cfg.Name, err)
		}
		metrics.IncScheduleEvaluation(r.cfg.Name, "matched")
	} else {
		metrics.IncScheduleEvaluation(r.cfg.Name, "unmatched")
	}

	r.mu.Lock()
	r.scheduled = scheduled
	wanted := scheduled
	if r.overlay != nil {
		wanted = r.overlay.Value
	}
	r.mu.Unlock()

	if wanted == nil {
		r.logger.Debug().Str("event", "schedule.unmatched").Msg("no rule matched and no overlay, nothing to apply")
		return nil
	}

	r.logger.Debug().
		Str("event", "room.apply").
		Str("wanted", wanted.Serialize()).
		Msg("applying wanted value")

	for _, a := range r.actors {
		filtered, ok := a.FilterSetValue(wanted)
		if !ok {
			continue
		}
		if cur := a.CurrentValue(); cur != nil && cur.Equal(filtered) {
			continue
		}
		if err := r.send(ctx, a, filtered); err != nil {
			r.logger.Error().
				Err(err).
				Str("entity_id", a.EntityID()).
				Msg("sending value to actor failed")
		}
	}
	return nil
}

// send issues the service calls with the configured retry policy.
func (r *Room) send(ctx context.Context, a actor.Actor, v value.Value) error {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.SendRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.cfg.SendRetryInterval):
			}
			r.logger.Warn().
				Str("entity_id", a.EntityID()).
				Int("attempt", attempt+1).
				Msg("retrying actor send")
		}
		if lastErr = a.Send(ctx, v); lastErr == nil {
			metrics.IncActorSend(a.Type(), "success")
			return nil
		}
	}
	metrics.IncActorSend(a.Type(), "failure")
	return lastErr
}

func (r *Room) expireOverlay(ctx context.Context, now time.Time) {
	r.mu.Lock()
	expired := r.overlay != nil && r.overlay.expired(now)
	if expired {
		r.overlay = nil
	}
	r.mu.Unlock()

	if !expired {
		return
	}
	metrics.SetOverlayActive(r.cfg.Name, false)
	r.logger.Info().Str("event", "overlay.expired").Msg("overlay expired, schedule takes over")
	if err := r.persist(ctx); err != nil {
		r.logger.Error().Err(err).Msg("persisting expired overlay removal failed")
	}
}

// HandleStateChange routes an entity state change to the owning actor and
// applies the re-schedule policy when the change was made externally.
func (r *Room) HandleStateChange(ctx context.Context, entityID string, attrs map[string]any) error {
	var target actor.Actor
	for _, a := range r.actors {
		if a.EntityID() == entityID {
			target = a
			break
		}
	}
	if target == nil {
		return nil
	}

	update, err := target.HandleState(attrs)
	if err != nil {
		return fmt.Errorf("room %s: state change for %s: %w", r.cfg.Name, entityID, err)
	}
	if update.Value == nil {
		return nil
	}

	r.mu.Lock()
	wanted := r.scheduled
	if r.overlay != nil {
		wanted = r.overlay.Value
	}
	r.mu.Unlock()

	if wanted != nil && wanted.Equal(update.Value) {
		return nil
	}

	if r.cfg.ReschedulingDelay <= 0 {
		r.logger.Info().
			Str("event", "external.revert").
			Str("entity_id", entityID).
			Str("value", update.Value.Serialize()).
			Msg("external change reverted, schedule re-applied")
		metrics.IncReschedule(r.cfg.Name, "external_change")
		return r.Apply(ctx)
	}

	now := r.clock.Now()
	expires := now.Add(r.cfg.ReschedulingDelay)
	r.mu.Lock()
	r.overlay = &Overlay{Value: update.Value, ExpiresAt: &expires, SetAt: now}
	r.mu.Unlock()
	metrics.SetOverlayActive(r.cfg.Name, true)

	r.logger.Info().
		Str("event", "external.overlay").
		Str("entity_id", entityID).
		Str("value", update.Value.Serialize()).
		Time("until", expires).
		Msg("external change kept until re-schedule timer fires")

	if err := r.persist(ctx); err != nil {
		return err
	}
	r.notifyWake()
	return nil
}

// NextWake returns the next instant the room wants Apply to run: the
// earlier of the next schedule boundary and the overlay expiry. The zero
// time means no wake-up is needed.
func (r *Room) NextWake() time.Time {
	now := r.clock.Now()
	next := r.sched.NextChange(now)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.overlay != nil && r.overlay.ExpiresAt != nil {
		if next.IsZero() || r.overlay.ExpiresAt.Before(next) {
			next = *r.overlay.ExpiresAt
		}
	}
	return next
}
