// Package engine wires configuration, the Home Assistant client, rooms
// and actors together and runs the event dispatch and scheduling loops.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ManuGH/schedy/internal/actor"
	"github.com/ManuGH/schedy/internal/config"
	"github.com/ManuGH/schedy/internal/expression"
	"github.com/ManuGH/schedy/internal/hass"
	"github.com/ManuGH/schedy/internal/log"
	"github.com/ManuGH/schedy/internal/room"
	"github.com/ManuGH/schedy/internal/schedule"
	"github.com/ManuGH/schedy/internal/store"
)

// eventBuffer bounds the state change queue between the WebSocket
// listener and the dispatch loop.
const eventBuffer = 64

// Engine is the daemon core.
type Engine struct {
	cfg      config.AppConfig
	client   *hass.Client
	listener *hass.EventListener
	store    store.Store
	logger   zerolog.Logger

	rooms    map[string]*room.Room
	byEntity map[string]*room.Room

	snippetProgs map[string]*expression.Program
	// snippets holds the evaluated snippet results shared with all rooms.
	snippets map[string]any

	stateMu sync.RWMutex
	states  map[string]string
}

// New builds an engine from the configuration. Schedules are compiled and
// actors instantiated; Run does the remaining network-facing setup.
func New(cfg config.AppConfig, st store.Store) (*Engine, error) {
	client := hass.New(cfg.Hass.URL, hass.Options{
		Token:     cfg.Hass.Token,
		Timeout:   cfg.Hass.Timeout,
		CallRate:  rate.Limit(cfg.Hass.CallRate),
		CallBurst: cfg.Hass.CallBurst,
	})

	listener, err := hass.NewEventListener(cfg.Hass.URL, cfg.Hass.Token)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:          cfg,
		client:       client,
		listener:     listener,
		store:        st,
		logger:       log.WithComponent("engine"),
		rooms:        make(map[string]*room.Room),
		byEntity:     make(map[string]*room.Room),
		snippetProgs: make(map[string]*expression.Program),
		snippets:     make(map[string]any),
		states:       make(map[string]string),
	}

	for name, src := range cfg.Snippets {
		prog, err := expression.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("snippet %s: %w", name, err)
		}
		e.snippetProgs[name] = prog
	}

	for _, rc := range cfg.Rooms {
		sched, err := schedule.Build(rc.Schedule)
		if err != nil {
			return nil, fmt.Errorf("room %s: %w", rc.Name, err)
		}

		var actors []actor.Actor
		for _, ac := range rc.Actors {
			a, err := actor.New(ac.Type, ac.EntityID, ac.Config, actor.Deps{
				Caller: client,
				Logger: log.WithComponent("actor").With().Str("entity_id", ac.EntityID).Logger(),
			})
			if err != nil {
				return nil, fmt.Errorf("room %s: actor %s: %w", rc.Name, ac.EntityID, err)
			}
			actors = append(actors, a)
		}

		r, err := room.New(room.Config{
			Name:              rc.Name,
			ReschedulingDelay: rc.ReschedulingDelay,
			SendRetries:       rc.SendRetries,
			SendRetryInterval: rc.SendRetryInterval,
		}, sched, actors, st,
			room.WithStateFunc(e.stateFor),
			room.WithSnippets(e.snippets),
		)
		if err != nil {
			return nil, err
		}

		e.rooms[rc.Name] = r
		for _, a := range actors {
			e.byEntity[a.EntityID()] = r
		}
	}

	return e, nil
}

// Client exposes the Home Assistant client, e.g. for health checks.
func (e *Engine) Client() *hass.Client { return e.client }

// Room returns a room by name, nil when unknown.
func (e *Engine) Room(name string) *room.Room { return e.rooms[name] }

// Rooms returns all rooms sorted by name.
func (e *Engine) Rooms() []*room.Room {
	out := make([]*room.Room, 0, len(e.rooms))
	for _, r := range e.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Run starts the engine and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.client.Ping(ctx); err != nil {
		// Home Assistant may still be booting; the listener reconnects
		// and the initial apply proceeds with whatever state is known.
		e.logger.Warn().Err(err).Msg("home assistant not reachable yet")
	}

	e.primeStates(ctx)
	e.evalSnippets()

	for _, r := range e.rooms {
		if err := r.Restore(ctx); err != nil {
			e.logger.Error().Err(err).Str("room", r.Name()).Msg("restoring room state failed")
		}
		if err := r.Apply(ctx); err != nil {
			e.logger.Error().Err(err).Str("room", r.Name()).Msg("initial apply failed")
		}
	}

	events := make(chan hass.StateChange, eventBuffer)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.listener.Run(ctx, events) })
	g.Go(func() error { return e.dispatch(ctx, events) })
	for _, r := range e.rooms {
		r := r
		g.Go(func() error { return e.roomLoop(ctx, r) })
	}

	e.logger.Info().
		Str("event", "engine.started").
		Int("rooms", len(e.rooms)).
		Msg("engine running")

	return g.Wait()
}

// primeStates seeds the state cache and the actors from a full state dump.
func (e *Engine) primeStates(ctx context.Context) {
	states, err := e.client.States(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("fetching initial entity states failed")
		return
	}

	e.stateMu.Lock()
	for _, s := range states {
		e.states[s.EntityID] = s.State
	}
	e.stateMu.Unlock()

	for _, s := range states {
		r, ok := e.byEntity[s.EntityID]
		if !ok {
			continue
		}
		attrs := entityAttrs(&s)
		for _, a := range r.Actors() {
			if a.EntityID() != s.EntityID {
				continue
			}
			a.CheckConfig(attrs)
			if _, err := a.HandleState(attrs); err != nil {
				e.logger.Warn().
					Err(err).
					Str("entity_id", s.EntityID).
					Msg("parsing initial entity state failed")
			}
		}
	}
}

// evalSnippets evaluates the snippet expressions once against the primed
// state cache. Rooms see the results via snippet("name").
func (e *Engine) evalSnippets() {
	if len(e.snippetProgs) == 0 {
		return
	}
	env := &expression.Env{Now: time.Now(), State: e.stateFor}
	for name, prog := range e.snippetProgs {
		out, err := prog.Eval(env)
		if err != nil {
			e.logger.Error().Err(err).Str("snippet", name).Msg("snippet evaluation failed")
			continue
		}
		e.snippets[name] = out
	}
}

// dispatch routes state change events to the owning room and keeps the
// expression state cache current.
func (e *Engine) dispatch(ctx context.Context, events <-chan hass.StateChange) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.NewState == nil {
				continue
			}

			e.stateMu.Lock()
			e.states[ev.EntityID] = ev.NewState.State
			e.stateMu.Unlock()

			r, ok := e.byEntity[ev.EntityID]
			if !ok {
				continue
			}
			if err := r.HandleStateChange(ctx, ev.EntityID, entityAttrs(ev.NewState)); err != nil {
				e.logger.Error().
					Err(err).
					Str("entity_id", ev.EntityID).
					Msg("handling state change failed")
			}
		}
	}
}

// roomLoop applies the room's schedule whenever its next wake-up time is
// reached or moved.
func (e *Engine) roomLoop(ctx context.Context, r *room.Room) error {
	timer := time.NewTimer(e.wakeDelay(r))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			if err := r.Apply(ctx); err != nil {
				e.logger.Error().Err(err).Str("room", r.Name()).Msg("scheduled apply failed")
			}
		case <-r.Wake():
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(e.wakeDelay(r))
	}
}

// wakeDelay converts the room's next wake-up instant into a timer delay.
func (e *Engine) wakeDelay(r *room.Room) time.Duration {
	next := r.NextWake()
	if next.IsZero() {
		// No boundary in sight; re-check periodically anyway.
		return 24 * time.Hour
	}
	d := time.Until(next)
	if d < time.Second {
		d = time.Second
	}
	return d
}

// stateFor resolves an entity's state for rule expressions.
func (e *Engine) stateFor(entityID string) (any, bool) {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	s, ok := e.states[entityID]
	return s, ok
}

// entityAttrs flattens a state into the attribute map handed to actors.
// The entity's own state is injected under actor.StateKey so switch-like
// actors can read it alongside the attributes.
func entityAttrs(s *hass.State) map[string]any {
	attrs := make(map[string]any, len(s.Attributes)+1)
	for k, v := range s.Attributes {
		attrs[k] = v
	}
	attrs[actor.StateKey] = s.State
	return attrs
}
