// Package actor abstracts the devices schedy controls. An actor translates
// abstract schedule values into concrete Home Assistant service calls and
// parses entity state back into values.
package actor

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ManuGH/schedy/internal/value"
)

// ServiceCaller issues Home Assistant service calls on behalf of actors.
type ServiceCaller interface {
	CallService(ctx context.Context, domain, service string, data map[string]any) error
}

// StateUpdate is the outcome of feeding an entity state change into an actor.
type StateUpdate struct {
	// Value is the externally set value reported by the entity, nil when
	// the update did not change the actor's value.
	Value value.Value
	// CurrentTemp carries the measured temperature for thermostats that
	// report one, nil otherwise.
	CurrentTemp *value.Temp
}

// Actor is a controllable device within a room.
type Actor interface {
	// EntityID returns the Home Assistant entity this actor controls.
	EntityID() string
	// Type returns the actor type name ("thermostat", "switch").
	Type() string

	// ValidateValue converts a raw schedule result into the actor's value type.
	ValidateValue(raw any) (value.Value, error)
	// DeserializeValue restores a value from its serialized form.
	DeserializeValue(s string) (value.Value, error)

	// FilterSetValue preprocesses a wanted value into what is actually
	// sent. The boolean is false when nothing has to be sent.
	FilterSetValue(v value.Value) (value.Value, bool)
	// Send issues the service calls that apply v to the entity.
	Send(ctx context.Context, v value.Value) error

	// HandleState feeds a state-change attribute map into the actor and
	// reports externally made changes.
	HandleState(attrs map[string]any) (StateUpdate, error)

	// CurrentValue returns the last value observed on the entity, nil if
	// none was seen yet.
	CurrentValue() value.Value

	// CheckConfig warns about common configuration mistakes given the
	// entity's current attributes. Called once during startup.
	CheckConfig(attrs map[string]any)
}

// Deps are the collaborators handed to every actor.
type Deps struct {
	Caller ServiceCaller
	Logger zerolog.Logger
}

// Factory builds an actor of a specific type from its YAML config node.
type Factory func(entityID string, cfg *yaml.Node, deps Deps) (Actor, error)

var factories = map[string]Factory{}

// Register makes an actor type available to New. Called from init().
func Register(typ string, f Factory) {
	factories[typ] = f
}

// New builds an actor of the given type. cfg may be nil for all-default
// configuration.
func New(typ, entityID string, cfg *yaml.Node, deps Deps) (Actor, error) {
	f, ok := factories[typ]
	if !ok {
		return nil, fmt.Errorf("unknown actor type %q (known: %s)", typ, strings.Join(Types(), ", "))
	}
	return f(entityID, cfg, deps)
}

// Types lists the registered actor type names.
func Types() []string {
	out := make([]string, 0, len(factories))
	for t := range factories {
		out = append(out, t)
	}
	return out
}

// splitService splits "climate/set_temperature" or
// "climate.set_temperature" into domain and service.
func splitService(s string) (string, string, error) {
	s = strings.ReplaceAll(s, ".", "/")
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid service %q (want domain/service)", s)
	}
	return parts[0], parts[1], nil
}
