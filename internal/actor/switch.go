package actor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ManuGH/schedy/internal/value"
)

func init() {
	Register("switch", NewSwitch)
}

// SwitchConfig holds the per-switch settings.
type SwitchConfig struct {
	// OnState and OffState are the entity states interpreted as on/off.
	OnState  string `yaml:"on_state"`
	OffState string `yaml:"off_state"`
	// TurnOnService and TurnOffService are called to change the state.
	TurnOnService  string `yaml:"turn_on_service"`
	TurnOffService string `yaml:"turn_off_service"`
	// StateAttr is the attribute carrying the state. The entity's own
	// state is used when empty.
	StateAttr string `yaml:"state_attr"`
}

// DefaultSwitchConfig returns the config used when no settings are given.
func DefaultSwitchConfig() SwitchConfig {
	return SwitchConfig{
		OnState:        "on",
		OffState:       "off",
		TurnOnService:  "homeassistant/turn_on",
		TurnOffService: "homeassistant/turn_off",
		StateAttr:      StateKey,
	}
}

// StateKey is the pseudo-attribute under which the engine passes an
// entity's own state to actors.
const StateKey = "state"

// Switch drives an on/off entity.
type Switch struct {
	entityID string
	cfg      SwitchConfig
	caller   ServiceCaller
	logger   zerolog.Logger

	current value.Value
}

// NewSwitch builds a switch actor from its YAML config node.
func NewSwitch(entityID string, node *yaml.Node, deps Deps) (Actor, error) {
	cfg := DefaultSwitchConfig()
	if node != nil {
		if err := node.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("switch %s: decode config: %w", entityID, err)
		}
		if cfg.StateAttr == "" {
			cfg.StateAttr = StateKey
		}
	}
	return NewSwitchWithConfig(entityID, cfg, deps), nil
}

// NewSwitchWithConfig builds a switch actor from an already parsed
// configuration.
func NewSwitchWithConfig(entityID string, cfg SwitchConfig, deps Deps) *Switch {
	return &Switch{
		entityID: entityID,
		cfg:      cfg,
		caller:   deps.Caller,
		logger:   deps.Logger.With().Str("actor", entityID).Logger(),
	}
}

func (s *Switch) EntityID() string { return s.entityID }
func (s *Switch) Type() string     { return "switch" }

func (s *Switch) CurrentValue() value.Value { return s.current }

// ValidateValue ensures the given raw value is a valid on/off state.
func (s *Switch) ValidateValue(raw any) (value.Value, error) {
	return value.ParseOnOff(raw)
}

func (s *Switch) DeserializeValue(raw string) (value.Value, error) {
	return value.ParseOnOff(raw)
}

// FilterSetValue passes the wanted state through unchanged.
func (s *Switch) FilterSetValue(v value.Value) (value.Value, bool) {
	state, ok := v.(value.OnOff)
	if !ok {
		s.logger.Error().Str("value", v.String()).Msg("switch got a non-on/off value")
		return nil, false
	}
	return state, true
}

// Send turns the entity on or off.
func (s *Switch) Send(ctx context.Context, v value.Value) error {
	state, ok := v.(value.OnOff)
	if !ok {
		return fmt.Errorf("switch %s: can only send on/off, got %s", s.entityID, v)
	}

	service := s.cfg.TurnOffService
	if bool(state) {
		service = s.cfg.TurnOnService
	}
	domain, name, err := splitService(service)
	if err != nil {
		return fmt.Errorf("switch %s: %w", s.entityID, err)
	}

	s.logger.Debug().
		Str("direction", "outgoing").
		Str("state", state.Serialize()).
		Msg("sending to switch")

	return s.caller.CallService(ctx, domain, name, map[string]any{"entity_id": s.entityID})
}

// HandleState reads the entity state and reports externally made changes.
func (s *Switch) HandleState(attrs map[string]any) (StateUpdate, error) {
	var update StateUpdate

	raw, ok := attrs[s.cfg.StateAttr]
	if !ok {
		return update, nil
	}

	var state value.OnOff
	switch fmt.Sprintf("%v", raw) {
	case s.cfg.OnState:
		state = value.On
	case s.cfg.OffState:
		state = value.OffSwitch
	default:
		s.logger.Error().
			Interface("state", raw).
			Msg("unknown switch state, ignoring")
		return update, nil
	}

	if s.current == nil || !state.Equal(s.current) {
		s.logger.Info().
			Str("direction", "incoming").
			Str("state", state.Serialize()).
			Msg("received switch state")
		s.current = state
		update.Value = state
	}

	return update, nil
}

// CheckConfig warns when the entity is missing.
func (s *Switch) CheckConfig(attrs map[string]any) {
	if len(attrs) == 0 {
		s.logger.Warn().Msg("switch couldn't be found")
	}
}
