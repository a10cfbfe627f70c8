package actor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ManuGH/schedy/internal/value"
)

func init() {
	Register("thermostat", NewThermostat)
}

// ThermostatConfig holds the per-thermostat settings. Zero values are
// replaced by defaults matching common climate integrations.
type ThermostatConfig struct {
	// Delta is added to every scheduled temperature before sending and
	// subtracted from externally observed targets. Never OFF.
	Delta value.Temp
	// MinTemp turns the thermostat off instead of sending anything below it.
	MinTemp *value.Temp
	// MaxTemp caps what is sent to the thermostat.
	MaxTemp *value.Temp
	// OffTemp is sent when the scheduled value is OFF. Defaults to OFF,
	// a numeric value keeps the thermostat heating at that temperature.
	OffTemp value.Temp

	SupportsOpmodes bool
	OpmodeHeat      string
	OpmodeOff       string

	OpmodeHeatService     string
	OpmodeOffService      string
	OpmodeHeatServiceAttr string
	OpmodeOffServiceAttr  string
	OpmodeStateAttr       string

	TargetTempService     string
	TargetTempServiceAttr string
	TargetTempStateAttr   string
	CurrentTempStateAttr  string
}

// DefaultThermostatConfig returns the config used when no settings are given.
func DefaultThermostatConfig() ThermostatConfig {
	return ThermostatConfig{
		Delta:                 value.NewTemp(0),
		OffTemp:               value.Off,
		SupportsOpmodes:       true,
		OpmodeHeat:            "heat",
		OpmodeOff:             "off",
		OpmodeHeatService:     "climate/set_operation_mode",
		OpmodeOffService:      "climate/set_operation_mode",
		OpmodeHeatServiceAttr: "operation_mode",
		OpmodeOffServiceAttr:  "operation_mode",
		OpmodeStateAttr:       "operation_mode",
		TargetTempService:     "climate/set_temperature",
		TargetTempServiceAttr: "temperature",
		TargetTempStateAttr:   "temperature",
		CurrentTempStateAttr:  "current_temperature",
	}
}

// thermostatYAML is the raw YAML shape of ThermostatConfig.
type thermostatYAML struct {
	Delta                 any     `yaml:"delta"`
	MinTemp               any     `yaml:"min_temp"`
	MaxTemp               any     `yaml:"max_temp"`
	OffTemp               any     `yaml:"off_temp"`
	SupportsOpmodes       *bool   `yaml:"supports_opmodes"`
	OpmodeHeat            *string `yaml:"opmode_heat"`
	OpmodeOff             *string `yaml:"opmode_off"`
	OpmodeHeatService     *string `yaml:"opmode_heat_service"`
	OpmodeOffService      *string `yaml:"opmode_off_service"`
	OpmodeHeatServiceAttr *string `yaml:"opmode_heat_service_attr"`
	OpmodeOffServiceAttr  *string `yaml:"opmode_off_service_attr"`
	OpmodeStateAttr       *string `yaml:"opmode_state_attr"`
	TargetTempService     *string `yaml:"target_temp_service"`
	TargetTempServiceAttr *string `yaml:"target_temp_service_attr"`
	TargetTempStateAttr   *string `yaml:"target_temp_state_attr"`
	CurrentTempStateAttr  *string `yaml:"current_temp_state_attr"`
}

func parseThermostatConfig(node *yaml.Node) (ThermostatConfig, error) {
	cfg := DefaultThermostatConfig()
	if node == nil {
		return cfg, nil
	}

	var raw thermostatYAML
	if err := node.Decode(&raw); err != nil {
		return cfg, fmt.Errorf("decode thermostat config: %w", err)
	}

	if raw.Delta != nil {
		d, err := value.ParseTemp(raw.Delta)
		if err != nil {
			return cfg, fmt.Errorf("delta: %w", err)
		}
		if d.IsOff() {
			return cfg, fmt.Errorf("delta must not be OFF")
		}
		cfg.Delta = d
	}
	if raw.MinTemp != nil {
		t, err := value.ParseTemp(raw.MinTemp)
		if err != nil {
			return cfg, fmt.Errorf("min_temp: %w", err)
		}
		if t.IsOff() {
			return cfg, fmt.Errorf("min_temp must not be OFF")
		}
		cfg.MinTemp = &t
	}
	if raw.MaxTemp != nil {
		t, err := value.ParseTemp(raw.MaxTemp)
		if err != nil {
			return cfg, fmt.Errorf("max_temp: %w", err)
		}
		if t.IsOff() {
			return cfg, fmt.Errorf("max_temp must not be OFF")
		}
		cfg.MaxTemp = &t
	}
	if raw.OffTemp != nil {
		t, err := value.ParseTemp(raw.OffTemp)
		if err != nil {
			return cfg, fmt.Errorf("off_temp: %w", err)
		}
		cfg.OffTemp = t
	}
	if raw.SupportsOpmodes != nil {
		cfg.SupportsOpmodes = *raw.SupportsOpmodes
	}

	setStr := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setStr(&cfg.OpmodeHeat, raw.OpmodeHeat)
	setStr(&cfg.OpmodeOff, raw.OpmodeOff)
	setStr(&cfg.OpmodeHeatService, raw.OpmodeHeatService)
	setStr(&cfg.OpmodeOffService, raw.OpmodeOffService)
	setStr(&cfg.OpmodeHeatServiceAttr, raw.OpmodeHeatServiceAttr)
	setStr(&cfg.OpmodeOffServiceAttr, raw.OpmodeOffServiceAttr)
	setStr(&cfg.OpmodeStateAttr, raw.OpmodeStateAttr)
	setStr(&cfg.TargetTempService, raw.TargetTempService)
	setStr(&cfg.TargetTempServiceAttr, raw.TargetTempServiceAttr)
	setStr(&cfg.TargetTempStateAttr, raw.TargetTempStateAttr)
	setStr(&cfg.CurrentTempStateAttr, raw.CurrentTempStateAttr)

	return cfg, nil
}

// Thermostat drives a climate entity.
type Thermostat struct {
	entityID string
	cfg      ThermostatConfig
	caller   ServiceCaller
	logger   zerolog.Logger

	current     value.Value
	currentTemp *value.Temp
}

// NewThermostat builds a thermostat actor from its YAML config node.
func NewThermostat(entityID string, node *yaml.Node, deps Deps) (Actor, error) {
	cfg, err := parseThermostatConfig(node)
	if err != nil {
		return nil, fmt.Errorf("thermostat %s: %w", entityID, err)
	}
	return NewThermostatWithConfig(entityID, cfg, deps), nil
}

// NewThermostatWithConfig builds a thermostat actor from an already parsed
// configuration.
func NewThermostatWithConfig(entityID string, cfg ThermostatConfig, deps Deps) *Thermostat {
	return &Thermostat{
		entityID: entityID,
		cfg:      cfg,
		caller:   deps.Caller,
		logger:   deps.Logger.With().Str("actor", entityID).Logger(),
	}
}

func (t *Thermostat) EntityID() string { return t.entityID }
func (t *Thermostat) Type() string     { return "thermostat" }

// CurrentTemp returns the last measured temperature, nil if unknown.
func (t *Thermostat) CurrentTemp() *value.Temp { return t.currentTemp }

func (t *Thermostat) CurrentValue() value.Value { return t.current }

// ValidateValue ensures the given raw value is a valid temperature.
func (t *Thermostat) ValidateValue(raw any) (value.Value, error) {
	return value.ParseTemp(raw)
}

func (t *Thermostat) DeserializeValue(s string) (value.Value, error) {
	return value.ParseTemp(s)
}

// FilterSetValue preprocesses the wanted temperature for this particular
// thermostat, getting as close as its limits allow. The boolean is false
// when nothing has to be sent.
func (t *Thermostat) FilterSetValue(v value.Value) (value.Value, bool) {
	temp, ok := v.(value.Temp)
	if !ok {
		t.logger.Error().Str("value", v.String()).Msg("thermostat got a non-temperature value")
		return nil, false
	}

	if temp.IsOff() {
		temp = t.cfg.OffTemp
	}

	var target *value.Temp
	turnOff := false
	if temp.IsOff() {
		turnOff = true
	} else {
		shifted := temp.Add(t.cfg.Delta)
		if t.cfg.MinTemp != nil && shifted.Less(*t.cfg.MinTemp) {
			turnOff = true
		} else {
			if t.cfg.MaxTemp != nil && t.cfg.MaxTemp.Less(shifted) {
				shifted = *t.cfg.MaxTemp
			}
			target = &shifted
		}
	}

	if !t.cfg.SupportsOpmodes {
		if turnOff {
			t.logger.Debug().Msg("not turning off, thermostat has no operation modes")
			if t.cfg.MinTemp != nil {
				t.logger.Debug().Msg("setting minimum supported temperature instead")
				target = t.cfg.MinTemp
			}
		}
		if target == nil {
			return nil, false
		}
		return *target, true
	}

	if turnOff {
		return value.Off, true
	}
	return *target, true
}

// Send applies the wanted temperature with the configured service calls.
func (t *Thermostat) Send(ctx context.Context, v value.Value) error {
	target, ok := v.(value.Temp)
	if !ok {
		return fmt.Errorf("thermostat %s: can only send temperatures, got %s", t.entityID, v)
	}

	opmode := ""
	if t.cfg.SupportsOpmodes {
		if target.IsOff() {
			opmode = t.cfg.OpmodeOff
		} else {
			opmode = t.cfg.OpmodeHeat
		}
	}

	t.logger.Debug().
		Str("direction", "outgoing").
		Str("temperature", target.String()).
		Str("opmode", opmode).
		Msg("sending to thermostat")

	if opmode != "" {
		service := t.cfg.OpmodeHeatService
		attr := t.cfg.OpmodeHeatServiceAttr
		if opmode == t.cfg.OpmodeOff {
			service = t.cfg.OpmodeOffService
			attr = t.cfg.OpmodeOffServiceAttr
		}
		domain, name, err := splitService(service)
		if err != nil {
			return fmt.Errorf("thermostat %s: %w", t.entityID, err)
		}
		data := map[string]any{"entity_id": t.entityID}
		if attr != "" {
			data[attr] = opmode
		}
		if err := t.caller.CallService(ctx, domain, name, data); err != nil {
			return fmt.Errorf("set operation mode: %w", err)
		}
	}

	if !target.IsOff() {
		f, err := target.Float()
		if err != nil {
			return err
		}
		domain, name, err := splitService(t.cfg.TargetTempService)
		if err != nil {
			return fmt.Errorf("thermostat %s: %w", t.entityID, err)
		}
		data := map[string]any{
			"entity_id":                 t.entityID,
			t.cfg.TargetTempServiceAttr: f,
		}
		if err := t.caller.CallService(ctx, domain, name, data); err != nil {
			return fmt.Errorf("set target temperature: %w", err)
		}
	}

	return nil
}

// HandleState parses a state-change attribute map. It tracks the measured
// temperature and reports externally made target changes net of delta.
func (t *Thermostat) HandleState(attrs map[string]any) (StateUpdate, error) {
	var update StateUpdate

	var rawTarget any
	if t.cfg.SupportsOpmodes {
		opmode, _ := attrs[t.cfg.OpmodeStateAttr].(string)
		t.logger.Debug().
			Str("direction", "incoming").
			Str("attr", t.cfg.OpmodeStateAttr).
			Str("value", opmode).
			Msg("operation mode reported")
		switch opmode {
		case t.cfg.OpmodeOff:
			rawTarget = value.Off
		case t.cfg.OpmodeHeat:
			// Fall through to the target temperature attribute.
		default:
			t.logger.Error().
				Str("opmode", opmode).
				Msg("unknown operation mode, ignoring thermostat")
			return update, nil
		}
	}

	if rawTarget == nil {
		rawTarget = attrs[t.cfg.TargetTempStateAttr]
		t.logger.Debug().
			Str("direction", "incoming").
			Str("attr", t.cfg.TargetTempStateAttr).
			Interface("value", rawTarget).
			Msg("target temperature reported")
	}

	target, err := value.ParseTemp(rawTarget)
	if err != nil {
		t.logger.Error().Err(err).Msg("invalid target temperature, ignoring thermostat")
		return update, nil
	}

	if t.cfg.CurrentTempStateAttr != "" {
		if raw, ok := attrs[t.cfg.CurrentTempStateAttr]; ok {
			current, err := value.ParseTemp(raw)
			if err != nil {
				t.logger.Error().Err(err).Msg("invalid current temperature, not updating it")
			} else if t.currentTemp == nil || !current.Equal(*t.currentTemp) {
				t.currentTemp = &current
				update.CurrentTemp = &current
			}
		}
	}

	if t.current == nil || !target.Equal(t.current) {
		t.logger.Info().
			Str("direction", "incoming").
			Str("target", target.String()).
			Msg("received target temperature")
		t.current = target
		update.Value = target.Sub(t.cfg.Delta)
	}

	return update, nil
}

// CheckConfig warns about common configuration mistakes based on the
// entity's current attributes.
func (t *Thermostat) CheckConfig(attrs map[string]any) {
	if len(attrs) == 0 {
		t.logger.Warn().Msg("thermostat couldn't be found")
		return
	}

	required := []string{t.cfg.TargetTempStateAttr}
	if t.cfg.SupportsOpmodes {
		required = append(required, t.cfg.OpmodeStateAttr)
	}
	for _, attr := range required {
		if _, ok := attrs[attr]; !ok {
			t.logger.Warn().
				Str("attr", attr).
				Msg("thermostat has no such attribute, please check your config")
		}
	}

	tempAttrs := []string{t.cfg.TargetTempStateAttr}
	if t.cfg.CurrentTempStateAttr != "" {
		tempAttrs = append(tempAttrs, t.cfg.CurrentTempStateAttr)
	}
	for _, attr := range tempAttrs {
		if raw, ok := attrs[attr]; ok {
			if _, err := value.ParseTemp(raw); err != nil {
				t.logger.Warn().
					Str("attr", attr).
					Interface("value", raw).
					Msg("attribute is no valid temperature, please check your config")
			}
		}
	}

	allowed, _ := attrs["operation_list"].([]any)
	if !t.cfg.SupportsOpmodes {
		if len(allowed) > 0 {
			t.logger.Warn().
				Interface("modes", allowed).
				Msg("operation mode support is disabled, but these modes seem to be supported")
		}
		return
	}

	if t.cfg.OpmodeStateAttr != "operation_mode" {
		// operation_list can't be trusted for custom state attributes.
		return
	}
	if len(allowed) == 0 {
		t.logger.Warn().Msg("thermostat reports no operation_list, consider disabling operation mode support")
		return
	}
	for _, opmode := range []string{t.cfg.OpmodeHeat, t.cfg.OpmodeOff} {
		found := false
		for _, a := range allowed {
			if s, ok := a.(string); ok && s == opmode {
				found = true
				break
			}
		}
		if !found {
			t.logger.Warn().
				Str("opmode", opmode).
				Interface("supported", allowed).
				Msg("thermostat doesn't seem to support this operation mode, please check your config")
		}
	}
}
