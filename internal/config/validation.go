package config

import (
	"fmt"
	"net/url"

	"github.com/ManuGH/schedy/internal/expression"
	"github.com/ManuGH/schedy/internal/metrics"
	"github.com/ManuGH/schedy/internal/schedule"
)

// Validate checks the merged configuration. Schedules and snippet
// expressions are compiled so rule mistakes surface at load time instead
// of at the first evaluation.
func Validate(cfg AppConfig) error {
	if err := validate(cfg); err != nil {
		metrics.IncConfigValidation()
		return err
	}
	return nil
}

func validate(cfg AppConfig) error {
	if cfg.Hass.URL == "" {
		return fmt.Errorf("hass.url is required (or set SCHEDY_HASS_URL)")
	}
	u, err := url.Parse(cfg.Hass.URL)
	if err != nil {
		return fmt.Errorf("hass.url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("hass.url: unsupported scheme %q (want http or https)", u.Scheme)
	}
	if cfg.Hass.Token == "" {
		return fmt.Errorf("hass.token is required (or set SCHEDY_HASS_TOKEN)")
	}
	if cfg.Hass.Timeout <= 0 {
		return fmt.Errorf("hass.timeout must be positive")
	}
	if cfg.Hass.CallRate < 0 {
		return fmt.Errorf("hass.call_rate must be >= 0")
	}

	if cfg.API.RateLimit < 0 {
		return fmt.Errorf("api.rate_limit must be >= 0")
	}

	switch cfg.Store.Backend {
	case "memory":
	case "badger", "redis":
		if cfg.Store.Path == "" {
			return fmt.Errorf("store.path is required for backend %q", cfg.Store.Backend)
		}
	default:
		return fmt.Errorf("store.backend: unknown backend %q (want memory, badger or redis)", cfg.Store.Backend)
	}

	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.Endpoint == "" {
			return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
		}
		if p := cfg.Telemetry.Protocol; p != "grpc" && p != "http" {
			return fmt.Errorf("telemetry.protocol: unknown protocol %q (want grpc or http)", p)
		}
		if r := cfg.Telemetry.SampleRatio; r < 0 || r > 1 {
			return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
		}
	}

	for name, src := range cfg.Snippets {
		if _, err := expression.Compile(src); err != nil {
			return fmt.Errorf("schedule_snippets.%s: %w", name, err)
		}
	}

	seen := make(map[string]struct{}, len(cfg.Rooms))
	entities := make(map[string]string)
	for i, room := range cfg.Rooms {
		if room.Name == "" {
			return fmt.Errorf("rooms[%d]: name is required", i)
		}
		if _, dup := seen[room.Name]; dup {
			return fmt.Errorf("rooms[%d]: duplicate room name %q", i, room.Name)
		}
		seen[room.Name] = struct{}{}

		if len(room.Actors) == 0 {
			return fmt.Errorf("room %s: needs at least one actor", room.Name)
		}
		for j, a := range room.Actors {
			if a.EntityID == "" {
				return fmt.Errorf("room %s: actors[%d]: entity_id is required", room.Name, j)
			}
			if a.Type == "" {
				return fmt.Errorf("room %s: actor %s: type is required", room.Name, a.EntityID)
			}
			if owner, dup := entities[a.EntityID]; dup {
				return fmt.Errorf("room %s: entity %s already belongs to room %s", room.Name, a.EntityID, owner)
			}
			entities[a.EntityID] = room.Name
		}

		if room.SendRetries < 0 {
			return fmt.Errorf("room %s: send_retries must be >= 0", room.Name)
		}
		if room.ReschedulingDelay < 0 {
			return fmt.Errorf("room %s: rescheduling_delay must be >= 0", room.Name)
		}

		if _, err := schedule.Build(room.Schedule); err != nil {
			return fmt.Errorf("room %s: schedule: %w", room.Name, err)
		}
	}

	return nil
}
