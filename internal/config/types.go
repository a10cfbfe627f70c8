// Package config loads, validates and hot-reloads the daemon
// configuration with precedence ENV > file > defaults.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/schedy/internal/schedule"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30m" or plain numbers (seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
		return nil
	case int:
		*d = Duration(time.Duration(v) * time.Second)
		return nil
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
		return nil
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// AppConfig is the fully merged runtime configuration.
type AppConfig struct {
	Hass      HassConfig
	API       APIConfig
	Metrics   MetricsConfig
	Store     StoreConfig
	Telemetry TelemetryConfig
	Log       LogConfig

	// Snippets are named expressions usable from schedule rules via
	// snippet("name").
	Snippets map[string]string

	Rooms []RoomConfig
}

// HassConfig is the Home Assistant connection.
type HassConfig struct {
	URL     string
	Token   string
	Timeout time.Duration

	// CallRate limits outgoing service calls per second; 0 disables.
	CallRate  float64
	CallBurst int
}

// APIConfig is the management HTTP API.
type APIConfig struct {
	Listen string
	// Token guards the /api endpoints; empty disables auth.
	Token string
	// RateLimit is requests per minute per client IP.
	RateLimit int
}

// MetricsConfig is the Prometheus listener.
type MetricsConfig struct {
	Enabled bool
	Listen  string
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Backend is one of memory, badger, redis.
	Backend string
	// Path is the database directory (badger) or server address (redis).
	Path string
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool
	Endpoint    string
	Protocol    string // grpc or http
	Insecure    bool
	SampleRatio float64
}

type LogConfig struct {
	Level string
}

// RoomConfig describes one room with its schedule and actors.
type RoomConfig struct {
	Name string

	ReschedulingDelay time.Duration
	SendRetries       int
	SendRetryInterval time.Duration

	Actors   []ActorConfig
	Schedule []schedule.RuleConfig
}

// ActorConfig describes a single actor. Config carries the type-specific
// options verbatim; the actor implementation decodes them.
type ActorConfig struct {
	EntityID string
	Type     string
	Config   *yaml.Node
}

// FileConfig is the YAML shape of the config file. Pointer fields
// distinguish "absent" from zero values during merging.
type FileConfig struct {
	Hass struct {
		URL       *string   `yaml:"url"`
		Token     *string   `yaml:"token"`
		Timeout   *Duration `yaml:"timeout"`
		CallRate  *float64  `yaml:"call_rate"`
		CallBurst *int      `yaml:"call_burst"`
	} `yaml:"hass"`

	API struct {
		Listen    *string `yaml:"listen"`
		Token     *string `yaml:"token"`
		RateLimit *int    `yaml:"rate_limit"`
	} `yaml:"api"`

	Metrics struct {
		Enabled *bool   `yaml:"enabled"`
		Listen  *string `yaml:"listen"`
	} `yaml:"metrics"`

	Store struct {
		Backend *string `yaml:"backend"`
		Path    *string `yaml:"path"`
	} `yaml:"store"`

	Telemetry struct {
		Enabled     *bool    `yaml:"enabled"`
		Endpoint    *string  `yaml:"endpoint"`
		Protocol    *string  `yaml:"protocol"`
		Insecure    *bool    `yaml:"insecure"`
		SampleRatio *float64 `yaml:"sample_ratio"`
	} `yaml:"telemetry"`

	Log struct {
		Level *string `yaml:"level"`
	} `yaml:"log"`

	Snippets map[string]string `yaml:"schedule_snippets"`

	Rooms []FileRoomConfig `yaml:"rooms"`
}

// FileRoomConfig is the YAML shape of a room.
type FileRoomConfig struct {
	Name              string                `yaml:"name"`
	ReschedulingDelay *Duration             `yaml:"rescheduling_delay"`
	SendRetries       *int                  `yaml:"send_retries"`
	SendRetryInterval *Duration             `yaml:"send_retry_interval"`
	Actors            []FileActorConfig     `yaml:"actors"`
	Schedule          []schedule.RuleConfig `yaml:"schedule"`
}

// FileActorConfig is the YAML shape of an actor.
type FileActorConfig struct {
	EntityID string     `yaml:"entity_id"`
	Type     string     `yaml:"type"`
	Config   *yaml.Node `yaml:"config"`
}
