package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// newStrictDecoder builds a YAML decoder that rejects unknown fields.
func newStrictDecoder(r io.Reader) *yaml.Decoder {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	return dec
}

// Default values applied before file and environment merging.
const (
	DefaultListen            = ":8080"
	DefaultMetricsListen     = ":9090"
	DefaultStoreBackend      = "memory"
	DefaultHassTimeout       = 10 * time.Second
	DefaultAPIRateLimit      = 100 // requests per minute per IP
	DefaultSendRetries       = 10
	DefaultSendRetryInterval = 30 * time.Second
	DefaultLogLevel          = "info"
	DefaultOTLPProtocol      = "grpc"
)

// Loader loads configuration with precedence ENV > file > defaults.
type Loader struct {
	configPath string
}

// NewLoader creates a loader. An empty path skips the file layer.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load builds the merged configuration. The result is validated; an
// invalid configuration is returned together with the error so callers
// can log details.
func (l *Loader) Load() (AppConfig, error) {
	cfg := defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		mergeFile(&cfg, fileCfg)
	}

	mergeEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func defaults() AppConfig {
	return AppConfig{
		Hass: HassConfig{
			Timeout: DefaultHassTimeout,
		},
		API: APIConfig{
			Listen:    DefaultListen,
			RateLimit: DefaultAPIRateLimit,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Listen:  DefaultMetricsListen,
		},
		Store: StoreConfig{
			Backend: DefaultStoreBackend,
		},
		Telemetry: TelemetryConfig{
			Protocol:    DefaultOTLPProtocol,
			SampleRatio: 1.0,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}

// loadFile parses the YAML file strictly: unknown fields are rejected and
// exactly one document is allowed.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- path comes from the operator
	if err != nil {
		return nil, err
	}

	dec := newStrictDecoder(bytes.NewReader(raw))
	var cfg FileConfig
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	// A second document is a config mistake, not an extension point.
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse %s: multiple YAML documents are not supported", path)
	}

	return &cfg, nil
}

func mergeFile(cfg *AppConfig, f *FileConfig) {
	setString(&cfg.Hass.URL, f.Hass.URL)
	setString(&cfg.Hass.Token, f.Hass.Token)
	setDuration(&cfg.Hass.Timeout, f.Hass.Timeout)
	setFloat(&cfg.Hass.CallRate, f.Hass.CallRate)
	setInt(&cfg.Hass.CallBurst, f.Hass.CallBurst)

	setString(&cfg.API.Listen, f.API.Listen)
	setString(&cfg.API.Token, f.API.Token)
	setInt(&cfg.API.RateLimit, f.API.RateLimit)

	setBool(&cfg.Metrics.Enabled, f.Metrics.Enabled)
	setString(&cfg.Metrics.Listen, f.Metrics.Listen)

	setString(&cfg.Store.Backend, f.Store.Backend)
	setString(&cfg.Store.Path, f.Store.Path)

	setBool(&cfg.Telemetry.Enabled, f.Telemetry.Enabled)
	setString(&cfg.Telemetry.Endpoint, f.Telemetry.Endpoint)
	setString(&cfg.Telemetry.Protocol, f.Telemetry.Protocol)
	setBool(&cfg.Telemetry.Insecure, f.Telemetry.Insecure)
	setFloat(&cfg.Telemetry.SampleRatio, f.Telemetry.SampleRatio)

	setString(&cfg.Log.Level, f.Log.Level)

	if len(f.Snippets) > 0 {
		cfg.Snippets = f.Snippets
	}

	cfg.Rooms = cfg.Rooms[:0]
	for _, fr := range f.Rooms {
		rc := RoomConfig{
			Name:              fr.Name,
			SendRetries:       DefaultSendRetries,
			SendRetryInterval: DefaultSendRetryInterval,
			Schedule:          fr.Schedule,
		}
		if fr.ReschedulingDelay != nil {
			rc.ReschedulingDelay = fr.ReschedulingDelay.Std()
		}
		if fr.SendRetries != nil {
			rc.SendRetries = *fr.SendRetries
		}
		if fr.SendRetryInterval != nil {
			rc.SendRetryInterval = fr.SendRetryInterval.Std()
		}
		for _, fa := range fr.Actors {
			rc.Actors = append(rc.Actors, ActorConfig{
				EntityID: fa.EntityID,
				Type:     fa.Type,
				Config:   fa.Config,
			})
		}
		cfg.Rooms = append(cfg.Rooms, rc)
	}
}

func mergeEnv(cfg *AppConfig) {
	cfg.Hass.URL = ParseString("SCHEDY_HASS_URL", cfg.Hass.URL)
	cfg.Hass.Token = ParseString("SCHEDY_HASS_TOKEN", cfg.Hass.Token)
	cfg.Hass.Timeout = ParseDuration("SCHEDY_HASS_TIMEOUT", cfg.Hass.Timeout)
	cfg.Hass.CallRate = ParseFloat("SCHEDY_HASS_CALL_RATE", cfg.Hass.CallRate)
	cfg.Hass.CallBurst = ParseInt("SCHEDY_HASS_CALL_BURST", cfg.Hass.CallBurst)

	cfg.API.Listen = ParseString("SCHEDY_LISTEN", cfg.API.Listen)
	cfg.API.Token = ParseString("SCHEDY_API_TOKEN", cfg.API.Token)
	cfg.API.RateLimit = ParseInt("SCHEDY_API_RATE_LIMIT", cfg.API.RateLimit)

	cfg.Metrics.Enabled = ParseBool("SCHEDY_METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.Listen = ParseString("SCHEDY_METRICS_LISTEN", cfg.Metrics.Listen)

	cfg.Store.Backend = ParseString("SCHEDY_STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.Path = ParseString("SCHEDY_STORE_PATH", cfg.Store.Path)

	cfg.Telemetry.Enabled = ParseBool("SCHEDY_OTEL_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Endpoint = ParseString("SCHEDY_OTEL_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.Protocol = ParseString("SCHEDY_OTEL_PROTOCOL", cfg.Telemetry.Protocol)
	cfg.Telemetry.Insecure = ParseBool("SCHEDY_OTEL_INSECURE", cfg.Telemetry.Insecure)
	cfg.Telemetry.SampleRatio = ParseFloat("SCHEDY_OTEL_SAMPLE_RATIO", cfg.Telemetry.SampleRatio)

	cfg.Log.Level = ParseString("SCHEDY_LOG_LEVEL", cfg.Log.Level)
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *Duration) {
	if src != nil {
		*dst = src.Std()
	}
}
