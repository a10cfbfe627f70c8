package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ManuGH/schedy/internal/schedule"
)

func yamlUnmarshal(src string, out any) error {
	return yaml.Unmarshal([]byte(src), out)
}

const minimalYAML = `
hass:
  url: http://hass:8123
  token: secret
rooms:
  - name: living
    actors:
      - entity_id: climate.living
        type: thermostat
    schedule:
      - v: 21.0
        start: "07:00"
        end: "22:00"
      - v: 17.0
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schedy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadMinimal(t *testing.T) {
	cfg, err := NewLoader(writeConfig(t, minimalYAML)).Load()
	require.NoError(t, err)

	assert.Equal(t, "http://hass:8123", cfg.Hass.URL)
	assert.Equal(t, "secret", cfg.Hass.Token)
	assert.Equal(t, DefaultHassTimeout, cfg.Hass.Timeout)
	assert.Equal(t, DefaultListen, cfg.API.Listen)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.True(t, cfg.Metrics.Enabled)

	require.Len(t, cfg.Rooms, 1)
	room := cfg.Rooms[0]
	assert.Equal(t, "living", room.Name)
	assert.Equal(t, DefaultSendRetries, room.SendRetries)
	assert.Equal(t, DefaultSendRetryInterval, room.SendRetryInterval)
	assert.Zero(t, room.ReschedulingDelay)
	require.Len(t, room.Actors, 1)
	assert.Equal(t, "climate.living", room.Actors[0].EntityID)
	require.Len(t, room.Schedule, 2)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("SCHEDY_HASS_URL", "http://other:8123")
	t.Setenv("SCHEDY_LISTEN", ":9999")
	t.Setenv("SCHEDY_HASS_TIMEOUT", "3s")

	cfg, err := NewLoader(writeConfig(t, minimalYAML)).Load()
	require.NoError(t, err)

	assert.Equal(t, "http://other:8123", cfg.Hass.URL)
	assert.Equal(t, ":9999", cfg.API.Listen)
	assert.Equal(t, 3*time.Second, cfg.Hass.Timeout)
}

func TestEnvOnlyConfig(t *testing.T) {
	t.Setenv("SCHEDY_HASS_URL", "http://hass:8123")
	t.Setenv("SCHEDY_HASS_TOKEN", "secret")

	cfg, err := NewLoader("").Load()
	require.NoError(t, err)
	assert.Equal(t, "http://hass:8123", cfg.Hass.URL)
	assert.Empty(t, cfg.Rooms)
}

func TestUnknownFieldRejected(t *testing.T) {
	_, err := NewLoader(writeConfig(t, minimalYAML+"\nbogus_key: true\n")).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus_key")
}

func TestMultipleDocumentsRejected(t *testing.T) {
	_, err := NewLoader(writeConfig(t, minimalYAML+"\n---\nhass:\n  url: http://x\n")).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple YAML documents")
}

func TestRoomOptionsParsed(t *testing.T) {
	yaml := `
hass:
  url: http://hass:8123
  token: secret
schedule_snippets:
  comfort: "Temp(21.5)"
rooms:
  - name: living
    rescheduling_delay: 30m
    send_retries: 2
    send_retry_interval: 5s
    actors:
      - entity_id: climate.living
        type: thermostat
        config:
          delta: -1.0
    schedule:
      - v: 21.0
`
	cfg, err := NewLoader(writeConfig(t, yaml)).Load()
	require.NoError(t, err)

	room := cfg.Rooms[0]
	assert.Equal(t, 30*time.Minute, room.ReschedulingDelay)
	assert.Equal(t, 2, room.SendRetries)
	assert.Equal(t, 5*time.Second, room.SendRetryInterval)
	require.NotNil(t, room.Actors[0].Config)
	assert.Equal(t, "Temp(21.5)", cfg.Snippets["comfort"])
}

func TestValidation(t *testing.T) {
	base := func() AppConfig {
		cfg := defaults()
		cfg.Hass.URL = "http://hass:8123"
		cfg.Hass.Token = "secret"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{"valid", func(*AppConfig) {}, ""},
		{"missing url", func(c *AppConfig) { c.Hass.URL = "" }, "hass.url"},
		{"bad scheme", func(c *AppConfig) { c.Hass.URL = "ftp://hass" }, "scheme"},
		{"missing token", func(c *AppConfig) { c.Hass.Token = "" }, "hass.token"},
		{"unknown backend", func(c *AppConfig) { c.Store.Backend = "etcd" }, "backend"},
		{"badger without path", func(c *AppConfig) { c.Store.Backend = "badger" }, "store.path"},
		{"telemetry without endpoint", func(c *AppConfig) { c.Telemetry.Enabled = true }, "telemetry.endpoint"},
		{"bad snippet", func(c *AppConfig) { c.Snippets = map[string]string{"x": "1 +"} }, "schedule_snippets"},
		{
			"room without actors",
			func(c *AppConfig) { c.Rooms = []RoomConfig{{Name: "living"}} },
			"at least one actor",
		},
		{
			"duplicate room",
			func(c *AppConfig) {
				r := RoomConfig{Name: "living", Actors: []ActorConfig{{EntityID: "climate.a", Type: "thermostat"}}}
				r2 := r
				r2.Actors = []ActorConfig{{EntityID: "climate.b", Type: "thermostat"}}
				c.Rooms = []RoomConfig{r, r2}
			},
			"duplicate room",
		},
		{
			"entity in two rooms",
			func(c *AppConfig) {
				a := []ActorConfig{{EntityID: "climate.a", Type: "thermostat"}}
				c.Rooms = []RoomConfig{{Name: "one", Actors: a}, {Name: "two", Actors: a}}
			},
			"already belongs",
		},
		{
			"broken schedule rule",
			func(c *AppConfig) {
				c.Rooms = []RoomConfig{{
					Name:     "living",
					Actors:   []ActorConfig{{EntityID: "climate.a", Type: "thermostat"}},
					Schedule: []schedule.RuleConfig{{Name: "empty"}},
				}}
			},
			"needs either",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestHolderReloadKeepsOldConfigOnError(t *testing.T) {
	path := writeConfig(t, minimalYAML)
	loader := NewLoader(path)
	cfg, err := loader.Load()
	require.NoError(t, err)

	h := NewHolder(cfg, loader, path)
	assert.Equal(t, "http://hass:8123", h.Get().Hass.URL)

	// Break the file; the reload fails and the old config stays active.
	require.NoError(t, os.WriteFile(path, []byte("hass: {url: ''}"), 0o600))
	require.Error(t, h.Reload(context.Background()))
	assert.Equal(t, "http://hass:8123", h.Get().Hass.URL)
}

func TestHolderReloadNotifiesListeners(t *testing.T) {
	path := writeConfig(t, minimalYAML)
	loader := NewLoader(path)
	cfg, err := loader.Load()
	require.NoError(t, err)

	h := NewHolder(cfg, loader, path)
	ch := make(chan AppConfig, 1)
	h.RegisterListener(ch)

	require.NoError(t, h.Reload(context.Background()))
	select {
	case got := <-ch:
		assert.Equal(t, "http://hass:8123", got.Hass.URL)
	default:
		t.Fatal("listener was not notified")
	}
}

func TestDurationUnmarshal(t *testing.T) {
	var f FileRoomConfig
	require.NoError(t, yamlUnmarshal(`{name: x, rescheduling_delay: 90s}`, &f))
	require.NotNil(t, f.ReschedulingDelay)
	assert.Equal(t, 90*time.Second, f.ReschedulingDelay.Std())

	require.NoError(t, yamlUnmarshal(`{name: x, rescheduling_delay: 60}`, &f))
	assert.Equal(t, time.Minute, f.ReschedulingDelay.Std())

	require.Error(t, yamlUnmarshal(`{name: x, rescheduling_delay: "abc"}`, &f))
}
