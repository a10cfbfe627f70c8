// SPDX-License-Identifier: MIT

// Command configgen writes an annotated example configuration file.
// The generated YAML is loaded back through the regular config loader
// before it is written, so the example can never drift out of sync
// with what the daemon accepts.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/renameio/v2"

	"github.com/ManuGH/schedy/internal/config"
)

const exampleConfig = `# schedy example configuration.
#
# Every setting shown here can also be provided through the
# environment (SCHEDY_* variables); environment values win over
# file values.

hass:
  # Base URL of the Home Assistant instance.
  url: http://homeassistant.local:8123
  # Long-lived access token. Prefer SCHEDY_HASS_TOKEN over
  # committing the token to disk.
  token: replace-me
  # HTTP timeout for REST calls.
  timeout: 10s
  # Service-call rate limit (calls per second, 0 = unlimited).
  call_rate: 5
  call_burst: 10

api:
  listen: ":8080"
  # Optional bearer token for the management API. Health probes
  # stay unauthenticated.
  # token: replace-me
  # Requests per minute per client IP.
  rate_limit: 100

metrics:
  enabled: true
  listen: ":9090"

store:
  # One of: memory, badger, redis.
  backend: badger
  path: /var/lib/schedy

log:
  level: info

# Named expression snippets usable from schedule rules via
# snippet("name").
schedule_snippets:
  comfort: 'Temp(21.5)'

rooms:
  - name: living
    # How long an externally set value is kept before the schedule
    # takes over again. 0 reverts external changes immediately.
    rescheduling_delay: 2h
    actors:
      - entity_id: climate.living_room
        type: thermostat
        config:
          min_temp: 7
          max_temp: 28
    schedule:
      - { start: "07:00", end: "22:00", v: 21.5 }
      - { v: "OFF" }

  - name: bath
    rescheduling_delay: 30m
    actors:
      - entity_id: climate.bath
        type: thermostat
    schedule:
      - { start: "06:00", end: "09:00", weekdays: "1-5", v: 23 }
      - { start: "07:30", end: "10:00", weekdays: "6,7", v: 23 }
      - { v: 17 }
`

func main() {
	out := flag.String("out", "config.example.yaml", "output path (- for stdout)")
	flag.Parse()

	if err := run(*out); err != nil {
		fmt.Fprintf(os.Stderr, "configgen: %v\n", err)
		os.Exit(1)
	}
}

func run(out string) error {
	if err := verify(exampleConfig); err != nil {
		return fmt.Errorf("generated example is invalid: %w", err)
	}

	if out == "-" {
		_, err := os.Stdout.WriteString(exampleConfig)
		return err
	}
	return writeAtomic(out, exampleConfig)
}

// verify loads the example through the daemon's own loader.
func verify(raw string) error {
	tmp, err := os.CreateTemp("", "schedy-configgen-*.yaml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(raw); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	_, err = config.NewLoader(tmp.Name()).Load()
	return err
}

// writeAtomic writes via a pending file so a crash mid-write never
// leaves a truncated config behind.
func writeAtomic(path, raw string) error {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.WriteString(raw); err != nil {
		return fmt.Errorf("write example config: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
