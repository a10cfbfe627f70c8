// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/schedy/internal/api"
	"github.com/ManuGH/schedy/internal/config"
	"github.com/ManuGH/schedy/internal/daemon"
	"github.com/ManuGH/schedy/internal/engine"
	"github.com/ManuGH/schedy/internal/health"
	slog "github.com/ManuGH/schedy/internal/log"
	"github.com/ManuGH/schedy/internal/store"
	"github.com/ManuGH/schedy/internal/telemetry"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("schedy %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Safe defaults until the config is loaded.
	slog.Configure(slog.Config{
		Level:   "info",
		Service: "schedy",
		Version: version,
	})
	logger := slog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := strings.TrimSpace(*configPath)
	if path == "" {
		path = strings.TrimSpace(config.ParseString("SCHEDY_CONFIG", ""))
	}

	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", path).
			Msg("failed to load configuration")
	}

	slog.Configure(slog.Config{
		Level:   cfg.Log.Level,
		Service: "schedy",
		Version: version,
	})

	if path != "" {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file").
			Str("path", path).
			Int("rooms", len(cfg.Rooms)).
			Msg("loaded configuration from file")
	} else {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	tracing, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "schedy",
		ServiceVersion: version,
		Protocol:       cfg.Telemetry.Protocol,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize tracing")
	}

	st, err := store.Open(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("backend", cfg.Store.Backend).
			Msg("failed to open store")
	}

	holder := config.NewHolder(cfg, loader, path)

	// The engine is rebuilt from the current config after every reload;
	// the core indirection keeps the API pointed at the live instance.
	core := &engineCore{}
	newEngine := func(c config.AppConfig) (*engine.Engine, error) {
		e, err := engine.New(c, st)
		if err == nil {
			core.set(e)
		}
		return e, err
	}

	// Build the first engine eagerly so the API has rooms from the start.
	if _, err := newEngine(cfg); err != nil {
		logger.Fatal().Err(err).Msg("failed to build engine")
	}

	healthMgr := health.NewManager(version)
	healthMgr.RegisterChecker(health.NewStoreChecker(st))
	healthMgr.RegisterChecker(health.NewHassChecker(core))

	apiServer := api.New(core, holder, healthMgr, api.Options{
		Token:     cfg.API.Token,
		RateLimit: cfg.API.RateLimit,
	})

	deps := daemon.Deps{
		Logger:     slog.WithComponent("daemon"),
		APIHandler: apiServer.Handler(),
	}
	if cfg.Metrics.Enabled {
		deps.MetricsAddr = cfg.Metrics.Listen
		deps.MetricsHandler = promhttp.Handler()
	}

	manager, err := daemon.NewManager(daemon.ServerConfig{ListenAddr: cfg.API.Listen}, deps)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create daemon manager")
	}
	manager.RegisterShutdownHook("store", func(context.Context) error {
		return st.Close()
	})
	manager.RegisterShutdownHook("tracing", tracing.Shutdown)
	manager.RegisterShutdownHook("config-watcher", func(context.Context) error {
		holder.Stop()
		return nil
	})

	app := daemon.NewApp(logger, manager, holder, newEngine)

	logger.Info().
		Str("event", "daemon.starting").
		Str("version", version).
		Str("listen", cfg.API.Listen).
		Msg("starting schedy")

	if err := app.Run(ctx); err != nil {
		logger.Error().Err(err).Str("event", "daemon.failed").Msg("daemon exited with error")
		os.Exit(1)
	}
	logger.Info().Str("event", "daemon.stopped").Msg("schedy stopped")
}
