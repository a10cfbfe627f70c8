package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/schedy/internal/config"
	"github.com/ManuGH/schedy/internal/engine"
)

// EngineFactory builds a fresh engine from a configuration. Called once
// at startup and again after every successful reload.
type EngineFactory func(cfg config.AppConfig) (*engine.Engine, error)

// App owns the runtime lifecycle: config watcher, SIGHUP wiring, engine
// restarts on reload, and delegates server management to Manager.
type App struct {
	logger       zerolog.Logger
	manager      Manager
	holder       *config.Holder
	newEngine    EngineFactory
	reloadSignal os.Signal
}

// NewApp creates the application orchestrator.
func NewApp(logger zerolog.Logger, manager Manager, holder *config.Holder, newEngine EngineFactory) *App {
	return &App{
		logger:       logger,
		manager:      manager,
		holder:       holder,
		newEngine:    newEngine,
		reloadSignal: syscall.SIGHUP,
	}
}

// Run starts everything and blocks until ctx is cancelled or a fatal
// error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}

	g, ctx := errgroup.WithContext(ctx)

	// The watcher is best-effort: a missing inotify facility should not
	// prevent startup.
	if a.holder != nil {
		if err := a.holder.StartWatcher(ctx); err != nil {
			a.logger.Warn().
				Err(err).
				Str("event", "config.watcher_start_failed").
				Msg("failed to start config watcher")
		}
	}

	if a.holder != nil && a.reloadSignal != nil {
		g.Go(func() error { return a.watchReloadSignal(ctx) })
	}

	if a.newEngine != nil {
		reloadCh := make(chan config.AppConfig, 1)
		if a.holder != nil {
			a.holder.RegisterListener(reloadCh)
		}
		g.Go(func() error { return a.runEngine(ctx, reloadCh) })
	}

	g.Go(func() error {
		err := a.manager.Start(ctx)
		if err != nil {
			_ = a.manager.Shutdown(context.Background())
		}
		return err
	})

	return g.Wait()
}

// watchReloadSignal triggers a config reload on SIGHUP.
func (a *App) watchReloadSignal(ctx context.Context) error {
	hupChan := make(chan os.Signal, 1)
	signal.Notify(hupChan, a.reloadSignal)
	defer signal.Stop(hupChan)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hupChan:
			a.logger.Info().
				Str("event", "config.reload_signal").
				Str("signal", a.reloadSignal.String()).
				Msg("received reload signal, reloading config")
			if err := a.holder.Reload(ctx); err != nil {
				a.logger.Warn().
					Err(err).
					Str("event", "config.reload_failed").
					Msg("config reload failed")
			}
		}
	}
}

// runEngine runs the engine and restarts it with a fresh configuration
// after every successful reload. An engine failure is fatal for the app.
func (a *App) runEngine(ctx context.Context, reloadCh <-chan config.AppConfig) error {
	cfg := a.holder.Get()

	for {
		eng, err := a.newEngine(cfg)
		if err != nil {
			// The config was validated, so this points at a deeper
			// problem; wait for a fixed config instead of crash-looping.
			a.logger.Error().Err(err).Msg("building engine failed, waiting for config reload")
			select {
			case <-ctx.Done():
				return nil
			case cfg = <-reloadCh:
				continue
			}
		}

		engineCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- eng.Run(engineCtx) }()

		select {
		case <-ctx.Done():
			cancel()
			<-done
			return nil
		case err := <-done:
			cancel()
			if err != nil {
				return err
			}
			return nil
		case cfg = <-reloadCh:
			a.logger.Info().
				Str("event", "engine.restart").
				Msg("configuration changed, restarting engine")
			cancel()
			<-done
		}
	}
}
