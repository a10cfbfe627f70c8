package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/schedy/internal/log"
)

type fakeManager struct {
	started chan struct{}
}

func (f *fakeManager) Start(ctx context.Context) error {
	close(f.started)
	<-ctx.Done()
	return nil
}

func (f *fakeManager) Shutdown(context.Context) error            { return nil }
func (f *fakeManager) RegisterShutdownHook(string, ShutdownHook) {}

func TestAppRequiresManager(t *testing.T) {
	app := NewApp(log.WithComponent("test"), nil, nil, nil)
	require.ErrorIs(t, app.Run(context.Background()), ErrMissingManager)
}

func TestAppRunsAndStops(t *testing.T) {
	fm := &fakeManager{started: make(chan struct{})}
	app := NewApp(log.WithComponent("test"), fm, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	select {
	case <-fm.started:
	case <-time.After(2 * time.Second):
		t.Fatal("manager never started")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("app did not stop")
	}
}
