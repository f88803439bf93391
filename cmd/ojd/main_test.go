package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oddjobs/oj/internal/adapters"
	"github.com/oddjobs/oj/internal/domain"
	"github.com/oddjobs/oj/internal/effects"
	"github.com/oddjobs/oj/internal/eventlog"
	"github.com/oddjobs/oj/internal/logger"
	"github.com/oddjobs/oj/internal/state"
	"github.com/oddjobs/oj/internal/timers"
)

type recordingHandler struct {
	handled chan domain.Event
}

func (h *recordingHandler) Handle(_ context.Context, e domain.Event) ([]effects.Effect, error) {
	h.handled <- e
	return nil, nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "console", OutputPath: "stdout"})
	require.NoError(t, err)
	return log
}

func TestRunTickLoopEmitsDueTimerAsTimerStart(t *testing.T) {
	log := testLogger(t)
	st := state.New()
	wal, err := eventlog.Open(t.TempDir(), 0, nil, log)
	require.NoError(t, err)
	t.Cleanup(func() { wal.Close() })

	wheel := timers.New()
	handler := &recordingHandler{handled: make(chan domain.Event, 1)}
	executor := effects.NewExecutor(st, wal, wheel, adapters.NewRouter(), adapters.LogNotifier{}, handler, log)

	wheel.SetTimer("cron:nightly", time.Now().Add(-time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	stop := runTickLoop(ctx, wheel, executor, 10*time.Millisecond, log)

	select {
	case e := <-handler.handled:
		require.Equal(t, domain.KindTimerStart, e.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for tick loop to fire due timer")
	}

	cancel()
	stop()
}

func TestRunTickLoopDefaultsNonPositiveIntervalToOneSecond(t *testing.T) {
	log := testLogger(t)
	st := state.New()
	wal, err := eventlog.Open(t.TempDir(), 0, nil, log)
	require.NoError(t, err)
	t.Cleanup(func() { wal.Close() })

	wheel := timers.New()
	handler := &recordingHandler{handled: make(chan domain.Event, 1)}
	executor := effects.NewExecutor(st, wal, wheel, adapters.NewRouter(), adapters.LogNotifier{}, handler, log)

	ctx, cancel := context.WithCancel(context.Background())
	stop := runTickLoop(ctx, wheel, executor, 0, log)
	cancel()
	stop()
}
