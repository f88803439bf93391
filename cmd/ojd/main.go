// Command ojd is the daemon process: it owns the event log, materialised
// state, timer wheel, agent adapters, and the Unix-socket listener, and
// runs until signalled to stop. Boot order follows spec.md §4.1/§4.10:
// load snapshot, replay the log forward from it, reconcile live owners
// against reality, then start accepting connections — mirroring the
// teacher's cmd/kandev daemon entrypoint in shape (load config, build
// logger, wire services, block on signal).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/oddjobs/oj/internal/adapters"
	"github.com/oddjobs/oj/internal/adapters/docker"
	"github.com/oddjobs/oj/internal/adapters/localproc"
	"github.com/oddjobs/oj/internal/adapters/mock"
	"github.com/oddjobs/oj/internal/clock"
	"github.com/oddjobs/oj/internal/config"
	"github.com/oddjobs/oj/internal/decision"
	"github.com/oddjobs/oj/internal/domain"
	"github.com/oddjobs/oj/internal/effects"
	"github.com/oddjobs/oj/internal/eventlog"
	"github.com/oddjobs/oj/internal/listener"
	"github.com/oddjobs/oj/internal/logger"
	"github.com/oddjobs/oj/internal/reconcile"
	"github.com/oddjobs/oj/internal/runbook"
	"github.com/oddjobs/oj/internal/runtime"
	"github.com/oddjobs/oj/internal/state"
	"github.com/oddjobs/oj/internal/supervisor"
	"github.com/oddjobs/oj/internal/timers"
)

// version is the daemon schema/build version reported in daemon.version
// and the listener's "already running" message. Overridden at link time
// with -ldflags "-X main.version=...", same convention as the teacher's
// build-time version stamping.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ojd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config(cfg.Logging))
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Zap().Sync()

	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := state.New()

	snapSeq, rawState, err := eventlog.LoadSnapshot(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if rawState != nil {
		if err := json.Unmarshal(rawState, st); err != nil {
			return fmt.Errorf("decode snapshot state: %w", err)
		}
		st.LastAppliedSeq = snapSeq
	}

	idx, err := eventlog.OpenIndex(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("open side index: %w", err)
	}
	defer idx.Close()

	wal, err := eventlog.Open(cfg.StateDir, cfg.Snapshot.SegmentMaxBytes, idx, log)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer wal.Close()

	replayed, err := wal.Replay(snapSeq + 1)
	if err != nil {
		return fmt.Errorf("replay event log: %w", err)
	}
	for _, e := range replayed {
		state.Apply(st, e)
	}
	log.Info("boot replay complete",
		zap.Uint64("snapshot_seq", snapSeq),
		zap.Int("replayed_events", len(replayed)),
		zap.Uint64("last_applied_seq", st.LastAppliedSeq))

	wheel := timers.New()
	router := adapters.NewRouter()

	var executor *effects.Executor
	emit := func(e domain.Event) {
		if executor != nil {
			executor.EmitNow(ctx, e)
		}
	}

	if cfg.Adapters.LocalProc {
		lp := localproc.New(localproc.Config{StateDir: cfg.StateDir}, log)
		lp.Emit = emit
		router.Register(domain.RuntimeLocalProcess, lp)
	}
	if cfg.Adapters.Docker {
		dk, err := docker.New(cfg.Docker, cfg.StateDir, log)
		if err != nil {
			log.Warn("docker adapter unavailable, continuing without it", zap.Error(err))
		} else {
			dk.Emit = emit
			router.Register(domain.RuntimeDockerContainer, dk)
		}
	}
	// Always register the mock adapter: it backs tests and any runbook
	// that explicitly opts into runtime "mock" for local development.
	router.Register("mock", mock.New())

	runbooks := runbook.NewCache()
	decisions := decision.NewBuilder()
	clk := clock.NewSystemClock()
	sup := supervisor.New(wheel, decisions, clk, log)
	rt := runtime.New(st, runbooks, sup, decisions, log)

	notify := adapters.LogNotifier{Log: func(owner domain.OwnerID, message string) {
		log.Info("notify", zap.String("owner", owner.String()), zap.String("message", message))
	}}

	executor = effects.NewExecutor(st, wal, wheel, router, notify, rt, log)

	if reconcileEffs := reconcile.Reconcile(ctx, st, router, wheel, log); len(reconcileEffs) > 0 {
		if _, err := executor.ApplyEffects(ctx, reconcileEffs); err != nil {
			log.Warn("reconcile effect application failed", zap.Error(err))
		}
	}

	deps := listener.Deps{Executor: executor, Runbooks: runbooks, Decisions: decisions, Router: router}
	lst, err := listener.New(cfg.StateDir, version, deps, cfg.Debug.Addr, cfg.Debug.Enabled, log)
	if err != nil {
		return fmt.Errorf("start listener: %w", err)
	}

	stopTicker := runTickLoop(ctx, wheel, executor, cfg.Scheduler.TickInterval, log)
	defer stopTicker()

	log.Info("ojd ready", zap.String("state_dir", cfg.StateDir), zap.String("version", version))

	serveErr := make(chan error, 1)
	go func() { serveErr <- lst.Serve(ctx) }()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			log.Error("listener serve failed", zap.Error(err))
		}
	}

	if err := lst.Close(); err != nil {
		log.Warn("listener close failed", zap.Error(err))
	}
	executor.Wait()
	return nil
}

// runTickLoop drives the timer wheel on a ticker goroutine, pushing every
// fired timer's TimerStart event back through the executor — the Go
// realisation of "a time.Ticker goroutine that pushes TimerStart events
// onto that same channel" (SPEC_FULL.md §7).
func runTickLoop(ctx context.Context, wheel *timers.Wheel, executor *effects.Executor, interval time.Duration, log *logger.Logger) func() {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				for _, e := range wheel.Poll(now) {
					executor.EmitNow(ctx, e)
				}
			}
		}
	}()
	return func() {
		ticker.Stop()
		<-done
		_ = log
	}
}
