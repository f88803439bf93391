package effects

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/oddjobs/oj/internal/adapters"
	"github.com/oddjobs/oj/internal/domain"
	"github.com/oddjobs/oj/internal/eventlog"
	"github.com/oddjobs/oj/internal/logger"
	"github.com/oddjobs/oj/internal/state"
	"github.com/oddjobs/oj/internal/timers"
)

// MaxReentry bounds the execute_all fixpoint loop: ambient defensive code
// against a handler bug that would otherwise spin forever, grounded on
// the teacher's ticker-bounded processLoop (nothing in the teacher spins
// unbounded either).
const MaxReentry = 64

// Handler is satisfied by internal/runtime.Runtime; kept as an interface
// here so internal/effects never imports internal/runtime (which imports
// internal/effects back to build its own effect lists).
type Handler interface {
	Handle(ctx context.Context, e domain.Event) ([]Effect, error)
}

// Executor is the single critical section translating effect intents into
// persisted events and folded state, mirroring orchestrator.Service's
// mutex-guarded-struct shape.
type Executor struct {
	mu      sync.Mutex
	state   *state.State
	log     *eventlog.Log
	wheel   *timers.Wheel
	router  *adapters.Router
	notify  adapters.Notifier
	handler Handler
	logger  *logger.Logger

	wg sync.WaitGroup // tracks in-flight async spawn/shell/take goroutines
}

func NewExecutor(st *state.State, l *eventlog.Log, wheel *timers.Wheel, router *adapters.Router, notify adapters.Notifier, handler Handler, log *logger.Logger) *Executor {
	return &Executor{
		state:   st,
		log:     l,
		wheel:   wheel,
		router:  router,
		notify:  notify,
		handler: handler,
		logger:  log.WithFields(zap.String("component", "effects")),
	}
}

// State returns the executor's materialised state for read-only access
// (the debug HTTP surface, listener query handlers).
func (ex *Executor) State() *state.State {
	return ex.state
}

// ApplyEffects executes a batch of effects directly, without running
// them through the handler first, then continues the fixpoint from
// whatever events they emit. Used by boot-time reconciliation (spec.md
// §4.10), which produces effects (not an originating event) to feed
// back through the executor.
func (ex *Executor) ApplyEffects(ctx context.Context, effs []Effect) ([]domain.Event, error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	produced, err := ex.applyEffectsLocked(ctx, effs)
	if err != nil {
		return produced, err
	}
	queue := append([]domain.Event(nil), produced...)
	for reentry := 0; len(queue) > 0; reentry++ {
		if reentry >= MaxReentry {
			ex.logger.Error("ApplyEffects exceeded MaxReentry, dropping remaining events",
				zap.Int("max_reentry", MaxReentry), zap.Int("remaining", len(queue)))
			break
		}
		cur := queue[0]
		queue = queue[1:]

		handlerEffs, err := ex.handler.Handle(ctx, cur)
		if err != nil {
			ex.logger.Error("runtime handler failed, dropping event",
				zap.String("kind", string(cur.Kind)), zap.Error(err))
			continue
		}
		next, err := ex.applyEffectsLocked(ctx, handlerEffs)
		if err != nil {
			ex.logger.Error("effect application failed", zap.Error(err))
			continue
		}
		for _, ev := range next {
			produced = append(produced, ev)
			queue = append(queue, ev)
		}
	}
	return produced, nil
}

// Submit runs one event through the handler, executes the effects it
// produces to fixpoint, and returns every persisted event this produced,
// in order.
func (ex *Executor) Submit(ctx context.Context, e domain.Event) ([]domain.Event, error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.submitLocked(ctx, e)
}

func (ex *Executor) submitLocked(ctx context.Context, e domain.Event) ([]domain.Event, error) {
	// The incoming event is itself a state transition (append-if-persisted,
	// then fold), exactly like an Emit effect would be — it just arrives as
	// the call's argument instead of a handler's return value. Without this
	// the root event would only ever be fed to the handler for its
	// *reaction*, and whatever it directly represents (a job row, a worker
	// row, ...) would never actually land in state. A persisted root event
	// is the first entry of the returned slice; a transient one is folded
	// and handled but not returned.
	root, err := ex.emitLocked(ctx, e)
	if err != nil {
		return nil, err
	}

	var produced []domain.Event
	if root.Persisted() {
		produced = append(produced, root)
	}
	queue := []domain.Event{root}

	for reentry := 0; len(queue) > 0; reentry++ {
		if reentry >= MaxReentry {
			ex.logger.Error("execute_all exceeded MaxReentry, dropping remaining events",
				zap.Int("max_reentry", MaxReentry), zap.Int("remaining", len(queue)))
			break
		}
		cur := queue[0]
		queue = queue[1:]

		effs, err := ex.handler.Handle(ctx, cur)
		if err != nil {
			ex.logger.Error("runtime handler failed, dropping event",
				zap.String("kind", string(cur.Kind)), zap.Error(err))
			continue
		}

		next, err := ex.applyEffectsLocked(ctx, effs)
		if err != nil {
			ex.logger.Error("effect application failed", zap.Error(err))
			continue
		}
		for _, ev := range next {
			produced = append(produced, ev)
			queue = append(queue, ev)
		}
	}
	return produced, nil
}

// applyEffectsLocked executes a batch of effects produced by one handler
// call, returning the events they immediately produced (Emit only —
// async effects re-enter later through Emit when their goroutine
// completes, which is a separate Submit call on the executor, not part of
// this batch's return value).
func (ex *Executor) applyEffectsLocked(ctx context.Context, effs []Effect) ([]domain.Event, error) {
	var emitted []domain.Event
	var fireAndForget []func() error

	for _, eff := range effs {
		switch v := eff.(type) {
		case Emit:
			ev, err := ex.emitLocked(ctx, v.Event)
			if err != nil {
				return emitted, err
			}
			emitted = append(emitted, ev)

		case SetTimer:
			ex.wheel.SetTimer(v.ID, v.At)

		case CancelTimer:
			ex.wheel.CancelTimer(v.ID)

		case SpawnAgent:
			ex.runAsync(func() { ex.execSpawnAgent(ctx, v) })

		case Shell:
			ex.runAsync(func() { ex.execShell(ctx, v) })

		case TakeQueueItem:
			ex.runAsync(func() { ex.execTakeQueueItem(ctx, v) })

		case ListQueueItems:
			ex.runAsync(func() { ex.execListQueueItems(ctx, v) })

		case TakeExternalQueueItem:
			ex.runAsync(func() { ex.execTakeExternalQueueItem(ctx, v) })

		case Notify:
			vv := v
			fireAndForget = append(fireAndForget, func() error {
				return ex.notify.Notify(ctx, vv.Owner, vv.Message)
			})

		case KillAgent:
			vv := v
			fireAndForget = append(fireAndForget, func() error {
				return ex.execKillAgent(ctx, vv)
			})

		case SendToAgent:
			vv := v
			fireAndForget = append(fireAndForget, func() error {
				return ex.execSendToAgent(ctx, vv)
			})
		}
	}

	if len(fireAndForget) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		_ = gctx
		for _, fn := range fireAndForget {
			fn := fn
			g.Go(fn)
		}
		if err := g.Wait(); err != nil {
			ex.logger.Warn("fire-and-forget effect batch had a failure", zap.Error(err))
		}
	}

	return emitted, nil
}

// emitLocked appends (if persisted) and folds one event. Caller holds
// ex.mu.
func (ex *Executor) emitLocked(ctx context.Context, e domain.Event) (domain.Event, error) {
	if e.Persisted() {
		batch := []domain.Event{e}
		if _, err := ex.log.Append(ctx, batch); err != nil {
			return e, fmt.Errorf("effects: append: %w", err)
		}
		e = batch[0]
	}
	state.Apply(ex.state, e)
	return e, nil
}

// EmitNow is the synchronous single-event entrypoint used by async
// completion callbacks (spawn/shell/take results) to re-enter the
// executor's critical section and continue the fixpoint from there.
func (ex *Executor) EmitNow(ctx context.Context, e domain.Event) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if _, err := ex.submitLocked(ctx, e); err != nil {
		ex.logger.Error("re-entrant submit failed", zap.Error(err))
	}
}

func (ex *Executor) runAsync(fn func()) {
	ex.wg.Add(1)
	go func() {
		defer ex.wg.Done()
		fn()
	}()
}

// Wait blocks until every in-flight async effect goroutine has completed,
// used by graceful shutdown.
func (ex *Executor) Wait() {
	ex.wg.Wait()
}

func (ex *Executor) execSpawnAgent(ctx context.Context, eff SpawnAgent) {
	adapter, ok := ex.router.For(eff.Spec.Runtime)
	if !ok {
		ex.EmitNow(ctx, domain.Event{
			Kind: domain.KindAgentSpawnFailed,
			Payload: &domain.AgentSpawnFailedPayload{
				Owner: eff.Owner, Reason: fmt.Sprintf("no adapter registered for runtime %s", eff.Spec.Runtime),
			},
		})
		return
	}
	handle, token, err := adapter.Spawn(ctx, eff.Spec)
	if err != nil {
		ex.EmitNow(ctx, domain.Event{
			Kind:    domain.KindAgentSpawnFailed,
			Payload: &domain.AgentSpawnFailedPayload{Owner: eff.Owner, Reason: err.Error()},
		})
		return
	}
	ex.EmitNow(ctx, domain.Event{
		Kind: domain.KindAgentSpawned,
		Payload: &domain.AgentSpawnedPayload{
			AgentID: handle, Owner: eff.Owner, Runtime: string(eff.Spec.Runtime), AuthTok: token,
		},
	})
}

func (ex *Executor) execSendToAgent(ctx context.Context, eff SendToAgent) error {
	adapter, ok := ex.router.For(eff.Runtime)
	if !ok {
		return fmt.Errorf("effects: no adapter for runtime %s", eff.Runtime)
	}
	return adapter.Send(ctx, eff.AgentID, eff.Message)
}

func (ex *Executor) execKillAgent(ctx context.Context, eff KillAgent) error {
	adapter, ok := ex.router.For(eff.Runtime)
	if !ok {
		return fmt.Errorf("effects: no adapter for runtime %s", eff.Runtime)
	}
	if err := adapter.Kill(ctx, eff.Handle); err != nil {
		return err
	}
	// The batch that ran this kill still holds ex.mu while it waits, so the
	// AgentGone re-entry goes through its own goroutine.
	ex.runAsync(func() {
		ex.EmitNow(ctx, domain.Event{
			Kind:    domain.KindAgentGone,
			Payload: &domain.AgentGonePayload{AgentID: eff.AgentID},
		})
	})
	return nil
}
