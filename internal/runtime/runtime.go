// Package runtime implements the event-handler dispatch table from
// spec.md §4.5: one file per concern, mirroring the teacher's
// event_handlers*.go fan-out in internal/orchestrator. Handlers never
// mutate state.State directly — they read it and return effects; the
// only writer of state is state.Apply, driven by the executor.
package runtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/oddjobs/oj/internal/decision"
	"github.com/oddjobs/oj/internal/domain"
	"github.com/oddjobs/oj/internal/effects"
	"github.com/oddjobs/oj/internal/logger"
	"github.com/oddjobs/oj/internal/ojerr"
	"github.com/oddjobs/oj/internal/runbook"
	"github.com/oddjobs/oj/internal/state"
	"github.com/oddjobs/oj/internal/supervisor"
)

// Runtime is the handler dispatch table. It holds only read access to
// state (via the executor that calls it inside its own critical section)
// plus the collaborators handlers need to build effects: the runbook
// cache, the decision builder, the supervisor evaluator.
type Runtime struct {
	State      *state.State
	Runbooks   *runbook.Cache
	Supervisor *supervisor.Supervisor
	Decisions  *decision.Builder
	Log        *logger.Logger
}

func New(st *state.State, runbooks *runbook.Cache, sup *supervisor.Supervisor, dec *decision.Builder, log *logger.Logger) *Runtime {
	return &Runtime{
		State:      st,
		Runbooks:   runbooks,
		Supervisor: sup,
		Decisions:  dec,
		Log:        log.WithFields(zap.String("component", "runtime")),
	}
}

// Handle is the single dispatch point the executor calls for every event
// (persisted or transient) it pulls off the queue.
func (rt *Runtime) Handle(ctx context.Context, e domain.Event) ([]effects.Effect, error) {
	switch e.Kind {
	case domain.KindCommandRun:
		return rt.handleCommandRun(ctx, e)

	case domain.KindJobCreated:
		return rt.handleJobCreated(ctx, e)
	case domain.KindJobResume:
		return rt.handleJobResume(ctx, e)
	case domain.KindJobCancel:
		return rt.handleJobCancel(ctx, e)
	case domain.KindJobSuspend:
		return rt.handleJobSuspend(ctx, e)

	case domain.KindStepStarted:
		return rt.handleStepStarted(ctx, e)
	case domain.KindJobAdvanced:
		return rt.handleJobAdvanced(ctx, e)
	case domain.KindShellExited:
		return rt.handleShellExited(ctx, e)

	case domain.KindAgentSpawned:
		return rt.handleAgentSpawned(ctx, e)
	case domain.KindAgentSpawnFailed:
		return rt.handleAgentSpawnFailed(ctx, e)
	case domain.KindAgentWorking, domain.KindAgentWaiting:
		return rt.handleAgentActive(ctx, e)
	case domain.KindAgentIdle:
		return rt.handleAgentIdle(ctx, e)
	case domain.KindAgentFailed:
		return rt.handleAgentFailed(ctx, e)
	case domain.KindAgentExited, domain.KindAgentGone:
		return rt.handleAgentGone(ctx, e)
	case domain.KindAgentPrompt:
		return rt.handleAgentPrompt(ctx, e)
	case domain.KindAgentStopBlocked, domain.KindAgentStopAllowed:
		return nil, nil

	case domain.KindCrewCreated:
		return rt.handleCrewCreated(ctx, e)
	case domain.KindCrewUpdated:
		return nil, nil

	case domain.KindQueuePushed:
		return rt.handleQueuePushed(ctx, e)
	case domain.KindWorkerWake:
		return rt.handleWorkerWake(ctx, e)
	case domain.KindQueueTaken:
		return rt.handleQueueTaken(ctx, e)
	case domain.KindQueueRetried, domain.KindQueueFailed, domain.KindQueueDone, domain.KindQueuePruned:
		return nil, nil

	case domain.KindWorkerStarted:
		return rt.handleWorkerStarted(ctx, e)
	case domain.KindWorkerStopped:
		return nil, nil
	case domain.KindWorkerResized:
		return rt.handleWorkerResized(ctx, e)
	case domain.KindWorkerPolled:
		return rt.handleWorkerPolled(ctx, e)
	case domain.KindWorkerTaking:
		return nil, nil
	case domain.KindWorkerTook:
		return rt.handleWorkerTook(ctx, e)

	case domain.KindCronFired:
		return rt.handleCronFired(ctx, e)

	case domain.KindDecisionResolved:
		return rt.handleDecisionResolved(ctx, e)

	case domain.KindTimerStart:
		return rt.handleTimerStart(ctx, e)

	case domain.KindRunbookLoaded:
		return nil, nil
	}
	return nil, ojerr.New(ojerr.Validation, "runtime: no handler registered for kind "+string(e.Kind))
}
