package runtime

import (
	"context"

	"github.com/oddjobs/oj/internal/domain"
	"github.com/oddjobs/oj/internal/effects"
	"github.com/oddjobs/oj/internal/runbook"
	"github.com/oddjobs/oj/internal/supervisor"
)

// handleStepStarted dispatches a step's run directive: a shell step
// produces a Shell effect; an agent step resolves the agent definition
// and spawns it.
func (rt *Runtime) handleStepStarted(ctx context.Context, e domain.Event) ([]effects.Effect, error) {
	p := e.Payload.(*domain.StepStartedPayload)
	job, ok := rt.State.Jobs[p.JobID]
	if !ok {
		return nil, nil
	}

	if job.StepVisits[p.Step] > domain.MaxStepVisits {
		return []effects.Effect{effects.Emit{Event: domain.Event{
			Kind: domain.KindJobAdvanced,
			Payload: &domain.JobAdvancedPayload{
				JobID: job.ID, Step: "failed", Status: string(domain.StepFailed),
				Reason: "step " + p.Step + " exceeded its visit circuit breaker",
			},
		}}}, nil
	}

	doc, ok := rt.Runbooks.Get(job.RunbookHash)
	if !ok {
		return nil, nil
	}
	jobDef, ok := doc.Jobs[job.Kind]
	if !ok {
		return nil, nil
	}
	stepDef, ok := jobDef.Steps[p.Step]
	if !ok {
		return nil, nil
	}

	switch stepDef.Run {
	case runbook.RunShell:
		return []effects.Effect{effects.Shell{
			JobID: job.ID, Step: p.Step, Cmd: stepDef.Cmd, Cwd: job.Cwd, Vars: job.Vars,
		}}, nil
	case runbook.RunAgent:
		agentDef, ok := doc.Agents[stepDef.Agent]
		if !ok {
			return nil, nil
		}
		return supervisor.BuildSpawnEffects(ctx, domain.JobOwner(job.ID), agentDef, job.Vars, job.Cwd)
	}
	return nil, nil
}

// handleShellExited advances the job to on_done or on_fail depending on
// the shell exit code, falling back from the step's own table to the
// job-level table, then to the default terminal step for that outcome
// (spec.md §4.5). A job already mid on_fail/on_cancel/on_suspend cleanup
// lands on its flag's terminal step instead of "done" once the cleanup
// chain itself completes clean.
func (rt *Runtime) handleShellExited(_ context.Context, e domain.Event) ([]effects.Effect, error) {
	p := e.Payload.(*domain.ShellExitedPayload)
	job, ok := rt.State.Jobs[p.JobID]
	if !ok {
		return nil, nil
	}
	doc, ok := rt.Runbooks.Get(job.RunbookHash)
	if !ok {
		return nil, nil
	}
	jobDef, ok := doc.Jobs[job.Kind]
	if !ok {
		return nil, nil
	}
	stepDef, ok := jobDef.Steps[p.Step]
	if !ok {
		return nil, nil
	}

	var next string
	var status domain.StepStatus

	if p.ExitCode == 0 {
		next = firstNonEmpty(stepDef.OnDone, derefStr(jobDef.OnDone))
		status = domain.StepCompleted
	} else {
		next = firstNonEmpty(stepDef.OnFail, derefStr(jobDef.OnFail))
		status = domain.StepFailed
	}

	if next == "" {
		if domain.IsTerminalStep(p.Step) {
			// The finishing step is itself named after a terminal sentinel
			// (a runbook's last step can just be "done"/"failed" with no
			// further routing declared): finalize in place rather than
			// re-entering StepStarted for the step that just finished.
			return []effects.Effect{effects.Emit{Event: domain.Event{
				Kind:    domain.KindJobAdvanced,
				Payload: &domain.JobAdvancedPayload{JobID: job.ID, Step: p.Step, Status: string(status)},
			}}}, nil
		}
		if p.ExitCode == 0 {
			next = "done"
		} else {
			next = "failed"
		}
	}

	enteringFailCleanup := p.ExitCode != 0 && !domain.IsTerminalStep(next)

	if job.Failing && next == "done" {
		next, status = "failed", domain.StepFailed
	}
	if job.Cancelling && next == "done" {
		next, status = "cancelled", domain.StepCompleted
	}
	if job.Suspending && next == "done" {
		next, status = "suspended", domain.StepSuspended
	}

	effs := []effects.Effect{effects.Emit{Event: domain.Event{
		Kind: domain.KindJobAdvanced,
		Payload: &domain.JobAdvancedPayload{
			JobID: job.ID, Step: next, Status: string(status), Failing: enteringFailCleanup,
		},
	}}}
	if _, declared := jobDef.Steps[next]; declared || !domain.IsTerminalStep(next) {
		// A terminal destination the runbook does not declare as a step is a
		// sentinel: starting it would re-run applyStepStarted and stomp the
		// status JobAdvanced just set (spec.md §4.5 expects the terminal
		// status, e.g. Failed for a job-level on_fail cleanup, to stick). A
		// declared step of that name runs like any other step and is
		// finalized in place when it finishes (see above).
		effs = append(effs, effects.Emit{Event: domain.Event{
			Kind:    domain.KindStepStarted,
			Payload: &domain.StepStartedPayload{JobID: job.ID, Step: next},
		}})
	}
	return effs, nil
}

// firstNonEmpty returns the first non-empty candidate, in order.
func firstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}

func derefStr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// handleJobAdvanced is a pure bookkeeping event at the runtime layer —
// all the work happens in state.Apply, and the handler returns no effects.
// That includes a job that just reached a terminal step: its armed timers
// are not cancelled here (timers are keyed by owner, and the reconciler's
// boot-time re-arm logic tolerates a stale timer firing against a
// terminal job as a no-op).
func (rt *Runtime) handleJobAdvanced(_ context.Context, _ domain.Event) ([]effects.Effect, error) {
	return nil, nil
}
