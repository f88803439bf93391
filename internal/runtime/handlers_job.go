package runtime

import (
	"context"

	"github.com/oddjobs/oj/internal/domain"
	"github.com/oddjobs/oj/internal/effects"
)

// handleJobCreated starts a freshly created job at its runbook's declared
// start step, if the job's runbook is loaded. A job created with no
// resolvable runbook hash stays pending until a runbook loads and a
// resume is issued — this is a deliberate simplification recorded in
// DESIGN.md rather than a failure path, since spec.md treats the runbook
// parser itself as out of scope.
func (rt *Runtime) handleJobCreated(_ context.Context, e domain.Event) ([]effects.Effect, error) {
	p := e.Payload.(*domain.JobCreatedPayload)
	doc, ok := rt.Runbooks.Get(p.RunbookHash)
	if !ok {
		return nil, nil
	}
	jobDef, ok := doc.Jobs[p.Kind]
	if !ok || jobDef.Start == "" {
		return nil, nil
	}
	return []effects.Effect{effects.Emit{Event: domain.Event{
		Kind:    domain.KindStepStarted,
		Payload: &domain.StepStartedPayload{JobID: p.JobID, Step: jobDef.Start},
	}}}, nil
}

// handleJobResume re-nudges a job's agent if it's waiting on one, or
// restarts the current step if it previously failed/was waiting on a now-
// resolved decision. Smart resume (spec.md §4.7): a resume against a job
// with a live agent delivers Message straight to that agent instead of
// restarting the step; only a resume with neither Kill nor Message against
// a live agent is a true no-op.
func (rt *Runtime) handleJobResume(_ context.Context, e domain.Event) ([]effects.Effect, error) {
	p := e.Payload.(*domain.JobResumePayload)
	job, ok := rt.State.Jobs[p.JobID]
	if !ok {
		return nil, nil
	}
	agentID := rt.agentForOwner(domain.JobOwner(job.ID))
	if p.Kill && agentID != "" {
		return []effects.Effect{rt.killEffectFor(agentID)}, nil
	}
	if agentID != "" {
		if p.Message != "" {
			return []effects.Effect{effects.SendToAgent{
				AgentID: agentID, Runtime: rt.runtimeForAgent(agentID), Message: p.Message,
			}}, nil
		}
		return nil, nil
	}
	return []effects.Effect{effects.Emit{Event: domain.Event{
		Kind:    domain.KindStepStarted,
		Payload: &domain.StepStartedPayload{JobID: job.ID, Step: job.Step},
	}}}, nil
}

func (rt *Runtime) handleJobCancel(_ context.Context, e domain.Event) ([]effects.Effect, error) {
	p := e.Payload.(*domain.JobCancelPayload)
	var out []effects.Effect
	if agentID := rt.agentForOwner(domain.JobOwner(p.JobID)); agentID != "" {
		out = append(out, rt.killEffectFor(agentID))
	}
	out = append(out, effects.Emit{Event: domain.Event{
		Kind:    domain.KindJobAdvanced,
		Payload: &domain.JobAdvancedPayload{JobID: p.JobID, Step: "cancelled", Status: string(domain.StepCompleted)},
	}})
	return out, nil
}

func (rt *Runtime) handleJobSuspend(_ context.Context, e domain.Event) ([]effects.Effect, error) {
	p := e.Payload.(*domain.JobSuspendPayload)
	var out []effects.Effect
	if agentID := rt.agentForOwner(domain.JobOwner(p.JobID)); agentID != "" {
		out = append(out, rt.killEffectFor(agentID))
	}
	out = append(out, effects.Emit{Event: domain.Event{
		Kind:    domain.KindJobAdvanced,
		Payload: &domain.JobAdvancedPayload{JobID: p.JobID, Step: "suspended", Status: string(domain.StepSuspended)},
	}})
	return out, nil
}

// agentForOwner looks up the live agent id bound to owner, if any.
func (rt *Runtime) agentForOwner(owner domain.OwnerID) string {
	for id, o := range rt.State.AgentOwner {
		if o == owner {
			return id
		}
	}
	return ""
}

// killEffectFor builds a KillAgent effect for a live agent id, filling in
// the runtime hint the adapter router needs from the folded agent record.
func (rt *Runtime) killEffectFor(agentID string) effects.Effect {
	return effects.KillAgent{AgentID: agentID, Handle: agentID, Runtime: rt.runtimeForAgent(agentID)}
}

// runtimeForAgent looks up the adapter runtime hint for a live agent id,
// falling back to the local-process runtime if the agent isn't folded
// (shouldn't happen for a caller-supplied live agentID, but cheaper than a
// second existence check).
func (rt *Runtime) runtimeForAgent(agentID string) domain.AgentRuntime {
	if a, ok := rt.State.Agents[agentID]; ok {
		return a.Runtime
	}
	return domain.RuntimeLocalProcess
}
