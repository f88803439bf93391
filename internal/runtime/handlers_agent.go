package runtime

import (
	"context"

	"github.com/oddjobs/oj/internal/decision"
	"github.com/oddjobs/oj/internal/domain"
	"github.com/oddjobs/oj/internal/effects"
	"github.com/oddjobs/oj/internal/runbook"
)

// handleAgentSpawned has nothing to react to beyond the fold itself; the
// agent now exists and future state events drive the reaction table.
func (rt *Runtime) handleAgentSpawned(_ context.Context, _ domain.Event) ([]effects.Effect, error) {
	return nil, nil
}

// handleAgentSpawnFailed raises a dead-style decision for the owner, same
// as an agent that died after spawning successfully — spec.md §4.9
// treats spawn failure and later death identically from the decision
// engine's point of view.
func (rt *Runtime) handleAgentSpawnFailed(_ context.Context, e domain.Event) ([]effects.Effect, error) {
	p := e.Payload.(*domain.AgentSpawnFailedPayload)
	ev := rt.Decisions.Build(p.Owner, decision.Trigger{
		Kind:    decision.TriggerDead,
		Context: "agent failed to spawn: " + p.Reason,
	})
	return []effects.Effect{effects.Emit{Event: ev}}, nil
}

// handleAgentActive resets nothing directly (state.Apply already resets
// the owner's tracker on a working transition) and has no further
// reaction.
func (rt *Runtime) handleAgentActive(_ context.Context, _ domain.Event) ([]effects.Effect, error) {
	return nil, nil
}

// handleAgentIdle runs the agent definition's on_idle reaction through
// the supervisor's select/bound/cooldown/execute policy.
func (rt *Runtime) handleAgentIdle(_ context.Context, e domain.Event) ([]effects.Effect, error) {
	p := e.Payload.(*domain.AgentStatePayload)
	owner, ok := rt.State.AgentOwner[p.AgentID]
	if !ok {
		return nil, nil
	}
	def, tracker, ok := rt.agentDefAndTracker(owner)
	if !ok {
		return nil, nil
	}
	return rt.Supervisor.Evaluate(owner, p.AgentID, tracker, "idle", 0, def.OnIdle), nil
}

// handleAgentFailed runs the per-category on_error reaction.
func (rt *Runtime) handleAgentFailed(_ context.Context, e domain.Event) ([]effects.Effect, error) {
	p := e.Payload.(*domain.AgentFailedPayload)
	owner, ok := rt.State.AgentOwner[p.AgentID]
	if !ok {
		return nil, nil
	}
	def, tracker, ok := rt.agentDefAndTracker(owner)
	if !ok {
		return nil, nil
	}
	action, ok := def.OnError[p.Category]
	if !ok {
		action = runbook.ActionDef{Verb: runbook.ActionEscalate, Message: p.Detail}
	}
	return rt.Supervisor.Evaluate(owner, p.AgentID, tracker, "error:"+p.Category, 0, action), nil
}

// handleAgentGone runs the on_dead reaction when the agent's exit wasn't
// itself the result of a supervisor-issued KillAgent during a terminal
// transition (those owners are already gone from state by the time this
// fires, so the lookup below naturally no-ops for them).
func (rt *Runtime) handleAgentGone(_ context.Context, e domain.Event) ([]effects.Effect, error) {
	agentID := ""
	switch p := e.Payload.(type) {
	case *domain.AgentExitedPayload:
		agentID = p.AgentID
	case *domain.AgentGonePayload:
		agentID = p.AgentID
	}
	owner, ok := rt.State.AgentOwner[agentID]
	if !ok {
		return nil, nil
	}
	def, tracker, ok := rt.agentDefAndTracker(owner)
	if !ok {
		return nil, nil
	}
	return rt.Supervisor.Evaluate(owner, agentID, tracker, "dead", 0, def.OnDead), nil
}

// handleAgentPrompt raises a Question decision (for prompt_type ==
// "question") or runs the on_prompt action (anything else, e.g. a plan
// review), per spec.md §4.9.
func (rt *Runtime) handleAgentPrompt(_ context.Context, e domain.Event) ([]effects.Effect, error) {
	p := e.Payload.(*domain.AgentPromptPayload)
	owner, ok := rt.State.AgentOwner[p.AgentID]
	if !ok {
		return nil, nil
	}

	if p.PromptType == "question" {
		ev := rt.Decisions.Build(owner, decision.Trigger{
			Kind:      decision.TriggerQuestion,
			AgentID:   p.AgentID,
			Questions: p.Questions,
		})
		return []effects.Effect{effects.Emit{Event: ev}}, nil
	}

	if p.PromptType == "plan" {
		body, _ := p.Input["plan"].(string)
		ev := rt.Decisions.Build(owner, decision.Trigger{
			Kind:     decision.TriggerPlan,
			AgentID:  p.AgentID,
			PlanBody: body,
		})
		return []effects.Effect{effects.Emit{Event: ev}}, nil
	}

	def, tracker, ok := rt.agentDefAndTracker(owner)
	if !ok {
		return nil, nil
	}
	return rt.Supervisor.Evaluate(owner, p.AgentID, tracker, "prompt", 0, def.OnPrompt), nil
}

// agentDefAndTracker resolves the runbook-declared AgentDef and the
// owner's ActionTracker for a job or crew.
func (rt *Runtime) agentDefAndTracker(owner domain.OwnerID) (runbook.AgentDef, *domain.ActionTracker, bool) {
	var hash, agentName string
	var tracker *domain.ActionTracker

	if owner.IsJob() {
		job, ok := rt.State.Jobs[owner.ID]
		if !ok {
			return runbook.AgentDef{}, nil, false
		}
		doc, ok := rt.Runbooks.Get(job.RunbookHash)
		if !ok {
			return runbook.AgentDef{}, nil, false
		}
		jobDef, ok := doc.Jobs[job.Kind]
		if !ok {
			return runbook.AgentDef{}, nil, false
		}
		stepDef, ok := jobDef.Steps[job.Step]
		if !ok {
			return runbook.AgentDef{}, nil, false
		}
		hash, agentName, tracker = job.RunbookHash, stepDef.Agent, job.Tracker
	} else {
		crew, ok := rt.State.Crews[owner.ID]
		if !ok {
			return runbook.AgentDef{}, nil, false
		}
		hash, agentName, tracker = crew.RunbookHash, crew.AgentName, crew.Tracker
	}

	doc, ok := rt.Runbooks.Get(hash)
	if !ok {
		return runbook.AgentDef{}, nil, false
	}
	def, ok := doc.Agents[agentName]
	return def, tracker, ok
}
