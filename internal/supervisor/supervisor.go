// Package supervisor implements the agent reaction policy (spec.md
// §4.6.3): select an action from the runbook's on_idle/on_dead/on_error/
// on_prompt table, bound-check its attempt counter, respect its cooldown,
// then execute it. ActionTracker (spec.md §9, "kept inside the owner
// record") lives as a field on domain.Job/domain.Crew, not a separate
// table.
package supervisor

import (
	"go.uber.org/zap"

	"github.com/oddjobs/oj/internal/clock"
	"github.com/oddjobs/oj/internal/decision"
	"github.com/oddjobs/oj/internal/domain"
	"github.com/oddjobs/oj/internal/effects"
	"github.com/oddjobs/oj/internal/logger"
	"github.com/oddjobs/oj/internal/runbook"
	"github.com/oddjobs/oj/internal/timers"
)

// Supervisor holds the collaborators Evaluate needs beyond the owner
// record itself: a timer wheel (for cooldown re-armament) and a decision
// builder (escalation fallback when an action's attempt bound trips).
type Supervisor struct {
	Wheel     *timers.Wheel
	Decisions *decision.Builder
	Clock     clock.Clock
	Log       *logger.Logger
}

func New(wheel *timers.Wheel, dec *decision.Builder, clk clock.Clock, log *logger.Logger) *Supervisor {
	return &Supervisor{Wheel: wheel, Decisions: dec, Clock: clk, Log: log.WithFields(zap.String("component", "supervisor"))}
}

// Evaluate implements the select -> bound-check -> cooldown -> execute
// policy for one reaction trigger against one agent definition's action
// table entry. chainPos distinguishes repeated firings of the same
// trigger along a retry chain (spec.md §9's tracker key).
func (sv *Supervisor) Evaluate(owner domain.OwnerID, agentID string, tracker *domain.ActionTracker, trigger string, chainPos int, action runbook.ActionDef) []effects.Effect {
	cooldownID := timers.CooldownTimerID(owner.String(), trigger, chainPos)
	if sv.Wheel.Has(cooldownID) {
		// Still cooling down from the last attempt: do nothing this round.
		return nil
	}

	attempts := tracker.Count(trigger, chainPos)
	if action.Attempts > 0 && attempts >= action.Attempts {
		// Bound tripped: escalate to a human decision instead of looping.
		ev := sv.Decisions.Build(owner, decision.Trigger{
			Kind:    decision.TriggerEscalation,
			AgentID: agentID,
			Context: "reaction action " + string(action.Verb) + " exhausted its attempt bound for trigger " + trigger,
		})
		return []effects.Effect{effects.Emit{Event: ev}}
	}

	tracker.Increment(trigger, chainPos)

	var out []effects.Effect
	switch action.Verb {
	case runbook.ActionDone:
		out = append(out, effects.Emit{Event: domain.Event{
			Kind:    domain.KindJobAdvanced,
			Payload: &domain.JobAdvancedPayload{JobID: owner.ID, Step: "done", Status: string(domain.StepCompleted)},
		}})
	case runbook.ActionFail:
		out = append(out, effects.Emit{Event: domain.Event{
			Kind:    domain.KindJobAdvanced,
			Payload: &domain.JobAdvancedPayload{JobID: owner.ID, Step: "failed", Status: string(domain.StepFailed), Reason: action.Message},
		}})
	case runbook.ActionEscalate:
		ev := sv.Decisions.Build(owner, decision.Trigger{Kind: decision.TriggerEscalation, AgentID: agentID, Context: action.Message})
		out = append(out, effects.Emit{Event: ev})
	case runbook.ActionGate:
		ev := sv.Decisions.Build(owner, decision.Trigger{Kind: decision.TriggerGate, AgentID: agentID, GateName: action.Message})
		out = append(out, effects.Emit{Event: ev})
	case runbook.ActionNudge:
		// The actual Send to the adapter is issued by the caller
		// (handlers_agent.go), which has the live agent handle; Evaluate
		// only decides that a nudge should happen.
	case runbook.ActionRetry:
		out = append(out, effects.Emit{Event: domain.Event{
			Kind:    domain.KindStepStarted,
			Payload: &domain.StepStartedPayload{JobID: owner.ID, Step: action.Run},
		}})
	case runbook.ActionRespond:
		// Handled by the caller with adapter.Respond(accept).
	}

	if action.Cooldown > 0 {
		out = append(out, effects.SetTimer{ID: cooldownID, At: sv.Clock.Now().Add(action.Cooldown)})
	}
	return out
}
