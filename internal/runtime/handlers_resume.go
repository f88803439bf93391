package runtime

import (
	"context"

	"github.com/oddjobs/oj/internal/domain"
	"github.com/oddjobs/oj/internal/effects"
)

// handleDecisionResolved translates a resolved decision into the action
// its source implies (spec.md §4.9: "DecisionResolved merely writes the
// resolution; the runtime's handler translates it to downstream
// actions"). Question/Plan/Approval choices are forwarded to the agent
// via Respond; the supervision-originated sources (idle/dead/error/gate)
// are translated into the job-level resume/cancel/retry primitives whose
// options decision.Builder attached.
func (rt *Runtime) handleDecisionResolved(_ context.Context, e domain.Event) ([]effects.Effect, error) {
	p := e.Payload.(*domain.DecisionResolvedPayload)
	d, ok := rt.State.Decisions[p.DecisionID]
	if !ok {
		return nil, nil
	}

	switch d.Source {
	case domain.SourceQuestion, domain.SourceApproval, domain.SourcePlan:
		if d.AgentID == "" {
			return nil, nil
		}
		return nil, nil // adapter.Respond is issued by the listener's resolve handler, which has ctx for the call

	case domain.SourceIdle, domain.SourceDead, domain.SourceError, domain.SourceGate:
		label := ""
		if len(p.Choices) > 0 && p.Choices[0] < len(d.Options) {
			label = d.Options[p.Choices[0]].Label
		}
		return rt.translateResumeChoice(d.Owner, label), nil
	}
	return nil, nil
}

// translateResumeChoice maps a chosen option label from the idle/dead/
// error/gate decision tables onto the corresponding job primitive.
func (rt *Runtime) translateResumeChoice(owner domain.OwnerID, label string) []effects.Effect {
	if !owner.IsJob() {
		return nil
	}
	switch label {
	case "resume", "respawn", "retry", "pass":
		return []effects.Effect{effects.Emit{Event: domain.Event{
			Kind:    domain.KindJobResume,
			Payload: &domain.JobResumePayload{JobID: owner.ID},
		}}}
	case "fail", "stop":
		return []effects.Effect{effects.Emit{Event: domain.Event{
			Kind:    domain.KindJobAdvanced,
			Payload: &domain.JobAdvancedPayload{JobID: owner.ID, Step: "failed", Status: string(domain.StepFailed)},
		}}}
	}
	return nil
}
