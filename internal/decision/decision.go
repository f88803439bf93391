// Package decision builds DecisionCreated events, mapping each trigger
// kind to a source, a context text and a short fixed option list with one
// recommended option (the lists are given on Build). None of the lists
// offers a cancel, dismiss or skip option. Supersession and dominance
// enforcement live in internal/state (state.Apply on DecisionCreated),
// not here — this package only shapes the payload.
package decision

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/oddjobs/oj/internal/domain"
)

// TriggerKind names the reaction source that raised a decision.
type TriggerKind string

const (
	TriggerIdle       TriggerKind = "idle"
	TriggerDead       TriggerKind = "dead"
	TriggerError      TriggerKind = "error"
	TriggerGate       TriggerKind = "gate"
	TriggerApproval   TriggerKind = "approval"
	TriggerQuestion   TriggerKind = "question"
	TriggerPlan       TriggerKind = "plan"
	TriggerEscalation TriggerKind = "escalation"
)

// Trigger is everything Build needs to shape one decision. Only the
// fields relevant to Kind are populated by callers.
type Trigger struct {
	Kind        TriggerKind
	AgentID     string
	Category    string         // error trigger
	GateName    string         // gate trigger
	PlanBody    string         // plan trigger: prompt.input.plan
	Questions   []domain.QuestionData // question trigger
	Context     string
}

// Builder constructs DecisionCreated events. It has no state of its own —
// kept as a struct (rather than a bare function) so it can be swapped out
// in tests and matches the teacher's constructor-injected-collaborator
// idiom elsewhere in this codebase.
type Builder struct{}

func NewBuilder() *Builder { return &Builder{} }

// Build renders a DecisionCreated event for owner from trigger. The
// options per kind, recommended first: idle resume/stop, dead
// respawn/fail, error retry/fail, gate pass/fail, approval approve/reject,
// plan accept/revise, escalation acknowledge. A question decision carries
// the agent's questions and no options of its own.
func (b *Builder) Build(owner domain.OwnerID, t Trigger) domain.Event {
	id := uuid.NewString()

	payload := &domain.DecisionCreatedPayload{
		DecisionID: id,
		Owner:      owner,
		AgentID:    t.AgentID,
	}

	switch t.Kind {
	case TriggerIdle:
		payload.Source = string(domain.SourceIdle)
		payload.Context = "agent went idle with no further reaction configured"
		payload.Options = []domain.DecisionOption{
			{Label: "resume", Description: "nudge the agent to continue", Recommended: true},
			{Label: "stop", Description: "let the agent finish"},
		}

	case TriggerDead:
		payload.Source = string(domain.SourceDead)
		payload.Context = "agent process is no longer responding"
		payload.Options = []domain.DecisionOption{
			{Label: "respawn", Description: "spawn a fresh agent for this step", Recommended: true},
			{Label: "fail", Description: "fail the step"},
		}

	case TriggerError:
		payload.Source = string(domain.SourceError)
		payload.Context = fmt.Sprintf("agent reported an error: %s", t.Category)
		payload.Options = []domain.DecisionOption{
			{Label: "retry", Description: "retry the step", Recommended: true},
			{Label: "fail", Description: "fail the step"},
		}

	case TriggerGate:
		payload.Source = string(domain.SourceGate)
		payload.Context = fmt.Sprintf("gate %q reached", t.GateName)
		payload.Options = []domain.DecisionOption{
			{Label: "pass", Description: "allow the gated step to continue", Recommended: true},
			{Label: "fail", Description: "fail at the gate"},
		}

	case TriggerApproval:
		payload.Source = string(domain.SourceApproval)
		payload.Context = t.Context
		payload.Options = []domain.DecisionOption{
			{Label: "approve", Recommended: true},
			{Label: "reject"},
		}

	case TriggerQuestion:
		payload.Source = string(domain.SourceQuestion)
		payload.Context = "agent is asking a question"
		payload.Questions = t.Questions

	case TriggerPlan:
		payload.Source = string(domain.SourcePlan)
		payload.Context = t.PlanBody
		payload.Options = []domain.DecisionOption{
			{Label: "accept", Description: "approve the plan as written", Recommended: true},
			{Label: "revise", Description: "send the agent back to revise the plan"},
		}

	case TriggerEscalation:
		payload.Source = string(domain.SourceEscalation)
		payload.Context = t.Context
		payload.Options = []domain.DecisionOption{
			{Label: "acknowledge", Recommended: true},
		}
	}

	return domain.Event{Kind: domain.KindDecisionCreated, Payload: payload}
}
