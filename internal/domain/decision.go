package domain

import "time"

// DecisionSource is the trigger variant that raised the decision (spec.md
// §3/§4.9).
type DecisionSource string

const (
	SourceIdle       DecisionSource = "idle"
	SourceDead       DecisionSource = "dead"
	SourceError      DecisionSource = "error"
	SourceGate       DecisionSource = "gate"
	SourceApproval   DecisionSource = "approval"
	SourceQuestion   DecisionSource = "question"
	SourcePlan       DecisionSource = "plan"
	SourceEscalation DecisionSource = "escalation" // Signal trigger
)

// dominanceRank implements "Question > Plan > Approval > {Error, Dead,
// Idle, Gate}" from spec.md §4.9. Signal/Escalation is not named in the
// dominance table; it ranks below the named sources so it can always be
// superseded but never supersedes one of them — the conservative reading
// of an unranked source (see DESIGN.md open question log).
var dominanceRank = map[DecisionSource]int{
	SourceQuestion:   4,
	SourcePlan:       3,
	SourceApproval:   2,
	SourceError:      1,
	SourceDead:       1,
	SourceIdle:       1,
	SourceGate:       1,
	SourceEscalation: 0,
}

// Dominates reports whether the existing decision's source dominates (i.e.
// cannot be superseded by) the incoming one.
func (existing DecisionSource) Dominates(incoming DecisionSource) bool {
	return dominanceRank[existing] > dominanceRank[incoming]
}

// Decision is a request for external (human or automation) resolution
// (spec.md §3).
type Decision struct {
	ID            string           `json:"id"`
	Owner         OwnerID          `json:"owner"`
	AgentID       string           `json:"agent_id,omitempty"`
	Source        DecisionSource   `json:"source"`
	Context       string           `json:"context"`
	Options       []DecisionOption `json:"options"`
	Questions     []QuestionData   `json:"questions,omitempty"`
	Choices       []int            `json:"choices,omitempty"`
	Message       string           `json:"message,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	ResolvedAt    *time.Time       `json:"resolved_at,omitempty"`
	SupersededBy  string           `json:"superseded_by,omitempty"`
}

func (d *Decision) Resolved() bool {
	return d.ResolvedAt != nil
}
