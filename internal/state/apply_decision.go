package state

import "github.com/oddjobs/oj/internal/domain"

// applyDecisionCreated implements the dominance/supersession rule from
// spec.md §4.9: a new decision for the same owner auto-resolves any prior
// unresolved decision it dominates (Question > Plan > Approval > {Error,
// Dead, Idle, Gate} > Escalation), writing superseded_by + an
// auto-dismissed message on the old one. If instead the prior decision
// dominates the incoming one, the incoming decision is silently dropped.
func applyDecisionCreated(s *State, e domain.Event) {
	p := e.Payload.(*domain.DecisionCreatedPayload)

	for _, existing := range s.Decisions {
		if existing.Owner != p.Owner || existing.Resolved() {
			continue
		}
		if existing.Source.Dominates(domain.DecisionSource(p.Source)) {
			// The incoming decision is dominated: drop it entirely.
			return
		}
	}

	d := &domain.Decision{
		ID:        p.DecisionID,
		Owner:     p.Owner,
		AgentID:   p.AgentID,
		Source:    domain.DecisionSource(p.Source),
		Context:   p.Context,
		Options:   p.Options,
		Questions: p.Questions,
		CreatedAt: e.At,
	}

	for _, existing := range s.Decisions {
		if existing.Owner != p.Owner || existing.Resolved() {
			continue
		}
		if !existing.Source.Dominates(d.Source) {
			now := e.At
			existing.ResolvedAt = &now
			existing.SupersededBy = d.ID
			existing.Message = "auto-dismissed: superseded by a higher-priority decision"
		}
	}

	s.Decisions[p.DecisionID] = d
	s.ownerDecisionStats[p.Owner.String()]++
}

// applyDecisionResolved only writes the resolution; the runtime's handler
// is responsible for translating a resolved decision into downstream
// actions (spec.md §4.9: "merely writes the resolution").
func applyDecisionResolved(s *State, e domain.Event) {
	p := e.Payload.(*domain.DecisionResolvedPayload)
	d, ok := s.Decisions[p.DecisionID]
	if !ok || d.Resolved() {
		return
	}
	now := e.At
	d.ResolvedAt = &now
	d.Choices = p.Choices
	d.Message = p.Message
}

// removeUnresolvedDecisionsForOwner marks every still-open decision for an
// owner as resolved without a chosen option, used when the owner reaches a
// terminal step (spec.md §4.9: "a decision never outlives its owner").
func removeUnresolvedDecisionsForOwner(s *State, owner domain.OwnerID) {
	for _, d := range s.Decisions {
		if d.Owner == owner && !d.Resolved() {
			now := d.CreatedAt
			d.ResolvedAt = &now
			d.Message = "auto-dismissed: owner reached a terminal step"
		}
	}
}

// removeAllDecisionsForOwner removes every decision record (resolved or
// not) belonging to owner, used on job/crew deletion.
func removeAllDecisionsForOwner(s *State, owner domain.OwnerID) {
	for id, d := range s.Decisions {
		if d.Owner == owner {
			delete(s.Decisions, id)
		}
	}
}
