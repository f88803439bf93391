package state

import "github.com/oddjobs/oj/internal/domain"

func applyAgentSpawned(s *State, e domain.Event) {
	p := e.Payload.(*domain.AgentSpawnedPayload)
	agent := &domain.Agent{
		ID:      p.AgentID,
		Owner:   p.Owner,
		Runtime: domain.AgentRuntime(p.Runtime),
		AuthToken: p.AuthTok,
		State:   domain.AgentStarting,
	}
	s.Agents[p.AgentID] = agent
	s.AgentOwner[p.AgentID] = p.Owner

	// Stamp the owning job's current step record with the agent id so a
	// crash-recovery reconcile pass (internal/reconcile, spec.md §4.10 step
	// 2) can tell a zombie step (no agent ever recorded) from one that just
	// needs reattaching, without fabricating an id.
	if p.Owner.IsJob() {
		if job, ok := s.Jobs[p.Owner.ID]; ok && len(job.StepHistory) > 0 {
			last := &job.StepHistory[len(job.StepHistory)-1]
			if last.FinishedAt == nil {
				last.AgentID = p.AgentID
			}
		}
	}
}

// applyAgentSpawnFailed only marks the owning job/crew's reaction; the
// agent record itself is never created since the spawn never completed.
func applyAgentSpawnFailed(s *State, e domain.Event) {
	// No agent record to remove; the runtime's supervisor reacts to the
	// corresponding transient effect before this persisted event lands.
	_ = e.Payload.(*domain.AgentSpawnFailedPayload)
}

// applyAgentStateEvent folds the five state-only agent transitions
// (Working, Waiting, Idle, StopBlocked, StopAllowed) which all share the
// same minimal payload shape.
func applyAgentStateEvent(s *State, e domain.Event) {
	p := e.Payload.(*domain.AgentStatePayload)
	agent, ok := s.Agents[p.AgentID]
	if !ok {
		return
	}
	switch e.Kind {
	case domain.KindAgentWorking:
		agent.State = domain.AgentWorking
		if owner, ok := s.AgentOwner[p.AgentID]; ok {
			resetTrackerForOwner(s, owner)
		}
	case domain.KindAgentWaiting:
		agent.State = domain.AgentWaiting
	case domain.KindAgentIdle:
		agent.State = domain.AgentIdle
	case domain.KindAgentStopBlocked:
		agent.State = domain.AgentStopBlocked
	case domain.KindAgentStopAllowed:
		agent.State = domain.AgentStopAllowed
	}
}

func applyAgentFailed(s *State, e domain.Event) {
	p := e.Payload.(*domain.AgentFailedPayload)
	agent, ok := s.Agents[p.AgentID]
	if !ok {
		return
	}
	agent.State = domain.AgentFailed
	agent.LastMessage = p.Detail
}

func applyAgentExited(s *State, e domain.Event) {
	p := e.Payload.(*domain.AgentExitedPayload)
	if agent, ok := s.Agents[p.AgentID]; ok {
		agent.State = domain.AgentExited
	}
}

func applyAgentGone(s *State, e domain.Event) {
	p := e.Payload.(*domain.AgentGonePayload)
	delete(s.Agents, p.AgentID)
	delete(s.AgentOwner, p.AgentID)
}

// killAgentsOwnedBy removes every agent record owned by owner, used when
// a job or crew reaches a terminal step and any still-running agent under
// it is considered gone (spec.md §4.6: an owner never outlives its agents).
func killAgentsOwnedBy(s *State, owner domain.OwnerID) {
	for id, o := range s.AgentOwner {
		if o == owner {
			delete(s.Agents, id)
			delete(s.AgentOwner, id)
		}
	}
}

// resetTrackerForOwner clears the reaction-attempt counters for the job or
// crew owning an agent that just transitioned to working, per spec.md
// §4.6.3 ("a working transition resets the attempt counters").
func resetTrackerForOwner(s *State, owner domain.OwnerID) {
	if owner.IsJob() {
		if job, ok := s.Jobs[owner.ID]; ok && job.Tracker != nil {
			job.Tracker.ResetAll()
		}
		return
	}
	if owner.IsCrew() {
		if crew, ok := s.Crews[owner.ID]; ok && crew.Tracker != nil {
			crew.Tracker.ResetAll()
		}
	}
}
