package state

import "github.com/oddjobs/oj/internal/domain"

func applyCrewCreated(s *State, e domain.Event) {
	p := e.Payload.(*domain.CrewCreatedPayload)
	if _, exists := s.Crews[p.CrewID]; exists {
		return
	}
	crew := domain.NewCrew(p.CrewID)
	crew.AgentName = p.AgentName
	crew.CommandName = p.CommandName
	crew.Project = p.Project
	crew.Cwd = p.Cwd
	crew.RunbookHash = p.RunbookHash
	crew.Vars = p.Vars
	crew.CreatedAt = e.At
	s.Crews[p.CrewID] = crew
}

func applyCrewUpdated(s *State, e domain.Event) {
	p := e.Payload.(*domain.CrewUpdatedPayload)
	crew, ok := s.Crews[p.CrewID]
	if !ok {
		return
	}
	crew.Status = domain.CrewStatus(p.Status)
	if p.AgentID != "" {
		crew.AgentID = p.AgentID
	}
	if crew.IsTerminal() {
		owner := domain.CrewOwner(crew.ID)
		removeUnresolvedDecisionsForOwner(s, owner)
		killAgentsOwnedBy(s, owner)
	}
}
