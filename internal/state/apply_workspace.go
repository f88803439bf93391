package state

import "github.com/oddjobs/oj/internal/domain"

func applyWorkspaceCreated(s *State, e domain.Event) {
	p := e.Payload.(*domain.WorkspaceCreatedPayload)
	s.Workspaces[p.WorkspaceID] = &domain.Workspace{
		ID:     p.WorkspaceID,
		Path:   p.Path,
		Branch: p.Branch,
		Owner:  p.Owner,
		Status: domain.WorkspacePending,
	}
}

func applyWorkspaceReady(s *State, e domain.Event) {
	p := e.Payload.(*domain.WorkspaceReadyPayload)
	if w, ok := s.Workspaces[p.WorkspaceID]; ok {
		w.Status = domain.WorkspaceReady
	}
}

func applyWorkspaceFailed(s *State, e domain.Event) {
	p := e.Payload.(*domain.WorkspaceFailedPayload)
	if w, ok := s.Workspaces[p.WorkspaceID]; ok {
		w.Status = domain.WorkspaceFailed
	}
}

func applyWorkspaceDeleted(s *State, e domain.Event) {
	p := e.Payload.(*domain.WorkspaceDeletedPayload)
	delete(s.Workspaces, p.WorkspaceID)
}
