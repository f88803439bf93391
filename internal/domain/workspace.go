package domain

// WorkspaceStatus is the provisioning status of a workspace directory.
type WorkspaceStatus string

const (
	WorkspacePending WorkspaceStatus = "pending"
	WorkspaceReady   WorkspaceStatus = "ready"
	WorkspaceFailed  WorkspaceStatus = "failed"
	WorkspaceDeleted WorkspaceStatus = "deleted"
)

// Workspace is an optionally git-worktree-backed directory owned by exactly
// one job or crew (spec.md §3). Worktree provisioning internals are out of
// scope; this is the data record the core tracks.
type Workspace struct {
	ID     string          `json:"id"`
	Path   string          `json:"path"`
	Branch string          `json:"branch,omitempty"`
	Owner  OwnerID         `json:"owner"`
	Status WorkspaceStatus `json:"status"`
}
