// Package adapters defines the abstract agent-runtime contract (spec.md
// §9's "trait-like capability set") and a router that dispatches to the
// concrete local-process, Docker, or mock implementation by an agent's
// declared runtime.
package adapters

import (
	"context"
	"time"

	"github.com/oddjobs/oj/internal/domain"
)

// SpawnSpec is everything an adapter needs to start a sidecar, already
// rendered by internal/supervisor (prompt text, working directory, env).
type SpawnSpec struct {
	AgentID string
	Owner   domain.OwnerID
	Runtime domain.AgentRuntime
	Prompt  string
	Cwd     string
	Env     map[string]string
	Image   string // docker runtime only
}

// AgentAdapter is the verbatim capability set from spec.md §9.
type AgentAdapter interface {
	Spawn(ctx context.Context, spec SpawnSpec) (handle string, authToken string, err error)
	Reconnect(ctx context.Context, handle string) error
	Send(ctx context.Context, handle string, message string) error
	Respond(ctx context.Context, handle string, choices []int, message string) error
	Kill(ctx context.Context, handle string) error
	GetState(ctx context.Context, handle string) (domain.AgentState, error)
	LastMessage(ctx context.Context, handle string) (string, error)
	ResolveStop(ctx context.Context, handle string, allow bool) error
	IsAlive(ctx context.Context, handle string) bool
	CaptureOutput(ctx context.Context, handle string) (string, error)
	FetchTranscript(ctx context.Context, handle string) ([]byte, error)
	FetchUsage(ctx context.Context, handle string) (TokenUsage, error)
	IsRemoteOnly() bool
	GetCoopHost(handle string) string
}

// TokenUsage is the usage summary an adapter can report for an agent,
// recovered from original_source/ (crates/core/src/usage.rs) per
// SPEC_FULL.md §5.1: informational only, no invariant depends on it.
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
	CachedTokens int64
	AsOf         time.Time
}

// Notifier is the out-of-scope-but-ambient notification seam (spec.md
// §1 lists notification backends as out of scope; the interface still
// exists so supervisor code has somewhere to call).
type Notifier interface {
	Notify(ctx context.Context, owner domain.OwnerID, message string) error
}

// LogNotifier is the only Notifier this daemon ships: it logs the
// message and does nothing else.
type LogNotifier struct {
	Log func(owner domain.OwnerID, message string)
}

func (n LogNotifier) Notify(_ context.Context, owner domain.OwnerID, message string) error {
	if n.Log != nil {
		n.Log(owner, message)
	}
	return nil
}

// Router dispatches to the adapter registered for a runtime.
type Router struct {
	byRuntime map[domain.AgentRuntime]AgentAdapter
}

func NewRouter() *Router {
	return &Router{byRuntime: make(map[domain.AgentRuntime]AgentAdapter)}
}

func (r *Router) Register(rt domain.AgentRuntime, a AgentAdapter) {
	r.byRuntime[rt] = a
}

func (r *Router) For(rt domain.AgentRuntime) (AgentAdapter, bool) {
	a, ok := r.byRuntime[rt]
	return a, ok
}
