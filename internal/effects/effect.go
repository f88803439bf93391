// Package effects carries the executor: the side-effect-intent union
// (spec.md §4) and the single critical section that turns intents into
// persisted events, mirroring the teacher's orchestrator.Service pattern
// of a mutex-guarded struct plus a goroutine-tracked async path.
package effects

import (
	"time"

	"github.com/oddjobs/oj/internal/adapters"
	"github.com/oddjobs/oj/internal/domain"
)

// Effect is a side-effect intent produced by a runtime handler. Intents
// are never persisted themselves — only the domain.Event an intent
// eventually produces (via Emit, or via an async path re-entering as
// Emit) is subject to Event.Persisted().
type Effect interface {
	effectKind() string
}

// Emit appends (if persisted) and folds an event directly, synchronously,
// inside the executor's critical section.
type Emit struct {
	Event domain.Event
}

func (Emit) effectKind() string { return "emit" }

// SpawnAgent asks an adapter to start a sidecar for owner; the result
// re-enters as AgentSpawned or AgentSpawnFailed.
type SpawnAgent struct {
	Owner domain.OwnerID
	Spec  adapters.SpawnSpec
}

func (SpawnAgent) effectKind() string { return "spawn_agent" }

// Shell runs a job step's shell command; the result re-enters as
// ShellExited.
type Shell struct {
	JobID string
	Step  string
	Cmd   string
	Cwd   string
	Vars  map[string]string
}

func (Shell) effectKind() string { return "shell" }

// SetTimer arms a named timer, delegated to timers.Wheel.
type SetTimer struct {
	ID string
	At time.Time
}

func (SetTimer) effectKind() string { return "set_timer" }

// CancelTimer disarms a named timer, delegated to timers.Wheel.
type CancelTimer struct {
	ID string
}

func (CancelTimer) effectKind() string { return "cancel_timer" }

// Notify sends an out-of-band notification via adapters.Notifier.
type Notify struct {
	Owner   domain.OwnerID
	Message string
}

func (Notify) effectKind() string { return "notify" }

// TakeQueueItem asks a worker to claim and run one queue item; the result
// re-enters as QueueTaken plus the worker's own completion event.
type TakeQueueItem struct {
	Worker string
	ItemID string
}

func (TakeQueueItem) effectKind() string { return "take_queue_item" }

// KillAgent asks an adapter to terminate a running agent. Fire-and-forget
// alongside Notify in a batch — both run via errgroup so one failing
// doesn't block the other (SPEC_FULL.md §6.5).
type KillAgent struct {
	AgentID string
	Handle  string
	Runtime domain.AgentRuntime
}

func (KillAgent) effectKind() string { return "kill_agent" }

// SendToAgent delivers a text message to a live agent via its adapter.
// Fire-and-forget alongside KillAgent/Notify: spec.md §4.7's smart-resume
// path treats a message resume against an already-running agent as pure
// delivery, with no event re-entering the executor afterward.
type SendToAgent struct {
	AgentID string
	Runtime domain.AgentRuntime
	Message string
}

func (SendToAgent) effectKind() string { return "send_to_agent" }

// ListQueueItems asks an external queue's list command for its current
// items; the result re-enters as WorkerPolled.
type ListQueueItems struct {
	Worker    string
	Namespace string
	Cmd       string
	Cwd       string
	Vars      map[string]string
}

func (ListQueueItems) effectKind() string { return "list_queue_items" }

// TakeExternalQueueItem runs an external queue's take command against one
// polled item; the result re-enters as WorkerTook.
type TakeExternalQueueItem struct {
	Worker    string
	Namespace string
	ItemKey   string
	Cmd       string
	Cwd       string
	Vars      map[string]string
	Item      map[string]interface{}
}

func (TakeExternalQueueItem) effectKind() string { return "take_external_queue_item" }
