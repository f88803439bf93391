package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind names every variant of the tagged-union Event. The persisted/
// transient split (spec.md §3) is carried by Persisted(), not by the kind
// name itself, so new variants never forget to classify themselves.
type EventKind string

const (
	KindJobCreated        EventKind = "JobCreated"
	KindJobAdvanced       EventKind = "JobAdvanced"
	KindJobResume         EventKind = "JobResume"
	KindJobCancel         EventKind = "JobCancel"
	KindJobSuspend        EventKind = "JobSuspend"
	KindJobDeleted        EventKind = "JobDeleted"
	KindStepStarted       EventKind = "StepStarted"
	KindShellExited       EventKind = "ShellExited"
	KindCommandRun        EventKind = "CommandRun"
	KindAgentSpawned      EventKind = "AgentSpawned"
	KindAgentSpawnFailed  EventKind = "AgentSpawnFailed"
	KindAgentWorking      EventKind = "AgentWorking"
	KindAgentWaiting      EventKind = "AgentWaiting"
	KindAgentFailed       EventKind = "AgentFailed"
	KindAgentExited       EventKind = "AgentExited"
	KindAgentGone         EventKind = "AgentGone"
	KindAgentPrompt       EventKind = "AgentPrompt"
	KindAgentIdle         EventKind = "AgentIdle"
	KindAgentStopBlocked  EventKind = "AgentStopBlocked"
	KindAgentStopAllowed  EventKind = "AgentStopAllowed"
	KindCrewCreated       EventKind = "CrewCreated"
	KindCrewUpdated       EventKind = "CrewUpdated"
	KindWorkspaceCreated  EventKind = "WorkspaceCreated"
	KindWorkspaceReady    EventKind = "WorkspaceReady"
	KindWorkspaceFailed   EventKind = "WorkspaceFailed"
	KindWorkspaceDeleted  EventKind = "WorkspaceDeleted"
	KindQueuePushed       EventKind = "QueuePushed"
	KindQueueDropped      EventKind = "QueueDropped"
	KindQueueTaken        EventKind = "QueueTaken"
	KindWorkerStarted     EventKind = "WorkerStarted"
	KindWorkerStopped     EventKind = "WorkerStopped"
	KindWorkerResized     EventKind = "WorkerResized"
	KindWorkerPolled      EventKind = "WorkerPolled"
	KindWorkerTaking      EventKind = "WorkerTaking"
	KindWorkerTook        EventKind = "WorkerTook"
	KindWorkerWake        EventKind = "WorkerWake"
	KindCronStarted       EventKind = "CronStarted"
	KindCronStopped       EventKind = "CronStopped"
	KindCronFired         EventKind = "CronFired"
	KindDecisionCreated   EventKind = "DecisionCreated"
	KindDecisionResolved  EventKind = "DecisionResolved"
	KindRunbookLoaded     EventKind = "RunbookLoaded"
	KindTimerStart        EventKind = "TimerStart"
	KindQueueRetried      EventKind = "QueueRetried"
	KindQueueFailed       EventKind = "QueueFailed"
	KindQueueDone         EventKind = "QueueDone"
	KindQueuePruned       EventKind = "QueuePruned"
)

// transientKinds never reach the WAL; they flow through the runtime only.
var transientKinds = map[EventKind]bool{
	KindTimerStart:   true,
	KindWorkerPolled: true,
	KindWorkerTaking: true,
	KindWorkerTook:   true,
	KindWorkerWake:   true,
	KindCommandRun:   true,
	KindJobResume:    true,
	KindJobCancel:    true,
	KindJobSuspend:   true,
}

// Event is the sole unit of durability. Payload is a typed struct specific
// to Kind, registered in payloadTypes below; (de)serialisation always goes
// through a "kind" discriminator field rather than a Go type switch leaking
// into the wire format.
type Event struct {
	Seq     uint64      `json:"seq"`
	Kind    EventKind   `json:"kind"`
	At      time.Time   `json:"at"`
	Payload interface{} `json:"payload"`
}

// Persisted reports whether this event belongs in the WAL.
func (e Event) Persisted() bool {
	return !transientKinds[e.Kind]
}

// wireEvent is the JSON-on-the-wire shape: payload stays raw until the kind
// is known, then gets unmarshalled into the registered Go type.
type wireEvent struct {
	Seq     uint64          `json:"seq"`
	Kind    EventKind       `json:"kind"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s payload: %w", e.Kind, err)
	}
	return json.Marshal(wireEvent{Seq: e.Seq, Kind: e.Kind, At: e.At, Payload: payload})
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	ctor, ok := payloadTypes[w.Kind]
	if !ok {
		return fmt.Errorf("unknown event kind %q", w.Kind)
	}
	payload := ctor()
	if len(w.Payload) > 0 {
		if err := json.Unmarshal(w.Payload, payload); err != nil {
			return fmt.Errorf("unmarshal %s payload: %w", w.Kind, err)
		}
	}
	e.Seq = w.Seq
	e.Kind = w.Kind
	e.At = w.At
	e.Payload = payload
	return nil
}

// payloadTypes maps each kind to a constructor for its zero payload value,
// the same "registry of typed payload structs" idiom SPEC_FULL.md §5 calls
// for instead of a sum-type hack.
var payloadTypes = map[EventKind]func() interface{}{
	KindJobCreated:       func() interface{} { return &JobCreatedPayload{} },
	KindJobAdvanced:      func() interface{} { return &JobAdvancedPayload{} },
	KindJobResume:        func() interface{} { return &JobResumePayload{} },
	KindJobCancel:        func() interface{} { return &JobCancelPayload{} },
	KindJobSuspend:       func() interface{} { return &JobSuspendPayload{} },
	KindJobDeleted:       func() interface{} { return &JobDeletedPayload{} },
	KindStepStarted:      func() interface{} { return &StepStartedPayload{} },
	KindShellExited:      func() interface{} { return &ShellExitedPayload{} },
	KindCommandRun:       func() interface{} { return &CommandRunPayload{} },
	KindAgentSpawned:     func() interface{} { return &AgentSpawnedPayload{} },
	KindAgentSpawnFailed: func() interface{} { return &AgentSpawnFailedPayload{} },
	KindAgentWorking:     func() interface{} { return &AgentStatePayload{} },
	KindAgentWaiting:     func() interface{} { return &AgentStatePayload{} },
	KindAgentFailed:      func() interface{} { return &AgentFailedPayload{} },
	KindAgentExited:      func() interface{} { return &AgentExitedPayload{} },
	KindAgentGone:        func() interface{} { return &AgentGonePayload{} },
	KindAgentPrompt:      func() interface{} { return &AgentPromptPayload{} },
	KindAgentIdle:        func() interface{} { return &AgentStatePayload{} },
	KindAgentStopBlocked: func() interface{} { return &AgentStatePayload{} },
	KindAgentStopAllowed: func() interface{} { return &AgentStatePayload{} },
	KindCrewCreated:      func() interface{} { return &CrewCreatedPayload{} },
	KindCrewUpdated:      func() interface{} { return &CrewUpdatedPayload{} },
	KindWorkspaceCreated: func() interface{} { return &WorkspaceCreatedPayload{} },
	KindWorkspaceReady:   func() interface{} { return &WorkspaceReadyPayload{} },
	KindWorkspaceFailed:  func() interface{} { return &WorkspaceFailedPayload{} },
	KindWorkspaceDeleted: func() interface{} { return &WorkspaceDeletedPayload{} },
	KindQueuePushed:      func() interface{} { return &QueuePushedPayload{} },
	KindQueueDropped:     func() interface{} { return &QueueDroppedPayload{} },
	KindQueueTaken:       func() interface{} { return &QueueTakenPayload{} },
	KindWorkerStarted:    func() interface{} { return &WorkerStartedPayload{} },
	KindWorkerStopped:    func() interface{} { return &WorkerStoppedPayload{} },
	KindWorkerResized:    func() interface{} { return &WorkerResizedPayload{} },
	KindWorkerPolled:     func() interface{} { return &WorkerPolledPayload{} },
	KindWorkerTaking:     func() interface{} { return &WorkerTakingPayload{} },
	KindWorkerTook:       func() interface{} { return &WorkerTookPayload{} },
	KindWorkerWake:       func() interface{} { return &WorkerWakePayload{} },
	KindCronStarted:      func() interface{} { return &CronStartedPayload{} },
	KindCronStopped:      func() interface{} { return &CronStoppedPayload{} },
	KindCronFired:        func() interface{} { return &CronFiredPayload{} },
	KindDecisionCreated:  func() interface{} { return &DecisionCreatedPayload{} },
	KindDecisionResolved: func() interface{} { return &DecisionResolvedPayload{} },
	KindRunbookLoaded:    func() interface{} { return &RunbookLoadedPayload{} },
	KindTimerStart:       func() interface{} { return &TimerStartPayload{} },
	KindQueueRetried:     func() interface{} { return &QueueItemTransitionPayload{} },
	KindQueueFailed:      func() interface{} { return &QueueItemTransitionPayload{} },
	KindQueueDone:        func() interface{} { return &QueueItemTransitionPayload{} },
	KindQueuePruned:      func() interface{} { return &QueuePrunedPayload{} },
}
