package domain

import "time"

// Payload structs are grouped by concern, one block per handler file in
// internal/runtime, so a reader can match a payload to the handler that
// produces/consumes it at a glance.

// --- jobs ---

type JobCreatedPayload struct {
	JobID       string            `json:"job_id"`
	Kind        string            `json:"kind"`
	Project     string            `json:"project"`
	Vars        map[string]string `json:"vars"`
	RunbookHash string            `json:"runbook_hash"`
	CronName    string            `json:"cron_name,omitempty"`
	QueueItemID string            `json:"queue_item_id,omitempty"`
}

type JobAdvancedPayload struct {
	JobID  string `json:"job_id"`
	Step   string `json:"step"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`

	// Failing/Cancelling/Suspending set the job's corresponding flag when
	// true; they never clear it directly (reaching a terminal step always
	// clears all three, regardless of these fields).
	Failing    bool `json:"failing,omitempty"`
	Cancelling bool `json:"cancelling,omitempty"`
	Suspending bool `json:"suspending,omitempty"`
}

type JobResumePayload struct {
	JobID   string            `json:"job_id"`
	Message string            `json:"message,omitempty"`
	Vars    map[string]string `json:"vars,omitempty"`
	Kill    bool              `json:"kill"`
}

type JobCancelPayload struct {
	JobID string `json:"job_id"`
}

type JobSuspendPayload struct {
	JobID string `json:"job_id"`
}

type JobDeletedPayload struct {
	JobID string `json:"job_id"`
}

type StepStartedPayload struct {
	JobID string `json:"job_id"`
	Step  string `json:"step"`
}

type ShellExitedPayload struct {
	JobID    string `json:"job_id"`
	Step     string `json:"step"`
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

type CommandRunPayload struct {
	Command string            `json:"command"`
	Args    map[string]string `json:"args"`
	Project string            `json:"project"`
	Cwd     string            `json:"cwd"`
}

// --- agents ---

type AgentSpawnedPayload struct {
	AgentID  string  `json:"agent_id"`
	Owner    OwnerID `json:"owner"`
	Runtime  string  `json:"runtime"`
	AuthTok  string  `json:"auth_token,omitempty"`
}

type AgentSpawnFailedPayload struct {
	Owner  OwnerID `json:"owner"`
	Reason string  `json:"reason"`
}

type AgentStatePayload struct {
	AgentID string `json:"agent_id"`
}

type AgentFailedPayload struct {
	AgentID  string `json:"agent_id"`
	Category string `json:"category"`
	Detail   string `json:"detail"`
}

type AgentExitedPayload struct {
	AgentID string `json:"agent_id"`
}

type AgentGonePayload struct {
	AgentID string `json:"agent_id"`
}

type AgentPromptPayload struct {
	AgentID   string                 `json:"agent_id"`
	PromptType string                `json:"prompt_type"`
	Questions []QuestionData         `json:"questions,omitempty"`
	Input     map[string]interface{} `json:"input,omitempty"`
}

type QuestionData struct {
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

// --- crews ---

type CrewCreatedPayload struct {
	CrewID      string            `json:"crew_id"`
	AgentName   string            `json:"agent_name"`
	CommandName string            `json:"command_name"`
	Project     string            `json:"project"`
	Cwd         string            `json:"cwd"`
	RunbookHash string            `json:"runbook_hash"`
	Vars        map[string]string `json:"vars"`
}

type CrewUpdatedPayload struct {
	CrewID  string `json:"crew_id"`
	Status  string `json:"status"`
	AgentID string `json:"agent_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// --- workspaces ---

type WorkspaceCreatedPayload struct {
	WorkspaceID string  `json:"workspace_id"`
	Path        string  `json:"path"`
	Branch      string  `json:"branch,omitempty"`
	Owner       OwnerID `json:"owner"`
}

type WorkspaceReadyPayload struct {
	WorkspaceID string `json:"workspace_id"`
}

type WorkspaceFailedPayload struct {
	WorkspaceID string `json:"workspace_id"`
	Reason      string `json:"reason"`
}

type WorkspaceDeletedPayload struct {
	WorkspaceID string `json:"workspace_id"`
}

// --- queues ---

type QueuePushedPayload struct {
	ItemID    string            `json:"item_id"`
	Queue     string            `json:"queue"`
	Namespace string            `json:"namespace"`
	Data      map[string]string `json:"data"`
}

type QueueDroppedPayload struct {
	ItemID string `json:"item_id"`
	Queue  string `json:"queue"`
}

type QueueTakenPayload struct {
	ItemID string `json:"item_id"`
	Queue  string `json:"queue"`
	Worker string `json:"worker"`
}

// QueueItemTransitionPayload is the shared shape for the three
// resolve-by-id persisted queue mutations (retry/fail/done).
type QueueItemTransitionPayload struct {
	ItemID string `json:"item_id"`
}

type QueuePrunedPayload struct {
	ItemIDs []string `json:"item_ids"`
}

// --- workers ---

type WorkerStartedPayload struct {
	Name        string `json:"name"`
	Namespace   string `json:"namespace"`
	RunbookHash string `json:"runbook_hash"`
	Queue       string `json:"queue"`
	QueueType   string `json:"queue_type"`
	Concurrency int    `json:"concurrency"`
}

type WorkerStoppedPayload struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
}

type WorkerResizedPayload struct {
	Name        string `json:"name"`
	Namespace   string `json:"namespace"`
	Concurrency int    `json:"concurrency"`
}

type WorkerPolledPayload struct {
	Name      string                   `json:"name"`
	Namespace string                   `json:"namespace"`
	Items     []map[string]interface{} `json:"items"`
}

// WorkerTookPayload carries Item alongside the take outcome so the
// handler can dispatch a job from it directly — by the time this event
// folds, applyWorkerTook has already cleared the worker's own
// PendingItems stash, so the dispatch can't rely on re-reading it back
// out of state.
type WorkerTookPayload struct {
	Name      string                 `json:"name"`
	Namespace string                 `json:"namespace"`
	ItemKey   string                 `json:"item_key"`
	ExitCode  int                    `json:"exit_code"`
	Stderr    string                 `json:"stderr"`
	Item      map[string]interface{} `json:"item"`
}

type WorkerWakePayload struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
}

// WorkerTakingPayload marks one polled external-queue item as claimed,
// before the take command's outcome (WorkerTookPayload) is known. Item
// carries the raw polled fields so the eventual dispatch (on exit 0) can
// namespace them into job vars without re-polling.
type WorkerTakingPayload struct {
	Name      string                 `json:"name"`
	Namespace string                 `json:"namespace"`
	ItemKey   string                 `json:"item_key"`
	Item      map[string]interface{} `json:"item"`
}

// --- crons ---

type CronStartedPayload struct {
	Name        string `json:"name"`
	Namespace   string `json:"namespace"`
	RunbookHash string `json:"runbook_hash"`
	Interval    time.Duration `json:"interval"`
	Target      string `json:"target"`
	Concurrency int    `json:"concurrency"`
	Project     string `json:"project"`
}

type CronStoppedPayload struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
}

type CronFiredPayload struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
}

// --- decisions ---

type DecisionOption struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Recommended bool   `json:"recommended,omitempty"`
}

type DecisionCreatedPayload struct {
	DecisionID     string           `json:"decision_id"`
	Owner          OwnerID          `json:"owner"`
	AgentID        string           `json:"agent_id,omitempty"`
	Source         string           `json:"source"`
	Context        string           `json:"context"`
	Options        []DecisionOption `json:"options"`
	Questions      []QuestionData   `json:"questions,omitempty"`
}

type DecisionResolvedPayload struct {
	DecisionID string `json:"decision_id"`
	Choices    []int  `json:"choices"`
	Message    string `json:"message,omitempty"`
}

// --- runbooks ---

type RunbookLoadedPayload struct {
	Hash string `json:"hash"`
	Path string `json:"path"`
}

// --- timers ---

type TimerStartPayload struct {
	ID string `json:"id"`
}
