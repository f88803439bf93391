package domain

import "time"

// StepStatus is the status of a job's current step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepWaiting   StepStatus = "waiting"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSuspended StepStatus = "suspended"
)

// StepOutcome records how a step record ended.
type StepOutcome string

const (
	OutcomeRunning   StepOutcome = "running"
	OutcomeSucceeded StepOutcome = "succeeded"
	OutcomeFailed    StepOutcome = "failed"
)

// StepRecord is one entry in a job's step history.
type StepRecord struct {
	Step     string      `json:"step"`
	AgentID  string      `json:"agent_id,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Outcome  StepOutcome `json:"outcome"`
}

// ActionTracker counts, per (trigger, chainPos), how many times a reaction
// action has fired within its current streak. Kept inside the owner record
// per spec.md §9 rather than a separate table, so it folds with everything
// else.
type ActionTracker struct {
	Attempts map[string]int `json:"attempts"`
}

func NewActionTracker() *ActionTracker {
	return &ActionTracker{Attempts: make(map[string]int)}
}

func trackerKey(trigger string, chainPos int) string {
	return trigger + ":" + itoa(chainPos)
}

func (t *ActionTracker) Count(trigger string, chainPos int) int {
	if t == nil || t.Attempts == nil {
		return 0
	}
	return t.Attempts[trackerKey(trigger, chainPos)]
}

func (t *ActionTracker) Increment(trigger string, chainPos int) int {
	if t.Attempts == nil {
		t.Attempts = make(map[string]int)
	}
	k := trackerKey(trigger, chainPos)
	t.Attempts[k]++
	return t.Attempts[k]
}

func (t *ActionTracker) Reset(trigger string, chainPos int) {
	if t.Attempts == nil {
		return
	}
	delete(t.Attempts, trackerKey(trigger, chainPos))
}

// ResetAll clears every attempt counter for the owner (used on a working-
// state transition per spec.md §4.6.3).
func (t *ActionTracker) ResetAll() {
	t.Attempts = make(map[string]int)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Job is a runbook-defined workflow instance (spec.md §3).
type Job struct {
	ID          string            `json:"id"`
	Kind        string            `json:"kind"`
	Name        string            `json:"name"`
	Project     string            `json:"project"`
	Step        string            `json:"step"`
	StepStatus  StepStatus        `json:"step_status"`
	WaitingOn   string            `json:"waiting_on,omitempty"` // decision id, when StepStatus == waiting
	Cwd         string            `json:"cwd"`
	WorkspaceID string            `json:"workspace_id,omitempty"`
	Vars        map[string]string `json:"vars"`
	RunbookHash string            `json:"runbook_hash"`
	StepHistory []StepRecord      `json:"step_history"`
	StepVisits  map[string]int    `json:"step_visits"`
	RetryCount  int               `json:"retry_count"`
	Tracker     *ActionTracker    `json:"tracker"`
	Cancelling  bool              `json:"cancelling"`
	Failing     bool              `json:"failing"`
	Suspending  bool              `json:"suspending"`
	CronName    string            `json:"cron_name,omitempty"`
	LastNudge   time.Time         `json:"last_nudge,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`

	// StepDurations and LastAppliedSeq are recovered from original_source/
	// (crates/core/src/job.rs) per SPEC_FULL.md §5.1: derived/informational
	// only, folded the same way as everything else.
	StepDurations  map[string]time.Duration `json:"step_durations"`
	LastAppliedSeq uint64                    `json:"last_applied_seq"`
}

// MaxStepVisits is the circuit-breaker cap from spec.md §3/§8 invariant 4.
const MaxStepVisits = 5

// IsTerminal reports whether the job's step name is one of the terminal
// sentinels (spec.md §3 invariant: "step name is always a terminal... or a
// step declared in the runbook").
func (j *Job) IsTerminal() bool {
	return IsTerminalStep(j.Step)
}

// IsTerminalStep reports whether step is one of the four terminal
// sentinels, independent of any particular job record — used by runtime
// handlers computing a step's destination before it has been applied.
func IsTerminalStep(step string) bool {
	switch step {
	case "done", "failed", "cancelled", "suspended":
		return true
	default:
		return false
	}
}

func NewJob(id string) *Job {
	return &Job{
		ID:            id,
		StepStatus:    StepPending,
		Vars:          make(map[string]string),
		StepVisits:    make(map[string]int),
		Tracker:       NewActionTracker(),
		StepDurations: make(map[string]time.Duration),
	}
}
