// Package runbook models the content-addressed runbook document the core
// treats as immutable data produced by an external parser (spec.md §3: the
// HCL/TOML surface syntax itself is out of scope). Only the data model and
// the load/cache path belong here.
package runbook

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// JobDef is one job kind declared in a runbook.
type JobDef struct {
	Kind    string              `yaml:"kind" json:"kind"`
	Steps   map[string]StepDef  `yaml:"steps" json:"steps"`
	Start   string              `yaml:"start" json:"start"`
	Vars    []string            `yaml:"vars" json:"vars"`
	OnDone  *string             `yaml:"on_done,omitempty" json:"on_done,omitempty"`
	OnFail  *string             `yaml:"on_fail,omitempty" json:"on_fail,omitempty"`
	OnCancel *string            `yaml:"on_cancel,omitempty" json:"on_cancel,omitempty"`
	OnSuspend *string           `yaml:"on_suspend,omitempty" json:"on_suspend,omitempty"`
}

// RunKind discriminates a step's run directive.
type RunKind string

const (
	RunShell RunKind = "shell"
	RunAgent RunKind = "agent"
)

// StepDef is one step in a job kind's step graph.
type StepDef struct {
	Run      RunKind `yaml:"run" json:"run"`
	Cmd      string  `yaml:"cmd,omitempty" json:"cmd,omitempty"`
	Agent    string  `yaml:"agent,omitempty" json:"agent,omitempty"`
	OnDone   string  `yaml:"on_done,omitempty" json:"on_done,omitempty"`
	OnFail   string  `yaml:"on_fail,omitempty" json:"on_fail,omitempty"`
}

// AgentDef declares an agent's spawn template, prompt, and reaction
// policies (spec.md §4.6).
type AgentDef struct {
	Name      string              `yaml:"name" json:"name"`
	Runtime   string              `yaml:"runtime" json:"runtime"`
	Prompt    string              `yaml:"prompt" json:"prompt"`
	Run       string              `yaml:"run" json:"run"`
	Local     map[string]string   `yaml:"local" json:"local"`
	Source    SourceDef           `yaml:"source" json:"source"`
	OnIdle    ActionDef           `yaml:"on_idle" json:"on_idle"`
	OnDead    ActionDef           `yaml:"on_dead" json:"on_dead"`
	OnError   map[string]ActionDef `yaml:"on_error" json:"on_error"`
	OnPrompt  ActionDef           `yaml:"on_prompt" json:"on_prompt"`
	SupportsMCP bool              `yaml:"supports_mcp" json:"supports_mcp"`
}

// SourceDef declares a workspace source template.
type SourceDef struct {
	Branch string `yaml:"branch,omitempty" json:"branch,omitempty"`
	Ref    string `yaml:"ref,omitempty" json:"ref,omitempty"`
}

// ActionVerb is one of the reaction verbs from the GLOSSARY.
type ActionVerb string

const (
	ActionDone     ActionVerb = "done"
	ActionFail     ActionVerb = "fail"
	ActionEscalate ActionVerb = "escalate"
	ActionNudge    ActionVerb = "nudge"
	ActionGate     ActionVerb = "gate"
	ActionRespond  ActionVerb = "respond"
	ActionRetry    ActionVerb = "retry"
)

// ActionDef is one reaction table entry.
type ActionDef struct {
	Verb     ActionVerb    `yaml:"verb" json:"verb"`
	Message  string        `yaml:"message,omitempty" json:"message,omitempty"`
	Attempts int           `yaml:"attempts,omitempty" json:"attempts,omitempty"`
	Cooldown time.Duration `yaml:"cooldown,omitempty" json:"cooldown,omitempty"`
	Run      string        `yaml:"run,omitempty" json:"run,omitempty"`
	OnPass   string        `yaml:"on_pass,omitempty" json:"on_pass,omitempty"`
	OnFail   string        `yaml:"on_fail,omitempty" json:"on_fail,omitempty"`
	Accept   bool          `yaml:"accept,omitempty" json:"accept,omitempty"`
}

// QueueDef declares a worker-bound queue.
type QueueDef struct {
	Name string `yaml:"name" json:"name"`
	Type string `yaml:"type" json:"type"` // persisted | external
	List string `yaml:"list,omitempty" json:"list,omitempty"`
	Take string `yaml:"take,omitempty" json:"take,omitempty"`
}

// WorkerDef declares a runbook-bound worker.
type WorkerDef struct {
	Name        string `yaml:"name" json:"name"`
	Queue       string `yaml:"queue" json:"queue"`
	Concurrency int    `yaml:"concurrency" json:"concurrency"`
	JobKind     string `yaml:"job_kind" json:"job_kind"`
	Vars        []string `yaml:"vars" json:"vars"`
}

// CronDef declares a recurring trigger.
type CronDef struct {
	Name        string        `yaml:"name" json:"name"`
	Interval    time.Duration `yaml:"interval" json:"interval"`
	TargetKind  string        `yaml:"target_kind" json:"target_kind"`
	TargetName  string        `yaml:"target_name,omitempty" json:"target_name,omitempty"`
	TargetCmd   string        `yaml:"target_cmd,omitempty" json:"target_cmd,omitempty"`
	Concurrency int           `yaml:"concurrency" json:"concurrency"`
}

// CommandDef declares a CLI-invocable command mapping onto a job kind,
// agent, or inline shell.
type CommandDef struct {
	Name    string `yaml:"name" json:"name"`
	Target  string `yaml:"target" json:"target"`
}

// Document is the full runbook content, hashed by SHA-256 for the cache.
type Document struct {
	Hash     string                `json:"hash"`
	Jobs     map[string]JobDef     `yaml:"jobs" json:"jobs"`
	Agents   map[string]AgentDef   `yaml:"agents" json:"agents"`
	Queues   map[string]QueueDef   `yaml:"queues" json:"queues"`
	Workers  map[string]WorkerDef  `yaml:"workers" json:"workers"`
	Crons    map[string]CronDef    `yaml:"crons" json:"crons"`
	Commands map[string]CommandDef `yaml:"commands" json:"commands"`
}

// Hash computes the content-addressed SHA-256 hash of raw runbook bytes.
func Hash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
