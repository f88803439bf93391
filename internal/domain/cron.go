package domain

import "time"

// CronStatus is the run state of a cron.
type CronStatus string

const (
	CronRunning CronStatus = "running"
	CronStopped CronStatus = "stopped"
)

// CronTargetKind names what a cron fires into.
type CronTargetKind string

const (
	CronTargetJob   CronTargetKind = "job"
	CronTargetAgent CronTargetKind = "agent"
	CronTargetShell CronTargetKind = "shell"
)

// CronTarget is the tagged union Job(name) | Agent(name) | Shell(cmd).
type CronTarget struct {
	Kind CronTargetKind `json:"kind"`
	Name string         `json:"name,omitempty"`
	Cmd  string         `json:"cmd,omitempty"`
}

// Cron is a recurring trigger (spec.md §3).
type Cron struct {
	Name        string        `json:"name"`
	Namespace   string        `json:"namespace"`
	RunbookHash string        `json:"runbook_hash"`
	Interval    time.Duration `json:"interval"`
	Target      CronTarget    `json:"target"`
	Status      CronStatus    `json:"status"`
	Concurrency int           `json:"concurrency"`
	Project     string        `json:"project"`

	ActiveCount int `json:"-"`
}

func (c *Cron) ScopedName() string {
	return ScopedName(c.Namespace, c.Name)
}
