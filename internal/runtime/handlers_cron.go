package runtime

import (
	"context"

	"github.com/google/uuid"

	"github.com/oddjobs/oj/internal/domain"
	"github.com/oddjobs/oj/internal/effects"
)

// handleCronFired starts whatever the cron's target names, subject to its
// concurrency cap (spec.md §3 Cron). Job/agent targets create a fresh
// job/crew; a shell target runs directly without a job wrapper.
func (rt *Runtime) handleCronFired(_ context.Context, e domain.Event) ([]effects.Effect, error) {
	p := e.Payload.(*domain.CronFiredPayload)
	key := domain.ScopedName(p.Namespace, p.Name)
	c, ok := rt.State.Crons[key]
	if !ok || c.Status != domain.CronRunning {
		return nil, nil
	}
	if c.Concurrency > 0 && c.ActiveCount >= c.Concurrency {
		return nil, nil
	}

	switch c.Target.Kind {
	case domain.CronTargetJob:
		return []effects.Effect{effects.Emit{Event: domain.Event{
			Kind: domain.KindJobCreated,
			Payload: &domain.JobCreatedPayload{
				JobID: uuid.NewString(), Kind: c.Target.Name, Project: c.Project,
				RunbookHash: c.RunbookHash, CronName: c.Name,
			},
		}}}, nil
	case domain.CronTargetAgent:
		return []effects.Effect{effects.Emit{Event: domain.Event{
			Kind: domain.KindCrewCreated,
			Payload: &domain.CrewCreatedPayload{
				CrewID: uuid.NewString(), AgentName: c.Target.Name, Project: c.Project,
				RunbookHash: c.RunbookHash,
			},
		}}}, nil
	case domain.CronTargetShell:
		return []effects.Effect{effects.Shell{Cmd: c.Target.Cmd, Cwd: c.Project}}, nil
	}
	return nil, nil
}
