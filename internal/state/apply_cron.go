package state

import "github.com/oddjobs/oj/internal/domain"

func applyCronStarted(s *State, e domain.Event) {
	p := e.Payload.(*domain.CronStartedPayload)
	key := domain.ScopedName(p.Namespace, p.Name)
	c, ok := s.Crons[key]
	if !ok {
		c = &domain.Cron{Name: p.Name, Namespace: p.Namespace}
		s.Crons[key] = c
	}
	c.RunbookHash = p.RunbookHash
	c.Interval = p.Interval
	c.Target = parseCronTarget(p.Target)
	c.Concurrency = p.Concurrency
	c.Project = p.Project
	c.Status = domain.CronRunning
}

func applyCronStopped(s *State, e domain.Event) {
	p := e.Payload.(*domain.CronStoppedPayload)
	key := domain.ScopedName(p.Namespace, p.Name)
	if c, ok := s.Crons[key]; ok {
		c.Status = domain.CronStopped
	}
}

// parseCronTarget decodes the "kind:name" / "shell:cmd" wire encoding used
// by CronStartedPayload.Target, mirroring runbook.CronDef's own
// TargetKind/TargetName/TargetCmd split at the point the cron is started.
func parseCronTarget(raw string) domain.CronTarget {
	for i := 0; i < len(raw); i++ {
		if raw[i] == ':' {
			kind := domain.CronTargetKind(raw[:i])
			rest := raw[i+1:]
			if kind == domain.CronTargetShell {
				return domain.CronTarget{Kind: kind, Cmd: rest}
			}
			return domain.CronTarget{Kind: kind, Name: rest}
		}
	}
	return domain.CronTarget{Kind: domain.CronTargetJob, Name: raw}
}
