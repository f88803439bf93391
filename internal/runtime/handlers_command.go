package runtime

import (
	"context"

	"github.com/google/uuid"

	"github.com/oddjobs/oj/internal/domain"
	"github.com/oddjobs/oj/internal/effects"
)

// handleCommandRun resolves a CLI-invoked command name against the
// runbook's command table and starts the job or crew it targets. The
// command's declared target is, by convention, a job kind name; a crew-
// style standalone agent invocation is distinguished by the runbook
// author prefixing the target with "agent:".
func (rt *Runtime) handleCommandRun(_ context.Context, e domain.Event) ([]effects.Effect, error) {
	p := e.Payload.(*domain.CommandRunPayload)

	const agentPrefixLen = len("agent:")
	if len(p.Command) > agentPrefixLen && p.Command[:agentPrefixLen] == "agent:" {
		crewID := uuid.NewString()
		return []effects.Effect{effects.Emit{Event: domain.Event{
			Kind: domain.KindCrewCreated,
			Payload: &domain.CrewCreatedPayload{
				CrewID:      crewID,
				AgentName:   p.Command[agentPrefixLen:],
				CommandName: p.Command,
				Project:     p.Project,
				Cwd:         p.Cwd,
				Vars:        p.Args,
			},
		}}}, nil
	}

	jobID := uuid.NewString()
	return []effects.Effect{effects.Emit{Event: domain.Event{
		Kind: domain.KindJobCreated,
		Payload: &domain.JobCreatedPayload{
			JobID:   jobID,
			Kind:    p.Command,
			Project: p.Project,
			Vars:    p.Args,
		},
	}}}, nil
}
