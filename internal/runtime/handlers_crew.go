package runtime

import (
	"context"

	"github.com/oddjobs/oj/internal/domain"
	"github.com/oddjobs/oj/internal/effects"
	"github.com/oddjobs/oj/internal/supervisor"
)

// handleCrewCreated spawns the crew's agent immediately — a crew has no
// step graph, just one agent invocation (spec.md §3).
func (rt *Runtime) handleCrewCreated(ctx context.Context, e domain.Event) ([]effects.Effect, error) {
	p := e.Payload.(*domain.CrewCreatedPayload)
	doc, ok := rt.Runbooks.Get(p.RunbookHash)
	if !ok {
		return nil, nil
	}
	def, ok := doc.Agents[p.AgentName]
	if !ok {
		return nil, nil
	}
	effs, err := supervisor.BuildSpawnEffects(ctx, domain.CrewOwner(p.CrewID), def, p.Vars, p.Cwd)
	if err != nil {
		return nil, err
	}
	return append(effs, effects.Emit{Event: domain.Event{
		Kind:    domain.KindCrewUpdated,
		Payload: &domain.CrewUpdatedPayload{CrewID: p.CrewID, Status: string(domain.CrewRunning)},
	}}), nil
}
