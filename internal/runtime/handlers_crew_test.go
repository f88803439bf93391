package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddjobs/oj/internal/domain"
	"github.com/oddjobs/oj/internal/effects"
	"github.com/oddjobs/oj/internal/runbook"
)

const crewRunbook = `
agents:
  reviewer:
    name: reviewer
    runtime: local_process
    prompt: "review {{var.target}}"
`

func TestHandleCrewCreatedSpawnsAgentAndMarksRunning(t *testing.T) {
	rt := newTestRuntime(t)
	doc := runbook.MustParse([]byte(crewRunbook))
	rt.Runbooks.Put(doc)

	out, err := rt.handleCrewCreated(context.Background(), domain.Event{
		Kind: domain.KindCrewCreated,
		Payload: &domain.CrewCreatedPayload{
			CrewID: "crew-1", AgentName: "reviewer", RunbookHash: doc.Hash,
			Vars: map[string]string{"target": "prod"},
		},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)

	spawn := out[0].(effects.SpawnAgent)
	assert.Equal(t, domain.CrewOwner("crew-1"), spawn.Owner)
	assert.Contains(t, spawn.Spec.Prompt, "prod")

	updated := out[1].(effects.Emit)
	p := updated.Event.Payload.(*domain.CrewUpdatedPayload)
	assert.Equal(t, "crew-1", p.CrewID)
	assert.Equal(t, string(domain.CrewRunning), p.Status)
}

func TestHandleCrewCreatedNoOpWhenRunbookMissing(t *testing.T) {
	rt := newTestRuntime(t)
	out, err := rt.handleCrewCreated(context.Background(), domain.Event{
		Kind:    domain.KindCrewCreated,
		Payload: &domain.CrewCreatedPayload{CrewID: "crew-1", AgentName: "reviewer", RunbookHash: "missing"},
	})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestHandleCrewCreatedNoOpWhenAgentNameMissing(t *testing.T) {
	rt := newTestRuntime(t)
	doc := runbook.MustParse([]byte(crewRunbook))
	rt.Runbooks.Put(doc)

	out, err := rt.handleCrewCreated(context.Background(), domain.Event{
		Kind:    domain.KindCrewCreated,
		Payload: &domain.CrewCreatedPayload{CrewID: "crew-1", AgentName: "nonexistent", RunbookHash: doc.Hash},
	})
	require.NoError(t, err)
	assert.Nil(t, out)
}
