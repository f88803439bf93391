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

const stepRunbook = `
jobs:
  deploy:
    start: build
    steps:
      build:
        run: shell
        cmd: make build
        on_done: notify
        on_fail: rollback
      notify:
        run: agent
        agent: reviewer
agents:
  reviewer:
    name: reviewer
    runtime: local_process
    prompt: "review {{var.target}}"
`

func newStepTestRuntime(t *testing.T) (*Runtime, string) {
	t.Helper()
	rt := newTestRuntime(t)
	doc := runbook.MustParse([]byte(stepRunbook))
	rt.Runbooks.Put(doc)
	return rt, doc.Hash
}

func TestHandleStepStartedEmitsShellEffect(t *testing.T) {
	rt, hash := newStepTestRuntime(t)
	rt.State.Jobs["job-1"] = &domain.Job{ID: "job-1", Kind: "deploy", RunbookHash: hash, Cwd: "/work"}

	out, err := rt.handleStepStarted(context.Background(), domain.Event{
		Kind:    domain.KindStepStarted,
		Payload: &domain.StepStartedPayload{JobID: "job-1", Step: "build"},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	shell := out[0].(effects.Shell)
	assert.Equal(t, "make build", shell.Cmd)
	assert.Equal(t, "/work", shell.Cwd)
}

func TestHandleStepStartedSpawnsAgentForAgentStep(t *testing.T) {
	rt, hash := newStepTestRuntime(t)
	rt.State.Jobs["job-1"] = &domain.Job{ID: "job-1", Kind: "deploy", RunbookHash: hash, Vars: map[string]string{"target": "prod"}}

	out, err := rt.handleStepStarted(context.Background(), domain.Event{
		Kind:    domain.KindStepStarted,
		Payload: &domain.StepStartedPayload{JobID: "job-1", Step: "notify"},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	spawn := out[0].(effects.SpawnAgent)
	assert.Equal(t, domain.JobOwner("job-1"), spawn.Owner)
	assert.Contains(t, spawn.Spec.Prompt, "prod")
}

func TestHandleStepStartedTripsCircuitBreakerOnExcessiveVisits(t *testing.T) {
	rt, hash := newStepTestRuntime(t)
	rt.State.Jobs["job-1"] = &domain.Job{
		ID: "job-1", Kind: "deploy", RunbookHash: hash,
		StepVisits: map[string]int{"build": domain.MaxStepVisits + 1},
	}

	out, err := rt.handleStepStarted(context.Background(), domain.Event{
		Kind:    domain.KindStepStarted,
		Payload: &domain.StepStartedPayload{JobID: "job-1", Step: "build"},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	advance := out[0].(effects.Emit)
	p := advance.Event.Payload.(*domain.JobAdvancedPayload)
	assert.Equal(t, string(domain.StepFailed), p.Status)
}

func TestHandleStepStartedNoOpWhenJobUnknown(t *testing.T) {
	rt, _ := newStepTestRuntime(t)
	out, err := rt.handleStepStarted(context.Background(), domain.Event{
		Kind:    domain.KindStepStarted,
		Payload: &domain.StepStartedPayload{JobID: "missing", Step: "build"},
	})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestHandleShellExitedAdvancesOnSuccess(t *testing.T) {
	rt, hash := newStepTestRuntime(t)
	rt.State.Jobs["job-1"] = &domain.Job{ID: "job-1", Kind: "deploy", RunbookHash: hash}

	out, err := rt.handleShellExited(context.Background(), domain.Event{
		Kind:    domain.KindShellExited,
		Payload: &domain.ShellExitedPayload{JobID: "job-1", Step: "build", ExitCode: 0},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	advance := out[0].(effects.Emit)
	p := advance.Event.Payload.(*domain.JobAdvancedPayload)
	assert.Equal(t, "notify", p.Step)
	assert.Equal(t, string(domain.StepCompleted), p.Status)
	started := out[1].(effects.Emit)
	assert.Equal(t, domain.KindStepStarted, started.Event.Kind)
}

func TestHandleShellExitedAdvancesOnFailure(t *testing.T) {
	rt, hash := newStepTestRuntime(t)
	rt.State.Jobs["job-1"] = &domain.Job{ID: "job-1", Kind: "deploy", RunbookHash: hash}

	out, err := rt.handleShellExited(context.Background(), domain.Event{
		Kind:    domain.KindShellExited,
		Payload: &domain.ShellExitedPayload{JobID: "job-1", Step: "build", ExitCode: 1},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	advance := out[0].(effects.Emit)
	p := advance.Event.Payload.(*domain.JobAdvancedPayload)
	assert.Equal(t, "rollback", p.Step)
	assert.Equal(t, string(domain.StepFailed), p.Status)
}

func TestHandleJobAdvancedIsPureBookkeeping(t *testing.T) {
	rt, _ := newStepTestRuntime(t)
	out, err := rt.handleJobAdvanced(context.Background(), domain.Event{Kind: domain.KindJobAdvanced})
	require.NoError(t, err)
	assert.Nil(t, out)
}
