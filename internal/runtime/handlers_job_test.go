package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddjobs/oj/internal/clock"
	"github.com/oddjobs/oj/internal/decision"
	"github.com/oddjobs/oj/internal/domain"
	"github.com/oddjobs/oj/internal/effects"
	"github.com/oddjobs/oj/internal/logger"
	"github.com/oddjobs/oj/internal/runbook"
	"github.com/oddjobs/oj/internal/state"
	"github.com/oddjobs/oj/internal/supervisor"
	"github.com/oddjobs/oj/internal/timers"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "console", OutputPath: "stdout"})
	require.NoError(t, err)
	return log
}

const sampleRunbook = `
jobs:
  deploy:
    start: build
    steps:
      build:
        run: shell
        cmd: make build
`

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	runbooks := runbook.NewCache()
	runbooks.Put(runbook.MustParse([]byte(sampleRunbook)))
	dec := decision.NewBuilder()
	sup := supervisor.New(timers.New(), dec, clock.NewTestClock(time.Unix(0, 0)), testLogger(t))
	return New(state.New(), runbooks, sup, dec, testLogger(t))
}

func TestHandleJobCreatedEmitsStepStartedWhenRunbookLoaded(t *testing.T) {
	rt := newTestRuntime(t)
	doc, _ := rt.Runbooks.Get(runbook.Hash([]byte(sampleRunbook)))

	out, err := rt.handleJobCreated(context.Background(), domain.Event{
		Kind:    domain.KindJobCreated,
		Payload: &domain.JobCreatedPayload{JobID: "job-1", Kind: "deploy", RunbookHash: doc.Hash},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	emit := out[0].(effects.Emit)
	assert.Equal(t, domain.KindStepStarted, emit.Event.Kind)
	assert.Equal(t, "build", emit.Event.Payload.(*domain.StepStartedPayload).Step)
}

func TestHandleJobCreatedNoOpWhenRunbookNotLoaded(t *testing.T) {
	rt := newTestRuntime(t)
	out, err := rt.handleJobCreated(context.Background(), domain.Event{
		Kind:    domain.KindJobCreated,
		Payload: &domain.JobCreatedPayload{JobID: "job-1", Kind: "deploy", RunbookHash: "unknown-hash"},
	})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestHandleJobCreatedNoOpWhenJobKindMissing(t *testing.T) {
	rt := newTestRuntime(t)
	doc, _ := rt.Runbooks.Get(runbook.Hash([]byte(sampleRunbook)))
	out, err := rt.handleJobCreated(context.Background(), domain.Event{
		Kind:    domain.KindJobCreated,
		Payload: &domain.JobCreatedPayload{JobID: "job-1", Kind: "nonexistent", RunbookHash: doc.Hash},
	})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestHandleJobResumeRestartsCurrentStepWhenNoLiveAgent(t *testing.T) {
	rt := newTestRuntime(t)
	rt.State.Jobs["job-1"] = &domain.Job{ID: "job-1", Step: "build", StepStatus: domain.StepFailed}

	out, err := rt.handleJobResume(context.Background(), domain.Event{
		Kind:    domain.KindJobResume,
		Payload: &domain.JobResumePayload{JobID: "job-1"},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	emit := out[0].(effects.Emit)
	assert.Equal(t, domain.KindStepStarted, emit.Event.Kind)
	assert.Equal(t, "build", emit.Event.Payload.(*domain.StepStartedPayload).Step)
}

func TestHandleJobResumeIsNoOpWhenAgentStillLive(t *testing.T) {
	rt := newTestRuntime(t)
	rt.State.Jobs["job-1"] = &domain.Job{ID: "job-1", Step: "build"}
	rt.State.AgentOwner["agent-1"] = domain.JobOwner("job-1")

	out, err := rt.handleJobResume(context.Background(), domain.Event{
		Kind:    domain.KindJobResume,
		Payload: &domain.JobResumePayload{JobID: "job-1"},
	})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestHandleJobResumeWithKillProducesKillEffect(t *testing.T) {
	rt := newTestRuntime(t)
	rt.State.Jobs["job-1"] = &domain.Job{ID: "job-1", Step: "build"}
	rt.State.AgentOwner["agent-1"] = domain.JobOwner("job-1")
	rt.State.Agents["agent-1"] = &domain.Agent{ID: "agent-1", Runtime: domain.RuntimeDockerContainer}

	out, err := rt.handleJobResume(context.Background(), domain.Event{
		Kind:    domain.KindJobResume,
		Payload: &domain.JobResumePayload{JobID: "job-1", Kill: true},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	kill := out[0].(effects.KillAgent)
	assert.Equal(t, "agent-1", kill.AgentID)
	assert.Equal(t, domain.RuntimeDockerContainer, kill.Runtime)
}

func TestHandleJobCancelKillsLiveAgentAndAdvancesJob(t *testing.T) {
	rt := newTestRuntime(t)
	rt.State.AgentOwner["agent-1"] = domain.JobOwner("job-1")

	out, err := rt.handleJobCancel(context.Background(), domain.Event{
		Kind:    domain.KindJobCancel,
		Payload: &domain.JobCancelPayload{JobID: "job-1"},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	_, isKill := out[0].(effects.KillAgent)
	assert.True(t, isKill)
	advance := out[1].(effects.Emit)
	assert.Equal(t, domain.KindJobAdvanced, advance.Event.Kind)
	p := advance.Event.Payload.(*domain.JobAdvancedPayload)
	assert.Equal(t, "cancelled", p.Step)
	assert.Equal(t, string(domain.StepCompleted), p.Status)
}

func TestHandleJobCancelWithoutLiveAgentJustAdvances(t *testing.T) {
	rt := newTestRuntime(t)
	out, err := rt.handleJobCancel(context.Background(), domain.Event{
		Kind:    domain.KindJobCancel,
		Payload: &domain.JobCancelPayload{JobID: "job-1"},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestHandleJobSuspendAdvancesToSuspendedStatus(t *testing.T) {
	rt := newTestRuntime(t)
	out, err := rt.handleJobSuspend(context.Background(), domain.Event{
		Kind:    domain.KindJobSuspend,
		Payload: &domain.JobSuspendPayload{JobID: "job-1"},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	advance := out[0].(effects.Emit)
	p := advance.Event.Payload.(*domain.JobAdvancedPayload)
	assert.Equal(t, "suspended", p.Step)
	assert.Equal(t, string(domain.StepSuspended), p.Status)
}
