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

const agentReactionRunbook = `
jobs:
  deploy:
    start: build
    steps:
      build:
        run: agent
        agent: reviewer
agents:
  reviewer:
    name: reviewer
    runtime: local_process
    prompt: "go"
    on_idle:
      verb: escalate
      message: "idle with nothing configured"
    on_dead:
      verb: retry
      run: build
    on_error:
      timeout:
        verb: fail
        message: "timed out"
    on_prompt:
      verb: escalate
      message: "unexpected prompt"
`

func newAgentReactionRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt := newTestRuntime(t)
	doc := runbook.MustParse([]byte(agentReactionRunbook))
	rt.Runbooks.Put(doc)
	rt.State.Jobs["job-1"] = &domain.Job{ID: "job-1", Kind: "deploy", Step: "build", RunbookHash: doc.Hash, Tracker: domain.NewActionTracker()}
	rt.State.AgentOwner["agent-1"] = domain.JobOwner("job-1")
	return rt
}

func TestHandleAgentSpawnedIsNoOp(t *testing.T) {
	rt := newTestRuntime(t)
	out, err := rt.handleAgentSpawned(context.Background(), domain.Event{})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestHandleAgentSpawnFailedRaisesDeadDecision(t *testing.T) {
	rt := newTestRuntime(t)
	out, err := rt.handleAgentSpawnFailed(context.Background(), domain.Event{
		Kind:    domain.KindAgentSpawnFailed,
		Payload: &domain.AgentSpawnFailedPayload{Owner: domain.JobOwner("job-1"), Reason: "exec: not found"},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	emit := out[0].(effects.Emit)
	assert.Equal(t, domain.KindDecisionCreated, emit.Event.Kind)
	p := emit.Event.Payload.(*domain.DecisionCreatedPayload)
	assert.Equal(t, string(domain.SourceDead), p.Source)
}

func TestHandleAgentIdleEscalatesPerRunbookAction(t *testing.T) {
	rt := newAgentReactionRuntime(t)
	out, err := rt.handleAgentIdle(context.Background(), domain.Event{
		Kind:    domain.KindAgentIdle,
		Payload: &domain.AgentStatePayload{AgentID: "agent-1"},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	emit := out[0].(effects.Emit)
	p := emit.Event.Payload.(*domain.DecisionCreatedPayload)
	assert.Equal(t, string(domain.SourceEscalation), p.Source)
}

func TestHandleAgentIdleNoOpWhenOwnerUnknown(t *testing.T) {
	rt := newAgentReactionRuntime(t)
	out, err := rt.handleAgentIdle(context.Background(), domain.Event{
		Kind:    domain.KindAgentIdle,
		Payload: &domain.AgentStatePayload{AgentID: "unknown-agent"},
	})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestHandleAgentFailedRunsFailForConfiguredCategory(t *testing.T) {
	rt := newAgentReactionRuntime(t)
	out, err := rt.handleAgentFailed(context.Background(), domain.Event{
		Kind:    domain.KindAgentFailed,
		Payload: &domain.AgentFailedPayload{AgentID: "agent-1", Category: "timeout", Detail: "deadline exceeded"},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	emit := out[0].(effects.Emit)
	p := emit.Event.Payload.(*domain.JobAdvancedPayload)
	assert.Equal(t, "failed", p.Step)
}

func TestHandleAgentFailedFallsBackToEscalateForUnknownCategory(t *testing.T) {
	rt := newAgentReactionRuntime(t)
	out, err := rt.handleAgentFailed(context.Background(), domain.Event{
		Kind:    domain.KindAgentFailed,
		Payload: &domain.AgentFailedPayload{AgentID: "agent-1", Category: "oom", Detail: "killed"},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	emit := out[0].(effects.Emit)
	p := emit.Event.Payload.(*domain.DecisionCreatedPayload)
	assert.Equal(t, string(domain.SourceEscalation), p.Source)
}

func TestHandleAgentGoneRunsOnDeadRetry(t *testing.T) {
	rt := newAgentReactionRuntime(t)
	out, err := rt.handleAgentGone(context.Background(), domain.Event{
		Kind:    domain.KindAgentGone,
		Payload: &domain.AgentGonePayload{AgentID: "agent-1"},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	emit := out[0].(effects.Emit)
	assert.Equal(t, domain.KindStepStarted, emit.Event.Kind)
	assert.Equal(t, "build", emit.Event.Payload.(*domain.StepStartedPayload).Step)
}

func TestHandleAgentGoneAcceptsExitedPayloadVariant(t *testing.T) {
	rt := newAgentReactionRuntime(t)
	out, err := rt.handleAgentGone(context.Background(), domain.Event{
		Kind:    domain.KindAgentExited,
		Payload: &domain.AgentExitedPayload{AgentID: "agent-1"},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestHandleAgentPromptRaisesQuestionDecision(t *testing.T) {
	rt := newAgentReactionRuntime(t)
	out, err := rt.handleAgentPrompt(context.Background(), domain.Event{
		Kind: domain.KindAgentPrompt,
		Payload: &domain.AgentPromptPayload{
			AgentID: "agent-1", PromptType: "question",
			Questions: []domain.QuestionData{{Text: "proceed?", Options: []string{"yes", "no"}}},
		},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	emit := out[0].(effects.Emit)
	p := emit.Event.Payload.(*domain.DecisionCreatedPayload)
	assert.Equal(t, string(domain.SourceQuestion), p.Source)
	require.Len(t, p.Questions, 1)
	assert.Equal(t, "proceed?", p.Questions[0].Text)
}

func TestHandleAgentPromptRaisesPlanDecision(t *testing.T) {
	rt := newAgentReactionRuntime(t)
	out, err := rt.handleAgentPrompt(context.Background(), domain.Event{
		Kind: domain.KindAgentPrompt,
		Payload: &domain.AgentPromptPayload{
			AgentID: "agent-1", PromptType: "plan",
			Input: map[string]interface{}{"plan": "1. build\n2. deploy"},
		},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	emit := out[0].(effects.Emit)
	p := emit.Event.Payload.(*domain.DecisionCreatedPayload)
	assert.Equal(t, string(domain.SourcePlan), p.Source)
	assert.Equal(t, "1. build\n2. deploy", p.Context)
}

func TestHandleAgentPromptFallsBackToOnPromptAction(t *testing.T) {
	rt := newAgentReactionRuntime(t)
	out, err := rt.handleAgentPrompt(context.Background(), domain.Event{
		Kind:    domain.KindAgentPrompt,
		Payload: &domain.AgentPromptPayload{AgentID: "agent-1", PromptType: "status"},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	emit := out[0].(effects.Emit)
	p := emit.Event.Payload.(*domain.DecisionCreatedPayload)
	assert.Equal(t, string(domain.SourceEscalation), p.Source)
}
