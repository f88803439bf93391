package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddjobs/oj/internal/adapters"
	"github.com/oddjobs/oj/internal/adapters/mock"
	"github.com/oddjobs/oj/internal/clock"
	"github.com/oddjobs/oj/internal/decision"
	"github.com/oddjobs/oj/internal/domain"
	"github.com/oddjobs/oj/internal/effects"
	"github.com/oddjobs/oj/internal/eventlog"
	"github.com/oddjobs/oj/internal/runbook"
	"github.com/oddjobs/oj/internal/state"
	"github.com/oddjobs/oj/internal/supervisor"
	"github.com/oddjobs/oj/internal/timers"
)

// newIntegrationExecutor wires a full Executor driven by a real Runtime,
// the same end-to-end shape the daemon itself assembles in cmd/ojd, so
// these tests exercise the boundary scenarios through the actual
// event/effect fixpoint rather than calling handler methods directly.
func newIntegrationExecutor(t *testing.T, rawRunbook string) (*effects.Executor, *runbook.Document) {
	t.Helper()
	executor, doc, _ := newIntegrationExecutorWithRouter(t, rawRunbook, adapters.NewRouter())
	return executor, doc
}

// newIntegrationExecutorWithRouter is the same wiring as
// newIntegrationExecutor but lets a test supply its own adapter router (and
// get it back), for scenarios that need to observe what an adapter
// received.
func newIntegrationExecutorWithRouter(t *testing.T, rawRunbook string, router *adapters.Router) (*effects.Executor, *runbook.Document, *adapters.Router) {
	t.Helper()
	log := testLogger(t)

	doc := runbook.MustParse([]byte(rawRunbook))
	runbooks := runbook.NewCache()
	runbooks.Put(doc)

	dec := decision.NewBuilder()
	wheel := timers.New()
	sup := supervisor.New(wheel, dec, clock.NewTestClock(time.Now()), log)
	rt := New(state.New(), runbooks, sup, dec, log)

	wal, err := eventlog.Open(t.TempDir(), 0, nil, log)
	require.NoError(t, err)
	t.Cleanup(func() { wal.Close() })

	executor := effects.NewExecutor(rt.State, wal, wheel, router, adapters.LogNotifier{}, rt, log)
	return executor, doc, router
}

// Scenario 1 (spec.md §8): happy shell-step completion. init->work->done,
// each a real shell step, expect three ShellExited events and the job
// settling on step "done" with status completed.
func TestBoundaryScenarioHappyShellStepCompletion(t *testing.T) {
	const rb = `
jobs:
  deploy:
    start: init
    steps:
      init:
        run: shell
        cmd: echo init
        on_done: work
      work:
        run: shell
        cmd: echo work
        on_done: done
      done:
        run: shell
        cmd: echo done
`
	executor, doc := newIntegrationExecutor(t, rb)
	ctx := context.Background()

	_, err := executor.Submit(ctx, domain.Event{
		Kind:    domain.KindJobCreated,
		Payload: &domain.JobCreatedPayload{JobID: "job-1", Kind: "deploy", RunbookHash: doc.Hash},
	})
	require.NoError(t, err)
	// Shell effects execute asynchronously and re-enter the executor via
	// EmitNow; Wait blocks until that whole chain (init->work->done) drains.
	executor.Wait()

	job := executor.State().Jobs["job-1"]
	require.NotNil(t, job)
	assert.Equal(t, "done", job.Step)
	assert.Equal(t, domain.StepCompleted, job.StepStatus)
	assert.True(t, job.IsTerminal())

	require.Len(t, job.StepHistory, 3)
	assert.Equal(t, "init", job.StepHistory[0].Step)
	assert.Equal(t, domain.OutcomeSucceeded, job.StepHistory[0].Outcome)
	assert.Equal(t, "work", job.StepHistory[1].Step)
	assert.Equal(t, domain.OutcomeSucceeded, job.StepHistory[1].Outcome)
	assert.Equal(t, "done", job.StepHistory[2].Step)
}

// Scenario 2 (spec.md §8): on_fail cleanup marks the job failed. work
// fails, on_fail routes to cleanup; cleanup succeeds but the chain still
// settles on the "failed" terminal step, never "done".
func TestBoundaryScenarioOnFailCleanupMarksJobFailed(t *testing.T) {
	const rb = `
jobs:
  deploy:
    start: work
    steps:
      work:
        run: shell
        cmd: exit 1
        on_fail: cleanup
      cleanup:
        run: shell
        cmd: exit 0
        on_done: failed
`
	executor, doc := newIntegrationExecutor(t, rb)
	ctx := context.Background()

	_, err := executor.Submit(ctx, domain.Event{
		Kind:    domain.KindJobCreated,
		Payload: &domain.JobCreatedPayload{JobID: "job-1", Kind: "deploy", RunbookHash: doc.Hash},
	})
	require.NoError(t, err)
	executor.Wait()

	job := executor.State().Jobs["job-1"]
	require.NotNil(t, job)
	assert.Equal(t, "failed", job.Step)
	assert.True(t, job.IsTerminal())

	require.Len(t, job.StepHistory, 2)
	assert.Equal(t, "work", job.StepHistory[0].Step)
	assert.Equal(t, domain.OutcomeFailed, job.StepHistory[0].Outcome)
	assert.Equal(t, "cleanup", job.StepHistory[1].Step)
	assert.Equal(t, domain.OutcomeSucceeded, job.StepHistory[1].Outcome)
}

// Scenario 2b (spec.md §8, job-level on_fail): the same failure-cleanup
// shape as TestBoundaryScenarioOnFailCleanupMarksJobFailed, but with
// neither step declaring its own on_fail/on_done — only the job's own
// on_fail names the cleanup step, exercising the job-level fallback table
// rather than a step-level one.
func TestBoundaryScenarioJobLevelOnFailRoutesToCleanup(t *testing.T) {
	const rb = `
jobs:
  deploy:
    start: work
    on_fail: cleanup
    steps:
      work:
        run: shell
        cmd: exit 1
      cleanup:
        run: shell
        cmd: exit 0
`
	executor, doc := newIntegrationExecutor(t, rb)
	ctx := context.Background()

	_, err := executor.Submit(ctx, domain.Event{
		Kind:    domain.KindJobCreated,
		Payload: &domain.JobCreatedPayload{JobID: "job-1", Kind: "deploy", RunbookHash: doc.Hash},
	})
	require.NoError(t, err)
	executor.Wait()

	job := executor.State().Jobs["job-1"]
	require.NotNil(t, job)
	assert.Equal(t, "failed", job.Step)
	assert.Equal(t, domain.StepFailed, job.StepStatus)
	assert.True(t, job.IsTerminal())

	require.Len(t, job.StepHistory, 2)
	assert.Equal(t, "work", job.StepHistory[0].Step)
	assert.Equal(t, domain.OutcomeFailed, job.StepHistory[0].Outcome)
	assert.Equal(t, "cleanup", job.StepHistory[1].Step)
}

// A terminal step with no further routing (work's own on_done left
// undeclared, and no job-level on_done either) must default to "done"
// rather than getting stuck in StepRunning forever — the bug this fallback
// chain exists to close.
func TestBoundaryScenarioMissingOnDoneDefaultsToDone(t *testing.T) {
	const rb = `
jobs:
  deploy:
    start: work
    steps:
      work:
        run: shell
        cmd: exit 0
`
	executor, doc := newIntegrationExecutor(t, rb)
	ctx := context.Background()

	_, err := executor.Submit(ctx, domain.Event{
		Kind:    domain.KindJobCreated,
		Payload: &domain.JobCreatedPayload{JobID: "job-1", Kind: "deploy", RunbookHash: doc.Hash},
	})
	require.NoError(t, err)
	executor.Wait()

	job := executor.State().Jobs["job-1"]
	require.NotNil(t, job)
	assert.Equal(t, "done", job.Step)
	assert.Equal(t, domain.StepCompleted, job.StepStatus)
	assert.True(t, job.IsTerminal())
}

// Scenario 5 (spec.md §8): decision supersession dominance. A Question
// decision for a job blocks a subsequent Approval decision for the same
// owner from landing.
func TestBoundaryScenarioDecisionSupersessionDominance(t *testing.T) {
	executor, _ := newIntegrationExecutor(t, `jobs: {}`)
	ctx := context.Background()
	owner := domain.JobOwner("job-1")

	_, err := executor.Submit(ctx, domain.Event{
		Kind: domain.KindDecisionCreated,
		Payload: &domain.DecisionCreatedPayload{
			DecisionID: "dec-question", Owner: owner, Source: string(domain.SourceQuestion),
		},
	})
	require.NoError(t, err)

	_, err = executor.Submit(ctx, domain.Event{
		Kind: domain.KindDecisionCreated,
		Payload: &domain.DecisionCreatedPayload{
			DecisionID: "dec-approval", Owner: owner, Source: string(domain.SourceApproval),
		},
	})
	require.NoError(t, err)

	st := executor.State()
	_, approvalExists := st.Decisions["dec-approval"]
	assert.False(t, approvalExists, "dominated incoming decision must be dropped entirely")

	question, ok := st.Decisions["dec-question"]
	require.True(t, ok)
	assert.False(t, question.Resolved())
	assert.Empty(t, question.SupersededBy)
}

// Scenario 6 (spec.md §8): smart resume of an alive agent. A JobResume
// carrying a message against a job whose agent is still live delivers the
// message straight to that agent (effects.SendToAgent) rather than
// restarting the step or spawning a new one; the job's step/status are
// untouched and no new event is persisted.
func TestBoundaryScenarioSmartResumeOfAliveAgentIsNoOp(t *testing.T) {
	mockAdapter := mock.New()
	router := adapters.NewRouter()
	router.Register(domain.RuntimeLocalProcess, mockAdapter)
	executor, _, _ := newIntegrationExecutorWithRouter(t, `jobs: {}`, router)
	ctx := context.Background()

	handle, _, err := mockAdapter.Spawn(ctx, adapters.SpawnSpec{Owner: domain.JobOwner("job-1"), Runtime: domain.RuntimeLocalProcess})
	require.NoError(t, err)

	st := executor.State()
	st.Jobs["job-1"] = &domain.Job{ID: "job-1", Step: "work", StepStatus: domain.StepRunning}
	st.AgentOwner[handle] = domain.JobOwner("job-1")
	st.Agents[handle] = &domain.Agent{ID: handle, Runtime: domain.RuntimeLocalProcess}

	produced, err := executor.Submit(ctx, domain.Event{
		Kind:    domain.KindJobResume,
		Payload: &domain.JobResumePayload{JobID: "job-1", Message: "try again"},
	})
	require.NoError(t, err)
	executor.Wait()

	assert.Empty(t, produced, "SendToAgent is fire-and-forget, not an Emit")
	assert.Equal(t, []string{"try again"}, mockAdapter.Sent(handle))

	job := st.Jobs["job-1"]
	assert.Equal(t, "work", job.Step)
	assert.Equal(t, domain.StepRunning, job.StepStatus)
}

// A plain resume (no message, no kill) against a live agent really is a
// no-op: nothing is delivered and nothing restarts.
func TestBoundaryScenarioPlainResumeOfAliveAgentIsNoOp(t *testing.T) {
	mockAdapter := mock.New()
	router := adapters.NewRouter()
	router.Register(domain.RuntimeLocalProcess, mockAdapter)
	executor, _, _ := newIntegrationExecutorWithRouter(t, `jobs: {}`, router)
	ctx := context.Background()

	handle, _, err := mockAdapter.Spawn(ctx, adapters.SpawnSpec{Owner: domain.JobOwner("job-1"), Runtime: domain.RuntimeLocalProcess})
	require.NoError(t, err)

	st := executor.State()
	st.Jobs["job-1"] = &domain.Job{ID: "job-1", Step: "work", StepStatus: domain.StepRunning}
	st.AgentOwner[handle] = domain.JobOwner("job-1")
	st.Agents[handle] = &domain.Agent{ID: handle, Runtime: domain.RuntimeLocalProcess}

	produced, err := executor.Submit(ctx, domain.Event{
		Kind:    domain.KindJobResume,
		Payload: &domain.JobResumePayload{JobID: "job-1"},
	})
	require.NoError(t, err)
	executor.Wait()

	assert.Empty(t, produced)
	assert.Empty(t, mockAdapter.Sent(handle))
}
