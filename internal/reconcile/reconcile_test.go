package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddjobs/oj/internal/adapters"
	"github.com/oddjobs/oj/internal/adapters/mock"
	"github.com/oddjobs/oj/internal/domain"
	"github.com/oddjobs/oj/internal/effects"
	"github.com/oddjobs/oj/internal/logger"
	"github.com/oddjobs/oj/internal/state"
	"github.com/oddjobs/oj/internal/timers"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "console", OutputPath: "stdout"})
	require.NoError(t, err)
	return log
}

func TestReconcileDeclaresUnknownHandleGone(t *testing.T) {
	st := state.New()
	st.Agents["agent-1"] = &domain.Agent{ID: "agent-1", Owner: domain.JobOwner("job-1"), Runtime: domain.RuntimeLocalProcess}
	st.AgentOwner["agent-1"] = domain.JobOwner("job-1")

	router := adapters.NewRouter()
	router.Register(domain.RuntimeLocalProcess, mock.New())
	wheel := timers.New()

	out := Reconcile(context.Background(), st, router, wheel, testLogger(t))

	require.Len(t, out, 1)
	emit, ok := out[0].(effects.Emit)
	require.True(t, ok)
	assert.Equal(t, domain.KindAgentGone, emit.Event.Kind)
	assert.Equal(t, "agent-1", emit.Event.Payload.(*domain.AgentGonePayload).AgentID)
}

func TestReconcileDeclaresGoneWhenNoAdapterRegistered(t *testing.T) {
	st := state.New()
	st.Agents["agent-1"] = &domain.Agent{ID: "agent-1", Owner: domain.JobOwner("job-1"), Runtime: domain.RuntimeDockerContainer}

	router := adapters.NewRouter() // nothing registered
	wheel := timers.New()

	out := Reconcile(context.Background(), st, router, wheel, testLogger(t))

	require.Len(t, out, 1)
	emit := out[0].(effects.Emit)
	assert.Equal(t, domain.KindAgentGone, emit.Event.Kind)
}

func TestReconcileReArmsLivenessTimerOnSuccessfulReconnect(t *testing.T) {
	st := state.New()
	owner := domain.JobOwner("job-1")

	m := mock.New()
	// The mock's first minted handle is deterministically "mock-1"; using
	// it as both the agent id and the adapter handle lets Reconcile's
	// IsAlive(ctx, agentID) probe find it.
	handle, _, err := m.Spawn(context.Background(), adapters.SpawnSpec{AgentID: "mock-1", Owner: owner, Runtime: domain.RuntimeLocalProcess})
	require.NoError(t, err)
	require.Equal(t, "mock-1", handle)

	st.AgentOwner[handle] = owner
	st.Agents[handle] = &domain.Agent{ID: handle, Owner: owner, Runtime: domain.RuntimeLocalProcess}

	router := adapters.NewRouter()
	router.Register(domain.RuntimeLocalProcess, m)
	wheel := timers.New()

	out := Reconcile(context.Background(), st, router, wheel, testLogger(t))

	assert.Empty(t, out)
	assert.True(t, wheel.Has(timers.LivenessTimerID(owner.String())))
}

func TestReconcileArmsCronTimerForRunningCrons(t *testing.T) {
	st := state.New()
	st.Crons["nightly"] = &domain.Cron{Name: "nightly", Status: domain.CronRunning}
	st.Crons["paused"] = &domain.Cron{Name: "paused", Status: domain.CronStopped}

	router := adapters.NewRouter()
	wheel := timers.New()

	Reconcile(context.Background(), st, router, wheel, testLogger(t))

	assert.True(t, wheel.Has(timers.CronTimerID("nightly")))
	assert.False(t, wheel.Has(timers.CronTimerID("paused")))
}

func TestReconcileReArmedTimersFireImmediately(t *testing.T) {
	st := state.New()
	st.Crons["nightly"] = &domain.Cron{Name: "nightly", Status: domain.CronRunning}
	router := adapters.NewRouter()
	wheel := timers.New()

	Reconcile(context.Background(), st, router, wheel, testLogger(t))

	fired := wheel.Poll(time.Now())
	require.Len(t, fired, 1)
	assert.Equal(t, "cron:nightly", fired[0].Payload.(*domain.TimerStartPayload).ID)
}

func TestReconcileReEmitsRunbookLoadedAndWorkerStartedForRunningWorkers(t *testing.T) {
	st := state.New()
	st.Workers["deployer"] = &domain.Worker{
		Name: "deployer", Queue: "deploys", QueueType: domain.QueuePersisted,
		Concurrency: 2, Status: domain.WorkerRunning, RunbookHash: "hash-1",
	}
	st.Workers["stopped"] = &domain.Worker{Name: "stopped", Status: domain.WorkerStopped}

	router := adapters.NewRouter()
	wheel := timers.New()
	out := Reconcile(context.Background(), st, router, wheel, testLogger(t))

	var kinds []domain.EventKind
	for _, eff := range out {
		kinds = append(kinds, eff.(effects.Emit).Event.Kind)
	}
	assert.ElementsMatch(t, []domain.EventKind{domain.KindRunbookLoaded, domain.KindWorkerStarted}, kinds)
	assert.True(t, wheel.Has(timers.LivenessTimerID("deployer")))
}

func TestReconcileDedupesRunbookLoadedAcrossWorkersAndCrons(t *testing.T) {
	st := state.New()
	st.Workers["w1"] = &domain.Worker{Name: "w1", Status: domain.WorkerRunning, RunbookHash: "shared-hash"}
	st.Crons["c1"] = &domain.Cron{Name: "c1", Status: domain.CronRunning, RunbookHash: "shared-hash"}

	router := adapters.NewRouter()
	wheel := timers.New()
	out := Reconcile(context.Background(), st, router, wheel, testLogger(t))

	var runbookLoaded int
	for _, eff := range out {
		if eff.(effects.Emit).Event.Kind == domain.KindRunbookLoaded {
			runbookLoaded++
		}
	}
	assert.Equal(t, 1, runbookLoaded)
}

func TestReconcileFailsJobWithNoAgentEverRecordedForCurrentStep(t *testing.T) {
	st := state.New()
	job := domain.NewJob("job-1")
	job.Step = "build"
	job.StepStatus = domain.StepRunning
	job.StepHistory = []domain.StepRecord{{Step: "build", Outcome: domain.OutcomeRunning}}
	st.Jobs["job-1"] = job

	router := adapters.NewRouter()
	wheel := timers.New()
	out := Reconcile(context.Background(), st, router, wheel, testLogger(t))

	require.Len(t, out, 1)
	emit := out[0].(effects.Emit)
	assert.Equal(t, domain.KindJobAdvanced, emit.Event.Kind)
	p := emit.Event.Payload.(*domain.JobAdvancedPayload)
	assert.Equal(t, "job-1", p.JobID)
	assert.Equal(t, "failed", p.Step)
}

func TestReconcileLeavesWaitingJobsAlone(t *testing.T) {
	st := state.New()
	job := domain.NewJob("job-1")
	job.Step = "review"
	job.StepStatus = domain.StepWaiting
	job.WaitingOn = "decision-1"
	st.Jobs["job-1"] = job

	router := adapters.NewRouter()
	wheel := timers.New()
	out := Reconcile(context.Background(), st, router, wheel, testLogger(t))

	assert.Empty(t, out)
}

func TestReconcileSkipsJobsWhoseAgentIsAlreadyLiveTracked(t *testing.T) {
	st := state.New()
	job := domain.NewJob("job-1")
	job.Step = "build"
	job.StepStatus = domain.StepRunning
	job.StepHistory = []domain.StepRecord{{Step: "build", Outcome: domain.OutcomeRunning, AgentID: "agent-1"}}
	st.Jobs["job-1"] = job
	st.Agents["agent-1"] = &domain.Agent{ID: "agent-1", Owner: domain.JobOwner("job-1"), Runtime: domain.RuntimeLocalProcess}
	st.AgentOwner["agent-1"] = domain.JobOwner("job-1")

	router := adapters.NewRouter()
	router.Register(domain.RuntimeLocalProcess, mock.New())
	wheel := timers.New()
	out := Reconcile(context.Background(), st, router, wheel, testLogger(t))

	// The agent-liveness loop handles agent-1 (declares it gone, since the
	// mock adapter has no record of it); the job loop must not pile on a
	// second, redundant failure for the same owner.
	require.Len(t, out, 1)
	assert.Equal(t, domain.KindAgentGone, out[0].(effects.Emit).Event.Kind)
}

func TestReconcileFailsCrewWithNoAgentID(t *testing.T) {
	st := state.New()
	crew := domain.NewCrew("crew-1")
	crew.Status = domain.CrewStarting
	st.Crews["crew-1"] = crew

	router := adapters.NewRouter()
	wheel := timers.New()
	out := Reconcile(context.Background(), st, router, wheel, testLogger(t))

	require.Len(t, out, 1)
	emit := out[0].(effects.Emit)
	assert.Equal(t, domain.KindCrewUpdated, emit.Event.Kind)
	p := emit.Event.Payload.(*domain.CrewUpdatedPayload)
	assert.Equal(t, "crew-1", p.CrewID)
	assert.Equal(t, string(domain.CrewFailed), p.Status)
}

func TestReconcileDeletesOrphanedPendingWorkspace(t *testing.T) {
	st := state.New()
	st.Workspaces["ws-1"] = &domain.Workspace{ID: "ws-1", Status: domain.WorkspacePending, Owner: domain.JobOwner("missing-job")}
	st.Workspaces["ws-2"] = &domain.Workspace{ID: "ws-2", Status: domain.WorkspacePending, Owner: domain.JobOwner("job-1")}
	st.Jobs["job-1"] = domain.NewJob("job-1")
	st.Jobs["job-1"].Step = "build"

	router := adapters.NewRouter()
	wheel := timers.New()
	out := Reconcile(context.Background(), st, router, wheel, testLogger(t))

	var deleted []string
	for _, eff := range out {
		if emit, ok := eff.(effects.Emit); ok && emit.Event.Kind == domain.KindWorkspaceDeleted {
			deleted = append(deleted, emit.Event.Payload.(*domain.WorkspaceDeletedPayload).WorkspaceID)
		}
	}
	assert.Equal(t, []string{"ws-1"}, deleted)
}
