package state

import (
	"github.com/oddjobs/oj/internal/domain"
)

func applyJobCreated(s *State, e domain.Event) {
	p := e.Payload.(*domain.JobCreatedPayload)
	if _, exists := s.Jobs[p.JobID]; exists {
		// Idempotent: a second creation of a job with the same id after
		// crash recovery is a no-op (spec.md §8 round-trip property).
		return
	}
	job := domain.NewJob(p.JobID)
	job.Kind = p.Kind
	job.Project = p.Project
	job.Vars = p.Vars
	job.RunbookHash = p.RunbookHash
	job.CronName = p.CronName
	job.CreatedAt = e.At
	s.Jobs[p.JobID] = job
}

func applyStepStarted(s *State, e domain.Event) {
	p := e.Payload.(*domain.StepStartedPayload)
	job, ok := s.Jobs[p.JobID]
	if !ok {
		return
	}
	job.Step = p.Step
	job.StepStatus = domain.StepRunning
	job.WaitingOn = ""
	job.StepVisits[p.Step]++
	job.StepHistory = append(job.StepHistory, domain.StepRecord{
		Step:      p.Step,
		StartedAt: e.At,
		Outcome:   domain.OutcomeRunning,
	})
	job.LastAppliedSeq = e.Seq
}

// applyJobAdvanced is the generic "step transitioned" event: used both for
// shell/agent step completions routed by internal/runtime and for the
// circuit-breaker / terminal transitions it computes.
func applyJobAdvanced(s *State, e domain.Event) {
	p := e.Payload.(*domain.JobAdvancedPayload)
	job, ok := s.Jobs[p.JobID]
	if !ok {
		return
	}

	if len(job.StepHistory) > 0 {
		last := &job.StepHistory[len(job.StepHistory)-1]
		if last.FinishedAt == nil {
			now := e.At
			last.FinishedAt = &now
			if p.Status == string(domain.StepFailed) {
				last.Outcome = domain.OutcomeFailed
			} else {
				last.Outcome = domain.OutcomeSucceeded
			}
			job.StepDurations[last.Step] += now.Sub(last.StartedAt)
		}
	}

	job.Step = p.Step
	job.StepStatus = domain.StepStatus(p.Status)
	if job.StepStatus != domain.StepWaiting {
		job.WaitingOn = ""
	}
	if p.Failing {
		job.Failing = true
	}
	if p.Cancelling {
		job.Cancelling = true
	}
	if p.Suspending {
		job.Suspending = true
	}

	if isTerminalStep(p.Step) {
		job.Cancelling = false
		job.Failing = false
		job.Suspending = false
		removeUnresolvedDecisionsForOwner(s, domain.JobOwner(job.ID))
		killAgentsOwnedBy(s, domain.JobOwner(job.ID))
	}
	job.LastAppliedSeq = e.Seq
}

func applyJobDeleted(s *State, e domain.Event) {
	p := e.Payload.(*domain.JobDeletedPayload)
	owner := domain.JobOwner(p.JobID)
	removeAllDecisionsForOwner(s, owner)
	killAgentsOwnedBy(s, owner)
	delete(s.Jobs, p.JobID)
}

// MarkWaiting sets a job's step_status to waiting(decisionId), enforcing
// the invariant "a job with at least one unresolved decision has
// step_status = waiting(decisionId)" (spec.md §3).
func MarkWaiting(job *domain.Job, decisionID string) {
	job.StepStatus = domain.StepWaiting
	job.WaitingOn = decisionID
}

// RecordStepVisit increments the visit counter for a step and reports
// whether the circuit breaker (MaxStepVisits) has now tripped.
func RecordStepVisit(job *domain.Job, step string) (tripped bool) {
	job.StepVisits[step]++
	return job.StepVisits[step] > domain.MaxStepVisits
}
