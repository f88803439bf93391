// Package state implements the pure event→state fold (spec.md §4.2): no
// I/O, no randomness, no clock reads. One apply<Kind> method per event kind
// in its own file, dispatched from Apply's switch — mirrors the teacher's
// one-handler-per-concern file layout (event_handlers_agent.go,
// event_handlers_git.go, ...).
package state

import (
	"sort"
	"strings"

	"github.com/oddjobs/oj/internal/domain"
	"github.com/oddjobs/oj/internal/ojerr"
	"github.com/oddjobs/oj/internal/runbook"
)

// State is the single in-memory fold of the whole persisted event log.
type State struct {
	Jobs       map[string]*domain.Job
	Crews      map[string]*domain.Crew
	Agents     map[string]*domain.Agent
	AgentOwner map[string]domain.OwnerID
	Workspaces map[string]*domain.Workspace
	QueueItems map[string]*domain.QueueItem
	Workers    map[string]*domain.Worker // keyed by ScopedName
	Crons      map[string]*domain.Cron   // keyed by ScopedName
	Decisions  map[string]*domain.Decision
	Runbooks   map[string]*runbook.Document // keyed by content hash

	// ownerDecisionStats recovers crates/daemon/src/storage/state_tests/
	// decisions.rs's per-owner decision counter (SPEC_FULL.md §5.1):
	// purely informational, not part of any invariant.
	ownerDecisionStats map[string]int

	LastAppliedSeq uint64
}

// New returns an empty materialised state (the fold's zero value).
func New() *State {
	return &State{
		Jobs:               make(map[string]*domain.Job),
		Crews:              make(map[string]*domain.Crew),
		Agents:             make(map[string]*domain.Agent),
		AgentOwner:         make(map[string]domain.OwnerID),
		Workspaces:         make(map[string]*domain.Workspace),
		QueueItems:         make(map[string]*domain.QueueItem),
		Workers:            make(map[string]*domain.Worker),
		Crons:              make(map[string]*domain.Cron),
		Decisions:          make(map[string]*domain.Decision),
		Runbooks:           make(map[string]*runbook.Document),
		ownerDecisionStats: make(map[string]int),
	}
}

// Apply folds one event into the state in place. The caller is assumed to
// own the state exclusively for the duration of the call — the executor
// clones-on-write only at snapshot time, not per event (SPEC_FULL.md §6.3).
func Apply(s *State, e domain.Event) {
	switch e.Kind {
	case domain.KindJobCreated:
		applyJobCreated(s, e)
	case domain.KindJobAdvanced:
		applyJobAdvanced(s, e)
	case domain.KindStepStarted:
		applyStepStarted(s, e)
	case domain.KindJobDeleted:
		applyJobDeleted(s, e)

	case domain.KindAgentSpawned:
		applyAgentSpawned(s, e)
	case domain.KindAgentSpawnFailed:
		applyAgentSpawnFailed(s, e)
	case domain.KindAgentWorking, domain.KindAgentWaiting, domain.KindAgentIdle,
		domain.KindAgentStopBlocked, domain.KindAgentStopAllowed:
		applyAgentStateEvent(s, e)
	case domain.KindAgentFailed:
		applyAgentFailed(s, e)
	case domain.KindAgentExited:
		applyAgentExited(s, e)
	case domain.KindAgentGone:
		applyAgentGone(s, e)

	case domain.KindCrewCreated:
		applyCrewCreated(s, e)
	case domain.KindCrewUpdated:
		applyCrewUpdated(s, e)

	case domain.KindWorkspaceCreated:
		applyWorkspaceCreated(s, e)
	case domain.KindWorkspaceReady:
		applyWorkspaceReady(s, e)
	case domain.KindWorkspaceFailed:
		applyWorkspaceFailed(s, e)
	case domain.KindWorkspaceDeleted:
		applyWorkspaceDeleted(s, e)

	case domain.KindQueuePushed:
		applyQueuePushed(s, e)
	case domain.KindQueueDropped:
		applyQueueDropped(s, e)
	case domain.KindQueueTaken:
		applyQueueTaken(s, e)
	case domain.KindQueueRetried:
		applyQueueRetried(s, e)
	case domain.KindQueueFailed:
		applyQueueFailed(s, e)
	case domain.KindQueueDone:
		applyQueueDone(s, e)
	case domain.KindQueuePruned:
		applyQueuePruned(s, e)

	case domain.KindWorkerStarted:
		applyWorkerStarted(s, e)
	case domain.KindWorkerStopped:
		applyWorkerStopped(s, e)
	case domain.KindWorkerResized:
		applyWorkerResized(s, e)
	case domain.KindWorkerTaking:
		applyWorkerTaking(s, e)
	case domain.KindWorkerTook:
		applyWorkerTook(s, e)

	case domain.KindCronStarted:
		applyCronStarted(s, e)
	case domain.KindCronStopped:
		applyCronStopped(s, e)

	case domain.KindDecisionCreated:
		applyDecisionCreated(s, e)
	case domain.KindDecisionResolved:
		applyDecisionResolved(s, e)

	case domain.KindRunbookLoaded:
		applyRunbookLoaded(s, e)
	}

	if e.Seq > s.LastAppliedSeq {
		s.LastAppliedSeq = e.Seq
	}
}

// terminalJobSteps is the set of job step sentinels considered terminal.
var terminalJobSteps = map[string]bool{"done": true, "failed": true, "cancelled": true, "suspended": true}

func isTerminalStep(step string) bool { return terminalJobSteps[step] }

// ResolvePrefix implements unique short-prefix resolution across a sorted
// key slice, per SPEC_FULL.md §5. Ambiguous → ojerr.NotFound with the
// candidate count; no match → ojerr.NotFound.
func ResolvePrefix(keys map[string]bool, prefix string) (string, error) {
	if keys[prefix] {
		return prefix, nil
	}
	var sorted []string
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var matches []string
	for _, k := range sorted {
		if strings.HasPrefix(k, prefix) {
			matches = append(matches, k)
		}
	}
	switch len(matches) {
	case 0:
		return "", ojerr.New(ojerr.NotFound, "no id matches prefix "+prefix)
	case 1:
		return matches[0], nil
	default:
		return "", ojerr.New(ojerr.NotFound,
			"ambiguous prefix "+prefix+" matches multiple ids")
	}
}

func jobKeySet(s *State) map[string]bool {
	m := make(map[string]bool, len(s.Jobs))
	for k := range s.Jobs {
		m[k] = true
	}
	return m
}

func decisionKeySet(s *State) map[string]bool {
	m := make(map[string]bool, len(s.Decisions))
	for k := range s.Decisions {
		m[k] = true
	}
	return m
}

func workspaceKeySet(s *State) map[string]bool {
	m := make(map[string]bool, len(s.Workspaces))
	for k := range s.Workspaces {
		m[k] = true
	}
	return m
}

func queueItemKeySet(s *State) map[string]bool {
	m := make(map[string]bool, len(s.QueueItems))
	for k := range s.QueueItems {
		m[k] = true
	}
	return m
}

// ResolveJobPrefix resolves a (possibly partial) job id.
func (s *State) ResolveJobPrefix(prefix string) (string, error) {
	return ResolvePrefix(jobKeySet(s), prefix)
}

// ResolveDecisionPrefix resolves a (possibly partial) decision id.
func (s *State) ResolveDecisionPrefix(prefix string) (string, error) {
	return ResolvePrefix(decisionKeySet(s), prefix)
}

// ResolveWorkspacePrefix resolves a (possibly partial) workspace id.
func (s *State) ResolveWorkspacePrefix(prefix string) (string, error) {
	return ResolvePrefix(workspaceKeySet(s), prefix)
}

// ResolveQueueItemPrefix resolves a (possibly partial) queue item id.
func (s *State) ResolveQueueItemPrefix(prefix string) (string, error) {
	return ResolvePrefix(queueItemKeySet(s), prefix)
}
