package state

import "github.com/oddjobs/oj/internal/domain"

func applyWorkerStarted(s *State, e domain.Event) {
	p := e.Payload.(*domain.WorkerStartedPayload)
	key := domain.ScopedName(p.Namespace, p.Name)
	w, ok := s.Workers[key]
	if !ok {
		w = domain.NewWorker(p.Name, p.Namespace)
		s.Workers[key] = w
	}
	w.RunbookHash = p.RunbookHash
	w.Queue = p.Queue
	w.QueueType = domain.QueueType(p.QueueType)
	w.Concurrency = p.Concurrency
	w.Status = domain.WorkerRunning
}

func applyWorkerStopped(s *State, e domain.Event) {
	p := e.Payload.(*domain.WorkerStoppedPayload)
	key := domain.ScopedName(p.Namespace, p.Name)
	w, ok := s.Workers[key]
	if !ok {
		return
	}
	w.Status = domain.WorkerStopped
	w.Active = make(map[domain.OwnerID]bool)
	w.Items = make(map[domain.OwnerID]string)
	w.InflightItems = make(map[string]bool)
	w.PendingItems = make(map[string]map[string]interface{})
	w.PendingTakes = 0
}

func applyWorkerResized(s *State, e domain.Event) {
	p := e.Payload.(*domain.WorkerResizedPayload)
	key := domain.ScopedName(p.Namespace, p.Name)
	if w, ok := s.Workers[key]; ok {
		w.Concurrency = p.Concurrency
	}
}

// applyWorkerTaking claims one polled external-queue item (spec.md §4.8.2):
// marks it in-flight for dedup, stashes its fields for the eventual take
// dispatch, and counts it against the worker's concurrency until WorkerTook
// resolves it.
func applyWorkerTaking(s *State, e domain.Event) {
	p := e.Payload.(*domain.WorkerTakingPayload)
	key := domain.ScopedName(p.Namespace, p.Name)
	w, ok := s.Workers[key]
	if !ok {
		return
	}
	w.InflightItems[p.ItemKey] = true
	w.PendingItems[p.ItemKey] = p.Item
	w.PendingTakes++
}

// applyWorkerTook clears an external-queue item's in-flight bookkeeping
// once its take command has exited, regardless of outcome — spec.md §9's
// Open Question on retry/back-off policy leaves re-poll as the only retry
// path, so a failed take simply becomes claimable again on the next poll.
func applyWorkerTook(s *State, e domain.Event) {
	p := e.Payload.(*domain.WorkerTookPayload)
	key := domain.ScopedName(p.Namespace, p.Name)
	w, ok := s.Workers[key]
	if !ok {
		return
	}
	if w.PendingTakes > 0 {
		w.PendingTakes--
	}
	delete(w.InflightItems, p.ItemKey)
	delete(w.PendingItems, p.ItemKey)
}
