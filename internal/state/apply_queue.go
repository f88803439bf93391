package state

import (
	"sort"
	"strings"

	"github.com/oddjobs/oj/internal/domain"
)

// dataKey builds a stable dedup key from a queue item's data map, used to
// enforce "pushing a data map identical to an existing non-terminal item
// in the same queue is a no-op" (spec.md §3 QueueItem invariant).
func dataKey(queue, namespace string, data map[string]string) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(queue)
	b.WriteByte('\x00')
	b.WriteString(namespace)
	for _, k := range keys {
		b.WriteByte('\x00')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(data[k])
	}
	return b.String()
}

func applyQueuePushed(s *State, e domain.Event) {
	p := e.Payload.(*domain.QueuePushedPayload)
	if _, exists := s.QueueItems[p.ItemID]; exists {
		return
	}
	key := dataKey(p.Queue, p.Namespace, p.Data)
	for _, item := range s.QueueItems {
		if item.IsTerminal() {
			continue
		}
		if dataKey(item.Queue, item.Namespace, item.Data) == key {
			return
		}
	}
	s.QueueItems[p.ItemID] = &domain.QueueItem{
		ID:        p.ItemID,
		Queue:     p.Queue,
		Namespace: p.Namespace,
		Data:      p.Data,
		Status:    domain.QueueItemPending,
		PushedAt:  e.At,
	}
}

func applyQueueDropped(s *State, e domain.Event) {
	p := e.Payload.(*domain.QueueDroppedPayload)
	delete(s.QueueItems, p.ItemID)
}

func applyQueueTaken(s *State, e domain.Event) {
	p := e.Payload.(*domain.QueueTakenPayload)
	item, ok := s.QueueItems[p.ItemID]
	if !ok {
		return
	}
	item.Status = domain.QueueItemActive
	item.Worker = p.Worker
}

// applyQueueRetried resolves an item by id (spec.md §4.8.5 "retry") back
// to pending so a worker's normal claim path picks it up again, bumping
// failure_count so a retry loop is still observable.
func applyQueueRetried(s *State, e domain.Event) {
	p := e.Payload.(*domain.QueueItemTransitionPayload)
	item, ok := s.QueueItems[p.ItemID]
	if !ok {
		return
	}
	item.Status = domain.QueueItemPending
	item.Worker = ""
	item.FailureCount++
}

// applyQueueFailed resolves an item by id to the terminal failed status
// (spec.md §4.8.5 "fail").
func applyQueueFailed(s *State, e domain.Event) {
	p := e.Payload.(*domain.QueueItemTransitionPayload)
	item, ok := s.QueueItems[p.ItemID]
	if !ok {
		return
	}
	item.Status = domain.QueueItemFailed
	item.FailureCount++
}

// applyQueueDone resolves an item by id to the terminal completed status
// (spec.md §4.8.5 "done").
func applyQueueDone(s *State, e domain.Event) {
	p := e.Payload.(*domain.QueueItemTransitionPayload)
	item, ok := s.QueueItems[p.ItemID]
	if !ok {
		return
	}
	item.Status = domain.QueueItemCompleted
	item.Worker = ""
}

// applyQueuePruned removes a prune batch's items outright (spec.md §4.8.5
// "prune": terminal items older than 12h, or all with --all — the age/all
// selection is computed by the listener handler that builds this event;
// folding it is a plain delete).
func applyQueuePruned(s *State, e domain.Event) {
	p := e.Payload.(*domain.QueuePrunedPayload)
	for _, id := range p.ItemIDs {
		delete(s.QueueItems, id)
	}
}
