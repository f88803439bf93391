package runtime

import (
	"context"

	"github.com/oddjobs/oj/internal/domain"
	"github.com/oddjobs/oj/internal/effects"
)

// handleQueuePushed wakes every worker bound to the queue an item just
// landed in, so an idle worker with spare concurrency claims it without
// waiting for its next poll tick.
func (rt *Runtime) handleQueuePushed(_ context.Context, e domain.Event) ([]effects.Effect, error) {
	p := e.Payload.(*domain.QueuePushedPayload)
	var out []effects.Effect
	for _, w := range rt.State.Workers {
		if w.Queue == p.Queue && w.Status == domain.WorkerRunning {
			out = append(out, effects.Emit{Event: domain.Event{
				Kind:    domain.KindWorkerWake,
				Payload: &domain.WorkerWakePayload{Name: w.Name, Namespace: w.Namespace},
			}})
		}
	}
	return out, nil
}

// handleWorkerWake claims as many pending items as the worker's spare
// concurrency allows. A persisted-queue worker claims straight out of
// rt.State.QueueItems; an external-queue worker has nothing to claim
// locally and instead re-polls its backing command (spec.md §4.8.2) —
// claiming for that queue type happens later, in handleWorkerPolled, once
// the poll's items are known.
func (rt *Runtime) handleWorkerWake(_ context.Context, e domain.Event) ([]effects.Effect, error) {
	p := e.Payload.(*domain.WorkerWakePayload)
	key := domain.ScopedName(p.Namespace, p.Name)
	w, ok := rt.State.Workers[key]
	if !ok || w.Status != domain.WorkerRunning {
		return nil, nil
	}

	if w.QueueType == domain.QueueExternal {
		return rt.pollExternalQueue(w)
	}

	spare := w.AvailableConcurrency()
	if spare <= 0 {
		return nil, nil
	}

	var out []effects.Effect
	for _, item := range rt.State.QueueItems {
		if spare <= 0 {
			break
		}
		if item.Queue != w.Queue || item.Status != domain.QueueItemPending {
			continue
		}
		out = append(out, effects.TakeQueueItem{Worker: w.ScopedName(), ItemID: item.ID})
		spare--
	}
	return out, nil
}

// pollExternalQueue issues the queue's list command, if the worker still has
// spare concurrency to claim anything with.
func (rt *Runtime) pollExternalQueue(w *domain.Worker) ([]effects.Effect, error) {
	if w.AvailableConcurrency() <= 0 {
		return nil, nil
	}
	doc, ok := rt.Runbooks.Get(w.RunbookHash)
	if !ok {
		return nil, nil
	}
	qdef, ok := doc.Queues[w.Queue]
	if !ok || qdef.List == "" {
		return nil, nil
	}
	return []effects.Effect{effects.ListQueueItems{
		Worker: w.Name, Namespace: w.Namespace, Cmd: qdef.List,
	}}, nil
}

// handleQueueTaken starts the worker's bound job kind for the claimed
// item's data, namespaced under the worker's first declared var name
// (spec.md §4.8.4) so a dispatched job's item fields never collide with
// its own bare vars.
func (rt *Runtime) handleQueueTaken(_ context.Context, e domain.Event) ([]effects.Effect, error) {
	p := e.Payload.(*domain.QueueTakenPayload)
	item, ok := rt.State.QueueItems[p.ItemID]
	if !ok {
		return nil, nil
	}
	w, ok := rt.State.Workers[p.Worker]
	if !ok {
		return nil, nil
	}
	jobKind, vars := rt.dispatchVarsFor(w, item.Data)
	return []effects.Effect{effects.Emit{Event: domain.Event{
		Kind: domain.KindJobCreated,
		Payload: &domain.JobCreatedPayload{
			JobID:       idFromTimer(p.ItemID),
			Kind:        jobKind,
			Project:     item.Namespace,
			Vars:        vars,
			RunbookHash: w.RunbookHash,
			QueueItemID: item.ID,
		},
	}}}, nil
}

// handleWorkerPolled claims as many of an external poll's items as the
// worker's spare concurrency allows, skipping anything already in-flight or
// already owned by a running job (spec.md §4.8.2 dedup).
func (rt *Runtime) handleWorkerPolled(_ context.Context, e domain.Event) ([]effects.Effect, error) {
	p := e.Payload.(*domain.WorkerPolledPayload)
	key := domain.ScopedName(p.Namespace, p.Name)
	w, ok := rt.State.Workers[key]
	if !ok || w.Status != domain.WorkerRunning {
		return nil, nil
	}
	doc, ok := rt.Runbooks.Get(w.RunbookHash)
	if !ok {
		return nil, nil
	}
	qdef, ok := doc.Queues[w.Queue]
	if !ok || qdef.Take == "" {
		return nil, nil
	}

	spare := w.AvailableConcurrency()
	claimedThisPoll := make(map[string]bool)
	var out []effects.Effect
	for _, item := range p.Items {
		if spare <= 0 {
			break
		}
		itemKey := domain.DedupKeyForItem(item)
		if claimedThisPoll[itemKey] || w.InflightItems[itemKey] || w.HasActiveItem(itemKey) {
			continue
		}
		claimedThisPoll[itemKey] = true
		spare--
		out = append(out, effects.Emit{Event: domain.Event{
			Kind: domain.KindWorkerTaking,
			Payload: &domain.WorkerTakingPayload{Name: w.Name, Namespace: w.Namespace, ItemKey: itemKey, Item: item},
		}})
		out = append(out, effects.TakeExternalQueueItem{
			Worker: w.Name, Namespace: w.Namespace, ItemKey: itemKey, Cmd: qdef.Take, Item: item,
		})
	}
	return out, nil
}

// handleWorkerTook dispatches the worker's bound job kind once an external
// queue's take command has exited 0; a non-zero exit leaves the item
// unclaimed for the next poll to pick back up (spec.md §9 open question on
// retry policy — re-poll is the only retry path).
func (rt *Runtime) handleWorkerTook(_ context.Context, e domain.Event) ([]effects.Effect, error) {
	p := e.Payload.(*domain.WorkerTookPayload)
	if p.ExitCode != 0 {
		return nil, nil
	}
	key := domain.ScopedName(p.Namespace, p.Name)
	w, ok := rt.State.Workers[key]
	if !ok {
		return nil, nil
	}
	jobKind, vars := rt.dispatchVarsFor(w, domain.StringifyItemFields(p.Item))
	return []effects.Effect{effects.Emit{Event: domain.Event{
		Kind: domain.KindJobCreated,
		Payload: &domain.JobCreatedPayload{
			JobID:       "job-from-" + w.ScopedName() + "-" + p.ItemKey,
			Kind:        jobKind,
			Project:     w.Namespace,
			Vars:        vars,
			RunbookHash: w.RunbookHash,
		},
	}}}, nil
}

// dispatchVarsFor resolves a worker's bound job kind and namespaces a
// claimed item's fields under its first declared var name, falling back to
// the worker's own name as the job kind when the runbook has no matching
// worker def (shouldn't happen for a live worker, but keeps dispatch from
// silently no-oping on a stale cache).
func (rt *Runtime) dispatchVarsFor(w *domain.Worker, fields map[string]string) (jobKind string, vars map[string]string) {
	jobKind = w.Name
	var varNames []string
	if doc, ok := rt.Runbooks.Get(w.RunbookHash); ok {
		if wdef, ok := doc.Workers[w.Name]; ok {
			if wdef.JobKind != "" {
				jobKind = wdef.JobKind
			}
			varNames = wdef.Vars
		}
	}
	return jobKind, domain.NamespaceItemVars(varNames, fields)
}

// idFromTimer namespaces a queue-item-derived job id distinctly from
// uuid-generated ones so replay never collides the two id spaces.
func idFromTimer(itemID string) string {
	return "job-from-" + itemID
}
