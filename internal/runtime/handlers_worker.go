package runtime

import (
	"context"

	"github.com/oddjobs/oj/internal/domain"
	"github.com/oddjobs/oj/internal/effects"
)

// handleWorkerStarted immediately wakes the worker so it drains any items
// already pending in its queue rather than waiting for the next push. A
// start against a worker already running is degraded to a plain wake
// (spec.md §4.8.1) — an idempotent restart after a reconciliation race
// shouldn't re-run the worker's startup side effects, just nudge it.
func (rt *Runtime) handleWorkerStarted(_ context.Context, e domain.Event) ([]effects.Effect, error) {
	p := e.Payload.(*domain.WorkerStartedPayload)
	return []effects.Effect{effects.Emit{Event: domain.Event{
		Kind:    domain.KindWorkerWake,
		Payload: &domain.WorkerWakePayload{Name: p.Name, Namespace: p.Namespace},
	}}}, nil
}

// handleWorkerResized is a no-op against a stopped worker (spec.md §4.8.1):
// resizing only matters to a worker actively claiming items.
func (rt *Runtime) handleWorkerResized(_ context.Context, e domain.Event) ([]effects.Effect, error) {
	p := e.Payload.(*domain.WorkerResizedPayload)
	key := domain.ScopedName(p.Namespace, p.Name)
	w, ok := rt.State.Workers[key]
	if !ok || w.Status != domain.WorkerRunning {
		return nil, nil
	}
	return []effects.Effect{effects.Emit{Event: domain.Event{
		Kind:    domain.KindWorkerWake,
		Payload: &domain.WorkerWakePayload{Name: p.Name, Namespace: p.Namespace},
	}}}, nil
}
