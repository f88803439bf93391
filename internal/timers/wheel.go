// Package timers implements the in-memory timer scheduler (spec.md §4.4):
// structured timer ids, a single min-heap ordered by fire time, and a
// Poll that drains due entries into transient TimerStart events. None of
// this is persisted — internal/reconcile re-arms timers from folded state
// on boot.
package timers

import (
	"container/heap"
	"sync"
	"time"

	"github.com/oddjobs/oj/internal/domain"
)

// timerEntry is one scheduled fire.
type timerEntry struct {
	id    string
	at    time.Time
	index int // heap.Interface bookkeeping
}

// timerHeap is a container/heap.Interface ordered by fire time, the same
// shape as the teacher's taskHeap ordered by priority.
type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x interface{}) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Wheel is the mutex-guarded heap-plus-index pair, mirroring
// orchestrator/queue.TaskQueue's heap-beside-taskMap pattern so SetTimer
// can insert-or-replace by id in O(log n).
type Wheel struct {
	mu      sync.Mutex
	h       timerHeap
	byID    map[string]*timerEntry
}

// New returns an empty timer wheel.
func New() *Wheel {
	w := &Wheel{byID: make(map[string]*timerEntry)}
	heap.Init(&w.h)
	return w
}

// SetTimer arms (or re-arms) the timer named id to fire at at, replacing
// any existing entry for the same id.
func (w *Wheel) SetTimer(id string, at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if existing, ok := w.byID[id]; ok {
		heap.Remove(&w.h, existing.index)
		delete(w.byID, id)
	}
	e := &timerEntry{id: id, at: at}
	heap.Push(&w.h, e)
	w.byID[id] = e
}

// CancelTimer disarms the timer named id, if armed. No-op otherwise.
func (w *Wheel) CancelTimer(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	existing, ok := w.byID[id]
	if !ok {
		return
	}
	heap.Remove(&w.h, existing.index)
	delete(w.byID, id)
}

// Has reports whether a timer is currently armed for id.
func (w *Wheel) Has(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.byID[id]
	return ok
}

// Len reports how many timers are currently armed.
func (w *Wheel) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.h.Len()
}

// Poll drains every timer due at or before now, returning one transient
// TimerStart event per fired timer, earliest first.
func (w *Wheel) Poll(now time.Time) []domain.Event {
	w.mu.Lock()
	defer w.mu.Unlock()

	var fired []domain.Event
	for w.h.Len() > 0 {
		next := w.h[0]
		if next.at.After(now) {
			break
		}
		heap.Pop(&w.h)
		delete(w.byID, next.id)
		fired = append(fired, domain.Event{
			Kind:    domain.KindTimerStart,
			At:      now,
			Payload: &domain.TimerStartPayload{ID: next.id},
		})
	}
	return fired
}

// Structured timer id constructors, per spec.md §4.4.

func LivenessTimerID(owner string) string { return "liveness:" + owner }

func CooldownTimerID(owner, trigger string, chainPos int) string {
	return "cooldown:" + owner + ":" + trigger + ":" + itoa(chainPos)
}

func IdleGraceTimerID(owner string) string { return "idle_grace:" + owner }

func CronTimerID(scopedName string) string { return "cron:" + scopedName }

func ExitDeferredTimerID(owner string) string { return "exit_deferred:" + owner }

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
