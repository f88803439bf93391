// Package mock is an in-process fake AgentAdapter used by every unit test
// that doesn't need a real process, generalised from the teacher's
// cmd/mock-agent (a full fake agent binary) into a direct in-process
// implementation with scriptable state transitions.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/oddjobs/oj/internal/adapters"
	"github.com/oddjobs/oj/internal/domain"
)

// StateFrame is one scripted transition: after Script.Transitions[i] has
// been consumed (one per GetState poll), the adapter reports State, with
// optional LastMessage.
type StateFrame struct {
	State       domain.AgentState
	LastMessage string
}

// Script lets a test pre-program an agent's observed lifecycle.
type Script struct {
	Transitions []StateFrame
}

type handleRecord struct {
	mu          sync.Mutex
	owner       domain.OwnerID
	script      Script
	cursor      int
	alive       bool
	lastMessage string
	sent        []string
}

// Adapter is the in-memory fake. Safe for concurrent use.
type Adapter struct {
	mu      sync.Mutex
	handles map[string]*handleRecord
	nextID  int
	scripts map[domain.OwnerID]Script
}

func New() *Adapter {
	return &Adapter{
		handles: make(map[string]*handleRecord),
		scripts: make(map[domain.OwnerID]Script),
	}
}

// ScriptFor pre-registers a script for the next Spawn on behalf of owner.
func (a *Adapter) ScriptFor(owner domain.OwnerID, s Script) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scripts[owner] = s
}

func (a *Adapter) Spawn(_ context.Context, spec adapters.SpawnSpec) (string, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	handle := fmt.Sprintf("mock-%d", a.nextID)
	rec := &handleRecord{owner: spec.Owner, alive: true}
	if s, ok := a.scripts[spec.Owner]; ok {
		rec.script = s
		delete(a.scripts, spec.Owner)
	}
	a.handles[handle] = rec
	return handle, "mock-token-" + handle, nil
}

func (a *Adapter) record(handle string) (*handleRecord, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.handles[handle]
	return r, ok
}

func (a *Adapter) Reconnect(_ context.Context, handle string) error {
	if _, ok := a.record(handle); !ok {
		return fmt.Errorf("mock: unknown handle %s", handle)
	}
	return nil
}

func (a *Adapter) Send(_ context.Context, handle string, message string) error {
	r, ok := a.record(handle)
	if !ok {
		return fmt.Errorf("mock: unknown handle %s", handle)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, message)
	return nil
}

func (a *Adapter) Respond(_ context.Context, handle string, choices []int, message string) error {
	_, ok := a.record(handle)
	if !ok {
		return fmt.Errorf("mock: unknown handle %s", handle)
	}
	return nil
}

func (a *Adapter) Kill(_ context.Context, handle string) error {
	r, ok := a.record(handle)
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alive = false
	return nil
}

func (a *Adapter) GetState(_ context.Context, handle string) (domain.AgentState, error) {
	r, ok := a.record(handle)
	if !ok {
		return "", fmt.Errorf("mock: unknown handle %s", handle)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cursor >= len(r.script.Transitions) {
		if len(r.script.Transitions) == 0 {
			return domain.AgentIdle, nil
		}
		last := r.script.Transitions[len(r.script.Transitions)-1]
		return last.State, nil
	}
	frame := r.script.Transitions[r.cursor]
	r.cursor++
	r.lastMessage = frame.LastMessage
	return frame.State, nil
}

func (a *Adapter) LastMessage(_ context.Context, handle string) (string, error) {
	r, ok := a.record(handle)
	if !ok {
		return "", fmt.Errorf("mock: unknown handle %s", handle)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastMessage, nil
}

func (a *Adapter) ResolveStop(_ context.Context, handle string, allow bool) error {
	_, ok := a.record(handle)
	if !ok {
		return fmt.Errorf("mock: unknown handle %s", handle)
	}
	return nil
}

func (a *Adapter) IsAlive(_ context.Context, handle string) bool {
	r, ok := a.record(handle)
	if !ok {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.alive
}

// Sent returns every message handed to Send for handle, in order, for test
// assertions.
func (a *Adapter) Sent(handle string) []string {
	r, ok := a.record(handle)
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

func (a *Adapter) CaptureOutput(_ context.Context, handle string) (string, error) {
	r, ok := a.record(handle)
	if !ok {
		return "", fmt.Errorf("mock: unknown handle %s", handle)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := ""
	for _, m := range r.sent {
		out += m + "\n"
	}
	return out, nil
}

func (a *Adapter) FetchTranscript(_ context.Context, handle string) ([]byte, error) {
	out, err := a.CaptureOutput(context.Background(), handle)
	return []byte(out), err
}

func (a *Adapter) FetchUsage(_ context.Context, _ string) (adapters.TokenUsage, error) {
	return adapters.TokenUsage{}, nil
}

func (a *Adapter) IsRemoteOnly() bool { return false }

func (a *Adapter) GetCoopHost(handle string) string { return "mock://" + handle }

var _ adapters.AgentAdapter = (*Adapter)(nil)
