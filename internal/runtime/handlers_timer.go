package runtime

import (
	"context"
	"strings"

	"github.com/oddjobs/oj/internal/decision"
	"github.com/oddjobs/oj/internal/domain"
	"github.com/oddjobs/oj/internal/effects"
)

// handleTimerStart reacts to a fired timer by its structured id prefix
// (internal/timers' LivenessTimerID/CooldownTimerID/IdleGraceTimerID/
// CronTimerID/ExitDeferredTimerID constructors). Cooldown timers need no
// action here — their only job is to let Supervisor.Evaluate's
// sv.Wheel.Has check pass again. Liveness and idle-grace timers raise a
// "dead"/"idle" decision directly, since by construction nothing else
// reported a fresher state before they fired.
func (rt *Runtime) handleTimerStart(_ context.Context, e domain.Event) ([]effects.Effect, error) {
	p := e.Payload.(*domain.TimerStartPayload)

	switch {
	case strings.HasPrefix(p.ID, "liveness:"):
		ownerID := strings.TrimPrefix(p.ID, "liveness:")
		owner, ok := rt.resolveOwnerString(ownerID)
		if !ok {
			return nil, nil
		}
		ev := rt.Decisions.Build(owner, decision.Trigger{Kind: decision.TriggerDead, Context: "agent liveness timer fired"})
		return []effects.Effect{effects.Emit{Event: ev}}, nil

	case strings.HasPrefix(p.ID, "idle_grace:"):
		ownerID := strings.TrimPrefix(p.ID, "idle_grace:")
		owner, ok := rt.resolveOwnerString(ownerID)
		if !ok {
			return nil, nil
		}
		ev := rt.Decisions.Build(owner, decision.Trigger{Kind: decision.TriggerIdle, Context: "agent idle grace timer fired"})
		return []effects.Effect{effects.Emit{Event: ev}}, nil

	case strings.HasPrefix(p.ID, "cron:"):
		scoped := strings.TrimPrefix(p.ID, "cron:")
		ns, name := splitScopedName(scoped)
		return []effects.Effect{effects.Emit{Event: domain.Event{
			Kind:    domain.KindCronFired,
			Payload: &domain.CronFiredPayload{Name: name, Namespace: ns},
		}}}, nil
	}
	return nil, nil
}

// resolveOwnerString reconstructs an OwnerID from its String() form
// ("job:<id>" / "crew:<id>").
func (rt *Runtime) resolveOwnerString(s string) (domain.OwnerID, bool) {
	kind, id, found := strings.Cut(s, ":")
	if !found {
		return domain.OwnerID{}, false
	}
	switch domain.OwnerKind(kind) {
	case domain.OwnerJob:
		return domain.JobOwner(id), true
	case domain.OwnerCrew:
		return domain.CrewOwner(id), true
	}
	return domain.OwnerID{}, false
}

// splitScopedName reverses domain.ScopedName's "ns/name" convention.
func splitScopedName(scoped string) (ns, name string) {
	if i := strings.LastIndex(scoped, "/"); i >= 0 {
		return scoped[:i], scoped[i+1:]
	}
	return "", scoped
}
