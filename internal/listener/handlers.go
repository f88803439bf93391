package listener

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/oddjobs/oj/internal/adapters"
	"github.com/oddjobs/oj/internal/domain"
	"github.com/oddjobs/oj/internal/effects"
	"github.com/oddjobs/oj/internal/ojerr"
	"github.com/oddjobs/oj/internal/runbook"
	"github.com/oddjobs/oj/internal/state"
	"github.com/oddjobs/oj/pkg/ojproto"
)

// registerHandlers binds every ojproto action this daemon answers to a
// HandlerFunc closing over the executor (the only writer of state) and
// the read-only collaborators queries need. Unregistered actions fall
// through to Dispatcher.Dispatch's own "unknown action" error.
func registerHandlers(d *ojproto.Dispatcher, ex *effects.Executor, runbooks *runbook.Cache, router *adapters.Router) {
	d.RegisterFunc(ojproto.ActionHealthCheck, func(_ context.Context, msg *ojproto.Message) (*ojproto.Message, error) {
		return ojproto.NewResponse(msg.ID, msg.Action, map[string]interface{}{"status": "ok"})
	})

	registerJobHandlers(d, ex, runbooks)
	registerCrewHandlers(d, ex)
	registerQueueHandlers(d, ex)
	registerWorkerHandlers(d, ex)
	registerCronHandlers(d, ex)
	registerDecisionHandlers(d, ex, router)
	registerAgentHandlers(d, ex, router)
}

// submitOne runs one command event through the executor and answers with
// a generic success envelope, the shape every fire-and-confirm action
// shares.
func submitOne(ctx context.Context, ex *effects.Executor, msg *ojproto.Message, e domain.Event, result map[string]interface{}) (*ojproto.Message, error) {
	if _, err := ex.Submit(ctx, e); err != nil {
		return errorFor(msg, err)
	}
	if result == nil {
		result = map[string]interface{}{"success": true}
	}
	return ojproto.NewResponse(msg.ID, msg.Action, result)
}

// errorFor maps an ojerr.Kind (when present) onto the matching ojproto
// error code, falling back to INTERNAL_ERROR for anything else.
func errorFor(msg *ojproto.Message, err error) (*ojproto.Message, error) {
	code := ojproto.ErrorCodeInternalError
	if kind, ok := ojerr.KindOf(err); ok {
		switch kind {
		case ojerr.Validation:
			code = ojproto.ErrorCodeValidation
		case ojerr.NotFound:
			code = ojproto.ErrorCodeNotFound
		case ojerr.RunbookLoad:
			code = ojproto.ErrorCodeRunbookLoad
		case ojerr.InvalidRunDirective:
			code = ojproto.ErrorCodeInvalidRun
		case ojerr.CircuitBreaker:
			code = ojproto.ErrorCodeCircuitBreaker
		}
	}
	return ojproto.NewError(msg.ID, msg.Action, code, err.Error(), nil)
}

// --- jobs ---

type jobRunRequest struct {
	Kind        string            `json:"kind"`
	Project     string            `json:"project"`
	Vars        map[string]string `json:"vars"`
	RunbookHash string            `json:"runbook_hash"`
	RunbookPath string            `json:"runbook_path,omitempty"`
}

func registerJobHandlers(d *ojproto.Dispatcher, ex *effects.Executor, runbooks *runbook.Cache) {
	d.RegisterFunc(ojproto.ActionJobRun, func(ctx context.Context, msg *ojproto.Message) (*ojproto.Message, error) {
		var req jobRunRequest
		if err := msg.ParsePayload(&req); err != nil {
			return ojproto.NewError(msg.ID, msg.Action, ojproto.ErrorCodeBadRequest, err.Error(), nil)
		}
		hash := req.RunbookHash
		if hash == "" && req.RunbookPath != "" {
			doc, err := runbooks.LoadFromPath(req.RunbookPath)
			if err != nil {
				return errorFor(msg, err)
			}
			hash = doc.Hash
		}
		if req.Kind == "" || hash == "" {
			return ojproto.NewError(msg.ID, msg.Action, ojproto.ErrorCodeValidation, "kind and runbook_hash (or runbook_path) are required", nil)
		}
		jobID := uuid.NewString()
		return submitOne(ctx, ex, msg, domain.Event{
			Kind: domain.KindJobCreated,
			Payload: &domain.JobCreatedPayload{
				JobID: jobID, Kind: req.Kind, Project: req.Project, Vars: req.Vars, RunbookHash: hash,
			},
		}, map[string]interface{}{"job_id": jobID})
	})

	d.RegisterFunc(ojproto.ActionJobResume, func(ctx context.Context, msg *ojproto.Message) (*ojproto.Message, error) {
		var req domain.JobResumePayload
		if err := msg.ParsePayload(&req); err != nil {
			return ojproto.NewError(msg.ID, msg.Action, ojproto.ErrorCodeBadRequest, err.Error(), nil)
		}
		jobID, err := resolveJob(ex.State(), req.JobID)
		if err != nil {
			return errorFor(msg, err)
		}
		req.JobID = jobID
		return submitOne(ctx, ex, msg, domain.Event{Kind: domain.KindJobResume, Payload: &req}, nil)
	})

	d.RegisterFunc(ojproto.ActionJobCancel, func(ctx context.Context, msg *ojproto.Message) (*ojproto.Message, error) {
		var req domain.JobCancelPayload
		if err := msg.ParsePayload(&req); err != nil {
			return ojproto.NewError(msg.ID, msg.Action, ojproto.ErrorCodeBadRequest, err.Error(), nil)
		}
		jobID, err := resolveJob(ex.State(), req.JobID)
		if err != nil {
			return errorFor(msg, err)
		}
		req.JobID = jobID
		return submitOne(ctx, ex, msg, domain.Event{Kind: domain.KindJobCancel, Payload: &req}, nil)
	})

	d.RegisterFunc(ojproto.ActionJobSuspend, func(ctx context.Context, msg *ojproto.Message) (*ojproto.Message, error) {
		var req domain.JobSuspendPayload
		if err := msg.ParsePayload(&req); err != nil {
			return ojproto.NewError(msg.ID, msg.Action, ojproto.ErrorCodeBadRequest, err.Error(), nil)
		}
		jobID, err := resolveJob(ex.State(), req.JobID)
		if err != nil {
			return errorFor(msg, err)
		}
		req.JobID = jobID
		return submitOne(ctx, ex, msg, domain.Event{Kind: domain.KindJobSuspend, Payload: &req}, nil)
	})

	d.RegisterFunc(ojproto.ActionJobDelete, func(ctx context.Context, msg *ojproto.Message) (*ojproto.Message, error) {
		var req domain.JobDeletedPayload
		if err := msg.ParsePayload(&req); err != nil {
			return ojproto.NewError(msg.ID, msg.Action, ojproto.ErrorCodeBadRequest, err.Error(), nil)
		}
		jobID, err := resolveJob(ex.State(), req.JobID)
		if err != nil {
			return errorFor(msg, err)
		}
		req.JobID = jobID
		return submitOne(ctx, ex, msg, domain.Event{Kind: domain.KindJobDeleted, Payload: &req}, nil)
	})

	d.RegisterFunc(ojproto.ActionJobGet, func(_ context.Context, msg *ojproto.Message) (*ojproto.Message, error) {
		var req struct {
			JobID string `json:"job_id"`
		}
		if err := msg.ParsePayload(&req); err != nil {
			return ojproto.NewError(msg.ID, msg.Action, ojproto.ErrorCodeBadRequest, err.Error(), nil)
		}
		jobID, err := resolveJob(ex.State(), req.JobID)
		if err != nil {
			return errorFor(msg, err)
		}
		return ojproto.NewResponse(msg.ID, msg.Action, ex.State().Jobs[jobID])
	})

	d.RegisterFunc(ojproto.ActionJobList, func(_ context.Context, msg *ojproto.Message) (*ojproto.Message, error) {
		jobs := make([]*domain.Job, 0, len(ex.State().Jobs))
		for _, j := range ex.State().Jobs {
			jobs = append(jobs, j)
		}
		return ojproto.NewResponse(msg.ID, msg.Action, map[string]interface{}{"jobs": jobs})
	})
}

// resolveJob accepts either a full job id or an unambiguous prefix, per
// spec.md §6's CLI/listener id-prefix convention.
func resolveJob(st *state.State, idOrPrefix string) (string, error) {
	if _, ok := st.Jobs[idOrPrefix]; ok {
		return idOrPrefix, nil
	}
	return st.ResolveJobPrefix(idOrPrefix)
}

// --- crews ---

func registerCrewHandlers(d *ojproto.Dispatcher, ex *effects.Executor) {
	d.RegisterFunc(ojproto.ActionCrewGet, func(_ context.Context, msg *ojproto.Message) (*ojproto.Message, error) {
		var req struct {
			CrewID string `json:"crew_id"`
		}
		if err := msg.ParsePayload(&req); err != nil {
			return ojproto.NewError(msg.ID, msg.Action, ojproto.ErrorCodeBadRequest, err.Error(), nil)
		}
		c, ok := ex.State().Crews[req.CrewID]
		if !ok {
			return ojproto.NewError(msg.ID, msg.Action, ojproto.ErrorCodeNotFound, "crew not found: "+req.CrewID, nil)
		}
		return ojproto.NewResponse(msg.ID, msg.Action, c)
	})

	d.RegisterFunc(ojproto.ActionCrewList, func(_ context.Context, msg *ojproto.Message) (*ojproto.Message, error) {
		crews := make([]*domain.Crew, 0, len(ex.State().Crews))
		for _, c := range ex.State().Crews {
			crews = append(crews, c)
		}
		return ojproto.NewResponse(msg.ID, msg.Action, map[string]interface{}{"crews": crews})
	})
}

// --- queues ---

func registerQueueHandlers(d *ojproto.Dispatcher, ex *effects.Executor) {
	d.RegisterFunc(ojproto.ActionQueuePush, func(ctx context.Context, msg *ojproto.Message) (*ojproto.Message, error) {
		var req domain.QueuePushedPayload
		if err := msg.ParsePayload(&req); err != nil {
			return ojproto.NewError(msg.ID, msg.Action, ojproto.ErrorCodeBadRequest, err.Error(), nil)
		}
		if req.ItemID == "" {
			req.ItemID = uuid.NewString()
		}
		return submitOne(ctx, ex, msg, domain.Event{Kind: domain.KindQueuePushed, Payload: &req}, map[string]interface{}{"item_id": req.ItemID})
	})

	d.RegisterFunc(ojproto.ActionQueueDrop, func(ctx context.Context, msg *ojproto.Message) (*ojproto.Message, error) {
		var req domain.QueueDroppedPayload
		if err := msg.ParsePayload(&req); err != nil {
			return ojproto.NewError(msg.ID, msg.Action, ojproto.ErrorCodeBadRequest, err.Error(), nil)
		}
		itemID, err := ex.State().ResolveQueueItemPrefix(req.ItemID)
		if err != nil {
			return errorFor(msg, err)
		}
		req.ItemID = itemID
		return submitOne(ctx, ex, msg, domain.Event{Kind: domain.KindQueueDropped, Payload: &req}, nil)
	})

	d.RegisterFunc(ojproto.ActionQueueList, func(_ context.Context, msg *ojproto.Message) (*ojproto.Message, error) {
		var req struct {
			Queue     string `json:"queue,omitempty"`
			Namespace string `json:"namespace,omitempty"`
		}
		_ = msg.ParsePayload(&req)
		items := make([]*domain.QueueItem, 0)
		for _, it := range ex.State().QueueItems {
			if req.Queue != "" && it.Queue != req.Queue {
				continue
			}
			if req.Namespace != "" && it.Namespace != req.Namespace {
				continue
			}
			items = append(items, it)
		}
		return ojproto.NewResponse(msg.ID, msg.Action, map[string]interface{}{"items": items})
	})

	// drain drops every still-pending item in a queue (spec.md §4.8.5) —
	// one QueueDropped per match, so each drop stays individually replayable.
	d.RegisterFunc(ojproto.ActionQueueDrain, func(ctx context.Context, msg *ojproto.Message) (*ojproto.Message, error) {
		var req struct {
			Queue     string `json:"queue,omitempty"`
			Namespace string `json:"namespace,omitempty"`
		}
		_ = msg.ParsePayload(&req)
		var dropped []string
		for _, it := range ex.State().QueueItems {
			if it.Status != domain.QueueItemPending {
				continue
			}
			if req.Queue != "" && it.Queue != req.Queue {
				continue
			}
			if req.Namespace != "" && it.Namespace != req.Namespace {
				continue
			}
			if _, err := ex.Submit(ctx, domain.Event{
				Kind:    domain.KindQueueDropped,
				Payload: &domain.QueueDroppedPayload{ItemID: it.ID},
			}); err != nil {
				return errorFor(msg, err)
			}
			dropped = append(dropped, it.ID)
		}
		return ojproto.NewResponse(msg.ID, msg.Action, map[string]interface{}{"dropped": dropped})
	})

	registerQueueTransition(d, ex, ojproto.ActionQueueRetry, domain.KindQueueRetried)
	registerQueueTransition(d, ex, ojproto.ActionQueueFail, domain.KindQueueFailed)
	registerQueueTransition(d, ex, ojproto.ActionQueueDone, domain.KindQueueDone)

	// prune removes terminal items older than queuePruneAge, or every
	// terminal item regardless of age when All is set (spec.md §4.8.5).
	d.RegisterFunc(ojproto.ActionQueuePrune, func(ctx context.Context, msg *ojproto.Message) (*ojproto.Message, error) {
		var req struct {
			Queue     string `json:"queue,omitempty"`
			Namespace string `json:"namespace,omitempty"`
			All       bool   `json:"all,omitempty"`
		}
		_ = msg.ParsePayload(&req)
		cutoff := time.Now().Add(-queuePruneAge)
		var ids []string
		for _, it := range ex.State().QueueItems {
			if !it.IsTerminal() {
				continue
			}
			if req.Queue != "" && it.Queue != req.Queue {
				continue
			}
			if req.Namespace != "" && it.Namespace != req.Namespace {
				continue
			}
			if !req.All && it.PushedAt.After(cutoff) {
				continue
			}
			ids = append(ids, it.ID)
		}
		if len(ids) == 0 {
			return ojproto.NewResponse(msg.ID, msg.Action, map[string]interface{}{"pruned": []string{}})
		}
		if _, err := ex.Submit(ctx, domain.Event{
			Kind:    domain.KindQueuePruned,
			Payload: &domain.QueuePrunedPayload{ItemIDs: ids},
		}); err != nil {
			return errorFor(msg, err)
		}
		return ojproto.NewResponse(msg.ID, msg.Action, map[string]interface{}{"pruned": ids})
	})
}

// queuePruneAge is the default terminal-item retention window for "queue
// prune" without --all (spec.md §4.8.5).
const queuePruneAge = 12 * time.Hour

// registerQueueTransition binds one of the three resolve-by-id-or-prefix
// queue item mutations (retry/fail/done) that share QueueItemTransitionPayload.
func registerQueueTransition(d *ojproto.Dispatcher, ex *effects.Executor, action string, kind domain.EventKind) {
	d.RegisterFunc(action, func(ctx context.Context, msg *ojproto.Message) (*ojproto.Message, error) {
		var req domain.QueueItemTransitionPayload
		if err := msg.ParsePayload(&req); err != nil {
			return ojproto.NewError(msg.ID, msg.Action, ojproto.ErrorCodeBadRequest, err.Error(), nil)
		}
		itemID, err := ex.State().ResolveQueueItemPrefix(req.ItemID)
		if err != nil {
			return errorFor(msg, err)
		}
		req.ItemID = itemID
		return submitOne(ctx, ex, msg, domain.Event{Kind: kind, Payload: &req}, nil)
	})
}

// --- workers ---

func registerWorkerHandlers(d *ojproto.Dispatcher, ex *effects.Executor) {
	d.RegisterFunc(ojproto.ActionWorkerStart, func(ctx context.Context, msg *ojproto.Message) (*ojproto.Message, error) {
		var req domain.WorkerStartedPayload
		if err := msg.ParsePayload(&req); err != nil {
			return ojproto.NewError(msg.ID, msg.Action, ojproto.ErrorCodeBadRequest, err.Error(), nil)
		}
		return submitOne(ctx, ex, msg, domain.Event{Kind: domain.KindWorkerStarted, Payload: &req}, nil)
	})

	d.RegisterFunc(ojproto.ActionWorkerStop, func(ctx context.Context, msg *ojproto.Message) (*ojproto.Message, error) {
		var req domain.WorkerStoppedPayload
		if err := msg.ParsePayload(&req); err != nil {
			return ojproto.NewError(msg.ID, msg.Action, ojproto.ErrorCodeBadRequest, err.Error(), nil)
		}
		return submitOne(ctx, ex, msg, domain.Event{Kind: domain.KindWorkerStopped, Payload: &req}, nil)
	})

	d.RegisterFunc(ojproto.ActionWorkerResize, func(ctx context.Context, msg *ojproto.Message) (*ojproto.Message, error) {
		var req domain.WorkerResizedPayload
		if err := msg.ParsePayload(&req); err != nil {
			return ojproto.NewError(msg.ID, msg.Action, ojproto.ErrorCodeBadRequest, err.Error(), nil)
		}
		return submitOne(ctx, ex, msg, domain.Event{Kind: domain.KindWorkerResized, Payload: &req}, nil)
	})

	d.RegisterFunc(ojproto.ActionWorkerGet, func(_ context.Context, msg *ojproto.Message) (*ojproto.Message, error) {
		var req struct {
			Name      string `json:"name"`
			Namespace string `json:"namespace,omitempty"`
		}
		if err := msg.ParsePayload(&req); err != nil {
			return ojproto.NewError(msg.ID, msg.Action, ojproto.ErrorCodeBadRequest, err.Error(), nil)
		}
		w, ok := ex.State().Workers[domain.ScopedName(req.Namespace, req.Name)]
		if !ok {
			return ojproto.NewError(msg.ID, msg.Action, ojproto.ErrorCodeNotFound, "worker not found", nil)
		}
		return ojproto.NewResponse(msg.ID, msg.Action, w)
	})

	d.RegisterFunc(ojproto.ActionWorkerList, func(_ context.Context, msg *ojproto.Message) (*ojproto.Message, error) {
		workers := make([]*domain.Worker, 0, len(ex.State().Workers))
		for _, w := range ex.State().Workers {
			workers = append(workers, w)
		}
		return ojproto.NewResponse(msg.ID, msg.Action, map[string]interface{}{"workers": workers})
	})
}

// --- crons ---

func registerCronHandlers(d *ojproto.Dispatcher, ex *effects.Executor) {
	d.RegisterFunc(ojproto.ActionCronStart, func(ctx context.Context, msg *ojproto.Message) (*ojproto.Message, error) {
		var req domain.CronStartedPayload
		if err := msg.ParsePayload(&req); err != nil {
			return ojproto.NewError(msg.ID, msg.Action, ojproto.ErrorCodeBadRequest, err.Error(), nil)
		}
		return submitOne(ctx, ex, msg, domain.Event{Kind: domain.KindCronStarted, Payload: &req}, nil)
	})

	d.RegisterFunc(ojproto.ActionCronStop, func(ctx context.Context, msg *ojproto.Message) (*ojproto.Message, error) {
		var req domain.CronStoppedPayload
		if err := msg.ParsePayload(&req); err != nil {
			return ojproto.NewError(msg.ID, msg.Action, ojproto.ErrorCodeBadRequest, err.Error(), nil)
		}
		return submitOne(ctx, ex, msg, domain.Event{Kind: domain.KindCronStopped, Payload: &req}, nil)
	})

	d.RegisterFunc(ojproto.ActionCronList, func(_ context.Context, msg *ojproto.Message) (*ojproto.Message, error) {
		crons := make([]*domain.Cron, 0, len(ex.State().Crons))
		for _, c := range ex.State().Crons {
			crons = append(crons, c)
		}
		return ojproto.NewResponse(msg.ID, msg.Action, map[string]interface{}{"crons": crons})
	})
}

// --- decisions ---

func registerDecisionHandlers(d *ojproto.Dispatcher, ex *effects.Executor, router *adapters.Router) {
	d.RegisterFunc(ojproto.ActionDecisionResolve, func(ctx context.Context, msg *ojproto.Message) (*ojproto.Message, error) {
		var req domain.DecisionResolvedPayload
		if err := msg.ParsePayload(&req); err != nil {
			return ojproto.NewError(msg.ID, msg.Action, ojproto.ErrorCodeBadRequest, err.Error(), nil)
		}
		decisionID, err := ex.State().ResolveDecisionPrefix(req.DecisionID)
		if err != nil {
			return errorFor(msg, err)
		}
		req.DecisionID = decisionID

		d2, ok := ex.State().Decisions[decisionID]
		if !ok {
			return ojproto.NewError(msg.ID, msg.Action, ojproto.ErrorCodeNotFound, "decision not found: "+decisionID, nil)
		}

		// Question/Plan/Approval decisions carry a live agent waiting on an
		// adapter-level Respond call; the runtime handler deliberately
		// leaves that call to us, since it has the ctx for it and the
		// runtime's Handle does not (SPEC_FULL.md §6.9).
		switch d2.Source {
		case domain.SourceQuestion, domain.SourcePlan, domain.SourceApproval:
			if d2.AgentID != "" {
				if a, ok := ex.State().Agents[d2.AgentID]; ok {
					if adapter, ok := router.For(a.Runtime); ok {
						if err := adapter.Respond(ctx, d2.AgentID, req.Choices, req.Message); err != nil {
							return errorFor(msg, ojerr.Wrap(ojerr.Spawn, "adapter respond", err))
						}
					}
				}
			}
		}

		return submitOne(ctx, ex, msg, domain.Event{Kind: domain.KindDecisionResolved, Payload: &req}, nil)
	})

	d.RegisterFunc(ojproto.ActionDecisionGet, func(_ context.Context, msg *ojproto.Message) (*ojproto.Message, error) {
		var req struct {
			DecisionID string `json:"decision_id"`
		}
		if err := msg.ParsePayload(&req); err != nil {
			return ojproto.NewError(msg.ID, msg.Action, ojproto.ErrorCodeBadRequest, err.Error(), nil)
		}
		decisionID, err := ex.State().ResolveDecisionPrefix(req.DecisionID)
		if err != nil {
			return errorFor(msg, err)
		}
		return ojproto.NewResponse(msg.ID, msg.Action, ex.State().Decisions[decisionID])
	})

	d.RegisterFunc(ojproto.ActionDecisionList, func(_ context.Context, msg *ojproto.Message) (*ojproto.Message, error) {
		decisions := make([]*domain.Decision, 0, len(ex.State().Decisions))
		for _, dd := range ex.State().Decisions {
			decisions = append(decisions, dd)
		}
		return ojproto.NewResponse(msg.ID, msg.Action, map[string]interface{}{"decisions": decisions})
	})
}

// --- agents ---

func registerAgentHandlers(d *ojproto.Dispatcher, ex *effects.Executor, router *adapters.Router) {
	d.RegisterFunc(ojproto.ActionAgentSend, func(ctx context.Context, msg *ojproto.Message) (*ojproto.Message, error) {
		var req struct {
			AgentID string `json:"agent_id"`
			Message string `json:"message"`
		}
		if err := msg.ParsePayload(&req); err != nil {
			return ojproto.NewError(msg.ID, msg.Action, ojproto.ErrorCodeBadRequest, err.Error(), nil)
		}
		a, ok := ex.State().Agents[req.AgentID]
		if !ok {
			return ojproto.NewError(msg.ID, msg.Action, ojproto.ErrorCodeNotFound, "agent not found: "+req.AgentID, nil)
		}
		adapter, ok := router.For(a.Runtime)
		if !ok {
			return ojproto.NewError(msg.ID, msg.Action, ojproto.ErrorCodeInternalError, "no adapter for runtime "+string(a.Runtime), nil)
		}
		if err := adapter.Send(ctx, req.AgentID, req.Message); err != nil {
			return errorFor(msg, ojerr.Wrap(ojerr.Spawn, "adapter send", err))
		}
		return ojproto.NewResponse(msg.ID, msg.Action, map[string]interface{}{"success": true})
	})

	d.RegisterFunc(ojproto.ActionAgentRespond, func(ctx context.Context, msg *ojproto.Message) (*ojproto.Message, error) {
		var req struct {
			AgentID string `json:"agent_id"`
			Choices []int  `json:"choices"`
			Message string `json:"message,omitempty"`
		}
		if err := msg.ParsePayload(&req); err != nil {
			return ojproto.NewError(msg.ID, msg.Action, ojproto.ErrorCodeBadRequest, err.Error(), nil)
		}
		a, ok := ex.State().Agents[req.AgentID]
		if !ok {
			return ojproto.NewError(msg.ID, msg.Action, ojproto.ErrorCodeNotFound, "agent not found: "+req.AgentID, nil)
		}
		adapter, ok := router.For(a.Runtime)
		if !ok {
			return ojproto.NewError(msg.ID, msg.Action, ojproto.ErrorCodeInternalError, "no adapter for runtime "+string(a.Runtime), nil)
		}
		if err := adapter.Respond(ctx, req.AgentID, req.Choices, req.Message); err != nil {
			return errorFor(msg, ojerr.Wrap(ojerr.Spawn, "adapter respond", err))
		}
		return ojproto.NewResponse(msg.ID, msg.Action, map[string]interface{}{"success": true})
	})

	d.RegisterFunc(ojproto.ActionAgentKill, func(ctx context.Context, msg *ojproto.Message) (*ojproto.Message, error) {
		var req struct {
			AgentID string `json:"agent_id"`
		}
		if err := msg.ParsePayload(&req); err != nil {
			return ojproto.NewError(msg.ID, msg.Action, ojproto.ErrorCodeBadRequest, err.Error(), nil)
		}
		a, ok := ex.State().Agents[req.AgentID]
		if !ok {
			return ojproto.NewError(msg.ID, msg.Action, ojproto.ErrorCodeNotFound, "agent not found: "+req.AgentID, nil)
		}
		if adapter, ok := router.For(a.Runtime); ok {
			if err := adapter.Kill(ctx, req.AgentID); err != nil {
				return errorFor(msg, ojerr.Wrap(ojerr.Spawn, "adapter kill", err))
			}
		}
		return submitOne(ctx, ex, msg, domain.Event{
			Kind:    domain.KindAgentGone,
			Payload: &domain.AgentGonePayload{AgentID: req.AgentID},
		}, map[string]interface{}{"runtime": string(a.Runtime)})
	})
}
