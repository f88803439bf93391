package ojproto

// Action names follow the teacher's action.verb dotted convention
// (SPEC_FULL.md §6.11), generalised from Kandev's board/task/agent surface
// to the daemon's job/crew/queue/worker/cron/decision surface from
// spec.md §4.11.
const (
	ActionHealthCheck = "health.check"

	ActionJobRun      = "job.run"
	ActionJobResume   = "job.resume"
	ActionJobCancel   = "job.cancel"
	ActionJobSuspend  = "job.suspend"
	ActionJobGet      = "job.get"
	ActionJobList     = "job.list"
	ActionJobDelete   = "job.delete"

	ActionCrewGet  = "crew.get"
	ActionCrewList = "crew.list"

	ActionQueuePush  = "queue.push"
	ActionQueueDrain = "queue.drain"
	ActionQueueDrop  = "queue.drop"
	ActionQueueRetry = "queue.retry"
	ActionQueueFail  = "queue.fail"
	ActionQueueDone  = "queue.done"
	ActionQueuePrune = "queue.prune"
	ActionQueueList  = "queue.list"

	ActionWorkerStart  = "worker.start"
	ActionWorkerStop   = "worker.stop"
	ActionWorkerResize = "worker.resize"
	ActionWorkerGet    = "worker.get"
	ActionWorkerList   = "worker.list"

	ActionCronStart = "cron.start"
	ActionCronStop  = "cron.stop"
	ActionCronList  = "cron.list"

	ActionDecisionResolve = "decision.resolve"
	ActionDecisionGet     = "decision.get"
	ActionDecisionList    = "decision.list"

	ActionAgentSend    = "agent.send"
	ActionAgentRespond = "agent.respond"
	ActionAgentKill    = "agent.kill"

	// Notification actions (daemon -> subscriber, debug surface only).
	ActionEventAppended = "event.appended"
)

// Error codes surfaced in an ErrorPayload.Code, mapped from ojerr.Kind by
// the listener.
const (
	ErrorCodeBadRequest    = "BAD_REQUEST"
	ErrorCodeNotFound      = "NOT_FOUND"
	ErrorCodeInternalError = "INTERNAL_ERROR"
	ErrorCodeValidation    = "VALIDATION_ERROR"
	ErrorCodeUnknownAction = "UNKNOWN_ACTION"
	ErrorCodeCircuitBreaker = "CIRCUIT_BREAKER"
	ErrorCodeRunbookLoad   = "RUNBOOK_LOAD_ERROR"
	ErrorCodeInvalidRun    = "INVALID_RUN_DIRECTIVE"
)
