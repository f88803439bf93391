package runtime

// Decisions are created by the job/agent/crew handlers that trigger them
// (handlers_agent.go's idle/dead/error/prompt paths, handlers_step.go's
// gate encounters via supervisor.Evaluate) rather than from a dedicated
// DecisionCreated handler — spec.md §4.9 places supersession/dominance
// enforcement in state.Apply, and there is no further runtime reaction to
// a decision's creation itself. handleDecisionResolved, the other half of
// the decision lifecycle, lives in handlers_resume.go next to the
// resume/cancel primitives it translates into.
