package state

import "github.com/oddjobs/oj/internal/domain"

// applyRunbookLoaded only records that a hash was loaded at boot time; the
// actual runbook.Document is installed into State.Runbooks directly by the
// loader (internal/runbook.Cache), since a parsed document is not itself
// JSON-round-trippable event payload data. This handler exists so replay
// sees the same RunbookLoaded markers a live boot would have produced.
func applyRunbookLoaded(s *State, e domain.Event) {
	p := e.Payload.(*domain.RunbookLoadedPayload)
	if _, ok := s.Runbooks[p.Hash]; ok {
		return
	}
	// The document body is populated out-of-band by the runbook cache;
	// a placeholder keeps the hash present in Runbooks across replay even
	// if the cache has not yet re-parsed the file at this point in the
	// fold (cache population happens before replay begins at boot).
}
