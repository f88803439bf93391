package supervisor

import (
	"time"
)

// AutoResumeSuppressWindow is the spec.md §4.6.3 window inside which a
// job/crew that was just nudged back to working suppresses another
// automatic resume attempt, to avoid a nudge storm against an agent that
// is simply slow to react.
const AutoResumeSuppressWindow = 60 * time.Second

// ShouldSuppressAutoResume reports whether lastNudge is recent enough
// that another automatic resume should be withheld.
func ShouldSuppressAutoResume(lastNudge time.Time, now time.Time) bool {
	if lastNudge.IsZero() {
		return false
	}
	return now.Sub(lastNudge) < AutoResumeSuppressWindow
}
