package ledger

import "github.com/usertesteval/usertest/internal/runmodel"

// PromoteAtomStatus returns the more-advanced of old and desired, by
// AtomStatus.Rank(). An empty/unknown old status is treated as "new".
// Promotion never regresses status; only an explicit dequeue demotes an
// entry back to "new" (handled separately by the dequeue sync, not here).
func PromoteAtomStatus(old, desired runmodel.AtomStatus) runmodel.AtomStatus {
	if old == "" {
		old = runmodel.AtomStatusNew
	}
	if desired.Rank() > old.Rank() {
		return desired
	}
	return old
}
