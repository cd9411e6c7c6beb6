package export

import (
	"os"
	"path/filepath"

	"github.com/usertesteval/usertest/internal/ledger"
	"github.com/usertesteval/usertest/internal/runmodel"
)

// SweepStats tallies the post-export dedupe sweeps across one or more
// owner roots.
type SweepStats struct {
	ActionedQueueDupesRemoved  []string
	ActionedBucketDupesRemoved []string
}

// Sweep runs the two dedupe sweeps spec.md §4.L names against every owner
// root: removing queued-bucket ticket files once an actioned copy exists,
// and collapsing duplicate actioned-bucket copies down to the
// highest-priority bucket.
func Sweep(ownerRoots []string) (SweepStats, error) {
	var stats SweepStats
	for _, root := range ownerRoots {
		queueRemoved, err := ledger.DedupeQueuedPlanTicketFilesWhenActionedExists(root)
		if err != nil {
			return stats, err
		}
		stats.ActionedQueueDupesRemoved = append(stats.ActionedQueueDupesRemoved, queueRemoved...)

		bucketRemoved, err := ledger.DedupeActionedPlanTicketFiles(root)
		if err != nil {
			return stats, err
		}
		stats.ActionedBucketDupesRemoved = append(stats.ActionedBucketDupesRemoved, bucketRemoved...)
	}
	return stats, nil
}

// DeferExistingPlanTicket moves an already-filed plan ticket file into the
// "0.1 - deferred" bucket and marks its ticket action deferred, per a UX
// review recommending `defer` on a ticket that already has a plan file.
func DeferExistingPlanTicket(ownerRoot, existingPath string, ticketActions map[string]*runmodel.TicketAction, fingerprint string) (string, error) {
	deferredDir := filepath.Join(ownerRoot, ".agents", "plans", "0.1 - deferred")
	if err := os.MkdirAll(deferredDir, 0o755); err != nil {
		return "", err
	}
	newPath := filepath.Join(deferredDir, filepath.Base(existingPath))
	if newPath != existingPath {
		if err := os.Rename(existingPath, newPath); err != nil {
			return "", err
		}
	}

	action := ticketActions[fingerprint]
	if action == nil {
		action = &runmodel.TicketAction{}
	}
	action.Resolution = "deferred"
	action.PlanPath = newPath
	ticketActions[fingerprint] = action

	return newPath, nil
}
