package ledger

import (
	"os"
	"path/filepath"

	"github.com/usertesteval/usertest/internal/runmodel"
)

func isDequeuedDirname(name string) bool {
	for _, d := range DequeuedPlanDirnames {
		if d == name {
			return true
		}
	}
	return false
}

func isActionedBucketName(name string) bool {
	for _, b := range runmodel.ActionedBucketPriority {
		if b == name {
			return true
		}
	}
	return false
}

// actionedBucketRank returns name's index in runmodel.ActionedBucketPriority
// (lower is higher priority), or -1 if name isn't an actioned bucket.
func actionedBucketRank(name string) int {
	for i, b := range runmodel.ActionedBucketPriority {
		if b == name {
			return i
		}
	}
	return -1
}

// SyncAtomActionsFromPlanFolders walks ownerRoot's `.agents/plans/<bucket>/`
// markdown files and folds the atom ids each ticket cites into atoms, and
// the ticket itself into tickets, keyed by fingerprint. nowUTC is stamped
// onto newly-seen and touched entries; callers pass a single snapshot of
// "now" so a whole sync pass is internally consistent.
func SyncAtomActionsFromPlanFolders(ownerRoot string, atoms map[string]*runmodel.AtomAction, tickets map[string]*runmodel.TicketAction, nowUTC string) error {
	buckets, err := listSubdirs(plansDir(ownerRoot))
	if err != nil {
		return err
	}

	for _, bucketName := range buckets {
		desiredStatus := runmodel.BucketAtomStatus(bucketName)
		if desiredStatus == "" {
			continue
		}

		paths, err := globMarkdown(filepath.Join(plansDir(ownerRoot), bucketName))
		if err != nil {
			return err
		}
		for _, path := range paths {
			parsed, ok := ParsePlanTicketFilename(filepath.Base(path))
			if !ok {
				continue
			}
			content, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			atomIDs := ExtractAtomIDsFromMarkdown(string(content))

			ticket := tickets[parsed.Fingerprint]
			if ticket == nil {
				ticket = &runmodel.TicketAction{Resolution: "pending"}
			}
			ticket.TicketID = parsed.TicketID
			ticket.PlanPath = path
			tickets[parsed.Fingerprint] = ticket

			for _, atomID := range atomIDs {
				action := atoms[atomID]
				if action == nil {
					action = &runmodel.AtomAction{Status: runmodel.AtomStatusNew, FirstSeenAtUTC: nowUTC}
				}
				action.Status = PromoteAtomStatus(action.Status, desiredStatus)
				action.TicketIDs = appendUnique(action.TicketIDs, parsed.TicketID)
				action.QueuePaths = appendUnique(action.QueuePaths, path)
				action.QueueOwnerRoots = appendUnique(action.QueueOwnerRoots, ownerRoot)
				action.Fingerprints = appendUnique(action.Fingerprints, parsed.Fingerprint)
				action.LastPlanBucket = bucketName
				action.LastPlanSeenAtUTC = nowUTC
				action.LastSeenAtUTC = nowUTC
				if action.FirstSeenAtUTC == "" {
					action.FirstSeenAtUTC = nowUTC
				}
				atoms[atomID] = action
			}
		}
	}
	return nil
}

// SyncAtomActionsFromDequeuedPlanFolders walks each bucket's _dequeued/
// and _archive/ subdirectories and demotes the atoms their tickets cite
// back to "new" (§3: the one allowed non-monotonic status transition).
func SyncAtomActionsFromDequeuedPlanFolders(ownerRoot string, atoms map[string]*runmodel.AtomAction, nowUTC string) error {
	buckets, err := listSubdirs(plansDir(ownerRoot))
	if err != nil {
		return err
	}

	for _, bucketName := range buckets {
		bucketDir := filepath.Join(plansDir(ownerRoot), bucketName)
		for _, dequeuedName := range DequeuedPlanDirnames {
			if !isDequeuedDirname(dequeuedName) {
				continue
			}
			paths, err := globMarkdown(filepath.Join(bucketDir, dequeuedName))
			if err != nil {
				return err
			}
			for _, path := range paths {
				if _, ok := ParsePlanTicketFilename(filepath.Base(path)); !ok {
					continue
				}
				content, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				for _, atomID := range ExtractAtomIDsFromMarkdown(string(content)) {
					action := atoms[atomID]
					if action == nil {
						continue
					}
					action.Status = runmodel.AtomStatusNew
					action.LastPlanBucket = ""
					action.LastDequeuedAtUTC = nowUTC
					action.LastSeenAtUTC = nowUTC
					action.DequeuedPaths = appendUnique(action.DequeuedPaths, path)
					action.DequeuedOwnerRoots = appendUnique(action.DequeuedOwnerRoots, ownerRoot)
					atoms[atomID] = action
				}
			}
		}
	}
	return nil
}

type planFileRef struct {
	Path        string
	Bucket      string
	Fingerprint string
}

func walkBucketFiles(ownerRoot string, keep func(bucket string) bool) ([]planFileRef, error) {
	buckets, err := listSubdirs(plansDir(ownerRoot))
	if err != nil {
		return nil, err
	}
	var out []planFileRef
	for _, bucketName := range buckets {
		if keep != nil && !keep(bucketName) {
			continue
		}
		paths, err := globMarkdown(filepath.Join(plansDir(ownerRoot), bucketName))
		if err != nil {
			return nil, err
		}
		for _, path := range paths {
			parsed, ok := ParsePlanTicketFilename(filepath.Base(path))
			if !ok {
				continue
			}
			out = append(out, planFileRef{Path: path, Bucket: bucketName, Fingerprint: parsed.Fingerprint})
		}
	}
	return out, nil
}

// DedupeActionedPlanTicketFiles removes duplicate ticket markdown files that
// ended up filed under more than one actioned bucket for the same
// fingerprint, keeping only the copy in the highest-priority bucket per
// runmodel.ActionedBucketPriority. Returns the paths it removed.
func DedupeActionedPlanTicketFiles(ownerRoot string) ([]string, error) {
	refs, err := walkBucketFiles(ownerRoot, func(b string) bool { return isActionedBucketName(b) })
	if err != nil {
		return nil, err
	}

	byFingerprint := make(map[string][]planFileRef)
	for _, r := range refs {
		byFingerprint[r.Fingerprint] = append(byFingerprint[r.Fingerprint], r)
	}

	var removed []string
	for _, group := range byFingerprint {
		if len(group) <= 1 {
			continue
		}
		keep := group[0]
		for _, r := range group[1:] {
			if actionedBucketRank(r.Bucket) < actionedBucketRank(keep.Bucket) {
				keep = r
			}
		}
		for _, r := range group {
			if r.Path == keep.Path {
				continue
			}
			if err := os.Remove(r.Path); err != nil && !os.IsNotExist(err) {
				return removed, err
			}
			removed = append(removed, r.Path)
		}
	}
	sortStrings(removed)
	return removed, nil
}

// DedupeQueuedPlanTicketFilesWhenActionedExists removes a queued-bucket
// ticket markdown file once an actioned-bucket copy of the same fingerprint
// exists, since the queue copy is now stale. Returns the paths it removed.
func DedupeQueuedPlanTicketFilesWhenActionedExists(ownerRoot string) ([]string, error) {
	actionedRefs, err := walkBucketFiles(ownerRoot, func(b string) bool { return isActionedBucketName(b) })
	if err != nil {
		return nil, err
	}
	actionedFingerprints := make(map[string]bool, len(actionedRefs))
	for _, r := range actionedRefs {
		actionedFingerprints[r.Fingerprint] = true
	}

	queuedRefs, err := walkBucketFiles(ownerRoot, func(b string) bool { return !isActionedBucketName(b) })
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, r := range queuedRefs {
		if !actionedFingerprints[r.Fingerprint] {
			continue
		}
		if err := os.Remove(r.Path); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed = append(removed, r.Path)
	}
	sortStrings(removed)
	return removed, nil
}
