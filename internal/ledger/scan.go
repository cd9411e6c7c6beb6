package ledger

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/usertesteval/usertest/internal/runmodel"
)

// PlanIndexEntry is one fingerprint's merged state across every plan file
// that carries it, across every bucket it has appeared in.
type PlanIndexEntry struct {
	Status    runmodel.AtomStatus
	Paths     []string
	Buckets   []string
	TicketIDs []string
}

func plansDir(ownerRoot string) string {
	return filepath.Join(ownerRoot, ".agents", "plans")
}

func listSubdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func globMarkdown(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// ScanPlanTicketIndex builds a fingerprint -> PlanIndexEntry index by
// walking ownerRoot's `.agents/plans/<bucket>/*.md` files.
func ScanPlanTicketIndex(ownerRoot string) (map[string]PlanIndexEntry, error) {
	index := make(map[string]PlanIndexEntry)

	buckets, err := listSubdirs(plansDir(ownerRoot))
	if err != nil {
		return nil, err
	}

	for _, bucketName := range buckets {
		desiredStatus := runmodel.BucketAtomStatus(bucketName)
		if desiredStatus == "" {
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

			entry, exists := index[parsed.Fingerprint]
			if !exists {
				entry = PlanIndexEntry{Status: desiredStatus}
			}
			entry.Status = PromoteAtomStatus(entry.Status, desiredStatus)
			entry.Paths = appendUnique(entry.Paths, path)
			entry.Buckets = appendUnique(entry.Buckets, bucketName)
			entry.TicketIDs = appendUnique(entry.TicketIDs, parsed.TicketID)
			index[parsed.Fingerprint] = entry
		}
	}

	return index, nil
}
