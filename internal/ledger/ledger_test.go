package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/usertesteval/usertest/internal/runmodel"
)

func writeTicketFile(t *testing.T, root, bucket, filename, body string) string {
	t.Helper()
	dir := filepath.Join(root, ".agents", "plans", bucket)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

const fpA = "0123456789abcdef"
const fpB = "fedcba9876543210"

func ticketBody(atomIDs ...string) string {
	body := "# Ticket\n\nCites:\n"
	for _, id := range atomIDs {
		body += "- `" + id + "`\n"
	}
	return body
}

func TestParsePlanTicketFilename(t *testing.T) {
	name := "20260115_BLG-042_" + fpA + "_fix-preflight-docs.md"
	parsed, ok := ParsePlanTicketFilename(name)
	if !ok {
		t.Fatalf("expected match for %q", name)
	}
	if parsed.Date != "20260115" || parsed.TicketID != "BLG-042" || parsed.Fingerprint != fpA {
		t.Fatalf("unexpected parse: %+v", parsed)
	}

	if _, ok := ParsePlanTicketFilename("not-a-ticket.md"); ok {
		t.Fatalf("expected no match for non-ticket filename")
	}
}

func TestExtractAtomIDsFromMarkdown(t *testing.T) {
	atomID := "svc-a/20260110T120000Z/claude/3:run_failure_event:0"
	body := "See `" + atomID + "` and also `not-an-atom-id`."
	got := ExtractAtomIDsFromMarkdown(body)
	if len(got) != 1 || got[0] != atomID {
		t.Fatalf("got %v, want [%s]", got, atomID)
	}
}

func TestScanPlanTicketIndexMergesAcrossBuckets(t *testing.T) {
	root := t.TempDir()
	writeTicketFile(t, root, "0.5 - to_triage", "20260101_BLG-001_"+fpA+"_a.md", ticketBody())
	writeTicketFile(t, root, "3 - in_progress", "20260102_BLG-001_"+fpA+"_a.md", ticketBody())

	index, err := ScanPlanTicketIndex(root)
	if err != nil {
		t.Fatalf("ScanPlanTicketIndex: %v", err)
	}
	entry, ok := index[fpA]
	if !ok {
		t.Fatalf("expected entry for fingerprint %s", fpA)
	}
	if entry.Status != runmodel.AtomStatusActioned {
		t.Fatalf("expected actioned status once a later bucket supersedes queued, got %s", entry.Status)
	}
	if len(entry.Paths) != 2 || len(entry.Buckets) != 2 {
		t.Fatalf("expected both plan files tracked, got paths=%v buckets=%v", entry.Paths, entry.Buckets)
	}
}

func TestSyncAtomActionsFromPlanFoldersPromotesStatus(t *testing.T) {
	root := t.TempDir()
	atomID := "svc-a/20260110T120000Z/claude/3:run_failure_event:0"
	writeTicketFile(t, root, "0.5 - to_triage", "20260101_BLG-001_"+fpA+"_a.md", ticketBody(atomID))

	atoms := map[string]*runmodel.AtomAction{}
	tickets := map[string]*runmodel.TicketAction{}
	if err := SyncAtomActionsFromPlanFolders(root, atoms, tickets, "2026-01-01T00:00:00Z"); err != nil {
		t.Fatalf("SyncAtomActionsFromPlanFolders: %v", err)
	}

	action, ok := atoms[atomID]
	if !ok {
		t.Fatalf("expected atom action for %s", atomID)
	}
	if action.Status != runmodel.AtomStatusQueued {
		t.Fatalf("expected queued status, got %s", action.Status)
	}
	if len(action.TicketIDs) != 1 || action.TicketIDs[0] != "BLG-001" {
		t.Fatalf("unexpected ticket ids: %v", action.TicketIDs)
	}

	ticket, ok := tickets[fpA]
	if !ok || ticket.TicketID != "BLG-001" {
		t.Fatalf("expected ticket action for fingerprint %s, got %+v", fpA, ticket)
	}

	// A later sync pass that files the same ticket in a completed bucket
	// must promote, never regress.
	writeTicketFile(t, root, "5 - complete", "20260103_BLG-001_"+fpA+"_a.md", ticketBody(atomID))
	if err := SyncAtomActionsFromPlanFolders(root, atoms, tickets, "2026-01-03T00:00:00Z"); err != nil {
		t.Fatalf("SyncAtomActionsFromPlanFolders (2nd pass): %v", err)
	}
	if atoms[atomID].Status != runmodel.AtomStatusActioned {
		t.Fatalf("expected promotion to actioned, got %s", atoms[atomID].Status)
	}
}

func TestSyncAtomActionsFromDequeuedPlanFoldersDemotesToNew(t *testing.T) {
	root := t.TempDir()
	atomID := "svc-a/20260110T120000Z/claude/3:run_failure_event:0"

	atoms := map[string]*runmodel.AtomAction{
		atomID: {Status: runmodel.AtomStatusQueued, LastPlanBucket: "0.5 - to_triage"},
	}

	writeTicketFile(t, root, filepath.Join("0.5 - to_triage", "_dequeued"), "20260101_BLG-001_"+fpA+"_a.md", ticketBody(atomID))

	if err := SyncAtomActionsFromDequeuedPlanFolders(root, atoms, "2026-01-05T00:00:00Z"); err != nil {
		t.Fatalf("SyncAtomActionsFromDequeuedPlanFolders: %v", err)
	}
	if atoms[atomID].Status != runmodel.AtomStatusNew {
		t.Fatalf("expected demotion to new, got %s", atoms[atomID].Status)
	}
	if atoms[atomID].LastPlanBucket != "" {
		t.Fatalf("expected cleared plan bucket, got %q", atoms[atomID].LastPlanBucket)
	}
}

func TestDedupeActionedPlanTicketFilesKeepsHighestPriority(t *testing.T) {
	root := t.TempDir()
	inProgress := writeTicketFile(t, root, "3 - in_progress", "20260101_BLG-001_"+fpA+"_a.md", ticketBody())
	complete := writeTicketFile(t, root, "5 - complete", "20260102_BLG-001_"+fpA+"_a.md", ticketBody())

	removed, err := DedupeActionedPlanTicketFiles(root)
	if err != nil {
		t.Fatalf("DedupeActionedPlanTicketFiles: %v", err)
	}
	if len(removed) != 1 || removed[0] != inProgress {
		t.Fatalf("expected only the in_progress copy removed, got %v", removed)
	}
	if _, err := os.Stat(complete); err != nil {
		t.Fatalf("expected the complete bucket copy to survive: %v", err)
	}
}

func TestDedupeQueuedPlanTicketFilesWhenActionedExistsRemovesQueueCopy(t *testing.T) {
	root := t.TempDir()
	queued := writeTicketFile(t, root, "0.5 - to_triage", "20260101_BLG-001_"+fpA+"_a.md", ticketBody())
	writeTicketFile(t, root, "5 - complete", "20260102_BLG-001_"+fpA+"_a.md", ticketBody())
	otherQueued := writeTicketFile(t, root, "1 - ideas", "20260101_BLG-002_"+fpB+"_b.md", ticketBody())

	removed, err := DedupeQueuedPlanTicketFilesWhenActionedExists(root)
	if err != nil {
		t.Fatalf("DedupeQueuedPlanTicketFilesWhenActionedExists: %v", err)
	}
	if len(removed) != 1 || removed[0] != queued {
		t.Fatalf("expected only the actioned-fingerprint queue copy removed, got %v", removed)
	}
	if _, err := os.Stat(otherQueued); err != nil {
		t.Fatalf("expected unrelated queued ticket to survive: %v", err)
	}
}

func TestStoreAtomicRoundTrip(t *testing.T) {
	compiledDir := t.TempDir()
	store := NewStore(compiledDir)

	atoms, err := store.LoadAtomActions()
	if err != nil {
		t.Fatalf("LoadAtomActions (missing file): %v", err)
	}
	if len(atoms) != 0 {
		t.Fatalf("expected empty ledger for missing file, got %v", atoms)
	}

	atoms["svc-a/20260110T120000Z/claude/3:run_failure_event:0"] = &runmodel.AtomAction{
		Status:    runmodel.AtomStatusQueued,
		TicketIDs: []string{"BLG-001"},
	}
	if err := store.SaveAtomActions(atoms); err != nil {
		t.Fatalf("SaveAtomActions: %v", err)
	}

	reloaded, err := store.LoadAtomActions()
	if err != nil {
		t.Fatalf("LoadAtomActions (after save): %v", err)
	}
	action, ok := reloaded["svc-a/20260110T120000Z/claude/3:run_failure_event:0"]
	if !ok || action.Status != runmodel.AtomStatusQueued {
		t.Fatalf("expected round-tripped queued atom action, got %+v", reloaded)
	}

	entries, err := os.ReadDir(filepath.Join(compiledDir, "ledger"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".yaml" {
			t.Fatalf("expected no leftover temp file, found %q", e.Name())
		}
	}
}

func TestPromoteAtomStatusNeverRegresses(t *testing.T) {
	got := PromoteAtomStatus(runmodel.AtomStatusActioned, runmodel.AtomStatusQueued)
	if got != runmodel.AtomStatusActioned {
		t.Fatalf("expected actioned to stick, got %s", got)
	}
	got = PromoteAtomStatus(runmodel.AtomStatusNew, runmodel.AtomStatusTicketed)
	if got != runmodel.AtomStatusTicketed {
		t.Fatalf("expected promotion to ticketed, got %s", got)
	}
}
