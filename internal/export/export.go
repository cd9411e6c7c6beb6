package export

import (
	"fmt"
	"sort"

	"github.com/usertesteval/usertest/internal/backlog"
	"github.com/usertesteval/usertest/internal/ledger"
	"github.com/usertesteval/usertest/internal/runmodel"
)

// Options configures one export-tickets pass over a target's compiled
// backlog.
type Options struct {
	RepoRoot       string
	ScopeRepoInput string
	CLIRepoInput   string
	OwnerAliases   OwnerAliases
	NowUTC         string
	UXReview       *UXReview
}

// Result is one ticket's export outcome.
type Result struct {
	TicketID    string
	ExportKind  ExportKind
	Fingerprint string
	OwnerRoot   string
	OwnerInput  string
	Resolution  string
	IdeaPath    string
	Labels      []string
	Skipped     bool
	SkipReason  string
}

// Stats tallies one export-tickets pass.
type Stats struct {
	ExportsTotal             int
	SkippedActioned          int
	SkippedExistingPlan      int
	IdeaFilesWritten         int
	QueuedAtomsTouched       int
	UXRecommendationsApplied int
}

func appendUniqueString(ss []string, v string) []string {
	for _, s := range ss {
		if s == v {
			return ss
		}
	}
	out := append(append([]string(nil), ss...), v)
	sort.Strings(out)
	return out
}

// ExportTickets renders an idea markdown for each exportable, not-yet-filed
// ticket, folding the write into atoms and ticketActions. planIndex is a
// pre-scan (ledger.ScanPlanTicketIndex, across every owner root a caller
// cares about) keyed by fingerprint, used to skip tickets already filed
// anywhere.
func ExportTickets(
	tickets []runmodel.Ticket,
	opts Options,
	planIndex map[string]ledger.PlanIndexEntry,
	atoms map[string]*runmodel.AtomAction,
	ticketActions map[string]*runmodel.TicketAction,
) ([]Result, Stats, error) {
	var results []Result
	var stats Stats
	dateStamp := DateStampFromUTC(opts.NowUTC)

	for _, ticket := range tickets {
		if !ExportEligible(ticket.Stage) {
			continue
		}

		fingerprint := ticket.Fingerprint
		if fingerprint == "" {
			fingerprint = backlog.TicketFingerprint(ticket)
		}

		if entry, exists := planIndex[fingerprint]; exists {
			touchExistingPlanAtoms(atoms, ticket, entry.Status, opts.NowUTC)
			if entry.Status == runmodel.AtomStatusActioned {
				stats.SkippedActioned++
			} else {
				stats.SkippedExistingPlan++
			}
			results = append(results, Result{TicketID: ticket.TicketID, Fingerprint: fingerprint, Skipped: true, SkipReason: "existing_plan"})
			continue
		}

		ownerRoot, ownerInput, resolution := ResolveOwnerRepoRoot(ticket, opts.ScopeRepoInput, opts.CLIRepoInput, opts.RepoRoot, opts.OwnerAliases)
		kind := KindForStage(ticket.Stage)
		bucket := BucketForStage(ticket.Stage)
		body := RenderIdeaMarkdown(ticket, kind, fingerprint)

		var labels []string
		if opts.UXReview != nil {
			if rec, ok := opts.UXReview.RecommendationForTicket(ticket.TicketID); ok {
				stats.UXRecommendationsApplied++
				if rec.IsDefer() {
					// Deferred tickets are filed by the caller into
					// "0.1 - deferred" via DeferExistingPlanTicket, not exported here.
					results = append(results, Result{TicketID: ticket.TicketID, Fingerprint: fingerprint, Skipped: true, SkipReason: "ux_deferred"})
					continue
				}
				section, recLabels := RenderUXReviewSection(rec)
				body += section
				labels = recLabels
			}
		}

		path, err := WriteIdeaFile(ownerRoot, bucket, ticket.TicketID, fingerprint, ticket.Title, dateStamp, body)
		if err != nil {
			return results, stats, fmt.Errorf("export ticket %s: %w", ticket.TicketID, err)
		}
		stats.IdeaFilesWritten++
		stats.ExportsTotal++

		for _, atomID := range ticket.EvidenceAtomIDs {
			action := atoms[atomID]
			if action == nil {
				action = &runmodel.AtomAction{Status: runmodel.AtomStatusNew, FirstSeenAtUTC: opts.NowUTC}
			}
			action.Status = ledger.PromoteAtomStatus(action.Status, runmodel.AtomStatusQueued)
			action.TicketIDs = appendUniqueString(action.TicketIDs, ticket.TicketID)
			action.QueuePaths = appendUniqueString(action.QueuePaths, path)
			action.QueueOwnerRoots = appendUniqueString(action.QueueOwnerRoots, ownerRoot)
			action.Fingerprints = appendUniqueString(action.Fingerprints, fingerprint)
			action.LastPlanBucket = bucket
			action.LastSeenAtUTC = opts.NowUTC
			if action.FirstSeenAtUTC == "" {
				action.FirstSeenAtUTC = opts.NowUTC
			}
			atoms[atomID] = action
			stats.QueuedAtomsTouched++
		}

		ticketActions[fingerprint] = &runmodel.TicketAction{TicketID: ticket.TicketID, Resolution: "exported", PlanPath: path}

		results = append(results, Result{
			TicketID: ticket.TicketID, ExportKind: kind, Fingerprint: fingerprint,
			OwnerRoot: ownerRoot, OwnerInput: ownerInput, Resolution: resolution,
			IdeaPath: path, Labels: labels,
		})
	}

	return results, stats, nil
}

// touchExistingPlanAtoms promotes a ticket's cited atoms to the status its
// already-filed plan entry implies, even when the ticket itself isn't
// re-exported — the ledger must still reflect where the ticket landed.
func touchExistingPlanAtoms(atoms map[string]*runmodel.AtomAction, ticket runmodel.Ticket, planStatus runmodel.AtomStatus, nowUTC string) {
	for _, atomID := range ticket.EvidenceAtomIDs {
		action := atoms[atomID]
		if action == nil {
			action = &runmodel.AtomAction{Status: runmodel.AtomStatusNew, FirstSeenAtUTC: nowUTC}
		}
		action.Status = ledger.PromoteAtomStatus(action.Status, planStatus)
		action.TicketIDs = appendUniqueString(action.TicketIDs, ticket.TicketID)
		action.LastSeenAtUTC = nowUTC
		if action.FirstSeenAtUTC == "" {
			action.FirstSeenAtUTC = nowUTC
		}
		atoms[atomID] = action
	}
}
