// Package export implements the export half of Export & Ledger (§4.L):
// turning exportable backlog tickets into idea/ticket markdown filed into an
// owner repo's `.agents/plans/` tree, folding the write into the
// atom-action and ticket-action ledgers, and sweeping stale plan-folder
// duplicates after each pass.
package export

import "github.com/usertesteval/usertest/internal/runmodel"

// ExportKind is the idea-markdown template a ticket renders with.
type ExportKind string

const (
	ExportKindResearch       ExportKind = "research"
	ExportKindImplementation ExportKind = "implementation"
)

// KindForStage picks the export template for a ticket's stage. Only
// research_required renders the research/ADR template; every other
// exportable stage (ready_for_ticket, triage) renders as an implementation
// ticket, per the reference fixtures in
// test_reports_export_tickets_command.py (a "triage"-stage ticket still
// exports — into the to_triage bucket — with export_kind "implementation").
func KindForStage(stage runmodel.Stage) ExportKind {
	if stage == runmodel.StageResearchRequired {
		return ExportKindResearch
	}
	return ExportKindImplementation
}

// ExportEligible reports whether a ticket's stage is ever exported.
// "blocked" tickets are withheld entirely; everything else (triage,
// research_required, ready_for_ticket) is exportable — "triage" files into
// the to_triage bucket rather than being skipped.
func ExportEligible(stage runmodel.Stage) bool {
	return stage != runmodel.StageBlocked
}

// BucketForStage picks the plan-folder bucket an exported ticket is filed
// into: triage-stage tickets go to the pre-triage bucket, everything else
// (research or ready-for-ticket) goes to ideas.
func BucketForStage(stage runmodel.Stage) string {
	if stage == runmodel.StageTriage {
		return "0.5 - to_triage"
	}
	return "1 - ideas"
}

// UXRecommendation is one ticket-targeted recommendation from an external
// UX review pass. This repo doesn't generate UX reviews; it only consumes
// and files them.
type UXRecommendation struct {
	RecommendationID    string   `json:"recommendation_id"`
	TicketIDs           []string `json:"ticket_ids"`
	RecommendedApproach string   `json:"recommended_approach"`
	Rationale           string   `json:"rationale"`
	NextSteps           []string `json:"next_steps"`
}

// UXReview is the full set of recommendations produced for one target.
type UXReview struct {
	Recommendations []UXRecommendation `json:"recommendations"`
}

// RecommendationForTicket returns the first recommendation citing ticketID.
func (r UXReview) RecommendationForTicket(ticketID string) (UXRecommendation, bool) {
	for _, rec := range r.Recommendations {
		for _, id := range rec.TicketIDs {
			if id == ticketID {
				return rec, true
			}
		}
	}
	return UXRecommendation{}, false
}

// IsDefer reports whether a recommendation asks to defer the ticket rather
// than pursue it.
func (r UXRecommendation) IsDefer() bool {
	return r.RecommendedApproach == "defer"
}
