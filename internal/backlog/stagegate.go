package backlog

import "github.com/usertesteval/usertest/internal/runmodel"

const (
	RiskInsufficientRunBreadthForNonHighSeverity = "insufficient_run_breadth_for_non_high_severity"
	RiskInsufficientModelBreadthForLowSeverity   = "insufficient_model_breadth_for_low_severity"
)

// ApplyStageGate evaluates the stage-gate DAG (§4.K step 3) against one
// ticket's computed breadth/model_breadth, in the table's own order, and
// returns the resulting stage and any risks the gate adds. labelerQuorumMet
// reports whether the per-ticket labeler cache reached Policy.LabelerQuorum
// agreeing labels — that lookup itself lives in the export/ledger layer,
// which owns the on-disk labeler cache; this function only consumes the
// yes/no result.
func ApplyStageGate(ticket runmodel.Ticket, modelBreadth int, policy Policy, labelerQuorumMet bool) (runmodel.Stage, []string) {
	breadth := ticket.Breadth

	if policy.HasHighSurfaceKind(ticket.ChangeSurface.Kinds) && breadth.Runs < policy.MinBreadthForHighSurface {
		return runmodel.StageResearchRequired, nil
	}

	if ticket.Severity.Rank() < runmodel.SeverityHigh.Rank() && breadth.Runs < 2 {
		return runmodel.StageBlocked, []string{RiskInsufficientRunBreadthForNonHighSeverity}
	}

	if ticket.Severity == runmodel.SeverityLow && modelBreadth < 2 {
		return runmodel.StageBlocked, []string{RiskInsufficientModelBreadthForLowSeverity}
	}

	if labelerQuorumMet {
		return runmodel.StageReadyForTicket, nil
	}

	return runmodel.StageTriage, nil
}

// EvaluateTicket computes breadth + model_breadth from the ticket's
// evidence atom IDs via lookup, applies the stage gate, and returns the
// ticket with Breadth, Stage, and Risks populated (ChangeSurface,
// Severity, and the rest of the ticket's fields are left untouched).
func EvaluateTicket(ticket runmodel.Ticket, lookup AtomLookup, policy Policy, labelerQuorumMet bool) runmodel.Ticket {
	ticket.Breadth = ComputeBreadth(ticket.EvidenceAtomIDs, lookup)
	modelBreadth := ComputeModelBreadth(ticket.EvidenceAtomIDs, lookup)
	ticket.Stage, ticket.Risks = ApplyStageGate(ticket, modelBreadth, policy, labelerQuorumMet)
	return ticket
}
