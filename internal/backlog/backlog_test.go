package backlog

import (
	"testing"

	"github.com/usertesteval/usertest/internal/runmodel"
)

func fixtureAtoms() map[string]runmodel.Atom {
	return map[string]runmodel.Atom{
		"a1": {RunRel: "t/ts1/codex/0", Agent: "codex", TargetSlug: "t", RepoInput: "https://x/repo.git", MissionID: "m1"},
		"a2": {RunRel: "t/ts2/claude/0", Agent: "claude", TargetSlug: "t", RepoInput: "https://x/repo.git", MissionID: "m1"},
		"a3": {RunRel: "t/ts3/gemini/0", Agent: "gemini", TargetSlug: "t", RepoInput: "https://x/repo.git", MissionID: "m1"},
	}
}

func lookupFromFixture(atoms map[string]runmodel.Atom) AtomLookup {
	return func(id string) (runmodel.Atom, bool) {
		a, ok := atoms[id]
		return a, ok
	}
}

func TestComputeBreadthCountsDistinctDimensions(t *testing.T) {
	lookup := lookupFromFixture(fixtureAtoms())
	breadth := ComputeBreadth([]string{"a1", "a2", "a3", "missing"}, lookup)
	if breadth.Runs != 3 || breadth.Agents != 3 || breadth.Missions != 1 || breadth.Targets != 1 || breadth.RepoInputs != 1 {
		t.Fatalf("unexpected breadth: %+v", breadth)
	}
}

func TestApplyStageGateBlocksNonHighSeverityWithSingleRun(t *testing.T) {
	ticket := runmodel.Ticket{
		Severity: runmodel.SeverityMedium,
		Breadth:  runmodel.Breadth{Runs: 1},
	}
	stage, risks := ApplyStageGate(ticket, 1, DefaultPolicy(), true)
	if stage != runmodel.StageBlocked {
		t.Fatalf("stage = %q, want blocked", stage)
	}
	if len(risks) != 1 || risks[0] != RiskInsufficientRunBreadthForNonHighSeverity {
		t.Fatalf("risks = %v, want [%s]", risks, RiskInsufficientRunBreadthForNonHighSeverity)
	}
}

func TestApplyStageGateBlocksLowSeverityWithSingleModel(t *testing.T) {
	ticket := runmodel.Ticket{
		Severity: runmodel.SeverityLow,
		Breadth:  runmodel.Breadth{Runs: 3},
	}
	stage, risks := ApplyStageGate(ticket, 1, DefaultPolicy(), true)
	if stage != runmodel.StageBlocked || risks[0] != RiskInsufficientModelBreadthForLowSeverity {
		t.Fatalf("got stage=%q risks=%v", stage, risks)
	}
}

func TestApplyStageGateResearchRequiredForHighSurfaceLowBreadth(t *testing.T) {
	ticket := runmodel.Ticket{
		Severity:      runmodel.SeverityHigh,
		Breadth:       runmodel.Breadth{Runs: 1},
		ChangeSurface: runmodel.ChangeSurface{Kinds: []string{"architecture_change"}},
	}
	stage, _ := ApplyStageGate(ticket, 3, DefaultPolicy(), true)
	if stage != runmodel.StageResearchRequired {
		t.Fatalf("stage = %q, want research_required", stage)
	}
}

func TestApplyStageGateReadyForTicketViaQuorum(t *testing.T) {
	ticket := runmodel.Ticket{
		Severity: runmodel.SeverityHigh,
		Breadth:  runmodel.Breadth{Runs: 3},
	}
	stage, risks := ApplyStageGate(ticket, 3, DefaultPolicy(), true)
	if stage != runmodel.StageReadyForTicket || len(risks) != 0 {
		t.Fatalf("got stage=%q risks=%v, want ready_for_ticket with no risks", stage, risks)
	}
}

func TestApplyStageGateFallsBackToTriageWithoutQuorum(t *testing.T) {
	ticket := runmodel.Ticket{
		Severity: runmodel.SeverityHigh,
		Breadth:  runmodel.Breadth{Runs: 3},
	}
	stage, _ := ApplyStageGate(ticket, 3, DefaultPolicy(), false)
	if stage != runmodel.StageTriage {
		t.Fatalf("stage = %q, want triage", stage)
	}
}

func TestTicketFingerprintStableAndSensitiveToOwner(t *testing.T) {
	base := runmodel.Ticket{
		Title:         "Add quickstart docs",
		Problem:       "No quickstart section in README",
		ChangeSurface: runmodel.ChangeSurface{Kinds: []string{"docs_change"}},
	}
	fp1 := TicketFingerprint(base)
	fp2 := TicketFingerprint(base)
	if fp1 != fp2 || len(fp1) != 16 {
		t.Fatalf("fingerprint not stable/16 hex chars: %q vs %q", fp1, fp2)
	}

	withOwner := base
	withOwner.SuggestedOwner = "docs-team"
	if TicketFingerprint(withOwner) == fp1 {
		t.Fatalf("expected owner to change the fingerprint")
	}
}
