package atoms

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/usertesteval/usertest/internal/history"
	"github.com/usertesteval/usertest/internal/runmodel"
)

func TestExtractAtomsConfusionPointsAndSuggestedChanges(t *testing.T) {
	rec := history.Record{
		RunRel: "demo/20260101T000000Z/codex/1",
		Agent:  "codex",
		Status: "ok",
		Report: map[string]any{
			"confusion_points": []any{
				map[string]any{"summary": "agent could not find the README"},
			},
			"suggested_changes": []any{
				map[string]any{"change": "document the setup script", "priority": "high"},
			},
			"confidence_signals": map[string]any{
				"missing": []any{"test coverage for edge case X"},
			},
		},
	}

	got := ExtractAtoms(rec)
	var sources []runmodel.AtomSource
	for _, a := range got {
		sources = append(sources, a.Source)
	}

	wantHas := func(s runmodel.AtomSource) {
		for _, got := range sources {
			if got == s {
				return
			}
		}
		t.Fatalf("missing atom source %q in %v", s, sources)
	}
	wantHas(runmodel.SourceConfusionPoint)
	wantHas(runmodel.SourceSuggestedChange)
	wantHas(runmodel.SourceConfidenceMissing)
}

func TestExtractAtomsRunFailureEventPreferredOverDuplicates(t *testing.T) {
	rec := history.Record{
		RunRel: "demo/20260101T000000Z/codex/1",
		Status: "error",
		Error:  map[string]any{"failure_subtype": "provider_auth"},
	}
	got := ExtractAtoms(rec)
	count := 0
	for _, a := range got {
		if a.Source == runmodel.SourceRunFailureEvent {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("run_failure_event atoms = %d, want 1", count)
	}
}

func TestExtractAtomsCapabilityWarningNotAlsoStderrArtifact(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "agent_stderr.txt"), []byte("warning: shell_snapshot_powershell_unsupported on this host\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	rec := history.Record{RunRel: "demo/ts/codex/1", Status: "error", RunDir: dir}
	got := ExtractAtoms(rec)

	hasWarning, hasStderrArtifact := false, false
	for _, a := range got {
		if a.Source == runmodel.SourceCapabilityWarning {
			hasWarning = true
		}
		if a.Source == runmodel.SourceAgentStderrArtifact {
			hasStderrArtifact = true
		}
	}
	if !hasWarning {
		t.Fatalf("expected capability_warning_artifact atom")
	}
	if hasStderrArtifact {
		t.Fatalf("stderr covered by a capability warning should not also emit agent_stderr_artifact")
	}
}

func TestExtractAtomsSkipsLastMessageOnQuietOkRun(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "agent_last_message.txt"), []byte("all good"), 0o644); err != nil {
		t.Fatal(err)
	}
	rec := history.Record{RunRel: "demo/ts/codex/1", Status: "ok", RunDir: dir}
	got := ExtractAtoms(rec)
	for _, a := range got {
		if a.Source == runmodel.SourceAgentLastMessageArtifact {
			t.Fatalf("quiet ok run with empty stderr should skip agent_last_message_artifact")
		}
	}
}

func TestIsRipgrepNoMatchesExcludedFromCommandFailures(t *testing.T) {
	if !isRipgrepNoMatches("rg --hidden TODO", 1) {
		t.Fatalf("rg exit 1 should be treated as no-matches")
	}
	if isRipgrepNoMatches("rg --hidden TODO", 2) {
		t.Fatalf("rg exit 2 is a real failure, not no-matches")
	}
	if isRipgrepNoMatches("grep TODO", 1) {
		t.Fatalf("grep exit 1 is not ripgrep's no-matches convention")
	}
}

func TestExtractAtomsCommandFailureFromMetrics(t *testing.T) {
	rec := history.Record{
		RunRel: "demo/ts/codex/1",
		Status: "ok",
		Metrics: map[string]any{
			"failed_commands": []any{
				map[string]any{"command": "pytest -q", "exit_code": float64(1), "output_excerpt": "1 failed"},
				map[string]any{"command": "rg TODO", "exit_code": float64(1)},
			},
		},
	}
	got := ExtractAtoms(rec)
	count := 0
	for _, a := range got {
		if a.Source == runmodel.SourceCommandFailure {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("command_failure atoms = %d, want 1 (rg no-matches excluded)", count)
	}
}
