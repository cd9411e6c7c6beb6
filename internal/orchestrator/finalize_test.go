package orchestrator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/usertesteval/usertest/internal/runmodel"
)

func TestFinalizeWritesAttemptsAndMeta(t *testing.T) {
	dir := t.TempDir()
	ref := runmodel.RunRef{TargetSlug: "demo", TimestampDir: "20260730T000000Z", Agent: "codex", Seed: "1"}
	result := Result{
		Attempts: []runmodel.Attempt{
			{AttemptNumber: 1, ExitCode: 1, FailureSubtype: runmodel.FailureProviderCapacity, FollowupReason: "provider_capacity_retry", FollowupScheduled: true},
			{AttemptNumber: 2, ExitCode: 0, FailureSubtype: runmodel.FailureNone},
		},
		FinalOutcome: Outcome{Subtype: runmodel.FailureNone},
		Stopped:      "success",
	}

	if err := Finalize(dir, ref, result, "2026-07-30T00:00:00Z", "2026-07-30T00:01:00Z"); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	var bundle runmodel.AttemptsBundle
	readJSON(t, filepath.Join(dir, "agent_attempts.json"), &bundle)
	if len(bundle.Attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(bundle.Attempts))
	}
	if bundle.RateLimitRetriesUsed != 1 {
		t.Fatalf("rate_limit_retries_used = %d, want 1", bundle.RateLimitRetriesUsed)
	}

	var meta RunMeta
	readJSON(t, filepath.Join(dir, "run_meta.json"), &meta)
	if meta.RunRel != ref.RunRel() {
		t.Fatalf("run_rel = %q", meta.RunRel)
	}
	if meta.FinalSubtype != runmodel.FailureNone {
		t.Fatalf("final subtype = %v", meta.FinalSubtype)
	}

	if _, err := os.Stat(filepath.Join(dir, "error.json")); !os.IsNotExist(err) {
		t.Fatalf("expected no error.json on a successful run")
	}
}

func TestFinalizeWritesErrorJSONOnFailure(t *testing.T) {
	dir := t.TempDir()
	ref := runmodel.RunRef{TargetSlug: "demo", TimestampDir: "20260730T000000Z", Agent: "codex", Seed: "1"}
	result := Result{
		Attempts:     []runmodel.Attempt{{AttemptNumber: 1, FailureSubtype: runmodel.FailureProviderAuth}},
		FinalOutcome: Outcome{Subtype: runmodel.FailureProviderAuth},
		Stopped:      "provider_auth",
	}
	if err := Finalize(dir, ref, result, "2026-07-30T00:00:00Z", "2026-07-30T00:01:00Z"); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	var errDoc map[string]any
	readJSON(t, filepath.Join(dir, "error.json"), &errDoc)
	if errDoc["failure_subtype"] != string(runmodel.FailureProviderAuth) {
		t.Fatalf("error.json failure_subtype = %v", errDoc["failure_subtype"])
	}
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		t.Fatalf("unmarshal %s: %v", path, err)
	}
}
