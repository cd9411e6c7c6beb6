package orchestrator

import (
	"testing"

	"github.com/usertesteval/usertest/internal/runmodel"
)

func TestClassifyOutcomeNonRetryableCapacityFromLastMessageOnly(t *testing.T) {
	outcome := ClassifyOutcome(1, "", "You've hit your limit · resets 4am", false)
	if outcome.Subtype != runmodel.FailureProviderCapacity {
		t.Fatalf("subtype = %v, want provider_capacity", outcome.Subtype)
	}
	if outcome.Retryable {
		t.Fatalf("retryable = true, want false")
	}
}

func TestClassifyOutcomeRetryableCapacityFromLastMessageOnly(t *testing.T) {
	outcome := ClassifyOutcome(1, "", "429 too many requests, please retry shortly", false)
	if outcome.Subtype != runmodel.FailureProviderCapacity {
		t.Fatalf("subtype = %v, want provider_capacity", outcome.Subtype)
	}
	if !outcome.Retryable {
		t.Fatalf("retryable = false, want true")
	}
}

func TestClassifyOutcomeAuthFromLastMessageOnly(t *testing.T) {
	outcome := ClassifyOutcome(1, "", "403 Forbidden: token expired", false)
	if outcome.Subtype != runmodel.FailureProviderAuth {
		t.Fatalf("subtype = %v, want provider_auth", outcome.Subtype)
	}
	if outcome.Retryable {
		t.Fatalf("retryable = true, want false")
	}
}

func TestSyntheticStderrUsesLastMessage(t *testing.T) {
	got := SyntheticStderr("You've hit your limit")
	want := "[synthetic_stderr] You've hit your limit"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSyntheticStderrFallsBackWhenLastMessageEmpty(t *testing.T) {
	got := SyntheticStderr("   ")
	want := "[synthetic_stderr] agent exited 0 with no report and an empty last message"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
