package orchestrator

import (
	"testing"

	"github.com/usertesteval/usertest/internal/runmodel"
)

type scriptedInvoker struct {
	results []AttemptResult
	calls   int
}

func (s *scriptedInvoker) Invoke(attemptNumber int, prompt string) (AttemptResult, error) {
	idx := s.calls
	s.calls++
	if idx >= len(s.results) {
		return AttemptResult{}, nil
	}
	return s.results[idx], nil
}

func noBackoffPolicy(retries, followups int) Policy {
	return Policy{RateLimitRetries: retries, FollowupAttempts: followups, Backoff: BackoffConfig{InitialDelayMS: 0}}
}

func TestRunAgentLoopSucceedsFirstTry(t *testing.T) {
	inv := &scriptedInvoker{results: []AttemptResult{
		{ExitCode: 0, ReportParsed: true},
	}}
	res := RunAgentLoop(inv, "base prompt", noBackoffPolicy(2, 2), "run-1")
	if res.FinalOutcome.Subtype != runmodel.FailureNone {
		t.Fatalf("subtype = %v, want none", res.FinalOutcome.Subtype)
	}
	if len(res.Attempts) != 1 {
		t.Fatalf("attempts = %d, want 1", len(res.Attempts))
	}
	if inv.calls != 1 {
		t.Fatalf("calls = %d, want 1", inv.calls)
	}
}

func TestRunAgentLoopRetriesOnProviderCapacity(t *testing.T) {
	inv := &scriptedInvoker{results: []AttemptResult{
		{ExitCode: 1, Stderr: "HTTP 429 too many requests, please retry"},
		{ExitCode: 0, ReportParsed: true},
	}}
	res := RunAgentLoop(inv, "base prompt", noBackoffPolicy(2, 2), "run-2")
	if res.FinalOutcome.Subtype != runmodel.FailureNone {
		t.Fatalf("subtype = %v, want none", res.FinalOutcome.Subtype)
	}
	if inv.calls != 2 {
		t.Fatalf("calls = %d, want 2", inv.calls)
	}
	if res.Attempts[0].FollowupReason != "provider_capacity_retry" {
		t.Fatalf("followup reason = %q", res.Attempts[0].FollowupReason)
	}
}

func TestRunAgentLoopStopsHardOnAuthFailure(t *testing.T) {
	inv := &scriptedInvoker{results: []AttemptResult{
		{ExitCode: 1, Stderr: "401 Unauthorized", LastMessageEmpty: true},
	}}
	res := RunAgentLoop(inv, "base prompt", noBackoffPolicy(3, 3), "run-3")
	if res.FinalOutcome.Subtype != runmodel.FailureProviderAuth {
		t.Fatalf("subtype = %v, want provider_auth", res.FinalOutcome.Subtype)
	}
	if inv.calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry on auth failure)", inv.calls)
	}
}

func TestRunAgentLoopStopsOnNonRetryableCapacityFromLastMessage(t *testing.T) {
	inv := &scriptedInvoker{results: []AttemptResult{
		{ExitCode: 1, LastMessage: "You've hit your limit · resets 4am"},
	}}
	res := RunAgentLoop(inv, "base prompt", noBackoffPolicy(3, 3), "run-scenario-2")
	if res.FinalOutcome.Subtype != runmodel.FailureProviderCapacity {
		t.Fatalf("subtype = %v, want provider_capacity", res.FinalOutcome.Subtype)
	}
	if res.FinalOutcome.Retryable {
		t.Fatalf("retryable = true, want false")
	}
	if inv.calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry on non-retryable capacity)", inv.calls)
	}
	if res.Attempts[0].ExitCode != 1 {
		t.Fatalf("exit code = %d, want 1", res.Attempts[0].ExitCode)
	}
}

func TestRunAgentLoopFollowsUpOnJSONInvalid(t *testing.T) {
	inv := &scriptedInvoker{results: []AttemptResult{
		{ExitCode: 0, ReportParsed: false, LastMessage: "I did the thing but forgot the report"},
		{ExitCode: 0, ReportParsed: true},
	}}
	res := RunAgentLoop(inv, "base prompt", noBackoffPolicy(0, 1), "run-4")
	if res.FinalOutcome.Subtype != runmodel.FailureNone {
		t.Fatalf("subtype = %v, want none", res.FinalOutcome.Subtype)
	}
	if inv.calls != 2 {
		t.Fatalf("calls = %d, want 2", inv.calls)
	}
	if res.Attempts[0].FollowupReason != "json_invalid_followup" {
		t.Fatalf("followup reason = %q", res.Attempts[0].FollowupReason)
	}
}

func TestRunAgentLoopStopsOnVerificationRejectedSentinel(t *testing.T) {
	inv := &scriptedInvoker{results: []AttemptResult{
		{ExitCode: 0, ReportParsed: true, VerificationRan: true, RejectedSentinel: true},
	}}
	res := RunAgentLoop(inv, "base prompt", noBackoffPolicy(0, 2), "run-5")
	if res.FinalOutcome.Subtype != runmodel.FailureVerificationRejectedSentinel {
		t.Fatalf("subtype = %v, want verification_rejected_sentinel", res.FinalOutcome.Subtype)
	}
	if inv.calls != 1 {
		t.Fatalf("calls = %d, want 1 (sentinel stops immediately)", inv.calls)
	}
}

func TestRunAgentLoopRetriesOnVerificationFailureThenSucceeds(t *testing.T) {
	inv := &scriptedInvoker{results: []AttemptResult{
		{ExitCode: 0, ReportParsed: true, VerificationRan: true, VerificationOK: false, LastMessage: "attempt one"},
		{ExitCode: 0, ReportParsed: true, VerificationRan: true, VerificationOK: true},
	}}
	res := RunAgentLoop(inv, "base prompt", noBackoffPolicy(0, 1), "run-6")
	if res.FinalOutcome.Subtype != runmodel.FailureNone {
		t.Fatalf("subtype = %v, want none", res.FinalOutcome.Subtype)
	}
	if inv.calls != 2 {
		t.Fatalf("calls = %d, want 2", inv.calls)
	}
}

func TestRunAgentLoopExhaustsFollowupsOnPersistentVerificationFailure(t *testing.T) {
	inv := &scriptedInvoker{results: []AttemptResult{
		{ExitCode: 0, ReportParsed: true, VerificationRan: true, VerificationOK: false},
		{ExitCode: 0, ReportParsed: true, VerificationRan: true, VerificationOK: false},
	}}
	res := RunAgentLoop(inv, "base prompt", noBackoffPolicy(0, 1), "run-7")
	if res.FinalOutcome.Subtype != runmodel.FailureVerificationFailed {
		t.Fatalf("subtype = %v, want verification_failed", res.FinalOutcome.Subtype)
	}
	if inv.calls != 2 {
		t.Fatalf("calls = %d, want 2", inv.calls)
	}
}

func TestRunAgentLoopStopsWhenJSONInvalidHasNoFollowupsLeft(t *testing.T) {
	inv := &scriptedInvoker{results: []AttemptResult{
		{ExitCode: 0, ReportParsed: false, LastMessage: "no report this time either"},
	}}
	res := RunAgentLoop(inv, "base prompt", noBackoffPolicy(0, 0), "run-8")
	if res.FinalOutcome.Subtype != runmodel.FailureJSONInvalid {
		t.Fatalf("subtype = %v, want json_invalid", res.FinalOutcome.Subtype)
	}
	if inv.calls != 1 {
		t.Fatalf("calls = %d, want 1", inv.calls)
	}
}
