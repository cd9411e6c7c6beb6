// Package orchestrator implements the per-run state machine: Acquire ->
// Preflight -> Compose -> AgentLoop -> Verify -> Finalize (§4.G).
package orchestrator

import (
	"regexp"
	"strings"

	"github.com/usertesteval/usertest/internal/runmodel"
)

// retryablePatterns match stderr text that marks a provider_capacity
// failure as retryable: HTTP 429 with a retry hint, capacity exhaustion,
// and transient DNS resolution failures.
var retryablePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b429\b.*retry`),
	regexp.MustCompile(`(?i)exhausted your capacity quota`),
	regexp.MustCompile(`(?i)nameresolutionerror`),
}

// nonRetryablePatterns mark a provider_capacity failure whose stderr still
// reads as capacity-related but should not consume a retry slot (e.g. a
// long-lived quota reset window rather than a transient condition).
var nonRetryablePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)hit your limit.*resets\s+\d`),
}

var authPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b401\b`),
	regexp.MustCompile(`(?i)\b403\b`),
	regexp.MustCompile(`(?i)unauthorized`),
	regexp.MustCompile(`(?i)forbidden`),
}

// ClassifyOutcome inspects an attempt's exit code, stderr, last-message
// text, and whether the report parsed, and returns the failure subtype
// plus whether this outcome should consume a retry slot.
type Outcome struct {
	Subtype     runmodel.FailureSubtype
	Retryable   bool
	ConsumesFollowup bool
}

func anyMatch(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// ClassifyOutcome implements the AgentLoop's `classify_outcome` step (§4.G).
func ClassifyOutcome(exitCode int, stderr, lastMessage string, reportParsed bool) Outcome {
	// A capacity or auth signal can arrive in either stream: some provider
	// CLIs write it to stderr, others only surface it in the last message
	// with an empty stderr. Match against both combined, not stderr alone.
	combined := strings.ToLower(strings.TrimSpace(stderr + "\n" + lastMessage))

	if anyMatch(authPatterns, combined) {
		return Outcome{Subtype: runmodel.FailureProviderAuth, Retryable: false, ConsumesFollowup: false}
	}

	if anyMatch(nonRetryablePatterns, combined) {
		return Outcome{Subtype: runmodel.FailureProviderCapacity, Retryable: false}
	}
	if anyMatch(retryablePatterns, combined) {
		return Outcome{Subtype: runmodel.FailureProviderCapacity, Retryable: true}
	}

	if exitCode == 0 && !reportParsed {
		return Outcome{Subtype: runmodel.FailureJSONInvalid, ConsumesFollowup: true}
	}
	if exitCode == 0 && reportParsed {
		return Outcome{Subtype: runmodel.FailureNone}
	}

	return Outcome{Subtype: runmodel.FailureOther}
}

// SyntheticStderr builds the `[synthetic_stderr]`-prefixed stand-in used
// when the agent exited 0 but produced no report, so downstream atom
// extraction still has a signal to key off of.
func SyntheticStderr(lastMessage string) string {
	trimmed := strings.TrimSpace(lastMessage)
	if trimmed == "" {
		return "[synthetic_stderr] agent exited 0 with no report and an empty last message"
	}
	return "[synthetic_stderr] " + trimmed
}
