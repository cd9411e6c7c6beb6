package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/usertesteval/usertest/internal/runmodel"
)

// AgentInvoker runs one attempt of the agent subprocess and returns its
// observable outcome. Implementations wrap the sandboxed subprocess call;
// the loop only needs the classification inputs back.
type AgentInvoker interface {
	Invoke(attemptNumber int, prompt string) (AttemptResult, error)
}

// AttemptResult is what one agent invocation produced, before
// classification.
type AttemptResult struct {
	ExitCode         int
	Stderr           string
	LastMessage      string
	LastMessageEmpty bool
	ReportParsed     bool
	// Report and ReportSchema back the schema-validation step below: Report
	// is the decoded report.json document, ReportSchema the mission's
	// decoded report_schema document. A nil ReportSchema skips validation.
	Report                 any
	ReportSchema           map[string]any
	ReportValidationErrors []string
	VerificationRan  bool
	VerificationOK   bool
	RejectedSentinel bool
}

// Policy bounds the AgentLoop's attempt budget.
type Policy struct {
	RateLimitRetries int
	FollowupAttempts int
	Backoff          BackoffConfig
}

// Result is the AgentLoop's final outcome across all attempts.
type Result struct {
	Attempts    []runmodel.Attempt
	FinalOutcome Outcome
	Stopped      string // human-readable reason the loop stopped, for run_meta.json
}

// RunAgentLoop drives the attempt loop described in §4.G's AgentLoop
// pseudocode: retry on retryable provider_capacity, stop hard on
// provider_auth/non-retryable capacity/invalid_agent_config, retry with a
// follow-up addendum on json_invalid or verification failure, otherwise
// stop on success or exhaustion.
func RunAgentLoop(invoker AgentInvoker, basePrompt string, policy Policy, runID string) Result {
	maxAttempts := 1 + policy.RateLimitRetries + policy.FollowupAttempts
	var attempts []runmodel.Attempt
	prompt := basePrompt
	retriesLeft := policy.RateLimitRetries
	followupsLeft := policy.FollowupAttempts

	for attemptNumber := 1; attemptNumber <= maxAttempts; attemptNumber++ {
		res, err := invoker.Invoke(attemptNumber, prompt)
		if err != nil {
			return Result{Attempts: attempts, FinalOutcome: Outcome{Subtype: runmodel.FailureOther}, Stopped: fmt.Sprintf("invoke error: %v", err)}
		}

		// An empty stderr with content in the last message (any exit code)
		// still needs a signal for downstream atom extraction to key off of.
		if res.Stderr == "" && strings.TrimSpace(res.LastMessage) != "" {
			res.Stderr = SyntheticStderr(res.LastMessage)
		}

		if res.ReportParsed && res.ReportSchema != nil {
			errs, err := ValidateReport(res.Report, res.ReportSchema)
			if err != nil {
				return Result{Attempts: attempts, FinalOutcome: Outcome{Subtype: runmodel.FailureOther}, Stopped: fmt.Sprintf("report schema error: %v", err)}
			}
			res.ReportValidationErrors = errs
			if len(errs) > 0 {
				res.ReportParsed = false
			}
		}

		outcome := ClassifyOutcome(res.ExitCode, res.Stderr, res.LastMessage, res.ReportParsed)

		attempt := runmodel.Attempt{
			AttemptNumber:   attemptNumber,
			ExitCode:        res.ExitCode,
			FailureSubtype:  outcome.Subtype,
			ReportValidationErrors: res.ReportValidationErrors,
		}

		switch {
		case outcome.Subtype == runmodel.FailureProviderCapacity && outcome.Retryable && retriesLeft > 0:
			attempt.FollowupReason = "provider_capacity_retry"
			attempt.FollowupScheduled = true
			attempts = append(attempts, attempt)
			retriesLeft--
			time.Sleep(DelayForAttempt(policy.RateLimitRetries-retriesLeft, policy.Backoff, fmt.Sprintf("%s:%d", runID, attemptNumber)))
			continue

		case outcome.Subtype == runmodel.FailureProviderAuth || (outcome.Subtype == runmodel.FailureProviderCapacity && !outcome.Retryable):
			attempts = append(attempts, attempt)
			return Result{Attempts: attempts, FinalOutcome: outcome, Stopped: string(outcome.Subtype)}

		case outcome.Subtype == runmodel.FailureInvalidAgentConfig:
			attempts = append(attempts, attempt)
			return Result{Attempts: attempts, FinalOutcome: outcome, Stopped: "invalid_agent_config"}

		case outcome.Subtype == runmodel.FailureJSONInvalid && followupsLeft > 0 && res.LastMessage != "":
			attempt.FollowupReason = "json_invalid_followup"
			attempt.FollowupScheduled = true
			attempts = append(attempts, attempt)
			followupsLeft--
			prompt = appendFollowup(prompt, res.LastMessage, res.ReportValidationErrors, nil)
			continue

		case outcome.Subtype == runmodel.FailureNone:
			if !res.VerificationRan {
				attempt.FailureSubtype = runmodel.FailureNone
				attempts = append(attempts, attempt)
				return Result{Attempts: attempts, FinalOutcome: outcome, Stopped: "success"}
			}
			if res.RejectedSentinel {
				attempt.FailureSubtype = runmodel.FailureVerificationRejectedSentinel
				attempts = append(attempts, attempt)
				return Result{Attempts: attempts, FinalOutcome: Outcome{Subtype: runmodel.FailureVerificationRejectedSentinel}, Stopped: "verification_rejected_sentinel"}
			}
			if !res.VerificationOK {
				if followupsLeft > 0 {
					attempt.FailureSubtype = runmodel.FailureVerificationFailed
					attempt.FollowupReason = "verification_failed_followup"
					attempt.FollowupScheduled = true
					attempts = append(attempts, attempt)
					followupsLeft--
					prompt = appendFollowup(prompt, res.LastMessage, res.ReportValidationErrors, []string{"verification failed"})
					continue
				}
				attempt.FailureSubtype = runmodel.FailureVerificationFailed
				attempts = append(attempts, attempt)
				return Result{Attempts: attempts, FinalOutcome: Outcome{Subtype: runmodel.FailureVerificationFailed}, Stopped: "verification_failed"}
			}
			attempts = append(attempts, attempt)
			return Result{Attempts: attempts, FinalOutcome: outcome, Stopped: "success"}

		default:
			attempts = append(attempts, attempt)
			if followupsLeft > 0 {
				followupsLeft--
				prompt = appendFollowup(prompt, res.LastMessage, res.ReportValidationErrors, nil)
				continue
			}
			return Result{Attempts: attempts, FinalOutcome: outcome, Stopped: "exhausted"}
		}
	}

	return Result{Attempts: attempts, FinalOutcome: Outcome{Subtype: runmodel.FailureOther}, Stopped: "attempt_budget_exhausted"}
}

// appendFollowup builds the bounded follow-up addendum named in §4.G: the
// literal previous last-message, schema validation errors, and (for
// verification failures) a tail of the failing commands' output.
func appendFollowup(prompt, lastMessage string, validationErrors []string, verificationNotes []string) string {
	out := prompt + "\n\nFollow-up required."
	if lastMessage != "" {
		out += "\n\nPrevious response:\n" + lastMessage
	}
	if len(validationErrors) > 0 {
		out += "\n\nSchema validation errors:"
		for _, e := range validationErrors {
			out += "\n- " + e
		}
	}
	for _, n := range verificationNotes {
		out += "\n\n" + n
	}
	return out
}
