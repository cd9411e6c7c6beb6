package runmodel

import "fmt"

// RunRef identifies a Run by its path tuple. It is the primary key used to
// build run_rel strings and atom ids.
type RunRef struct {
	TargetSlug   string
	TimestampDir string // YYYYMMDDThhmmssZ
	Agent        string
	Seed         string
}

// RunRel is the `<target>/<ts>/<agent>/<seed>` relative path used throughout
// the compiled artifacts and atom ids.
func (r RunRef) RunRel() string {
	return fmt.Sprintf("%s/%s/%s/%s", r.TargetSlug, r.TimestampDir, r.Agent, r.Seed)
}

// FailureSubtype is the closed set of reasons an Attempt did not cleanly
// succeed.
type FailureSubtype string

const (
	FailureNone                          FailureSubtype = "none"
	FailureProviderCapacity              FailureSubtype = "provider_capacity"
	FailureProviderAuth                  FailureSubtype = "provider_auth"
	FailureInvalidAgentConfig            FailureSubtype = "invalid_agent_config"
	FailureVerificationFailed            FailureSubtype = "verification_failed"
	FailureVerificationRejectedSentinel  FailureSubtype = "verification_rejected_sentinel"
	FailureJSONInvalid                   FailureSubtype = "json_invalid"
	FailureOther                         FailureSubtype = "other"
)

// Attempt is a single invocation of the agent binary within a Run.
type Attempt struct {
	AttemptNumber           int            `json:"attempt_number"`
	AttemptStartedUTC       string         `json:"attempt_started_utc"`
	AttemptFinishedUTC      string         `json:"attempt_finished_utc"`
	AttemptWallSeconds      float64        `json:"attempt_wall_seconds"`
	AgentExecWallSeconds    float64        `json:"agent_exec_wall_seconds"`
	ExitCode                int            `json:"exit_code"`
	FailureSubtype          FailureSubtype `json:"failure_subtype"`
	ReportValidationErrors  []string       `json:"report_validation_errors,omitempty"`
	FollowupReason          string         `json:"followup_reason,omitempty"`
	FollowupScheduled       bool           `json:"followup_scheduled"`
}

// AttemptsBundle is the contents of agent_attempts.json.
type AttemptsBundle struct {
	Attempts              []Attempt `json:"attempts"`
	RateLimitRetriesUsed  int       `json:"rate_limit_retries_used"`
	FollowupAttemptsUsed  int       `json:"followup_attempts_used"`
}

// AtLeastOneSucceeded reports whether any attempt has FailureSubtype ==
// FailureNone. It does not check that at most one attempt succeeded or that
// the successful attempt is the last one recorded.
func (b AttemptsBundle) AtLeastOneSucceeded() bool {
	for _, a := range b.Attempts {
		if a.FailureSubtype == FailureNone {
			return true
		}
	}
	return false
}

// RunsOnlyRetryAfterFailure checks the §8 invariant: for all runs R,
// sum(exit_codes of attempts[:-1]) > 0 OR len(attempts) == 1.
func (b AttemptsBundle) RunsOnlyRetryAfterFailure() bool {
	if len(b.Attempts) <= 1 {
		return true
	}
	sum := 0
	for _, a := range b.Attempts[:len(b.Attempts)-1] {
		sum += a.ExitCode
	}
	return sum > 0
}
