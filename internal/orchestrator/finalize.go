package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/usertesteval/usertest/internal/runmodel"
)

// RunMeta is run_meta.json: the top-level record of how a run concluded,
// independent of the per-attempt detail in agent_attempts.json.
type RunMeta struct {
	RunRel        string                 `json:"run_rel"`
	Target        string                 `json:"target"`
	TimestampDir  string                 `json:"timestamp_dir"`
	Agent         string                 `json:"agent"`
	Seed          string                 `json:"seed"`
	StartedUTC    string                 `json:"started_utc"`
	FinishedUTC   string                 `json:"finished_utc"`
	FinalSubtype  runmodel.FailureSubtype `json:"final_failure_subtype"`
	StopReason    string                 `json:"stop_reason"`
	AttemptCount  int                    `json:"attempt_count"`
}

// Finalize writes the artifact set named in §4.G's Finalize step for one
// run directory: agent_attempts.json, run_meta.json, and (when present)
// error.json. Artifacts produced earlier in the run (prompt.txt,
// raw/normalized events, report.json, etc.) are written by their owning
// pipeline stage (Compose, AgentLoop, Verify) as they're produced; this
// step only writes what depends on the loop's final outcome.
func Finalize(runDir string, ref runmodel.RunRef, result Result, startedUTC, finishedUTC string) error {
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("mkdir run dir: %w", err)
	}

	bundle := runmodel.AttemptsBundle{Attempts: result.Attempts}
	for _, a := range result.Attempts {
		if a.FollowupScheduled && a.FollowupReason == "provider_capacity_retry" {
			bundle.RateLimitRetriesUsed++
		} else if a.FollowupScheduled {
			bundle.FollowupAttemptsUsed++
		}
	}
	if err := writeJSON(filepath.Join(runDir, "agent_attempts.json"), bundle); err != nil {
		return err
	}

	meta := RunMeta{
		RunRel:       ref.RunRel(),
		Target:       ref.TargetSlug,
		TimestampDir: ref.TimestampDir,
		Agent:        ref.Agent,
		Seed:         ref.Seed,
		StartedUTC:   startedUTC,
		FinishedUTC:  finishedUTC,
		FinalSubtype: result.FinalOutcome.Subtype,
		StopReason:   result.Stopped,
		AttemptCount: len(result.Attempts),
	}
	if err := writeJSON(filepath.Join(runDir, "run_meta.json"), meta); err != nil {
		return err
	}

	if result.FinalOutcome.Subtype != runmodel.FailureNone {
		errDoc := map[string]any{
			"failure_subtype": result.FinalOutcome.Subtype,
			"stop_reason":     result.Stopped,
		}
		if err := writeJSON(filepath.Join(runDir, "error.json"), errDoc); err != nil {
			return err
		}
	}

	return nil
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	b = append(b, '\n')
	return os.WriteFile(path, b, 0o644)
}

// NowUTC returns the current time formatted as the `YYYYMMDDThhmmssZ`
// timestamp used throughout run_rel paths and run_meta.json.
func NowUTC() string {
	return time.Now().UTC().Format("20060102T150405Z")
}
