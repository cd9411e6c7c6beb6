package atoms

import (
	"fmt"
	"sort"
	"strings"

	"github.com/usertesteval/usertest/internal/history"
	"github.com/usertesteval/usertest/internal/runmodel"
)

const maxTopFailedCommands = 5

func classifyCommandFailureKind(command string, exitCode int, outputExcerpt string) string {
	text := strings.ToLower(outputExcerpt)
	cmdLower := strings.ToLower(command)

	switch {
	case exitCode == 124 || exitCode == 137 || strings.Contains(text, "timed out") || strings.Contains(text, "timeout"):
		return "timeout"
	case exitCode == 127 || strings.Contains(text, "command not found"):
		return "command_not_found"
	case strings.Contains(text, "no module named"):
		return "python_import_error"
	case strings.Contains(text, "temporary failure in name resolution") || strings.Contains(text, "nameresolutionerror"):
		return "network_name_resolution"
	case strings.Contains(text, "permission denied") || strings.Contains(text, "access is denied"):
		return "permission_denied"
	case strings.Contains(text, "no such file or directory") || strings.Contains(text, "cannot find the path specified"):
		return "missing_path"
	case strings.Contains(text, "connection reset") || strings.Contains(text, "connection aborted") || strings.Contains(text, "connection refused"):
		return "network_connection"
	case strings.Contains(cmdLower, "pip") && (strings.Contains(text, "ssl") || strings.Contains(text, "certificate")):
		return "network_tls"
	default:
		return "nonzero_exit"
	}
}

type commandFailureBreakdown struct {
	TotalFailedCommands int                 `json:"total_failed_commands"`
	FailureKindCounts    map[string]int      `json:"failure_kind_counts"`
	TopFailedCommands    []topFailedCommand  `json:"top_failed_commands"`
	TopFailedCommandsMax int                 `json:"top_failed_commands_max"`
}

type topFailedCommand struct {
	Command      string         `json:"command"`
	Failures     int            `json:"failures"`
	FailureKinds map[string]int `json:"failure_kinds"`
}

// metricsRun is one run's worth of accounting used by the aggregator:
// eligible runs (those passing upstream filtering) contribute both their
// raw executed/failed counts and their failed-command breakdown.
type metricsRun struct {
	RunRel         string
	Agent          string
	TargetSlug     string
	RepoInput      string
	MissionID      string
	PersonaID      string
	CommandsExec   int
	CommandsFailed int
	RunDir         string
	Metrics        map[string]any
}

func collectCommandFailureBreakdown(runs []metricsRun, maxTop int) *commandFailureBreakdown {
	commandCounts := map[string]int{}
	kindCounts := map[string]int{}
	commandKindCounts := map[[2]string]int{}

	for _, run := range runs {
		var failures []failedCommand
		if run.Metrics != nil {
			failures = failedCommandsFromMetrics(run.Metrics)
		}
		if len(failures) == 0 && run.RunDir != "" {
			failures = failedCommandsFromEvents(run.RunDir)
		}
		for _, f := range failures {
			kind := classifyCommandFailureKind(f.Command, f.ExitCode, f.OutputExcerpt)
			commandCounts[f.Command]++
			kindCounts[kind]++
			commandKindCounts[[2]string{f.Command, kind}]++
		}
	}

	if len(commandCounts) == 0 {
		return nil
	}

	type countedCommand struct {
		command string
		count   int
	}
	var ordered []countedCommand
	for cmd, count := range commandCounts {
		ordered = append(ordered, countedCommand{cmd, count})
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].count != ordered[j].count {
			return ordered[i].count > ordered[j].count
		}
		return ordered[i].command < ordered[j].command
	})
	if len(ordered) > maxTop {
		ordered = ordered[:maxTop]
	}

	var top []topFailedCommand
	for _, oc := range ordered {
		perKind := map[string]int{}
		for key, count := range commandKindCounts {
			if key[0] == oc.command && count > 0 {
				perKind[key[1]] = count
			}
		}
		top = append(top, topFailedCommand{Command: oc.command, Failures: oc.count, FailureKinds: perKind})
	}

	totalFailed := 0
	for _, c := range commandCounts {
		totalFailed += c
	}

	return &commandFailureBreakdown{
		TotalFailedCommands: totalFailed,
		FailureKindCounts:    kindCounts,
		TopFailedCommands:    top,
		TopFailedCommandsMax: maxTop,
	}
}

func coerceInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

func failureRate(failed, executed int) float64 {
	denom := executed
	if denom < 1 {
		denom = 1
	}
	return float64(failed) / float64(denom)
}

func ratio(numerator, denominator float64) float64 {
	if denominator <= 0 {
		if numerator > 0 {
			return 1e308 // stand-in for +inf in a JSON-serializable field
		}
		return 1.0
	}
	return numerator / denominator
}

// BuildAggregateMetricsAtoms builds the synthetic baseline + per-workflow
// aggregate atoms over the subset of records named in eligibleRunRels
// (the set that survived upstream atom filtering, so the aggregate layer
// reflects current open friction rather than historical noise).
func BuildAggregateMetricsAtoms(records []history.Record, eligibleRunRels map[string]bool, runIDPrefix string, topFailedCommands int) []runmodel.Atom {
	if topFailedCommands <= 0 {
		topFailedCommands = maxTopFailedCommands
	}

	var runs []metricsRun
	for _, rec := range records {
		if !eligibleRunRels[rec.RunRel] {
			continue
		}
		metrics := asMap(rec.Metrics)
		if metrics == nil {
			continue
		}
		executed, ok1 := coerceInt(metrics["commands_executed"])
		failed, ok2 := coerceInt(metrics["commands_failed"])
		if !ok1 || !ok2 {
			continue
		}

		agent := rec.Agent
		if agent == "" {
			agent = "unknown"
		}
		targetSlug := rec.TargetSlug
		if targetSlug == "" {
			targetSlug = "unknown"
		}

		tr := asMap(rec.TargetRef)
		runs = append(runs, metricsRun{
			RunRel:         rec.RunRel,
			Agent:          agent,
			TargetSlug:     targetSlug,
			RepoInput:      asString(tr["repo_input"]),
			MissionID:      asString(tr["mission_id"]),
			PersonaID:      asString(tr["persona_id"]),
			CommandsExec:   executed,
			CommandsFailed: failed,
			RunDir:         rec.RunDir,
			Metrics:        metrics,
		})
	}

	if len(runs) == 0 {
		return nil
	}

	baselineRuns := len(runs)
	baselineExecuted, baselineFailed := 0, 0
	supportingRunRels := map[string]bool{}
	supportingAgents := map[string]bool{}
	for _, r := range runs {
		baselineExecuted += r.CommandsExec
		baselineFailed += r.CommandsFailed
		supportingRunRels[r.RunRel] = true
		supportingAgents[r.Agent] = true
	}
	baselineFailureRate := failureRate(baselineFailed, baselineExecuted)
	baselineAvgFailedPerRun := float64(baselineFailed) / float64(baselineRuns)

	var out []runmodel.Atom

	baselineAtom := runmodel.Atom{
		AtomID:       fmt.Sprintf("%s:aggregate_metrics:1", runIDPrefix),
		RunRel:       runIDPrefix,
		Agent:        "aggregate",
		Source:       runmodel.SourceAggregateMetrics,
		SeverityHint: runmodel.SeverityLow,
		Text: fmt.Sprintf(
			"Baseline across %d eligible runs: failure_rate=%.3f (commands_failed=%d / commands_executed=%d); avg_failed_per_run=%.2f",
			baselineRuns, baselineFailureRate, baselineFailed, baselineExecuted, baselineAvgFailedPerRun,
		),
		Location: runmodel.Location{
			"aggregate_kind": string(runmodel.AggregateBaseline),
			"metrics": map[string]any{
				"runs": baselineRuns, "commands_executed": baselineExecuted,
				"commands_failed": baselineFailed, "failure_rate": baselineFailureRate,
				"avg_failed_per_run": baselineAvgFailedPerRun,
			},
			"supporting_run_rels": sortedKeys(supportingRunRels),
			"supporting_agents":   sortedKeys(supportingAgents),
		},
	}
	if breakdown := collectCommandFailureBreakdown(runs, topFailedCommands); breakdown != nil {
		baselineAtom.Location["command_failure_breakdown"] = breakdown
	}
	out = append(out, baselineAtom)

	byWorkflow := map[[4]string][]metricsRun{}
	for _, r := range runs {
		key := [4]string{r.TargetSlug, r.RepoInput, r.MissionID, r.PersonaID}
		byWorkflow[key] = append(byWorkflow[key], r)
	}

	var keys [][4]string
	for k := range byWorkflow {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		for n := 0; n < len(a); n++ {
			if a[n] != b[n] {
				return a[n] < b[n]
			}
		}
		return false
	})

	nextIndex := 2
	for _, key := range keys {
		items := byWorkflow[key]
		if len(items) < 2 {
			continue
		}
		wfRuns := len(items)
		wfExecuted, wfFailed := 0, 0
		wfRunRels := map[string]bool{}
		wfAgents := map[string]bool{}
		for _, it := range items {
			wfExecuted += it.CommandsExec
			wfFailed += it.CommandsFailed
			wfRunRels[it.RunRel] = true
			wfAgents[it.Agent] = true
		}
		wfFailureRate := failureRate(wfFailed, wfExecuted)
		wfAvgFailedPerRun := float64(wfFailed) / float64(wfRuns)

		targetSlug := items[0].TargetSlug
		repoInput := items[0].RepoInput
		missionID := items[0].MissionID
		personaID := items[0].PersonaID
		if repoInput == "" {
			repoInput = "unknown"
		}
		if missionID == "" {
			missionID = "unknown"
		}
		if personaID == "" {
			personaID = "unknown"
		}

		wfAtom := runmodel.Atom{
			AtomID:       fmt.Sprintf("%s:aggregate_metrics:%d", runIDPrefix, nextIndex),
			RunRel:       runIDPrefix,
			Agent:        "aggregate",
			Source:       runmodel.SourceAggregateMetrics,
			SeverityHint: runmodel.SeverityLow,
			Text: fmt.Sprintf(
				"Across %d eligible runs for target=%s repo_input=%s mission=%s persona=%s: failure_rate=%.3f vs baseline=%.3f (%.2fx); avg_failed_per_run=%.2f vs baseline=%.2f (%.2fx)",
				wfRuns, targetSlug, repoInput, missionID, personaID,
				wfFailureRate, baselineFailureRate, ratio(wfFailureRate, baselineFailureRate),
				wfAvgFailedPerRun, baselineAvgFailedPerRun, ratio(wfAvgFailedPerRun, baselineAvgFailedPerRun),
			),
			Location: runmodel.Location{
				"aggregate_kind": string(runmodel.AggregateWorkflow),
				"workflow_key": map[string]any{
					"target_slug": targetSlug, "repo_input": repoInput,
					"mission_id": missionID, "persona_id": personaID,
				},
				"metrics": map[string]any{
					"runs": wfRuns, "commands_executed": wfExecuted, "commands_failed": wfFailed,
					"failure_rate": wfFailureRate, "avg_failed_per_run": wfAvgFailedPerRun,
					"baseline_failure_rate": baselineFailureRate, "baseline_avg_failed_per_run": baselineAvgFailedPerRun,
					"failure_rate_ratio_vs_baseline":     ratio(wfFailureRate, baselineFailureRate),
					"avg_failed_per_run_ratio_vs_baseline": ratio(wfAvgFailedPerRun, baselineAvgFailedPerRun),
				},
				"supporting_run_rels": sortedKeys(wfRunRels),
				"supporting_agents":   sortedKeys(wfAgents),
			},
		}
		if breakdown := collectCommandFailureBreakdown(items, topFailedCommands); breakdown != nil {
			wfAtom.Location["command_failure_breakdown"] = breakdown
		}
		out = append(out, wfAtom)
		nextIndex++
	}

	return out
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
