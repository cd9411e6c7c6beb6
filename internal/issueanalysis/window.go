// Package issueanalysis computes a window scoreboard over a run history
// slice (§4.M): status counts, per-agent pass rate, top failure signatures,
// and wall-time percentiles, rendered to `<target>.issue_analysis.{json,md}`.
package issueanalysis

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/usertesteval/usertest/internal/history"
)

// AgentStats is one agent's pass-rate row.
type AgentStats struct {
	Agent    string  `json:"agent"`
	Runs     int     `json:"runs"`
	OKRuns   int     `json:"ok_runs"`
	PassRate float64 `json:"pass_rate"`
}

// FailureSignature is one distinct failure signal and how often it recurred.
type FailureSignature struct {
	Signature string `json:"signature"`
	Count     int    `json:"count"`
}

// WindowSummary is the full report for one window of history records.
type WindowSummary struct {
	Runs              int                `json:"runs"`
	StatusCounts      map[string]int     `json:"status_counts"`
	Agents            []AgentStats       `json:"agents"`
	TopFailureSignals []FailureSignature `json:"top_failure_signatures"`
	TimingCoverageRuns int               `json:"timing_coverage_runs"`
	WallSecondsP50    *float64           `json:"wall_seconds_p50,omitempty"`
	WallSecondsP90    *float64           `json:"wall_seconds_p90,omitempty"`
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func runWallSeconds(rec history.Record) (float64, bool) {
	metrics := asMap(rec.Metrics)
	if metrics == nil {
		return 0, false
	}
	return asFloat(metrics["run_wall_seconds"])
}

func failureSignature(rec history.Record) string {
	if errDoc := asMap(rec.Error); len(errDoc) > 0 {
		if subtype := asString(errDoc["failure_subtype"]); subtype != "" {
			return subtype
		}
	}
	stderrText := readRunArtifact(rec.RunDir, "agent_stderr.txt")
	for _, line := range strings.Split(stderrText, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}

func readRunArtifact(runDir, name string) string {
	if runDir == "" {
		return ""
	}
	b, err := os.ReadFile(filepath.Join(runDir, name))
	if err != nil {
		return ""
	}
	return string(b)
}

func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	rank := p * float64(n-1)
	lo := int(rank)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// ComputeWindowSummary scores a window of history records: counts by
// status, per-agent pass rate, the most frequent failure signatures
// (the error.json `failure_subtype` value written by the orchestrator's
// Finalize; a `subtype` key is not read), falling back to the first
// non-blank stderr line, and
// run_wall_seconds p50/p90 over the runs that carried timing.
func ComputeWindowSummary(records []history.Record) WindowSummary {
	summary := WindowSummary{
		Runs:         len(records),
		StatusCounts: map[string]int{},
	}

	agentRuns := map[string]int{}
	agentOK := map[string]int{}
	var agentOrder []string

	signatureCounts := map[string]int{}
	var signatureOrder []string

	var wallSeconds []float64

	for _, rec := range records {
		status := rec.Status
		if status == "" {
			status = "unknown"
		}
		summary.StatusCounts[status]++

		agent := rec.Agent
		if agent == "" {
			agent = "unknown"
		}
		if _, seen := agentRuns[agent]; !seen {
			agentOrder = append(agentOrder, agent)
		}
		agentRuns[agent]++
		if status == "ok" {
			agentOK[agent]++
		}

		if status != "ok" {
			if sig := failureSignature(rec); sig != "" {
				if _, seen := signatureCounts[sig]; !seen {
					signatureOrder = append(signatureOrder, sig)
				}
				signatureCounts[sig]++
			}
		}

		if seconds, ok := runWallSeconds(rec); ok {
			wallSeconds = append(wallSeconds, seconds)
		}
	}

	sort.Strings(agentOrder)
	for _, agent := range agentOrder {
		runs := agentRuns[agent]
		ok := agentOK[agent]
		var rate float64
		if runs > 0 {
			rate = float64(ok) / float64(runs)
		}
		summary.Agents = append(summary.Agents, AgentStats{
			Agent: agent, Runs: runs, OKRuns: ok, PassRate: rate,
		})
	}

	sort.Slice(signatureOrder, func(i, j int) bool {
		a, b := signatureOrder[i], signatureOrder[j]
		if signatureCounts[a] != signatureCounts[b] {
			return signatureCounts[a] > signatureCounts[b]
		}
		return a < b
	})
	const topN = 10
	for i, sig := range signatureOrder {
		if i >= topN {
			break
		}
		summary.TopFailureSignals = append(summary.TopFailureSignals, FailureSignature{
			Signature: sig, Count: signatureCounts[sig],
		})
	}

	summary.TimingCoverageRuns = len(wallSeconds)
	if len(wallSeconds) > 0 {
		sorted := append([]float64(nil), wallSeconds...)
		sort.Float64s(sorted)
		p50 := percentile(sorted, 0.50)
		p90 := percentile(sorted, 0.90)
		summary.WallSecondsP50 = &p50
		summary.WallSecondsP90 = &p90
	}

	return summary
}

// RenderIssueAnalysisMarkdown renders the markdown leg of
// `<target>.issue_analysis.md`; the JSON leg is the WindowSummary struct
// itself.
func RenderIssueAnalysisMarkdown(summary WindowSummary) string {
	var b strings.Builder

	b.WriteString("# Issue analysis\n\n")
	fmt.Fprintf(&b, "Runs: %d\n\n", summary.Runs)

	b.WriteString("## Status counts\n\n")
	b.WriteString("| status | count |\n")
	b.WriteString("| --- | --- |\n")
	statuses := make([]string, 0, len(summary.StatusCounts))
	for status := range summary.StatusCounts {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		fmt.Fprintf(&b, "| `%s` | %d |\n", status, summary.StatusCounts[status])
	}
	b.WriteString("\n")

	b.WriteString("## Agent pass rate\n\n")
	b.WriteString("| agent | runs | ok | pass_rate |\n")
	b.WriteString("| --- | --- | --- | --- |\n")
	for _, a := range summary.Agents {
		fmt.Fprintf(&b, "| `%s` | %d | %d | %.2f |\n", a.Agent, a.Runs, a.OKRuns, a.PassRate)
	}
	b.WriteString("\n")

	b.WriteString("## Top failure signatures\n\n")
	if len(summary.TopFailureSignals) == 0 {
		b.WriteString("_none_\n\n")
	} else {
		b.WriteString("| signature | count |\n")
		b.WriteString("| --- | --- |\n")
		for _, s := range summary.TopFailureSignals {
			fmt.Fprintf(&b, "| %s | %d |\n", s.Signature, s.Count)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Timing\n\n")
	fmt.Fprintf(&b, "- timing_coverage_runs: %d/%d\n", summary.TimingCoverageRuns, summary.Runs)
	if summary.WallSecondsP50 != nil {
		fmt.Fprintf(&b, "- p50 run_wall_seconds: %.2f\n", *summary.WallSecondsP50)
	} else {
		b.WriteString("- p50 run_wall_seconds: n/a\n")
	}
	if summary.WallSecondsP90 != nil {
		fmt.Fprintf(&b, "- p90 run_wall_seconds: %.2f\n", *summary.WallSecondsP90)
	} else {
		b.WriteString("- p90 run_wall_seconds: n/a\n")
	}

	return b.String()
}
