// Package atoms converts compiled run records into typed atoms (§4.I):
// confusion points, suggested changes, missing-confidence signals, run
// failures, command failures, and stderr/last-message artifacts, plus the
// synthetic aggregate atoms built across a set of eligible runs.
package atoms

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/usertesteval/usertest/internal/history"
	"github.com/usertesteval/usertest/internal/runmodel"
)

// capabilityWarningPatterns match known-benign stderr lines that should be
// captured as low-severity capability warnings rather than as a generic
// agent_stderr_artifact.
var capabilityWarningPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)shell_snapshot_powershell_unsupported`),
	regexp.MustCompile(`(?i)color profile could not be set`),
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// ExtractAtoms converts one history.Record into its 0..N atoms, following
// the source/severity table in §4.I. Atom indices are per-run and
// per-source, matching the `<run_rel>:<source>:<index>` id grammar.
func ExtractAtoms(rec history.Record) []runmodel.Atom {
	var out []runmodel.Atom
	counters := map[runmodel.AtomSource]int{}

	next := func(source runmodel.AtomSource) string {
		counters[source]++
		return runmodel.MakeAtomID(rec.RunRel, source, counters[source])
	}

	base := func(source runmodel.AtomSource, severity runmodel.SeverityHint, text string) runmodel.Atom {
		return runmodel.Atom{
			AtomID:       next(source),
			RunRel:       rec.RunRel,
			Agent:        rec.Agent,
			Source:       source,
			SeverityHint: severity,
			Text:         text,
			TimestampUTC: rec.TimestampUTC,
			TargetSlug:   rec.TargetSlug,
			RepoInput:    repoInputOf(rec),
		}
	}

	report := asMap(rec.Report)

	for _, cp := range asSlice(report["confusion_points"]) {
		cpm := asMap(cp)
		summary := asString(cpm["summary"])
		if strings.TrimSpace(summary) == "" {
			continue
		}
		out = append(out, base(runmodel.SourceConfusionPoint, runmodel.SeverityHigh, summary))
	}

	for _, sc := range asSlice(report["suggested_changes"]) {
		scm := asMap(sc)
		change := asString(scm["change"])
		if strings.TrimSpace(change) == "" {
			continue
		}
		severity := severityFromPriority(asString(scm["priority"]))
		out = append(out, base(runmodel.SourceSuggestedChange, severity, change))
	}

	confidence := asMap(report["confidence_signals"])
	for _, m := range asSlice(confidence["missing"]) {
		text := asString(m)
		if text == "" {
			continue
		}
		out = append(out, base(runmodel.SourceConfidenceMissing, runmodel.SeverityLow, text))
	}

	// run_failure_event is preferred over raw error/report_validation_error
	// duplicates: when status is error or report_validation_error, this is
	// the only atom emitted for that failure signal.
	if rec.Status == "error" || rec.Status == "report_validation_error" {
		atom := base(runmodel.SourceRunFailureEvent, runmodel.SeverityHigh, runFailureText(rec))
		atom.Evidence = rec.Status
		out = append(out, atom)
	}

	out = append(out, commandFailureAtoms(rec, next)...)

	stderrText := readStderrArtifact(rec)
	stderrCovered := false
	for _, pat := range capabilityWarningPatterns {
		if pat.MatchString(stderrText) {
			out = append(out, base(runmodel.SourceCapabilityWarning, runmodel.SeverityLow, firstMatchingLine(stderrText, pat)))
			stderrCovered = true
		}
	}
	if !stderrCovered && strings.TrimSpace(stderrText) != "" && rec.Status == "error" {
		out = append(out, base(runmodel.SourceAgentStderrArtifact, runmodel.SeverityMedium, stderrText))
	}

	// agent_last_message_artifact is skipped when stderr is empty on an ok
	// run: an uneventful success with nothing on stderr needs no
	// informational last-message atom.
	lastMessage := readLastMessageArtifact(rec)
	skipLastMessage := rec.Status == "ok" && strings.TrimSpace(stderrText) == ""
	if strings.TrimSpace(lastMessage) != "" && !skipLastMessage {
		out = append(out, base(runmodel.SourceAgentLastMessageArtifact, runmodel.SeverityLow, lastMessage))
	}

	return out
}

func repoInputOf(rec history.Record) string {
	tr := asMap(rec.TargetRef)
	return asString(tr["repo_input"])
}

func severityFromPriority(priority string) runmodel.SeverityHint {
	switch strings.ToLower(strings.TrimSpace(priority)) {
	case "high", "p0", "p1":
		return runmodel.SeverityHigh
	case "low", "p3", "p4":
		return runmodel.SeverityLow
	default:
		return runmodel.SeverityMedium
	}
}

func runFailureText(rec history.Record) string {
	if errDoc := asMap(rec.Error); len(errDoc) > 0 {
		if subtype := asString(errDoc["failure_subtype"]); subtype != "" {
			return "run failed: " + subtype
		}
		return "run failed"
	}
	if rec.ReportValidationErrors != nil {
		return "report failed schema validation"
	}
	return "run failed"
}

// readStderrArtifact and readLastMessageArtifact read agent_stderr.txt and
// agent_last_message.txt directly from the run directory: these are core
// run artifacts (§6), not the optional persona/mission/prompt definitions
// the History Iterator's "embedded" map covers, so atom extraction reads
// them itself rather than depending on the caller's chosen embed level.
func readStderrArtifact(rec history.Record) string {
	return readRunArtifact(rec.RunDir, "agent_stderr.txt")
}

func readLastMessageArtifact(rec history.Record) string {
	return readRunArtifact(rec.RunDir, "agent_last_message.txt")
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

func firstMatchingLine(text string, pat *regexp.Regexp) string {
	for _, line := range strings.Split(text, "\n") {
		if pat.MatchString(line) {
			return strings.TrimSpace(line)
		}
	}
	return strings.TrimSpace(text)
}
