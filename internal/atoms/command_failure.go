package atoms

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/usertesteval/usertest/internal/eventlog"
	"github.com/usertesteval/usertest/internal/history"
	"github.com/usertesteval/usertest/internal/runmodel"
)

const maxFailedCommandsPerRun = 25

// commandHead returns the program name a shell command starts with,
// honoring a leading quoted path the same way the original's
// `_command_head` does.
func commandHead(command string) string {
	cleaned := strings.TrimSpace(command)
	if cleaned == "" {
		return ""
	}
	if cleaned[0] == '"' || cleaned[0] == '\'' {
		quote := cleaned[0]
		if end := strings.IndexByte(cleaned[1:], quote); end > 0 {
			return cleaned[1 : end+1]
		}
	}
	fields := strings.Fields(cleaned)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// isRipgrepNoMatches reports whether a nonzero exit is ripgrep's
// convention for "no matches found", which the spec says must never be
// treated as a failure.
func isRipgrepNoMatches(command string, exitCode int) bool {
	if exitCode != 1 {
		return false
	}
	head := commandHead(command)
	if head == "" {
		return false
	}
	base := strings.ToLower(filepath.Base(head))
	return base == "rg" || base == "rg.exe"
}

type failedCommand struct {
	Command       string
	ExitCode      int
	OutputExcerpt string
}

func failedCommandsFromMetrics(metrics map[string]any) []failedCommand {
	raw, _ := metrics["failed_commands"].([]any)
	var out []failedCommand
	for _, item := range raw {
		m := asMap(item)
		command := asString(m["command"])
		exitCodeF, ok := m["exit_code"].(float64)
		if command == "" || !ok || exitCodeF == 0 {
			continue
		}
		exitCode := int(exitCodeF)
		if isRipgrepNoMatches(command, exitCode) {
			continue
		}
		out = append(out, failedCommand{
			Command:       command,
			ExitCode:      exitCode,
			OutputExcerpt: asString(m["output_excerpt"]),
		})
	}
	return out
}

func failedCommandsFromEvents(runDir string) []failedCommand {
	if runDir == "" {
		return nil
	}
	events, err := eventlog.IterEventsJSONL(filepath.Join(runDir, "normalized_events.jsonl"))
	if err != nil {
		return nil
	}
	var out []failedCommand
	for _, ev := range events {
		if string(ev.Type) != "run_command" {
			continue
		}
		data := ev.Data
		exitCodeF, ok := data["exit_code"].(float64)
		if !ok || exitCodeF == 0 {
			continue
		}
		exitCode := int(exitCodeF)
		command := asString(data["command"])
		if command == "" {
			if argv, ok := data["argv"].([]any); ok {
				var parts []string
				for _, a := range argv {
					if s, ok := a.(string); ok {
						parts = append(parts, s)
					}
				}
				command = strings.Join(parts, " ")
			}
		}
		if command == "" || isRipgrepNoMatches(command, exitCode) {
			continue
		}
		out = append(out, failedCommand{
			Command:       command,
			ExitCode:      exitCode,
			OutputExcerpt: asString(data["output_excerpt"]),
		})
		if len(out) >= maxFailedCommandsPerRun {
			break
		}
	}
	return out
}

// commandFailureAtoms emits one command_failure atom per failing command
// recorded in metrics.json (preferred) or, failing that, derived from a
// scan of normalized_events.jsonl.
func commandFailureAtoms(rec history.Record, next func(runmodel.AtomSource) string) []runmodel.Atom {
	metrics := asMap(rec.Metrics)
	var failures []failedCommand
	if len(metrics) > 0 {
		failures = failedCommandsFromMetrics(metrics)
	}
	if len(failures) == 0 {
		failures = failedCommandsFromEvents(rec.RunDir)
	}

	var out []runmodel.Atom
	for _, f := range failures {
		text := "Command failed: exit_code=" + strconv.Itoa(f.ExitCode) + "; command=" + f.Command
		atom := runmodel.Atom{
			AtomID:       next(runmodel.SourceCommandFailure),
			RunRel:       rec.RunRel,
			Agent:        rec.Agent,
			Source:       runmodel.SourceCommandFailure,
			SeverityHint: runmodel.SeverityMedium,
			Text:         text,
			Evidence:     f.OutputExcerpt,
			TimestampUTC: rec.TimestampUTC,
			TargetSlug:   rec.TargetSlug,
			RepoInput:    repoInputOf(rec),
		}
		out = append(out, atom)
	}
	return out
}
