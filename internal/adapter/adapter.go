// Package adapter translates each coding agent's raw stdout stream into the
// canonical runmodel.Event model (§4.B). Each agent gets its own file
// (codex.go, claude.go, gemini.go); this file holds the shared path-mapping
// and command-failure-artifact plumbing all three share.
package adapter

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/usertesteval/usertest/internal/eventlog"
	"github.com/usertesteval/usertest/internal/runmodel"
)

// PathPolicy rewrites sandbox-mount paths back to host paths so that a
// report or event generated inside a container still points at a path the
// caller's filesystem can resolve (§4.B).
type PathPolicy struct {
	WorkspaceMount string // e.g. "/workspace"
	WorkspaceRoot  string // host path the mount maps to
}

// RewritePath maps a posix path rooted at WorkspaceMount to the
// corresponding host path under WorkspaceRoot. Paths that don't start with
// the mount prefix are returned unchanged. Windows posix-drive form
// (`/c/Users/...`) is mapped to `C:/Users/...`.
func (p PathPolicy) RewritePath(path string) string {
	if path == "" {
		return path
	}
	if m := winDrivePosixRE.FindStringSubmatch(path); m != nil {
		drive := strings.ToUpper(m[1])
		rest := m[2]
		return drive + ":/" + rest
	}
	if p.WorkspaceMount == "" || p.WorkspaceRoot == "" {
		return path
	}
	if path == p.WorkspaceMount {
		return p.WorkspaceRoot
	}
	prefix := strings.TrimSuffix(p.WorkspaceMount, "/") + "/"
	if strings.HasPrefix(path, prefix) {
		rel := strings.TrimPrefix(path, prefix)
		return filepath.ToSlash(filepath.Join(p.WorkspaceRoot, rel))
	}
	return path
}

var winDrivePosixRE = regexp.MustCompile(`^/([a-zA-Z])/(.*)$`)

// UnwrapShell strips one layer of a known shell wrapper (`bash -lc`,
// `sh -c`, `cmd /c`, `powershell -Command`) from an argv, returning the
// wrapped command string (argv[2], unparsed) along with whether unwrapping
// occurred.
// Only one layer is ever removed, matching the spec's "unwrapped once".
func UnwrapShell(argv []string) (inner string, unwrapped bool) {
	if len(argv) < 2 {
		return "", false
	}
	head := strings.ToLower(filepath.Base(argv[0]))
	switch {
	case (head == "bash" || head == "sh" || head == "zsh") && len(argv) >= 3 && (argv[1] == "-lc" || argv[1] == "-c"):
		return argv[2], true
	case head == "cmd" && len(argv) >= 3 && strings.EqualFold(argv[1], "/c"):
		return argv[2], true
	case head == "powershell" && len(argv) >= 3 && strings.EqualFold(argv[1], "-command"):
		return argv[2], true
	}
	return "", false
}

// CommandFailureArtifacts is the set of paths written under
// command_failures/cmd_NN/ for a non-zero-exit run_command event, and the
// reference payload attached to that event's failure_artifacts field.
type CommandFailureArtifacts struct {
	StdoutPath string
	StderrPath string
}

// WriteCommandFailureArtifacts persists stdout/stderr for a failing command
// and returns the failure_artifacts map to attach to the run_command
// event's data. cmdIndex is 1-based per the cmd_NN naming in §4.B/§6.
func WriteCommandFailureArtifacts(runDir string, cmdIndex int, stdout, stderr string) (map[string]any, error) {
	dir := filepath.Join(runDir, "command_failures", fmt.Sprintf("cmd_%02d", cmdIndex))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	stdoutPath := filepath.Join(dir, "stdout.txt")
	stderrPath := filepath.Join(dir, "stderr.txt")
	if err := os.WriteFile(stdoutPath, []byte(stdout), 0o644); err != nil {
		return nil, err
	}
	if err := os.WriteFile(stderrPath, []byte(stderr), 0o644); err != nil {
		return nil, err
	}
	rel := func(p string) string {
		if r, err := filepath.Rel(runDir, p); err == nil {
			return r
		}
		return p
	}
	return map[string]any{
		"stdout_path": rel(stdoutPath),
		"stderr_path": rel(stderrPath),
	}, nil
}

// CommandOutputExcerpt applies the adapters' shared ≤2000-char head+tail
// truncation for a command's embedded output_excerpt field.
func CommandOutputExcerpt(output string) string {
	excerpt, _ := eventlog.HeadTailExcerpt(output, 2000)
	return excerpt
}

// RawNonJSONLine builds the error event for a stream line that failed to
// parse as JSON.
func RawNonJSONLine(raw string) runmodel.Event {
	return runmodel.MakeEvent(runmodel.EventError, map[string]any{
		"category": "raw_non_json_line",
		"message":  raw,
	}, "")
}

// ToolResultMissingUse builds the error event for a tool_result block whose
// tool_use_id was never seen as a preceding tool_use block.
func ToolResultMissingUse(toolUseID string) runmodel.Event {
	return runmodel.MakeEvent(runmodel.EventError, map[string]any{
		"category": "tool_result_missing_use",
		"message":  fmt.Sprintf("tool_result references unseen tool_use_id %q", toolUseID),
	}, "")
}
