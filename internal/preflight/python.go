// Package preflight probes binaries and the Python runtime before a run
// starts, and validates agent config overrides against known contracts
// (§4.F). Probe failures are classified into closed reason codes so the
// Run Orchestrator can decide retry vs. hard-fail without parsing prose.
package preflight

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const pythonHealthProbe = "import encodings, json, sys; print(json.dumps({'executable': sys.executable, 'version': sys.version.split()[0]}))"

// PythonRuntimeCandidate mirrors one interpreter candidate's probe result.
type PythonRuntimeCandidate struct {
	Source     string
	Path       string
	Present    bool
	Usable     bool
	ReasonCode string
	Reason     string
	Version    string
	Executable string
}

// PythonRuntimeSelection is the outcome of walking the discovery order.
type PythonRuntimeSelection struct {
	Selected   *PythonRuntimeCandidate
	Candidates []PythonRuntimeCandidate
}

// Rejected returns the unusable candidates, in probe order.
func (s PythonRuntimeSelection) Rejected() []PythonRuntimeCandidate {
	var out []PythonRuntimeCandidate
	for _, c := range s.Candidates {
		if !c.Usable {
			out = append(out, c)
		}
	}
	return out
}

func isWindowsPlatform() bool { return runtime.GOOS == "windows" }

func normalizeWindowsPath(p string) string {
	return strings.ToLower(strings.ReplaceAll(p, "/", `\`))
}

func isWindowsAppsAlias(path string) bool {
	if !isWindowsPlatform() || path == "" {
		return false
	}
	return strings.Contains(normalizeWindowsPath(path), `\windowsapps\`)
}

func probeFailureReason(stderrText, stdoutText string) (string, string) {
	var parts []string
	if stderrText != "" {
		parts = append(parts, stderrText)
	}
	if stdoutText != "" {
		parts = append(parts, stdoutText)
	}
	merged := strings.TrimSpace(strings.Join(parts, "\n"))
	lowered := strings.ToLower(merged)
	switch {
	case strings.Contains(lowered, "encodings") && (strings.Contains(lowered, "modulenotfounderror") || strings.Contains(lowered, "no module named")):
		return "missing_stdlib", merged
	case strings.Contains(lowered, "access is denied") || strings.Contains(lowered, "permission denied"):
		return "access_denied", merged
	case strings.Contains(lowered, "the system cannot find the file specified"):
		return "not_found", merged
	default:
		return "runtime_probe_failed", merged
	}
}

func windowsWhereAll(command string, timeout time.Duration) []string {
	if !isWindowsPlatform() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, "where", command).CombinedOutput()
	if err != nil {
		return nil
	}
	var entries []string
	for _, line := range strings.Split(string(out), "\n") {
		if t := strings.TrimSpace(line); t != "" {
			entries = append(entries, t)
		}
	}
	return entries
}

func venvPythonPath(venvDir string) string {
	if isWindowsPlatform() {
		return filepath.Join(venvDir, "Scripts", "python.exe")
	}
	return filepath.Join(venvDir, "bin", "python")
}

func probePythonExecutable(path, source string, timeout time.Duration) PythonRuntimeCandidate {
	raw := strings.TrimSpace(path)
	if raw == "" {
		return PythonRuntimeCandidate{Source: source, Present: false, Usable: false, ReasonCode: "not_found", Reason: "Empty interpreter path."}
	}
	info, err := os.Stat(raw)
	if err != nil || info == nil {
		return PythonRuntimeCandidate{Source: source, Path: raw, Present: false, Usable: false, ReasonCode: "not_found", Reason: "Interpreter not found at: " + raw}
	}
	if isWindowsAppsAlias(raw) {
		return PythonRuntimeCandidate{
			Source: source, Path: raw, Present: true, Usable: false,
			ReasonCode: "windowsapps_alias",
			Reason:     "Resolved to a WindowsApps launcher alias. Install/select a full Python interpreter and retry.",
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, raw, "-c", pythonHealthProbe)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		return PythonRuntimeCandidate{
			Source: source, Path: raw, Present: true, Usable: false,
			ReasonCode: "timeout",
			Reason:     "Interpreter health probe timed out. The interpreter may be a launcher shim or broken runtime.",
		}
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return PythonRuntimeCandidate{Source: source, Path: raw, Present: true, Usable: false, ReasonCode: "launch_failed", Reason: runErr.Error()}
		}
		code, reason := probeFailureReason(strings.TrimSpace(stderr.String()), strings.TrimSpace(stdout.String()))
		if reason == "" {
			reason = "Interpreter probe exited nonzero."
		}
		return PythonRuntimeCandidate{Source: source, Path: raw, Present: true, Usable: false, ReasonCode: code, Reason: reason}
	}

	var payload map[string]any
	lines := strings.Split(stdout.String(), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		var decoded map[string]any
		if err := json.Unmarshal([]byte(line), &decoded); err == nil {
			payload = decoded
			break
		}
	}
	if payload == nil {
		return PythonRuntimeCandidate{Source: source, Path: raw, Present: true, Usable: false, ReasonCode: "runtime_probe_failed", Reason: "Interpreter probe did not emit parseable JSON payload."}
	}
	executable, _ := payload["executable"].(string)
	version, _ := payload["version"].(string)
	return PythonRuntimeCandidate{Source: source, Path: raw, Present: true, Usable: true, Executable: executable, Version: version}
}

// SelectPythonRuntime walks the discovery order from §4.F and returns the
// first usable candidate plus the full probe trail.
func SelectPythonRuntime(workspaceDir string, timeout time.Duration) PythonRuntimeSelection {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	var candidates []PythonRuntimeCandidate
	seen := map[string]bool{}

	add := func(path, source string) {
		raw := strings.TrimSpace(path)
		if raw == "" {
			return
		}
		key := raw
		if isWindowsPlatform() {
			key = strings.ToLower(raw)
		}
		if seen[key] {
			return
		}
		seen[key] = true
		candidates = append(candidates, probePythonExecutable(raw, source, timeout))
	}

	add(venvPythonPath(filepath.Join(workspaceDir, ".venv")), "workspace_venv")

	if venvEnv := strings.TrimSpace(os.Getenv("VIRTUAL_ENV")); venvEnv != "" {
		add(venvPythonPath(venvEnv), "virtual_env")
	}

	if customPython := strings.TrimSpace(os.Getenv("USERTEST_PYTHON")); customPython != "" {
		add(customPython, "usertest_python_env")
	}

	pythonWhich, _ := exec.LookPath("python")
	if isWindowsAppsAlias(pythonWhich) {
		for _, entry := range windowsWhereAll("python", 2*time.Second) {
			if isWindowsAppsAlias(entry) {
				continue
			}
			add(entry, "where_python")
		}
	}

	if py, err := exec.LookPath("py"); err == nil {
		add(py, "command_py")
	}
	if pythonWhich != "" {
		add(pythonWhich, "command_python")
	}
	if python3, err := exec.LookPath("python3"); err == nil {
		add(python3, "command_python3")
	}
	// No Go equivalent of CPython's sys.executable fallback: the process
	// running this probe is never the interpreter being selected.

	var selected *PythonRuntimeCandidate
	for i := range candidates {
		if candidates[i].Usable {
			selected = &candidates[i]
			break
		}
	}
	return PythonRuntimeSelection{Selected: selected, Candidates: candidates}
}
