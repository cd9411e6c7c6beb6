package preflight

import (
	"os/exec"
	"strings"
	"time"
)

// Subtype is the closed AgentPreflightFailed subtype set (§7).
type Subtype string

const (
	SubtypeBinaryMissing          Subtype = "binary_missing"
	SubtypeRequiredCommandUnavail Subtype = "required_command_unavailable"
	SubtypeInvalidAgentConfig     Subtype = "invalid_agent_config"
	SubtypePolicyBlock            Subtype = "policy_block"
	SubtypePythonUnavailable      Subtype = "python_unavailable"
)

// Failure is the AgentPreflightFailed error shape: a hard block before the
// agent subprocess is ever started.
type Failure struct {
	Subtype Subtype
	Message string
	Details map[string]any
}

func (f *Failure) Error() string { return f.Message }

// AgentConfig is the subset of an agent's declared config preflight cares
// about: the binary it invokes, extra required commands (e.g. ripgrep),
// and whether it needs shell access.
type AgentConfig struct {
	Binary          string
	RequiredCommands []string
	RequiresShell   bool
}

// Policy carries whether the caller permits shell access (AllowShell); when
// an agent requires shell and AllowShell is false, ValidateAgentConfig fails
// with SubtypePolicyBlock rather than attempting to run.
type Policy struct {
	AllowShell bool
}

// CheckBinary resolves a single executable on PATH.
func CheckBinary(name string) (string, error) {
	resolved, err := exec.LookPath(name)
	if err != nil {
		return "", &Failure{
			Subtype: SubtypeBinaryMissing,
			Message: "executable not found on PATH: " + name,
			Details: map[string]any{"binary": name},
		}
	}
	return resolved, nil
}

// ValidateAgentConfig checks an agent's declared config against the
// invoking environment: binary presence, required auxiliary commands, and
// shell policy. Returns the first violation found, nil if all checks pass.
func ValidateAgentConfig(cfg AgentConfig, policy Policy) error {
	if strings.TrimSpace(cfg.Binary) == "" {
		return &Failure{Subtype: SubtypeInvalidAgentConfig, Message: "agent config missing binary"}
	}
	if _, err := CheckBinary(cfg.Binary); err != nil {
		return err
	}
	for _, cmd := range cfg.RequiredCommands {
		if _, err := exec.LookPath(cmd); err != nil {
			return &Failure{
				Subtype: SubtypeRequiredCommandUnavail,
				Message: "required command unavailable: " + cmd,
				Details: map[string]any{"command": cmd},
			}
		}
	}
	if cfg.RequiresShell && !policy.AllowShell {
		return &Failure{Subtype: SubtypePolicyBlock, Message: "agent requires shell but policy forbids it"}
	}
	return nil
}

// RequirePython runs SelectPythonRuntime and converts an unusable result
// into a PythonUnavailable preflight failure carrying the full probe
// trail so run reports can show every rejected candidate's reason.
func RequirePython(workspaceDir string, timeout time.Duration) (PythonRuntimeSelection, error) {
	sel := SelectPythonRuntime(workspaceDir, timeout)
	if sel.Selected == nil {
		details := map[string]any{"rejected": sel.Rejected()}
		return sel, &Failure{Subtype: SubtypePythonUnavailable, Message: "no usable Python interpreter found", Details: details}
	}
	return sel, nil
}
