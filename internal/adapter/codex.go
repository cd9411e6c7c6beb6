package adapter

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/usertesteval/usertest/internal/runmodel"
)

// codexExecMsg is the `{msg:{...}}` stream shape: exec_command_begin/end
// pairs joined by call_id.
type codexExecMsg struct {
	Msg struct {
		Type     string   `json:"type"`
		CallID   string   `json:"call_id"`
		Command  []string `json:"command"`
		Cwd      string   `json:"cwd"`
		ExitCode *int     `json:"exit_code"`
		Stdout   string   `json:"stdout"`
		Stderr   string   `json:"stderr"`
	} `json:"msg"`
}

// codexItemMsg is the `{type:"item.completed", item:{...}}` stream shape.
type codexItemMsg struct {
	Type string `json:"type"`
	Item struct {
		Type      string `json:"type"`
		Command   string `json:"command"`
		ExitCode  *int   `json:"exit_code"`
		Output    string `json:"output"`
		Status    string `json:"status"`
		Text      string `json:"text"`
	} `json:"item"`
}

type codexPendingBegin struct {
	command []string
	cwd     string
}

// CodexAdapter normalizes Codex's two stream shapes into canonical events.
type CodexAdapter struct {
	PathPolicy PathPolicy
	RunDir     string

	pending      map[string]codexPendingBegin
	cmdIndex     int
}

// NewCodexAdapter constructs an adapter ready to process a raw stdout
// stream line by line.
func NewCodexAdapter(policy PathPolicy, runDir string) *CodexAdapter {
	return &CodexAdapter{PathPolicy: policy, RunDir: runDir, pending: map[string]codexPendingBegin{}}
}

// ProcessStream reads raw NDJSON lines from r and returns the normalized
// events in stream order.
func (a *CodexAdapter) ProcessStream(r io.Reader) ([]runmodel.Event, error) {
	var out []runmodel.Event
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		evs, err := a.processLine(line)
		if err != nil {
			out = append(out, RawNonJSONLine(line))
			continue
		}
		out = append(out, evs...)
	}
	return out, sc.Err()
}

func (a *CodexAdapter) processLine(line string) ([]runmodel.Event, error) {
	var probe map[string]any
	if err := json.Unmarshal([]byte(line), &probe); err != nil {
		return nil, err
	}

	if _, ok := probe["msg"]; ok {
		var m codexExecMsg
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			return nil, err
		}
		return a.handleExecMsg(m), nil
	}

	if t, _ := probe["type"].(string); t == "item.completed" {
		var m codexItemMsg
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			return nil, err
		}
		return a.handleItemMsg(m), nil
	}

	// Recognized envelope shape but nothing actionable (e.g. reasoning
	// deltas); emit nothing rather than a spurious error.
	return nil, nil
}

func (a *CodexAdapter) handleExecMsg(m codexExecMsg) []runmodel.Event {
	switch m.Msg.Type {
	case "exec_command_begin":
		a.pending[m.Msg.CallID] = codexPendingBegin{command: m.Msg.Command, cwd: m.Msg.Cwd}
		return nil
	case "exec_command_end":
		argv := m.Msg.Command
		cwd := m.Msg.Cwd
		if begin, ok := a.pending[m.Msg.CallID]; ok {
			if len(argv) == 0 {
				argv = begin.command
			}
			if cwd == "" {
				cwd = begin.cwd
			}
			delete(a.pending, m.Msg.CallID)
		}
		exit := 0
		if m.Msg.ExitCode != nil {
			exit = *m.Msg.ExitCode
		}
		return []runmodel.Event{a.makeRunCommandEvent(argv, cwd, exit, m.Msg.Stdout, m.Msg.Stderr)}
	default:
		return nil
	}
}

func (a *CodexAdapter) handleItemMsg(m codexItemMsg) []runmodel.Event {
	switch m.Item.Type {
	case "agent_message", "reasoning":
		kind := "message"
		if m.Item.Type == "reasoning" {
			kind = "observation"
		}
		return []runmodel.Event{runmodel.MakeEvent(runmodel.EventAgentMessage, map[string]any{
			"kind": kind,
			"text": m.Item.Text,
		}, "")}
	case "command_execution":
		exit := 0
		if m.Item.ExitCode != nil {
			exit = *m.Item.ExitCode
		}
		argvStr := m.Item.Command
		var argv []string
		if argvStr != "" {
			argv = []string{argvStr}
		}
		return []runmodel.Event{a.makeRunCommandEvent(argv, "", exit, m.Item.Output, "")}
	default:
		return nil
	}
}

func (a *CodexAdapter) makeRunCommandEvent(argv []string, cwd string, exitCode int, stdout, stderr string) runmodel.Event {
	if inner, ok := UnwrapShell(argv); ok {
		argv = []string{argv[0], argv[1], inner}
	}

	cmdStr := strings.Join(argv, " ")
	if a.PathPolicy.WorkspaceMount != "" {
		cwd = a.PathPolicy.RewritePath(cwd)
	}

	data := map[string]any{
		"argv":      argv,
		"command":   cmdStr,
		"exit_code": exitCode,
	}
	if cwd != "" {
		data["cwd"] = cwd
	}
	if exitCode != 0 {
		a.cmdIndex++
		data["output_excerpt"] = CommandOutputExcerpt(stdout + stderr)
		if a.RunDir != "" {
			if refs, err := WriteCommandFailureArtifacts(a.RunDir, a.cmdIndex, stdout, stderr); err == nil {
				data["failure_artifacts"] = refs
			}
		}
	}
	return runmodel.MakeEvent(runmodel.EventRunCommand, data, "")
}
