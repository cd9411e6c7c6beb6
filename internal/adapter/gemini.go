package adapter

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/usertesteval/usertest/internal/runmodel"
)

// geminiEvent is Gemini's event shape: a discriminated union similar in
// spirit to Claude's, but with its own tool-name vocabulary that this
// adapter normalizes to the same canonical names Claude uses internally
// before delegating to the shared tool->event mapping.
type geminiEvent struct {
	Type string `json:"type"`

	// content/message events
	Role string `json:"role,omitempty"`
	Text string `json:"text,omitempty"`

	// tool_call events
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	Args       map[string]any `json:"args,omitempty"`

	// tool_result events
	CallID  string `json:"call_id,omitempty"`
	Output  string `json:"output,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
}

// geminiToolNameAlias maps Gemini's tool vocabulary onto the canonical
// names used by toolEventKind (shared with the Claude adapter).
var geminiToolNameAlias = map[string]string{
	"run_shell_command": "bash",
	"read_file":         "read",
	"replace":           "edit",
	"write_file":        "write",
	"search_file_content": "grep",
	"glob":              "glob",
	"google_web_search": "websearch",
}

func normalizeGeminiToolName(name string) string {
	if alias, ok := geminiToolNameAlias[name]; ok {
		return alias
	}
	return name
}

type geminiPendingCall struct {
	name string
	args map[string]any
}

// GeminiAdapter normalizes Gemini's tool_call/tool_result stream into
// canonical events, matching tool_call_id to the subsequent tool_result by
// call_id.
type GeminiAdapter struct {
	PathPolicy PathPolicy
	RunDir     string

	pending  map[string]geminiPendingCall
	cmdIndex int
}

func NewGeminiAdapter(policy PathPolicy, runDir string) *GeminiAdapter {
	return &GeminiAdapter{PathPolicy: policy, RunDir: runDir, pending: map[string]geminiPendingCall{}}
}

func (a *GeminiAdapter) ProcessStream(r io.Reader) ([]runmodel.Event, error) {
	var out []runmodel.Event
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ev geminiEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			out = append(out, RawNonJSONLine(line))
			continue
		}
		out = append(out, a.handleEvent(ev)...)
	}
	return out, sc.Err()
}

func (a *GeminiAdapter) handleEvent(ev geminiEvent) []runmodel.Event {
	switch ev.Type {
	case "content", "message":
		return []runmodel.Event{runmodel.MakeEvent(runmodel.EventAgentMessage, map[string]any{
			"kind": "message",
			"text": ev.Text,
		}, "")}
	case "tool_call":
		a.pending[ev.ToolCallID] = geminiPendingCall{name: normalizeGeminiToolName(ev.ToolName), args: ev.Args}
		return nil
	case "tool_result":
		use, ok := a.pending[ev.CallID]
		if !ok {
			return []runmodel.Event{ToolResultMissingUse(ev.CallID)}
		}
		delete(a.pending, ev.CallID)
		return []runmodel.Event{a.eventForTool(use, ev.Output, ev.IsError)}
	default:
		return nil
	}
}

func (a *GeminiAdapter) eventForTool(use geminiPendingCall, output string, isError bool) runmodel.Event {
	kind := toolEventKind(use.name)
	switch kind {
	case runmodel.EventRunCommand:
		argvStr, _ := use.args["command"].(string)
		exitCode := 0
		if isError {
			exitCode = 1
		}
		data := map[string]any{
			"argv":      []string{argvStr},
			"command":   argvStr,
			"exit_code": exitCode,
		}
		if exitCode != 0 {
			a.cmdIndex++
			data["output_excerpt"] = CommandOutputExcerpt(output)
			if a.RunDir != "" {
				if refs, err := WriteCommandFailureArtifacts(a.RunDir, a.cmdIndex, "", output); err == nil {
					data["failure_artifacts"] = refs
				}
			}
		}
		return runmodel.MakeEvent(runmodel.EventRunCommand, data, "")
	case runmodel.EventReadFile:
		path, _ := use.args["path"].(string)
		if a.PathPolicy.WorkspaceMount != "" {
			path = a.PathPolicy.RewritePath(path)
		}
		return runmodel.MakeEvent(runmodel.EventReadFile, map[string]any{
			"path":  path,
			"bytes": len(output),
		}, "")
	case runmodel.EventWebSearch:
		query, _ := use.args["query"].(string)
		return runmodel.MakeEvent(runmodel.EventWebSearch, map[string]any{"query": query}, "")
	default:
		return runmodel.MakeEvent(runmodel.EventToolCall, map[string]any{
			"name":     use.name,
			"input":    use.args,
			"is_error": isError,
		}, "")
	}
}
