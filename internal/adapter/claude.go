package adapter

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/usertesteval/usertest/internal/runmodel"
)

type claudeContentBlock struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"`

	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type claudeMessage struct {
	Role    string               `json:"role"`
	Content []claudeContentBlock `json:"content"`
}

type claudeStreamEvent struct {
	Type    string         `json:"type"` // "assistant" | "user"
	Message *claudeMessage `json:"message"`
}

type claudePendingToolUse struct {
	name  string
	input map[string]any
}

// toolEventKind maps a Claude tool name to the canonical event type it
// produces, per §4.B.
func toolEventKind(name string) runmodel.EventType {
	switch name {
	case "bash":
		return runmodel.EventRunCommand
	case "read":
		return runmodel.EventReadFile
	case "websearch":
		return runmodel.EventWebSearch
	case "edit", "write", "grep", "glob":
		return runmodel.EventToolCall
	default:
		return runmodel.EventToolCall
	}
}

// ClaudeAdapter normalizes Claude's assistant/user stream-json events,
// buffering tool_use blocks by id until the matching tool_result arrives.
type ClaudeAdapter struct {
	PathPolicy PathPolicy
	RunDir     string

	pending  map[string]claudePendingToolUse
	cmdIndex int
}

func NewClaudeAdapter(policy PathPolicy, runDir string) *ClaudeAdapter {
	return &ClaudeAdapter{PathPolicy: policy, RunDir: runDir, pending: map[string]claudePendingToolUse{}}
}

func (a *ClaudeAdapter) ProcessStream(r io.Reader) ([]runmodel.Event, error) {
	var out []runmodel.Event
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ev claudeStreamEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			out = append(out, RawNonJSONLine(line))
			continue
		}
		out = append(out, a.handleEvent(ev)...)
	}
	return out, sc.Err()
}

func (a *ClaudeAdapter) handleEvent(ev claudeStreamEvent) []runmodel.Event {
	if ev.Message == nil {
		return nil
	}
	switch ev.Type {
	case "assistant":
		return a.handleAssistant(*ev.Message)
	case "user":
		return a.handleUser(*ev.Message)
	default:
		return nil
	}
}

func (a *ClaudeAdapter) handleAssistant(msg claudeMessage) []runmodel.Event {
	var out []runmodel.Event
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			out = append(out, runmodel.MakeEvent(runmodel.EventAgentMessage, map[string]any{
				"kind": "message",
				"text": block.Text,
			}, ""))
		case "tool_use":
			a.pending[block.ID] = claudePendingToolUse{name: block.Name, input: block.Input}
		}
	}
	return out
}

func (a *ClaudeAdapter) handleUser(msg claudeMessage) []runmodel.Event {
	var out []runmodel.Event
	for _, block := range msg.Content {
		if block.Type != "tool_result" {
			continue
		}
		use, ok := a.pending[block.ToolUseID]
		if !ok {
			out = append(out, ToolResultMissingUse(block.ToolUseID))
			continue
		}
		delete(a.pending, block.ToolUseID)

		content := decodeToolResultContent(block.Content)
		out = append(out, a.eventForTool(use, content, block.IsError))
	}
	return out
}

func decodeToolResultContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var parts []string
		for _, b := range blocks {
			if b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
		return strings.Join(parts, "\n")
	}
	return string(raw)
}

func (a *ClaudeAdapter) eventForTool(use claudePendingToolUse, content string, isError bool) runmodel.Event {
	kind := toolEventKind(use.name)
	switch kind {
	case runmodel.EventRunCommand:
		argvStr, _ := use.input["command"].(string)
		cwd, _ := use.input["cwd"].(string)
		if a.PathPolicy.WorkspaceMount != "" {
			cwd = a.PathPolicy.RewritePath(cwd)
		}
		exitCode := 0
		if isError {
			exitCode = 1
		}
		data := map[string]any{
			"argv":      []string{argvStr},
			"command":   argvStr,
			"exit_code": exitCode,
		}
		if cwd != "" {
			data["cwd"] = cwd
		}
		if exitCode != 0 {
			a.cmdIndex++
			data["output_excerpt"] = CommandOutputExcerpt(content)
			if a.RunDir != "" {
				if refs, err := WriteCommandFailureArtifacts(a.RunDir, a.cmdIndex, "", content); err == nil {
					data["failure_artifacts"] = refs
				}
			}
		}
		return runmodel.MakeEvent(runmodel.EventRunCommand, data, "")
	case runmodel.EventReadFile:
		path, _ := use.input["path"].(string)
		if a.PathPolicy.WorkspaceMount != "" {
			path = a.PathPolicy.RewritePath(path)
		}
		return runmodel.MakeEvent(runmodel.EventReadFile, map[string]any{
			"path":  path,
			"bytes": len(content),
		}, "")
	case runmodel.EventWebSearch:
		query, _ := use.input["query"].(string)
		return runmodel.MakeEvent(runmodel.EventWebSearch, map[string]any{"query": query}, "")
	default:
		return runmodel.MakeEvent(runmodel.EventToolCall, map[string]any{
			"name":     use.name,
			"input":    use.input,
			"is_error": isError,
		}, "")
	}
}
