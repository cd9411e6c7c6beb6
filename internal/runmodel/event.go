// Package runmodel holds the data types shared between the Run Orchestrator
// and the Backlog Pipeline: the canonical event envelope, run/attempt
// records, atoms, tickets and clusters. Nothing here touches the
// filesystem or a subprocess; it is pure data plus the small amount of
// derived logic (rank ordering, id formatting) that both halves of the
// system need to agree on.
package runmodel

import "encoding/json"

// EventType is the closed set of normalized event kinds every adapter
// translates its agent-specific stream into.
type EventType string

const (
	EventAgentMessage EventType = "agent_message"
	EventRunCommand   EventType = "run_command"
	EventReadFile     EventType = "read_file"
	EventToolCall     EventType = "tool_call"
	EventWebSearch    EventType = "web_search"
	EventError        EventType = "error"
)

// Event is the canonical `{ts,type,data}` envelope. Ts is nil when the
// adapter did not supply a timestamp for that record. Data is intentionally
// a raw map rather than a closed struct: unknown keys written by future
// adapters must round-trip untouched through write/iterate.
type Event struct {
	TS   *string        `json:"ts"`
	Type EventType      `json:"type"`
	Data map[string]any `json:"data"`
}

// MakeEvent constructs an Event. Passing an empty ts yields a null
// timestamp in the JSON encoding.
func MakeEvent(typ EventType, data map[string]any, ts string) Event {
	e := Event{Type: typ, Data: data}
	if ts != "" {
		t := ts
		e.TS = &t
	}
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	return e
}

// Clone returns a deep-enough copy of the event for callers that mutate
// Data after construction (e.g. attaching failure_artifacts post hoc).
func (e Event) Clone() Event {
	data := make(map[string]any, len(e.Data))
	for k, v := range e.Data {
		data[k] = v
	}
	out := Event{Type: e.Type, Data: data}
	if e.TS != nil {
		t := *e.TS
		out.TS = &t
	}
	return out
}

// MarshalCompact renders the event as a single compact JSON line (no
// trailing newline), matching the on-disk JSONL format.
func (e Event) MarshalCompact() ([]byte, error) {
	return json.Marshal(e)
}
