package eventlog

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/usertesteval/usertest/internal/runmodel"
)

func TestWriteIterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "normalized_events.jsonl")

	events := []runmodel.Event{
		runmodel.MakeEvent(runmodel.EventRunCommand, map[string]any{"argv": []any{"echo", "hi"}, "exit_code": float64(0)}, "2026-01-01T00:00:00Z"),
		runmodel.MakeEvent(runmodel.EventError, map[string]any{"category": "raw_non_json_line", "message": "oops"}, ""),
	}

	if err := WriteEventsJSONL(path, events); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := IterEventsJSONL(path)
	if err != nil {
		t.Fatalf("iter: %v", err)
	}
	if !reflect.DeepEqual(got, events) {
		t.Fatalf("round-trip mismatch:\ngot  %+v\nwant %+v", got, events)
	}
}

func TestIterEventsJSONLIgnoresBlankLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	content := "\n  \n{\"ts\":null,\"type\":\"error\",\"data\":{\"category\":\"x\",\"message\":\"y\"}}\n\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	got, err := IterEventsJSONL(path)
	if err != nil {
		t.Fatalf("iter: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
}
