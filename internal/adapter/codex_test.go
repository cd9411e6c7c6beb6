package adapter

import (
	"strings"
	"testing"
)

func TestCodexAdapterJoinsBeginEndByCallID(t *testing.T) {
	stream := strings.Join([]string{
		`{"msg":{"type":"exec_command_begin","call_id":"c1","command":["ls","-la"],"cwd":"/workspace"}}`,
		`{"msg":{"type":"exec_command_end","call_id":"c1","exit_code":0,"stdout":"ok\n","stderr":""}}`,
	}, "\n")

	a := NewCodexAdapter(PathPolicy{}, "")
	events, err := a.ProcessStream(strings.NewReader(stream))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 run_command event, got %d: %+v", len(events), events)
	}
	argv, _ := events[0].Data["argv"].([]string)
	if len(argv) != 2 || argv[0] != "ls" || argv[1] != "-la" {
		t.Fatalf("argv not carried from begin record: %+v", events[0].Data)
	}
}

func TestCodexAdapterLoneEndUsesEndArgv(t *testing.T) {
	stream := `{"msg":{"type":"exec_command_end","call_id":"c2","command":["echo","hi"],"exit_code":0}}`
	a := NewCodexAdapter(PathPolicy{}, "")
	events, err := a.ProcessStream(strings.NewReader(stream))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	argv, _ := events[0].Data["argv"].([]string)
	if len(argv) != 2 || argv[0] != "echo" {
		t.Fatalf("argv = %+v", argv)
	}
}

func TestCodexAdapterWindowsPathPreserved(t *testing.T) {
	stream := `{"msg":{"type":"exec_command_end","call_id":"c3","command":["C:\\Python\\python.exe","-V"],"exit_code":0}}`
	a := NewCodexAdapter(PathPolicy{}, "")
	events, err := a.ProcessStream(strings.NewReader(stream))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	argv, _ := events[0].Data["argv"].([]string)
	cmd, _ := events[0].Data["command"].(string)
	if !strings.Contains(argv[0], `\`) {
		t.Fatalf("argv[0] lost backslashes: %q", argv[0])
	}
	if !strings.Contains(cmd, `\`) {
		t.Fatalf("data.command lost backslashes: %q", cmd)
	}
}

func TestCodexAdapterNonJSONLineEmitsError(t *testing.T) {
	a := NewCodexAdapter(PathPolicy{}, "")
	events, err := a.ProcessStream(strings.NewReader("not json at all"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(events) != 1 || events[0].Data["category"] != "raw_non_json_line" {
		t.Fatalf("expected raw_non_json_line error event, got %+v", events)
	}
}

func TestCodexAdapterNonZeroExitWritesFailureArtifacts(t *testing.T) {
	dir := t.TempDir()
	stream := `{"msg":{"type":"exec_command_end","call_id":"c4","command":["false"],"exit_code":1,"stdout":"","stderr":"boom"}}`
	a := NewCodexAdapter(PathPolicy{}, dir)
	events, err := a.ProcessStream(strings.NewReader(stream))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if _, ok := events[0].Data["failure_artifacts"]; !ok {
		t.Fatalf("expected failure_artifacts on non-zero exit event: %+v", events[0].Data)
	}
}

func TestUnwrapShellOnce(t *testing.T) {
	inner, ok := UnwrapShell([]string{"bash", "-lc", "echo hi"})
	if !ok || inner != "echo hi" {
		t.Fatalf("unwrap = %q, %v", inner, ok)
	}
	if _, ok := UnwrapShell([]string{"echo", "hi"}); ok {
		t.Fatalf("should not unwrap non-shell argv")
	}
}
