package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func writePersona(t *testing.T, dir, filename, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscoverPersonasResolvesExtends(t *testing.T) {
	dir := t.TempDir()
	writePersona(t, dir, "base.persona.md", "---\nid: base\nname: Base\n---\nBase body.")
	writePersona(t, dir, "derived.persona.md", "---\nid: derived\nname: Derived\nextends: base\n---\nDerived body.")

	personas, err := DiscoverPersonas(Config{PersonaDirs: []string{dir}})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	derived, ok := personas["derived"]
	if !ok {
		t.Fatalf("missing derived persona")
	}
	want := "Base body.\n\nDerived body."
	if derived.BodyMD != want {
		t.Fatalf("body = %q, want %q", derived.BodyMD, want)
	}
}

func TestDiscoverPersonasDuplicateIDFails(t *testing.T) {
	dir := t.TempDir()
	writePersona(t, dir, "a.persona.md", "---\nid: dup\n---\nA")
	writePersona(t, dir, "b.persona.md", "---\nid: dup\n---\nB")

	_, err := DiscoverPersonas(Config{PersonaDirs: []string{dir}})
	if err == nil {
		t.Fatalf("expected duplicate id error")
	}
	ce, ok := err.(*Error)
	if !ok || ce.Code != "duplicate_persona_id" {
		t.Fatalf("expected duplicate_persona_id error, got %v", err)
	}
}

func TestDiscoverPersonasCycleFails(t *testing.T) {
	dir := t.TempDir()
	writePersona(t, dir, "a.persona.md", "---\nid: a\nextends: b\n---\nA")
	writePersona(t, dir, "b.persona.md", "---\nid: b\nextends: a\n---\nB")

	_, err := DiscoverPersonas(Config{PersonaDirs: []string{dir}})
	if err == nil {
		t.Fatalf("expected cycle error")
	}
	ce, ok := err.(*Error)
	if !ok || ce.Code != "extends_cycle" {
		t.Fatalf("expected extends_cycle error, got %v", err)
	}
}

func writeMission(t *testing.T, dir, filename, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscoverMissionsInheritsFromBase(t *testing.T) {
	dir := t.TempDir()
	writeMission(t, dir, "base.mission.md", "---\nid: base\nexecution_mode: single_pass_inline_report\nprompt_template: tmpl.md\nreport_schema: schema.json\ntags: [a, b]\n---\nBase mission.")
	writeMission(t, dir, "derived.mission.md", "---\nid: derived\nextends: base\ntags: [b, c]\n---\nDerived mission.")

	missions, err := DiscoverMissions(Config{MissionDirs: []string{dir}})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	derived := missions["derived"]
	if derived.ExecutionMode != "single_pass_inline_report" {
		t.Fatalf("execution_mode not inherited: %q", derived.ExecutionMode)
	}
	if derived.PromptTemplate != "tmpl.md" || derived.ReportSchema != "schema.json" {
		t.Fatalf("prompt_template/report_schema not inherited: %+v", derived)
	}
	wantTags := []string{"a", "b", "c"}
	if len(derived.Tags) != len(wantTags) {
		t.Fatalf("tags = %v, want %v", derived.Tags, wantTags)
	}
	for i, tag := range wantTags {
		if derived.Tags[i] != tag {
			t.Fatalf("tags[%d] = %q, want %q", i, derived.Tags[i], tag)
		}
	}
}

func TestDiscoverMissionsUnsupportedExecutionModeFails(t *testing.T) {
	dir := t.TempDir()
	writeMission(t, dir, "bad.mission.md", "---\nid: bad\nexecution_mode: multi_turn\nprompt_template: t.md\nreport_schema: s.json\n---\nBody")

	_, err := DiscoverMissions(Config{MissionDirs: []string{dir}})
	if err == nil {
		t.Fatalf("expected error")
	}
	ce, ok := err.(*Error)
	if !ok || ce.Code != "unsupported_execution_mode" {
		t.Fatalf("expected unsupported_execution_mode, got %v", err)
	}
}
