// Package history iterates compiled run directories (or a pre-built
// report_history.jsonl) into uniform records suitable for longitudinal
// analysis: triage, backlog building, and window-based issue analysis all
// walk the same record shape this package produces.
package history

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/usertesteval/usertest/internal/eventlog"
)

var timestampDirRE = regexp.MustCompile(`^[0-9]{8}T[0-9]{6}Z$`)

func parseTimestampDirname(name string) string {
	if !timestampDirRE.MatchString(name) {
		return ""
	}
	t, err := time.Parse("20060102T150405Z", name)
	if err != nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func normalizeRepoInput(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if strings.Contains(value, "://") {
		return strings.ToLower(value)
	}
	return strings.ToLower(filepath.Clean(value))
}

// IterRunDirs walks <runsDir>/<target>/<ts>/<agent>/<seed> directories in
// sorted order, yielding only seed directories that contain
// target_ref.json. A non-empty targetSlug restricts the walk to one
// target directory.
func IterRunDirs(runsDir, targetSlug string) ([]string, error) {
	var targetDirs []string
	if targetSlug != "" {
		targetDirs = []string{filepath.Join(runsDir, targetSlug)}
	} else {
		entries, err := sortedVisibleDirs(runsDir)
		if err != nil {
			return nil, nil
		}
		for _, e := range entries {
			targetDirs = append(targetDirs, filepath.Join(runsDir, e))
		}
	}

	var out []string
	for _, targetDir := range targetDirs {
		if !isDir(targetDir) {
			continue
		}
		tsDirs, err := sortedVisibleDirs(targetDir)
		if err != nil {
			continue
		}
		for _, ts := range tsDirs {
			tsDir := filepath.Join(targetDir, ts)
			agentDirs, err := sortedVisibleDirs(tsDir)
			if err != nil {
				continue
			}
			for _, agent := range agentDirs {
				agentDir := filepath.Join(tsDir, agent)
				seedDirs, err := sortedVisibleDirs(agentDir)
				if err != nil {
					continue
				}
				for _, seed := range seedDirs {
					seedDir := filepath.Join(agentDir, seed)
					if fileExists(filepath.Join(seedDir, "target_ref.json")) {
						out = append(out, seedDir)
					}
				}
			}
		}
	}
	return out, nil
}

func sortedVisibleDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), "_") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func readJSONAny(path string) any {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	return v
}

// EmbedLevel mirrors the Python API's `embed` string: none < definitions <
// prompt < all, each level a superset of the previous one's keys.
type EmbedLevel int

const (
	EmbedNone EmbedLevel = iota
	EmbedDefinitions
	EmbedPrompt
	EmbedAll
)

func ParseEmbedLevel(s string) (EmbedLevel, bool) {
	switch s {
	case "none":
		return EmbedNone, true
	case "definitions", "":
		return EmbedDefinitions, true
	case "prompt":
		return EmbedPrompt, true
	case "all":
		return EmbedAll, true
	default:
		return EmbedNone, false
	}
}

var embedDefinitionKeys = []string{
	"persona_source_md", "persona_resolved_md",
	"mission_source_md", "mission_resolved_md",
	"prompt_template_md", "report_schema_json",
}

func embedAllowedKeys(level EmbedLevel) map[string]bool {
	keys := map[string]bool{}
	if level <= EmbedNone {
		return keys
	}
	for _, k := range embedDefinitionKeys {
		keys[k] = true
	}
	if level >= EmbedPrompt {
		keys["prompt_txt"] = true
	}
	if level >= EmbedAll {
		keys["users_md"] = true
	}
	return keys
}

// Record is one history item: a run directory's parsed artifacts plus
// derived status, optionally carrying embedded text/schema content.
type Record struct {
	RunDir                   string
	RunRel                   string
	TargetSlug               string
	TimestampDir             string
	TimestampUTC             string
	Agent                    string
	Seed                     string
	Status                   string
	AgentExitCode            *int
	TargetRef                any
	EffectiveRunSpec         any
	Report                   any
	Metrics                  any
	Preflight                any
	Error                    any
	ReportValidationErrors   any
	Embedded                 map[string]any
	EmbeddedCaptureManifest  map[string]any
}

// Options configure IterReportHistory / history-file filtering.
type Options struct {
	TargetSlug    string
	RepoInput     string
	Embed         EmbedLevel
	MaxEmbedBytes int
}

func (o Options) maxEmbedBytes() int {
	if o.MaxEmbedBytes > 0 {
		return o.MaxEmbedBytes
	}
	return 200_000
}

func historyCapturePolicy(maxEmbedBytes int) eventlog.CapturePolicy {
	head := maxEmbedBytes / 2
	tail := maxEmbedBytes - head
	return eventlog.CapturePolicy{
		MaxExcerptBytes:      maxEmbedBytes,
		HeadBytes:            head,
		TailBytes:            tail,
		BinaryDetectionBytes: 2048,
	}
}

func composeHistoryExcerpt(res eventlog.CaptureResult) string {
	if !res.Truncated {
		return res.Excerpt
	}
	marker := "\n...[truncated; see embedded_capture_manifest]...\n"
	half := len(res.Excerpt) / 2
	return res.Excerpt[:half] + marker + res.Excerpt[half:]
}

func captureEmbeddedText(runDir, relPath string, policy eventlog.CapturePolicy) (string, map[string]any) {
	res := eventlog.CaptureTextArtifact(filepath.Join(runDir, relPath), policy, runDir)
	manifest := map[string]any{
		"path":      res.ArtifactRef.Path,
		"exists":    res.ArtifactRef.Exists,
		"size_bytes": res.ArtifactRef.SizeBytes,
		"sha256":    res.ArtifactRef.SHA256,
		"truncated": res.Truncated,
		"error":     res.Error,
	}
	if !res.ArtifactRef.Exists {
		return "", manifest
	}
	if res.Error == "" {
		return composeHistoryExcerpt(res), manifest
	}
	return "[capture_error] " + res.Error, manifest
}

// IterReportHistory walks runsDir producing one Record per compiled run
// directory, in the same sorted target/timestamp/agent/seed order
// IterRunDirs uses.
func IterReportHistory(runsDir string, opts Options) ([]Record, error) {
	var normalizedRepo string
	if strings.TrimSpace(opts.RepoInput) != "" {
		normalizedRepo = normalizeRepoInput(opts.RepoInput)
	}

	runDirs, err := IterRunDirs(runsDir, opts.TargetSlug)
	if err != nil {
		return nil, err
	}

	policy := historyCapturePolicy(opts.maxEmbedBytes())
	allowedKeys := embedAllowedKeys(opts.Embed)

	var out []Record
	for _, runDir := range runDirs {
		rel, err := filepath.Rel(runsDir, runDir)
		if err != nil {
			rel = ""
		}
		rel = filepath.ToSlash(rel)
		parts := strings.Split(rel, "/")

		var target, tsDir, agent, seed string
		if len(parts) >= 4 {
			target, tsDir, agent, seed = parts[0], parts[1], parts[2], parts[3]
		}

		targetRef := readJSONAny(filepath.Join(runDir, "target_ref.json"))
		if normalizedRepo != "" {
			candidate := repoInputFromTargetRef(targetRef)
			if candidate == "" || normalizeRepoInput(candidate) != normalizedRepo {
				continue
			}
		}

		effectiveRunSpec := readJSONAny(filepath.Join(runDir, "effective_run_spec.json"))
		report := readJSONAny(filepath.Join(runDir, "report.json"))
		metrics := readJSONAny(filepath.Join(runDir, "metrics.json"))
		preflight := readJSONAny(filepath.Join(runDir, "preflight.json"))
		errDoc := readJSONAny(filepath.Join(runDir, "error.json"))
		reportValidationErrors := readJSONAny(filepath.Join(runDir, "report_validation_errors.json"))

		var exitCode *int
		if m, ok := errDoc.(map[string]any); ok {
			if v, ok := m["exit_code"].(float64); ok {
				i := int(v)
				exitCode = &i
			}
		}

		var status string
		switch {
		case errDoc != nil:
			status = "error"
		case reportValidationErrors != nil:
			status = "report_validation_error"
		case report == nil:
			status = "missing_report"
		default:
			status = "ok"
		}

		embedded := map[string]any{}
		manifest := map[string]any{}
		if allowedKeys["persona_source_md"] {
			txt, m := captureEmbeddedText(runDir, "persona.source.md", policy)
			embedded["persona_source_md"], manifest["persona_source_md"] = txt, m
			txt, m = captureEmbeddedText(runDir, "persona.resolved.md", policy)
			embedded["persona_resolved_md"], manifest["persona_resolved_md"] = txt, m
			txt, m = captureEmbeddedText(runDir, "mission.source.md", policy)
			embedded["mission_source_md"], manifest["mission_source_md"] = txt, m
			txt, m = captureEmbeddedText(runDir, "mission.resolved.md", policy)
			embedded["mission_resolved_md"], manifest["mission_resolved_md"] = txt, m
			txt, m = captureEmbeddedText(runDir, "prompt.template.md", policy)
			embedded["prompt_template_md"], manifest["prompt_template_md"] = txt, m
			embedded["report_schema_json"] = readJSONAny(filepath.Join(runDir, "report.schema.json"))
		}
		if allowedKeys["prompt_txt"] {
			txt, m := captureEmbeddedText(runDir, "prompt.txt", policy)
			embedded["prompt_txt"], manifest["prompt_txt"] = txt, m
		}
		if allowedKeys["users_md"] {
			txt, m := captureEmbeddedText(runDir, "users.md", policy)
			embedded["users_md"], manifest["users_md"] = txt, m
		}

		out = append(out, Record{
			RunDir:                  runDir,
			RunRel:                  rel,
			TargetSlug:              target,
			TimestampDir:            tsDir,
			TimestampUTC:            parseTimestampDirname(tsDir),
			Agent:                   agent,
			Seed:                    seed,
			Status:                  status,
			AgentExitCode:           exitCode,
			TargetRef:               targetRef,
			EffectiveRunSpec:        effectiveRunSpec,
			Report:                  report,
			Metrics:                 metrics,
			Preflight:               preflight,
			Error:                   errDoc,
			ReportValidationErrors:  reportValidationErrors,
			Embedded:                embedded,
			EmbeddedCaptureManifest: manifest,
		})
	}
	return out, nil
}

func repoInputFromTargetRef(targetRef any) string {
	m, ok := targetRef.(map[string]any)
	if !ok {
		return ""
	}
	s, _ := m["repo_input"].(string)
	return s
}

// WriteReportHistoryJSONL scans runsDir and writes one JSON line per
// Record to outPath, returning per-status counts plus "total".
func WriteReportHistoryJSONL(runsDir, outPath string, opts Options) (map[string]int, error) {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, err
	}
	records, err := IterReportHistory(runsDir, opts)
	if err != nil {
		return nil, err
	}

	f, err := os.Create(outPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	counts := map[string]int{"ok": 0, "missing_report": 0, "report_validation_error": 0, "error": 0}
	for _, r := range records {
		counts[r.Status]++
		b, err := json.Marshal(recordToMap(r))
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(b); err != nil {
			return nil, err
		}
		if err := w.WriteByte('\n'); err != nil {
			return nil, err
		}
	}
	counts["total"] = len(records)
	return counts, w.Flush()
}

func recordToMap(r Record) map[string]any {
	var seed any = r.Seed
	if n, err := strconv.Atoi(r.Seed); err == nil {
		seed = n
	}
	return map[string]any{
		"run_dir":                  r.RunDir,
		"run_rel":                  r.RunRel,
		"target_slug":              r.TargetSlug,
		"timestamp_dir":            r.TimestampDir,
		"timestamp_utc":            r.TimestampUTC,
		"agent":                    r.Agent,
		"seed":                     seed,
		"status":                   r.Status,
		"agent_exit_code":          r.AgentExitCode,
		"target_ref":               r.TargetRef,
		"effective_run_spec":       r.EffectiveRunSpec,
		"report":                   r.Report,
		"metrics":                  r.Metrics,
		"preflight":                r.Preflight,
		"error":                    r.Error,
		"report_validation_errors": r.ReportValidationErrors,
		"embedded":                 r.Embedded,
		"embedded_capture_manifest": r.EmbeddedCaptureManifest,
	}
}
