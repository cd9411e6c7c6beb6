// Package catalog discovers persona/mission markdown documents, parses
// their YAML frontmatter, and resolves `extends` chains into fully merged
// specs (§4.C).
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// AllowedExecutionModes is the closed set a mission's execution_mode must
// belong to once extends resolution is complete.
var AllowedExecutionModes = map[string]bool{
	"single_pass_inline_report": true,
}

// Error is CatalogError from §7: duplicate ids, unknown extends, cycles,
// unsupported execution_mode all surface as this type.
type Error struct {
	Message string
	Code    string
	Details map[string]any
}

func (e *Error) Error() string { return e.Message }

func newErr(code, format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Code: code}
}

// Persona is a resolved persona document: frontmatter plus merged body.
type Persona struct {
	ID         string
	Name       string
	Extends    string
	BodyMD     string
	SourcePath string
}

// Mission is a resolved mission document.
type Mission struct {
	ID             string
	Name           string
	Extends        string
	Tags           []string
	ExecutionMode  string
	PromptTemplate string
	ReportSchema   string
	BodyMD         string
	SourcePath     string
	RequiresShell  bool
	RequiresEdits  bool
}

// Config points the catalog at the directories it should scan. Dirs is
// ordered: entries discovered later override earlier ones only through
// the target-repo overlay described in §4.C, never by silently shadowing
// within Dirs itself (duplicate ids across dirs are always an error).
type Config struct {
	PersonaDirs []string
	MissionDirs []string
}

type rawPersona struct {
	id, name, extends, body, path string
}

type rawMission struct {
	id, name, extends, executionMode, promptTemplate, reportSchema, path string
	tags                                                                 []string
	requiresShell, requiresEdits                                        bool
	body                                                                 string
}

// DiscoverPersonas walks cfg.PersonaDirs for `*.persona.md` files, parses
// each one's frontmatter, checks for duplicate ids, and resolves `extends`
// chains.
func DiscoverPersonas(cfg Config) (map[string]Persona, error) {
	raws, err := discoverPersonaFiles(cfg.PersonaDirs)
	if err != nil {
		return nil, err
	}
	return resolvePersonaExtends(raws)
}

// DiscoverMissions walks cfg.MissionDirs for `*.mission.md` files and
// resolves them the same way, additionally inheriting execution_mode,
// prompt_template and report_schema from the base when absent.
func DiscoverMissions(cfg Config) (map[string]Mission, error) {
	raws, err := discoverMissionFiles(cfg.MissionDirs)
	if err != nil {
		return nil, err
	}
	return resolveMissionExtends(raws)
}

func discoverPersonaFiles(dirs []string) (map[string]rawPersona, error) {
	out := map[string]rawPersona{}
	seenPaths := map[string]string{}
	for _, dir := range dirs {
		matches, err := globMarkdown(dir, "*.persona.md")
		if err != nil {
			return nil, err
		}
		for _, path := range matches {
			fm, body, err := parseFrontmatter(path)
			if err != nil {
				return nil, err
			}
			id := requireNonEmptyString(fm, "id", path)
			if id == "" {
				return nil, newErr("missing_field", "missing or invalid id in %s", path)
			}
			if prior, ok := seenPaths[id]; ok {
				return nil, newErr("duplicate_persona_id", "duplicate persona id %q: %s and %s", id, prior, path)
			}
			seenPaths[id] = path
			out[id] = rawPersona{
				id:      id,
				name:    optionalString(fm["name"]),
				extends: optionalString(fm["extends"]),
				body:    body,
				path:    path,
			}
		}
	}
	return out, nil
}

func discoverMissionFiles(dirs []string) (map[string]rawMission, error) {
	out := map[string]rawMission{}
	seenPaths := map[string]string{}
	for _, dir := range dirs {
		matches, err := globMarkdown(dir, "*.mission.md")
		if err != nil {
			return nil, err
		}
		for _, path := range matches {
			fm, body, err := parseFrontmatter(path)
			if err != nil {
				return nil, err
			}
			id := requireNonEmptyString(fm, "id", path)
			if id == "" {
				return nil, newErr("missing_field", "missing or invalid id in %s", path)
			}
			if prior, ok := seenPaths[id]; ok {
				return nil, newErr("duplicate_mission_id", "duplicate mission id %q: %s and %s", id, prior, path)
			}
			seenPaths[id] = path

			tags, err := parseTags(fm["tags"], path)
			if err != nil {
				return nil, err
			}

			out[id] = rawMission{
				id:             id,
				name:           optionalString(fm["name"]),
				extends:        optionalString(fm["extends"]),
				executionMode:  optionalString(fm["execution_mode"]),
				promptTemplate: optionalString(fm["prompt_template"]),
				reportSchema:   optionalString(fm["report_schema"]),
				tags:           tags,
				requiresShell:  asBool(fm["requires_shell"]),
				requiresEdits:  asBool(fm["requires_edits"]),
				body:           body,
				path:           path,
			}
		}
	}
	return out, nil
}

func globMarkdown(dir, pattern string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	matches, err := doublestar.Glob(os.DirFS(dir), "**/"+pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %s in %s: %w", pattern, dir, err)
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, filepath.Join(dir, m))
	}
	return out, nil
}

func parseFrontmatter(path string) (map[string]any, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	text := string(raw)
	if !strings.HasPrefix(text, "---") {
		return nil, "", newErr("missing_frontmatter", "missing YAML frontmatter in %s (expected leading '---')", path)
	}
	lines := strings.Split(text, "\n")
	if strings.TrimSpace(lines[0]) != "---" {
		return nil, "", newErr("missing_frontmatter", "invalid YAML frontmatter start in %s", path)
	}
	endIdx := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			endIdx = i
			break
		}
	}
	if endIdx < 0 {
		return nil, "", newErr("unterminated_frontmatter", "unterminated YAML frontmatter in %s", path)
	}
	fmText := strings.TrimSpace(strings.Join(lines[1:endIdx], "\n"))
	bodyText := strings.TrimSpace(strings.Join(lines[endIdx+1:], "\n"))

	fm := map[string]any{}
	if fmText != "" {
		if err := yaml.Unmarshal([]byte(fmText), &fm); err != nil {
			return nil, "", newErr("invalid_frontmatter_yaml", "failed to parse YAML frontmatter in %s: %v", path, err)
		}
	}
	return fm, bodyText, nil
}

func requireNonEmptyString(fm map[string]any, field, path string) string {
	return optionalString(fm[field])
}

func optionalString(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func parseTags(v any, path string) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, newErr("invalid_tags", "tags must be a list in %s", path)
	}
	out := make([]string, 0, len(raw))
	for i, item := range raw {
		s, ok := item.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return nil, newErr("invalid_tags", "tags[%d] must be a non-empty string in %s", i, path)
		}
		out = append(out, strings.TrimSpace(s))
	}
	return out, nil
}

func mergeTags(base, extra []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range append(append([]string{}, base...), extra...) {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
