package history

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"
)

// IterReportHistoryFromJSONL reads a pre-built report_history.jsonl file
// (as written by WriteReportHistoryJSONL) and yields matching items as
// plain maps, pruning the embedded/embedded_capture_manifest maps down to
// the keys allowed by opts.Embed. Used when downstream consumers (triage,
// backlog) are pointed directly at an already-compiled history file
// instead of a live runs directory.
func IterReportHistoryFromJSONL(path string, opts Options) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var normalizedRepo string
	if strings.TrimSpace(opts.RepoInput) != "" {
		normalizedRepo = normalizeRepoInput(opts.RepoInput)
	}
	allowedKeys := embedAllowedKeys(opts.Embed)

	var out []map[string]any
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var item map[string]any
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			continue
		}

		if opts.TargetSlug != "" {
			slug, _ := item["target_slug"].(string)
			if slug != opts.TargetSlug {
				continue
			}
		}

		if normalizedRepo != "" {
			candidate := repoInputFromTargetRef(item["target_ref"])
			if candidate == "" || normalizeRepoInput(candidate) != normalizedRepo {
				continue
			}
		}

		item["embedded"] = pruneEmbeddedMap(item["embedded"], allowedKeys)
		item["embedded_capture_manifest"] = pruneEmbeddedMap(item["embedded_capture_manifest"], allowedKeys)
		out = append(out, item)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func pruneEmbeddedMap(raw any, allowedKeys map[string]bool) map[string]any {
	m, ok := raw.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	out := map[string]any{}
	for k, v := range m {
		if allowedKeys[k] {
			out[k] = v
		}
	}
	return out
}
