package triage

import (
	"regexp"
	"strings"
)

var wordTokenRE = regexp.MustCompile(`[a-z0-9]+`)

// Tokenize lowercases text and splits it into alphanumeric word tokens,
// matching the similarity engine's title/anchor jaccard inputs.
func Tokenize(text string) []string {
	return wordTokenRE.FindAllString(strings.ToLower(text), -1)
}

var nonAlnumRE = regexp.MustCompile(`[^a-z0-9]+`)

// charNgrams returns overlapping lowercase, alphanumeric-only character
// n-grams of text, capped at maxNgrams.
func charNgrams(text string, n, maxNgrams int) []string {
	cleaned := nonAlnumRE.ReplaceAllString(strings.ToLower(text), "")
	if cleaned == "" {
		return nil
	}
	if len(cleaned) <= n {
		return []string{cleaned}
	}

	var out []string
	limit := maxNgrams
	if limit < 0 {
		limit = 0
	}
	for i := 0; i+n <= len(cleaned); i++ {
		out = append(out, cleaned[i:i+n])
		if limit != 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// pathLikeRE matches tokens that look like file paths: at least one path
// separator or a dotted extension, which is the cue the composite
// similarity's anchor signal keys off of.
var pathLikeRE = regexp.MustCompile(`[A-Za-z0-9_.\-]*[/\\][A-Za-z0-9_./\\-]+|[A-Za-z0-9_\-]+\.[A-Za-z0-9]{1,8}\b`)

// ExtractPathAnchorsFromChunks pulls candidate file-path anchors out of free
// text chunks, expanding each raw match into its lowercased full form, its
// basename, and (when present) its last two path components so the anchor
// jaccard signal still lines up when only a suffix of a path is quoted.
func ExtractPathAnchorsFromChunks(chunks []string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(anchor string) {
		if anchor == "" || seen[anchor] {
			return
		}
		seen[anchor] = true
		out = append(out, anchor)
	}

	for _, chunk := range chunks {
		for _, raw := range pathLikeRE.FindAllString(chunk, -1) {
			anchor := strings.ToLower(strings.ReplaceAll(raw, `\`, "/"))
			anchor = strings.Trim(anchor, ".,:;()[]{}\"'")
			if anchor == "" {
				continue
			}
			add(anchor)

			parts := strings.Split(anchor, "/")
			var nonEmpty []string
			for _, p := range parts {
				if p != "" {
					nonEmpty = append(nonEmpty, p)
				}
			}
			if len(nonEmpty) == 0 {
				continue
			}
			add(nonEmpty[len(nonEmpty)-1])
			if len(nonEmpty) >= 2 {
				add(strings.Join(nonEmpty[len(nonEmpty)-2:], "/"))
			}
		}
	}
	return out
}
