package triage

import "regexp"

// ThemeRule maps a closed theme ID to the regexes that signal it.
type ThemeRule struct {
	ThemeID  string
	Title    string
	Patterns []*regexp.Regexp
}

func mustRule(themeID, title string, patterns ...string) ThemeRule {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile("(?i)" + p)
	}
	return ThemeRule{ThemeID: themeID, Title: title, Patterns: compiled}
}

// themeRules is the closed set of themes the classifier recognizes (§4.J).
// Anything matching none of these rules falls back to "other".
var themeRules = []ThemeRule{
	mustRule(
		"execution_permissions",
		"Execution Permissions and Harness Limits",
		`agentexecfailed`,
		`permission_policy`,
		`trusted command list`,
		`commands? (are )?blocked`,
		`interactive approval`,
		`ask_for_approval`,
		`tool execution denied by policy`,
	),
	mustRule(
		"output_contract",
		"Output Contract Compliance",
		`failed to parse json`,
		`could not find a json object`,
		`return only.*json`,
		`produced.*json output`,
	),
	mustRule(
		"docs_discoverability",
		"Discoverability and Quickstart",
		`quick\s*start`,
		`no documentation`,
		`no usage examples`,
		`readme`,
	),
	mustRule(
		"provider_capacity",
		"Provider Capacity and Quotas",
		`provider_capacity`,
		`no capacity available`,
		`resource_exhausted`,
		`model_capacity_exhausted`,
		`hit your limit`,
		`resets \d`,
		`\b429\b`,
		`quota`,
	),
	mustRule(
		"binary_preflight",
		"Binary Preflight and Launch Diagnostics",
		`agentpreflightfailed`,
		`binary_missing`,
		`binary_or_command_missing`,
		`required agent binary`,
		`binary not found`,
		`could not launch`,
	),
}

const (
	themeOther      = "other"
	themeOtherTitle = "Other / Unclassified"
)

// ClassifyTheme returns the first matching theme for text, or "other" if
// none match.
func ClassifyTheme(text string) (themeID, title string) {
	for _, rule := range themeRules {
		for _, p := range rule.Patterns {
			if p.MatchString(text) {
				return rule.ThemeID, rule.Title
			}
		}
	}
	return themeOther, themeOtherTitle
}

// ClassifyThemes returns every matching theme for text (used for
// run_failure_event sources, which may legitimately span several themes),
// or [{"other", ...}] if none match.
func ClassifyThemes(text string) []ThemeRule {
	var matches []ThemeRule
	for _, rule := range themeRules {
		for _, p := range rule.Patterns {
			if p.MatchString(text) {
				matches = append(matches, rule)
				break
			}
		}
	}
	if len(matches) == 0 {
		return []ThemeRule{{ThemeID: themeOther, Title: themeOtherTitle}}
	}
	return matches
}
