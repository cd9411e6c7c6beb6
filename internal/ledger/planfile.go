// Package ledger maintains the atom-action and ticket-action ledgers (§4.L)
// by scanning the `.agents/plans/` plan-folder tree that owner repos keep
// alongside their code, and reconciling ledger entries against it.
package ledger

import "regexp"

// PlanTicketFilenameRE matches exported ticket markdown filenames:
// `<YYYYMMDD>_<BLG-NNN>_<16-hex-fingerprint>_<slug>.md`.
var PlanTicketFilenameRE = regexp.MustCompile(
	`^(?P<date>[0-9]{8})_(?P<ticket_id>BLG-[0-9]{3})_(?P<fingerprint>[0-9a-f]{16})_.+\.md$`,
)

// AtomIDRE matches the atom-id grammar: `<target>/<ts>/<agent>/<seed>:<source>:<index>`.
var AtomIDRE = regexp.MustCompile(
	`^[A-Za-z0-9_.-]+/[0-9]{8}T[0-9]{6}Z/[A-Za-z0-9_.-]+/[0-9]+:[A-Za-z0-9_.-]+:[0-9]+$`,
)

// DequeuedPlanDirnames are the plan-folder directory names whose contents
// are treated as explicitly removed from the active queue.
var DequeuedPlanDirnames = []string{"_dequeued", "_archive"}

// PlanTicketFilename is a parsed plan ticket markdown filename.
type PlanTicketFilename struct {
	Date        string
	TicketID    string
	Fingerprint string
}

// ParsePlanTicketFilename parses name against PlanTicketFilenameRE, ok=false
// if it doesn't match.
func ParsePlanTicketFilename(name string) (PlanTicketFilename, bool) {
	m := PlanTicketFilenameRE.FindStringSubmatch(name)
	if m == nil {
		return PlanTicketFilename{}, false
	}
	idx := PlanTicketFilenameRE.SubexpNames()
	out := PlanTicketFilename{}
	for i, n := range idx {
		switch n {
		case "date":
			out.Date = m[i]
		case "ticket_id":
			out.TicketID = m[i]
		case "fingerprint":
			out.Fingerprint = m[i]
		}
	}
	return out, true
}

var backtickAtomIDRE = regexp.MustCompile("`([^`]+)`")

// ExtractAtomIDsFromMarkdown pulls backtick-wrapped tokens matching
// AtomIDRE out of ticket markdown, sorted and de-duplicated.
func ExtractAtomIDsFromMarkdown(markdown string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range backtickAtomIDRE.FindAllStringSubmatch(markdown, -1) {
		candidate := m[1]
		if AtomIDRE.MatchString(candidate) && !seen[candidate] {
			seen[candidate] = true
			out = append(out, candidate)
		}
	}
	sortStrings(out)
	return out
}
