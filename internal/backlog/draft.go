package backlog

import (
	"sort"
	"strings"

	"github.com/usertesteval/usertest/internal/runmodel"
	"github.com/usertesteval/usertest/internal/triage"
)

const draftProblemMaxAtoms = 8

// changeSurfaceKindForSource maps an atom's extraction source to the
// change_surface kind its ticket draft should carry (§4.K step "infer
// change surface from evidence"). Sources with no clear implied surface
// (capability warnings, last-message artifacts) carry no kind.
func changeSurfaceKindForSource(source runmodel.AtomSource) string {
	switch source {
	case runmodel.SourceRunFailureEvent, runmodel.SourceCommandFailure, runmodel.SourceAgentStderrArtifact:
		return "code_change"
	case runmodel.SourceSuggestedChange:
		return "prompt_or_docs_change"
	case runmodel.SourceConfidenceMissing:
		return "report_schema_change"
	default:
		return ""
	}
}

func draftTitle(atoms []runmodel.Atom) string {
	for _, atom := range atoms {
		if _, title := triage.ClassifyTheme(atom.Text); title != "" {
			return title
		}
	}
	if len(atoms) > 0 {
		return atoms[0].Text
	}
	return "Untitled ticket"
}

func draftSeverity(atoms []runmodel.Atom) runmodel.SeverityHint {
	best := runmodel.SeverityLow
	for _, atom := range atoms {
		if atom.SeverityHint.Rank() > best.Rank() {
			best = atom.SeverityHint
		}
	}
	return best
}

func draftChangeSurface(atoms []runmodel.Atom) runmodel.ChangeSurface {
	seen := map[string]bool{}
	var kinds []string
	for _, atom := range atoms {
		kind := changeSurfaceKindForSource(atom.Source)
		if kind == "" || seen[kind] {
			continue
		}
		seen[kind] = true
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return runmodel.ChangeSurface{Kinds: kinds}
}

func draftProblem(atoms []runmodel.Atom) string {
	var lines []string
	for i, atom := range atoms {
		if i >= draftProblemMaxAtoms {
			break
		}
		text := strings.TrimSpace(atom.Text)
		if text == "" {
			continue
		}
		lines = append(lines, "- "+text)
	}
	return strings.Join(lines, "\n")
}

// DraftTicketsFromClusters turns the Triage Engine's clusters (§4.J) into
// draft tickets (§4.K step "materialize a ticket per cluster"): title and
// theme come from the representative atom's text, severity is the highest
// severity_hint among member atoms, change_surface is inferred from the
// member atoms' extraction sources, and evidence_atom_ids lists every
// member atom (sorted, deduplicated). Breadth, stage, and risks are left
// unset — call EvaluateTicket next to fill those in from the full eligible
// atom set (clusters only see the atoms triage clustered, which may be a
// narrower set than the ticket's eventual evidence lookup).
func DraftTicketsFromClusters(clusters []runmodel.Cluster, atomsByIndex []runmodel.Atom) []runmodel.Ticket {
	var tickets []runmodel.Ticket
	for _, cluster := range clusters {
		var members []runmodel.Atom
		seenIDs := map[string]bool{}
		var evidenceIDs []string
		for _, idx := range cluster.Members {
			if idx < 0 || idx >= len(atomsByIndex) {
				continue
			}
			atom := atomsByIndex[idx]
			members = append(members, atom)
			if atom.AtomID != "" && !seenIDs[atom.AtomID] {
				seenIDs[atom.AtomID] = true
				evidenceIDs = append(evidenceIDs, atom.AtomID)
			}
		}
		if len(members) == 0 {
			continue
		}
		sort.Strings(evidenceIDs)

		repIdx := cluster.Representative
		var repAtoms []runmodel.Atom
		if repIdx >= 0 && repIdx < len(atomsByIndex) {
			repAtoms = []runmodel.Atom{atomsByIndex[repIdx]}
		} else {
			repAtoms = members[:1]
		}

		tickets = append(tickets, runmodel.Ticket{
			Title:           draftTitle(repAtoms),
			Problem:         draftProblem(members),
			Severity:        draftSeverity(members),
			EvidenceAtomIDs: evidenceIDs,
			ChangeSurface:   draftChangeSurface(members),
		})
	}
	return tickets
}
