package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/usertesteval/usertest/internal/runmodel"
)

var slugNonAlnumRE = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lowercases s, collapses runs of non-alphanumeric characters to a
// single hyphen, and trims to a reasonable filename length.
func Slug(s string) string {
	lowered := strings.ToLower(s)
	slug := strings.Trim(slugNonAlnumRE.ReplaceAllString(lowered, "-"), "-")
	if slug == "" {
		slug = "ticket"
	}
	const maxLen = 60
	if len(slug) > maxLen {
		slug = strings.Trim(slug[:maxLen], "-")
	}
	return slug
}

// PlanTicketFilename builds the `<date>_<ticket_id>_<fingerprint>_<slug>.md`
// filename spec.md's plan-folder grammar names.
func PlanTicketFilename(dateYYYYMMDD, ticketID, fingerprint, title string) string {
	return fmt.Sprintf("%s_%s_%s_%s.md", dateYYYYMMDD, ticketID, fingerprint, Slug(title))
}

func heading(kind ExportKind, title string) string {
	if kind == ExportKindResearch {
		return "Research / ADR Template: " + title
	}
	return "Implementation Ticket: " + title
}

// RenderIdeaMarkdown renders a ticket's idea markdown body. Lines carrying
// the fingerprint, source ticket, export kind, and stage use a stable
// `- Label: `value`` shape so RewriteExportHeader can find and replace them
// when an already-filed ticket needs updating in place (e.g. a later UX
// review attaching itself to an existing plan file).
func RenderIdeaMarkdown(ticket runmodel.Ticket, kind ExportKind, fingerprint string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# [%s]\n\n", heading(kind, ticket.Title))
	fmt.Fprintf(&b, "- Fingerprint: `%s`\n", fingerprint)
	fmt.Fprintf(&b, "- Source ticket: `%s`\n\n", ticket.TicketID)
	fmt.Fprintf(&b, "- Export kind: `%s`\n", kind)
	fmt.Fprintf(&b, "- Stage: `%s`\n", ticket.Stage)
	fmt.Fprintf(&b, "- Severity: `%s`\n", ticket.Severity)
	fmt.Fprintf(&b, "- Confidence: %.2f\n\n", ticket.Confidence)

	b.WriteString("## Problem\n\n")
	b.WriteString(ticket.Problem)
	b.WriteString("\n\n")

	if len(ticket.ChangeSurface.Kinds) > 0 {
		b.WriteString("## Change surface\n\n")
		for _, k := range ticket.ChangeSurface.Kinds {
			fmt.Fprintf(&b, "- `%s`\n", k)
		}
		b.WriteString("\n")
	}

	if len(ticket.Risks) > 0 {
		b.WriteString("## Risks\n\n")
		for _, r := range ticket.Risks {
			fmt.Fprintf(&b, "- %s\n", r)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Evidence\n\n")
	for _, id := range ticket.EvidenceAtomIDs {
		fmt.Fprintf(&b, "- `%s`\n", id)
	}
	b.WriteString("\n")

	b.WriteString("## Breadth\n\n")
	fmt.Fprintf(&b, "- Missions: %d\n", ticket.Breadth.Missions)
	fmt.Fprintf(&b, "- Targets: %d\n", ticket.Breadth.Targets)
	fmt.Fprintf(&b, "- Repo inputs: %d\n", ticket.Breadth.RepoInputs)
	fmt.Fprintf(&b, "- Agents: %d\n", ticket.Breadth.Agents)
	fmt.Fprintf(&b, "- Runs: %d\n", ticket.Breadth.Runs)

	return b.String()
}

// RenderUXReviewSection renders the "## UX review" section this repo
// appends to an idea markdown (new or already-filed) once a UX
// recommendation cites the ticket. labels returns the label set the
// caller should additionally record against the ticket action (e.g.
// `ux:docs`).
func RenderUXReviewSection(rec UXRecommendation) (section string, labels []string) {
	var b strings.Builder
	b.WriteString("\n## UX review\n\n")
	fmt.Fprintf(&b, "- Recommended approach: `%s`\n", rec.RecommendedApproach)
	fmt.Fprintf(&b, "- Rationale: %s\n", rec.Rationale)
	if len(rec.NextSteps) > 0 {
		b.WriteString("\n### Next steps\n\n")
		for _, step := range rec.NextSteps {
			fmt.Fprintf(&b, "- %s\n", step)
		}
	}

	raw, _ := json.MarshalIndent(rec, "", "  ")
	b.WriteString("\n<details><summary>Raw recommendation JSON</summary>\n\n")
	b.WriteString("```json\n")
	b.Write(raw)
	b.WriteString("\n```\n</details>\n")

	if rec.RecommendedApproach != "" {
		labels = append(labels, "ux:"+rec.RecommendedApproach)
	}
	return b.String(), labels
}

var (
	exportKindLineRE = regexp.MustCompile("(?m)^- Export kind: `[^`]*`$")
	stageLineRE      = regexp.MustCompile("(?m)^- Stage: `[^`]*`$")
)

// RewriteExportHeader updates an already-filed plan ticket's "Export kind"
// and "Stage" header lines in place (e.g. a ticket was first filed while
// research_required and has since reached ready_for_ticket) and appends a
// UX review section if one isn't already present.
func RewriteExportHeader(body string, kind ExportKind, stage runmodel.Stage, ux *UXRecommendation) (string, []string) {
	body = exportKindLineRE.ReplaceAllString(body, "- Export kind: `"+string(kind)+"`")
	body = stageLineRE.ReplaceAllString(body, "- Stage: `"+string(stage)+"`")

	var labels []string
	if ux != nil && !strings.Contains(body, "## UX review") {
		section, l := RenderUXReviewSection(*ux)
		body += section
		labels = l
	}
	return body, labels
}

// WriteIdeaFile writes body to ownerRoot/.agents/plans/<bucket>/<filename>,
// creating the bucket directory as needed, and returns the path written.
func WriteIdeaFile(ownerRoot, bucket, ticketID, fingerprint, title, dateYYYYMMDD, body string) (string, error) {
	dir := filepath.Join(ownerRoot, ".agents", "plans", bucket)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, PlanTicketFilename(dateYYYYMMDD, ticketID, fingerprint, title))
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// DateStampFromUTC reduces an RFC3339 timestamp to spec.md's `YYYYMMDD`
// plan-filename date component.
func DateStampFromUTC(nowUTC string) string {
	datePart := nowUTC
	if idx := strings.IndexByte(nowUTC, 'T'); idx >= 0 {
		datePart = nowUTC[:idx]
	}
	return strings.ReplaceAll(datePart, "-", "")
}
