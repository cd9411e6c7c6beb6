package runmodel

import "fmt"

// SeverityHint is the closed severity scale atoms and tickets share.
type SeverityHint string

const (
	SeverityLow    SeverityHint = "low"
	SeverityMedium SeverityHint = "medium"
	SeverityHigh   SeverityHint = "high"
)

// Rank gives severities a total order for stage-gate comparisons
// (severity < high, severity == low, ...).
func (s SeverityHint) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	default:
		return -1
	}
}

// AtomSource is the closed set of atom extraction sources (§4.I).
type AtomSource string

const (
	SourceConfusionPoint        AtomSource = "confusion_point"
	SourceSuggestedChange       AtomSource = "suggested_change"
	SourceConfidenceMissing     AtomSource = "confidence_missing"
	SourceRunFailureEvent       AtomSource = "run_failure_event"
	SourceCommandFailure        AtomSource = "command_failure"
	SourceCapabilityWarning     AtomSource = "capability_warning_artifact"
	SourceAgentStderrArtifact   AtomSource = "agent_stderr_artifact"
	SourceAgentLastMessageArtifact AtomSource = "agent_last_message_artifact"

	// SourceAggregateMetrics marks the synthetic baseline/workflow atoms the
	// aggregator emits over a set of eligible runs (§4.I); it sits outside
	// the per-run extraction table above.
	SourceAggregateMetrics AtomSource = "aggregate_metrics"
)

// ArtifactRef points at a captured text artifact with its content digest.
type ArtifactRef struct {
	Path      string `json:"path"`
	Exists    bool   `json:"exists"`
	SizeBytes int64  `json:"size_bytes"`
	SHA256    string `json:"sha256"`
}

// Attachment pairs an artifact reference with the head/tail excerpt taken
// from it at capture time.
type Attachment struct {
	ArtifactRef ArtifactRef `json:"artifact_ref"`
	Excerpt     string      `json:"excerpt,omitempty"`
	Truncated   bool        `json:"truncated"`
}

// Location is an optional pointer into the originating artifact (line
// number, command index, ...). Kept as a free-form map so each source can
// attach what is meaningful to it without a combinatorial struct.
type Location map[string]any

// Atom is one piece of typed evidence extracted from a single run.
type Atom struct {
	AtomID        string         `json:"atom_id"`
	RunRel        string         `json:"run_rel"`
	Agent         string         `json:"agent"`
	Source        AtomSource     `json:"source"`
	SeverityHint  SeverityHint   `json:"severity_hint"`
	Text          string         `json:"text"`
	Evidence      string         `json:"evidence,omitempty"`
	Location      Location       `json:"location,omitempty"`
	Attachments   []Attachment   `json:"attachments,omitempty"`
	TimestampUTC  string         `json:"timestamp_utc,omitempty"`
	MissionID     string         `json:"mission_id,omitempty"`
	TargetSlug    string         `json:"target_slug,omitempty"`
	RepoInput     string         `json:"repo_input,omitempty"`
}

// MakeAtomID formats the "<run_rel>:<source>:<index>" id grammar from §3.
func MakeAtomID(runRel string, source AtomSource, index int) string {
	return fmt.Sprintf("%s:%s:%d", runRel, source, index)
}

// AggregateKind marks synthetic aggregate atoms emitted by the aggregator.
type AggregateKind string

const (
	AggregateBaseline AggregateKind = "baseline"
	AggregateWorkflow AggregateKind = "workflow"
)
