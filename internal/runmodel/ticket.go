package runmodel

// Stage is the ticket exportability gate (§3, §4.K).
type Stage string

const (
	StageTriage           Stage = "triage"
	StageBlocked          Stage = "blocked"
	StageResearchRequired Stage = "research_required"
	StageReadyForTicket   Stage = "ready_for_ticket"
)

// ChangeSurface describes what kinds of change a ticket implies (used by the
// stage-gate DAG's high-surface-area predicate).
type ChangeSurface struct {
	Kinds []string `json:"kinds"`
}

// Breadth counts distinct dimensions covered by a ticket's evidence.
type Breadth struct {
	Missions    int `json:"missions"`
	Targets     int `json:"targets"`
	RepoInputs  int `json:"repo_inputs"`
	Agents      int `json:"agents"`
	Runs        int `json:"runs"`
}

// Ticket is a candidate backlog entry.
type Ticket struct {
	TicketID        string        `json:"ticket_id"`
	Title           string        `json:"title"`
	Problem         string        `json:"problem"`
	Severity        SeverityHint  `json:"severity"`
	Confidence      float64       `json:"confidence"`
	EvidenceAtomIDs []string      `json:"evidence_atom_ids"`
	ChangeSurface   ChangeSurface `json:"change_surface"`
	Breadth         Breadth       `json:"breadth"`
	Stage           Stage         `json:"stage"`
	Risks           []string      `json:"risks,omitempty"`
	Fingerprint     string        `json:"fingerprint"`
	SuggestedOwner  string        `json:"suggested_owner,omitempty"`
	RepoInputsCiting []string     `json:"repo_inputs_citing,omitempty"`
}

// Cluster is a set of atom indices sharing a representative, as produced by
// the Triage Engine's k-NN clustering (§4.J).
type Cluster struct {
	Representative int
	Members        []int // sorted, includes Representative
}

// Size returns the member count.
func (c Cluster) Size() int { return len(c.Members) }
