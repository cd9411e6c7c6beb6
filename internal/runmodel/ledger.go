package runmodel

// AtomStatus is the monotonic lifecycle of an atom-action ledger entry.
type AtomStatus string

const (
	AtomStatusNew      AtomStatus = "new"
	AtomStatusQueued   AtomStatus = "queued"
	AtomStatusTicketed AtomStatus = "ticketed"
	AtomStatusActioned AtomStatus = "actioned"
)

// Rank gives atom statuses a total order so promotion can be checked for
// monotonicity (§3 invariant: rank(status_t+1) >= rank(status_t) unless a
// _dequeued plan file demotes queued->new).
func (s AtomStatus) Rank() int {
	switch s {
	case AtomStatusNew:
		return 0
	case AtomStatusQueued:
		return 1
	case AtomStatusTicketed:
		return 2
	case AtomStatusActioned:
		return 3
	default:
		return -1
	}
}

// AtomAction is one entry in the atom-action ledger, keyed by atom id.
type AtomAction struct {
	Status             AtomStatus `yaml:"status" json:"status"`
	TicketIDs          []string   `yaml:"ticket_ids,omitempty" json:"ticket_ids,omitempty"`
	QueuePaths         []string   `yaml:"queue_paths,omitempty" json:"queue_paths,omitempty"`
	QueueOwnerRoots    []string   `yaml:"queue_owner_roots,omitempty" json:"queue_owner_roots,omitempty"`
	LastPlanBucket     string     `yaml:"last_plan_bucket,omitempty" json:"last_plan_bucket,omitempty"`
	Fingerprints       []string   `yaml:"fingerprints,omitempty" json:"fingerprints,omitempty"`
	DerivedFromAtomIDs []string   `yaml:"derived_from_atom_ids,omitempty" json:"derived_from_atom_ids,omitempty"`
	FirstSeenAtUTC     string     `yaml:"first_seen_at,omitempty" json:"first_seen_at,omitempty"`
	LastSeenAtUTC      string     `yaml:"last_seen_at,omitempty" json:"last_seen_at,omitempty"`
	LastPlanSeenAtUTC  string     `yaml:"last_plan_seen_at,omitempty" json:"last_plan_seen_at,omitempty"`
	LastDequeuedAtUTC  string     `yaml:"last_dequeued_at,omitempty" json:"last_dequeued_at,omitempty"`
	DequeuedPaths      []string   `yaml:"dequeued_paths,omitempty" json:"dequeued_paths,omitempty"`
	DequeuedOwnerRoots []string   `yaml:"dequeued_owner_roots,omitempty" json:"dequeued_owner_roots,omitempty"`
}

// TicketAction is one entry in the ticket-action ledger, keyed by fingerprint.
type TicketAction struct {
	TicketID   string `yaml:"ticket_id,omitempty" json:"ticket_id,omitempty"`
	Resolution string `yaml:"resolution" json:"resolution"`
	PlanPath   string `yaml:"plan_path,omitempty" json:"plan_path,omitempty"`
}

// PlanBucket is one bucket directory of the `.agents/plans/` ledger.
type PlanBucket struct {
	Name string
	Rank float64
}

// Buckets is the closed, rank-ordered set of plan-folder buckets (§3).
var Buckets = []PlanBucket{
	{Name: "0.1 - deferred", Rank: 0.1},
	{Name: "0.3 - todos", Rank: 0.3},
	{Name: "0.5 - to_triage", Rank: 0.5},
	{Name: "1 - ideas", Rank: 1},
	{Name: "1.5 - to_plan", Rank: 1.5},
	{Name: "2 - ready", Rank: 2},
	{Name: "3 - in_progress", Rank: 3},
	{Name: "4 - for_review", Rank: 4},
	{Name: "5 - complete", Rank: 5},
	{Name: "6 - archived", Rank: 6},
}

// BucketRank returns the rank of a bucket name, or -1 if unknown.
func BucketRank(name string) float64 {
	for _, b := range Buckets {
		if b.Name == name {
			return b.Rank
		}
	}
	return -1
}

// BucketAtomStatus maps a bucket to the atom-action status it implies:
// "0.1 - deferred" and the buckets at or above "3 - in_progress" are
// "actioned", the other buckets ranked below "3 - in_progress" are "queued",
// and an unknown bucket name maps to "" (per §3's Plan ledger definition, confirmed against
// backlog_repo/plan_index.py's PLAN_BUCKET_TO_ATOM_STATUS table).
func BucketAtomStatus(name string) AtomStatus {
	r := BucketRank(name)
	if r < 0 {
		return ""
	}
	if name == "0.1 - deferred" {
		return AtomStatusActioned
	}
	if r >= 3 {
		return AtomStatusActioned
	}
	return AtomStatusQueued
}

// ActionedBucketPriority orders actioned buckets from highest to lowest rank
// for the actioned-bucket dedupe sweep (§4.L).
var ActionedBucketPriority = []string{
	"6 - archived",
	"5 - complete",
	"4 - for_review",
	"3 - in_progress",
	"0.1 - deferred",
}
