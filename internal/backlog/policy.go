// Package backlog applies the stage-gate DAG (§4.K) that decides whether a
// candidate Ticket is ready to export, needs more evidence, is blocked on
// severity/breadth, or requires upfront research.
package backlog

// Policy configures the stage-gate thresholds. Defaults are chosen so a
// ticket only reaches research_required when it touches a genuinely
// high-surface-area change with thin evidence, matching the reference
// fixtures' single-run "should be blocked" / three-run "should be
// ready_for_ticket" cases.
type Policy struct {
	// MinBreadthForHighSurface is the minimum run breadth a ticket touching
	// a SurfaceAreaHigh kind must have before it can skip research_required.
	MinBreadthForHighSurface int

	// SurfaceAreaHigh is the closed set of change_surface kinds considered
	// high-surface-area (architecture- or security-relevant changes, as
	// opposed to docs/config/test-only changes).
	SurfaceAreaHigh map[string]bool

	// LabelerQuorum is the minimum number of per-ticket labelers that must
	// agree before a ticket is considered labeled with quorum.
	LabelerQuorum int
}

// DefaultPolicy returns the reference stage-gate thresholds.
func DefaultPolicy() Policy {
	return Policy{
		MinBreadthForHighSurface: 3,
		SurfaceAreaHigh: map[string]bool{
			"architecture_change": true,
			"security_change":     true,
			"breaking_api_change": true,
			"data_migration":      true,
		},
		LabelerQuorum: 2,
	}
}

// HasHighSurfaceKind reports whether any of kinds is in the high-surface set.
func (p Policy) HasHighSurfaceKind(kinds []string) bool {
	for _, k := range kinds {
		if p.SurfaceAreaHigh[k] {
			return true
		}
	}
	return false
}
