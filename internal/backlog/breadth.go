package backlog

import "github.com/usertesteval/usertest/internal/runmodel"

// AtomLookup resolves an evidence atom ID to the atom it was extracted
// from, giving the breadth computation access to the atom's run/target/
// agent/repo metadata.
type AtomLookup func(atomID string) (runmodel.Atom, bool)

// ComputeBreadth counts the distinct runs, missions, targets, repo inputs,
// and agents cited across a ticket's evidence atom IDs (§4.K step 1).
// Atom IDs that don't resolve via lookup are skipped rather than erroring:
// a ticket can cite evidence from atoms outside the current eligible set
// (e.g. already-actioned atoms) without the breadth computation failing.
func ComputeBreadth(evidenceAtomIDs []string, lookup AtomLookup) runmodel.Breadth {
	runs := make(map[string]bool)
	missions := make(map[string]bool)
	targets := make(map[string]bool)
	repoInputs := make(map[string]bool)
	agents := make(map[string]bool)

	for _, atomID := range evidenceAtomIDs {
		atom, ok := lookup(atomID)
		if !ok {
			continue
		}
		if atom.RunRel != "" {
			runs[atom.RunRel] = true
		}
		if atom.MissionID != "" {
			missions[atom.MissionID] = true
		}
		if atom.TargetSlug != "" {
			targets[atom.TargetSlug] = true
		}
		if atom.RepoInput != "" {
			repoInputs[atom.RepoInput] = true
		}
		if atom.Agent != "" {
			agents[atom.Agent] = true
		}
	}

	return runmodel.Breadth{
		Missions:   len(missions),
		Targets:    len(targets),
		RepoInputs: len(repoInputs),
		Agents:     len(agents),
		Runs:       len(runs),
	}
}

// ComputeModelBreadth returns the count of distinct agent values cited
// across a ticket's evidence (§4.K step 2) — the same tally ComputeBreadth
// folds into Breadth.Agents, surfaced on its own because the stage-gate
// table names it as an independent input.
func ComputeModelBreadth(evidenceAtomIDs []string, lookup AtomLookup) int {
	agents := make(map[string]bool)
	for _, atomID := range evidenceAtomIDs {
		atom, ok := lookup(atomID)
		if !ok {
			continue
		}
		if atom.Agent != "" {
			agents[atom.Agent] = true
		}
	}
	return len(agents)
}
