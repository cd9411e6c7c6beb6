package triage

import "github.com/usertesteval/usertest/internal/runmodel"

// ClusterOptions configures ClusterItemsKNN.
type ClusterOptions struct {
	OverallThreshold       float64
	RepresentativeThreshold *float64 // nil disables the representative gate
	IncludeSingletons      bool
	CandidatePairs         CandidatePairOptions
}

// ClusterItemsKNN greedily clusters items in input order: for each item, it
// computes similarity to the representative of every already-open cluster
// reachable via the candidate-pair graph, and attaches to the
// highest-scoring cluster that clears both the overall and (if set)
// representative similarity thresholds; otherwise it opens a new cluster.
//
// Each cluster's final representative is its medoid: the member with the
// highest mean similarity to the other members, ties broken by the smallest
// index. Singleton clusters are only returned when IncludeSingletons is set.
func ClusterItemsKNN(items []ItemVector, opts ClusterOptions) []runmodel.Cluster {
	n := len(items)
	if n == 0 {
		return nil
	}

	candidates := GenerateCandidatePairs(items, opts.CandidatePairs)
	simCache := make(map[pairKey]float64, len(candidates))
	simOf := func(i, j int) (float64, bool) {
		key := pairKey{i, j}
		if i > j {
			key = pairKey{j, i}
		}
		if !candidates[key] {
			return 0, false
		}
		if v, ok := simCache[key]; ok {
			return v, true
		}
		v := ComputePairSimilarity(items[key.I], items[key.J]).OverallSimilarity
		simCache[key] = v
		return v, true
	}

	var clusterMembers [][]int
	var clusterReps []int

	for idx := 0; idx < n; idx++ {
		best := -1
		bestSim := -1.0

		for ci, rep := range clusterReps {
			sim, ok := simOf(idx, rep)
			if !ok {
				continue
			}
			if sim < opts.OverallThreshold {
				continue
			}
			if opts.RepresentativeThreshold != nil && sim < *opts.RepresentativeThreshold {
				continue
			}
			if sim > bestSim {
				bestSim = sim
				best = ci
			}
		}

		if best >= 0 {
			clusterMembers[best] = append(clusterMembers[best], idx)
		} else {
			clusterMembers = append(clusterMembers, []int{idx})
			clusterReps = append(clusterReps, idx)
		}
	}

	out := make([]runmodel.Cluster, 0, len(clusterMembers))
	for _, members := range clusterMembers {
		if len(members) < 2 && !opts.IncludeSingletons {
			continue
		}
		rep := medoid(members, simOf)
		out = append(out, runmodel.Cluster{Representative: rep, Members: members})
	}
	return out
}

// medoid returns the member with the highest mean similarity to the other
// members of the cluster, ties broken by smallest index. Pairs outside the
// candidate-pair graph contribute 0 to the mean, matching the fact that
// ComputePairSimilarity was never computed (and so is assumed dissimilar)
// for them.
func medoid(members []int, simOf func(i, j int) (float64, bool)) int {
	if len(members) == 1 {
		return members[0]
	}

	bestIdx := members[0]
	bestMean := -1.0
	for _, candidate := range members {
		var total float64
		for _, other := range members {
			if other == candidate {
				continue
			}
			if sim, ok := simOf(candidate, other); ok {
				total += sim
			}
		}
		mean := total / float64(len(members)-1)
		if mean > bestMean {
			bestMean = mean
			bestIdx = candidate
		}
	}
	return bestIdx
}
