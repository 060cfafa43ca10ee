package index

import (
	"webrag/pkg/embedding"
)

// MaximalMarginalRelevance greedily selects up to k candidate positions. Each
// step takes the candidate maximizing
//
//	lambda*sim(query, c) - (1-lambda)*max(sim(c, s) for s already selected)
//
// The first pick is therefore the candidate most similar to the query.
// Ties go to the lower position, so the result is deterministic.
func MaximalMarginalRelevance(query []float32, candidates [][]float32, k int, lambda float64) []int {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	k = min(k, len(candidates))

	relevance := make([]float64, len(candidates))
	for i, c := range candidates {
		relevance[i] = float64(embedding.CosineSimilarity(query, c))
	}

	// redundancy[i] is the highest similarity of candidate i to anything selected.
	redundancy := make([]float64, len(candidates))
	taken := make([]bool, len(candidates))
	selected := make([]int, 0, k)

	for len(selected) < k {
		best, bestScore := -1, 0.0
		for i := range candidates {
			if taken[i] {
				continue
			}
			score := relevance[i]
			if len(selected) > 0 {
				score = lambda*relevance[i] - (1-lambda)*redundancy[i]
			}
			if best < 0 || score > bestScore {
				best, bestScore = i, score
			}
		}

		taken[best] = true
		selected = append(selected, best)
		for i := range candidates {
			if taken[i] {
				continue
			}
			if sim := float64(embedding.CosineSimilarity(candidates[i], candidates[best])); len(selected) == 1 || sim > redundancy[i] {
				redundancy[i] = sim
			}
		}
	}
	return selected
}
