package vectorstore

import "math"

// mmrLambda balances relevance against diversity in maximal marginal
// relevance reranking. 0.5 weights them equally.
const mmrLambda = 0.5

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// maximalMarginalRelevance selects up to k candidate indexes, greedily
// taking the candidate that best trades query relevance against
// similarity to already-selected candidates.
func maximalMarginalRelevance(query []float32, candidates [][]float32, lambda float64, k int) []int {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	if k > len(candidates) {
		k = len(candidates)
	}

	relevance := make([]float64, len(candidates))
	for i, c := range candidates {
		relevance[i] = cosineSimilarity(query, c)
	}

	selected := make([]int, 0, k)
	used := make([]bool, len(candidates))

	for len(selected) < k {
		best := -1
		bestScore := math.Inf(-1)
		// Ascending index iteration keeps ties on the higher-ranked
		// candidate, matching the store's relevance ordering.
		for i := range candidates {
			if used[i] {
				continue
			}
			redundancy := 0.0
			for _, j := range selected {
				if sim := cosineSimilarity(candidates[i], candidates[j]); sim > redundancy {
					redundancy = sim
				}
			}
			score := lambda*relevance[i] - (1-lambda)*redundancy
			if score > bestScore {
				best = i
				bestScore = score
			}
		}
		if best < 0 {
			break
		}
		selected = append(selected, best)
		used[best] = true
	}
	return selected
}
