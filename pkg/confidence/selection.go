package confidence

// BestOfN picks the candidate output best supported by its peers: for each
// candidate, count how many of its tokens appear in at least half
// (rounded up) of the OTHER outputs, and take the candidate with the highest
// count. Ties go to the lowest index, so earlier agents win when equal.
// Returns -1 for an empty slice and 0 for a single candidate.
func BestOfN(outputs []string) int {
	if len(outputs) == 0 {
		return -1
	}
	if len(outputs) == 1 {
		return 0
	}

	sets := make([]map[string]struct{}, len(outputs))
	for i, out := range outputs {
		sets[i] = tokenSet(out)
	}

	others := len(outputs) - 1
	need := (others + 1) / 2 // ceil(others/2)

	bestIdx := 0
	bestScore := -1
	for i, set := range sets {
		score := 0
		for token := range set {
			support := 0
			for j, other := range sets {
				if j == i {
					continue
				}
				if _, ok := other[token]; ok {
					support++
				}
			}
			if support >= need {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	return bestIdx
}
