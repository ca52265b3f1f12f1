package cmc

// scalePerf aggregates the normalized weight vector into per-scale
// performance feedback: the mean weight achieved by the particles proposed
// at each scale.  Scales that proposed no particle this iteration receive
// the population-wide mean so that the multiplicative re-weighting leaves
// them untouched rather than starving them on no evidence.
func scalePerf(w []float64, scale []int, k int) []float64 {
	sum := make([]float64, k)
	count := make([]int, k)
	totw := 0.0
	for i, v := range w {
		sum[scale[i]] += v
		count[scale[i]]++
		totw += v
	}
	mean := totw / float64(len(w))

	perf := make([]float64, k)
	for s := range perf {
		if count[s] == 0 {
			perf[s] = mean
			continue
		}
		perf[s] = sum[s] / float64(count[s])
	}
	return perf
}
