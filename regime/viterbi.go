package regime

// viterbi 在对数空间求最可能的状态路径。并列时取编号较小的状态。
func viterbi(logB, logA [][]float64, logPi []float64) []int {
	T, n := len(logB), len(logPi)
	delta := make([]float64, n)
	for k := range logPi {
		delta[k] = logPi[k] + logB[0][k]
	}
	psi := make([][]int, T)
	next := make([]float64, n)
	for t := 1; t < T; t++ {
		psi[t] = make([]int, n)
		for j := 0; j < n; j++ {
			best, arg := delta[0]+logA[0][j], 0
			for i := 1; i < n; i++ {
				if v := delta[i] + logA[i][j]; v > best {
					best, arg = v, i
				}
			}
			next[j] = best + logB[t][j]
			psi[t][j] = arg
		}
		copy(delta, next)
	}

	path := make([]int, T)
	last, bestProb := 0, delta[0]
	for k := 1; k < n; k++ {
		if delta[k] > bestProb {
			last, bestProb = k, delta[k]
		}
	}
	path[T-1] = last
	for t := T - 1; t > 0; t-- {
		path[t-1] = psi[t][path[t]]
	}
	return path
}
