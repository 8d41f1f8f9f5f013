package features

import "math"

// SignEntropy 把收益符号映射为 {0,1}（正收益为 1，零和负收益为 0），
// 返回经验分布的 Shannon 熵（以 2 为底），取值范围 [0,1]。
func SignEntropy(returns []float64) float64 {
	if len(returns) == 0 {
		return math.NaN()
	}
	var ones float64
	for _, r := range returns {
		if r > 0 {
			ones++
		}
	}
	n := float64(len(returns))
	h := 0.0
	for _, p := range []float64{(n - ones) / n, ones / n} {
		if p > 0 {
			h -= p * math.Log2(p)
		}
	}
	return h
}
