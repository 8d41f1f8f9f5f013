// Package risk computes tail-loss measures and per-regime P&L attribution
// over backtest output.
package risk

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// VaRCVaR 历史模拟法 VaR/CVaR，返回正数表示的损失。
//
// q 为收益的 (1-alpha) 分位数（相邻次序统计量线性插值），VaR = -q，
// CVaR = -mean(r <= q)。NaN 被忽略；样本为空时两者均为 NaN。
func VaRCVaR(returns []float64, alpha float64) (float64, float64, error) {
	if !(alpha > 0 && alpha < 1) {
		return 0, 0, fmt.Errorf("%w: %v", ErrInvalidAlpha, alpha)
	}
	sample := make([]float64, 0, len(returns))
	for _, r := range returns {
		if !math.IsNaN(r) {
			sample = append(sample, r)
		}
	}
	if len(sample) == 0 {
		return math.NaN(), math.NaN(), nil
	}
	sort.Float64s(sample)
	q := quantile(sample, 1-alpha)

	n := sort.Search(len(sample), func(i int) bool { return sample[i] > q })
	tail := stat.Mean(sample[:n], nil)
	return -q, -tail, nil
}

// quantile 在已排序样本上按位置 (n-1)p 线性插值。
func quantile(sorted []float64, p float64) float64 {
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
