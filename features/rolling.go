package features

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// RollingMean 滚动均值；窗口未满或窗口内含 NaN 时为 NaN。
func RollingMean(x []float64, window int) []float64 {
	return rolling(x, window, func(w []float64) float64 { return stat.Mean(w, nil) })
}

// RollingStd 滚动样本标准差（除以 n-1）。
func RollingStd(x []float64, window int) []float64 {
	return rolling(x, window, func(w []float64) float64 { return stat.StdDev(w, nil) })
}

// RollingApply applies fn over each full trailing window.
func RollingApply(x []float64, window int, fn func([]float64) float64) []float64 {
	return rolling(x, window, fn)
}

func rolling(x []float64, window int, fn func([]float64) float64) []float64 {
	out := make([]float64, len(x))
	for i := range out {
		out[i] = math.NaN()
	}
	if window <= 0 {
		return out
	}
	nanCount := 0
	for i := range x {
		if math.IsNaN(x[i]) {
			nanCount++
		}
		if i >= window && math.IsNaN(x[i-window]) {
			nanCount--
		}
		if i < window-1 || nanCount > 0 {
			continue
		}
		out[i] = fn(x[i-window+1 : i+1])
	}
	return out
}

// PctChange 简单收益率 x[t]/x[t-1]-1，首位为 NaN。
func PctChange(x []float64) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}
	out[0] = math.NaN()
	for i := 1; i < len(x); i++ {
		out[i] = x[i]/x[i-1] - 1
	}
	return out
}

// LogDiff returns ln(x[t]) - ln(x[t-1]) with a leading NaN.
func LogDiff(x []float64) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}
	out[0] = math.NaN()
	for i := 1; i < len(x); i++ {
		out[i] = math.Log(x[i]) - math.Log(x[i-1])
	}
	return out
}

// Shift lags x by n periods, padding with NaN.
func Shift(x []float64, n int) []float64 {
	out := make([]float64, len(x))
	for i := range out {
		j := i - n
		if j < 0 || j >= len(x) {
			out[i] = math.NaN()
			continue
		}
		out[i] = x[j]
	}
	return out
}
