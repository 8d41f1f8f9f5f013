// Package features derives the per-bar feature table used by the regime model.
package features

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"regime-switcher/market"
)

const (
	// MinBars is a fixed floor, intentionally above the longest window.
	MinBars       = 60
	ATRWindow     = 14
	RVWindow      = 20
	EntropyWindow = 50
	TradingDays   = 252
)

// DefaultColumns 默认送入 HMM 的特征列顺序。
var DefaultColumns = []market.Column{market.ColRet, market.ColRV, market.ColATR, market.ColEntropy}

// Build 计算 ret/log_ret/atr/rv/entropy，并丢弃任何列未定义的预热行。
// 输出保留原始 OHLCV 列，索引是输入索引的尾部子集。
func Build(bars market.Bars) (*market.Frame, error) {
	if len(bars) < MinBars {
		return nil, &market.InsufficientDataError{What: "bars", Need: MinBars, Got: len(bars)}
	}
	if err := bars.Validate(); err != nil {
		return nil, err
	}
	frame := bars.Frame()
	closes := bars.Closes()

	ret := PctChange(closes)
	logRet := LogDiff(closes)
	atr := RollingMean(TrueRange(bars), ATRWindow)

	rv := RollingStd(logRet, RVWindow)
	annual := math.Sqrt(TradingDays)
	for i := range rv {
		rv[i] *= annual
	}

	signs := make([]float64, len(ret))
	for i, r := range ret {
		switch {
		case math.IsNaN(r):
			signs[i] = math.NaN()
		case r > 0:
			signs[i] = 1
		default:
			signs[i] = 0
		}
	}
	entropy := RollingApply(signs, EntropyWindow, SignEntropy)

	derived := []struct {
		col    market.Column
		values []float64
	}{
		{market.ColRet, ret},
		{market.ColLogRet, logRet},
		{market.ColATR, atr},
		{market.ColRV, rv},
		{market.ColEntropy, entropy},
	}
	var err error
	for _, d := range derived {
		if frame, err = frame.WithColumn(d.col, d.values); err != nil {
			return nil, err
		}
	}
	return frame.DropUndefined(), nil
}

// TrueRange returns max(|h-l|, |h-prevClose|, |l-prevClose|); the first bar
// only has the high-low range.
func TrueRange(bars market.Bars) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		tr := math.Abs(b.High - b.Low)
		if i > 0 {
			prev := bars[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(b.High-prev), math.Abs(b.Low-prev)))
		}
		out[i] = tr
	}
	return out
}

// Matrix 按列顺序导出数值矩阵（行 = 时间）。未指定列时使用 DefaultColumns。
func Matrix(frame *market.Frame, cols ...market.Column) (*mat.Dense, error) {
	if len(cols) == 0 {
		cols = DefaultColumns
	}
	if err := frame.Require(cols...); err != nil {
		return nil, err
	}
	if frame.Len() == 0 {
		return nil, &market.InsufficientDataError{What: "feature rows", Need: 1, Got: 0}
	}
	m := mat.NewDense(frame.Len(), len(cols), nil)
	for j, c := range cols {
		values, _ := frame.Column(c)
		for i, v := range values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("feature %s undefined at %s", c, frame.Time(i).Format("2006-01-02T15:04:05"))
			}
			m.Set(i, j, v)
		}
	}
	return m, nil
}
