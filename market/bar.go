package market

import (
	"fmt"
	"math"
	"time"
)

// Bar represents one OHLCV period.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Bars 按时间严格递增排列的 K 线序列，允许非交易日缺口。
type Bars []Bar

// Validate 检查时间戳严格递增且价格为有限值。
func (b Bars) Validate() error {
	for i, bar := range b {
		if !finite(bar.Open) || !finite(bar.High) || !finite(bar.Low) || !finite(bar.Close) || !finite(bar.Volume) {
			return fmt.Errorf("%w: non-finite value at %s", ErrInvalidBars, bar.Time.Format(time.RFC3339))
		}
		if i == 0 {
			continue
		}
		prev := b[i-1].Time
		if !bar.Time.After(prev) {
			return &UnsortedIndexError{Index: i, Prev: prev, Cur: bar.Time}
		}
	}
	return nil
}

// Frame 把 K 线转换为带 open/high/low/close/volume 列的表。
func (b Bars) Frame() *Frame {
	n := len(b)
	index := make([]time.Time, n)
	open := make([]float64, n)
	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	volume := make([]float64, n)
	for i, bar := range b {
		index[i] = bar.Time
		open[i] = bar.Open
		high[i] = bar.High
		low[i] = bar.Low
		closes[i] = bar.Close
		volume[i] = bar.Volume
	}
	return &Frame{
		index: index,
		cols: map[Column][]float64{
			ColOpen:   open,
			ColHigh:   high,
			ColLow:    low,
			ColClose:  closes,
			ColVolume: volume,
		},
	}
}

// Closes returns the close prices in order.
func (b Bars) Closes() []float64 {
	out := make([]float64, len(b))
	for i, bar := range b {
		out[i] = bar.Close
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
