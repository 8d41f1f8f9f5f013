package strategy

import (
	"math"

	"regime-switcher/features"
	"regime-switcher/market"
)

const (
	FastWindow    = 20
	SlowWindow    = 50
	ZScoreWindow  = 20
	SignalLag     = 1
	flatTolerance = 1e-12
)

// Playbook 根据收盘价序列生成仓位信号，取值范围 [-1, 1]。
// 信号已滞后一期：t 时刻的值只使用 t-1 及之前的收盘价。
type Playbook interface {
	Name() string
	Signal(closes []float64) []float64
}

type trendPlaybook struct{}

func (trendPlaybook) Name() string { return string(TrendFollowing) }

func (trendPlaybook) Signal(closes []float64) []float64 { return TrendSignal(closes) }

type meanReversionPlaybook struct{}

func (meanReversionPlaybook) Name() string { return string(MeanReversion) }

func (meanReversionPlaybook) Signal(closes []float64) []float64 { return MeanReversionSignal(closes) }

// TrendSignal 快慢均线（20/50）差的符号，映射到 {-1, 0, +1}。
func TrendSignal(closes []float64) []float64 {
	fast := features.RollingMean(closes, FastWindow)
	slow := features.RollingMean(closes, SlowWindow)
	raw := make([]float64, len(closes))
	for i := range raw {
		diff := fast[i] - slow[i]
		switch {
		case math.IsNaN(diff), math.Abs(diff) <= flatTolerance*math.Abs(slow[i]):
			raw[i] = 0
		case diff > 0:
			raw[i] = 1
		default:
			raw[i] = -1
		}
	}
	return lag(raw)
}

// MeanReversionSignal returns the negated 20-bar z-score of close, clipped to
// [-1, 1]. A flat window has no defined z-score and yields 0.
func MeanReversionSignal(closes []float64) []float64 {
	ma := features.RollingMean(closes, ZScoreWindow)
	sd := features.RollingStd(closes, ZScoreWindow)
	raw := make([]float64, len(closes))
	for i := range raw {
		if math.IsNaN(sd[i]) || sd[i] <= flatTolerance*math.Abs(ma[i]) {
			raw[i] = math.NaN()
			continue
		}
		z := (closes[i] - ma[i]) / sd[i]
		raw[i] = math.Max(-1, math.Min(1, -z))
	}
	return lag(raw)
}

func lag(raw []float64) []float64 {
	out := features.Shift(raw, SignalLag)
	for i, v := range out {
		if math.IsNaN(v) {
			out[i] = 0
		}
	}
	return out
}

// closes 取 frame 的收盘价列，缺失时返回 *market.MissingColumnError。
func closes(frame *market.Frame) ([]float64, error) {
	if err := frame.Require(market.ColClose); err != nil {
		return nil, err
	}
	c, _ := frame.Column(market.ColClose)
	return c, nil
}
