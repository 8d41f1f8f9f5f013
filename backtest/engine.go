// Package backtest turns a position series into net returns, an equity curve
// and summary statistics, charging fees and slippage on turnover.
package backtest

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"regime-switcher/market"
)

const (
	TradingDays = 252
	bpsScale    = 1e4
	// 夏普/索提诺分母的下限，避免零波动时除零
	ratioEpsilon = 1e-12
)

var ErrInvalidCosts = errors.New("backtest: invalid costs")

// Costs 交易成本（基点）与年化无风险利率。
type Costs struct {
	FeeBps       float64
	SlippageBps  float64
	RiskFreeRate float64
}

// Rate returns the cost per unit of turnover.
func (c Costs) Rate() float64 { return (c.FeeBps + c.SlippageBps) / bpsScale }

func (c Costs) validate() error {
	if c.FeeBps < 0 || math.IsNaN(c.FeeBps) || math.IsInf(c.FeeBps, 0) {
		return fmt.Errorf("%w: fee_bps=%v", ErrInvalidCosts, c.FeeBps)
	}
	if c.SlippageBps < 0 || math.IsNaN(c.SlippageBps) || math.IsInf(c.SlippageBps, 0) {
		return fmt.Errorf("%w: slippage_bps=%v", ErrInvalidCosts, c.SlippageBps)
	}
	if math.IsNaN(c.RiskFreeRate) || math.IsInf(c.RiskFreeRate, 0) {
		return fmt.Errorf("%w: risk_free_rate=%v", ErrInvalidCosts, c.RiskFreeRate)
	}
	return nil
}

// Row 单个时间点的回测结果。
type Row struct {
	Time     time.Time
	Position float64
	Gross    float64
	Turnover float64
	Cost     float64
	Net      float64
	Equity   float64
	Drawdown float64
}

// Stats 全区间汇总指标。数据不足时对应字段为 NaN。
type Stats struct {
	CAGR        float64
	Sharpe      float64
	Sortino     float64
	MaxDrawdown float64
	HitRate     float64
	Periods     int
}

// Result 回测结果
type Result struct {
	StartTime time.Time
	EndTime   time.Time
	Rows      []Row
	Stats     Stats
}

// Run 把 positions 对齐到 frame 的索引（缺失补 0），按上一期仓位乘本期收益计毛收益，
// 按仓位变化计成本，复利得到权益曲线。
func Run(frame *market.Frame, positions market.Series, costs Costs) (Result, error) {
	if err := costs.validate(); err != nil {
		return Result{}, err
	}
	if err := frame.Require(market.ColRet); err != nil {
		return Result{}, err
	}
	index := frame.Index()
	ret, _ := frame.Column(market.ColRet)
	pos := positions.Reindex(index, 0).Values

	rows := make([]Row, len(index))
	rate := costs.Rate()
	equity, peak := 1.0, 1.0
	for t := range index {
		p := pos[t]
		if math.IsNaN(p) {
			p = 0
		}
		row := Row{Time: index[t], Position: p}
		if t > 0 {
			prev := rows[t-1].Position
			if r := ret[t]; !math.IsNaN(r) {
				row.Gross = prev * r
			}
			row.Turnover = math.Abs(p - prev)
		}
		row.Cost = rate * row.Turnover
		row.Net = row.Gross - row.Cost

		equity *= 1 + row.Net
		if equity > peak {
			peak = equity
		}
		row.Equity = equity
		row.Drawdown = equity/peak - 1
		rows[t] = row
	}

	res := Result{Rows: rows, Stats: computeStats(rows, costs.RiskFreeRate)}
	if len(index) > 0 {
		res.StartTime = index[0]
		res.EndTime = index[len(index)-1]
	}
	return res, nil
}

func computeStats(rows []Row, riskFree float64) Stats {
	n := len(rows)
	s := Stats{
		CAGR:        math.NaN(),
		Sharpe:      math.NaN(),
		Sortino:     math.NaN(),
		MaxDrawdown: math.NaN(),
		HitRate:     math.NaN(),
		Periods:     n,
	}
	if n == 0 {
		return s
	}

	net := make([]float64, n)
	var downside []float64
	wins := 0
	s.MaxDrawdown = 0
	for i, r := range rows {
		net[i] = r.Net
		if r.Net < 0 {
			downside = append(downside, r.Net)
		}
		if r.Net > 0 {
			wins++
		}
		if r.Drawdown < s.MaxDrawdown {
			s.MaxDrawdown = r.Drawdown
		}
	}

	s.CAGR = math.Pow(rows[n-1].Equity, TradingDays/float64(n)) - 1
	s.HitRate = float64(wins) / float64(n)

	excess := stat.Mean(net, nil) - riskFree/TradingDays
	annual := math.Sqrt(TradingDays)
	if n > 1 {
		s.Sharpe = annual * excess / (stat.StdDev(net, nil) + ratioEpsilon)
	}
	if len(downside) > 1 {
		s.Sortino = annual * excess / (stat.StdDev(downside, nil) + ratioEpsilon)
	}
	return s
}

// Net returns the net return series.
func (r Result) Net() market.Series {
	return r.series(func(row Row) float64 { return row.Net })
}

// Equity returns the equity curve.
func (r Result) Equity() market.Series {
	return r.series(func(row Row) float64 { return row.Equity })
}

// Drawdown returns the drawdown series.
func (r Result) Drawdown() market.Series {
	return r.series(func(row Row) float64 { return row.Drawdown })
}

func (r Result) series(pick func(Row) float64) market.Series {
	s := market.Series{Index: make([]time.Time, len(r.Rows)), Values: make([]float64, len(r.Rows))}
	for i, row := range r.Rows {
		s.Index[i] = row.Time
		s.Values[i] = pick(row)
	}
	return s
}
