// Package report assembles the output of one pipeline run into plain tables
// and writes them as JSON and CSV or pushes them to a dashboard.
package report

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"regime-switcher/backtest"
	"regime-switcher/regime"
	"regime-switcher/risk"
)

// Float 序列化时把 NaN/Inf 写成 null。
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

func (f *Float) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = Float(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// Report 单个 ticker 一次运行的完整输出。
type Report struct {
	RunID       string        `json:"run_id"`
	Ticker      string        `json:"ticker"`
	GeneratedAt time.Time     `json:"generated_at"`
	Settings    Settings      `json:"settings"`
	Model       Model         `json:"model"`
	Stats       Stats         `json:"stats"`
	Tail        Tail          `json:"tail_risk"`
	Attribution []Attribution `json:"attribution"`
	States      []State       `json:"states"`
	Segments    []Segment     `json:"segments"`
	Rows        []Row         `json:"rows"`
}

// Settings echoes the parameters the run used.
type Settings struct {
	NStates        int     `json:"n_states"`
	CovarianceType string  `json:"covariance_type"`
	Seed           int64   `json:"random_state"`
	FeeBps         float64 `json:"fee_bps"`
	SlippageBps    float64 `json:"slippage_bps"`
	RiskFreeRate   float64 `json:"risk_free_rate"`
	VaRAlpha       float64 `json:"var_alpha"`
}

type Model struct {
	Iterations    int   `json:"iterations"`
	Converged     bool  `json:"converged"`
	LogLikelihood Float `json:"log_likelihood"`
}

type Stats struct {
	CAGR        Float `json:"cagr"`
	Sharpe      Float `json:"sharpe"`
	Sortino     Float `json:"sortino"`
	MaxDrawdown Float `json:"max_drawdown"`
	HitRate     Float `json:"hit_rate"`
	Periods     int   `json:"periods"`
}

type Tail struct {
	Alpha float64 `json:"alpha"`
	VaR   Float   `json:"var"`
	CVaR  Float   `json:"cvar"`
}

type Attribution struct {
	Regime string `json:"regime"`
	Mean   Float  `json:"mean"`
	Sum    Float  `json:"sum"`
	Count  int    `json:"count"`
}

type State struct {
	State   int    `json:"state"`
	Label   string `json:"label"`
	MeanRet Float  `json:"mean_ret"`
	Vol     Float  `json:"vol"`
	Count   int    `json:"count"`
}

type Segment struct {
	Regime string    `json:"regime"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Bars   int       `json:"bars"`
}

// Row 回测行加上该时间点的标签。
type Row struct {
	Time     time.Time `json:"time"`
	Regime   string    `json:"regime,omitempty"`
	Position Float     `json:"position"`
	Gross    Float     `json:"gross"`
	Cost     Float     `json:"cost"`
	Net      Float     `json:"net"`
	Equity   Float     `json:"equity"`
	Drawdown Float     `json:"drawdown"`
}

// FromStats converts engine statistics.
func FromStats(s backtest.Stats) Stats {
	return Stats{
		CAGR:        Float(s.CAGR),
		Sharpe:      Float(s.Sharpe),
		Sortino:     Float(s.Sortino),
		MaxDrawdown: Float(s.MaxDrawdown),
		HitRate:     Float(s.HitRate),
		Periods:     s.Periods,
	}
}

// FromAttribution converts per-regime P&L.
func FromAttribution(in []risk.RegimePnL) []Attribution {
	out := make([]Attribution, len(in))
	for i, a := range in {
		out[i] = Attribution{Regime: string(a.Label), Mean: Float(a.Mean), Sum: Float(a.Sum), Count: a.Count}
	}
	return out
}

// FromStates converts per-state summaries.
func FromStates(in []regime.StateSummary) []State {
	out := make([]State, len(in))
	for i, s := range in {
		out[i] = State{State: s.State, Label: string(s.Label), MeanRet: Float(s.MeanRet), Vol: Float(s.Vol), Count: s.Count}
	}
	return out
}

// FromSegments converts label runs.
func FromSegments(in []regime.Segment) []Segment {
	out := make([]Segment, len(in))
	for i, s := range in {
		out[i] = Segment{Regime: string(s.Label), Start: s.Start, End: s.End, Bars: s.Bars}
	}
	return out
}

// FromRows 合并回测行与标签；没有标签的时间点 Regime 为空。
func FromRows(rows []backtest.Row, labels regime.Labels) []Row {
	lookup := labels.Lookup()
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = Row{
			Time:     r.Time,
			Regime:   string(lookup[r.Time.UnixNano()]),
			Position: Float(r.Position),
			Gross:    Float(r.Gross),
			Cost:     Float(r.Cost),
			Net:      Float(r.Net),
			Equity:   Float(r.Equity),
			Drawdown: Float(r.Drawdown),
		}
	}
	return out
}
