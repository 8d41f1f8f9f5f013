package backtest

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regime-switcher/market"
)

func retFrame(t *testing.T, ret []float64) *market.Frame {
	t.Helper()
	start := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)
	idx := make([]time.Time, len(ret))
	for i := range idx {
		idx[i] = start.AddDate(0, 0, i)
	}
	f, err := market.NewFrame(idx, map[market.Column][]float64{market.ColRet: ret})
	require.NoError(t, err)
	return f
}

func noisy(n int, seed int64) []float64 {
	r := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = r.NormFloat64() * 0.01
	}
	return out
}

func positionsFor(frame *market.Frame, seed int64) market.Series {
	r := rand.New(rand.NewSource(seed))
	idx := frame.Index()
	vals := make([]float64, len(idx))
	for i := range vals {
		vals[i] = r.Float64()*2 - 1
	}
	return market.Series{Index: idx, Values: vals}
}

func TestRun_ZeroPosition(t *testing.T) {
	frame := retFrame(t, noisy(100, 1))
	flat := market.Series{Index: frame.Index(), Values: make([]float64, 100)}

	res, err := Run(frame, flat, Costs{FeeBps: 1, SlippageBps: 2})
	require.NoError(t, err)
	require.Len(t, res.Rows, 100)
	for _, row := range res.Rows {
		assert.Equal(t, 0.0, row.Gross)
		assert.Equal(t, 0.0, row.Cost)
		assert.Equal(t, 0.0, row.Net)
		assert.Equal(t, 1.0, row.Equity)
		assert.Equal(t, 0.0, row.Drawdown)
	}
	assert.Equal(t, 0.0, res.Stats.CAGR)
	assert.Equal(t, 0.0, res.Stats.MaxDrawdown)
	assert.Equal(t, 0.0, res.Stats.HitRate)
	assert.Equal(t, 0.0, res.Stats.Sharpe)
	assert.True(t, math.IsNaN(res.Stats.Sortino))
}

func TestRun_ZeroCostsNetEqualsGross(t *testing.T) {
	frame := retFrame(t, noisy(80, 2))
	res, err := Run(frame, positionsFor(frame, 3), Costs{})
	require.NoError(t, err)
	for _, row := range res.Rows {
		assert.Equal(t, row.Gross, row.Net)
		assert.Equal(t, 0.0, row.Cost)
	}
}

func TestRun_Accounting(t *testing.T) {
	ret := []float64{0.01, 0.02, -0.01, 0.03}
	frame := retFrame(t, ret)
	idx := frame.Index()
	pos := market.Series{Index: idx, Values: []float64{1, 1, -0.5, 0}}

	res, err := Run(frame, pos, Costs{FeeBps: 5, SlippageBps: 5})
	require.NoError(t, err)
	rate := 10 / 1e4

	wantGross := []float64{0, 0.02, -0.01, -0.5 * 0.03}
	wantTurnover := []float64{0, 0, 1.5, 0.5}
	equity, peak := 1.0, 1.0
	for i, row := range res.Rows {
		assert.InDelta(t, wantGross[i], row.Gross, 1e-15, "gross %d", i)
		assert.InDelta(t, wantTurnover[i], row.Turnover, 1e-15, "turnover %d", i)
		assert.InDelta(t, rate*wantTurnover[i], row.Cost, 1e-15, "cost %d", i)
		assert.InDelta(t, wantGross[i]-rate*wantTurnover[i], row.Net, 1e-15, "net %d", i)

		equity *= 1 + row.Net
		peak = math.Max(peak, equity)
		assert.InDelta(t, equity, row.Equity, 1e-15)
		assert.InDelta(t, equity/peak-1, row.Drawdown, 1e-15)
	}
	assert.Equal(t, idx[0], res.StartTime)
	assert.Equal(t, idx[3], res.EndTime)
	assert.InDelta(t, math.Pow(res.Rows[3].Equity, 252.0/4)-1, res.Stats.CAGR, 1e-12)
	assert.Equal(t, 0.25, res.Stats.HitRate)
}

func TestRun_ReindexesPositions(t *testing.T) {
	frame := retFrame(t, []float64{0.01, 0.01, 0.01, 0.01})
	idx := frame.Index()
	// 只给出两个时间点，其余视为空仓；额外的时间点被忽略
	pos := market.Series{
		Index:  []time.Time{idx[1], idx[2], idx[3].AddDate(0, 0, 10)},
		Values: []float64{1, math.NaN(), 1},
	}
	res, err := Run(frame, pos, Costs{})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 0, 0}, []float64{
		res.Rows[0].Position, res.Rows[1].Position, res.Rows[2].Position, res.Rows[3].Position,
	})
	assert.InDelta(t, 0.01, res.Rows[2].Gross, 1e-15)
	assert.Equal(t, 0.0, res.Rows[3].Gross)
}

func TestRun_Invariants(t *testing.T) {
	frame := retFrame(t, noisy(300, 4))
	res, err := Run(frame, positionsFor(frame, 5), Costs{FeeBps: 10, SlippageBps: 20})
	require.NoError(t, err)
	minDD := 0.0
	for _, row := range res.Rows {
		assert.LessOrEqual(t, row.Drawdown, 0.0)
		assert.Greater(t, row.Equity, 0.0)
		assert.LessOrEqual(t, math.Abs(row.Position), 1.0)
		minDD = math.Min(minDD, row.Drawdown)
	}
	assert.Equal(t, minDD, res.Stats.MaxDrawdown)
	assert.False(t, math.IsNaN(res.Stats.Sharpe))
	assert.False(t, math.IsNaN(res.Stats.Sortino))
}

func TestRun_RiskFreeLowersSharpe(t *testing.T) {
	frame := retFrame(t, noisy(200, 6))
	pos := positionsFor(frame, 7)
	a, err := Run(frame, pos, Costs{})
	require.NoError(t, err)
	b, err := Run(frame, pos, Costs{RiskFreeRate: 0.05})
	require.NoError(t, err)
	assert.Less(t, b.Stats.Sharpe, a.Stats.Sharpe)
}

func TestRun_EmptyAndErrors(t *testing.T) {
	res, err := Run(retFrame(t, nil), market.Series{}, Costs{})
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	assert.True(t, math.IsNaN(res.Stats.CAGR))
	assert.Equal(t, 0, res.Stats.Periods)

	_, err = Run(retFrame(t, []float64{0.1}), market.Series{}, Costs{FeeBps: -1})
	assert.ErrorIs(t, err, ErrInvalidCosts)

	f, err := market.NewFrame(nil, map[market.Column][]float64{market.ColClose: {}})
	require.NoError(t, err)
	_, err = Run(f, market.Series{}, Costs{})
	assert.ErrorIs(t, err, market.ErrMissingColumn)
}

func TestResult_Series(t *testing.T) {
	frame := retFrame(t, noisy(20, 8))
	res, err := Run(frame, positionsFor(frame, 9), Costs{FeeBps: 1})
	require.NoError(t, err)

	eq := res.Equity()
	assert.Equal(t, frame.Index(), eq.Index)
	assert.Equal(t, res.Rows[19].Equity, eq.Values[19])
	assert.Equal(t, res.Rows[5].Net, res.Net().Values[5])
	assert.Equal(t, res.Rows[7].Drawdown, res.Drawdown().Values[7])
}
