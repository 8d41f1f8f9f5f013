package features

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"regime-switcher/market"
)

func makeBars(closes []float64) market.Bars {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make(market.Bars, len(closes))
	for i, c := range closes {
		bars[i] = market.Bar{
			Time:   start.AddDate(0, 0, i),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1000,
		}
	}
	return bars
}

func randomWalk(n int, seed int64) []float64 {
	r := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	p := 100.0
	for i := range out {
		p *= 1 + r.NormFloat64()*0.01
		out[i] = p
	}
	return out
}

func TestBuild_InsufficientData(t *testing.T) {
	_, err := Build(makeBars(randomWalk(59, 1)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, market.ErrInsufficientData))

	var ie *market.InsufficientDataError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, MinBars, ie.Need)
	assert.Equal(t, 59, ie.Got)
}

func TestBuild_WarmupTrimmed(t *testing.T) {
	bars := makeBars(randomWalk(100, 2))
	frame, err := Build(bars)
	require.NoError(t, err)

	require.Equal(t, 100-EntropyWindow, frame.Len())
	assert.Equal(t, bars[EntropyWindow].Time, frame.Time(0))
	assert.Equal(t, bars[len(bars)-1].Time, frame.Time(frame.Len()-1))
	for _, c := range []market.Column{market.ColRet, market.ColLogRet, market.ColATR, market.ColRV, market.ColEntropy, market.ColClose} {
		assert.True(t, frame.Has(c), "missing %s", c)
	}

	ret, _ := frame.Column(market.ColRet)
	logRet, _ := frame.Column(market.ColLogRet)
	for i := range ret {
		want := bars[EntropyWindow+i].Close/bars[EntropyWindow+i-1].Close - 1
		assert.InDelta(t, want, ret[i], 1e-12)
		assert.InDelta(t, math.Log1p(ret[i]), logRet[i], 1e-12)
	}
}

func TestBuild_EntropyBounds(t *testing.T) {
	frame, err := Build(makeBars(randomWalk(300, 3)))
	require.NoError(t, err)
	entropy, _ := frame.Column(market.ColEntropy)
	for _, h := range entropy {
		assert.GreaterOrEqual(t, h, 0.0)
		assert.LessOrEqual(t, h, 1.0)
	}
}

func TestBuild_EntropyExtremes(t *testing.T) {
	rising := make([]float64, 80)
	for i := range rising {
		rising[i] = 100 + float64(i)
	}
	frame, err := Build(makeBars(rising))
	require.NoError(t, err)
	entropy, _ := frame.Column(market.ColEntropy)
	for _, h := range entropy {
		assert.Equal(t, 0.0, h)
	}

	zigzag := make([]float64, 80)
	for i := range zigzag {
		zigzag[i] = 100 + float64(i%2)
	}
	frame, err = Build(makeBars(zigzag))
	require.NoError(t, err)
	entropy, _ = frame.Column(market.ColEntropy)
	for _, h := range entropy {
		assert.InDelta(t, 1.0, h, 1e-12)
	}
}

func TestBuild_ConstantPrice(t *testing.T) {
	flat := make([]float64, 70)
	for i := range flat {
		flat[i] = 50
	}
	frame, err := Build(makeBars(flat))
	require.NoError(t, err)
	atr, _ := frame.Column(market.ColATR)
	rv, _ := frame.Column(market.ColRV)
	for i := range atr {
		assert.InDelta(t, 2.0, atr[i], 1e-12)
		assert.Equal(t, 0.0, rv[i])
	}
}

func TestTrueRange(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	bar := func(i int, h, l, c float64) market.Bar {
		return market.Bar{Time: start.AddDate(0, 0, i), Open: c, High: h, Low: l, Close: c, Volume: 1}
	}
	bars := market.Bars{
		bar(0, 10, 9, 9.5),
		bar(1, 12, 11, 11.5),
		bar(2, 9, 8.5, 8.8),
		bar(3, 9.2, 8.6, 9),
	}
	tests := []struct {
		name string
		i    int
		want float64
	}{
		{"first bar uses high-low", 0, 1},
		{"gap up uses high-prev close", 1, 2.5},
		{"gap down uses low-prev close", 2, 3},
		{"inside bar uses high-low", 3, 0.6},
	}
	tr := TrueRange(bars)
	require.Len(t, tr, len(bars))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tr[tt.i], 1e-12)
		})
	}
}

// gapBars 高低价区间很窄，真实波幅主要来自跳空。
func gapBars(closes []float64) market.Bars {
	bars := makeBars(closes)
	for i := range bars {
		bars[i].High = closes[i] * 1.001
		bars[i].Low = closes[i] * 0.999
	}
	return bars
}

func TestBuild_ATRAndRealizedVol(t *testing.T) {
	closes := randomWalk(150, 21)
	bars := gapBars(closes)
	frame, err := Build(bars)
	require.NoError(t, err)

	tr := make([]float64, len(bars))
	hl := make([]float64, len(bars))
	logRet := make([]float64, len(bars))
	for j, b := range bars {
		hl[j] = b.High - b.Low
		tr[j] = hl[j]
		if j > 0 {
			prev := bars[j-1].Close
			tr[j] = math.Max(hl[j], math.Max(math.Abs(b.High-prev), math.Abs(b.Low-prev)))
			logRet[j] = math.Log(closes[j] / closes[j-1])
		}
	}

	atr, _ := frame.Column(market.ColATR)
	rv, _ := frame.Column(market.ColRV)
	gapped := 0
	for i := range atr {
		bt := EntropyWindow + i
		wantATR := stat.Mean(tr[bt-ATRWindow+1:bt+1], nil)
		assert.InDelta(t, wantATR, atr[i], 1e-9, "atr row %d", i)
		if wantATR > stat.Mean(hl[bt-ATRWindow+1:bt+1], nil)+1e-9 {
			gapped++
		}

		wantRV := stat.StdDev(logRet[bt-RVWindow+1:bt+1], nil) * math.Sqrt(TradingDays)
		assert.InDelta(t, wantRV, rv[i], 1e-9, "rv row %d", i)
	}
	assert.Equal(t, len(atr), gapped)
}

func TestBuild_RejectsUnsorted(t *testing.T) {
	bars := makeBars(randomWalk(70, 4))
	bars[10].Time = bars[9].Time
	_, err := Build(bars)
	assert.ErrorIs(t, err, market.ErrInvalidBars)
}

func TestMatrix(t *testing.T) {
	frame, err := Build(makeBars(randomWalk(120, 5)))
	require.NoError(t, err)

	x, err := Matrix(frame)
	require.NoError(t, err)
	r, c := x.Dims()
	assert.Equal(t, frame.Len(), r)
	assert.Equal(t, len(DefaultColumns), c)
	rv, _ := frame.Column(market.ColRV)
	assert.Equal(t, rv[3], x.At(3, 1))

	x, err = Matrix(frame, market.ColEntropy)
	require.NoError(t, err)
	_, c = x.Dims()
	assert.Equal(t, 1, c)

	_, err = Matrix(market.Bars(makeBars(randomWalk(5, 6))).Frame())
	assert.ErrorIs(t, err, market.ErrMissingColumn)
}

func TestSignEntropy(t *testing.T) {
	assert.Equal(t, 0.0, SignEntropy([]float64{0.1, 0.2, 0.3}))
	assert.Equal(t, 0.0, SignEntropy([]float64{-0.1, 0, -0.3}))
	assert.InDelta(t, 1.0, SignEntropy([]float64{0.1, -0.1}), 1e-12)
	assert.True(t, math.IsNaN(SignEntropy(nil)))
}

func TestRolling(t *testing.T) {
	x := []float64{math.NaN(), 1, 2, 3, 4}
	m := RollingMean(x, 2)
	assert.True(t, math.IsNaN(m[0]))
	assert.True(t, math.IsNaN(m[1]))
	assert.Equal(t, 1.5, m[2])
	assert.Equal(t, 3.5, m[4])

	s := RollingStd([]float64{1, 1, 1, 3}, 2)
	assert.Equal(t, 0.0, s[2])
	assert.InDelta(t, math.Sqrt2, s[3], 1e-12)

	sh := Shift([]float64{1, 2, 3}, 1)
	assert.True(t, math.IsNaN(sh[0]))
	assert.Equal(t, []float64{1, 2}, sh[1:])
}
