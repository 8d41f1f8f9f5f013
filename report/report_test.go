package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regime-switcher/backtest"
	"regime-switcher/regime"
	"regime-switcher/risk"
)

func sampleReport() *Report {
	t0 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	rows := []backtest.Row{
		{Time: t0, Position: 0, Equity: 1},
		{Time: t0.AddDate(0, 0, 1), Position: 1, Gross: 0.01, Cost: 0.0003, Net: 0.0097, Equity: 1.0097},
		{Time: t0.AddDate(0, 0, 2), Position: 1, Gross: -0.02, Net: -0.02, Equity: 0.9895, Drawdown: -0.02},
	}
	labels := regime.Labels{
		Index:  []time.Time{rows[1].Time, rows[2].Time},
		Values: []regime.Label{regime.Trend, regime.RiskOff},
	}
	return &Report{
		RunID:       "run-1",
		Ticker:      "SPY",
		GeneratedAt: t0,
		Stats:       FromStats(backtest.Stats{CAGR: 0.1, Sharpe: math.NaN(), Sortino: math.Inf(1), Periods: 3}),
		Tail:        Tail{Alpha: 0.05, VaR: -0.02, CVaR: -0.02},
		Attribution: FromAttribution([]risk.RegimePnL{
			{Label: regime.RiskOff, Mean: -0.02, Sum: -0.02, Count: 1},
			{Label: regime.Trend, Mean: 0.0097, Sum: 0.0097, Count: 1},
		}),
		States:   FromStates([]regime.StateSummary{{State: 0, Label: regime.Chop, MeanRet: 0, Vol: math.NaN(), Count: 1}}),
		Segments: FromSegments(regime.Segments(labels)),
		Rows:     FromRows(rows, labels),
	}
}

func TestFloat_JSON(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1.5, "1.5"},
		{0, "0"},
		{math.NaN(), "null"},
		{math.Inf(-1), "null"},
	}
	for _, tt := range tests {
		b, err := json.Marshal(Float(tt.in))
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(b))
	}

	var f Float
	require.NoError(t, json.Unmarshal([]byte("null"), &f))
	assert.True(t, math.IsNaN(float64(f)))
	require.NoError(t, json.Unmarshal([]byte("-0.25"), &f))
	assert.Equal(t, Float(-0.25), f)
}

func TestFromRows_JoinsLabels(t *testing.T) {
	r := sampleReport()
	require.Len(t, r.Rows, 3)
	assert.Equal(t, "", r.Rows[0].Regime)
	assert.Equal(t, "trend", r.Rows[1].Regime)
	assert.Equal(t, "risk_off", r.Rows[2].Regime)
	require.Len(t, r.Segments, 2)
	assert.Equal(t, "trend", r.Segments[0].Regime)
}

func TestWriteJSON_NaNBecomesNull(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleReport()))
	assert.Contains(t, buf.String(), `"sharpe": null`)
	assert.Contains(t, buf.String(), `"sortino": null`)

	var back Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, "SPY", back.Ticker)
	assert.True(t, math.IsNaN(float64(back.Stats.Sharpe)))
	assert.Equal(t, Float(0.1), back.Stats.CAGR)
}

func TestWriteCSV(t *testing.T) {
	r := sampleReport()

	var buf bytes.Buffer
	require.NoError(t, WriteRowsCSV(&buf, r.Rows))
	recs, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, "time", recs[0][0])
	assert.Equal(t, "2024-01-03T00:00:00Z", recs[2][0])
	assert.Equal(t, "trend", recs[2][1])
	assert.Equal(t, "0.0097", recs[2][5])

	buf.Reset()
	require.NoError(t, WriteAttributionCSV(&buf, r.Attribution))
	recs, err = csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []string{"risk_off", "-0.02", "-0.02", "1"}, recs[1])

	buf.Reset()
	require.NoError(t, WriteAttributionCSV(&buf, []Attribution{{Regime: "chop", Mean: Float(math.NaN())}}))
	assert.True(t, strings.HasSuffix(strings.TrimSpace(buf.String()), "chop,,0,0"))
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	files, err := Save(dir+"/out", sampleReport())
	require.NoError(t, err)

	for _, p := range []string{files.JSON, files.Rows, files.Attribution} {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}
	assert.True(t, strings.HasSuffix(files.JSON, "SPY_report.json"))
}

func TestPublisher_Publish(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan Envelope, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var env Envelope
		if err := conn.ReadJSON(&env); err == nil {
			received <- env
		}
	}))
	defer srv.Close()

	p := NewPublisher("ws" + strings.TrimPrefix(srv.URL, "http"))
	require.NoError(t, p.Publish(context.Background(), sampleReport()))

	select {
	case env := <-received:
		assert.Equal(t, "regime_report", env.Type)
		require.NotNil(t, env.Report)
		assert.Equal(t, "SPY", env.Report.Ticker)
		assert.Len(t, env.Report.Rows, 3)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive report")
	}
}

func TestPublisher_Errors(t *testing.T) {
	assert.Error(t, (&Publisher{}).Publish(context.Background(), sampleReport()))

	p := NewPublisher("ws://127.0.0.1:1/none")
	p.Timeout = 200 * time.Millisecond
	assert.Error(t, p.Publish(context.Background(), sampleReport()))
}
