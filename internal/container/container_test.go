package container

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regime-switcher/config"
	"regime-switcher/infrastructure/alert"
	"regime-switcher/pipeline"
)

// writeBars 写出随机游走日线 CSV，step 为相邻两行的时间间隔。
func writeBars(t *testing.T, dir, ticker string, n int, step time.Duration, seed int64) {
	t.Helper()
	r := rand.New(rand.NewSource(seed))
	var b strings.Builder
	b.WriteString("Date,Open,High,Low,Close,Adj Close,Volume\n")
	start := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)
	price := 50.0
	for i := 0; i < n; i++ {
		open := price
		vol := 0.01
		if i > n/2 {
			vol = 0.03
		}
		price *= 1 + vol*r.NormFloat64()
		hi := math.Max(open, price) * 1.002
		lo := math.Min(open, price) * 0.998
		ts := start.Add(time.Duration(i) * step).Format(time.RFC3339)
		fmt.Fprintf(&b, "%s,%.6f,%.6f,%.6f,%.6f,%.6f,%d\n", ts, open, hi, lo, price, price, 1000+i)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, ticker+".csv"), []byte(b.String()), 0o644))
}

func testConfig(t *testing.T, tickers ...string) config.AppConfig {
	t.Helper()
	cfg := config.Default()
	cfg.Data.Tickers = tickers
	cfg.Data.Dir = t.TempDir()
	cfg.Output.Dir = t.TempDir()
	cfg.Log.Level = "error"
	cfg.HMM.NStates = 2
	require.NoError(t, config.Validate(cfg))
	return cfg
}

func TestContainer_RunAll(t *testing.T) {
	cfg := testConfig(t, "AAA", "BBB")
	writeBars(t, cfg.Data.Dir, "AAA", 200, 24*time.Hour, 1)
	writeBars(t, cfg.Data.Dir, "BBB", 220, 24*time.Hour, 2)

	c := NewWithConfig("unused.yaml", cfg)
	require.NoError(t, c.Build())
	defer c.Stop()

	outcomes, err := c.RunAll(context.Background(), nil, "")
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.Equal(t, "AAA", outcomes[0].Ticker)
	assert.Len(t, outcomes[0].Report.Rows, 150)
	assert.Equal(t, "BBB", outcomes[1].Ticker)
	assert.Len(t, outcomes[1].Report.Rows, 170)
	for _, o := range outcomes {
		_, err := os.Stat(o.Files.JSON)
		assert.NoError(t, err)
		assert.Equal(t, cfg.Output.Dir, filepath.Dir(o.Files.Rows))
	}
	n, err := testutil.GatherAndCount(c.Monitor().Registry(), "regime_pipeline_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestContainer_DrawdownAlert(t *testing.T) {
	cfg := testConfig(t, "AAA")
	cfg.Alert.MaxDrawdown = -0.0001
	writeBars(t, cfg.Data.Dir, "AAA", 200, 24*time.Hour, 1)

	c := NewWithConfig("unused.yaml", cfg)
	require.NoError(t, c.Build())
	defer c.Stop()
	rec := alert.NewRecorder("rec")
	c.alerts.AddChannel(rec)

	_, err := c.RunAll(context.Background(), nil, "")
	require.NoError(t, err)
	got := rec.Alerts()
	require.Len(t, got, 1)
	assert.Equal(t, alert.LevelCritical, got[0].Level)
	assert.Equal(t, "AAA", got[0].Ticker)

	// 限流：同一告警不会重复发送
	_, err = c.RunAll(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Len(t, rec.Alerts(), 1)
}

func TestContainer_RunAllFailure(t *testing.T) {
	cfg := testConfig(t, "AAA", "SHORT")
	writeBars(t, cfg.Data.Dir, "AAA", 200, 24*time.Hour, 1)
	writeBars(t, cfg.Data.Dir, "SHORT", 20, 24*time.Hour, 3)

	c := NewWithConfig("unused.yaml", cfg)
	require.NoError(t, c.Build())
	defer c.Stop()

	_, err := c.RunAll(context.Background(), []string{"SHORT"}, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHORT: stage features")
	var se *pipeline.StageError
	assert.True(t, errors.As(err, &se))

	_, err = c.RunAll(context.Background(), []string{"MISSING"}, "")
	assert.Error(t, err)
}

func TestContainer_Reload(t *testing.T) {
	cfg := testConfig(t, "AAA")
	c := NewWithConfig("cfg.yaml", cfg)
	require.NoError(t, c.Build())
	defer c.Stop()

	next := cfg
	next.Data.Tickers = []string{"AAA", "CCC"}
	next.HMM.NStates = 3
	require.NoError(t, c.Reload(next))
	assert.Equal(t, []string{"AAA", "CCC"}, c.Config().Data.Tickers)

	bad := cfg
	bad.Risk.VaRAlpha = 2
	assert.Error(t, c.Reload(bad))
	assert.Equal(t, 3, c.Config().HMM.NStates)
}

func TestLoadBars_ResampleAndLookback(t *testing.T) {
	cfg := testConfig(t, "HR")
	writeBars(t, cfg.Data.Dir, "HR", 24*10, time.Hour, 5)

	bars, err := LoadBars(cfg.Data, "HR")
	require.NoError(t, err)
	require.Len(t, bars, 10)
	assert.Equal(t, time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC), bars[0].Time)

	cfg.Data.Interval = "1h"
	bars, err = LoadBars(cfg.Data, "HR")
	require.NoError(t, err)
	assert.Len(t, bars, 240)

	cfg.Data.Interval = "bogus"
	_, err = LoadBars(cfg.Data, "HR")
	assert.Error(t, err)
}

type fakeComponent struct {
	startErr error
	started  bool
	stopped  bool
}

func (f *fakeComponent) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeComponent) Stop() error {
	f.stopped = true
	return nil
}

func (f *fakeComponent) Health() error {
	if !f.started {
		return errors.New("not started")
	}
	return nil
}

func TestLifecycleManager_RollsBackOnFailure(t *testing.T) {
	m := NewLifecycleManager()
	first := &fakeComponent{}
	second := &fakeComponent{startErr: errors.New("bind failed")}
	m.Register(first)
	m.Register(second)

	err := m.StartAll(context.Background())
	require.Error(t, err)
	assert.True(t, first.stopped)
	assert.False(t, second.stopped)
	assert.Error(t, m.CheckHealth())
}

func TestContainer_MetricsLifecycle(t *testing.T) {
	cfg := testConfig(t, "AAA")
	cfg.Metrics.Addr = "127.0.0.1:0"
	c := NewWithConfig("cfg.yaml", cfg)
	require.NoError(t, c.Build())

	assert.Error(t, c.HealthCheck())
	require.NoError(t, c.Start(context.Background()))
	assert.NoError(t, c.HealthCheck())
	assert.NoError(t, c.Stop())
}
