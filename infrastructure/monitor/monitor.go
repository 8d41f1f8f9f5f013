package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器
type Monitor struct {
	registry *prometheus.Registry

	// 运行指标
	runsTotal     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	lastRun       *prometheus.GaugeVec

	// 模型指标
	hmmIterations *prometheus.GaugeVec
	hmmLogLik     *prometheus.GaugeVec

	// 回测指标
	sharpe      *prometheus.GaugeVec
	maxDrawdown *prometheus.GaugeVec
	cagr        *prometheus.GaugeVec
	valueAtRisk *prometheus.GaugeVec
	regimeShare *prometheus.GaugeVec

	// 配置热更新
	configReloads *prometheus.CounterVec
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "regime",
		Subsystem: "pipeline",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	gauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}

	return &Monitor{
		registry: reg,
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "runs_total",
			Help:      "流水线运行次数",
		}, []string{"ticker", "status"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "stage_duration_seconds",
			Help:      "各阶段耗时（秒）",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"stage"}),
		lastRun:       gauge("last_run_timestamp_seconds", "最近一次成功运行的时间戳", "ticker"),
		hmmIterations: gauge("hmm_iterations", "HMM EM 迭代次数", "ticker"),
		hmmLogLik:     gauge("hmm_log_likelihood", "HMM 训练集对数似然", "ticker"),
		sharpe:        gauge("backtest_sharpe", "回测年化夏普比率", "ticker"),
		maxDrawdown:   gauge("backtest_max_drawdown", "回测最大回撤（负数）", "ticker"),
		cagr:          gauge("backtest_cagr", "回测年化复合收益", "ticker"),
		valueAtRisk:   gauge("value_at_risk", "历史模拟 VaR/CVaR", "ticker", "measure"),
		regimeShare:   gauge("regime_share", "各标签占样本比例", "ticker", "label"),
		configReloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "config_reloads_total",
			Help:      "配置热更新次数",
		}, []string{"status"}),
	}
}

// RecordRun 记录一次运行结果，status 为 ok 或 error。
func (m *Monitor) RecordRun(ticker, status string) {
	m.runsTotal.WithLabelValues(ticker, status).Inc()
}

func (m *Monitor) ObserveStage(stage string, seconds float64) {
	m.stageDuration.WithLabelValues(stage).Observe(seconds)
}

func (m *Monitor) UpdateLastRun(ticker string, unixSeconds float64) {
	m.lastRun.WithLabelValues(ticker).Set(unixSeconds)
}

// UpdateModel 记录 HMM 拟合结果
func (m *Monitor) UpdateModel(ticker string, iterations int, logLik float64) {
	m.hmmIterations.WithLabelValues(ticker).Set(float64(iterations))
	m.hmmLogLik.WithLabelValues(ticker).Set(logLik)
}

// UpdateBacktest 记录回测汇总指标
func (m *Monitor) UpdateBacktest(ticker string, sharpe, maxDD, cagr float64) {
	m.sharpe.WithLabelValues(ticker).Set(sharpe)
	m.maxDrawdown.WithLabelValues(ticker).Set(maxDD)
	m.cagr.WithLabelValues(ticker).Set(cagr)
}

func (m *Monitor) UpdateTailRisk(ticker string, v, cv float64) {
	m.valueAtRisk.WithLabelValues(ticker, "var").Set(v)
	m.valueAtRisk.WithLabelValues(ticker, "cvar").Set(cv)
}

func (m *Monitor) UpdateRegimeShare(ticker, label string, share float64) {
	m.regimeShare.WithLabelValues(ticker, label).Set(share)
}

func (m *Monitor) RecordConfigReload(status string) {
	m.configReloads.WithLabelValues(status).Inc()
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
