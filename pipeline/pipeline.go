// Package pipeline runs one ticker through features, regime model, labeling,
// routing, backtest and risk, and assembles the report. A run either returns a
// complete report or an error naming the stage that failed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"regime-switcher/backtest"
	"regime-switcher/config"
	"regime-switcher/features"
	"regime-switcher/infrastructure/logger"
	"regime-switcher/infrastructure/monitor"
	"regime-switcher/market"
	"regime-switcher/monitor/logschema"
	"regime-switcher/regime"
	"regime-switcher/report"
	"regime-switcher/risk"
	"regime-switcher/strategy"
)

// Stage 流水线阶段名，用于错误包装、日志和指标标签。
type Stage string

const (
	StageFeatures Stage = "features"
	StageFit      Stage = "fit"
	StageInfer    Stage = "infer"
	StageLabel    Stage = "label"
	StageRoute    Stage = "route"
	StageBacktest Stage = "backtest"
	StageRisk     Stage = "risk"
)

// StageError wraps the error of the stage that aborted a run.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("stage %s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// ErrInvalidSettings 运行参数非法。
var ErrInvalidSettings = errors.New("pipeline: invalid settings")

// Settings 单次运行的不可变参数，按值传入。
type Settings struct {
	Fit      regime.FitConfig
	Columns  []market.Column
	Costs    backtest.Costs
	VaRAlpha float64
	Routing  strategy.Routing
}

// DefaultSettings returns three full-covariance states, seed 42, the default
// feature columns, 1+2 bps costs and 95% VaR.
func DefaultSettings() Settings {
	return Settings{
		Fit:      regime.FitConfig{NStates: 3, Covariance: regime.CovFull, Seed: 42},
		Columns:  append([]market.Column(nil), features.DefaultColumns...),
		Costs:    backtest.Costs{FeeBps: 1, SlippageBps: 2},
		VaRAlpha: 0.95,
		Routing:  strategy.DefaultRouting(),
	}
}

// SettingsFrom 从配置文件转换运行参数。
func SettingsFrom(cfg config.AppConfig) Settings {
	s := DefaultSettings()
	s.Fit = cfg.HMM.FitConfig()
	s.Costs = cfg.Backtest.Costs()
	s.VaRAlpha = cfg.Risk.VaRAlpha
	return s
}

// Validate checks the parts of s that are not checked by the stages.
func (s Settings) Validate() error {
	if !(s.VaRAlpha > 0 && s.VaRAlpha < 1) {
		return fmt.Errorf("%w: var alpha %v", ErrInvalidSettings, s.VaRAlpha)
	}
	if err := s.Routing.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return nil
}

func (s Settings) columns() []market.Column {
	if len(s.Columns) == 0 {
		return features.DefaultColumns
	}
	return s.Columns
}

// Components 流水线依赖，均可为空。
type Components struct {
	Logger  *logger.Logger
	Monitor *monitor.Monitor
	// NewRunID 默认使用 uuid v4
	NewRunID func() string
	Now      func() time.Time
}

// Pipeline is safe for concurrent use: runs share only the logger and the
// prometheus registry.
type Pipeline struct {
	settings Settings
	log      *logger.Logger
	mon      *monitor.Monitor
	newRunID func() string
	now      func() time.Time
}

// New 创建流水线。
func New(settings Settings, comps Components) (*Pipeline, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{
		settings: settings,
		log:      comps.Logger,
		mon:      comps.Monitor,
		newRunID: comps.NewRunID,
		now:      comps.Now,
	}
	if p.log == nil {
		p.log = logger.NewNop()
	}
	if p.newRunID == nil {
		p.newRunID = uuid.NewString
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// Settings returns the run parameters.
func (p *Pipeline) Settings() Settings { return p.settings }

// run 一次运行的中间产物。
type run struct {
	id     string
	ticker string

	frame     *market.Frame
	model     regime.Model
	states    []int
	labels    regime.Labels
	summary   []regime.StateSummary
	positions market.Series
	result    backtest.Result
	varLoss   float64
	cvarLoss  float64
	attr      []risk.RegimePnL
}

// Run executes all stages for ticker. ctx is checked between stages.
func (p *Pipeline) Run(ctx context.Context, ticker string, bars market.Bars) (*report.Report, error) {
	r := &run{id: p.newRunID(), ticker: ticker}
	log := p.log.WithFields(map[string]interface{}{"run_id": r.id, "ticker": ticker})

	stages := []struct {
		name Stage
		fn   func(*run) error
	}{
		{StageFeatures, func(r *run) error { return p.buildFeatures(r, bars) }},
		{StageFit, p.fit},
		{StageInfer, p.infer},
		{StageLabel, p.label},
		{StageRoute, p.route},
		{StageBacktest, p.backtest},
		{StageRisk, p.risk},
	}
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return nil, p.fail(log, r, st.name, err)
		}
		start := p.now()
		if err := st.fn(r); err != nil {
			return nil, p.fail(log, r, st.name, err)
		}
		elapsed := p.now().Sub(start)
		if p.mon != nil {
			p.mon.ObserveStage(string(st.name), elapsed.Seconds())
		}
		log.LogStage(logschema.StageComplete, map[string]interface{}{
			"run_id":     r.id,
			"ticker":     ticker,
			"stage":      string(st.name),
			"elapsed_ms": elapsed.Milliseconds(),
		})
	}

	rep := p.assemble(r)
	p.record(r)
	log.LogRun(logschema.RunComplete, map[string]interface{}{
		"run_id":       r.id,
		"ticker":       ticker,
		"rows":         len(rep.Rows),
		"sharpe":       r.result.Stats.Sharpe,
		"max_drawdown": r.result.Stats.MaxDrawdown,
	})
	return rep, nil
}

func (p *Pipeline) fail(log *logger.Logger, r *run, stage Stage, err error) error {
	if p.mon != nil {
		p.mon.RecordRun(r.ticker, "error")
	}
	log.LogRun(logschema.RunFailed, map[string]interface{}{
		"run_id": r.id,
		"ticker": r.ticker,
		"stage":  string(stage),
	})
	log.LogError(err, map[string]interface{}{"stage": string(stage)})
	return &StageError{Stage: stage, Err: err}
}

func (p *Pipeline) buildFeatures(r *run, bars market.Bars) error {
	frame, err := features.Build(bars)
	if err != nil {
		return err
	}
	r.frame = frame
	return nil
}

func (p *Pipeline) fit(r *run) error {
	x, err := features.Matrix(r.frame, p.settings.columns()...)
	if err != nil {
		return err
	}
	m, err := regime.Fit(x, p.settings.Fit)
	if err != nil {
		return err
	}
	r.model = m
	return nil
}

func (p *Pipeline) infer(r *run) error {
	x, err := features.Matrix(r.frame, p.settings.columns()...)
	if err != nil {
		return err
	}
	states, err := r.model.Infer(x)
	if err != nil {
		return err
	}
	r.states = states
	return nil
}

func (p *Pipeline) label(r *run) error {
	labels, err := regime.LabelStates(r.frame, r.states)
	if err != nil {
		return err
	}
	summary, err := regime.Mapping(r.frame, r.states)
	if err != nil {
		return err
	}
	r.labels, r.summary = labels, summary
	return nil
}

func (p *Pipeline) route(r *run) error {
	pos, err := strategy.RouteWith(r.frame, r.labels, p.settings.Routing)
	if err != nil {
		return err
	}
	r.positions = pos
	return nil
}

func (p *Pipeline) backtest(r *run) error {
	res, err := backtest.Run(r.frame, r.positions, p.settings.Costs)
	if err != nil {
		return err
	}
	r.result = res
	return nil
}

func (p *Pipeline) risk(r *run) error {
	v, cv, err := risk.VaRCVaR(r.result.Net().Values, p.settings.VaRAlpha)
	if err != nil {
		return err
	}
	r.varLoss, r.cvarLoss = v, cv
	r.attr = risk.Attribute(r.result.Rows, r.labels)
	return nil
}

func (p *Pipeline) assemble(r *run) *report.Report {
	s := p.settings
	return &report.Report{
		RunID:       r.id,
		Ticker:      r.ticker,
		GeneratedAt: p.now().UTC(),
		Settings: report.Settings{
			NStates:        s.Fit.NStates,
			CovarianceType: string(r.model.CovarianceType()),
			Seed:           s.Fit.Seed,
			FeeBps:         s.Costs.FeeBps,
			SlippageBps:    s.Costs.SlippageBps,
			RiskFreeRate:   s.Costs.RiskFreeRate,
			VaRAlpha:       s.VaRAlpha,
		},
		Model: report.Model{
			Iterations:    r.model.Iterations(),
			Converged:     r.model.Converged(),
			LogLikelihood: report.Float(r.model.LogLikelihood()),
		},
		Stats:       report.FromStats(r.result.Stats),
		Tail:        report.Tail{Alpha: s.VaRAlpha, VaR: report.Float(r.varLoss), CVaR: report.Float(r.cvarLoss)},
		Attribution: report.FromAttribution(r.attr),
		States:      report.FromStates(r.summary),
		Segments:    report.FromSegments(regime.Segments(r.labels)),
		Rows:        report.FromRows(r.result.Rows, r.labels),
	}
}

// record 更新本次运行的 prometheus 指标。
func (p *Pipeline) record(r *run) {
	if p.mon == nil {
		return
	}
	st := r.result.Stats
	p.mon.RecordRun(r.ticker, "ok")
	p.mon.UpdateLastRun(r.ticker, float64(p.now().Unix()))
	p.mon.UpdateModel(r.ticker, r.model.Iterations(), r.model.LogLikelihood())
	p.mon.UpdateBacktest(r.ticker, st.Sharpe, st.MaxDrawdown, st.CAGR)
	if !math.IsNaN(r.varLoss) {
		p.mon.UpdateTailRisk(r.ticker, r.varLoss, r.cvarLoss)
	}
	if n := r.labels.Len(); n > 0 {
		counts := r.labels.Counts()
		for _, l := range []regime.Label{regime.Trend, regime.Chop, regime.RiskOff} {
			p.mon.UpdateRegimeShare(r.ticker, string(l), float64(counts[l])/float64(n))
		}
	}
}
