package container

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"regime-switcher/config"
	"regime-switcher/infrastructure/alert"
	"regime-switcher/infrastructure/logger"
	"regime-switcher/infrastructure/monitor"
	"regime-switcher/market"
	"regime-switcher/metrics"
	"regime-switcher/monitor/logschema"
	"regime-switcher/pipeline"
	"regime-switcher/report"
)

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	cfgPath string

	mu  sync.RWMutex
	cfg config.AppConfig

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor
	alerts  *alert.Manager
	rules   *alert.Rules

	// 核心服务
	pipeline  *pipeline.Pipeline
	publisher *report.Publisher

	// 生命周期管理
	lifecycle *LifecycleManager
}

// Outcome 单个 ticker 的运行结果。
type Outcome struct {
	Ticker string
	Report *report.Report
	Files  report.Files
}

// New 从配置文件创建容器，环境变量覆盖配置项。
func New(configPath string) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return NewWithConfig(configPath, cfg), nil
}

// NewWithConfig creates a container around an already loaded config.
func NewWithConfig(configPath string, cfg config.AppConfig) *Container {
	return &Container{
		cfgPath:   configPath,
		cfg:       cfg,
		lifecycle: NewLifecycleManager(),
	}
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}
	if err := c.buildCoreServices(c.cfg); err != nil {
		return fmt.Errorf("build core services failed: %w", err)
	}
	c.registerLifecycleComponents()
	c.logger.Info("container built successfully")
	return nil
}

func (c *Container) buildInfrastructure() error {
	var err error
	c.logger, err = logger.New(c.cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}
	c.monitor = monitor.New(monitor.DefaultConfig())
	c.alerts = alert.NewManager([]alert.Channel{alert.NewLogChannel("log", c.logger)}, c.cfg.Alert.Throttle)
	c.rules = alert.NewRules(c.cfg.Alert.MaxDrawdown)
	c.logger.Info("infrastructure built")
	return nil
}

func (c *Container) buildCoreServices(cfg config.AppConfig) error {
	p, err := pipeline.New(pipeline.SettingsFrom(cfg), pipeline.Components{
		Logger:  c.logger,
		Monitor: c.monitor,
	})
	if err != nil {
		return err
	}
	var pub *report.Publisher
	if cfg.Output.PublishURL != "" {
		pub = report.NewPublisher(cfg.Output.PublishURL)
	}

	c.mu.Lock()
	c.cfg = cfg
	c.pipeline = p
	c.publisher = pub
	c.mu.Unlock()
	return nil
}

func (c *Container) registerLifecycleComponents() {
	if c.cfg.Metrics.Addr == "" {
		return
	}
	c.lifecycle.Register(&metricsComponent{
		name:   "metrics_server",
		server: metrics.NewServer(c.cfg.Metrics.Addr, c.monitor.Registry()),
		logger: c.logger,
	})
}

// Start 启动后台组件（指标服务）。
func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")
	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}
	c.logger.Info("container started")
	return nil
}

func (c *Container) Stop() error {
	c.logger.Info("stopping container...")
	err := c.lifecycle.StopAll()
	if err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}
	c.logger.Close()
	return err
}

func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

// Config returns the active config.
func (c *Container) Config() config.AppConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

func (c *Container) Logger() *logger.Logger { return c.logger }

func (c *Container) Monitor() *monitor.Monitor { return c.monitor }

// Reload 用新配置重建流水线。日志与指标服务不随热更新变化。
func (c *Container) Reload(cfg config.AppConfig) error {
	if err := c.buildCoreServices(cfg); err != nil {
		c.monitor.RecordConfigReload("error")
		c.logger.LogError(err, map[string]interface{}{"action": "reload", "path": c.cfgPath})
		return err
	}
	c.rules.SetMaxDrawdown(cfg.Alert.MaxDrawdown)
	c.monitor.RecordConfigReload("ok")
	c.logger.LogConfig(logschema.ConfigReload, map[string]interface{}{
		"path":    c.cfgPath,
		"tickers": cfg.Data.Tickers,
	})
	return nil
}

// RunAll 并行运行 tickers（为空时使用配置中的列表），任一失败即取消其余运行。
// outDir 为空时使用 output.dir。
func (c *Container) RunAll(ctx context.Context, tickers []string, outDir string) ([]Outcome, error) {
	c.mu.RLock()
	cfg, p, pub := c.cfg, c.pipeline, c.publisher
	c.mu.RUnlock()
	if p == nil {
		return nil, errors.New("container not built")
	}
	if len(tickers) == 0 {
		tickers = cfg.Data.Tickers
	}
	if outDir == "" {
		outDir = cfg.Output.Dir
	}

	outcomes := make([]Outcome, len(tickers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, ticker := range tickers {
		i, ticker := i, ticker
		g.Go(func() error {
			bars, err := LoadBars(cfg.Data, ticker)
			if err != nil {
				return fmt.Errorf("%s: %w", ticker, err)
			}
			rep, err := p.Run(gctx, ticker, bars)
			if err != nil {
				return fmt.Errorf("%s: %w", ticker, err)
			}
			files, err := report.Save(outDir, rep)
			if err != nil {
				return fmt.Errorf("%s: %w", ticker, err)
			}
			if pub != nil {
				if err := pub.Publish(gctx, rep); err != nil {
					// 推送失败不影响本地结果
					c.logger.LogError(err, map[string]interface{}{"action": "publish", "ticker": ticker})
				}
			}
			c.evaluateAlerts(rep)
			outcomes[i] = Outcome{Ticker: ticker, Report: rep, Files: files}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// evaluateAlerts 以最后一行的标签和最大回撤检查告警规则。
func (c *Container) evaluateAlerts(rep *report.Report) {
	if len(rep.Rows) == 0 {
		return
	}
	last := rep.Rows[len(rep.Rows)-1]
	snap := alert.Snapshot{
		Ticker:      rep.Ticker,
		Regime:      last.Regime,
		At:          last.Time,
		MaxDrawdown: float64(rep.Stats.MaxDrawdown),
	}
	for _, a := range c.rules.Evaluate(snap) {
		if err := c.alerts.Send(a); err != nil {
			c.logger.LogError(err, map[string]interface{}{"action": "alert", "ticker": rep.Ticker})
		}
	}
}

// LoadBars 读取 ticker 的 CSV，按配置周期重采样并截取回看窗口。
func LoadBars(cfg config.DataConfig, ticker string) (market.Bars, error) {
	bars, err := market.LoadCSV(cfg.DataPath(ticker))
	if err != nil {
		return nil, err
	}
	if cfg.Interval != "" {
		interval, err := market.ParseInterval(cfg.Interval)
		if err != nil {
			return nil, err
		}
		bars = market.Resample(bars, interval)
	}
	return market.Lookback(bars, cfg.LookbackYears), nil
}
