package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"regime-switcher/backtest"
	"regime-switcher/infrastructure/logger"
	"regime-switcher/regime"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Data     DataConfig     `yaml:"data"`
	HMM      HMMConfig      `yaml:"hmm"`
	Backtest BacktestConfig `yaml:"backtest"`
	Risk     RiskConfig     `yaml:"risk"`
	Log      logger.Config  `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Output   OutputConfig   `yaml:"output"`
	Alert    AlertConfig    `yaml:"alert"`
}

// DataConfig 数据来源：每个 ticker 对应 Dir 下按 Pattern 命名的 CSV 文件。
type DataConfig struct {
	Tickers       []string `yaml:"tickers" validate:"required,min=1,dive,required"`
	Dir           string   `yaml:"dir" default:"data"`
	Pattern       string   `yaml:"pattern" default:"{ticker}.csv"`
	LookbackYears int      `yaml:"lookback_years" default:"8" validate:"gte=0"`
	Interval      string   `yaml:"interval" default:"1d" validate:"oneof=1h 1d"`
}

type HMMConfig struct {
	NStates        int     `yaml:"n_states" default:"3" validate:"gte=2,lte=8"`
	CovarianceType string  `yaml:"covariance_type" default:"full" validate:"oneof=full diag spherical tied"`
	RandomState    int64   `yaml:"random_state" default:"42"`
	NIter          int     `yaml:"n_iter" default:"200" validate:"gte=1"`
	Tol            float64 `yaml:"tol" default:"0.01" validate:"gt=0"`
}

type BacktestConfig struct {
	FeeBps       float64 `yaml:"fee_bps" default:"1" validate:"gte=0,lte=50"`
	SlippageBps  float64 `yaml:"slippage_bps" default:"2" validate:"gte=0,lte=100"`
	RiskFreeRate float64 `yaml:"risk_free_rate"`
}

type RiskConfig struct {
	VaRAlpha float64 `yaml:"var_alpha" default:"0.95" validate:"gte=0.5,lte=0.999"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

// AlertConfig 状态切换与回撤告警，同一告警在 Throttle 内只发一次。
type AlertConfig struct {
	MaxDrawdown float64       `yaml:"max_drawdown" default:"-0.25" validate:"gte=-1,lte=0"`
	Throttle    time.Duration `yaml:"throttle" default:"30m" validate:"gte=0"`
}

type OutputConfig struct {
	Dir        string `yaml:"dir" default:"out"`
	PublishURL string `yaml:"publish_url" validate:"omitempty,url"`
}

// FitConfig converts the hmm section to regime fit parameters.
func (c HMMConfig) FitConfig() regime.FitConfig {
	return regime.FitConfig{
		NStates:    c.NStates,
		Covariance: regime.CovarianceType(c.CovarianceType),
		Seed:       c.RandomState,
		MaxIter:    c.NIter,
		Tol:        c.Tol,
	}
}

// Costs converts the backtest section to engine costs.
func (c BacktestConfig) Costs() backtest.Costs {
	return backtest.Costs{FeeBps: c.FeeBps, SlippageBps: c.SlippageBps, RiskFreeRate: c.RiskFreeRate}
}

// DataPath 返回 ticker 对应的 CSV 路径。
func (c DataConfig) DataPath(ticker string) string {
	return filepath.Join(c.Dir, strings.ReplaceAll(c.Pattern, "{ticker}", ticker))
}

var validate = validator.New()

// Default returns a config with every default applied and no tickers.
func Default() AppConfig {
	var cfg AppConfig
	_ = applyDefaults(&cfg)
	return cfg
}

func applyDefaults(cfg *AppConfig) error {
	if err := defaults.Set(cfg); err != nil {
		return fmt.Errorf("apply defaults: %w", err)
	}
	if len(cfg.Log.Outputs) == 0 {
		cfg.Log.Outputs = logger.DefaultConfig().Outputs
	}
	return nil
}

// Parse decodes YAML over the defaults and validates. Defaults are applied
// first so explicit zero values in the file (fee_bps: 0) are kept.
func Parse(raw []byte) (AppConfig, error) {
	cfg, err := decode(raw)
	if err != nil {
		return cfg, err
	}
	return cfg, Validate(cfg)
}

// Load reads YAML config from path and applies defaults and validation.
func Load(path string) (AppConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// LoadWithEnvOverrides loads config then overrides fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := decode(raw)
	if err != nil {
		return cfg, err
	}
	ApplyEnv(&cfg)
	return cfg, Validate(cfg)
}

func decode(raw []byte) (AppConfig, error) {
	var cfg AppConfig
	if err := applyDefaults(&cfg); err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if len(cfg.Log.Outputs) == 0 {
		cfg.Log.Outputs = logger.DefaultConfig().Outputs
	}
	return cfg, nil
}

// ApplyEnv overrides fields from RS_TICKERS (comma separated), RS_DATA_DIR
// and RS_PUBLISH_URL.
func ApplyEnv(cfg *AppConfig) {
	if v := os.Getenv("RS_TICKERS"); v != "" {
		var tickers []string
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tickers = append(tickers, t)
			}
		}
		cfg.Data.Tickers = tickers
	}
	if v := os.Getenv("RS_DATA_DIR"); v != "" {
		cfg.Data.Dir = v
	}
	if v := os.Getenv("RS_PUBLISH_URL"); v != "" {
		cfg.Output.PublishURL = v
	}
}

// Validate 先做 tag 校验，再做跨字段检查。错误类型为 ErrInvalid。
func Validate(cfg AppConfig) error {
	if err := validate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fieldMessage(fe))
			}
			return ErrInvalid(strings.Join(msgs, "; "))
		}
		return ErrInvalid(err.Error())
	}
	if !strings.Contains(cfg.Data.Pattern, "{ticker}") {
		return ErrInvalid("data.pattern must contain {ticker}")
	}
	seen := make(map[string]bool, len(cfg.Data.Tickers))
	for _, t := range cfg.Data.Tickers {
		if seen[t] {
			return ErrInvalid(fmt.Sprintf("data.tickers: duplicate %s", t))
		}
		seen[t] = true
	}
	for _, out := range cfg.Log.Outputs {
		if out == "file" && cfg.Log.OutputFile == "" {
			return ErrInvalid("log.output_file is required for file output")
		}
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return "invalid config: " + string(e) }
