package logger

import (
	"fmt"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 封装zap日志器，提供结构化日志功能
type Logger struct {
	*zap.Logger
	config Config
}

// Config 日志配置
type Config struct {
	Level      string   `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Outputs    []string `yaml:"outputs" validate:"dive,oneof=stdout stderr file"` // stdout, stderr, file
	OutputFile string   `yaml:"output_file"`                                     // 日志文件路径
	ErrorFile  string   `yaml:"error_file"`                                      // 错误日志单独文件
	Format     string   `yaml:"format" default:"json" validate:"oneof=json console"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Outputs: []string{"stderr"},
		Format:  "json",
	}
}

// New 创建新的Logger实例
func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", cfg.Level, err)
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
	}
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	newEncoder := func() zapcore.Encoder {
		if cfg.Format == "console" {
			return zapcore.NewConsoleEncoder(encoderConfig)
		}
		return zapcore.NewJSONEncoder(encoderConfig)
	}

	var cores []zapcore.Core
	for _, out := range cfg.Outputs {
		switch out {
		case "stdout":
			cores = append(cores, zapcore.NewCore(newEncoder(), zapcore.Lock(os.Stdout), level))
		case "stderr":
			cores = append(cores, zapcore.NewCore(newEncoder(), zapcore.Lock(os.Stderr), level))
		case "file":
			if cfg.OutputFile == "" {
				return nil, fmt.Errorf("log output file is required for file output")
			}
			w, err := openAppend(cfg.OutputFile)
			if err != nil {
				return nil, err
			}
			cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), w, level))
		}
	}

	// 错误日志单独文件
	if cfg.ErrorFile != "" {
		w, err := openAppend(cfg.ErrorFile)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), w, zapcore.ErrorLevel))
	}

	return NewWithCore(zapcore.NewTee(cores...), cfg), nil
}

// NewWithCore wraps an existing core, e.g. an observer core in tests.
func NewWithCore(core zapcore.Core, cfg Config) *Logger {
	return &Logger{
		Logger: zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)),
		config: cfg,
	}
}

// NewNop 丢弃所有输出。
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop(), config: DefaultConfig()}
}

func openAppend(path string) (zapcore.WriteSyncer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return zapcore.AddSync(f), nil
}

// WithFields 添加字段返回新的logger
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{
		Logger: l.Logger.With(toZap(fields)...),
		config: l.config,
	}
}

// LogStage 记录流水线阶段事件
func (l *Logger) LogStage(event string, fields map[string]interface{}) {
	l.Info("stage_event", withEvent(event, fields)...)
}

// LogRun 记录整次运行的开始/结束
func (l *Logger) LogRun(event string, fields map[string]interface{}) {
	l.Info("run_event", withEvent(event, fields)...)
}

// LogConfig 记录配置加载/热更新
func (l *Logger) LogConfig(event string, fields map[string]interface{}) {
	l.Info("config_event", withEvent(event, fields)...)
}

// LogError 记录错误并附带上下文
func (l *Logger) LogError(err error, context map[string]interface{}) {
	fields := make(map[string]interface{}, len(context)+2)
	for k, v := range context {
		fields[k] = v
	}
	fields["error"] = err.Error()
	fields["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	l.Error("error_event", toZap(fields)...)
}

// Close 关闭日志器
func (l *Logger) Close() error {
	return l.Sync()
}

func withEvent(event string, fields map[string]interface{}) []zap.Field {
	out := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		out[k] = v
	}
	out["event"] = event
	out["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	return toZap(out)
}

// toZap 按 key 排序，保证输出字段顺序稳定。
func toZap(fields map[string]interface{}) []zap.Field {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		out = append(out, zap.Any(k, fields[k]))
	}
	return out
}
