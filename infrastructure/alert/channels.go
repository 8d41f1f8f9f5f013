package alert

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"regime-switcher/infrastructure/logger"
)

// LogChannel 通过结构化日志输出告警
type LogChannel struct {
	logger *logger.Logger
	name   string
}

// NewLogChannel 创建日志告警通道
func NewLogChannel(name string, l *logger.Logger) *LogChannel {
	if l == nil {
		l = logger.NewNop()
	}
	return &LogChannel{logger: l, name: name}
}

// Send 按级别写日志
func (c *LogChannel) Send(alert Alert) error {
	fields := []zap.Field{
		zap.String("level_name", string(alert.Level)),
		zap.String("ticker", alert.Ticker),
		zap.Time("alert_ts", alert.Timestamp),
	}
	for k, v := range alert.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	msg := fmt.Sprintf("[ALERT] %s", alert.Message)
	switch alert.Level {
	case LevelCritical:
		c.logger.Error(msg, fields...)
	case LevelWarning:
		c.logger.Warn(msg, fields...)
	default:
		c.logger.Info(msg, fields...)
	}
	return nil
}

func (c *LogChannel) Name() string { return c.name }

// Recorder 在内存中保存告警，用于测试和最近告警查询
type Recorder struct {
	name string

	mu     sync.Mutex
	alerts []Alert
	err    error
}

func NewRecorder(name string) *Recorder {
	return &Recorder{name: name}
}

func (c *Recorder) Send(alert Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.alerts = append(c.alerts, alert)
	return nil
}

func (c *Recorder) Name() string { return c.name }

// Alerts 返回收到的告警副本
func (c *Recorder) Alerts() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Alert(nil), c.alerts...)
}

// FailWith 让后续 Send 返回 err，传 nil 恢复
func (c *Recorder) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}
