package alert

import (
	"fmt"
	"sync"
	"time"
)

// Snapshot 一次运行结束时单个 ticker 的状态，由调用方从报告中提取。
type Snapshot struct {
	Ticker      string
	Regime      string
	At          time.Time
	MaxDrawdown float64
}

// Rules 比较相邻两次运行的快照，产生状态切换与回撤告警。
type Rules struct {
	mu sync.Mutex
	// maxDrawdown 回撤下限（负数），低于它发 CRITICAL；0 表示不检查
	maxDrawdown float64
	last        map[string]Snapshot
}

// NewRules creates rules with the given drawdown floor.
func NewRules(maxDrawdown float64) *Rules {
	return &Rules{maxDrawdown: maxDrawdown, last: make(map[string]Snapshot)}
}

// SetMaxDrawdown 热更新回撤下限，保留已记录的快照。
func (r *Rules) SetMaxDrawdown(v float64) {
	r.mu.Lock()
	r.maxDrawdown = v
	r.mu.Unlock()
}

// Evaluate 记录 s 并返回需要发送的告警。首次出现的 ticker 不产生切换告警。
func (r *Rules) Evaluate(s Snapshot) []Alert {
	r.mu.Lock()
	prev, seen := r.last[s.Ticker]
	r.last[s.Ticker] = s
	floor := r.maxDrawdown
	r.mu.Unlock()

	var out []Alert
	if seen && prev.Regime != s.Regime && s.Regime != "" {
		level := LevelInfo
		if s.Regime == "risk_off" {
			level = LevelWarning
		}
		out = append(out, Alert{
			Level:   level,
			Ticker:  s.Ticker,
			Message: fmt.Sprintf("regime %s -> %s", prev.Regime, s.Regime),
			Fields: map[string]interface{}{
				"from": prev.Regime,
				"to":   s.Regime,
				"at":   s.At.UTC().Format(time.RFC3339),
			},
		})
	}
	if floor < 0 && s.MaxDrawdown < floor {
		out = append(out, Alert{
			Level:   LevelCritical,
			Ticker:  s.Ticker,
			Message: "max drawdown breached",
			Fields: map[string]interface{}{
				"max_drawdown": s.MaxDrawdown,
				"limit":        floor,
			},
		})
	}
	return out
}
