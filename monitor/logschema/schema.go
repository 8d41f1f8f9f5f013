package logschema

import (
	"fmt"
	"sort"
	"strings"
)

// Schema 定义每个日志事件所需的关键字段，便于集中校验。
type Schema struct {
	Event    string
	Required []string
}

const (
	StageComplete = "stage_complete"
	RunComplete   = "run_complete"
	RunFailed     = "run_failed"
	ConfigReload  = "config_reload"
)

var schemas = map[string]Schema{
	StageComplete: {
		Event:    StageComplete,
		Required: []string{"run_id", "ticker", "stage", "elapsed_ms"},
	},
	RunComplete: {
		Event:    RunComplete,
		Required: []string{"run_id", "ticker", "rows", "sharpe", "max_drawdown"},
	},
	RunFailed: {
		Event:    RunFailed,
		Required: []string{"run_id", "ticker", "stage"},
	},
	ConfigReload: {
		Event:    ConfigReload,
		Required: []string{"path", "tickers"},
	},
}

// Known 返回所有事件名，便于外部生成文档。
func Known() []string {
	names := make([]string, 0, len(schemas))
	for k := range schemas {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the schema for event.
func Lookup(event string) (Schema, bool) {
	s, ok := schemas[event]
	return s, ok
}

// Validate 检查日志字段是否包含 schema 中要求的 key。未登记的事件不做校验。
func Validate(event string, fields map[string]interface{}) error {
	s, ok := schemas[event]
	if !ok {
		return nil
	}
	var missing []string
	for _, key := range s.Required {
		if _, exists := fields[key]; !exists {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: missing fields: %s", event, strings.Join(missing, ","))
	}
	return nil
}
