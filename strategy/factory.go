package strategy

import (
	"fmt"
	"sort"

	"regime-switcher/regime"
)

// PlaybookType 已注册的策略名。
type PlaybookType string

const (
	TrendFollowing PlaybookType = "trend"
	MeanReversion  PlaybookType = "mean_reversion"
)

var playbooks = map[PlaybookType]func() Playbook{
	TrendFollowing: func() Playbook { return trendPlaybook{} },
	MeanReversion:  func() Playbook { return meanReversionPlaybook{} },
}

// NewPlaybook creates a playbook by name.
func NewPlaybook(name string) (Playbook, error) {
	ctor, ok := playbooks[PlaybookType(name)]
	if !ok {
		return nil, fmt.Errorf("unknown playbook: %s", name)
	}
	return ctor(), nil
}

// Playbooks lists the registered playbook names in sorted order.
func Playbooks() []string {
	out := make([]string, 0, len(playbooks))
	for name := range playbooks {
		out = append(out, string(name))
	}
	sort.Strings(out)
	return out
}

// Routing 标签到策略的映射。未列出的标签按 chop 处理。
type Routing map[regime.Label]PlaybookType

// DefaultRouting trend 用趋势跟随，其余用均值回归。
func DefaultRouting() Routing {
	return Routing{
		regime.Trend:   TrendFollowing,
		regime.Chop:    MeanReversion,
		regime.RiskOff: MeanReversion,
	}
}

// Validate 检查所有映射的策略都已注册，且 chop 有对应策略。
func (r Routing) Validate() error {
	if _, ok := r[regime.Chop]; !ok {
		return fmt.Errorf("routing has no playbook for %s", regime.Chop)
	}
	for label, name := range r {
		if !label.Valid() {
			return fmt.Errorf("routing: unknown label %q", label)
		}
		if _, ok := playbooks[name]; !ok {
			return fmt.Errorf("routing: label %s uses unknown playbook %s", label, name)
		}
	}
	return nil
}

func (r Routing) playbookFor(label regime.Label) PlaybookType {
	if name, ok := r[label]; ok {
		return name
	}
	return r[regime.Chop]
}
