// Package strategy computes candidate position signals and routes between
// them according to the regime label at each timestamp.
package strategy

import (
	"regime-switcher/market"
	"regime-switcher/regime"
)

// Route 在 frame 的完整索引上计算各策略信号，再按每个时间点的标签选用其一。
// 标签缺失的时间点按 chop 处理。输出索引与 frame 完全一致。
func Route(frame *market.Frame, labels regime.Labels) (market.Series, error) {
	return RouteWith(frame, labels, DefaultRouting())
}

// RouteWith is Route with a caller-supplied routing table.
func RouteWith(frame *market.Frame, labels regime.Labels, routing Routing) (market.Series, error) {
	if err := routing.Validate(); err != nil {
		return market.Series{}, err
	}
	c, err := closes(frame)
	if err != nil {
		return market.Series{}, err
	}

	signals := make(map[PlaybookType][]float64, len(playbooks))
	for _, name := range routing {
		if _, ok := signals[name]; ok {
			continue
		}
		pb, err := NewPlaybook(string(name))
		if err != nil {
			return market.Series{}, err
		}
		signals[name] = pb.Signal(c)
	}

	lookup := labels.Lookup()
	index := frame.Index()
	positions := make([]float64, len(index))
	for i, t := range index {
		label, ok := lookup[t.UnixNano()]
		if !ok {
			label = regime.Chop
		}
		positions[i] = signals[routing.playbookFor(label)][i]
	}
	return market.Series{Index: index, Values: positions}, nil
}
