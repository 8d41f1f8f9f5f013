package risk

import (
	"sort"

	"regime-switcher/backtest"
	"regime-switcher/regime"
)

// RegimePnL 某一标签下净收益的汇总。
type RegimePnL struct {
	Label regime.Label
	Mean  float64
	Sum   float64
	Count int
}

// Attribute joins each backtest row to the label at its timestamp and
// aggregates net return per label. Rows without a label are skipped and
// labels without rows are absent. Output is sorted by label name.
func Attribute(rows []backtest.Row, labels regime.Labels) []RegimePnL {
	lookup := labels.Lookup()
	groups := make(map[regime.Label]*RegimePnL)
	for _, row := range rows {
		label, ok := lookup[row.Time.UnixNano()]
		if !ok {
			continue
		}
		g, ok := groups[label]
		if !ok {
			g = &RegimePnL{Label: label}
			groups[label] = g
		}
		g.Sum += row.Net
		g.Count++
	}

	out := make([]RegimePnL, 0, len(groups))
	for _, g := range groups {
		g.Mean = g.Sum / float64(g.Count)
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}
