package regime

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"regime-switcher/features"
	"regime-switcher/market"
)

// Label 语义化的市场状态。
type Label string

const (
	Trend   Label = "trend"
	Chop    Label = "chop"
	RiskOff Label = "risk_off"
)

// MinLabelRows 低于该行数时不做统计，全部标为 chop。
const MinLabelRows = 10

func (l Label) Valid() bool {
	switch l {
	case Trend, Chop, RiskOff:
		return true
	}
	return false
}

// Labels is a label per timestamp.
type Labels struct {
	Index  []time.Time
	Values []Label
}

func (l Labels) Len() int { return len(l.Index) }

// At returns the label at t.
func (l Labels) At(t time.Time) (Label, bool) {
	i := sort.Search(len(l.Index), func(i int) bool { return !l.Index[i].Before(t) })
	if i < len(l.Index) && l.Index[i].Equal(t) {
		return l.Values[i], true
	}
	return "", false
}

// Lookup 构建时间戳到标签的映射，供批量对齐使用。
func (l Labels) Lookup() map[int64]Label {
	out := make(map[int64]Label, len(l.Index))
	for i, t := range l.Index {
		out[t.UnixNano()] = l.Values[i]
	}
	return out
}

// Counts returns how many timestamps carry each label.
func (l Labels) Counts() map[Label]int {
	out := make(map[Label]int, 3)
	for _, v := range l.Values {
		out[v]++
	}
	return out
}

// StateSummary 单个隐状态的收益统计及其映射标签。
type StateSummary struct {
	State   int
	MeanRet float64
	Vol     float64
	Count   int
	Label   Label
}

// LabelStates 按各状态平均收益把状态编号映射为标签并广播到时间索引上。
//
// frame 比 states 长时只保留尾部 len(states) 行，这是与上游预热裁剪对齐的兼容处理；
// frame 比 states 短返回 *market.InsufficientDataError。
func LabelStates(frame *market.Frame, states []int) (Labels, error) {
	aligned, ret, err := alignReturns(frame, states)
	if err != nil {
		return Labels{}, err
	}
	index := aligned.Index()
	out := Labels{Index: index, Values: make([]Label, len(index))}
	if len(states) < MinLabelRows {
		for i := range out.Values {
			out.Values[i] = Chop
		}
		return out, nil
	}

	mapping := make(map[int]Label)
	for _, s := range summarize(ret, states) {
		mapping[s.State] = s.Label
	}
	for i, s := range states {
		out.Values[i] = mapping[s]
	}
	return out, nil
}

// Mapping returns per-state return statistics ordered by mean return. When
// there are fewer than MinLabelRows aligned rows every state maps to chop.
func Mapping(frame *market.Frame, states []int) ([]StateSummary, error) {
	_, ret, err := alignReturns(frame, states)
	if err != nil {
		return nil, err
	}
	out := summarize(ret, states)
	if len(states) < MinLabelRows {
		for i := range out {
			out[i].Label = Chop
		}
	}
	return out, nil
}

func alignReturns(frame *market.Frame, states []int) (*market.Frame, []float64, error) {
	var ret []float64
	if r, ok := frame.Column(market.ColRet); ok {
		ret = r
	} else if c, ok := frame.Column(market.ColClose); ok {
		ret = features.PctChange(c)
	} else {
		return nil, nil, &market.MissingColumnError{Columns: []market.Column{market.ColRet, market.ColClose}}
	}
	if frame.Len() < len(states) {
		return nil, nil, &market.InsufficientDataError{What: "feature rows", Need: len(states), Got: frame.Len()}
	}
	offset := frame.Len() - len(states)
	return frame.Tail(len(states)), ret[offset:], nil
}

func summarize(ret []float64, states []int) []StateSummary {
	groups := make(map[int][]float64)
	counts := make(map[int]int)
	for i, s := range states {
		counts[s]++
		if !math.IsNaN(ret[i]) {
			groups[s] = append(groups[s], ret[i])
		}
	}
	out := make([]StateSummary, 0, len(counts))
	for s, n := range counts {
		sum := StateSummary{State: s, Count: n, MeanRet: math.NaN(), Vol: math.NaN()}
		if g := groups[s]; len(g) > 0 {
			sum.MeanRet = stat.Mean(g, nil)
			if len(g) > 1 {
				sum.Vol = stat.StdDev(g, nil)
			}
		}
		out = append(out, sum)
	}
	// 先按状态编号排，再稳定排序均值，并列时保留编号顺序；NaN 排最后
	sort.Slice(out, func(i, j int) bool { return out[i].State < out[j].State })
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].MeanRet, out[j].MeanRet
		if math.IsNaN(b) {
			return !math.IsNaN(a)
		}
		return a < b
	})

	for i := range out {
		switch {
		case len(out) == 1:
			out[i].Label = Chop
		case i == 0:
			out[i].Label = RiskOff
		case i == len(out)-1:
			out[i].Label = Trend
		default:
			out[i].Label = Chop
		}
	}
	return out
}

// Segment is a maximal run of consecutive timestamps with the same label.
type Segment struct {
	Label Label
	Start time.Time
	End   time.Time
	Bars  int
}

// Segments 把标签序列压缩成连续区间，用于报告里的状态时间轴。
func Segments(labels Labels) []Segment {
	var out []Segment
	for i, v := range labels.Values {
		t := labels.Index[i]
		if n := len(out); n > 0 && out[n-1].Label == v {
			out[n-1].End = t
			out[n-1].Bars++
			continue
		}
		out = append(out, Segment{Label: v, Start: t, End: t, Bars: 1})
	}
	return out
}
