package market

import (
	"fmt"
	"time"
)

// Series is a float column keyed by timestamp.
type Series struct {
	Index  []time.Time
	Values []float64
}

// NewSeries copies index and values into a new series.
func NewSeries(index []time.Time, values []float64) (Series, error) {
	if len(index) != len(values) {
		return Series{}, fmt.Errorf("series has %d values, index has %d", len(values), len(index))
	}
	return Series{
		Index:  append([]time.Time(nil), index...),
		Values: append([]float64(nil), values...),
	}, nil
}

func (s Series) Len() int { return len(s.Index) }

// Reindex 把序列对齐到新的索引，缺失位置填 fill。
func (s Series) Reindex(index []time.Time, fill float64) Series {
	lookup := make(map[int64]float64, len(s.Index))
	for i, t := range s.Index {
		lookup[t.UnixNano()] = s.Values[i]
	}
	out := Series{
		Index:  append([]time.Time(nil), index...),
		Values: make([]float64, len(index)),
	}
	for i, t := range index {
		if v, ok := lookup[t.UnixNano()]; ok {
			out.Values[i] = v
		} else {
			out.Values[i] = fill
		}
	}
	return out
}
