package market

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Column 列名。
type Column string

const (
	ColOpen    Column = "open"
	ColHigh    Column = "high"
	ColLow     Column = "low"
	ColClose   Column = "close"
	ColVolume  Column = "volume"
	ColRet     Column = "ret"
	ColLogRet  Column = "log_ret"
	ColATR     Column = "atr"
	ColRV      Column = "rv"
	ColEntropy Column = "entropy"
)

// OHLCV 输入表必须具备的列。
var OHLCV = []Column{ColOpen, ColHigh, ColLow, ColClose, ColVolume}

// Frame 是按时间索引的只读列式表。NaN 表示该位置未定义。
// 所有变换都返回新的 Frame，不修改接收者。
type Frame struct {
	index []time.Time
	cols  map[Column][]float64
}

// NewFrame builds a frame from an index and columns. Every column must have
// the same length as the index.
func NewFrame(index []time.Time, cols map[Column][]float64) (*Frame, error) {
	f := &Frame{
		index: append([]time.Time(nil), index...),
		cols:  make(map[Column][]float64, len(cols)),
	}
	for name, values := range cols {
		if len(values) != len(index) {
			return nil, fmt.Errorf("column %s has %d values, index has %d", name, len(values), len(index))
		}
		f.cols[name] = append([]float64(nil), values...)
	}
	return f, nil
}

func (f *Frame) Len() int { return len(f.index) }

// Index returns a copy of the time index.
func (f *Frame) Index() []time.Time {
	return append([]time.Time(nil), f.index...)
}

func (f *Frame) Time(i int) time.Time { return f.index[i] }

func (f *Frame) Has(col Column) bool {
	_, ok := f.cols[col]
	return ok
}

// Columns returns the column names in sorted order.
func (f *Frame) Columns() []Column {
	out := make([]Column, 0, len(f.cols))
	for c := range f.cols {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Column returns a copy of the column values.
func (f *Frame) Column(col Column) ([]float64, bool) {
	v, ok := f.cols[col]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), v...), true
}

// Value returns a single cell, NaN if the column is absent.
func (f *Frame) Value(col Column, i int) float64 {
	v, ok := f.cols[col]
	if !ok {
		return math.NaN()
	}
	return v[i]
}

// Require 前置条件检查：缺任何列都返回 *MissingColumnError。
func (f *Frame) Require(cols ...Column) error {
	var missing []Column
	for _, c := range cols {
		if !f.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &MissingColumnError{Columns: missing}
	}
	return nil
}

// WithColumn returns a new frame with col set to values.
func (f *Frame) WithColumn(col Column, values []float64) (*Frame, error) {
	if len(values) != len(f.index) {
		return nil, fmt.Errorf("column %s has %d values, index has %d", col, len(values), len(f.index))
	}
	out := f.shallow()
	out.cols[col] = append([]float64(nil), values...)
	return out, nil
}

// Tail 保留最后 n 行；n 大于行数时返回全部。
func (f *Frame) Tail(n int) *Frame {
	if n >= len(f.index) {
		return f.slice(0, len(f.index))
	}
	if n < 0 {
		n = 0
	}
	return f.slice(len(f.index)-n, len(f.index))
}

// DropUndefined 删除任一列为 NaN 的行。
func (f *Frame) DropUndefined() *Frame {
	keep := make([]int, 0, len(f.index))
	for i := range f.index {
		ok := true
		for _, v := range f.cols {
			if math.IsNaN(v[i]) {
				ok = false
				break
			}
		}
		if ok {
			keep = append(keep, i)
		}
	}
	out := &Frame{
		index: make([]time.Time, len(keep)),
		cols:  make(map[Column][]float64, len(f.cols)),
	}
	for j, i := range keep {
		out.index[j] = f.index[i]
	}
	for name, v := range f.cols {
		col := make([]float64, len(keep))
		for j, i := range keep {
			col[j] = v[i]
		}
		out.cols[name] = col
	}
	return out
}

func (f *Frame) slice(from, to int) *Frame {
	out := &Frame{
		index: append([]time.Time(nil), f.index[from:to]...),
		cols:  make(map[Column][]float64, len(f.cols)),
	}
	for name, v := range f.cols {
		out.cols[name] = append([]float64(nil), v[from:to]...)
	}
	return out
}

// shallow copies the column map but shares column storage; callers only add
// or replace whole columns.
func (f *Frame) shallow() *Frame {
	out := &Frame{index: f.index, cols: make(map[Column][]float64, len(f.cols)+1)}
	for name, v := range f.cols {
		out.cols[name] = v
	}
	return out
}
