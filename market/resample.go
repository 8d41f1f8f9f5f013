package market

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseInterval 解析 "1d"、"1h"、"15m"、"1wk" 形式的周期。
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	units := []struct {
		suffix string
		unit   time.Duration
	}{
		{"wk", 7 * 24 * time.Hour},
		{"d", 24 * time.Hour},
		{"h", time.Hour},
		{"m", time.Minute},
	}
	for _, u := range units {
		if !strings.HasSuffix(s, u.suffix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(s, u.suffix))
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid interval %q", s)
		}
		return time.Duration(n) * u.unit, nil
	}
	return 0, fmt.Errorf("invalid interval %q", s)
}

// Resample 把较细周期的 K 线合并为 interval 周期（UTC 对齐）。
// 桶内 open 取第一根，close 取最后一根，high/low 取极值，volume 求和。
func Resample(bars Bars, interval time.Duration) Bars {
	if interval <= 0 || len(bars) == 0 {
		return append(Bars(nil), bars...)
	}
	out := make(Bars, 0, len(bars))
	var current *Bar
	for _, b := range bars {
		bucket := b.Time.UTC().Truncate(interval)
		if current == nil || !bucket.Equal(current.Time) {
			if current != nil {
				out = append(out, *current)
			}
			current = &Bar{
				Time:   bucket,
				Open:   b.Open,
				High:   b.High,
				Low:    b.Low,
				Close:  b.Close,
				Volume: b.Volume,
			}
			continue
		}
		if b.High > current.High {
			current.High = b.High
		}
		if b.Low < current.Low {
			current.Low = b.Low
		}
		current.Close = b.Close
		current.Volume += b.Volume
	}
	out = append(out, *current)
	return out
}

// Lookback keeps the bars within the trailing number of years, measured
// from the last bar.
func Lookback(bars Bars, years int) Bars {
	if years <= 0 || len(bars) == 0 {
		return append(Bars(nil), bars...)
	}
	cutoff := bars[len(bars)-1].Time.AddDate(-years, 0, 0)
	for i, b := range bars {
		if !b.Time.Before(cutoff) {
			return append(Bars(nil), bars[i:]...)
		}
	}
	return nil
}
