package market

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrMissingColumn    = errors.New("missing column")
	ErrInvalidBars      = errors.New("invalid bars")
)

// InsufficientDataError 数据行数低于计算所需的最小值。
type InsufficientDataError struct {
	What string
	Need int
	Got  int
}

func (e *InsufficientDataError) Error() string {
	what := e.What
	if what == "" {
		what = "rows"
	}
	return fmt.Sprintf("insufficient data: need at least %d %s, got %d", e.Need, what, e.Got)
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

// MissingColumnError 输入表缺少必需的列。
type MissingColumnError struct {
	Columns []Column
}

func (e *MissingColumnError) Error() string {
	names := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		names[i] = string(c)
	}
	return "missing column: " + strings.Join(names, ",")
}

func (e *MissingColumnError) Is(target error) bool { return target == ErrMissingColumn }

// UnsortedIndexError 时间戳重复或乱序。
type UnsortedIndexError struct {
	Index int
	Prev  time.Time
	Cur   time.Time
}

func (e *UnsortedIndexError) Error() string {
	if e.Cur.Equal(e.Prev) {
		return fmt.Sprintf("invalid bars: duplicate timestamp %s at row %d", e.Cur.Format(time.RFC3339), e.Index)
	}
	return fmt.Sprintf("invalid bars: timestamp %s at row %d is before %s", e.Cur.Format(time.RFC3339), e.Index, e.Prev.Format(time.RFC3339))
}

func (e *UnsortedIndexError) Is(target error) bool { return target == ErrInvalidBars }
