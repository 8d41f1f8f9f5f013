package risk

import "errors"

var (
	// ErrInvalidAlpha 置信水平必须在 (0, 1) 内。
	ErrInvalidAlpha = errors.New("risk: alpha must be in (0, 1)")
)
