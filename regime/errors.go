package regime

import "errors"

var (
	// ErrInvalidConfig 拟合参数非法（状态数、协方差类型、迭代参数）。
	ErrInvalidConfig = errors.New("regime: invalid fit config")
	// ErrDimensionMismatch 推断矩阵列数与模型特征维度不一致。
	ErrDimensionMismatch = errors.New("regime: feature dimension mismatch")
	// ErrDegenerateCovariance 协方差矩阵在加抖动后仍不是正定的。
	ErrDegenerateCovariance = errors.New("regime: covariance not positive definite")
)
