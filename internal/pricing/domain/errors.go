package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument 所有输入校验错误的公共类别，可用 errors.Is 统一判断。
var ErrInvalidArgument = errors.New("pricing: invalid argument")

// 价格网格与 LSM 参数校验错误。
var (
	// ErrEmptyGrid 网格为空或为 nil
	ErrEmptyGrid = fmt.Errorf("%w: price grid is empty", ErrInvalidArgument)
	// ErrGridShape 网格不是 n_paths × (n_steps+1) 的矩形，或列数少于 2
	ErrGridShape = fmt.Errorf("%w: price grid must be rectangular with at least 2 columns", ErrInvalidArgument)
	// ErrNonFinitePrice 网格中存在 NaN 或 Inf
	ErrNonFinitePrice = fmt.Errorf("%w: price grid contains non-finite values", ErrInvalidArgument)
	// ErrNonPositivePaths 路径数必须为正
	ErrNonPositivePaths = fmt.Errorf("%w: n_paths must be positive", ErrInvalidArgument)
	// ErrNonPositiveSteps 时间步数必须为正
	ErrNonPositiveSteps = fmt.Errorf("%w: n_steps must be positive", ErrInvalidArgument)
	// ErrNonPositiveMaturity 到期时间必须为正
	ErrNonPositiveMaturity = fmt.Errorf("%w: maturity T must be positive", ErrInvalidArgument)
	// ErrNegativeDegree 回归多项式阶数不能为负
	ErrNegativeDegree = fmt.Errorf("%w: regression degree must be non-negative", ErrInvalidArgument)
)

// 模拟与树模型的参数错误。
var (
	ErrNonPositiveSpot       = fmt.Errorf("%w: spot price must be positive", ErrInvalidArgument)
	ErrNonPositiveStrike     = fmt.Errorf("%w: strike must be positive", ErrInvalidArgument)
	ErrNegativeVolatility    = fmt.Errorf("%w: volatility must be non-negative", ErrInvalidArgument)
	ErrNonPositiveVolatility = fmt.Errorf("%w: volatility must be positive", ErrInvalidArgument)
	ErrArbitrageProbability  = fmt.Errorf("%w: risk-neutral probability outside [0, 1]", ErrInvalidArgument)
	ErrUnknownPricingModel   = fmt.Errorf("%w: unknown pricing model", ErrInvalidArgument)
	ErrUnknownOptionType     = fmt.Errorf("%w: unknown option type", ErrInvalidArgument)
	ErrSymbolRequired        = fmt.Errorf("%w: symbol is required", ErrInvalidArgument)
	ErrGridTooLarge          = fmt.Errorf("%w: price grid exceeds the configured cell limit", ErrInvalidArgument)
	ErrTooManySteps          = fmt.Errorf("%w: binomial tree exceeds the step limit", ErrInvalidArgument)
	ErrEmptyBatch            = fmt.Errorf("%w: batch contains no contracts", ErrInvalidArgument)
	ErrPricingResultNotFound = errors.New("pricing: result not found")
)
