package application

import (
	"time"

	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
)

// Defaults 命令缺省参数与资源上限
type Defaults struct {
	// Degree 为 nil 时使用 domain.DefaultRegressionDegree，0 表示常数延续值
	Degree           *int
	Paths            int
	Steps            int
	Seed             uint64
	Workers          int
	MaxGridCells     int
	MaxTreeSteps     int
	BatchConcurrency int
	HistoryLimit     int
}

// PriceGridCommand 在调用方提供的价格网格上做 LSM 定价
type PriceGridCommand struct {
	Symbol     string
	OptionType string
	Grid       *domain.PathGrid
	Strike     float64
	Rate       float64
	Maturity   float64
	// Degree 为 nil 时使用默认阶数
	Degree *int
	// Diagnostics 为 true 时返回逐步回归报告
	Diagnostics bool
}

// PriceOptionCommand 期权定价命令
type PriceOptionCommand struct {
	Symbol      string  `json:"symbol"`
	OptionType  string  `json:"option_type"`
	StrikePrice float64 `json:"strike_price"`
	// Maturity 到期年限；为 0 时由 ExpiryDate (毫秒时间戳) 推算
	Maturity        float64 `json:"maturity"`
	ExpiryDate      int64   `json:"expiry_date"`
	UnderlyingPrice float64 `json:"underlying_price"`
	Volatility      float64 `json:"volatility"`
	RiskFreeRate    float64 `json:"risk_free_rate"`
	DividendYield   float64 `json:"dividend_yield"`
	PricingModel    string  `json:"pricing_model"`
	// 以下仅对 LSM / 二叉树生效，零值取默认
	Paths  int     `json:"paths"`
	Steps  int     `json:"steps"`
	Degree *int    `json:"degree,omitempty"`
	Seed   *uint64 `json:"seed,omitempty"`
}

// BatchPriceOptionsCommand 批量定价命令
type BatchPriceOptionsCommand struct {
	Contracts []PriceOptionCommand
	BatchID   string
}

// PriceGridOutcome 网格定价结果
type PriceGridOutcome struct {
	Result             *domain.PricingResult `json:"result"`
	Estimate           domain.MCEstimate     `json:"estimate"`
	SkippedRegressions int                   `json:"skipped_regressions"`
	Reports            []domain.StepReport   `json:"reports,omitempty"`
}

// BatchFailure 批量定价中失败的合约
type BatchFailure struct {
	Index  int    `json:"index"`
	Symbol string `json:"symbol"`
	Error  string `json:"error"`
}

// BatchPricingResult 批量定价结果，Results 与成功合约的输入顺序一致
type BatchPricingResult struct {
	BatchID      string                  `json:"batch_id"`
	Results      []*domain.PricingResult `json:"results"`
	Failures     []BatchFailure          `json:"failures,omitempty"`
	SuccessCount int                     `json:"success_count"`
	FailureCount int                     `json:"failure_count"`
	AverageTime  float64                 `json:"average_time"`
}

// HistoryQuery 历史结果查询
type HistoryQuery struct {
	Symbol   string
	Page     int
	PageSize int
}

const millisPerYear = float64(365 * 24 * time.Hour / time.Millisecond)

// yearsUntil 把毫秒时间戳换算成距 now 的年数，已过期返回 0
func yearsUntil(expiryMillis int64, now time.Time) float64 {
	t := float64(expiryMillis-now.UnixMilli()) / millisPerYear
	return max(t, 0)
}
