// Package domain 期权定价服务的领域模型：价格网格、LSM 逆向归纳、参考模型与定价结果实体。
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PricingModel 定价模型
type PricingModel string

const (
	PricingModelLSM          PricingModel = "LongstaffSchwartz" // 最小二乘蒙特卡洛（美式）
	PricingModelBlackScholes PricingModel = "BlackScholes"      // 解析解（欧式）
	PricingModelBinomial     PricingModel = "Binomial"          // CRR 二叉树（美式）
)

// ParsePricingModel 空字符串取默认 LSM
func ParsePricingModel(s string) (PricingModel, error) {
	switch PricingModel(s) {
	case "", PricingModelLSM:
		return PricingModelLSM, nil
	case PricingModelBlackScholes, PricingModelBinomial:
		return PricingModel(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPricingModel, s)
	}
}

// Greeks 希腊字母
type Greeks struct {
	Delta decimal.Decimal `json:"delta"`
	Gamma decimal.Decimal `json:"gamma"`
	Theta decimal.Decimal `json:"theta"`
	Vega  decimal.Decimal `json:"vega"`
	Rho   decimal.Decimal `json:"rho"`
}

// PricingResult 定价结果实体
type PricingResult struct {
	ID              uint            `json:"id"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Symbol          string          `json:"symbol"`
	OptionType      OptionType      `json:"option_type"`
	StrikePrice     decimal.Decimal `json:"strike_price"`
	Maturity        float64         `json:"maturity"`
	OptionPrice     decimal.Decimal `json:"option_price"`
	UnderlyingPrice decimal.Decimal `json:"underlying_price"`
	StdError        decimal.Decimal `json:"std_error"`
	Greeks
	Paths        int          `json:"paths"`
	Steps        int          `json:"steps"`
	Degree       int          `json:"degree"`
	CalculatedAt int64        `json:"calculated_at"`
	PricingModel PricingModel `json:"pricing_model"`
}
