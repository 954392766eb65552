package domain

import (
	"math"

	"github.com/shopspring/decimal"
)

// BlackScholesInput Black-Scholes 模型输入
type BlackScholesInput struct {
	S float64 // 标的资产价格
	K float64 // 执行价格
	T float64 // 到期时间 (年)
	R float64 // 无风险利率
	Q float64 // 连续股息率
	V float64 // 波动率
}

// BlackScholesResult Black-Scholes 模型输出
type BlackScholesResult struct {
	Price decimal.Decimal
	Greeks
}

// Validate 校验输入；T <= 0 视为已到期，不报错
func (in BlackScholesInput) Validate() error {
	switch {
	case !(in.S > 0):
		return ErrNonPositiveSpot
	case !(in.K > 0):
		return ErrNonPositiveStrike
	case in.V < 0 || math.IsNaN(in.V):
		return ErrNegativeVolatility
	case math.IsNaN(in.T) || math.IsNaN(in.R) || math.IsNaN(in.Q):
		return ErrInvalidArgument
	}
	return nil
}

// CalculateBlackScholes 计算欧式期权 Black-Scholes-Merton 价格和 Greeks。
// 到期或零波动率时退化为（远期）内在价值，Greeks 为零。
func CalculateBlackScholes(optionType OptionType, input BlackScholesInput) *BlackScholesResult {
	isCall := optionType.IsCall()
	if input.T <= 0 {
		return &BlackScholesResult{Price: decimal.NewFromFloat(Payoff(input.S, input.K, isCall))}
	}
	dq := math.Exp(-input.Q * input.T)
	dr := math.Exp(-input.R * input.T)
	if input.V <= 0 {
		return &BlackScholesResult{Price: decimal.NewFromFloat(Payoff(input.S*dq, input.K*dr, isCall))}
	}

	sqrtT := math.Sqrt(input.T)
	d1 := (math.Log(input.S/input.K) + (input.R-input.Q+0.5*input.V*input.V)*input.T) / (input.V * sqrtT)
	d2 := d1 - input.V*sqrtT

	var price, delta, theta, rho float64
	gamma := dq * normPdf(d1) / (input.S * input.V * sqrtT)
	vega := input.S * dq * normPdf(d1) * sqrtT
	decay := -input.S * dq * normPdf(d1) * input.V / (2 * sqrtT)

	if isCall {
		price = input.S*dq*normCdf(d1) - input.K*dr*normCdf(d2)
		delta = dq * normCdf(d1)
		theta = decay - input.R*input.K*dr*normCdf(d2) + input.Q*input.S*dq*normCdf(d1)
		rho = input.K * input.T * dr * normCdf(d2)
	} else {
		price = input.K*dr*normCdf(-d2) - input.S*dq*normCdf(-d1)
		delta = dq * (normCdf(d1) - 1)
		theta = decay + input.R*input.K*dr*normCdf(-d2) - input.Q*input.S*dq*normCdf(-d1)
		rho = -input.K * input.T * dr * normCdf(-d2)
	}

	return &BlackScholesResult{
		Price: decimal.NewFromFloat(price),
		Greeks: Greeks{
			Delta: decimal.NewFromFloat(delta),
			Gamma: decimal.NewFromFloat(gamma),
			Theta: decimal.NewFromFloat(theta),
			Vega:  decimal.NewFromFloat(vega),
			Rho:   decimal.NewFromFloat(rho),
		},
	}
}

// normCdf 标准正态分布累积分布函数
func normCdf(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// normPdf 标准正态分布概率密度函数
func normPdf(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}
