package domain

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ci95Z 双侧 95% 置信区间对应的标准正态分位数
var ci95Z = distuv.UnitNormal.Quantile(0.975)

// MCEstimate 蒙特卡洛估计量：均值、标准误与 95% 置信区间
type MCEstimate struct {
	Price   float64 `json:"price"`
	StdErr  float64 `json:"std_err"`
	CILower float64 `json:"ci_lower"`
	CIUpper float64 `json:"ci_upper"`
	Samples int     `json:"samples"`
}

// Summarize 对已折现的样本计算估计量，标准差使用 n-1 无偏形式。
func Summarize(samples []float64) MCEstimate {
	n := len(samples)
	if n == 0 {
		return MCEstimate{}
	}
	var mean, se float64
	if n == 1 {
		mean = samples[0]
	} else {
		var sd float64
		mean, sd = stat.MeanStdDev(samples, nil)
		se = sd / math.Sqrt(float64(n))
	}
	return MCEstimate{
		Price:   mean,
		StdErr:  se,
		CILower: mean - ci95Z*se,
		CIUpper: mean + ci95Z*se,
		Samples: n,
	}
}

// SummarizeDiscounted 将到期收益按 exp(-rT) 折现后汇总。
func SummarizeDiscounted(payoffs []float64, rate, maturity float64) MCEstimate {
	df := math.Exp(-rate * maturity)
	discounted := make([]float64, len(payoffs))
	for i, v := range payoffs {
		discounted[i] = df * v
	}
	return Summarize(discounted)
}

// EuropeanPayoffs 取网格最后一列计算到期收益。
func EuropeanPayoffs(grid *PathGrid, strike float64, isCall bool) []float64 {
	out := grid.Column(grid.Steps(), make([]float64, 0, grid.Paths()))
	for i, s := range out {
		out[i] = Payoff(s, strike, isCall)
	}
	return out
}
