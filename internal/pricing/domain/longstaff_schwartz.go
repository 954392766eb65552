package domain

import (
	"context"
	"math"
)

// DefaultRegressionDegree 默认回归多项式阶数
const DefaultRegressionDegree = 2

// LSMParams 美式期权在给定价格网格上的定价参数
type LSMParams struct {
	Strike   float64 // 行权价
	Rate     float64 // 连续复利无风险利率
	Maturity float64 // 到期时间 (年)
	IsCall   bool
	Degree   int // 回归多项式阶数
}

// Validate 校验定价参数，网格本身的校验由 PathGrid 负责。
func (p LSMParams) Validate() error {
	if !(p.Maturity > 0) {
		return ErrNonPositiveMaturity
	}
	if p.Degree < 0 {
		return ErrNegativeDegree
	}
	return nil
}

// StepReport 单个行权日的回归诊断
type StepReport struct {
	Step         int       `json:"step"`
	InTheMoney   int       `json:"in_the_money"`
	Regressed    bool      `json:"regressed"`
	Exercised    int       `json:"exercised"`
	Coefficients []float64 `json:"coefficients,omitempty"`
}

// LSMResult 定价结果及逐路径、逐步诊断信息
type LSMResult struct {
	Price    float64    `json:"price"`
	Estimate MCEstimate `json:"estimate"`
	// Cashflows 每条路径折现到 t=0 的现金流
	Cashflows []float64 `json:"cashflows,omitempty"`
	// ExerciseSteps 每条路径的行权步，n_steps 表示持有到期
	ExerciseSteps []int `json:"exercise_steps,omitempty"`
	// Reports 按 t = n_steps-1 ... 1 的顺序排列
	Reports []StepReport `json:"reports,omitempty"`
	Paths   int          `json:"paths"`
	Steps   int          `json:"steps"`
}

// PriceAmericanOption 在预生成的价格网格上用 Longstaff-Schwartz 算法为美式期权定价。
func PriceAmericanOption(grid *PathGrid, params LSMParams) (float64, error) {
	res, err := RunLSM(grid, params)
	if err != nil {
		return 0, err
	}
	return res.Price, nil
}

// RunLSM 与 PriceAmericanOption 相同，但返回完整诊断。
func RunLSM(grid *PathGrid, params LSMParams) (*LSMResult, error) {
	return RunLSMContext(context.Background(), grid, params)
}

// RunLSMContext 逆向归纳，每个时间步检查一次 ctx。
func RunLSMContext(ctx context.Context, grid *PathGrid, params LSMParams) (*LSMResult, error) {
	if err := grid.validate(); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	nPaths, nSteps := grid.Paths(), grid.Steps()
	dt := params.Maturity / float64(nSteps)
	disc := math.Exp(-params.Rate * dt)

	cashflows := make([]float64, nPaths)
	exercise := make([]int, nPaths)
	for i := range cashflows {
		cashflows[i] = Payoff(grid.At(i, nSteps), params.Strike, params.IsCall)
		exercise[i] = nSteps
	}

	reports := make([]StepReport, 0, nSteps)
	var (
		itm    []int
		xs, ys []float64
	)
	for t := nSteps - 1; t >= 1; t-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range cashflows {
			cashflows[i] *= disc
		}

		itm = InTheMoney(grid, t, params.Strike, params.IsCall, itm)
		report := StepReport{Step: t, InTheMoney: len(itm)}

		xs, ys = xs[:0], ys[:0]
		for _, i := range itm {
			xs = append(xs, grid.At(i, t))
			ys = append(ys, cashflows[i])
		}

		// 样本不足或回归退化时本步不行权
		if model, ok := FitContinuation(xs, ys, params.Degree); ok {
			report.Regressed = true
			report.Coefficients = model.Coefficients
			for j, i := range itm {
				imm := Payoff(xs[j], params.Strike, params.IsCall)
				if imm > model.Evaluate(xs[j]) {
					cashflows[i] = imm
					exercise[i] = t
					report.Exercised++
				}
			}
		}
		reports = append(reports, report)
	}

	for i := range cashflows {
		cashflows[i] *= disc
	}

	est := Summarize(cashflows)
	return &LSMResult{
		Price:         est.Price,
		Estimate:      est,
		Cashflows:     cashflows,
		ExerciseSteps: exercise,
		Reports:       reports,
		Paths:         nPaths,
		Steps:         nSteps,
	}, nil
}

// SkippedRegressions 统计因样本不足或回归退化未做回归的步数
func (r *LSMResult) SkippedRegressions() int {
	n := 0
	for _, rep := range r.Reports {
		if !rep.Regressed {
			n++
		}
	}
	return n
}

// AmericanOptionParams 定义美国期权合约参数，路径由 GBM 模拟生成
type AmericanOptionParams struct {
	S0     float64
	K      float64
	T      float64
	R      float64
	Q      float64 // 连续股息率
	Sigma  float64
	IsPut  bool
	Paths  int
	Steps  int
	Degree int
	Seed   uint64
}

// LSMPricer 实现了 Longstaff-Schwartz (LSM) 算法：先模拟路径，再在网格上逆向归纳
type LSMPricer struct {
	workers int
}

// NewLSMPricer workers 为路径模拟并发度，<=0 时取 GOMAXPROCS
func NewLSMPricer(workers int) *LSMPricer {
	return &LSMPricer{workers: workers}
}

// Price 计算美国期权的当前公允价值
func (p *LSMPricer) Price(ctx context.Context, params AmericanOptionParams) (*LSMResult, error) {
	if !(params.K > 0) {
		return nil, ErrNonPositiveStrike
	}
	grid, err := SimulateGBMPaths(ctx, GBMParams{
		S0:    params.S0,
		R:     params.R,
		Q:     params.Q,
		Sigma: params.Sigma,
		T:     params.T,
		Steps: params.Steps,
		Paths: params.Paths,
		Seed:  params.Seed,
	}, p.workers)
	if err != nil {
		return nil, err
	}
	return RunLSMContext(ctx, grid, LSMParams{
		Strike:   params.K,
		Rate:     params.R,
		Maturity: params.T,
		IsCall:   !params.IsPut,
		Degree:   params.Degree,
	})
}
