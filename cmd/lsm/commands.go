package main

import (
	"context"
	"time"

	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
	"github.com/wyfcoding/optionpricing/internal/pricing/infrastructure/codec"
	"github.com/wyfcoding/optionpricing/internal/pricing/infrastructure/gridfile"
)

// Report 各子命令的输出
type Report struct {
	Method   string  `json:"method" yaml:"method"`
	Price    float64 `json:"price" yaml:"price"`
	StdErr   float64 `json:"std_err,omitempty" yaml:"std_err,omitempty"`
	CILower  float64 `json:"ci_lower,omitempty" yaml:"ci_lower,omitempty"`
	CIUpper  float64 `json:"ci_upper,omitempty" yaml:"ci_upper,omitempty"`
	Paths    int     `json:"paths,omitempty" yaml:"paths,omitempty"`
	Steps    int     `json:"steps,omitempty" yaml:"steps,omitempty"`
	Degree   int     `json:"degree,omitempty" yaml:"degree,omitempty"`
	Skipped  int     `json:"skipped_regressions,omitempty" yaml:"skipped_regressions,omitempty"`
	European float64 `json:"european,omitempty" yaml:"european,omitempty"`
	// EarlyExercise 美式价格减去同一网格上的欧式估计
	EarlyExercise float64              `json:"early_exercise_premium,omitempty" yaml:"early_exercise_premium,omitempty"`
	Reports       []domain.StepReport `json:"reports,omitempty" yaml:"reports,omitempty"`
	Elapsed       string              `json:"elapsed" yaml:"elapsed"`
}

func (j Job) gbm() domain.GBMParams {
	return domain.GBMParams{
		S0:    j.Spot,
		R:     j.Rate,
		Q:     j.Dividend,
		Sigma: j.Volatility,
		T:     j.Maturity,
		Steps: j.Steps,
		Paths: j.Paths,
		Seed:  j.Seed,
	}
}

func (j Job) optionType() domain.OptionType {
	if j.Put {
		return domain.OptionTypePut
	}
	return domain.OptionTypeCall
}

// loadOrSimulate 有网格文件时读文件，否则按 GBM 模拟
func loadOrSimulate(ctx context.Context, job Job) (*domain.PathGrid, error) {
	if job.Grid != "" {
		return gridfile.Load(job.Grid, 0)
	}
	return domain.SimulateGBMPaths(ctx, job.gbm(), job.Workers)
}

func runPrice(ctx context.Context, job Job, diagnostics bool) (*Report, error) {
	start := time.Now()
	if !(job.Strike > 0) {
		return nil, domain.ErrNonPositiveStrike
	}
	grid, err := loadOrSimulate(ctx, job)
	if err != nil {
		return nil, err
	}
	res, err := domain.RunLSMContext(ctx, grid, domain.LSMParams{
		Strike:   job.Strike,
		Rate:     job.Rate,
		Maturity: job.Maturity,
		IsCall:   !job.Put,
		Degree:   job.Degree,
	})
	if err != nil {
		return nil, err
	}
	euro := domain.SummarizeDiscounted(domain.EuropeanPayoffs(grid, job.Strike, !job.Put), job.Rate, job.Maturity)

	r := &Report{
		Method:        string(domain.PricingModelLSM),
		Price:         res.Price,
		StdErr:        res.Estimate.StdErr,
		CILower:       res.Estimate.CILower,
		CIUpper:       res.Estimate.CIUpper,
		Paths:         res.Paths,
		Steps:         res.Steps,
		Degree:        job.Degree,
		Skipped:       res.SkippedRegressions(),
		European:      euro.Price,
		EarlyExercise: res.Price - euro.Price,
		Elapsed:       time.Since(start).String(),
	}
	if diagnostics {
		r.Reports = res.Reports
	}
	return r, nil
}

func runBinomial(job Job) (*Report, error) {
	start := time.Now()
	price, err := domain.AmericanBinomialCRR(domain.BinomialParams{
		S0:     job.Spot,
		K:      job.Strike,
		T:      job.Maturity,
		R:      job.Rate,
		Q:      job.Dividend,
		Sigma:  job.Volatility,
		Steps:  job.Steps,
		IsCall: !job.Put,
	})
	if err != nil {
		return nil, err
	}
	return &Report{
		Method:  string(domain.PricingModelBinomial),
		Price:   price,
		Steps:   job.Steps,
		Elapsed: time.Since(start).String(),
	}, nil
}

// runEuropean 解析解，同时给出同参数蒙特卡洛估计作对照
func runEuropean(ctx context.Context, job Job) (*Report, error) {
	start := time.Now()
	in := domain.BlackScholesInput{S: job.Spot, K: job.Strike, T: job.Maturity, R: job.Rate, Q: job.Dividend, V: job.Volatility}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	bs := domain.CalculateBlackScholes(job.optionType(), in)

	grid, err := loadOrSimulate(ctx, job)
	if err != nil {
		return nil, err
	}
	mc := domain.SummarizeDiscounted(domain.EuropeanPayoffs(grid, job.Strike, !job.Put), job.Rate, job.Maturity)

	return &Report{
		Method:   string(domain.PricingModelBlackScholes),
		Price:    bs.Price.InexactFloat64(),
		StdErr:   mc.StdErr,
		CILower:  mc.CILower,
		CIUpper:  mc.CIUpper,
		Paths:    grid.Paths(),
		Steps:    grid.Steps(),
		European: mc.Price,
		Elapsed:  time.Since(start).String(),
	}, nil
}

// runSimulate 模拟 GBM 网格并写入 out
func runSimulate(ctx context.Context, job Job, out string, c codec.Compression) (*domain.PathGrid, error) {
	grid, err := domain.SimulateGBMPaths(ctx, job.gbm(), job.Workers)
	if err != nil {
		return nil, err
	}
	if err := gridfile.Save(out, grid, c); err != nil {
		return nil, err
	}
	return grid, nil
}
