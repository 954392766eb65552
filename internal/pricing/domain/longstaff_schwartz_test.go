package domain_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
)

func mustGrid(t *testing.T, rows [][]float64) *domain.PathGrid {
	t.Helper()
	grid, err := domain.NewPathGridFromRows(rows)
	require.NoError(t, err)
	return grid
}

func TestPriceAmericanOptionTinyPutSkipsRegression(t *testing.T) {
	grid := mustGrid(t, [][]float64{
		{1.0, 1.2, 1.3},
		{1.0, 0.8, 0.7},
		{1.0, 1.0, 1.0},
	})
	params := domain.LSMParams{Strike: 1.0, Rate: 0, Maturity: 1, IsCall: false, Degree: 1}

	res, err := domain.RunLSM(grid, params)
	require.NoError(t, err)

	// 第 1 步只有一条实值路径，少于 degree+1，不回归
	require.Len(t, res.Reports, 1)
	assert.Equal(t, 1, res.Reports[0].InTheMoney)
	assert.False(t, res.Reports[0].Regressed)
	assert.Equal(t, 1, res.SkippedRegressions())
	assert.InDelta(t, 0.1, res.Price, 1e-12)
	assert.GreaterOrEqual(t, res.Price+1e-12, 0.1)
}

func TestPriceAmericanOptionIdenticalPaths(t *testing.T) {
	path := []float64{1.0, 0.9, 0.8, 0.85}
	rows := [][]float64{path, path, path, path}
	params := domain.LSMParams{Strike: 1.0, Rate: 0.05, Maturity: 1, IsCall: false, Degree: 2}

	price, err := domain.PriceAmericanOption(mustGrid(t, rows), params)
	require.NoError(t, err)

	// 路径完全相同时回归拟合是精确的，LSM 退化为确定性最优停时
	want := deterministicAmericanValue(path, params)
	assert.InDelta(t, want, price, 1e-12)
	assert.InDelta(t, 0.2*math.Exp(-0.05*2.0/3.0), price, 1e-12)
}

// deterministicAmericanValue 单条确定路径的逆向归纳：延续价值即实际未来现金流。
func deterministicAmericanValue(path []float64, p domain.LSMParams) float64 {
	n := len(path) - 1
	disc := math.Exp(-p.Rate * p.Maturity / float64(n))
	cf := domain.Payoff(path[n], p.Strike, p.IsCall)
	for t := n - 1; t >= 1; t-- {
		cf *= disc
		if imm := domain.Payoff(path[t], p.Strike, p.IsCall); imm > 0 && imm > cf {
			cf = imm
		}
	}
	return cf * disc
}

func TestRunLSMDegenerateStepKeepsCashflows(t *testing.T) {
	grid := mustGrid(t, [][]float64{
		{1.0, 1.2, 1.3},
		{1.0, 0.8, 0.7},
		{1.0, 1.0, 1.0},
	})
	params := domain.LSMParams{Strike: 1.0, Rate: 0.03, Maturity: 2, IsCall: false, Degree: 1}

	res, err := domain.RunLSM(grid, params)
	require.NoError(t, err)

	df := math.Exp(-0.03 * 2)
	for i := 0; i < grid.Paths(); i++ {
		terminal := domain.Payoff(grid.At(i, 2), params.Strike, false)
		assert.InDelta(t, terminal*df, res.Cashflows[i], 1e-15)
		assert.Equal(t, 2, res.ExerciseSteps[i])
	}
	assert.Equal(t, 0, res.Reports[0].Exercised)
}

func TestRunLSMDegreeZeroUsesMeanContinuation(t *testing.T) {
	grid := mustGrid(t, [][]float64{
		{1.0, 0.9, 0.5},
		{1.0, 0.7, 1.2},
		{1.0, 0.95, 0.7},
		{1.0, 1.1, 0.6},
	})
	params := domain.LSMParams{Strike: 1.0, Rate: 0, Maturity: 1, IsCall: false, Degree: 0}

	res, err := domain.RunLSM(grid, params)
	require.NoError(t, err)

	rep := res.Reports[0]
	assert.True(t, rep.Regressed)
	assert.Equal(t, 3, rep.InTheMoney)
	require.Len(t, rep.Coefficients, 1)
	assert.InDelta(t, 0.8/3, rep.Coefficients[0], 1e-12)
	// 只有路径 1 的即时收益 0.3 超过常数延续值
	assert.Equal(t, 1, rep.Exercised)
	assert.Equal(t, []int{2, 1, 2, 2}, res.ExerciseSteps)
	assert.InDelta(t, 0.375, res.Price, 1e-12)
}

func TestPriceAmericanOptionSingleStepIsEuropean(t *testing.T) {
	grid, err := domain.SimulateGBMPaths(context.Background(), domain.GBMParams{
		S0: 100, R: 0.05, Sigma: 0.2, T: 1, Steps: 1, Paths: 5000, Seed: 7,
	}, 4)
	require.NoError(t, err)

	for _, isCall := range []bool{true, false} {
		params := domain.LSMParams{Strike: 100, Rate: 0.05, Maturity: 1, IsCall: isCall, Degree: 2}
		res, err := domain.RunLSM(grid, params)
		require.NoError(t, err)
		assert.Empty(t, res.Reports)

		euro := domain.SummarizeDiscounted(domain.EuropeanPayoffs(grid, 100, isCall), 0.05, 1)
		assert.InDelta(t, euro.Price, res.Price, 1e-10)
		assert.InDelta(t, euro.StdErr, res.Estimate.StdErr, 1e-10)
	}
}

func TestPriceAmericanOptionInvalidInput(t *testing.T) {
	valid := domain.LSMParams{Strike: 1, Rate: 0.01, Maturity: 1, Degree: 2}
	grid := mustGrid(t, [][]float64{{1, 1.1}, {1, 0.9}})

	tests := []struct {
		name   string
		grid   *domain.PathGrid
		params domain.LSMParams
		want   error
	}{
		{"nil grid", nil, valid, domain.ErrEmptyGrid},
		{"zero value grid", &domain.PathGrid{}, valid, domain.ErrEmptyGrid},
		{"zero maturity", grid, domain.LSMParams{Strike: 1, Maturity: 0, Degree: 2}, domain.ErrNonPositiveMaturity},
		{"negative maturity", grid, domain.LSMParams{Strike: 1, Maturity: -1, Degree: 2}, domain.ErrNonPositiveMaturity},
		{"nan maturity", grid, domain.LSMParams{Strike: 1, Maturity: math.NaN(), Degree: 2}, domain.ErrNonPositiveMaturity},
		{"negative degree", grid, domain.LSMParams{Strike: 1, Maturity: 1, Degree: -1}, domain.ErrNegativeDegree},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := domain.PriceAmericanOption(tt.grid, tt.params)
			require.ErrorIs(t, err, tt.want)
			require.ErrorIs(t, err, domain.ErrInvalidArgument)
		})
	}
}

func TestPriceAmericanOptionZeroStepsRejected(t *testing.T) {
	_, err := domain.NewPathGridFromRows([][]float64{{100}, {100}})
	require.ErrorIs(t, err, domain.ErrNonPositiveSteps)
}

func TestLSMPutMatchesBinomial(t *testing.T) {
	if testing.Short() {
		t.Skip("monte carlo comparison")
	}
	res, err := domain.NewLSMPricer(0).Price(context.Background(), domain.AmericanOptionParams{
		S0: 100, K: 100, T: 1, R: 0.05, Sigma: 0.2, IsPut: true,
		Paths: 20000, Steps: 50, Degree: 2, Seed: 42,
	})
	require.NoError(t, err)

	ref, err := domain.AmericanBinomialCRR(domain.BinomialParams{
		S0: 100, K: 100, T: 1, R: 0.05, Sigma: 0.2, Steps: 1000,
	})
	require.NoError(t, err)

	assert.InDelta(t, ref, res.Price, 0.25)
	assert.Less(t, res.Estimate.CILower, res.Price)
	assert.Greater(t, res.Estimate.CIUpper, res.Price)

	euro := domain.CalculateBlackScholes(domain.OptionTypePut, domain.BlackScholesInput{S: 100, K: 100, T: 1, R: 0.05, V: 0.2})
	assert.Greater(t, res.Price, euro.Price.InexactFloat64()-0.1)
}

func TestLSMCallWithoutDividendsIsEuropean(t *testing.T) {
	if testing.Short() {
		t.Skip("monte carlo comparison")
	}
	res, err := domain.NewLSMPricer(0).Price(context.Background(), domain.AmericanOptionParams{
		S0: 100, K: 100, T: 1, R: 0.05, Sigma: 0.2,
		Paths: 20000, Steps: 50, Degree: 2, Seed: 11,
	})
	require.NoError(t, err)

	bs := domain.CalculateBlackScholes(domain.OptionTypeCall, domain.BlackScholesInput{S: 100, K: 100, T: 1, R: 0.05, V: 0.2})
	assert.InDelta(t, bs.Price.InexactFloat64(), res.Price, 5*res.Estimate.StdErr+0.1)
}

func TestRunLSMContextCancelled(t *testing.T) {
	grid := mustGrid(t, [][]float64{{1, 0.9, 0.8}, {1, 1.1, 0.9}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := domain.RunLSMContext(ctx, grid, domain.LSMParams{Strike: 1, Maturity: 1, Degree: 1})
	require.ErrorIs(t, err, context.Canceled)
}

func TestLSMPricerRejectsBadStrike(t *testing.T) {
	_, err := domain.NewLSMPricer(1).Price(context.Background(), domain.AmericanOptionParams{
		S0: 100, K: 0, T: 1, Sigma: 0.2, Paths: 10, Steps: 2,
	})
	require.ErrorIs(t, err, domain.ErrNonPositiveStrike)
}

func TestRunLSMSkippedStepOnlyDiscounts(t *testing.T) {
	// 第 2 步有 3 条实值路径参与回归；第 1 步只有 1 条，跳过
	rows := [][]float64{
		{1, 1.1, 0.9, 0.95},
		{1, 1.2, 0.8, 0.7},
		{1, 0.9, 0.7, 1.1},
		{1, 1.3, 1.05, 0.85},
	}
	params := domain.LSMParams{Strike: 1, Rate: 0.1, Maturity: 3, IsCall: false, Degree: 1}
	res, err := domain.RunLSM(mustGrid(t, rows), params)
	require.NoError(t, err)

	require.Len(t, res.Reports, 2)
	assert.Equal(t, 2, res.Reports[0].Step)
	assert.True(t, res.Reports[0].Regressed)
	assert.Equal(t, 2, res.Reports[0].Exercised)
	assert.Equal(t, 1, res.Reports[1].Step)
	assert.False(t, res.Reports[1].Regressed)
	assert.Equal(t, []int{3, 2, 2, 3}, res.ExerciseSteps)

	// 去掉第 1 列后 dt 不变，第 2 步的回归输入完全相同
	short := make([][]float64, len(rows))
	for i, r := range rows {
		short[i] = []float64{r[0], r[2], r[3]}
	}
	shortParams := params
	shortParams.Maturity = 2
	ref, err := domain.RunLSM(mustGrid(t, short), shortParams)
	require.NoError(t, err)
	require.True(t, ref.Reports[0].Regressed)

	disc := math.Exp(-0.1)
	for i := range rows {
		assert.InDelta(t, ref.Cashflows[i]*disc, res.Cashflows[i], 1e-15, "path %d", i)
	}

	d2, d3 := disc*disc, disc*disc*disc
	assert.InDelta(t, 0.05*d3, res.Cashflows[0], 1e-15)
	assert.InDelta(t, 0.2*d2, res.Cashflows[1], 1e-15)
	assert.InDelta(t, 0.3*d2, res.Cashflows[2], 1e-15)
	assert.InDelta(t, 0.15*d3, res.Cashflows[3], 1e-15)
}

func TestRunLSMExerciseNeverBelowHoldValue(t *testing.T) {
	tests := []struct {
		name   string
		path   []float64
		isCall bool
	}{
		{"put dips then recovers", []float64{1, 0.9, 0.8, 0.85}, false},
		{"put deepens", []float64{1, 0.95, 0.7, 0.6, 0.5}, false},
		{"put exits the money", []float64{1, 0.7, 0.9, 1.2}, false},
		{"call peaks early", []float64{1, 1.2, 1.4, 1.1}, true},
		{"call rises", []float64{1, 1.1, 1.2, 1.3, 1.5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := [][]float64{tt.path, tt.path, tt.path}
			params := domain.LSMParams{Strike: 1, Rate: 0.05, Maturity: 1, IsCall: tt.isCall, Degree: 2}
			res, err := domain.RunLSM(mustGrid(t, rows), params)
			require.NoError(t, err)

			n := len(tt.path) - 1
			hold := domain.Payoff(tt.path[n], params.Strike, tt.isCall) * math.Exp(-params.Rate*params.Maturity)
			for i, cf := range res.Cashflows {
				assert.GreaterOrEqual(t, cf+1e-12, hold, "path %d", i)
				if res.ExerciseSteps[i] < n {
					assert.Greater(t, cf, hold, "path %d exercised at %d", i, res.ExerciseSteps[i])
				}
			}
		})
	}
}

func TestPriceAmericanOptionHugeDegreeSkipsRegression(t *testing.T) {
	grid := mustGrid(t, [][]float64{{1, 0.9, 0.8}, {1, 0.8, 0.7}})
	params := domain.LSMParams{Strike: 1, Maturity: 1, Degree: math.MaxInt}

	var res *domain.LSMResult
	require.NotPanics(t, func() {
		var err error
		res, err = domain.RunLSM(grid, params)
		require.NoError(t, err)
	})
	assert.Equal(t, 1, res.SkippedRegressions())
	assert.InDelta(t, 0.25, res.Price, 1e-12)
}
