package domain

import (
	"context"
	"fmt"
	"math"
)

// MaxBinomialSteps 二叉树步数上限，计算量随步数平方增长
const MaxBinomialSteps = 100_000

// BinomialParams CRR 二叉树参数
type BinomialParams struct {
	S0     float64
	K      float64
	T      float64
	R      float64
	Q      float64
	Sigma  float64
	Steps  int
	IsCall bool
}

// AmericanBinomialCRR Cox-Ross-Rubinstein 二叉树美式期权价格，作为 LSM 的参考基准。
func AmericanBinomialCRR(p BinomialParams) (float64, error) {
	return AmericanBinomialCRRContext(context.Background(), p)
}

// AmericanBinomialCRRContext 逆向归纳时每 256 层检查一次 ctx。
func AmericanBinomialCRRContext(ctx context.Context, p BinomialParams) (float64, error) {
	switch {
	case !(p.S0 > 0):
		return 0, ErrNonPositiveSpot
	case !(p.K > 0):
		return 0, ErrNonPositiveStrike
	case !(p.T > 0):
		return 0, ErrNonPositiveMaturity
	case !(p.Sigma > 0):
		return 0, ErrNonPositiveVolatility
	case p.Steps <= 0:
		return 0, ErrNonPositiveSteps
	case p.Steps > MaxBinomialSteps:
		return 0, fmt.Errorf("%w: %d > %d", ErrTooManySteps, p.Steps, MaxBinomialSteps)
	}

	n := p.Steps
	dt := p.T / float64(n)
	u := math.Exp(p.Sigma * math.Sqrt(dt))
	d := 1 / u
	disc := math.Exp(-p.R * dt)
	q := (math.Exp((p.R-p.Q)*dt) - d) / (u - d)
	if q < 0 || q > 1 {
		return 0, ErrArbitrageProbability
	}

	values := make([]float64, n+1)
	for j := 0; j <= n; j++ {
		s := p.S0 * math.Pow(u, float64(j)) * math.Pow(d, float64(n-j))
		values[j] = Payoff(s, p.K, p.IsCall)
	}
	for i := n - 1; i >= 0; i-- {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		for j := 0; j <= i; j++ {
			cont := disc * (q*values[j+1] + (1-q)*values[j])
			s := p.S0 * math.Pow(u, float64(j)) * math.Pow(d, float64(i-j))
			values[j] = max(cont, Payoff(s, p.K, p.IsCall))
		}
	}
	return values[0], nil
}
