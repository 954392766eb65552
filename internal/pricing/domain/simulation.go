package domain

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// GBMParams 几何布朗运动路径参数
type GBMParams struct {
	S0    float64 // 初始价格
	R     float64 // 无风险利率
	Q     float64 // 连续股息率
	Sigma float64 // 波动率
	T     float64 // 期限 (年)
	Steps int
	Paths int
	Seed  uint64
}

// Validate 校验模拟参数
func (p GBMParams) Validate() error {
	switch {
	case !(p.S0 > 0):
		return ErrNonPositiveSpot
	case p.Sigma < 0 || math.IsNaN(p.Sigma):
		return ErrNegativeVolatility
	case !(p.T > 0):
		return ErrNonPositiveMaturity
	case p.Steps <= 0:
		return ErrNonPositiveSteps
	case p.Paths <= 0:
		return ErrNonPositivePaths
	case p.Steps >= math.MaxInt || p.Paths > math.MaxInt/(p.Steps+1):
		// paths × (steps+1) 不能溢出 int
		return fmt.Errorf("%w: %d paths × %d steps", ErrGridTooLarge, p.Paths, p.Steps)
	}
	return nil
}

// SimulateGBMPaths 在风险中性测度下模拟 GBM 路径：
// S_{t+dt} = S_t · exp((r - q - σ²/2)dt + σ√dt·Z)。
// 每条路径使用独立的 PCG 流 (seed, path)，结果与并发度无关。
func SimulateGBMPaths(ctx context.Context, p GBMParams, workers int) (*PathGrid, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, p.Paths)

	cols := p.Steps + 1
	data := make([]float64, p.Paths*cols)
	dt := p.T / float64(p.Steps)
	drift := (p.R - p.Q - 0.5*p.Sigma*p.Sigma) * dt
	vol := p.Sigma * math.Sqrt(dt)

	g, gctx := errgroup.WithContext(ctx)
	chunk := (p.Paths + workers - 1) / workers
	for start := 0; start < p.Paths; start += chunk {
		end := min(start+chunk, p.Paths)
		g.Go(func() error {
			for i := start; i < end; i++ {
				if i%1024 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				rng := rand.New(rand.NewPCG(p.Seed, uint64(i)))
				row := data[i*cols : (i+1)*cols]
				row[0] = p.S0
				logS := math.Log(p.S0)
				for t := 1; t < cols; t++ {
					logS += drift + vol*rng.NormFloat64()
					row[t] = math.Exp(logS)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return NewPathGrid(data, p.Paths, cols)
}
