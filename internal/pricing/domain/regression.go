package domain

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// ContinuationModel 延续价值的多项式回归模型 E[Y|S] ≈ Σ beta_k S^k。
type ContinuationModel struct {
	Coefficients []float64
	// Rank 设计矩阵的有效秩
	Rank int
}

// Degree 多项式阶数
func (m *ContinuationModel) Degree() int { return len(m.Coefficients) - 1 }

// Evaluate 计算价格 s 处的拟合延续价值，幂次计算方式与设计矩阵一致。
func (m *ContinuationModel) Evaluate(s float64) float64 {
	var v float64
	pow := 1.0
	for _, b := range m.Coefficients {
		v += b * pow
		pow *= s
	}
	return v
}

// FitContinuation 以单项式基 [1, S, ..., S^degree] 对 targets 做最小二乘回归。
//
// 样本数为 0 或少于 degree+1 时不回归，返回 (nil, false)。
// 否则通过 SVD 求最小范数解，秩亏或病态矩阵也能给出结果。幂次溢出、分解失败、
// 秩为 0 或系数非有限时同样返回 (nil, false)，调用方保持现金流不变。该函数不返回错误。
func FitContinuation(prices, targets []float64, degree int) (*ContinuationModel, bool) {
	m := len(prices)
	// degree >= m 等价于 m < degree+1，且不会溢出
	if degree < 0 || m == 0 || degree >= m || len(targets) != m {
		return nil, false
	}
	p := degree + 1

	x := mat.NewDense(m, p, nil)
	row := make([]float64, p)
	for i, s := range prices {
		pow := 1.0
		for k := range row {
			row[k] = pow
			pow *= s
		}
		if math.IsInf(row[p-1], 0) || math.IsNaN(row[p-1]) {
			return nil, false
		}
		x.SetRow(i, row)
	}
	y := mat.NewVecDense(m, append([]float64(nil), targets...))

	var svd mat.SVD
	if !svd.Factorize(x, mat.SVDThin) {
		return nil, false
	}
	// 与 LAPACK gelsd 默认截断一致：rcond = eps · max(m, p)
	rcond := math.Nextafter(1, 2) - 1
	rcond *= float64(max(m, p))
	rank := svd.Rank(rcond)
	if rank == 0 {
		return nil, false
	}

	var beta mat.VecDense
	svd.SolveVecTo(&beta, y, rank)
	model := &ContinuationModel{Coefficients: make([]float64, p), Rank: rank}
	for k := range model.Coefficients {
		c := beta.AtVec(k)
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, false
		}
		model.Coefficients[k] = c
	}
	return model, true
}
