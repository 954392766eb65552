package domain

import (
	"fmt"
	"math"
)

// PathGrid 预生成的标的价格网格，n_paths 行 × (n_steps+1) 列，按行主序平铺存储。
// 第 0 列为 t=0，最后一列为到期日。构造后只读，调用方不得修改传入的底层切片。
type PathGrid struct {
	paths int
	cols  int
	data  []float64
}

// NewPathGrid 基于行主序平铺数据构造网格。
func NewPathGrid(data []float64, paths, cols int) (*PathGrid, error) {
	if len(data) == 0 {
		return nil, ErrEmptyGrid
	}
	if paths <= 0 {
		return nil, ErrNonPositivePaths
	}
	if err := checkColumns(cols); err != nil {
		return nil, err
	}
	if len(data) != paths*cols {
		return nil, fmt.Errorf("%w: have %d values, want %d×%d", ErrGridShape, len(data), paths, cols)
	}
	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: path %d step %d", ErrNonFinitePrice, i/cols, i%cols)
		}
	}
	return &PathGrid{paths: paths, cols: cols, data: data}, nil
}

// NewPathGridFromRows 由二维切片构造网格，拒绝锯齿形输入。
func NewPathGridFromRows(rows [][]float64) (*PathGrid, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyGrid
	}
	cols := len(rows[0])
	if cols == 0 {
		return nil, ErrEmptyGrid
	}
	if err := checkColumns(cols); err != nil {
		return nil, err
	}
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrGridShape, i, len(row), cols)
		}
		data = append(data, row...)
	}
	return NewPathGrid(data, len(rows), cols)
}

func checkColumns(cols int) error {
	switch {
	case cols < 1:
		return fmt.Errorf("%w: %d columns", ErrGridShape, cols)
	case cols == 1:
		// 只有 t=0 一列时 n_steps = 0
		return fmt.Errorf("%w: grid has a single column", ErrNonPositiveSteps)
	}
	return nil
}

// Paths 路径数
func (g *PathGrid) Paths() int { return g.paths }

// Cols 列数 (n_steps+1)
func (g *PathGrid) Cols() int { return g.cols }

// Steps 时间步数
func (g *PathGrid) Steps() int { return g.cols - 1 }

// At 返回第 path 条路径在第 step 步的价格。越界属于编程错误，直接 panic，
// 不允许列越界静默读到下一行。
func (g *PathGrid) At(path, step int) float64 {
	if path < 0 || path >= g.paths || step < 0 || step >= g.cols {
		panic(fmt.Sprintf("pricing: grid index (%d, %d) out of range %d×%d", path, step, g.paths, g.cols))
	}
	return g.data[path*g.cols+step]
}

// Row 返回第 i 条路径的只读视图。
func (g *PathGrid) Row(i int) []float64 {
	if i < 0 || i >= g.paths {
		panic(fmt.Sprintf("pricing: grid row %d out of range [0, %d)", i, g.paths))
	}
	return g.data[i*g.cols : (i+1)*g.cols : (i+1)*g.cols]
}

// Column 将第 step 列拷贝到 dst 并返回，dst 容量不足时重新分配。
func (g *PathGrid) Column(step int, dst []float64) []float64 {
	if step < 0 || step >= g.cols {
		panic(fmt.Sprintf("pricing: grid step %d out of range [0, %d)", step, g.cols))
	}
	dst = dst[:0]
	for i := 0; i < g.paths; i++ {
		dst = append(dst, g.data[i*g.cols+step])
	}
	return dst
}

// Data 行主序底层数据，只读。
func (g *PathGrid) Data() []float64 { return g.data }

// validate 防御零值网格直接进入定价流程。
func (g *PathGrid) validate() error {
	if g == nil || len(g.data) == 0 {
		return ErrEmptyGrid
	}
	if g.paths <= 0 {
		return ErrNonPositivePaths
	}
	if err := checkColumns(g.cols); err != nil {
		return err
	}
	if len(g.data) != g.paths*g.cols {
		return ErrGridShape
	}
	return nil
}

// InTheMoney 返回第 step 步收益严格为正的路径下标（升序），复用 dst 的存储。
func InTheMoney(grid *PathGrid, step int, strike float64, isCall bool, dst []int) []int {
	if step < 0 || step >= grid.cols {
		panic(fmt.Sprintf("pricing: grid step %d out of range [0, %d)", step, grid.cols))
	}
	dst = dst[:0]
	for i := 0; i < grid.paths; i++ {
		if Payoff(grid.data[i*grid.cols+step], strike, isCall) > 0 {
			dst = append(dst, i)
		}
	}
	return dst
}
