// Package gridfile 从磁盘读写价格网格：CSV（每行一条路径）或 codec 二进制格式
package gridfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
	"github.com/wyfcoding/optionpricing/internal/pricing/infrastructure/codec"
)

// ReadCSV 读取逗号分隔的网格，每行一条路径，第一列为 t=0；空行与 # 开头的行被忽略
func ReadCSV(r io.Reader) (*domain.PathGrid, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var (
		data []float64
		cols int
		line int
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: csv: %v", domain.ErrInvalidArgument, err)
		}
		line++
		if line == 1 {
			cols = len(rec)
		} else if len(rec) != cols {
			return nil, fmt.Errorf("%w: row %d has %d columns, expected %d", domain.ErrGridShape, line, len(rec), cols)
		}
		for j, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d column %d: %v", domain.ErrInvalidArgument, line, j, err)
			}
			data = append(data, v)
		}
	}
	if line == 0 {
		return nil, domain.ErrEmptyGrid
	}
	return domain.NewPathGrid(data, line, cols)
}

// WriteCSV 按行写出网格
func WriteCSV(w io.Writer, grid *domain.PathGrid) error {
	cw := csv.NewWriter(w)
	rec := make([]string, grid.Cols())
	for i := range grid.Paths() {
		for j, v := range grid.Row(i) {
			rec[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Load 按扩展名选择格式：.csv 为 CSV，其余按二进制格式解码
func Load(path string, maxCells int) (*domain.PathGrid, error) {
	if isCSV(path) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ReadCSV(f)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return codec.Decode(b, maxCells)
}

// Save 按扩展名写出网格，二进制格式使用 c 压缩
func Save(path string, grid *domain.PathGrid, c codec.Compression) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if isCSV(path) {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := WriteCSV(f, grid); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	}
	b, err := codec.Encode(grid, c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func isCSV(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".csv")
}
