package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Job 一次离线定价任务；YAML 文件中缺省的字段保留默认值
type Job struct {
	Spot       float64 `yaml:"spot"`
	Strike     float64 `yaml:"strike"`
	Maturity   float64 `yaml:"maturity"`
	Rate       float64 `yaml:"rate"`
	Dividend   float64 `yaml:"dividend"`
	Volatility float64 `yaml:"volatility"`
	Put        bool    `yaml:"put"`
	Paths      int     `yaml:"paths"`
	Steps      int     `yaml:"steps"`
	Degree     int     `yaml:"degree"`
	Seed       uint64  `yaml:"seed"`
	Workers    int     `yaml:"workers"`
	// Grid 预生成网格文件 (.csv 或二进制)，设置后不再模拟路径
	Grid string `yaml:"grid"`
}

func defaultJob() Job {
	return Job{
		Spot:       36,
		Strike:     40,
		Maturity:   1,
		Rate:       0.06,
		Volatility: 0.2,
		Put:        true,
		Paths:      20000,
		Steps:      50,
		Degree:     2,
		Seed:       42,
	}
}

// LoadJob 读取 YAML 任务文件；grid 的相对路径相对于任务文件所在目录
func LoadJob(path string) (Job, error) {
	job := defaultJob()
	raw, err := os.ReadFile(path)
	if err != nil {
		return job, err
	}
	if err := yaml.Unmarshal(raw, &job); err != nil {
		return job, fmt.Errorf("parse job %s: %w", path, err)
	}
	if job.Grid != "" && !filepath.IsAbs(job.Grid) {
		job.Grid = filepath.Join(filepath.Dir(path), job.Grid)
	}
	return job, nil
}
