// Package utils 提供分页、可取消的退避重试与指针辅助函数
package utils

import (
	"context"
	"time"
)

// MaxPageSize 单页上限
const MaxPageSize = 500

// Pagination 分页信息
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// NewPagination 创建分页信息，非法值回落到默认值
func NewPagination(page, pageSize, defaultSize int) Pagination {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultSize
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return Pagination{Page: page, PageSize: pageSize}
}

// Offset 数据库查询偏移量
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Limit 数据库查询条数
func (p Pagination) Limit() int {
	return p.PageSize
}

// RetryWithBackoff 指数退避重试，ctx 取消时立即返回
func RetryWithBackoff(ctx context.Context, maxAttempts int, initialDelay, maxDelay time.Duration, fn func() error) error {
	var lastErr error
	delay := initialDelay
	maxAttempts = max(maxAttempts, 1)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt == maxAttempts-1 {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = min(delay*2, maxDelay)
	}
	return lastErr
}

// Ptr 返回 v 的指针
func Ptr[T any](v T) *T {
	return &v
}

// Deref 解引用，nil 时返回 def
func Deref[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
