package domain

import "context"

// PricingRepository 定价结果仓储接口
type PricingRepository interface {
	// WithTx 在事务中执行 fn，事务通过 ctx 传递给同仓储及 Outbox
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	SavePricingResult(ctx context.Context, result *PricingResult) error
	// GetLatestPricingResult 不存在时返回 (nil, nil)
	GetLatestPricingResult(ctx context.Context, symbol string) (*PricingResult, error)
	// GetPricingResultHistory 按计算时间倒序分页
	GetPricingResultHistory(ctx context.Context, symbol string, offset, limit int) ([]*PricingResult, error)
}

// PricingCache 最新定价结果缓存
type PricingCache interface {
	// GetLatest 未命中时返回 (nil, nil)
	GetLatest(ctx context.Context, symbol string) (*PricingResult, error)
	SetLatest(ctx context.Context, result *PricingResult) error
}
